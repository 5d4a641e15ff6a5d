package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agrilink/agrilink-gobackend/internal/momo"
	"github.com/agrilink/agrilink-gobackend/internal/payment"
)

type fakeAPI struct {
	initiateFn func(ctx context.Context, phoneNumber string, amount float64, orderIDs []string) (*payment.InitiateResult, error)
	statusFn   func(ctx context.Context, referenceID string) (*payment.StatusResult, error)
	initiated  atomic.Int64
	polls      atomic.Int64
}

func (f *fakeAPI) Initiate(ctx context.Context, phoneNumber string, amount float64, orderIDs []string) (*payment.InitiateResult, error) {
	f.initiated.Add(1)
	return f.initiateFn(ctx, phoneNumber, amount, orderIDs)
}

func (f *fakeAPI) CheckStatus(ctx context.Context, referenceID string) (*payment.StatusResult, error) {
	f.polls.Add(1)
	return f.statusFn(ctx, referenceID)
}

func okInitiate(ctx context.Context, phoneNumber string, amount float64, orderIDs []string) (*payment.InitiateResult, error) {
	return &payment.InitiateResult{ReferenceID: "ref-1", ExternalID: "ext-1", OrderIDs: orderIDs}, nil
}

func statusSequence(statuses ...momo.Status) func(ctx context.Context, referenceID string) (*payment.StatusResult, error) {
	var calls atomic.Int64
	return func(ctx context.Context, referenceID string) (*payment.StatusResult, error) {
		n := int(calls.Add(1))
		st := statuses[len(statuses)-1]
		if n <= len(statuses) {
			st = statuses[n-1]
		}
		return &payment.StatusResult{ReferenceID: referenceID, PaymentStatus: st}, nil
	}
}

func newTestSession(api PaymentAPI, opts ...Option) *Session {
	base := []Option{WithInterval(5 * time.Millisecond), WithMaxAttempts(30)}
	return NewSession(api, append(base, opts...)...)
}

func TestSessionResolvesSuccessAfterPendingPolls(t *testing.T) {
	api := &fakeAPI{
		initiateFn: okInitiate,
		statusFn:   statusSequence(momo.StatusPending, momo.StatusPending, momo.StatusSuccessful),
	}
	s := newTestSession(api)

	require.NoError(t, s.Start(context.Background(), "46733123453", 5000, []string{"o1"}))
	require.Equal(t, StateAwaiting, s.State())
	require.Equal(t, "ref-1", s.ReferenceID())

	outcome := <-s.Outcome()
	require.Equal(t, StateResolvedSuccess, outcome.State)
	require.Equal(t, "ref-1", outcome.ReferenceID)
	require.Equal(t, momo.StatusSuccessful, outcome.TerminalStatus)
	require.Equal(t, 3, outcome.Attempts)
	require.Equal(t, StateResolvedSuccess, s.State())
}

func TestSessionResolvesFailureOnRejection(t *testing.T) {
	api := &fakeAPI{
		initiateFn: okInitiate,
		statusFn: func(ctx context.Context, referenceID string) (*payment.StatusResult, error) {
			return &payment.StatusResult{
				ReferenceID:   referenceID,
				PaymentStatus: momo.StatusRejected,
				Reason:        "payer declined",
			}, nil
		},
	}
	s := newTestSession(api)

	require.NoError(t, s.Start(context.Background(), "46733123453", 5000, []string{"o1"}))

	outcome := <-s.Outcome()
	require.Equal(t, StateResolvedFailure, outcome.State)
	require.Equal(t, momo.StatusRejected, outcome.TerminalStatus)
	require.Contains(t, outcome.Message, "rejected")
	require.Contains(t, outcome.Message, "payer declined")
}

func TestSessionProviderTimeoutIsAFailure(t *testing.T) {
	api := &fakeAPI{
		initiateFn: okInitiate,
		statusFn:   statusSequence(momo.StatusTimeout),
	}
	s := newTestSession(api)

	require.NoError(t, s.Start(context.Background(), "46733123453", 5000, []string{"o1"}))

	outcome := <-s.Outcome()
	require.Equal(t, StateResolvedFailure, outcome.State)
	require.Equal(t, momo.StatusTimeout, outcome.TerminalStatus)
}

func TestSessionLocalTimeoutIsDistinctFromProviderTimeout(t *testing.T) {
	api := &fakeAPI{
		initiateFn: okInitiate,
		statusFn:   statusSequence(momo.StatusPending),
	}
	s := newTestSession(api, WithMaxAttempts(4))

	require.NoError(t, s.Start(context.Background(), "46733123453", 5000, []string{"o1"}))

	outcome := <-s.Outcome()
	require.Equal(t, StateResolvedTimeout, outcome.State)
	require.Empty(t, outcome.TerminalStatus)
	require.Equal(t, 4, outcome.Attempts)
}

func TestSessionSkipsTransportErrors(t *testing.T) {
	var calls atomic.Int64
	api := &fakeAPI{
		initiateFn: okInitiate,
		statusFn: func(ctx context.Context, referenceID string) (*payment.StatusResult, error) {
			if calls.Add(1) <= 2 {
				return nil, errors.New("connection reset")
			}
			return &payment.StatusResult{ReferenceID: referenceID, PaymentStatus: momo.StatusSuccessful}, nil
		},
	}
	s := newTestSession(api)

	require.NoError(t, s.Start(context.Background(), "46733123453", 5000, []string{"o1"}))

	outcome := <-s.Outcome()
	require.Equal(t, StateResolvedSuccess, outcome.State)
	require.Equal(t, 3, outcome.Attempts)
}

func TestSessionSkipsTicksWhilePollInFlight(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		initiateFn: okInitiate,
		statusFn: func(ctx context.Context, referenceID string) (*payment.StatusResult, error) {
			<-release
			return &payment.StatusResult{ReferenceID: referenceID, PaymentStatus: momo.StatusSuccessful}, nil
		},
	}
	s := newTestSession(api)

	require.NoError(t, s.Start(context.Background(), "46733123453", 5000, []string{"o1"}))

	// Hold the first poll open across several intervals. The ticks firing
	// meanwhile must be skipped, not stacked into overlapping polls.
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, int64(1), api.polls.Load())
	require.Equal(t, StateAwaiting, s.State())

	close(release)
	outcome := <-s.Outcome()
	require.Equal(t, StateResolvedSuccess, outcome.State)

	// Skipped ticks consumed no attempts either.
	require.Equal(t, 1, outcome.Attempts)
}

func TestSessionRejectsInvalidPhoneLocally(t *testing.T) {
	api := &fakeAPI{initiateFn: okInitiate}
	s := newTestSession(api)

	err := s.Start(context.Background(), "12 34", 5000, []string{"o1"})
	require.Error(t, err)
	require.Equal(t, StateIdle, s.State())
	require.Equal(t, int64(0), api.initiated.Load())
}

func TestSessionStaysIdleWhenInitiateFails(t *testing.T) {
	api := &fakeAPI{
		initiateFn: func(ctx context.Context, phoneNumber string, amount float64, orderIDs []string) (*payment.InitiateResult, error) {
			return nil, errors.New("provider down")
		},
	}
	s := newTestSession(api)

	err := s.Start(context.Background(), "46733123453", 5000, []string{"o1"})
	require.Error(t, err)
	require.Equal(t, StateIdle, s.State())
}

func TestSessionCancelDiscardsAttempt(t *testing.T) {
	var succeed atomic.Bool
	api := &fakeAPI{
		initiateFn: okInitiate,
		statusFn: func(ctx context.Context, referenceID string) (*payment.StatusResult, error) {
			st := momo.StatusPending
			if succeed.Load() {
				st = momo.StatusSuccessful
			}
			return &payment.StatusResult{ReferenceID: referenceID, PaymentStatus: st}, nil
		},
	}
	s := newTestSession(api)

	require.NoError(t, s.Start(context.Background(), "46733123453", 5000, []string{"o1"}))

	// Let a couple of polls happen, then hit retry.
	time.Sleep(15 * time.Millisecond)
	s.Cancel()

	require.Equal(t, StateIdle, s.State())
	require.Empty(t, s.ReferenceID())

	// No outcome may arrive after cancellation, even from an in-flight tick.
	select {
	case outcome := <-s.Outcome():
		t.Fatalf("unexpected outcome after cancel: %+v", outcome)
	case <-time.After(30 * time.Millisecond):
	}

	// The session is reusable for a fresh attempt.
	succeed.Store(true)
	require.NoError(t, s.Start(context.Background(), "46733123453", 5000, []string{"o2"}))
	outcome := <-s.Outcome()
	require.Equal(t, StateResolvedSuccess, outcome.State)
}

func TestSessionRejectsConcurrentStart(t *testing.T) {
	api := &fakeAPI{
		initiateFn: okInitiate,
		statusFn:   statusSequence(momo.StatusPending),
	}
	s := newTestSession(api)

	require.NoError(t, s.Start(context.Background(), "46733123453", 5000, []string{"o1"}))
	err := s.Start(context.Background(), "46733123453", 5000, []string{"o1"})
	require.Error(t, err)

	s.Cancel()
}
