package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agrilink/agrilink-gobackend/internal/momo"
	"github.com/agrilink/agrilink-gobackend/internal/payment"
)

const (
	defaultInterval    = 3 * time.Second
	defaultMaxAttempts = 30
	minPhoneDigits     = 9
)

// State is the poller's position in a single payment attempt.
type State string

const (
	StateIdle            State = "idle"
	StateSubmitting      State = "submitting"
	StateAwaiting        State = "awaiting_confirmation"
	StateResolvedSuccess State = "resolved_success"
	StateResolvedFailure State = "resolved_failure"
	StateResolvedTimeout State = "resolved_timeout"
)

// PaymentAPI is the application surface the poller drives. The orchestrator
// satisfies it directly; APIClient satisfies it over HTTP.
type PaymentAPI interface {
	Initiate(ctx context.Context, phoneNumber string, amount float64, orderIDs []string) (*payment.InitiateResult, error)
	CheckStatus(ctx context.Context, referenceID string) (*payment.StatusResult, error)
}

// Outcome describes how a session resolved.
type Outcome struct {
	State          State
	ReferenceID    string
	TerminalStatus momo.Status
	Message        string
	Attempts       int
}

// Session drives one payment attempt: submit, then poll at a fixed interval
// until a terminal status arrives or the attempt budget runs out.
type Session struct {
	api         PaymentAPI
	interval    time.Duration
	maxAttempts int
	logger      *log.Logger

	mu          sync.Mutex // guards the session fields below
	state       State
	referenceID string
	attempts    int
	inFlight    bool
	active      bool
	cancel      context.CancelFunc
	outcome     chan Outcome
}

// Option customizes a session.
type Option func(*Session)

// WithInterval adjusts the delay between status polls.
func WithInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxAttempts overrides the poll budget.
func WithMaxAttempts(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithLogger lets callers supply a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession builds an idle session with sane defaults.
func NewSession(api PaymentAPI, opts ...Option) *Session {
	s := &Session{
		api:         api,
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		logger:      log.New(os.Stdout, "poller ", log.LstdFlags),
		state:       StateIdle,
		outcome:     make(chan Outcome, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReferenceID returns the reference of the in-progress attempt, if any.
func (s *Session) ReferenceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.referenceID
}

// Outcome delivers the terminal outcome of the current attempt. The channel
// receives exactly one value per started attempt that resolves; a cancelled
// attempt delivers nothing.
func (s *Session) Outcome() <-chan Outcome {
	return s.outcome
}

// Start validates the phone number locally, submits the collection, and begins
// polling. It returns an error (leaving the session idle) when validation or
// the initiate call fails.
func (s *Session) Start(ctx context.Context, phoneNumber string, amount float64, orderIDs []string) error {
	if !phoneLooksValid(phoneNumber) {
		return errors.New("phone number looks invalid")
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("session is %s, retry first", s.state)
	}
	s.state = StateSubmitting
	s.mu.Unlock()

	res, err := s.api.Initiate(ctx, phoneNumber, amount, orderIDs)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return err
	}

	pollCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.state = StateAwaiting
	s.referenceID = res.ReferenceID
	s.attempts = 0
	s.active = true
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Printf("collection %s submitted, polling every %s", res.ReferenceID, s.interval)
	go s.loop(pollCtx)
	return nil
}

// Cancel is the retry action: it stops future ticks and fully discards the
// attempt, returning the session to idle. A tick already in flight observes the
// cleared active flag and leaves the session untouched.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.active = false
	s.cancel = nil
	s.referenceID = ""
	s.attempts = 0
	s.state = StateIdle
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Drop an undelivered outcome from a previous attempt so the next
	// resolution never blocks on a full channel.
	select {
	case <-s.outcome:
	default:
	}
}

func (s *Session) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := s.tick(ctx); done {
				return
			}
		}
	}
}

// tick runs one status poll. Returns true once the session has resolved.
func (s *Session) tick(ctx context.Context) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return true
	}
	if s.inFlight {
		// Previous poll still running; skip rather than overlap.
		s.mu.Unlock()
		s.logger.Printf("poll for %s still in flight, skipping tick", s.referenceID)
		return false
	}
	s.inFlight = true
	s.attempts++
	attempts := s.attempts
	ref := s.referenceID
	s.mu.Unlock()

	res, err := s.api.CheckStatus(ctx, ref)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false

	if !s.active {
		// Cancelled while the poll was in flight; drop the result.
		return true
	}

	if err != nil {
		// Transient transport problem: skip this tick, keep polling.
		s.logger.Printf("status poll %d for %s failed: %v", attempts, ref, err)
		if attempts >= s.maxAttempts {
			s.resolveLocked(StateResolvedTimeout, "", "payment not confirmed in time, please retry", attempts)
			return true
		}
		return false
	}

	switch res.PaymentStatus {
	case momo.StatusSuccessful:
		s.resolveLocked(StateResolvedSuccess, res.PaymentStatus, "payment confirmed", attempts)
		return true
	case momo.StatusFailed, momo.StatusRejected, momo.StatusTimeout:
		msg := fmt.Sprintf("payment %s", strings.ToLower(string(res.PaymentStatus)))
		if res.Reason != "" {
			msg = fmt.Sprintf("%s: %s", msg, res.Reason)
		}
		s.resolveLocked(StateResolvedFailure, res.PaymentStatus, msg, attempts)
		return true
	default:
		if attempts >= s.maxAttempts {
			// Local poll budget exhausted; distinct from a provider-side
			// TIMEOUT status, hence no TerminalStatus.
			s.logger.Printf("poll budget exhausted for %s after %d attempts", ref, attempts)
			s.resolveLocked(StateResolvedTimeout, "", "payment not confirmed in time, please retry", attempts)
			return true
		}
		return false
	}
}

func (s *Session) resolveLocked(state State, terminal momo.Status, msg string, attempts int) {
	s.state = state
	s.active = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.logger.Printf("session resolved %s for %s after %d attempts: %s", state, s.referenceID, attempts, msg)
	s.outcome <- Outcome{
		State:          state,
		ReferenceID:    s.referenceID,
		TerminalStatus: terminal,
		Message:        msg,
		Attempts:       attempts,
	}
}

// phoneLooksValid checks the minimum cleaned-digit length only; corridor-level
// numbering rules are the provider's concern.
func phoneLooksValid(phone string) bool {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits
}
