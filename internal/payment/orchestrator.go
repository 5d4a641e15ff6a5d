package payment

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/agrilink/agrilink-gobackend/internal/momo"
)

const defaultApproveAfter = 3

// CollectionClient is the subset of the provider client the orchestrator uses.
type CollectionClient interface {
	SubmitCollection(ctx context.Context, payer string, amount float64, externalID string) (string, error)
	CollectionStatus(ctx context.Context, referenceID string) (*momo.CollectionStatus, error)
}

// PaymentRecord carries the fields persisted when a collection is initiated.
type PaymentRecord struct {
	ReferenceID string
	ExternalID  string
	PayerNumber string
	Amount      float64
	Currency    string
	OrderIDs    []string
}

// Recorder persists payment bookkeeping. Both methods are best-effort from the
// orchestrator's point of view; recording failures never fail the payment call.
// RecordStatus reports whether the stored status actually changed, so the
// caller can tell a settlement transition from a repeated observation.
type Recorder interface {
	RecordInitiated(ctx context.Context, rec PaymentRecord) error
	RecordStatus(ctx context.Context, referenceID, status, reason string) (bool, error)
}

// InitiateResult is returned from a successful Initiate call.
type InitiateResult struct {
	ReferenceID string
	ExternalID  string
	OrderIDs    []string
}

// StatusResult is the orchestrator's view of a collection's current status,
// with the sandbox override already applied.
type StatusResult struct {
	ReferenceID   string
	PaymentStatus momo.Status
	Amount        string
	Currency      string
	Reason        string
}

// Orchestrator exposes the application-facing payment operations and owns the
// sandbox auto-approval heuristic.
type Orchestrator struct {
	client       CollectionClient
	pending      *PendingTracker
	recorder     Recorder
	events       *EventPublisher
	sandbox      bool
	approveAfter int
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithSandbox gates the auto-approval override for PENDING statuses.
func WithSandbox(enabled bool) Option {
	return func(o *Orchestrator) { o.sandbox = enabled }
}

// WithApproveAfter sets how many consecutive PENDING polls trigger the sandbox
// auto-approval.
func WithApproveAfter(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.approveAfter = n
		}
	}
}

// WithPendingTracker injects the tracker instance, letting tests start fresh.
func WithPendingTracker(t *PendingTracker) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.pending = t
		}
	}
}

// WithRecorder wires payment bookkeeping.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithEventPublisher wires settlement event delivery.
func WithEventPublisher(p *EventPublisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// NewOrchestrator builds an orchestrator with its own pending tracker.
func NewOrchestrator(client CollectionClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:       client,
		pending:      NewPendingTracker(0, 0),
		approveAfter: defaultApproveAfter,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initiate validates the request and submits a collection. Validation failures
// never reach the provider; provider failures propagate unretried.
func (o *Orchestrator) Initiate(ctx context.Context, phoneNumber string, amount float64, orderIDs []string) (*InitiateResult, error) {
	if strings.TrimSpace(phoneNumber) == "" {
		return nil, &ValidationError{Message: "phoneNumber is required"}
	}
	if amount <= 0 {
		return nil, &ValidationError{Message: "amount must be greater than zero"}
	}
	if len(orderIDs) == 0 {
		return nil, &ValidationError{Message: "at least one orderId is required"}
	}

	externalID := uuid.NewString()
	referenceID, err := o.client.SubmitCollection(ctx, phoneNumber, amount, externalID)
	if err != nil {
		log.Printf("Collection submit failed for externalId %s: %v", externalID, err)
		return nil, err
	}

	log.Printf("Collection submitted: referenceId=%s externalId=%s orders=%d", referenceID, externalID, len(orderIDs))

	if o.recorder != nil {
		rec := PaymentRecord{
			ReferenceID: referenceID,
			ExternalID:  externalID,
			PayerNumber: phoneNumber,
			Amount:      amount,
			OrderIDs:    orderIDs,
		}
		if err := o.recorder.RecordInitiated(ctx, rec); err != nil {
			log.Printf("Failed to record initiated payment %s: %v", referenceID, err)
		}
	}

	return &InitiateResult{
		ReferenceID: referenceID,
		ExternalID:  externalID,
		OrderIDs:    orderIDs,
	}, nil
}

// CheckStatus fetches the provider's status for the reference. In sandbox mode
// a reference observed PENDING for approveAfter consecutive polls is overridden
// to SUCCESSFUL, since sandbox test numbers never settle on their own. Any
// non-PENDING observation clears the reference's counter so a resolved cycle
// never leaks polls into a later one.
func (o *Orchestrator) CheckStatus(ctx context.Context, referenceID string) (*StatusResult, error) {
	if strings.TrimSpace(referenceID) == "" {
		return nil, &ValidationError{Message: "referenceId is required"}
	}

	st, err := o.client.CollectionStatus(ctx, referenceID)
	if err != nil {
		return nil, err
	}

	status := st.Status
	reason := st.Reason

	if status == momo.StatusPending {
		if o.sandbox {
			polls := o.pending.Observe(referenceID)
			if polls >= o.approveAfter {
				o.pending.Clear(referenceID)
				status = momo.StatusSuccessful
				reason = ""
				log.Printf("Sandbox auto-approval for %s after %d pending polls", referenceID, polls)
			}
		}
	} else {
		o.pending.Clear(referenceID)
	}

	if status.Terminal() {
		o.recordTerminal(ctx, referenceID, status, reason, st)
	}

	return &StatusResult{
		ReferenceID:   referenceID,
		PaymentStatus: status,
		Amount:        st.Amount,
		Currency:      st.Currency,
		Reason:        reason,
	}, nil
}

// HandleCallback acknowledges a provider webhook. Status resolution happens
// through polling; the payload is logged and any terminal status it carries is
// recorded as a shortcut, without changing the external contract.
func (o *Orchestrator) HandleCallback(ctx context.Context, payload map[string]any) error {
	referenceID, _ := payload["referenceId"].(string)
	if referenceID == "" {
		referenceID, _ = payload["externalId"].(string)
	}
	rawStatus, _ := payload["status"].(string)
	log.Printf("Provider callback received: referenceId=%s status=%s", referenceID, rawStatus)

	status := momo.Status(rawStatus)
	if referenceID != "" && status.Terminal() {
		o.pending.Clear(referenceID)
		reason, _ := payload["reason"].(string)
		o.recordTerminal(ctx, referenceID, status, reason, nil)
	}
	return nil
}

func (o *Orchestrator) recordTerminal(ctx context.Context, referenceID string, status momo.Status, reason string, st *momo.CollectionStatus) {
	changed := true
	if o.recorder != nil {
		ch, err := o.recorder.RecordStatus(ctx, referenceID, string(status), reason)
		if err != nil {
			log.Printf("Failed to record status %s for %s: %v", status, referenceID, err)
		} else {
			changed = ch
		}
	}

	// Repeated polls of an already-settled reference are not new settlements;
	// publish only on the transition.
	if !changed {
		return
	}

	eventType := "payment.failed"
	if status == momo.StatusSuccessful {
		eventType = "payment.settled"
	}
	ev := SettlementEvent{
		Type:        eventType,
		ReferenceID: referenceID,
		Status:      string(status),
		Reason:      reason,
	}
	if st != nil {
		ev.Amount = st.Amount
		ev.Currency = st.Currency
	}
	o.events.Publish(ev)
}
