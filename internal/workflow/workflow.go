package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/garagehub/internal/domain/user"
)

// State is the onboarding position of a garage owner, derived from the two
// status fields on the profile. The only forward path is
// unpaid_pending -> paid_pending -> approved|rejected; a failed payment keeps
// the garage retry-eligible.
type State string

const (
	StateUnpaidPending State = "unpaid_pending"
	StatePaidPending   State = "paid_pending"
	StateApproved      State = "approved"
	StateRejected      State = "rejected"
)

// SubscriptionPeriod is how long a successful registration payment is valid.
const SubscriptionPeriod = 365 * 24 * time.Hour

var (
	// ErrPaymentRequired gates catalog mutations before payment (402).
	ErrPaymentRequired = errors.New("payment required")
	// ErrNotApproved gates catalog mutations after payment but before the
	// admin decision (403).
	ErrNotApproved = errors.New("garage not approved yet")
	// ErrPaymentNotCompleted rejects an approval decision ahead of payment.
	ErrPaymentNotCompleted = errors.New("cannot approve before payment is completed")
	// ErrInvalidDecision rejects anything but approved/rejected.
	ErrInvalidDecision = errors.New("decision must be approved or rejected")
)

// StateOf derives the workflow state from a profile.
func StateOf(p *user.GarageProfile) State {
	if p == nil || p.PaymentStatus != user.PaymentPaid {
		return StateUnpaidPending
	}

	switch p.ApprovalStatus {
	case user.ApprovalApproved:
		return StateApproved
	case user.ApprovalRejected:
		return StateRejected
	default:
		return StatePaidPending
	}
}

// GateCatalog enforces the publish gate for every catalog mutation. The
// payment check runs before the approval check, so an unpaid-and-unapproved
// garage always sees payment required first.
func GateCatalog(p *user.GarageProfile) error {
	if p == nil || p.PaymentStatus != user.PaymentPaid {
		return ErrPaymentRequired
	}

	if p.ApprovalStatus != user.ApprovalApproved {
		return ErrNotApproved
	}

	return nil
}

// ProfileStore is the slice of persistence the workflow needs. Every mutation
// is a single-document conditional update so that a concurrent webhook and
// admin decision cannot lose writes.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)

	// MarkPaid sets payment_status=paid and the subscription expiry for a
	// garage owner whose payment is not already paid. Returns false with a
	// nil error when the document was already paid (no-op).
	MarkPaid(ctx context.Context, userID string, expiry time.Time) (bool, error)

	// MarkPaymentFailed sets payment_status=failed unless the garage already
	// paid; a late failure event must never downgrade a completed payment.
	MarkPaymentFailed(ctx context.Context, userID string) error

	// SetApprovalStatus applies the admin decision. When requirePaid is set
	// the update only matches documents with payment_status=paid; it returns
	// false with a nil error when nothing matched the condition.
	SetApprovalStatus(ctx context.Context, userID, status string, requirePaid bool) (bool, error)
}

// Workflow drives the payment -> approval -> publish progression.
type Workflow struct {
	store ProfileStore
	now   func() time.Time
}

func New(store ProfileStore) *Workflow {
	return &Workflow{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RecordPaymentSuccess transitions pending/failed -> paid and stamps the
// subscription expiry one year out. Webhook delivery is at-least-once, so a
// second delivery for an already-paid garage is a silent no-op: the expiry is
// written exactly once.
func (w *Workflow) RecordPaymentSuccess(ctx context.Context, userID string) error {
	expiry := w.now().Add(SubscriptionPeriod)

	_, err := w.store.MarkPaid(ctx, userID, expiry)

	return err
}

// RecordPaymentFailure marks the payment failed, leaving the garage eligible
// to retry with a fresh intent.
func (w *Workflow) RecordPaymentFailure(ctx context.Context, userID string) error {
	return w.store.MarkPaymentFailed(ctx, userID)
}

// DecideApproval applies an admin decision to a garage owner. Approval is
// only legal once payment completed; the precondition rides on the update
// filter itself so the check and the write are one atomic document update.
func (w *Workflow) DecideApproval(ctx context.Context, targetID, decision string) error {
	if decision != user.ApprovalApproved && decision != user.ApprovalRejected {
		return ErrInvalidDecision
	}

	requirePaid := decision == user.ApprovalApproved

	matched, err := w.store.SetApprovalStatus(ctx, targetID, decision, requirePaid)

	if err != nil {
		return err
	}

	if matched {
		return nil
	}

	// Nothing matched: either the target is missing / not a garage owner, or
	// the paid precondition failed. Classify for the error taxonomy; the
	// classification read is outside the update but only feeds the error path.
	target, err := w.store.GetByID(ctx, targetID)

	if err != nil {
		return err
	}

	if target.Role != user.RoleGarageOwner || target.GarageProfile == nil {
		return user.ErrNotGarageOwner
	}

	return ErrPaymentNotCompleted
}
