package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/garagehub/internal/domain/user"
	"github.com/geocoder89/garagehub/internal/repo/memory"
)

func seedGarageOwner(t *testing.T, repo *memory.UsersRepo) user.User {
	t.Helper()

	u, err := repo.Create(context.Background(), user.User{
		Name:   "Pat Mwangi",
		Email:  "pat@garage.test",
		Role:   user.RoleGarageOwner,
		Active: true,
		GarageProfile: &user.GarageProfile{
			LicenseNumber:  "LIC-100",
			GarageName:     "Pat Auto",
			Address:        "12 Workshop Rd",
			PaymentStatus:  user.PaymentPending,
			ApprovalStatus: user.ApprovalPending,
		},
	})

	if err != nil {
		t.Fatalf("seed garage owner: %v", err)
	}

	return u
}

func seedCarOwner(t *testing.T, repo *memory.UsersRepo) user.User {
	t.Helper()

	u, err := repo.Create(context.Background(), user.User{
		Name:   "Ava Njeri",
		Email:  "ava@cars.test",
		Role:   user.RoleCarOwner,
		Active: true,
	})

	if err != nil {
		t.Fatalf("seed car owner: %v", err)
	}

	return u
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		name    string
		profile *user.GarageProfile
		want    State
	}{
		{"nil profile", nil, StateUnpaidPending},
		{"unpaid", &user.GarageProfile{PaymentStatus: user.PaymentPending, ApprovalStatus: user.ApprovalPending}, StateUnpaidPending},
		{"failed payment", &user.GarageProfile{PaymentStatus: user.PaymentFailed, ApprovalStatus: user.ApprovalPending}, StateUnpaidPending},
		{"paid pending", &user.GarageProfile{PaymentStatus: user.PaymentPaid, ApprovalStatus: user.ApprovalPending}, StatePaidPending},
		{"approved", &user.GarageProfile{PaymentStatus: user.PaymentPaid, ApprovalStatus: user.ApprovalApproved}, StateApproved},
		{"rejected", &user.GarageProfile{PaymentStatus: user.PaymentPaid, ApprovalStatus: user.ApprovalRejected}, StateRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StateOf(tt.profile)

			if got != tt.want {
				t.Fatalf("StateOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGateCatalog_PaymentCheckedBeforeApproval(t *testing.T) {
	// unpaid AND unapproved must surface the payment error, never the
	// approval one
	p := &user.GarageProfile{
		PaymentStatus:  user.PaymentPending,
		ApprovalStatus: user.ApprovalPending,
	}

	if err := GateCatalog(p); !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("GateCatalog(unpaid, unapproved) = %v, want ErrPaymentRequired", err)
	}

	p.PaymentStatus = user.PaymentPaid

	if err := GateCatalog(p); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("GateCatalog(paid, unapproved) = %v, want ErrNotApproved", err)
	}

	p.ApprovalStatus = user.ApprovalApproved

	if err := GateCatalog(p); err != nil {
		t.Fatalf("GateCatalog(paid, approved) = %v, want nil", err)
	}
}

func TestRecordPaymentSuccess_IsIdempotent(t *testing.T) {
	repo := memory.NewUsersRepo()
	owner := seedGarageOwner(t, repo)

	wf := New(repo)

	firstNow := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	wf.now = func() time.Time { return firstNow }

	if err := wf.RecordPaymentSuccess(context.Background(), owner.ID); err != nil {
		t.Fatalf("first success: %v", err)
	}

	// the duplicate delivery arrives later; expiry must not move
	wf.now = func() time.Time { return firstNow.Add(48 * time.Hour) }

	if err := wf.RecordPaymentSuccess(context.Background(), owner.ID); err != nil {
		t.Fatalf("duplicate success: %v", err)
	}

	got, err := repo.GetByID(context.Background(), owner.ID)

	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	if got.GarageProfile.PaymentStatus != user.PaymentPaid {
		t.Fatalf("payment status = %q, want paid", got.GarageProfile.PaymentStatus)
	}

	wantExpiry := firstNow.Add(SubscriptionPeriod)

	if got.GarageProfile.SubscriptionExpiry == nil || !got.GarageProfile.SubscriptionExpiry.Equal(wantExpiry) {
		t.Fatalf("subscription expiry = %v, want %v", got.GarageProfile.SubscriptionExpiry, wantExpiry)
	}
}

func TestRecordPaymentFailure_KeepsRetryEligible(t *testing.T) {
	repo := memory.NewUsersRepo()
	owner := seedGarageOwner(t, repo)

	wf := New(repo)

	if err := wf.RecordPaymentFailure(context.Background(), owner.ID); err != nil {
		t.Fatalf("failure: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), owner.ID)

	if got.GarageProfile.PaymentStatus != user.PaymentFailed {
		t.Fatalf("payment status = %q, want failed", got.GarageProfile.PaymentStatus)
	}

	// a retry can still succeed
	if err := wf.RecordPaymentSuccess(context.Background(), owner.ID); err != nil {
		t.Fatalf("retry success: %v", err)
	}

	got, _ = repo.GetByID(context.Background(), owner.ID)

	if got.GarageProfile.PaymentStatus != user.PaymentPaid {
		t.Fatalf("payment status after retry = %q, want paid", got.GarageProfile.PaymentStatus)
	}
}

func TestRecordPaymentFailure_NeverDowngradesPaid(t *testing.T) {
	repo := memory.NewUsersRepo()
	owner := seedGarageOwner(t, repo)

	wf := New(repo)

	if err := wf.RecordPaymentSuccess(context.Background(), owner.ID); err != nil {
		t.Fatalf("success: %v", err)
	}

	// an out-of-order failure event for the same intent
	if err := wf.RecordPaymentFailure(context.Background(), owner.ID); err != nil {
		t.Fatalf("late failure: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), owner.ID)

	if got.GarageProfile.PaymentStatus != user.PaymentPaid {
		t.Fatalf("payment status = %q, want paid to stick", got.GarageProfile.PaymentStatus)
	}
}

func TestDecideApproval(t *testing.T) {
	t.Run("approve before payment is rejected", func(t *testing.T) {
		repo := memory.NewUsersRepo()
		owner := seedGarageOwner(t, repo)

		wf := New(repo)

		err := wf.DecideApproval(context.Background(), owner.ID, user.ApprovalApproved)

		if !errors.Is(err, ErrPaymentNotCompleted) {
			t.Fatalf("DecideApproval(unpaid, approve) = %v, want ErrPaymentNotCompleted", err)
		}

		got, _ := repo.GetByID(context.Background(), owner.ID)

		if got.GarageProfile.ApprovalStatus != user.ApprovalPending {
			t.Fatalf("approval status = %q, want pending untouched", got.GarageProfile.ApprovalStatus)
		}
	})

	t.Run("approve after payment succeeds", func(t *testing.T) {
		repo := memory.NewUsersRepo()
		owner := seedGarageOwner(t, repo)

		wf := New(repo)

		if err := wf.RecordPaymentSuccess(context.Background(), owner.ID); err != nil {
			t.Fatalf("success: %v", err)
		}

		if err := wf.DecideApproval(context.Background(), owner.ID, user.ApprovalApproved); err != nil {
			t.Fatalf("DecideApproval(paid, approve) = %v, want nil", err)
		}

		got, _ := repo.GetByID(context.Background(), owner.ID)

		if got.GarageProfile.ApprovalStatus != user.ApprovalApproved {
			t.Fatalf("approval status = %q, want approved", got.GarageProfile.ApprovalStatus)
		}
	})

	t.Run("reject works without payment", func(t *testing.T) {
		repo := memory.NewUsersRepo()
		owner := seedGarageOwner(t, repo)

		wf := New(repo)

		if err := wf.DecideApproval(context.Background(), owner.ID, user.ApprovalRejected); err != nil {
			t.Fatalf("DecideApproval(unpaid, reject) = %v, want nil", err)
		}

		got, _ := repo.GetByID(context.Background(), owner.ID)

		if got.GarageProfile.ApprovalStatus != user.ApprovalRejected {
			t.Fatalf("approval status = %q, want rejected", got.GarageProfile.ApprovalStatus)
		}
	})

	t.Run("invalid decision", func(t *testing.T) {
		repo := memory.NewUsersRepo()
		owner := seedGarageOwner(t, repo)

		wf := New(repo)

		err := wf.DecideApproval(context.Background(), owner.ID, "maybe")

		if !errors.Is(err, ErrInvalidDecision) {
			t.Fatalf("DecideApproval(maybe) = %v, want ErrInvalidDecision", err)
		}
	})

	t.Run("car owner target", func(t *testing.T) {
		repo := memory.NewUsersRepo()
		target := seedCarOwner(t, repo)

		wf := New(repo)

		err := wf.DecideApproval(context.Background(), target.ID, user.ApprovalApproved)

		if !errors.Is(err, user.ErrNotGarageOwner) {
			t.Fatalf("DecideApproval(car owner) = %v, want ErrNotGarageOwner", err)
		}
	})

	t.Run("unknown target", func(t *testing.T) {
		repo := memory.NewUsersRepo()

		wf := New(repo)

		err := wf.DecideApproval(context.Background(), "missing", user.ApprovalApproved)

		if !errors.Is(err, user.ErrNotFound) {
			t.Fatalf("DecideApproval(missing) = %v, want ErrNotFound", err)
		}
	})
}

// Full onboarding pass: pay, approve, and confirm the publish gate opens.
func TestOnboardingProgression(t *testing.T) {
	repo := memory.NewUsersRepo()
	owner := seedGarageOwner(t, repo)

	wf := New(repo)

	reload := func() user.User {
		t.Helper()

		u, err := repo.GetByID(context.Background(), owner.ID)

		if err != nil {
			t.Fatalf("reload: %v", err)
		}

		return u
	}

	if got := StateOf(reload().GarageProfile); got != StateUnpaidPending {
		t.Fatalf("initial state = %q, want unpaid_pending", got)
	}

	if err := wf.RecordPaymentSuccess(context.Background(), owner.ID); err != nil {
		t.Fatalf("payment: %v", err)
	}

	if got := StateOf(reload().GarageProfile); got != StatePaidPending {
		t.Fatalf("state after payment = %q, want paid_pending", got)
	}

	if err := GateCatalog(reload().GarageProfile); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("gate after payment = %v, want ErrNotApproved", err)
	}

	if err := wf.DecideApproval(context.Background(), owner.ID, user.ApprovalApproved); err != nil {
		t.Fatalf("approval: %v", err)
	}

	if got := StateOf(reload().GarageProfile); got != StateApproved {
		t.Fatalf("state after approval = %q, want approved", got)
	}

	if err := GateCatalog(reload().GarageProfile); err != nil {
		t.Fatalf("gate after approval = %v, want open", err)
	}
}
