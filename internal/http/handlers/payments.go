package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/garagehub/internal/domain/user"
	"github.com/geocoder89/garagehub/internal/http/middlewares"
	"github.com/geocoder89/garagehub/internal/observability"
	"github.com/geocoder89/garagehub/internal/payments"
	"github.com/geocoder89/garagehub/internal/workflow"
)

// maxWebhookBodyBytes bounds webhook payload reads independently of the
// global body limit.
const maxWebhookBodyBytes = 256 * 1024

// PaymentUsersStore is the slice of the users repository the payments handler
// needs.
type PaymentUsersStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	SetPaymentCustomerRef(ctx context.Context, id, ref string) error
}

type PaymentsHandler struct {
	users         PaymentUsersStore
	provider      payments.Provider
	wf            *workflow.Workflow
	prom          *observability.Prom
	webhookSecret string
	priceCents    int64
	now           func() time.Time
}

func NewPaymentsHandler(users PaymentUsersStore, provider payments.Provider, wf *workflow.Workflow, prom *observability.Prom, webhookSecret string, priceCents int64) *PaymentsHandler {
	return &PaymentsHandler{
		users:         users,
		provider:      provider,
		wf:            wf,
		prom:          prom,
		webhookSecret: webhookSecret,
		priceCents:    priceCents,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateIntent starts (or retries) the registration payment for the
// authenticated garage owner.
func (h *PaymentsHandler) CreateIntent(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	u, err := h.users.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "Account not found")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "payment account read failed", "error", err)
		RespondInternal(ctx, "Could not start payment")
		return
	}

	if u.Role != user.RoleGarageOwner || u.GarageProfile == nil {
		RespondForbidden(ctx, "forbidden", "Only garage owners pay a registration fee")
		return
	}

	if u.GarageProfile.PaymentStatus == user.PaymentPaid {
		RespondBadRequest(ctx, "Registration payment is already completed", nil)
		return
	}

	customerRef := u.GarageProfile.PaymentCustomerRef

	if customerRef == "" {
		customerRef, err = h.provider.EnsureCustomer(ctx.Request.Context(), u.Email, u.Name, u.ID)

		if err != nil {
			slog.ErrorContext(ctx.Request.Context(), "provider customer creation failed", "error", err)
			RespondInternal(ctx, "Payment provider is unavailable")
			return
		}

		if err := h.users.SetPaymentCustomerRef(ctx.Request.Context(), u.ID, customerRef); err != nil {
			slog.ErrorContext(ctx.Request.Context(), "customer ref persist failed", "error", err)
			RespondInternal(ctx, "Could not start payment")
			return
		}
	}

	intent, err := h.provider.CreateIntent(ctx.Request.Context(), customerRef, h.priceCents, map[string]string{
		"userId":  u.ID,
		"purpose": "garage_registration",
	})

	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "provider intent creation failed", "error", err)
		RespondInternal(ctx, "Payment provider is unavailable")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"intentId":     intent.ID,
		"clientSecret": intent.ClientSecret,
		"amount":       intent.Amount,
		"currency":     intent.Currency,
	})
}

// Webhook ingests provider payment events. Delivery is at-least-once:
// transitions are idempotent, so duplicates are acked without effect. A 2xx
// stops provider retries; only transient store errors return 5xx.
func (h *PaymentsHandler) Webhook(ctx *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBodyBytes))

	if err != nil {
		h.prom.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		RespondBadRequest(ctx, "Could not read webhook payload", nil)
		return
	}

	event, err := payments.VerifyAndParse(payload, ctx.GetHeader(payments.SignatureHeader), h.webhookSecret, h.now())

	if err != nil {
		h.prom.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()

		if errors.Is(err, payments.ErrInvalidSignature) {
			RespondUnAuthorized(ctx, "invalid_signature", "Webhook signature verification failed")
			return
		}

		RespondBadRequest(ctx, "Invalid webhook payload", nil)
		return
	}

	userID := event.UserID()

	if userID == "" {
		h.prom.WebhookEvents.WithLabelValues(event.Type, "invalid").Inc()
		RespondBadRequest(ctx, "Webhook event carries no user reference", nil)
		return
	}

	switch event.Type {
	case payments.EventPaymentSucceeded:
		err = h.wf.RecordPaymentSuccess(ctx.Request.Context(), userID)
	case payments.EventPaymentFailed:
		err = h.wf.RecordPaymentFailure(ctx.Request.Context(), userID)
	default:
		// Unrecognized events are acked so the provider stops retrying.
		h.prom.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		ctx.JSON(http.StatusOK, gin.H{"success": true, "received": true})
		return
	}

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// The referenced account is gone; retrying will never succeed.
			h.prom.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
			slog.WarnContext(ctx.Request.Context(), "webhook for unknown user",
				"event", event.Type, "user", userID)
			ctx.JSON(http.StatusOK, gin.H{"success": true, "received": true})
			return
		}

		h.prom.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		slog.ErrorContext(ctx.Request.Context(), "webhook transition failed",
			"event", event.Type, "user", userID, "error", err)
		RespondInternal(ctx, "Could not process webhook")
		return
	}

	h.prom.WebhookEvents.WithLabelValues(event.Type, "handled").Inc()
	h.prom.WorkflowTransitions.WithLabelValues(transitionFor(event.Type), "applied").Inc()

	slog.InfoContext(ctx.Request.Context(), "webhook handled",
		"event", event.Type, "user", userID)

	ctx.JSON(http.StatusOK, gin.H{"success": true, "received": true})
}

func transitionFor(eventType string) string {
	if eventType == payments.EventPaymentSucceeded {
		return "payment_succeeded"
	}

	return "payment_failed"
}

// Status reports the authenticated garage owner's onboarding position.
func (h *PaymentsHandler) Status(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	u, err := h.users.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "Account not found")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "payment status read failed", "error", err)
		RespondInternal(ctx, "Could not load payment status")
		return
	}

	if u.Role != user.RoleGarageOwner || u.GarageProfile == nil {
		RespondForbidden(ctx, "forbidden", "Only garage owners have a payment status")
		return
	}

	p := u.GarageProfile

	ctx.JSON(http.StatusOK, gin.H{
		"success":            true,
		"paymentStatus":      p.PaymentStatus,
		"approvalStatus":     p.ApprovalStatus,
		"subscriptionExpiry": p.SubscriptionExpiry,
		"state":              workflow.StateOf(p),
	})
}
