package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/garagehub/internal/domain/user"
	"github.com/geocoder89/garagehub/internal/observability"
	"github.com/geocoder89/garagehub/internal/workflow"
)

// AdminStore is the slice of the users repository the admin handler needs.
type AdminStore interface {
	GetByIDAnyState(ctx context.Context, id string) (user.User, error)
	ListGarages(ctx context.Context, filter user.AdminGaragesFilter) ([]user.User, error)
	ListPendingGarages(ctx context.Context) ([]user.User, error)
	DashboardStats(ctx context.Context) (user.DashboardStats, error)
	HardDelete(ctx context.Context, id string) error
}

type ApprovalDecisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approved rejected"`
}

type AdminHandler struct {
	store  AdminStore
	wf     *workflow.Workflow
	tokens RefreshTokenStore
	prom   *observability.Prom
}

func NewAdminHandler(store AdminStore, wf *workflow.Workflow, tokens RefreshTokenStore, prom *observability.Prom) *AdminHandler {
	return &AdminHandler{store: store, wf: wf, tokens: tokens, prom: prom}
}

// PendingGarages lists paid garages still waiting on a decision; this is the
// admin's work queue.
func (h *AdminHandler) PendingGarages(ctx *gin.Context) {
	garages, err := h.store.ListPendingGarages(ctx.Request.Context())

	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "pending garage listing failed", "error", err)
		RespondInternal(ctx, "Could not load pending garages")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"garages": garages,
	})
}

// Garages lists garage owners with optional approval/payment status filters.
func (h *AdminHandler) Garages(ctx *gin.Context) {
	var filter user.AdminGaragesFilter

	if v := strings.TrimSpace(ctx.Query("approvalStatus")); v != "" {
		filter.ApprovalStatus = &v
	}

	if v := strings.TrimSpace(ctx.Query("paymentStatus")); v != "" {
		filter.PaymentStatus = &v
	}

	garages, err := h.store.ListGarages(ctx.Request.Context(), filter)

	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "garage listing failed", "error", err)
		RespondInternal(ctx, "Could not load garages")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"garages": garages,
	})
}

// Decide applies an approval decision to a garage owner. Approval requires a
// completed payment; the workflow enforces that atomically.
func (h *AdminHandler) Decide(ctx *gin.Context) {
	targetID := ctx.Param("id")

	var req ApprovalDecisionRequest

	if !BindJSON(ctx, &req) {
		return
	}

	err := h.wf.DecideApproval(ctx.Request.Context(), targetID, req.Decision)

	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrInvalidDecision):
			RespondBadRequest(ctx, "Decision must be approved or rejected", nil)
		case errors.Is(err, workflow.ErrPaymentNotCompleted):
			h.prom.WorkflowTransitions.WithLabelValues("approval_"+req.Decision, "rejected").Inc()
			RespondPreconditionFailed(ctx, "Cannot approve a garage before its payment is completed")
		case errors.Is(err, user.ErrNotFound), errors.Is(err, user.ErrNotGarageOwner):
			RespondNotFound(ctx, "Garage owner not found")
		default:
			h.prom.WorkflowTransitions.WithLabelValues("approval_"+req.Decision, "error").Inc()
			slog.ErrorContext(ctx.Request.Context(), "approval decision failed",
				"target", targetID, "decision", req.Decision, "error", err)
			RespondInternal(ctx, "Could not apply decision")
		}

		return
	}

	h.prom.WorkflowTransitions.WithLabelValues("approval_"+req.Decision, "applied").Inc()

	slog.InfoContext(ctx.Request.Context(), "approval decision applied",
		"target", targetID, "decision", req.Decision)

	ctx.JSON(http.StatusOK, gin.H{
		"success":  true,
		"decision": req.Decision,
	})
}

// Dashboard returns the marketplace counters.
func (h *AdminHandler) Dashboard(ctx *gin.Context) {
	stats, err := h.store.DashboardStats(ctx.Request.Context())

	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "dashboard stats failed", "error", err)
		RespondInternal(ctx, "Could not load dashboard")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   stats,
	})
}

// GetUser returns any account, soft-deleted included.
func (h *AdminHandler) GetUser(ctx *gin.Context) {
	u, err := h.store.GetByIDAnyState(ctx.Request.Context(), ctx.Param("id"))

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "user read failed", "error", err)
		RespondInternal(ctx, "Could not load user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    u,
	})
}

// DeleteUser permanently removes an account and revokes its sessions.
func (h *AdminHandler) DeleteUser(ctx *gin.Context) {
	id := ctx.Param("id")

	err := h.store.HardDelete(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "user delete failed", "error", err)
		RespondInternal(ctx, "Could not delete user")
		return
	}

	_ = h.tokens.RevokeAllForUser(ctx.Request.Context(), id)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User deleted",
	})
}
