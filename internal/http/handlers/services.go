package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/garagehub/internal/domain/user"
	"github.com/geocoder89/garagehub/internal/http/middlewares"
	"github.com/geocoder89/garagehub/internal/workflow"
)

// ServiceStore is the slice of the users repository the catalog handler needs.
type ServiceStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	AddService(ctx context.Context, userID string, svc user.Service) (user.Service, error)
	UpdateService(ctx context.Context, userID, serviceID string, req user.UpdateServiceRequest) (user.Service, error)
	SetServiceDeleted(ctx context.Context, userID, serviceID string, deleted bool) (user.Service, error)
	RemoveService(ctx context.Context, userID, serviceID string) error
}

// ServicesHandler manages a garage owner's service catalog. Every mutation is
// behind the publish gate: payment first, then admin approval.
type ServicesHandler struct {
	store ServiceStore
}

func NewServicesHandler(store ServiceStore) *ServicesHandler {
	return &ServicesHandler{store: store}
}

func (h *ServicesHandler) List(ctx *gin.Context) {
	owner, ok := h.owner(ctx)

	if !ok {
		return
	}

	services := owner.GarageProfile.Services

	if services == nil {
		services = []user.Service{}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":  true,
		"services": services,
	})
}

func (h *ServicesHandler) Get(ctx *gin.Context) {
	owner, ok := h.owner(ctx)

	if !ok {
		return
	}

	svc, found := owner.GarageProfile.ServiceByID(ctx.Param("id"))

	if !found {
		RespondNotFound(ctx, "Service not found")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"service": svc,
	})
}

func (h *ServicesHandler) Add(ctx *gin.Context) {
	owner, ok := h.gatedOwner(ctx)

	if !ok {
		return
	}

	var req user.AddServiceRequest

	if !BindJSON(ctx, &req) {
		return
	}

	svc, err := h.store.AddService(ctx.Request.Context(), owner.ID, user.Service{
		Name:            req.Name,
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
		Description:     req.Description,
	})

	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "service add failed", "error", err)
		RespondInternal(ctx, "Could not add service")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"service": svc,
	})
}

func (h *ServicesHandler) Update(ctx *gin.Context) {
	owner, ok := h.gatedOwner(ctx)

	if !ok {
		return
	}

	var req user.UpdateServiceRequest

	if !BindJSON(ctx, &req) {
		return
	}

	svc, err := h.store.UpdateService(ctx.Request.Context(), owner.ID, ctx.Param("id"), req)

	if err != nil {
		h.respondServiceError(ctx, err, "service update failed", "Could not update service")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"service": svc,
	})
}

// SoftDelete hides the service from public reads but keeps it restorable.
func (h *ServicesHandler) SoftDelete(ctx *gin.Context) {
	owner, ok := h.gatedOwner(ctx)

	if !ok {
		return
	}

	svc, err := h.store.SetServiceDeleted(ctx.Request.Context(), owner.ID, ctx.Param("id"), true)

	if err != nil {
		h.respondServiceError(ctx, err, "service delete failed", "Could not delete service")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"service": svc,
	})
}

func (h *ServicesHandler) Restore(ctx *gin.Context) {
	owner, ok := h.gatedOwner(ctx)

	if !ok {
		return
	}

	svc, err := h.store.SetServiceDeleted(ctx.Request.Context(), owner.ID, ctx.Param("id"), false)

	if err != nil {
		h.respondServiceError(ctx, err, "service restore failed", "Could not restore service")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"service": svc,
	})
}

// HardDelete removes the service entry entirely.
func (h *ServicesHandler) HardDelete(ctx *gin.Context) {
	owner, ok := h.gatedOwner(ctx)

	if !ok {
		return
	}

	err := h.store.RemoveService(ctx.Request.Context(), owner.ID, ctx.Param("id"))

	if err != nil {
		h.respondServiceError(ctx, err, "service removal failed", "Could not remove service")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Service removed",
	})
}

// owner loads the authenticated garage owner; it responds and returns false on
// any failure.
func (h *ServicesHandler) owner(ctx *gin.Context) (user.User, bool) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return user.User{}, false
	}

	u, err := h.store.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "Account not found")
			return user.User{}, false
		}

		slog.ErrorContext(ctx.Request.Context(), "owner read failed", "error", err)
		RespondInternal(ctx, "Could not load account")
		return user.User{}, false
	}

	if u.Role != user.RoleGarageOwner || u.GarageProfile == nil {
		RespondForbidden(ctx, "forbidden", "Only garage owners can manage services")
		return user.User{}, false
	}

	return u, true
}

// gatedOwner additionally enforces the publish gate. The payment check comes
// first, so an unpaid garage always sees 402 before any approval error.
func (h *ServicesHandler) gatedOwner(ctx *gin.Context) (user.User, bool) {
	u, ok := h.owner(ctx)

	if !ok {
		return user.User{}, false
	}

	err := workflow.GateCatalog(u.GarageProfile)

	switch {
	case errors.Is(err, workflow.ErrPaymentRequired):
		RespondPaymentRequired(ctx, "Complete the registration payment before managing services")
		return user.User{}, false
	case errors.Is(err, workflow.ErrNotApproved):
		RespondForbidden(ctx, "not_approved", "Garage is awaiting admin approval")
		return user.User{}, false
	}

	return u, true
}

func (h *ServicesHandler) respondServiceError(ctx *gin.Context, err error, logMsg, userMsg string) {
	switch {
	case errors.Is(err, user.ErrServiceNotFound):
		RespondNotFound(ctx, "Service not found")
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "Account not found")
	default:
		slog.ErrorContext(ctx.Request.Context(), logMsg, "error", err)
		RespondInternal(ctx, userMsg)
	}
}
