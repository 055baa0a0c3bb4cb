package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/garagehub/internal/cache"
	"github.com/geocoder89/garagehub/internal/domain/garage"
	"github.com/geocoder89/garagehub/internal/domain/user"
	"github.com/geocoder89/garagehub/internal/http/middlewares"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
)

// GarageStore is the slice of the users repository the garage handler needs.
type GarageStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdateGarageProfile(ctx context.Context, id string, req user.UpdateGarageProfileRequest) (user.User, error)
	ListPublicGarages(ctx context.Context, filter user.ListGaragesFilter) ([]user.User, int, error)
}

type GaragesHandler struct {
	garages GarageStore
	cache   cache.Store
}

func NewGaragesHandler(garages GarageStore, c cache.Store) *GaragesHandler {
	return &GaragesHandler{garages: garages, cache: c}
}

// List serves the public, redacted garage directory. Responses are cached per
// query; staleness is bounded by the cache TTL.
func (h *GaragesHandler) List(ctx *gin.Context) {
	filter := listFilterFromQuery(ctx)

	key := listCacheKey(filter)

	if cached, ok := h.cache.Get(ctx.Request.Context(), key); ok {
		var payload gin.H

		if err := json.Unmarshal(cached, &payload); err == nil {
			RespondJSONWithETag(ctx, http.StatusOK, payload)
			return
		}
	}

	garages, total, err := h.garages.ListPublicGarages(ctx.Request.Context(), filter)

	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "garage listing failed", "error", err)
		RespondInternal(ctx, "Could not load garages")
		return
	}

	views := make([]garage.PublicGarage, 0, len(garages))

	for _, g := range garages {
		views = append(views, garage.PublicView(g))
	}

	payload := gin.H{
		"success": true,
		"garages": views,
		"total":   total,
		"page":    filter.Page,
		"limit":   filter.Limit,
	}

	if raw, err := json.Marshal(payload); err == nil {
		h.cache.Set(ctx.Request.Context(), key, raw)
	}

	RespondJSONWithETag(ctx, http.StatusOK, payload)
}

// Get serves one approved garage; anything not publicly visible is a 404.
func (h *GaragesHandler) Get(ctx *gin.Context) {
	id := ctx.Param("id")

	key := detailCacheKey(id)

	if cached, ok := h.cache.Get(ctx.Request.Context(), key); ok {
		var payload gin.H

		if err := json.Unmarshal(cached, &payload); err == nil {
			RespondJSONWithETag(ctx, http.StatusOK, payload)
			return
		}
	}

	u, err := h.garages.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "Garage not found")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "garage read failed", "error", err)
		RespondInternal(ctx, "Could not load garage")
		return
	}

	if u.Role != user.RoleGarageOwner || u.GarageProfile == nil ||
		u.GarageProfile.ApprovalStatus != user.ApprovalApproved {
		RespondNotFound(ctx, "Garage not found")
		return
	}

	payload := gin.H{
		"success": true,
		"garage":  garage.PublicView(u),
	}

	if raw, err := json.Marshal(payload); err == nil {
		h.cache.Set(ctx.Request.Context(), key, raw)
	}

	RespondJSONWithETag(ctx, http.StatusOK, payload)
}

// Services serves the active service catalog of one approved garage.
func (h *GaragesHandler) Services(ctx *gin.Context) {
	id := ctx.Param("id")

	u, err := h.garages.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "Garage not found")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "garage services read failed", "error", err)
		RespondInternal(ctx, "Could not load services")
		return
	}

	if u.Role != user.RoleGarageOwner || u.GarageProfile == nil ||
		u.GarageProfile.ApprovalStatus != user.ApprovalApproved {
		RespondNotFound(ctx, "Garage not found")
		return
	}

	services := u.GarageProfile.ActiveServices()

	if services == nil {
		services = []user.Service{}
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"success":  true,
		"services": services,
	})
}

// UpdateProfile lets a garage owner edit business fields. Workflow status
// fields are not reachable from here.
func (h *GaragesHandler) UpdateProfile(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	var req user.UpdateGarageProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.garages.UpdateGarageProfile(ctx.Request.Context(), id, req)

	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "Account not found")
		case errors.Is(err, user.ErrNotGarageOwner):
			RespondForbidden(ctx, "forbidden", "Only garage owners have a garage profile")
		default:
			slog.ErrorContext(ctx.Request.Context(), "garage profile update failed", "error", err)
			RespondInternal(ctx, "Could not update garage profile")
		}

		return
	}

	h.cache.Delete(ctx.Request.Context(), detailCacheKey(id))

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    u,
	})
}

func listFilterFromQuery(ctx *gin.Context) user.ListGaragesFilter {
	filter := user.ListGaragesFilter{
		Page:  1,
		Limit: defaultPageLimit,
	}

	if city := strings.TrimSpace(ctx.Query("city")); city != "" {
		filter.City = &city
	}

	if service := strings.TrimSpace(ctx.Query("service")); service != "" {
		filter.Service = &service
	}

	if page, err := strconv.Atoi(ctx.Query("page")); err == nil && page > 0 {
		filter.Page = page
	}

	if limit, err := strconv.Atoi(ctx.Query("limit")); err == nil && limit > 0 {
		if limit > maxPageLimit {
			limit = maxPageLimit
		}

		filter.Limit = limit
	}

	return filter
}

func listCacheKey(filter user.ListGaragesFilter) string {
	city, service := "", ""

	if filter.City != nil {
		city = strings.ToLower(*filter.City)
	}

	if filter.Service != nil {
		service = strings.ToLower(*filter.Service)
	}

	return "garages:list:" + city + ":" + service + ":" +
		strconv.Itoa(filter.Page) + ":" + strconv.Itoa(filter.Limit)
}

func detailCacheKey(id string) string {
	return "garages:detail:" + id
}
