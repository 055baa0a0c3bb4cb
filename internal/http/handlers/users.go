package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/garagehub/internal/domain/user"
	"github.com/geocoder89/garagehub/internal/http/middlewares"
	"github.com/geocoder89/garagehub/internal/security"
)

// AccountStore is the slice of the users repository the account handler needs.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdateAccount(ctx context.Context, id string, req user.UpdateProfileRequest, passwordHash *string) (user.User, error)
	SoftDelete(ctx context.Context, id string) error
}

type UsersHandler struct {
	users  AccountStore
	tokens RefreshTokenStore
}

func NewUsersHandler(users AccountStore, tokens RefreshTokenStore) *UsersHandler {
	return &UsersHandler{users: users, tokens: tokens}
}

func (h *UsersHandler) Me(ctx *gin.Context) {
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

		slog.ErrorContext(ctx.Request.Context(), "account read failed", "error", err)
		RespondInternal(ctx, "Could not load account")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    u,
	})
}

func (h *UsersHandler) UpdateMe(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	var req user.UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	var passwordHash *string

	if req.Password != nil {
		hash, err := security.HashPassword(*req.Password)

		if err != nil {
			RespondInternal(ctx, "Could not update account")
			return
		}

		passwordHash = &hash
	}

	u, err := h.users.UpdateAccount(ctx.Request.Context(), id, req, passwordHash)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "Account not found")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "account update failed", "error", err)
		RespondInternal(ctx, "Could not update account")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    u,
	})
}

// DeleteMe soft-deletes the account and cuts every live session.
func (h *UsersHandler) DeleteMe(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	err := h.users.SoftDelete(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "Account not found")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "account delete failed", "error", err)
		RespondInternal(ctx, "Could not delete account")
		return
	}

	_ = h.tokens.RevokeAllForUser(ctx.Request.Context(), id)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Account deleted",
	})
}
