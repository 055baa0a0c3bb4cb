package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/garagehub/internal/auth"
	"github.com/geocoder89/garagehub/internal/domain/user"
	mongorepo "github.com/geocoder89/garagehub/internal/repo/mongo"
	"github.com/geocoder89/garagehub/internal/security"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/auth"
)

// AuthUsersStore is the slice of the users repository the auth handler needs.
type AuthUsersStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

// RefreshTokenStore persists hashed refresh tokens for rotation.
type RefreshTokenStore interface {
	Create(ctx context.Context, row mongorepo.RefreshTokenRow) error
	ConsumeAndRevoke(ctx context.Context, jti string, replacedBy *string) (mongorepo.RefreshTokenRow, error)
	Revoke(ctx context.Context, jti string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

type AuthHandler struct {
	users        AuthUsersStore
	tokens       RefreshTokenStore
	jwt          *auth.Manager
	cookieSecure bool
}

func NewAuthHandler(users AuthUsersStore, tokens RefreshTokenStore, jwt *auth.Manager, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		users:        users,
		tokens:       tokens,
		jwt:          jwt,
		cookieSecure: cookieSecure,
	}
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req user.SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	role := req.Role

	if role == "" {
		role = user.RoleCarOwner
	}

	u := user.User{
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
		Role:   role,
		Active: true,
	}

	if role == user.RoleGarageOwner {
		missing := missingGarageFields(req)

		if len(missing) > 0 {
			RespondBadRequest(ctx, "Garage owner registration requires business details", gin.H{"fields": missing})
			return
		}

		u.GarageProfile = &user.GarageProfile{
			LicenseNumber:  req.LicenseNumber,
			GarageName:     req.GarageName,
			Address:        req.Address,
			City:           req.City,
			PaymentStatus:  user.PaymentPending,
			ApprovalStatus: user.ApprovalPending,
			Services:       []user.Service{},
		}
	}

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not process registration")
		return
	}

	u.PasswordHash = hash

	created, err := h.users.Create(ctx.Request.Context(), u)

	if err != nil {
		if errors.Is(err, user.ErrEmailAlreadyUsed) {
			RespondConflict(ctx, "email_taken", "Email is already registered.")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "signup failed", "error", err)
		RespondInternal(ctx, "Could not process registration")
		return
	}

	access, err := h.issueTokens(ctx, created)

	if err != nil {
		RespondInternal(ctx, "Could not issue session tokens")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"user":        created,
		"accessToken": access,
	})
}

func missingGarageFields(req user.SignUpRequest) []FieldError {
	out := []FieldError{}

	if req.LicenseNumber == "" {
		out = append(out, FieldError{Field: "licenseNumber", Rule: "required", Message: "is required"})
	}
	if req.GarageName == "" {
		out = append(out, FieldError{Field: "garageName", Rule: "required", Message: "is required"})
	}
	if req.Address == "" {
		out = append(out, FieldError{Field: "address", Rule: "required", Message: "is required"})
	}

	return out
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.users.GetByEmail(ctx.Request.Context(), req.Email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "login lookup failed", "error", err)
		RespondInternal(ctx, "Could not process login")
		return
	}

	if security.CheckPassword(u.PasswordHash, req.Password) != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	// Password verified first so a deactivated account never acts as an
	// account-existence oracle for bad credentials.
	if u.Deleted || !u.Active {
		RespondUnAuthorized(ctx, "account_deactivated", "Account is deactivated. Contact admin.")
		return
	}

	access, err := h.issueTokens(ctx, u)

	if err != nil {
		RespondInternal(ctx, "Could not issue session tokens")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":     true,
		"user":        u,
		"accessToken": access,
	})
}

// Refresh rotates the refresh token: the presented token is revoked and
// replaced in one atomic consume, so a replayed token fails and triggers a
// revoke-all on the account.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw := h.refreshTokenFrom(ctx)

	if raw == "" {
		RespondUnAuthorized(ctx, "invalid_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid or expired refresh token")
		return
	}

	newRaw, newJTI, newExpiry, err := h.jwt.GenerateRefreshToken(claims.UserID, claims.Email, claims.Role)

	if err != nil {
		RespondInternal(ctx, "Could not issue session tokens")
		return
	}

	row, err := h.tokens.ConsumeAndRevoke(ctx.Request.Context(), claims.JTI, &newJTI)

	if err != nil {
		if errors.Is(err, mongorepo.ErrTokenNotFound) {
			// Token already rotated or revoked: treat as reuse and cut every
			// live session for the account.
			_ = h.tokens.RevokeAllForUser(ctx.Request.Context(), claims.UserID)
			h.clearRefreshCookie(ctx)
			RespondUnAuthorized(ctx, "invalid_refresh", "Refresh token is no longer valid")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "refresh consume failed", "error", err)
		RespondInternal(ctx, "Could not process refresh")
		return
	}

	if row.UserID != claims.UserID ||
		row.TokenHash != h.jwt.HashRefreshToken(raw) ||
		time.Now().UTC().After(row.ExpiresAt) {
		_ = h.tokens.RevokeAllForUser(ctx.Request.Context(), claims.UserID)
		h.clearRefreshCookie(ctx)
		RespondUnAuthorized(ctx, "invalid_refresh", "Refresh token is no longer valid")
		return
	}

	u, err := h.users.GetByID(ctx.Request.Context(), claims.UserID)

	if err != nil || !u.Active {
		h.clearRefreshCookie(ctx)
		RespondUnAuthorized(ctx, "account_deactivated", "Account is deactivated. Contact admin.")
		return
	}

	err = h.tokens.Create(ctx.Request.Context(), mongorepo.RefreshTokenRow{
		ID:        newJTI,
		UserID:    u.ID,
		TokenHash: h.jwt.HashRefreshToken(newRaw),
		ExpiresAt: newExpiry,
		CreatedAt: time.Now().UTC(),
	})

	if err != nil {
		RespondInternal(ctx, "Could not process refresh")
		return
	}

	access, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)

	if err != nil {
		RespondInternal(ctx, "Could not issue session tokens")
		return
	}

	h.setRefreshCookie(ctx, newRaw, newExpiry)

	ctx.JSON(http.StatusOK, gin.H{
		"success":     true,
		"accessToken": access,
	})
}

// Logout revokes the presented refresh token; it stays a 200 even without a
// valid token so repeated logouts are harmless.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw := h.refreshTokenFrom(ctx)

	if raw != "" {
		claims, err := h.jwt.VerifyRefreshToken(raw)

		if err == nil {
			_ = h.tokens.Revoke(ctx.Request.Context(), claims.JTI)
		}
	}

	h.clearRefreshCookie(ctx)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out",
	})
}

func (h *AuthHandler) issueTokens(ctx *gin.Context, u user.User) (string, error) {
	access, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)

	if err != nil {
		return "", err
	}

	raw, jti, expiresAt, err := h.jwt.GenerateRefreshToken(u.ID, u.Email, u.Role)

	if err != nil {
		return "", err
	}

	err = h.tokens.Create(ctx.Request.Context(), mongorepo.RefreshTokenRow{
		ID:        jti,
		UserID:    u.ID,
		TokenHash: h.jwt.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	})

	if err != nil {
		return "", err
	}

	h.setRefreshCookie(ctx, raw, expiresAt)

	return access, nil
}

func (h *AuthHandler) refreshTokenFrom(ctx *gin.Context) string {
	if c, err := ctx.Cookie(refreshCookieName); err == nil && c != "" {
		return c
	}

	// Fallback for clients that cannot use cookies.
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}

	if err := ctx.ShouldBindJSON(&body); err == nil {
		return body.RefreshToken
	}

	return ""
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())

	if maxAge < 0 {
		maxAge = 0
	}

	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, raw, maxAge, refreshCookiePath, "", h.cookieSecure, true)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", h.cookieSecure, true)
}
