package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/garagehub/internal/domain/user"
	"github.com/geocoder89/garagehub/internal/http/middlewares"
	"github.com/geocoder89/garagehub/internal/uploads"
)

// UploadUsersStore is the slice of the users repository the upload handler
// needs.
type UploadUsersStore interface {
	UpdateGarageProfile(ctx context.Context, id string, req user.UpdateGarageProfileRequest) (user.User, error)
}

type UploadsHandler struct {
	users    UploadUsersStore
	uploader uploads.Uploader
}

func NewUploadsHandler(users UploadUsersStore, uploader uploads.Uploader) *UploadsHandler {
	return &UploadsHandler{users: users, uploader: uploader}
}

// License accepts a garage owner's license document and attaches its URL to
// the garage profile.
func (h *UploadsHandler) License(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	file, err := ctx.FormFile("document")

	if err != nil {
		RespondBadRequest(ctx, "A document file is required", nil)
		return
	}

	url, err := h.uploader.SaveLicense(file)

	if err != nil {
		switch {
		case errors.Is(err, uploads.ErrUnsupportedType):
			RespondBadRequest(ctx, "Only PDF, PNG and JPEG documents are accepted", nil)
		case errors.Is(err, uploads.ErrFileTooLarge):
			RespondBadRequest(ctx, "Document exceeds the size limit", nil)
		default:
			slog.ErrorContext(ctx.Request.Context(), "license upload failed", "error", err)
			RespondInternal(ctx, "Could not store document")
		}

		return
	}

	u, err := h.users.UpdateGarageProfile(ctx.Request.Context(), id, user.UpdateGarageProfileRequest{
		LicenseDocument: &url,
	})

	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "Account not found")
		case errors.Is(err, user.ErrNotGarageOwner):
			RespondForbidden(ctx, "forbidden", "Only garage owners upload license documents")
		default:
			slog.ErrorContext(ctx.Request.Context(), "license attach failed", "error", err)
			RespondInternal(ctx, "Could not store document")
		}

		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":         true,
		"licenseDocument": url,
		"user":            u,
	})
}
