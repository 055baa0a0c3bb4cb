package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/garagehub/internal/config"
	"github.com/geocoder89/garagehub/internal/domain/user"
	"github.com/geocoder89/garagehub/internal/security"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// EnsureAdminUser seeds the administrator account from config. Admin signup
// is not exposed over the API.
func EnsureAdminUser(ctx context.Context, database *mongo.Database, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))

	users := database.Collection("users")

	// check if the admin already exists

	err := users.FindOne(ctx, bson.M{"email": email}).Err()

	if err == nil {
		return nil
	}

	if !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         cfg.AdminName,
		Role:         cfg.AdminRole,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = users.InsertOne(ctx, u)

	return err
}
