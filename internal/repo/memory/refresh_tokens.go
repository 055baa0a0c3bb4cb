package memory

import (
	"context"
	"sync"
	"time"

	mongorepo "github.com/geocoder89/garagehub/internal/repo/mongo"
)

// RefreshTokensRepo mirrors the document-store token repository for tests.
type RefreshTokensRepo struct {
	mu    sync.Mutex
	items map[string]mongorepo.RefreshTokenRow
}

func NewRefreshTokensRepo() *RefreshTokensRepo {
	return &RefreshTokensRepo{
		items: make(map[string]mongorepo.RefreshTokenRow),
	}
}

func (r *RefreshTokensRepo) Create(ctx context.Context, row mongorepo.RefreshTokenRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[row.ID] = row

	return nil
}

func (r *RefreshTokensRepo) ConsumeAndRevoke(ctx context.Context, jti string, replacedBy *string) (mongorepo.RefreshTokenRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.items[jti]

	if !ok || row.RevokedAt != nil {
		return mongorepo.RefreshTokenRow{}, mongorepo.ErrTokenNotFound
	}

	prior := row

	now := time.Now().UTC()
	row.RevokedAt = &now
	row.ReplacedBy = replacedBy
	r.items[jti] = row

	return prior, nil
}

func (r *RefreshTokensRepo) Revoke(ctx context.Context, jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.items[jti]

	if !ok || row.RevokedAt != nil {
		return nil
	}

	now := time.Now().UTC()
	row.RevokedAt = &now
	r.items[jti] = row

	return nil
}

func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	for id, row := range r.items {
		if row.UserID == userID && row.RevokedAt == nil {
			row.RevokedAt = &now
			r.items[id] = row
		}
	}

	return nil
}

// ActiveCount reports live tokens for a user; test helper.
func (r *RefreshTokensRepo) ActiveCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, row := range r.items {
		if row.UserID == userID && row.RevokedAt == nil {
			n++
		}
	}

	return n
}
