package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const refreshTokensCollection = "refresh_tokens"

var ErrTokenNotFound = errors.New("refresh token not found")

// RefreshTokenRow mirrors one issued refresh token. Only the HMAC hash of the
// raw token is stored.
type RefreshTokenRow struct {
	ID         string     `bson:"_id"` // jti
	UserID     string     `bson:"user_id"`
	TokenHash  string     `bson:"token_hash"`
	ExpiresAt  time.Time  `bson:"expires_at"`
	CreatedAt  time.Time  `bson:"created_at"`
	RevokedAt  *time.Time `bson:"revoked_at,omitempty"`
	ReplacedBy *string    `bson:"replaced_by,omitempty"`
}

type RefreshTokensRepo struct {
	col *mongo.Collection
}

func NewRefreshTokensRepo(db *mongo.Database) *RefreshTokensRepo {
	return &RefreshTokensRepo{col: db.Collection(refreshTokensCollection)}
}

func (r *RefreshTokensRepo) Create(ctx context.Context, row RefreshTokenRow) error {
	_, err := r.col.InsertOne(ctx, row)

	return err
}

// ConsumeAndRevoke revokes an unrevoked token and returns its prior state in
// one atomic document update. Rotation rides on this: a replayed refresh
// token finds the row already revoked and fails.
func (r *RefreshTokensRepo) ConsumeAndRevoke(ctx context.Context, jti string, replacedBy *string) (RefreshTokenRow, error) {
	now := time.Now().UTC()

	set := bson.M{"revoked_at": now}

	if replacedBy != nil {
		set["replaced_by"] = *replacedBy
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var row RefreshTokenRow

	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": jti, "revoked_at": nil},
		bson.M{"$set": set},
		opts,
	).Decode(&row)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return RefreshTokenRow{}, ErrTokenNotFound
		}

		return RefreshTokenRow{}, err
	}

	return row, nil
}

// Revoke marks a single token revoked; already-revoked tokens are a no-op so
// logout stays idempotent.
func (r *RefreshTokensRepo) Revoke(ctx context.Context, jti string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": jti, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": time.Now().UTC()}},
	)

	return err
}

func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.col.UpdateMany(ctx,
		bson.M{"user_id": userID, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": time.Now().UTC()}},
	)

	return err
}
