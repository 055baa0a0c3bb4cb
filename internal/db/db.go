package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect opens the mongo client, pings it, and makes sure the indexes the
// repositories rely on exist.
func Connect(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetServerSelectionTimeout(5*time.Second),
	)

	if err != nil {
		return nil, nil, err
	}

	err = client.Ping(ctx, nil)

	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}

	database := client.Database(dbName)

	err = ensureIndexes(ctx, database)

	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}

	return client, database, nil
}

func ensureIndexes(ctx context.Context, database *mongo.Database) error {
	users := database.Collection("users")

	// unique case-normalized email; the repos lowercase before writing
	_, err := users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	if err != nil {
		return err
	}

	// public listing path: approved garages filtered by role
	_, err = users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "role", Value: 1},
			{Key: "garage_profile.approval_status", Value: 1},
		},
	})

	if err != nil {
		return err
	}

	tokens := database.Collection("refresh_tokens")

	_, err = tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})

	return err
}
