package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"sessionguard/model"
	"sessionguard/utils"
)

// UserRepo is the read-only window onto the profile store. User records are
// owned by the identity side of the house; this service never writes them.
type UserRepo struct {
	MongoCollection *mongo.Collection
}

func GetUserRepo(client *mongo.Client, dbName, collectionName string) *UserRepo {
	return &UserRepo{
		MongoCollection: client.Database(dbName).Collection(collectionName),
	}
}

// FindUser fetches a profile by user id; absent users return (nil, nil).
func (r *UserRepo) FindUser(ctx context.Context, userID string) (*model.User, error) {
	timer := utils.TrackStoreOperation("find", "users")
	defer timer.ObserveDuration()

	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}

	var user model.User
	filter := bson.D{{Key: "user_id", Value: userID}}
	err := r.MongoCollection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	return &user, nil
}
