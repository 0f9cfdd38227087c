package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sessionguard/model"
	"sessionguard/utils"
)

// AuditRepo appends security events to a Mongo collection. Events are
// immutable; the only read path is the recent-activity query.
type AuditRepo struct {
	MongoCollection *mongo.Collection
}

func GetAuditRepo(client *mongo.Client, dbName, collectionName string) *AuditRepo {
	return &AuditRepo{
		MongoCollection: client.Database(dbName).Collection(collectionName),
	}
}

// Record appends one event.
func (r *AuditRepo) Record(ctx context.Context, event *model.AuditEvent) error {
	timer := utils.TrackStoreOperation("insert", "audit_logs")
	defer timer.ObserveDuration()

	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Action == "" {
		return fmt.Errorf("invalid audit event: missing action")
	}

	if _, err := r.MongoCollection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Recent returns the latest events for a user, newest first.
func (r *AuditRepo) Recent(ctx context.Context, userID string, limit int64) ([]*model.AuditEvent, error) {
	timer := utils.TrackStoreOperation("find", "audit_logs")
	defer timer.ObserveDuration()

	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}

	opts := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetLimit(limit)
	cursor, err := r.MongoCollection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*model.AuditEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}
	return events, nil
}
