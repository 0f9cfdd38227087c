package services

import (
	"context"
	"log"
	"time"

	"sessionguard/model"
	"sessionguard/utils"
)

// AuditSink is an append-only event store. The Mongo implementation lives
// in the repository package; tests use an in-memory fake.
type AuditSink interface {
	Record(ctx context.Context, event *model.AuditEvent) error
	Recent(ctx context.Context, userID string, limit int64) ([]*model.AuditEvent, error)
}

// AuditEmitter records security events without ever blocking or failing the
// calling operation. A write failure is logged and dropped; availability of
// the auth path wins over completeness of the telemetry.
type AuditEmitter struct {
	sink    AuditSink
	timeout time.Duration
}

func NewAuditEmitter(sink AuditSink, timeout time.Duration) *AuditEmitter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuditEmitter{sink: sink, timeout: timeout}
}

// Emit dispatches the write on its own goroutine with a bounded timeout.
// The caller's context is deliberately not used; a cancelled request must
// not lose its audit trail.
func (e *AuditEmitter) Emit(action, userID string, detail map[string]any, meta model.DeviceMeta) {
	if e == nil || e.sink == nil {
		return
	}

	values := make(map[string]any, len(detail)+2)
	for k, v := range detail {
		values[k] = v
	}
	values["ip_address"] = meta.IPAddress
	values["user_agent"] = meta.UserAgent

	event := &model.AuditEvent{
		EventID:   utils.NewEventID(),
		UserID:    userID,
		Action:    action,
		Entity:    "Session",
		Timestamp: time.Now(),
		NewValues: values,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		if err := e.sink.Record(ctx, event); err != nil {
			utils.TrackError("audit", "record_failed")
			log.Printf("Warning: failed to record audit event %s for user %s: %v", action, userID, err)
		}
	}()
}

// RecentActivity returns the latest audit events for a user, newest first.
func (e *AuditEmitter) RecentActivity(ctx context.Context, userID string, limit int64) ([]*model.AuditEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return e.sink.Recent(ctx, userID, limit)
}
