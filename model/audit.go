package model

import "time"

// Audit actions emitted by the session authority.
const (
	AuditLoginSuccess   = "login_success"
	AuditLoginFailed    = "login_failed"
	AuditTokenRefresh   = "token_refresh"
	AuditDeviceMismatch = "device_mismatch"
	AuditLogout         = "logout"
	AuditLogoutAll      = "logout_all"
	AuditSessionEvicted = "session_evicted"
	AuditSessionRevoked = "session_revoked"
)

// AuditEvent is an immutable, append-only security event. Nothing in this
// service reads one back after emission except the recent-activity query.
type AuditEvent struct {
	EventID   string         `bson:"event_id" json:"event_id"`
	UserID    string         `bson:"user_id" json:"user_id"`
	Action    string         `bson:"action" json:"action"`
	Entity    string         `bson:"entity" json:"entity"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	NewValues map[string]any `bson:"new_values" json:"new_values"`
}
