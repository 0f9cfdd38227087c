package model

import "time"

// Session is the durable record backing one logged-in device. It is owned
// by the session store; the authority never holds a copy across requests.
type Session struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Fingerprint    string    `json:"fingerprint"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	RememberMe     bool      `json:"remember_me"`
}

// DeviceMeta is the connection metadata a fingerprint is derived from.
// Missing headers are carried as empty strings, never as errors.
type DeviceMeta struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	IPAddress      string
}

// SessionView is what callers get back from validate and session listings.
type SessionView struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	Email            string    `json:"email,omitempty"`
	Role             string    `json:"role,omitempty"`
	DisplayName      string    `json:"display_name,omitempty"`
	DeviceInfo       string    `json:"device_info,omitempty"`
	IPAddress        string    `json:"ip_address,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	IsCurrentSession bool      `json:"is_current_session"`
}
