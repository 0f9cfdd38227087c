package model

import "time"

// User is the read-only profile view owned by the profile store.
type User struct {
	UserID        string    `bson:"user_id" json:"user_id"`
	Email         string    `bson:"email" json:"email"`
	Name          string    `bson:"name" json:"name"`
	Role          string    `bson:"role" json:"role"`
	EmailVerified bool      `bson:"email_verified" json:"email_verified"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

// Identity is the verified assertion handed over by the identity provider
// once its own login flow has succeeded. Passwords are never seen here.
// UserID is deliberately not binding-required: an assertion without one is
// an identity-resolution failure the authority must see and audit, not a
// request-shape error.
type Identity struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email" binding:"omitempty,email"`
	Role          string `json:"role" binding:"omitempty,role"`
	EmailVerified bool   `json:"email_verified"`
}

// LoginRequest is the wire shape of POST /api/auth/login.
type LoginRequest struct {
	Identity
	RememberMe bool `json:"remember_me"`
}
