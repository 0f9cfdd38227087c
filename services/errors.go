package services

import "errors"

// Error taxonomy for the session authority. Handlers dispatch on these with
// errors.Is; everything token-shaped maps to 401, store failures to 503
// except during validation where they fail closed.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrTokenTypeMismatch   = errors.New("token type mismatch")
	ErrMalformedToken      = errors.New("malformed token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrSessionExpired      = errors.New("session has expired")
	ErrDeviceMismatch      = errors.New("device fingerprint mismatch")
	ErrTokenRevoked        = errors.New("token has been revoked")
	ErrStoreUnavailable    = errors.New("session store unavailable")
)
