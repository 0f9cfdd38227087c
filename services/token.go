package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sessionguard/config"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims are the signed claims carried by both token types. Refresh
// tokens only populate user_id, session_id and type.
type TokenClaims struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	SessionID   string `json:"session_id"`
	TokenType   string `json:"type"`
	jwt.RegisteredClaims
}

// TokenCodec mints and verifies HS256 tokens. Access and refresh tokens are
// signed with distinct secrets so neither can stand in for the other.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

// NewTokenCodec fails on missing secrets. That is a process-start problem,
// never a per-request one.
func NewTokenCodec(cfg config.TokenConfig) (*TokenCodec, error) {
	if cfg.AccessSecret == "" {
		return nil, errors.New("access token signing secret not set")
	}
	if cfg.RefreshSecret == "" {
		return nil, errors.New("refresh token signing secret not set")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	return &TokenCodec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
	}, nil
}

func (tc *TokenCodec) AccessTTL() time.Duration { return tc.accessTTL }

// IssueAccessToken mints an access token bound to a session and the device
// fingerprint observed at login.
func (tc *TokenCodec) IssueAccessToken(userID, email, role, fingerprint, sessionID string) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID:      userID,
		Email:       email,
		Role:        role,
		Fingerprint: fingerprint,
		SessionID:   sessionID,
		TokenType:   TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tc.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tc.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tc.accessSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken mints a refresh token bound 1:1 to a session record.
func (tc *TokenCodec) IssueRefreshToken(userID, sessionID string) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID:    userID,
		SessionID: sessionID,
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tc.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tc.refreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tc.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccess parses and validates an access token.
func (tc *TokenCodec) VerifyAccess(tokenString string) (*TokenClaims, error) {
	return tc.verify(tokenString, tc.accessSecret, TokenTypeAccess)
}

// VerifyRefresh parses and validates a refresh token.
func (tc *TokenCodec) VerifyRefresh(tokenString string) (*TokenClaims, error) {
	return tc.verify(tokenString, tc.refreshSecret, TokenTypeRefresh)
}

func (tc *TokenCodec) verify(tokenString string, secret []byte, wantType string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(tc.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !token.Valid {
		return nil, ErrMalformedToken
	}

	// A structurally valid token of the wrong type is still rejected, so a
	// refresh token can never be replayed as an access token.
	if claims.TokenType != wantType {
		return nil, ErrTokenTypeMismatch
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrMalformedToken
	}

	return claims, nil
}
