package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"sessionguard/config"
	"sessionguard/model"
	"sessionguard/utils"
)

// SessionStore is the TTL'd key-value backend holding live session records,
// partitioned by user. Operations on distinct (userID, sessionID) pairs are
// independent; the authority serialises logically related calls itself.
type SessionStore interface {
	ListSessionIDs(ctx context.Context, userID string) ([]string, error)
	Put(ctx context.Context, session *model.Session, ttl time.Duration) error
	Get(ctx context.Context, userID, sessionID string) (*model.Session, error)
	// Delete reports whether a record was actually removed, which makes it
	// usable as a compare-and-delete primitive during rotation.
	Delete(ctx context.Context, userID, sessionID string) (bool, error)
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// RevocationRegistry is a TTL'd presence check for explicitly invalidated
// tokens. Entries never outlive the token's own expiry.
type RevocationRegistry interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// UserReader is the read-only window onto the user profile store.
type UserReader interface {
	FindUser(ctx context.Context, userID string) (*model.User, error)
}

// SessionAuthority orchestrates the secondary, device-aware session layer:
// issuing token pairs, rotating them, revoking them, and enforcing the
// per-user concurrent-session cap. It is stateless; all shared state lives
// in the injected stores, so instances can be replicated freely.
type SessionAuthority struct {
	store        SessionStore
	revoked      RevocationRegistry
	users        UserReader
	codec        *TokenCodec
	fingerprints *Fingerprinter
	audit        *AuditEmitter

	maxSessions  int
	sessionTTL   time.Duration
	extendedTTL  time.Duration
	storeTimeout time.Duration
}

func NewSessionAuthority(
	store SessionStore,
	revoked RevocationRegistry,
	users UserReader,
	codec *TokenCodec,
	fingerprints *Fingerprinter,
	audit *AuditEmitter,
	cfg config.SessionConfig,
) *SessionAuthority {
	return &SessionAuthority{
		store:        store,
		revoked:      revoked,
		users:        users,
		codec:        codec,
		fingerprints: fingerprints,
		audit:        audit,
		maxSessions:  cfg.MaxSessions,
		sessionTTL:   cfg.TTL,
		extendedTTL:  cfg.ExtendedTTL,
		storeTimeout: cfg.StoreTimeout,
	}
}

type LoginResult struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	ExpiresIn    int64              `json:"expires_in"`
	User         *model.User        `json:"user"`
	Session      *model.SessionView `json:"session"`
	Notice       string             `json:"notice,omitempty"`
}

type RefreshResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	SessionID    string `json:"session_id"`
}

// storeCtx bounds a store round trip. A hung backend must suspend a single
// request, never the process.
func (a *SessionAuthority) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.storeTimeout)
}

func (a *SessionAuthority) ttlFor(rememberMe bool) time.Duration {
	if rememberMe {
		return a.extendedTTL
	}
	return a.sessionTTL
}

// Login establishes a new device session for an already-verified identity.
// Hitting the concurrent-session cap evicts the least-recently-active
// session rather than rejecting the new device.
func (a *SessionAuthority) Login(ctx context.Context, identity model.Identity, meta model.DeviceMeta, rememberMe bool) (*LoginResult, error) {
	if identity.UserID == "" {
		utils.TrackAuthAttempt("failure", "login")
		a.audit.Emit(model.AuditLoginFailed, "", map[string]any{"reason": "user_not_found"}, meta)
		return nil, ErrUserNotFound
	}

	user, err := a.findUser(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		utils.TrackAuthAttempt("failure", "login")
		a.audit.Emit(model.AuditLoginFailed, identity.UserID, map[string]any{"reason": "user_not_found"}, meta)
		return nil, ErrUserNotFound
	}

	fingerprint := a.fingerprints.Fingerprint(meta)

	sessionID, err := utils.NewSessionID()
	if err != nil {
		return nil, err
	}

	notice, err := a.enforceSessionCap(ctx, user.UserID, meta)
	if err != nil {
		return nil, err
	}

	accessToken, err := a.codec.IssueAccessToken(user.UserID, user.Email, user.Role, fingerprint, sessionID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := a.codec.IssueRefreshToken(user.UserID, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ttl := a.ttlFor(rememberMe)
	session := &model.Session{
		SessionID:      sessionID,
		UserID:         user.UserID,
		Fingerprint:    fingerprint,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		RememberMe:     rememberMe,
	}

	putCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.store.Put(putCtx, session, ttl); err != nil {
		utils.TrackError("session", "create_failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	utils.TrackSessionOperation("create")
	utils.TokenUsage.WithLabelValues(TokenTypeAccess, "generated").Inc()
	utils.TokenUsage.WithLabelValues(TokenTypeRefresh, "generated").Inc()

	utils.TrackAuthAttempt("success", "login")
	a.audit.Emit(model.AuditLoginSuccess, user.UserID, map[string]any{
		"session_id":  sessionID,
		"remember_me": rememberMe,
	}, meta)

	view := a.viewFromSession(session, true)
	view.Email = user.Email
	view.Role = user.Role

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(a.codec.AccessTTL().Seconds()),
		User:         user,
		Session:      view,
		Notice:       notice,
	}, nil
}

// enforceSessionCap evicts the least-recently-active session when the cap
// is reached. The tie among equal activity timestamps breaks on session id
// so eviction stays deterministic across replicas.
func (a *SessionAuthority) enforceSessionCap(ctx context.Context, userID string, meta model.DeviceMeta) (string, error) {
	listCtx, cancel := a.storeCtx(ctx)
	defer cancel()

	ids, err := a.store.ListSessionIDs(listCtx, userID)
	if err != nil {
		utils.TrackError("session", "list_failed")
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) < a.maxSessions {
		return "", nil
	}

	var oldest *model.Session
	for _, id := range ids {
		getCtx, cancel := a.storeCtx(ctx)
		record, err := a.store.Get(getCtx, userID, id)
		cancel()
		if err != nil {
			utils.TrackError("session", "fetch_failed")
			return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if record == nil {
			continue // reaped between list and get
		}
		if oldest == nil ||
			record.LastActivityAt.Before(oldest.LastActivityAt) ||
			(record.LastActivityAt.Equal(oldest.LastActivityAt) && record.SessionID < oldest.SessionID) {
			oldest = record
		}
	}
	if oldest == nil {
		return "", nil
	}

	delCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	if _, err := a.store.Delete(delCtx, userID, oldest.SessionID); err != nil {
		utils.TrackError("session", "evict_failed")
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	utils.TrackSessionOperation("evict")
	a.audit.Emit(model.AuditSessionEvicted, userID, map[string]any{
		"session_id": oldest.SessionID,
		"reason":     "session_limit_reached",
	}, meta)
	log.Printf("Evicted least active session for user %s due to session limit", userID)

	return "Logged out of least active session due to session limit", nil
}

// Refresh rotates a refresh token: the backing session is replaced wholesale
// by a new one, so the presented refresh token is single-use.
func (a *SessionAuthority) Refresh(ctx context.Context, refreshToken string, meta model.DeviceMeta) (*RefreshResult, error) {
	claims, err := a.codec.VerifyRefresh(refreshToken)
	if err != nil {
		utils.TrackAuthAttempt("failure", "refresh")
		utils.TokenUsage.WithLabelValues(TokenTypeRefresh, "rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}

	getCtx, cancel := a.storeCtx(ctx)
	record, err := a.store.Get(getCtx, claims.UserID, claims.SessionID)
	cancel()
	if err != nil {
		utils.TrackError("session", "fetch_failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if record == nil {
		utils.TrackAuthAttempt("failure", "refresh")
		return nil, ErrSessionExpired
	}

	fingerprint := a.fingerprints.Fingerprint(meta)
	if fingerprint != record.Fingerprint {
		return nil, a.invalidateMismatch(ctx, record, meta)
	}

	user, err := a.findUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	newSessionID, err := utils.NewSessionID()
	if err != nil {
		return nil, err
	}

	// Compare-and-delete: of two concurrent refreshes of the same token,
	// only the one that actually removes the old record may rotate. The
	// loser fails as if the session expired.
	delCtx, cancel := a.storeCtx(ctx)
	deleted, err := a.store.Delete(delCtx, record.UserID, record.SessionID)
	cancel()
	if err != nil {
		utils.TrackError("session", "delete_failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !deleted {
		utils.TrackAuthAttempt("failure", "refresh")
		utils.TrackError("session", "rotation_race")
		return nil, ErrSessionExpired
	}

	accessToken, err := a.codec.IssueAccessToken(user.UserID, user.Email, user.Role, fingerprint, newSessionID)
	if err != nil {
		return nil, err
	}
	newRefreshToken, err := a.codec.IssueRefreshToken(user.UserID, newSessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ttl := a.ttlFor(record.RememberMe)
	session := &model.Session{
		SessionID:      newSessionID,
		UserID:         user.UserID,
		Fingerprint:    fingerprint,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		RememberMe:     record.RememberMe,
	}

	putCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.store.Put(putCtx, session, ttl); err != nil {
		utils.TrackError("session", "rotate_failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	utils.TrackSessionOperation("rotate")
	utils.TrackAuthAttempt("success", "refresh")
	utils.TokenUsage.WithLabelValues(TokenTypeAccess, "generated").Inc()
	utils.TokenUsage.WithLabelValues(TokenTypeRefresh, "generated").Inc()

	a.audit.Emit(model.AuditTokenRefresh, user.UserID, map[string]any{
		"old_session_id": record.SessionID,
		"session_id":     newSessionID,
	}, meta)

	return &RefreshResult{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    int64(a.codec.AccessTTL().Seconds()),
		SessionID:    newSessionID,
	}, nil
}

// invalidateMismatch hard-deletes a session whose stored fingerprint no
// longer matches the requesting device. Token possession plus a changed
// fingerprint is the primary theft signal, so this is not a soft warning.
func (a *SessionAuthority) invalidateMismatch(ctx context.Context, record *model.Session, meta model.DeviceMeta) error {
	delCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	if _, err := a.store.Delete(delCtx, record.UserID, record.SessionID); err != nil {
		log.Printf("Warning: failed to delete mismatched session %s: %v", record.SessionID, err)
	}
	utils.TrackError("auth", "device_mismatch")
	a.audit.Emit(model.AuditDeviceMismatch, record.UserID, map[string]any{
		"session_id": record.SessionID,
	}, meta)
	return ErrDeviceMismatch
}

// Logout deletes the token's session and blacklists the raw token for the
// rest of its natural life. Logging out an already-dead session is a no-op.
func (a *SessionAuthority) Logout(ctx context.Context, accessToken string, meta model.DeviceMeta) error {
	claims, err := a.codec.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil // nothing valid left to revoke
		}
		return err
	}

	delCtx, cancel := a.storeCtx(ctx)
	if _, derr := a.store.Delete(delCtx, claims.UserID, claims.SessionID); derr != nil {
		cancel()
		utils.TrackError("session", "delete_failed")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, derr)
	}
	cancel()

	remaining := time.Until(claims.ExpiresAt.Time)
	revCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	if rerr := a.revoked.Revoke(revCtx, accessToken, remaining); rerr != nil {
		utils.TrackError("blacklist", "revoke_failed")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, rerr)
	}
	utils.TokenUsage.WithLabelValues(TokenTypeAccess, "revoked").Inc()
	utils.TrackSessionOperation("delete")

	a.audit.Emit(model.AuditLogout, claims.UserID, map[string]any{
		"session_id": claims.SessionID,
	}, meta)
	return nil
}

// LogoutAll deletes every session for the token's user and returns how many
// were revoked. Access tokens of the other devices die with their session
// records; no per-token blacklisting is needed.
func (a *SessionAuthority) LogoutAll(ctx context.Context, accessToken string, meta model.DeviceMeta) (int, error) {
	claims, err := a.codec.VerifyAccess(accessToken)
	if err != nil {
		return 0, err
	}

	delCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	count, err := a.store.DeleteAll(delCtx, claims.UserID)
	if err != nil {
		utils.TrackError("session", "delete_all_failed")
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	a.audit.Emit(model.AuditLogoutAll, claims.UserID, map[string]any{
		"revoked_sessions": count,
	}, meta)
	log.Printf("Deleted %d sessions for user %s", count, claims.UserID)
	return count, nil
}

// RevokeSession deletes one specific session belonging to the caller.
func (a *SessionAuthority) RevokeSession(ctx context.Context, accessToken, sessionID string, meta model.DeviceMeta) error {
	claims, err := a.codec.VerifyAccess(accessToken)
	if err != nil {
		return err
	}

	delCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	deleted, err := a.store.Delete(delCtx, claims.UserID, sessionID)
	if err != nil {
		utils.TrackError("session", "delete_failed")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !deleted {
		return ErrSessionExpired
	}
	utils.TrackSessionOperation("delete")

	a.audit.Emit(model.AuditSessionRevoked, claims.UserID, map[string]any{
		"session_id": sessionID,
	}, meta)
	return nil
}

// Validate is the per-request check: signature, blacklist, session record,
// fingerprint, in that order. Store failures fail closed.
func (a *SessionAuthority) Validate(ctx context.Context, accessToken string, meta model.DeviceMeta) (*model.SessionView, error) {
	claims, err := a.codec.VerifyAccess(accessToken)
	if err != nil {
		utils.TokenUsage.WithLabelValues(TokenTypeAccess, "rejected").Inc()
		return nil, err
	}

	revCtx, cancel := a.storeCtx(ctx)
	revoked, err := a.revoked.IsRevoked(revCtx, accessToken)
	cancel()
	if err != nil {
		utils.TrackError("blacklist", "check_failed")
		return nil, ErrSessionExpired // fail closed, never open
	}
	if revoked {
		utils.TokenUsage.WithLabelValues(TokenTypeAccess, "rejected").Inc()
		return nil, ErrTokenRevoked
	}

	getCtx, cancel := a.storeCtx(ctx)
	record, err := a.store.Get(getCtx, claims.UserID, claims.SessionID)
	cancel()
	if err != nil {
		utils.TrackError("session", "fetch_failed")
		return nil, ErrSessionExpired // fail closed
	}
	if record == nil {
		return nil, ErrSessionExpired
	}

	fingerprint := a.fingerprints.Fingerprint(meta)
	if fingerprint != record.Fingerprint {
		return nil, a.invalidateMismatch(ctx, record, meta)
	}

	// Touch the activity timestamp; the session keeps its original expiry.
	record.LastActivityAt = time.Now()
	if remaining := time.Until(record.ExpiresAt); remaining > 0 {
		touchCtx, cancel := a.storeCtx(ctx)
		if err := a.store.Put(touchCtx, record, remaining); err != nil {
			log.Printf("Warning: failed to touch session %s: %v", record.SessionID, err)
		}
		cancel()
	}

	utils.TrackAuthAttempt("success", "validate")
	view := a.viewFromSession(record, true)
	view.Email = claims.Email
	view.Role = claims.Role
	return view, nil
}

// Sessions lists the caller's live sessions, most recently active first.
func (a *SessionAuthority) Sessions(ctx context.Context, accessToken string) ([]*model.SessionView, error) {
	claims, err := a.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	listCtx, cancel := a.storeCtx(ctx)
	ids, err := a.store.ListSessionIDs(listCtx, claims.UserID)
	cancel()
	if err != nil {
		utils.TrackError("session", "list_failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	views := make([]*model.SessionView, 0, len(ids))
	for _, id := range ids {
		getCtx, cancel := a.storeCtx(ctx)
		record, err := a.store.Get(getCtx, claims.UserID, id)
		cancel()
		if err != nil {
			utils.TrackError("session", "fetch_failed")
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if record == nil {
			continue
		}
		views = append(views, a.viewFromSession(record, record.SessionID == claims.SessionID))
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].LastActivityAt.After(views[j].LastActivityAt)
	})
	return views, nil
}

func (a *SessionAuthority) findUser(ctx context.Context, userID string) (*model.User, error) {
	findCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	user, err := a.users.FindUser(findCtx, userID)
	if err != nil {
		utils.TrackError("users", "lookup_failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return user, nil
}

func (a *SessionAuthority) viewFromSession(s *model.Session, current bool) *model.SessionView {
	return &model.SessionView{
		SessionID:        s.SessionID,
		UserID:           s.UserID,
		DisplayName:      utils.SessionDisplayName(s.UserAgent),
		DeviceInfo:       utils.DeviceInfo(s.UserAgent),
		IPAddress:        s.IPAddress,
		CreatedAt:        s.CreatedAt,
		LastActivityAt:   s.LastActivityAt,
		ExpiresAt:        s.ExpiresAt,
		IsCurrentSession: current,
	}
}
