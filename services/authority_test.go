package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sessionguard/config"
	"sessionguard/model"
)

// ---- in-memory fakes for the injected stores ----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSessionStore reaps by the record's own expiry against an advanceable
// clock, mimicking the payload-expiry check of the Redis store.
type fakeSessionStore struct {
	mu      sync.Mutex
	clock   *fakeClock
	records map[string]map[string]*model.Session
	err     error
}

func newFakeSessionStore(clock *fakeClock) *fakeSessionStore {
	return &fakeSessionStore{
		clock:   clock,
		records: make(map[string]map[string]*model.Session),
	}
}

func (s *fakeSessionStore) live(userID, sessionID string) bool {
	record, ok := s.records[userID][sessionID]
	if !ok {
		return false
	}
	if s.clock.Now().After(record.ExpiresAt) {
		delete(s.records[userID], sessionID)
		return false
	}
	return true
}

func (s *fakeSessionStore) ListSessionIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var ids []string
	for id := range s.records[userID] {
		if s.live(userID, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeSessionStore) Put(_ context.Context, session *model.Session, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.records[session.UserID] == nil {
		s.records[session.UserID] = make(map[string]*model.Session)
	}
	copied := *session
	s.records[session.UserID][session.SessionID] = &copied
	return nil
}

func (s *fakeSessionStore) Get(_ context.Context, userID, sessionID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if !s.live(userID, sessionID) {
		return nil, nil
	}
	copied := *s.records[userID][sessionID]
	return &copied, nil
}

func (s *fakeSessionStore) Delete(_ context.Context, userID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	existed := s.live(userID, sessionID)
	delete(s.records[userID], sessionID)
	return existed, nil
}

func (s *fakeSessionStore) DeleteAll(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	count := 0
	for id := range s.records[userID] {
		if s.live(userID, id) {
			count++
		}
	}
	delete(s.records, userID)
	return count, nil
}

func (s *fakeSessionStore) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id := range s.records[userID] {
		if s.live(userID, id) {
			count++
		}
	}
	return count
}

type fakeRegistry struct {
	mu      sync.Mutex
	clock   *fakeClock
	entries map[string]time.Time
	err     error
}

func newFakeRegistry(clock *fakeClock) *fakeRegistry {
	return &fakeRegistry{clock: clock, entries: make(map[string]time.Time)}
}

func (r *fakeRegistry) Revoke(_ context.Context, token string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if ttl <= 0 {
		return nil
	}
	r.entries[token] = r.clock.Now().Add(ttl)
	return nil
}

func (r *fakeRegistry) IsRevoked(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	exp, ok := r.entries[token]
	if !ok {
		return false, nil
	}
	if r.clock.Now().After(exp) {
		delete(r.entries, token)
		return false, nil
	}
	return true, nil
}

type fakeUsers struct {
	users map[string]*model.User
	err   error
}

func (u *fakeUsers) FindUser(_ context.Context, userID string) (*model.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	return u.users[userID], nil
}

type fakeAuditSink struct {
	mu     sync.Mutex
	events []*model.AuditEvent
	err    error
}

func (s *fakeAuditSink) Record(_ context.Context, event *model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeAuditSink) Recent(_ context.Context, userID string, limit int64) ([]*model.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.AuditEvent
	for i := len(s.events) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if s.events[i].UserID == userID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// waitForAudit polls for an emitted action; emission is fire-and-forget so
// tests cannot observe it synchronously.
func (s *fakeAuditSink) waitFor(t *testing.T, action string) *model.AuditEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, e := range s.events {
			if e.Action == action {
				s.mu.Unlock()
				return e
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("audit event %q was never emitted", action)
	return nil
}

// ---- fixture ----

type authorityFixture struct {
	authority *SessionAuthority
	store     *fakeSessionStore
	registry  *fakeRegistry
	users     *fakeUsers
	audit     *fakeAuditSink
	clock     *fakeClock
}

func newFixture(t *testing.T) *authorityFixture {
	t.Helper()

	clock := newFakeClock()
	store := newFakeSessionStore(clock)
	registry := newFakeRegistry(clock)
	users := &fakeUsers{users: map[string]*model.User{
		"user-1": {UserID: "user-1", Email: "u1@example.com", Name: "User One", Role: "user", EmailVerified: true},
		"user-2": {UserID: "user-2", Email: "u2@example.com", Name: "User Two", Role: "admin", EmailVerified: true},
	}}
	audit := &fakeAuditSink{}

	codec, err := NewTokenCodec(testTokenConfig())
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.SessionConfig{
		MaxSessions:     3,
		TTL:             24 * time.Hour,
		ExtendedTTL:     7 * 24 * time.Hour,
		FingerprintSalt: "test-salt",
		StoreTimeout:    2 * time.Second,
	}

	return &authorityFixture{
		authority: NewSessionAuthority(store, registry, users, codec, NewFingerprinter(cfg.FingerprintSalt), NewAuditEmitter(audit, time.Second), cfg),
		store:     store,
		registry:  registry,
		users:     users,
		audit:     audit,
		clock:     clock,
	}
}

func deviceMeta(name string) model.DeviceMeta {
	return model.DeviceMeta{
		UserAgent:      "Mozilla/5.0 (" + name + ") Chrome/92.0",
		AcceptLanguage: "en-US",
		AcceptEncoding: "gzip",
		IPAddress:      "203.0.113.7",
	}
}

func testIdentity(userID string) model.Identity {
	return model.Identity{UserID: userID, Email: userID + "@example.com", Role: "user", EmailVerified: true}
}

// ---- tests ----

func TestLoginValidateRoundTrip(t *testing.T) {
	fx := newFixture(t)
	meta := deviceMeta("device-a")

	result, err := fx.authority.Login(context.Background(), testIdentity("user-1"), meta, false)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("Login() returned empty tokens")
	}
	if result.User.Email != "u1@example.com" {
		t.Errorf("Login() user email = %q", result.User.Email)
	}

	view, err := fx.authority.Validate(context.Background(), result.AccessToken, meta)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if view.UserID != "user-1" {
		t.Errorf("Validate() userID = %q, want user-1", view.UserID)
	}
	if view.SessionID != result.Session.SessionID {
		t.Errorf("Validate() sessionID = %q, want %q", view.SessionID, result.Session.SessionID)
	}
	if !view.IsCurrentSession {
		t.Error("Validate() view not flagged as current session")
	}

	fx.audit.waitFor(t, model.AuditLoginSuccess)
}

func TestLoginUserNotFound(t *testing.T) {
	fx := newFixture(t)

	tests := []struct {
		name     string
		identity model.Identity
	}{
		{"missing user id", model.Identity{Email: "ghost@example.com"}},
		{"unknown user", testIdentity("user-404")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.authority.Login(context.Background(), tt.identity, deviceMeta("device-a"), false)
			if !errors.Is(err, ErrUserNotFound) {
				t.Errorf("Login() error = %v, want ErrUserNotFound", err)
			}
		})
	}

	event := fx.audit.waitFor(t, model.AuditLoginFailed)
	if event.NewValues["reason"] != "user_not_found" {
		t.Errorf("login_failed reason = %v, want user_not_found", event.NewValues["reason"])
	}
}

func TestSessionCapEviction(t *testing.T) {
	fx := newFixture(t)

	var firstAccess string
	for i, device := range []string{"a", "b", "c", "d"} {
		result, err := fx.authority.Login(context.Background(), testIdentity("user-1"), deviceMeta(device), false)
		if err != nil {
			t.Fatalf("Login() #%d error = %v", i+1, err)
		}
		if i == 0 {
			firstAccess = result.AccessToken
		}
		if i == 3 && result.Notice == "" {
			t.Error("4th login over the cap should carry an eviction notice")
		}
	}

	if got := fx.store.count("user-1"); got != 3 {
		t.Errorf("sessions after cap overflow = %d, want exactly 3", got)
	}

	// The evicted session was the least recently active, i.e. the first.
	_, err := fx.authority.Validate(context.Background(), firstAccess, deviceMeta("a"))
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Validate() of evicted session error = %v, want ErrSessionExpired", err)
	}

	fx.audit.waitFor(t, model.AuditSessionEvicted)
}

func TestRefreshRotation(t *testing.T) {
	fx := newFixture(t)
	meta := deviceMeta("device-a")

	login, err := fx.authority.Login(context.Background(), testIdentity("user-1"), meta, false)
	if err != nil {
		t.Fatal(err)
	}

	refreshed, err := fx.authority.Refresh(context.Background(), login.RefreshToken, meta)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.SessionID == login.Session.SessionID {
		t.Error("rotation must mint a new session id")
	}

	view, err := fx.authority.Validate(context.Background(), refreshed.AccessToken, meta)
	if err != nil {
		t.Fatalf("Validate() of rotated token error = %v", err)
	}
	if view.SessionID != refreshed.SessionID {
		t.Errorf("Validate() sessionID = %q, want %q", view.SessionID, refreshed.SessionID)
	}

	// The old refresh token's backing session is gone.
	_, err = fx.authority.Refresh(context.Background(), login.RefreshToken, meta)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Refresh() of rotated-away token error = %v, want ErrSessionExpired", err)
	}

	// And so is the old access token.
	_, err = fx.authority.Validate(context.Background(), login.AccessToken, meta)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Validate() of pre-rotation access token error = %v, want ErrSessionExpired", err)
	}

	fx.audit.waitFor(t, model.AuditTokenRefresh)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	fx := newFixture(t)
	meta := deviceMeta("device-a")

	login, err := fx.authority.Login(context.Background(), testIdentity("user-1"), meta, false)
	if err != nil {
		t.Fatal(err)
	}

	_, err = fx.authority.Refresh(context.Background(), login.AccessToken, meta)
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh(access token) error = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestDeviceMismatchInvalidates(t *testing.T) {
	for _, op := range []string{"validate", "refresh"} {
		t.Run(op, func(t *testing.T) {
			fx := newFixture(t)
			metaA := deviceMeta("device-a")
			metaB := deviceMeta("device-b")

			login, err := fx.authority.Login(context.Background(), testIdentity("user-1"), metaA, false)
			if err != nil {
				t.Fatal(err)
			}

			if op == "validate" {
				_, err = fx.authority.Validate(context.Background(), login.AccessToken, metaB)
			} else {
				_, err = fx.authority.Refresh(context.Background(), login.RefreshToken, metaB)
			}
			if !errors.Is(err, ErrDeviceMismatch) {
				t.Fatalf("%s with foreign device error = %v, want ErrDeviceMismatch", op, err)
			}

			// Hard invalidation: the session is gone even for the original device.
			_, err = fx.authority.Validate(context.Background(), login.AccessToken, metaA)
			if !errors.Is(err, ErrSessionExpired) {
				t.Errorf("Validate() after mismatch error = %v, want ErrSessionExpired", err)
			}

			fx.audit.waitFor(t, model.AuditDeviceMismatch)
		})
	}
}

func TestLogoutIdempotent(t *testing.T) {
	fx := newFixture(t)
	meta := deviceMeta("device-a")

	login, err := fx.authority.Login(context.Background(), testIdentity("user-1"), meta, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := fx.authority.Logout(context.Background(), login.AccessToken, meta); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	// The token is blacklisted for its remaining life.
	_, err = fx.authority.Validate(context.Background(), login.AccessToken, meta)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Validate() after logout error = %v, want ErrTokenRevoked", err)
	}

	// Logging out again is a no-op, not an error.
	if err := fx.authority.Logout(context.Background(), login.AccessToken, meta); err != nil {
		t.Errorf("second Logout() error = %v, want nil", err)
	}

	fx.audit.waitFor(t, model.AuditLogout)
}

func TestLogoutAll(t *testing.T) {
	fx := newFixture(t)

	var lastAccess string
	for _, device := range []string{"a", "b", "c"} {
		result, err := fx.authority.Login(context.Background(), testIdentity("user-1"), deviceMeta(device), false)
		if err != nil {
			t.Fatal(err)
		}
		lastAccess = result.AccessToken
	}

	count, err := fx.authority.LogoutAll(context.Background(), lastAccess, deviceMeta("c"))
	if err != nil {
		t.Fatalf("LogoutAll() error = %v", err)
	}
	if count != 3 {
		t.Errorf("LogoutAll() count = %d, want 3", count)
	}

	sessions, err := fx.authority.Sessions(context.Background(), lastAccess)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Sessions() after logout-all = %d entries, want 0", len(sessions))
	}

	event := fx.audit.waitFor(t, model.AuditLogoutAll)
	if event.NewValues["revoked_sessions"] != 3 {
		t.Errorf("logout_all revoked_sessions = %v, want 3", event.NewValues["revoked_sessions"])
	}
}

func TestShortSessionExpires(t *testing.T) {
	fx := newFixture(t)
	meta := deviceMeta("device-a")

	login, err := fx.authority.Login(context.Background(), testIdentity("user-1"), meta, false)
	if err != nil {
		t.Fatal(err)
	}

	// Still valid just inside the short TTL class.
	fx.clock.Advance(23 * time.Hour)
	if _, err := fx.authority.Validate(context.Background(), login.AccessToken, meta); err != nil {
		t.Fatalf("Validate() before TTL expiry error = %v", err)
	}

	fx.clock.Advance(2 * time.Hour)
	_, err = fx.authority.Validate(context.Background(), login.AccessToken, meta)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Validate() past short TTL error = %v, want ErrSessionExpired", err)
	}
}

func TestRememberMeGetsExtendedTTL(t *testing.T) {
	fx := newFixture(t)
	meta := deviceMeta("device-a")

	login, err := fx.authority.Login(context.Background(), testIdentity("user-1"), meta, true)
	if err != nil {
		t.Fatal(err)
	}

	// An extended session survives past the short class boundary.
	fx.clock.Advance(48 * time.Hour)
	if _, err := fx.authority.Validate(context.Background(), login.AccessToken, meta); err != nil {
		t.Fatalf("Validate() of remember-me session at 48h error = %v", err)
	}

	fx.clock.Advance(6 * 24 * time.Hour)
	_, err = fx.authority.Validate(context.Background(), login.AccessToken, meta)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Validate() past extended TTL error = %v, want ErrSessionExpired", err)
	}
}

func TestValidateFailsClosed(t *testing.T) {
	fx := newFixture(t)
	meta := deviceMeta("device-a")

	login, err := fx.authority.Login(context.Background(), testIdentity("user-1"), meta, false)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("session store down", func(t *testing.T) {
		fx.store.err = errors.New("connection refused")
		defer func() { fx.store.err = nil }()

		_, err := fx.authority.Validate(context.Background(), login.AccessToken, meta)
		if !errors.Is(err, ErrSessionExpired) {
			t.Errorf("Validate() with store down error = %v, want ErrSessionExpired (fail closed)", err)
		}
	})

	t.Run("blacklist down", func(t *testing.T) {
		fx.registry.err = errors.New("connection refused")
		defer func() { fx.registry.err = nil }()

		_, err := fx.authority.Validate(context.Background(), login.AccessToken, meta)
		if !errors.Is(err, ErrSessionExpired) {
			t.Errorf("Validate() with blacklist down error = %v, want ErrSessionExpired (fail closed)", err)
		}
	})
}

func TestLoginSurfacesStoreError(t *testing.T) {
	fx := newFixture(t)
	fx.store.err = errors.New("connection refused")

	_, err := fx.authority.Login(context.Background(), testIdentity("user-1"), deviceMeta("a"), false)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Login() with store down error = %v, want ErrStoreUnavailable", err)
	}
}

func TestRevokeSingleSession(t *testing.T) {
	fx := newFixture(t)

	first, err := fx.authority.Login(context.Background(), testIdentity("user-1"), deviceMeta("a"), false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := fx.authority.Login(context.Background(), testIdentity("user-1"), deviceMeta("b"), false)
	if err != nil {
		t.Fatal(err)
	}

	err = fx.authority.RevokeSession(context.Background(), second.AccessToken, first.Session.SessionID, deviceMeta("b"))
	if err != nil {
		t.Fatalf("RevokeSession() error = %v", err)
	}

	sessions, err := fx.authority.Sessions(context.Background(), second.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != second.Session.SessionID {
		t.Errorf("Sessions() after revoke = %+v, want only the second session", sessions)
	}

	// Revoking an already-gone session reports it as expired.
	err = fx.authority.RevokeSession(context.Background(), second.AccessToken, first.Session.SessionID, deviceMeta("b"))
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("RevokeSession() of absent session error = %v, want ErrSessionExpired", err)
	}
}

func TestSessionsFlagsCurrent(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.authority.Login(context.Background(), testIdentity("user-1"), deviceMeta("a"), false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := fx.authority.Login(context.Background(), testIdentity("user-1"), deviceMeta("b"), false)
	if err != nil {
		t.Fatal(err)
	}

	sessions, err := fx.authority.Sessions(context.Background(), second.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Sessions() = %d entries, want 2", len(sessions))
	}

	currents := 0
	for _, s := range sessions {
		if s.IsCurrentSession {
			currents++
			if s.SessionID != second.Session.SessionID {
				t.Errorf("wrong session flagged current: %q", s.SessionID)
			}
		}
	}
	if currents != 1 {
		t.Errorf("%d sessions flagged current, want exactly 1", currents)
	}
}

func TestDoubleRefreshRace(t *testing.T) {
	// Two sequential refreshes of the same token model the race's loser:
	// the compare-and-delete lets exactly one rotation through.
	fx := newFixture(t)
	meta := deviceMeta("device-a")

	login, err := fx.authority.Login(context.Background(), testIdentity("user-1"), meta, false)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fx.authority.Refresh(context.Background(), login.RefreshToken, meta); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	_, err = fx.authority.Refresh(context.Background(), login.RefreshToken, meta)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("second Refresh() error = %v, want ErrSessionExpired", err)
	}

	// Exactly one live session remains for the user.
	if got := fx.store.count("user-1"); got != 1 {
		t.Errorf("sessions after double refresh = %d, want 1", got)
	}
}
