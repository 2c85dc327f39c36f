package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeStore struct {
	identities map[string]*Identity
	tokens     map[string]*RefreshToken
	resets     map[string]*PasswordReset
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities: make(map[string]*Identity),
		tokens:     make(map[string]*RefreshToken),
		resets:     make(map[string]*PasswordReset),
	}
}

func (f *fakeStore) IdentityByUsername(_ context.Context, username string) (*Identity, error) {
	for _, id := range f.identities {
		if id.Username == username {
			cp := *id
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) IdentityByEmail(_ context.Context, email string) (*Identity, error) {
	for _, id := range f.identities {
		if strings.EqualFold(id.Email, email) {
			cp := *id
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) IdentityByID(_ context.Context, id string) (*Identity, error) {
	identity, ok := f.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (f *fakeStore) SetIdentityPassword(_ context.Context, id, hash string) error {
	identity, ok := f.identities[id]
	if !ok {
		return ErrNotFound
	}
	identity.PasswordHash = hash
	return nil
}

func (f *fakeStore) CreateRefreshToken(_ context.Context, tok *RefreshToken) error {
	cp := *tok
	f.tokens[tok.ID] = &cp
	return nil
}

func (f *fakeStore) FindRefreshToken(_ context.Context, id string) (*RefreshToken, error) {
	tok, ok := f.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (f *fakeStore) RevokeRefreshToken(_ context.Context, id string) error {
	if tok, ok := f.tokens[id]; ok {
		tok.Revoked = true
	}
	return nil
}

func (f *fakeStore) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	for _, tok := range f.tokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, reset *PasswordReset) error {
	cp := *reset
	f.resets[reset.ID] = &cp
	return nil
}

func (f *fakeStore) ConsumePasswordReset(_ context.Context, email, codeHash string, now time.Time) error {
	for _, reset := range f.resets {
		if reset.Email == email && reset.CodeHash == codeHash &&
			!reset.Consumed && reset.ExpiresAt.After(now) {
			reset.Consumed = true
			return nil
		}
	}
	return ErrInvalidOTP
}

const testPassword = "correct horse battery"

func seedIdentity(t *testing.T, store *fakeStore, username string, approved, active, super bool) *Identity {
	t.Helper()
	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	identity := &Identity{
		ID:           "user-" + username,
		Username:     username,
		Name:         "Test " + username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsSuperuser:  super,
		IsApproved:   approved,
		IsActive:     active,
	}
	store.identities[identity.ID] = identity
	return identity
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T, store *fakeStore) (*Service, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(store, "test-secret", WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, clock
}

func TestIssueTokenPairRejectsNonLoginableAccounts(t *testing.T) {
	store := newFakeStore()
	seedIdentity(t, store, "pending", false, false, false)
	seedIdentity(t, store, "deactivated", true, false, false)
	seedIdentity(t, store, "member", true, true, false)
	svc, _ := newTestService(t, store)

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"pending account", "pending", testPassword},
		{"deactivated account", "deactivated", testPassword},
		{"wrong password", "member", "not the password"},
		{"unknown user", "ghost", testPassword},
		{"empty credentials", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.IssueTokenPair(context.Background(), tc.username, tc.password)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestIssueTokenPairAndAuthenticate(t *testing.T) {
	store := newFakeStore()
	admin := seedIdentity(t, store, "admin", true, true, true)
	svc, clock := newTestService(t, store)

	pair, identity, err := svc.IssueTokenPair(context.Background(), "admin", testPassword)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if identity.ID != admin.ID {
		t.Fatalf("unexpected identity %q", identity.ID)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if got, want := pair.AccessExpiresAt, clock.Now().Add(15*time.Minute); !got.Equal(want) {
		t.Fatalf("access expiry = %v, want %v", got, want)
	}

	principal, err := svc.AuthenticateToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.UserID != admin.ID || !principal.IsAdmin {
		t.Fatalf("unexpected principal %+v", principal)
	}
}

func TestAuthenticateTokenExpires(t *testing.T) {
	store := newFakeStore()
	seedIdentity(t, store, "member", true, true, false)
	svc, clock := newTestService(t, store)

	pair, _, err := svc.IssueTokenPair(context.Background(), "member", testPassword)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	clock.Advance(16 * time.Minute)
	if _, err := svc.AuthenticateToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestAuthenticateTokenRechecksAccount(t *testing.T) {
	store := newFakeStore()
	member := seedIdentity(t, store, "member", true, true, false)
	svc, _ := newTestService(t, store)

	pair, _, err := svc.IssueTokenPair(context.Background(), "member", testPassword)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	// Soft delete: the live token must stop working immediately.
	store.identities[member.ID].IsActive = false
	if _, err := svc.AuthenticateToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for deactivated account, got %v", err)
	}
}

func TestRefreshRotationRevokesOldToken(t *testing.T) {
	store := newFakeStore()
	seedIdentity(t, store, "member", true, true, false)
	svc, _ := newTestService(t, store)

	pair, _, err := svc.IssueTokenPair(context.Background(), "member", testPassword)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	rotated, _, err := svc.RefreshTokenPair(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	if _, _, err := svc.RefreshTokenPair(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected old refresh token to be dead, got %v", err)
	}
	if _, _, err := svc.RefreshTokenPair(context.Background(), rotated.RefreshToken); err != nil {
		t.Fatalf("expected rotated token to work, got %v", err)
	}
}

func TestRefreshExpiresWithTTL(t *testing.T) {
	store := newFakeStore()
	seedIdentity(t, store, "member", true, true, false)
	svc, clock := newTestService(t, store)

	pair, _, err := svc.IssueTokenPair(context.Background(), "member", testPassword)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	clock.Advance(14*24*time.Hour + time.Minute)
	if _, _, err := svc.RefreshTokenPair(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired refresh token, got %v", err)
	}
}

func TestRefreshHashMismatchRevokesRecord(t *testing.T) {
	store := newFakeStore()
	seedIdentity(t, store, "member", true, true, false)
	svc, _ := newTestService(t, store)

	pair, _, err := svc.IssueTokenPair(context.Background(), "member", testPassword)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	id, _, err := splitRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("split token: %v", err)
	}

	if _, _, err := svc.RefreshTokenPair(context.Background(), id+".forged-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for forged secret, got %v", err)
	}
	// A secret mismatch burns the record; even the real token is now dead.
	if _, _, err := svc.RefreshTokenPair(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked record, got %v", err)
	}
}

func TestLogoutRevokesAllSessions(t *testing.T) {
	store := newFakeStore()
	member := seedIdentity(t, store, "member", true, true, false)
	svc, _ := newTestService(t, store)

	first, _, err := svc.IssueTokenPair(context.Background(), "member", testPassword)
	if err != nil {
		t.Fatalf("issue first pair: %v", err)
	}
	second, _, err := svc.IssueTokenPair(context.Background(), "member", testPassword)
	if err != nil {
		t.Fatalf("issue second pair: %v", err)
	}

	if err := svc.Logout(context.Background(), member.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	for _, refresh := range []string{first.RefreshToken, second.RefreshToken} {
		if _, _, err := svc.RefreshTokenPair(context.Background(), refresh); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected revoked session, got %v", err)
		}
	}
}

func TestPasswordResetFlow(t *testing.T) {
	store := newFakeStore()
	member := seedIdentity(t, store, "member", true, true, false)
	svc, _ := newTestService(t, store)

	pair, _, err := svc.IssueTokenPair(context.Background(), "member", testPassword)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	code, identity, err := svc.StartPasswordReset(context.Background(), member.Email)
	if err != nil {
		t.Fatalf("start reset: %v", err)
	}
	if identity.ID != member.ID {
		t.Fatalf("unexpected identity %q", identity.ID)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	if err := svc.ConfirmPasswordReset(context.Background(), member.Email, "000000", "brand new password"); !errors.Is(err, ErrInvalidOTP) {
		if code == "000000" {
			t.Skip("collided with the generated code")
		}
		t.Fatalf("expected ErrInvalidOTP for wrong code, got %v", err)
	}

	if err := svc.ConfirmPasswordReset(context.Background(), member.Email, code, "brand new password"); err != nil {
		t.Fatalf("confirm reset: %v", err)
	}

	// OTP is single use.
	if err := svc.ConfirmPasswordReset(context.Background(), member.Email, code, "another password"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected consumed OTP to fail, got %v", err)
	}

	// Existing sessions are revoked and the old password no longer works.
	if _, _, err := svc.RefreshTokenPair(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked session after reset, got %v", err)
	}
	if _, _, err := svc.IssueTokenPair(context.Background(), "member", testPassword); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected old password to fail, got %v", err)
	}
	if _, _, err := svc.IssueTokenPair(context.Background(), "member", "brand new password"); err != nil {
		t.Fatalf("expected new password to work, got %v", err)
	}
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)
	if _, _, err := svc.StartPasswordReset(context.Background(), "ghost@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPasswordResetExpires(t *testing.T) {
	store := newFakeStore()
	member := seedIdentity(t, store, "member", true, true, false)
	svc, clock := newTestService(t, store)

	code, _, err := svc.StartPasswordReset(context.Background(), member.Email)
	if err != nil {
		t.Fatalf("start reset: %v", err)
	}

	clock.Advance(11 * time.Minute)
	if err := svc.ConfirmPasswordReset(context.Background(), member.Email, code, "brand new password"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected expired OTP, got %v", err)
	}
}
