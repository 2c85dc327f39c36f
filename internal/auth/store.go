package auth

import (
	"context"
	"time"
)

// Identity is the minimal account view the token service needs. The portal
// domain owns the full user record; the Postgres store maps between the two.
type Identity struct {
	ID           string
	Username     string
	Name         string
	Email        string
	PasswordHash string
	IsSuperuser  bool
	IsApproved   bool
	IsActive     bool
}

// RefreshToken represents a persisted refresh token. Only the sha256 hash of
// the secret half is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// PasswordReset is a single-use OTP issued for an email address.
type PasswordReset struct {
	ID        string
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	CreatedAt time.Time
	Consumed  bool
}

// IdentityStore resolves accounts for authentication.
type IdentityStore interface {
	IdentityByUsername(ctx context.Context, username string) (*Identity, error)
	IdentityByEmail(ctx context.Context, email string) (*Identity, error)
	IdentityByID(ctx context.Context, id string) (*Identity, error)
	SetIdentityPassword(ctx context.Context, id, passwordHash string) error
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, tok *RefreshToken) error
	FindRefreshToken(ctx context.Context, id string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// PasswordResetStore manages OTP lifecycle.
type PasswordResetStore interface {
	CreatePasswordReset(ctx context.Context, reset *PasswordReset) error
	// ConsumePasswordReset atomically consumes a live, unexpired reset
	// matching email and codeHash. Returns ErrInvalidOTP when none exists.
	ConsumePasswordReset(ctx context.Context, email, codeHash string, now time.Time) error
}

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	IdentityStore
	RefreshTokenStore
	PasswordResetStore
}
