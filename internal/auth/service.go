package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"alumnihub.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 14
	defaultOTPTTL     = 10 * time.Minute

	otpDigits = 6
)

// Service issues, refreshes and verifies session credentials.
type Service struct {
	store Store
	now   func() time.Time

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	otpTTL     time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithOTPTTL configures password reset code lifetime.
func WithOTPTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.otpTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service. The signing secret is required.
func NewService(store Store, secret string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth secret is required")
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		otpTTL:     defaultOTPTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// IssueTokenPair authenticates user credentials and issues fresh tokens.
// Pending and deactivated accounts fail with ErrUnauthorized; the caller
// must not be able to distinguish them from a wrong password.
func (s *Service) IssueTokenPair(ctx context.Context, username, password string) (TokenPair, *Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return TokenPair{}, nil, ErrUnauthorized
	}
	identity, err := s.store.IdentityByUsername(ctx, username)
	if err != nil {
		return TokenPair{}, nil, ErrUnauthorized
	}
	if !identity.IsApproved || !identity.IsActive {
		return TokenPair{}, nil, ErrUnauthorized
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrUnauthorized
	}
	pair, err := s.mintTokens(ctx, identity)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, identity, nil
}

// RefreshTokenPair rotates the refresh token and issues new access
// credentials. The presented token is revoked whether or not rotation
// succeeds past the lookup.
func (s *Service) RefreshTokenPair(ctx context.Context, refreshToken string) (TokenPair, *Identity, error) {
	tokenID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}

	record, err := s.store.FindRefreshToken(ctx, tokenID)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if !secureCompareHash(record.TokenHash, secret) {
		_ = s.store.RevokeRefreshToken(ctx, record.ID)
		return TokenPair{}, nil, ErrInvalidToken
	}

	identity, err := s.store.IdentityByID(ctx, record.UserID)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if !identity.IsApproved || !identity.IsActive {
		_ = s.store.RevokeRefreshToken(ctx, record.ID)
		return TokenPair{}, nil, ErrInvalidToken
	}

	// Rotate: revoke old, issue new pair.
	if err := s.store.RevokeRefreshToken(ctx, record.ID); err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := s.mintTokens(ctx, identity)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, identity, nil
}

// AuthenticateToken validates an access token and returns the principal.
// The account row stays authoritative: a token outlives neither a reject
// nor a soft delete.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (Principal, error) {
	claims, err := parseAccessToken(s.secret, s.issuer, token, s.now)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	identity, err := s.store.IdentityByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	if !identity.IsApproved || !identity.IsActive {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		UserID:   identity.ID,
		Username: identity.Username,
		IsAdmin:  identity.IsSuperuser,
	}, nil
}

// Logout revokes every refresh token belonging to the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidInput
	}
	return s.store.RevokeUserRefreshTokens(ctx, userID)
}

// StartPasswordReset issues a one-time code for the account behind email.
// The plaintext code is returned for delivery and never stored.
func (s *Service) StartPasswordReset(ctx context.Context, email string) (string, *Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", nil, ErrInvalidInput
	}
	identity, err := s.store.IdentityByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	code, err := generateOTP()
	if err != nil {
		return "", nil, err
	}
	reset := &PasswordReset{
		ID:        ids.New(),
		Email:     email,
		CodeHash:  hashOTP(code),
		ExpiresAt: s.now().Add(s.otpTTL),
	}
	if err := s.store.CreatePasswordReset(ctx, reset); err != nil {
		return "", nil, err
	}
	return code, identity, nil
}

// ConfirmPasswordReset consumes the OTP and replaces the account password.
// All existing sessions of the account are invalidated.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return ErrInvalidOTP
	}
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters long", ErrInvalidInput)
	}
	if err := s.store.ConsumePasswordReset(ctx, email, hashOTP(code), s.now()); err != nil {
		return err
	}
	identity, err := s.store.IdentityByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.SetIdentityPassword(ctx, identity.ID, hash); err != nil {
		return err
	}
	return s.store.RevokeUserRefreshTokens(ctx, identity.ID)
}

func (s *Service) mintTokens(ctx context.Context, identity *Identity) (TokenPair, error) {
	now := s.now()
	accessToken, accessExp, err := signAccessToken(s.secret, s.issuer, identity.ID, identity.Name, identity.IsSuperuser, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refreshTokenString, refreshRec, err := s.generateRefreshToken(identity.ID, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.CreateRefreshToken(ctx, refreshRec); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshTokenString,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshRec.ExpiresAt,
	}, nil
}

func (s *Service) generateRefreshToken(userID string, now time.Time) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(secret))
	rec := &RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(s.refreshTTL),
	}
	return tokenID + "." + secret, rec, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}

func generateOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}

func hashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
