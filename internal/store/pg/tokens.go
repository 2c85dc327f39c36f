package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"alumnihub.org/internal/auth"
	"alumnihub.org/internal/ids"
)

func (s *Store) CreateRefreshToken(ctx context.Context, tok *auth.RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, expires_at, revoked)
		values ($1,$2,$3,$4,$5)
		returning created_at
	`, tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.Revoked)
	if err := row.Scan(&tok.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) FindRefreshToken(ctx context.Context, id string) (*auth.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, expires_at, created_at, revoked
		from refresh_tokens where id = $1
	`, id)
	var tok auth.RefreshToken
	if err := row.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true where id = $1`, id)
	return err
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true where user_id = $1 and revoked = false`, userID)
	return err
}

func (s *Store) CreatePasswordReset(ctx context.Context, reset *auth.PasswordReset) error {
	if reset.ID == "" {
		reset.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into password_resets (id, email, code_hash, expires_at, consumed)
		values ($1,$2,$3,$4,false)
		returning created_at
	`, reset.ID, reset.Email, reset.CodeHash, reset.ExpiresAt)
	return row.Scan(&reset.CreatedAt)
}

func (s *Store) ConsumePasswordReset(ctx context.Context, email, codeHash string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update password_resets set consumed = true
		where email = $1 and code_hash = $2 and consumed = false and expires_at > $3
	`, email, codeHash, now)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrInvalidOTP
	}
	return nil
}
