package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"alumnihub.org/internal/auth"
	"alumnihub.org/internal/ids"
	"alumnihub.org/internal/portal"
)

const userColumns = `id, username, password_hash, first_name, middle_name, last_name,
	is_married, maiden_name, email, phone_number, batch, program, valid_id_path,
	is_approved, is_active, is_superuser, rejected_at, created_at, updated_at`

type userRow interface {
	Scan(dest ...any) error
}

func scanUser(row userRow) (*portal.User, error) {
	var (
		u          portal.User
		maiden     sql.NullString
		validID    sql.NullString
		rejectedAt sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.MiddleName, &u.LastName,
		&u.IsMarried, &maiden, &u.Email, &u.PhoneNumber, &u.Batch, &u.Program, &validID,
		&u.IsApproved, &u.IsActive, &u.IsSuperuser, &rejectedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, portal.ErrNotFound
		}
		return nil, err
	}
	u.MaidenName = maiden.String
	u.ValidIDPath = validID.String
	if rejectedAt.Valid {
		t := rejectedAt.Time
		u.RejectedAt = &t
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *portal.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, password_hash, first_name, middle_name, last_name,
			is_married, maiden_name, email, phone_number, batch, program, valid_id_path,
			is_approved, is_active, is_superuser)
		values ($1,$2,$3,$4,$5,$6,$7,nullif($8,''),$9,$10,$11,$12,nullif($13,''),$14,$15,$16)
		returning created_at, updated_at
	`, u.ID, u.Username, u.PasswordHash, u.FirstName, u.MiddleName, u.LastName,
		u.IsMarried, u.MaidenName, u.Email, u.PhoneNumber, u.Batch, u.Program, u.ValidIDPath,
		u.IsApproved, u.IsActive, u.IsSuperuser)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return portal.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*portal.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*portal.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username = $1`, username)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*portal.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email)
	return scanUser(row)
}

func (s *Store) ListActiveUsers(ctx context.Context) ([]*portal.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users
		 where is_active = true or is_approved = false
		 order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*portal.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd portal.UserUpdate) (*portal.User, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	addString := func(column string, value *string) {
		if value == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, *value)
		idx++
	}
	addBool := func(column string, value *bool) {
		if value == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, *value)
		idx++
	}
	addString("first_name", upd.FirstName)
	addString("middle_name", upd.MiddleName)
	addString("last_name", upd.LastName)
	addBool("is_married", upd.IsMarried)
	if upd.MaidenName != nil {
		sets = append(sets, fmt.Sprintf("maiden_name = nullif($%d,'')", idx))
		args = append(args, *upd.MaidenName)
		idx++
	}
	addString("email", upd.Email)
	addString("phone_number", upd.PhoneNumber)
	addString("batch", upd.Batch)
	addString("program", upd.Program)
	addBool("is_approved", upd.IsApproved)
	addBool("is_active", upd.IsActive)
	addBool("is_superuser", upd.IsSuperuser)

	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return nil, portal.ErrConflict
			}
			return nil, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if aff == 0 {
			return nil, portal.ErrNotFound
		}
	}
	return s.GetUser(ctx, id)
}

func (s *Store) SetUserApproval(ctx context.Context, id string, approved, active bool, rejectedAt *time.Time) (*portal.User, error) {
	res, err := s.db.ExecContext(ctx, `
		update users set is_approved = $1, is_active = $2, rejected_at = $3, updated_at = now()
		where id = $4
	`, approved, active, rejectedAt, id)
	if err != nil {
		return nil, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if aff == 0 {
		return nil, portal.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash = $1, updated_at = now() where id = $2`,
		passwordHash, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return portal.ErrNotFound
	}
	return nil
}

// Identity adapters ---------------------------------------------------------

func identityFromUser(u *portal.User) *auth.Identity {
	return &auth.Identity{
		ID:           u.ID,
		Username:     u.Username,
		Name:         u.FullName(),
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsSuperuser:  u.IsSuperuser,
		IsApproved:   u.IsApproved,
		IsActive:     u.IsActive,
	}
}

func (s *Store) IdentityByUsername(ctx context.Context, username string) (*auth.Identity, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapAuthErr(err)
	}
	return identityFromUser(u), nil
}

func (s *Store) IdentityByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, mapAuthErr(err)
	}
	return identityFromUser(u), nil
}

func (s *Store) IdentityByID(ctx context.Context, id string) (*auth.Identity, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, mapAuthErr(err)
	}
	return identityFromUser(u), nil
}

func (s *Store) SetIdentityPassword(ctx context.Context, id, passwordHash string) error {
	return mapAuthErr(s.UpdateUserPassword(ctx, id, passwordHash))
}

func mapAuthErr(err error) error {
	if errors.Is(err, portal.ErrNotFound) {
		return auth.ErrNotFound
	}
	return err
}
