package pg

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jackc/pgx/v5/pgconn"

	"alumnihub.org/internal/auth"
	"alumnihub.org/internal/portal"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements both the portal and auth persistence contracts on
// PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ portal.Store = (*Store)(nil)
	_ auth.Store   = (*Store)(nil)
)

// Open connects to PostgreSQL with pool defaults tuned for the API server.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for readiness probes.
func (s *Store) DB() *sql.DB { return s.db }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
