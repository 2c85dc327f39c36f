package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const defaultHistoryTable = "schema_history"

const (
	kindMigration = "migration"
	kindSeed      = "seed"
)

// Manager executes SQL migrations and seed files stored on disk. Applied
// files are recorded in a single bookkeeping table keyed by file name and
// kind, so both sets stay idempotent.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
	historyTable  string
}

// Option configures Manager.
type Option func(*Manager)

// WithHistoryTable overrides the default bookkeeping table.
func WithHistoryTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.historyTable = name
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, migrationsDir, seedsDir string, opts ...Option) *Manager {
	m := &Manager{
		db:            db,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
		historyTable:  defaultHistoryTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations in file-name order.
func (m *Manager) Up(ctx context.Context) error {
	return m.apply(ctx, kindMigration, m.migrationsDir, ".up.sql")
}

// Seed applies seed files idempotently.
func (m *Manager) Seed(ctx context.Context) error {
	return m.apply(ctx, kindSeed, m.seedsDir, ".sql")
}

// Down rolls back the most recently applied migration.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	history, err := m.history(ctx, kindMigration)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	downPath := strings.TrimSuffix(filepath.Join(m.migrationsDir, last), ".up.sql") + ".down.sql"
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.execFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	_, err = m.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1 and kind = $2`, m.historyTable),
		last, kindMigration)
	return err
}

// Status returns applied migrations in application order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	return m.history(ctx, kindMigration)
}

func (m *Manager) apply(ctx context.Context, kind, dir, suffix string) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx, kind)
	if err != nil {
		return err
	}
	files, err := collectSQL(dir, suffix)
	if err != nil {
		return err
	}
	for _, file := range files {
		if applied[file.Base] {
			continue
		}
		if err := m.execFile(ctx, file.Path); err != nil {
			return fmt.Errorf("apply %s %s: %w", kind, file.Base, err)
		}
		if _, err := m.db.ExecContext(ctx,
			fmt.Sprintf(`insert into %s(name, kind, applied_at) values ($1, $2, $3)`, m.historyTable),
			file.Base, kind, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		create table if not exists %s (
			name text not null,
			kind text not null,
			applied_at timestamptz not null default now(),
			primary key (name, kind)
		);`, m.historyTable)
	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

// execFile runs every statement of the file inside one transaction.
func (m *Manager) execFile(ctx context.Context, path string) error {
	sqlBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(sqlBytes)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) applied(ctx context.Context, kind string) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s where kind = $1`, m.historyTable), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result[name] = true
	}
	return result, rows.Err()
}

func (m *Manager) history(ctx context.Context, kind string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s where kind = $1 order by applied_at asc`, m.historyTable), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

type sqlFile struct {
	Base string
	Path string
}

func collectSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), suffix) {
			files = append(files, sqlFile{Base: d.Name(), Path: path})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Base < files[j].Base
	})
	return files, nil
}

// splitStatements naively splits SQL by semicolon, respecting single-quoted
// string literals.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	inString := false
	for _, r := range sql {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
