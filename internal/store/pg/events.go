package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"alumnihub.org/internal/ids"
	"alumnihub.org/internal/portal"
)

const eventColumns = `id, name, description, preview, venue, category, starts_at, ends_at,
	cost, image_path, action_label, action_link, status, organizer_id, created_at, updated_at`

func scanEvent(row userRow) (*portal.Event, error) {
	var (
		e      portal.Event
		endsAt sql.NullTime
		status string
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.Preview, &e.Venue, &e.Category, &e.StartsAt, &endsAt,
		&e.Cost, &e.ImagePath, &e.ActionLabel, &e.ActionLink, &status, &e.OrganizerID,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, portal.ErrNotFound
		}
		return nil, err
	}
	if endsAt.Valid {
		t := endsAt.Time
		e.EndsAt = &t
	}
	e.Status = portal.EventStatus(status)
	e.IsApproved = e.Status == portal.EventApproved
	return &e, nil
}

func (s *Store) CreateEvent(ctx context.Context, e *portal.Event) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.Status == "" {
		e.Status = portal.EventPending
	}
	row := s.db.QueryRowContext(ctx, `
		insert into events (id, name, description, preview, venue, category, starts_at, ends_at,
			cost, image_path, action_label, action_link, status, organizer_id)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		returning created_at, updated_at
	`, e.ID, e.Name, e.Description, e.Preview, e.Venue, e.Category, e.StartsAt, e.EndsAt,
		e.Cost, e.ImagePath, e.ActionLabel, e.ActionLink, string(e.Status), e.OrganizerID)
	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return portal.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*portal.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+eventColumns+` from events where id = $1`, id)
	return scanEvent(row)
}

func (s *Store) ListEvents(ctx context.Context) ([]*portal.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+eventColumns+` from events order by starts_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *Store) ListVisibleEvents(ctx context.Context, viewerID string) ([]*portal.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+eventColumns+` from events
		 where status = 'approved' or organizer_id = $1
		 order by starts_at`, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*portal.Event, error) {
	var events []*portal.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) UpdateEvent(ctx context.Context, id string, upd portal.EventUpdate) (*portal.Event, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Preview != nil {
		add("preview", *upd.Preview)
	}
	if upd.Venue != nil {
		add("venue", *upd.Venue)
	}
	if upd.Category != nil {
		add("category", *upd.Category)
	}
	if upd.StartsAt != nil {
		add("starts_at", *upd.StartsAt)
	}
	if upd.EndsAt != nil {
		add("ends_at", *upd.EndsAt)
	}
	if upd.Cost != nil {
		add("cost", *upd.Cost)
	}
	if upd.ImagePath != nil {
		add("image_path", *upd.ImagePath)
	}
	if upd.ActionLabel != nil {
		add("action_label", *upd.ActionLabel)
	}
	if upd.ActionLink != nil {
		add("action_link", *upd.ActionLink)
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update events set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
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
	}
	return s.GetEvent(ctx, id)
}

func (s *Store) SetEventStatus(ctx context.Context, id string, status portal.EventStatus) (*portal.Event, error) {
	res, err := s.db.ExecContext(ctx,
		`update events set status = $1, updated_at = now() where id = $2`,
		string(status), id)
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
	return s.GetEvent(ctx, id)
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from events where id = $1`, id)
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
