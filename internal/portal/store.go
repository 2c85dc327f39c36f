package portal

import (
	"context"
	"time"
)

// Store describes the persistence operations required by the portal domain.
// The Postgres implementation lives in internal/store/pg.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// ListActiveUsers returns active accounts plus unapproved ones, rejected
	// included so admins can re-approve them. Only soft-deleted rows
	// (is_active=false with is_approved=true) drop out of the listing.
	ListActiveUsers(ctx context.Context) ([]*User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error)
	// SetUserApproval flips the approval pair atomically and stamps or
	// clears rejected_at.
	SetUserApproval(ctx context.Context, id string, approved, active bool, rejectedAt *time.Time) (*User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error

	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEvents(ctx context.Context) ([]*Event, error)
	// ListVisibleEvents returns approved events plus the viewer's own
	// submissions in any state.
	ListVisibleEvents(ctx context.Context, viewerID string) ([]*Event, error)
	UpdateEvent(ctx context.Context, id string, upd EventUpdate) (*Event, error)
	SetEventStatus(ctx context.Context, id string, status EventStatus) (*Event, error)
	DeleteEvent(ctx context.Context, id string) error
}
