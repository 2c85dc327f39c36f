package portal

import (
	"strings"
	"time"
)

// EventStatus is the approval state of an event. A rejected event stays
// rejected until an admin approves it again; it is not collapsed back into
// pending.
type EventStatus string

const (
	EventPending  EventStatus = "pending"
	EventApproved EventStatus = "approved"
	EventRejected EventStatus = "rejected"
)

// Batches and Programs are the registration catalogs carried over from the
// alumni office's intake form.
var (
	Batches  = []string{"2020", "2021", "2022", "2023", "2024", "2025"}
	Programs = []string{"CS", "IT", "IS", "CE"}
)

// User is an alumni account. Approval is admin-gated: a freshly registered
// user has IsApproved=false and IsActive=false and cannot authenticate.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	FirstName    string     `json:"first_name"`
	MiddleName   string     `json:"middle_name"`
	LastName     string     `json:"last_name"`
	IsMarried    bool       `json:"is_married"`
	MaidenName   string     `json:"maiden_name,omitempty"`
	Email        string     `json:"email"`
	PhoneNumber  string     `json:"phone_number"`
	Batch        string     `json:"batch"`
	Program      string     `json:"program"`
	ValidIDPath  string     `json:"valid_id,omitempty"`
	IsApproved   bool       `json:"is_approved"`
	IsActive     bool       `json:"is_active"`
	IsSuperuser  bool       `json:"is_superuser"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	PasswordHash string     `json:"-"`
}

// FullName returns the display name embedded into access tokens.
func (u *User) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{u.FirstName, u.MiddleName, u.LastName} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, " ")
}

// Event is a portal event. Only approved events are visible to regular
// members; organizers additionally see their own submissions.
type Event struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Preview     string      `json:"preview,omitempty"`
	Venue       string      `json:"venue"`
	Category    string      `json:"category"`
	StartsAt    time.Time   `json:"starts_at"`
	EndsAt      *time.Time  `json:"ends_at,omitempty"`
	Cost        string      `json:"cost,omitempty"`
	ImagePath   string      `json:"image,omitempty"`
	ActionLabel string      `json:"action_label,omitempty"`
	ActionLink  string      `json:"action_link,omitempty"`
	Status      EventStatus `json:"status"`
	IsApproved  bool        `json:"is_approved"`
	OrganizerID string      `json:"organizer"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// UserUpdate carries patch semantics: only non-nil fields mutate, so a
// partial edit can never silently flip approval or role flags.
type UserUpdate struct {
	FirstName   *string
	MiddleName  *string
	LastName    *string
	IsMarried   *bool
	MaidenName  *string
	Email       *string
	PhoneNumber *string
	Batch       *string
	Program     *string
	IsApproved  *bool
	IsActive    *bool
	IsSuperuser *bool
}

// EventUpdate mirrors UserUpdate for events. Status changes go through the
// approve/reject transitions, never through a patch.
type EventUpdate struct {
	Name        *string
	Description *string
	Preview     *string
	Venue       *string
	Category    *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Cost        *string
	ImagePath   *string
	ActionLabel *string
	ActionLink  *string
}
