package portal

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"alumnihub.org/internal/auth"
)

// Service implements the approval workflow on top of a Store. All state
// transitions are idempotent from the caller's perspective: repeating an
// approve or reject on an entity already in the target state succeeds.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("portal store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegistrationInput is the multipart registration form payload.
type RegistrationInput struct {
	Username     string
	Password     string
	FirstName    string
	MiddleName   string
	LastName     string
	IsMarried    bool
	MaidenName   string
	Email        string
	ConfirmEmail string
	PhoneNumber  string
	Batch        string
	Program      string
	ValidIDPath  string
}

// Register creates a pending account. Validation problems come back as
// FieldErrors so the transport can map them onto the form.
func (s *Service) Register(ctx context.Context, in RegistrationInput) (*User, error) {
	fields := FieldErrors{}

	required := map[string]string{
		"username":     in.Username,
		"first_name":   in.FirstName,
		"middle_name":  in.MiddleName,
		"last_name":    in.LastName,
		"email":        in.Email,
		"phone_number": in.PhoneNumber,
		"batch":        in.Batch,
		"program":      in.Program,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			fields[name] = "This field is required."
		}
	}
	if len(in.Password) < 8 {
		fields["password"] = "Password must be at least 8 characters long."
	}
	if fields["email"] == "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			fields["email"] = "Enter a valid email address."
		} else if !strings.EqualFold(strings.TrimSpace(in.Email), strings.TrimSpace(in.ConfirmEmail)) {
			fields["confirm_email"] = "Email addresses do not match."
		}
	}
	if fields["batch"] == "" && !slices.Contains(Batches, in.Batch) {
		fields["batch"] = "Select a valid batch."
	}
	if fields["program"] == "" && !slices.Contains(Programs, in.Program) {
		fields["program"] = "Select a valid program."
	}
	if len(fields) > 0 {
		return nil, fields
	}

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(strings.ToLower(in.Email))

	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		fields["username"] = "A user with that username already exists."
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		fields["email"] = "A user with that email already exists."
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if len(fields) > 0 {
		return nil, fields
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	maiden := strings.TrimSpace(in.MaidenName)
	if !in.IsMarried {
		maiden = ""
	}
	user := &User{
		Username:     username,
		FirstName:    strings.TrimSpace(in.FirstName),
		MiddleName:   strings.TrimSpace(in.MiddleName),
		LastName:     strings.TrimSpace(in.LastName),
		IsMarried:    in.IsMarried,
		MaidenName:   maiden,
		Email:        email,
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		Batch:        in.Batch,
		Program:      in.Program,
		ValidIDPath:  in.ValidIDPath,
		IsApproved:   false,
		IsActive:     false,
		IsSuperuser:  false,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser fetches a single account, soft-deleted ones included.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

// ListUsers returns all admin-visible accounts.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.ListActiveUsers(ctx)
}

// ApproveUser transitions a pending account to approved and restores its
// login capability.
func (s *Service) ApproveUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.SetUserApproval(ctx, id, true, true, nil)
}

// RejectUser reverts an account to the unapproved state and deactivates
// login. The rejection timestamp distinguishes a reverted account from one
// that was never reviewed.
func (s *Service) RejectUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	rejectedAt := s.now().UTC()
	return s.store.SetUserApproval(ctx, id, false, false, &rejectedAt)
}

// SoftDeleteUser removes the account from admin listings without deleting
// the row.
func (s *Service) SoftDeleteUser(ctx context.Context, id string) (*User, error) {
	inactive := false
	return s.UpdateUser(ctx, id, UserUpdate{IsActive: &inactive})
}

// UpdateUser applies a partial update. Unsupplied fields are untouched.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, FieldErrors{"email": "Enter a valid email address."}
		}
		upd.Email = &email
	}
	if upd.Batch != nil && !slices.Contains(Batches, *upd.Batch) {
		return nil, FieldErrors{"batch": "Select a valid batch."}
	}
	if upd.Program != nil && !slices.Contains(Programs, *upd.Program) {
		return nil, FieldErrors{"program": "Select a valid program."}
	}
	return s.store.UpdateUser(ctx, id, upd)
}

// EventInput is the event submission payload.
type EventInput struct {
	Name        string
	Description string
	Preview     string
	Venue       string
	Category    string
	StartsAt    time.Time
	EndsAt      *time.Time
	Cost        string
	ImagePath   string
	ActionLabel string
	ActionLink  string
}

// CreateEvent files a pending event on behalf of organizerID.
func (s *Service) CreateEvent(ctx context.Context, organizerID string, in EventInput) (*Event, error) {
	fields := FieldErrors{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "This field is required."
	}
	if strings.TrimSpace(in.Venue) == "" {
		fields["venue"] = "This field is required."
	}
	if strings.TrimSpace(in.Category) == "" {
		fields["category"] = "This field is required."
	}
	if in.StartsAt.IsZero() {
		fields["starts_at"] = "This field is required."
	}
	if in.EndsAt != nil && !in.EndsAt.After(in.StartsAt) {
		fields["ends_at"] = "End must be after start."
	}
	if len(fields) > 0 {
		return nil, fields
	}
	organizerID = strings.TrimSpace(organizerID)
	if organizerID == "" {
		return nil, fmt.Errorf("%w: organizer is required", ErrInvalidInput)
	}

	event := &Event{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Preview:     in.Preview,
		Venue:       strings.TrimSpace(in.Venue),
		Category:    strings.TrimSpace(in.Category),
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      in.EndsAt,
		Cost:        strings.TrimSpace(in.Cost),
		ImagePath:   in.ImagePath,
		ActionLabel: strings.TrimSpace(in.ActionLabel),
		ActionLink:  strings.TrimSpace(in.ActionLink),
		Status:      EventPending,
		OrganizerID: organizerID,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// GetEvent fetches a single event.
func (s *Service) GetEvent(ctx context.Context, id string) (*Event, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	return s.store.GetEvent(ctx, id)
}

// ListEventsFor returns the events visible to the viewer. Admins see
// everything; members see approved events plus their own submissions.
func (s *Service) ListEventsFor(ctx context.Context, viewerID string, isAdmin bool) ([]*Event, error) {
	if isAdmin {
		return s.store.ListEvents(ctx)
	}
	return s.store.ListVisibleEvents(ctx, viewerID)
}

// ApproveEvent publishes an event.
func (s *Service) ApproveEvent(ctx context.Context, id string) (*Event, error) {
	return s.setEventStatus(ctx, id, EventApproved)
}

// RejectEvent un-publishes an event into the rejected terminal state.
func (s *Service) RejectEvent(ctx context.Context, id string) (*Event, error) {
	return s.setEventStatus(ctx, id, EventRejected)
}

func (s *Service) setEventStatus(ctx context.Context, id string, status EventStatus) (*Event, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	return s.store.SetEventStatus(ctx, id, status)
}

// UpdateEvent applies a partial update. The actor must be an admin or the
// organizer. Status is never touched here.
func (s *Service) UpdateEvent(ctx context.Context, id, actorID string, isAdmin bool, upd EventUpdate) (*Event, error) {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && event.OrganizerID != actorID {
		return nil, auth.ErrUnauthorized
	}
	if upd.EndsAt != nil {
		start := event.StartsAt
		if upd.StartsAt != nil {
			start = *upd.StartsAt
		}
		if !upd.EndsAt.After(start) {
			return nil, FieldErrors{"ends_at": "End must be after start."}
		}
	}
	return s.store.UpdateEvent(ctx, id, upd)
}

// DeleteEvent removes an event permanently. The actor must be an admin or
// the organizer.
func (s *Service) DeleteEvent(ctx context.Context, id, actorID string, isAdmin bool) error {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if !isAdmin && event.OrganizerID != actorID {
		return auth.ErrUnauthorized
	}
	return s.store.DeleteEvent(ctx, id)
}
