// Package mem is an in-memory store used by tests and local experiments.
// It implements the same contracts as the Postgres store.
package mem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"alumnihub.org/internal/auth"
	"alumnihub.org/internal/ids"
	"alumnihub.org/internal/portal"
)

// Store keeps everything in maps behind one mutex.
type Store struct {
	mu     sync.Mutex
	users  map[string]*portal.User
	events map[string]*portal.Event
	tokens map[string]*auth.RefreshToken
	resets map[string]*auth.PasswordReset
	now    func() time.Time
}

var (
	_ portal.Store = (*Store)(nil)
	_ auth.Store   = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		users:  make(map[string]*portal.User),
		events: make(map[string]*portal.Event),
		tokens: make(map[string]*auth.RefreshToken),
		resets: make(map[string]*auth.PasswordReset),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, u *portal.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return portal.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*portal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userLocked(id)
}

func (s *Store) userLocked(id string) (*portal.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, portal.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*portal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, portal.ErrNotFound
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*portal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, portal.ErrNotFound
}

func (s *Store) ListActiveUsers(_ context.Context) ([]*portal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*portal.User
	for _, u := range s.users {
		if u.IsActive || !u.IsApproved {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, id string, upd portal.UserUpdate) (*portal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, portal.ErrNotFound
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.MiddleName != nil {
		u.MiddleName = *upd.MiddleName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.IsMarried != nil {
		u.IsMarried = *upd.IsMarried
	}
	if upd.MaidenName != nil {
		u.MaidenName = *upd.MaidenName
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.PhoneNumber != nil {
		u.PhoneNumber = *upd.PhoneNumber
	}
	if upd.Batch != nil {
		u.Batch = *upd.Batch
	}
	if upd.Program != nil {
		u.Program = *upd.Program
	}
	if upd.IsApproved != nil {
		u.IsApproved = *upd.IsApproved
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	if upd.IsSuperuser != nil {
		u.IsSuperuser = *upd.IsSuperuser
	}
	u.UpdatedAt = s.now()
	cp := *u
	return &cp, nil
}

func (s *Store) SetUserApproval(_ context.Context, id string, approved, active bool, rejectedAt *time.Time) (*portal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, portal.ErrNotFound
	}
	u.IsApproved = approved
	u.IsActive = active
	u.RejectedAt = rejectedAt
	u.UpdatedAt = s.now()
	cp := *u
	return &cp, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return portal.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now()
	return nil
}

// --- events ---

func (s *Store) CreateEvent(_ context.Context, e *portal.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[e.OrganizerID]; !ok {
		return portal.ErrNotFound
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.Status == "" {
		e.Status = portal.EventPending
	}
	now := s.now()
	e.CreatedAt = now
	e.UpdatedAt = now
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*portal.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, portal.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) ListEvents(_ context.Context) ([]*portal.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(func(*portal.Event) bool { return true }), nil
}

func (s *Store) ListVisibleEvents(_ context.Context, viewerID string) ([]*portal.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(func(e *portal.Event) bool {
		return e.Status == portal.EventApproved || e.OrganizerID == viewerID
	}), nil
}

func (s *Store) collectLocked(keep func(*portal.Event) bool) []*portal.Event {
	var out []*portal.Event
	for _, e := range s.events {
		if keep(e) {
			cp := *e
			cp.IsApproved = cp.Status == portal.EventApproved
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}

func (s *Store) UpdateEvent(_ context.Context, id string, upd portal.EventUpdate) (*portal.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, portal.ErrNotFound
	}
	if upd.Name != nil {
		e.Name = *upd.Name
	}
	if upd.Description != nil {
		e.Description = *upd.Description
	}
	if upd.Preview != nil {
		e.Preview = *upd.Preview
	}
	if upd.Venue != nil {
		e.Venue = *upd.Venue
	}
	if upd.Category != nil {
		e.Category = *upd.Category
	}
	if upd.StartsAt != nil {
		e.StartsAt = *upd.StartsAt
	}
	if upd.EndsAt != nil {
		e.EndsAt = upd.EndsAt
	}
	if upd.Cost != nil {
		e.Cost = *upd.Cost
	}
	if upd.ImagePath != nil {
		e.ImagePath = *upd.ImagePath
	}
	if upd.ActionLabel != nil {
		e.ActionLabel = *upd.ActionLabel
	}
	if upd.ActionLink != nil {
		e.ActionLink = *upd.ActionLink
	}
	e.UpdatedAt = s.now()
	cp := *e
	cp.IsApproved = cp.Status == portal.EventApproved
	return &cp, nil
}

func (s *Store) SetEventStatus(_ context.Context, id string, status portal.EventStatus) (*portal.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, portal.ErrNotFound
	}
	e.Status = status
	e.UpdatedAt = s.now()
	cp := *e
	cp.IsApproved = cp.Status == portal.EventApproved
	return &cp, nil
}

func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return portal.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

// --- auth ---

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
		return nil, auth.ErrNotFound
	}
	return identityFromUser(u), nil
}

func (s *Store) IdentityByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, auth.ErrNotFound
	}
	return identityFromUser(u), nil
}

func (s *Store) IdentityByID(ctx context.Context, id string) (*auth.Identity, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, auth.ErrNotFound
	}
	return identityFromUser(u), nil
}

func (s *Store) SetIdentityPassword(ctx context.Context, id, passwordHash string) error {
	if err := s.UpdateUserPassword(ctx, id, passwordHash); err != nil {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) CreateRefreshToken(_ context.Context, tok *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	tok.CreatedAt = s.now()
	cp := *tok
	s.tokens[tok.ID] = &cp
	return nil
}

func (s *Store) FindRefreshToken(_ context.Context, id string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok, ok := s.tokens[id]; ok {
		tok.Revoked = true
	}
	return nil
}

func (s *Store) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

func (s *Store) CreatePasswordReset(_ context.Context, reset *auth.PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reset.ID == "" {
		reset.ID = ids.New()
	}
	reset.CreatedAt = s.now()
	cp := *reset
	s.resets[reset.ID] = &cp
	return nil
}

func (s *Store) ConsumePasswordReset(_ context.Context, email, codeHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reset := range s.resets {
		if reset.Email == email && reset.CodeHash == codeHash &&
			!reset.Consumed && reset.ExpiresAt.After(now) {
			reset.Consumed = true
			return nil
		}
	}
	return auth.ErrInvalidOTP
}
