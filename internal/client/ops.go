package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alumnihub.org/internal/portal"
)

// ErrMissingCredentials is returned by Login before any network call when
// either field is empty.
var ErrMissingCredentials = errors.New("Username and password are required.")

// Login exchanges credentials for a token pair and persists it. The cached
// admin hint is dropped; the next resolution recomputes it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return ErrMissingCredentials
	}
	var pair pairResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/token/",
		map[string]string{"username": username, "password": password}, &pair)
	if err != nil {
		return err
	}
	return c.store.Save(State{Access: pair.Access, Refresh: pair.Refresh})
}

// Logout revokes the server-side session and clears local state. The local
// clear happens even when the revoke call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/api/token/logout/", struct{}{}, nil)
	if clearErr := c.store.Clear(); clearErr != nil {
		return clearErr
	}
	if err != nil && !IsStatus(err, http.StatusUnauthorized) {
		return err
	}
	return nil
}

// Me fetches the caller's profile.
func (c *Client) Me(ctx context.Context) (*portal.User, error) {
	var user portal.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/user/me/", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns the admin user table.
func (c *Client) ListUsers(ctx context.Context) ([]*portal.User, error) {
	var users []*portal.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) ApproveUser(ctx context.Context, id string) (*portal.User, error) {
	var user portal.User
	err := c.doJSON(ctx, http.MethodPost, "/api/users/"+id+"/approve/", struct{}{}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) RejectUser(ctx context.Context, id string) (*portal.User, error) {
	var user portal.User
	err := c.doJSON(ctx, http.MethodPost, "/api/users/"+id+"/reject/", struct{}{}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserPatch mirrors the PATCH body; nil fields are omitted.
type UserPatch struct {
	FirstName   *string `json:"first_name,omitempty"`
	MiddleName  *string `json:"middle_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	IsMarried   *bool   `json:"is_married,omitempty"`
	MaidenName  *string `json:"maiden_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Batch       *string `json:"batch,omitempty"`
	Program     *string `json:"program,omitempty"`
	IsApproved  *bool   `json:"is_approved,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsSuperuser *bool   `json:"is_superuser,omitempty"`
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch UserPatch) (*portal.User, error) {
	var user portal.User
	err := c.doJSON(ctx, http.MethodPatch, "/api/users/"+id+"/", patch, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeactivateUser soft-deletes via the is_active flag.
func (c *Client) DeactivateUser(ctx context.Context, id string) (*portal.User, error) {
	inactive := false
	return c.UpdateUser(ctx, id, UserPatch{IsActive: &inactive})
}

// ListEvents returns the events visible to the caller.
func (c *Client) ListEvents(ctx context.Context) ([]*portal.Event, error) {
	var events []*portal.Event
	if err := c.doJSON(ctx, http.MethodGet, "/api/events/", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// EventForm is the multipart event submission.
type EventForm struct {
	Name        string
	Description string
	Preview     string
	Venue       string
	Category    string
	StartsAt    time.Time
	EndsAt      *time.Time
	Cost        string
	ActionLabel string
	ActionLink  string
	ImagePath   string // local file to upload, optional
}

func (c *Client) CreateEvent(ctx context.Context, form EventForm) (*portal.Event, error) {
	fields := map[string]string{
		"name":         form.Name,
		"description":  form.Description,
		"preview":      form.Preview,
		"venue":        form.Venue,
		"category":     form.Category,
		"starts_at":    form.StartsAt.Format(time.RFC3339),
		"cost":         form.Cost,
		"action_label": form.ActionLabel,
		"action_link":  form.ActionLink,
	}
	if form.EndsAt != nil {
		fields["ends_at"] = form.EndsAt.Format(time.RFC3339)
	}
	body, contentType, err := buildMultipart(fields, "image", form.ImagePath)
	if err != nil {
		return nil, err
	}
	var event portal.Event
	if err := c.doForm(ctx, http.MethodPost, "/api/events/", body, contentType, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) ApproveEvent(ctx context.Context, id string) (*portal.Event, error) {
	var event portal.Event
	err := c.doJSON(ctx, http.MethodPost, "/api/events/"+id+"/approve/", struct{}{}, &event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) RejectEvent(ctx context.Context, id string) (*portal.Event, error) {
	var event portal.Event
	err := c.doJSON(ctx, http.MethodPost, "/api/events/"+id+"/reject/", struct{}{}, &event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// EventPatch mirrors the PATCH body; nil fields are omitted. Status never
// travels through a patch.
type EventPatch struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Preview     *string    `json:"preview,omitempty"`
	Venue       *string    `json:"venue,omitempty"`
	Category    *string    `json:"category,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Cost        *string    `json:"cost,omitempty"`
	ActionLabel *string    `json:"action_label,omitempty"`
	ActionLink  *string    `json:"action_link,omitempty"`
}

func (c *Client) UpdateEvent(ctx context.Context, id string, patch EventPatch) (*portal.Event, error) {
	var event portal.Event
	err := c.doJSON(ctx, http.MethodPatch, "/api/events/"+id+"/", patch, &event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/events/delete/"+id+"/", nil, nil)
}

// RegistrationForm is the multipart registration submission.
type RegistrationForm struct {
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
	ValidIDPath  string // local file to upload, optional
}

func (c *Client) Register(ctx context.Context, form RegistrationForm) (*portal.User, error) {
	fields := map[string]string{
		"username":      form.Username,
		"password":      form.Password,
		"first_name":    form.FirstName,
		"middle_name":   form.MiddleName,
		"last_name":     form.LastName,
		"is_married":    fmt.Sprintf("%t", form.IsMarried),
		"maiden_name":   form.MaidenName,
		"email":         form.Email,
		"confirm_email": form.ConfirmEmail,
		"phone_number":  form.PhoneNumber,
		"batch":         form.Batch,
		"program":       form.Program,
	}
	body, contentType, err := buildMultipart(fields, "valid_id", form.ValidIDPath)
	if err != nil {
		return nil, err
	}
	var user portal.User
	if err := c.doForm(ctx, http.MethodPost, "/api/user/register/", body, contentType, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/password-reset-request/",
		map[string]string{"email": email}, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, email, otp, newPassword string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/password-reset-confirm/",
		map[string]string{"email": email, "otp": otp, "new_password": newPassword}, nil)
}

func buildMultipart(fields map[string]string, fileField, filePath string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if filePath != "" {
		file, err := os.Open(filePath)
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		part, err := writer.CreateFormFile(fileField, filepath.Base(filePath))
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
