package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	// Missing file reads as a logged-out session.
	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Access)

	want := State{Access: "a.b.c", Refresh: "id.secret", AdminHint: boolPtr(true)}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// State files are private to the user.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, store.Clear())
	st, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Access)

	// Clearing twice is fine.
	require.NoError(t, store.Clear())
}

func TestFileStoreCorruptFileReadsAsLoggedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	st, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, State{}, st)
}

func TestLoginRejectsEmptyCredentialsLocally(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, NewMemStore())

	for _, creds := range [][2]string{{"", "password"}, {"user", ""}, {"  ", "password"}} {
		err := c.Login(context.Background(), creds[0], creds[1])
		require.ErrorIs(t, err, ErrMissingCredentials)
	}
	assert.EqualValues(t, 0, calls.Load(), "validation must happen before any network call")
}

func TestLoginSavesTokenPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/token/", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "member", body["username"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pairResponse{Access: "a.b.c", Refresh: "id.secret"})
	}))
	t.Cleanup(srv.Close)

	store := NewMemStore()
	c := New(srv.URL, store)
	require.NoError(t, c.Login(context.Background(), "member", "password123"))

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", st.Access)
	assert.Equal(t, "id.secret", st.Refresh)
	assert.Nil(t, st.AdminHint, "a fresh login has no admin hint yet")
}

func TestLoginSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":      "No active account found with the given credentials",
			"request_id": "01TESTREQID",
		})
	}))
	t.Cleanup(srv.Close)

	err := New(srv.URL, NewMemStore()).Login(context.Background(), "member", "wrong")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "No active account found with the given credentials", apiErr.Message)
	assert.Equal(t, "01TESTREQID", apiErr.RequestID)
}

func TestLogoutClearsStateEvenWhenServerFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := NewMemStore()
	require.NoError(t, store.Save(State{Access: "a.b.c", Refresh: "id.secret"}))
	c := New(srv.URL, store)

	err := c.Logout(context.Background())
	require.Error(t, err)

	st, loadErr := store.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, State{}, st, "local state must be cleared regardless of the server")
}

func TestLogoutToleratesExpiredSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Token is invalid or expired"})
	}))
	t.Cleanup(srv.Close)

	store := NewMemStore()
	require.NoError(t, store.Save(State{Access: "stale"}))

	require.NoError(t, New(srv.URL, store).Logout(context.Background()))
	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, State{}, st)
}

func TestRequestsCarryBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profileResponse{ID: "u1", Username: "member"})
	}))
	t.Cleanup(srv.Close)

	store := NewMemStore()
	require.NoError(t, store.Save(State{Access: "a.b.c"}))
	c := New(srv.URL, store)

	_, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer a.b.c", gotAuth)
}

func TestFieldErrorsAreDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "validation failed",
			"fields": map[string]string{
				"password":      "Password must be at least 8 characters long.",
				"confirm_email": "Email addresses do not match.",
			},
		})
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, NewMemStore())
	_, err := c.Register(context.Background(), RegistrationForm{
		Username: "x", Password: "short",
		FirstName: "A", MiddleName: "B", LastName: "C",
		Email: "a@example.com", ConfirmEmail: "b@example.com",
		PhoneNumber: "09171234567", Batch: "2022", Program: "CS",
	})
	require.Error(t, err)
	fields, ok := FieldsOf(err)
	require.True(t, ok)
	assert.Equal(t, "Email addresses do not match.", fields["confirm_email"])
}
