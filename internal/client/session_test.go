package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return baseTime }

// signToken builds an HS256 access token. The resolver never verifies the
// signature, so the signing key is irrelevant.
func signToken(t *testing.T, exp time.Time, admin *bool) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":        "u1",
		"token_type": "access",
		"exp":        exp.Unix(),
	}
	if admin != nil {
		claims["is_superuser"] = *admin
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	require.NoError(t, err)
	return token
}

func boolPtr(b bool) *bool { return &b }

type countingServer struct {
	srv      *httptest.Server
	refreshN atomic.Int64
	profileN atomic.Int64
}

// newCountingServer serves the refresh and profile endpoints and counts
// hits so tests can assert the resolver's call budget.
func newCountingServer(t *testing.T, refreshStatus int, refreshPair pairResponse, profileStatus int, profile profileResponse) *countingServer {
	t.Helper()
	cs := &countingServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		cs.refreshN.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(refreshStatus)
		if refreshStatus == http.StatusOK {
			_ = json.NewEncoder(w).Encode(refreshPair)
		} else {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Token is invalid or expired"})
		}
	})
	mux.HandleFunc("/api/user/me/", func(w http.ResponseWriter, r *http.Request) {
		cs.profileN.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(profileStatus)
		if profileStatus == http.StatusOK {
			_ = json.NewEncoder(w).Encode(profile)
		} else {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unavailable"})
		}
	})
	cs.srv = httptest.NewServer(mux)
	t.Cleanup(cs.srv.Close)
	return cs
}

func newResolverWith(srvURL string, store TokenStore) *Resolver {
	c := New(srvURL, store)
	return NewResolver(c, WithResolverClock(fixedClock))
}

func TestResolveEmptyStoreIsUnauthenticated(t *testing.T) {
	cs := newCountingServer(t, http.StatusOK, pairResponse{}, http.StatusOK, profileResponse{})
	r := newResolverWith(cs.srv.URL, NewMemStore())

	verdict, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unauthenticated, verdict)
	assert.EqualValues(t, 0, cs.refreshN.Load())
	assert.EqualValues(t, 0, cs.profileN.Load())
}

func TestResolveAdminClaimSkipsProfileCall(t *testing.T) {
	cs := newCountingServer(t, http.StatusOK, pairResponse{}, http.StatusOK, profileResponse{})
	store := NewMemStore()
	require.NoError(t, store.Save(State{
		Access: signToken(t, baseTime.Add(10*time.Minute), boolPtr(true)),
	}))
	r := newResolverWith(cs.srv.URL, store)

	verdict, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Admin, verdict)
	assert.EqualValues(t, 0, cs.refreshN.Load())
	assert.EqualValues(t, 0, cs.profileN.Load())

	// The verdict is cached as the admin hint.
	st, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, st.AdminHint)
	assert.True(t, *st.AdminHint)
}

func TestResolveMissingClaimFallsBackToProfile(t *testing.T) {
	cs := newCountingServer(t, http.StatusOK, pairResponse{}, http.StatusOK, profileResponse{ID: "u1", Username: "member", IsSuperuser: false})
	store := NewMemStore()
	require.NoError(t, store.Save(State{
		Access: signToken(t, baseTime.Add(10*time.Minute), nil),
	}))
	r := newResolverWith(cs.srv.URL, store)

	verdict, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Member, verdict)
	assert.EqualValues(t, 1, cs.profileN.Load())
}

func TestResolveProfileFailureUsesCachedHint(t *testing.T) {
	cs := newCountingServer(t, http.StatusOK, pairResponse{}, http.StatusInternalServerError, profileResponse{})
	store := NewMemStore()
	require.NoError(t, store.Save(State{
		Access:    signToken(t, baseTime.Add(10*time.Minute), nil),
		AdminHint: boolPtr(true),
	}))
	r := newResolverWith(cs.srv.URL, store)

	verdict, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Admin, verdict)
	assert.EqualValues(t, 1, cs.profileN.Load())
}

func TestResolveExpiredTokenRefreshesOnce(t *testing.T) {
	freshAccess := signToken(t, baseTime.Add(15*time.Minute), boolPtr(false))
	cs := newCountingServer(t, http.StatusOK,
		pairResponse{Access: freshAccess, Refresh: "rotated.secret"},
		http.StatusOK, profileResponse{})
	store := NewMemStore()
	require.NoError(t, store.Save(State{
		Access:  signToken(t, baseTime.Add(-time.Minute), boolPtr(false)),
		Refresh: "old.secret",
	}))
	r := newResolverWith(cs.srv.URL, store)

	verdict, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Member, verdict)
	assert.EqualValues(t, 1, cs.refreshN.Load())
	assert.EqualValues(t, 0, cs.profileN.Load())

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, freshAccess, st.Access)
	assert.Equal(t, "rotated.secret", st.Refresh)
}

func TestResolveDeadRefreshClearsSession(t *testing.T) {
	cs := newCountingServer(t, http.StatusUnauthorized, pairResponse{}, http.StatusOK, profileResponse{})
	store := NewMemStore()
	require.NoError(t, store.Save(State{
		Access:  signToken(t, baseTime.Add(-time.Minute), nil),
		Refresh: "dead.secret",
	}))
	r := newResolverWith(cs.srv.URL, store)

	verdict, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unauthenticated, verdict)
	assert.EqualValues(t, 1, cs.refreshN.Load())

	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Access)
	assert.Empty(t, st.Refresh)
}

func TestResolveExpiredWithoutRefreshToken(t *testing.T) {
	cs := newCountingServer(t, http.StatusOK, pairResponse{}, http.StatusOK, profileResponse{})
	store := NewMemStore()
	require.NoError(t, store.Save(State{
		Access: signToken(t, baseTime.Add(-time.Minute), nil),
	}))
	r := newResolverWith(cs.srv.URL, store)

	verdict, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unauthenticated, verdict)
	assert.EqualValues(t, 0, cs.refreshN.Load())
}

func TestResolveGarbageTokenTreatedAsExpired(t *testing.T) {
	cs := newCountingServer(t, http.StatusUnauthorized, pairResponse{}, http.StatusOK, profileResponse{})
	store := NewMemStore()
	require.NoError(t, store.Save(State{Access: "not-a-jwt"}))
	r := newResolverWith(cs.srv.URL, store)

	verdict, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unauthenticated, verdict)
}

func TestResolveCancelledContextLeavesStoreUntouched(t *testing.T) {
	cs := newCountingServer(t, http.StatusOK, pairResponse{Access: "x", Refresh: "y"}, http.StatusOK, profileResponse{})
	store := NewMemStore()
	saved := State{
		Access:  signToken(t, baseTime.Add(-time.Minute), nil),
		Refresh: "still.valid",
	}
	require.NoError(t, store.Save(saved))
	r := newResolverWith(cs.srv.URL, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verdict, err := r.Resolve(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Unauthenticated, verdict)

	st, loadErr := store.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, saved, st)
}

func TestGuardDecisions(t *testing.T) {
	cs := newCountingServer(t, http.StatusOK, pairResponse{}, http.StatusOK, profileResponse{})

	t.Run("unauthenticated member guard redirects to login", func(t *testing.T) {
		guard := NewGuard(newResolverWith(cs.srv.URL, NewMemStore()))
		dec, err := guard.RequireMember(context.Background())
		require.NoError(t, err)
		assert.False(t, dec.Allow)
		assert.Equal(t, "/login", dec.RedirectTo)
		assert.True(t, dec.ReplaceHistory)
	})

	t.Run("member passes member guard", func(t *testing.T) {
		store := NewMemStore()
		require.NoError(t, store.Save(State{
			Access: signToken(t, baseTime.Add(10*time.Minute), boolPtr(false)),
		}))
		guard := NewGuard(newResolverWith(cs.srv.URL, store))
		dec, err := guard.RequireMember(context.Background())
		require.NoError(t, err)
		assert.True(t, dec.Allow)
		assert.Equal(t, Member, dec.Verdict)
	})

	t.Run("member is silently redirected home by admin guard", func(t *testing.T) {
		store := NewMemStore()
		require.NoError(t, store.Save(State{
			Access: signToken(t, baseTime.Add(10*time.Minute), boolPtr(false)),
		}))
		guard := NewGuard(newResolverWith(cs.srv.URL, store))
		dec, err := guard.RequireAdmin(context.Background())
		require.NoError(t, err)
		assert.False(t, dec.Allow)
		assert.Equal(t, "/", dec.RedirectTo)
		assert.True(t, dec.ReplaceHistory)
	})

	t.Run("admin passes admin guard", func(t *testing.T) {
		store := NewMemStore()
		require.NoError(t, store.Save(State{
			Access: signToken(t, baseTime.Add(10*time.Minute), boolPtr(true)),
		}))
		guard := NewGuard(newResolverWith(cs.srv.URL, store))
		dec, err := guard.RequireAdmin(context.Background())
		require.NoError(t, err)
		assert.True(t, dec.Allow)
		assert.Equal(t, Admin, dec.Verdict)
	})
}
