package client

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verdict is the outcome of a session resolution.
type Verdict int

const (
	Unauthenticated Verdict = iota
	Member
	Admin
)

func (v Verdict) String() string {
	switch v {
	case Member:
		return "member"
	case Admin:
		return "admin"
	default:
		return "unauthenticated"
	}
}

type profileResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	IsSuperuser bool   `json:"is_superuser"`
}

// Resolver turns the stored token pair into a Verdict. Per resolution it
// issues at most one refresh call and at most one profile call.
type Resolver struct {
	client *Client
	now    func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock injects the clock used for expiry checks.
func WithResolverClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

func NewResolver(c *Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{client: c, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve determines the caller's session role. The access token is parsed
// without signature verification: the server remains the authority, the
// client only needs exp and the admin claim. If the token is expired,
// exactly one refresh attempt is made; an expired session with no working
// refresh token resolves to Unauthenticated. If the context is cancelled
// the store is left untouched and the partial result discarded.
func (r *Resolver) Resolve(ctx context.Context) (Verdict, error) {
	st, err := r.client.store.Load()
	if err != nil {
		return Unauthenticated, err
	}
	if st.Access == "" {
		return Unauthenticated, nil
	}

	claims, ok := decodeClaims(st.Access)
	expired := !ok || claims.expired(r.now())

	if expired {
		if st.Refresh == "" {
			return Unauthenticated, nil
		}
		pair, err := r.refresh(ctx, st.Refresh)
		if err != nil {
			if ctx.Err() != nil {
				return Unauthenticated, ctx.Err()
			}
			// A dead refresh token means the session is over.
			_ = r.client.store.Clear()
			return Unauthenticated, nil
		}
		if ctx.Err() != nil {
			return Unauthenticated, ctx.Err()
		}
		st.Access = pair.Access
		st.Refresh = pair.Refresh
		if err := r.client.store.Save(st); err != nil {
			return Unauthenticated, err
		}
		claims, ok = decodeClaims(st.Access)
		if !ok {
			return Unauthenticated, nil
		}
	}

	isAdmin, known := claims.adminFlag()
	if !known {
		var profile profileResponse
		if err := r.client.doJSON(ctx, "GET", "/api/user/me/", nil, &profile); err != nil {
			if ctx.Err() != nil {
				return Unauthenticated, ctx.Err()
			}
			// Profile fetch failure degrades to the cached hint.
			if st.AdminHint != nil {
				isAdmin = *st.AdminHint
				known = true
			}
		} else {
			isAdmin = profile.IsSuperuser
			known = true
		}
	}
	if !known {
		isAdmin = false
	}

	if ctx.Err() != nil {
		return Unauthenticated, ctx.Err()
	}
	hint := isAdmin
	st.AdminHint = &hint
	if err := r.client.store.Save(st); err != nil {
		return Unauthenticated, err
	}

	if isAdmin {
		return Admin, nil
	}
	return Member, nil
}

type pairResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (r *Resolver) refresh(ctx context.Context, refreshToken string) (pairResponse, error) {
	var pair pairResponse
	err := r.client.doJSON(ctx, "POST", "/api/token/refresh/",
		map[string]string{"refresh": refreshToken}, &pair)
	return pair, err
}

// accessClaims is the unverified view of an access token.
type accessClaims struct {
	exp      *time.Time
	admin    *bool
	hasAdmin bool
}

func (c accessClaims) expired(now time.Time) bool {
	if c.exp == nil {
		return true
	}
	return !now.Before(*c.exp)
}

func (c accessClaims) adminFlag() (bool, bool) {
	if !c.hasAdmin {
		return false, false
	}
	return *c.admin, true
}

func decodeClaims(token string) (accessClaims, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return accessClaims{}, false
	}
	var out accessClaims
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		out.exp = &t
	}
	if raw, ok := claims["is_superuser"]; ok {
		if b, ok := raw.(bool); ok {
			out.admin = &b
			out.hasAdmin = true
		}
	}
	return out, true
}
