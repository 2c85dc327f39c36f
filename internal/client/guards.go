package client

import "context"

// Decision is a guard outcome. When Allow is false the caller must follow
// RedirectTo instead of rendering the protected view; ReplaceHistory means
// the redirect should not leave the blocked location in history.
type Decision struct {
	Allow          bool
	Verdict        Verdict
	RedirectTo     string
	ReplaceHistory bool
}

// Guard gates access to protected views using the session resolver. The
// guard blocks until resolution completes, so callers never render
// protected content on a stale verdict.
type Guard struct {
	resolver *Resolver
	loginURL string
	homeURL  string
}

func NewGuard(resolver *Resolver) *Guard {
	return &Guard{
		resolver: resolver,
		loginURL: "/login",
		homeURL:  "/",
	}
}

// RequireMember admits members and admins. Anyone else is sent to the
// login page with history replacement.
func (g *Guard) RequireMember(ctx context.Context) (Decision, error) {
	verdict, err := g.resolver.Resolve(ctx)
	if err != nil {
		return Decision{}, err
	}
	if verdict == Unauthenticated {
		return Decision{
			Verdict:        verdict,
			RedirectTo:     g.loginURL,
			ReplaceHistory: true,
		}, nil
	}
	return Decision{Allow: true, Verdict: verdict}, nil
}

// RequireAdmin admits admins only. Members and unauthenticated callers
// get a silent redirect home rather than an error surface.
func (g *Guard) RequireAdmin(ctx context.Context) (Decision, error) {
	verdict, err := g.resolver.Resolve(ctx)
	if err != nil {
		return Decision{}, err
	}
	if verdict != Admin {
		return Decision{
			Verdict:        verdict,
			RedirectTo:     g.homeURL,
			ReplaceHistory: true,
		}, nil
	}
	return Decision{Allow: true, Verdict: verdict}, nil
}
