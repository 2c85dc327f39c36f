package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/api/users/":                     "/api/users/",
		"/api/users/01HXYZ/":              "/api/users/:id/",
		"/api/users/01HXYZ/approve/":      "/api/users/:id/approve/",
		"/api/events/01HXYZ/reject/":      "/api/events/:id/reject/",
		"/api/events/delete/01HXYZ/":      "/api/events/delete/:id/",
		"/api/events/":                    "/api/events/",
		"/api/events/?category=Reunion":   "/api/events/",
		"/api/token/":                     "/api/token/",
		"/api/users/01HXYZ/extra/deeper/": "/api/users/01HXYZ/extra/deeper/",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
