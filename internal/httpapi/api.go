// Package httpapi is the HTTP transport for the portal API.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"alumnihub.org/internal/auth"
	"alumnihub.org/internal/mail"
	"alumnihub.org/internal/obs"
	"alumnihub.org/internal/portal"
)

// ReadyProbe reports whether the backing database answers pings.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	portal     *portal.Service
	mailer     mail.Sender
	readyProbe ReadyProbe
	version    string
	uploadsDir string
	rateBurst  int
	ratePerSec int
}

// Config collects API dependencies.
type Config struct {
	Auth       *auth.Service
	Portal     *portal.Service
	Mailer     mail.Sender
	ReadyProbe ReadyProbe
	Version    string
	UploadsDir string
}

func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       cfg.Auth,
		portal:     cfg.Portal,
		mailer:     cfg.Mailer,
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		uploadsDir: cfg.UploadsDir,
		rateBurst:  20,
		ratePerSec: 10,
	}
	if a.mailer == nil {
		a.mailer = mail.LogSender{}
	}
	if a.uploadsDir == "" {
		a.uploadsDir = "uploads"
	}

	a.mux.HandleFunc("/api/token/", a.handleToken)
	a.mux.HandleFunc("/api/token/refresh/", a.handleTokenRefresh)
	a.mux.HandleFunc("/api/token/logout/", a.handleLogout)

	a.mux.HandleFunc("/api/user/register/", a.handleRegister)
	a.mux.HandleFunc("/api/user/me/", a.handleMe)
	a.mux.HandleFunc("/api/users/", a.handleUsers)

	a.mux.HandleFunc("/api/events/", a.handleEvents)

	a.mux.HandleFunc("/api/password-reset-request/", a.handlePasswordResetRequest)
	a.mux.HandleFunc("/api/password-reset-confirm/", a.handlePasswordResetConfirm)

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/api/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler wires the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 10<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "alumnihub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "alumnihub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
