package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"alumnihub.org/internal/audit"
	"alumnihub.org/internal/auth"
	"alumnihub.org/internal/obs"
	"alumnihub.org/internal/portal"
)

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// tokenResponse mirrors the SimpleJWT pair shape the frontend was built
// against.
type tokenResponse struct {
	Access  string    `json:"access"`
	Refresh string    `json:"refresh"`
	Expires time.Time `json:"access_expires_at"`
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/token/" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, identity, err := a.auth.IssueTokenPair(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) || errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "No active account found with the given credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user_id":  identity.ID,
		"username": identity.Username,
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Access:  pair.AccessToken,
		Refresh: pair.RefreshToken,
		Expires: pair.AccessExpiresAt,
	})
}

func (a *API) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Refresh) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh is required")
		return
	}

	pair, identity, err := a.auth.RefreshTokenPair(r.Context(), req.Refresh)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrNotFound),
			errors.Is(err, auth.ErrUnauthorized):
			writeError(w, r, http.StatusUnauthorized, "Token is invalid or expired")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.refreshed", map[string]any{
		"user_id": identity.ID,
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Access:  pair.AccessToken,
		Refresh: pair.RefreshToken,
		Expires: pair.AccessExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := requireMember(w, r)
	if !ok {
		return
	}
	if err := a.auth.Logout(r.Context(), principal.UserID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"user_id": principal.UserID,
	})
	w.WriteHeader(http.StatusNoContent)
}

type resetRequestBody struct {
	Email string `json:"email"`
}

type resetConfirmBody struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// handlePasswordResetRequest always answers 202 so callers cannot probe
// which emails have accounts.
func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req resetRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		writeFieldErrors(w, r, portal.FieldErrors{"email": "This field is required."})
		return
	}

	code, identity, err := a.auth.StartPasswordReset(r.Context(), email)
	switch {
	case err == nil:
		if sendErr := a.mailer.SendPasswordReset(r.Context(), identity.Email, code); sendErr != nil {
			obs.Event("error", "reset mail delivery failed", map[string]any{
				"error": sendErr.Error(),
			})
		}
	case errors.Is(err, auth.ErrNotFound):
		// Unknown email gets the same response.
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "If an account exists for that email, a reset code has been sent.",
	})
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req resetConfirmBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	fields := portal.FieldErrors{}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		fields["email"] = "This field is required."
	}
	if strings.TrimSpace(req.OTP) == "" {
		fields["otp"] = "This field is required."
	}
	if len(req.NewPassword) < 8 {
		fields["new_password"] = "Password must be at least 8 characters long."
	}
	if len(fields) > 0 {
		writeFieldErrors(w, r, fields)
		return
	}

	err := a.auth.ConfirmPasswordReset(r.Context(), email, strings.TrimSpace(req.OTP), req.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidOTP) || errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusBadRequest, "Invalid or expired code")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password.reset", map[string]any{
		"email": email,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Password has been reset.",
	})
}
