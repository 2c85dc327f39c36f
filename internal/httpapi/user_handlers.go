package httpapi

import (
	"net/http"
	"strings"

	"alumnihub.org/internal/audit"
	"alumnihub.org/internal/portal"
)

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}

	validIDPath, err := a.saveUpload(r, "valid_id", "valid_ids")
	if err != nil {
		writeFieldErrors(w, r, portal.FieldErrors{"valid_id": err.Error()})
		return
	}

	in := portal.RegistrationInput{
		Username:     r.FormValue("username"),
		Password:     r.FormValue("password"),
		FirstName:    r.FormValue("first_name"),
		MiddleName:   r.FormValue("middle_name"),
		LastName:     r.FormValue("last_name"),
		IsMarried:    r.FormValue("is_married") == "true",
		MaidenName:   r.FormValue("maiden_name"),
		Email:        r.FormValue("email"),
		ConfirmEmail: r.FormValue("confirm_email"),
		PhoneNumber:  r.FormValue("phone_number"),
		Batch:        r.FormValue("batch"),
		Program:      r.FormValue("program"),
		ValidIDPath:  validIDPath,
	}

	user, err := a.portal.Register(r.Context(), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "user.registered", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})

	w.Header().Set("Location", "/api/users/"+user.ID+"/")
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := requireMember(w, r)
	if !ok {
		return
	}
	user, err := a.portal.GetUser(r.Context(), principal.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUsers routes the admin user collection:
//
//	GET   /api/users/
//	POST  /api/users/{id}/approve/
//	POST  /api/users/{id}/reject/
//	PATCH /api/users/{id}/
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/users/" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listUsers(w, r)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
	rest = strings.TrimSuffix(rest, "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		id, ok := pathID(w, r, parts[0])
		if !ok {
			return
		}
		a.patchUser(w, r, id)
	case len(parts) == 2 && parts[1] == "approve":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		id, ok := pathID(w, r, parts[0])
		if !ok {
			return
		}
		a.approveUser(w, r, id)
	case len(parts) == 2 && parts[1] == "reject":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		id, ok := pathID(w, r, parts[0])
		if !ok {
			return
		}
		a.rejectUser(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	users, err := a.portal.ListUsers(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if users == nil {
		users = []*portal.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) approveUser(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	user, err := a.portal.ApproveUser(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.approved", map[string]any{
		"user_id":  user.ID,
		"admin_id": principal.UserID,
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) rejectUser(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	user, err := a.portal.RejectUser(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.rejected", map[string]any{
		"user_id":  user.ID,
		"admin_id": principal.UserID,
	})
	writeJSON(w, http.StatusOK, user)
}

type userPatchBody struct {
	FirstName   *string `json:"first_name"`
	MiddleName  *string `json:"middle_name"`
	LastName    *string `json:"last_name"`
	IsMarried   *bool   `json:"is_married"`
	MaidenName  *string `json:"maiden_name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	Batch       *string `json:"batch"`
	Program     *string `json:"program"`
	IsApproved  *bool   `json:"is_approved"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
}

func (a *API) patchUser(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	var body userPatchBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	upd := portal.UserUpdate{
		FirstName:   body.FirstName,
		MiddleName:  body.MiddleName,
		LastName:    body.LastName,
		IsMarried:   body.IsMarried,
		MaidenName:  body.MaidenName,
		Email:       body.Email,
		PhoneNumber: body.PhoneNumber,
		Batch:       body.Batch,
		Program:     body.Program,
		IsApproved:  body.IsApproved,
		IsActive:    body.IsActive,
		IsSuperuser: body.IsSuperuser,
	}
	user, err := a.portal.UpdateUser(r.Context(), id, upd)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{
		"user_id":  user.ID,
		"admin_id": principal.UserID,
	})
	writeJSON(w, http.StatusOK, user)
}
