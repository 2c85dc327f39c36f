package httpapi

import (
	"net/http"
	"strings"
	"time"

	"alumnihub.org/internal/audit"
	"alumnihub.org/internal/portal"
)

// handleEvents routes the event collection:
//
//	GET    /api/events/
//	POST   /api/events/
//	POST   /api/events/{id}/approve/
//	POST   /api/events/{id}/reject/
//	PATCH  /api/events/{id}/
//	DELETE /api/events/delete/{id}/
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/events/" {
		switch r.Method {
		case http.MethodGet:
			a.listEvents(w, r)
		case http.MethodPost:
			a.createEvent(w, r)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/events/")
	rest = strings.TrimSuffix(rest, "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[0] == "delete" && parts[1] != "":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		id, ok := pathID(w, r, parts[1])
		if !ok {
			return
		}
		a.deleteEvent(w, r, id)
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		id, ok := pathID(w, r, parts[0])
		if !ok {
			return
		}
		a.patchEvent(w, r, id)
	case len(parts) == 2 && parts[1] == "approve":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		id, ok := pathID(w, r, parts[0])
		if !ok {
			return
		}
		a.setEventStatus(w, r, id, true)
	case len(parts) == 2 && parts[1] == "reject":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		id, ok := pathID(w, r, parts[0])
		if !ok {
			return
		}
		a.setEventStatus(w, r, id, false)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// listEvents shows admins everything; members see approved events plus
// their own submissions.
func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	principal, ok := requireMember(w, r)
	if !ok {
		return
	}
	events, err := a.portal.ListEventsFor(r.Context(), principal.UserID, principal.IsAdmin)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if events == nil {
		events = []*portal.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *API) createEvent(w http.ResponseWriter, r *http.Request) {
	principal, ok := requireMember(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}

	startsAt, err := parseFormTime(r.FormValue("starts_at"))
	if err != nil {
		writeFieldErrors(w, r, portal.FieldErrors{"starts_at": "Enter a valid RFC 3339 timestamp."})
		return
	}
	var endsAt *time.Time
	if raw := strings.TrimSpace(r.FormValue("ends_at")); raw != "" {
		t, err := parseFormTime(raw)
		if err != nil {
			writeFieldErrors(w, r, portal.FieldErrors{"ends_at": "Enter a valid RFC 3339 timestamp."})
			return
		}
		endsAt = &t
	}

	imagePath, err := a.saveUpload(r, "image", "events")
	if err != nil {
		writeFieldErrors(w, r, portal.FieldErrors{"image": err.Error()})
		return
	}

	in := portal.EventInput{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Preview:     r.FormValue("preview"),
		Venue:       r.FormValue("venue"),
		Category:    r.FormValue("category"),
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Cost:        r.FormValue("cost"),
		ImagePath:   imagePath,
		ActionLabel: r.FormValue("action_label"),
		ActionLink:  r.FormValue("action_link"),
	}

	event, err := a.portal.CreateEvent(r.Context(), principal.UserID, in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "event.created", map[string]any{
		"event_id":     event.ID,
		"organizer_id": principal.UserID,
	})

	w.Header().Set("Location", "/api/events/"+event.ID+"/")
	writeJSON(w, http.StatusCreated, event)
}

func (a *API) setEventStatus(w http.ResponseWriter, r *http.Request, id string, approve bool) {
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var (
		event *portal.Event
		err   error
		name  = "event.rejected"
	)
	if approve {
		event, err = a.portal.ApproveEvent(r.Context(), id)
		name = "event.approved"
	} else {
		event, err = a.portal.RejectEvent(r.Context(), id)
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), name, map[string]any{
		"event_id": event.ID,
		"admin_id": principal.UserID,
	})
	writeJSON(w, http.StatusOK, event)
}

type eventPatchBody struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Preview     *string    `json:"preview"`
	Venue       *string    `json:"venue"`
	Category    *string    `json:"category"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	Cost        *string    `json:"cost"`
	ActionLabel *string    `json:"action_label"`
	ActionLink  *string    `json:"action_link"`
}

func (a *API) patchEvent(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requireMember(w, r)
	if !ok {
		return
	}

	var body eventPatchBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	upd := portal.EventUpdate{
		Name:        body.Name,
		Description: body.Description,
		Preview:     body.Preview,
		Venue:       body.Venue,
		Category:    body.Category,
		StartsAt:    body.StartsAt,
		EndsAt:      body.EndsAt,
		Cost:        body.Cost,
		ActionLabel: body.ActionLabel,
		ActionLink:  body.ActionLink,
	}
	event, err := a.portal.UpdateEvent(r.Context(), id, principal.UserID, principal.IsAdmin, upd)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "event.updated", map[string]any{
		"event_id": event.ID,
		"actor_id": principal.UserID,
	})
	writeJSON(w, http.StatusOK, event)
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requireMember(w, r)
	if !ok {
		return
	}
	if err := a.portal.DeleteEvent(r.Context(), id, principal.UserID, principal.IsAdmin); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "event.deleted", map[string]any{
		"event_id": id,
		"actor_id": principal.UserID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func parseFormTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}
