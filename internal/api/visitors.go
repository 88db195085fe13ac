package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/visitor"
)

// registerVisitorRequest is the request body for POST /visitors.
type registerVisitorRequest struct {
	Name                string `json:"name"`
	NationalID          string `json:"national_id"`
	Phone               string `json:"phone"`
	Email               string `json:"email,omitempty"`
	Company             string `json:"company,omitempty"`
	Purpose             string `json:"purpose"`
	PhotoRef            string `json:"photo_ref,omitempty"`
	HostID              int64  `json:"host_id"`
	ExpectedDurationMin int    `json:"expected_duration_min,omitempty"`
	Notes               string `json:"notes,omitempty"`
}

// setStatusRequest is the request body for POST /visitors/{id}/status.
type setStatusRequest struct {
	Status visitor.Status `json:"status"`
	Notes  string         `json:"notes,omitempty"`
}

// checkinRequest is the request body for POST /visitors/{id}/checkin.
// Photo is an optional base64-encoded capture from the front desk camera.
type checkinRequest struct {
	Photo string `json:"photo,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// handleRegisterVisitor registers a new visit in the pending state.
func (s *Server) handleRegisterVisitor(w http.ResponseWriter, r *http.Request) {
	var req registerVisitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name == "" || req.Purpose == "" {
		writeBadRequest(w, "name and purpose are required")
		return
	}

	principal := principalFromContext(r.Context())

	// Hosts can only pre-register their own visitors.
	if principal.Role == auth.RoleHost {
		req.HostID = principal.UserID
	}

	v, err := s.visitors.Register(r.Context(), visitor.Registration{
		Name:                req.Name,
		NationalID:          req.NationalID,
		Phone:               req.Phone,
		Email:               req.Email,
		Company:             req.Company,
		Purpose:             req.Purpose,
		PhotoRef:            req.PhotoRef,
		HostID:              req.HostID,
		RegisteredByID:      principal.UserID,
		ExpectedDurationMin: req.ExpectedDurationMin,
		Notes:               req.Notes,
	})
	if err != nil {
		s.writeVisitorError(w, err, "failed to register visitor")
		return
	}

	writeJSON(w, http.StatusCreated, v)
}

// handleListVisitors lists visits. Hosts see only their own; guards and
// admins see every visit at the site. An optional status query parameter
// filters by lifecycle state.
func (s *Server) handleListVisitors(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())

	f := visitor.Filter{
		Status: visitor.Status(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("host_id"); v != "" {
		hostID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeBadRequest(w, "host_id must be an integer")
			return
		}
		f.HostID = hostID
	}

	visits, err := s.visitors.List(r.Context(), principal, f)
	if err != nil {
		s.logger.Error("list visitors failed", "error", err)
		writeInternalError(w, "failed to list visitors")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"visitors": visits,
		"count":    len(visits),
	})
}

// handleGetVisitor returns a single visit record.
func (s *Server) handleGetVisitor(w http.ResponseWriter, r *http.Request) {
	id, ok := visitorIDParam(w, r)
	if !ok {
		return
	}

	v, err := s.visitors.Get(r.Context(), id)
	if err != nil {
		s.writeVisitorError(w, err, "failed to load visitor")
		return
	}

	// Hosts may only read their own visits.
	principal := principalFromContext(r.Context())
	if principal.Role == auth.RoleHost && v.HostID != principal.UserID {
		writeForbidden(w, "visit belongs to another host")
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// handleSetVisitorStatus drives a lifecycle transition. Authorisation
// (owning host for decisions, staff for movement) is enforced by the
// engine; this handler only maps its verdicts onto HTTP.
func (s *Server) handleSetVisitorStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := visitorIDParam(w, r)
	if !ok {
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Status == "" {
		writeBadRequest(w, "status is required")
		return
	}

	principal := principalFromContext(r.Context())

	v, err := s.visitors.SetStatus(r.Context(), id, req.Status, principal, req.Notes)
	if err != nil {
		s.writeVisitorError(w, err, "failed to update status")
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// handleCheckin checks an approved visitor in at the front desk. When a
// photo is supplied and facial recognition is configured, the capture is
// matched against enrolled faces and the result is returned alongside
// the visit; a non-match does not block check-in, the guard decides.
func (s *Server) handleCheckin(w http.ResponseWriter, r *http.Request) {
	id, ok := visitorIDParam(w, r)
	if !ok {
		return
	}

	var req checkinRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	var recognition any
	if req.Photo != "" && s.recognizer != nil {
		image, err := base64.StdEncoding.DecodeString(req.Photo)
		if err != nil {
			writeBadRequest(w, "photo must be base64 encoded")
			return
		}
		result, err := s.recognizer.RecognizeFace(r.Context(), image)
		if err != nil {
			s.logger.Warn("facial recognition failed", "visitor_id", id, "error", err)
		} else {
			recognition = result
		}
	}

	principal := principalFromContext(r.Context())

	v, err := s.visitors.SetStatus(r.Context(), id, visitor.StatusCheckedIn, principal, req.Notes)
	if err != nil {
		s.writeVisitorError(w, err, "failed to check in")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"visitor":     v,
		"recognition": recognition,
	})
}

// handleCheckout checks a visitor out.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := visitorIDParam(w, r)
	if !ok {
		return
	}

	var req checkinRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	principal := principalFromContext(r.Context())

	v, err := s.visitors.SetStatus(r.Context(), id, visitor.StatusCheckedOut, principal, req.Notes)
	if err != nil {
		s.writeVisitorError(w, err, "failed to check out")
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// writeVisitorError maps lifecycle engine errors onto HTTP responses.
func (s *Server) writeVisitorError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, visitor.ErrNotFound):
		writeNotFound(w, "visitor not found")
	case errors.Is(err, visitor.ErrInvalidHost):
		writeBadRequest(w, err.Error())
	case errors.Is(err, visitor.ErrInvalidTransition):
		writeConflict(w, err.Error())
	case errors.Is(err, visitor.ErrForbidden):
		writeForbidden(w, err.Error())
	default:
		s.logger.Error("visitor operation failed", "error", err)
		writeInternalError(w, fallback)
	}
}

// visitorIDParam parses the {id} route parameter, writing a 400 on failure.
func visitorIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
