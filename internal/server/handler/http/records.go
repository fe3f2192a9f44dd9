// Package http provides HTTP handlers for card and password records.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atinyakov/NoPass/internal/models"
)

// RecordService defines the operations the RecordHandler needs.
type RecordService interface {
	AppendCard(ctx context.Context, fields models.CardFields) (*models.Card, error)
	AppendPassword(ctx context.Context, fields models.PasswordFields) (*models.Password, error)
	List(ctx context.Context) (models.Blob, error)
	Profile(ctx context.Context) (*models.User, error)
	RequestDelete(ctx context.Context, section models.Section, id string) error
}

// RecordHandler serves the /api record endpoints. Submitted fields are
// normalized and validated here, before they reach the service.
type RecordHandler struct {
	RecordService RecordService
	// Now decides card expiry. Defaults to time.Now.
	Now func() time.Time
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

type profileResponse struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// AddCard handles POST /api/cards.
func (h *RecordHandler) AddCard(w http.ResponseWriter, r *http.Request) {
	var fields models.CardFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	fields = fields.Normalize()
	if err := fields.Validate(h.now()); err != nil {
		writeError(w, err)
		return
	}

	card, err := h.RecordService.AppendCard(r.Context(), fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// AddPassword handles POST /api/passwords.
func (h *RecordHandler) AddPassword(w http.ResponseWriter, r *http.Request) {
	var fields models.PasswordFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	fields = fields.Normalize()
	if err := fields.Validate(); err != nil {
		writeError(w, err)
		return
	}

	pw, err := h.RecordService.AppendPassword(r.Context(), fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pw)
}

// List handles GET /api/records.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	blob, err := h.RecordService.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blob)
}

// Cards handles GET /api/cards.
func (h *RecordHandler) Cards(w http.ResponseWriter, r *http.Request) {
	blob, err := h.RecordService.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blob.Cards)
}

// Passwords handles GET /api/passwords.
func (h *RecordHandler) Passwords(w http.ResponseWriter, r *http.Request) {
	blob, err := h.RecordService.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blob.Passwords)
}

// Me handles GET /api/me.
func (h *RecordHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.RecordService.Profile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{ID: u.ID, Username: u.Username, Email: u.Email})
}

// DeleteCard handles DELETE /api/cards/{id}.
func (h *RecordHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	h.requestDelete(w, r, models.SectionCards)
}

// DeletePassword handles DELETE /api/passwords/{id}.
func (h *RecordHandler) DeletePassword(w http.ResponseWriter, r *http.Request) {
	h.requestDelete(w, r, models.SectionPasswords)
}

func (h *RecordHandler) requestDelete(w http.ResponseWriter, r *http.Request, section models.Section) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	if err := h.RecordService.RequestDelete(r.Context(), section, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Error:  "validation failed",
			Fields: verr.FieldMessages(),
		})
	case errors.Is(err, models.ErrUnauthenticated):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, models.ErrUserNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
	case errors.Is(err, models.ErrStoreUnavailable):
		http.Error(w, "record store unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, models.ErrNotImplemented):
		http.Error(w, "not implemented", http.StatusNotImplemented)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
