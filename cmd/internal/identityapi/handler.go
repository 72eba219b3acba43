// Package identityapi exposes identity issuance and lookup over HTTP/JSON.
//
// Routes:
//
//	POST /v1/identities               issue a new identity
//	GET  /v1/identities/{id}          look up by numeric id
//	GET  /v1/identities/by-key/{key}  look up by access key (exact match)
//
// Access keys are never written to logs.
package identityapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"identd/cmd/identity"
)

// Service is what the handler needs from the issuance layer.
type Service interface {
	Issue(ctx context.Context) (identity.Identity, error)
	Lookup(ctx context.Context, key string) (identity.Identity, error)
	Get(ctx context.Context, id int64) (identity.Identity, error)
}

// Handler wires HTTP identity endpoints to a Service.
type Handler struct {
	log *slog.Logger
	svc Service
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, svc Service) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("identityapi: nil service")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, svc: svc}, nil
}

// Register wires identity routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /v1/identities", h.handleCreate)
	mux.HandleFunc("GET /v1/identities/{id}", h.handleGet)
	mux.HandleFunc("GET /v1/identities/by-key/{key}", h.handleLookup)
}

// ---- handlers ----

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Issue(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "identity.issue.fail", err)
		return
	}

	h.log.Info("identity.issued", "identity_id", out.ID)
	w.Header().Set("Location", "/v1/identities/"+strconv.FormatInt(out.ID, 10))
	writeJSON(w, http.StatusCreated, toIdentityResponse(out))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "id must be an integer")
		return
	}

	out, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "identity.get.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(out))
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	// The key goes to the store untouched; matching is exact.
	out, err := h.svc.Lookup(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, r, "identity.lookup.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(out))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	switch {
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "identity not found")
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request")
	case identity.IsConflict(err):
		h.log.Warn(event, "err", err, "path", r.URL.Path)
		writeError(w, http.StatusConflict, "conflict", "access key collision, retry")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		h.log.Info(event, "reason", "context_canceled")
	default:
		h.log.Error(event, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
