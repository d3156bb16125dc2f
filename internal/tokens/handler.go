package tokens

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pointcard/backend/internal/middleware"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Issue handles POST /api/v1/tokens. The authenticated customer gets a fresh
// single-use QR authorization token.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	view, err := h.svc.Issue(r.Context(), id.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, ErrCustomerNotFound):
			http.Error(w, `{"error":"customer not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrAccountInactive):
			http.Error(w, `{"error":"account inactive"}`, http.StatusForbidden)
		default:
			h.log.Error("issue token", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(view)
}

// Validate handles GET /api/v1/tokens/{id}. Read-only: it never consumes.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid token id"}`, http.StatusBadRequest)
		return
	}
	v, err := h.svc.Validate(r.Context(), tokenID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			http.Error(w, `{"error":"token not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrTokenExpired):
			http.Error(w, `{"error":"token expired"}`, http.StatusGone)
		case errors.Is(err, ErrTokenConsumed):
			http.Error(w, `{"error":"token already consumed"}`, http.StatusConflict)
		case errors.Is(err, ErrAccountInactive):
			http.Error(w, `{"error":"account inactive"}`, http.StatusForbidden)
		default:
			h.log.Error("validate token", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
