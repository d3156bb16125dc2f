package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pointcard/backend/internal/middleware"
	"github.com/pointcard/backend/internal/tokens"
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

type creditRequest struct {
	TokenID     string `json:"token_id"`
	AmountCents int64  `json:"amount_cents"`
}

// Credit handles POST /api/v1/credits. The authenticated business presents a
// customer's token and the purchase amount; the ledger consumes the token and
// credits points per the business formula.
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	tokenID, err := uuid.Parse(req.TokenID)
	if err != nil {
		http.Error(w, `{"error":"invalid token_id"}`, http.StatusBadRequest)
		return
	}

	result, err := h.svc.Credit(r.Context(), id.AccountID, tokenID, req.AmountCents)
	if err != nil {
		h.writeCreditError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)
}

func (h *Handler) writeCreditError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		http.Error(w, `{"error":"amount must be positive"}`, http.StatusBadRequest)
	case errors.Is(err, ErrBusinessNotFound), errors.Is(err, ErrCustomerNotFound):
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
	case errors.Is(err, tokens.ErrTokenNotFound):
		http.Error(w, `{"error":"token not found"}`, http.StatusNotFound)
	case errors.Is(err, tokens.ErrTokenExpired):
		http.Error(w, `{"error":"token expired"}`, http.StatusGone)
	case errors.Is(err, tokens.ErrTokenConsumed):
		http.Error(w, `{"error":"token already consumed"}`, http.StatusConflict)
	case errors.Is(err, tokens.ErrAccountInactive):
		http.Error(w, `{"error":"account inactive"}`, http.StatusForbidden)
	case errors.Is(err, ErrConcurrentModification):
		http.Error(w, `{"error":"concurrent modification, retry"}`, http.StatusConflict)
	default:
		h.log.Error("credit points", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

// History handles GET /api/v1/transactions for the authenticated account.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.History(r.Context(), id.AccountID, id.Type)
	if err != nil {
		h.log.Error("list transactions", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}
