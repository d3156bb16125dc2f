package redemption

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pointcard/backend/internal/ledger"
	"github.com/pointcard/backend/internal/middleware"
	"github.com/pointcard/backend/internal/models"
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

type redeemRequest struct {
	RewardID string `json:"reward_id"`
}

// Redeem handles POST /api/v1/redemptions for the authenticated customer.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	rewardID, err := uuid.Parse(req.RewardID)
	if err != nil {
		http.Error(w, `{"error":"invalid reward_id"}`, http.StatusBadRequest)
		return
	}

	d, err := h.svc.Redeem(r.Context(), id.AccountID, rewardID)
	if err != nil {
		h.writeRedeemError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(d)
}

func (h *Handler) writeRedeemError(w http.ResponseWriter, err error) {
	var short *ledger.InsufficientBalanceError
	switch {
	case errors.Is(err, ErrRewardNotFound):
		http.Error(w, `{"error":"reward not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrRewardInactive):
		http.Error(w, `{"error":"reward is not active"}`, http.StatusConflict)
	case errors.Is(err, ErrRewardOutOfStock):
		http.Error(w, `{"error":"reward is out of stock"}`, http.StatusConflict)
	case errors.As(err, &short):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":     short.Error(),
			"scope":     short.Scope,
			"required":  short.Required,
			"available": short.Available,
		})
	case errors.Is(err, ledger.ErrCustomerNotFound):
		http.Error(w, `{"error":"customer not found"}`, http.StatusNotFound)
	case errors.Is(err, ledger.ErrConcurrentModification):
		http.Error(w, `{"error":"concurrent modification, retry"}`, http.StatusConflict)
	default:
		h.log.Error("redeem", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

// MarkDelivered handles POST /api/v1/redemptions/{id}/deliver.
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.MarkDelivered)
}

// Cancel handles POST /api/v1/redemptions/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, redemptionID, businessID uuid.UUID) (*models.Redemption, error),
) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	redemptionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid redemption id"}`, http.StatusBadRequest)
		return
	}

	d, err := op(r.Context(), redemptionID, id.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRedemptionNotFound):
			http.Error(w, `{"error":"redemption not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrRedemptionAlreadyTerminal):
			http.Error(w, `{"error":"redemption already delivered or cancelled"}`, http.StatusConflict)
		case errors.Is(err, ledger.ErrConcurrentModification):
			http.Error(w, `{"error":"concurrent modification, retry"}`, http.StatusConflict)
		default:
			h.log.Error("redemption transition", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d)
}

// History handles GET /api/v1/redemptions for the authenticated account.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.History(r.Context(), id.AccountID, id.Type)
	if err != nil {
		h.log.Error("list redemptions", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

type createRewardRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	PointsRequired int    `json:"points_required"`
	Stock          int    `json:"stock"`
}

// CreateReward handles POST /api/v1/rewards for the authenticated business.
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	reward, err := h.svc.CreateReward(r.Context(), id.AccountID, req.Name, req.Description, req.Category, req.PointsRequired, req.Stock)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(reward)
}

// ListRewards handles GET /api/v1/rewards?business_id=...&all=true.
// Customers see only active rewards; the owning business may pass all=true.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	businessID, err := uuid.Parse(r.URL.Query().Get("business_id"))
	if err != nil {
		http.Error(w, `{"error":"business_id query parameter required"}`, http.StatusBadRequest)
		return
	}
	activeOnly := !(r.URL.Query().Get("all") == "true" && id.AccountID == businessID)
	list, err := h.svc.ListRewards(r.Context(), businessID, activeOnly)
	if err != nil {
		h.log.Error("list rewards", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}
