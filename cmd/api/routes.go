package main

import (
	"net/http"

	"github.com/pointcard/backend/internal/auth"
	"github.com/pointcard/backend/internal/ledger"
	"github.com/pointcard/backend/internal/middleware"
	"github.com/pointcard/backend/internal/redemption"
	"github.com/pointcard/backend/internal/tokens"
)

type routeDeps struct {
	AuthHandler       *auth.Handler
	TokenHandler      *tokens.Handler
	LedgerHandler     *ledger.Handler
	RedemptionHandler *redemption.Handler
	Verifier          middleware.TokenVerifier
}

// registerRoutes mounts the API under /api/v1.
// Middleware chain: RequireAuth -> (RequireCustomer | RequireBusiness) -> handler.
func registerRoutes(mux *http.ServeMux, d routeDeps) {
	authed := middleware.RequireAuth(d.Verifier)
	customer := func(h http.HandlerFunc) http.Handler { return authed(middleware.RequireCustomer(h)) }
	business := func(h http.HandlerFunc) http.Handler { return authed(middleware.RequireBusiness(h)) }
	any := func(h http.HandlerFunc) http.Handler { return authed(h) }

	// Session
	mux.HandleFunc("POST /api/v1/auth/register", d.AuthHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", d.AuthHandler.Login)

	// Authorization tokens (QR codes)
	mux.Handle("POST /api/v1/tokens", customer(d.TokenHandler.Issue))
	mux.Handle("GET /api/v1/tokens/{id}", business(d.TokenHandler.Validate))

	// Points ledger
	mux.Handle("POST /api/v1/credits", business(d.LedgerHandler.Credit))
	mux.Handle("GET /api/v1/transactions", any(d.LedgerHandler.History))

	// Reward catalog & redemptions
	mux.Handle("POST /api/v1/rewards", business(d.RedemptionHandler.CreateReward))
	mux.Handle("GET /api/v1/rewards", any(d.RedemptionHandler.ListRewards))
	mux.Handle("POST /api/v1/redemptions", customer(d.RedemptionHandler.Redeem))
	mux.Handle("GET /api/v1/redemptions", any(d.RedemptionHandler.History))
	mux.Handle("POST /api/v1/redemptions/{id}/deliver", business(d.RedemptionHandler.MarkDelivered))
	mux.Handle("POST /api/v1/redemptions/{id}/cancel", business(d.RedemptionHandler.Cancel))
}
