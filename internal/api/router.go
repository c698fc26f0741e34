/**
 * @description
 * This file sets up the HTTP router for the transfer-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies authentication and role middleware. The admin surface requires the
 * ADMIN realm role; everything else requires USER.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AuthSettings carries the token validation parameters for the router.
type AuthSettings struct {
	JWKSURL  string
	Issuer   string
	Audience string
}

// TransferRoutes creates and returns the router for the transfer service.
// Routes are mounted under /api/v1/transactions by the caller.
func TransferRoutes(h *TransferHandlers, auth AuthSettings) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(KeycloakAuthMiddleware(auth.JWKSURL, auth.Issuer, auth.Audience))

		r.Group(func(r chi.Router) {
			r.Use(RequireRole("USER"))

			r.Post("/", h.CreateTransferHandler)
			r.Get("/me", h.ListMyTransactionsHandler)
			r.Get("/me/{transactionID}", h.GetMyTransactionHandler)
			r.Get("/me/accounts/{accountID}", h.ListMyAccountTransactionsHandler)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole("ADMIN"))

			r.Get("/transactions", h.ListAllTransactionsHandler)
			r.Get("/transactions/{transactionID}", h.GetTransactionHandler)
			r.Post("/transactions/{transactionID}/revert", h.RevertTransactionHandler)
			r.Get("/accounts/{accountID}", h.ListAccountTransactionsHandler)
			r.Get("/users/{userID}", h.ListUserTransactionsHandler)
		})
	})

	return r
}
