/**
 * @description
 * This file sets up the HTTP router for the remittance service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies any necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: Cross-origin request handling.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the wiring the router needs beyond the handlers.
type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
}

// NewRouter creates and returns the router for the remittance service.
func NewRouter(h *RemittanceHandlers, webhook *WebhookHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// The verification provider authenticates with its own signature scheme,
	// not a bearer token, so the webhook stays outside the auth group.
	r.Post("/webhook/identity-verification-callback", webhook.ServeHTTP)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/remittances", h.CreateRemittanceHandler)
		r.Get("/remittances", h.ListRemittancesHandler)
		r.Get("/remittances/{transactionID}", h.GetRemittanceHandler)
		r.Post("/remittances/{transactionID}/receipt", h.UploadReceiptHandler)
		r.Post("/remittances/{transactionID}/cancel", h.CancelRemittanceHandler)

		// Operator endpoints
		r.Post("/remittances/{transactionID}/processing", h.BeginProcessingHandler)
		r.Post("/remittances/{transactionID}/operator-receipt", h.OperatorReceiptHandler)
		r.Post("/remittances/{transactionID}/fail", h.FailRemittanceHandler)

		// Collection account management
		r.Get("/bank-accounts", h.ListBankAccountsHandler)
		r.Post("/bank-accounts", h.CreateBankAccountHandler)
		r.Put("/bank-accounts/{accountID}/default", h.SetDefaultBankAccountHandler)

		// Identity verification
		r.Post("/verifications", h.SubmitVerificationHandler)
		r.Delete("/verifications/pending", h.CancelVerificationHandler)
	})

	return r
}
