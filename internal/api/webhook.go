/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from
 * the identity verification provider. It acts as the entry point for all
 * asynchronous verification verdicts.
 *
 * Key features:
 * - Security: Validates the shared-secret signature of incoming webhooks to
 *   ensure authenticity before anything is mutated.
 * - Acknowledgement posture: once a payload is authenticated and structurally
 *   accepted, the handler always responds 200 regardless of the internal
 *   outcome. The provider treats non-200 as "redeliver", so surfacing
 *   business failures here would only cause retry storms.
 * - Replay suppression: recently seen job callbacks are remembered in Redis
 *   so a burst of duplicate deliveries is dropped at the edge. The database
 *   conditional update remains the actual correctness guarantee.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/redis/go-redis/v9: Optional replay cache.
 * - internal/app, internal/domain: Callback processing.
 */
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/azeezabass2005/soolution-be/internal/app"
	"github.com/azeezabass2005/soolution-be/internal/domain"
)

// replayWindow is how long a processed callback is remembered for dedup.
const replayWindow = 10 * time.Minute

// SignatureVerifier authenticates a webhook payload's signature.
type SignatureVerifier interface {
	VerifySignature(timestamp, signature string) bool
}

// WebhookHandler processes incoming verification callbacks.
type WebhookHandler struct {
	verification *app.VerificationService
	verifier     SignatureVerifier
	redisClient  *redis.Client
}

// NewWebhookHandler creates a new handler for the webhook endpoint. The
// Redis client is optional; without it replay suppression is skipped.
func NewWebhookHandler(verification *app.VerificationService, verifier SignatureVerifier, redisClient *redis.Client) *WebhookHandler {
	return &WebhookHandler{
		verification: verification,
		verifier:     verifier,
		redisClient:  redisClient,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var callback domain.VerificationCallback
	if err := json.NewDecoder(r.Body).Decode(&callback); err != nil {
		log.Printf("level=warn component=webhook msg=\"unparseable callback body\" remote=%s err=%v", r.RemoteAddr, err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	// Signature and timestamp are the only hard requirements. Their absence
	// or mismatch means a forged or malformed call, not a legitimate retry
	// target, so this is the one path allowed to return non-200.
	if callback.Signature == "" || callback.Timestamp == "" {
		log.Printf("level=warn component=webhook msg=\"callback missing signature or timestamp\" remote=%s", r.RemoteAddr)
		http.Error(w, "Missing signature", http.StatusBadRequest)
		return
	}
	if !h.verifier.VerifySignature(callback.Timestamp, callback.Signature) {
		log.Printf("level=warn component=webhook msg=\"callback signature mismatch\" remote=%s user_id=%q", r.RemoteAddr, callback.PartnerParams.UserID)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	if h.isReplay(r.Context(), callback) {
		log.Printf("level=info component=webhook msg=\"duplicate delivery suppressed\" job_id=%q code=%s", callback.PartnerParams.JobID, callback.ResultCode)
		h.acknowledge(w)
		return
	}

	if err := h.verification.ProcessCallback(r.Context(), callback); err != nil {
		// Internal failures are logged, never surfaced. The acknowledgement
		// below keeps the provider from hammering us with redeliveries.
		log.Printf("level=error component=webhook msg=\"callback processing failed\" job_id=%q code=%s err=%v", callback.PartnerParams.JobID, callback.ResultCode, err)
	}
	h.acknowledge(w)
}

func (h *WebhookHandler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received": true}`))
}

// isReplay records the callback's identity in Redis and reports whether it
// was already seen inside the replay window. Redis being down fails open.
func (h *WebhookHandler) isReplay(ctx context.Context, callback domain.VerificationCallback) bool {
	if h.redisClient == nil || callback.PartnerParams.JobID == "" {
		return false
	}
	key := "webhook:seen:" + callback.PartnerParams.JobID + ":" + callback.ResultCode
	set, err := h.redisClient.SetNX(ctx, key, 1, replayWindow).Result()
	if err != nil {
		log.Printf("level=warn component=webhook msg=\"replay cache unavailable\" err=%v", err)
		return false
	}
	return !set
}
