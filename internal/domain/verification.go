/**
 * @description
 * Domain models for the identity-verification lifecycle: the Verification
 * record this service owns, and the webhook payload delivered by the KYC
 * provider when a verification job finishes a wave of checks.
 *
 * @notes
 * - A user has at most one `pending` Verification at a time; the staleness
 *   override in the app layer is the only path around that rule.
 * - The provider delivers result codes in multiple waves. Only final codes
 *   may terminate a Verification; intermediate codes are acknowledged and
 *   dropped.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Verification statuses.
const (
	VerificationPending = "pending"
	VerificationPassed  = "passed"
	VerificationFailed  = "failed"
)

// Verification represents one identity-verification attempt for a user.
type Verification struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	JobID         string     `json:"job_id"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// SubmitVerificationRequest is the DTO for a verification submission.
type SubmitVerificationRequest struct {
	IDType   string `json:"id_type"`
	IDNumber string `json:"id_number"`
	Country  string `json:"country"`
}

// VerificationCallback is the webhook payload the KYC provider posts to
// /webhook/identity-verification-callback.
type VerificationCallback struct {
	ResultCode string `json:"ResultCode"`
	ResultText string `json:"ResultText"`
	// The provider sends the confidence as a quoted string in some waves and
	// as a bare number in others; json.Number decodes both.
	ConfidenceVal json.Number       `json:"ConfidenceValue"`
	Actions       map[string]string `json:"Actions"`
	PartnerParams PartnerParams     `json:"PartnerParams"`
	Signature     string            `json:"signature"`
	Timestamp     string            `json:"timestamp"`
}

// PartnerParams carries the identifiers we supplied when the job was created.
type PartnerParams struct {
	UserID string `json:"user_id"`
	JobID  string `json:"job_id"`
}
