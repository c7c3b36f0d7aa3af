package domain

import (
	"time"

	"github.com/google/uuid"
)

// RemittanceStatusEvent is the message payload published to RabbitMQ whenever
// a transaction commits a status transition.
type RemittanceStatusEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	Reference     string    `json:"reference"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// VerificationResultEvent is published when a verification reaches a terminal
// state via the webhook path.
type VerificationResultEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Reason    *string   `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
