/**
 * @description
 * This file defines the core domain models for the remittance backend.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Monetary amounts use decimal.Decimal so cross-currency conversion does not
 *   accumulate floating-point error; they map to NUMERIC columns.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction statuses. Terminal states are completed, failed and cancelled.
const (
	StatusPendingInput            = "PENDING_INPUT"
	StatusAwaitingKycVerification = "AWAITING_KYC_VERIFICATION"
	StatusAwaitingConfirmation    = "AWAITING_CONFIRMATION"
	StatusProcessing              = "PROCESSING"
	StatusCompleted               = "COMPLETED"
	StatusFailed                  = "FAILED"
	StatusCancelled               = "CANCELLED"
)

// Transaction represents one remittance request. It maps directly to the
// `transactions` table.
type Transaction struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	Reference          string          `json:"reference"`
	Amount             decimal.Decimal `json:"amount"`
	SourceCurrency     string          `json:"source_currency"`
	SettlementCurrency string          `json:"settlement_currency"`
	DetailType         string          `json:"detail_type"`
	Status             string          `json:"status"`
	InitiatedAt        time.Time       `json:"initiated_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	FailedAt           *time.Time      `json:"failed_at,omitempty"`
}

// IsTerminal reports whether the transaction has reached a final status.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TransactionDetail holds the settlement-specific data for one Transaction
// (1:1, keyed by transaction id). It is created atomically with its
// Transaction and never orphaned.
type TransactionDetail struct {
	TransactionID       uuid.UUID           `json:"transaction_id"`
	CounterpartyAccount string              `json:"counterparty_account"`
	CounterpartyName    string              `json:"counterparty_name"`
	QRCodeURL           string              `json:"qr_code_url"`
	BankAccount         BankAccountSnapshot `json:"bank_account"`
	BuyerReceiptURL     *string             `json:"buyer_receipt_url,omitempty"`
	OperatorReceiptURL  *string             `json:"operator_receipt_url,omitempty"`
	ConvertedAmount     *decimal.Decimal    `json:"converted_amount,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// BankAccountSnapshot is an immutable copy of the bank account a user is
// instructed to pay into, embedded into TransactionDetail at creation time.
// Later edits to the canonical bank_accounts row do not change it.
type BankAccountSnapshot struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	Currency      string `json:"currency"`
}

// BankAccount is a canonical operator-owned collection account for a
// currency. At most one row per currency is the default.
type BankAccount struct {
	ID            uuid.UUID `json:"id"`
	BankName      string    `json:"bank_name"`
	AccountName   string    `json:"account_name"`
	AccountNumber string    `json:"account_number"`
	Currency      string    `json:"currency"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Snapshot copies the payment-relevant fields of a bank account.
func (b *BankAccount) Snapshot() BankAccountSnapshot {
	return BankAccountSnapshot{
		BankName:      b.BankName,
		AccountName:   b.AccountName,
		AccountNumber: b.AccountNumber,
		Currency:      b.Currency,
	}
}

// ExchangeRate represents one active currency-pair rate row.
type ExchangeRate struct {
	ID           uuid.UUID       `json:"id"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
	Active       bool            `json:"active"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// User is the simplified view of a user that this service needs. The full
// aggregate is owned elsewhere; we read and write only these fields.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	FullName    string    `json:"full_name"`
	KycVerified bool      `json:"kyc_verified"`
}

// CreateRemittanceRequest is the DTO for initiating a new remittance.
type CreateRemittanceRequest struct {
	Amount              decimal.Decimal `json:"amount"`
	SourceCurrency      string          `json:"source_currency"`
	DetailType          string          `json:"detail_type"`
	CounterpartyAccount string          `json:"counterparty_account"`
	CounterpartyName    string          `json:"counterparty_name"`
}

// UploadedFile carries the bytes of a multipart upload through the app layer.
type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}
