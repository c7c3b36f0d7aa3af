/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the remittance backend. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - github.com/shopspring/decimal: For monetary amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/azeezabass2005/soolution-be/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User directory methods
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	MarkUserVerified(ctx context.Context, userID uuid.UUID) error

	// Bank account methods
	FindDefaultBankAccountByCurrency(ctx context.Context, currency string) (*domain.BankAccount, error)
	ListBankAccounts(ctx context.Context) ([]domain.BankAccount, error)
	CreateBankAccount(ctx context.Context, account *domain.BankAccount) error
	// SetDefaultBankAccount clears the previous default for the account's
	// currency and marks the given account default, both inside one
	// database transaction.
	SetDefaultBankAccount(ctx context.Context, accountID uuid.UUID) error

	// Exchange rate methods
	FindActiveRate(ctx context.Context, from, to string) (*domain.ExchangeRate, error)

	// Transaction methods
	CreateTransactionWithDetail(ctx context.Context, tx *domain.Transaction, detail *domain.TransactionDetail) error
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	FindTransactionDetail(ctx context.Context, transactionID uuid.UUID) (*domain.TransactionDetail, error)
	FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error
	RecordBuyerReceipt(ctx context.Context, transactionID uuid.UUID, receiptURL string, convertedAmount decimal.Decimal) error
	RecordOperatorReceipt(ctx context.Context, transactionID uuid.UUID, receiptURL string) error
	// ReleaseTransactionsFromKyc moves every transaction of the user that is
	// in AWAITING_KYC_VERIFICATION to AWAITING_CONFIRMATION in one batch
	// update and returns the number of rows changed. Calling it again when
	// no rows match is a no-op.
	ReleaseTransactionsFromKyc(ctx context.Context, userID uuid.UUID) (int64, error)

	// Verification methods
	CreateVerification(ctx context.Context, v *domain.Verification) error
	FindPendingVerificationByUser(ctx context.Context, userID uuid.UUID) (*domain.Verification, error)
	FindLatestFailedVerificationByUser(ctx context.Context, userID uuid.UUID) (*domain.Verification, error)
	// TransitionVerification applies a terminal transition only if the row's
	// current status is one of expectedStatuses. It reports whether the
	// update won; a duplicate delivery observes false and must not fan out.
	TransitionVerification(ctx context.Context, verificationID uuid.UUID, expectedStatuses []string, newStatus string, reason *string) (bool, error)
	ExpireStaleVerifications(ctx context.Context, olderThan time.Time, reason string) (int64, error)
}
