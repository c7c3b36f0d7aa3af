/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL queries for the tables owned by the orchestrator
 * (`transactions`, `transaction_details`, `verifications`) and for the
 * supporting tables it consumes (`users`, `bank_accounts`, `exchange_rates`).
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - Verification terminal transitions go through a guarded UPDATE whose WHERE
 *   clause pins the expected prior status, so a duplicate webhook delivery
 *   loses the race instead of reapplying the transition.
 * - TransactionDetail is fetched by transaction id through an explicit call,
 *   never through a join the caller cannot see.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/azeezabass2005/soolution-be/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrBankAccountNotFound  = errors.New("bank account not found")
	ErrRateNotFound         = errors.New("exchange rate not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDetailNotFound       = errors.New("transaction detail not found")
	ErrVerificationNotFound = errors.New("verification not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, email, phone_number, full_name, kyc_verified FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Email, &user.PhoneNumber, &user.FullName, &user.KycVerified)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// MarkUserVerified flips the user's kyc_verified flag after a passed verification.
func (r *PostgresRepository) MarkUserVerified(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET kyc_verified = TRUE, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// FindDefaultBankAccountByCurrency returns the default collection account for a currency.
func (r *PostgresRepository) FindDefaultBankAccountByCurrency(ctx context.Context, currency string) (*domain.BankAccount, error) {
	var account domain.BankAccount
	query := `
		SELECT id, bank_name, account_name, account_number, currency, is_default, created_at, updated_at
		FROM bank_accounts
		WHERE currency = $1 AND is_default = TRUE
	`
	err := r.db.QueryRow(ctx, query, currency).Scan(
		&account.ID,
		&account.BankName,
		&account.AccountName,
		&account.AccountNumber,
		&account.Currency,
		&account.IsDefault,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBankAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListBankAccounts returns every operator collection account.
func (r *PostgresRepository) ListBankAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	query := `
		SELECT id, bank_name, account_name, account_number, currency, is_default, created_at, updated_at
		FROM bank_accounts
		ORDER BY currency, created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.BankAccount
	for rows.Next() {
		var account domain.BankAccount
		if err := rows.Scan(
			&account.ID,
			&account.BankName,
			&account.AccountName,
			&account.AccountNumber,
			&account.Currency,
			&account.IsDefault,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// CreateBankAccount inserts a new collection account.
func (r *PostgresRepository) CreateBankAccount(ctx context.Context, account *domain.BankAccount) error {
	query := `
		INSERT INTO bank_accounts (id, bank_name, account_name, account_number, currency, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		account.ID,
		account.BankName,
		account.AccountName,
		account.AccountNumber,
		account.Currency,
		account.IsDefault,
	)
	return err
}

// SetDefaultBankAccount promotes one account to default for its currency.
// Clearing the old default and setting the new one happen in the same
// database transaction so no reader observes zero or two defaults.
func (r *PostgresRepository) SetDefaultBankAccount(ctx context.Context, accountID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin default swap tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var currency string
	if err := tx.QueryRow(ctx, `SELECT currency FROM bank_accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&currency); err != nil {
		if err == pgx.ErrNoRows {
			return ErrBankAccountNotFound
		}
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE bank_accounts SET is_default = FALSE, updated_at = NOW() WHERE currency = $1 AND is_default = TRUE AND id <> $2`,
		currency, accountID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE bank_accounts SET is_default = TRUE, updated_at = NOW() WHERE id = $1`,
		accountID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindActiveRate returns the currently active rate row for a currency pair.
func (r *PostgresRepository) FindActiveRate(ctx context.Context, from, to string) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	query := `
		SELECT id, from_currency, to_currency, rate, active, updated_at
		FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2 AND active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, from, to).Scan(
		&rate.ID,
		&rate.FromCurrency,
		&rate.ToCurrency,
		&rate.Rate,
		&rate.Active,
		&rate.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRateNotFound
		}
		return nil, err
	}
	return &rate, nil
}

// CreateTransactionWithDetail inserts a transaction and its detail row
// atomically. Neither row exists if either insert fails.
func (r *PostgresRepository) CreateTransactionWithDetail(ctx context.Context, txRecord *domain.Transaction, detail *domain.TransactionDetail) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback(ctx)

	txQuery := `
		INSERT INTO transactions (id, user_id, reference, amount, source_currency, settlement_currency, detail_type, status, initiated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	if _, err := tx.Exec(ctx, txQuery,
		txRecord.ID,
		txRecord.UserID,
		txRecord.Reference,
		txRecord.Amount,
		txRecord.SourceCurrency,
		txRecord.SettlementCurrency,
		txRecord.DetailType,
		txRecord.Status,
	); err != nil {
		return err
	}

	snapshot, err := json.Marshal(detail.BankAccount)
	if err != nil {
		return fmt.Errorf("marshal bank account snapshot: %w", err)
	}

	detailQuery := `
		INSERT INTO transaction_details (transaction_id, counterparty_account, counterparty_name, qr_code_url, bank_account_snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, NOW(), NOW())
	`
	if _, err := tx.Exec(ctx, detailQuery,
		detail.TransactionID,
		detail.CounterpartyAccount,
		detail.CounterpartyName,
		detail.QRCodeURL,
		string(snapshot),
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindTransactionByID retrieves a transaction by its ID.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	var txRecord domain.Transaction
	query := `
		SELECT id, user_id, reference, amount, source_currency, settlement_currency, detail_type, status, initiated_at, completed_at, failed_at
		FROM transactions
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&txRecord.ID,
		&txRecord.UserID,
		&txRecord.Reference,
		&txRecord.Amount,
		&txRecord.SourceCurrency,
		&txRecord.SettlementCurrency,
		&txRecord.DetailType,
		&txRecord.Status,
		&txRecord.InitiatedAt,
		&txRecord.CompletedAt,
		&txRecord.FailedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txRecord, nil
}

// FindTransactionDetail retrieves the detail row for a transaction.
func (r *PostgresRepository) FindTransactionDetail(ctx context.Context, transactionID uuid.UUID) (*domain.TransactionDetail, error) {
	var (
		detail   domain.TransactionDetail
		snapshot []byte
	)
	query := `
		SELECT transaction_id, counterparty_account, counterparty_name, qr_code_url, bank_account_snapshot, buyer_receipt_url, operator_receipt_url, converted_amount, created_at, updated_at
		FROM transaction_details
		WHERE transaction_id = $1
	`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&detail.TransactionID,
		&detail.CounterpartyAccount,
		&detail.CounterpartyName,
		&detail.QRCodeURL,
		&snapshot,
		&detail.BuyerReceiptURL,
		&detail.OperatorReceiptURL,
		&detail.ConvertedAmount,
		&detail.CreatedAt,
		&detail.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDetailNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &detail.BankAccount); err != nil {
		return nil, fmt.Errorf("decode bank account snapshot: %w", err)
	}
	return &detail, nil
}

// FindTransactionsByUserID returns a user's transactions, newest first.
func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	query := `
		SELECT id, user_id, reference, amount, source_currency, settlement_currency, detail_type, status, initiated_at, completed_at, failed_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY initiated_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var txRecord domain.Transaction
		if err := rows.Scan(
			&txRecord.ID,
			&txRecord.UserID,
			&txRecord.Reference,
			&txRecord.Amount,
			&txRecord.SourceCurrency,
			&txRecord.SettlementCurrency,
			&txRecord.DetailType,
			&txRecord.Status,
			&txRecord.InitiatedAt,
			&txRecord.CompletedAt,
			&txRecord.FailedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, txRecord)
	}
	return transactions, rows.Err()
}

// UpdateTransactionStatus sets a transaction's status and keeps the
// completion timestamps consistent with it: completed_at only for COMPLETED,
// failed_at only for FAILED/CANCELLED, both cleared otherwise.
func (r *PostgresRepository) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error {
	query := `
		UPDATE transactions
		SET
			status = $2,
			completed_at = CASE WHEN $2 = 'COMPLETED' THEN NOW() ELSE NULL END,
			failed_at = CASE WHEN $2 IN ('FAILED', 'CANCELLED') THEN NOW() ELSE NULL END
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, transactionID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// RecordBuyerReceipt stores the buyer's payment proof URL and the amount
// converted at upload time.
func (r *PostgresRepository) RecordBuyerReceipt(ctx context.Context, transactionID uuid.UUID, receiptURL string, convertedAmount decimal.Decimal) error {
	query := `
		UPDATE transaction_details
		SET buyer_receipt_url = $2, converted_amount = $3, updated_at = NOW()
		WHERE transaction_id = $1
	`
	result, err := r.db.Exec(ctx, query, transactionID, receiptURL, convertedAmount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrDetailNotFound
	}
	return nil
}

// RecordOperatorReceipt stores the operator's settlement proof URL.
func (r *PostgresRepository) RecordOperatorReceipt(ctx context.Context, transactionID uuid.UUID, receiptURL string) error {
	query := `
		UPDATE transaction_details
		SET operator_receipt_url = $2, updated_at = NOW()
		WHERE transaction_id = $1
	`
	result, err := r.db.Exec(ctx, query, transactionID, receiptURL)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrDetailNotFound
	}
	return nil
}

// ReleaseTransactionsFromKyc batch-moves the user's AWAITING_KYC_VERIFICATION
// transactions to AWAITING_CONFIRMATION. Rows already past that state do not
// match the WHERE clause, which is what makes re-invocation a no-op.
func (r *PostgresRepository) ReleaseTransactionsFromKyc(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		UPDATE transactions
		SET status = $3
		WHERE user_id = $1 AND status = $2
	`
	result, err := r.db.Exec(ctx, query, userID, domain.StatusAwaitingKycVerification, domain.StatusAwaitingConfirmation)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CreateVerification inserts a new pending verification attempt.
func (r *PostgresRepository) CreateVerification(ctx context.Context, v *domain.Verification) error {
	query := `
		INSERT INTO verifications (id, user_id, job_id, status, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query, v.ID, v.UserID, v.JobID, v.Status, v.FailureReason)
	return err
}

// FindPendingVerificationByUser returns the user's pending verification, if any.
func (r *PostgresRepository) FindPendingVerificationByUser(ctx context.Context, userID uuid.UUID) (*domain.Verification, error) {
	return r.findVerificationByUserAndStatus(ctx, userID, domain.VerificationPending)
}

// FindLatestFailedVerificationByUser returns the user's most recent failed
// verification. The webhook path inspects its failure reason to heal the
// intermediate-code race.
func (r *PostgresRepository) FindLatestFailedVerificationByUser(ctx context.Context, userID uuid.UUID) (*domain.Verification, error) {
	return r.findVerificationByUserAndStatus(ctx, userID, domain.VerificationFailed)
}

func (r *PostgresRepository) findVerificationByUserAndStatus(ctx context.Context, userID uuid.UUID, status string) (*domain.Verification, error) {
	var v domain.Verification
	query := `
		SELECT id, user_id, job_id, status, failure_reason, created_at, resolved_at
		FROM verifications
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, userID, status).Scan(
		&v.ID,
		&v.UserID,
		&v.JobID,
		&v.Status,
		&v.FailureReason,
		&v.CreatedAt,
		&v.ResolvedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrVerificationNotFound
		}
		return nil, err
	}
	return &v, nil
}

// TransitionVerification applies a terminal transition guarded on the row's
// current status. RowsAffected tells the caller whether it won the race; the
// losing duplicate of a concurrent identical delivery sees zero rows.
func (r *PostgresRepository) TransitionVerification(ctx context.Context, verificationID uuid.UUID, expectedStatuses []string, newStatus string, reason *string) (bool, error) {
	query := `
		UPDATE verifications
		SET status = $2, failure_reason = $3, resolved_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`
	result, err := r.db.Exec(ctx, query, verificationID, newStatus, reason, expectedStatuses)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// ExpireStaleVerifications fails every pending verification created before
// the cutoff and returns how many rows it touched.
func (r *PostgresRepository) ExpireStaleVerifications(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	query := `
		UPDATE verifications
		SET status = $2, failure_reason = $3, resolved_at = NOW()
		WHERE status = $1 AND created_at < $4
	`
	result, err := r.db.Exec(ctx, query, domain.VerificationPending, domain.VerificationFailed, reason, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
