/**
 * @description
 * This file contains the transaction lifecycle orchestration for the
 * remittance backend. The `Service` struct owns every status transition of a
 * remittance: creation, receipt uploads, operator settlement, cancellation,
 * and the bulk release of transactions held behind identity verification.
 *
 * Key rules:
 * - Storage/provider failures during the triggering action abort the
 *   transition; nothing is persisted and the caller receives a typed error.
 * - Notification and event-publish failures after a committed transition are
 *   logged and swallowed; a transition is never rolled back for them.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For transaction IDs and reference generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For status-change event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/azeezabass2005/soolution-be/internal/domain"
	"github.com/azeezabass2005/soolution-be/internal/store"
	"github.com/azeezabass2005/soolution-be/pkg/rabbitmq"
)

// ReceiptStorage is the durable object store for payment proofs and QR codes.
type ReceiptStorage interface {
	Upload(ctx context.Context, data []byte, contentType, path string) (string, error)
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// Service owns the remittance transaction state machine.
type Service struct {
	repo               store.Repository
	storage            ReceiptStorage
	rates              *RateConverter
	notifier           *Dispatcher
	producer           rabbitmq.Publisher
	settlementCurrency string
	operatorRecipients []Recipient
}

// NewService creates a new remittance service instance.
func NewService(
	repo store.Repository,
	storage ReceiptStorage,
	rates *RateConverter,
	notifier *Dispatcher,
	producer rabbitmq.Publisher,
	settlementCurrency string,
	operatorRecipients []Recipient,
) *Service {
	return &Service{
		repo:               repo,
		storage:            storage,
		rates:              rates,
		notifier:           notifier,
		producer:           producer,
		settlementCurrency: settlementCurrency,
		operatorRecipients: operatorRecipients,
	}
}

// CreateRemittance validates the request, uploads the counterparty QR code,
// and creates the transaction in PENDING_INPUT together with its detail row.
// An upload failure aborts creation entirely; nothing is persisted.
func (s *Service) CreateRemittance(ctx context.Context, userID uuid.UUID, req domain.CreateRemittanceRequest, qrCode *domain.UploadedFile) (*domain.Transaction, error) {
	// 1. Validate input.
	if req.Amount.IsZero() || req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if strings.TrimSpace(req.SourceCurrency) == "" {
		return nil, fmt.Errorf("%w: source currency is required", ErrValidation)
	}
	if qrCode == nil || len(qrCode.Data) == 0 {
		return nil, fmt.Errorf("%w: qr code file is required", ErrValidation)
	}

	// 2. Resolve the paying user and the collection account they must pay into.
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	bankAccount, err := s.repo.FindDefaultBankAccountByCurrency(ctx, req.SourceCurrency)
	if err != nil {
		if errors.Is(err, store.ErrBankAccountNotFound) {
			return nil, fmt.Errorf("%w: no default bank account for currency %s", ErrNotFound, req.SourceCurrency)
		}
		return nil, fmt.Errorf("failed to find bank account: %w", err)
	}

	// 3. Upload the QR code before anything is persisted. A storage failure
	// here aborts the whole creation.
	transactionID := uuid.New()
	qrURL, err := s.storage.Upload(ctx, qrCode.Data, qrCode.ContentType, fmt.Sprintf("qr-codes/%s/%s", userID, transactionID))
	if err != nil {
		return nil, fmt.Errorf("%w: qr code upload failed: %v", ErrUpstream, err)
	}

	// 4. Create the transaction and its detail atomically.
	txRecord := &domain.Transaction{
		ID:                 transactionID,
		UserID:             userID,
		Reference:          generateReference(),
		Amount:             req.Amount,
		SourceCurrency:     req.SourceCurrency,
		SettlementCurrency: s.settlementCurrency,
		DetailType:         req.DetailType,
		Status:             domain.StatusPendingInput,
		InitiatedAt:        time.Now().UTC(),
	}
	detail := &domain.TransactionDetail{
		TransactionID:       transactionID,
		CounterpartyAccount: req.CounterpartyAccount,
		CounterpartyName:    req.CounterpartyName,
		QRCodeURL:           qrURL,
		BankAccount:         bankAccount.Snapshot(),
	}
	if err := s.repo.CreateTransactionWithDetail(ctx, txRecord, detail); err != nil {
		return nil, fmt.Errorf("failed to create transaction record: %w", err)
	}

	// 5. Best-effort side effects; the transaction is already committed.
	s.publishStatusEvent(ctx, txRecord)
	s.notifier.Dispatch(ctx, []Recipient{userRecipient(user)}, NotificationEvent{
		Kind:    "payment.initiated",
		Subject: "Payment initiated",
		Body: fmt.Sprintf("Your remittance %s for %s %s has been created. Please pay into %s (%s, %s) and upload your receipt.",
			txRecord.Reference, txRecord.Amount.String(), txRecord.SourceCurrency,
			bankAccount.AccountNumber, bankAccount.AccountName, bankAccount.BankName),
	})

	return txRecord, nil
}

// RecordUserReceipt uploads the buyer's payment proof, converts the amount to
// the settlement currency at the current active rate, and advances the
// transaction to AWAITING_CONFIRMATION when the user's KYC is already
// satisfied, or AWAITING_KYC_VERIFICATION otherwise. Operators are notified
// on every successful upload with the QR code and receipt attached.
func (s *Service) RecordUserReceipt(ctx context.Context, transactionID uuid.UUID, receipt *domain.UploadedFile, isUserKycDone bool) (*domain.Transaction, error) {
	if receipt == nil || len(receipt.Data) == 0 {
		return nil, fmt.Errorf("%w: receipt file is required", ErrValidation)
	}

	// 1. Load the transaction and verify it is waiting for the buyer's input.
	txRecord, err := s.findTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txRecord.Status != domain.StatusPendingInput {
		return nil, fmt.Errorf("%w: transaction %s is %s, expected %s", ErrValidation, txRecord.Reference, txRecord.Status, domain.StatusPendingInput)
	}

	// 2. Upload the receipt; failure aborts with state unmodified.
	receiptURL, err := s.storage.Upload(ctx, receipt.Data, receipt.ContentType, fmt.Sprintf("receipts/buyer/%s", transactionID))
	if err != nil {
		return nil, fmt.Errorf("%w: receipt upload failed: %v", ErrUpstream, err)
	}

	// 3. Convert at the rate active right now; conversion is recorded on the
	// detail so the operator sees the amount owed on the settlement side.
	converted, err := s.rates.Convert(ctx, txRecord.Amount, txRecord.SourceCurrency, txRecord.SettlementCurrency)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RecordBuyerReceipt(ctx, transactionID, receiptURL, converted); err != nil {
		return nil, fmt.Errorf("failed to record buyer receipt: %w", err)
	}

	// 4. Advance the state machine.
	nextStatus := domain.StatusAwaitingKycVerification
	if isUserKycDone {
		nextStatus = domain.StatusAwaitingConfirmation
	}
	if err := s.repo.UpdateTransactionStatus(ctx, transactionID, nextStatus); err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	txRecord.Status = nextStatus

	// 5. Operator fan-out with both proofs attached, best-effort.
	detail, detailErr := s.repo.FindTransactionDetail(ctx, transactionID)
	attachmentURLs := []string{receiptURL}
	if detailErr != nil {
		log.Printf("level=warn component=remit_service op=record_user_receipt msg=\"detail lookup for notification failed\" transaction_id=%s err=%v", transactionID, detailErr)
	} else {
		attachmentURLs = append(attachmentURLs, detail.QRCodeURL)
	}
	s.publishStatusEvent(ctx, txRecord)
	s.notifier.Dispatch(ctx, s.operatorRecipients, NotificationEvent{
		Kind:    "payment.receipt_uploaded",
		Subject: fmt.Sprintf("Receipt uploaded for %s", txRecord.Reference),
		Body: fmt.Sprintf("Remittance %s: buyer paid %s %s (settles %s %s). Receipt and QR code attached.",
			txRecord.Reference, txRecord.Amount.String(), txRecord.SourceCurrency, converted.String(), txRecord.SettlementCurrency),
		AttachmentURLs: attachmentURLs,
	})

	return txRecord, nil
}

// BeginProcessing marks a confirmed transaction as being settled by the
// operator.
func (s *Service) BeginProcessing(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	txRecord, err := s.findTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txRecord.Status != domain.StatusAwaitingConfirmation {
		return nil, fmt.Errorf("%w: transaction %s is %s, expected %s", ErrValidation, txRecord.Reference, txRecord.Status, domain.StatusAwaitingConfirmation)
	}
	if err := s.repo.UpdateTransactionStatus(ctx, transactionID, domain.StatusProcessing); err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	txRecord.Status = domain.StatusProcessing
	s.publishStatusEvent(ctx, txRecord)
	return txRecord, nil
}

// RecordOperatorReceipt uploads the operator's settlement proof and completes
// the transaction, notifying the end user with the proof attached.
func (s *Service) RecordOperatorReceipt(ctx context.Context, transactionID uuid.UUID, receipt *domain.UploadedFile) (*domain.Transaction, error) {
	if receipt == nil || len(receipt.Data) == 0 {
		return nil, fmt.Errorf("%w: receipt file is required", ErrValidation)
	}

	txRecord, err := s.findTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	// The operator may settle without first acknowledging via BeginProcessing,
	// so both AWAITING_CONFIRMATION and PROCESSING accept the receipt.
	if txRecord.Status != domain.StatusAwaitingConfirmation && txRecord.Status != domain.StatusProcessing {
		return nil, fmt.Errorf("%w: transaction %s is %s, expected %s or %s",
			ErrValidation, txRecord.Reference, txRecord.Status, domain.StatusAwaitingConfirmation, domain.StatusProcessing)
	}

	receiptURL, err := s.storage.Upload(ctx, receipt.Data, receipt.ContentType, fmt.Sprintf("receipts/operator/%s", transactionID))
	if err != nil {
		return nil, fmt.Errorf("%w: receipt upload failed: %v", ErrUpstream, err)
	}
	if err := s.repo.RecordOperatorReceipt(ctx, transactionID, receiptURL); err != nil {
		return nil, fmt.Errorf("failed to record operator receipt: %w", err)
	}
	if err := s.repo.UpdateTransactionStatus(ctx, transactionID, domain.StatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	txRecord.Status = domain.StatusCompleted

	s.publishStatusEvent(ctx, txRecord)
	if user, userErr := s.repo.FindUserByID(ctx, txRecord.UserID); userErr != nil {
		log.Printf("level=warn component=remit_service op=record_operator_receipt msg=\"user lookup for notification failed\" user_id=%s err=%v", txRecord.UserID, userErr)
	} else {
		s.notifier.Dispatch(ctx, []Recipient{userRecipient(user)}, NotificationEvent{
			Kind:           "payment.completed",
			Subject:        fmt.Sprintf("Remittance %s completed", txRecord.Reference),
			Body:           fmt.Sprintf("Your remittance %s has been settled. The settlement receipt is attached.", txRecord.Reference),
			AttachmentURLs: []string{receiptURL},
		})
	}

	return txRecord, nil
}

// CancelRemittance aborts a transaction from any non-terminal state.
func (s *Service) CancelRemittance(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	return s.abortRemittance(ctx, transactionID, domain.StatusCancelled)
}

// FailRemittance marks a transaction failed from any non-terminal state.
// Used by the operator when settlement cannot proceed.
func (s *Service) FailRemittance(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	return s.abortRemittance(ctx, transactionID, domain.StatusFailed)
}

func (s *Service) abortRemittance(ctx context.Context, transactionID uuid.UUID, terminalStatus string) (*domain.Transaction, error) {
	txRecord, err := s.findTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txRecord.IsTerminal() {
		return nil, fmt.Errorf("%w: transaction %s is already %s", ErrValidation, txRecord.Reference, txRecord.Status)
	}
	if err := s.repo.UpdateTransactionStatus(ctx, transactionID, terminalStatus); err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	txRecord.Status = terminalStatus
	s.publishStatusEvent(ctx, txRecord)
	return txRecord, nil
}

// BulkReleaseFromKyc moves every transaction of the user waiting on identity
// verification to AWAITING_CONFIRMATION in one batch update. It is invoked by
// the verification state machine when a verification passes, and is
// idempotent: a second invocation matches no rows and changes nothing.
func (s *Service) BulkReleaseFromKyc(ctx context.Context, userID uuid.UUID) (int64, error) {
	released, err := s.repo.ReleaseTransactionsFromKyc(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to release transactions from kyc hold: %w", err)
	}
	if released > 0 {
		log.Printf("level=info component=remit_service op=bulk_release_from_kyc user_id=%s released=%d", userID, released)
	}
	return released, nil
}

// IsUserVerified reports whether the user has completed identity
// verification.
func (s *Service) IsUserVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return false, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return false, fmt.Errorf("failed to find user: %w", err)
	}
	return user.KycVerified, nil
}

// GetTransaction returns a transaction with its detail for API reads.
func (s *Service) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, *domain.TransactionDetail, error) {
	txRecord, err := s.findTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	detail, err := s.repo.FindTransactionDetail(ctx, transactionID)
	if err != nil {
		if errors.Is(err, store.ErrDetailNotFound) {
			return nil, nil, fmt.Errorf("%w: detail for transaction %s", ErrNotFound, transactionID)
		}
		return nil, nil, fmt.Errorf("failed to find transaction detail: %w", err)
	}
	return txRecord, detail, nil
}

// ListUserTransactions returns the user's transactions, newest first.
func (s *Service) ListUserTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	return s.repo.FindTransactionsByUserID(ctx, userID)
}

// ListBankAccounts returns the operator collection accounts.
func (s *Service) ListBankAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	return s.repo.ListBankAccounts(ctx)
}

// CreateBankAccount registers a new operator collection account.
func (s *Service) CreateBankAccount(ctx context.Context, account *domain.BankAccount) error {
	if strings.TrimSpace(account.AccountNumber) == "" || strings.TrimSpace(account.Currency) == "" {
		return fmt.Errorf("%w: account number and currency are required", ErrValidation)
	}
	account.ID = uuid.New()
	return s.repo.CreateBankAccount(ctx, account)
}

// SetDefaultBankAccount promotes an account to default for its currency.
func (s *Service) SetDefaultBankAccount(ctx context.Context, accountID uuid.UUID) error {
	err := s.repo.SetDefaultBankAccount(ctx, accountID)
	if errors.Is(err, store.ErrBankAccountNotFound) {
		return fmt.Errorf("%w: bank account %s", ErrNotFound, accountID)
	}
	return err
}

func (s *Service) findTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	txRecord, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, transactionID)
		}
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return txRecord, nil
}

func (s *Service) publishStatusEvent(ctx context.Context, txRecord *domain.Transaction) {
	if s.producer == nil {
		return
	}
	routingKey := "remittance.status." + strings.ToLower(txRecord.Status)
	event := domain.RemittanceStatusEvent{
		TransactionID: txRecord.ID,
		UserID:        txRecord.UserID,
		Reference:     txRecord.Reference,
		Status:        txRecord.Status,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, rabbitmq.RemitEventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=remit_service msg=\"status event publish failed\" transaction_id=%s status=%s err=%v", txRecord.ID, txRecord.Status, err)
	}
}

func userRecipient(user *domain.User) Recipient {
	return Recipient{
		Name:        user.FullName,
		Email:       user.Email,
		ChatAddress: user.PhoneNumber,
	}
}

// generateReference builds a collision-resistant human-readable reference.
func generateReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("RMT-%d-%s", time.Now().UTC().Unix(), strings.ToUpper(raw[:8]))
}
