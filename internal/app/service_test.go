package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/azeezabass2005/soolution-be/internal/domain"
	"github.com/azeezabass2005/soolution-be/internal/store"
)

type serviceRepoStub struct {
	store.Repository

	user        *domain.User
	bankAccount *domain.BankAccount
	rate        *domain.ExchangeRate
	tx          *domain.Transaction
	detail      *domain.TransactionDetail

	createdTx     *domain.Transaction
	createdDetail *domain.TransactionDetail

	statusUpdates      []string
	buyerReceiptURL    string
	convertedAmount    decimal.Decimal
	operatorReceiptURL string

	releaseReturns []int64
	releaseCalls   int
}

func (s *serviceRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.user == nil {
		return nil, store.ErrUserNotFound
	}
	return s.user, nil
}

func (s *serviceRepoStub) FindDefaultBankAccountByCurrency(ctx context.Context, currency string) (*domain.BankAccount, error) {
	if s.bankAccount == nil {
		return nil, store.ErrBankAccountNotFound
	}
	return s.bankAccount, nil
}

func (s *serviceRepoStub) FindActiveRate(ctx context.Context, from, to string) (*domain.ExchangeRate, error) {
	if s.rate == nil {
		return nil, store.ErrRateNotFound
	}
	return s.rate, nil
}

func (s *serviceRepoStub) CreateTransactionWithDetail(ctx context.Context, tx *domain.Transaction, detail *domain.TransactionDetail) error {
	s.createdTx = tx
	s.createdDetail = detail
	return nil
}

func (s *serviceRepoStub) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	if s.tx == nil {
		return nil, store.ErrTransactionNotFound
	}
	return s.tx, nil
}

func (s *serviceRepoStub) FindTransactionDetail(ctx context.Context, transactionID uuid.UUID) (*domain.TransactionDetail, error) {
	if s.detail == nil {
		return nil, store.ErrDetailNotFound
	}
	return s.detail, nil
}

func (s *serviceRepoStub) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error {
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

func (s *serviceRepoStub) RecordBuyerReceipt(ctx context.Context, transactionID uuid.UUID, receiptURL string, convertedAmount decimal.Decimal) error {
	s.buyerReceiptURL = receiptURL
	s.convertedAmount = convertedAmount
	return nil
}

func (s *serviceRepoStub) RecordOperatorReceipt(ctx context.Context, transactionID uuid.UUID, receiptURL string) error {
	s.operatorReceiptURL = receiptURL
	return nil
}

func (s *serviceRepoStub) ReleaseTransactionsFromKyc(ctx context.Context, userID uuid.UUID) (int64, error) {
	idx := s.releaseCalls
	s.releaseCalls++
	if idx < len(s.releaseReturns) {
		return s.releaseReturns[idx], nil
	}
	return 0, nil
}

type storageStub struct {
	uploadErr error
	uploads   []string
}

func (s *storageStub) Upload(ctx context.Context, data []byte, contentType, path string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.uploads = append(s.uploads, path)
	return "https://files.example.test/" + path, nil
}

func (s *storageStub) Download(ctx context.Context, url string) ([]byte, string, error) {
	return []byte("file-bytes"), "image/png", nil
}

type publisherStub struct {
	routingKeys []string
	err         error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *publisherStub) Close() {}

func baseRepo() *serviceRepoStub {
	return &serviceRepoStub{
		user: &domain.User{
			ID:       uuid.New(),
			Email:    "buyer@example.test",
			FullName: "Test Buyer",
		},
		bankAccount: &domain.BankAccount{
			ID:            uuid.New(),
			BankName:      "First Bank",
			AccountName:   "Ops Collections",
			AccountNumber: "0123456789",
			Currency:      "NGN",
			IsDefault:     true,
		},
		rate: &domain.ExchangeRate{
			ID:           uuid.New(),
			FromCurrency: "NGN",
			ToCurrency:   "CNY",
			Rate:         decimal.RequireFromString("0.0048"),
			Active:       true,
		},
	}
}

func newTestService(repo *serviceRepoStub, storage *storageStub, producer *publisherStub) *Service {
	return NewService(
		repo,
		storage,
		NewRateConverter(repo),
		NewDispatcher(nil, nil, nil),
		producer,
		"CNY",
		nil,
	)
}

func qrFile() *domain.UploadedFile {
	return &domain.UploadedFile{Name: "qr.png", ContentType: "image/png", Data: []byte{1, 2, 3}}
}

func TestCreateRemittance_CreatesPendingInputWithSnapshot(t *testing.T) {
	repo := baseRepo()
	producer := &publisherStub{}
	svc := newTestService(repo, &storageStub{}, producer)

	tx, err := svc.CreateRemittance(context.Background(), repo.user.ID, domain.CreateRemittanceRequest{
		Amount:              decimal.RequireFromString("150000"),
		SourceCurrency:      "NGN",
		DetailType:          "alipay",
		CounterpartyAccount: "seller-cn-001",
		CounterpartyName:    "Shenzhen Trading Co",
	}, qrFile())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if tx.Status != domain.StatusPendingInput {
		t.Fatalf("expected status %s, got %s", domain.StatusPendingInput, tx.Status)
	}
	if !strings.HasPrefix(tx.Reference, "RMT-") {
		t.Fatalf("expected RMT- reference prefix, got %q", tx.Reference)
	}
	if repo.createdTx == nil || repo.createdDetail == nil {
		t.Fatal("expected transaction and detail to be created together")
	}
	if repo.createdDetail.BankAccount.AccountNumber != "0123456789" {
		t.Fatalf("expected bank account snapshot on detail, got %+v", repo.createdDetail.BankAccount)
	}
	if repo.createdDetail.QRCodeURL == "" {
		t.Fatal("expected qr code url on detail")
	}
	if len(producer.routingKeys) != 1 || producer.routingKeys[0] != "remittance.status.pending_input" {
		t.Fatalf("expected pending_input status event, got %v", producer.routingKeys)
	}
}

func TestCreateRemittance_UploadFailureLeavesNothingPersisted(t *testing.T) {
	repo := baseRepo()
	storage := &storageStub{uploadErr: errors.New("bucket unavailable")}
	svc := newTestService(repo, storage, &publisherStub{})

	_, err := svc.CreateRemittance(context.Background(), repo.user.ID, domain.CreateRemittanceRequest{
		Amount:         decimal.RequireFromString("150000"),
		SourceCurrency: "NGN",
	}, qrFile())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if repo.createdTx != nil || repo.createdDetail != nil {
		t.Fatal("expected no records persisted after upload failure")
	}
}

func TestCreateRemittance_RejectsNonPositiveAmount(t *testing.T) {
	repo := baseRepo()
	svc := newTestService(repo, &storageStub{}, &publisherStub{})

	_, err := svc.CreateRemittance(context.Background(), repo.user.ID, domain.CreateRemittanceRequest{
		Amount:         decimal.Zero,
		SourceCurrency: "NGN",
	}, qrFile())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateRemittance_MissingDefaultAccountFails(t *testing.T) {
	repo := baseRepo()
	repo.bankAccount = nil
	svc := newTestService(repo, &storageStub{}, &publisherStub{})

	_, err := svc.CreateRemittance(context.Background(), repo.user.ID, domain.CreateRemittanceRequest{
		Amount:         decimal.RequireFromString("100"),
		SourceCurrency: "NGN",
	}, qrFile())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordUserReceipt_UnverifiedUserHeldForKyc(t *testing.T) {
	repo := baseRepo()
	repo.tx = &domain.Transaction{
		ID:                 uuid.New(),
		UserID:             repo.user.ID,
		Reference:          "RMT-1-TEST",
		Amount:             decimal.RequireFromString("150000"),
		SourceCurrency:     "NGN",
		SettlementCurrency: "CNY",
		Status:             domain.StatusPendingInput,
		InitiatedAt:        time.Now(),
	}
	svc := newTestService(repo, &storageStub{}, &publisherStub{})

	tx, err := svc.RecordUserReceipt(context.Background(), repo.tx.ID, qrFile(), false)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if tx.Status != domain.StatusAwaitingKycVerification {
		t.Fatalf("expected %s, got %s", domain.StatusAwaitingKycVerification, tx.Status)
	}
	if repo.buyerReceiptURL == "" {
		t.Fatal("expected buyer receipt to be recorded")
	}
	want := decimal.RequireFromString("720.00")
	if !repo.convertedAmount.Equal(want) {
		t.Fatalf("expected converted amount %s, got %s", want, repo.convertedAmount)
	}
}

func TestRecordUserReceipt_VerifiedUserAwaitsConfirmation(t *testing.T) {
	repo := baseRepo()
	repo.tx = &domain.Transaction{
		ID:                 uuid.New(),
		UserID:             repo.user.ID,
		Amount:             decimal.RequireFromString("1000"),
		SourceCurrency:     "NGN",
		SettlementCurrency: "CNY",
		Status:             domain.StatusPendingInput,
	}
	svc := newTestService(repo, &storageStub{}, &publisherStub{})

	tx, err := svc.RecordUserReceipt(context.Background(), repo.tx.ID, qrFile(), true)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if tx.Status != domain.StatusAwaitingConfirmation {
		t.Fatalf("expected %s, got %s", domain.StatusAwaitingConfirmation, tx.Status)
	}
}

func TestRecordUserReceipt_RejectsWrongStatus(t *testing.T) {
	repo := baseRepo()
	repo.tx = &domain.Transaction{
		ID:     uuid.New(),
		Status: domain.StatusProcessing,
	}
	svc := newTestService(repo, &storageStub{}, &publisherStub{})

	_, err := svc.RecordUserReceipt(context.Background(), repo.tx.ID, qrFile(), true)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(repo.statusUpdates) != 0 {
		t.Fatalf("expected no status updates, got %v", repo.statusUpdates)
	}
}

func TestRecordUserReceipt_MissingRateAbortsBeforeTransition(t *testing.T) {
	repo := baseRepo()
	repo.rate = nil
	repo.tx = &domain.Transaction{
		ID:                 uuid.New(),
		UserID:             repo.user.ID,
		Amount:             decimal.RequireFromString("1000"),
		SourceCurrency:     "NGN",
		SettlementCurrency: "CNY",
		Status:             domain.StatusPendingInput,
	}
	svc := newTestService(repo, &storageStub{}, &publisherStub{})

	_, err := svc.RecordUserReceipt(context.Background(), repo.tx.ID, qrFile(), true)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(repo.statusUpdates) != 0 {
		t.Fatalf("expected no status updates, got %v", repo.statusUpdates)
	}
}

func TestRecordOperatorReceipt_CompletesAndAbsorbsNotificationFailure(t *testing.T) {
	repo := baseRepo()
	repo.tx = &domain.Transaction{
		ID:     uuid.New(),
		UserID: repo.user.ID,
		Status: domain.StatusProcessing,
	}
	// A dispatcher whose only channel always fails must not affect the
	// transition outcome.
	failingEmail := &failingEmailSender{}
	svc := NewService(
		repo,
		&storageStub{},
		NewRateConverter(repo),
		NewDispatcher(failingEmail, nil, nil),
		&publisherStub{},
		"CNY",
		nil,
	)

	tx, err := svc.RecordOperatorReceipt(context.Background(), repo.tx.ID, qrFile())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if tx.Status != domain.StatusCompleted {
		t.Fatalf("expected %s, got %s", domain.StatusCompleted, tx.Status)
	}
	if repo.operatorReceiptURL == "" {
		t.Fatal("expected operator receipt to be recorded")
	}
	if !failingEmail.called {
		t.Fatal("expected a notification attempt")
	}
}

func TestRecordOperatorReceipt_CompletesDirectlyFromAwaitingConfirmation(t *testing.T) {
	repo := baseRepo()
	repo.tx = &domain.Transaction{
		ID:     uuid.New(),
		UserID: repo.user.ID,
		Status: domain.StatusAwaitingConfirmation,
	}
	svc := newTestService(repo, &storageStub{}, &publisherStub{})

	tx, err := svc.RecordOperatorReceipt(context.Background(), repo.tx.ID, qrFile())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if tx.Status != domain.StatusCompleted {
		t.Fatalf("expected %s, got %s", domain.StatusCompleted, tx.Status)
	}
}

type failingEmailSender struct {
	called bool
}

func (f *failingEmailSender) SendEmail(ctx context.Context, to, subject, body string, attachments []domain.UploadedFile) error {
	f.called = true
	return errors.New("smtp relay down")
}

func TestCancelRemittance_RejectsTerminalTransaction(t *testing.T) {
	repo := baseRepo()
	repo.tx = &domain.Transaction{
		ID:     uuid.New(),
		Status: domain.StatusCompleted,
	}
	svc := newTestService(repo, &storageStub{}, &publisherStub{})

	_, err := svc.CancelRemittance(context.Background(), repo.tx.ID)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCancelRemittance_PublishFailureDoesNotSurface(t *testing.T) {
	repo := baseRepo()
	repo.tx = &domain.Transaction{
		ID:     uuid.New(),
		UserID: repo.user.ID,
		Status: domain.StatusAwaitingConfirmation,
	}
	producer := &publisherStub{err: errors.New("broker gone")}
	svc := newTestService(repo, &storageStub{}, producer)

	tx, err := svc.CancelRemittance(context.Background(), repo.tx.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if tx.Status != domain.StatusCancelled {
		t.Fatalf("expected %s, got %s", domain.StatusCancelled, tx.Status)
	}
	if len(repo.statusUpdates) != 1 || repo.statusUpdates[0] != domain.StatusCancelled {
		t.Fatalf("expected one committed status update, got %v", repo.statusUpdates)
	}
}

func TestBulkReleaseFromKyc_SecondApplicationIsNoOp(t *testing.T) {
	repo := baseRepo()
	repo.releaseReturns = []int64{3, 0}
	svc := newTestService(repo, &storageStub{}, &publisherStub{})

	released, err := svc.BulkReleaseFromKyc(context.Background(), repo.user.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if released != 3 {
		t.Fatalf("expected 3 released, got %d", released)
	}

	released, err = svc.BulkReleaseFromKyc(context.Background(), repo.user.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if released != 0 {
		t.Fatalf("expected second release to be a no-op, got %d", released)
	}
}
