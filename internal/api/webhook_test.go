package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/azeezabass2005/soolution-be/internal/app"
	"github.com/azeezabass2005/soolution-be/internal/domain"
	"github.com/azeezabass2005/soolution-be/internal/store"
)

type webhookRepoStub struct {
	store.Repository

	user    *domain.User
	pending *domain.Verification

	transitionCalls int
	markedVerified  bool
}

func (s *webhookRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.user == nil {
		return nil, store.ErrUserNotFound
	}
	return s.user, nil
}

func (s *webhookRepoStub) MarkUserVerified(ctx context.Context, userID uuid.UUID) error {
	s.markedVerified = true
	return nil
}

func (s *webhookRepoStub) FindPendingVerificationByUser(ctx context.Context, userID uuid.UUID) (*domain.Verification, error) {
	if s.pending == nil {
		return nil, store.ErrVerificationNotFound
	}
	return s.pending, nil
}

func (s *webhookRepoStub) FindLatestFailedVerificationByUser(ctx context.Context, userID uuid.UUID) (*domain.Verification, error) {
	return nil, store.ErrVerificationNotFound
}

func (s *webhookRepoStub) TransitionVerification(ctx context.Context, verificationID uuid.UUID, expectedStatuses []string, newStatus string, reason *string) (bool, error) {
	s.transitionCalls++
	return true, nil
}

func (s *webhookRepoStub) ReleaseTransactionsFromKyc(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

type verifierStub struct {
	valid bool
}

func (v *verifierStub) VerifySignature(timestamp, signature string) bool {
	return v.valid
}

func newWebhookTestHandler(repo *webhookRepoStub, valid bool) *WebhookHandler {
	remit := app.NewService(repo, nil, app.NewRateConverter(repo), app.NewDispatcher(nil, nil, nil), nil, "CNY", nil)
	verification := app.NewVerificationService(repo, nil, nil, app.NewDispatcher(nil, nil, nil), nil, remit)
	return NewWebhookHandler(verification, &verifierStub{valid: valid}, nil)
}

func postCallback(t *testing.T, handler *WebhookHandler, callback domain.VerificationCallback) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(callback)
	if err != nil {
		t.Fatalf("failed to marshal callback: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/identity-verification-callback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func signedCallback(userID uuid.UUID, code string) domain.VerificationCallback {
	return domain.VerificationCallback{
		ResultCode: code,
		Actions: map[string]string{
			"id_verification": "Passed",
			"selfie_check":    "Passed",
			"register_selfie": "Passed",
		},
		PartnerParams: domain.PartnerParams{UserID: userID.String(), JobID: "job-1"},
		Signature:     "sig",
		Timestamp:     "2026-01-01T00:00:00Z",
	}
}

func TestWebhook_MissingSignatureRejectedWithoutMutation(t *testing.T) {
	repo := &webhookRepoStub{
		pending: &domain.Verification{ID: uuid.New(), Status: domain.VerificationPending},
	}
	handler := newWebhookTestHandler(repo, true)

	callback := signedCallback(uuid.New(), "0810")
	callback.Signature = ""
	rec := postCallback(t, handler, callback)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if repo.transitionCalls != 0 {
		t.Fatal("expected no verification mutation")
	}
}

func TestWebhook_InvalidSignatureRejectedWithoutMutation(t *testing.T) {
	repo := &webhookRepoStub{
		pending: &domain.Verification{ID: uuid.New(), Status: domain.VerificationPending},
	}
	handler := newWebhookTestHandler(repo, false)

	rec := postCallback(t, handler, signedCallback(uuid.New(), "0810"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if repo.transitionCalls != 0 || repo.markedVerified {
		t.Fatal("expected no verification mutation")
	}
}

func TestWebhook_IntermediateCodeAcknowledgedWithoutMutation(t *testing.T) {
	userID := uuid.New()
	repo := &webhookRepoStub{
		user:    &domain.User{ID: userID},
		pending: &domain.Verification{ID: uuid.New(), UserID: userID, Status: domain.VerificationPending},
	}
	handler := newWebhookTestHandler(repo, true)

	rec := postCallback(t, handler, signedCallback(userID, "1310"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"received": true}` {
		t.Fatalf("unexpected body %q", got)
	}
	if repo.transitionCalls != 0 {
		t.Fatal("expected no verification mutation for intermediate code")
	}
}

func TestWebhook_FinalSuccessResolvesVerification(t *testing.T) {
	userID := uuid.New()
	repo := &webhookRepoStub{
		user:    &domain.User{ID: userID},
		pending: &domain.Verification{ID: uuid.New(), UserID: userID, Status: domain.VerificationPending},
	}
	handler := newWebhookTestHandler(repo, true)

	rec := postCallback(t, handler, signedCallback(userID, "0810"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.transitionCalls != 1 {
		t.Fatalf("expected one transition, got %d", repo.transitionCalls)
	}
	if !repo.markedVerified {
		t.Fatal("expected user marked verified")
	}
}

func TestWebhook_ConfidenceValueDecodesAsNumberOrString(t *testing.T) {
	userID := uuid.New()
	for _, confidence := range []string{`99.9`, `"99.9"`} {
		repo := &webhookRepoStub{
			user:    &domain.User{ID: userID},
			pending: &domain.Verification{ID: uuid.New(), UserID: userID, Status: domain.VerificationPending},
		}
		handler := newWebhookTestHandler(repo, true)

		body := []byte(`{
			"ResultCode": "0810",
			"ConfidenceValue": ` + confidence + `,
			"Actions": {"id_verification": "Passed", "selfie_check": "Passed", "register_selfie": "Passed"},
			"PartnerParams": {"user_id": "` + userID.String() + `", "job_id": "job-1"},
			"signature": "sig",
			"timestamp": "2026-01-01T00:00:00Z"
		}`)
		req := httptest.NewRequest(http.MethodPost, "/webhook/identity-verification-callback", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("confidence %s: expected 200, got %d", confidence, rec.Code)
		}
		if repo.transitionCalls != 1 {
			t.Fatalf("confidence %s: expected one transition, got %d", confidence, repo.transitionCalls)
		}
	}
}

func TestWebhook_UnknownUserStillAcknowledged(t *testing.T) {
	repo := &webhookRepoStub{}
	handler := newWebhookTestHandler(repo, true)

	rec := postCallback(t, handler, signedCallback(uuid.New(), "0810"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.transitionCalls != 0 {
		t.Fatal("expected no mutation for unknown user")
	}
}
