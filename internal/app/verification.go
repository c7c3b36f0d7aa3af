/**
 * @description
 * This file contains the identity verification state machine. A verification
 * is created in `pending` when a user submits their documents to the external
 * KYC provider, and resolves to `passed` or `failed` exactly once when the
 * provider's asynchronous callback arrives.
 *
 * Key rules:
 * - At most one pending verification per user. A pending record older than
 *   24 hours is considered stale and is expired in place so the user can
 *   retry.
 * - Callback resolution goes through a conditional update in the store so
 *   that concurrent duplicate deliveries race safely: exactly one wins and
 *   triggers downstream effects.
 * - A passing verification marks the user verified and releases every
 *   transaction of theirs held in AWAITING_KYC_VERIFICATION.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Verification result event publishing.
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

// pendingVerificationTTL is how long a pending verification stays actionable
// before a new submission may replace it.
const pendingVerificationTTL = 24 * time.Hour

// Provider result codes that resolve a verification as passed.
var finalSuccessCodes = map[string]bool{
	"0810": true,
	"1012": true,
	"1020": true,
}

// Provider result codes for intermediate progress updates. These never
// resolve a verification on their own, but a later rejection callback may
// reference one of them as the stage that failed.
var intermediateCodes = map[string]bool{
	"0820": true,
	"1210": true,
	"1310": true,
}

// Sub-checks that must all report "Passed" before a final-success code is
// honoured.
var requiredActions = []string{"id_verification", "selfie_check", "register_selfie"}

// KycProvider is the external identity verification service.
type KycProvider interface {
	SubmitJob(ctx context.Context, userID uuid.UUID, jobID string, req domain.SubmitVerificationRequest) error
}

// SubmitRateLimiter bounds how often a single user may start a verification.
type SubmitRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, key string) (bool, error)
}

// VerificationService owns the verification lifecycle.
type VerificationService struct {
	repo     store.Repository
	provider KycProvider
	limiter  SubmitRateLimiter
	notifier *Dispatcher
	producer rabbitmq.Publisher
	remit    *Service
}

// NewVerificationService creates a new verification service instance. The
// limiter may be nil, in which case submissions are not rate limited.
func NewVerificationService(
	repo store.Repository,
	provider KycProvider,
	limiter SubmitRateLimiter,
	notifier *Dispatcher,
	producer rabbitmq.Publisher,
	remit *Service,
) *VerificationService {
	return &VerificationService{
		repo:     repo,
		provider: provider,
		limiter:  limiter,
		notifier: notifier,
		producer: producer,
		remit:    remit,
	}
}

// Submit starts a verification job with the external provider. An existing
// fresh pending verification blocks the submission; a stale one is expired
// first so the user can retry.
func (s *VerificationService) Submit(ctx context.Context, userID uuid.UUID, req domain.SubmitVerificationRequest) (*domain.Verification, error) {
	if strings.TrimSpace(req.IDType) == "" || strings.TrimSpace(req.IDNumber) == "" {
		return nil, fmt.Errorf("%w: id type and id number are required", ErrValidation)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.ConsumeRateLimit(ctx, "kyc_submit:"+userID.String())
		if err != nil {
			// The limiter is advisory; if it is down we let the request through.
			log.Printf("level=warn component=verification_service op=submit msg=\"rate limiter unavailable\" user_id=%s err=%v", userID, err)
		} else if !allowed {
			return nil, fmt.Errorf("%w: too many verification attempts, try again later", ErrRateLimited)
		}
	}

	// A fresh pending verification means a job is already in flight. A stale
	// one is expired in place before the new submission proceeds.
	pending, err := s.repo.FindPendingVerificationByUser(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrVerificationNotFound) {
		return nil, fmt.Errorf("failed to check pending verification: %w", err)
	}
	if pending != nil {
		if time.Since(pending.CreatedAt) < pendingVerificationTTL {
			return nil, fmt.Errorf("%w: a verification is already in progress", ErrAlreadyExists)
		}
		reason := "expired - please retry"
		if _, err := s.repo.TransitionVerification(ctx, pending.ID, []string{domain.VerificationPending}, domain.VerificationFailed, &reason); err != nil {
			return nil, fmt.Errorf("failed to expire stale verification: %w", err)
		}
	}

	verification := &domain.Verification{
		ID:        uuid.New(),
		UserID:    userID,
		JobID:     uuid.NewString(),
		Status:    domain.VerificationPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateVerification(ctx, verification); err != nil {
		return nil, fmt.Errorf("failed to create verification record: %w", err)
	}

	if err := s.provider.SubmitJob(ctx, userID, verification.JobID, req); err != nil {
		// The provider never saw the job, so no callback will arrive. Close
		// the record now rather than leaving it pending for 24 hours.
		reason := fmt.Sprintf("provider submission failed: %v", err)
		if _, txErr := s.repo.TransitionVerification(ctx, verification.ID, []string{domain.VerificationPending}, domain.VerificationFailed, &reason); txErr != nil {
			log.Printf("level=error component=verification_service op=submit msg=\"failed to close verification after provider error\" verification_id=%s err=%v", verification.ID, txErr)
		}
		return nil, fmt.Errorf("%w: verification provider rejected submission: %v", ErrUpstream, err)
	}

	log.Printf("level=info component=verification_service op=submit user_id=%s job_id=%s", userID, verification.JobID)
	return verification, nil
}

// CancelPending closes the user's pending verification at their request.
func (s *VerificationService) CancelPending(ctx context.Context, userID uuid.UUID) error {
	pending, err := s.repo.FindPendingVerificationByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrVerificationNotFound) {
			return fmt.Errorf("%w: no pending verification", ErrNotFound)
		}
		return fmt.Errorf("failed to find pending verification: %w", err)
	}
	reason := "cancelled by user"
	won, err := s.repo.TransitionVerification(ctx, pending.ID, []string{domain.VerificationPending}, domain.VerificationFailed, &reason)
	if err != nil {
		return fmt.Errorf("failed to cancel verification: %w", err)
	}
	if !won {
		// It resolved between the lookup and the update. Nothing to cancel.
		return fmt.Errorf("%w: no pending verification", ErrNotFound)
	}
	return nil
}

// ProcessCallback applies a provider callback to the verification state
// machine. It is deliberately tolerant: callbacks that do not map to an
// actionable verification are logged and dropped so the provider is never
// asked to redeliver something we cannot use.
func (s *VerificationService) ProcessCallback(ctx context.Context, cb domain.VerificationCallback) error {
	userID, err := uuid.Parse(cb.PartnerParams.UserID)
	if err != nil {
		log.Printf("level=warn component=verification_service op=callback msg=\"unparseable user id in callback\" raw=%q", cb.PartnerParams.UserID)
		return nil
	}

	// Intermediate codes report progress only; the terminal callback follows.
	if intermediateCodes[cb.ResultCode] {
		log.Printf("level=info component=verification_service op=callback msg=\"intermediate result\" user_id=%s code=%s text=%q", userID, cb.ResultCode, cb.ResultText)
		return nil
	}

	passed := finalSuccessCodes[cb.ResultCode]
	if passed {
		// A success code only counts when every mandatory sub-check passed.
		if failedAction := firstFailedAction(cb.Actions); failedAction != "" {
			passed = false
			cb.ResultText = fmt.Sprintf("%s did not pass (%s)", failedAction, cb.Actions[failedAction])
		}
	}

	target, err := s.repo.FindPendingVerificationByUser(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrVerificationNotFound) {
		return fmt.Errorf("failed to find pending verification: %w", err)
	}
	if target == nil && passed {
		// The pending record may already have been failed by an intermediate
		// stage being treated as a rejection. Only a terminal success for the
		// same job may repair it; a failure callback with no pending record
		// must never reopen an already resolved one.
		target, err = s.findFailedIntermediate(ctx, userID)
		if err != nil {
			return err
		}
	}
	if target == nil {
		log.Printf("level=warn component=verification_service op=callback msg=\"no actionable verification for callback\" user_id=%s code=%s", userID, cb.ResultCode)
		return nil
	}

	newStatus := domain.VerificationFailed
	var reason *string
	if passed {
		newStatus = domain.VerificationPassed
	} else {
		text := cb.ResultText
		if text == "" {
			text = fmt.Sprintf("verification rejected with code %s", cb.ResultCode)
		}
		reason = &text
	}

	won, err := s.repo.TransitionVerification(ctx, target.ID, []string{target.Status}, newStatus, reason)
	if err != nil {
		return fmt.Errorf("failed to resolve verification: %w", err)
	}
	if !won {
		// A concurrent duplicate delivery already resolved it. The winner
		// handled the side effects.
		log.Printf("level=info component=verification_service op=callback msg=\"duplicate callback ignored\" verification_id=%s", target.ID)
		return nil
	}

	if passed {
		if err := s.repo.MarkUserVerified(ctx, userID); err != nil {
			return fmt.Errorf("failed to mark user verified: %w", err)
		}
		if _, err := s.remit.BulkReleaseFromKyc(ctx, userID); err != nil {
			return err
		}
	}

	s.publishResultEvent(ctx, userID, target.JobID, newStatus, reason)
	s.notifyResult(ctx, userID, passed, reason)
	log.Printf("level=info component=verification_service op=callback msg=\"verification resolved\" verification_id=%s status=%s code=%s", target.ID, newStatus, cb.ResultCode)
	return nil
}

// findFailedIntermediate looks for the user's most recent failed verification
// whose failure reason references an intermediate stage code. Such a record
// was closed prematurely and may still be resolved by a terminal callback.
func (s *VerificationService) findFailedIntermediate(ctx context.Context, userID uuid.UUID) (*domain.Verification, error) {
	latest, err := s.repo.FindLatestFailedVerificationByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrVerificationNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find failed verification: %w", err)
	}
	if latest.FailureReason == nil {
		return nil, nil
	}
	for code := range intermediateCodes {
		if strings.Contains(*latest.FailureReason, code) {
			return latest, nil
		}
	}
	return nil, nil
}

func (s *VerificationService) publishResultEvent(ctx context.Context, userID uuid.UUID, jobID, status string, reason *string) {
	if s.producer == nil {
		return
	}
	event := domain.VerificationResultEvent{
		UserID:    userID,
		JobID:     jobID,
		Status:    status,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	routingKey := "verification.result." + status
	if err := s.producer.Publish(ctx, rabbitmq.RemitEventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=verification_service msg=\"result event publish failed\" user_id=%s status=%s err=%v", userID, status, err)
	}
}

func (s *VerificationService) notifyResult(ctx context.Context, userID uuid.UUID, passed bool, reason *string) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		log.Printf("level=warn component=verification_service msg=\"user lookup for notification failed\" user_id=%s err=%v", userID, err)
		return
	}
	event := NotificationEvent{
		Kind:    "verification.passed",
		Subject: "Identity verification approved",
		Body:    "Your identity verification has been approved. Any payments waiting on verification are now moving forward.",
	}
	if !passed {
		detail := "Please review your documents and try again."
		if reason != nil {
			detail = *reason
		}
		event = NotificationEvent{
			Kind:    "verification.failed",
			Subject: "Identity verification unsuccessful",
			Body:    fmt.Sprintf("Your identity verification was not successful: %s", detail),
		}
	}
	s.notifier.Dispatch(ctx, []Recipient{userRecipient(user)}, event)
}

// firstFailedAction returns the name of the first mandatory sub-check whose
// result is anything other than "Passed", or "" when all passed. Absent
// sub-checks count as failed.
func firstFailedAction(actions map[string]string) string {
	for _, name := range requiredActions {
		if actions[name] != "Passed" {
			return name
		}
	}
	return ""
}
