/**
 * @description
 * This file contains the core business logic for the transfer-service. The
 * `Service` struct coordinates a money transfer across the account service
 * boundary: it validates the request, debits the sender, credits the receiver,
 * appends the ledger entry, and publishes the completion event.
 *
 * There is no shared transaction with the account service, so atomicity is
 * approximated with a saga: each balance leg is an idempotent adjustment keyed
 * by a per-attempt token, a failed credit is compensated by re-crediting the
 * sender, and a failed compensation raises an operator incident instead of
 * pretending anything succeeded.
 *
 * @dependencies
 * - context, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: Identifier and money types.
 * - golang.org/x/sync/semaphore: Bounds concurrent in-flight transfers.
 * - internal/domain, internal/store: Domain models and ledger persistence.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/microbank/transfer-service/internal/domain"
	"github.com/microbank/transfer-service/internal/store"
)

// AccountLedger is the capability the coordinator needs from the account
// service: read snapshots and apply idempotent balance adjustments.
type AccountLedger interface {
	GetAccount(ctx context.Context, token string, accountID uuid.UUID) (*domain.Account, error)
	GetAccountByIban(ctx context.Context, token, iban string) (*domain.Account, error)
	ListOwnAccounts(ctx context.Context, token string) ([]domain.Account, error)
	ListAccountsByUser(ctx context.Context, token string, userID uuid.UUID) ([]domain.Account, error)
	AdjustBalance(ctx context.Context, token string, accountID uuid.UUID, delta decimal.Decimal, idempotencyToken string) (*domain.Account, error)
}

// IdentityClient resolves the inbound credential into the calling user.
type IdentityClient interface {
	GetCurrentUser(ctx context.Context, token string) (*domain.User, error)
}

// Options tunes the coordinator's timeouts and retry budgets.
type Options struct {
	// CallTimeout bounds every single call to a collaborator.
	CallTimeout time.Duration
	// SagaTimeout bounds the whole post-admission transfer, including retries.
	SagaTimeout time.Duration
	// AdjustRetries is the attempt budget for each balance leg.
	AdjustRetries int
	// CompensationRetries is the attempt budget for the compensation credit.
	CompensationRetries int
	// RetryBackoffBase is the base delay between retry attempts.
	RetryBackoffBase time.Duration
	// MaxConcurrentTransfers bounds in-flight transfers toward the account service.
	MaxConcurrentTransfers int64
	// TransferRateLimitPerMinute caps transfers per caller; 0 disables limiting.
	TransferRateLimitPerMinute int
}

func (o *Options) setDefaults() {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 5 * time.Second
	}
	if o.SagaTimeout <= 0 {
		o.SagaTimeout = 60 * time.Second
	}
	if o.AdjustRetries <= 0 {
		o.AdjustRetries = 3
	}
	if o.CompensationRetries <= 0 {
		o.CompensationRetries = 5
	}
	if o.RetryBackoffBase <= 0 {
		o.RetryBackoffBase = 200 * time.Millisecond
	}
	if o.MaxConcurrentTransfers <= 0 {
		o.MaxConcurrentTransfers = 32
	}
}

// Service provides the core business logic for transfers.
type Service struct {
	repo     store.Repository
	accounts AccountLedger
	identity IdentityClient
	events   *EventDispatcher
	limiter  RateLimiter
	inflight *semaphore.Weighted
	opts     Options
}

// NewService creates a new transfer service instance.
func NewService(repo store.Repository, accounts AccountLedger, identity IdentityClient, events *EventDispatcher, opts Options) *Service {
	opts.setDefaults()
	return &Service{
		repo:     repo,
		accounts: accounts,
		identity: identity,
		events:   events,
		inflight: semaphore.NewWeighted(opts.MaxConcurrentTransfers),
		opts:     opts,
	}
}

// SetRateLimiter installs an optional per-caller rate limiter.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.limiter = limiter
}

// ExecuteTransfer moves req.Amount from the caller's sender account to the
// receiver account, appends the ledger entry and publishes the completion
// event. All rejections before the debit leg have no side effects.
func (s *Service) ExecuteTransfer(ctx context.Context, principal domain.Principal, req domain.CreateTransferRequest) (*domain.Transaction, error) {
	if err := ValidateTransferRequest(req); err != nil {
		return nil, err
	}

	if s.limiter != nil && s.opts.TransferRateLimitPerMinute > 0 {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "transfer", principal.KeycloakID, s.opts.TransferRateLimitPerMinute, time.Minute)
		if err != nil {
			// Fail open: the limiter is protection, not an availability dependency.
			log.Printf("level=warn component=coordinator msg=\"rate limiter unavailable\" err=%v", err)
		} else if count > s.opts.TransferRateLimitPerMinute {
			return nil, domain.NewErrorf(domain.KindRateLimited, "transfer rate limit exceeded; retry in %d seconds", retryAfter)
		}
	}

	if err := s.inflight.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("transfer admission interrupted: %w", err)
	}
	defer s.inflight.Release(1)

	token := principal.RawToken

	user, err := s.resolveUser(ctx, token)
	if err != nil {
		return nil, err
	}

	sender, err := s.fetchAccount(ctx, token, req.SenderAccountID)
	if err != nil {
		return nil, err
	}
	if sender.OwnerID != user.ID {
		return nil, domain.NewError(domain.KindUnauthorized, "sender account does not belong to the current user")
	}
	if sender.Blocked {
		return nil, domain.NewError(domain.KindAccountBlocked, "sender account is blocked")
	}

	receiver, err := s.resolveReceiver(ctx, token, req)
	if err != nil {
		return nil, err
	}
	if receiver.ID == sender.ID {
		return nil, domain.NewError(domain.KindValidation, "sender and receiver accounts must differ")
	}
	if receiver.Blocked {
		return nil, domain.NewError(domain.KindAccountBlocked, "receiver account is blocked")
	}

	if sender.Balance.LessThan(req.Amount) {
		return nil, domain.NewError(domain.KindInsufficientFunds, "insufficient balance")
	}

	attemptID := uuid.New()
	log.Printf("level=info component=coordinator msg=\"transfer admitted\" attempt_id=%s sender_account=%s receiver_account=%s amount=%s",
		attemptID, sender.ID, receiver.ID, req.Amount)

	// Once the debit lands the saga must reach a terminal state even if the
	// caller disconnects, so the mutation phase runs on a cancel-detached
	// context bounded only by the saga deadline.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SagaTimeout)
	defer cancel()

	return s.runSaga(sctx, token, attemptID, sender, receiver, req)
}

// RevertTransaction flips a completed ledger entry to reverted. This is the
// operator remediation path after an incident; the balance corrections happen
// out of band against the account service.
func (s *Service) RevertTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	if err := s.repo.MarkReverted(ctx, transactionID); err != nil {
		return nil, err
	}
	log.Printf("level=info component=coordinator msg=\"transaction reverted\" transaction_id=%s", transactionID)
	return s.repo.Get(ctx, transactionID)
}

func (s *Service) runSaga(ctx context.Context, token string, attemptID uuid.UUID, sender, receiver *domain.Account, req domain.CreateTransferRequest) (*domain.Transaction, error) {
	amount := req.Amount
	debitToken := "debit:" + attemptID.String()
	creditToken := "credit:" + attemptID.String()

	// Debit leg.
	outcome, err := s.adjust(ctx, token, sender.ID, amount.Neg(), debitToken, s.opts.AdjustRetries)
	switch outcome {
	case adjustApplied:
	case adjustRejected:
		return nil, err
	default:
		switch s.confirmBalance(ctx, token, sender.ID, sender.Balance, sender.Balance.Sub(amount)) {
		case confirmAfter:
			// The debit landed even though every attempt looked like a failure.
		case confirmBefore:
			return nil, fmt.Errorf("debit did not complete: %w", err)
		default:
			return nil, s.raiseInconsistent(ctx, attemptID, sender, receiver, amount, "debit outcome unknown after retries", err)
		}
	}
	log.Printf("level=info component=coordinator state=sender_debited attempt_id=%s", attemptID)

	// Credit leg.
	outcome, err = s.adjust(ctx, token, receiver.ID, amount, creditToken, s.opts.AdjustRetries)
	if outcome == adjustUnknown {
		switch s.confirmBalance(ctx, token, receiver.ID, receiver.Balance, receiver.Balance.Add(amount)) {
		case confirmAfter:
			outcome = adjustApplied
		case confirmBefore:
			// Definitely not credited; compensation below is safe.
		default:
			return nil, s.raiseInconsistent(ctx, attemptID, sender, receiver, amount, "credit outcome unknown after retries", err)
		}
	}
	if outcome != adjustApplied {
		log.Printf("level=warn component=coordinator state=compensating attempt_id=%s err=%v", attemptID, err)
		return nil, s.compensateSender(ctx, token, attemptID, sender, receiver, amount, err)
	}
	log.Printf("level=info component=coordinator state=receiver_credited attempt_id=%s", attemptID)

	// Record the ledger entry. Should this fail, both legs are unwound so the
	// combined balances stay unchanged.
	entry := &domain.Transaction{
		SenderAccountID:   sender.ID,
		ReceiverAccountID: receiver.ID,
		Amount:            amount,
		Description:       req.Description,
		Status:            domain.StatusCompleted,
	}
	stored, appendErr := s.repo.Append(ctx, entry)
	if appendErr != nil {
		log.Printf("level=warn component=coordinator msg=\"ledger append failed; unwinding both legs\" attempt_id=%s err=%v", attemptID, appendErr)
		return nil, s.unwindBothLegs(ctx, token, attemptID, sender, receiver, amount, appendErr)
	}
	log.Printf("level=info component=coordinator state=recorded attempt_id=%s transaction_id=%s", attemptID, stored.ID)

	// Publish the completion event. The transfer is committed; publish
	// failures are retried in the background and never surfaced to the caller.
	s.events.PublishOrQueue(ctx, domain.NewTransactionEvent(stored, sender, receiver))

	return stored, nil
}

type adjustOutcome int

const (
	adjustApplied adjustOutcome = iota
	adjustRejected
	adjustUnknown
)

// adjust applies one balance leg, retrying transport failures with backoff.
// Every attempt reuses the same idempotency token, so a retry of an adjustment
// that actually landed is a no-op at the account service. A domain-kinded
// rejection is definitive: the account service evaluated the request and
// applied nothing.
func (s *Service) adjust(ctx context.Context, token string, accountID uuid.UUID, delta decimal.Decimal, idempotencyToken string, attempts int) (adjustOutcome, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		_, err := s.accounts.AdjustBalance(cctx, token, accountID, delta, idempotencyToken)
		cancel()
		if err == nil {
			return adjustApplied, nil
		}
		if domain.KindOf(err) != "" {
			return adjustRejected, err
		}
		lastErr = err
		log.Printf("level=warn component=coordinator msg=\"balance adjustment attempt failed\" account_id=%s attempt=%d err=%v", accountID, i+1, err)
		if !sleepContext(ctx, backoffDelay(s.opts.RetryBackoffBase, i)) {
			break
		}
	}
	return adjustUnknown, lastErr
}

type confirmOutcome int

const (
	confirmAfter confirmOutcome = iota
	confirmBefore
	confirmInconclusive
)

// confirmBalance re-queries an account after an adjustment with an unknown
// outcome and compares the observed balance against the expected values before
// and after the adjustment. Concurrent traffic on the account can make the
// observation match neither; that case is inconclusive and escalates to an
// incident instead of guessing.
func (s *Service) confirmBalance(ctx context.Context, token string, accountID uuid.UUID, before, after decimal.Decimal) confirmOutcome {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	snapshot, err := s.accounts.GetAccount(cctx, token, accountID)
	if err != nil {
		return confirmInconclusive
	}
	switch {
	case snapshot.Balance.Equal(after):
		return confirmAfter
	case snapshot.Balance.Equal(before):
		return confirmBefore
	default:
		return confirmInconclusive
	}
}

// compensateSender returns the debited amount to the sender after a failed
// credit leg. A successful compensation surfaces as a transfer-failed error
// with no ledger entry; a failed compensation raises an incident.
func (s *Service) compensateSender(ctx context.Context, token string, attemptID uuid.UUID, sender, receiver *domain.Account, amount decimal.Decimal, cause error) error {
	compToken := "comp:" + attemptID.String()

	outcome, compErr := s.adjust(ctx, token, sender.ID, amount, compToken, s.opts.CompensationRetries)
	if outcome == adjustUnknown {
		if s.confirmBalance(ctx, token, sender.ID, sender.Balance.Sub(amount), sender.Balance) == confirmAfter {
			outcome = adjustApplied
		}
	}
	if outcome == adjustApplied {
		log.Printf("level=info component=coordinator state=reverted attempt_id=%s", attemptID)
		return domain.WrapError(domain.KindTransferFailed, "transfer failed; the debited amount was returned to the sender", cause)
	}

	reason := fmt.Sprintf("compensation failed after retries (credit failure: %v; compensation failure: %v)", cause, compErr)
	return s.raiseInconsistent(ctx, attemptID, sender, receiver, amount, reason, cause)
}

// unwindBothLegs reverses a fully-applied transfer whose ledger append failed.
// The credit is taken back from the receiver first, then the sender is made
// whole through the normal compensation path.
func (s *Service) unwindBothLegs(ctx context.Context, token string, attemptID uuid.UUID, sender, receiver *domain.Account, amount decimal.Decimal, cause error) error {
	unwindToken := "unwind-credit:" + attemptID.String()

	outcome, err := s.adjust(ctx, token, receiver.ID, amount.Neg(), unwindToken, s.opts.CompensationRetries)
	if outcome != adjustApplied {
		reason := fmt.Sprintf("ledger append failed and the receiver credit could not be unwound (append failure: %v; unwind failure: %v)", cause, err)
		return s.raiseInconsistent(ctx, attemptID, sender, receiver, amount, reason, cause)
	}
	return s.compensateSender(ctx, token, attemptID, sender, receiver, amount, cause)
}

// raiseInconsistent writes the operator incident and returns the inconsistent
// domain error. This path must never be reported as success, and a failure to
// write the incident row still leaves an alert in the logs.
func (s *Service) raiseInconsistent(ctx context.Context, attemptID uuid.UUID, sender, receiver *domain.Account, amount decimal.Decimal, reason string, cause error) error {
	incident := &domain.Incident{
		AttemptID:         attemptID,
		SenderAccountID:   sender.ID,
		ReceiverAccountID: receiver.ID,
		Amount:            amount,
		Reason:            reason,
	}
	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		log.Printf("level=error component=coordinator alert=true msg=\"transfer inconsistent and incident write failed\" attempt_id=%s reason=%q err=%v", attemptID, reason, err)
	} else {
		log.Printf("level=error component=coordinator alert=true msg=\"transfer inconsistent\" incident_id=%s attempt_id=%s reason=%q", incident.ID, attemptID, reason)
	}
	return domain.WrapError(domain.KindInconsistent, "transfer could not be driven to a consistent state; an incident was recorded", cause)
}

func (s *Service) resolveUser(ctx context.Context, token string) (*domain.User, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	user, err := s.identity.GetCurrentUser(cctx, token)
	if err != nil {
		if kind := domain.KindOf(err); kind == domain.KindUnauthorized || kind == domain.KindNotFound {
			return nil, domain.WrapError(domain.KindUnauthorized, "user not authenticated", err)
		}
		return nil, fmt.Errorf("failed to resolve current user: %w", err)
	}
	return user, nil
}

func (s *Service) fetchAccount(ctx context.Context, token string, accountID uuid.UUID) (*domain.Account, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.accounts.GetAccount(cctx, token, accountID)
}

func (s *Service) resolveReceiver(ctx context.Context, token string, req domain.CreateTransferRequest) (*domain.Account, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	if req.ReceiverAccountID != nil && *req.ReceiverAccountID != uuid.Nil {
		return s.accounts.GetAccount(cctx, token, *req.ReceiverAccountID)
	}
	return s.accounts.GetAccountByIban(cctx, token, req.ReceiverAccountIban)
}
