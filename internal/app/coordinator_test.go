package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/microbank/transfer-service/internal/domain"
)

type adjustCall struct {
	accountID uuid.UUID
	delta     decimal.Decimal
	token     string
}

// fakeLedger simulates the account service with idempotent balance
// adjustments. failures maps an idempotency token to errors returned on
// successive calls; a token in applyDespiteError still applies the delta
// before returning the error, simulating a response lost on the wire.
type fakeLedger struct {
	mu                sync.Mutex
	accounts          map[uuid.UUID]*domain.Account
	ibans             map[string]uuid.UUID
	owners            map[string]uuid.UUID
	applied           map[string]bool
	calls             []adjustCall
	failures          map[string][]error
	applyDespiteError map[string]bool
}

func newFakeLedger(accounts ...*domain.Account) *fakeLedger {
	l := &fakeLedger{
		accounts:          map[uuid.UUID]*domain.Account{},
		ibans:             map[string]uuid.UUID{},
		owners:            map[string]uuid.UUID{},
		applied:           map[string]bool{},
		failures:          map[string][]error{},
		applyDespiteError: map[string]bool{},
	}
	for _, a := range accounts {
		l.accounts[a.ID] = a
		if a.Iban != "" {
			l.ibans[a.Iban] = a.ID
		}
	}
	return l
}

// failTokenPrefix schedules errs for the first calls whose token starts with
// prefix; later calls succeed.
func (l *fakeLedger) failTokenPrefix(prefix string, errs ...error) {
	l.failures[prefix] = errs
}

func (l *fakeLedger) snapshot(id uuid.UUID) domain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.accounts[id]
}

func (l *fakeLedger) GetAccount(ctx context.Context, token string, accountID uuid.UUID) (*domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok := l.accounts[accountID]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "account not found")
	}
	copied := *account
	return &copied, nil
}

func (l *fakeLedger) GetAccountByIban(ctx context.Context, token, iban string) (*domain.Account, error) {
	l.mu.Lock()
	id, ok := l.ibans[iban]
	l.mu.Unlock()
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "account not found")
	}
	return l.GetAccount(ctx, token, id)
}

func (l *fakeLedger) ListOwnAccounts(ctx context.Context, token string) ([]domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ownerID, ok := l.owners[token]
	if !ok {
		return nil, domain.NewError(domain.KindUnauthorized, "unknown token")
	}
	out := []domain.Account{}
	for _, a := range l.accounts {
		if a.OwnerID == ownerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (l *fakeLedger) ListAccountsByUser(ctx context.Context, token string, userID uuid.UUID) ([]domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []domain.Account{}
	for _, a := range l.accounts {
		if a.OwnerID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (l *fakeLedger) AdjustBalance(ctx context.Context, token string, accountID uuid.UUID, delta decimal.Decimal, idempotencyToken string) (*domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = append(l.calls, adjustCall{accountID: accountID, delta: delta, token: idempotencyToken})

	account, ok := l.accounts[accountID]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "account not found")
	}
	if l.applied[idempotencyToken] {
		copied := *account
		return &copied, nil
	}

	for prefix, errs := range l.failures {
		if strings.HasPrefix(idempotencyToken, prefix) && len(errs) > 0 {
			err := errs[0]
			l.failures[prefix] = errs[1:]
			if l.applyDespiteError[prefix] {
				account.Balance = account.Balance.Add(delta)
				l.applied[idempotencyToken] = true
			}
			return nil, err
		}
	}

	if account.Blocked {
		return nil, domain.NewError(domain.KindAccountBlocked, "account is blocked")
	}
	if account.Balance.Add(delta).IsNegative() {
		return nil, domain.NewError(domain.KindInsufficientFunds, "insufficient balance")
	}

	account.Balance = account.Balance.Add(delta)
	l.applied[idempotencyToken] = true
	copied := *account
	return &copied, nil
}

func (l *fakeLedger) adjustCallsFor(tokenPrefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if strings.HasPrefix(c.token, tokenPrefix) {
			n++
		}
	}
	return n
}

type fakeIdentity struct {
	user *domain.User
	err  error
}

func (f *fakeIdentity) GetCurrentUser(ctx context.Context, token string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type fakeRepo struct {
	mu        sync.Mutex
	txs       map[uuid.UUID]*domain.Transaction
	order     []uuid.UUID
	incidents []domain.Incident
	appendErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{txs: map[uuid.UUID]*domain.Transaction{}}
}

func (r *fakeRepo) Append(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return nil, r.appendErr
	}
	stored := *tx
	stored.ID = uuid.New()
	stored.Timestamp = time.Now().UTC()
	r.txs[stored.ID] = &stored
	r.order = append([]uuid.UUID{stored.ID}, r.order...)
	copied := stored
	return &copied, nil
}

func (r *fakeRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "transaction not found")
	}
	copied := *tx
	return &copied, nil
}

func (r *fakeRepo) ListByAccountIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Transaction{}
	for _, id := range r.order {
		tx := r.txs[id]
		for _, accountID := range ids {
			if tx.SenderAccountID == accountID || tx.ReceiverAccountID == accountID {
				out = append(out, *tx)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) ListAll(ctx context.Context) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Transaction, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.txs[id])
	}
	return out, nil
}

func (r *fakeRepo) MarkReverted(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return domain.NewError(domain.KindNotFound, "transaction not found")
	}
	tx.Status = domain.StatusReverted
	return nil
}

func (r *fakeRepo) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	incident.ID = uuid.New()
	r.incidents = append(r.incidents, *incident)
	return nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []interface{}
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, body)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type fixedRateLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (f *fixedRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return f.count, f.retryAfter, f.err
}

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type transferFixture struct {
	service   *Service
	ledger    *fakeLedger
	repo      *fakeRepo
	publisher *fakePublisher
	user      *domain.User
	principal domain.Principal
	sender    *domain.Account
	receiver  *domain.Account
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()

	user := &domain.User{ID: uuid.New(), KeycloakID: "kc-user", Username: "sender", Email: "sender@microbank.dev"}
	sender := &domain.Account{
		ID:         uuid.New(),
		Iban:       "DE02100100109307118603",
		Balance:    money("100.00"),
		OwnerID:    user.ID,
		OwnerName:  "Sender Person",
		OwnerEmail: user.Email,
	}
	receiver := &domain.Account{
		ID:         uuid.New(),
		Iban:       "DE02120300000000202051",
		Balance:    money("20.00"),
		OwnerID:    uuid.New(),
		OwnerName:  "Receiver Person",
		OwnerEmail: "receiver@microbank.dev",
	}

	ledger := newFakeLedger(sender, receiver)
	ledger.owners["token"] = user.ID
	repo := newFakeRepo()
	publisher := &fakePublisher{}

	dispatcher := NewEventDispatcher(publisher, 16, 100*time.Millisecond, time.Millisecond, 2)
	dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	service := NewService(repo, ledger, &fakeIdentity{user: user}, dispatcher, Options{
		CallTimeout:      time.Second,
		SagaTimeout:      5 * time.Second,
		AdjustRetries:    2,
		RetryBackoffBase: time.Millisecond,
	})

	return &transferFixture{
		service:   service,
		ledger:    ledger,
		repo:      repo,
		publisher: publisher,
		user:      user,
		principal: domain.Principal{KeycloakID: user.KeycloakID, Email: user.Email, Roles: []string{"USER"}, RawToken: "token"},
		sender:    sender,
		receiver:  receiver,
	}
}

func (f *transferFixture) request(amount string) domain.CreateTransferRequest {
	receiverID := f.receiver.ID
	return domain.CreateTransferRequest{
		SenderAccountID:   f.sender.ID,
		ReceiverAccountID: &receiverID,
		Amount:            money(amount),
		Description:       "rent",
	}
}

func TestExecuteTransfer_Success(t *testing.T) {
	f := newTransferFixture(t)

	tx, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("30.00"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if tx.Status != domain.StatusCompleted {
		t.Fatalf("expected status completed, got %s", tx.Status)
	}
	if got := f.ledger.snapshot(f.sender.ID).Balance; !got.Equal(money("70.00")) {
		t.Fatalf("expected sender balance 70.00, got %s", got)
	}
	if got := f.ledger.snapshot(f.receiver.ID).Balance; !got.Equal(money("50.00")) {
		t.Fatalf("expected receiver balance 50.00, got %s", got)
	}
	if f.repo.count() != 1 {
		t.Fatalf("expected one ledger entry, got %d", f.repo.count())
	}
	if f.publisher.count() != 1 {
		t.Fatalf("expected one published event, got %d", f.publisher.count())
	}

	event, ok := f.publisher.published[0].(domain.TransactionEvent)
	if !ok {
		t.Fatalf("unexpected event payload type %T", f.publisher.published[0])
	}
	if event.TransactionID != tx.ID {
		t.Fatalf("event transaction id mismatch: %s vs %s", event.TransactionID, tx.ID)
	}
}

func TestExecuteTransfer_ReceiverByIban(t *testing.T) {
	f := newTransferFixture(t)

	tx, err := f.service.ExecuteTransfer(context.Background(), f.principal, domain.CreateTransferRequest{
		SenderAccountID:     f.sender.ID,
		ReceiverAccountIban: f.receiver.Iban,
		Amount:              money("10.00"),
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if tx.ReceiverAccountID != f.receiver.ID {
		t.Fatalf("expected receiver %s, got %s", f.receiver.ID, tx.ReceiverAccountID)
	}
}

func TestExecuteTransfer_ValidationFailuresHaveNoSideEffects(t *testing.T) {
	f := newTransferFixture(t)
	receiverID := f.receiver.ID

	tests := []struct {
		name string
		req  domain.CreateTransferRequest
	}{
		{
			name: "missing sender",
			req:  domain.CreateTransferRequest{ReceiverAccountID: &receiverID, Amount: money("1.00")},
		},
		{
			name: "no receiver",
			req:  domain.CreateTransferRequest{SenderAccountID: f.sender.ID, Amount: money("1.00")},
		},
		{
			name: "both receiver id and iban",
			req: domain.CreateTransferRequest{
				SenderAccountID:     f.sender.ID,
				ReceiverAccountID:   &receiverID,
				ReceiverAccountIban: f.receiver.Iban,
				Amount:              money("1.00"),
			},
		},
		{
			name: "zero amount",
			req:  domain.CreateTransferRequest{SenderAccountID: f.sender.ID, ReceiverAccountID: &receiverID, Amount: money("0")},
		},
		{
			name: "negative amount",
			req:  domain.CreateTransferRequest{SenderAccountID: f.sender.ID, ReceiverAccountID: &receiverID, Amount: money("-5.00")},
		},
		{
			name: "too many decimal places",
			req:  domain.CreateTransferRequest{SenderAccountID: f.sender.ID, ReceiverAccountID: &receiverID, Amount: money("1.00001")},
		},
		{
			name: "sender equals receiver",
			req: func() domain.CreateTransferRequest {
				senderID := f.sender.ID
				return domain.CreateTransferRequest{SenderAccountID: f.sender.ID, ReceiverAccountID: &senderID, Amount: money("1.00")}
			}(),
		},
		{
			name: "oversized description",
			req: domain.CreateTransferRequest{
				SenderAccountID:   f.sender.ID,
				ReceiverAccountID: &receiverID,
				Amount:            money("1.00"),
				Description:       strings.Repeat("x", maxDescriptionLength+1),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.ExecuteTransfer(context.Background(), f.principal, tt.req)
			if !domain.IsKind(err, domain.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if len(f.ledger.calls) != 0 {
		t.Fatalf("expected no balance adjustments, got %d", len(f.ledger.calls))
	}
	if f.repo.count() != 0 {
		t.Fatalf("expected no ledger entries, got %d", f.repo.count())
	}
}

func TestExecuteTransfer_SameAccountByIbanRejected(t *testing.T) {
	f := newTransferFixture(t)

	_, err := f.service.ExecuteTransfer(context.Background(), f.principal, domain.CreateTransferRequest{
		SenderAccountID:     f.sender.ID,
		ReceiverAccountIban: f.sender.Iban,
		Amount:              money("1.00"),
	})
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.ledger.calls) != 0 {
		t.Fatalf("expected no balance adjustments, got %d", len(f.ledger.calls))
	}
}

func TestExecuteTransfer_InsufficientFunds(t *testing.T) {
	f := newTransferFixture(t)

	_, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("100.01"))
	if !domain.IsKind(err, domain.KindInsufficientFunds) {
		t.Fatalf("expected insufficient funds error, got %v", err)
	}
	if len(f.ledger.calls) != 0 {
		t.Fatalf("expected no balance adjustments, got %d", len(f.ledger.calls))
	}
}

func TestExecuteTransfer_SenderNotOwnedByCaller(t *testing.T) {
	f := newTransferFixture(t)
	f.sender.OwnerID = uuid.New()

	_, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("1.00"))
	if !domain.IsKind(err, domain.KindUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestExecuteTransfer_BlockedAccounts(t *testing.T) {
	t.Run("sender blocked", func(t *testing.T) {
		f := newTransferFixture(t)
		f.sender.Blocked = true

		_, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("1.00"))
		if !domain.IsKind(err, domain.KindAccountBlocked) {
			t.Fatalf("expected account blocked error, got %v", err)
		}
		if len(f.ledger.calls) != 0 {
			t.Fatalf("expected no balance adjustments, got %d", len(f.ledger.calls))
		}
	})

	t.Run("receiver blocked", func(t *testing.T) {
		f := newTransferFixture(t)
		f.receiver.Blocked = true

		_, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("1.00"))
		if !domain.IsKind(err, domain.KindAccountBlocked) {
			t.Fatalf("expected account blocked error, got %v", err)
		}
		if len(f.ledger.calls) != 0 {
			t.Fatalf("expected no balance adjustments, got %d", len(f.ledger.calls))
		}
	})
}

func TestExecuteTransfer_CreditFailureIsCompensated(t *testing.T) {
	f := newTransferFixture(t)
	f.ledger.failTokenPrefix("credit:",
		errors.New("connection reset"),
		errors.New("connection reset"),
	)

	_, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("30.00"))
	if !domain.IsKind(err, domain.KindTransferFailed) {
		t.Fatalf("expected transfer failed error, got %v", err)
	}

	if got := f.ledger.snapshot(f.sender.ID).Balance; !got.Equal(money("100.00")) {
		t.Fatalf("expected sender made whole at 100.00, got %s", got)
	}
	if got := f.ledger.snapshot(f.receiver.ID).Balance; !got.Equal(money("20.00")) {
		t.Fatalf("expected receiver untouched at 20.00, got %s", got)
	}
	if f.repo.count() != 0 {
		t.Fatalf("expected no ledger entry, got %d", f.repo.count())
	}
	if f.publisher.count() != 0 {
		t.Fatalf("expected no published events, got %d", f.publisher.count())
	}
	if n := f.ledger.adjustCallsFor("comp:"); n != 1 {
		t.Fatalf("expected one compensation call, got %d", n)
	}
}

func TestExecuteTransfer_CompensationFailureRaisesIncident(t *testing.T) {
	f := newTransferFixture(t)
	// The credit is definitively rejected and every compensation attempt dies
	// on the wire without applying.
	f.ledger.failTokenPrefix("credit:", domain.NewError(domain.KindAccountBlocked, "account is blocked"))
	f.ledger.failTokenPrefix("comp:",
		errors.New("connection reset"),
		errors.New("connection reset"),
		errors.New("connection reset"),
		errors.New("connection reset"),
		errors.New("connection reset"),
	)

	_, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("30.00"))
	if !domain.IsKind(err, domain.KindInconsistent) {
		t.Fatalf("expected inconsistent error, got %v", err)
	}

	if len(f.repo.incidents) != 1 {
		t.Fatalf("expected one incident, got %d", len(f.repo.incidents))
	}
	incident := f.repo.incidents[0]
	if incident.SenderAccountID != f.sender.ID || incident.ReceiverAccountID != f.receiver.ID {
		t.Fatalf("incident references wrong accounts: %+v", incident)
	}
	if !incident.Amount.Equal(money("30.00")) {
		t.Fatalf("expected incident amount 30.00, got %s", incident.Amount)
	}
	if f.repo.count() != 0 {
		t.Fatalf("expected no ledger entry, got %d", f.repo.count())
	}
}

func TestExecuteTransfer_RetriedDebitAppliesOnce(t *testing.T) {
	f := newTransferFixture(t)
	// The first debit applies at the account service but the response is lost.
	f.ledger.applyDespiteError["debit:"] = true
	f.ledger.failTokenPrefix("debit:", errors.New("timeout awaiting response"))

	tx, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("30.00"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if tx.Status != domain.StatusCompleted {
		t.Fatalf("expected status completed, got %s", tx.Status)
	}

	if got := f.ledger.snapshot(f.sender.ID).Balance; !got.Equal(money("70.00")) {
		t.Fatalf("expected sender debited exactly once to 70.00, got %s", got)
	}
	if got := f.ledger.snapshot(f.receiver.ID).Balance; !got.Equal(money("50.00")) {
		t.Fatalf("expected receiver balance 50.00, got %s", got)
	}
	if n := f.ledger.adjustCallsFor("debit:"); n != 2 {
		t.Fatalf("expected two debit calls (failed + retried), got %d", n)
	}
}

func TestExecuteTransfer_DebitNeverAppliedReturnsCleanFailure(t *testing.T) {
	f := newTransferFixture(t)
	f.ledger.failTokenPrefix("debit:",
		errors.New("connection reset"),
		errors.New("connection reset"),
	)

	_, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("30.00"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if kind := domain.KindOf(err); kind == domain.KindInconsistent {
		t.Fatalf("expected a clean failure, got inconsistent: %v", err)
	}

	if got := f.ledger.snapshot(f.sender.ID).Balance; !got.Equal(money("100.00")) {
		t.Fatalf("expected sender untouched at 100.00, got %s", got)
	}
	if len(f.repo.incidents) != 0 {
		t.Fatalf("expected no incidents, got %d", len(f.repo.incidents))
	}
}

func TestExecuteTransfer_AppendFailureUnwindsBothLegs(t *testing.T) {
	f := newTransferFixture(t)
	f.repo.appendErr = fmt.Errorf("connection refused")

	_, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("30.00"))
	if !domain.IsKind(err, domain.KindTransferFailed) {
		t.Fatalf("expected transfer failed error, got %v", err)
	}

	if got := f.ledger.snapshot(f.sender.ID).Balance; !got.Equal(money("100.00")) {
		t.Fatalf("expected sender restored to 100.00, got %s", got)
	}
	if got := f.ledger.snapshot(f.receiver.ID).Balance; !got.Equal(money("20.00")) {
		t.Fatalf("expected receiver restored to 20.00, got %s", got)
	}
	if f.publisher.count() != 0 {
		t.Fatalf("expected no published events, got %d", f.publisher.count())
	}
}

func TestExecuteTransfer_PublishFailureDoesNotFailTransfer(t *testing.T) {
	f := newTransferFixture(t)
	f.publisher.err = errors.New("broker unavailable")

	tx, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("30.00"))
	if err != nil {
		t.Fatalf("expected success despite broker outage, got %v", err)
	}
	if tx.Status != domain.StatusCompleted {
		t.Fatalf("expected status completed, got %s", tx.Status)
	}
	if f.repo.count() != 1 {
		t.Fatalf("expected one ledger entry, got %d", f.repo.count())
	}
}

func TestExecuteTransfer_RateLimited(t *testing.T) {
	f := newTransferFixture(t)
	f.service.opts.TransferRateLimitPerMinute = 5
	f.service.SetRateLimiter(&fixedRateLimiter{count: 6, retryAfter: 30})

	_, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("1.00"))
	if !domain.IsKind(err, domain.KindRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	if len(f.ledger.calls) != 0 {
		t.Fatalf("expected no balance adjustments, got %d", len(f.ledger.calls))
	}
}

func TestExecuteTransfer_RateLimiterOutageFailsOpen(t *testing.T) {
	f := newTransferFixture(t)
	f.service.opts.TransferRateLimitPerMinute = 5
	f.service.SetRateLimiter(&fixedRateLimiter{err: errors.New("redis down")})

	_, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("1.00"))
	if err != nil {
		t.Fatalf("expected transfer to proceed when the limiter is down, got %v", err)
	}
}

func TestRevertTransaction(t *testing.T) {
	f := newTransferFixture(t)

	tx, err := f.service.ExecuteTransfer(context.Background(), f.principal, f.request("10.00"))
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	reverted, err := f.service.RevertTransaction(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("revert failed: %v", err)
	}
	if reverted.Status != domain.StatusReverted {
		t.Fatalf("expected status reverted, got %s", reverted.Status)
	}
	if !reverted.Amount.Equal(tx.Amount) || reverted.SenderAccountID != tx.SenderAccountID {
		t.Fatalf("revert must not change financial fields: %+v", reverted)
	}
}
