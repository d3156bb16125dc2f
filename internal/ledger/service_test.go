package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pointcard/backend/internal/models"
	"github.com/pointcard/backend/internal/tokens"
)

// ---------------------------------------------------------------------------
// In-memory mocks. These let us test the real ledger logic without a
// database. noopTx satisfies pgx.Tx; only Commit/Rollback are reached.
// ---------------------------------------------------------------------------

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- accounts ---

type mockAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func newMockAccounts(accs ...*models.Account) *mockAccounts {
	m := &mockAccounts{accounts: make(map[uuid.UUID]*models.Account)}
	for _, a := range accs {
		cp := *a
		m.accounts[a.ID] = &cp
	}
	return m
}

func (m *mockAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	return m.get(id)
}

func (m *mockAccounts) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return m.get(id)
}

func (m *mockAccounts) get(id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccounts) AddPoints(_ context.Context, _ pgx.Tx, id uuid.UUID, points int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.GlobalPoints += points
	return a.GlobalPoints, nil
}

func (m *mockAccounts) DeductPoints(_ context.Context, _ pgx.Tx, id uuid.UUID, points int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	if a.GlobalPoints < points {
		return 0, pgx.ErrNoRows
	}
	a.GlobalPoints -= points
	return a.GlobalPoints, nil
}

func (m *mockAccounts) IncrementBusinessStats(_ context.Context, _ pgx.Tx, id uuid.UUID, amountCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.TotalTransactions++
	a.TotalRevenueCents += amountCents
	return nil
}

func (m *mockAccounts) globalPoints(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].GlobalPoints
}

// --- issuer balances ---

type balanceKey struct {
	customer, business uuid.UUID
}

type mockBalances struct {
	mu       sync.Mutex
	balances map[balanceKey]int
}

func newMockBalances() *mockBalances {
	return &mockBalances{balances: make(map[balanceKey]int)}
}

func (m *mockBalances) GetTx(_ context.Context, _ pgx.Tx, customerID, businessID uuid.UUID) (*models.IssuerBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.balances[balanceKey{customerID, businessID}]
	if !ok {
		return nil, nil
	}
	return &models.IssuerBalance{CustomerID: customerID, BusinessID: businessID, Points: p}, nil
}

func (m *mockBalances) Add(_ context.Context, _ pgx.Tx, customerID, businessID uuid.UUID, points int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := balanceKey{customerID, businessID}
	m.balances[k] += points
	return m.balances[k], nil
}

func (m *mockBalances) Deduct(_ context.Context, _ pgx.Tx, customerID, businessID uuid.UUID, points int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := balanceKey{customerID, businessID}
	if m.balances[k] < points {
		return 0, pgx.ErrNoRows
	}
	m.balances[k] -= points
	return m.balances[k], nil
}

func (m *mockBalances) sum(customerID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for k, p := range m.balances {
		if k.customer == customerID {
			total += p
		}
	}
	return total
}

func (m *mockBalances) points(customerID, businessID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[balanceKey{customerID, businessID}]
}

// --- transactions ---

type mockTransactions struct {
	mu      sync.Mutex
	entries []*models.PointsTransaction
}

func (m *mockTransactions) CreateTx(_ context.Context, _ pgx.Tx, t *models.PointsTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockTransactions) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]*models.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PointsTransaction
	for _, e := range m.entries {
		if e.CustomerID == customerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockTransactions) ListByBusiness(_ context.Context, businessID uuid.UUID) ([]*models.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PointsTransaction
	for _, e := range m.entries {
		if e.BusinessID == businessID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockTransactions) byType(entryType string) []*models.PointsTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PointsTransaction
	for _, e := range m.entries {
		if e.EntryType == entryType {
			out = append(out, e)
		}
	}
	return out
}

// --- token consumer ---

// stubConsumer hands out single-use tokens bound to a customer, with the
// same mutex-guarded check-and-set semantics as the real authority.
// serializationFailures makes the next N attempts fail with SQLSTATE 40001
// before anything is consumed, the way a lock conflict aborts a transaction.
type stubConsumer struct {
	mu                    sync.Mutex
	customer              uuid.UUID
	consumed              map[uuid.UUID]bool
	serializationFailures int
}

func newStubConsumer(customerID uuid.UUID) *stubConsumer {
	return &stubConsumer{customer: customerID, consumed: make(map[uuid.UUID]bool)}
}

func (s *stubConsumer) Consume(_ context.Context, _ pgx.Tx, tokenID, businessID uuid.UUID) (*models.AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serializationFailures > 0 {
		s.serializationFailures--
		return nil, &pgconn.PgError{Code: "40001"}
	}
	if s.consumed[tokenID] {
		return nil, tokens.ErrTokenConsumed
	}
	s.consumed[tokenID] = true
	return &models.AuthToken{
		ID:         tokenID,
		CustomerID: s.customer,
		ExpiresAt:  time.Now().Add(time.Minute),
		Consumed:   true,
		ConsumedBy: &businessID,
	}, nil
}

// --- notifier ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, _ uuid.UUID, eventType string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func business(spendUnitCents int64, pointsPerUnit int) *models.Account {
	return &models.Account{
		ID:             uuid.New(),
		Type:           models.AccountTypeBusiness,
		Name:           "Cafe Uno",
		Active:         true,
		SpendUnitCents: spendUnitCents,
		PointsPerUnit:  pointsPerUnit,
	}
}

func customerAcc(points int) *models.Account {
	return &models.Account{
		ID:           uuid.New(),
		Type:         models.AccountTypeCustomer,
		Name:         "Ana",
		Active:       true,
		GlobalPoints: points,
	}
}

type fixture struct {
	svc      *Service
	accounts *mockAccounts
	balances *mockBalances
	txs      *mockTransactions
	consumer *stubConsumer
	notifier *recordingNotifier
}

func newFixture(cust *models.Account, accs ...*models.Account) *fixture {
	f := &fixture{
		accounts: newMockAccounts(append(accs, cust)...),
		balances: newMockBalances(),
		txs:      &mockTransactions{},
		consumer: newStubConsumer(cust.ID),
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(mockPool{}, f.accounts, f.balances, f.txs, f.consumer, f.notifier, nil)
	return f
}

// ---------------------------------------------------------------------------
// Credit
// ---------------------------------------------------------------------------

func TestCredit_Formula(t *testing.T) {
	biz := business(100, 1) // 1 point per full 100 cents
	cust := customerAcc(0)
	f := newFixture(cust, biz)

	res, err := f.svc.Credit(context.Background(), biz.ID, uuid.New(), 250)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if res.PointsCredited != 2 {
		t.Errorf("points credited: got %d, want 2 (floor(250/100)*1)", res.PointsCredited)
	}
	if res.BalanceBefore != 0 || res.BalanceAfter != 2 {
		t.Errorf("balances: got %d -> %d, want 0 -> 2", res.BalanceBefore, res.BalanceAfter)
	}
	if got := f.balances.points(cust.ID, biz.ID); got != 2 {
		t.Errorf("issuer partition: got %d, want 2", got)
	}

	credits := f.txs.byType(models.TxEntryCredit)
	if len(credits) != 1 {
		t.Fatalf("credit entries: got %d, want 1", len(credits))
	}
	if credits[0].TokenID == nil {
		t.Error("credit entry should reference the consumed token")
	}
	if credits[0].AmountCents != 250 {
		t.Errorf("entry amount: got %d, want 250", credits[0].AmountCents)
	}
}

func TestCredit_ZeroPointsStillSucceeds(t *testing.T) {
	biz := business(100, 1)
	cust := customerAcc(10)
	f := newFixture(cust, biz)

	res, err := f.svc.Credit(context.Background(), biz.ID, uuid.New(), 99)
	if err != nil {
		t.Fatalf("zero-point credit must not fail: %v", err)
	}
	if res.PointsCredited != 0 {
		t.Errorf("points credited: got %d, want 0", res.PointsCredited)
	}
	if got := f.accounts.globalPoints(cust.ID); got != 10 {
		t.Errorf("global balance unchanged: got %d, want 10", got)
	}
	// The audit trail still records the purchase.
	if n := len(f.txs.byType(models.TxEntryCredit)); n != 1 {
		t.Errorf("credit entries: got %d, want 1", n)
	}
}

func TestCredit_InvalidAmount(t *testing.T) {
	biz := business(100, 1)
	f := newFixture(customerAcc(0), biz)

	for _, amount := range []int64{0, -250} {
		if _, err := f.svc.Credit(context.Background(), biz.ID, uuid.New(), amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: got %v, want ErrInvalidAmount", amount, err)
		}
	}
	// Nothing consumed, nothing written.
	if len(f.consumer.consumed) != 0 {
		t.Error("no token should be consumed on invalid amount")
	}
}

func TestCredit_UnknownBusiness(t *testing.T) {
	f := newFixture(customerAcc(0))
	if _, err := f.svc.Credit(context.Background(), uuid.New(), uuid.New(), 100); !errors.Is(err, ErrBusinessNotFound) {
		t.Errorf("got %v, want ErrBusinessNotFound", err)
	}
}

func TestCredit_TokenSingleUse(t *testing.T) {
	biz := business(100, 2)
	cust := customerAcc(0)
	f := newFixture(cust, biz)

	tokenID := uuid.New()
	if _, err := f.svc.Credit(context.Background(), biz.ID, tokenID, 500); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if _, err := f.svc.Credit(context.Background(), biz.ID, tokenID, 500); !errors.Is(err, tokens.ErrTokenConsumed) {
		t.Errorf("second credit with same token: got %v, want ErrTokenConsumed", err)
	}
	if got := f.accounts.globalPoints(cust.ID); got != 10 {
		t.Errorf("only the first credit may land: got %d, want 10", got)
	}
}

func TestCredit_ConcurrentConservation(t *testing.T) {
	bizA := business(100, 1)
	bizB := business(50, 3)
	cust := customerAcc(0)
	f := newFixture(cust, bizA, bizB)

	const perBusiness = 20
	var wg sync.WaitGroup
	for i := 0; i < perBusiness; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Credit(context.Background(), bizA.ID, uuid.New(), 200); err != nil {
				t.Errorf("credit A: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := f.svc.Credit(context.Background(), bizB.ID, uuid.New(), 100); err != nil {
				t.Errorf("credit B: %v", err)
			}
		}()
	}
	wg.Wait()

	// 20*2 points from A, 20*6 from B; no update may be lost.
	wantGlobal := perBusiness*2 + perBusiness*6
	if got := f.accounts.globalPoints(cust.ID); got != wantGlobal {
		t.Errorf("global after concurrent credits: got %d, want %d", got, wantGlobal)
	}
	// Conservation: global == sum of issuer partitions.
	if got := f.balances.sum(cust.ID); got != wantGlobal {
		t.Errorf("sum of partitions: got %d, want %d", got, wantGlobal)
	}
}

func TestCredit_RetriesSerializationFailures(t *testing.T) {
	biz := business(100, 1)
	cust := customerAcc(0)
	f := newFixture(cust, biz)
	f.consumer.serializationFailures = 2

	res, err := f.svc.Credit(context.Background(), biz.ID, uuid.New(), 250)
	if err != nil {
		t.Fatalf("credit must survive %d aborted attempts: %v", 2, err)
	}
	if res.PointsCredited != 2 {
		t.Errorf("points credited: got %d, want 2", res.PointsCredited)
	}
	// Exactly one attempt landed.
	if got := f.accounts.globalPoints(cust.ID); got != 2 {
		t.Errorf("global after retried credit: got %d, want 2", got)
	}
	if n := len(f.txs.byType(models.TxEntryCredit)); n != 1 {
		t.Errorf("credit entries: got %d, want 1", n)
	}
}

func TestCredit_BoundedRetries(t *testing.T) {
	biz := business(100, 1)
	cust := customerAcc(0)
	f := newFixture(cust, biz)
	f.consumer.serializationFailures = 3

	_, err := f.svc.Credit(context.Background(), biz.ID, uuid.New(), 250)
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("got %v, want ErrConcurrentModification after 3 aborted attempts", err)
	}
	// Every attempt aborted before writing: no partial state anywhere.
	if got := f.accounts.globalPoints(cust.ID); got != 0 {
		t.Errorf("global after failed credit: got %d, want 0", got)
	}
	if got := f.balances.sum(cust.ID); got != 0 {
		t.Errorf("partitions after failed credit: got %d, want 0", got)
	}
	if n := len(f.txs.entries); n != 0 {
		t.Errorf("ledger entries after failed credit: got %d, want 0", n)
	}
	if len(f.consumer.consumed) != 0 {
		t.Error("no token may be consumed when every attempt aborts")
	}
}

func TestCredit_MisconfiguredFormula(t *testing.T) {
	broken := business(0, 1)
	cust := customerAcc(0)
	f := newFixture(cust, broken)

	// A business row with a zero spend unit cannot have come through
	// registration; Credit refuses it instead of dividing by it.
	if _, err := f.svc.Credit(context.Background(), broken.ID, uuid.New(), 250); !errors.Is(err, ErrBusinessNotFound) {
		t.Errorf("got %v, want ErrBusinessNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Debit
// ---------------------------------------------------------------------------

func TestDebit_IssuerScopedCheck(t *testing.T) {
	bizA := business(100, 1)
	bizB := business(100, 1)
	cust := customerAcc(0)
	f := newFixture(cust, bizA, bizB)

	// 45 points from A, 5 from B: globally rich, issuer-poor at B.
	if _, err := f.svc.Credit(context.Background(), bizA.ID, uuid.New(), 4500); err != nil {
		t.Fatalf("credit A: %v", err)
	}
	if _, err := f.svc.Credit(context.Background(), bizB.ID, uuid.New(), 500); err != nil {
		t.Fatalf("credit B: %v", err)
	}

	_, err := f.svc.Debit(context.Background(), noopTx{}, cust.ID, bizB.ID, 10, nil)
	if !errors.Is(err, ErrInsufficientIssuerBalance) {
		t.Fatalf("got %v, want ErrInsufficientIssuerBalance", err)
	}
	var short *InsufficientBalanceError
	if !errors.As(err, &short) {
		t.Fatal("error should carry shortfall context")
	}
	if short.Scope != ScopeIssuer || short.Required != 10 || short.Available != 5 {
		t.Errorf("shortfall: got %+v, want issuer 10/5", short)
	}

	// State untouched by the failed debit.
	if got := f.accounts.globalPoints(cust.ID); got != 50 {
		t.Errorf("global after failed debit: got %d, want 50", got)
	}
	if got := f.balances.points(cust.ID, bizB.ID); got != 5 {
		t.Errorf("issuer partition after failed debit: got %d, want 5", got)
	}
}

func TestDebit_GlobalInsufficiency(t *testing.T) {
	biz := business(100, 1)
	cust := customerAcc(0)
	f := newFixture(cust, biz)

	if _, err := f.svc.Credit(context.Background(), biz.ID, uuid.New(), 300); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := f.svc.Debit(context.Background(), noopTx{}, cust.ID, biz.ID, 10, nil)
	if !errors.Is(err, ErrInsufficientGlobalBalance) {
		t.Fatalf("got %v, want ErrInsufficientGlobalBalance", err)
	}
	var short *InsufficientBalanceError
	if !errors.As(err, &short) || short.Available != 3 {
		t.Errorf("shortfall context: got %+v, want available 3", short)
	}
}

func TestDebit_Success(t *testing.T) {
	biz := business(100, 1)
	cust := customerAcc(0)
	f := newFixture(cust, biz)

	if _, err := f.svc.Credit(context.Background(), biz.ID, uuid.New(), 5000); err != nil {
		t.Fatalf("credit: %v", err)
	}

	redemptionID := uuid.New()
	res, err := f.svc.Debit(context.Background(), noopTx{}, cust.ID, biz.ID, 30, &redemptionID)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if res.BalanceBefore != 50 || res.BalanceAfter != 20 {
		t.Errorf("balances: got %d -> %d, want 50 -> 20", res.BalanceBefore, res.BalanceAfter)
	}
	if got := f.balances.points(cust.ID, biz.ID); got != 20 {
		t.Errorf("issuer partition: got %d, want 20", got)
	}
	// Conservation holds after credit+debit.
	if f.accounts.globalPoints(cust.ID) != f.balances.sum(cust.ID) {
		t.Error("global balance diverged from partition sum")
	}

	entries := f.txs.byType(models.TxEntryRedemption)
	if len(entries) != 1 {
		t.Fatalf("redemption entries: got %d, want 1", len(entries))
	}
	if entries[0].Points != -30 {
		t.Errorf("entry delta: got %d, want -30", entries[0].Points)
	}
	if entries[0].RedemptionID == nil || *entries[0].RedemptionID != redemptionID {
		t.Error("entry should reference the redemption")
	}
}

// ---------------------------------------------------------------------------
// CreditBack
// ---------------------------------------------------------------------------

func TestCreditBack_RestoresBothBalances(t *testing.T) {
	biz := business(100, 1)
	cust := customerAcc(0)
	f := newFixture(cust, biz)

	if _, err := f.svc.Credit(context.Background(), biz.ID, uuid.New(), 5000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	redemptionID := uuid.New()
	if _, err := f.svc.Debit(context.Background(), noopTx{}, cust.ID, biz.ID, 30, &redemptionID); err != nil {
		t.Fatalf("debit: %v", err)
	}

	if err := f.svc.CreditBack(context.Background(), noopTx{}, cust.ID, biz.ID, 30, redemptionID); err != nil {
		t.Fatalf("CreditBack: %v", err)
	}

	if got := f.accounts.globalPoints(cust.ID); got != 50 {
		t.Errorf("global restored: got %d, want 50", got)
	}
	if got := f.balances.points(cust.ID, biz.ID); got != 50 {
		t.Errorf("issuer partition restored: got %d, want 50", got)
	}
	reversals := f.txs.byType(models.TxEntryReversal)
	if len(reversals) != 1 || reversals[0].Points != 30 {
		t.Error("one reversal entry of +30 expected")
	}
	// The original debit entry is untouched: corrections append, never edit.
	if n := len(f.txs.byType(models.TxEntryRedemption)); n != 1 {
		t.Errorf("redemption entries after reversal: got %d, want 1", n)
	}
}
