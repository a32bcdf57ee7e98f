package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/domain"
)

// MemoryStore is the in-memory Store driver: the default for tests and the
// "memory" DB_DRIVER in development.  Transactions work on a deep copy of the
// ledgers and swap it in on Commit, so a rolled-back transaction leaves no
// trace.
type MemoryStore struct {
	mu         sync.RWMutex
	collateral map[uuid.UUID]map[string]decimal.Decimal
	debt       map[uuid.UUID]decimal.Decimal
	tokens     map[uuid.UUID]decimal.Decimal
	feeds      map[string]domain.PriceReading
	entries    []*domain.LedgerEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collateral: make(map[uuid.UUID]map[string]decimal.Decimal),
		debt:       make(map[uuid.UUID]decimal.Decimal),
		tokens:     make(map[uuid.UUID]decimal.Decimal),
		feeds:      make(map[string]domain.PriceReading),
	}
}

// Close is a no-op for the in-memory driver.
func (s *MemoryStore) Close() error { return nil }

// Begin snapshots the ledgers into a transaction-local copy.
func (s *MemoryStore) Begin(_ context.Context) (Tx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx := &memTx{
		store:      s,
		collateral: make(map[uuid.UUID]map[string]decimal.Decimal, len(s.collateral)),
		debt:       make(map[uuid.UUID]decimal.Decimal, len(s.debt)),
		tokens:     make(map[uuid.UUID]decimal.Decimal, len(s.tokens)),
	}
	for acct, balances := range s.collateral {
		cp := make(map[string]decimal.Decimal, len(balances))
		for asset, amount := range balances {
			cp[asset] = amount
		}
		tx.collateral[acct] = cp
	}
	for acct, amount := range s.debt {
		tx.debt[acct] = amount
	}
	for acct, amount := range s.tokens {
		tx.tokens[acct] = amount
	}
	return tx, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Committed-state reads
// ──────────────────────────────────────────────────────────────────────────────

func (s *MemoryStore) CollateralBalance(_ context.Context, accountID uuid.UUID, asset string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collateral[accountID][asset], nil
}

func (s *MemoryStore) CollateralBalances(_ context.Context, accountID uuid.UUID) ([]AssetAmount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedBalances(s.collateral[accountID]), nil
}

func (s *MemoryStore) DebtOf(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debt[accountID], nil
}

func (s *MemoryStore) Debtors(_ context.Context) ([]Debtor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Debtor, 0, len(s.debt))
	for acct, amount := range s.debt {
		if amount.IsPositive() {
			out = append(out, Debtor{AccountID: acct, Debt: amount})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Debt.GreaterThan(out[j].Debt)
	})
	return out, nil
}

func (s *MemoryStore) TokenBalance(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[accountID], nil
}

func (s *MemoryStore) TotalSupply(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, amount := range s.tokens {
		total = total.Add(amount)
	}
	return total, nil
}

func (s *MemoryStore) TotalCollateral(_ context.Context) ([]AssetAmount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]decimal.Decimal)
	for _, balances := range s.collateral {
		for asset, amount := range balances {
			totals[asset] = totals[asset].Add(amount)
		}
	}
	return sortedBalances(totals), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Price feed readings
// ──────────────────────────────────────────────────────────────────────────────

func (s *MemoryStore) LatestReading(_ context.Context, feedID string) (domain.PriceReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.feeds[feedID]
	if !ok {
		return domain.PriceReading{}, domain.ErrFeedNotFound
	}
	return r, nil
}

func (s *MemoryStore) UpsertReading(_ context.Context, reading domain.PriceReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[reading.FeedID] = reading
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Audit
// ──────────────────────────────────────────────────────────────────────────────

func (s *MemoryStore) LedgerEntries(_ context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.LedgerEntry
	// Newest first, as the SQL driver orders them.
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].AccountID == accountID {
			matched = append(matched, s.entries[i])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func sortedBalances(balances map[string]decimal.Decimal) []AssetAmount {
	out := make([]AssetAmount, 0, len(balances))
	for asset, amount := range balances {
		if amount.IsPositive() {
			out = append(out, AssetAmount{Asset: asset, Amount: amount})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────────────────────────────────

type memTx struct {
	store      *MemoryStore
	collateral map[uuid.UUID]map[string]decimal.Decimal
	debt       map[uuid.UUID]decimal.Decimal
	tokens     map[uuid.UUID]decimal.Decimal
	entries    []*domain.LedgerEntry
	done       bool
}

// Commit swaps the transaction-local ledgers into the store.
func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.collateral = t.collateral
	t.store.debt = t.debt
	t.store.tokens = t.tokens
	t.store.entries = append(t.store.entries, t.entries...)
	return nil
}

// Rollback discards the transaction-local copy.
func (t *memTx) Rollback() error {
	t.done = true
	return nil
}

func (t *memTx) CreditCollateral(_ context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal) error {
	balances, ok := t.collateral[accountID]
	if !ok {
		balances = make(map[string]decimal.Decimal)
		t.collateral[accountID] = balances
	}
	balances[asset] = balances[asset].Add(amount)
	return nil
}

func (t *memTx) DebitCollateral(_ context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal) error {
	balances := t.collateral[accountID]
	if balances == nil || balances[asset].LessThan(amount) {
		return domain.ErrInsufficientCollateral
	}
	balances[asset] = balances[asset].Sub(amount)
	return nil
}

func (t *memTx) CollateralBalances(_ context.Context, accountID uuid.UUID) ([]AssetAmount, error) {
	return sortedBalances(t.collateral[accountID]), nil
}

func (t *memTx) CreditDebt(_ context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	t.debt[accountID] = t.debt[accountID].Add(amount)
	return nil
}

func (t *memTx) DebitDebt(_ context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	if t.debt[accountID].LessThan(amount) {
		return domain.ErrInsufficientDebt
	}
	t.debt[accountID] = t.debt[accountID].Sub(amount)
	return nil
}

func (t *memTx) DebtOf(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return t.debt[accountID], nil
}

func (t *memTx) MintTokens(_ context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	t.tokens[accountID] = t.tokens[accountID].Add(amount)
	return nil
}

func (t *memTx) BurnTokens(_ context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	if t.tokens[accountID].LessThan(amount) {
		return domain.ErrTransferFailed
	}
	t.tokens[accountID] = t.tokens[accountID].Sub(amount)
	return nil
}

func (t *memTx) TransferTokens(_ context.Context, from, to uuid.UUID, amount decimal.Decimal) error {
	if t.tokens[from].LessThan(amount) {
		return domain.ErrTransferFailed
	}
	t.tokens[from] = t.tokens[from].Sub(amount)
	t.tokens[to] = t.tokens[to].Add(amount)
	return nil
}

func (t *memTx) TokenBalance(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return t.tokens[accountID], nil
}

func (t *memTx) AppendEntry(_ context.Context, entry *domain.LedgerEntry) error {
	t.entries = append(t.entries, entry)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────────────────────────────────

// MemoryAccountStore is the in-memory AccountStore for the "memory" driver.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
}

// NewMemoryAccountStore creates an empty in-memory account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (s *MemoryAccountStore) Create(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return domain.ErrEmailTaken
		}
		if strings.EqualFold(existing.Username, a.Username) {
			return domain.ErrUsernameTaken
		}
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *MemoryAccountStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAccountStore) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *MemoryAccountStore) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *MemoryAccountStore) List(_ context.Context, limit, offset int) ([]*domain.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *MemoryAccountStore) UpdateRole(_ context.Context, id uuid.UUID, role domain.AccountRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.Role = role
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryAccountStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.IsActive = active
	a.UpdatedAt = time.Now()
	return nil
}
