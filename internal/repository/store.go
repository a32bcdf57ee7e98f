// Package repository provides storage for the ledgers, price feeds, and
// accounts behind the issuance engine.  Two drivers exist: PostgreSQL for
// durable deployments and an in-memory store for development and tests.
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/domain"
)

// AssetAmount is one (asset, amount) aggregate row.
type AssetAmount struct {
	Asset  string          `db:"asset"  json:"asset"`
	Amount decimal.Decimal `db:"amount" json:"amount"`
}

// Debtor is one account carrying non-zero debt, as listed by the risk sweep.
type Debtor struct {
	AccountID uuid.UUID       `db:"account_id" json:"account_id"`
	Debt      decimal.Decimal `db:"debt"       json:"debt"`
}

// Store is the ledger storage contract.  Reads outside a transaction see the
// last committed state; every mutating engine operation runs inside a single
// Tx so partial effects are never visible.
type Store interface {
	// Begin opens a transaction covering all ledgers.
	Begin(ctx context.Context) (Tx, error)

	// ── Committed-state reads ────────────────────────────────────────────────
	CollateralBalance(ctx context.Context, accountID uuid.UUID, asset string) (decimal.Decimal, error)
	CollateralBalances(ctx context.Context, accountID uuid.UUID) ([]AssetAmount, error)
	DebtOf(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	Debtors(ctx context.Context) ([]Debtor, error)
	TokenBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	TotalSupply(ctx context.Context) (decimal.Decimal, error)
	TotalCollateral(ctx context.Context) ([]AssetAmount, error)

	// ── Price feed readings ──────────────────────────────────────────────────
	LatestReading(ctx context.Context, feedID string) (domain.PriceReading, error)
	UpsertReading(ctx context.Context, reading domain.PriceReading) error

	// ── Audit ────────────────────────────────────────────────────────────────
	LedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error)

	// Close releases the underlying resources.
	Close() error
}

// Tx is one atomic unit of ledger work.  Either Commit applies every change
// or Rollback discards them all; a Tx must not be used after either call.
//
// Debits fail with the matching insufficient-balance sentinel and leave the
// transaction usable for rollback only.
type Tx interface {
	// ── Collateral ledger ────────────────────────────────────────────────────
	CreditCollateral(ctx context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal) error
	// DebitCollateral fails with domain.ErrInsufficientCollateral when the
	// account holds less than amount of the asset.
	DebitCollateral(ctx context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal) error
	CollateralBalances(ctx context.Context, accountID uuid.UUID) ([]AssetAmount, error)

	// ── Debt ledger ──────────────────────────────────────────────────────────
	CreditDebt(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	// DebitDebt fails with domain.ErrInsufficientDebt when the account owes
	// less than amount.
	DebitDebt(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	DebtOf(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)

	// ── Token ledger ─────────────────────────────────────────────────────────
	// MintTokens creates amount new units in accountID's balance and grows
	// total supply.
	MintTokens(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	// BurnTokens destroys amount units from accountID's balance and shrinks
	// total supply; fails with domain.ErrTransferFailed when the balance is
	// short.
	BurnTokens(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	// TransferTokens moves issued units between accounts; fails with
	// domain.ErrTransferFailed when the sender's balance is short.
	TransferTokens(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal) error
	TokenBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)

	// ── Audit ────────────────────────────────────────────────────────────────
	AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error

	Commit() error
	Rollback() error
}

// AccountStore handles registered account persistence.
type AccountStore interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Account, int, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role domain.AccountRole) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
