package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
)

func TestMemoryStore_CommitAppliesAllChanges(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	acct := uuid.New()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.CreditCollateral(ctx, acct, "WETH", decimal.NewFromInt(2)); err != nil {
		t.Fatalf("CreditCollateral: %v", err)
	}
	if err := tx.CreditDebt(ctx, acct, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("CreditDebt: %v", err)
	}
	if err := tx.MintTokens(ctx, acct, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("MintTokens: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	bal, _ := store.CollateralBalance(ctx, acct, "WETH")
	if !bal.Equal(decimal.NewFromInt(2)) {
		t.Errorf("collateral = %s, want 2", bal)
	}
	debt, _ := store.DebtOf(ctx, acct)
	if !debt.Equal(decimal.NewFromInt(100)) {
		t.Errorf("debt = %s, want 100", debt)
	}
	supply, _ := store.TotalSupply(ctx)
	if !supply.Equal(decimal.NewFromInt(100)) {
		t.Errorf("supply = %s, want 100", supply)
	}
}

func TestMemoryStore_RollbackLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	acct := uuid.New()

	seed, _ := store.Begin(ctx)
	seed.CreditCollateral(ctx, acct, "WETH", decimal.NewFromInt(5))
	if err := seed.Commit(); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	tx, _ := store.Begin(ctx)
	tx.CreditCollateral(ctx, acct, "WETH", decimal.NewFromInt(50))
	tx.CreditDebt(ctx, acct, decimal.NewFromInt(1000))
	tx.AppendEntry(ctx, &domain.LedgerEntry{
		ID: uuid.New(), AccountID: acct, Type: domain.EntryDeposit,
		Asset: "WETH", Amount: decimal.NewFromInt(50), CreatedAt: time.Now(),
	})
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	bal, _ := store.CollateralBalance(ctx, acct, "WETH")
	if !bal.Equal(decimal.NewFromInt(5)) {
		t.Errorf("collateral after rollback = %s, want 5", bal)
	}
	debt, _ := store.DebtOf(ctx, acct)
	if !debt.IsZero() {
		t.Errorf("debt after rollback = %s, want 0", debt)
	}
	entries, _ := store.LedgerEntries(ctx, acct, 10, 0)
	if len(entries) != 0 {
		t.Errorf("ledger entries after rollback = %d, want 0", len(entries))
	}
}

func TestMemoryStore_DebitSentinels(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	acct := uuid.New()

	tx, _ := store.Begin(ctx)
	defer tx.Rollback()

	if err := tx.DebitCollateral(ctx, acct, "WETH", decimal.NewFromInt(1)); !errors.Is(err, domain.ErrInsufficientCollateral) {
		t.Errorf("DebitCollateral err = %v, want ErrInsufficientCollateral", err)
	}
	if err := tx.DebitDebt(ctx, acct, decimal.NewFromInt(1)); !errors.Is(err, domain.ErrInsufficientDebt) {
		t.Errorf("DebitDebt err = %v, want ErrInsufficientDebt", err)
	}
	if err := tx.BurnTokens(ctx, acct, decimal.NewFromInt(1)); !errors.Is(err, domain.ErrTransferFailed) {
		t.Errorf("BurnTokens err = %v, want ErrTransferFailed", err)
	}
	if err := tx.TransferTokens(ctx, acct, uuid.New(), decimal.NewFromInt(1)); !errors.Is(err, domain.ErrTransferFailed) {
		t.Errorf("TransferTokens err = %v, want ErrTransferFailed", err)
	}
}

func TestMemoryStore_TransferTokensMovesBalance(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	from, to := uuid.New(), uuid.New()

	tx, _ := store.Begin(ctx)
	tx.MintTokens(ctx, from, decimal.NewFromInt(100))
	if err := tx.TransferTokens(ctx, from, to, decimal.NewFromInt(40)); err != nil {
		t.Fatalf("TransferTokens: %v", err)
	}
	tx.Commit()

	fromBal, _ := store.TokenBalance(ctx, from)
	toBal, _ := store.TokenBalance(ctx, to)
	if !fromBal.Equal(decimal.NewFromInt(60)) || !toBal.Equal(decimal.NewFromInt(40)) {
		t.Errorf("balances = %s/%s, want 60/40", fromBal, toBal)
	}
	// Transfers never change supply.
	supply, _ := store.TotalSupply(ctx)
	if !supply.Equal(decimal.NewFromInt(100)) {
		t.Errorf("supply = %s, want 100", supply)
	}
}

func TestMemoryStore_Readings(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	if _, err := store.LatestReading(ctx, "ETH-USD"); !errors.Is(err, domain.ErrFeedNotFound) {
		t.Errorf("LatestReading err = %v, want ErrFeedNotFound", err)
	}

	now := time.Now()
	reading := domain.PriceReading{FeedID: "ETH-USD", Price: decimal.NewFromInt(2000), UpdatedAt: now}
	if err := store.UpsertReading(ctx, reading); err != nil {
		t.Fatalf("UpsertReading: %v", err)
	}
	got, err := store.LatestReading(ctx, "ETH-USD")
	if err != nil {
		t.Fatalf("LatestReading: %v", err)
	}
	if !got.Price.Equal(reading.Price) || !got.UpdatedAt.Equal(now) {
		t.Errorf("reading = %+v, want %+v", got, reading)
	}
}

func TestMemoryStore_Debtors(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	a, b := uuid.New(), uuid.New()

	tx, _ := store.Begin(ctx)
	tx.CreditDebt(ctx, a, decimal.NewFromInt(50))
	tx.CreditDebt(ctx, b, decimal.NewFromInt(200))
	tx.Commit()

	debtors, err := store.Debtors(ctx)
	if err != nil {
		t.Fatalf("Debtors: %v", err)
	}
	if len(debtors) != 2 {
		t.Fatalf("len(debtors) = %d, want 2", len(debtors))
	}
	// Largest debt first.
	if debtors[0].AccountID != b {
		t.Errorf("debtors[0] = %s, want biggest debtor %s", debtors[0].AccountID, b)
	}
}

func TestMemoryAccountStore_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAccountStore()

	first := &domain.Account{
		ID: uuid.New(), Email: "a@example.com", Username: "alice",
		Role: domain.RoleHolder, IsActive: true, CreatedAt: time.Now(),
	}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dupEmail := &domain.Account{ID: uuid.New(), Email: "A@example.com", Username: "bob"}
	if err := store.Create(ctx, dupEmail); !errors.Is(err, domain.ErrEmailTaken) {
		t.Errorf("duplicate email err = %v, want ErrEmailTaken", err)
	}
	dupName := &domain.Account{ID: uuid.New(), Email: "b@example.com", Username: "ALICE"}
	if err := store.Create(ctx, dupName); !errors.Is(err, domain.ErrUsernameTaken) {
		t.Errorf("duplicate username err = %v, want ErrUsernameTaken", err)
	}
}
