package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/domain"
)

// PostgresStore is the durable Store driver backed by PostgreSQL via sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open sqlx handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to PostgreSQL, applies pool settings, and pings the server.
func Open(dsn string, maxOpen, maxIdle int) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying handle for account storage sharing one pool.
func (s *PostgresStore) DB() *sqlx.DB { return s.db }

// Close closes the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Begin opens a ledger transaction.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Committed-state reads
// ──────────────────────────────────────────────────────────────────────────────

func (s *PostgresStore) CollateralBalance(ctx context.Context, accountID uuid.UUID, asset string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := s.db.GetContext(ctx, &amount,
		`SELECT amount FROM collateral_balances WHERE account_id = $1 AND asset = $2`,
		accountID, asset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("postgres.CollateralBalance: %w", err)
	}
	return amount, nil
}

func (s *PostgresStore) CollateralBalances(ctx context.Context, accountID uuid.UUID) ([]AssetAmount, error) {
	var rows []AssetAmount
	err := s.db.SelectContext(ctx, &rows, `
		SELECT asset, amount FROM collateral_balances
		WHERE account_id = $1 AND amount > 0
		ORDER BY asset`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres.CollateralBalances: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) DebtOf(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := s.db.GetContext(ctx, &amount,
		`SELECT amount FROM debt_balances WHERE account_id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("postgres.DebtOf: %w", err)
	}
	return amount, nil
}

func (s *PostgresStore) Debtors(ctx context.Context) ([]Debtor, error) {
	var rows []Debtor
	err := s.db.SelectContext(ctx, &rows, `
		SELECT account_id, amount AS debt FROM debt_balances
		WHERE amount > 0
		ORDER BY amount DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres.Debtors: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) TokenBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := s.db.GetContext(ctx, &amount,
		`SELECT amount FROM token_balances WHERE account_id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("postgres.TokenBalance: %w", err)
	}
	return amount, nil
}

func (s *PostgresStore) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(amount), 0) FROM token_balances`)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres.TotalSupply: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) TotalCollateral(ctx context.Context) ([]AssetAmount, error) {
	var rows []AssetAmount
	err := s.db.SelectContext(ctx, &rows, `
		SELECT asset, SUM(amount) AS amount FROM collateral_balances
		GROUP BY asset
		HAVING SUM(amount) > 0
		ORDER BY asset`)
	if err != nil {
		return nil, fmt.Errorf("postgres.TotalCollateral: %w", err)
	}
	return rows, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Price feed readings
// ──────────────────────────────────────────────────────────────────────────────

func (s *PostgresStore) LatestReading(ctx context.Context, feedID string) (domain.PriceReading, error) {
	var r domain.PriceReading
	err := s.db.GetContext(ctx, &r,
		`SELECT feed_id, price, updated_at FROM price_feeds WHERE feed_id = $1`, feedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PriceReading{}, domain.ErrFeedNotFound
		}
		return domain.PriceReading{}, fmt.Errorf("postgres.LatestReading: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) UpsertReading(ctx context.Context, reading domain.PriceReading) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_feeds (feed_id, price, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (feed_id) DO UPDATE
		SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at`,
		reading.FeedID, reading.Price, reading.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres.UpsertReading: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Audit
// ──────────────────────────────────────────────────────────────────────────────

func (s *PostgresStore) LedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT * FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres.LedgerEntries: %w", err)
	}
	return entries, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────────────────────────────────

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) Commit() error   { return t.tx.Commit() }
func (t *pgTx) Rollback() error { return t.tx.Rollback() }

func (t *pgTx) CreditCollateral(ctx context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO collateral_balances (account_id, asset, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, asset) DO UPDATE
		SET amount = collateral_balances.amount + EXCLUDED.amount`,
		accountID, asset, amount)
	if err != nil {
		return fmt.Errorf("postgres.CreditCollateral: %w", err)
	}
	return nil
}

// DebitCollateral locks the balance row, checks sufficiency, then subtracts.
func (t *pgTx) DebitCollateral(ctx context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal) error {
	var balance decimal.Decimal
	err := t.tx.GetContext(ctx, &balance,
		`SELECT amount FROM collateral_balances WHERE account_id = $1 AND asset = $2 FOR UPDATE`,
		accountID, asset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInsufficientCollateral
		}
		return fmt.Errorf("postgres.DebitCollateral lock: %w", err)
	}
	if balance.LessThan(amount) {
		return domain.ErrInsufficientCollateral
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE collateral_balances SET amount = amount - $1 WHERE account_id = $2 AND asset = $3`,
		amount, accountID, asset)
	if err != nil {
		return fmt.Errorf("postgres.DebitCollateral update: %w", err)
	}
	return nil
}

func (t *pgTx) CollateralBalances(ctx context.Context, accountID uuid.UUID) ([]AssetAmount, error) {
	var rows []AssetAmount
	err := t.tx.SelectContext(ctx, &rows, `
		SELECT asset, amount FROM collateral_balances
		WHERE account_id = $1 AND amount > 0
		ORDER BY asset`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres.tx.CollateralBalances: %w", err)
	}
	return rows, nil
}

func (t *pgTx) CreditDebt(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO debt_balances (account_id, amount)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE
		SET amount = debt_balances.amount + EXCLUDED.amount`,
		accountID, amount)
	if err != nil {
		return fmt.Errorf("postgres.CreditDebt: %w", err)
	}
	return nil
}

func (t *pgTx) DebitDebt(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	var owed decimal.Decimal
	err := t.tx.GetContext(ctx, &owed,
		`SELECT amount FROM debt_balances WHERE account_id = $1 FOR UPDATE`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInsufficientDebt
		}
		return fmt.Errorf("postgres.DebitDebt lock: %w", err)
	}
	if owed.LessThan(amount) {
		return domain.ErrInsufficientDebt
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE debt_balances SET amount = amount - $1 WHERE account_id = $2`,
		amount, accountID)
	if err != nil {
		return fmt.Errorf("postgres.DebitDebt update: %w", err)
	}
	return nil
}

func (t *pgTx) DebtOf(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := t.tx.GetContext(ctx, &amount,
		`SELECT amount FROM debt_balances WHERE account_id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("postgres.tx.DebtOf: %w", err)
	}
	return amount, nil
}

func (t *pgTx) MintTokens(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO token_balances (account_id, amount)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE
		SET amount = token_balances.amount + EXCLUDED.amount`,
		accountID, amount)
	if err != nil {
		return fmt.Errorf("postgres.MintTokens: %w", err)
	}
	return nil
}

func (t *pgTx) BurnTokens(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	var balance decimal.Decimal
	err := t.tx.GetContext(ctx, &balance,
		`SELECT amount FROM token_balances WHERE account_id = $1 FOR UPDATE`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTransferFailed
		}
		return fmt.Errorf("postgres.BurnTokens lock: %w", err)
	}
	if balance.LessThan(amount) {
		return domain.ErrTransferFailed
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE token_balances SET amount = amount - $1 WHERE account_id = $2`,
		amount, accountID)
	if err != nil {
		return fmt.Errorf("postgres.BurnTokens update: %w", err)
	}
	return nil
}

func (t *pgTx) TransferTokens(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal) error {
	var balance decimal.Decimal
	err := t.tx.GetContext(ctx, &balance,
		`SELECT amount FROM token_balances WHERE account_id = $1 FOR UPDATE`, from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTransferFailed
		}
		return fmt.Errorf("postgres.TransferTokens lock: %w", err)
	}
	if balance.LessThan(amount) {
		return domain.ErrTransferFailed
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE token_balances SET amount = amount - $1 WHERE account_id = $2`,
		amount, from)
	if err != nil {
		return fmt.Errorf("postgres.TransferTokens debit: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO token_balances (account_id, amount)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE
		SET amount = token_balances.amount + EXCLUDED.amount`,
		to, amount)
	if err != nil {
		return fmt.Errorf("postgres.TransferTokens credit: %w", err)
	}
	return nil
}

func (t *pgTx) TokenBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := t.tx.GetContext(ctx, &amount,
		`SELECT amount FROM token_balances WHERE account_id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("postgres.tx.TokenBalance: %w", err)
	}
	return amount, nil
}

func (t *pgTx) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, account_id, type, asset, amount, ref_id, created_at)
		VALUES (:id, :account_id, :type, :asset, :amount, :ref_id, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("postgres.AppendEntry: %w", err)
	}
	return nil
}
