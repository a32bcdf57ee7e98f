package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// MintAuthority
// ──────────────────────────────────────────────────────────────────────────────

// MintAuthority is the capability required to change sUSD supply.  The engine
// holds the only authority created at startup; mint and burn take it as an
// explicit argument so supply changes cannot happen from code that was never
// handed the capability.
type MintAuthority struct {
	id uuid.UUID
}

// NewMintAuthority creates a fresh authority.  Called once, at engine
// construction.
func NewMintAuthority() MintAuthority {
	return MintAuthority{id: uuid.New()}
}

// Valid reports whether the authority was issued by NewMintAuthority.
// The zero value is not valid.
func (m MintAuthority) Valid() bool {
	return m.id != uuid.Nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Ledger entries
// ──────────────────────────────────────────────────────────────────────────────

// EntryType enumerates ledger entry types for auditing.
type EntryType string

const (
	EntryDeposit     EntryType = "deposit"
	EntryRedeem      EntryType = "redeem"
	EntryMint        EntryType = "mint"
	EntryBurn        EntryType = "burn"
	EntryLiquidation EntryType = "liquidation"
	EntryFaucet      EntryType = "faucet" // dev-mode collateral grant
)

// LedgerEntry is an immutable audit record for every balance change the
// engine performs.
type LedgerEntry struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	AccountID uuid.UUID       `json:"account_id" db:"account_id"`
	Type      EntryType       `json:"type"       db:"type"`
	Asset     string          `json:"asset"      db:"asset"` // collateral symbol or sUSD
	Amount    decimal.Decimal `json:"amount"     db:"amount"`
	RefID     *uuid.UUID      `json:"ref_id"     db:"ref_id"` // counterparty account, if any
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
