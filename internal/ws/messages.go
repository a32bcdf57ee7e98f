// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypePriceTick      MsgType = "price_tick"
	MsgTypePositionUpdate MsgType = "position_update"
	MsgTypePositionAtRisk MsgType = "position_at_risk"
	MsgTypeLiquidation    MsgType = "liquidation"
	MsgTypeError          MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// PriceTickMessage — sent after every successful feed refresh.
// ──────────────────────────────────────────────────────────────────────────────

// PriceTickMessage carries one fresh oracle reading.
type PriceTickMessage struct {
	Type      MsgType         `json:"type"`
	FeedID    string          `json:"feed_id"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
	Timestamp time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// PositionUpdateMessage — broadcast after any vault operation commits.
// ──────────────────────────────────────────────────────────────────────────────

// PositionUpdateMessage carries the post-operation state of one position.
type PositionUpdateMessage struct {
	Type               MsgType         `json:"type"`
	AccountID          uuid.UUID       `json:"account_id"`
	CollateralValueUSD decimal.Decimal `json:"collateral_value_usd"`
	Debt               decimal.Decimal `json:"debt"`
	HealthFactor       decimal.Decimal `json:"health_factor"`
	Timestamp          time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// PositionAtRiskMessage — emitted by the risk sweep for positions near the
// liquidation threshold, so liquidator bots can act before HF drops below 1.
// ──────────────────────────────────────────────────────────────────────────────

// PositionAtRiskMessage flags a position whose health factor fell under the
// configured warning ratio.
type PositionAtRiskMessage struct {
	Type         MsgType         `json:"type"`
	AccountID    uuid.UUID       `json:"account_id"`
	Debt         decimal.Decimal `json:"debt"`
	HealthFactor decimal.Decimal `json:"health_factor"`
	Liquidatable bool            `json:"liquidatable"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// LiquidationMessage — broadcast when a liquidation settles.
// ──────────────────────────────────────────────────────────────────────────────

// LiquidationMessage tells clients which position was liquidated and at what
// terms.
type LiquidationMessage struct {
	Type             MsgType         `json:"type"`
	Liquidator       uuid.UUID       `json:"liquidator"`
	Target           uuid.UUID       `json:"target"`
	Asset            string          `json:"asset"`
	DebtCovered      decimal.Decimal `json:"debt_covered"`
	CollateralSeized decimal.Decimal `json:"collateral_seized"`
	HealthBefore     decimal.Decimal `json:"health_before"`
	HealthAfter      decimal.Decimal `json:"health_after"`
	Timestamp        time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage — sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
