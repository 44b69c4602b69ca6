// Package model defines the core domain types shared across the trade engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/instrument"
)

// TraderStatus is the lifecycle state of a trader account. The engine only
// reads it: status transitions belong to the registration/admin collaborator.
type TraderStatus string

const (
	TraderPending  TraderStatus = "PENDING"
	TraderActive   TraderStatus = "ACTIVE"
	TraderDisabled TraderStatus = "DISABLED"
)

// TradeStatus is the lifecycle state of a trade. The only legal transition
// is OPEN → CLOSED, exactly once.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// Direction of a trade.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the mirrored direction for an OTC counterleg.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Venue distinguishes central-market trades from bilateral ones.
type Venue string

const (
	VenueExchange Venue = "EXCHANGE"
	VenueOTC      Venue = "OTC"
)

// Trader is a simulation participant. StartingCapital is fixed at creation
// and immutable thereafter; equity is always derived from the ledger.
type Trader struct {
	Handle          string          `json:"handle"`
	DisplayName     string          `json:"display_name"`
	Status          TraderStatus    `json:"status"`
	StartingCapital decimal.Decimal `json:"starting_capital"`
	TeamID          string          `json:"team_id,omitempty"`
	OTCAvailable    bool            `json:"otc_available"`
}

// Trade is the central ledger record. Immutable once written, except for the
// single OPEN→CLOSED transition which sets ClosePrice, RealizedPnL, and
// ClosedAt exactly once.
type Trade struct {
	ID         string          `json:"id" db:"id"`
	Trader     string          `json:"trader" db:"trader_handle"`
	Type       instrument.Type `json:"type" db:"instrument_type"`
	Direction  Direction       `json:"direction" db:"direction"`
	Hub        string          `json:"hub" db:"hub"`
	Volume     decimal.Decimal `json:"volume" db:"volume"`
	EntryPrice decimal.Decimal `json:"entry_price" db:"entry_price"`

	// RefPrice is the reference price snapshot taken at submission, used
	// for sanity bounds and as the mark-to-market fallback.
	RefPrice decimal.Decimal `json:"ref_price" db:"ref_price"`

	Status      TradeStatus     `json:"status" db:"status"`
	ClosePrice  decimal.Decimal `json:"close_price" db:"close_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	Notes       string          `json:"notes,omitempty" db:"notes"`
	Venue       Venue           `json:"venue" db:"venue"`

	// MirrorID links the two legs of an OTC pair; empty for exchange trades.
	MirrorID     string `json:"mirror_id,omitempty" db:"mirror_id"`
	Counterparty string `json:"counterparty,omitempty" db:"counterparty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ClosedAt  time.Time `json:"closed_at,omitempty" db:"closed_at"`
}

// LeaderboardEntry is a derived, non-persisted per-trader performance view,
// recomputed fully from the ledger snapshot on every request.
type LeaderboardEntry struct {
	Trader          string          `json:"trader"`
	DisplayName     string          `json:"display_name"`
	StartingCapital decimal.Decimal `json:"starting_capital"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	Equity          decimal.Decimal `json:"equity"`
	ReturnPct       decimal.Decimal `json:"return_pct"`
	WinRate         decimal.Decimal `json:"win_rate"`
	ProfitFactor    decimal.Decimal `json:"profit_factor"`
	TradeCount      int             `json:"trade_count"`
	Wins            int             `json:"wins"`
	Losses          int             `json:"losses"`
	Rank            int             `json:"rank"`
}

// FeedEntry is one line of the public trade feed.
type FeedEntry struct {
	ID        int64     `json:"id"`
	Trader    string    `json:"trader"`
	Action    string    `json:"action"` // "TRADE" or "OTC_TRADE"
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a point-in-time record of a trader's performance, used for
// historical equity curves.
type Snapshot struct {
	Trader        string          `json:"trader"`
	Date          string          `json:"date"` // YYYY-MM-DD
	Equity        decimal.Decimal `json:"equity"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TradeCount    int             `json:"trade_count"`
	CreatedAt     time.Time       `json:"created_at"`
}
