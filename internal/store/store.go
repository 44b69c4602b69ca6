// Package store defines the persistence interface for the trade engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/model"
)

var (
	// ErrNotFound is returned when a trader or trade does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyClosed is returned by CloseTrade when the guarded
	// OPEN→CLOSED transition finds the trade already closed. This is how
	// a lost write-write race surfaces.
	ErrAlreadyClosed = errors.New("store: trade already closed")
)

// Store is the persistence interface. Each call runs in its own transaction;
// serialization of check-then-act sequences is the service's concern
// (per-trader locks), not the store's.
type Store interface {
	// --- Traders (read-mostly; accounts are created externally) ---

	// GetTrader retrieves a trader by handle.
	GetTrader(ctx context.Context, handle string) (*model.Trader, error)

	// ListActiveTraders returns ACTIVE traders in handle order. The order
	// is the leaderboard's deterministic tie-break.
	ListActiveTraders(ctx context.Context) ([]model.Trader, error)

	// SetOTCAvailable flips a trader's bilateral-trading opt-in.
	SetOTCAvailable(ctx context.Context, handle string, available bool) error

	// --- Trade ledger ---

	// InsertTrade appends one trade record.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// InsertTradePair atomically appends both legs of an OTC pair, with
	// both cross-references already set. Either both rows land or neither.
	InsertTradePair(ctx context.Context, a, b *model.Trade) error

	// GetTrade retrieves a trade by ID.
	GetTrade(ctx context.Context, id string) (*model.Trade, error)

	// ListTradesByTrader returns a trader's full history, newest first.
	ListTradesByTrader(ctx context.Context, handle string) ([]model.Trade, error)

	// CloseTrade performs the guarded OPEN→CLOSED transition, setting
	// close price, realized P&L, and close time exactly once. Returns
	// ErrAlreadyClosed if the trade is no longer open.
	CloseTrade(ctx context.Context, id string, closePrice, realizedPnL decimal.Decimal, closedAt time.Time) error

	// DeleteTrade removes a trade row. Window and status policy are
	// enforced by the service before calling.
	DeleteTrade(ctx context.Context, id string) error

	// --- Trade feed ---

	InsertFeedEntry(ctx context.Context, e *model.FeedEntry) error
	ListFeed(ctx context.Context, limit int) ([]model.FeedEntry, error)

	// --- Performance snapshots ---

	InsertSnapshot(ctx context.Context, s *model.Snapshot) error
	ListSnapshots(ctx context.Context, handle string) ([]model.Snapshot, error)
}
