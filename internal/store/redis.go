package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot reads: trader rows and per-trader trade histories (both
// hit on every admission and every leaderboard request). Writes go to the
// primary and invalidate the affected keys.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetTrader(ctx context.Context, handle string) (*model.Trader, error) {
	data, err := s.rdb.Get(ctx, traderKey(handle)).Bytes()
	if err == nil {
		var t model.Trader
		if json.Unmarshal(data, &t) == nil {
			return &t, nil
		}
	}

	t, err := s.primary.GetTrader(ctx, handle)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(t); err == nil {
		s.rdb.Set(ctx, traderKey(handle), data, s.ttl)
	}
	return t, nil
}

func (s *CachedStore) ListTradesByTrader(ctx context.Context, handle string) ([]model.Trade, error) {
	data, err := s.rdb.Get(ctx, historyKey(handle)).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	trades, err := s.primary.ListTradesByTrader(ctx, handle)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, historyKey(handle), data, s.ttl)
	}
	return trades, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SetOTCAvailable(ctx context.Context, handle string, available bool) error {
	if err := s.primary.SetOTCAvailable(ctx, handle, available); err != nil {
		return err
	}
	s.rdb.Del(ctx, traderKey(handle))
	return nil
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	if err := s.primary.InsertTrade(ctx, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, historyKey(t.Trader))
	return nil
}

func (s *CachedStore) InsertTradePair(ctx context.Context, a, b *model.Trade) error {
	if err := s.primary.InsertTradePair(ctx, a, b); err != nil {
		return err
	}
	s.rdb.Del(ctx, historyKey(a.Trader), historyKey(b.Trader))
	return nil
}

func (s *CachedStore) CloseTrade(ctx context.Context, id string, closePrice, realizedPnL decimal.Decimal, closedAt time.Time) error {
	trader := s.tradeOwner(ctx, id)
	if err := s.primary.CloseTrade(ctx, id, closePrice, realizedPnL, closedAt); err != nil {
		return err
	}
	if trader != "" {
		s.rdb.Del(ctx, historyKey(trader))
	}
	return nil
}

func (s *CachedStore) DeleteTrade(ctx context.Context, id string) error {
	trader := s.tradeOwner(ctx, id)
	if err := s.primary.DeleteTrade(ctx, id); err != nil {
		return err
	}
	if trader != "" {
		s.rdb.Del(ctx, historyKey(trader))
	}
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListActiveTraders(ctx context.Context) ([]model.Trader, error) {
	return s.primary.ListActiveTraders(ctx)
}

func (s *CachedStore) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	return s.primary.GetTrade(ctx, id)
}

func (s *CachedStore) InsertFeedEntry(ctx context.Context, e *model.FeedEntry) error {
	return s.primary.InsertFeedEntry(ctx, e)
}

func (s *CachedStore) ListFeed(ctx context.Context, limit int) ([]model.FeedEntry, error) {
	return s.primary.ListFeed(ctx, limit)
}

func (s *CachedStore) InsertSnapshot(ctx context.Context, snap *model.Snapshot) error {
	return s.primary.InsertSnapshot(ctx, snap)
}

func (s *CachedStore) ListSnapshots(ctx context.Context, handle string) ([]model.Snapshot, error) {
	return s.primary.ListSnapshots(ctx, handle)
}

// --- Cache helpers ---

// tradeOwner resolves the owning trader for invalidation; best effort, an
// unresolvable owner just means the history key expires by TTL instead.
func (s *CachedStore) tradeOwner(ctx context.Context, id string) string {
	t, err := s.primary.GetTrade(ctx, id)
	if err != nil {
		return ""
	}
	return t.Trader
}

func traderKey(handle string) string  { return fmt.Sprintf("trader:%s", handle) }
func historyKey(handle string) string { return fmt.Sprintf("trades:%s", handle) }
