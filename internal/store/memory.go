package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	traders  map[string]*model.Trader
	trades   map[string]*model.Trade
	feed     []model.FeedEntry
	feedSeq  int64
	snaps    []model.Snapshot
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		traders: make(map[string]*model.Trader),
		trades:  make(map[string]*model.Trade),
	}
}

// PutTrader inserts or replaces a trader. Account management is outside the
// engine; this exists so tests and dev mode can seed participants.
func (s *MemoryStore) PutTrader(t *model.Trader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.traders[t.Handle] = &cp
}

func (s *MemoryStore) GetTrader(_ context.Context, handle string) (*model.Trader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.traders[handle]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListActiveTraders(_ context.Context) ([]model.Trader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Trader
	for _, t := range s.traders {
		if t.Status == model.TraderActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (s *MemoryStore) SetOTCAvailable(_ context.Context, handle string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.traders[handle]
	if !ok {
		return ErrNotFound
	}
	t.OTCAvailable = available
	return nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.trades[t.ID] = &cp
	return nil
}

func (s *MemoryStore) InsertTradePair(_ context.Context, a, b *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ca, cb := *a, *b
	s.trades[a.ID] = &ca
	s.trades[b.ID] = &cb
	return nil
}

func (s *MemoryStore) GetTrade(_ context.Context, id string) (*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTradesByTrader(_ context.Context, handle string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Trade
	for _, t := range s.trades {
		if t.Trader == handle {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CloseTrade(_ context.Context, id string, closePrice, realizedPnL decimal.Decimal, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != model.TradeOpen {
		return ErrAlreadyClosed
	}
	t.Status = model.TradeClosed
	t.ClosePrice = closePrice
	t.RealizedPnL = realizedPnL
	t.ClosedAt = closedAt
	return nil
}

func (s *MemoryStore) DeleteTrade(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trades[id]; !ok {
		return ErrNotFound
	}
	delete(s.trades, id)
	return nil
}

func (s *MemoryStore) InsertFeedEntry(_ context.Context, e *model.FeedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedSeq++
	cp := *e
	cp.ID = s.feedSeq
	s.feed = append(s.feed, cp)
	return nil
}

func (s *MemoryStore) ListFeed(_ context.Context, limit int) ([]model.FeedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.feed)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.FeedEntry, 0, n)
	for i := len(s.feed) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.feed[i])
	}
	return out, nil
}

func (s *MemoryStore) InsertSnapshot(_ context.Context, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snaps = append(s.snaps, *snap)
	return nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, handle string) ([]model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Snapshot
	for _, snap := range s.snaps {
		if snap.Trader == handle {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
