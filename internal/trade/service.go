package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/apperr"
	"github.com/energydesk/trade-engine/internal/metrics"
	"github.com/energydesk/trade-engine/internal/model"
	"github.com/energydesk/trade-engine/internal/risk"
	"github.com/energydesk/trade-engine/internal/store"
)

// deleteWindow is how long after creation an open trade may still be deleted.
const deleteWindow = time.Hour

// closeBand is the maximum relative deviation of a close price from the
// reference price, for non-OTC trades (abuse guard; OTC legs close on
// bilateral agreement instead).
var closeBand = decimal.NewFromFloat(0.05)

// Service owns the trade ledger: admission, the OPEN→CLOSED lifecycle,
// deletion, OTC mirroring, and the leaderboard. Per-trader mutexes make the
// read-exposure-then-write sequence atomic per trader; different traders
// proceed in parallel. OTC operations lock both traders in handle order to
// avoid deadlock.
type Service struct {
	store store.Store
	gate  *risk.Gate
	sink  Sink // optional; nil disables event publishing

	locks sync.Map // trader handle → *sync.Mutex

	// now is the clock, overridable in tests for the deletion window and
	// duplicate suppression.
	now func() time.Time
}

// NewService creates a trade service. Pass nil for sink if event publishing
// is not needed.
func NewService(st store.Store, sink Sink) *Service {
	return &Service{
		store: st,
		gate:  risk.NewGate(),
		sink:  sink,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// lockTrader serializes operations for one trader. Returns the unlock func.
func (s *Service) lockTrader(handle string) func() {
	v, _ := s.locks.LoadOrStore(handle, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// lockPair serializes operations spanning two traders, acquiring in
// lexicographic handle order regardless of who initiated.
func (s *Service) lockPair(a, b string) func() {
	if a == b {
		return s.lockTrader(a)
	}
	if a > b {
		a, b = b, a
	}
	unlockA := s.lockTrader(a)
	unlockB := s.lockTrader(b)
	return func() {
		unlockB()
		unlockA()
	}
}

func (s *Service) publish(ev Event) {
	if s.sink != nil {
		s.sink.Publish(ev)
	}
}

// Submit runs a trade request through the risk gate and, on admission,
// persists it and emits TradeOpened. The per-trader lock covers the whole
// read-exposure → write sequence.
func (s *Service) Submit(ctx context.Context, handle string, req risk.TradeRequest) (*model.Trade, error) {
	start := time.Now()
	defer func() {
		metrics.AdmitLatency.Observe(time.Since(start).Seconds())
	}()

	unlock := s.lockTrader(handle)
	defer unlock()

	trader, err := s.store.GetTrader(ctx, handle)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("trader %s not found", handle)
	}
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListTradesByTrader(ctx, handle)
	if err != nil {
		return nil, err
	}

	t, err := s.gate.Admit(trader, req, history, s.now())
	if err != nil {
		metrics.RiskRejections.WithLabelValues(risk.CheckName(err)).Inc()
		return nil, err
	}

	t.ID = uuid.New().String()
	if err := s.store.InsertTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("persist trade: %w", err)
	}

	metrics.TradesOpened.WithLabelValues(string(t.Venue)).Inc()
	slog.Info("trade opened",
		"trade_id", t.ID,
		"trader", handle,
		"type", t.Type,
		"direction", t.Direction,
		"hub", t.Hub,
		"volume", t.Volume.String(),
		"entry_price", t.EntryPrice.String(),
	)

	s.publish(Event{
		Type:       EventTradeOpened,
		Trader:     handle,
		TradeID:    t.ID,
		Instrument: string(t.Type),
		Direction:  string(t.Direction),
		Hub:        t.Hub,
		Volume:     t.Volume.String(),
	})
	s.publish(Event{Type: EventLeaderboardInvalidated, Reason: "trade_opened"})
	s.recordFeed(ctx, trader, t, "TRADE")

	return t, nil
}

// Close performs the OPEN→CLOSED transition for an exchange trade, or
// delegates to ClosePair for an OTC leg. refPrice is the reference at close
// time for the deviation guard; zero falls back to the trade's stored
// reference.
func (s *Service) Close(ctx context.Context, handle, tradeID string, closePrice, refPrice decimal.Decimal) (*model.Trade, error) {
	t, err := s.ownedTrade(ctx, handle, tradeID)
	if err != nil {
		return nil, err
	}
	if t.Venue == model.VenueOTC {
		closed, _, err := s.ClosePair(ctx, handle, tradeID, closePrice)
		return closed, err
	}

	unlock := s.lockTrader(handle)
	defer unlock()

	// Re-read under the lock: status may have changed.
	t, err = s.ownedTrade(ctx, handle, tradeID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TradeOpen {
		return nil, apperr.Conflictf("trade %s is already closed", tradeID)
	}

	ref := refPrice
	if ref.IsZero() {
		ref = t.RefPrice
	}
	if ref.IsPositive() {
		deviation := closePrice.Sub(ref).Abs().Div(ref)
		if deviation.GreaterThan(closeBand) {
			return nil, apperr.Policyf("close price $%s deviates too far from market $%s",
				closePrice.StringFixed(4), ref.StringFixed(4))
		}
	}

	return s.settle(ctx, t, closePrice, s.now())
}

// settle computes realized P&L and applies the guarded transition. The
// caller holds the owner's lock.
func (s *Service) settle(ctx context.Context, t *model.Trade, closePrice decimal.Decimal, closedAt time.Time) (*model.Trade, error) {
	pnl := realizedPnL(t, closePrice)

	err := s.store.CloseTrade(ctx, t.ID, closePrice, pnl, closedAt)
	if errors.Is(err, store.ErrAlreadyClosed) {
		return nil, apperr.Conflictf("trade %s is already closed", t.ID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("trade %s not found", t.ID)
	}
	if err != nil {
		return nil, err
	}

	t.Status = model.TradeClosed
	t.ClosePrice = closePrice
	t.RealizedPnL = pnl
	t.ClosedAt = closedAt

	metrics.TradesClosed.WithLabelValues(string(t.Venue)).Inc()
	slog.Info("trade closed",
		"trade_id", t.ID,
		"trader", t.Trader,
		"close_price", closePrice.String(),
		"realized_pnl", pnl.String(),
	)
	s.publish(Event{Type: EventTradeClosed, Trader: t.Trader, TradeID: t.ID})
	s.publish(Event{Type: EventLeaderboardInvalidated, Reason: "trade_closed"})

	return t, nil
}

// Delete removes an open trade within the grace window. Closed trades are
// never deletable; neither is anything older than an hour.
func (s *Service) Delete(ctx context.Context, handle, tradeID string) error {
	unlock := s.lockTrader(handle)
	defer unlock()

	t, err := s.ownedTrade(ctx, handle, tradeID)
	if err != nil {
		return err
	}
	if t.Status != model.TradeOpen {
		return apperr.Conflictf("closed trades cannot be deleted")
	}
	if s.now().Sub(t.CreatedAt) > deleteWindow {
		return apperr.Conflictf("trade can only be deleted within %s of placement", deleteWindow)
	}

	if err := s.store.DeleteTrade(ctx, tradeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundf("trade %s not found", tradeID)
		}
		return err
	}

	slog.Info("trade deleted", "trade_id", tradeID, "trader", handle)
	s.publish(Event{Type: EventLeaderboardInvalidated, Reason: "trade_deleted"})
	return nil
}

// History returns the trader's trades, newest first.
func (s *Service) History(ctx context.Context, handle string) ([]model.Trade, error) {
	if _, err := s.store.GetTrader(ctx, handle); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFoundf("trader %s not found", handle)
		}
		return nil, err
	}
	return s.store.ListTradesByTrader(ctx, handle)
}

// ownedTrade fetches a trade and verifies ownership.
func (s *Service) ownedTrade(ctx context.Context, handle, tradeID string) (*model.Trade, error) {
	t, err := s.store.GetTrade(ctx, tradeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("trade %s not found", tradeID)
	}
	if err != nil {
		return nil, err
	}
	if t.Trader != handle {
		return nil, apperr.NotFoundf("trade %s not found", tradeID)
	}
	return t, nil
}

// realizedPnL applies the settlement convention for the trade's instrument.
// Both conventions share the sign rule — BUY gains when the level (or
// differential) rises, SELL when it falls; basis swaps differ only in what
// the price means, which matters for validation, not for this arithmetic.
func realizedPnL(t *model.Trade, closePrice decimal.Decimal) decimal.Decimal {
	change := closePrice.Sub(t.EntryPrice)
	pnl := change.Mul(t.Volume)
	if t.Direction == model.Sell {
		pnl = pnl.Neg()
	}
	return pnl
}

// markPnL values an open trade against a current price, falling back to the
// stored reference, then the entry price. Used by the leaderboard.
func markPnL(t *model.Trade, prices map[string]decimal.Decimal) decimal.Decimal {
	current, ok := prices[t.Hub]
	if !ok || current.IsZero() {
		current = t.RefPrice
	}
	if current.IsZero() {
		current = t.EntryPrice
	}
	return realizedPnL(t, current)
}

// recordFeed appends a human-readable feed line and broadcasts it.
// Feed failures are logged, never surfaced: the trade already happened.
func (s *Service) recordFeed(ctx context.Context, trader *model.Trader, t *model.Trade, action string) {
	summary := fmt.Sprintf("%s %s %s %s @ $%s",
		trader.DisplayName, t.Direction, t.Volume.StringFixed(0), t.Hub,
		t.EntryPrice.StringFixed(4))
	if action == "OTC_TRADE" && t.Counterparty != "" {
		summary = fmt.Sprintf("%s %s %s %s OTC w/ %s @ $%s",
			trader.DisplayName, t.Direction, t.Volume.StringFixed(0), t.Hub,
			t.Counterparty, t.EntryPrice.StringFixed(4))
	}

	entry := &model.FeedEntry{
		Trader:    trader.Handle,
		Action:    action,
		Summary:   summary,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertFeedEntry(ctx, entry); err != nil {
		slog.Warn("feed insert failed", "trader", trader.Handle, "err", err)
		return
	}
	s.publish(Event{Type: EventTradeFeed, Trader: trader.Handle, Summary: summary})
}

// Feed returns the most recent feed entries.
func (s *Service) Feed(ctx context.Context, limit int) ([]model.FeedEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListFeed(ctx, limit)
}

// SetOTCAvailable flips the trader's bilateral opt-in.
func (s *Service) SetOTCAvailable(ctx context.Context, handle string, available bool) error {
	err := s.store.SetOTCAvailable(ctx, handle, available)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFoundf("trader %s not found", handle)
	}
	return err
}

// Trader returns the trader row.
func (s *Service) Trader(ctx context.Context, handle string) (*model.Trader, error) {
	t, err := s.store.GetTrader(ctx, handle)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("trader %s not found", handle)
	}
	return t, err
}
