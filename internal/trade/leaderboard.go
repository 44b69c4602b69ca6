package trade

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/metrics"
	"github.com/energydesk/trade-engine/internal/model"
)

// profitFactorCap stands in for "no losing trades yet": gross wins divided
// by zero gross losses would be infinite, which JSON cannot carry.
var profitFactorCap = decimal.NewFromInt(999)

// Leaderboard ranks every ACTIVE trader by return on starting capital.
// prices maps hub name to current mark; open trades without a mark fall
// back to their reference price, then entry price (flat).
func (s *Service) Leaderboard(ctx context.Context, prices map[string]decimal.Decimal) ([]model.LeaderboardEntry, error) {
	metrics.LeaderboardRequests.Inc()

	traders, err := s.store.ListActiveTraders(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, 0, len(traders))
	for _, tr := range traders {
		trades, err := s.store.ListTradesByTrader(ctx, tr.Handle)
		if err != nil {
			return nil, fmt.Errorf("history for %s: %w", tr.Handle, err)
		}
		entries = append(entries, s.scoreTrader(tr, trades, prices))
	}

	// Descending by return; ListActiveTraders is handle-ordered, so the
	// stable sort keeps ties deterministic.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ReturnPct.GreaterThan(entries[j].ReturnPct)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func (s *Service) scoreTrader(tr model.Trader, trades []model.Trade, prices map[string]decimal.Decimal) model.LeaderboardEntry {
	var (
		realized, unrealized   decimal.Decimal
		grossWins, grossLosses decimal.Decimal
		wins, losses           int
	)

	for i := range trades {
		t := &trades[i]
		switch t.Status {
		case model.TradeClosed:
			realized = realized.Add(t.RealizedPnL)
			if t.RealizedPnL.IsPositive() {
				wins++
				grossWins = grossWins.Add(t.RealizedPnL)
			} else if t.RealizedPnL.IsNegative() {
				losses++
				grossLosses = grossLosses.Add(t.RealizedPnL.Neg())
			}
		case model.TradeOpen:
			unrealized = unrealized.Add(markPnL(t, prices))
		}
	}

	equity := tr.StartingCapital.Add(realized).Add(unrealized)

	var returnPct decimal.Decimal
	if tr.StartingCapital.IsPositive() {
		returnPct = equity.Sub(tr.StartingCapital).
			Div(tr.StartingCapital).
			Mul(decimal.NewFromInt(100)).
			Round(4)
	}

	var winRate decimal.Decimal
	if closed := wins + losses; closed > 0 {
		winRate = decimal.NewFromInt(int64(wins)).
			Div(decimal.NewFromInt(int64(closed))).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	var profitFactor decimal.Decimal
	switch {
	case grossLosses.IsPositive():
		profitFactor = grossWins.Div(grossLosses).Round(2)
	case grossWins.IsPositive():
		profitFactor = profitFactorCap
	}

	return model.LeaderboardEntry{
		Trader:          tr.Handle,
		DisplayName:     tr.DisplayName,
		StartingCapital: tr.StartingCapital,
		RealizedPnL:     realized.Round(2),
		UnrealizedPnL:   unrealized.Round(2),
		Equity:          equity.Round(2),
		ReturnPct:       returnPct,
		WinRate:         winRate,
		ProfitFactor:    profitFactor,
		TradeCount:      len(trades),
		Wins:            wins,
		Losses:          losses,
	}
}

// RecordSnapshots persists one performance snapshot per active trader at
// the current ranking. Meant to be invoked on a schedule by the operator.
func (s *Service) RecordSnapshots(ctx context.Context, prices map[string]decimal.Decimal) (int, error) {
	entries, err := s.Leaderboard(ctx, prices)
	if err != nil {
		return 0, err
	}

	now := s.now()
	for _, e := range entries {
		snap := &model.Snapshot{
			Trader:        e.Trader,
			Date:          now.Format("2006-01-02"),
			Equity:        e.Equity,
			RealizedPnL:   e.RealizedPnL,
			UnrealizedPnL: e.UnrealizedPnL,
			TradeCount:    e.TradeCount,
			CreatedAt:     now,
		}
		if err := s.store.InsertSnapshot(ctx, snap); err != nil {
			return 0, fmt.Errorf("snapshot for %s: %w", e.Trader, err)
		}
	}
	return len(entries), nil
}

// Snapshots returns the stored performance history for one trader,
// oldest first.
func (s *Service) Snapshots(ctx context.Context, handle string) ([]model.Snapshot, error) {
	if _, err := s.Trader(ctx, handle); err != nil {
		return nil, err
	}
	return s.store.ListSnapshots(ctx, handle)
}
