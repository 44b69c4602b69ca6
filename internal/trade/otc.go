package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/apperr"
	"github.com/energydesk/trade-engine/internal/instrument"
	"github.com/energydesk/trade-engine/internal/metrics"
	"github.com/energydesk/trade-engine/internal/model"
	"github.com/energydesk/trade-engine/internal/store"
)

// OTCRequest is a bilateral trade submission. The initiator names the
// counterparty; the engine builds the mirrored leg.
type OTCRequest struct {
	Counterparty string            `json:"counterparty" validate:"required"`
	Type         instrument.Type   `json:"type" validate:"required"`
	Direction    model.Direction   `json:"direction" validate:"required,oneof=BUY SELL"`
	Hub          string            `json:"hub" validate:"required"`
	Volume       decimal.Decimal   `json:"volume"`
	EntryPrice   decimal.Decimal   `json:"entry_price"`
	RefPrice     decimal.Decimal   `json:"ref_price"`
	Notes        string            `json:"notes,omitempty"`
}

// OpenPair creates both legs of a bilateral trade as one atomic economic
// event: opposite directions, identical volume and entry price, mutual
// cross-references, both inserted in a single store transaction.
//
// Bilateral legs settle on agreement between the two desks, so the exchange
// risk gate does not apply; only counterparty preconditions are enforced.
func (s *Service) OpenPair(ctx context.Context, initiator string, req OTCRequest) (*model.Trade, *model.Trade, error) {
	if req.Counterparty == "" {
		return nil, nil, apperr.Validationf("counterparty is required")
	}
	if !instrument.Valid(req.Type) {
		return nil, nil, apperr.Validationf("unknown instrument type %q", req.Type)
	}
	if req.Direction != model.Buy && req.Direction != model.Sell {
		return nil, nil, apperr.Validationf("direction must be BUY or SELL")
	}
	if req.Hub == "" {
		return nil, nil, apperr.Validationf("hub is required")
	}
	if req.Volume.LessThanOrEqual(decimal.Zero) {
		return nil, nil, apperr.Validationf("volume must be positive")
	}
	if req.Counterparty == initiator {
		return nil, nil, apperr.Policyf("cannot trade OTC with yourself")
	}

	unlock := s.lockPair(initiator, req.Counterparty)
	defer unlock()

	me, err := s.store.GetTrader(ctx, initiator)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.NotFoundf("trader %s not found", initiator)
	}
	if err != nil {
		return nil, nil, err
	}
	if me.Status != model.TraderActive {
		return nil, nil, apperr.Policyf("trader status is %s, must be ACTIVE to trade", me.Status)
	}

	cpty, err := s.store.GetTrader(ctx, req.Counterparty)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.NotFoundf("counterparty %s not found", req.Counterparty)
	}
	if err != nil {
		return nil, nil, err
	}
	if cpty.Status != model.TraderActive {
		return nil, nil, apperr.Policyf("%s is not active", cpty.DisplayName)
	}
	if !cpty.OTCAvailable {
		return nil, nil, apperr.Policyf("%s is not accepting OTC trades", cpty.DisplayName)
	}
	if me.TeamID != "" && cpty.TeamID != "" && me.TeamID == cpty.TeamID {
		return nil, nil, apperr.Policyf("OTC trades must be with a different team")
	}

	refPrice := req.RefPrice
	if refPrice.IsZero() {
		refPrice = req.EntryPrice
	}
	now := s.now()
	legID, mirrorID := uuid.New().String(), uuid.New().String()

	leg := &model.Trade{
		ID:           legID,
		Trader:       initiator,
		Type:         req.Type,
		Direction:    req.Direction,
		Hub:          req.Hub,
		Volume:       req.Volume,
		EntryPrice:   req.EntryPrice,
		RefPrice:     refPrice,
		Status:       model.TradeOpen,
		Notes:        req.Notes,
		Venue:        model.VenueOTC,
		MirrorID:     mirrorID,
		Counterparty: cpty.DisplayName,
		CreatedAt:    now,
	}
	mirror := &model.Trade{
		ID:           mirrorID,
		Trader:       cpty.Handle,
		Type:         req.Type,
		Direction:    req.Direction.Opposite(),
		Hub:          req.Hub,
		Volume:       req.Volume,
		EntryPrice:   req.EntryPrice,
		RefPrice:     refPrice,
		Status:       model.TradeOpen,
		Notes:        fmt.Sprintf("OTC mirror — initiated by %s", me.DisplayName),
		Venue:        model.VenueOTC,
		MirrorID:     legID,
		Counterparty: me.DisplayName,
		CreatedAt:    now,
	}

	if err := s.store.InsertTradePair(ctx, leg, mirror); err != nil {
		return nil, nil, fmt.Errorf("persist otc pair: %w", err)
	}

	metrics.TradesOpened.WithLabelValues(string(model.VenueOTC)).Add(2)
	slog.Info("otc pair opened",
		"leg_id", legID,
		"mirror_id", mirrorID,
		"initiator", initiator,
		"counterparty", cpty.Handle,
		"type", req.Type,
		"volume", req.Volume.String(),
	)

	for _, t := range []*model.Trade{leg, mirror} {
		s.publish(Event{
			Type:       EventTradeOpened,
			Trader:     t.Trader,
			TradeID:    t.ID,
			Instrument: string(t.Type),
			Direction:  string(t.Direction),
			Hub:        t.Hub,
			Volume:     t.Volume.String(),
		})
	}
	s.publish(Event{Type: EventLeaderboardInvalidated, Reason: "otc_trade"})
	s.recordFeed(ctx, me, leg, "OTC_TRADE")

	return leg, mirror, nil
}

// ClosePair closes the named leg and propagates the close to its mirror with
// the same price and timestamp. Each leg's P&L is computed independently per
// its own settlement convention. A missing mirror does not fail the
// initiating close — the economic event already happened — but it is logged,
// counted, and pushed to the operator channel.
func (s *Service) ClosePair(ctx context.Context, handle, legID string, closePrice decimal.Decimal) (*model.Trade, *model.Trade, error) {
	leg, err := s.ownedTrade(ctx, handle, legID)
	if err != nil {
		return nil, nil, err
	}
	if leg.Venue != model.VenueOTC {
		return nil, nil, apperr.Validationf("trade %s is not an OTC trade", legID)
	}

	// Lock both owners. The mirror's owner comes from an unlocked read;
	// ownership never changes, so a stale read is safe.
	mirrorOwner := handle
	if leg.MirrorID != "" {
		if m, err := s.store.GetTrade(ctx, leg.MirrorID); err == nil {
			mirrorOwner = m.Trader
		}
	}
	unlock := s.lockPair(handle, mirrorOwner)
	defer unlock()

	// Re-read under the locks.
	leg, err = s.ownedTrade(ctx, handle, legID)
	if err != nil {
		return nil, nil, err
	}
	if leg.Status != model.TradeOpen {
		return nil, nil, apperr.Conflictf("trade %s is already closed", legID)
	}

	closedAt := s.now()
	closedLeg, err := s.settle(ctx, leg, closePrice, closedAt)
	if err != nil {
		return nil, nil, err
	}

	// Propagate to the mirror with the same close price and timestamp.
	if leg.MirrorID == "" {
		s.mirrorMiss(closedLeg, "no mirror reference")
		return closedLeg, nil, nil
	}
	mirror, err := s.store.GetTrade(ctx, leg.MirrorID)
	if err != nil {
		s.mirrorMiss(closedLeg, "mirror leg not found")
		return closedLeg, nil, nil
	}
	if mirror.Status != model.TradeOpen {
		s.mirrorMiss(closedLeg, "mirror leg already closed")
		return closedLeg, mirror, nil
	}

	closedMirror, err := s.settle(ctx, mirror, closePrice, closedAt)
	if err != nil {
		s.mirrorMiss(closedLeg, fmt.Sprintf("mirror close failed: %v", err))
		return closedLeg, nil, nil
	}

	return closedLeg, closedMirror, nil
}

// mirrorMiss surfaces an OTC consistency warning without failing the close.
func (s *Service) mirrorMiss(leg *model.Trade, reason string) {
	metrics.MirrorMisses.Inc()
	slog.Warn("otc mirror inconsistency",
		"trade_id", leg.ID,
		"trader", leg.Trader,
		"reason", reason,
	)
	s.publish(Event{
		Type:    EventOTCMirrorMissing,
		Trader:  leg.Trader,
		TradeID: leg.ID,
		Reason:  reason,
	})
}

// Counterparties lists traders available for bilateral trading with the
// given trader: ACTIVE, not the trader, and not on the trader's team.
func (s *Service) Counterparties(ctx context.Context, handle string) ([]model.Trader, error) {
	me, err := s.Trader(ctx, handle)
	if err != nil {
		return nil, err
	}

	all, err := s.store.ListActiveTraders(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Trader, 0, len(all))
	for _, t := range all {
		if t.Handle == handle {
			continue
		}
		if me.TeamID != "" && t.TeamID == me.TeamID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
