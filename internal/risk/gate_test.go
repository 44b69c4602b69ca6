package risk_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/apperr"
	"github.com/energydesk/trade-engine/internal/instrument"
	"github.com/energydesk/trade-engine/internal/model"
	"github.com/energydesk/trade-engine/internal/risk"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func activeTrader() *model.Trader {
	return &model.Trader{
		Handle:          "alice",
		DisplayName:     "Alice",
		Status:          model.TraderActive,
		StartingCapital: d(1_000_000),
	}
}

func gasReq() risk.TradeRequest {
	return risk.TradeRequest{
		Type:       instrument.PhysFixed,
		Direction:  model.Buy,
		Hub:        "HENRY",
		Volume:     d(10000),
		EntryPrice: d(3.50),
		RefPrice:   d(3.50),
	}
}

// admit is a shorthand for running the gate with no history.
func admit(t *testing.T, trader *model.Trader, req risk.TradeRequest) (*model.Trade, error) {
	t.Helper()
	return risk.NewGate().Admit(trader, req, nil, testNow)
}

func wantRejection(t *testing.T, err error, check string, class apperr.Class) {
	t.Helper()
	if err == nil {
		t.Fatal("expected rejection, got admission")
	}
	if got := risk.CheckName(err); got != check {
		t.Errorf("failed check = %q, want %q (err: %v)", got, check, err)
	}
	if !apperr.IsClass(err, class) {
		t.Errorf("error class mismatch for %v", err)
	}
}

func TestAdmit_Normalizes(t *testing.T) {
	req := gasReq()
	req.RefPrice = decimal.Zero // should default to entry

	tr, err := admit(t, activeTrader(), req)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if tr.Status != model.TradeOpen {
		t.Errorf("status = %s, want OPEN", tr.Status)
	}
	if tr.Venue != model.VenueExchange {
		t.Errorf("venue = %s, want EXCHANGE", tr.Venue)
	}
	if !tr.RefPrice.Equal(req.EntryPrice) {
		t.Errorf("ref price = %s, want defaulted to entry %s", tr.RefPrice, req.EntryPrice)
	}
	if !tr.CreatedAt.Equal(testNow) {
		t.Errorf("created at = %v, want %v", tr.CreatedAt, testNow)
	}
	if tr.ID != "" {
		t.Error("gate must not assign IDs")
	}
}

func TestAdmit_InactiveTrader(t *testing.T) {
	trader := activeTrader()
	trader.Status = model.TraderPending

	_, err := admit(t, trader, gasReq())
	wantRejection(t, err, risk.CheckStatus, apperr.Policy)
}

func TestAdmit_MissingFields(t *testing.T) {
	req := gasReq()
	req.Hub = ""
	_, err := admit(t, activeTrader(), req)
	wantRejection(t, err, risk.CheckFields, apperr.Validation)

	req = gasReq()
	req.Direction = "LONG"
	_, err = admit(t, activeTrader(), req)
	wantRejection(t, err, risk.CheckFields, apperr.Validation)

	req = gasReq()
	req.Type = "SWAPTION"
	_, err = admit(t, activeTrader(), req)
	wantRejection(t, err, risk.CheckFields, apperr.Validation)
}

func TestAdmit_ZeroEntryPrice(t *testing.T) {
	req := gasReq()
	req.EntryPrice = decimal.Zero
	req.RefPrice = decimal.Zero
	_, err := admit(t, activeTrader(), req)
	wantRejection(t, err, risk.CheckFields, apperr.Validation)
}

func TestAdmit_BasisSwapAllowsNonPositivePrice(t *testing.T) {
	// A basis differential may legitimately be zero or negative.
	req := risk.TradeRequest{
		Type:      instrument.BasisSwap,
		Direction: model.Sell,
		Hub:       "WAHA",
		Volume:    d(10000),
	}
	req.EntryPrice = d(-0.45)

	if _, err := admit(t, activeTrader(), req); err != nil {
		t.Fatalf("negative basis differential should pass: %v", err)
	}
}

func TestAdmit_VolumeBounds(t *testing.T) {
	req := gasReq()
	req.Volume = decimal.Zero
	_, err := admit(t, activeTrader(), req)
	wantRejection(t, err, risk.CheckVolume, apperr.Validation)

	req = gasReq()
	req.Volume = d(500001)
	_, err = admit(t, activeTrader(), req)
	wantRejection(t, err, risk.CheckVolume, apperr.Policy)

	// Crude cap is tighter.
	req = risk.TradeRequest{
		Type:       instrument.CrudeSwap,
		Direction:  model.Buy,
		Hub:        "WTI",
		Volume:     d(50001),
		EntryPrice: d(75),
	}
	trader := activeTrader()
	trader.StartingCapital = d(100_000_000)
	_, err = risk.NewGate().Admit(trader, req, nil, testNow)
	wantRejection(t, err, risk.CheckVolume, apperr.Policy)
}

func TestAdmit_SectorMismatch(t *testing.T) {
	req := gasReq()
	req.Type = instrument.FreightFFA
	req.Sector = instrument.SectorNG
	_, err := admit(t, activeTrader(), req)
	wantRejection(t, err, risk.CheckSector, apperr.Policy)
}

func TestAdmit_PriceBand(t *testing.T) {
	// BUY below the reference band rejects; SELL above rejects.
	req := gasReq()
	req.EntryPrice = d(3.40) // ~2.9% below ref 3.50
	_, err := admit(t, activeTrader(), req)
	wantRejection(t, err, risk.CheckPrice, apperr.Policy)

	req = gasReq()
	req.Direction = model.Sell
	req.EntryPrice = d(3.60)
	_, err = admit(t, activeTrader(), req)
	wantRejection(t, err, risk.CheckPrice, apperr.Policy)

	// Within the band both directions pass.
	req = gasReq()
	req.EntryPrice = d(3.501)
	if _, err := admit(t, activeTrader(), req); err != nil {
		t.Errorf("BUY just above reference should pass: %v", err)
	}
}

func TestAdmit_BuyingPower(t *testing.T) {
	trader := activeTrader()
	trader.StartingCapital = d(1000)

	// PHYS_FIXED 10000 MMBtu needs $1500 margin against $1000 capital.
	_, err := admit(t, trader, gasReq())
	wantRejection(t, err, risk.CheckBuyingPower, apperr.Policy)
}

func TestAdmit_BuyingPowerCountsOpenMarginAndRealized(t *testing.T) {
	trader := activeTrader()
	trader.StartingCapital = d(3000)

	history := []model.Trade{
		// Open position reserving $1500.
		{Type: instrument.PhysFixed, Volume: d(10000), Status: model.TradeOpen},
		// Closed loss of $1200.
		{Type: instrument.PhysFixed, Status: model.TradeClosed, RealizedPnL: d(-1200)},
	}

	// Remaining buying power: 3000 − 1200 − 1500 = 300 < 1500.
	_, err := risk.NewGate().Admit(trader, gasReq(), history, testNow)
	wantRejection(t, err, risk.CheckBuyingPower, apperr.Policy)

	// A winning close restores capacity: 3000 + 1200 − 1500 = 2700.
	history[1].RealizedPnL = d(1200)
	if _, err := risk.NewGate().Admit(trader, gasReq(), history, testNow); err != nil {
		t.Fatalf("should pass with realized gains: %v", err)
	}
}

func TestAdmit_DuplicateSuppression(t *testing.T) {
	prior := model.Trade{
		Type:       instrument.PhysFixed,
		Direction:  model.Buy,
		Hub:        "HENRY",
		Volume:     d(10000),
		EntryPrice: d(3.50),
		Status:     model.TradeOpen,
		CreatedAt:  testNow.Add(-2 * time.Second),
	}

	_, err := risk.NewGate().Admit(activeTrader(), gasReq(), []model.Trade{prior}, testNow)
	wantRejection(t, err, risk.CheckDuplicate, apperr.Policy)

	// Same trade outside the window passes.
	prior.CreatedAt = testNow.Add(-6 * time.Second)
	if _, err := risk.NewGate().Admit(activeTrader(), gasReq(), []model.Trade{prior}, testNow); err != nil {
		t.Fatalf("outside the window should pass: %v", err)
	}

	// A 10% volume difference passes even inside the window.
	prior.CreatedAt = testNow.Add(-2 * time.Second)
	prior.Volume = d(11000)
	if _, err := risk.NewGate().Admit(activeTrader(), gasReq(), []model.Trade{prior}, testNow); err != nil {
		t.Fatalf("different volume should pass: %v", err)
	}

	// Opposite direction is never a duplicate.
	prior.Volume = d(10000)
	prior.Direction = model.Sell
	if _, err := risk.NewGate().Admit(activeTrader(), gasReq(), []model.Trade{prior}, testNow); err != nil {
		t.Fatalf("opposite direction should pass: %v", err)
	}
}
