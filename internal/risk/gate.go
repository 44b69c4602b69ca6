// Package risk implements the admission gate for trade submissions.
//
// The gate is side-effect free: it judges a request against the trader's
// current ledger snapshot and either returns a normalized trade for the
// caller to persist, or a classified rejection. Checks run in a fixed order
// and the first failure wins.
package risk

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/apperr"
	"github.com/energydesk/trade-engine/internal/instrument"
	"github.com/energydesk/trade-engine/internal/margin"
	"github.com/energydesk/trade-engine/internal/model"
)

// Check identifiers, used as metric labels on rejections.
const (
	CheckStatus      = "status"
	CheckFields      = "fields"
	CheckVolume      = "volume"
	CheckSector      = "sector"
	CheckPrice       = "price"
	CheckBuyingPower = "buying_power"
	CheckDuplicate   = "duplicate"
)

// Duplicate-suppression policy: a resubmission of the same type/direction/hub
// within Window, with volume within VolumeTolerance and price within
// PriceTolerance of an existing trade, is rejected.
var (
	duplicateWindow   = 5 * time.Second
	volumeTolerance   = decimal.NewFromFloat(0.05)
	priceTolerance    = decimal.NewFromFloat(0.02)
	priceBand         = decimal.NewFromFloat(0.001) // 0.1% entry-vs-reference band
	one               = decimal.NewFromInt(1)
)

// TradeRequest is a trade submission before admission.
type TradeRequest struct {
	Type      instrument.Type   `json:"type" validate:"required"`
	Direction model.Direction   `json:"direction" validate:"required,oneof=BUY SELL"`
	Hub       string            `json:"hub" validate:"required"`
	Sector    instrument.Sector `json:"sector,omitempty"`
	Volume    decimal.Decimal   `json:"volume"`

	// EntryPrice may be absent only for basis swaps (differential pricing).
	EntryPrice decimal.Decimal `json:"entry_price"`

	// RefPrice is the reference price snapshot; defaults to EntryPrice.
	RefPrice decimal.Decimal `json:"ref_price"`

	Notes string `json:"notes,omitempty"`
}

// RejectError wraps a classified rejection with the name of the failed check.
type RejectError struct {
	Check string
	Err   error
}

func (e *RejectError) Error() string { return e.Err.Error() }
func (e *RejectError) Unwrap() error { return e.Err }

// CheckName returns the failed check's identifier, or "other" for errors
// that did not come from the gate.
func CheckName(err error) string {
	if re, ok := err.(*RejectError); ok {
		return re.Check
	}
	return "other"
}

func reject(check string, err error) error {
	return &RejectError{Check: check, Err: err}
}

// Gate validates trade submissions. Safe for concurrent use.
type Gate struct {
	validate *validator.Validate
}

// NewGate creates a gate.
func NewGate() *Gate {
	return &Gate{validate: validator.New()}
}

// Admit runs the admission checks for req against the trader's full trade
// history (open exposure and realized P&L are both derived from it). On
// success it returns the normalized trade: status OPEN, creation time set,
// reference price defaulted. The caller assigns the ID and persists.
func (g *Gate) Admit(trader *model.Trader, req TradeRequest, history []model.Trade, now time.Time) (*model.Trade, error) {
	// 1. Trader status.
	if trader.Status != model.TraderActive {
		return nil, reject(CheckStatus,
			apperr.Policyf("trader status is %s, must be ACTIVE to trade", trader.Status))
	}

	// 2. Required fields.
	if err := g.validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return nil, reject(CheckFields,
				apperr.Validationf("missing or invalid fields: %v", fields))
		}
		return nil, reject(CheckFields, apperr.Validationf("invalid request: %v", err))
	}
	if !instrument.Valid(req.Type) {
		return nil, reject(CheckFields,
			apperr.Validationf("unknown instrument type %q", req.Type))
	}
	isBasis := instrument.SettlementOf(req.Type) == instrument.BasisChange
	if req.EntryPrice.IsZero() && !isBasis {
		return nil, reject(CheckFields,
			apperr.Validationf("missing or invalid fields: [EntryPrice]"))
	}

	// 3. Volume bounds.
	if req.Volume.LessThanOrEqual(decimal.Zero) {
		return nil, reject(CheckVolume, apperr.Validationf("volume must be positive"))
	}
	if maxVol := instrument.MaxVolume(req.Type); req.Volume.GreaterThan(maxVol) {
		return nil, reject(CheckVolume,
			apperr.Policyf("volume exceeds maximum of %s %s",
				maxVol.StringFixed(0), instrument.Unit(req.Type)))
	}

	// 4. Sector compatibility.
	if err := instrument.CheckSector(req.Type, req.Sector); err != nil {
		return nil, reject(CheckSector, apperr.Policyf("%v", err))
	}

	// 5. Price sanity. Basis swaps price a differential, which may be zero
	// or negative, and skip the reference band.
	refPrice := req.RefPrice
	if refPrice.IsZero() {
		refPrice = req.EntryPrice
	}
	if !isBasis {
		if req.EntryPrice.LessThanOrEqual(decimal.Zero) {
			return nil, reject(CheckPrice, apperr.Policyf("entry price must be positive"))
		}
		lower := refPrice.Mul(one.Sub(priceBand))
		upper := refPrice.Mul(one.Add(priceBand))
		if req.Direction == model.Buy && req.EntryPrice.LessThan(lower) {
			return nil, reject(CheckPrice,
				apperr.Policyf("BUY price must be at or above reference"))
		}
		if req.Direction == model.Sell && req.EntryPrice.GreaterThan(upper) {
			return nil, reject(CheckPrice,
				apperr.Policyf("SELL price must be at or below reference"))
		}
	}

	// 6. Buying power: equity is starting capital plus realized P&L; the
	// new trade's margin must fit in what open positions leave of it.
	usedMargin := decimal.Zero
	realized := decimal.Zero
	for _, t := range history {
		switch t.Status {
		case model.TradeOpen:
			usedMargin = usedMargin.Add(margin.Required(t.Type, t.Volume))
		case model.TradeClosed:
			realized = realized.Add(t.RealizedPnL)
		}
	}
	newMargin := margin.Required(req.Type, req.Volume)
	buyingPower := trader.StartingCapital.Add(realized).Sub(usedMargin)
	if newMargin.GreaterThan(buyingPower) {
		return nil, reject(CheckBuyingPower,
			apperr.Policyf("insufficient buying power: required $%s, available $%s",
				newMargin.StringFixed(0), buyingPower.StringFixed(0)))
	}

	// 7. Duplicate suppression.
	for _, t := range history {
		if now.Sub(t.CreatedAt) > duplicateWindow {
			continue
		}
		if t.Type != req.Type || t.Direction != req.Direction || t.Hub != req.Hub {
			continue
		}
		if withinTolerance(t.Volume, req.Volume, volumeTolerance, one) &&
			withinTolerance(t.EntryPrice, req.EntryPrice, priceTolerance, decimal.NewFromFloat(0.01)) {
			return nil, reject(CheckDuplicate,
				apperr.Policyf("duplicate trade detected (within %s)", duplicateWindow))
		}
	}

	return &model.Trade{
		Trader:     trader.Handle,
		Type:       req.Type,
		Direction:  req.Direction,
		Hub:        req.Hub,
		Volume:     req.Volume,
		EntryPrice: req.EntryPrice,
		RefPrice:   refPrice,
		Status:     model.TradeOpen,
		Notes:      req.Notes,
		Venue:      model.VenueExchange,
		CreatedAt:  now,
	}, nil
}

// withinTolerance reports whether |a−b| / max(|b|, floor) < tol.
func withinTolerance(a, b, tol, floor decimal.Decimal) bool {
	denom := b.Abs()
	if denom.LessThan(floor) {
		denom = floor
	}
	return a.Sub(b).Abs().Div(denom).LessThan(tol)
}
