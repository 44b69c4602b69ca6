// Package margin computes the capital reserved against an open position.
//
// The schedule is per-unit-volume and instrument-type dependent, with a
// reduced factor for spread-style instruments whose paired legs offset.
// All monetary values use shopspring/decimal — never float64 for money.
package margin

import (
	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/instrument"
)

// Rate schedule constants. Rates are dollars of margin per lot, where a lot
// is 1,000 BBL for crude-like instruments and 10,000 MMBtu otherwise.
var (
	crudeLot  = decimal.NewFromInt(1000)
	gasLot    = decimal.NewFromInt(10000)
	crudeRate = decimal.NewFromInt(5000)
	gasRate   = decimal.NewFromInt(1500)
	basisRate = decimal.NewFromInt(800)

	optionFactor   = decimal.NewFromFloat(0.5)
	spreadDiscount = decimal.NewFromFloat(0.4)
)

// Required returns the margin reserved for a position of the given type and
// volume. Deterministic, no I/O. Non-positive volumes are the risk gate's
// problem; for completeness they produce a non-positive margin here.
//
// Crude-like instruments (including OPTION_CL, which the crude family
// subsumes) use the crude lot and rate; the option discount applies only to
// OPTION_NG. Spread-style instruments carry a 60% reduction.
func Required(t instrument.Type, volume decimal.Decimal) decimal.Decimal {
	var m decimal.Decimal
	switch {
	case instrument.IsCrude(t):
		m = volume.Div(crudeLot).Mul(crudeRate)
	case t == instrument.BasisSwap:
		m = volume.Div(gasLot).Mul(basisRate)
	case t == instrument.OptionNG:
		m = volume.Div(gasLot).Mul(gasRate).Mul(optionFactor)
	default:
		m = volume.Div(gasLot).Mul(gasRate)
	}

	if instrument.IsSpread(t) {
		m = m.Mul(spreadDiscount)
	}
	return m
}
