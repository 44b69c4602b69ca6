package margin_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/instrument"
	"github.com/energydesk/trade-engine/internal/margin"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestRequired_Schedule(t *testing.T) {
	tests := []struct {
		name   string
		typ    instrument.Type
		volume float64
		want   float64
	}{
		// Crude family: $5000 per 1000 BBL lot.
		{"crude phys one lot", instrument.CrudePhys, 1000, 5000},
		{"crude swap ten lots", instrument.CrudeSwap, 10000, 50000},
		{"efp counts as crude", instrument.EFP, 2000, 10000},
		{"crude option uses crude rate", instrument.OptionCL, 1000, 5000},
		{"crude fractional lot", instrument.CrudePhys, 500, 2500},

		// Gas default: $1500 per 10000 MMBtu lot.
		{"phys fixed one lot", instrument.PhysFixed, 10000, 1500},
		{"balmo half lot", instrument.Balmo, 5000, 750},
		{"tas", instrument.TAS, 20000, 3000},

		// Basis swaps: $800 per lot.
		{"basis swap", instrument.BasisSwap, 10000, 800},
		{"basis swap five lots", instrument.BasisSwap, 50000, 4000},

		// Gas options: half the gas rate.
		{"ng option", instrument.OptionNG, 10000, 750},

		// Spread discount: 40% of the underlying rate.
		{"gas spread", instrument.Spread, 10000, 600},
		{"multileg", instrument.Multileg, 10000, 600},
		{"crude diff spread on crude rate", instrument.CrudeDiff, 1000, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := margin.Required(tt.typ, d(tt.volume))
			if !got.Equal(d(tt.want)) {
				t.Errorf("Required(%s, %v) = %s, want %v", tt.typ, tt.volume, got, tt.want)
			}
		})
	}
}

func TestRequired_MonotonicInVolume(t *testing.T) {
	for typ := range map[instrument.Type]bool{
		instrument.PhysFixed: true,
		instrument.BasisSwap: true,
		instrument.OptionNG:  true,
		instrument.CrudePhys: true,
		instrument.CrudeDiff: true,
	} {
		prev := decimal.Zero
		for _, vol := range []float64{100, 1000, 10000, 100000} {
			m := margin.Required(typ, d(vol))
			if !m.GreaterThan(prev) {
				t.Errorf("Required(%s, %v) = %s, not greater than %s at lower volume",
					typ, vol, m, prev)
			}
			prev = m
		}
	}
}

func TestRequired_SpreadCheaperThanOutright(t *testing.T) {
	vol := d(10000)
	if !margin.Required(instrument.Spread, vol).LessThan(margin.Required(instrument.PhysFixed, vol)) {
		t.Error("spread margin should be below the outright gas margin")
	}
	if !margin.Required(instrument.CrudeDiff, vol).LessThan(margin.Required(instrument.CrudeSwap, vol)) {
		t.Error("crude diff margin should be below the outright crude margin")
	}
}
