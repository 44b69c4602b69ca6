package instrument_test

import (
	"errors"
	"testing"

	"github.com/energydesk/trade-engine/internal/instrument"
)

func TestValid(t *testing.T) {
	for _, typ := range []instrument.Type{
		instrument.PhysFixed, instrument.BasisSwap, instrument.OptionNG,
		instrument.CrudePhys, instrument.EFP, instrument.FreightFFA,
		instrument.AgFutures, instrument.MetalsSpread,
	} {
		if !instrument.Valid(typ) {
			t.Errorf("Valid(%s) = false, want true", typ)
		}
	}
	for _, typ := range []instrument.Type{"", "SWAP", "crude_phys", "PHYS"} {
		if instrument.Valid(typ) {
			t.Errorf("Valid(%q) = true, want false", typ)
		}
	}
}

func TestIsCrude(t *testing.T) {
	crude := []instrument.Type{
		instrument.CrudePhys, instrument.CrudeSwap, instrument.CrudeDiff,
		instrument.OptionCL, instrument.EFP,
	}
	for _, typ := range crude {
		if !instrument.IsCrude(typ) {
			t.Errorf("IsCrude(%s) = false, want true", typ)
		}
		if got := instrument.Unit(typ); got != "BBL" {
			t.Errorf("Unit(%s) = %s, want BBL", typ, got)
		}
		if got := instrument.MaxVolume(typ); got.String() != "50000" {
			t.Errorf("MaxVolume(%s) = %s, want 50000", typ, got)
		}
	}

	for _, typ := range []instrument.Type{instrument.PhysFixed, instrument.OptionNG, instrument.FreightFFA} {
		if instrument.IsCrude(typ) {
			t.Errorf("IsCrude(%s) = true, want false", typ)
		}
		if got := instrument.MaxVolume(typ); got.String() != "500000" {
			t.Errorf("MaxVolume(%s) = %s, want 500000", typ, got)
		}
	}
}

func TestSettlementOf(t *testing.T) {
	if instrument.SettlementOf(instrument.BasisSwap) != instrument.BasisChange {
		t.Error("BASIS_SWAP should settle on basis change")
	}
	for _, typ := range []instrument.Type{instrument.PhysFixed, instrument.CrudeSwap, instrument.OptionNG} {
		if instrument.SettlementOf(typ) != instrument.Directional {
			t.Errorf("%s should settle directionally", typ)
		}
	}
}

func TestInferSector(t *testing.T) {
	tests := []struct {
		typ  instrument.Type
		want instrument.Sector
	}{
		{instrument.CrudePhys, instrument.SectorCrude},
		{instrument.OptionCL, instrument.SectorCrude},
		{instrument.EFP, instrument.SectorCrude},
		{instrument.FreightFFA, instrument.SectorFreight},
		{instrument.AgSpread, instrument.SectorAg},
		{instrument.MetalsFutures, instrument.SectorMetals},
		{instrument.OptionNG, instrument.SectorNG},
		{instrument.BasisSwap, instrument.SectorNG},

		// Gas/power-ambiguous types stay unresolved.
		{instrument.PhysFixed, ""},
		{instrument.Spread, ""},
		{instrument.TAS, ""},
	}
	for _, tt := range tests {
		if got := instrument.InferSector(tt.typ); got != tt.want {
			t.Errorf("InferSector(%s) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestCheckSector(t *testing.T) {
	// Explicit sector must match the allow-list.
	if err := instrument.CheckSector(instrument.PhysFixed, instrument.SectorPower); err != nil {
		t.Errorf("PHYS_FIXED in power should pass: %v", err)
	}
	if err := instrument.CheckSector(instrument.FreightFFA, instrument.SectorNG); !errors.Is(err, instrument.ErrSectorMismatch) {
		t.Errorf("FREIGHT_FFA in ng: got %v, want ErrSectorMismatch", err)
	}
	if err := instrument.CheckSector(instrument.BasisSwap, instrument.SectorCrude); !errors.Is(err, instrument.ErrSectorMismatch) {
		t.Errorf("BASIS_SWAP in crude: got %v, want ErrSectorMismatch", err)
	}

	// TAS trades in gas, crude, and power.
	for _, s := range []instrument.Sector{instrument.SectorNG, instrument.SectorCrude, instrument.SectorPower} {
		if err := instrument.CheckSector(instrument.TAS, s); err != nil {
			t.Errorf("TAS in %s should pass: %v", s, err)
		}
	}

	// Empty sector falls back to inference; ambiguous types pass.
	if err := instrument.CheckSector(instrument.PhysFixed, ""); err != nil {
		t.Errorf("PHYS_FIXED without sector should pass: %v", err)
	}
	if err := instrument.CheckSector(instrument.FreightFFA, ""); err != nil {
		t.Errorf("FREIGHT_FFA without sector should infer freight: %v", err)
	}

	if err := instrument.CheckSector("BOGUS", instrument.SectorNG); !errors.Is(err, instrument.ErrUnknownType) {
		t.Errorf("unknown type: got %v, want ErrUnknownType", err)
	}
	if err := instrument.CheckSector(instrument.PhysFixed, "weather"); !errors.Is(err, instrument.ErrSectorMismatch) {
		t.Errorf("unknown sector: got %v, want ErrSectorMismatch", err)
	}
}
