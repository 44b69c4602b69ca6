// Package instrument defines the closed enumeration of tradeable instrument
// types and the per-type policy tables the engine dispatches on: margin rate
// class, settlement convention, spread discount, sector membership, and
// volume limits. Adding an instrument is a table edit, not a code change at
// the call sites.
package instrument

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Type is an instrument type identifier. The set of valid values is closed;
// anything outside the tables below is rejected at the risk gate.
type Type string

// Natural gas and power families.
const (
	PhysFixed  Type = "PHYS_FIXED"
	PhysIndex  Type = "PHYS_INDEX"
	BasisSwap  Type = "BASIS_SWAP"
	FixedFloat Type = "FIXED_FLOAT"
	Spread     Type = "SPREAD"
	Balmo      Type = "BALMO"
	OptionNG   Type = "OPTION_NG"
	TAS        Type = "TAS"
	Multileg   Type = "MULTILEG"
)

// Crude family.
const (
	CrudePhys Type = "CRUDE_PHYS"
	CrudeSwap Type = "CRUDE_SWAP"
	CrudeDiff Type = "CRUDE_DIFF"
	OptionCL  Type = "OPTION_CL"
	EFP       Type = "EFP"
)

// Freight, ag, and metals families.
const (
	FreightFFA    Type = "FREIGHT_FFA"
	FreightPhys   Type = "FREIGHT_PHYS"
	AgFutures     Type = "AG_FUTURES"
	AgOptions     Type = "AG_OPTIONS"
	AgSpread      Type = "AG_SPREAD"
	MetalsFutures Type = "METALS_FUTURES"
	MetalsOptions Type = "METALS_OPTIONS"
	MetalsSpread  Type = "METALS_SPREAD"
)

// Sector is a commodity sector identifier.
type Sector string

const (
	SectorNG      Sector = "ng"
	SectorCrude   Sector = "crude"
	SectorPower   Sector = "power"
	SectorFreight Sector = "freight"
	SectorAg      Sector = "ag"
	SectorMetals  Sector = "metals"
)

var (
	// ErrUnknownType is returned for a type outside the closed enumeration.
	ErrUnknownType = errors.New("instrument: unknown instrument type")

	// ErrSectorMismatch is returned when an instrument type is not traded
	// in the supplied sector.
	ErrSectorMismatch = errors.New("instrument: type not valid for sector")
)

// Settlement selects the P&L convention applied at close and mark-to-market.
type Settlement int

const (
	// Directional settles on the absolute price level:
	// (close − entry) · volume for BUY, negated for SELL.
	Directional Settlement = iota

	// BasisChange settles on the change in a price differential. The sign
	// convention matches Directional, but price sanity bounds and the
	// positive-price requirement do not apply.
	BasisChange
)

// allTypes is the closed enumeration. Every policy table below must cover
// exactly this set (defaults apply where a type is absent).
var allTypes = map[Type]bool{
	PhysFixed: true, PhysIndex: true, BasisSwap: true, FixedFloat: true,
	Spread: true, Balmo: true, OptionNG: true, TAS: true, Multileg: true,
	CrudePhys: true, CrudeSwap: true, CrudeDiff: true, OptionCL: true, EFP: true,
	FreightFFA: true, FreightPhys: true,
	AgFutures: true, AgOptions: true, AgSpread: true,
	MetalsFutures: true, MetalsOptions: true, MetalsSpread: true,
}

// sectorTypes maps each sector to the instrument types traded in it.
var sectorTypes = map[Sector]map[Type]bool{
	SectorNG: {
		PhysFixed: true, PhysIndex: true, BasisSwap: true, FixedFloat: true,
		Spread: true, Balmo: true, OptionNG: true, TAS: true, Multileg: true,
	},
	SectorCrude: {
		CrudePhys: true, CrudeSwap: true, CrudeDiff: true, OptionCL: true,
		EFP: true, TAS: true,
	},
	SectorPower: {
		PhysFixed: true, PhysIndex: true, FixedFloat: true, Spread: true,
		Balmo: true, TAS: true,
	},
	SectorFreight: {FreightFFA: true, FreightPhys: true},
	SectorAg:      {AgFutures: true, AgOptions: true, AgSpread: true},
	SectorMetals:  {MetalsFutures: true, MetalsOptions: true, MetalsSpread: true},
}

// spreadTypes carry offsetting legs and get the reduced margin factor.
var spreadTypes = map[Type]bool{
	Spread: true, Multileg: true, CrudeDiff: true,
}

// Valid reports whether t is in the closed enumeration.
func Valid(t Type) bool {
	return allTypes[t]
}

// IsCrude reports whether t belongs to the crude-like family, which trades
// in barrels and carries the higher margin rate and the tighter volume cap.
func IsCrude(t Type) bool {
	return strings.HasPrefix(string(t), "CRUDE") || t == EFP || t == OptionCL
}

// IsSpread reports whether t gets the offsetting-risk margin discount.
func IsSpread(t Type) bool {
	return spreadTypes[t]
}

// SettlementOf returns the P&L convention for t.
func SettlementOf(t Type) Settlement {
	if t == BasisSwap {
		return BasisChange
	}
	return Directional
}

// Unit returns the volume unit label for t.
func Unit(t Type) string {
	if IsCrude(t) {
		return "BBL"
	}
	return "MMBtu"
}

// MaxVolume returns the per-trade volume cap for t.
func MaxVolume(t Type) decimal.Decimal {
	if IsCrude(t) {
		return decimal.NewFromInt(50000)
	}
	return decimal.NewFromInt(500000)
}

// InferSector derives the sector from the instrument type when the caller
// did not supply one. Returns "" when the type is sector-ambiguous (e.g.
// PHYS_FIXED trades in both gas and power).
func InferSector(t Type) Sector {
	switch {
	case IsCrude(t):
		return SectorCrude
	case strings.HasPrefix(string(t), "FREIGHT"):
		return SectorFreight
	case strings.HasPrefix(string(t), "AG"):
		return SectorAg
	case strings.HasPrefix(string(t), "METALS"):
		return SectorMetals
	case t == OptionNG || t == BasisSwap:
		return SectorNG
	}
	return ""
}

// CheckSector validates a type/sector combination. An empty sector is
// resolved via InferSector; a combination that stays unresolvable passes
// (sector-ambiguous types are accepted without a sector claim).
func CheckSector(t Type, sector Sector) error {
	if !Valid(t) {
		return fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	if sector == "" {
		sector = InferSector(t)
	}
	if sector == "" {
		return nil
	}
	allowed, ok := sectorTypes[sector]
	if !ok {
		return fmt.Errorf("%w: unknown sector %q", ErrSectorMismatch, sector)
	}
	if !allowed[t] {
		return fmt.Errorf("%w: %s is not valid for %s sector", ErrSectorMismatch, t, sector)
	}
	return nil
}
