package margin

import "github.com/shopspring/decimal"

// Channel is the marketplace or direct-sale path an order originated from. It
// determines which commission schedule applies.
type Channel string

const (
	ChannelSunStore  Channel = "sun.store"
	ChannelSecondSol Channel = "secondsol"
	ChannelDirect    Channel = "direct"
	ChannelOther     Channel = "other"
)

// Category classifies a sale line's product.
type Category string

const (
	CategoryInverters   Category = "INVERTERS"
	CategorySolarPanels Category = "SOLAR_PANELS"
	CategoryBatteries   Category = "BATTERIES"
	CategoryAccessories Category = "ACCESSORIES"
)

// PaymentMethod is how the buyer paid.
type PaymentMethod string

const (
	PaymentCard   PaymentMethod = "CARD"
	PaymentWire   PaymentMethod = "WIRE"
	PaymentWallet PaymentMethod = "WALLET"
	PaymentCash   PaymentMethod = "CASH"
)

// Tier is one commission bracket. Max is nil for the open-ended last tier.
// CardRate/WireRate are fractions (0.0399 = 3.99%).
type Tier struct {
	Min      decimal.Decimal
	Max      *decimal.Decimal
	CardRate decimal.Decimal
	WireRate decimal.Decimal
}

// RateTable is an ordered set of non-overlapping tiers, ascending by Min,
// last tier open-ended.
type RateTable []Tier

// Find returns the tier whose [Min, Max) bracket contains value.
func (t RateTable) Find(value decimal.Decimal) (Tier, bool) {
	for _, tier := range t {
		if value.LessThan(tier.Min) {
			continue
		}
		if tier.Max == nil || value.LessThan(*tier.Max) {
			return tier, true
		}
	}
	return Tier{}, false
}

// Rates carries the full commission configuration. Tables are immutable data
// passed into the calculator so tests and jurisdictions can swap them without
// touching package state.
type Rates struct {
	// Sun.store tiered tables by category group.
	SunStoreDefault     RateTable
	SunStoreSolarPanels RateTable
	SunStoreAccessories RateTable
	// Fixed per-transaction processor fee, card payments only.
	SunStoreCardFee decimal.Decimal

	// SecondSol flat commission rate used for everything that is not
	// per-watt priced.
	SecondSolFlatRate decimal.Decimal
	// SecondSol per-watt pricing for solar panels with a power rating.
	SecondSolWattRateStandard decimal.Decimal
	SecondSolWattRateVolume   decimal.Decimal
	// Cumulative watts at which the volume rate kicks in.
	SecondSolVolumeThresholdW int64
}

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic("margin: bad rate literal: " + s)
	}
	return v
}

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

// DefaultRates returns the current published commission schedule.
func DefaultRates() Rates {
	return Rates{
		SunStoreDefault: RateTable{
			{Min: dec("0"), Max: decPtr("5000"), CardRate: dec("0.0399"), WireRate: dec("0.0299")},
			{Min: dec("5000"), Max: decPtr("10000"), CardRate: dec("0.0349"), WireRate: dec("0.0249")},
			{Min: dec("10000"), Max: nil, CardRate: dec("0.0299"), WireRate: dec("0.0199")},
		},
		SunStoreSolarPanels: RateTable{
			{Min: dec("0"), Max: decPtr("5000"), CardRate: dec("0.0449"), WireRate: dec("0.0349")},
			{Min: dec("5000"), Max: nil, CardRate: dec("0.0399"), WireRate: dec("0.0299")},
		},
		SunStoreAccessories: RateTable{
			{Min: dec("0"), Max: decPtr("2500"), CardRate: dec("0.0499"), WireRate: dec("0.0399")},
			{Min: dec("2500"), Max: nil, CardRate: dec("0.0449"), WireRate: dec("0.0349")},
		},
		SunStoreCardFee: dec("5.00"),

		SecondSolFlatRate:         dec("0.05"),
		SecondSolWattRateStandard: dec("0.01"),
		SecondSolWattRateVolume:   dec("0.005"),
		SecondSolVolumeThresholdW: 100_000,
	}
}

// sunStoreTable picks the tier table for a category.
func (r Rates) sunStoreTable(cat Category) RateTable {
	switch cat {
	case CategorySolarPanels:
		return r.SunStoreSolarPanels
	case CategoryAccessories:
		return r.SunStoreAccessories
	default:
		return r.SunStoreDefault
	}
}
