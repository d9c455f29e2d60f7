package margin

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/money"
)

// Input carries everything needed to derive a sale line's money fields.
// Quantity and UnitSellPrice must be validated positive by the caller before
// the calculator runs. PowerRatingW is mandatory for SecondSol solar panels;
// the calculator treats an absent rating as zero watts, so upstream validation
// must reject that combination rather than let it through.
type Input struct {
	Quantity        decimal.Decimal
	UnitSellPrice   decimal.Decimal
	UnitCost        decimal.Decimal
	ShippingCharged decimal.Decimal
	ShippingCost    decimal.Decimal
	Channel         Channel
	Category        Category
	PaymentMethod   PaymentMethod
	PowerRatingW    *decimal.Decimal
	// CumulativeWatts is the store's per-watt volume reading before this
	// line, used only for SecondSol solar-panel pricing.
	CumulativeWatts int64
}

// Result holds the derived fields, all rounded to 2 decimals.
type Result struct {
	SellTotal        decimal.Decimal
	TransactionValue decimal.Decimal
	Commission       decimal.Decimal
	Fee              decimal.Decimal
	NetReceived      decimal.Decimal
	TotalCost        decimal.Decimal
	GrossMargin      decimal.Decimal
	NetMargin        decimal.Decimal
	NetMarginPct     decimal.Decimal
}

// Compute derives a line's totals, commission, fees and margins. It is a pure
// function of its inputs and the rate tables: recomputing with the same inputs
// yields identical results.
func Compute(rates Rates, in Input) (Result, error) {
	sellTotal := money.Round2(in.Quantity.Mul(in.UnitSellPrice))
	txValue := money.Round2(sellTotal.Add(in.ShippingCharged))

	commission, fee, err := commissionFor(rates, in, txValue)
	if err != nil {
		return Result{}, err
	}

	netReceived := money.Round2(txValue.Sub(commission).Sub(fee))
	totalCost := money.Round2(in.Quantity.Mul(in.UnitCost).Add(in.ShippingCost))
	grossMargin := money.Round2(txValue.Sub(totalCost))
	netMargin := money.Round2(netReceived.Sub(totalCost))

	netMarginPct := decimal.Zero
	if txValue.IsPositive() {
		netMarginPct = money.Round2(netMargin.Div(txValue).Mul(decimal.NewFromInt(100)))
	}

	return Result{
		SellTotal:        sellTotal,
		TransactionValue: txValue,
		Commission:       commission,
		Fee:              fee,
		NetReceived:      netReceived,
		TotalCost:        totalCost,
		GrossMargin:      grossMargin,
		NetMargin:        netMargin,
		NetMarginPct:     netMarginPct,
	}, nil
}

func commissionFor(rates Rates, in Input, txValue decimal.Decimal) (commission, fee decimal.Decimal, err error) {
	switch in.Channel {
	case ChannelSunStore:
		table := rates.sunStoreTable(in.Category)
		tier, ok := table.Find(txValue)
		if !ok {
			return decimal.Zero, decimal.Zero, fmt.Errorf("margin: no tier for value %s category %s", txValue, in.Category)
		}
		if in.PaymentMethod == PaymentCard {
			// Card commissions round up to the next cent; the fixed
			// processor fee applies per transaction.
			commission = money.RoundUpCent(txValue.Mul(tier.CardRate))
			fee = rates.SunStoreCardFee
		} else {
			commission = money.Round2(txValue.Mul(tier.WireRate))
			fee = decimal.Zero
		}
		return commission, fee, nil

	case ChannelSecondSol:
		if in.Category == CategorySolarPanels && in.PowerRatingW != nil {
			watts := in.Quantity.Mul(*in.PowerRatingW)
			rate := rates.SecondSolWattRateStandard
			if in.CumulativeWatts >= rates.SecondSolVolumeThresholdW {
				rate = rates.SecondSolWattRateVolume
			}
			return money.Round2(watts.Mul(rate)), decimal.Zero, nil
		}
		return money.Round2(txValue.Mul(rates.SecondSolFlatRate)), decimal.Zero, nil

	case ChannelDirect, ChannelOther:
		return decimal.Zero, decimal.Zero, nil

	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("margin: unknown channel %q", in.Channel)
	}
}
