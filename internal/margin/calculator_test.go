package margin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func input(qty, price, shipCharged string) Input {
	return Input{
		Quantity:        dec(qty),
		UnitSellPrice:   dec(price),
		UnitCost:        dec("0"),
		ShippingCharged: dec(shipCharged),
		ShippingCost:    dec("0"),
		Channel:         ChannelSunStore,
		Category:        CategoryInverters,
		PaymentMethod:   PaymentCard,
	}
}

func TestComputeSunStoreCardScenario(t *testing.T) {
	// 2 × 500.00 plus 30.00 shipping, card-paid inverter on Sun.store.
	rates := DefaultRates()
	in := input("2", "500.00", "30.00")
	in.UnitCost = dec("380.00")

	res, err := Compute(rates, in)
	require.NoError(t, err)

	assert.Equal(t, "1000.00", res.SellTotal.StringFixed(2))
	assert.Equal(t, "1030.00", res.TransactionValue.StringFixed(2))
	// [0,5000) card rate 3.99%: 1030 × 0.0399 = 41.097, rounds up to 41.10.
	assert.Equal(t, "41.10", res.Commission.StringFixed(2))
	assert.Equal(t, "5.00", res.Fee.StringFixed(2))
	assert.Equal(t, "983.90", res.NetReceived.StringFixed(2))
	assert.Equal(t, "760.00", res.TotalCost.StringFixed(2))
	assert.Equal(t, "270.00", res.GrossMargin.StringFixed(2))
	assert.Equal(t, "223.90", res.NetMargin.StringFixed(2))
}

func TestComputeWireNoFee(t *testing.T) {
	rates := DefaultRates()
	in := input("2", "500.00", "30.00")
	in.PaymentMethod = PaymentWire

	res, err := Compute(rates, in)
	require.NoError(t, err)
	// 1030 × 2.99% = 30.797, half-up to 30.80.
	assert.Equal(t, "30.80", res.Commission.StringFixed(2))
	assert.True(t, res.Fee.IsZero())
}

func TestTierBoundaryMonotonic(t *testing.T) {
	rates := DefaultRates()
	table := rates.sunStoreTable(CategoryInverters)

	low, ok := table.Find(dec("4999.99"))
	require.True(t, ok)
	high, ok := table.Find(dec("5000.00"))
	require.True(t, ok)

	assert.False(t, low.CardRate.Equal(high.CardRate), "boundary must select different tiers")
	assert.True(t, high.CardRate.LessThanOrEqual(low.CardRate), "rate must not increase with volume")
	assert.True(t, high.WireRate.LessThanOrEqual(low.WireRate))
}

func TestSecondSolFlatCommission(t *testing.T) {
	rates := DefaultRates()
	in := input("1", "200.00", "0")
	in.Channel = ChannelSecondSol
	in.Category = CategoryBatteries

	res, err := Compute(rates, in)
	require.NoError(t, err)
	assert.Equal(t, "10.00", res.Commission.StringFixed(2))
	assert.True(t, res.Fee.IsZero())
}

func TestSecondSolPerWattCommission(t *testing.T) {
	rates := DefaultRates()
	watt := dec("440")
	in := input("10", "95.00", "0")
	in.Channel = ChannelSecondSol
	in.Category = CategorySolarPanels
	in.PowerRatingW = &watt

	// Below the volume threshold: 10 × 440 W × 0.01 = 44.00.
	res, err := Compute(rates, in)
	require.NoError(t, err)
	assert.Equal(t, "44.00", res.Commission.StringFixed(2))

	// At the threshold the volume rate applies: 4400 × 0.005 = 22.00.
	in.CumulativeWatts = rates.SecondSolVolumeThresholdW
	res, err = Compute(rates, in)
	require.NoError(t, err)
	assert.Equal(t, "22.00", res.Commission.StringFixed(2))
}

func TestDirectChannelZeroCommission(t *testing.T) {
	in := input("3", "150.00", "12.50")
	in.Channel = ChannelDirect

	res, err := Compute(DefaultRates(), in)
	require.NoError(t, err)
	assert.True(t, res.Commission.IsZero())
	assert.True(t, res.Fee.IsZero())
	assert.True(t, res.NetReceived.Equal(res.TransactionValue))
}

func TestComputeDeterministic(t *testing.T) {
	rates := DefaultRates()
	in := input("3", "333.33", "17.77")
	in.UnitCost = dec("250.10")
	in.ShippingCost = dec("14.20")

	first, err := Compute(rates, in)
	require.NoError(t, err)
	second, err := Compute(rates, in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNetMarginPctZeroValue(t *testing.T) {
	in := input("0", "0", "0")
	in.Channel = ChannelDirect

	res, err := Compute(DefaultRates(), in)
	require.NoError(t, err)
	assert.True(t, res.NetMarginPct.IsZero())
}

func TestRateTableFindOpenEnded(t *testing.T) {
	rates := DefaultRates()
	tier, ok := rates.SunStoreDefault.Find(dec("1000000"))
	require.True(t, ok)
	assert.Nil(t, tier.Max)
}

func TestUnknownChannelRejected(t *testing.T) {
	in := input("1", "1.00", "0")
	in.Channel = Channel("ebay")
	_, err := Compute(DefaultRates(), in)
	assert.Error(t, err)
}
