package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var catalog = []string{"SUN2000-12K-MAP0", "LUNA2000-5-S0", "JKM440N-54HL4R-V"}

func TestBestRefMatchExact(t *testing.T) {
	ref, ok := BestRefMatch(catalog, "SUN2000-12K-MAP0")
	assert.True(t, ok)
	assert.Equal(t, "SUN2000-12K-MAP0", ref)

	ref, ok = BestRefMatch(catalog, "sun2000-12k-map0")
	assert.True(t, ok)
	assert.Equal(t, "SUN2000-12K-MAP0", ref)
}

func TestBestRefMatchStrippedPrefix(t *testing.T) {
	ref, ok := BestRefMatch(catalog, "HUAWEI SUN2000-12K-MAP0")
	assert.True(t, ok)
	assert.Equal(t, "SUN2000-12K-MAP0", ref)

	ref, ok = BestRefMatch(catalog, "HUAWEI-LUNA2000-5-S0")
	assert.True(t, ok)
	assert.Equal(t, "LUNA2000-5-S0", ref)
}

func TestBestRefMatchModelInParens(t *testing.T) {
	ref, ok := BestRefMatch(catalog, "Hybrid Wechselrichter 12kW (SUN2000-12K-MAP0)")
	assert.True(t, ok)
	assert.Equal(t, "SUN2000-12K-MAP0", ref)
}

func TestBestRefMatchSubstring(t *testing.T) {
	ref, ok := BestRefMatch(catalog, "1x JKM440N-54HL4R-V Tiger Neo full black")
	assert.True(t, ok)
	assert.Equal(t, "JKM440N-54HL4R-V", ref)
}

func TestBestRefMatchMultiSegment(t *testing.T) {
	ref, ok := BestRefMatch(catalog, "MAP0 SUN2000 12K new generation")
	assert.True(t, ok)
	assert.Equal(t, "SUN2000-12K-MAP0", ref)
}

func TestBestRefMatchNone(t *testing.T) {
	_, ok := BestRefMatch(catalog, "SMA Tripower 10.0")
	assert.False(t, ok)

	_, ok = BestRefMatch(nil, "SUN2000-12K-MAP0")
	assert.False(t, ok)

	_, ok = BestRefMatch(catalog, "")
	assert.False(t, ok)
}

func TestIsBrandItem(t *testing.T) {
	assert.True(t, IsBrandItem("HW-12K", "Huawei SUN2000-12K-MAP0"))
	assert.True(t, IsBrandItem("", "LUNA2000-5-S0 storage"))
	assert.False(t, IsBrandItem("SMA-TP10", "SMA Tripower"))
}

func TestIsShippingLine(t *testing.T) {
	assert.True(t, IsShippingLine("", "Shipping (standard)"))
	assert.True(t, IsShippingLine("", "Versandkosten"))
	assert.True(t, IsShippingLine("SHIP-STD", "Standardversand DE"))
	assert.False(t, IsShippingLine("HW-12K", "Huawei SUN2000-12K-MAP0"))
}
