package ingest

import (
	"strings"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
)

// categoryPrefixes maps well-known model-code prefixes to categories.
// Anything unrecognized falls back to accessories, the safest commission
// bracket to assume.
var categoryPrefixes = []struct {
	prefix   string
	category margin.Category
}{
	{"SUN2000", margin.CategoryInverters},
	{"SUN5000", margin.CategoryInverters},
	{"LUNA2000", margin.CategoryBatteries},
	{"JKM", margin.CategorySolarPanels},
	{"JAM", margin.CategorySolarPanels},
	{"TSM", margin.CategorySolarPanels},
	{"HVM", margin.CategorySolarPanels},
}

// CategoryForRef infers a product category from a reference code.
func CategoryForRef(ref string) margin.Category {
	upper := strings.ToUpper(ref)
	for _, cp := range categoryPrefixes {
		if strings.HasPrefix(upper, cp.prefix) {
			return cp.category
		}
	}
	return margin.CategoryAccessories
}
