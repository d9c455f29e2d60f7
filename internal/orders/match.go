package orders

import (
	"regexp"
	"strings"
)

// Catalog SKU matching works through an ordered chain of strategies, each
// returning a confident match or nothing. The order is fixed: exact,
// stripped-prefix, model-in-parentheses, substring, multi-segment. The first
// strategy that matches wins.

type refStrategy func(candidates []string, token string) (string, bool)

var refStrategies = []refStrategy{
	matchExact,
	matchStrippedPrefix,
	matchModelInParens,
	matchSubstring,
	matchMultiSegment,
}

var parenModelRe = regexp.MustCompile(`\(([A-Z0-9][A-Z0-9 -]*[A-Z0-9])\)`)

// Known vendor prefixes that item names and SKUs carry in front of the model
// code.
var vendorPrefixes = []string{"HUAWEI", "JINKO", "JA-SOLAR", "SUNGROW"}

// BestRefMatch resolves a raw item name or SKU against candidate product
// references.
func BestRefMatch(candidates []string, token string) (string, bool) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" || len(candidates) == 0 {
		return "", false
	}
	for _, strategy := range refStrategies {
		if ref, ok := strategy(candidates, token); ok {
			return ref, ok
		}
	}
	return "", false
}

func matchExact(candidates []string, token string) (string, bool) {
	for _, c := range candidates {
		if strings.EqualFold(c, token) {
			return c, true
		}
	}
	return "", false
}

// matchStrippedPrefix drops a leading vendor name ("HUAWEI SUN2000-12K-MAP0",
// "HUAWEI-SUN2000-12K-MAP0") and retries exact.
func matchStrippedPrefix(candidates []string, token string) (string, bool) {
	for _, prefix := range vendorPrefixes {
		for _, sep := range []string{" ", "-", "_"} {
			stripped, found := strings.CutPrefix(token, prefix+sep)
			if !found {
				continue
			}
			if ref, ok := matchExact(candidates, strings.TrimSpace(stripped)); ok {
				return ref, true
			}
		}
	}
	return "", false
}

// matchModelInParens extracts a parenthesized model code, e.g.
// "Hybrid Inverter 12kW (SUN2000-12K-MAP0)".
func matchModelInParens(candidates []string, token string) (string, bool) {
	for _, m := range parenModelRe.FindAllStringSubmatch(token, -1) {
		if ref, ok := matchExact(candidates, m[1]); ok {
			return ref, true
		}
	}
	return "", false
}

// matchSubstring accepts a candidate appearing whole inside the token. Short
// candidates are skipped to avoid accidental hits.
func matchSubstring(candidates []string, token string) (string, bool) {
	for _, c := range candidates {
		if len(c) >= 6 && strings.Contains(token, strings.ToUpper(c)) {
			return c, true
		}
	}
	return "", false
}

// matchMultiSegment requires every hyphen segment of a candidate to appear as
// a segment of the token, in any order. Catches reordered or re-separated
// listings like "MAP0 SUN2000 12K".
func matchMultiSegment(candidates []string, token string) (string, bool) {
	tokenSegs := splitSegments(token)
	if len(tokenSegs) < 2 {
		return "", false
	}
	for _, c := range candidates {
		candSegs := splitSegments(strings.ToUpper(c))
		if len(candSegs) < 2 {
			continue
		}
		all := true
		for s := range candSegs {
			if _, ok := tokenSegs[s]; !ok {
				all = false
				break
			}
		}
		if all {
			return c, true
		}
	}
	return "", false
}

func splitSegments(s string) map[string]struct{} {
	segs := make(map[string]struct{})
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == ' ' || r == '_' || r == '/' || r == ','
	}) {
		if part != "" {
			segs[part] = struct{}{}
		}
	}
	return segs
}

// IsBrandItem reports whether an accounting line item belongs to the product
// brands this tracker cares about, by SKU or display name.
func IsBrandItem(sku, name string) bool {
	hay := strings.ToUpper(sku + " " + name)
	for _, marker := range []string{"HUAWEI", "SUN2000", "LUNA2000", "SMARTGUARD", "EMMA-A"} {
		if strings.Contains(hay, marker) {
			return true
		}
	}
	return false
}

// shippingLineRe recognizes accounting line items that are shipping charges
// rather than products.
var shippingLineRe = regexp.MustCompile(`(?i)^(shipping|versand|livraison|transport|fracht)|(?i)\bship-`)

// IsShippingLine reports whether an accounting line item is a shipping line.
func IsShippingLine(sku, name string) bool {
	return shippingLineRe.MatchString(name) || shippingLineRe.MatchString(sku) ||
		strings.HasPrefix(strings.ToUpper(sku), "SHIPPING")
}
