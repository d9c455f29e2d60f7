// Package extract provides pure text extraction for inbound order signals:
// negotiation ids, product reference codes, monetary amounts and channel
// detection. Extraction never fails; callers get whatever was found plus a
// list of named gaps for anything that was not.
package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
)

const (
	GapNegotiationID = "negotiation_id_not_detected"
	GapChannel       = "channel_not_detected"
	GapProductRefs   = "product_refs_not_detected"
)

// Confidence weights. Together they sum to 1.0.
const (
	weightChannel       = 0.35
	weightNegotiationID = 0.40
	weightProductRefs   = 0.25
)

var (
	negotiationIDRe = regexp.MustCompile(`#([A-Za-z0-9]{6,40})\b`)
	productRefRe    = regexp.MustCompile(`\b[A-Z0-9][A-Z0-9-]{4,38}[A-Z0-9]\b`)
	amountRe        = regexp.MustCompile(`(\d[\d.,]*)\s?(?:€|EUR)`)
	digitsHyphensRe = regexp.MustCompile(`^[\d-]+$`)
)

// Ship-notice and boilerplate tokens that satisfy the product-ref shape but
// never identify a product.
var refBlacklist = map[string]struct{}{
	"DHL-PAKET":           {},
	"DPD-CLASSIC":         {},
	"GLS-PAKET":           {},
	"UPS-STANDARD":        {},
	"SEPA-UEBERWEISUNG":   {},
	"TRACKING-ID":         {},
	"COVID-19":            {},
	"CO2-NEUTRAL":         {},
	"E-MAIL":              {},
	"NEWSLETTER-ABMELDEN": {},
}

// Structural suffixes that mark boilerplate tokens (domains and shop slugs),
// not product references.
var refSuffixBlacklist = []string{"-DE", "-COM", "-NET", "-SHOP", "-STORE"}

// channelDomains maps a detection substring to its channel.
var channelDomains = []struct {
	needle  string
	channel margin.Channel
	label   string
}{
	{"sun.store", margin.ChannelSunStore, "Sun.store"},
	{"sunstore", margin.ChannelSunStore, "Sun.store"},
	{"secondsol", margin.ChannelSecondSol, "SecondSol"},
}

// Result is the outcome of extracting from one message or payload.
type Result struct {
	NegotiationID string
	ProductRefs   []string
	Amounts       []decimal.Decimal
	Channel       margin.Channel
	ChannelLabel  string
	Confidence    float64
	Gaps          []string
}

// FromText extracts everything of interest from a message. sender may be
// empty for non-email payloads.
func FromText(sender, subject, body string) Result {
	text := subject + "\n" + body
	res := Result{
		NegotiationID: NegotiationID(text),
		ProductRefs:   ProductRefs(text),
		Amounts:       Amounts(text),
	}
	res.Channel, res.ChannelLabel = DetectChannel(sender, subject, body)

	if res.Channel != "" {
		res.Confidence += weightChannel
	} else {
		res.Gaps = append(res.Gaps, GapChannel)
	}
	if res.NegotiationID != "" {
		res.Confidence += weightNegotiationID
	} else {
		res.Gaps = append(res.Gaps, GapNegotiationID)
	}
	if len(res.ProductRefs) > 0 {
		res.Confidence += weightProductRefs
	} else {
		res.Gaps = append(res.Gaps, GapProductRefs)
	}
	return res
}

// NegotiationID returns the first #-prefixed alphanumeric token of length
// 6-40, or "".
func NegotiationID(text string) string {
	m := negotiationIDRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// ProductRefs returns candidate product reference codes: uppercase
// alphanumeric-with-hyphen tokens of length 6-40 carrying at least one digit
// and one hyphen, minus known boilerplate. Order of first appearance,
// deduplicated.
func ProductRefs(text string) []string {
	var refs []string
	seen := make(map[string]struct{})
	for _, tok := range productRefRe.FindAllString(text, -1) {
		if !IsProductRef(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		refs = append(refs, tok)
	}
	return refs
}

// IsProductRef reports whether a single token passes the product-reference
// shape and blacklist checks.
func IsProductRef(tok string) bool {
	if len(tok) < 6 || len(tok) > 40 {
		return false
	}
	if !strings.Contains(tok, "-") {
		return false
	}
	if !strings.ContainsAny(tok, "0123456789") {
		return false
	}
	// Dates, phone numbers, tracking segments.
	if digitsHyphensRe.MatchString(tok) {
		return false
	}
	if _, bad := refBlacklist[tok]; bad {
		return false
	}
	for _, suffix := range refSuffixBlacklist {
		if strings.HasSuffix(tok, suffix) {
			return false
		}
	}
	return true
}

// Amounts returns the currency-suffixed amounts found in the text. When both
// separators occur in one number, the right-most is the decimal separator.
func Amounts(text string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range amountRe.FindAllStringSubmatch(text, -1) {
		if v, ok := ParseAmount(m[1]); ok {
			out = append(out, v)
		}
	}
	return out
}

// ParseAmount normalizes a locale-ambiguous numeric token. "1.234,56" and
// "1,234.56" both parse to 1234.56.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	comma := strings.LastIndex(raw, ",")
	dot := strings.LastIndex(raw, ".")

	var normalized string
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			normalized = strings.ReplaceAll(raw, ".", "")
			normalized = strings.Replace(normalized, ",", ".", 1)
		} else {
			normalized = strings.ReplaceAll(raw, ",", "")
		}
	case comma >= 0:
		// A lone comma is a decimal separator unless it groups thousands
		// exactly (e.g. "1,234").
		if len(raw)-comma-1 == 3 && comma > 0 {
			normalized = strings.ReplaceAll(raw, ",", "")
		} else {
			normalized = strings.Replace(raw, ",", ".", 1)
		}
	default:
		if dot >= 0 && len(raw)-dot-1 == 3 && dot > 0 {
			normalized = strings.ReplaceAll(raw, ".", "")
		} else {
			normalized = raw
		}
	}

	v, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

// DetectChannel matches sender, subject and body against known channel
// domains. The first match wins.
func DetectChannel(sender, subject, body string) (margin.Channel, string) {
	haystack := strings.ToLower(sender + " " + subject + " " + body)
	for _, cd := range channelDomains {
		if strings.Contains(haystack, cd.needle) {
			return cd.channel, cd.label
		}
	}
	return "", ""
}
