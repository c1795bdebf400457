package core

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// tokenMatchRatio is the share of a description's significant tokens that must appear in
// an item name for a fuzzy match.
var tokenMatchRatio = decimal.NewFromFloat(0.75)

// NormalizeDescription lower-cases and trims a description or item name. It is also the
// backlog key for unmapped items.
func NormalizeDescription(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SignificantTokens splits a normalized description on whitespace and keeps tokens longer
// than two characters. Pack-size and measure tokens ("5lb", "330ml", "12") carry a digit
// and are dropped: OCR places them inconsistently and item names usually omit them.
func SignificantTokens(normalized string) []string {
	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if utf8.RuneCountInString(tok) <= 2 || strings.IndexFunc(tok, unicode.IsDigit) >= 0 {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// FuzzyMatch reports whether an invoice description plausibly names a PO item: either
// normalized string contains the other, or at least 75% of the description's significant
// tokens occur as substrings of the item name. Since digit-bearing tokens are not significant,
// pack sizes never tell items apart: "Chicken Wings 40ct" matches both "Chicken Wings Frozen"
// and "Chicken Wings 20ct". Exact item IDs are the only way to separate such lines.
func FuzzyMatch(description, itemName string) bool {
	desc := NormalizeDescription(description)
	name := NormalizeDescription(itemName)
	if desc == "" || name == "" {
		return false
	}
	if strings.Contains(desc, name) || strings.Contains(name, desc) {
		return true
	}

	tokens := SignificantTokens(desc)
	if len(tokens) == 0 {
		return false
	}
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(name, tok) {
			hits++
		}
	}
	ratio := decimal.NewFromInt(int64(hits)).Div(decimal.NewFromInt(int64(len(tokens))))
	return ratio.GreaterThanOrEqual(tokenMatchRatio)
}

// MatchLine pairs an invoice line with a PO item. An exact item-id match against an item
// with remaining quantity wins with ConfidenceHigh; otherwise the first item (in the order
// given) that fuzzy-matches wins with ConfidenceMedium. Returns nil, ConfidenceUnmapped
// when nothing matches.
func MatchLine(line InvoiceLine, items []POItem) (*POItem, Confidence) {
	if line.ItemID != nil {
		for i := range items {
			it := &items[i]
			if it.ItemID != nil && *it.ItemID == *line.ItemID && it.RemainingQuantity.IsPositive() {
				return it, ConfidenceHigh
			}
		}
	}

	for i := range items {
		if FuzzyMatch(line.Description, items[i].Name) {
			return &items[i], ConfidenceMedium
		}
	}

	return nil, ConfidenceUnmapped
}
