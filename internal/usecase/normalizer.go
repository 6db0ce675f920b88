package usecase

import (
	"regexp"
	"strings"
)

// unitVocabulary lists the quantity units stripped from product names.
// Order matters for the regex alternation: longer tokens first so "grams"
// wins over "g".
var unitVocabulary = []string{
	"grams", "gm", "kg", "g", "litre", "liter", "lt", "l", "ml",
	"pieces", "piece", "pcs", "pkt", "pack",
}

// Package-level compiled regex patterns for performance
var (
	quantityUnitRegex    = regexp.MustCompile(`\b\d+(\.\d+)?\s*(` + strings.Join(unitVocabulary, "|") + `)\b`)
	bareUnitRegex        = regexp.MustCompile(`\b(` + strings.Join(unitVocabulary, "|") + `)\b`)
	nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9\s]`)
	multipleSpacesRegex  = regexp.MustCompile(`\s+`)
)

// NormalizeProductName canonicalizes a raw product name into the lowercase,
// unit-stripped, punctuation-stripped form used as the join key across all
// aggregation projections. Total and idempotent:
// NormalizeProductName(NormalizeProductName(x)) == NormalizeProductName(x).
//
// Note that a bare unit token is stripped wherever it appears, even when
// used as an ordinary word mid-sentence. Previously aggregated statistics
// are keyed on this exact behavior, so it must not change.
func NormalizeProductName(raw string) string {
	if raw == "" {
		return ""
	}

	normalized := strings.ToLower(raw)

	// Quantities with units, like "1kg", "500 g" or "1.5l"
	normalized = quantityUnitRegex.ReplaceAllString(normalized, " ")

	// Punctuation becomes a space rather than nothing so adjacent tokens
	// do not fuse together
	normalized = nonAlphanumericRegex.ReplaceAllString(normalized, " ")

	// Remaining standalone unit tokens
	normalized = bareUnitRegex.ReplaceAllString(normalized, " ")

	normalized = multipleSpacesRegex.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}
