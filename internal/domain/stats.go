package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// ShopItemStat is the running price statistic for one normalized product
// name at one shop. Keyed by (ShopID, NormalizedName). Occurrences only
// ever grows; AvgUnitPrice == SumUnitPrice / Occurrences after every update.
type ShopItemStat struct {
	ShopID         string    `json:"shopId"`
	NormalizedName string    `json:"normalizedName"`
	Category       string    `json:"category"`
	Unit           string    `json:"unit"`
	Occurrences    int       `json:"occurrences"`
	SumUnitPrice   float64   `json:"sumUnitPrice"`
	MinUnitPrice   float64   `json:"minUnitPrice"`
	AvgUnitPrice   float64   `json:"avgUnitPrice"`
	LastUpdatedAt  time.Time `json:"lastUpdatedAt"`
}

// GlobalItemStat is the same statistic aggregated across all shops,
// keyed by NormalizedName alone.
type GlobalItemStat struct {
	NormalizedName string    `json:"normalizedName"`
	Category       string    `json:"category"`
	Unit           string    `json:"unit"`
	Occurrences    int       `json:"occurrences"`
	SumUnitPrice   float64   `json:"sumUnitPrice"`
	MinUnitPrice   float64   `json:"minUnitPrice"`
	AvgUnitPrice   float64   `json:"avgUnitPrice"`
	LastUpdatedAt  time.Time `json:"lastUpdatedAt"`
}

// RawExample is a deduplicated original product-name string seen for a
// normalized name, kept for display purposes with a seen counter.
type RawExample struct {
	RawName    string    `json:"rawName"`
	Count      int       `json:"count"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// ShopItemKey builds the document key for a ShopItemStat
func ShopItemKey(shopID, normalizedName string) string {
	return shopID + "_" + normalizedName
}

// ExampleID derives the stable document ID for a RawExample. The hash is
// fed the normalized name and the raw name as two discrete updates, so the
// ID is sensitive to the boundary between them as well as to case.
func ExampleID(normalizedName, rawName string) string {
	h := sha1.New()
	h.Write([]byte(normalizedName))
	h.Write([]byte(rawName))
	return hex.EncodeToString(h.Sum(nil))[:10]
}
