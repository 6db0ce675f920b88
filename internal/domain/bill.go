package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// BillStatus tracks a bill through the ingestion pipeline
type BillStatus string

const (
	// BillStatusPendingOCR means the bill image is waiting for text detection
	BillStatusPendingOCR BillStatus = "pending_ocr"
	// BillStatusProcessed is the terminal success state
	BillStatusProcessed BillStatus = "processed"
	// BillStatusFailed is the terminal failure state; ErrorMessage carries the reason
	BillStatusFailed BillStatus = "failed"
)

const (
	// ParseWarningNoItems marks a bill whose OCR text yielded no line
	// items. The bill still reaches the processed state.
	ParseWarningNoItems = "NO_ITEMS_PARSED"

	// UnknownShopID is used when no shop name could be read off a receipt
	UnknownShopID = "unknown"
)

// Bill represents one uploaded receipt and its ingestion state
type Bill struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	ShopID         string     `json:"shopId,omitempty"`
	ShopName       string     `json:"shopName,omitempty"`
	ImagePath      string     `json:"imagePath"`
	Status         BillStatus `json:"status"`
	Currency       string     `json:"currency"`
	OCRTextPreview string     `json:"ocrTextPreview,omitempty"`
	ParseWarning   string     `json:"parseWarning,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	TotalAmount    float64    `json:"totalAmount"`
	CreatedAt      time.Time  `json:"createdAt"`
	ProcessedAt    time.Time  `json:"processedAt,omitempty"`
	FailedAt       time.Time  `json:"failedAt,omitempty"`
}

// RawLineItem is one line extracted from OCR text before normalization.
// Ephemeral: consumed immediately by the ingestion pipeline.
type RawLineItem struct {
	RawName    string  `json:"rawName"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unitPrice"`
	TotalPrice float64 `json:"totalPrice"`
}

// ParsedReceipt is the output of the receipt parser
type ParsedReceipt struct {
	ShopName string        `json:"shopName,omitempty"`
	Items    []RawLineItem `json:"items"`
}

// BillItem is a persisted, normalized line item derived from one bill
type BillItem struct {
	ID             string    `json:"id"`
	BillID         string    `json:"billId"`
	UserID         string    `json:"userId"`
	ShopID         string    `json:"shopId"`
	RawName        string    `json:"rawName"`
	NormalizedName string    `json:"normalizedName"`
	Category       string    `json:"category"`
	Quantity       int       `json:"quantity"`
	Unit           string    `json:"unit"`
	UnitPrice      float64   `json:"unitPrice"`
	TotalPrice     float64   `json:"totalPrice"`
	CreatedAt      time.Time `json:"createdAt"`
}

// BillItemObservation is the aggregation engine's input: one valid price
// observation for a normalized product name at one shop visit
type BillItemObservation struct {
	RawName        string  `json:"rawName"`
	NormalizedName string  `json:"normalizedName"`
	Category       string  `json:"category"`
	Unit           string  `json:"unit"`
	UnitPrice      float64 `json:"unitPrice"`
}

// GeoPoint is a latitude/longitude pair
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Shop represents a retail shop recognized from receipts
type Shop struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Address  string   `json:"address,omitempty"`
	Location GeoPoint `json:"location"`
}

// ShopIDForName derives a stable shop ID from a shop-name guess.
// The name is lowercased and whitespace-normalized before hashing so that
// minor OCR spacing differences map to the same shop.
func ShopIDForName(shopName string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(shopName)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}
