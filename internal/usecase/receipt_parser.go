package usecase

import (
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/billbuddy/backend/internal/domain"
)

// maxShopNameLength bounds the shop-name guess taken from the first line
const maxShopNameLength = 60

// priceRegex matches a trailing price token: a decimal with exactly two
// fractional digits, or a bare integer
var priceRegex = regexp.MustCompile(`(\d+\.\d{2}|\d+)\s*$`)

// ReceiptParser converts raw OCR text into a shop-name guess and a list of
// raw line items. It never fails: lines without a recognizable trailing
// price, or with an empty name portion, are dropped silently, and an input
// with no items at all yields an empty list rather than an error.
type ReceiptParser struct {
	enableDebugLogging bool
}

// NewReceiptParser creates a new receipt parser
func NewReceiptParser(enableDebugLogging bool) *ReceiptParser {
	return &ReceiptParser{enableDebugLogging: enableDebugLogging}
}

// Parse splits OCR text into lines, takes the first non-empty line as the
// shop-name guess, and emits one RawLineItem per line that ends in a price.
func (p *ReceiptParser) Parse(ocrText string) domain.ParsedReceipt {
	lines := strings.Split(ocrText, "\n")

	var shopName string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if len(trimmed) > maxShopNameLength {
			trimmed = trimmed[:maxShopNameLength]
		}
		shopName = trimmed
		break
	}

	var items []domain.RawLineItem
	for _, line := range lines {
		loc := priceRegex.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}

		price, err := strconv.ParseFloat(line[loc[2]:loc[3]], 64)
		if err != nil {
			continue
		}

		rawName := strings.TrimSpace(line[:loc[0]])
		if rawName == "" {
			continue
		}

		items = append(items, domain.RawLineItem{
			RawName:    rawName,
			Quantity:   1,
			UnitPrice:  price,
			TotalPrice: price,
		})

		if p.enableDebugLogging {
			log.Printf("[PARSE] Line %q -> item %q @ %.2f", line, rawName, price)
		}
	}

	if p.enableDebugLogging {
		log.Printf("[PARSE] Shop guess %q, %d item(s)", shopName, len(items))
	}

	return domain.ParsedReceipt{ShopName: shopName, Items: items}
}
