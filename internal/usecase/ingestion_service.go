package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/billbuddy/backend/internal/domain"
)

// ocrTextPreviewLength bounds the OCR excerpt stored on the bill record
const ocrTextPreviewLength = 1000

// IngestionConfig holds configuration for the ingestion service
type IngestionConfig struct {
	OCRTimeout         time.Duration
	DefaultCurrency    string
	EnableDebugLogging bool
}

// IngestionService runs the whole pipeline for one uploaded bill: OCR,
// receipt parsing, normalization, bill-item persistence and aggregation.
// Bills end in a terminal processed or failed state; failure carries a
// human-readable message on the bill record.
type IngestionService struct {
	bills              domain.BillRepository
	shops              domain.ShopRepository
	ocr                domain.OCRClient
	parser             *ReceiptParser
	aggregator         *AggregationService
	ocrTimeout         time.Duration
	defaultCurrency    string
	enableDebugLogging bool
	now                func() time.Time
}

// NewIngestionService creates a new ingestion service with dependencies
func NewIngestionService(
	bills domain.BillRepository,
	shops domain.ShopRepository,
	ocr domain.OCRClient,
	parser *ReceiptParser,
	aggregator *AggregationService,
	config IngestionConfig,
) *IngestionService {
	ocrTimeout := config.OCRTimeout
	if ocrTimeout <= 0 {
		ocrTimeout = 60 * time.Second
	}

	currency := config.DefaultCurrency
	if currency == "" {
		currency = "INR"
	}

	return &IngestionService{
		bills:              bills,
		shops:              shops,
		ocr:                ocr,
		parser:             parser,
		aggregator:         aggregator,
		ocrTimeout:         ocrTimeout,
		defaultCurrency:    currency,
		enableDebugLogging: config.EnableDebugLogging,
		now:                time.Now,
	}
}

// ProcessBill ingests one bill image. Safe to call again for the same bill
// after a failure: previously derived line items are replaced before the
// new batch is aggregated, so a retry never double-counts at the bill-item
// level. The aggregation projections themselves are only touched once the
// new batch is in place.
func (s *IngestionService) ProcessBill(ctx context.Context, userID, billID, imagePath string) (*domain.Bill, error) {
	if userID == "" || billID == "" || imagePath == "" {
		return nil, domain.ErrInvalidArgument
	}

	bill := &domain.Bill{
		ID:        billID,
		UserID:    userID,
		ImagePath: imagePath,
		Status:    domain.BillStatusPendingOCR,
		Currency:  s.defaultCurrency,
		CreatedAt: s.now(),
	}
	if err := s.bills.SaveBill(ctx, bill); err != nil {
		return nil, fmt.Errorf("saving bill %s: %w", billID, err)
	}

	ocrText, err := s.detectText(ctx, imagePath)
	if err != nil {
		return s.failBill(ctx, bill, err)
	}

	bill.OCRTextPreview = truncate(ocrText, ocrTextPreviewLength)

	parsed := s.parser.Parse(ocrText)

	shopID := domain.UnknownShopID
	if parsed.ShopName != "" {
		shopID = domain.ShopIDForName(parsed.ShopName)
		shop := &domain.Shop{ID: shopID, Name: parsed.ShopName}
		if err := s.shops.UpsertShop(ctx, shop); err != nil {
			return s.failBill(ctx, bill, fmt.Errorf("upserting shop %s: %w", shopID, err))
		}
	}
	bill.ShopID = shopID
	bill.ShopName = parsed.ShopName

	billItems := make([]*domain.BillItem, 0, len(parsed.Items))
	observations := make([]domain.BillItemObservation, 0, len(parsed.Items))
	var totalAmount float64
	for i, item := range parsed.Items {
		normalizedName := NormalizeProductName(item.RawName)
		billItems = append(billItems, &domain.BillItem{
			ID:             fmt.Sprintf("%s_%d", billID, i),
			BillID:         billID,
			UserID:         userID,
			ShopID:         shopID,
			RawName:        item.RawName,
			NormalizedName: normalizedName,
			Category:       "unknown",
			Quantity:       item.Quantity,
			Unit:           "",
			UnitPrice:      item.UnitPrice,
			TotalPrice:     item.TotalPrice,
			CreatedAt:      s.now(),
		})
		observations = append(observations, domain.BillItemObservation{
			RawName:        item.RawName,
			NormalizedName: normalizedName,
			Category:       "unknown",
			Unit:           "",
			UnitPrice:      item.UnitPrice,
		})
		totalAmount += item.TotalPrice
	}

	if err := s.bills.ReplaceBillItems(ctx, billID, billItems); err != nil {
		return s.failBill(ctx, bill, fmt.Errorf("storing bill items: %w", err))
	}

	if len(billItems) == 0 {
		bill.ParseWarning = domain.ParseWarningNoItems
		if s.enableDebugLogging {
			log.Printf("[INGEST] Bill %s: no items parsed", billID)
		}
	}

	if err := s.aggregator.ApplyBillItems(ctx, shopID, observations); err != nil {
		return s.failBill(ctx, bill, fmt.Errorf("aggregating bill items: %w", err))
	}

	bill.Status = domain.BillStatusProcessed
	bill.TotalAmount = totalAmount
	bill.ProcessedAt = s.now()
	if err := s.bills.SaveBill(ctx, bill); err != nil {
		return nil, fmt.Errorf("saving processed bill %s: %w", billID, err)
	}

	if s.enableDebugLogging {
		log.Printf("[INGEST] Bill %s processed: shop=%s items=%d total=%.2f",
			billID, shopID, len(billItems), totalAmount)
	}

	return bill, nil
}

// detectText calls the OCR backend with a bounded timeout. An empty result
// is fatal for the ingestion, same as a backend failure.
func (s *IngestionService) detectText(ctx context.Context, imagePath string) (string, error) {
	ocrCtx, cancel := context.WithTimeout(ctx, s.ocrTimeout)
	defer cancel()

	text, err := s.ocr.DetectText(ocrCtx, imagePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrOCRFailure, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyOCRText
	}
	return text, nil
}

// failBill moves the bill to its terminal failed state and returns the
// original error. Stats are never mutated for a failed ingestion.
func (s *IngestionService) failBill(ctx context.Context, bill *domain.Bill, cause error) (*domain.Bill, error) {
	bill.Status = domain.BillStatusFailed
	bill.ErrorMessage = cause.Error()
	bill.FailedAt = s.now()

	if err := s.bills.SaveBill(ctx, bill); err != nil {
		log.Printf("[INGEST] Bill %s: failed to record failure state: %v", bill.ID, err)
	}

	return bill, cause
}

// truncate bounds s to n runes; the byte-length check is a fast path for
// strings that cannot exceed the limit
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
