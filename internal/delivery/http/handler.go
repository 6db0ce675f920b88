package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/billbuddy/backend/internal/domain"
	"github.com/billbuddy/backend/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	ingestion *usecase.IngestionService
	query     *usecase.QueryService
}

// NewHandler creates a new HTTP handler
func NewHandler(ingestion *usecase.IngestionService, query *usecase.QueryService) *Handler {
	return &Handler{ingestion: ingestion, query: query}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "billbuddy-backend",
		"version": "1.0.0",
	})
}

// processBillRequest is the body for POST /api/v1/bills/process
type processBillRequest struct {
	BillID    string `json:"billId"`
	ImagePath string `json:"imagePath" binding:"required"`
}

// ProcessBill triggers ingestion of one uploaded bill image and responds
// with the bill's terminal state. The storage-event collaborator calls
// this once per finished upload; it supplies the bill ID derived from the
// object path, or lets the server mint one.
func (h *Handler) ProcessBill(c *gin.Context) {
	var req processBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"message": "imagePath is required"},
		})
		return
	}

	billID := req.BillID
	if billID == "" {
		billID = uuid.NewString()
	}

	bill, err := h.ingestion.ProcessBill(c.Request.Context(), c.GetString(userIDKey), billID, req.ImagePath)
	if err != nil {
		// A failed ingestion still has a bill record with the terminal
		// failed state; surface both
		if bill != nil {
			c.JSON(statusForError(err), gin.H{
				"bill":  bill,
				"error": gin.H{"message": bill.ErrorMessage},
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bill": bill})
}

// GetBillComparison compares each item on the user's bill against the
// aggregated stats
func (h *Handler) GetBillComparison(c *gin.Context) {
	result, err := h.query.BillComparison(c.Request.Context(), c.GetString(userIDKey), c.Param("billId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetSimilarProducts lists products similar to a normalized name
func (h *Handler) GetSimilarProducts(c *gin.Context) {
	normalizedName := c.Query("normalizedName")
	category := c.Query("category")

	results, err := h.query.SimilarProducts(c.Request.Context(), normalizedName, category)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"normalizedName": normalizedName,
		"category":       category,
		"results":        results,
	})
}

// GetCheapestShops lists shops selling an item, cheapest first, optionally
// filtered to a radius around lat/lng
func (h *Handler) GetCheapestShops(c *gin.Context) {
	normalizedName := c.Query("normalizedName")

	var origin *domain.GeoPoint
	var radiusKm float64
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr != "" || lngStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr != nil || lngErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"message": "lat and lng must both be valid numbers"},
			})
			return
		}
		origin = &domain.GeoPoint{Lat: lat, Lng: lng}
		radiusKm, _ = strconv.ParseFloat(c.Query("radiusKm"), 64)
	}

	results, err := h.query.CheapestShops(c.Request.Context(), normalizedName, origin, radiusKm)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"normalizedName": normalizedName,
		"results":        results,
	})
}

// respondError maps a domain error to its transport status code
func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": gin.H{"message": err.Error()}})
}

// statusForError is the single place error kinds become HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRetryExhausted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
