package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/billbuddy/backend/config"
	httpDelivery "github.com/billbuddy/backend/internal/delivery/http"
	"github.com/billbuddy/backend/internal/infrastructure/cache"
	"github.com/billbuddy/backend/internal/infrastructure/store"
	"github.com/billbuddy/backend/internal/infrastructure/vision"
	"github.com/billbuddy/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting BillBuddy Backend v1.0.0")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)
	log.Printf("Store: %s", cfg.Store.Path)

	debug := cfg.Server.Environment == "development"

	// Initialize infrastructure dependencies
	boltStore, err := store.NewBolt(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer boltStore.Close()

	ocrClient, err := vision.NewGeminiClient(context.Background(), vision.GeminiConfig{
		APIKey:             cfg.OCR.APIKey,
		Model:              cfg.OCR.Model,
		Timeout:            cfg.OCR.Timeout,
		RequestsPerMinute:  cfg.OCR.RequestsPerMinute,
		EnableDebugLogging: debug,
	})
	if err != nil {
		log.Fatalf("Failed to create OCR client: %v", err)
	}
	defer ocrClient.Close()
	log.Printf("OCR: model=%s timeout=%s", cfg.OCR.Model, cfg.OCR.Timeout)

	memoryCache := cache.NewMemoryCache()

	// Initialize usecase layer
	aggregator := usecase.NewAggregationService(boltStore, usecase.AggregationConfig{
		MaxRetries:         cfg.Aggregation.MaxRetries,
		RetryBackoff:       cfg.Aggregation.RetryBackoff,
		EnableDebugLogging: cfg.Aggregation.EnableDebugLogging || debug,
	})

	parser := usecase.NewReceiptParser(debug)

	ingestion := usecase.NewIngestionService(
		boltStore, boltStore, ocrClient, parser, aggregator,
		usecase.IngestionConfig{
			OCRTimeout:         cfg.OCR.Timeout,
			EnableDebugLogging: debug,
		},
	)

	query := usecase.NewQueryService(
		boltStore, boltStore, boltStore, memoryCache,
		usecase.QueryConfig{
			SimilarityThreshold: cfg.Query.SimilarityThreshold,
			SimilarTopN:         cfg.Query.SimilarTopN,
			CandidateLimit:      cfg.Query.CandidateLimit,
			CacheTTL:            cfg.Query.CacheTTL,
			EnableDebugLogging:  cfg.Query.EnableDebugLogging || debug,
		},
	)

	log.Printf("Query: threshold=%.2f topN=%d candidates=%d",
		cfg.Query.SimilarityThreshold, cfg.Query.SimilarTopN, cfg.Query.CandidateLimit)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(ingestion, query)

	// Setup router; token verification is an external collaborator wired
	// in at the edge
	router := httpDelivery.SetupRouter(cfg, handler, newTokenVerifier())

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server listening on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
