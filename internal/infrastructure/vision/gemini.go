// Package vision provides the OCR backend used by bill ingestion. The
// backend itself is treated as a black box that turns a receipt image into
// raw text; everything past that point is the parser's problem.
package vision

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// ocrPrompt asks for a verbatim transcription so the line structure the
// receipt parser depends on survives
const ocrPrompt = "Transcribe all text on this receipt image exactly as printed, " +
	"one output line per printed line, top to bottom. " +
	"Output plain text only, no commentary and no formatting."

// GeminiConfig holds configuration for the Gemini OCR client
type GeminiConfig struct {
	APIKey             string
	Model              string
	Timeout            time.Duration
	RequestsPerMinute  int
	EnableDebugLogging bool
}

// GeminiClient implements domain.OCRClient using Google Gemini vision
type GeminiClient struct {
	client             *genai.Client
	model              *genai.GenerativeModel
	limiter            *rate.Limiter
	timeout            time.Duration
	enableDebugLogging bool
}

// NewGeminiClient creates a new Gemini-backed OCR client
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	modelName := config.Model
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	rpm := config.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 5)

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiClient{
		client:             client,
		model:              client.GenerativeModel(modelName),
		limiter:            limiter,
		timeout:            timeout,
		enableDebugLogging: config.EnableDebugLogging,
	}, nil
}

// DetectText transcribes the receipt image at imagePath into raw text.
// The call is rate limited and bounded by the configured timeout.
func (g *GeminiClient) DetectText(ctx context.Context, imagePath string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("reading image %s: %w", imagePath, err)
	}

	parts := []genai.Part{
		genai.ImageData(imageFormat(imagePath), imageData),
		genai.Text(ocrPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}

	text := cleanResponseText(builder.String())
	if g.enableDebugLogging {
		log.Printf("[OCR] %s: %d byte(s) of text", filepath.Base(imagePath), len(text))
	}
	return text, nil
}

// Close closes the underlying Gemini client
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// imageFormat maps a file extension to the format suffix genai expects
// (e.g. "png", not "image/png")
func imageFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".webp":
		return "webp"
	default:
		return "png"
	}
}

// cleanResponseText strips markdown fences the model sometimes wraps the
// transcription in, preserving interior newlines
func cleanResponseText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
