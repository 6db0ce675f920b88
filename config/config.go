package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	OCR         OCRConfig
	Store       StoreConfig
	Aggregation AggregationConfig
	Query       QueryConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// OCRConfig holds OCR backend configuration
type OCRConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// StoreConfig holds persistence configuration
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// AggregationConfig holds aggregation-engine configuration
type AggregationConfig struct {
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
	EnableDebugLogging bool          `mapstructure:"enable_debug_logging"`
}

// QueryConfig holds query-layer configuration
type QueryConfig struct {
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	SimilarTopN         int           `mapstructure:"similar_top_n"`
	CandidateLimit      int           `mapstructure:"candidate_limit"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	EnableDebugLogging  bool          `mapstructure:"enable_debug_logging"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/billbuddy/")

	// Environment variable settings
	v.SetEnvPrefix("BILLBUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// OCR defaults. The api_key default registers the key with viper so the
	// env var binds during Unmarshal.
	v.SetDefault("ocr.api_key", "")
	v.SetDefault("ocr.model", "gemini-2.5-pro")
	v.SetDefault("ocr.timeout", "60s")
	v.SetDefault("ocr.requests_per_minute", 60)

	// Store defaults
	v.SetDefault("store.path", "billbuddy.db")

	// Aggregation defaults
	v.SetDefault("aggregation.max_retries", 5)
	v.SetDefault("aggregation.retry_backoff", "50ms")

	// Query defaults
	v.SetDefault("query.similarity_threshold", 0.3)
	v.SetDefault("query.similar_top_n", 10)
	v.SetDefault("query.candidate_limit", 200)
	v.SetDefault("query.cache_ttl", "10m")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.OCR.APIKey == "" {
		return fmt.Errorf("OCR API key is required (set BILLBUDDY_OCR_API_KEY)")
	}

	if config.Store.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}

	if config.Query.SimilarityThreshold < 0 || config.Query.SimilarityThreshold >= 1 {
		return fmt.Errorf("similarity threshold must be in [0, 1), got: %v", config.Query.SimilarityThreshold)
	}

	return nil
}
