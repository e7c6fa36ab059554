package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	// LLM settings
	LLMProvider string // openai (any OpenAI-compatible endpoint) or gemini
	LLMAPIKey   string
	LLMBaseURL  string
	LLMModel    string
	LLMRPM      int // requests per minute across all LLM calls

	// Fetch settings
	SourcesFile    string
	RequestTimeout time.Duration
	NewArticleAge  time.Duration // freshness cutoff for fetched articles
	TestMode       bool

	// Processing limits
	MaxPerRegion  int // translations per region per run, overflow is deferred
	MaxClassify   int // classification calls per run
	MaxArticleAge time.Duration

	// Storage
	DataDir     string
	StoreDriver string
	DatabaseURL string

	// Geocoding
	NominatimURL    string
	GeocodeCacheURL string // redis://... or empty for in-memory

	// Scheduling / monitoring
	Schedule         string
	EnableMonitoring bool
	MonitoringPort   string

	Debug bool
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	testMode := envFlag("TEST_MODE")
	maxPerRegion := 80
	if testMode {
		maxPerRegion = 3
	}

	provider := getEnvOrDefault("LLM_PROVIDER", ProviderOpenAI)
	model := "MiniMax-M2.5"
	if provider == ProviderGemini {
		model = "gemini-1.5-flash"
	}

	cfg := &Config{
		LLMProvider:    provider,
		LLMBaseURL:     getEnvOrDefault("LLM_BASE_URL", "https://api.minimax.io/v1"),
		LLMModel:       getEnvOrDefault("LLM_MODEL", model),
		LLMRPM:         getEnvIntOrDefault("LLM_RPM", 20),
		SourcesFile:    getEnvOrDefault("SOURCES_FILE", "configs/sources.yaml"),
		RequestTimeout: 15 * time.Second,
		NewArticleAge:  time.Duration(getEnvIntOrDefault("MAX_NEW_ARTICLE_AGE_MINUTES", 30)) * time.Minute,
		MaxPerRegion:   getEnvIntOrDefault("MAX_PER_REGION", maxPerRegion),
		MaxClassify:    getEnvIntOrDefault("MAX_CLASSIFY", 30),
		MaxArticleAge:  time.Duration(getEnvIntOrDefault("MAX_ARTICLE_AGE_DAYS", 7)) * 24 * time.Hour,
		DataDir:        getEnvOrDefault("DATA_DIR", "data"),
		StoreDriver:    getEnvOrDefault("STORE_DRIVER", StoreFile),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		NominatimURL:   getEnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		Schedule:       getEnvOrDefault("SCHEDULE", "*/15 * * * *"),
		MonitoringPort: getEnvOrDefault("MONITORING_PORT", "8080"),
	}

	cfg.GeocodeCacheURL = os.Getenv("GEOCODE_CACHE_URL")
	cfg.TestMode = testMode
	cfg.EnableMonitoring = envFlag("ENABLE_HTTP_MONITORING")
	cfg.Debug = envFlag("DEBUG")

	switch cfg.LLMProvider {
	case ProviderGemini:
		cfg.LLMAPIKey = os.Getenv("GEMINI_API_KEY")
	default:
		cfg.LLMAPIKey = getEnvOrDefault("LLM_API_KEY", os.Getenv("MINIMAX_API_KEY"))
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envFlag accepts 1, true and yes in any case.
func envFlag(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

// Validate checks settings every command needs. The LLM key is checked
// separately by RequireLLM since some commands never call the model.
func (c *Config) Validate() error {
	if c.StoreDriver != StoreFile && c.StoreDriver != StorePostgres {
		return fmt.Errorf("STORE_DRIVER must be %q or %q", StoreFile, StorePostgres)
	}
	if c.StoreDriver == StorePostgres && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
	}
	if c.LLMProvider != ProviderOpenAI && c.LLMProvider != ProviderGemini {
		return fmt.Errorf("LLM_PROVIDER must be %q or %q", ProviderOpenAI, ProviderGemini)
	}
	return nil
}

// RequireLLM reports a missing API key for the configured provider.
func (c *Config) RequireLLM() error {
	if c.LLMAPIKey != "" {
		return nil
	}
	if c.LLMProvider == ProviderGemini {
		return errors.New("GEMINI_API_KEY is required")
	}
	return errors.New("LLM_API_KEY or MINIMAX_API_KEY is required")
}
