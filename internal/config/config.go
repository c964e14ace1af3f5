package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Source holds parameters for the paginated source API client.
type Source struct {
	APIToken            string
	BaseURL             string
	PageLimit           int
	MaxPages            int
	RequestTimeout      time.Duration
	MaxElapsed          time.Duration
	RatePerSecond       float64
	BackoffBase         time.Duration
	MaxRateLimitRetries int
	MaxTransientRetries int
	NewsWindow          time.Duration
	NewsSymbolBatch     int
	NewsSymbolLimit     int
}

// Warehouse holds destination connection and load parameters.
type Warehouse struct {
	DSN          string
	BatchSize    int
	BatchRetries int
}

// Pipeline is the full configuration for one ETL run.
type Pipeline struct {
	Source
	Warehouse
	ElasticsearchAddr  string
	ElasticsearchIndex string
	KafkaBrokers       []string
	RejectsTopic       string
	DedupeCapacity     int
	DedupeTTL          time.Duration
}

// LoadPipeline builds a Pipeline config from environment variables.
func LoadPipeline() (*Pipeline, error) {
	c := &Pipeline{
		Source: Source{
			APIToken:            getEnv("MARKETAUX_API_TOKEN", ""),
			BaseURL:             getEnv("MARKETAUX_BASE_URL", "https://api.marketaux.com/v1"),
			PageLimit:           getInt("SOURCE_PAGE_LIMIT", 50),
			MaxPages:            getInt("SOURCE_MAX_PAGES", 200),
			RequestTimeout:      getDuration("SOURCE_REQUEST_TIMEOUT", "30s"),
			MaxElapsed:          getDuration("SOURCE_MAX_ELAPSED", "2m"),
			RatePerSecond:       getFloat("SOURCE_RATE_PER_SEC", 2),
			BackoffBase:         getDuration("SOURCE_BACKOFF_BASE", "500ms"),
			MaxRateLimitRetries: getInt("SOURCE_RATE_LIMIT_RETRIES", 5),
			MaxTransientRetries: getInt("SOURCE_TRANSIENT_RETRIES", 3),
			NewsWindow:          getDuration("NEWS_WINDOW", "168h"),
			NewsSymbolBatch:     getInt("NEWS_SYMBOL_BATCH", 5),
			NewsSymbolLimit:     getInt("NEWS_SYMBOL_LIMIT", 20),
		},
		Warehouse: Warehouse{
			DSN:          getEnv("WAREHOUSE_DSN", ""),
			BatchSize:    getInt("LOAD_BATCH_SIZE", 500),
			BatchRetries: getInt("LOAD_BATCH_RETRIES", 3),
		},
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", ""),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "news_articles"),
		KafkaBrokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		RejectsTopic:       getEnv("REJECTS_TOPIC", "etl_rejects"),
		DedupeCapacity:     getInt("NEWS_DEDUPE_CAPACITY", 20000),
		DedupeTTL:          getDuration("NEWS_DEDUPE_TTL", "24h"),
	}

	if c.APIToken == "" {
		return nil, fmt.Errorf("MARKETAUX_API_TOKEN is required")
	}
	if c.BaseURL == "" {
		return nil, fmt.Errorf("MARKETAUX_BASE_URL cannot be empty")
	}
	if c.DSN == "" {
		return nil, fmt.Errorf("WAREHOUSE_DSN is required")
	}
	if c.PageLimit <= 0 {
		return nil, fmt.Errorf("SOURCE_PAGE_LIMIT must be positive")
	}
	if c.MaxPages <= 0 {
		return nil, fmt.Errorf("SOURCE_MAX_PAGES must be positive")
	}
	if c.RatePerSecond <= 0 {
		return nil, fmt.Errorf("SOURCE_RATE_PER_SEC must be positive")
	}
	if c.BackoffBase <= 0 {
		return nil, fmt.Errorf("SOURCE_BACKOFF_BASE must be positive")
	}
	if c.MaxRateLimitRetries <= 0 {
		return nil, fmt.Errorf("SOURCE_RATE_LIMIT_RETRIES must be positive")
	}
	if c.MaxTransientRetries <= 0 {
		return nil, fmt.Errorf("SOURCE_TRANSIENT_RETRIES must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("LOAD_BATCH_SIZE must be positive")
	}
	if c.BatchRetries <= 0 {
		return nil, fmt.Errorf("LOAD_BATCH_RETRIES must be positive")
	}
	if c.NewsSymbolBatch <= 0 {
		return nil, fmt.Errorf("NEWS_SYMBOL_BATCH must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("NEWS_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
