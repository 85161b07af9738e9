package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment" validate:"omitempty,oneof=development production"`
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Warehouse   WarehouseConfig `toml:"warehouse"`
	Cache       CacheConfig     `toml:"cache"`
	Sources     SourcesConfig   `toml:"sources"`
	LLM         LLMConfig       `toml:"llm"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	Vector      VectorConfig    `toml:"vector"`
	Queue       QueueConfig     `toml:"queue"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Retention   RetentionConfig `toml:"retention"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration for the local
// vector index and staging storage.
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// WarehouseConfig holds the columnar store-of-record connection settings.
type WarehouseConfig struct {
	DSN     string `toml:"dsn"`     // postgres connection string
	Dataset string `toml:"dataset"` // schema holding the pipeline tables
}

// CacheConfig configures the three cache tiers.
type CacheConfig struct {
	L1MaxEntries int    `toml:"l1_max_entries"` // default 1000
	L1TTL        string `toml:"l1_ttl"`         // default "5m"
	RedisAddr    string `toml:"redis_addr"`     // empty disables the L2 tier
	RedisDB      int    `toml:"redis_db"`
	RedisTTL     string `toml:"redis_ttl"` // default "1h"
	AgeHours     int    `toml:"age_hours"` // L3 lookback, default 24
}

// SourcesConfig configures the source adapters.
type SourcesConfig struct {
	FetchTimeout   string            `toml:"fetch_timeout"` // per-source deadline, default "10s"
	DefaultDays    int               `toml:"default_days"`  // window when the caller gives none, default 7
	BOEBaseURL     string            `toml:"boe_base_url"`
	NewsAPIKey     string            `toml:"newsapi_key"`
	NewsAPIBaseURL string            `toml:"newsapi_base_url"`
	RSSFeeds       map[string]string `toml:"rss_feeds"`  // outlet -> feed URL
	YahooBaseURL   string            `toml:"yahoo_base_url"`
	RateLimit      int               `toml:"rate_limit"` // requests/second per source client
}

// LLMProvider identifies which AI provider to use by default.
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderRemote LLMProvider = "remote"
)

// LLMConfig holds cross-provider LLM settings.
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"omitempty,oneof=gemini claude remote"`
	ClassifyURL     string      `toml:"classify_url"` // remote classify service, used when provider=remote
	GenerateURL     string      `toml:"generate_url"` // remote generate service, used when provider=remote
	Timeout         string      `toml:"timeout"`      // default "30s"
	MaxRetries      int         `toml:"max_retries"`  // default 3
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

// EmbeddingConfig configures embedding generation.
type EmbeddingConfig struct {
	ServiceURL string `toml:"service_url"` // remote embed service; empty uses Gemini
	Model      string `toml:"model"`
	Dimension  int    `toml:"dimension" validate:"omitempty,oneof=384 768"`
	Timeout    string `toml:"timeout"` // default "30s"
}

// VectorConfig configures the hybrid vector store backends.
type VectorConfig struct {
	RemoteURL     string `toml:"remote_url"` // optional remote vector service
	RemoteTimeout string `toml:"remote_timeout"`
	LocalEnabled  bool   `toml:"local_enabled"`
}

// QueueConfig configures the background warehouse writer.
type QueueConfig struct {
	TickInterval string `toml:"tick_interval"` // default "5s"
	MaxPending   int    `toml:"max_pending"`   // default 10000
}

// PipelineConfig configures ingest behaviour.
type PipelineConfig struct {
	EnableEmbedding     bool   `toml:"enable_embedding"`
	MaxDocumentsToEmbed int    `toml:"max_documents_to_embed"` // default 20
	SourceBudget        string `toml:"source_budget"`          // orchestrator per-source time box, default "15s"
}

// RetentionConfig configures the parsed-raw-doc vacuum.
type RetentionConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`  // cron format, default "0 3 * * *"
	KeepDays int    `toml:"keep_days"` // default 90
}

// DefaultConfig returns a configuration with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server:      ServerConfig{Port: 8085, Host: "0.0.0.0"},
		Logging:     LoggingConfig{Level: "info", Output: []string{"stdout"}},
		Storage:     StorageConfig{Badger: BadgerConfig{Path: "./data/vigia"}},
		Warehouse:   WarehouseConfig{Dataset: "dyo_risk"},
		Cache: CacheConfig{
			L1MaxEntries: 1000,
			L1TTL:        "5m",
			RedisTTL:     "1h",
			AgeHours:     24,
		},
		Sources: SourcesConfig{
			FetchTimeout:   "10s",
			DefaultDays:    7,
			BOEBaseURL:     "https://www.boe.es",
			NewsAPIBaseURL: "https://newsapi.org/v2",
			YahooBaseURL:   "https://query1.finance.yahoo.com",
			RateLimit:      10,
			RSSFeeds:       DefaultRSSFeeds(),
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
			Timeout:         "30s",
			MaxRetries:      3,
		},
		Gemini:    GeminiConfig{Model: "gemini-2.0-flash", Temperature: 0.2, Timeout: "30s"},
		Claude:    ClaudeConfig{Model: "claude-sonnet-4-20250514", MaxTokens: 1024, Temperature: 0.2, Timeout: "30s"},
		Embedding: EmbeddingConfig{Model: "gemini-embedding-001", Dimension: 768, Timeout: "30s"},
		Vector:    VectorConfig{LocalEnabled: true, RemoteTimeout: "30s"},
		Queue:     QueueConfig{TickInterval: "5s", MaxPending: 10000},
		Pipeline:  PipelineConfig{EnableEmbedding: true, MaxDocumentsToEmbed: 20, SourceBudget: "15s"},
		Retention: RetentionConfig{Enabled: false, Schedule: "0 3 * * *", KeepDays: 90},
	}
}

// DefaultRSSFeeds returns the fixed set of Spanish newspaper feeds.
func DefaultRSSFeeds() map[string]string {
	return map[string]string{
		"elpais":         "https://feeds.elpais.com/mrss-s/pages/ep/site/elpais.com/portada",
		"elmundo":        "https://e00-elmundo.uecdn.es/elmundo/rss/portada.xml",
		"expansion":      "https://e00-expansion.uecdn.es/rss/portada.xml",
		"cincodias":      "https://cincodias.elpais.com/seccion/rss/economia/",
		"eleconomista":   "https://www.eleconomista.es/rss/rss-empresas.php",
		"abc":            "https://www.abc.es/rss/feeds/abc_Economia.xml",
		"lavanguardia":   "https://www.lavanguardia.com/rss/economia.xml",
		"elconfidencial": "https://rss.elconfidencial.com/empresas/",
	}
}

// LoadFromFile loads configuration from a TOML file, applies environment
// overrides, and validates the result. A missing file is not an error; the
// defaults plus environment are used.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies VIGIA_* environment variables over the loaded
// configuration. Environment always wins over file values.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIGIA_ENVIRONMENT"); env != "" {
		config.Environment = env
	}
	if port := os.Getenv("VIGIA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VIGIA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if level := os.Getenv("VIGIA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VIGIA_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage
	if path := os.Getenv("VIGIA_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	// Warehouse
	if dsn := os.Getenv("VIGIA_WAREHOUSE_DSN"); dsn != "" {
		config.Warehouse.DSN = dsn
	}
	if dataset := os.Getenv("VIGIA_WAREHOUSE_DATASET"); dataset != "" {
		config.Warehouse.Dataset = dataset
	}

	// Cache
	if addr := os.Getenv("VIGIA_REDIS_ADDR"); addr != "" {
		config.Cache.RedisAddr = addr
	}
	if db := os.Getenv("VIGIA_REDIS_DB"); db != "" {
		if d, err := strconv.Atoi(db); err == nil {
			config.Cache.RedisDB = d
		}
	}
	if hours := os.Getenv("VIGIA_CACHE_AGE_HOURS"); hours != "" {
		if h, err := strconv.Atoi(hours); err == nil && h > 0 {
			config.Cache.AgeHours = h
		}
	}

	// Sources
	if key := os.Getenv("VIGIA_NEWSAPI_KEY"); key != "" {
		config.Sources.NewsAPIKey = key
	}
	if u := os.Getenv("VIGIA_BOE_BASE_URL"); u != "" {
		config.Sources.BOEBaseURL = u
	}
	if u := os.Getenv("VIGIA_NEWSAPI_BASE_URL"); u != "" {
		config.Sources.NewsAPIBaseURL = u
	}
	if u := os.Getenv("VIGIA_YAHOO_BASE_URL"); u != "" {
		config.Sources.YahooBaseURL = u
	}

	// LLM providers
	if provider := os.Getenv("VIGIA_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if u := os.Getenv("VIGIA_LLM_CLASSIFY_URL"); u != "" {
		config.LLM.ClassifyURL = u
	}
	if u := os.Getenv("VIGIA_LLM_GENERATE_URL"); u != "" {
		config.LLM.GenerateURL = u
	}
	if apiKey := os.Getenv("VIGIA_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("VIGIA_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("VIGIA_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // VIGIA_ prefix takes priority
	}
	if model := os.Getenv("VIGIA_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// Embedding
	if u := os.Getenv("VIGIA_EMBED_SERVICE_URL"); u != "" {
		config.Embedding.ServiceURL = u
	}
	if dim := os.Getenv("VIGIA_EMBED_DIMENSION"); dim != "" {
		if d, err := strconv.Atoi(dim); err == nil {
			config.Embedding.Dimension = d
		}
	}

	// Vector service
	if u := os.Getenv("VIGIA_VECTOR_SERVICE_URL"); u != "" {
		config.Vector.RemoteURL = u
	}

	// Queue
	if tick := os.Getenv("VIGIA_QUEUE_TICK_INTERVAL"); tick != "" {
		if _, err := time.ParseDuration(tick); err == nil {
			config.Queue.TickInterval = tick
		}
	}
}

// ParseDurationOr parses a duration string, returning fallback on empty or
// invalid input.
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
