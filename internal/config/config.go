package config

import (
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	pkgRetry "github.com/secassist/ai-backend/internal/pkg/retry"
)

// RetrieverConfig describes one allowed embedding model and the
// dimensionality of the vectors it produces.
type RetrieverConfig struct {
	Name       string
	Dimensions int
}

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerAddr string `env:"SERVER_ADDR" envDefault:":7000"`

	// Database configuration
	DatabaseURL         string               `env:"DATABASE_URL,notEmpty"`
	DBMaxConns          int                  `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns          int                  `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetime   time.Duration        `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime   time.Duration        `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBHealthCheckPeriod time.Duration        `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
	DBRetry             pkgRetry.RetryConfig `envPrefix:"DB_RETRY_"`

	// Inference and retrieval backends
	OllamaURL string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	ChromaURL string `env:"CHROMA_URL" envDefault:"http://localhost:8000"`

	// Allow-lists
	ValidLLMs      []string `env:"VALID_LLMS" envDefault:"mistral,phi3,llama3.1"`
	RetrieverSpecs []string `env:"RETRIEVERS" envDefault:"all-minilm:384,nomic-embed-text:768,bge-m3:1024"`

	// Source documents
	DocumentsDir     string        `env:"DOCUMENTS_DIR" envDefault:"resources"`
	DocumentCacheTTL time.Duration `env:"DOCUMENT_CACHE_TTL" envDefault:"5m"`

	// Ingestion configuration
	IngestWorkers int `env:"INGEST_WORKERS" envDefault:"8"`
	ChunkSize     int `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap  int `env:"CHUNK_OVERLAP" envDefault:"300"`

	// Write-behind history cache
	HistoryFlushInterval time.Duration `env:"HISTORY_FLUSH_INTERVAL" envDefault:"30s"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Mock configuration
	EnableMocks bool `env:"ENABLE_MOCKS" envDefault:"false"`

	// Environment (set from flag, not from env var)
	Environment string

	// Retrievers parsed from RetrieverSpecs
	Retrievers []RetrieverConfig
}

// LoadConfig loads the environment file selected by the -env flag, parses the
// environment into a Config and validates it.
func LoadConfig() (*Config, error) {
	envFlag := flag.String("env", "local", "Environment to run (local, prod, or custom)")
	flag.Parse()

	envFile := getEnvFile(*envFlag)
	// Try to load env file, but don't fail if it's missing.
	// In containerized/prod environments variables are usually set externally.
	if err := godotenv.Load(envFile); err != nil {
		fmt.Printf("Warning: could not load %s file (this is ok if env vars are set externally): %v\n", envFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.Environment = *envFlag

	retrievers, err := parseRetrieverSpecs(cfg.RetrieverSpecs)
	if err != nil {
		return nil, fmt.Errorf("parse RETRIEVERS: %w", err)
	}
	cfg.Retrievers = retrievers

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// parseRetrieverSpecs parses "name:dimensions" pairs.
func parseRetrieverSpecs(specs []string) ([]RetrieverConfig, error) {
	retrievers := make([]RetrieverConfig, 0, len(specs))
	for _, spec := range specs {
		name, dims, ok := strings.Cut(strings.TrimSpace(spec), ":")
		if !ok {
			return nil, fmt.Errorf("retriever spec '%s' must have the form name:dimensions", spec)
		}

		d, err := strconv.Atoi(dims)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("retriever spec '%s' has an invalid dimensionality", spec)
		}

		retrievers = append(retrievers, RetrieverConfig{Name: name, Dimensions: d})
	}
	return retrievers, nil
}

func validateConfig(cfg *Config) error {
	if len(cfg.ValidLLMs) == 0 {
		return fmt.Errorf("VALID_LLMS must list at least one model")
	}

	if len(cfg.Retrievers) == 0 {
		return fmt.Errorf("RETRIEVERS must list at least one embedding model")
	}

	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 200 {
		return fmt.Errorf("DB_MAX_CONNS must be between 1 and 200, got %d", cfg.DBMaxConns)
	}

	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS(%d), got %d", cfg.DBMaxConns, cfg.DBMinConns)
	}

	if cfg.IngestWorkers < 1 {
		return fmt.Errorf("INGEST_WORKERS must be at least 1, got %d", cfg.IngestWorkers)
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	return nil
}

// IsValidLLM reports whether the model name is on the allow-list.
func (c *Config) IsValidLLM(name string) bool {
	for _, llm := range c.ValidLLMs {
		if llm == name {
			return true
		}
	}
	return false
}

// Retriever looks up an allowed embedding model by name.
func (c *Config) Retriever(name string) (RetrieverConfig, bool) {
	for _, r := range c.Retrievers {
		if r.Name == name {
			return r, true
		}
	}
	return RetrieverConfig{}, false
}

// DefaultLLM is the model assigned to sessions created without an explicit
// choice.
func (c *Config) DefaultLLM() string {
	return c.ValidLLMs[0]
}

// DefaultRetriever is the highest-dimensionality embedding model.
func (c *Config) DefaultRetriever() RetrieverConfig {
	retrievers := make([]RetrieverConfig, len(c.Retrievers))
	copy(retrievers, c.Retrievers)
	sort.Slice(retrievers, func(i, j int) bool {
		return retrievers[i].Dimensions > retrievers[j].Dimensions
	})
	return retrievers[0]
}

// CollectionName is the vector index partition for one embedding
// dimensionality. Indices are partitioned by dimensionality, one collection
// per size.
func CollectionName(dimensions int) string {
	return fmt.Sprintf("embed-%d", dimensions)
}

func getEnvFile(environment string) string {
	switch environment {
	case "prod", "production":
		return ".env.prod"
	case "local", "dev", "development":
		return ".env.local"
	default:
		return fmt.Sprintf(".env.%s", environment)
	}
}
