package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/ragstore/ai"
	"github.com/poiesic/ragstore/core"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendSQL    = "sql"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGSTORE_"

// Config is the root configuration of a ragstore deployment.
type Config struct {
	Storage   StorageConfig       `yaml:"storage"`
	Embedding EmbeddingConfig     `yaml:"embedding"`
	Search    SearchConfig        `yaml:"search"`
	Chunking  core.ChunkingConfig `yaml:"chunking"`
	Ingestion IngestionConfig     `yaml:"ingestion"`
	Logging   LoggingConfig       `yaml:"logging"`
}

// StorageConfig selects the store.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "badger" or "sql"
	Path    string `yaml:"path"`    // BadgerDB directory
	DSN     string `yaml:"dsn"`     // postgres URL or sqlite file path
}

// EmbeddingConfig configures the OpenAI-compatible embedding service.
type EmbeddingConfig struct {
	Host       string        `yaml:"host"`
	Model      string        `yaml:"model"`
	APIKeyEnv  string        `yaml:"api_key_env"` // Environment variable holding the API key
	APIKey     string        `yaml:"-"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	Distance  string  `yaml:"distance"`
	TopK      int     `yaml:"top_k"`
	Threshold float32 `yaml:"threshold"`
}

// IngestionConfig tunes the ingestion scheduler.
type IngestionConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	MaxRetries   int           `yaml:"max_retries"`
	BatchSize    int           `yaml:"batch_size"`
	Interval     time.Duration `yaml:"interval"`
	FileTimeout  time.Duration `yaml:"file_timeout"`
	LeaseTimeout time.Duration `yaml:"lease_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			Backend: BackendBadger,
			Path:    "ragstore.db",
		},
		Embedding: EmbeddingConfig{
			Host:       aiDefaults.EmbeddingHost,
			Model:      aiDefaults.EmbeddingModel,
			APIKeyEnv:  "OPENAI_API_KEY",
			Dimensions: aiDefaults.Dimensions,
			BatchSize:  aiDefaults.BatchSize,
			Timeout:    aiDefaults.Timeout,
		},
		Search: SearchConfig{
			Distance:  string(core.DistanceCosine),
			TopK:      5,
			Threshold: 0.5,
		},
		Chunking: core.ChunkingConfig{
			Strategy:     core.ChunkByLength,
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Ingestion: IngestionConfig{
			PoolSize:     2,
			MaxRetries:   3,
			BatchSize:    20,
			Interval:     30 * time.Second,
			FileTimeout:  10 * time.Minute,
			LeaseTimeout: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path, the given .env
// files and the process environment, later sources winning. A missing YAML
// file or .env file is skipped.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	dotenv, err := readEnvFiles(envFiles)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFiles(paths []string) (map[string]string, error) {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return map[string]string{}, nil
	}
	return godotenv.Read(existing...)
}

// ApplyEnv overrides fields from RAGSTORE_* variables and resolves the API
// key from Embedding.APIKeyEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("STORAGE_PATH", &c.Storage.Path)
	str("DSN", &c.Storage.DSN)
	str("EMBEDDING_HOST", &c.Embedding.Host)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("DISTANCE", &c.Search.Distance)
	str("LOG_LEVEL", &c.Logging.Level)
	if err := num("EMBEDDING_DIMENSIONS", &c.Embedding.Dimensions); err != nil {
		return err
	}
	if err := num("POOL_SIZE", &c.Ingestion.PoolSize); err != nil {
		return err
	}

	if v, ok := lookup(EnvPrefix + "API_KEY"); ok && v != "" {
		c.Embedding.APIKey = v
	} else if c.Embedding.APIKeyEnv != "" {
		if v, ok := lookup(c.Embedding.APIKeyEnv); ok {
			c.Embedding.APIKey = v
		}
	}
	return nil
}

// Validate checks the values the components cannot default.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBadger:
		if c.Storage.Path == "" {
			return errors.New("config: storage.path is required for the badger backend")
		}
	case BackendSQL:
		if c.Storage.DSN == "" {
			return errors.New("config: storage.dsn is required for the sql backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	if _, err := core.ParseDistanceStrategy(c.Search.Distance); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Search.TopK <= 0 {
		return errors.New("config: search.top_k must be positive")
	}
	if err := core.ValidateChunkingConfig(c.Chunking); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.AI().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Logging.Level)
	}
	return nil
}

// DistanceStrategy returns the parsed search distance.
func (c *Config) DistanceStrategy() core.DistanceStrategy {
	d, err := core.ParseDistanceStrategy(c.Search.Distance)
	if err != nil {
		return core.DistanceCosine
	}
	return d
}

// AI converts the embedding section into a provider configuration.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithDimensions(c.Embedding.Dimensions),
		ai.WithBatchSize(c.Embedding.BatchSize),
		ai.WithTimeout(c.Embedding.Timeout),
	)
}

// Save writes the configuration as YAML. The API key is never written.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
