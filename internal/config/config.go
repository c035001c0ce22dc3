// Package config provides configuration loading and structs for the cordsearch server.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/cordsearch/internal/models"
)

// Embedding providers.
const (
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level,omitempty"`
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
}

// Addr returns host:port for listening or dialing.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CorpusConfig locates the corpus source and names its columns.
type CorpusConfig struct {
	SourcePath string        `yaml:"source_path"`
	Columns    ColumnsConfig `yaml:"columns"`
}

// ColumnsConfig maps record fields to source column headers.
type ColumnsConfig struct {
	ID          string `yaml:"id"`
	Text        string `yaml:"text"`
	PublishedAt string `yaml:"published_at"`
	Language    string `yaml:"language"`
	Title       string `yaml:"title"`
	URL         string `yaml:"url"`
	Topic       string `yaml:"topic"`
	Subtopic    string `yaml:"subtopic"`
}

// StorageConfig holds paths for the corpus cache and the embedding cache.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	VectorsPath  string `yaml:"vectors_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	ModelPath         string  `yaml:"model_path"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Dimensions        int     `yaml:"dimensions"`
	MaxTokens         int     `yaml:"max_tokens"`
	CacheSize         int     `yaml:"cache_size"`
	BatchSize         int     `yaml:"batch_size"`
	Workers           int     `yaml:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// SearchConfig holds query limits and the accepted filter vocabulary.
type SearchConfig struct {
	DefaultK  int      `yaml:"default_k"`
	MaxK      int      `yaml:"max_k"`
	MinYear   int      `yaml:"min_year"`
	MaxYear   int      `yaml:"max_year"`
	Languages []string `yaml:"languages"`
}

// Limits returns the request validation limits.
func (s SearchConfig) Limits() models.QueryLimits {
	return models.QueryLimits{
		DefaultK:  s.DefaultK,
		MaxK:      s.MaxK,
		MinYear:   s.MinYear,
		MaxYear:   s.MaxYear,
		Languages: s.Languages,
	}
}

// WatchConfig controls re-caching when the corpus source changes.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Load reads and parses the config file at path, expands ${VAR} references and
// paths, and applies defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Corpus.SourcePath = expandPath(cfg.Corpus.SourcePath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorsPath = expandPath(cfg.Storage.VectorsPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderONNX, ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("invalid config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server port %d out of range", c.Server.Port)
	}
	if c.Search.DefaultK > c.Search.MaxK {
		return fmt.Errorf("invalid config: default_k %d exceeds max_k %d", c.Search.DefaultK, c.Search.MaxK)
	}
	if c.Search.MinYear > c.Search.MaxYear {
		return fmt.Errorf("invalid config: min_year %d after max_year %d", c.Search.MinYear, c.Search.MaxYear)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid config: embedding dimensions must be positive")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, def, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
}
