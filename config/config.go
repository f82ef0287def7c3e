// Package config loads the YAML application configuration shared by the
// answerbank command and embedders of the library.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/answerbank/ai"
	"github.com/poiesic/answerbank/builder"
	"github.com/poiesic/answerbank/index"
	"github.com/poiesic/answerbank/search"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "answerbank.yaml"

// StoreConfig locates the versioned store.
type StoreConfig struct {
	Root         string `yaml:"root"`
	KeepVersions int    `yaml:"keep_versions"`
	Watch        bool   `yaml:"watch"`
}

// EmbedderConfig configures the OpenAI-compatible embedding runtime.
type EmbedderConfig struct {
	Host        string `yaml:"host"`
	ModelDir    string `yaml:"model_dir"`
	Model       string `yaml:"model,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// BuilderConfig configures corpus builds.
type BuilderConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	PoolSize      int           `yaml:"pool_size"`
	MaxTextLength int           `yaml:"max_text_length"`
	ReuseVectors  bool          `yaml:"reuse_vectors"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// IndexConfig selects the vector index.
type IndexConfig struct {
	Kind          string  `yaml:"kind"`
	AutoThreshold int     `yaml:"auto_threshold"`
	Lists         int     `yaml:"lists"`
	MinRecall     float64 `yaml:"min_recall"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float32 `yaml:"min_score"`
	Dedup    string  `yaml:"dedup"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Store    StoreConfig    `yaml:"store"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Builder  BuilderConfig  `yaml:"builder"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
}

// Default returns the default configuration.
func Default() *AppConfig {
	ac := ai.DefaultConfig()
	bc := builder.DefaultConfig()
	ic := index.DefaultConfig()
	return &AppConfig{
		Store: StoreConfig{Root: "data", KeepVersions: bc.KeepVersions},
		Embedder: EmbedderConfig{
			Host:        ac.EmbeddingHost,
			ModelDir:    ac.ModelDir,
			TimeoutSecs: int(ac.RequestTimeout / time.Second),
		},
		Builder: BuilderConfig{
			BatchSize:    bc.BatchSize,
			PoolSize:     bc.PoolSize,
			ReuseVectors: bc.ReuseVectors,
			MaxAttempts:  bc.MaxAttempts,
			RetryDelay:   bc.RetryDelay,
		},
		Index: IndexConfig{
			Kind:          string(ic.Kind),
			AutoThreshold: ic.AutoThreshold,
			MinRecall:     ic.MinRecall,
		},
		Search: SearchConfig{TopK: search.DefaultTopK, Dedup: "none"},
	}
}

// Load reads a config from path. A missing file yields the defaults.
// Keys absent from the file keep their default values.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyDefaults fills zero values an explicit file entry may have cleared.
func applyDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.Store.Root == "" {
		cfg.Store.Root = def.Store.Root
	}
	if cfg.Store.KeepVersions == 0 {
		cfg.Store.KeepVersions = def.Store.KeepVersions
	}
	if cfg.Embedder.Host == "" {
		cfg.Embedder.Host = def.Embedder.Host
	}
	if cfg.Embedder.ModelDir == "" {
		cfg.Embedder.ModelDir = def.Embedder.ModelDir
	}
	if cfg.Builder.BatchSize == 0 {
		cfg.Builder.BatchSize = def.Builder.BatchSize
	}
	if cfg.Builder.PoolSize == 0 {
		cfg.Builder.PoolSize = def.Builder.PoolSize
	}
	if cfg.Builder.MaxAttempts == 0 {
		cfg.Builder.MaxAttempts = def.Builder.MaxAttempts
	}
	if cfg.Index.Kind == "" {
		cfg.Index.Kind = def.Index.Kind
	}
	if cfg.Index.MinRecall == 0 {
		cfg.Index.MinRecall = def.Index.MinRecall
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = def.Search.TopK
	}
	if cfg.Search.Dedup == "" {
		cfg.Search.Dedup = def.Search.Dedup
	}
}

// Validate checks the settings that cannot be checked by the packages they
// configure until they are used.
func (c *AppConfig) Validate() error {
	if _, err := index.ParseKind(c.Index.Kind); err != nil {
		return err
	}
	if _, err := c.DedupKey(); err != nil {
		return err
	}
	if c.Search.TopK < 1 {
		return search.ErrInvalidTopK
	}
	if c.Embedder.TimeoutSecs < 0 {
		return errors.New("embedder timeout cannot be negative")
	}
	bc := c.BuilderConfig()
	return bc.Validate()
}

// AIConfig returns the embedding runtime settings.
func (c *AppConfig) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedder.Host),
		ai.WithModelDir(c.Embedder.ModelDir),
		ai.WithEmbeddingModel(c.Embedder.Model),
		ai.WithRequestTimeout(time.Duration(c.Embedder.TimeoutSecs)*time.Second),
	)
}

// BuilderConfig returns the corpus builder settings.
func (c *AppConfig) BuilderConfig() builder.Config {
	cfg := *builder.DefaultConfig()
	cfg.BatchSize = c.Builder.BatchSize
	cfg.PoolSize = c.Builder.PoolSize
	cfg.MaxTextLength = c.Builder.MaxTextLength
	cfg.ReuseVectors = c.Builder.ReuseVectors
	cfg.MaxAttempts = c.Builder.MaxAttempts
	cfg.RetryDelay = c.Builder.RetryDelay
	cfg.KeepVersions = c.Store.KeepVersions
	return cfg
}

// IndexOptions returns the vector index settings.
func (c *AppConfig) IndexOptions() []index.Option {
	kind, _ := index.ParseKind(c.Index.Kind)
	opts := []index.Option{index.WithKind(kind), index.WithMinRecall(c.Index.MinRecall)}
	if c.Index.AutoThreshold > 0 {
		opts = append(opts, index.WithAutoThreshold(c.Index.AutoThreshold))
	}
	if c.Index.Lists > 0 {
		opts = append(opts, index.WithLists(c.Index.Lists))
	}
	return opts
}

// SearchOptions returns the default per-query options.
func (c *AppConfig) SearchOptions() []search.QueryOption {
	opts := []search.QueryOption{search.WithTopK(c.Search.TopK), search.WithMinScore(c.Search.MinScore)}
	if key, _ := c.DedupKey(); key != nil {
		opts = append(opts, search.WithDedup(key))
	}
	return opts
}

// DedupKey resolves the configured deduplication mode: none, answer, code,
// or metadata:<field>.
func (c *AppConfig) DedupKey() (search.DedupKey, error) {
	return ParseDedup(c.Search.Dedup)
}

// ParseDedup resolves a deduplication mode name.
func ParseDedup(mode string) (search.DedupKey, error) {
	switch {
	case mode == "" || mode == "none":
		return nil, nil
	case mode == "answer":
		return search.DedupByAnswer, nil
	case mode == "code":
		return search.DedupByCode, nil
	case strings.HasPrefix(mode, "metadata:") && len(mode) > len("metadata:"):
		return search.DedupByMetadata(strings.TrimPrefix(mode, "metadata:")), nil
	default:
		return nil, fmt.Errorf("unknown dedup mode %q", mode)
	}
}
