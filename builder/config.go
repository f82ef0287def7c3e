package builder

import (
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/poiesic/answerbank/index"
	"github.com/poiesic/answerbank/store"
)

// Config holds builder settings.
type Config struct {
	BatchSize     int           // texts per embedding call
	PoolSize      int           // concurrent embedding calls
	MaxTextLength int           // max runes in question or answer; 0 = unbounded
	ReuseVectors  bool          // reuse prior vectors for unchanged rows
	MaxAttempts   int           // embedding attempts per batch, including the first
	RetryDelay    time.Duration // base backoff delay, doubled per retry
	KeepVersions  int           // published versions kept after a swap
	WriteChunk    int           // records per write batch
}

// DefaultConfig returns the default builder settings.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:    32,
		PoolSize:     max(runtime.NumCPU()/2, 1),
		ReuseVectors: true,
		MaxAttempts:  3,
		RetryDelay:   200 * time.Millisecond,
		KeepVersions: 2,
		WriteChunk:   1000,
	}
}

// Validate checks the settings.
func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return errors.New("batch size must be at least 1")
	}
	if c.PoolSize < 1 {
		return errors.New("pool size must be at least 1")
	}
	if c.MaxTextLength < 0 {
		return errors.New("max text length cannot be negative")
	}
	if c.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.RetryDelay < 0 {
		return errors.New("retry delay cannot be negative")
	}
	if c.KeepVersions < 1 {
		return errors.New("must keep at least one version")
	}
	if c.WriteChunk < 1 {
		return errors.New("write chunk must be at least 1")
	}
	return nil
}

// Option configures a Builder.
type Option func(*Builder)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(b *Builder) {
		b.cfg = cfg
	}
}

// WithBatchSize sets how many texts go into one embedding call.
func WithBatchSize(n int) Option {
	return func(b *Builder) {
		b.cfg.BatchSize = n
	}
}

// WithPoolSize sets how many embedding calls run concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(n int) Option {
	return func(b *Builder) {
		b.cfg.PoolSize = n
	}
}

// WithMaxTextLength rejects rows whose question or answer exceeds n runes.
func WithMaxTextLength(n int) Option {
	return func(b *Builder) {
		b.cfg.MaxTextLength = n
	}
}

// WithReuseVectors toggles reusing vectors of unchanged rows from the live version.
func WithReuseVectors(reuse bool) Option {
	return func(b *Builder) {
		b.cfg.ReuseVectors = reuse
	}
}

// WithRetry sets the embedding attempts per batch and the base backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(b *Builder) {
		b.cfg.MaxAttempts = maxAttempts
		b.cfg.RetryDelay = baseDelay
	}
}

// WithKeepVersions sets how many published versions survive pruning.
func WithKeepVersions(n int) Option {
	return func(b *Builder) {
		b.cfg.KeepVersions = n
	}
}

// WithProgress registers a hook receiving state transitions and row counters.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) {
		b.progress = fn
	}
}

// WithLive makes the builder publish each new version into live and take
// prior vectors from it.
func WithLive(live *store.Live) Option {
	return func(b *Builder) {
		b.live = live
	}
}

// WithIndexOptions configures the index of the snapshot loaded after writing.
func WithIndexOptions(opts ...index.Option) Option {
	return func(b *Builder) {
		b.indexOptions = append(b.indexOptions, opts...)
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}
