package index

import (
	"errors"
	"fmt"
)

// Kind selects an index implementation.
type Kind string

const (
	// KindAuto uses Flat below Config.AutoThreshold entries and IVF above.
	KindAuto Kind = "auto"
	// KindFlat is exhaustive exact search.
	KindFlat Kind = "flat"
	// KindIVF is inverted-file search with exact re-rank.
	KindIVF Kind = "ivf"
)

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAuto, KindFlat, KindIVF:
		return k, nil
	case "":
		return KindAuto, nil
	default:
		return "", fmt.Errorf("index: unknown kind %q", s)
	}
}

// Config controls index construction.
type Config struct {
	Kind Kind

	// AutoThreshold is the corpus size at which KindAuto switches to IVF.
	AutoThreshold int

	// Lists is the number of IVF partitions. Zero derives it from the corpus size.
	Lists int

	// MinRecall is the recall@k the calibrated probe count must reach.
	MinRecall float64

	// ExactThreshold is the allowed-set size at or below which IVF searches
	// the allowed vectors exhaustively instead of probing lists.
	ExactThreshold int

	// CalibrationSamples is the number of corpus vectors used as calibration queries.
	CalibrationSamples int

	// CalibrationK is the k used when measuring recall.
	CalibrationK int

	// Iterations bounds k-means training rounds.
	Iterations int
}

// Option configures a Config.
type Option func(*Config)

// WithKind sets the index implementation.
func WithKind(kind Kind) Option {
	return func(c *Config) {
		c.Kind = kind
	}
}

// WithAutoThreshold sets the corpus size at which auto selects IVF.
func WithAutoThreshold(n int) Option {
	return func(c *Config) {
		c.AutoThreshold = n
	}
}

// WithLists sets the number of IVF partitions.
func WithLists(n int) Option {
	return func(c *Config) {
		c.Lists = n
	}
}

// WithMinRecall sets the calibration recall bound.
func WithMinRecall(r float64) Option {
	return func(c *Config) {
		c.MinRecall = r
	}
}

// WithExactThreshold sets the allowed-set size searched exhaustively.
func WithExactThreshold(n int) Option {
	return func(c *Config) {
		c.ExactThreshold = n
	}
}

// WithCalibration sets the number of calibration queries and the k they measure.
func WithCalibration(samples, k int) Option {
	return func(c *Config) {
		c.CalibrationSamples = samples
		c.CalibrationK = k
	}
}

// DefaultConfig returns the default index configuration.
func DefaultConfig() *Config {
	return &Config{
		Kind:               KindAuto,
		AutoThreshold:      20000,
		MinRecall:          0.95,
		ExactThreshold:     2048,
		CalibrationSamples: 64,
		CalibrationK:       20,
		Iterations:         8,
	}
}

// Validate checks the configuration. An empty Kind becomes KindAuto.
func (c *Config) Validate() error {
	kind, err := ParseKind(string(c.Kind))
	if err != nil {
		return err
	}
	c.Kind = kind
	if c.MinRecall <= 0 || c.MinRecall > 1 {
		return errors.New("index: MinRecall must be in (0, 1]")
	}
	if c.Lists < 0 || c.ExactThreshold < 0 || c.AutoThreshold < 0 {
		return errors.New("index: sizes cannot be negative")
	}
	if c.CalibrationSamples <= 0 || c.CalibrationK <= 0 || c.Iterations <= 0 {
		return errors.New("index: calibration settings must be positive")
	}
	return nil
}
