package index

import (
	"errors"
	"fmt"
	"slices"

	"github.com/poiesic/answerbank/core"
)

var (
	// ErrDimensionMismatch indicates a vector of the wrong size.
	ErrDimensionMismatch = errors.New("index: dimension mismatch")

	// ErrDuplicateID indicates two entries share an ID.
	ErrDuplicateID = errors.New("index: duplicate id")
)

// Entry is a vector to index.
type Entry struct {
	ID     core.ID
	Vector []float32
}

// Hit is a search result.
type Hit struct {
	ID    core.ID
	Score float32
}

// IDSet restricts a search to the contained IDs.
// A nil IDSet passed to Search means no restriction; an empty non-nil set
// matches nothing.
type IDSet map[core.ID]struct{}

// NewIDSet returns a non-nil set holding ids.
func NewIDSet(ids ...core.ID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id core.ID) bool {
	_, ok := s[id]
	return ok
}

// Index answers top-k similarity queries.
type Index interface {
	// Search returns at most topK hits with score >= minScore among the
	// allowed IDs (nil = all), ordered by descending score then ascending ID.
	Search(query []float32, allowed IDSet, topK int, minScore float32) ([]Hit, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Dimension returns the vector size, or 0 for an empty index.
	Dimension() int

	// Kind names the implementation.
	Kind() Kind
}

// Build constructs an index over entries using the configured kind.
func Build(entries []Entry, opts ...Option) (Index, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kind := cfg.Kind
	if kind == KindAuto {
		kind = KindFlat
		if len(entries) >= cfg.AutoThreshold {
			kind = KindIVF
		}
	}

	if kind == KindIVF {
		return NewIVF(entries, cfg)
	}
	return NewFlat(entries)
}

// better reports whether a ranks ahead of b.
func better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

func compareHits(a, b Hit) int {
	switch {
	case better(a, b):
		return -1
	case better(b, a):
		return 1
	default:
		return 0
	}
}

// sortedEntries validates entries and returns them ordered by ID.
func sortedEntries(entries []Entry) ([]Entry, int, error) {
	if len(entries) == 0 {
		return nil, 0, nil
	}
	dim := len(entries[0].Vector)
	if dim == 0 {
		return nil, 0, fmt.Errorf("%w: entry %d has an empty vector", ErrDimensionMismatch, entries[0].ID)
	}
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	for i, e := range sorted {
		if len(e.Vector) != dim {
			return nil, 0, fmt.Errorf("%w: entry %d has %d components, want %d", ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
		if i > 0 && sorted[i-1].ID == e.ID {
			return nil, 0, fmt.Errorf("%w: %d", ErrDuplicateID, e.ID)
		}
	}
	return sorted, dim, nil
}
