package index

import (
	"fmt"

	"github.com/poiesic/answerbank/core"
)

// Flat is an exhaustive exact index.
type Flat struct {
	ids  []core.ID
	vecs [][]float32
	pos  map[core.ID]int
	dim  int
}

var _ Index = (*Flat)(nil)

// NewFlat builds a Flat index. All vectors must share one dimension and IDs must be unique.
func NewFlat(entries []Entry) (*Flat, error) {
	sorted, dim, err := sortedEntries(entries)
	if err != nil {
		return nil, err
	}
	f := &Flat{
		ids:  make([]core.ID, len(sorted)),
		vecs: make([][]float32, len(sorted)),
		pos:  make(map[core.ID]int, len(sorted)),
		dim:  dim,
	}
	for i, e := range sorted {
		f.ids[i] = e.ID
		f.vecs[i] = e.Vector
		f.pos[e.ID] = i
	}
	return f, nil
}

// Len returns the number of indexed vectors.
func (f *Flat) Len() int {
	return len(f.ids)
}

// Dimension returns the vector size.
func (f *Flat) Dimension() int {
	return f.dim
}

// Kind returns KindFlat.
func (f *Flat) Kind() Kind {
	return KindFlat
}

// Search scans every allowed vector.
func (f *Flat) Search(query []float32, allowed IDSet, topK int, minScore float32) ([]Hit, error) {
	if err := f.checkQuery(query); err != nil {
		return nil, err
	}
	if topK <= 0 || len(f.ids) == 0 || (allowed != nil && len(allowed) == 0) {
		return []Hit{}, nil
	}

	top := newTopK(topK)
	if allowed != nil && len(allowed) < len(f.ids)/2 {
		// Small filters: visit only the allowed positions.
		for id := range allowed {
			if p, ok := f.pos[id]; ok {
				f.score(top, query, p, minScore)
			}
		}
	} else {
		for p, id := range f.ids {
			if allowed != nil && !allowed.Contains(id) {
				continue
			}
			f.score(top, query, p, minScore)
		}
	}
	return top.result(), nil
}

func (f *Flat) score(top *topK, query []float32, p int, minScore float32) {
	s := core.Dot(query, f.vecs[p])
	if s < minScore {
		return
	}
	top.offer(Hit{ID: f.ids[p], Score: s})
}

func (f *Flat) checkQuery(query []float32) error {
	if f.dim != 0 && len(query) != f.dim {
		return fmt.Errorf("%w: query has %d components, index %d", ErrDimensionMismatch, len(query), f.dim)
	}
	return nil
}
