package index

import (
	"container/heap"
	"slices"
)

// topK keeps the k best hits seen so far. The heap root is the worst kept hit.
type topK struct {
	k    int
	hits []Hit
}

func newTopK(k int) *topK {
	return &topK{k: k, hits: make([]Hit, 0, min(k, 1024))}
}

func (t *topK) Len() int           { return len(t.hits) }
func (t *topK) Less(i, j int) bool { return better(t.hits[j], t.hits[i]) }
func (t *topK) Swap(i, j int)      { t.hits[i], t.hits[j] = t.hits[j], t.hits[i] }
func (t *topK) Push(x any)         { t.hits = append(t.hits, x.(Hit)) }
func (t *topK) Pop() any {
	last := t.hits[len(t.hits)-1]
	t.hits = t.hits[:len(t.hits)-1]
	return last
}

// offer considers h for inclusion.
func (t *topK) offer(h Hit) {
	if len(t.hits) < t.k {
		heap.Push(t, h)
		return
	}
	if better(h, t.hits[0]) {
		t.hits[0] = h
		heap.Fix(t, 0)
	}
}

// full reports whether k hits are held.
func (t *topK) full() bool {
	return len(t.hits) >= t.k
}

// result returns the kept hits in rank order.
func (t *topK) result() []Hit {
	out := slices.Clone(t.hits)
	slices.SortFunc(out, compareHits)
	return out
}
