package store

import (
	"sync/atomic"

	"github.com/poiesic/answerbank/core"
)

// Live publishes the snapshot queries run against. Readers take the current
// snapshot once and use it for the whole operation; a swap never disturbs
// snapshots already handed out.
type Live struct {
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
}

// NewLive returns a Live with no snapshot published.
func NewLive() *Live {
	return &Live{}
}

// Current returns the published snapshot.
// Returns core.ErrStoreUnavailable before the first Swap.
func (l *Live) Current() (*Snapshot, error) {
	s := l.current.Load()
	if s == nil {
		return nil, core.ErrStoreUnavailable
	}
	return s, nil
}

// Swap publishes s and returns the snapshot it replaced, which may be nil.
func (l *Live) Swap(s *Snapshot) *Snapshot {
	old := l.current.Swap(s)
	l.generation.Add(1)
	return old
}

// SwapIfNewer publishes s unless the published snapshot comes from a later
// build. Reports whether s was published.
func (l *Live) SwapIfNewer(s *Snapshot) bool {
	for {
		old := l.current.Load()
		if old != nil && old.Build() > s.Build() {
			return false
		}
		if l.current.CompareAndSwap(old, s) {
			l.generation.Add(1)
			return true
		}
	}
}

// Generation counts the swaps performed so far.
func (l *Live) Generation() uint64 {
	return l.generation.Load()
}
