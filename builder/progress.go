// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builder

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress is a snapshot of a running build.
type Progress struct {
	RunID    string
	State    State
	Rows     int // rows submitted
	Skipped  int // rows rejected so far, during validation or embedding
	ToEmbed  int // accepted rows that need a model call
	Embedded int // rows processed by the embedding stage so far
	Reused   int // rows that kept their prior vector
	Elapsed  time.Duration
}

// ProgressFunc receives progress updates. It is called from the build's
// goroutines one at a time and must not block for long.
type ProgressFunc func(Progress)

// tracker accumulates build counters and forwards them to a ProgressFunc.
type tracker struct {
	mu        sync.Mutex
	hook      ProgressFunc
	current   Progress
	startTime time.Time
}

func newTracker(runID string, rows int, hook ProgressFunc) *tracker {
	return &tracker{
		hook:      hook,
		current:   Progress{RunID: runID, Rows: rows},
		startTime: time.Now(),
	}
}

// transition moves to state and reports it.
func (t *tracker) transition(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.State = state
	t.report()
}

// plan records how much embedding work follows validation.
func (t *tracker) plan(toEmbed, reused, skipped int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.ToEmbed = toEmbed
	t.current.Reused = reused
	t.current.Skipped = skipped
}

// embedded records a finished batch and reports it.
func (t *tracker) embedded(done, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.Embedded += done
	t.current.Skipped += failed
	t.report()
}

func (t *tracker) elapsed() time.Duration {
	return time.Since(t.startTime)
}

// report forwards the counters. Must be called with lock held.
func (t *tracker) report() {
	if t.hook == nil {
		return
	}
	p := t.current
	p.Elapsed = time.Since(t.startTime)
	t.hook(p)
}

// TextProgress returns a ProgressFunc printing a one-line status to w,
// rewritten in place while embedding.
func TextProgress(w io.Writer) ProgressFunc {
	var mu sync.Mutex
	last := StateIdle
	return func(p Progress) {
		mu.Lock()
		defer mu.Unlock()

		if p.State != last && last == StateEmbedding {
			fmt.Fprintln(w)
		}
		switch p.State {
		case StateEmbedding:
			percentage := 100.0
			if p.ToEmbed > 0 {
				percentage = float64(p.Embedded) / float64(p.ToEmbed) * 100.0
			}
			rate := 0.0
			if secs := p.Elapsed.Seconds(); secs > 0 {
				rate = float64(p.Embedded) / secs
			}
			fmt.Fprintf(w, "\rEmbedding: %d/%d (%.1f%%) - %.1f rows/s, %d reused",
				p.Embedded, p.ToEmbed, percentage, rate, p.Reused)
		default:
			if p.State != last {
				fmt.Fprintf(w, "%s (%d rows, %d skipped)\n", p.State, p.Rows, p.Skipped)
			}
		}
		last = p.State
	}
}
