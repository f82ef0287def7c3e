package index

import (
	"runtime"
	"sync"

	"github.com/poiesic/answerbank/core"
)

// trainingPointsPerList caps the k-means training sample per centroid.
const trainingPointsPerList = 32

// trainCentroids runs spherical k-means over vecs and returns unit centroids.
// Initialization and sampling are deterministic: same input, same centroids.
func trainCentroids(vecs [][]float32, lists, iterations int) [][]float32 {
	n := len(vecs)
	sample := vecs
	if limit := lists * trainingPointsPerList; n > limit {
		sample = make([][]float32, limit)
		for i := range sample {
			sample[i] = vecs[i*n/limit]
		}
	}

	centroids := make([][]float32, lists)
	for j := range centroids {
		centroids[j] = append([]float32(nil), sample[j*len(sample)/lists]...)
	}

	assign := make([]int, len(sample))
	for i := range assign {
		assign[i] = -1
	}
	dim := len(sample[0])

	for range iterations {
		changed := assignAll(sample, centroids, assign)
		if changed == 0 {
			break
		}

		sums := make([][]float64, lists)
		for i, c := range assign {
			if sums[c] == nil {
				sums[c] = make([]float64, dim)
			}
			for d, x := range sample[i] {
				sums[c][d] += float64(x)
			}
		}
		for j, sum := range sums {
			if sum == nil {
				continue // empty list keeps its centroid
			}
			next := make([]float32, dim)
			for d, x := range sum {
				next[d] = float32(x)
			}
			if unit, err := core.NormalizeVector(next); err == nil {
				centroids[j] = unit
			}
		}
	}
	return centroids
}

// assignAll sets assign[i] to the nearest centroid of vecs[i] and returns how
// many assignments changed.
func assignAll(vecs, centroids [][]float32, assign []int) int {
	var mu sync.Mutex
	changed := 0
	parallelFor(len(vecs), func(lo, hi int) {
		local := 0
		for i := lo; i < hi; i++ {
			c := nearest(vecs[i], centroids)
			if assign[i] != c {
				assign[i] = c
				local++
			}
		}
		mu.Lock()
		changed += local
		mu.Unlock()
	})
	return changed
}

// nearest returns the index of the centroid with the highest dot product, lowest index on ties.
func nearest(v []float32, centroids [][]float32) int {
	best, bestScore := 0, core.Dot(v, centroids[0])
	for j := 1; j < len(centroids); j++ {
		if s := core.Dot(v, centroids[j]); s > bestScore {
			best, bestScore = j, s
		}
	}
	return best
}

// parallelFor splits [0, n) into contiguous chunks processed concurrently.
// Each index is visited by exactly one call, so per-index results do not
// depend on scheduling.
func parallelFor(n int, fn func(lo, hi int)) {
	workers := runtime.GOMAXPROCS(0)
	if n < 1024 || workers == 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(lo, hi)
		}()
	}
	wg.Wait()
}
