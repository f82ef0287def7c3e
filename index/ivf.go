package index

import (
	"cmp"
	"math"
	"slices"

	"github.com/poiesic/answerbank/core"
)

// IVF is an inverted-file index with exact re-ranking.
//
// Vectors are partitioned around spherical k-means centroids. A query ranks
// the centroids, scans the nprobe closest lists and scores candidates
// exactly. If fewer than topK candidates survive the filter and threshold,
// the probe doubles until enough are found or every list has been scanned,
// so a selective filter cannot starve the result.
type IVF struct {
	flat      *Flat
	centroids [][]float32
	lists     [][]int // positions into flat
	nprobe    int
	recall    float64
	exact     int
}

var _ Index = (*IVF)(nil)

// NewIVF builds and calibrates an IVF index.
func NewIVF(entries []Entry, cfg *Config) (*IVF, error) {
	flat, err := NewFlat(entries)
	if err != nil {
		return nil, err
	}
	ivf := &IVF{flat: flat, exact: cfg.ExactThreshold, recall: 1}

	n := flat.Len()
	if n == 0 {
		return ivf, nil
	}

	lists := cfg.Lists
	if lists == 0 {
		lists = int(math.Sqrt(float64(n)))
	}
	lists = max(1, min(lists, n))

	ivf.centroids = trainCentroids(flat.vecs, lists, cfg.Iterations)
	ivf.lists = make([][]int, lists)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	assignAll(flat.vecs, ivf.centroids, assign)
	for p, c := range assign {
		ivf.lists[c] = append(ivf.lists[c], p)
	}

	ivf.calibrate(cfg)
	return ivf, nil
}

// calibrate picks the smallest power-of-two probe count whose recall@k on
// sample corpus vectors reaches cfg.MinRecall, probing every list if none does.
func (ivf *IVF) calibrate(cfg *Config) {
	n := ivf.flat.Len()
	samples := min(cfg.CalibrationSamples, n)
	k := min(cfg.CalibrationK, n)
	total := len(ivf.lists)

	queries := make([][]float32, samples)
	truth := make([]IDSet, samples)
	for i := range queries {
		queries[i] = ivf.flat.vecs[i*n/samples]
		hits, _ := ivf.flat.Search(queries[i], nil, k, -math.MaxFloat32)
		truth[i] = make(IDSet, len(hits))
		for _, h := range hits {
			truth[i][h.ID] = struct{}{}
		}
	}

	for nprobe := 1; ; nprobe *= 2 {
		if nprobe >= total {
			ivf.nprobe, ivf.recall = total, 1
			return
		}
		found := 0
		for i, q := range queries {
			for _, h := range ivf.probe(q, nil, k, -math.MaxFloat32, nprobe) {
				if truth[i].Contains(h.ID) {
					found++
				}
			}
		}
		recall := float64(found) / float64(samples*k)
		if recall >= cfg.MinRecall {
			ivf.nprobe, ivf.recall = nprobe, recall
			return
		}
	}
}

// Len returns the number of indexed vectors.
func (ivf *IVF) Len() int {
	return ivf.flat.Len()
}

// Dimension returns the vector size.
func (ivf *IVF) Dimension() int {
	return ivf.flat.Dimension()
}

// Kind returns KindIVF.
func (ivf *IVF) Kind() Kind {
	return KindIVF
}

// Lists returns the number of partitions.
func (ivf *IVF) Lists() int {
	return len(ivf.lists)
}

// NProbe returns the calibrated number of lists probed per query.
func (ivf *IVF) NProbe() int {
	return ivf.nprobe
}

// Recall returns the recall measured during calibration.
func (ivf *IVF) Recall() float64 {
	return ivf.recall
}

// Search probes the closest lists, widening until topK hits survive.
func (ivf *IVF) Search(query []float32, allowed IDSet, topK int, minScore float32) ([]Hit, error) {
	if err := ivf.flat.checkQuery(query); err != nil {
		return nil, err
	}
	if topK <= 0 || ivf.flat.Len() == 0 || (allowed != nil && len(allowed) == 0) {
		return []Hit{}, nil
	}
	if allowed != nil && len(allowed) <= ivf.exact {
		return ivf.flat.Search(query, allowed, topK, minScore)
	}
	return ivf.probe(query, allowed, topK, minScore, ivf.nprobe), nil
}

func (ivf *IVF) probe(query []float32, allowed IDSet, topK int, minScore float32, nprobe int) []Hit {
	order := ivf.rankLists(query)
	top := newTopK(topK)

	done := 0
	limit := min(max(nprobe, 1), len(order))
	for {
		for _, list := range order[done:limit] {
			for _, p := range ivf.lists[list] {
				if allowed != nil && !allowed.Contains(ivf.flat.ids[p]) {
					continue
				}
				ivf.flat.score(top, query, p, minScore)
			}
		}
		done = limit
		if top.full() || done == len(order) {
			return top.result()
		}
		limit = min(limit*2, len(order))
	}
}

// rankLists orders list indexes by descending centroid similarity, ascending index on ties.
func (ivf *IVF) rankLists(query []float32) []int {
	type ranked struct {
		list  int
		score float32
	}
	rs := make([]ranked, len(ivf.centroids))
	for j, c := range ivf.centroids {
		rs[j] = ranked{list: j, score: core.Dot(query, c)}
	}
	slices.SortFunc(rs, func(a, b ranked) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.list, b.list)
	})
	order := make([]int, len(rs))
	for i, r := range rs {
		order[i] = r.list
	}
	return order
}
