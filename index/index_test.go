package index

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/poiesic/answerbank/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(t *testing.T, v ...float32) []float32 {
	t.Helper()
	u, err := core.NormalizeVector(v)
	require.NoError(t, err)
	return u
}

// randomEntries returns n deterministic unit vectors with IDs 1..n.
func randomEntries(t *testing.T, n, dim int, seed uint64) []Entry {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	entries := make([]Entry, n)
	for i := range entries {
		v := make([]float32, dim)
		for d := range v {
			v[d] = float32(rng.NormFloat64())
		}
		entries[i] = Entry{ID: core.ID(i + 1), Vector: unit(t, v...)}
	}
	return entries
}

func ids(hits []Hit) []core.ID {
	out := make([]core.ID, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func buildBoth(t *testing.T, entries []Entry, opts ...Option) map[string]Index {
	t.Helper()
	flat, err := Build(entries, append(opts, WithKind(KindFlat))...)
	require.NoError(t, err)
	ivf, err := Build(entries, append(opts, WithKind(KindIVF))...)
	require.NoError(t, err)
	return map[string]Index{"flat": flat, "ivf": ivf}
}

func TestSearchOrdersByScoreThenID(t *testing.T) {
	same := unit(t, 1, 1, 0)
	entries := []Entry{
		{ID: 9, Vector: same},
		{ID: 3, Vector: same},
		{ID: 5, Vector: same},
		{ID: 7, Vector: unit(t, 1, 0, 0)},
		{ID: 1, Vector: unit(t, 0, 0, 1)},
	}

	for name, idx := range buildBoth(t, entries, WithExactThreshold(0)) {
		t.Run(name, func(t *testing.T) {
			hits, err := idx.Search(same, nil, 10, -1)
			require.NoError(t, err)
			assert.Equal(t, []core.ID{3, 5, 9, 7, 1}, ids(hits))
			for i := 1; i < len(hits); i++ {
				assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
			}

			top2, err := idx.Search(same, nil, 2, -1)
			require.NoError(t, err)
			assert.Equal(t, []core.ID{3, 5}, ids(top2))
		})
	}
}

func TestSearchFilterAndThreshold(t *testing.T) {
	entries := []Entry{
		{ID: 1, Vector: unit(t, 1, 0)},
		{ID: 2, Vector: unit(t, 1, 1)},
		{ID: 3, Vector: unit(t, 0, 1)},
		{ID: 4, Vector: unit(t, -1, 0)},
	}
	query := unit(t, 1, 0)

	for name, idx := range buildBoth(t, entries, WithExactThreshold(0)) {
		t.Run(name, func(t *testing.T) {
			hits, err := idx.Search(query, NewIDSet(2, 3, 4), 10, -1)
			require.NoError(t, err)
			assert.Equal(t, []core.ID{2, 3, 4}, ids(hits))

			hits, err = idx.Search(query, nil, 10, 0.5)
			require.NoError(t, err)
			assert.Equal(t, []core.ID{1, 2}, ids(hits))

			hits, err = idx.Search(query, NewIDSet(), 10, -1)
			require.NoError(t, err)
			assert.NotNil(t, hits)
			assert.Empty(t, hits)

			hits, err = idx.Search(query, NewIDSet(99), 10, -1)
			require.NoError(t, err)
			assert.Empty(t, hits)

			hits, err = idx.Search(query, nil, 0, -1)
			require.NoError(t, err)
			assert.Empty(t, hits)

			_, err = idx.Search([]float32{1, 0, 0}, nil, 10, -1)
			assert.ErrorIs(t, err, ErrDimensionMismatch)
		})
	}
}

func TestBuildRejectsBadEntries(t *testing.T) {
	_, err := NewFlat([]Entry{{ID: 1, Vector: []float32{1, 0}}, {ID: 2, Vector: []float32{1}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewFlat([]Entry{{ID: 1, Vector: []float32{1, 0}}, {ID: 1, Vector: []float32{0, 1}}})
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = Build(nil, WithKind("hnsw"))
	assert.Error(t, err)

	_, err = Build(nil, WithMinRecall(1.5))
	assert.Error(t, err)
}

func TestEmptyIndex(t *testing.T) {
	for name, idx := range buildBoth(t, nil) {
		t.Run(name, func(t *testing.T) {
			assert.Zero(t, idx.Len())
			assert.Zero(t, idx.Dimension())
			hits, err := idx.Search([]float32{1}, nil, 5, 0)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestBuildAutoKind(t *testing.T) {
	entries := randomEntries(t, 50, 8, 1)

	idx, err := Build(entries, WithAutoThreshold(100))
	require.NoError(t, err)
	assert.Equal(t, KindFlat, idx.Kind())

	idx, err = Build(entries, WithAutoThreshold(50))
	require.NoError(t, err)
	assert.Equal(t, KindIVF, idx.Kind())
}

func TestIVFMatchesFlatWhenProbingEverything(t *testing.T) {
	entries := randomEntries(t, 500, 16, 7)
	flat, err := NewFlat(entries)
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.MinRecall = 1
	ivf, err := NewIVF(entries, cfg)
	require.NoError(t, err)

	queries := randomEntries(t, 20, 16, 99)
	for _, q := range queries {
		want, err := flat.Search(q.Vector, nil, 10, -1)
		require.NoError(t, err)
		got := ivf.probe(q.Vector, nil, 10, -1, ivf.Lists())
		assert.Equal(t, want, got)
	}
}

func TestIVFCalibrationMeetsRecall(t *testing.T) {
	entries := randomEntries(t, 2000, 16, 3)
	cfg := DefaultConfig()
	cfg.MinRecall = 0.9
	cfg.CalibrationK = 10
	ivf, err := NewIVF(entries, cfg)
	require.NoError(t, err)

	assert.Equal(t, int(math.Sqrt(2000)), ivf.Lists())
	assert.GreaterOrEqual(t, ivf.Recall(), 0.9)
	assert.GreaterOrEqual(t, ivf.NProbe(), 1)
	assert.LessOrEqual(t, ivf.NProbe(), ivf.Lists())

	// Deterministic: rebuilding yields the same calibration and results.
	again, err := NewIVF(entries, cfg)
	require.NoError(t, err)
	assert.Equal(t, ivf.NProbe(), again.NProbe())
	q := entries[17].Vector
	h1, _ := ivf.Search(q, nil, 10, -1)
	h2, _ := again.Search(q, nil, 10, -1)
	assert.Equal(t, h1, h2)
	assert.Equal(t, core.ID(18), h1[0].ID)
}

func TestIVFSelectiveFilterIsNotStarved(t *testing.T) {
	entries := randomEntries(t, 1000, 16, 5)
	cfg := DefaultConfig()
	cfg.ExactThreshold = 0
	ivf, err := NewIVF(entries, cfg)
	require.NoError(t, err)

	allowed := NewIDSet(3, 500, 997)
	hits, err := ivf.Search(entries[0].Vector, allowed, 5, -1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.ID{3, 500, 997}, ids(hits))
}

func TestIVFExactThresholdMatchesFlat(t *testing.T) {
	entries := randomEntries(t, 1000, 16, 11)
	flat, err := NewFlat(entries)
	require.NoError(t, err)
	ivf, err := NewIVF(entries, DefaultConfig())
	require.NoError(t, err)

	allowed := NewIDSet()
	for i := core.ID(1); i <= 200; i += 2 {
		allowed[i] = struct{}{}
	}
	q := entries[500].Vector
	want, err := flat.Search(q, allowed, 20, -1)
	require.NoError(t, err)
	got, err := ivf.Search(q, allowed, 20, -1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindAuto, k)

	k, err = ParseKind("ivf")
	require.NoError(t, err)
	assert.Equal(t, KindIVF, k)

	_, err = ParseKind("annoy")
	assert.Error(t, err)
}
