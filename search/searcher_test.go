package search

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/answerbank/ai"
	"github.com/poiesic/answerbank/ai/mock"
	"github.com/poiesic/answerbank/builder"
	"github.com/poiesic/answerbank/core"
	"github.com/poiesic/answerbank/index"
	"github.com/poiesic/answerbank/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refundQuery = "how long does a refund take"

func refundRows() []builder.Row {
	return []builder.Row{
		{Code: "R1", Path: [3]string{"A", "B", "C"}, Question: "refund policy", Answer: "Refunds are processed in 5 days"},
		{Code: "R2", Path: [3]string{"A", "B", "C"}, Question: "refund timing", Answer: "Refund takes five business days"},
		{Code: "H1", Path: [3]string{"X", "Y", "Z"}, Question: "opening hours", Answer: "We open at 9am"},
	}
}

type fixture struct {
	live     *store.Live
	embedder *ai.Embedder
	model    *mock.MockEmbedder
	searcher *Searcher
}

func newFixture(t *testing.T, rows []builder.Row) *fixture {
	t.Helper()
	embedder, model := mock.NewEmbedder()
	live := store.NewLive()

	b, err := builder.New(store.NewLayout(t.TempDir()), embedder,
		builder.WithLive(live), builder.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	_, err = b.Build(context.Background(), rows, builder.DeriveCategories(rows))
	require.NoError(t, err)

	searcher, err := NewSearcher(live, embedder)
	require.NoError(t, err)
	return &fixture{live: live, embedder: embedder, model: model, searcher: searcher}
}

func codes(results []*core.RankedAnswer) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Record.Code
	}
	return out
}

func TestNewSearcher(t *testing.T) {
	embedder, _ := mock.NewEmbedder()
	live := store.NewLive()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(live, embedder)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(live, embedder, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher.logger)
	})

	t.Run("with custom logger", func(t *testing.T) {
		searcher, err := NewSearcher(live, embedder, WithLogger(slog.Default()))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("nil live store", func(t *testing.T) {
		_, err := NewSearcher(nil, embedder)
		assert.Equal(t, ErrLiveRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(live, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestSearchRefundScenario(t *testing.T) {
	f := newFixture(t, refundRows())

	results, err := f.searcher.Search(context.Background(), refundQuery, core.FilterPath("A"))
	require.NoError(t, err)
	require.Equal(t, []string{"R2", "R1"}, codes(results))
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, float32(0))
}

func TestSearchWithoutFilter(t *testing.T) {
	f := newFixture(t, refundRows())

	results, err := f.searcher.Search(context.Background(), refundQuery, core.CategoryFilter{})
	require.NoError(t, err)
	require.Equal(t, []string{"R2", "R1", "H1"}, codes(results))
	assert.InDelta(t, 0, results[2].Score, 1e-6)

	results, err = f.searcher.Search(context.Background(), refundQuery, core.CategoryFilter{}, WithMinScore(0.1))
	require.NoError(t, err)
	assert.Equal(t, []string{"R2", "R1"}, codes(results))

	results, err = f.searcher.Search(context.Background(), refundQuery, core.CategoryFilter{}, WithTopK(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"R2"}, codes(results))
}

func TestSearchFilterByCategoryID(t *testing.T) {
	f := newFixture(t, refundRows())

	filter := core.CategoryFilter{CategoryId: core.CategoryID("X", "Y")}
	results, err := f.searcher.Search(context.Background(), refundQuery, filter)
	require.NoError(t, err)
	assert.Equal(t, []string{"H1"}, codes(results))
}

func TestSearchUnresolvableFilterIsEmpty(t *testing.T) {
	f := newFixture(t, refundRows())
	calls := f.model.CallCount()

	for _, filter := range []core.CategoryFilter{
		core.FilterPath("Nope"),
		core.FilterPath("A", "B", "C", "D"),
		{CategoryId: 12345},
	} {
		results, err := f.searcher.Search(context.Background(), refundQuery, filter)
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	}
	assert.Equal(t, calls, f.model.CallCount(), "empty filter should not embed the query")
}

func TestSearchInvalidTopK(t *testing.T) {
	f := newFixture(t, refundRows())

	_, err := f.searcher.Search(context.Background(), refundQuery, core.CategoryFilter{}, WithTopK(0))
	assert.ErrorIs(t, err, ErrInvalidTopK)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSearchStoreUnavailable(t *testing.T) {
	embedder, _ := mock.NewEmbedder()
	searcher, err := NewSearcher(store.NewLive(), embedder)
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	_, err = searcher.Search(context.Background(), refundQuery, core.CategoryFilter{}, WithMonitor(monitor))
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Equal(t, []string{"start", "finish"}, monitor.stages)

	_, err = searcher.Keyword(context.Background(), "refund", core.CategoryFilter{})
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	_, err = searcher.Categories()
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestSearchSignatureMismatch(t *testing.T) {
	f := newFixture(t, refundRows())

	other, err := ai.NewEmbedder(mock.NewMockEmbedderWithDimension(64), core.Signature{ModelID: "other-model", Dimension: 64})
	require.NoError(t, err)
	searcher, err := NewSearcher(f.live, other)
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), refundQuery, core.CategoryFilter{})
	assert.ErrorIs(t, err, core.ErrSignatureMismatch)
}

func TestSearchEmbeddingFailure(t *testing.T) {
	f := newFixture(t, refundRows())
	f.model.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, assert.AnError
	}

	monitor := &recordingMonitor{}
	_, err := f.searcher.Search(context.Background(), refundQuery, core.CategoryFilter{}, WithMonitor(monitor))
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.Equal(t, []string{"start", "filter", "finish"}, monitor.stages)
}

func TestSearchConcurrent(t *testing.T) {
	f := newFixture(t, refundRows())

	expected, err := f.searcher.Search(context.Background(), refundQuery, core.CategoryFilter{})
	require.NoError(t, err)

	const workers = 16
	results := make([][]*core.RankedAnswer, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.searcher.Search(context.Background(), refundQuery, core.CategoryFilter{})
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, expected, results[i])
	}
}

func TestSearchDedup(t *testing.T) {
	rows := append(refundRows(),
		builder.Row{Code: "R3", Path: [3]string{"A", "B", "C"}, Question: "refund duration", Answer: "Refund takes five business days."},
		builder.Row{Code: "R4", Path: [3]string{"A", "B", "D"}, Question: "when is my refund paid", Answer: "refund takes FIVE business days"},
	)
	f := newFixture(t, rows)

	all, err := f.searcher.Search(context.Background(), refundQuery, core.FilterPath("A"))
	require.NoError(t, err)
	require.Len(t, all, 4)

	deduped, err := f.searcher.Search(context.Background(), refundQuery, core.FilterPath("A"), WithDedup(DedupByAnswer))
	require.NoError(t, err)
	require.Len(t, deduped, 2)
	assert.Contains(t, codes(deduped), "R1")

	// The survivor of the duplicate group is the best-scoring member.
	var best *core.RankedAnswer
	for _, r := range all {
		if r.Record.Code != "R1" {
			best = r
			break
		}
	}
	assert.Contains(t, codes(deduped), best.Record.Code)
	assert.True(t, slices.IsSortedFunc(deduped, func(a, b *core.RankedAnswer) int {
		return -cmpScore(a.Score, b.Score)
	}))

	top1, err := f.searcher.Search(context.Background(), refundQuery, core.FilterPath("A"), WithDedup(DedupByAnswer), WithTopK(2))
	require.NoError(t, err)
	assert.Len(t, top1, 2, "dedup widens the index search to fill topK")
}

func cmpScore(a, b float32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func TestKeyword(t *testing.T) {
	f := newFixture(t, refundRows())
	ctx := context.Background()

	records, err := f.searcher.Keyword(ctx, "REFUND", core.CategoryFilter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Id < records[1].Id)
	assert.ElementsMatch(t, []string{"R1", "R2"}, []string{records[0].Code, records[1].Code})

	records, err = f.searcher.Keyword(ctx, "9am", core.CategoryFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "H1", records[0].Code)

	records, err = f.searcher.Keyword(ctx, "refund", core.FilterPath("X"))
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	_, err = f.searcher.Keyword(ctx, "   ", core.CategoryFilter{})
	assert.ErrorIs(t, err, ErrEmptyKeyword)
}

func TestCategories(t *testing.T) {
	f := newFixture(t, refundRows())

	tree, err := f.searcher.Categories()
	require.NoError(t, err)
	assert.Equal(t, 6, tree.Len())
	id, ok := tree.Resolve("A", "B", "C")
	require.True(t, ok)
	assert.True(t, tree.IsLeaf(id))
}

type recordingMonitor struct {
	noopMonitor
	mu      sync.Mutex
	stages  []string
	leaves  []core.ID
	allowed int
	hits    []index.Hit
	dropped []string
}

func (m *recordingMonitor) record(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}

func (m *recordingMonitor) Start(_ string, _ core.CategoryFilter) { m.record("start") }

func (m *recordingMonitor) AfterFilter(leaves []core.ID, allowed int) {
	m.leaves, m.allowed = leaves, allowed
	m.record("filter")
}

func (m *recordingMonitor) AfterEmbedding(_ []float32) { m.record("embedding") }

func (m *recordingMonitor) AfterIndexSearch(hits []index.Hit) {
	m.hits = hits
	m.record("index")
}

func (m *recordingMonitor) DuplicateDropped(r *core.AnswerRecord, _ string) {
	m.dropped = append(m.dropped, r.Code)
}

func (m *recordingMonitor) Finish(_ []*core.RankedAnswer) { m.record("finish") }

func TestSearchMonitor(t *testing.T) {
	f := newFixture(t, refundRows())
	monitor := &recordingMonitor{}

	results, err := f.searcher.Search(context.Background(), refundQuery, core.FilterPath("A"), WithMonitor(monitor))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []string{"start", "filter", "embedding", "index", "finish"}, monitor.stages)
	assert.Len(t, monitor.leaves, 1)
	assert.Equal(t, 2, monitor.allowed)
	assert.Len(t, monitor.hits, 2)
	assert.Empty(t, monitor.dropped)

	monitor = &recordingMonitor{}
	_, err = f.searcher.Search(context.Background(), refundQuery, core.FilterPath("Nope"), WithMonitor(monitor))
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "filter", "finish"}, monitor.stages)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "refund takes five business days", normalizeText("  Refund takes, FIVE business-days! "))
	assert.Equal(t, "", normalizeText("?!"))
}

func TestDedupKeys(t *testing.T) {
	r := &core.AnswerRecord{Code: "C1", Answer: "Yes.", Metadata: map[string]string{"agency1": "Tax"}}
	assert.Equal(t, "yes", DedupByAnswer(r))
	assert.Equal(t, "C1", DedupByCode(r))
	assert.Equal(t, "Tax", DedupByMetadata("agency1")(r))
	assert.Equal(t, "", DedupByMetadata("missing")(r))
}
