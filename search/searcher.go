package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/answerbank/ai"
	"github.com/poiesic/answerbank/core"
	"github.com/poiesic/answerbank/index"
	"github.com/poiesic/answerbank/store"
)

// Defaults applied to every query.
const (
	DefaultTopK     = 20
	DefaultMinScore = float32(0)
)

// Searcher answers similarity and keyword queries against the live snapshot.
type Searcher struct {
	live     *store.Live
	embedder *ai.Embedder
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(live *store.Live, embedder *ai.Embedder, opts ...Option) (*Searcher, error) {
	if live == nil {
		return nil, ErrLiveRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		live:     live,
		embedder: embedder,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Query holds the per-search parameters.
type Query struct {
	TopK     int
	MinScore float32
	Dedup    DedupKey
	Monitor  SearchMonitor
}

// QueryOption adjusts a Query.
type QueryOption func(*Query)

// WithTopK sets the maximum number of results.
func WithTopK(k int) QueryOption {
	return func(q *Query) {
		q.TopK = k
	}
}

// WithMinScore drops results scoring below min.
func WithMinScore(minScore float32) QueryOption {
	return func(q *Query) {
		q.MinScore = minScore
	}
}

// WithDedup collapses results sharing a key, keeping the best-scoring one.
func WithDedup(key DedupKey) QueryOption {
	return func(q *Query) {
		q.Dedup = key
	}
}

// WithMonitor receives callbacks at each stage of the search.
func WithMonitor(m SearchMonitor) QueryOption {
	return func(q *Query) {
		q.Monitor = m
	}
}

func newQuery(opts []QueryOption) (*Query, error) {
	q := &Query{TopK: DefaultTopK, MinScore: DefaultMinScore}
	for _, opt := range opts {
		opt(q)
	}
	if q.TopK < 1 {
		return nil, fmt.Errorf("%w: %w: %d", core.ErrValidation, ErrInvalidTopK, q.TopK)
	}
	if q.Monitor == nil {
		q.Monitor = &noopMonitor{}
	}
	return q, nil
}

// Search returns the archived answers most similar to text among the leaves
// selected by filter, best first. Equal scores are ordered by ascending
// record ID. A filter that selects nothing yields an empty slice.
//
// Fails with core.ErrStoreUnavailable before a version is live,
// core.ErrSignatureMismatch if the live version was built with another
// model, and core.ErrEmbedding if text cannot be embedded.
func (s *Searcher) Search(ctx context.Context, text string, filter core.CategoryFilter, opts ...QueryOption) ([]*core.RankedAnswer, error) {
	q, err := newQuery(opts)
	if err != nil {
		return nil, err
	}
	q.Monitor.Start(text, filter)
	results, err := s.search(ctx, text, filter, q)
	q.Monitor.Finish(results)
	return results, err
}

func (s *Searcher) search(ctx context.Context, text string, filter core.CategoryFilter, q *Query) ([]*core.RankedAnswer, error) {
	monitor := q.Monitor
	snapshot, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	var allowed index.IDSet
	if !filter.IsEmpty() {
		leaves := snapshot.Categories().LeavesFor(filter)
		allowed = snapshot.AllowedIDs(leaves)
		monitor.AfterFilter(leaves, len(allowed))
		if len(allowed) == 0 {
			s.logger.Debug("filter selects no records", "filter", filter)
			return []*core.RankedAnswer{}, nil
		}
	} else {
		monitor.AfterFilter(snapshot.Categories().Leaves(0), snapshot.Index().Len())
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(vector)

	return s.rank(snapshot, vector, allowed, q)
}

// rank searches the index and maps hits to records. With deduplication on,
// the index is asked for more hits until topK distinct results are found
// or the candidates run out.
func (s *Searcher) rank(snapshot *store.Snapshot, vector []float32, allowed index.IDSet, q *Query) ([]*core.RankedAnswer, error) {
	idx := snapshot.Index()
	limit := q.TopK
	for {
		hits, err := idx.Search(vector, allowed, limit, q.MinScore)
		if err != nil {
			s.logger.Error("error querying index", "err", err)
			return nil, err
		}
		q.Monitor.AfterIndexSearch(hits)

		results := s.collect(snapshot, hits, q)
		if len(results) >= q.TopK || len(hits) < limit || limit >= idx.Len() {
			if len(results) > q.TopK {
				results = results[:q.TopK]
			}
			return results, nil
		}
		limit *= 2
	}
}

func (s *Searcher) collect(snapshot *store.Snapshot, hits []index.Hit, q *Query) []*core.RankedAnswer {
	results := make([]*core.RankedAnswer, 0, len(hits))
	var seen map[string]bool
	if q.Dedup != nil {
		seen = make(map[string]bool, len(hits))
	}
	for _, hit := range hits {
		record, err := snapshot.Record(hit.ID)
		if err != nil {
			s.logger.Warn("index hit without record", "id", hit.ID)
			continue
		}
		if q.Dedup != nil {
			if key := q.Dedup(record); key != "" {
				if seen[key] {
					q.Monitor.DuplicateDropped(record, key)
					continue
				}
				seen[key] = true
			}
		}
		results = append(results, &core.RankedAnswer{Record: record, Score: hit.Score})
	}
	return results
}

// Keyword returns the records whose question or answer contains keyword,
// ignoring case, among the leaves selected by filter, in ascending ID order.
// Records without a usable vector are included.
func (s *Searcher) Keyword(ctx context.Context, keyword string, filter core.CategoryFilter) ([]*core.AnswerRecord, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrEmptyKeyword)
	}
	snapshot, err := s.live.Current()
	if err != nil {
		return nil, err
	}

	var leaves map[core.ID]bool
	if !filter.IsEmpty() {
		ids := snapshot.Categories().LeavesFor(filter)
		leaves = make(map[core.ID]bool, len(ids))
		for _, id := range ids {
			leaves[id] = true
		}
	}

	results := []*core.AnswerRecord{}
	for record := range snapshot.Records() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if leaves != nil && !leaves[record.CategoryId] {
			continue
		}
		if matchesKeyword(record, keyword) {
			results = append(results, record)
		}
	}
	return results, nil
}

// Categories returns the category tree of the live snapshot.
func (s *Searcher) Categories() (*core.CategoryTree, error) {
	snapshot, err := s.live.Current()
	if err != nil {
		return nil, err
	}
	return snapshot.Categories(), nil
}

// snapshot returns the live snapshot after checking it shares the
// embedder's signature.
func (s *Searcher) snapshot() (*store.Snapshot, error) {
	snapshot, err := s.live.Current()
	if err != nil {
		return nil, err
	}
	if err := snapshot.Signature().Check(s.embedder.Signature()); err != nil {
		return nil, err
	}
	return snapshot, nil
}
