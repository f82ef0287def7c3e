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
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/answerbank/ai"
	"github.com/poiesic/answerbank/core"
	"github.com/poiesic/answerbank/index"
	"github.com/poiesic/answerbank/storage"
	"github.com/poiesic/answerbank/storage/badger"
	"github.com/poiesic/answerbank/store"
)

// SkippedRow is a row that did not make it into the index.
type SkippedRow struct {
	Line   int
	Key    string
	Reason string
}

// BuildReport summarizes a build.
type BuildReport struct {
	RunID        string
	State        State
	Rows         int          // rows submitted
	Stored       int          // records written, indexed or not
	Accepted     int          // records written with a vector
	Skipped      []SkippedRow // ordered by line
	Reused       int          // vectors carried over from the prior version
	Embedded     int          // vectors computed in this run
	StoreVersion uint64
	Signature    core.Signature
	Path         string
	Pruned       []uint64
	Duration     time.Duration
}

// Builder produces new store versions under one corpus root.
// At most one build runs per Builder at a time; the lineage database lock
// extends that to other processes sharing the root.
type Builder struct {
	layout       store.Layout
	embedder     *ai.Embedder
	live         *store.Live
	cfg          Config
	progress     ProgressFunc
	indexOptions []index.Option
	logger       *slog.Logger
	running      atomic.Bool
}

// New creates a builder for the corpus at layout.
func New(layout store.Layout, embedder *ai.Embedder, opts ...Option) (*Builder, error) {
	if layout.Root == "" {
		return nil, ErrRootRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	b := &Builder{
		layout:   layout,
		embedder: embedder,
		cfg:      *DefaultConfig(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "builder")
	return b, nil
}

// Config returns the builder's settings.
func (b *Builder) Config() Config {
	return b.cfg
}

// Build validates rows against categories, embeds them and publishes the
// result as the new live version. The report is returned even when the
// build fails; its State tells where it stopped.
func (b *Builder) Build(ctx context.Context, rows []Row, categories []*core.Category) (*BuildReport, error) {
	if !b.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %s", core.ErrBuildInProgress, b.layout.Root)
	}
	defer b.running.Store(false)

	runID := uuid.NewString()
	r := &buildRun{
		Builder: b,
		report: &BuildReport{
			RunID:     runID,
			Rows:      len(rows),
			Signature: b.embedder.Signature(),
		},
		tracker: newTracker(runID, len(rows), b.progress),
		logger:  b.logger.With("run", runID),
	}
	err := r.execute(ctx, rows, categories)
	r.finish(err)
	return r.report, err
}

// buildRun is the state of a single Build call.
type buildRun struct {
	*Builder
	report    *BuildReport
	tracker   *tracker
	logger    *slog.Logger
	staging   string
	committed bool
	sources   map[core.ID]*candidate
}

// candidate is a row that passed validation.
type candidate struct {
	row  Row
	key  string
	leaf core.ID
}

func (r *buildRun) execute(ctx context.Context, rows []Row, categories []*core.Category) error {
	r.tracker.transition(StateValidating)
	if len(rows) == 0 {
		return fmt.Errorf("%w: %w", core.ErrValidation, ErrNoRows)
	}
	if len(categories) == 0 {
		return fmt.Errorf("%w: %w", core.ErrValidation, ErrNoCategories)
	}
	tree, err := core.NewCategoryTree(categories)
	if err != nil {
		return fmt.Errorf("%w: categories: %w", core.ErrValidation, err)
	}

	lineage, err := badger.OpenLineage(r.layout.LineagePath(), r.logger)
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			return fmt.Errorf("%w: %w", core.ErrBuildInProgress, err)
		}
		return fmt.Errorf("%w: lineage: %w", core.ErrStoreUnavailable, err)
	}
	defer lineage.Close()
	// Holding the lineage lock means no other build is writing to staging.
	if err := r.layout.CleanStaging(); err != nil {
		r.logger.Warn("removing stale staging output failed", "error", err)
	}

	accepted := r.validate(rows, tree)
	if len(accepted) == 0 {
		return fmt.Errorf("%w: %w: %d rows rejected", core.ErrValidation, ErrNoValidRows, len(rows))
	}
	keys := make([]string, len(accepted))
	for i, c := range accepted {
		keys[i] = c.key
	}
	ids, err := lineage.AssignIDs(ctx, keys)
	if err != nil {
		return fmt.Errorf("assigning record ids: %w", err)
	}
	records, toEmbed := r.assemble(ctx, accepted, ids)

	r.tracker.transition(StateEmbedding)
	if err := r.embed(ctx, toEmbed); err != nil {
		return err
	}
	r.collectEmbeddingSkips(toEmbed)

	r.tracker.transition(StateWriting)
	build, err := lineage.NextBuild(ctx)
	if err != nil {
		return fmt.Errorf("allocating build number: %w", err)
	}
	snapshot, err := r.write(ctx, build, tree, records)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	r.tracker.transition(StateSwapping)
	return r.swap(snapshot)
}

// validate normalizes rows and rejects the ones that cannot be stored.
func (r *buildRun) validate(rows []Row, tree *core.CategoryTree) []*candidate {
	var accepted []*candidate
	firstSeen := make(map[string]int)
	for i := range rows {
		row := rows[i]
		row.normalize()
		row.Metadata = maps.Clone(row.Metadata)
		if row.Line == 0 {
			row.Line = i + 1
		}
		key := row.Key()

		leaf, reason := r.check(&row, tree)
		if reason == "" {
			if first, dup := firstSeen[key]; dup {
				reason = fmt.Sprintf("duplicate row key, first seen at line %d", first)
			}
		}
		if reason != "" {
			r.skip(row.Line, key, reason)
			continue
		}
		firstSeen[key] = row.Line
		accepted = append(accepted, &candidate{row: row, key: key, leaf: leaf})
	}
	return accepted
}

func (r *buildRun) check(row *Row, tree *core.CategoryTree) (core.ID, string) {
	for i, label := range row.Path {
		if label == "" {
			return 0, fmt.Sprintf("missing cat%d", i+1)
		}
	}
	if row.Question == "" {
		return 0, "missing question text"
	}
	if row.Answer == "" {
		return 0, "missing answer text"
	}
	if limit := r.cfg.MaxTextLength; limit > 0 {
		if n := utf8.RuneCountInString(row.Question); n > limit {
			return 0, fmt.Sprintf("question has %d characters, limit is %d", n, limit)
		}
		if n := utf8.RuneCountInString(row.Answer); n > limit {
			return 0, fmt.Sprintf("answer has %d characters, limit is %d", n, limit)
		}
	}
	leaf, ok := tree.Resolve(row.Path[:]...)
	if !ok || !tree.IsLeaf(leaf) {
		return 0, fmt.Sprintf("category %s/%s/%s not found", row.Path[0], row.Path[1], row.Path[2])
	}
	return leaf, ""
}

func (r *buildRun) skip(line int, key, reason string) {
	r.report.Skipped = append(r.report.Skipped, SkippedRow{Line: line, Key: key, Reason: reason})
	r.logger.Debug("row skipped", "line", line, "reason", reason)
}

// assemble turns candidates into records, carrying timestamps and, when
// enabled, vectors over from the prior version. Returns all records and the
// ones that still need embedding.
func (r *buildRun) assemble(ctx context.Context, accepted []*candidate, ids []core.ID) ([]*core.AnswerRecord, []*core.AnswerRecord) {
	prior := r.priorSnapshot(ctx)
	now := time.Now().UTC().Truncate(time.Microsecond)

	r.sources = make(map[core.ID]*candidate, len(accepted))
	records := make([]*core.AnswerRecord, 0, len(accepted))
	var toEmbed []*core.AnswerRecord
	for i, c := range accepted {
		record := &core.AnswerRecord{
			Id:          ids[i],
			CategoryId:  c.leaf,
			Code:        c.row.Code,
			Question:    c.row.Question,
			Answer:      c.row.Answer,
			Metadata:    c.row.Metadata,
			ContentHash: c.row.contentHash(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		r.sources[record.Id] = c
		records = append(records, record)

		if old := priorRecord(prior, record.Id); old != nil {
			record.CreatedAt = old.CreatedAt
			if old.ContentHash == record.ContentHash {
				record.UpdatedAt = old.UpdatedAt
				if r.cfg.ReuseVectors && old.Indexed() {
					record.Vector = old.Vector
					r.report.Reused++
					continue
				}
			}
		}
		toEmbed = append(toEmbed, record)
	}
	r.tracker.plan(len(toEmbed), r.report.Reused, len(r.report.Skipped))
	return records, toEmbed
}

func priorRecord(prior *store.Snapshot, id core.ID) *core.AnswerRecord {
	if prior == nil {
		return nil
	}
	old, err := prior.Record(id)
	if err != nil {
		return nil
	}
	return old
}

// priorSnapshot returns the live version when it was built in the
// embedder's space, or nil.
func (r *buildRun) priorSnapshot(ctx context.Context) *store.Snapshot {
	signature := r.embedder.Signature()
	if r.live != nil {
		if s, err := r.live.Current(); err == nil && s.Signature() == signature {
			return s
		}
	}
	s, err := store.OpenCurrent(ctx, r.layout, signature,
		store.WithLogger(r.logger),
		store.WithIndexOptions(index.WithKind(index.KindFlat)))
	if err != nil {
		if !errors.Is(err, core.ErrStoreUnavailable) {
			r.logger.Warn("prior version unusable, embedding everything", "error", err)
		}
		return nil
	}
	return s
}

// embed computes vectors for records in batches on a worker pool. Rows the
// model cannot embed keep a missing or malformed vector state; a fatal
// model condition stops the whole stage.
func (r *buildRun) embed(ctx context.Context, records []*core.AnswerRecord) error {
	if len(records) == 0 {
		return ctx.Err()
	}
	pool, err := ants.NewPool(r.cfg.PoolSize)
	if err != nil {
		return err
	}
	defer pool.Release()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	for start := 0; start < len(records); start += r.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		batch := records[start:min(start+r.cfg.BatchSize, len(records))]
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := r.embedBatch(ctx, batch); err != nil {
				cancel(err)
			}
		})
		if submitErr != nil {
			wg.Done()
			cancel(submitErr)
			break
		}
	}
	wg.Wait()

	return context.Cause(ctx)
}

// embedBatch embeds one batch, retrying items that failed transiently.
func (r *buildRun) embedBatch(ctx context.Context, batch []*core.AnswerRecord) error {
	texts := make([]string, len(batch))
	for i, record := range batch {
		texts[i] = embeddingText(record.Question, record.Answer)
	}
	vectors := make([][]float32, len(batch))
	errs := make([]error, len(batch))

	pending := make([]int, len(batch))
	for i := range pending {
		pending[i] = i
	}
	err := retryWithBackoff(ctx, r.logger, r.cfg.MaxAttempts, r.cfg.RetryDelay, func() error {
		sub := make([]string, len(pending))
		for j, i := range pending {
			sub[j] = texts[i]
		}
		vs, es, fatal := r.embedder.EmbedBatch(ctx, sub)
		if fatal != nil {
			return fatal
		}
		var still []int
		for j, i := range pending {
			vectors[i], errs[i] = vs[j], es[j]
			if es[j] != nil && !malformed(es[j]) {
				still = append(still, i)
			}
		}
		pending = still
		if len(pending) > 0 {
			return fmt.Errorf("%d of %d embeddings failed: %w", len(pending), len(batch), errs[pending[0]])
		}
		return nil
	}, func(err error) bool { return !ai.IsFatal(err) })
	if err != nil && ai.IsFatal(err) {
		return err
	}

	failed := 0
	for i, record := range batch {
		if errs[i] == nil {
			record.VectorState = core.VectorOK
			record.Vector = vectors[i]
			continue
		}
		failed++
		record.Vector = nil
		record.VectorState = core.VectorMissing
		if malformed(errs[i]) {
			record.VectorState = core.VectorMalformed
		}
		record.VectorNote = errs[i].Error()
	}
	r.tracker.embedded(len(batch), failed)
	return nil
}

// malformed reports whether the model answered with an unusable vector, as
// opposed to not answering.
func malformed(err error) bool {
	return errors.Is(err, core.ErrDimensionInvalid) ||
		errors.Is(err, core.ErrNonFinite) ||
		errors.Is(err, core.ErrZeroVector)
}

func (r *buildRun) collectEmbeddingSkips(records []*core.AnswerRecord) {
	for _, record := range records {
		if record.VectorState == core.VectorOK {
			r.report.Embedded++
			continue
		}
		c := r.sources[record.Id]
		r.skip(c.row.Line, c.key, fmt.Sprintf("embedding %s: %s", record.VectorState, record.VectorNote))
	}
}

// write stores the version in a staging directory and loads it back, so a
// version that would not load is never published.
func (r *buildRun) write(ctx context.Context, build uint64, tree *core.CategoryTree, records []*core.AnswerRecord) (*store.Snapshot, error) {
	signature := r.embedder.Signature()
	valid := 0
	for _, record := range records {
		if record.Indexed() {
			valid++
		}
	}
	manifest := &core.Manifest{
		FormatVersion: core.FormatVersion,
		ModelID:       signature.ModelID,
		Dimension:     signature.Dimension,
		Build:         build,
		RecordCount:   len(records),
		CategoryCount: tree.Len(),
		ValidCount:    valid,
		BuiltAt:       time.Now().UTC().Truncate(time.Microsecond),
		RunID:         r.report.RunID,
	}

	r.staging = r.layout.StagingPath(r.report.RunID)
	w, err := badger.CreateStore(r.staging, r.logger)
	if err != nil {
		return nil, fmt.Errorf("creating staging store: %w", err)
	}
	err = r.writeAll(ctx, w, manifest, tree, records)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("writing version %d: %w", build, err)
	}

	snapshot, err := store.Load(ctx, r.staging, signature,
		store.WithLogger(r.logger),
		store.WithIndexOptions(r.indexOptions...))
	if err != nil {
		return nil, fmt.Errorf("verifying version %d: %w", build, err)
	}
	r.report.Stored = len(records)
	r.report.Accepted = valid
	return snapshot, nil
}

func (r *buildRun) writeAll(ctx context.Context, w storage.StoreWriter, manifest *core.Manifest, tree *core.CategoryTree, records []*core.AnswerRecord) error {
	if err := w.WriteCategories(ctx, tree.All()...); err != nil {
		return err
	}
	for start := 0; start < len(records); start += r.cfg.WriteChunk {
		chunk := records[start:min(start+r.cfg.WriteChunk, len(records))]
		if err := w.WriteRecords(ctx, chunk...); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.WriteManifest(ctx, manifest)
}

// swap publishes the verified snapshot. Nothing after this point observes
// cancellation.
func (r *buildRun) swap(snapshot *store.Snapshot) error {
	if err := r.layout.Commit(snapshot); err != nil {
		return fmt.Errorf("publishing version %d: %w", snapshot.Build(), err)
	}
	r.committed = true
	r.report.StoreVersion = snapshot.Build()
	r.report.Path = snapshot.Dir()
	if r.live != nil && !r.live.SwapIfNewer(snapshot) {
		r.logger.Warn("live store already holds a later build", "build", snapshot.Build())
	}

	pruned, err := r.layout.Prune(r.cfg.KeepVersions)
	if err != nil {
		r.logger.Warn("pruning old versions failed", "error", err)
	}
	r.report.Pruned = pruned
	return nil
}

// finish settles the terminal state and removes staging output of an
// unpublished build.
func (r *buildRun) finish(err error) {
	state := StateDone
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		state = StateCanceled
	default:
		state = StateFailed
	}

	if !r.committed && r.staging != "" {
		if rmErr := os.RemoveAll(r.staging); rmErr != nil {
			r.logger.Warn("removing staging output failed", "dir", r.staging, "error", rmErr)
		}
	}

	slices.SortStableFunc(r.report.Skipped, func(a, b SkippedRow) int {
		return cmp.Compare(a.Line, b.Line)
	})
	r.report.State = state
	r.report.Duration = r.tracker.elapsed()
	r.tracker.transition(state)

	if err != nil {
		r.logger.Error("build stopped", "state", state, "error", err, "duration", r.report.Duration)
		return
	}
	r.logger.Info("build complete",
		"version", r.report.StoreVersion,
		"stored", r.report.Stored,
		"accepted", r.report.Accepted,
		"skipped", len(r.report.Skipped),
		"reused", r.report.Reused,
		"embedded", r.report.Embedded,
		"duration", r.report.Duration)
}
