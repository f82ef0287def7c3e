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

package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/poiesic/answerbank/core"
	"github.com/poiesic/answerbank/index"
	"github.com/poiesic/answerbank/storage"
	"github.com/poiesic/answerbank/storage/badger"
)

// unitTolerance bounds how far a stored vector's norm may drift from 1.
const unitTolerance = 1e-3

// Snapshot is an immutable, fully loaded store version: the category tree,
// every answer record, and the vector index over the indexed ones.
// Snapshots are safe for concurrent use.
type Snapshot struct {
	dir      string
	manifest core.Manifest
	tree     *core.CategoryTree
	records  []*core.AnswerRecord // ascending ID
	byID     map[core.ID]*core.AnswerRecord
	byCode   map[string]*core.AnswerRecord
	byLeaf   map[core.ID][]*core.AnswerRecord
	index    index.Index
	loadedAt time.Time
}

type loadOptions struct {
	logger       *slog.Logger
	indexOptions []index.Option
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithLogger sets the logger used while loading.
func WithLogger(logger *slog.Logger) LoadOption {
	return func(o *loadOptions) {
		o.logger = logger
	}
}

// WithIndexOptions configures the vector index built on load.
func WithIndexOptions(opts ...index.Option) LoadOption {
	return func(o *loadOptions) {
		o.indexOptions = append(o.indexOptions, opts...)
	}
}

// Inspect reads only the manifest of the store version in dir.
func Inspect(ctx context.Context, dir string) (*core.Manifest, error) {
	reader, err := badger.OpenStore(dir, nil)
	if err != nil {
		return nil, corrupt(err)
	}
	defer reader.Close()

	manifest, err := reader.ReadManifest(ctx)
	if err != nil {
		return nil, corrupt(err)
	}
	return manifest, nil
}

// Load reads the store version in dir, verifies its integrity and builds the
// vector index. Any inconsistency fails with core.ErrCorruptStore; a store
// built in a different embedding space fails with core.ErrSignatureMismatch.
func Load(ctx context.Context, dir string, expected core.Signature, opts ...LoadOption) (*Snapshot, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With("component", "store", "dir", dir)
	start := time.Now()

	reader, err := badger.OpenStore(dir, o.logger)
	if err != nil {
		return nil, corrupt(err)
	}
	defer reader.Close()

	manifest, err := reader.ReadManifest(ctx)
	if err != nil {
		return nil, corrupt(err)
	}
	if manifest.FormatVersion != core.FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", core.ErrCorruptStore, manifest.FormatVersion)
	}
	if manifest.Dimension <= 0 {
		return nil, fmt.Errorf("%w: manifest dimension %d", core.ErrCorruptStore, manifest.Dimension)
	}
	if err := manifest.Signature().Check(expected); err != nil {
		return nil, err
	}

	s := &Snapshot{
		dir:      dir,
		manifest: *manifest,
		byID:     make(map[core.ID]*core.AnswerRecord, manifest.RecordCount),
		byCode:   make(map[string]*core.AnswerRecord),
		byLeaf:   make(map[core.ID][]*core.AnswerRecord),
	}

	if err := s.loadCategories(ctx, reader); err != nil {
		return nil, err
	}
	entries, err := s.loadRecords(ctx, reader)
	if err != nil {
		return nil, err
	}

	vectors, err := reader.CountVectors(ctx)
	if err != nil {
		return nil, corrupt(err)
	}
	if vectors != len(entries) {
		return nil, fmt.Errorf("%w: %d stored vectors for %d indexed records", core.ErrCorruptStore, vectors, len(entries))
	}
	if manifest.ValidCount != len(entries) {
		return nil, fmt.Errorf("%w: manifest valid count %d, found %d", core.ErrCorruptStore, manifest.ValidCount, len(entries))
	}

	s.index, err = index.Build(entries, o.indexOptions...)
	if err != nil {
		return nil, corrupt(err)
	}
	s.loadedAt = time.Now()

	logger.Info("store loaded",
		"build", manifest.Build,
		"signature", manifest.Signature(),
		"records", len(s.records),
		"indexed", len(entries),
		"index", s.index.Kind(),
		"elapsed", time.Since(start))
	return s, nil
}

func (s *Snapshot) loadCategories(ctx context.Context, reader storage.StoreReader) error {
	var categories []*core.Category
	err := reader.ForEachCategory(ctx, func(c *core.Category) error {
		categories = append(categories, c)
		return nil
	})
	if err != nil {
		return corrupt(err)
	}
	if len(categories) != s.manifest.CategoryCount {
		return fmt.Errorf("%w: manifest category count %d, found %d", core.ErrCorruptStore, s.manifest.CategoryCount, len(categories))
	}
	tree, err := core.NewCategoryTree(categories)
	if err != nil {
		return corrupt(err)
	}
	s.tree = tree
	return nil
}

func (s *Snapshot) loadRecords(ctx context.Context, reader storage.StoreReader) ([]index.Entry, error) {
	dim := s.manifest.Dimension
	var entries []index.Entry
	var prev core.ID
	err := reader.ForEachRecord(ctx, func(r *core.AnswerRecord) error {
		if r.Id <= prev {
			return fmt.Errorf("record %d out of order after %d", r.Id, prev)
		}
		prev = r.Id
		if err := core.ValidateRecord(r, s.tree, dim); err != nil {
			return err
		}
		if r.VectorState == core.VectorOK {
			if err := checkUnit(r.Vector); err != nil {
				return fmt.Errorf("record %d: %w", r.Id, err)
			}
			entries = append(entries, index.Entry{ID: r.Id, Vector: r.Vector})
		} else if r.Vector != nil {
			return fmt.Errorf("record %d: vector stored for %s record", r.Id, r.VectorState)
		}
		if r.Code != "" {
			if _, dup := s.byCode[r.Code]; dup {
				return fmt.Errorf("duplicate record code %q", r.Code)
			}
			s.byCode[r.Code] = r
		}
		s.records = append(s.records, r)
		s.byID[r.Id] = r
		s.byLeaf[r.CategoryId] = append(s.byLeaf[r.CategoryId], r)
		return nil
	})
	if err != nil {
		return nil, corrupt(err)
	}
	if len(s.records) != s.manifest.RecordCount {
		return nil, fmt.Errorf("%w: manifest record count %d, found %d", core.ErrCorruptStore, s.manifest.RecordCount, len(s.records))
	}
	return entries, nil
}

func checkUnit(v []float32) error {
	norm := math.Sqrt(float64(core.Dot(v, v)))
	if math.Abs(norm-1) > unitTolerance {
		return fmt.Errorf("vector norm %.4f is not unit length", norm)
	}
	return nil
}

// corrupt marks err as store corruption. Context errors pass through.
func corrupt(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, core.ErrCorruptStore) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrCorruptStore, err)
}

// Dir returns the directory the snapshot was loaded from.
func (s *Snapshot) Dir() string {
	return s.dir
}

// Manifest returns a copy of the version manifest.
func (s *Snapshot) Manifest() core.Manifest {
	return s.manifest
}

// Signature returns the embedding signature the store was built with.
func (s *Snapshot) Signature() core.Signature {
	return s.manifest.Signature()
}

// Build returns the build number of the loaded version.
func (s *Snapshot) Build() uint64 {
	return s.manifest.Build
}

// LoadedAt returns when loading completed.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Categories returns the category tree.
func (s *Snapshot) Categories() *core.CategoryTree {
	return s.tree
}

// Index returns the vector index over indexed records.
func (s *Snapshot) Index() index.Index {
	return s.index
}

// Len returns the number of records, indexed or not.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// Record returns the record with the given ID.
// Returns core.ErrNotFound if there is none.
func (s *Snapshot) Record(id core.ID) (*core.AnswerRecord, error) {
	r, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: record %d", core.ErrNotFound, id)
	}
	return r, nil
}

// RecordByCode returns the record carrying the given code.
// Returns core.ErrNotFound if there is none.
func (s *Snapshot) RecordByCode(code string) (*core.AnswerRecord, error) {
	r, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: record code %q", core.ErrNotFound, code)
	}
	return r, nil
}

// Records yields every record in ascending ID order.
func (s *Snapshot) Records() iter.Seq[*core.AnswerRecord] {
	return func(yield func(*core.AnswerRecord) bool) {
		for _, r := range s.records {
			if !yield(r) {
				return
			}
		}
	}
}

// ValidRecords yields the indexed records in ascending ID order.
func (s *Snapshot) ValidRecords() iter.Seq[*core.AnswerRecord] {
	return func(yield func(*core.AnswerRecord) bool) {
		for _, r := range s.records {
			if r.Indexed() && !yield(r) {
				return
			}
		}
	}
}

// RecordsInLeaf returns the records filed under a leaf in ascending ID order.
func (s *Snapshot) RecordsInLeaf(leaf core.ID) []*core.AnswerRecord {
	return slices.Clone(s.byLeaf[leaf])
}

// AllowedIDs returns the IDs of indexed records filed under any of leaves.
// The result is never nil, so an empty leaf set allows nothing.
func (s *Snapshot) AllowedIDs(leaves []core.ID) index.IDSet {
	allowed := make(index.IDSet)
	for _, leaf := range leaves {
		for _, r := range s.byLeaf[leaf] {
			if r.Indexed() {
				allowed[r.Id] = struct{}{}
			}
		}
	}
	return allowed
}
