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

// Package answerbank retrieves previously written official answers that are
// semantically similar to a new inquiry, filtered by a three-level category
// tree.
//
// A Bank ties together the versioned on-disk store, the corpus builder that
// publishes new versions, and the query engine that serves the live one.
package answerbank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/poiesic/answerbank/ai"
	"github.com/poiesic/answerbank/ai/openai"
	"github.com/poiesic/answerbank/builder"
	"github.com/poiesic/answerbank/core"
	"github.com/poiesic/answerbank/index"
	"github.com/poiesic/answerbank/search"
	"github.com/poiesic/answerbank/store"
)

// ErrClosed is returned by operations on a closed Bank.
var ErrClosed = errors.New("answerbank: closed")

// Bank is an open answer store.
type Bank struct {
	layout   store.Layout
	live     *store.Live
	provider ai.Provider
	embedder *ai.Embedder
	builder  *builder.Builder
	searcher *search.Searcher
	logger   *slog.Logger

	queryDefaults []search.QueryOption

	stopWatch context.CancelFunc
	watchDone chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

// Option configures a Bank.
type Option func(*bankOptions)

type bankOptions struct {
	aiConfig    *ai.Config
	provider    ai.Provider
	builderOpts []builder.Option
	searchOpts  []search.QueryOption
	indexOpts   []index.Option
	watch       bool
	watchOpts   []store.WatcherOption
	logger      *slog.Logger
}

// WithAIConfig sets the embedding runtime configuration used when no
// provider is given.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *bankOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses p instead of connecting to an embedding runtime.
// The Bank takes ownership of p and closes it on Close.
func WithProvider(p ai.Provider) Option {
	return func(o *bankOptions) {
		o.provider = p
	}
}

// WithBuilderOptions passes options to the corpus builder.
func WithBuilderOptions(opts ...builder.Option) Option {
	return func(o *bankOptions) {
		o.builderOpts = append(o.builderOpts, opts...)
	}
}

// WithQueryDefaults sets options applied to every Search before the
// caller's own.
func WithQueryDefaults(opts ...search.QueryOption) Option {
	return func(o *bankOptions) {
		o.searchOpts = append(o.searchOpts, opts...)
	}
}

// WithIndexOptions configures the vector index of every loaded version.
func WithIndexOptions(opts ...index.Option) Option {
	return func(o *bankOptions) {
		o.indexOpts = append(o.indexOpts, opts...)
	}
}

// WithWatch reloads the live version when another process publishes one
// under the same root.
func WithWatch(opts ...store.WatcherOption) Option {
	return func(o *bankOptions) {
		o.watch = true
		o.watchOpts = append(o.watchOpts, opts...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *bankOptions) {
		o.logger = logger
	}
}

// Open opens the store rooted at root, creating the directory if needed.
// If a version has been published it is loaded and served; otherwise
// searches fail with core.ErrStoreUnavailable until the first Build.
// A corrupt or mismatched live version is returned as an error.
func Open(ctx context.Context, root string, opts ...Option) (*Bank, error) {
	options := &bankOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger.With("component", "answerbank")

	if root == "" {
		return nil, builder.ErrRootRequired
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		var err error
		if provider, err = openai.NewProvider(options.aiConfig); err != nil {
			return nil, err
		}
	}

	b := &Bank{
		layout:   store.NewLayout(root),
		live:     store.NewLive(),
		provider: provider,
		logger:   logger,
		closed:   make(chan struct{}),
	}
	if err := b.init(ctx, options); err != nil {
		if cerr := provider.Close(); cerr != nil {
			logger.Error("error closing embedding provider", "err", cerr)
		}
		return nil, err
	}
	return b, nil
}

func (b *Bank) init(ctx context.Context, options *bankOptions) error {
	var err error
	b.embedder, err = ai.NewEmbedderFromProvider(b.provider, ai.WithLogger(options.logger))
	if err != nil {
		return err
	}
	signature := b.embedder.Signature()
	loadOpts := []store.LoadOption{store.WithLogger(options.logger), store.WithIndexOptions(options.indexOpts...)}

	snapshot, err := store.OpenCurrent(ctx, b.layout, signature, loadOpts...)
	switch {
	case errors.Is(err, core.ErrStoreUnavailable):
		b.logger.Info("no published version yet", "root", b.layout.Root)
	case err != nil:
		return err
	default:
		b.live.Swap(snapshot)
		b.logger.Info("loaded store", "build", snapshot.Build(), "records", snapshot.Len(), "indexed", snapshot.Index().Len())
	}

	builderOpts := []builder.Option{
		builder.WithLive(b.live),
		builder.WithLogger(options.logger),
		builder.WithIndexOptions(options.indexOpts...),
	}
	b.builder, err = builder.New(b.layout, b.embedder, append(builderOpts, options.builderOpts...)...)
	if err != nil {
		return err
	}

	b.searcher, err = search.NewSearcher(b.live, b.embedder, search.WithLogger(options.logger))
	if err != nil {
		return err
	}
	b.queryDefaults = options.searchOpts

	if options.watch {
		watchOpts := []store.WatcherOption{store.WithWatcherLogger(options.logger), store.WithLoadOptions(loadOpts...)}
		watcher := store.NewWatcher(b.layout, b.live, signature, append(watchOpts, options.watchOpts...)...)
		watchCtx, cancel := context.WithCancel(context.Background())
		b.stopWatch = cancel
		b.watchDone = make(chan struct{})
		go func() {
			defer close(b.watchDone)
			if err := watcher.Run(watchCtx); err != nil {
				b.logger.Error("store watcher stopped", "err", err)
			}
		}()
	}
	return nil
}

// Build publishes a new version from rows and swaps it in. With no
// categories given, the tree is derived from the rows' paths.
func (b *Bank) Build(ctx context.Context, rows []builder.Row, categories []*core.Category) (*builder.BuildReport, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	if categories == nil {
		categories = builder.DeriveCategories(rows)
	}
	return b.builder.Build(ctx, rows, categories)
}

// BuildFile builds from a CSV export.
func (b *Bank) BuildFile(ctx context.Context, path string) (*builder.BuildReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := builder.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b.Build(ctx, rows, nil)
}

// Search returns the answers most similar to text within filter.
func (b *Bank) Search(ctx context.Context, text string, filter core.CategoryFilter, opts ...search.QueryOption) ([]*core.RankedAnswer, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	if len(b.queryDefaults) > 0 {
		opts = append(append([]search.QueryOption{}, b.queryDefaults...), opts...)
	}
	return b.searcher.Search(ctx, text, filter, opts...)
}

// Keyword returns the answers containing keyword within filter.
func (b *Bank) Keyword(ctx context.Context, keyword string, filter core.CategoryFilter) ([]*core.AnswerRecord, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	return b.searcher.Keyword(ctx, keyword, filter)
}

// Categories returns the category tree of the live version.
func (b *Bank) Categories() (*core.CategoryTree, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	return b.searcher.Categories()
}

// Snapshot returns the live version. Callers must not hold it across a
// Build if they want to see the new version.
func (b *Bank) Snapshot() (*store.Snapshot, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	return b.live.Current()
}

// Info returns the manifest of the live version.
func (b *Bank) Info() (core.Manifest, error) {
	s, err := b.Snapshot()
	if err != nil {
		return core.Manifest{}, err
	}
	return s.Manifest(), nil
}

// Signature returns the embedding signature of the configured model.
func (b *Bank) Signature() core.Signature {
	return b.embedder.Signature()
}

// ModelInfo returns the artifact metadata of the configured model.
func (b *Bank) ModelInfo() *ai.ModelInfo {
	return b.provider.Info()
}

// Layout returns the on-disk layout of the store.
func (b *Bank) Layout() store.Layout {
	return b.layout
}

// Close stops the watcher and releases the embedding provider.
func (b *Bank) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		if b.stopWatch != nil {
			b.stopWatch()
			<-b.watchDone
		}
		if err = b.provider.Close(); err != nil {
			b.logger.Error("error closing embedding provider", "err", err)
		}
	})
	return err
}

func (b *Bank) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}
