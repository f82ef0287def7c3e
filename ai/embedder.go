package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/answerbank/core"
)

// Embedder adapts a Model to the engine's contract: text in, unit-length
// vector of the signature's dimension out. It caches nothing and is safe for
// concurrent use if the Model is.
type Embedder struct {
	model     Model
	signature core.Signature
	logger    *slog.Logger
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithLogger sets the logger for the embedder.
func WithLogger(logger *slog.Logger) EmbedderOption {
	return func(e *Embedder) {
		e.logger = logger
	}
}

// NewEmbedder wraps model. Every vector the model returns must have
// signature.Dimension components.
func NewEmbedder(model Model, signature core.Signature, opts ...EmbedderOption) (*Embedder, error) {
	if model == nil {
		return nil, ErrModelRequired
	}
	if signature.ModelID == "" || signature.Dimension <= 0 {
		return nil, fmt.Errorf("invalid model signature %s", signature)
	}

	e := &Embedder{
		model:     model,
		signature: signature,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "embedder", "model", signature.ModelID)
	return e, nil
}

// NewEmbedderFromProvider wraps the provider's model using the signature from its model info.
func NewEmbedderFromProvider(p Provider, opts ...EmbedderOption) (*Embedder, error) {
	return NewEmbedder(p.Model(), p.Info().Signature(), opts...)
}

// Signature returns the embedding signature of the wrapped model.
func (e *Embedder) Signature() core.Signature {
	return e.signature
}

// Embed returns the normalized embedding of text.
// Fails with core.ErrEmbedding; fatal model conditions also match core.ErrModelUnavailable.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", core.ErrEmbedding)
	}

	raw, err := e.model.EmbedText(ctx, text)
	if err != nil {
		return nil, wrapModelError(ctx, err)
	}
	return e.finish(raw)
}

// EmbedBatch embeds texts in one model call. Results align with texts:
// vectors[i] is set when errs[i] is nil. The returned error is non-nil only
// for fatal conditions (model unavailable, context done), in which case the
// per-item results are nil.
//
// When the batch call fails for a non-fatal reason, each text is retried on
// its own so a single bad input does not sink its neighbours.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error, error) {
	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	pending := make([]int, 0, len(texts))
	batch := make([]string, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			errs[i] = fmt.Errorf("%w: empty input", core.ErrEmbedding)
			continue
		}
		pending = append(pending, i)
		batch = append(batch, text)
	}
	if len(pending) == 0 {
		return vectors, errs, nil
	}

	raw, err := e.model.EmbedTexts(ctx, batch)
	if err == nil && len(raw) != len(batch) {
		err = fmt.Errorf("model returned %d vectors for %d inputs", len(raw), len(batch))
	}
	if err != nil {
		wrapped := wrapModelError(ctx, err)
		if IsFatal(wrapped) {
			return nil, nil, wrapped
		}
		e.logger.Warn("batch embedding failed, embedding individually", "count", len(batch), "err", err)
		for _, i := range pending {
			vectors[i], errs[i] = e.Embed(ctx, texts[i])
			if errs[i] != nil && IsFatal(errs[i]) {
				return nil, nil, errs[i]
			}
		}
		return vectors, errs, nil
	}

	for j, i := range pending {
		vectors[i], errs[i] = e.finish(raw[j])
	}
	return vectors, errs, nil
}

// finish validates raw model output and normalizes it.
func (e *Embedder) finish(raw []float32) ([]float32, error) {
	if err := core.ValidateVector(raw, e.signature.Dimension); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	v, err := core.NormalizeVector(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	return v, nil
}

func wrapModelError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(ctxErr, err)
	}
	if errors.Is(err, core.ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrEmbedding, err)
}

// IsFatal reports whether an embedding error should stop all further embedding work.
func IsFatal(err error) bool {
	return errors.Is(err, core.ErrModelUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
