package openai

import (
	"log/slog"

	"github.com/poiesic/answerbank/ai"
)

// Provider implements ai.Provider using an OpenAI-compatible embeddings service
// and a local model artifact directory.
type Provider struct {
	config   *ai.Config
	info     *ai.ModelInfo
	embedder *Embedder
	logger   *slog.Logger
}

var _ ai.Provider = (*Provider)(nil)

// NewProvider reads model_info from config.ModelDir and connects a model client.
// The config is validated and normalized before use.
//
// Returns ai.Provider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	info, err := ai.LoadModelInfo(config.ModelDir)
	if err != nil {
		return nil, err
	}

	served := config.EmbeddingModel
	if served == "" {
		served = info.ModelName
	}

	embedder, err := newEmbedder(config, served)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider")
	logger.Debug("model loaded", "model", info.ModelName, "dimension", info.HiddenSize, "served_as", served)

	return &Provider{
		config:   config,
		info:     info,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Model returns the embedding model client.
func (p *Provider) Model() ai.Model {
	return p.embedder
}

// Info returns the model artifact metadata.
func (p *Provider) Info() *ai.ModelInfo {
	return p.info
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying client doesn't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
