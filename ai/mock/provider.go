package mock

import "github.com/poiesic/answerbank/ai"

// ModelName is the model identifier reported by MockProvider.
const ModelName = "mock-embedder"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	embedder *MockEmbedder
	info     *ai.ModelInfo
}

var _ ai.Provider = (*MockProvider)(nil)

// NewMockProvider creates a provider around a default MockEmbedder.
func NewMockProvider() *MockProvider {
	return NewMockProviderWithEmbedder(NewMockEmbedder())
}

// NewMockProviderWithEmbedder creates a provider around the given mock.
func NewMockProviderWithEmbedder(embedder *MockEmbedder) *MockProvider {
	return &MockProvider{
		embedder: embedder,
		info: &ai.ModelInfo{
			ModelName:  ModelName,
			License:    "none",
			HiddenSize: embedder.Dimension(),
			MaxLength:  512,
			OutputName: "embedding",
		},
	}
}

// Model returns the mock embedder.
func (p *MockProvider) Model() ai.Model {
	return p.embedder
}

// Info returns the mock model metadata.
func (p *MockProvider) Info() *ai.ModelInfo {
	return p.info
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// NewEmbedder returns an ai.Embedder over a fresh default mock, for tests
// that only need a working embedder.
func NewEmbedder() (*ai.Embedder, *MockEmbedder) {
	m := NewMockEmbedder()
	e, err := ai.NewEmbedderFromProvider(NewMockProviderWithEmbedder(m))
	if err != nil {
		panic(err)
	}
	return e, m
}
