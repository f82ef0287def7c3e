// Package mock provides test doubles for the ai package.
//
// MockEmbedder implements ai.Model with deterministic feature-hashed
// bag-of-words vectors: identical text always yields identical vectors and
// texts that share words are more similar than texts that do not. No network
// or model artifact is involved.
//
// Inject failures via the function fields:
//
//	m := mock.NewMockEmbedder()
//	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, core.ErrModelUnavailable
//	}
//
//	// Check call counts
//	count := m.CallCount()
//
// MockProvider pairs a MockEmbedder with model info named "mock-embedder".
package mock
