// Package openai provides an ai.Provider backed by an OpenAI-compatible
// embeddings service.
//
// The model artifact directory supplies model_info, which fixes the store
// signature (model_name, hidden_size). Inference is delegated over HTTP via
// langchaingo to a runtime serving that model (Ollama, LocalAI, vLLM,
// text-embeddings-inference, ...).
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithEmbeddingHost("http://localhost:11434"), // /v1 added automatically
//	    ai.WithModelDir("./model"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	embedder, err := ai.NewEmbedderFromProvider(provider)
//	vector, err := embedder.Embed(ctx, "sample text")
//
// Connection failures are reported as core.ErrModelUnavailable so batch
// callers can stop early.
package openai
