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


package ai

import "context"

// Model generates raw vector embeddings for text. It is the single
// capability the engine needs from an embedding model; the Embedder
// adapter validates and normalizes its output.
// Implementations must be thread-safe for concurrent use.
type Model interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider pairs a Model with the artifact metadata that identifies it.
type Provider interface {
	// Model returns the embedding model.
	// The returned Model is safe for concurrent use.
	Model() Model

	// Info returns the model artifact metadata.
	Info() *ModelInfo

	// Close releases resources held by the provider.
	// After Close is called, the provider and its model should not be used.
	Close() error
}
