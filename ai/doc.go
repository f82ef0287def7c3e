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


// Package ai provides the embedding abstractions used by answerbank.
//
// The engine treats the embedding model as an opaque function from text to a
// fixed-length vector. Model captures that single capability; Provider pairs
// a Model with the ModelInfo read from the model artifact directory, which
// fixes the store signature (model name and dimension).
//
// Embedder adapts a Model to the engine's contract:
//
//   - output always has the signature's dimension
//   - output is normalized to unit length, so cosine similarity is a dot product
//   - NaN, Inf, zero and wrongly sized vectors are rejected with core.ErrEmbedding
//   - batch calls report per-item failures and reserve the batch error for
//     fatal conditions (core.ErrModelUnavailable, context cancellation)
//
// Nothing is cached: identical input yields identical output because the
// model is deterministic, not because results are remembered.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embeddings service via langchaingo
//   - ai/mock: deterministic test doubles
//
// # Usage Example
//
//	provider, err := openai.NewProvider(ai.NewConfig(ai.WithModelDir("./model")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	embedder, err := ai.NewEmbedderFromProvider(provider)
//	vector, err := embedder.Embed(ctx, "환불은 언제 되나요?")
package ai
