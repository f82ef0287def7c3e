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

package search

import "errors"

var (
	// ErrLiveRequired is returned when a searcher is created without a live store.
	ErrLiveRequired = errors.New("live store required")

	// ErrEmbedderRequired is returned when a searcher is created without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidTopK is returned when a search asks for fewer than one result.
	ErrInvalidTopK = errors.New("top-k must be at least 1")

	// ErrEmptyKeyword is returned by Keyword for a blank keyword.
	ErrEmptyKeyword = errors.New("keyword is empty")
)
