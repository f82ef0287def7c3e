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

package builder

import "errors"

var (
	// ErrEmbedderRequired is returned when a builder is created without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrRootRequired is returned when a builder is created without a corpus root.
	ErrRootRequired = errors.New("corpus root required")

	// ErrNoRows is returned when a build is started without rows.
	ErrNoRows = errors.New("no rows")

	// ErrNoValidRows is returned when every row was rejected during validation.
	ErrNoValidRows = errors.New("no valid rows")

	// ErrNoCategories is returned when a build is started without categories.
	ErrNoCategories = errors.New("no categories")

	// ErrMissingColumns is returned when a CSV header lacks required columns.
	ErrMissingColumns = errors.New("missing required columns")

	// ErrInvalidMaxAttempts is returned when retries are configured with fewer than one attempt.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")
)
