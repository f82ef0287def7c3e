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


package core

import (
	"errors"
	"fmt"
)

// Engine-wide sentinel errors. Callers test for them with errors.Is.
var (
	// ErrCorruptStore indicates a persisted store failed an integrity check on load.
	ErrCorruptStore = errors.New("corrupt store")

	// ErrSignatureMismatch indicates a store was built with a different model than the one querying it.
	ErrSignatureMismatch = errors.New("model signature mismatch")

	// ErrEmbedding indicates the model could not produce a usable vector for an input.
	ErrEmbedding = errors.New("embedding failed")

	// ErrModelUnavailable indicates the model cannot serve requests at all.
	// It is fatal for a build and always wraps ErrEmbedding.
	ErrModelUnavailable = fmt.Errorf("%w: model unavailable", ErrEmbedding)

	// ErrValidation indicates an input row or definition failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a requested record or category does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable indicates no store version has been loaded yet.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrBuildInProgress indicates another build holds the corpus root.
	ErrBuildInProgress = errors.New("build already in progress")
)

// Field-level validation errors.
var (
	ErrEmptyLabel       = errors.New("category label cannot be empty")
	ErrInvalidLevel     = errors.New("invalid category level")
	ErrInvalidParent    = errors.New("invalid category parent")
	ErrEmptyQuestion    = errors.New("question text cannot be empty")
	ErrEmptyAnswer      = errors.New("answer text cannot be empty")
	ErrNotLeaf          = errors.New("category is not a leaf")
	ErrDimensionInvalid = errors.New("vector dimension mismatch")
	ErrNonFinite        = errors.New("vector contains NaN or Inf")
	ErrZeroVector       = errors.New("vector has zero length")
)
