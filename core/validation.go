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
	"fmt"
	"math"
	"strings"
)

// ValidateCategory validates a Category according to domain rules.
//
// Validation rules:
//   - ID must be non-zero (zero denotes the root)
//   - Label must not be empty or contain control characters
//   - Level must be major, middle or minor
//   - Major categories have no parent, all others do
//
// Parent existence is checked by NewCategoryTree.
func ValidateCategory(c *Category) error {
	if c == nil {
		return fmt.Errorf("%w: category is nil", ErrValidation)
	}
	if c.Id == 0 {
		return fmt.Errorf("%w: category %q has zero id", ErrValidation, c.Label)
	}
	if strings.TrimSpace(c.Label) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyLabel)
	}
	if strings.ContainsFunc(c.Label, func(r rune) bool { return r < 0x20 }) {
		return fmt.Errorf("%w: category label %q contains control characters", ErrValidation, c.Label)
	}
	if c.Level < LevelMajor || c.Level > LevelMinor {
		return fmt.Errorf("%w: %w: %d", ErrValidation, ErrInvalidLevel, int(c.Level))
	}
	if (c.Level == LevelMajor) != (c.ParentId == 0) {
		return fmt.Errorf("%w: %w: %s category %q with parent %d", ErrValidation, ErrInvalidParent, c.Level, c.Label, c.ParentId)
	}
	return nil
}

// ValidateRecord validates an AnswerRecord against the tree it belongs to.
//
// Validation rules:
//   - ID must be non-zero
//   - Question and Answer must not be empty
//   - CategoryId must name a leaf of tree
//   - A record in VectorOK state carries a valid vector of the given dimension
func ValidateRecord(r *AnswerRecord, tree *CategoryTree, dim int) error {
	if r == nil {
		return fmt.Errorf("%w: record is nil", ErrValidation)
	}
	if r.Id == 0 {
		return fmt.Errorf("%w: record has zero id", ErrValidation)
	}
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("%w: record %d: %w", ErrValidation, r.Id, ErrEmptyQuestion)
	}
	if strings.TrimSpace(r.Answer) == "" {
		return fmt.Errorf("%w: record %d: %w", ErrValidation, r.Id, ErrEmptyAnswer)
	}
	if tree != nil && !tree.IsLeaf(r.CategoryId) {
		return fmt.Errorf("%w: record %d: %w: %d", ErrValidation, r.Id, ErrNotLeaf, r.CategoryId)
	}
	if r.VectorState == VectorOK {
		if err := ValidateVector(r.Vector, dim); err != nil {
			return fmt.Errorf("%w: record %d: %w", ErrValidation, r.Id, err)
		}
	}
	return nil
}

// ValidateVector checks that v has dimension dim and only finite components.
func ValidateVector(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionInvalid, len(v), dim)
	}
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNonFinite
		}
	}
	return nil
}
