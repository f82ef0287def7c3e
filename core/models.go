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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// FormatVersion is the on-disk layout version written by this package.
const FormatVersion = 1

// ID is a unique identifier for domain entities.
// Record IDs come from the lineage sequence, category IDs from content hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// pathSeparator joins category labels. It cannot appear in a trimmed label.
const pathSeparator = "\x1f"

// CategoryID returns the stable ID of the category identified by its label path.
func CategoryID(path ...string) ID {
	return IDFromContent("category:" + strings.Join(path, pathSeparator))
}

// ContentHash fingerprints the embeddable content of a record. Any change to
// one of the parts produces a different hash; parts are length-prefixed so
// boundaries cannot shift between them.
func ContentHash(parts ...string) string {
	h, _ := blake2b.New(32, nil)
	var lenBuf [binary.MaxVarintLen64]byte
	for _, p := range parts {
		n := binary.PutUvarint(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:n])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Level is the depth of a category in the three-level tree.
type Level int

const (
	// LevelMajor is the top level.
	LevelMajor Level = iota + 1
	// LevelMiddle sits below a major category.
	LevelMiddle
	// LevelMinor categories are leaves and carry answer records.
	LevelMinor
)

func (l Level) String() string {
	switch l {
	case LevelMajor:
		return "major"
	case LevelMiddle:
		return "middle"
	case LevelMinor:
		return "minor"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Category is a node in the category tree.
type Category struct {
	Id       ID
	ParentId ID // zero for major categories
	Label    string
	Level    Level
}

// VectorState records whether a record carries a usable embedding.
type VectorState int

const (
	VectorOK VectorState = iota
	VectorMissing
	VectorMalformed
)

func (s VectorState) String() string {
	switch s {
	case VectorOK:
		return "ok"
	case VectorMissing:
		return "missing"
	case VectorMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("vector_state(%d)", int(s))
	}
}

// AnswerRecord is a previously written official answer filed under a leaf category.
type AnswerRecord struct {
	Id          ID
	CategoryId  ID
	Code        string
	Question    string
	Answer      string
	Metadata    map[string]string // e.g. "agency1", "agency2"
	ContentHash string
	VectorState VectorState
	VectorNote  string    // reason when VectorState is not VectorOK
	Vector      []float32 // unit length when VectorState is VectorOK
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Indexed reports whether the record participates in similarity search.
func (r *AnswerRecord) Indexed() bool {
	return r.VectorState == VectorOK && len(r.Vector) > 0
}

// Signature identifies the embedding space a store was built in.
type Signature struct {
	ModelID   string
	Dimension int
}

func (s Signature) String() string {
	return fmt.Sprintf("%s/%d", s.ModelID, s.Dimension)
}

// Check returns ErrSignatureMismatch unless other describes the same embedding space.
func (s Signature) Check(other Signature) error {
	if s.ModelID != other.ModelID || s.Dimension != other.Dimension {
		return fmt.Errorf("%w: store %s, model %s", ErrSignatureMismatch, s, other)
	}
	return nil
}

// Manifest describes one persisted store version.
type Manifest struct {
	FormatVersion int
	ModelID       string
	Dimension     int
	Build         uint64
	RecordCount   int
	CategoryCount int
	ValidCount    int
	BuiltAt       time.Time
	RunID         string
}

// Signature returns the embedding signature recorded in the manifest.
func (m *Manifest) Signature() Signature {
	return Signature{ModelID: m.ModelID, Dimension: m.Dimension}
}

// RankedAnswer is a search result with the full record and its similarity score.
type RankedAnswer struct {
	Record *AnswerRecord
	Score  float32
}

// CategoryFilter restricts a query to a subtree of the category tree.
// Either Path (0-3 labels, major first) or CategoryId may be set; an empty
// filter matches every leaf.
type CategoryFilter struct {
	Path       []string
	CategoryId ID
}

// IsEmpty reports whether the filter matches everything.
func (f CategoryFilter) IsEmpty() bool {
	return len(f.Path) == 0 && f.CategoryId == 0
}

// FilterPath is a convenience constructor for a label-path filter.
func FilterPath(labels ...string) CategoryFilter {
	return CategoryFilter{Path: labels}
}
