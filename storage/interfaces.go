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


package storage

import (
	"context"

	"github.com/poiesic/answerbank/core"
)

// StoreWriter writes one store version. Writes become durable on Close.
type StoreWriter interface {
	// WriteManifest stores the version manifest, replacing any previous one.
	WriteManifest(ctx context.Context, manifest *core.Manifest) error

	// WriteCategories stores category nodes.
	WriteCategories(ctx context.Context, categories ...*core.Category) error

	// WriteRecords stores answer records. Records in VectorOK state also
	// have their vector written.
	WriteRecords(ctx context.Context, records ...*core.AnswerRecord) error

	// Close flushes pending writes and releases resources.
	Close() error
}

// StoreReader reads one store version.
type StoreReader interface {
	// ReadManifest returns the version manifest.
	// Returns ErrNotFound if no manifest was written.
	ReadManifest(ctx context.Context) (*core.Manifest, error)

	// ForEachCategory calls fn for every stored category in key order.
	ForEachCategory(ctx context.Context, fn func(*core.Category) error) error

	// ForEachRecord calls fn for every stored record in ID order, with the
	// record's vector attached when one was stored.
	ForEachRecord(ctx context.Context, fn func(*core.AnswerRecord) error) error

	// CountVectors returns the number of stored vectors.
	CountVectors(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// LineageRepository persists what must survive across store versions:
// the build counter and the mapping from row keys to record IDs.
type LineageRepository interface {
	// NextBuild increments and returns the build counter.
	NextBuild(ctx context.Context) (uint64, error)

	// AssignIDs returns the record ID for each row key, allocating new IDs
	// for keys never seen before. IDs are never reused.
	AssignIDs(ctx context.Context, keys []string) ([]core.ID, error)

	// LookupID returns the record ID assigned to key.
	// Returns ErrNotFound if the key was never assigned.
	LookupID(ctx context.Context, key string) (core.ID, error)

	// Close releases resources, including the directory lock.
	Close() error
}
