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


// Package storage defines the persistence contracts for answer stores.
//
// A corpus root holds one lineage database and any number of immutable
// store versions. StoreWriter and StoreReader operate on a single version;
// LineageRepository carries the state that spans versions.
//
// Records and categories are encoded with mus-go; vectors are stored as raw
// little-endian float32 values under their own keys so records can be
// decoded without touching vector data.
//
// The badger subpackage provides the implementation:
//
//	w, err := badger.CreateStore("/path/to/staging", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
// Use in tests with in-memory storage:
//
//	w, r, backend, err := badger.NewMemoryStore()
package storage
