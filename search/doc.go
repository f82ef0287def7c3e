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

// Package search answers free-text inquiries with the most similar archived
// answers.
//
// A search embeds the inquiry, restricts the candidates to the leaves under
// an optional category filter, ranks them by cosine similarity through the
// snapshot's vector index, and optionally collapses near-duplicates so that
// the same answer filed under several question variants appears once.
//
// Every search runs against the one snapshot that was live when it started,
// so a concurrent rebuild never mixes two versions into one result list.
package search
