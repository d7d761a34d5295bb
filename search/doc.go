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

// Package search implements the query side of the store.
//
// The Engine resolves collection names, embeds query text through the
// configured ai.Embedder and ranks enabled records by a distance strategy
// chosen per engine (cosine by default). Results from several collections
// are ranked together, so one query can span many knowledge bases.
//
// Retrieve applies FilterByScore after ranking:
//
//   - when any hit is an exact match (score at the strategy's minimum
//     distance), keep exact matches and hits below the threshold
//   - otherwise keep hits below the threshold and hits scoring above 1.0
//
// The engine also owns the write paths that need embeddings (InsertChunks,
// InsertChunk, UpdateChunk) so that text is never stored without a vector.
// UpdateChunk only calls the provider when the text actually changes.
//
// Provider failures are returned at once and match ai.ErrProvider.
package search
