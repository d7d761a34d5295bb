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


// Package storage provides the storage abstraction layer for ragstore.
//
// This package defines repository interfaces that decouple storage implementation
// from the query engine and the ingestion pipeline. Two backends implement them:
//
//   - storage/badger: embedded BadgerDB, brute-force ranking in process
//   - storage/sql: gorm over PostgreSQL (pgvector) or SQLite
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - CollectionRepository: namespace name to collection id, get-or-create
//   - EmbeddingRepository: chunk records, similarity search and pagination
//   - FileRepository: source files moving through the ingestion state machine
//
// # Transactions
//
// Every mutation that touches more than one record is atomic. Batch inserts
// assign per-file sequence numbers inside the same transaction that writes
// the records, so concurrent batches for one file never share a number.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines and processes sharing a backend.
package storage
