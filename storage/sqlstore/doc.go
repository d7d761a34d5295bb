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


// Package sqlstore implements the storage repositories on a relational
// database through gorm.
//
// Two dialects are supported. Postgres stores embeddings in a pgvector
// column and ranks with the <->, <=> and <#> operators. Sqlite stores the
// text form of the vector and ranks in process, which keeps the package
// usable without a server:
//
//	repos, err := sqlstore.OpenRepositories("postgres://localhost/rag", 768)
//	repos, err := sqlstore.OpenRepositories("/var/lib/ragstore/store.db", 768)
//
// Metadata is a JSON column. Equality filters compile to JSON path
// comparisons; membership filters to JSON path IN lists.
package sqlstore
