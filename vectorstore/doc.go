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


// Package vectorstore exposes the query engine as a langchaingo
// vectorstores.VectorStore, so chains and retrievers built on langchaingo can
// read from and write to ragstore collections.
//
// Option mapping:
//
//   - WithNameSpace selects the collection (default: the store's collection)
//   - WithFilters takes a map[string]any in the metadata filter syntax, or a
//     *core.MetadataFilter
//   - WithScoreThreshold applies the two-tier distance filter of
//     search.Engine.Retrieve
//
// Document scores are distances: lower is closer.
//
//	store, _ := vectorstore.New(engine, vectorstore.WithCollection("handbook"))
//	retriever := vectorstores.ToRetriever(store, 4)
//	docs, err := retriever.GetRelevantDocuments(ctx, "refund policy")
package vectorstore
