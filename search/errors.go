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

package search

import "errors"

var (
	// ErrCollectionRepositoryRequired is returned when a collection repository is not provided.
	ErrCollectionRepositoryRequired = errors.New("collection repository required")

	// ErrEmbeddingRepositoryRequired is returned when an embedding repository is not provided.
	ErrEmbeddingRepositoryRequired = errors.New("embedding repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrNoCollection is returned when none of the requested collections exist.
	ErrNoCollection = errors.New("no collection found")

	// ErrInvalidTopK is returned for a non-positive result limit.
	ErrInvalidTopK = errors.New("top k must be positive")
)
