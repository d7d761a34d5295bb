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


package badger

import "github.com/poiesic/ragstore/storage"

// Repositories bundles the repositories sharing one backend.
type Repositories struct {
	Collections storage.CollectionRepository
	Embeddings  storage.EmbeddingRepository
	Files       storage.FileRepository
	Backend     *Backend
}

// Close closes the repositories and then the backend.
func (r *Repositories) Close() error {
	r.Files.Close()
	r.Embeddings.Close()
	r.Collections.Close()
	return r.Backend.Close()
}

// OpenRepositories opens a backend and creates every repository on top of it.
func OpenRepositories(filePath string, inMemory bool, dimensions int) (*Repositories, error) {
	backend, err := OpenBackend(filePath, inMemory)
	if err != nil {
		return nil, err
	}

	collections, err := NewCollectionRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	embeddings, err := NewEmbeddingRepository(backend, dimensions)
	if err != nil {
		collections.Close()
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Collections: collections,
		Embeddings:  embeddings,
		Files:       NewFileRepository(backend),
		Backend:     backend,
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories(dimensions int) (*Repositories, error) {
	return OpenRepositories("", true, dimensions)
}
