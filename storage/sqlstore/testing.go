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


package sqlstore

import (
	"path/filepath"

	"github.com/poiesic/ragstore/storage"
)

// Repositories bundles the repositories sharing one connection pool.
type Repositories struct {
	Collections storage.CollectionRepository
	Embeddings  storage.EmbeddingRepository
	Files       storage.FileRepository
	DB          *DB
}

// Close closes the repositories and then the connection pool.
func (r *Repositories) Close() error {
	r.Files.Close()
	r.Embeddings.Close()
	r.Collections.Close()
	return r.DB.Close()
}

// OpenRepositories opens dsn and creates every repository on top of it.
func OpenRepositories(dsn string, dimensions int, opts ...Option) (*Repositories, error) {
	db, err := Open(dsn, dimensions, opts...)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Collections: NewCollectionRepository(db),
		Embeddings:  NewEmbeddingRepository(db),
		Files:       NewFileRepository(db),
		DB:          db,
	}, nil
}

// NewTestRepositories creates repositories on a sqlite file inside dir,
// typically t.TempDir(). Caller must Close the result when done.
func NewTestRepositories(dir string, dimensions int) (*Repositories, error) {
	return OpenRepositories(filepath.Join(dir, "ragstore.db"), dimensions)
}
