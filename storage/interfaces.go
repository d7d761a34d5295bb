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
	"time"

	"github.com/poiesic/ragstore/core"
)

// Repository defines the common lifecycle of all repositories.
type Repository interface {
	// Close releases resources held by the repository.
	// The underlying backend is closed separately.
	Close() error
}

// CollectionRepository maps namespace names to stable collection ids.
type CollectionRepository interface {
	Repository

	// GetOrCreateCollection returns the collection called name, creating it
	// with metadata when it does not exist. created reports whether this call
	// created it. Concurrent callers racing on a new name all receive the same
	// collection.
	GetOrCreateCollection(ctx context.Context, name string, metadata map[string]string) (*core.Collection, bool, error)

	// GetCollectionByName returns ErrNotFound if no collection has that name.
	GetCollectionByName(ctx context.Context, name string) (*core.Collection, error)

	// GetCollectionsByNames returns the collections that exist among names.
	// Duplicates are collapsed; order is unspecified.
	GetCollectionsByNames(ctx context.Context, names []string) ([]*core.Collection, error)

	// ListCollections returns every collection ordered by name.
	ListCollections(ctx context.Context) ([]*core.Collection, error)

	// UpdateCollectionMetadata replaces the metadata of a collection.
	// Returns ErrNotFound if the collection doesn't exist.
	UpdateCollectionMetadata(ctx context.Context, name string, metadata map[string]string) error

	// DeleteCollection removes the collection and every record it owns.
	// Deleting an unknown name is a no-op.
	DeleteCollection(ctx context.Context, name string) error
}

// EmbeddingRepository persists embedded chunks.
type EmbeddingRepository interface {
	Repository

	// Dimensions returns the vector length every record must have.
	Dimensions() int

	// InsertBatch stores records in collectionID as one atomic unit and returns
	// their custom ids in input order. Sequence numbers continue from the
	// highest existing number for fileID. An empty fileID marks ad-hoc chunks.
	// Returns core.ErrDimensionMismatch before writing anything if a vector has
	// the wrong length.
	InsertBatch(ctx context.Context, collectionID, fileID string, records []core.NewRecord) ([]string, error)

	// GetRecord retrieves a record by custom id.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, customID string) (*core.EmbeddingRecord, error)

	// GetRecords retrieves the records that exist among customIDs.
	GetRecords(ctx context.Context, customIDs []string) ([]*core.EmbeddingRecord, error)

	// UpdateRecord applies update to the record. When update.Document is set,
	// document and embedding are replaced and status returns to enabled.
	// Metadata is always overwritten and UpdatedAt refreshed.
	// Returns ErrNotFound if the record doesn't exist.
	UpdateRecord(ctx context.Context, customID string, update core.RecordUpdate) (*core.EmbeddingRecord, error)

	// ReplaceEmbeddings swaps vectors without touching documents or metadata.
	// Unknown custom ids are ignored.
	ReplaceEmbeddings(ctx context.Context, vectors map[string][]float32) error

	// DeleteByCustomIDs removes matching records. Unknown ids are ignored.
	DeleteByCustomIDs(ctx context.Context, customIDs []string) (int64, error)

	// DeleteByFileIDs removes every record owned by the given files.
	DeleteByFileIDs(ctx context.Context, fileIDs []string) (int64, error)

	// SetStatus changes the status of the selected records.
	// Returns core.ErrInvalidSelector unless exactly one selector list is set.
	SetStatus(ctx context.Context, status core.Status, selector core.Selector) (int64, error)

	// Search ranks enabled records of the given collections by distance to
	// query.Vector, ascending, and returns at most query.TopK hits.
	Search(ctx context.Context, query core.SimilarityQuery) ([]core.SearchHit, error)

	// Page lists records of a collection ordered by creation time together
	// with the number of records matching filter.
	Page(ctx context.Context, collectionID string, filter core.PageFilter, pageNumber, pageSize int) ([]*core.EmbeddingRecord, int64, error)
}

// FileRepository tracks source files through the ingestion state machine.
type FileRepository interface {
	Repository

	// AddFiles registers files. Files already registered keep their state.
	AddFiles(ctx context.Context, files ...*core.SourceFile) error

	// GetFile returns ErrNotFound if the file is unknown.
	GetFile(ctx context.Context, id string) (*core.SourceFile, error)

	// ListFiles returns the files of a collection, most recent first.
	// An empty collection lists every file.
	ListFiles(ctx context.Context, collection string) ([]*core.SourceFile, error)

	// ListEligibleFiles returns up to limit files whose status is eligible and
	// whose retry count is below maxRetries, most recently registered first.
	ListEligibleFiles(ctx context.Context, maxRetries, limit int) ([]*core.SourceFile, error)

	// ClaimFile moves an eligible file to Vectoring. It reports false when the
	// file was claimed by someone else or is no longer eligible.
	ClaimFile(ctx context.Context, id string, maxRetries int) (bool, error)

	// CompleteFile marks a Vectoring file Done and stores its vector ids.
	CompleteFile(ctx context.Context, id string, vectorIDs []string) error

	// FailFile marks a file Fail and increments its retry count.
	// Vector ids are left untouched.
	FailFile(ctx context.Context, id string) error

	// RequeueFile moves a file back to Wait. resetRetries clears the retry count
	// and the vector ids.
	RequeueFile(ctx context.Context, id string, resetRetries bool) error

	// RecoverStaleFiles fails every Vectoring file claimed before cutoff.
	RecoverStaleFiles(ctx context.Context, cutoff time.Time) (int, error)

	// DeleteFile removes the file entry. Unknown ids are ignored.
	DeleteFile(ctx context.Context, id string) error
}
