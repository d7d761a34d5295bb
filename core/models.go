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


package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// NewID returns a fresh random identifier for collections, records and custom ids.
func NewID() string {
	return uuid.NewString()
}

// FileIDFromPath derives a deterministic file identifier from a namespace and a
// source path using BLAKE2b hashing. Registering the same path twice in the same
// namespace addresses the same file.
func FileIDFromPath(collection, path string) string {
	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits
	h.Write([]byte(collection))
	h.Write([]byte{0})
	h.Write([]byte(path))
	return hex.EncodeToString(h.Sum(nil))
}

// Status is the retrieval lifecycle state of an embedding record.
type Status string

const (
	// StatusEnabled records take part in search and default listings.
	StatusEnabled Status = "enabled"
	// StatusDisabled records are kept but excluded from retrieval.
	StatusDisabled Status = "disabled"
	// StatusAll is only meaningful as a page filter and matches both states.
	StatusAll Status = "all"
)

// Collection is a named namespace of embedding records, roughly one knowledge base.
type Collection struct {
	ID        string
	Name      string
	Metadata  map[string]string
	CreatedAt time.Time
}

// EmbeddingRecord is one embedded chunk of text.
type EmbeddingRecord struct {
	ID             string
	CollectionID   string
	Embedding      []float32
	Document       string
	Metadata       ChunkMetadata
	CustomID       string // Externally visible chunk id, never reused
	FileID         string // Empty for ad-hoc chunks
	SequenceNumber int64  // Position within FileID, starting at 1
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewRecord is the input to a batch insert: chunk text, metadata and its vector.
type NewRecord struct {
	Text     string
	Metadata ChunkMetadata
	Vector   []float32
}

// RecordUpdate describes a change to an existing record.
// Document and Embedding are replaced together when Document is non-nil.
type RecordUpdate struct {
	Document  *string
	Embedding []float32
	Metadata  ChunkMetadata
}

// Selector picks the target set of a bulk status change.
// Exactly one of FileIDs or CustomIDs must be set.
type Selector struct {
	FileIDs   []string
	CustomIDs []string
}

// SearchHit is a single similarity search result. Score is a distance:
// smaller means closer.
type SearchHit struct {
	Document string
	Score    float32
	FileID   string
	CustomID string
	Metadata ChunkMetadata
}

// SimilarityQuery is the storage-level form of a search request.
type SimilarityQuery struct {
	Vector        []float32
	CollectionIDs []string
	TopK          int
	Filter        *MetadataFilter
	Distance      DistanceStrategy
}

// PageFilter narrows a paginated listing. All fields are optional and combine
// with AND. An empty Status lists enabled records only.
type PageFilter struct {
	CustomIDs         []string
	DocumentSubstring string
	FileID            string
	Status            Status
}

// Page is one page of a listing along with the total number of matches.
type Page struct {
	Records    []*EmbeddingRecord
	TotalCount int64
	PageNumber int
	PageSize   int
}

// Fragment is a piece of loaded source text together with its metadata.
type Fragment struct {
	Text     string
	Metadata ChunkMetadata
}

// Chunk is a piece of text ready to be embedded.
type Chunk struct {
	Text     string
	Metadata ChunkMetadata
}
