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
	"slices"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/ragstore/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// embeddingVector is a pgvector column on postgres and its text form
// ("[1,2,3]") on sqlite.
type embeddingVector struct {
	pgvector.Vector
}

func newEmbeddingVector(v []float32) embeddingVector {
	return embeddingVector{Vector: pgvector.NewVector(slices.Clone(v))}
}

// GormDBDataType implements schema.GormDataTypeInterface per dialect.
func (embeddingVector) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == dialectPostgres {
		return "vector"
	}
	return "text"
}

type collectionEntity struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"uniqueIndex;not null"`
	Metadata  datatypes.JSONType[map[string]string]
	CreatedAt time.Time
}

func (collectionEntity) TableName() string {
	return "collections"
}

func (e *collectionEntity) toCore() *core.Collection {
	return &core.Collection{
		ID:        e.ID,
		Name:      e.Name,
		Metadata:  e.Metadata.Data(),
		CreatedAt: e.CreatedAt.UTC(),
	}
}

// recordEntity is one embedded chunk. Scope is the file id, or the
// collection for ad-hoc chunks, and owns the sequence numbers.
type recordEntity struct {
	ID             string            `gorm:"primaryKey;size:36"`
	CollectionID   string            `gorm:"size:36;not null;index"`
	Collection     *collectionEntity `gorm:"foreignKey:CollectionID;constraint:OnDelete:CASCADE"`
	Embedding      embeddingVector   `gorm:"not null"`
	Document       string            `gorm:"type:text;not null"`
	Metadata       datatypes.JSONType[core.ChunkMetadata]
	CustomID       string `gorm:"size:36;not null;uniqueIndex"`
	FileID         string `gorm:"not null;default:'';index"`
	Scope          string `gorm:"not null;uniqueIndex:idx_embedding_records_scope_seq"`
	SequenceNumber int64  `gorm:"not null;uniqueIndex:idx_embedding_records_scope_seq"`
	Status         string `gorm:"size:16;not null;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (recordEntity) TableName() string {
	return "embedding_records"
}

func (e *recordEntity) toCore() *core.EmbeddingRecord {
	return &core.EmbeddingRecord{
		ID:             e.ID,
		CollectionID:   e.CollectionID,
		Embedding:      e.Embedding.Slice(),
		Document:       e.Document,
		Metadata:       e.Metadata.Data(),
		CustomID:       e.CustomID,
		FileID:         e.FileID,
		SequenceNumber: e.SequenceNumber,
		Status:         core.Status(e.Status),
		CreatedAt:      e.CreatedAt.UTC(),
		UpdatedAt:      e.UpdatedAt.UTC(),
	}
}

type sourceFileEntity struct {
	ID          string `gorm:"primaryKey;size:64"`
	Collection  string `gorm:"not null;index"`
	Path        string `gorm:"not null"`
	DisplayName string
	Status      string `gorm:"size:16;not null;default:'';index"`
	RetryCount  int    `gorm:"not null;default:0"`
	VectorIDs   datatypes.JSONSlice[string]
	Chunking    datatypes.JSONType[core.ChunkingConfig]
	Metadata    datatypes.JSONType[core.ChunkMetadata]
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"index"`
	VectoringAt time.Time
}

func (sourceFileEntity) TableName() string {
	return "source_files"
}

func newSourceFileEntity(f *core.SourceFile) *sourceFileEntity {
	return &sourceFileEntity{
		ID:          f.ID,
		Collection:  f.Collection,
		Path:        f.Path,
		DisplayName: f.DisplayName,
		Status:      string(f.Status),
		RetryCount:  f.RetryCount,
		VectorIDs:   datatypes.NewJSONSlice(f.VectorIDs),
		Chunking:    datatypes.NewJSONType(f.Chunking),
		Metadata:    datatypes.NewJSONType(f.Metadata),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
		VectoringAt: f.VectoringAt,
	}
}

func (e *sourceFileEntity) toCore() *core.SourceFile {
	return &core.SourceFile{
		ID:          e.ID,
		Collection:  e.Collection,
		Path:        e.Path,
		DisplayName: e.DisplayName,
		Status:      core.FileStatus(e.Status),
		RetryCount:  e.RetryCount,
		VectorIDs:   []string(e.VectorIDs),
		Chunking:    e.Chunking.Data(),
		Metadata:    e.Metadata.Data(),
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
		VectoringAt: e.VectoringAt.UTC(),
	}
}
