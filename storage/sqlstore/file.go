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
	"context"
	"fmt"
	"time"

	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FileRepository implements storage.FileRepository with gorm. State
// transitions are conditional UPDATEs, so a claim succeeds for one caller only.
type FileRepository struct {
	db *DB
}

var _ storage.FileRepository = (*FileRepository)(nil)

// NewFileRepository creates a new FileRepository.
func NewFileRepository(db *DB) *FileRepository {
	return &FileRepository{db: db}
}

// Close releases resources. The connection is closed through DB.
func (r *FileRepository) Close() error {
	return nil
}

// AddFiles registers files that are not yet known.
func (r *FileRepository) AddFiles(ctx context.Context, files ...*core.SourceFile) error {
	if len(files) == 0 {
		return nil
	}
	now := time.Now().UTC()
	entities := make([]*sourceFileEntity, 0, len(files))
	for _, file := range files {
		file.CreatedAt = now
		file.UpdatedAt = now
		entities = append(entities, newSourceFileEntity(file))
	}
	err := r.db.gorm.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(entities, 100).Error
	return translateError(err)
}

// GetFile retrieves a file by ID.
func (r *FileRepository) GetFile(ctx context.Context, id string) (*core.SourceFile, error) {
	var entity sourceFileEntity
	if err := r.db.gorm.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, translateError(err)
	}
	return entity.toCore(), nil
}

// ListFiles returns a collection's files, most recently updated first.
func (r *FileRepository) ListFiles(ctx context.Context, collection string) ([]*core.SourceFile, error) {
	db := r.db.gorm.WithContext(ctx)
	if collection != "" {
		db = db.Where("collection = ?", collection)
	}
	return r.find(db, "updated_at DESC, id", 0)
}

// ListEligibleFiles returns files the scheduler may pick up, newest
// registrations first. Failing does not move a file up the queue.
func (r *FileRepository) ListEligibleFiles(ctx context.Context, maxRetries, limit int) ([]*core.SourceFile, error) {
	db := r.db.gorm.WithContext(ctx).
		Where("status IN ?", eligibleStatuses()).
		Where("retry_count < ?", maxRetries)
	return r.find(db, "created_at DESC, id", limit)
}

func (r *FileRepository) find(db *gorm.DB, order string, limit int) ([]*core.SourceFile, error) {
	db = db.Order(order)
	if limit > 0 {
		db = db.Limit(limit)
	}
	var entities []sourceFileEntity
	if err := db.Find(&entities).Error; err != nil {
		return nil, translateError(err)
	}
	result := make([]*core.SourceFile, 0, len(entities))
	for i := range entities {
		result = append(result, entities[i].toCore())
	}
	return result, nil
}

// ClaimFile moves an eligible file to Vectoring.
func (r *FileRepository) ClaimFile(ctx context.Context, id string, maxRetries int) (bool, error) {
	now := time.Now().UTC()
	res := r.db.gorm.WithContext(ctx).Model(&sourceFileEntity{}).
		Where("id = ?", id).
		Where("status IN ?", eligibleStatuses()).
		Where("retry_count < ?", maxRetries).
		Updates(map[string]any{
			"status":       string(core.FileStatusVectoring),
			"vectoring_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CompleteFile marks a file Done and records its vector ids.
func (r *FileRepository) CompleteFile(ctx context.Context, id string, vectorIDs []string) error {
	return r.update(ctx, id, map[string]any{
		"status":       string(core.FileStatusDone),
		"vector_ids":   datatypes.NewJSONSlice(vectorIDs),
		"vectoring_at": time.Time{},
	})
}

// FailFile marks a file Fail and increments its retry count.
func (r *FileRepository) FailFile(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]any{
		"status":       string(core.FileStatusFail),
		"retry_count":  gorm.Expr("retry_count + 1"),
		"vectoring_at": time.Time{},
	})
}

// RequeueFile moves a file back to Wait.
func (r *FileRepository) RequeueFile(ctx context.Context, id string, resetRetries bool) error {
	values := map[string]any{
		"status":       string(core.FileStatusWait),
		"vectoring_at": time.Time{},
	}
	if resetRetries {
		values["retry_count"] = 0
		values["vector_ids"] = datatypes.NewJSONSlice[string](nil)
	}
	return r.update(ctx, id, values)
}

func (r *FileRepository) update(ctx context.Context, id string, values map[string]any) error {
	values["updated_at"] = time.Now().UTC()
	res := r.db.gorm.WithContext(ctx).Model(&sourceFileEntity{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// RecoverStaleFiles fails Vectoring files whose claim started before cutoff.
func (r *FileRepository) RecoverStaleFiles(ctx context.Context, cutoff time.Time) (int, error) {
	res := r.db.gorm.WithContext(ctx).Model(&sourceFileEntity{}).
		Where("status = ?", string(core.FileStatusVectoring)).
		Where("vectoring_at < ?", cutoff.UTC()).
		Updates(map[string]any{
			"status":       string(core.FileStatusFail),
			"retry_count":  gorm.Expr("retry_count + 1"),
			"vectoring_at": time.Time{},
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, translateError(res.Error)
	}
	return int(res.RowsAffected), nil
}

// DeleteFile removes a file entry.
func (r *FileRepository) DeleteFile(ctx context.Context, id string) error {
	return translateError(r.db.gorm.WithContext(ctx).Where("id = ?", id).Delete(&sourceFileEntity{}).Error)
}

func eligibleStatuses() []string {
	out := make([]string, 0, len(core.EligibleFileStatuses))
	for _, s := range core.EligibleFileStatuses {
		out = append(out, string(s))
	}
	return out
}
