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
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EmbeddingRepository implements storage.EmbeddingRepository with gorm.
// Postgres ranks with pgvector operators; sqlite ranks in process.
type EmbeddingRepository struct {
	db *DB
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(db *DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// Close releases resources. The connection is closed through DB.
func (r *EmbeddingRepository) Close() error {
	return nil
}

// Dimensions returns the configured vector length.
func (r *EmbeddingRepository) Dimensions() int {
	return r.db.dimensions
}

// fileScope is the owner of a record's sequence numbers: the file id, or the
// collection for ad-hoc chunks.
func fileScope(collectionID, fileID string) string {
	if fileID == "" {
		return "@" + collectionID
	}
	return fileID
}

// InsertBatch stores records in one transaction. The sequence maximum is
// read under a per-scope advisory lock on postgres; sqlite write
// transactions already hold the database lock.
func (r *EmbeddingRepository) InsertBatch(ctx context.Context, collectionID, fileID string, records []core.NewRecord) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}
	for i, rec := range records {
		if err := core.ValidateDimensions(r.db.dimensions, rec.Vector); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	scope := fileScope(collectionID, fileID)
	var customIDs []string
	err := r.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owners int64
		if err := tx.Model(&collectionEntity{}).Where("id = ?", collectionID).Count(&owners).Error; err != nil {
			return err
		}
		if owners == 0 {
			return fmt.Errorf("collection %s: %w", collectionID, storage.ErrNotFound)
		}

		if r.db.dialect == dialectPostgres {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", scope).Error; err != nil {
				return err
			}
		}
		var next int64
		err := tx.Model(&recordEntity{}).
			Where("scope = ?", scope).
			Select("COALESCE(MAX(sequence_number), 0)").
			Scan(&next).Error
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		entities := make([]*recordEntity, 0, len(records))
		customIDs = make([]string, 0, len(records))
		for _, rec := range records {
			next++
			entity := &recordEntity{
				ID:             core.NewID(),
				CollectionID:   collectionID,
				Embedding:      newEmbeddingVector(rec.Vector),
				Document:       rec.Text,
				Metadata:       datatypes.NewJSONType(rec.Metadata.Clone()),
				CustomID:       core.NewID(),
				FileID:         fileID,
				Scope:          scope,
				SequenceNumber: next,
				Status:         string(core.StatusEnabled),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			entities = append(entities, entity)
			customIDs = append(customIDs, entity.CustomID)
		}
		return tx.CreateInBatches(entities, 100).Error
	})
	if err != nil {
		return nil, translateError(err)
	}
	return customIDs, nil
}

// GetRecord retrieves a record by custom ID.
func (r *EmbeddingRepository) GetRecord(ctx context.Context, customID string) (*core.EmbeddingRecord, error) {
	var entity recordEntity
	if err := r.db.gorm.WithContext(ctx).Where("custom_id = ?", customID).First(&entity).Error; err != nil {
		return nil, translateError(err)
	}
	return entity.toCore(), nil
}

// GetRecords retrieves the records that exist among customIDs, in input order.
func (r *EmbeddingRepository) GetRecords(ctx context.Context, customIDs []string) ([]*core.EmbeddingRecord, error) {
	found := make(map[string]*core.EmbeddingRecord, len(customIDs))
	for chunk := range slices.Chunk(customIDs, writeChunkSize) {
		var entities []recordEntity
		if err := r.db.gorm.WithContext(ctx).Where("custom_id IN ?", chunk).Find(&entities).Error; err != nil {
			return nil, translateError(err)
		}
		for i := range entities {
			found[entities[i].CustomID] = entities[i].toCore()
		}
	}

	var result []*core.EmbeddingRecord
	for _, id := range customIDs {
		if record, ok := found[id]; ok {
			result = append(result, record)
		}
	}
	return result, nil
}

// UpdateRecord applies a document and/or metadata change.
func (r *EmbeddingRepository) UpdateRecord(ctx context.Context, customID string, update core.RecordUpdate) (*core.EmbeddingRecord, error) {
	if update.Document != nil {
		if err := core.ValidateDimensions(r.db.dimensions, update.Embedding); err != nil {
			return nil, err
		}
	}

	var entity recordEntity
	err := r.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("custom_id = ?", customID).First(&entity).Error; err != nil {
			return err
		}
		if update.Document != nil {
			entity.Document = *update.Document
			entity.Embedding = newEmbeddingVector(update.Embedding)
			entity.Status = string(core.StatusEnabled)
		}
		entity.Metadata = datatypes.NewJSONType(update.Metadata.Clone())
		entity.UpdatedAt = time.Now().UTC()
		return tx.Save(&entity).Error
	})
	if err != nil {
		return nil, translateError(err)
	}
	return entity.toCore(), nil
}

// ReplaceEmbeddings swaps the vectors of existing records.
func (r *EmbeddingRepository) ReplaceEmbeddings(ctx context.Context, vectors map[string][]float32) error {
	ids := make([]string, 0, len(vectors))
	for id, v := range vectors {
		if err := core.ValidateDimensions(r.db.dimensions, v); err != nil {
			return fmt.Errorf("record %s: %w", id, err)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for chunk := range slices.Chunk(ids, writeChunkSize) {
		err := r.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := time.Now().UTC()
			for _, id := range chunk {
				err := tx.Model(&recordEntity{}).
					Where("custom_id = ?", id).
					Updates(map[string]any{
						"embedding":  newEmbeddingVector(vectors[id]),
						"updated_at": now,
					}).Error
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return translateError(err)
		}
	}
	return nil
}

// DeleteByCustomIDs removes matching records. Unknown ids are ignored.
func (r *EmbeddingRepository) DeleteByCustomIDs(ctx context.Context, customIDs []string) (int64, error) {
	return r.deleteWhere(ctx, "custom_id IN ?", customIDs)
}

// DeleteByFileIDs removes every record owned by the given files.
func (r *EmbeddingRepository) DeleteByFileIDs(ctx context.Context, fileIDs []string) (int64, error) {
	return r.deleteWhere(ctx, "file_id IN ?", nonEmpty(fileIDs))
}

func (r *EmbeddingRepository) deleteWhere(ctx context.Context, query string, ids []string) (int64, error) {
	var deleted int64
	for chunk := range slices.Chunk(ids, writeChunkSize) {
		res := r.db.gorm.WithContext(ctx).Where(query, chunk).Delete(&recordEntity{})
		if res.Error != nil {
			return deleted, translateError(res.Error)
		}
		deleted += res.RowsAffected
	}
	return deleted, nil
}

// SetStatus enables or disables the selected records and returns how many
// records matched.
func (r *EmbeddingRepository) SetStatus(ctx context.Context, status core.Status, selector core.Selector) (int64, error) {
	if err := core.ValidateStatus(status); err != nil {
		return 0, err
	}
	if err := core.ValidateSelector(selector); err != nil {
		return 0, err
	}

	query, ids := "custom_id IN ?", selector.CustomIDs
	if len(selector.FileIDs) > 0 {
		query, ids = "file_id IN ?", nonEmpty(selector.FileIDs)
	}

	var changed int64
	for chunk := range slices.Chunk(ids, writeChunkSize) {
		res := r.db.gorm.WithContext(ctx).Model(&recordEntity{}).
			Where(query, chunk).
			Updates(map[string]any{
				"status":     string(status),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return changed, translateError(res.Error)
		}
		changed += res.RowsAffected
	}
	return changed, nil
}

// searchRow is the projection read by postgres similarity queries.
type searchRow struct {
	CustomID string
	Document string
	FileID   string
	Metadata datatypes.JSONType[core.ChunkMetadata]
	Score    float64
}

var pgvectorOperators = map[core.DistanceStrategy]string{
	core.DistanceEuclidean:       "<->",
	core.DistanceCosine:          "<=>",
	core.DistanceMaxInnerProduct: "<#>",
}

// Search ranks the enabled records of the requested collections.
func (r *EmbeddingRepository) Search(ctx context.Context, query core.SimilarityQuery) ([]core.SearchHit, error) {
	if err := core.ValidateDimensions(r.db.dimensions, query.Vector); err != nil {
		return nil, err
	}
	distance := query.Distance
	if distance == "" {
		distance = core.DefaultDistanceStrategy
	}
	if err := distance.Validate(); err != nil {
		return nil, err
	}
	if query.TopK <= 0 || len(query.CollectionIDs) == 0 {
		return []core.SearchHit{}, nil
	}

	candidates := func(db *gorm.DB) *gorm.DB {
		db = db.Model(&recordEntity{}).
			Where("collection_id IN ?", query.CollectionIDs).
			Where("status = ?", string(core.StatusEnabled))
		return applyFilter(db, r.db.dialect, query.Filter)
	}

	if r.db.dialect == dialectPostgres {
		return r.searchPostgres(ctx, query, distance, candidates)
	}
	return r.searchInProcess(ctx, query, distance, candidates)
}

func (r *EmbeddingRepository) searchPostgres(ctx context.Context, query core.SimilarityQuery, distance core.DistanceStrategy, candidates func(*gorm.DB) *gorm.DB) ([]core.SearchHit, error) {
	selectSQL := fmt.Sprintf("custom_id, document, file_id, metadata, embedding %s ?::vector AS score", pgvectorOperators[distance])
	var rows []searchRow
	err := r.db.gorm.WithContext(ctx).
		Scopes(candidates).
		Select(selectSQL, newEmbeddingVector(query.Vector)).
		Order("score, created_at, sequence_number").
		Limit(query.TopK).
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}

	hits := make([]core.SearchHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, core.SearchHit{
			Document: row.Document,
			Score:    float32(row.Score),
			FileID:   row.FileID,
			CustomID: row.CustomID,
			Metadata: row.Metadata.Data(),
		})
	}
	return hits, nil
}

func (r *EmbeddingRepository) searchInProcess(ctx context.Context, query core.SimilarityQuery, distance core.DistanceStrategy, candidates func(*gorm.DB) *gorm.DB) ([]core.SearchHit, error) {
	var entities []recordEntity
	err := r.db.gorm.WithContext(ctx).
		Scopes(candidates).
		Select("custom_id, document, file_id, metadata, embedding").
		Order("created_at, sequence_number").
		Find(&entities).Error
	if err != nil {
		return nil, translateError(err)
	}

	hits := make([]core.SearchHit, 0, len(entities))
	for i := range entities {
		vec := entities[i].Embedding.Slice()
		if len(vec) != len(query.Vector) {
			continue
		}
		hits = append(hits, core.SearchHit{
			Document: entities[i].Document,
			Score:    distance.Distance(query.Vector, vec),
			FileID:   entities[i].FileID,
			CustomID: entities[i].CustomID,
			Metadata: entities[i].Metadata.Data(),
		})
	}
	slices.SortStableFunc(hits, func(a, b core.SearchHit) int {
		return cmp.Compare(a.Score, b.Score)
	})
	if len(hits) > query.TopK {
		hits = hits[:query.TopK]
	}
	return hits, nil
}

// Page lists the records of a collection in creation order.
func (r *EmbeddingRepository) Page(ctx context.Context, collectionID string, filter core.PageFilter, pageNumber, pageSize int) ([]*core.EmbeddingRecord, int64, error) {
	if err := core.ValidatePage(pageNumber, pageSize); err != nil {
		return nil, 0, err
	}
	status, err := core.NormalizePageStatus(filter.Status)
	if err != nil {
		return nil, 0, err
	}

	matching := func(db *gorm.DB) *gorm.DB {
		db = db.Model(&recordEntity{}).Where("collection_id = ?", collectionID)
		if len(filter.CustomIDs) > 0 {
			db = db.Where("custom_id IN ?", filter.CustomIDs)
		}
		if filter.DocumentSubstring != "" {
			// Case-sensitive on both dialects, unlike LIKE on sqlite.
			if r.db.dialect == dialectPostgres {
				db = db.Where("strpos(document, ?) > 0", filter.DocumentSubstring)
			} else {
				db = db.Where("instr(document, ?) > 0", filter.DocumentSubstring)
			}
		}
		if filter.FileID != "" {
			db = db.Where("file_id = ?", filter.FileID)
		}
		if status != core.StatusAll {
			db = db.Where("status = ?", string(status))
		}
		return db
	}

	var total int64
	if err := r.db.gorm.WithContext(ctx).Scopes(matching).Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	var entities []recordEntity
	err = r.db.gorm.WithContext(ctx).
		Scopes(matching).
		Order("created_at, sequence_number, custom_id").
		Offset((pageNumber - 1) * pageSize).
		Limit(pageSize).
		Find(&entities).Error
	if err != nil {
		return nil, 0, translateError(err)
	}

	rows := make([]*core.EmbeddingRecord, 0, len(entities))
	for i := range entities {
		rows = append(rows, entities[i].toCore())
	}
	return rows, total, nil
}

func nonEmpty(ids []string) []string {
	return slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return id == "" })
}
