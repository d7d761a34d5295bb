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

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
)

// EmbeddingRepository implements storage.EmbeddingRepository for BadgerDB.
// Similarity search is a brute-force scan of the requested collections.
type EmbeddingRepository struct {
	backend    *Backend
	dimensions int
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new EmbeddingRepository whose vectors
// have the given number of dimensions.
func NewEmbeddingRepository(backend *Backend, dimensions int) (*EmbeddingRepository, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", core.ErrDimensionMismatch, dimensions)
	}
	return &EmbeddingRepository{
		backend:    backend,
		dimensions: dimensions,
	}, nil
}

// Close releases resources. EmbeddingRepository has no resources to release.
func (r *EmbeddingRepository) Close() error {
	return nil
}

// Dimensions returns the configured vector length.
func (r *EmbeddingRepository) Dimensions() int {
	return r.dimensions
}

// InsertBatch stores records atomically and assigns per-file sequence numbers.
func (r *EmbeddingRepository) InsertBatch(ctx context.Context, collectionID, fileID string, records []core.NewRecord) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}
	for i, rec := range records {
		if err := core.ValidateDimensions(r.dimensions, rec.Vector); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	var customIDs []string
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		collection, err := readCollection(tx, collectionID)
		if err != nil {
			return err
		}
		if collection == nil {
			return fmt.Errorf("collection %s: %w", collectionID, storage.ErrNotFound)
		}

		scope := fileScope(collectionID, fileID)
		next, err := maxSequence(tx, scope)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		customIDs = make([]string, 0, len(records))
		for _, rec := range records {
			next++
			record := &core.EmbeddingRecord{
				ID:             core.NewID(),
				CollectionID:   collectionID,
				Embedding:      slices.Clone(rec.Vector),
				Document:       rec.Text,
				Metadata:       rec.Metadata.Clone(),
				CustomID:       core.NewID(),
				FileID:         fileID,
				SequenceNumber: next,
				Status:         core.StatusEnabled,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			existing, err := getValue(tx, makeRecordKey(record.CustomID))
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("custom id %s: %w", record.CustomID, storage.ErrDuplicateKey)
			}
			if err := writeRecord(tx, record); err != nil {
				return err
			}
			if err := writeRecordIndexes(tx, record); err != nil {
				return err
			}
			customIDs = append(customIDs, record.CustomID)
		}

		// Writing the guard key makes concurrent batches for the same scope
		// conflict, so one of them replays against the new maximum.
		return tx.Set(makeFileSequenceKey(scope), encodeUint64(uint64(next)))
	})
	if err != nil {
		return nil, err
	}
	return customIDs, nil
}

// maxSequence returns the highest sequence number among the records of scope.
// It reads the guard key so that concurrent writers to the scope conflict.
func maxSequence(tx *badger.Txn, scope string) (int64, error) {
	if _, err := getValue(tx, makeFileSequenceKey(scope)); err != nil {
		return 0, err
	}
	var highest int64
	err := scanKeys(tx, makePartialRecordFileKey(scope), func(key, _ []byte) error {
		customID := strings.TrimPrefix(string(key), string(makePartialRecordFileKey(scope)))
		record, err := readRecord(tx, customID)
		if err != nil {
			return err
		}
		if record != nil && record.SequenceNumber > highest {
			highest = record.SequenceNumber
		}
		return nil
	})
	return highest, err
}

// GetRecord retrieves a record by custom ID.
func (r *EmbeddingRepository) GetRecord(ctx context.Context, customID string) (*core.EmbeddingRecord, error) {
	var result *core.EmbeddingRecord
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, customID)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// GetRecords retrieves the records that exist among customIDs.
func (r *EmbeddingRepository) GetRecords(ctx context.Context, customIDs []string) ([]*core.EmbeddingRecord, error) {
	var result []*core.EmbeddingRecord
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, id := range customIDs {
			record, err := readRecord(tx, id)
			if err != nil {
				return err
			}
			if record != nil {
				result = append(result, record)
			}
		}
		return nil
	})
	return result, err
}

// UpdateRecord applies a document and/or metadata change.
func (r *EmbeddingRepository) UpdateRecord(ctx context.Context, customID string, update core.RecordUpdate) (*core.EmbeddingRecord, error) {
	if update.Document != nil {
		if err := core.ValidateDimensions(r.dimensions, update.Embedding); err != nil {
			return nil, err
		}
	}

	var result *core.EmbeddingRecord
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		record, err := readRecord(tx, customID)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		if update.Document != nil {
			record.Document = *update.Document
			record.Embedding = slices.Clone(update.Embedding)
			record.Status = core.StatusEnabled
		}
		record.Metadata = update.Metadata.Clone()
		record.UpdatedAt = time.Now().UTC()
		result = record
		return writeRecord(tx, record)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReplaceEmbeddings swaps the vectors of existing records.
func (r *EmbeddingRepository) ReplaceEmbeddings(ctx context.Context, vectors map[string][]float32) error {
	ids := make([]string, 0, len(vectors))
	for id, v := range vectors {
		if err := core.ValidateDimensions(r.dimensions, v); err != nil {
			return fmt.Errorf("record %s: %w", id, err)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for chunk := range slices.Chunk(ids, writeChunkSize) {
		err := r.backend.Update(ctx, func(tx *badger.Txn) error {
			now := time.Now().UTC()
			for _, id := range chunk {
				record, err := readRecord(tx, id)
				if err != nil {
					return err
				}
				if record == nil {
					continue
				}
				record.Embedding = slices.Clone(vectors[id])
				record.UpdatedAt = now
				if err := writeRecord(tx, record); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteByCustomIDs removes matching records. Unknown ids are ignored.
func (r *EmbeddingRepository) DeleteByCustomIDs(ctx context.Context, customIDs []string) (int64, error) {
	return deleteRecords(ctx, r.backend, customIDs)
}

// DeleteByFileIDs removes every record owned by the given files.
func (r *EmbeddingRepository) DeleteByFileIDs(ctx context.Context, fileIDs []string) (int64, error) {
	customIDs, err := r.customIDsForFiles(fileIDs)
	if err != nil {
		return 0, err
	}
	return deleteRecords(ctx, r.backend, customIDs)
}

func (r *EmbeddingRepository) customIDsForFiles(fileIDs []string) ([]string, error) {
	var customIDs []string
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, fileID := range fileIDs {
			if fileID == "" {
				continue
			}
			prefix := makePartialRecordFileKey(fileID)
			err := scanKeys(tx, prefix, func(key, _ []byte) error {
				customIDs = append(customIDs, strings.TrimPrefix(string(key), string(prefix)))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return customIDs, err
}

// SetStatus enables or disables the selected records.
func (r *EmbeddingRepository) SetStatus(ctx context.Context, status core.Status, selector core.Selector) (int64, error) {
	if err := core.ValidateStatus(status); err != nil {
		return 0, err
	}
	if err := core.ValidateSelector(selector); err != nil {
		return 0, err
	}

	customIDs := selector.CustomIDs
	if len(selector.FileIDs) > 0 {
		var err error
		customIDs, err = r.customIDsForFiles(selector.FileIDs)
		if err != nil {
			return 0, err
		}
	}

	var changed int64
	for chunk := range slices.Chunk(customIDs, writeChunkSize) {
		var n int64
		err := r.backend.Update(ctx, func(tx *badger.Txn) error {
			n = 0
			now := time.Now().UTC()
			for _, id := range chunk {
				record, err := readRecord(tx, id)
				if err != nil {
					return err
				}
				if record == nil {
					continue
				}
				n++
				if record.Status == status {
					continue
				}
				record.Status = status
				record.UpdatedAt = now
				if err := writeRecord(tx, record); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return changed, err
		}
		changed += n
	}
	return changed, nil
}

// Search ranks the enabled records of the requested collections.
func (r *EmbeddingRepository) Search(ctx context.Context, query core.SimilarityQuery) ([]core.SearchHit, error) {
	if err := core.ValidateDimensions(r.dimensions, query.Vector); err != nil {
		return nil, err
	}
	distance := query.Distance
	if distance == "" {
		distance = core.DefaultDistanceStrategy
	}
	if err := distance.Validate(); err != nil {
		return nil, err
	}
	if query.TopK <= 0 {
		return []core.SearchHit{}, nil
	}

	var hits []core.SearchHit
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, collectionID := range slices.Compact(slices.Sorted(slices.Values(query.CollectionIDs))) {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := forEachCollectionRecord(tx, collectionID, func(record *core.EmbeddingRecord) error {
				if record.Status != core.StatusEnabled || !query.Filter.Matches(record.Metadata) {
					return nil
				}
				if len(record.Embedding) != len(query.Vector) {
					return nil
				}
				hits = append(hits, core.SearchHit{
					Document: record.Document,
					Score:    distance.Distance(query.Vector, record.Embedding),
					FileID:   record.FileID,
					CustomID: record.CustomID,
					Metadata: record.Metadata,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
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

	var wanted map[string]bool
	if len(filter.CustomIDs) > 0 {
		wanted = make(map[string]bool, len(filter.CustomIDs))
		for _, id := range filter.CustomIDs {
			wanted[id] = true
		}
	}

	offset := int64(pageNumber-1) * int64(pageSize)
	var total int64
	rows := make([]*core.EmbeddingRecord, 0, pageSize)
	err = r.backend.View(func(tx *badger.Txn) error {
		return forEachCollectionRecord(tx, collectionID, func(record *core.EmbeddingRecord) error {
			if wanted != nil && !wanted[record.CustomID] {
				return nil
			}
			if filter.DocumentSubstring != "" && !strings.Contains(record.Document, filter.DocumentSubstring) {
				return nil
			}
			if filter.FileID != "" && record.FileID != filter.FileID {
				return nil
			}
			if status != core.StatusAll && record.Status != status {
				return nil
			}
			if total >= offset && len(rows) < pageSize {
				rows = append(rows, record)
			}
			total++
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// forEachCollectionRecord visits a collection's records in creation order.
func forEachCollectionRecord(tx *badger.Txn, collectionID string, fn func(*core.EmbeddingRecord) error) error {
	return scanKeys(tx, makePartialRecordCollectionKey(collectionID), func(_, val []byte) error {
		record, err := readRecord(tx, string(val))
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}
		return fn(record)
	})
}

// deleteRecords removes records and their index entries in chunks.
func deleteRecords(ctx context.Context, backend *Backend, customIDs []string) (int64, error) {
	var deleted int64
	for chunk := range slices.Chunk(customIDs, writeChunkSize) {
		var n int64
		err := backend.Update(ctx, func(tx *badger.Txn) error {
			n = 0
			for _, id := range chunk {
				record, err := readRecord(tx, id)
				if err != nil {
					return err
				}
				if record == nil {
					continue
				}
				if err := deleteRecord(tx, record); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

func deleteRecord(tx *badger.Txn, record *core.EmbeddingRecord) error {
	keys := [][]byte{
		makeRecordKey(record.CustomID),
		makeRecordCollectionKey(record.CollectionID, record.CreatedAt, record.SequenceNumber, record.CustomID),
		makeRecordFileKey(fileScope(record.CollectionID, record.FileID), record.CustomID),
	}
	for _, key := range keys {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(tx *badger.Txn, record *core.EmbeddingRecord) error {
	value, err := storage.MarshalRecord(record)
	if err != nil {
		return err
	}
	return tx.Set(makeRecordKey(record.CustomID), value)
}

func writeRecordIndexes(tx *badger.Txn, record *core.EmbeddingRecord) error {
	collectionKey := makeRecordCollectionKey(record.CollectionID, record.CreatedAt, record.SequenceNumber, record.CustomID)
	if err := tx.Set(collectionKey, []byte(record.CustomID)); err != nil {
		return err
	}
	return tx.Set(makeRecordFileKey(fileScope(record.CollectionID, record.FileID), record.CustomID), nil)
}

// readRecord returns nil, nil when the record doesn't exist.
func readRecord(tx *badger.Txn, customID string) (*core.EmbeddingRecord, error) {
	value, err := getValue(tx, makeRecordKey(customID))
	if err != nil || value == nil {
		return nil, err
	}
	return storage.UnmarshalRecord(value)
}
