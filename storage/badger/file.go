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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
)

// FileRepository implements storage.FileRepository for BadgerDB.
// Claims rely on BadgerDB's conflict detection: two transactions that read
// the same file and both write it cannot both commit.
type FileRepository struct {
	backend *Backend
}

var _ storage.FileRepository = (*FileRepository)(nil)

// NewFileRepository creates a new FileRepository.
func NewFileRepository(backend *Backend) *FileRepository {
	return &FileRepository{
		backend: backend,
	}
}

// Close releases resources. FileRepository has no resources to release.
func (r *FileRepository) Close() error {
	return nil
}

// AddFiles registers files that are not yet known.
func (r *FileRepository) AddFiles(ctx context.Context, files ...*core.SourceFile) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, file := range files {
			existing, err := readSourceFile(tx, file.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			file.CreatedAt = now
			file.UpdatedAt = now
			if err := writeSourceFile(tx, file); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetFile retrieves a file by ID.
func (r *FileRepository) GetFile(ctx context.Context, id string) (*core.SourceFile, error) {
	var result *core.SourceFile
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = readSourceFile(tx, id)
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

// ListFiles returns a collection's files, most recently updated first.
func (r *FileRepository) ListFiles(ctx context.Context, collection string) ([]*core.SourceFile, error) {
	return r.listFiles(func(f *core.SourceFile) bool {
		return collection == "" || f.Collection == collection
	}, recentlyUpdated, 0)
}

// ListEligibleFiles returns files the scheduler may pick up, newest
// registrations first. Failing does not move a file up the queue.
func (r *FileRepository) ListEligibleFiles(ctx context.Context, maxRetries, limit int) ([]*core.SourceFile, error) {
	return r.listFiles(func(f *core.SourceFile) bool {
		return f.Status.IsEligible() && f.RetryCount < maxRetries
	}, recentlyCreated, limit)
}

func recentlyUpdated(a, b *core.SourceFile) int {
	return cmp.Or(b.UpdatedAt.Compare(a.UpdatedAt), cmp.Compare(a.ID, b.ID))
}

func recentlyCreated(a, b *core.SourceFile) int {
	return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
}

func (r *FileRepository) listFiles(keep func(*core.SourceFile) bool, order func(a, b *core.SourceFile) int, limit int) ([]*core.SourceFile, error) {
	var result []*core.SourceFile
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanKeys(tx, prefixOf(sourceFilePrefix), func(_, val []byte) error {
			file, err := storage.UnmarshalSourceFile(val)
			if err != nil {
				return err
			}
			if keep(file) {
				result = append(result, file)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(result, order)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ClaimFile moves an eligible file to Vectoring.
func (r *FileRepository) ClaimFile(ctx context.Context, id string, maxRetries int) (bool, error) {
	claimed := false
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		claimed = false
		file, err := readSourceFile(tx, id)
		if err != nil {
			return err
		}
		if file == nil || !file.Status.IsEligible() || file.RetryCount >= maxRetries {
			return nil
		}
		now := time.Now().UTC()
		file.Status = core.FileStatusVectoring
		file.VectoringAt = now
		file.UpdatedAt = now
		claimed = true
		return writeSourceFile(tx, file)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// CompleteFile marks a file Done and records its vector ids.
func (r *FileRepository) CompleteFile(ctx context.Context, id string, vectorIDs []string) error {
	return r.modifyFile(ctx, id, func(file *core.SourceFile) {
		file.Status = core.FileStatusDone
		file.VectorIDs = slices.Clone(vectorIDs)
		file.VectoringAt = time.Time{}
	})
}

// FailFile marks a file Fail and increments its retry count.
func (r *FileRepository) FailFile(ctx context.Context, id string) error {
	return r.modifyFile(ctx, id, func(file *core.SourceFile) {
		file.Status = core.FileStatusFail
		file.RetryCount++
		file.VectoringAt = time.Time{}
	})
}

// RequeueFile moves a file back to Wait.
func (r *FileRepository) RequeueFile(ctx context.Context, id string, resetRetries bool) error {
	return r.modifyFile(ctx, id, func(file *core.SourceFile) {
		file.Status = core.FileStatusWait
		file.VectoringAt = time.Time{}
		if resetRetries {
			file.RetryCount = 0
			file.VectorIDs = nil
		}
	})
}

// RecoverStaleFiles fails Vectoring files whose claim started before cutoff.
func (r *FileRepository) RecoverStaleFiles(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := r.listFiles(func(f *core.SourceFile) bool {
		return f.Status == core.FileStatusVectoring && f.VectoringAt.Before(cutoff)
	}, recentlyUpdated, 0)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, file := range stale {
		failed := false
		err := r.backend.Update(ctx, func(tx *badger.Txn) error {
			failed = false
			current, err := readSourceFile(tx, file.ID)
			if err != nil || current == nil {
				return err
			}
			// Re-check inside the transaction; the file may have finished meanwhile.
			if current.Status != core.FileStatusVectoring || !current.VectoringAt.Before(cutoff) {
				return nil
			}
			current.Status = core.FileStatusFail
			current.RetryCount++
			current.VectoringAt = time.Time{}
			current.UpdatedAt = time.Now().UTC()
			failed = true
			return writeSourceFile(tx, current)
		})
		if err != nil {
			return recovered, err
		}
		if failed {
			recovered++
		}
	}
	return recovered, nil
}

// DeleteFile removes a file entry.
func (r *FileRepository) DeleteFile(ctx context.Context, id string) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeSourceFileKey(id))
	})
}

func (r *FileRepository) modifyFile(ctx context.Context, id string, fn func(*core.SourceFile)) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		file, err := readSourceFile(tx, id)
		if err != nil {
			return err
		}
		if file == nil {
			return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
		}
		fn(file)
		file.UpdatedAt = time.Now().UTC()
		return writeSourceFile(tx, file)
	})
}

func writeSourceFile(tx *badger.Txn, file *core.SourceFile) error {
	value, err := storage.MarshalSourceFile(file)
	if err != nil {
		return err
	}
	return tx.Set(makeSourceFileKey(file.ID), value)
}

// readSourceFile returns nil, nil when the file doesn't exist.
func readSourceFile(tx *badger.Txn, id string) (*core.SourceFile, error) {
	value, err := getValue(tx, makeSourceFileKey(id))
	if err != nil || value == nil {
		return nil, err
	}
	return storage.UnmarshalSourceFile(value)
}
