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


package reembed

import (
	"context"

	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
)

const (
	// DefaultBatchSize is the default number of records to fetch in each batch
	DefaultBatchSize = 100
)

// allRecords selects enabled and disabled records alike.
var allRecords = core.PageFilter{Status: core.StatusAll}

// RecordIterator walks the records of one collection in pages.
type RecordIterator struct {
	repo         storage.EmbeddingRepository
	collectionID string
	batchSize    int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records to fetch in each page (defaults when <= 0)
func NewRecordIterator(repo storage.EmbeddingRepository, collectionID string, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RecordIterator{
		repo:         repo,
		collectionID: collectionID,
		batchSize:    batchSize,
	}
}

// Count returns the number of records in the collection, any status.
func (it *RecordIterator) Count(ctx context.Context) (int64, error) {
	_, total, err := it.repo.Page(ctx, it.collectionID, allRecords, 1, 1)
	return total, err
}

// ForEach calls fn with each page of records, in page order.
// Iteration stops on the first error from fn or when all pages are read.
// Context cancellation is checked between pages.
//
// Rewriting vectors does not change page order, so fn may update the
// records it receives.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.EmbeddingRecord) error) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, total, err := it.repo.Page(ctx, it.collectionID, allRecords, page, it.batchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		if err := fn(records); err != nil {
			return err
		}

		if int64(page)*int64(it.batchSize) >= total {
			return nil
		}
	}
}
