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
	"fmt"
	"io"
	"time"

	"github.com/poiesic/ragstore/ai"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of records embedded per provider call
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder rewrites the vectors of whole collections.
type Reembedder struct {
	collections storage.CollectionRepository
	repo        storage.EmbeddingRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(
	collections storage.CollectionRepository,
	repo storage.EmbeddingRepository,
	embedder ai.Embedder,
	config *Config,
	progress io.Writer,
) (*Reembedder, error) {
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if repo == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		collections: collections,
		repo:        repo,
		config:      config,
		progress:    progress,
		processor:   NewBatchProcessor(repo, embedder, config.MaxRetries, config.RetryDelay),
	}, nil
}

// Run re-embeds every record of the named collection.
// Returns storage.ErrNotFound if the collection does not exist.
func (r *Reembedder) Run(ctx context.Context, collectionName string) error {
	collection, err := r.collections.GetCollectionByName(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("collection %q: %w", collectionName, err)
	}
	return r.run(ctx, collection)
}

// RunAll re-embeds every collection in name order.
func (r *Reembedder) RunAll(ctx context.Context) error {
	collections, err := r.collections.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if len(collections) == 0 {
		fmt.Fprintf(r.progress, "No collections found\n")
		return nil
	}
	for _, collection := range collections {
		if err := r.run(ctx, collection); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reembedder) run(ctx context.Context, collection *core.Collection) error {
	iterator := NewRecordIterator(r.repo, collection.ID, r.config.BatchSize)

	total, err := iterator.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No records found in collection %q (0 records)\n", collection.Name)
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d records in %q (batch size: %d)\n",
		total, collection.Name, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, collection.Name, int(total), r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = iterator.ForEach(ctx, func(records []*core.EmbeddingRecord) error {
		if err := r.processor.Process(ctx, records); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		processed += len(records)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		return err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d records in %v (%.1f records/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/elapsed.Seconds())
	return nil
}
