package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/ragstore/ai"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
)

// BatchProcessor re-embeds one page of records.
type BatchProcessor struct {
	repo           storage.EmbeddingRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.EmbeddingRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the documents of records and swaps in the normalized
// vectors. Nothing is written unless the whole batch embedded.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Document
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return err
		}
		if len(embeddings) != len(records) {
			return Permanent(fmt.Errorf("embedding count mismatch: expected %d, got %d", len(records), len(embeddings)))
		}
		return nil
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	vectors := make(map[string][]float32, len(records))
	for i, record := range records {
		vectors[record.CustomID] = NormalizeVector(embeddings[i])
	}

	if err := bp.repo.ReplaceEmbeddings(ctx, vectors); err != nil {
		return fmt.Errorf("failed to update records: %w", err)
	}
	return nil
}
