package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/ragstore/ai/mock"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unnormalized returns {1, 2, 2} for every text; magnitude 3.
func unnormalized(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0}
	}
	return result, nil
}

func pageAll(t *testing.T, repo storage.EmbeddingRepository, collectionID string) []*core.EmbeddingRecord {
	t.Helper()
	records, _, err := repo.Page(context.Background(), collectionID, allRecords, 1, 1000)
	require.NoError(t, err)
	return records
}

func TestBatchProcessor_Process(t *testing.T) {
	repos := setupTestDB(t)
	collection := seedCollection(t, repos, "kb", 2)
	ctx := context.Background()

	embedder := mock.NewMockEmbedder(testDims)
	embedder.EmbedDocumentsFunc = unnormalized
	processor := NewBatchProcessor(repos.Embeddings, embedder, 3, 10*time.Millisecond)

	before := pageAll(t, repos.Embeddings, collection.ID)
	require.NoError(t, processor.Process(ctx, before))

	after := pageAll(t, repos.Embeddings, collection.ID)
	require.Len(t, after, 2)
	for i, record := range after {
		assert.InDeltaSlice(t, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}, record.Embedding, 1e-6)
		assert.InDelta(t, 1.0, Magnitude(record.Embedding), 1e-6)
		assert.Equal(t, before[i].Document, record.Document, "documents untouched")
		assert.Equal(t, before[i].SequenceNumber, record.SequenceNumber)
	}
	assert.Equal(t, 1, embedder.CallCount(), "one provider call per batch")
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	repos := setupTestDB(t)
	embedder := mock.NewMockEmbedder(testDims)
	processor := NewBatchProcessor(repos.Embeddings, embedder, 3, 10*time.Millisecond)

	require.NoError(t, processor.Process(context.Background(), nil))
	assert.Zero(t, embedder.CallCount())
}

func TestBatchProcessor_RetriesTransientErrors(t *testing.T) {
	repos := setupTestDB(t)
	collection := seedCollection(t, repos, "kb", 1)

	attempts := 0
	embedder := mock.NewMockEmbedder(testDims)
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("temporary error")
		}
		return unnormalized(ctx, texts)
	}
	processor := NewBatchProcessor(repos.Embeddings, embedder, 3, time.Millisecond)

	require.NoError(t, processor.Process(context.Background(), pageAll(t, repos.Embeddings, collection.ID)))
	assert.Equal(t, 3, attempts)
}

func TestBatchProcessor_CountMismatchIsNotRetried(t *testing.T) {
	repos := setupTestDB(t)
	collection := seedCollection(t, repos, "kb", 2)

	embedder := mock.NewMockEmbedder(testDims)
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0}}, nil
	}
	processor := NewBatchProcessor(repos.Embeddings, embedder, 3, time.Millisecond)

	err := processor.Process(context.Background(), pageAll(t, repos.Embeddings, collection.ID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding count mismatch")
	assert.Equal(t, 1, embedder.CallCount())
}

func TestBatchProcessor_WrongDimensions(t *testing.T) {
	repos := setupTestDB(t)
	collection := seedCollection(t, repos, "kb", 1)
	before := pageAll(t, repos.Embeddings, collection.ID)

	embedder := mock.NewMockEmbedder(testDims)
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}
	processor := NewBatchProcessor(repos.Embeddings, embedder, 3, time.Millisecond)

	err := processor.Process(context.Background(), before)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	after := pageAll(t, repos.Embeddings, collection.ID)
	assert.Equal(t, before[0].Embedding, after[0].Embedding, "vector left as it was")
}
