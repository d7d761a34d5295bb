package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/ragstore/ai/mock"
	"github.com/poiesic/ragstore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(batchSize, reportInterval int) *Config {
	return &Config{
		BatchSize:      batchSize,
		ReportInterval: reportInterval,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
	}
}

func TestNewReembedder_Validation(t *testing.T) {
	repos := setupTestDB(t)
	embedder := mock.NewMockEmbedder(testDims)

	_, err := NewReembedder(nil, repos.Embeddings, embedder, nil, nil)
	assert.ErrorIs(t, err, ErrCollectionRepositoryRequired)

	_, err = NewReembedder(repos.Collections, nil, embedder, nil, nil)
	assert.ErrorIs(t, err, ErrEmbeddingRepositoryRequired)

	_, err = NewReembedder(repos.Collections, repos.Embeddings, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	r, err := NewReembedder(repos.Collections, repos.Embeddings, embedder, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), r.config)
}

func TestReembedder_Run(t *testing.T) {
	repos := setupTestDB(t)
	collection := seedCollection(t, repos, "kb", 10)
	other := seedCollection(t, repos, "other", 2)
	ctx := context.Background()

	embedder := mock.NewMockEmbedder(testDims)
	embedder.EmbedDocumentsFunc = unnormalized

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Collections, repos.Embeddings, embedder, testConfig(3, 3), &buf)
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx, "kb"))

	for _, record := range pageAll(t, repos.Embeddings, collection.ID) {
		assert.InDelta(t, 1.0, Magnitude(record.Embedding), 1e-6, "record %s should be normalized", record.CustomID)
		assert.InDelta(t, 1.0/3, record.Embedding[0], 1e-6)
	}
	for _, record := range pageAll(t, repos.Embeddings, other.ID) {
		assert.Equal(t, []float32{0, 0, 1}, record.Embedding, "other collections untouched")
	}

	assert.Equal(t, 4, embedder.CallCount(), "ceil(10/3) batches")
	assert.Contains(t, buf.String(), "10/10")
	assert.Contains(t, buf.String(), "Reembedding complete")
}

func TestReembedder_RunAll(t *testing.T) {
	repos := setupTestDB(t)
	a := seedCollection(t, repos, "a", 2)
	b := seedCollection(t, repos, "b", 3)

	embedder := mock.NewMockEmbedder(testDims)
	embedder.EmbedDocumentsFunc = unnormalized

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Collections, repos.Embeddings, embedder, testConfig(10, 10), &buf)
	require.NoError(t, err)
	require.NoError(t, r.RunAll(context.Background()))

	for _, id := range []string{a.ID, b.ID} {
		for _, record := range pageAll(t, repos.Embeddings, id) {
			assert.InDelta(t, 1.0/3, record.Embedding[0], 1e-6)
		}
	}
	assert.Contains(t, buf.String(), "a: 2/2")
	assert.Contains(t, buf.String(), "b: 3/3")
}

func TestReembedder_EmptyCollection(t *testing.T) {
	repos := setupTestDB(t)
	seedCollection(t, repos, "empty", 0)

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Collections, repos.Embeddings, mock.NewMockEmbedder(testDims), DefaultConfig(), &buf)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background(), "empty"))
	assert.Contains(t, buf.String(), "0 records")
}

func TestReembedder_NoCollections(t *testing.T) {
	repos := setupTestDB(t)

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Collections, repos.Embeddings, mock.NewMockEmbedder(testDims), DefaultConfig(), &buf)
	require.NoError(t, err)
	require.NoError(t, r.RunAll(context.Background()))
	assert.Contains(t, buf.String(), "No collections found")
}

func TestReembedder_UnknownCollection(t *testing.T) {
	repos := setupTestDB(t)
	r, err := NewReembedder(repos.Collections, repos.Embeddings, mock.NewMockEmbedder(testDims), DefaultConfig(), nil)
	require.NoError(t, err)

	err = r.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReembedder_ContextCancellation(t *testing.T) {
	repos := setupTestDB(t)
	seedCollection(t, repos, "kb", 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	embedder := mock.NewMockEmbedder(testDims)
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return unnormalized(ctx, texts)
	}

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Collections, repos.Embeddings, embedder, testConfig(3, 3), &buf)
	require.NoError(t, err)

	err = r.Run(ctx, "kb")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReembedder_EmbeddingError(t *testing.T) {
	repos := setupTestDB(t)
	seedCollection(t, repos, "kb", 1)

	embedder := mock.NewMockEmbedder(testDims)
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("persistent error")
	}

	cfg := testConfig(1, 1)
	cfg.MaxRetries = 2
	r, err := NewReembedder(repos.Collections, repos.Embeddings, embedder, cfg, nil)
	require.NoError(t, err)

	err = r.Run(context.Background(), "kb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent error")
	assert.Equal(t, 2, embedder.CallCount())
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Greater(t, config.BatchSize, 0, "batch size should be positive")
	assert.Greater(t, config.ReportInterval, 0, "report interval should be positive")
	assert.Greater(t, config.MaxRetries, 0, "max retries should be positive")
	assert.Greater(t, config.RetryDelay, time.Duration(0), "retry delay should be positive")
}

func TestReembedder_ProgressTracking(t *testing.T) {
	repos := setupTestDB(t)
	seedCollection(t, repos, "kb", 25)

	embedder := mock.NewMockEmbedder(testDims)

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Collections, repos.Embeddings, embedder, testConfig(5, 10), &buf)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background(), "kb"))

	output := buf.String()
	assert.Contains(t, output, "kb: ", "should label progress with the collection")
	assert.Contains(t, output, "25/25", "should show final count")
}
