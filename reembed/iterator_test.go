package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 3

func setupTestDB(t *testing.T) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories(testDims)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

// seedCollection stores n records with documents "doc 0".."doc n-1".
func seedCollection(t *testing.T, repos *badger.Repositories, name string, n int) *core.Collection {
	t.Helper()
	ctx := context.Background()

	collection, _, err := repos.Collections.GetOrCreateCollection(ctx, name, nil)
	require.NoError(t, err)
	if n == 0 {
		return collection
	}

	records := make([]core.NewRecord, n)
	for i := range records {
		records[i] = core.NewRecord{
			Text:   fmt.Sprintf("doc %d", i),
			Vector: []float32{0, 0, 1},
		}
	}
	_, err = repos.Embeddings.InsertBatch(ctx, collection.ID, "file-"+name, records)
	require.NoError(t, err)
	return collection
}

func TestRecordIterator_Basic(t *testing.T) {
	repos := setupTestDB(t)
	collection := seedCollection(t, repos, "kb", 5)
	ctx := context.Background()

	iter := NewRecordIterator(repos.Embeddings, collection.ID, 2)

	total, err := iter.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	var sizes []int
	seen := make(map[string]bool)
	err = iter.ForEach(ctx, func(records []*core.EmbeddingRecord) error {
		sizes = append(sizes, len(records))
		for _, r := range records {
			seen[r.CustomID] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Len(t, seen, 5, "every record visited once")
}

func TestRecordIterator_IncludesDisabled(t *testing.T) {
	repos := setupTestDB(t)
	collection := seedCollection(t, repos, "kb", 3)
	ctx := context.Background()

	_, err := repos.Embeddings.SetStatus(ctx, core.StatusDisabled, core.Selector{FileIDs: []string{"file-kb"}})
	require.NoError(t, err)

	count := 0
	err = NewRecordIterator(repos.Embeddings, collection.ID, 10).ForEach(ctx, func(records []*core.EmbeddingRecord) error {
		count += len(records)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRecordIterator_Empty(t *testing.T) {
	repos := setupTestDB(t)
	collection := seedCollection(t, repos, "empty", 0)

	called := false
	err := NewRecordIterator(repos.Embeddings, collection.ID, 10).ForEach(context.Background(), func([]*core.EmbeddingRecord) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRecordIterator_StopsOnError(t *testing.T) {
	repos := setupTestDB(t)
	collection := seedCollection(t, repos, "kb", 6)

	boom := errors.New("boom")
	calls := 0
	err := NewRecordIterator(repos.Embeddings, collection.ID, 2).ForEach(context.Background(), func([]*core.EmbeddingRecord) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRecordIterator_ContextCancelled(t *testing.T) {
	repos := setupTestDB(t)
	collection := seedCollection(t, repos, "kb", 6)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := NewRecordIterator(repos.Embeddings, collection.ID, 2).ForEach(ctx, func([]*core.EmbeddingRecord) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewRecordIterator_DefaultBatchSize(t *testing.T) {
	repos := setupTestDB(t)
	iter := NewRecordIterator(repos.Embeddings, "c", 0)
	assert.Equal(t, DefaultBatchSize, iter.batchSize)
}
