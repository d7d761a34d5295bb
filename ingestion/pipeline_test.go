package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/ragstore/ai/mock"
	"github.com/poiesic/ragstore/chunking"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/loader"
	"github.com/poiesic/ragstore/search"
	"github.com/poiesic/ragstore/storage"
	"github.com/poiesic/ragstore/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 8

type testEnv struct {
	repos    *badger.Repositories
	engine   *search.Engine
	embedder *mock.MockEmbedder
	dir      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repos, err := badger.NewMemoryRepositories(testDims)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	embedder := mock.NewMockEmbedder(testDims)
	engine, err := search.NewEngine(repos.Collections, repos.Embeddings, mock.NewMockProviderWithEmbedder(embedder))
	require.NoError(t, err)

	return &testEnv{repos: repos, engine: engine, embedder: embedder, dir: t.TempDir()}
}

func (e *testEnv) newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()

	docLoader, err := loader.NewFileLoader()
	require.NoError(t, err)
	chunker, err := chunking.NewEngine()
	require.NoError(t, err)

	p, err := NewPipeline(e.repos.Files, docLoader, chunker, e.engine, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *testEnv) recordCount(t *testing.T, collection, fileID string) int64 {
	t.Helper()
	page, err := e.engine.Page(context.Background(), collection, core.PageFilter{FileID: fileID, Status: core.StatusAll}, 1, 100)
	require.NoError(t, err)
	return page.TotalCount
}

var smallChunks = core.ChunkingConfig{Strategy: core.ChunkByLength, ChunkSize: 40, ChunkOverlap: 5}

func TestNewPipelineValidation(t *testing.T) {
	env := newTestEnv(t)
	docLoader, err := loader.NewFileLoader()
	require.NoError(t, err)
	chunker, err := chunking.NewEngine()
	require.NoError(t, err)

	tests := []struct {
		name    string
		build   func() (*Pipeline, error)
		wantErr error
	}{
		{
			name:    "nil file repository",
			build:   func() (*Pipeline, error) { return NewPipeline(nil, docLoader, chunker, env.engine) },
			wantErr: ErrFileRepositoryRequired,
		},
		{
			name:    "nil loader",
			build:   func() (*Pipeline, error) { return NewPipeline(env.repos.Files, nil, chunker, env.engine) },
			wantErr: ErrLoaderRequired,
		},
		{
			name:    "nil chunker",
			build:   func() (*Pipeline, error) { return NewPipeline(env.repos.Files, docLoader, nil, env.engine) },
			wantErr: ErrChunkerRequired,
		},
		{
			name:    "nil writer",
			build:   func() (*Pipeline, error) { return NewPipeline(env.repos.Files, docLoader, chunker, nil) },
			wantErr: ErrWriterRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.build()
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("bad option", func(t *testing.T) {
		p, err := NewPipeline(env.repos.Files, docLoader, chunker, env.engine, WithMaxRetries(0))
		assert.Nil(t, p)
		assert.Error(t, err)
	})
}

func TestRegisterFiles(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPipeline(t)
	ctx := context.Background()

	path := env.writeFile(t, "guide.md", "hello")
	files, err := p.RegisterFiles(ctx, "kb", []string{path}, smallChunks, core.ChunkMetadata{Scene: "faq"})
	require.NoError(t, err)
	require.Len(t, files, 1)

	f := files[0]
	assert.Equal(t, core.FileIDFromPath("kb", path), f.ID)
	assert.Equal(t, core.FileStatusWait, f.Status)
	assert.Equal(t, "guide.md", f.DisplayName)
	assert.Equal(t, "faq", f.Metadata.Scene)
	assert.Equal(t, smallChunks, f.Chunking)

	// Registering again keeps the existing state.
	_, err = p.RunOnce(ctx)
	require.NoError(t, err)
	again, err := p.RegisterFiles(ctx, "kb", []string{path}, smallChunks, core.ChunkMetadata{})
	require.NoError(t, err)
	assert.Equal(t, core.FileStatusDone, again[0].Status)

	t.Run("validation", func(t *testing.T) {
		_, err := p.RegisterFiles(ctx, "", []string{path}, smallChunks, core.ChunkMetadata{})
		assert.ErrorIs(t, err, core.ErrEmptyCollectionName)

		_, err = p.RegisterFiles(ctx, "kb", nil, smallChunks, core.ChunkMetadata{})
		assert.ErrorIs(t, err, ErrNoPaths)

		_, err = p.RegisterFiles(ctx, "kb", []string{path}, core.ChunkingConfig{Strategy: core.ChunkByDelimiter}, core.ChunkMetadata{})
		assert.ErrorIs(t, err, core.ErrInvalidChunkConfig)
	})

	t.Run("display name from metadata", func(t *testing.T) {
		files, err := p.RegisterFiles(ctx, "kb", []string{env.writeFile(t, "x.txt", "x")}, smallChunks, core.ChunkMetadata{FileName: "Handbook"})
		require.NoError(t, err)
		assert.Equal(t, "Handbook", files[0].DisplayName)
	})
}

func TestRunOnceProcessesFiles(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPipeline(t, WithPoolSize(2))
	ctx := context.Background()

	a := env.writeFile(t, "a.md", strings.Repeat("The quick brown fox jumps over the lazy dog. ", 5))
	b := env.writeFile(t, "b.txt", "A short note about IMAGE12 and nothing else.")
	files, err := p.RegisterFiles(ctx, "kb", []string{a, b}, smallChunks, core.ChunkMetadata{Label: "docs"})
	require.NoError(t, err)

	summary, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Selected: 2, Claimed: 2, Succeeded: 2}, summary)

	for _, f := range files {
		current, err := env.repos.Files.GetFile(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, core.FileStatusDone, current.Status)
		assert.Zero(t, current.RetryCount)
		assert.True(t, current.VectoringAt.IsZero())
		require.NotEmpty(t, current.VectorIDs)
		assert.Equal(t, int64(len(current.VectorIDs)), env.recordCount(t, "kb", f.ID))

		first, err := env.engine.GetChunk(ctx, current.VectorIDs[0])
		require.NoError(t, err)
		assert.Equal(t, int64(1), first.SequenceNumber)
		assert.Equal(t, "docs", first.Metadata.Label)
		assert.Equal(t, current.DisplayName, first.Metadata.FileName)
		assert.Equal(t, current.Path, first.Metadata.Source)
	}

	bFile, err := env.repos.Files.GetFile(ctx, files[1].ID)
	require.NoError(t, err)
	chunk, err := env.engine.GetChunk(ctx, bFile.VectorIDs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"IMAGE12"}, chunk.Metadata.Images)

	// Nothing left to do.
	summary, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}

func TestRunOnceFailureAndRetryLimit(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPipeline(t, WithMaxRetries(2))
	ctx := context.Background()

	good := env.writeFile(t, "good.md", "Some content worth indexing.")
	missing := filepath.Join(env.dir, "missing.md")
	files, err := p.RegisterFiles(ctx, "kb", []string{good, missing}, smallChunks, core.ChunkMetadata{})
	require.NoError(t, err)

	summary, err := p.RunOnce(ctx)
	require.NoError(t, err, "file failures are not pass failures")
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	failed, err := env.repos.Files.GetFile(ctx, files[1].ID)
	require.NoError(t, err)
	assert.Equal(t, core.FileStatusFail, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Empty(t, failed.VectorIDs)

	summary, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Selected: 1, Claimed: 1, Failed: 1}, summary)

	// Retry budget exhausted.
	summary, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)

	failed, err = env.repos.Files.GetFile(ctx, files[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, failed.RetryCount)
}

func TestRunOnceProviderFailureRecovers(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPipeline(t)
	ctx := context.Background()

	env.embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}

	path := env.writeFile(t, "doc.md", "Text that needs embedding.")
	files, err := p.RegisterFiles(ctx, "kb", []string{path}, smallChunks, core.ChunkMetadata{})
	require.NoError(t, err)

	summary, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(0), env.recordCount(t, "kb", files[0].ID), "failed batch leaves no records")

	env.embedder.EmbedDocumentsFunc = nil
	summary, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	current, err := env.repos.Files.GetFile(ctx, files[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.FileStatusDone, current.Status)
	assert.Equal(t, 1, current.RetryCount)
}

func TestProcessFileTimeout(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPipeline(t, WithFileTimeout(50*time.Millisecond))
	ctx := context.Background()

	env.embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	path := env.writeFile(t, "slow.md", "This one never finishes embedding.")
	files, err := p.RegisterFiles(ctx, "kb", []string{path}, smallChunks, core.ChunkMetadata{})
	require.NoError(t, err)

	err = p.ProcessFile(ctx, files[0].ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	current, err := env.repos.Files.GetFile(ctx, files[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.FileStatusFail, current.Status)
	assert.Equal(t, 1, current.RetryCount)
}

func TestRunOnceRecoversStaleClaims(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPipeline(t, WithLeaseTimeout(time.Millisecond))
	ctx := context.Background()

	path := env.writeFile(t, "stuck.md", "Left behind by a crashed worker.")
	files, err := p.RegisterFiles(ctx, "kb", []string{path}, smallChunks, core.ChunkMetadata{})
	require.NoError(t, err)

	claimed, err := env.repos.Files.ClaimFile(ctx, files[0].ID, DefaultMaxRetries)
	require.NoError(t, err)
	require.True(t, claimed)
	time.Sleep(10 * time.Millisecond)

	summary, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Recovered)
	assert.Equal(t, 1, summary.Succeeded)

	current, err := env.repos.Files.GetFile(ctx, files[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.FileStatusDone, current.Status)
	assert.Equal(t, 1, current.RetryCount)
}

func TestProcessFileRejectsClaimedFile(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPipeline(t)
	ctx := context.Background()

	path := env.writeFile(t, "busy.md", "Being worked on.")
	files, err := p.RegisterFiles(ctx, "kb", []string{path}, smallChunks, core.ChunkMetadata{})
	require.NoError(t, err)

	claimed, err := env.repos.Files.ClaimFile(ctx, files[0].ID, DefaultMaxRetries)
	require.NoError(t, err)
	require.True(t, claimed)

	assert.ErrorIs(t, p.ProcessFile(ctx, files[0].ID), ErrFileBusy)
	assert.ErrorIs(t, p.Reingest(ctx, files[0].ID), ErrFileBusy)
	assert.ErrorIs(t, p.RemoveFile(ctx, files[0].ID), ErrFileBusy)
	assert.ErrorIs(t, p.ProcessFile(ctx, "unknown"), storage.ErrNotFound)
}

func TestReingest(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPipeline(t)
	ctx := context.Background()

	path := env.writeFile(t, "doc.md", "Version one of the document.")
	files, err := p.RegisterFiles(ctx, "kb", []string{path}, smallChunks, core.ChunkMetadata{})
	require.NoError(t, err)
	id := files[0].ID

	_, err = p.RunOnce(ctx)
	require.NoError(t, err)
	before, err := env.repos.Files.GetFile(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, before.VectorIDs)

	require.NoError(t, os.WriteFile(path, []byte("Version two, rewritten."), 0o644))
	require.NoError(t, p.Reingest(ctx, id))

	requeued, err := env.repos.Files.GetFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.FileStatusWait, requeued.Status)
	assert.Zero(t, requeued.RetryCount)
	assert.Empty(t, requeued.VectorIDs)
	assert.Equal(t, int64(0), env.recordCount(t, "kb", id))

	_, err = p.RunOnce(ctx)
	require.NoError(t, err)

	after, err := env.repos.Files.GetFile(ctx, id)
	require.NoError(t, err)
	require.Len(t, after.VectorIDs, 1)
	assert.NotEqual(t, before.VectorIDs[0], after.VectorIDs[0])

	chunk, err := env.engine.GetChunk(ctx, after.VectorIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Version two, rewritten.", chunk.Document)
	assert.Equal(t, int64(1), chunk.SequenceNumber)
}

func TestRemoveFile(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPipeline(t)
	ctx := context.Background()

	path := env.writeFile(t, "doc.md", "Soon to be gone.")
	files, err := p.RegisterFiles(ctx, "kb", []string{path}, smallChunks, core.ChunkMetadata{})
	require.NoError(t, err)
	_, err = p.RunOnce(ctx)
	require.NoError(t, err)

	require.NoError(t, p.RemoveFile(ctx, files[0].ID))

	_, err = env.repos.Files.GetFile(ctx, files[0].ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, int64(0), env.recordCount(t, "kb", files[0].ID))

	listed, err := p.Files(ctx, "kb")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestRunLoop(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Error(t, p.Run(ctx, 0))

	path := env.writeFile(t, "doc.md", "Picked up by the background loop.")
	files, err := p.RegisterFiles(ctx, "kb", []string{path}, smallChunks, core.ChunkMetadata{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		f, err := env.repos.Files.GetFile(context.Background(), files[0].ID)
		return err == nil && f.Status == core.FileStatusDone
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestWithParent(t *testing.T) {
	parent := core.ChunkMetadata{Scene: "faq", Extra: map[string]string{"page": "override"}}
	loaded := core.ChunkMetadata{Source: "/docs/a.pdf", Extra: map[string]string{"page": "3", "total_pages": "9"}}

	merged := withParent(parent, loaded)
	assert.Equal(t, "faq", merged.Scene)
	assert.Equal(t, "/docs/a.pdf", merged.Source)
	assert.Equal(t, "override", merged.Extra["page"])
	assert.Equal(t, "9", merged.Extra["total_pages"])
	assert.Equal(t, map[string]string{"page": "override"}, parent.Extra, "parent is not mutated")
}
