package openai

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/poiesic/ragstore/ai"
	"github.com/poiesic/ragstore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns fixed vectors in place of the langchaingo client.
type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func newStubbed(dims int, stub *stubEmbedder) *Embedder {
	return &Embedder{embedder: stub, dimensions: dims, logger: slog.Default()}
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	e := newStubbed(3, &stubEmbedder{vector: []float32{1, 0}})
	ctx := context.Background()

	_, err := e.EmbedQuery(ctx, "q")
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.ErrorIs(t, err, ai.ErrProvider)

	_, err = e.EmbedDocuments(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.ErrorIs(t, err, ai.ErrProvider)
}

func TestEmbedder_Success(t *testing.T) {
	e := newStubbed(2, &stubEmbedder{vector: []float32{0, 1}})
	ctx := context.Background()

	v, err := e.EmbedQuery(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, v)

	vs, err := e.EmbedDocuments(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vs, 2)

	vs, err = e.EmbedDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestEmbedder_ServiceError(t *testing.T) {
	down := errors.New("connection refused")
	e := newStubbed(2, &stubEmbedder{err: down})

	_, err := e.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ai.ErrProvider)
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, core.ErrDimensionMismatch)
}
