package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderError(t *testing.T) {
	assert.NoError(t, NewProviderError("embed_query", nil))

	err := NewProviderError("embed_query", context.DeadlineExceeded)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "embed_query")

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "embed_query", pe.Op)
}

func TestNewProviderErrorKeepsExisting(t *testing.T) {
	inner := NewProviderError("embed_documents", errors.New("boom"))
	wrapped := fmt.Errorf("ingest: %w", inner)

	again := NewProviderError("embed_query", wrapped)
	assert.Same(t, wrapped, again)

	var pe *ProviderError
	require.True(t, errors.As(again, &pe))
	assert.Equal(t, "embed_documents", pe.Op)
}
