package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/ragstore/ai"
	"github.com/poiesic/ragstore/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder   embeddings.Embedder
	dimensions int
	logger     *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token
	token := config.APIKey
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
		openai.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:   embedder,
		dimensions: config.Dimensions,
		logger:     slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedQuery generates the embedding of a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("embedding query", "length", len(text))

	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("failed to embed query", "err", err)
		return nil, ai.NewProviderError("embed_query", err)
	}
	if err := e.checkDimensions(vector); err != nil {
		return nil, ai.NewProviderError("embed_query", err)
	}
	return vector, nil
}

// EmbedDocuments generates embeddings for texts, batching requests
// according to the configured batch size.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("embedding documents", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to embed documents", "count", len(texts), "err", err)
		return nil, ai.NewProviderError("embed_documents", err)
	}
	if len(vectors) != len(texts) {
		err := fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(texts))
		return nil, ai.NewProviderError("embed_documents", err)
	}
	for _, vector := range vectors {
		if err := e.checkDimensions(vector); err != nil {
			return nil, ai.NewProviderError("embed_documents", err)
		}
	}
	return vectors, nil
}

func (e *Embedder) checkDimensions(vector []float32) error {
	if len(vector) != e.dimensions {
		return fmt.Errorf("%w: model returned %d, expected %d", core.ErrDimensionMismatch, len(vector), e.dimensions)
	}
	return nil
}
