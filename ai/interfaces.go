package ai

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedQuery generates the embedding of a search query.
	// Returns an error wrapping ErrProvider if the service fails.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for multiple texts in batches.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error wrapping ErrProvider if any batch fails.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// AIProvider owns the embedding service and its lifecycle.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
