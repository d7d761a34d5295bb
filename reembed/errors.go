package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrCollectionRepositoryRequired is returned when a collection repository is not provided.
	ErrCollectionRepositoryRequired = errors.New("collection repository required")

	// ErrEmbeddingRepositoryRequired is returned when an embedding repository is not provided.
	ErrEmbeddingRepositoryRequired = errors.New("embedding repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")
)
