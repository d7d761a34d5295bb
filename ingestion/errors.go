package ingestion

import "errors"

var (
	// ErrFileRepositoryRequired is returned when a file repository is not provided.
	ErrFileRepositoryRequired = errors.New("file repository required")

	// ErrLoaderRequired is returned when a document loader is not provided.
	ErrLoaderRequired = errors.New("document loader required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrWriterRequired is returned when a chunk writer is not provided.
	ErrWriterRequired = errors.New("chunk writer required")

	// ErrNoChunks is returned when a document yields no non-empty chunk.
	ErrNoChunks = errors.New("document produced no chunks")

	// ErrFileBusy is returned when an operation targets a file that is
	// currently being vectorized.
	ErrFileBusy = errors.New("file is being vectorized")

	// ErrNoPaths is returned when RegisterFiles receives no paths.
	ErrNoPaths = errors.New("no paths given")
)
