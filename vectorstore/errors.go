package vectorstore

import "errors"

var (
	// ErrEngineRequired is returned when no engine is provided.
	ErrEngineRequired = errors.New("engine required")

	// ErrNoNamespace is returned when neither the call nor the store names a collection.
	ErrNoNamespace = errors.New("no collection namespace given")

	// ErrUnsupportedFilter is returned for filters of an unknown type.
	ErrUnsupportedFilter = errors.New("unsupported filter type")

	// ErrEmbedderOverride is returned when a call supplies its own embedder.
	// Vectors must come from the engine's provider to match the store dimensions.
	ErrEmbedderOverride = errors.New("per-call embedders are not supported")
)
