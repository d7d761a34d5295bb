// Package mock provides test doubles for the ai package interfaces.
//
// The mocks let tests run without an embedding service and give
// deterministic vectors: the same text always maps to the same unit vector,
// so identical chunks are exact matches under every distance strategy.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder(8)
//	vectors, err := embedder.EmbedDocuments(ctx, []string{"a", "b"})
//
//	// Custom behavior injection
//	embedder.EmbedQueryFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, ai.NewProviderError("embed_query", errors.New("offline"))
//	}
//
//	count := embedder.CallCount()
package mock
