package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/poiesic/ragstore/ai"
)

// DefaultDimensions is the vector length produced when none is configured.
const DefaultDimensions = 384

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedQueryFunc is called by EmbedQuery if set.
	// If nil, uses default deterministic behavior.
	EmbedQueryFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedDocumentsFunc is called by EmbedDocuments if set.
	// If nil, uses default deterministic behavior.
	EmbedDocumentsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	dimensions int

	mu        sync.Mutex
	callCount int
	texts     int
}

var _ ai.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// An optional dimension overrides DefaultDimensions.
func NewMockEmbedder(dimensions ...int) *MockEmbedder {
	dim := DefaultDimensions
	if len(dimensions) > 0 && dimensions[0] > 0 {
		dim = dimensions[0]
	}
	return &MockEmbedder{dimensions: dim}
}

// Dimensions returns the length of the vectors this mock produces by default.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// EmbedQuery generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m.record(1)

	if m.EmbedQueryFunc != nil {
		return m.EmbedQueryFunc(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, ai.NewProviderError("embed_query", err)
	}
	return Vector(text, m.dimensions), nil
}

// EmbedDocuments generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	m.record(len(texts))

	if m.EmbedDocumentsFunc != nil {
		return m.EmbedDocumentsFunc(ctx, texts)
	}
	if err := ctx.Err(); err != nil {
		return nil, ai.NewProviderError("embed_documents", err)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = Vector(text, m.dimensions)
	}
	return vectors, nil
}

func (m *MockEmbedder) record(texts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.texts += texts
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// TextCount returns the total number of texts embedded across all calls.
func (m *MockEmbedder) TextCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.texts
}

// Reset clears the counters and any injected behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.texts = 0
	m.EmbedQueryFunc = nil
	m.EmbedDocumentsFunc = nil
}

// Vector returns the unit-length vector the mock assigns to text.
// The same text always produces the same vector.
func Vector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	var sumSquares float64
	for i := range vector {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 - 0.5
		sumSquares += float64(vector[i]) * float64(vector[i])
	}

	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}
	return vector
}
