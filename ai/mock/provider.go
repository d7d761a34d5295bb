// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package mock

import "github.com/poiesic/ragstore/ai"

// MockProvider is a test double for ai.AIProvider.
type MockProvider struct {
	embedder *MockEmbedder
	closed   bool
}

// NewMockProvider creates a provider around a default mock embedder of the
// given dimension (DefaultDimensions when omitted).
//
// Use GetMockEmbedder() to reach the concrete embedder for assertions.
func NewMockProvider(dimensions ...int) *MockProvider {
	return &MockProvider{embedder: NewMockEmbedder(dimensions...)}
}

// NewMockProviderWithEmbedder wraps an existing mock embedder.
func NewMockProviderWithEmbedder(embedder *MockEmbedder) *MockProvider {
	return &MockProvider{embedder: embedder}
}

var _ ai.AIProvider = (*MockProvider)(nil)

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}
