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


// Package ai provides the embedding provider abstraction used by ragstore.
//
// The store never talks to a model directly. Chunks are embedded through the
// Embedder interface, which has two entry points:
//
//   - EmbedQuery: embeds a single search query
//   - EmbedDocuments: embeds chunk texts in provider-sized batches
//
// Every failure of the remote service is reported as a *ProviderError that
// matches ErrProvider with errors.Is, so callers can tell provider outages
// apart from storage errors.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (OpenAI, Ollama, LocalAI, vLLM) via langchaingo
//   - ai/mock: deterministic test double
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types. mock.NewMockEmbedder returns the concrete type so tests
// can inject behavior and inspect call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithEmbeddingModel("nomic-embed-text"), ai.WithDimensions(768))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedQuery(ctx, "how do I reset my password?")
package ai
