package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/ragstore/ai"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
)

// Engine runs similarity search, pagination and chunk maintenance over one
// or more collections.
type Engine struct {
	collections storage.CollectionRepository
	embeddings  storage.EmbeddingRepository
	embedder    ai.Embedder
	distance    core.DistanceStrategy
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithDistanceStrategy selects the ranking metric.
// Default is core.DefaultDistanceStrategy.
func WithDistanceStrategy(distance core.DistanceStrategy) Option {
	return func(e *Engine) error {
		if err := distance.Validate(); err != nil {
			return err
		}
		e.distance = distance
		return nil
	}
}

// NewEngine creates a new query engine.
func NewEngine(
	collections storage.CollectionRepository,
	embeddings storage.EmbeddingRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Engine, error) {
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	e := &Engine{
		collections: collections,
		embeddings:  embeddings,
		embedder:    provider.Embedder(),
		distance:    core.DefaultDistanceStrategy,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "search-engine", "distance", e.distance)

	return e, nil
}

// Distance returns the strategy used to rank results.
func (e *Engine) Distance() core.DistanceStrategy {
	return e.distance
}

// Search returns the topK records of the named collections closest to query.
func (e *Engine) Search(ctx context.Context, query string, collectionNames []string, topK int, filter *core.MetadataFilter) ([]core.SearchHit, error) {
	return e.SearchWithMonitor(ctx, query, collectionNames, topK, filter, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (e *Engine) SearchWithMonitor(ctx context.Context, query string, collectionNames []string, topK int, filter *core.MetadataFilter, monitor SearchMonitor) ([]core.SearchHit, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query)

	hits, err := e.search(ctx, query, collectionNames, topK, filter, monitor)
	if err != nil {
		return nil, err
	}
	monitor.Finish(hits)
	return hits, nil
}

// Retrieve searches and then applies FilterByScore with threshold.
func (e *Engine) Retrieve(ctx context.Context, query string, collectionNames []string, topK int, filter *core.MetadataFilter, threshold float32) ([]core.SearchHit, error) {
	return e.RetrieveWithMonitor(ctx, query, collectionNames, topK, filter, threshold, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each stage.
func (e *Engine) RetrieveWithMonitor(ctx context.Context, query string, collectionNames []string, topK int, filter *core.MetadataFilter, threshold float32, monitor SearchMonitor) ([]core.SearchHit, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query)

	hits, err := e.search(ctx, query, collectionNames, topK, filter, monitor)
	if err != nil {
		return nil, err
	}
	kept := FilterByScore(hits, threshold, e.distance)
	monitor.AfterFilter(kept)

	e.logger.Debug("filtered search hits", "hits", len(hits), "kept", len(kept), "threshold", threshold)
	monitor.Finish(kept)
	return kept, nil
}

func (e *Engine) search(ctx context.Context, query string, collectionNames []string, topK int, filter *core.MetadataFilter, monitor SearchMonitor) ([]core.SearchHit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTopK, topK)
	}

	collections, err := e.resolve(ctx, collectionNames)
	if err != nil {
		return nil, err
	}
	monitor.AfterResolve(collections)

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		e.logger.Error("error generating embedding for query", "err", err)
		return nil, ai.NewProviderError("embed_query", err)
	}
	monitor.AfterEmbedding(vector)

	ids := make([]string, len(collections))
	for i, c := range collections {
		ids[i] = c.ID
	}

	hits, err := e.embeddings.Search(ctx, core.SimilarityQuery{
		Vector:        vector,
		CollectionIDs: ids,
		TopK:          topK,
		Filter:        filter,
		Distance:      e.distance,
	})
	if err != nil {
		e.logger.Error("error querying for similar records", "collections", collectionNames, "err", err)
		return nil, err
	}
	monitor.AfterSearch(hits)

	e.logger.Debug("search complete", "collections", len(collections), "top_k", topK, "hits", len(hits))
	return hits, nil
}

// resolve maps names to collections. Unknown names are skipped; an empty
// result is ErrNoCollection.
func (e *Engine) resolve(ctx context.Context, names []string) ([]*core.Collection, error) {
	if len(names) == 0 {
		return nil, ErrNoCollection
	}
	collections, err := e.collections.GetCollectionsByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoCollection, names)
	}
	return collections, nil
}

func (e *Engine) collection(ctx context.Context, name string) (*core.Collection, error) {
	collection, err := e.collections.GetCollectionByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q: %w", ErrNoCollection, name, err)
		}
		return nil, err
	}
	return collection, nil
}

// Page lists the records of one collection in creation order.
func (e *Engine) Page(ctx context.Context, collectionName string, filter core.PageFilter, pageNumber, pageSize int) (*core.Page, error) {
	collection, err := e.collection(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	records, total, err := e.embeddings.Page(ctx, collection.ID, filter, pageNumber, pageSize)
	if err != nil {
		return nil, err
	}
	return &core.Page{
		Records:    records,
		TotalCount: total,
		PageNumber: pageNumber,
		PageSize:   pageSize,
	}, nil
}

// GetChunk returns the record with the given custom id.
func (e *Engine) GetChunk(ctx context.Context, customID string) (*core.EmbeddingRecord, error) {
	return e.embeddings.GetRecord(ctx, customID)
}

// SetStatus enables or disables the selected records.
func (e *Engine) SetStatus(ctx context.Context, status core.Status, selector core.Selector) (int64, error) {
	if err := core.ValidateStatus(status); err != nil {
		return 0, err
	}
	n, err := e.embeddings.SetStatus(ctx, status, selector)
	if err != nil {
		return 0, err
	}
	e.logger.Info("changed record status", "status", status, "records", n)
	return n, nil
}

// DeleteByCustomIDs removes records by custom id. Unknown ids are ignored.
func (e *Engine) DeleteByCustomIDs(ctx context.Context, customIDs []string) (int64, error) {
	n, err := e.embeddings.DeleteByCustomIDs(ctx, customIDs)
	if err != nil {
		return 0, err
	}
	e.logger.Info("deleted records", "requested", len(customIDs), "deleted", n)
	return n, nil
}

// DeleteByFileIDs removes every record produced from the given files.
func (e *Engine) DeleteByFileIDs(ctx context.Context, fileIDs []string) (int64, error) {
	n, err := e.embeddings.DeleteByFileIDs(ctx, fileIDs)
	if err != nil {
		return 0, err
	}
	e.logger.Info("deleted file records", "files", len(fileIDs), "deleted", n)
	return n, nil
}

// GetOrCreateCollection returns the named collection, creating it if needed.
func (e *Engine) GetOrCreateCollection(ctx context.Context, name string, metadata map[string]string) (*core.Collection, bool, error) {
	collection, created, err := e.collections.GetOrCreateCollection(ctx, name, metadata)
	if err != nil {
		return nil, false, err
	}
	if created {
		e.logger.Info("created collection", "name", name, "id", collection.ID)
	}
	return collection, created, nil
}

// ListCollections returns every collection ordered by name.
func (e *Engine) ListCollections(ctx context.Context) ([]*core.Collection, error) {
	return e.collections.ListCollections(ctx)
}

// DeleteCollection removes a collection and all of its records.
func (e *Engine) DeleteCollection(ctx context.Context, name string) error {
	if err := e.collections.DeleteCollection(ctx, name); err != nil {
		return err
	}
	e.logger.Info("deleted collection", "name", name)
	return nil
}

// InsertChunks embeds chunks in one provider batch and stores them as one
// atomic unit under fileID. The collection is created on first use.
// Returns the custom ids in chunk order.
func (e *Engine) InsertChunks(ctx context.Context, collectionName, fileID string, chunks []core.Chunk) ([]string, error) {
	if err := core.ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []string{}, nil
	}

	collection, _, err := e.GetOrCreateCollection(ctx, collectionName, nil)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("error embedding chunks", "chunks", len(chunks), "err", err)
		return nil, ai.NewProviderError("embed_documents", err)
	}
	if len(vectors) != len(chunks) {
		return nil, ai.NewProviderError("embed_documents",
			fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks)))
	}

	records := make([]core.NewRecord, len(chunks))
	for i, c := range chunks {
		records[i] = core.NewRecord{Text: c.Text, Metadata: c.Metadata, Vector: vectors[i]}
	}

	ids, err := e.embeddings.InsertBatch(ctx, collection.ID, fileID, records)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("inserted chunks", "collection", collectionName, "file_id", fileID, "chunks", len(ids))
	return ids, nil
}

// InsertChunk stores a single ad-hoc or file chunk and returns its custom id.
func (e *Engine) InsertChunk(ctx context.Context, collectionName, fileID, text string, metadata core.ChunkMetadata) (string, error) {
	ids, err := e.InsertChunks(ctx, collectionName, fileID, []core.Chunk{{Text: text, Metadata: metadata}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// UpdateChunk overwrites the metadata of a record. When newText is set and
// differs from the stored document, the text is re-embedded and the record
// is re-enabled. Metadata-only updates never call the provider.
func (e *Engine) UpdateChunk(ctx context.Context, customID string, newText *string, metadata core.ChunkMetadata) (*core.EmbeddingRecord, error) {
	current, err := e.embeddings.GetRecord(ctx, customID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("update of unknown chunk", "custom_id", customID)
		}
		return nil, err
	}

	update := core.RecordUpdate{Metadata: metadata}
	if newText != nil && *newText != current.Document {
		vector, err := e.embedder.EmbedQuery(ctx, *newText)
		if err != nil {
			e.logger.Error("error re-embedding chunk", "custom_id", customID, "err", err)
			return nil, ai.NewProviderError("embed_query", err)
		}
		update.Document = newText
		update.Embedding = slices.Clone(vector)
	}

	record, err := e.embeddings.UpdateRecord(ctx, customID, update)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("updated chunk", "custom_id", customID, "reembedded", update.Document != nil)
	return record, nil
}
