package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/ragstore/core"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// Metadata keys added to returned documents.
const (
	MetaCustomID = "custom_id"
	MetaFileID   = "file_id"
)

// Engine is the part of search.Engine the store needs.
type Engine interface {
	InsertChunks(ctx context.Context, collectionName, fileID string, chunks []core.Chunk) ([]string, error)
	Search(ctx context.Context, query string, collectionNames []string, topK int, filter *core.MetadataFilter) ([]core.SearchHit, error)
	Retrieve(ctx context.Context, query string, collectionNames []string, topK int, filter *core.MetadataFilter, threshold float32) ([]core.SearchHit, error)
}

// Store adapts an Engine to vectorstores.VectorStore.
type Store struct {
	engine     Engine
	collection string
	fileID     string
	logger     *slog.Logger
}

var _ vectorstores.VectorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithCollection sets the collection used when a call has no namespace.
func WithCollection(name string) Option {
	return func(s *Store) error {
		if err := core.ValidateCollectionName(name); err != nil {
			return err
		}
		s.collection = name
		return nil
	}
}

// WithFileID tags added documents with a file id, so they can later be
// removed together with DeleteByFileIDs. Default is ad-hoc (no file).
func WithFileID(fileID string) Option {
	return func(s *Store) error {
		s.fileID = fileID
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a Store over engine.
func New(engine Engine, opts ...Option) (*Store, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	s := &Store{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "vectorstore")
	return s, nil
}

// AddDocuments embeds and stores docs as one batch and returns their custom ids.
// Documents rejected by a deduplicater are skipped.
func (s *Store) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := s.options(options)
	if opts.Embedder != nil {
		return nil, ErrEmbedderOverride
	}
	collection, err := s.namespace(opts)
	if err != nil {
		return nil, err
	}

	chunks := make([]core.Chunk, 0, len(docs))
	for _, doc := range docs {
		if opts.Deduplicater != nil && opts.Deduplicater(ctx, doc) {
			continue
		}
		chunks = append(chunks, core.Chunk{Text: doc.PageContent, Metadata: toChunkMetadata(doc.Metadata)})
	}

	ids, err := s.engine.InsertChunks(ctx, collection, s.fileID, chunks)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("added documents", "collection", collection, "documents", len(docs), "stored", len(ids))
	return ids, nil
}

// SimilaritySearch returns up to numDocuments documents closest to query.
func (s *Store) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := s.options(options)
	if opts.Embedder != nil {
		return nil, ErrEmbedderOverride
	}
	collection, err := s.namespace(opts)
	if err != nil {
		return nil, err
	}
	filter, err := toMetadataFilter(opts.Filters)
	if err != nil {
		return nil, err
	}

	names := []string{collection}
	var hits []core.SearchHit
	if opts.ScoreThreshold > 0 {
		hits, err = s.engine.Retrieve(ctx, query, names, numDocuments, filter, opts.ScoreThreshold)
	} else {
		hits, err = s.engine.Search(ctx, query, names, numDocuments, filter)
	}
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, len(hits))
	for i, hit := range hits {
		docs[i] = schema.Document{
			PageContent: hit.Document,
			Metadata:    toDocumentMetadata(hit),
			Score:       hit.Score,
		}
	}
	return docs, nil
}

func (s *Store) options(options []vectorstores.Option) vectorstores.Options {
	var opts vectorstores.Options
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

func (s *Store) namespace(opts vectorstores.Options) (string, error) {
	if opts.NameSpace != "" {
		return opts.NameSpace, nil
	}
	if s.collection != "" {
		return s.collection, nil
	}
	return "", ErrNoNamespace
}

func toMetadataFilter(filters any) (*core.MetadataFilter, error) {
	switch f := filters.(type) {
	case nil:
		return nil, nil
	case *core.MetadataFilter:
		return f, nil
	case core.MetadataFilter:
		return &f, nil
	case map[string]any:
		return core.ParseMetadataFilter(f)
	case map[string]string:
		raw := make(map[string]any, len(f))
		for k, v := range f {
			raw[k] = v
		}
		return core.ParseMetadataFilter(raw)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedFilter, filters)
}

func toChunkMetadata(m map[string]any) core.ChunkMetadata {
	var meta core.ChunkMetadata
	for k, v := range m {
		switch k {
		case MetaCustomID, MetaFileID:
			// Assigned by the store.
		case core.MetaImages:
			meta.Images = toStrings(v)
		default:
			meta.Set(k, fmt.Sprint(v))
		}
	}
	return meta
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t)
	case []any:
		out := make([]string, len(t))
		for i, x := range t {
			out[i] = fmt.Sprint(x)
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}

// toDocumentMetadata flattens a hit's metadata. Empty typed fields are left out.
func toDocumentMetadata(hit core.SearchHit) map[string]any {
	m := make(map[string]any, len(hit.Metadata.Extra)+8)
	for _, key := range []string{core.MetaSource, core.MetaAnswer, core.MetaScene, core.MetaFileName, core.MetaLabel} {
		if v, _ := hit.Metadata.Lookup(key); v != "" {
			m[key] = v
		}
	}
	if len(hit.Metadata.Images) > 0 {
		m[core.MetaImages] = slices.Clone(hit.Metadata.Images)
	}
	for k, v := range hit.Metadata.Extra {
		m[k] = v
	}
	m[MetaCustomID] = hit.CustomID
	if hit.FileID != "" {
		m[MetaFileID] = hit.FileID
	}
	return m
}
