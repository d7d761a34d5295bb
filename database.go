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


package ragstore

import (
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/ragstore/ai"
	"github.com/poiesic/ragstore/ai/openai"
	"github.com/poiesic/ragstore/chunking"
	"github.com/poiesic/ragstore/config"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/ingestion"
	"github.com/poiesic/ragstore/loader"
	"github.com/poiesic/ragstore/reembed"
	"github.com/poiesic/ragstore/search"
	"github.com/poiesic/ragstore/storage"
	"github.com/poiesic/ragstore/storage/badger"
	"github.com/poiesic/ragstore/storage/sqlstore"
	"github.com/poiesic/ragstore/vectorstore"
)

// Database ties a store backend to an embedding provider and hands out the
// components that work on them.
type Database struct {
	collections storage.CollectionRepository
	embeddings  storage.EmbeddingRepository
	files       storage.FileRepository
	closer      io.Closer
	provider    ai.AIProvider
	distance    core.DistanceStrategy
	logger      *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.AIProvider
	dsn      string
	inMemory bool
	distance core.DistanceStrategy
	logger   *slog.Logger
}

// WithAIConfig sets the embedding provider configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider supplies a ready provider instead of building one from the
// AI configuration. The Database closes it on Close.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithSQL stores data through gorm at dsn (postgres URL or sqlite path)
// instead of BadgerDB.
func WithSQL(dsn string) DatabaseOption {
	return func(o *databaseOptions) {
		o.dsn = dsn
	}
}

// WithInMemory keeps a BadgerDB store in memory. Ignored with WithSQL.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithDistanceStrategy sets the distance used by search engines.
func WithDistanceStrategy(d core.DistanceStrategy) DatabaseOption {
	return func(o *databaseOptions) {
		o.distance = d
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the BadgerDB store at filePath, or the SQL store given
// with WithSQL, and connects the embedding provider.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		distance: core.DistanceCosine,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if err := options.distance.Validate(); err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			return nil, err
		}
	}
	dimensions := options.aiConfig.Dimensions
	if d, ok := provider.Embedder().(interface{ Dimensions() int }); ok {
		dimensions = d.Dimensions()
	}

	db := &Database{
		provider: provider,
		distance: options.distance,
		logger:   options.logger,
	}

	if options.dsn != "" {
		repos, err := sqlstore.OpenRepositories(options.dsn, dimensions, sqlstore.WithLogger(options.logger))
		if err != nil {
			provider.Close()
			return nil, err
		}
		db.collections, db.embeddings, db.files, db.closer = repos.Collections, repos.Embeddings, repos.Files, repos
		return db, nil
	}

	repos, err := badger.OpenRepositories(filePath, options.inMemory, dimensions)
	if err != nil {
		provider.Close()
		return nil, err
	}
	db.collections, db.embeddings, db.files, db.closer = repos.Collections, repos.Embeddings, repos.Files, repos
	return db, nil
}

// OpenFromConfig opens the store and provider described by cfg.
func OpenFromConfig(cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := []DatabaseOption{
		WithAIConfig(cfg.AI()),
		WithDistanceStrategy(cfg.DistanceStrategy()),
	}
	if cfg.Storage.Backend == config.BackendSQL {
		base = append(base, WithSQL(cfg.Storage.DSN))
	}
	return NewDatabase(cfg.Storage.Path, append(base, opts...)...)
}

// Close releases the provider and the store.
func (db *Database) Close() error {
	var errs []error
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := db.closer.Close(); err != nil {
		db.logger.Error("error closing storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) CollectionRepository() storage.CollectionRepository {
	return db.collections
}

func (db *Database) EmbeddingRepository() storage.EmbeddingRepository {
	return db.embeddings
}

func (db *Database) FileRepository() storage.FileRepository {
	return db.files
}

func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// NewSearchEngine creates a query engine using the database's distance.
// Options given here override it.
func (db *Database) NewSearchEngine(opts ...search.Option) (*search.Engine, error) {
	base := []search.Option{
		search.WithDistanceStrategy(db.distance),
		search.WithLogger(db.logger),
	}
	return search.NewEngine(db.collections, db.embeddings, db.provider, append(base, opts...)...)
}

// NewIngestionPipeline creates a pipeline with the default file loader and
// chunking engine, writing through a new search engine.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	engine, err := db.NewSearchEngine()
	if err != nil {
		return nil, err
	}
	docLoader, err := loader.NewFileLoader(loader.WithLogger(db.logger))
	if err != nil {
		return nil, err
	}
	chunker, err := chunking.NewEngine(chunking.WithLogger(db.logger))
	if err != nil {
		return nil, err
	}
	base := []ingestion.Option{ingestion.WithLogger(db.logger)}
	return ingestion.NewPipeline(db.files, docLoader, chunker, engine, append(base, opts...)...)
}

// NewReembedder creates a reembedder using the database's provider.
func (db *Database) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(db.collections, db.embeddings, db.provider.Embedder(), cfg, progress)
}

// NewVectorStore creates a langchaingo vector store over a new search engine.
func (db *Database) NewVectorStore(opts ...vectorstore.Option) (*vectorstore.Store, error) {
	engine, err := db.NewSearchEngine()
	if err != nil {
		return nil, err
	}
	return vectorstore.New(engine, append([]vectorstore.Option{vectorstore.WithLogger(db.logger)}, opts...)...)
}
