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


package sqlstore

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/poiesic/ragstore/storage"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"

	// writeChunkSize bounds the number of bound parameters per statement.
	writeChunkSize = 500
)

// DB wraps a gorm connection to postgres or sqlite.
type DB struct {
	gorm       *gorm.DB
	dialect    string
	dimensions int
	logger     *slog.Logger
}

// Option configures a DB.
type Option func(*DB) error

// WithLogger sets the logger used for SQL tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		d.logger = logger
		return nil
	}
}

// IsPostgresDSN reports whether dsn addresses a postgres server rather than
// a sqlite file.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") ||
		strings.Contains(dsn, "dbname=")
}

// sqliteDSN adds the pragmas the repositories rely on. Write transactions
// take the database lock up front so sequence assignment is serialized.
func sqliteDSN(dsn string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(10000)",
		"_pragma=journal_mode(WAL)",
		"_txlock=immediate",
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + strings.Join(params, "&")
}

// Open connects to dsn and migrates the schema. A postgres URL or keyword
// DSN selects postgres with pgvector; anything else is a sqlite file path.
func Open(dsn string, dimensions int, opts ...Option) (*DB, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	d := &DB{
		dimensions: dimensions,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	d.logger = d.logger.With("component", "sqlstore")

	var dialector gorm.Dialector
	if IsPostgresDSN(dsn) {
		d.dialect = dialectPostgres
		dialector = postgres.Open(dsn)
	} else {
		d.dialect = dialectSQLite
		dialector = sqlite.Open(sqliteDSN(dsn))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger: logger.NewSlogLogger(d.logger, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	d.gorm = db

	if err := d.migrate(); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	d.logger.Debug("database opened", "dialect", d.dialect, "dimensions", dimensions)
	return d, nil
}

func (d *DB) migrate() error {
	if d.dialect == dialectPostgres {
		if err := d.gorm.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return err
		}
	}
	if err := d.gorm.AutoMigrate(&collectionEntity{}, &recordEntity{}, &sourceFileEntity{}); err != nil {
		return err
	}
	if d.dialect != dialectPostgres {
		return nil
	}
	// AutoMigrate creates an unbounded vector column; pin the dimension so
	// pgvector rejects mismatched vectors. No ANN index: ranking scans every
	// row matching the collection and status predicates.
	stmts := []string{
		fmt.Sprintf("ALTER TABLE embedding_records ALTER COLUMN embedding TYPE vector(%d)", d.dimensions),
		"DROP INDEX IF EXISTS idx_embedding_records_hnsw",
	}
	for _, stmt := range stmts {
		if err := d.gorm.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// Dialect returns "postgres" or "sqlite".
func (d *DB) Dialect() string {
	return d.dialect
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translateError maps gorm errors onto the storage sentinels.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", storage.ErrDuplicateKey, err)
	case errors.Is(err, gorm.ErrInvalidTransaction):
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	return err
}
