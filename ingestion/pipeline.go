package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/loader"
	"github.com/poiesic/ragstore/storage"
)

const (
	// DefaultMaxRetries is how many failed attempts a file gets.
	DefaultMaxRetries = 3
	// DefaultBatchSize is how many eligible files one pass selects.
	DefaultBatchSize = 20
	// DefaultFileTimeout bounds the processing of a single file.
	DefaultFileTimeout = 10 * time.Minute
	// DefaultLeaseTimeout is how long a Vectoring claim stays valid.
	DefaultLeaseTimeout = 30 * time.Minute
)

// Summary reports what one scheduling pass did.
type Summary struct {
	Recovered int // Stale Vectoring files moved to Fail
	Selected  int // Eligible files returned by the selection query
	Claimed   int // Files this pass moved to Vectoring
	Succeeded int
	Failed    int
}

// Pipeline schedules and processes registered source files.
type Pipeline struct {
	files        storage.FileRepository
	writer       ChunkWriter
	proc         processor
	pool         *ants.Pool
	maxRetries   int
	batchSize    int
	fileTimeout  time.Duration
	leaseTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithMaxRetries sets how many failed attempts a file gets before the
// scheduler stops selecting it.
func WithMaxRetries(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("max retries must be positive, got %d", n)
		}
		p.maxRetries = n
		return nil
	}
}

// WithBatchSize sets how many files one pass selects.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		p.batchSize = n
		return nil
	}
}

// WithFileTimeout bounds the processing of a single file.
func WithFileTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("file timeout must be positive, got %s", d)
		}
		p.fileTimeout = d
		return nil
	}
}

// WithLeaseTimeout sets how long a Vectoring claim is honoured before the
// file is considered abandoned.
func WithLeaseTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("lease timeout must be positive, got %s", d)
		}
		p.leaseTimeout = d
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	files storage.FileRepository,
	docLoader loader.DocumentLoader,
	chunker Chunker,
	writer ChunkWriter,
	opts ...Option,
) (*Pipeline, error) {
	if files == nil {
		return nil, ErrFileRepositoryRequired
	}
	if docLoader == nil {
		return nil, ErrLoaderRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}
	if writer == nil {
		return nil, ErrWriterRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		files:        files,
		writer:       writer,
		pool:         pool,
		maxRetries:   DefaultMaxRetries,
		batchSize:    DefaultBatchSize,
		fileTimeout:  DefaultFileTimeout,
		leaseTimeout: DefaultLeaseTimeout,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.logger = p.logger.With("component", "ingestion")
	p.proc = newFileProcessor(docLoader, chunker, writer, p.logger)
	return p, nil
}

// RegisterFiles records paths (or globs) for ingestion into a collection.
// New files enter Wait. Paths that are already registered keep their state.
// Returns the current file entries in path order.
func (p *Pipeline) RegisterFiles(ctx context.Context, collection string, paths []string, cfg core.ChunkingConfig, metadata core.ChunkMetadata) ([]*core.SourceFile, error) {
	if err := core.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}
	if err := core.ValidateChunkingConfig(cfg); err != nil {
		return nil, err
	}

	files := make([]*core.SourceFile, len(paths))
	for i, path := range paths {
		displayName := metadata.FileName
		if displayName == "" {
			displayName = filepath.Base(path)
		}
		files[i] = &core.SourceFile{
			ID:          core.FileIDFromPath(collection, path),
			Collection:  collection,
			Path:        path,
			DisplayName: displayName,
			Status:      core.FileStatusWait,
			Chunking:    cfg,
			Metadata:    metadata.Clone(),
		}
	}
	if err := p.files.AddFiles(ctx, files...); err != nil {
		return nil, err
	}

	result := make([]*core.SourceFile, len(files))
	for i, f := range files {
		current, err := p.files.GetFile(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		result[i] = current
	}
	p.logger.Info("registered files", "collection", collection, "count", len(result))
	return result, nil
}

// Files lists the registered files of a collection. An empty name lists all.
func (p *Pipeline) Files(ctx context.Context, collection string) ([]*core.SourceFile, error) {
	return p.files.ListFiles(ctx, collection)
}

// RunOnce performs one scheduling pass and waits for the claimed files to
// finish. Per-file failures are counted in the Summary, not returned.
func (p *Pipeline) RunOnce(ctx context.Context) (Summary, error) {
	var summary Summary

	recovered, err := p.files.RecoverStaleFiles(ctx, time.Now().UTC().Add(-p.leaseTimeout))
	if err != nil {
		return summary, fmt.Errorf("recovering stale files: %w", err)
	}
	summary.Recovered = recovered
	if recovered > 0 {
		p.logger.Warn("recovered stale files", "count", recovered)
	}

	eligible, err := p.files.ListEligibleFiles(ctx, p.maxRetries, p.batchSize)
	if err != nil {
		return summary, fmt.Errorf("selecting files: %w", err)
	}
	summary.Selected = len(eligible)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}

	var submitErr error
	for _, file := range eligible {
		if err := ctx.Err(); err != nil {
			submitErr = err
			break
		}
		claimed, err := p.files.ClaimFile(ctx, file.ID, p.maxRetries)
		if err != nil {
			submitErr = fmt.Errorf("claiming file %s: %w", file.ID, err)
			break
		}
		if !claimed {
			// Another worker got there first.
			continue
		}
		summary.Claimed++

		wg.Add(1)
		err = p.pool.Submit(func() {
			defer wg.Done()
			record(p.processFile(ctx, file))
		})
		if err != nil {
			wg.Done()
			// Hand the claim back so the file isn't stuck until the lease expires.
			if reqErr := p.files.RequeueFile(context.WithoutCancel(ctx), file.ID, false); reqErr != nil {
				p.logger.Error("error releasing claim", "file_id", file.ID, "err", reqErr)
			}
			summary.Claimed--
			submitErr = fmt.Errorf("submitting file %s: %w", file.ID, err)
			break
		}
	}
	wg.Wait()

	p.logger.Info("ingestion pass finished",
		"recovered", summary.Recovered,
		"selected", summary.Selected,
		"claimed", summary.Claimed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed)
	return summary, submitErr
}

// Run performs a pass immediately and then every interval until ctx is
// cancelled. Pass errors are logged and the loop continues.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("ingestion pass failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessFile claims and vectorizes a single file outside the scheduler.
// Returns the processing error, after the file has been moved to Fail.
func (p *Pipeline) ProcessFile(ctx context.Context, fileID string) error {
	file, err := p.files.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	claimed, err := p.files.ClaimFile(ctx, fileID, p.maxRetries)
	if err != nil {
		return err
	}
	if !claimed {
		if file.Status == core.FileStatusVectoring {
			return ErrFileBusy
		}
		return fmt.Errorf("file %s is not eligible (status %q, retries %d)", fileID, file.Status, file.RetryCount)
	}
	return p.processFile(ctx, file)
}

// processFile runs a claimed file to Done or Fail.
func (p *Pipeline) processFile(ctx context.Context, file *core.SourceFile) error {
	start := time.Now()
	logger := p.logger.With("file_id", file.ID, "path", file.Path)

	fileCtx, cancel := context.WithTimeout(ctx, p.fileTimeout)
	defer cancel()

	// Bookkeeping must land even when the pass context is gone.
	bookCtx := context.WithoutCancel(ctx)

	ids, err := p.proc.process(fileCtx, file)
	if err != nil {
		logger.Error("error vectorizing file", "err", err, "elapsed", time.Since(start))
		if failErr := p.files.FailFile(bookCtx, file.ID); failErr != nil {
			logger.Error("error marking file failed", "err", failErr)
		}
		return err
	}

	if err := p.files.CompleteFile(bookCtx, file.ID, ids); err != nil {
		logger.Error("error completing file", "err", err)
		if failErr := p.files.FailFile(bookCtx, file.ID); failErr != nil {
			logger.Error("error marking file failed", "err", failErr)
		}
		return err
	}
	logger.Info("vectorized file", "chunks", len(ids), "elapsed", time.Since(start))
	return nil
}

// Reingest deletes a file's records and puts it back in Wait with a fresh
// retry budget.
func (p *Pipeline) Reingest(ctx context.Context, fileID string) error {
	file, err := p.files.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if file.Status == core.FileStatusVectoring {
		return ErrFileBusy
	}
	if _, err := p.writer.DeleteByFileIDs(ctx, []string{fileID}); err != nil {
		return err
	}
	if err := p.files.RequeueFile(ctx, fileID, true); err != nil {
		return err
	}
	p.logger.Info("requeued file", "file_id", fileID)
	return nil
}

// RemoveFile deletes a file's records and its registration.
func (p *Pipeline) RemoveFile(ctx context.Context, fileID string) error {
	file, err := p.files.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if file.Status == core.FileStatusVectoring {
		return ErrFileBusy
	}
	if _, err := p.writer.DeleteByFileIDs(ctx, []string{fileID}); err != nil {
		return err
	}
	if err := p.files.DeleteFile(ctx, fileID); err != nil {
		return err
	}
	p.logger.Info("removed file", "file_id", fileID)
	return nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
