package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/ragstore"
	"github.com/poiesic/ragstore/config"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/ingestion"
	"github.com/poiesic/ragstore/reembed"
	"github.com/poiesic/ragstore/search"
	"github.com/urfave/cli/v2"
)

// loadConfig reads the config file and .env, then applies global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), c.String("env-file"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("db") {
		cfg.Storage.Backend = config.BackendBadger
		cfg.Storage.Path = c.String("db")
	}
	if c.IsSet("dsn") {
		cfg.Storage.Backend = config.BackendSQL
		cfg.Storage.DSN = c.String("dsn")
	}
	if c.IsSet("embedding-host") {
		cfg.Embedding.Host = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.Embedding.Model = c.String("embedding-model")
	}
	if c.IsSet("dimensions") {
		cfg.Embedding.Dimensions = c.Int("dimensions")
	}
	if c.IsSet("distance") {
		cfg.Search.Distance = c.String("distance")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDatabase(c *cli.Context) (*ragstore.Database, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	provider, err := newProvider(cfg.AI())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	db, err := ragstore.OpenFromConfig(cfg, ragstore.WithProvider(provider), ragstore.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, cfg, nil
}

func collectionsCommand(c *cli.Context) error {
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := db.NewSearchEngine()
	if err != nil {
		return err
	}
	collections, err := engine.ListCollections(c.Context)
	if err != nil {
		return err
	}
	out := c.App.Writer
	if len(collections) == 0 {
		fmt.Fprintln(out, "No collections")
		return nil
	}
	for _, col := range collections {
		fmt.Fprintf(out, "%s\t%s\t%s\n", col.Name, col.ID, col.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func dropCollectionCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return errors.New("collection name is required")
	}
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := db.NewSearchEngine()
	if err != nil {
		return err
	}
	if err := engine.DeleteCollection(c.Context, name); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted collection %q\n", name)
	return nil
}

func registerCommand(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return errors.New("at least one path is required")
	}
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	chunking := cfg.Chunking
	if c.IsSet("strategy") {
		chunking.Strategy = core.ChunkStrategy(c.String("strategy"))
	}
	if c.IsSet("chunk-size") {
		chunking.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("chunk-overlap") {
		chunking.ChunkOverlap = c.Int("chunk-overlap")
	}
	if c.IsSet("split-by-context") {
		chunking.SplitByContext = c.Bool("split-by-context")
	}
	if c.IsSet("window-size") {
		chunking.WindowSize = c.Int("window-size")
	}
	if c.IsSet("delimiter") {
		chunking.Delimiters = c.StringSlice("delimiter")
	}
	if c.IsSet("merge-delimiters") {
		chunking.MergeDelimiters = c.Bool("merge-delimiters")
	}

	metadata := core.ChunkMetadata{
		FileName: c.String("name"),
		Scene:    c.String("scene"),
		Label:    c.String("label"),
		Answer:   c.String("answer"),
	}

	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	files, err := pipeline.RegisterFiles(c.Context, c.String("collection"), paths, chunking, metadata)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", f.ID, f.Status, f.Path)
	}
	return nil
}

func filesCommand(c *cli.Context) error {
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	files, err := db.FileRepository().ListFiles(c.Context, c.String("collection"))
	if err != nil {
		return err
	}
	out := c.App.Writer
	if len(files) == 0 {
		fmt.Fprintln(out, "No files")
		return nil
	}
	for _, f := range files {
		status := string(f.Status)
		if status == "" {
			status = "none"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\tretries=%d\tchunks=%d\t%s\n",
			f.ID, f.Collection, status, f.RetryCount, len(f.VectorIDs), f.Path)
	}
	return nil
}

func newPipeline(c *cli.Context, db *ragstore.Database, cfg *config.Config) (*ingestion.Pipeline, error) {
	poolSize := cfg.Ingestion.PoolSize
	if c.IsSet("pool-size") {
		poolSize = c.Int("pool-size")
	}
	maxRetries := cfg.Ingestion.MaxRetries
	if c.IsSet("max-retries") {
		maxRetries = c.Int("max-retries")
	}
	return db.NewIngestionPipeline(
		ingestion.WithPoolSize(poolSize),
		ingestion.WithMaxRetries(maxRetries),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithFileTimeout(cfg.Ingestion.FileTimeout),
		ingestion.WithLeaseTimeout(cfg.Ingestion.LeaseTimeout),
	)
}

func ingestCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := newPipeline(c, db, cfg)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	summary, err := pipeline.RunOnce(c.Context)
	fmt.Fprintf(c.App.Writer, "recovered=%d selected=%d claimed=%d succeeded=%d failed=%d\n",
		summary.Recovered, summary.Selected, summary.Claimed, summary.Succeeded, summary.Failed)
	return err
}

func runCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := newPipeline(c, db, cfg)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	interval := cfg.Ingestion.Interval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("ingestion scheduler started", "interval", interval)
	return pipeline.Run(ctx, interval)
}

func reingestCommand(c *cli.Context) error {
	return forEachFile(c, "Requeued", func(ctx context.Context, p *ingestion.Pipeline, id string) error {
		return p.Reingest(ctx, id)
	})
}

func removeCommand(c *cli.Context) error {
	return forEachFile(c, "Removed", func(ctx context.Context, p *ingestion.Pipeline, id string) error {
		return p.RemoveFile(ctx, id)
	})
}

func forEachFile(c *cli.Context, verb string, fn func(context.Context, *ingestion.Pipeline, string) error) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		return errors.New("at least one file id is required")
	}
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	for _, id := range ids {
		if err := fn(c.Context, pipeline, id); err != nil {
			return fmt.Errorf("file %s: %w", id, err)
		}
		fmt.Fprintf(c.App.Writer, "%s %s\n", verb, id)
	}
	return nil
}

func parseFilter(raw string) (*core.MetadataFilter, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidFilter, err)
	}
	return core.ParseMetadataFilter(m)
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("query is required")
	}
	filter, err := parseFilter(c.String("filter"))
	if err != nil {
		return err
	}

	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := db.NewSearchEngine()
	if err != nil {
		return err
	}

	topK := cfg.Search.TopK
	if c.IsSet("top-k") {
		topK = c.Int("top-k")
	}
	names := c.StringSlice("collection")

	var hits []core.SearchHit
	if c.IsSet("threshold") {
		hits, err = engine.Retrieve(c.Context, query, names, topK, filter, float32(c.Float64("threshold")))
	} else {
		hits, err = engine.Search(c.Context, query, names, topK, filter)
	}
	if err != nil {
		return err
	}

	out := c.App.Writer
	if len(hits) == 0 {
		fmt.Fprintln(out, "No results")
		return nil
	}
	for i, hit := range hits {
		fmt.Fprintf(out, "%d\t%.4f\t%s\t%s\n", i+1, hit.Score, hit.CustomID, oneLine(hit.Document, 120))
	}
	return nil
}

func pageCommand(c *cli.Context) error {
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := db.NewSearchEngine()
	if err != nil {
		return err
	}

	filter := core.PageFilter{
		CustomIDs:         c.StringSlice("custom-id"),
		DocumentSubstring: c.String("contains"),
		FileID:            c.String("file-id"),
		Status:            core.Status(c.String("status")),
	}
	page, err := engine.Page(c.Context, c.String("collection"), filter, c.Int("page"), c.Int("page-size"))
	if err != nil {
		if errors.Is(err, search.ErrNoCollection) {
			return fmt.Errorf("collection %q does not exist", c.String("collection"))
		}
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Page %d (size %d) of %d records\n", page.PageNumber, page.PageSize, page.TotalCount)
	for _, r := range page.Records {
		fmt.Fprintf(out, "%s\t%s\t%d\t%s\t%s\n", r.CustomID, r.FileID, r.SequenceNumber, r.Status, oneLine(r.Document, 80))
	}
	return nil
}

func selectorFrom(c *cli.Context) core.Selector {
	return core.Selector{
		FileIDs:   c.StringSlice("file-id"),
		CustomIDs: c.StringSlice("custom-id"),
	}
}

func statusCommand(c *cli.Context) error {
	status := core.Status(c.Args().First())
	if err := core.ValidateStatus(status); err != nil {
		return err
	}
	selector := selectorFrom(c)
	if err := core.ValidateSelector(selector); err != nil {
		return fmt.Errorf("%w: give either --file-id or --custom-id", err)
	}

	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := db.NewSearchEngine()
	if err != nil {
		return err
	}
	n, err := engine.SetStatus(c.Context, status, selector)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Updated %d records\n", n)
	return nil
}

func deleteCommand(c *cli.Context) error {
	selector := selectorFrom(c)
	if err := core.ValidateSelector(selector); err != nil {
		return fmt.Errorf("%w: give either --file-id or --custom-id", err)
	}

	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := db.NewSearchEngine()
	if err != nil {
		return err
	}
	var n int64
	if len(selector.FileIDs) > 0 {
		n, err = engine.DeleteByFileIDs(c.Context, selector.FileIDs)
	} else {
		n, err = engine.DeleteByCustomIDs(c.Context, selector.CustomIDs)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted %d records\n", n)
	return nil
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	progress := c.App.ErrWriter
	reembedder, err := db.NewReembedder(reembedConfig, progress)
	if err != nil {
		return err
	}

	fmt.Fprintf(progress, "Embedding host: %s\n", cfg.Embedding.Host)
	fmt.Fprintf(progress, "Embedding model: %s\n", cfg.Embedding.Model)
	fmt.Fprintln(progress)

	if name := c.String("collection"); name != "" {
		err = reembedder.Run(c.Context, name)
	} else {
		err = reembedder.RunAll(c.Context)
	}
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
