// Package indexer builds and loads the corpus and embedding caches: it reads the
// corpus source, embeds every record, and writes both caches under one generation.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/cordsearch/internal/config"
	"github.com/hyperjump/cordsearch/internal/corpus"
	"github.com/hyperjump/cordsearch/internal/embedding"
	"github.com/hyperjump/cordsearch/internal/metrics"
	"github.com/hyperjump/cordsearch/internal/models"
	"github.com/hyperjump/cordsearch/internal/storage"
	"github.com/hyperjump/cordsearch/internal/vector"
)

var (
	// ErrCacheMissing means one of the caches has never been written.
	ErrCacheMissing = fmt.Errorf("%w: cache missing", models.ErrData)
	// ErrCacheStale means the cached vectors are unreadable or do not match the corpus
	// cache or the configured embedder.
	ErrCacheStale = fmt.Errorf("%w: cache stale", models.ErrData)
	// ErrRecacheInProgress is returned when a re-cache is requested while one is running.
	ErrRecacheInProgress = errors.New("re-cache already in progress")
)

// Result is a freshly built or loaded store/table pair.
type Result struct {
	Store  *corpus.Store
	Table  *vector.Table
	Report Report
}

// Report summarizes a re-cache.
type Report struct {
	Generation string            `json:"generation"`
	Skipped    bool              `json:"skipped"`
	Load       corpus.LoadReport `json:"load"`
	Duration   time.Duration     `json:"duration_ns"`
}

// Indexer builds the caches from the corpus source.
type Indexer struct {
	storage     storage.Storage
	embedder    embedding.Embedder
	sourcePath  string
	columns     corpus.ColumnMap
	vectorsPath string
	batchSize   int
	logger      *zap.Logger

	running sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// NewIndexer creates an indexer writing the corpus cache to store and the
// embedding cache to cfg.Storage.VectorsPath.
func NewIndexer(store storage.Storage, embedder embedding.Embedder, cfg *config.Config, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		storage:     store,
		embedder:    embedder,
		sourcePath:  cfg.Corpus.SourcePath,
		columns:     ColumnMap(cfg.Corpus.Columns),
		vectorsPath: cfg.Storage.VectorsPath,
		batchSize:   cfg.Embedding.BatchSize,
		logger:      zap.NewNop(),
	}
	if idx.batchSize <= 0 {
		idx.batchSize = 64
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// ColumnMap converts the configured column names.
func ColumnMap(c config.ColumnsConfig) corpus.ColumnMap {
	return corpus.ColumnMap{
		Text:        c.Text,
		PublishedAt: c.PublishedAt,
		Language:    c.Language,
		Title:       c.Title,
		URL:         c.URL,
		Topic:       c.Topic,
		Subtopic:    c.Subtopic,
		ID:          c.ID,
	}
}

// SourcePath returns the corpus source the indexer reads.
func (idx *Indexer) SourcePath() string {
	return idx.sourcePath
}

// LoadCache restores the store and table from the caches. It returns ErrCacheMissing
// when either cache is absent, and ErrCacheStale when the vector file is unreadable, was
// produced with a different embedding dimension, or is not aligned with the corpus cache.
func (idx *Indexer) LoadCache(ctx context.Context) (*Result, error) {
	meta, err := idx.storage.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("read cache metadata: %w", err)
	}
	if meta.Generation == "" {
		return nil, fmt.Errorf("%w: corpus cache is empty", ErrCacheMissing)
	}
	if _, err := os.Stat(idx.vectorsPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrCacheMissing, idx.vectorsPath)
	}

	records, err := idx.storage.LoadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus cache: %w", err)
	}
	table, err := vector.Load(idx.vectorsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheStale, err)
	}
	if dims := idx.embedder.Dimensions(); table.Len() > 0 && dims > 0 && table.Dimensions() != dims {
		return nil, fmt.Errorf("%w: cached vectors have %d dimensions, embedder produces %d", ErrCacheStale, table.Dimensions(), dims)
	}

	store := corpus.NewStore(meta.Generation, records)
	if err := store.ValidateAlignment(table); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheStale, err)
	}
	idx.logger.Info("caches loaded",
		zap.String("generation", meta.Generation),
		zap.Int("records", store.Len()),
		zap.Int("vectors", table.Len()))
	return &Result{Store: store, Table: table, Report: Report{Generation: meta.Generation, Skipped: true}}, nil
}

// LoadOrRecache loads the caches, rebuilding them when they are missing or stale.
func (idx *Indexer) LoadOrRecache(ctx context.Context) (*Result, error) {
	res, err := idx.LoadCache(ctx)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, ErrCacheMissing) && !errors.Is(err, ErrCacheStale) {
		return nil, err
	}
	idx.logger.Info("rebuilding caches", zap.String("reason", err.Error()))
	return idx.Recache(ctx, true)
}

// Recache rebuilds both caches from the corpus source under a new generation and
// returns the new pair. Unless force is set, an unchanged source (same path, size and
// modification time as the cached generation) is not re-embedded and the existing
// caches are loaded instead. Only one re-cache runs at a time.
func (idx *Indexer) Recache(ctx context.Context, force bool) (*Result, error) {
	if !idx.running.TryLock() {
		return nil, ErrRecacheInProgress
	}
	defer idx.running.Unlock()

	start := time.Now()
	info, err := os.Stat(idx.sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: corpus source: %v", models.ErrData, err)
	}
	if !force {
		if res, ok := idx.unchanged(ctx, info); ok {
			idx.logger.Info("corpus source unchanged, keeping caches", zap.String("generation", res.Report.Generation))
			return res, nil
		}
	}

	rows, err := corpus.ReadSource(idx.sourcePath, idx.columns)
	if err != nil {
		return nil, err
	}
	generation := uuid.NewString()
	store, loadReport, err := corpus.Load(generation, rows)
	if err != nil {
		return nil, err
	}
	idx.logger.Info("corpus loaded",
		zap.String("source", idx.sourcePath),
		zap.Int("rows", loadReport.Rows),
		zap.Int("kept", loadReport.Kept),
		zap.Int("dropped", loadReport.Dropped()))

	table, err := idx.embed(ctx, generation, store)
	if err != nil {
		return nil, err
	}
	if err := store.ValidateAlignment(table); err != nil {
		return nil, err
	}

	// Vectors first: a crash before the database commit leaves mismatched
	// generations, which LoadCache reports as stale.
	if err := table.Save(idx.vectorsPath); err != nil {
		return nil, err
	}
	meta := storage.CacheMeta{
		Generation:  generation,
		SourcePath:  idx.sourcePath,
		SourceMtime: info.ModTime().UnixNano(),
		SourceSize:  info.Size(),
	}
	if err := idx.storage.ReplaceRecords(ctx, meta, store.Records()); err != nil {
		return nil, fmt.Errorf("write corpus cache: %w", err)
	}

	elapsed := time.Since(start)
	metrics.RecacheDuration.Observe(elapsed.Seconds())
	idx.logger.Info("caches rebuilt",
		zap.String("generation", generation),
		zap.Int("records", store.Len()),
		zap.Duration("duration", elapsed))
	return &Result{
		Store: store,
		Table: table,
		Report: Report{
			Generation: generation,
			Load:       loadReport,
			Duration:   elapsed,
		},
	}, nil
}

// unchanged loads the existing caches when they were built from this exact source file.
func (idx *Indexer) unchanged(ctx context.Context, info os.FileInfo) (*Result, bool) {
	meta, err := idx.storage.Meta(ctx)
	if err != nil || meta.Generation == "" {
		return nil, false
	}
	if meta.SourcePath != idx.sourcePath || meta.SourceSize != info.Size() || meta.SourceMtime != info.ModTime().UnixNano() {
		return nil, false
	}
	res, err := idx.LoadCache(ctx)
	if err != nil {
		idx.logger.Debug("cache unusable, rebuilding", zap.Error(err))
		return nil, false
	}
	return res, true
}

// embed embeds every record's text in batches and returns the aligned table.
func (idx *Indexer) embed(ctx context.Context, generation string, store *corpus.Store) (*vector.Table, error) {
	records := store.Records()
	ids := make([]string, len(records))
	vecs := make([][]float32, 0, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}

	for start := 0; start < len(records); start += idx.batchSize {
		end := min(start+idx.batchSize, len(records))
		texts := make([]string, 0, end-start)
		for _, r := range records[start:end] {
			texts = append(texts, r.Text)
		}
		batch, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed records %d-%d: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", models.ErrData, len(batch), len(texts))
		}
		vecs = append(vecs, batch...)
		idx.logger.Debug("embedded batch", zap.Int("done", end), zap.Int("total", len(records)))
	}

	table, err := vector.NewTable(generation, ids, vecs)
	if err != nil {
		return nil, fmt.Errorf("build vector table: %w", err)
	}
	return table, nil
}
