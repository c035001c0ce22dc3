// Package search provides the retrieval engine: exact cosine ranking over the
// serving snapshot, filtered and cut to the top k.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/cordsearch/internal/corpus"
	"github.com/hyperjump/cordsearch/internal/filter"
	"github.com/hyperjump/cordsearch/internal/metrics"
	"github.com/hyperjump/cordsearch/internal/models"
	"github.com/hyperjump/cordsearch/internal/ranking"
	"github.com/hyperjump/cordsearch/internal/vector"
)

// State is the engine lifecycle state.
type State int32

const (
	// StateUninitialized is the state before the first Initialize.
	StateUninitialized State = iota
	// StateReady means a validated snapshot is being served.
	StateReady
	// StateFailed means no valid snapshot could be loaded.
	StateFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrAlreadyInitialized is returned by Initialize on an engine that has left the
// uninitialized state. Use Reload to replace the snapshot.
var ErrAlreadyInitialized = errors.New("engine already initialized")

// cancelCheckInterval is how many ranked candidates are scanned between context checks.
const cancelCheckInterval = 1024

// QueryEmbedder turns query text into a vector. embedding.Embedder satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// snapshot is an immutable, validated store/table pair.
type snapshot struct {
	store *corpus.Store
	table *vector.Table
}

// Engine answers queries against the current snapshot. Ask never blocks on Reload:
// each ask loads the snapshot once and finishes on it.
type Engine struct {
	embedder QueryEmbedder
	logger   *zap.Logger

	snap     atomic.Pointer[snapshot]
	state    atomic.Int32
	failure  atomic.Pointer[error]
	inFlight atomic.Int64

	reloadMu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for debug output (skipped records, reloads).
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an uninitialized engine that embeds queries with embedder.
func NewEngine(embedder QueryEmbedder, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Initialize validates the store/table pair and starts serving it. On an alignment
// failure the engine moves to StateFailed and remembers the error.
func (e *Engine) Initialize(store *corpus.Store, table *vector.Table) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	if st := e.State(); st != StateUninitialized {
		return fmt.Errorf("%w (state %s)", ErrAlreadyInitialized, st)
	}
	return e.swap(store, table)
}

// Reload validates a new store/table pair and atomically replaces the serving
// snapshot. If validation fails a ready engine keeps serving its old snapshot;
// an engine that was not ready moves to StateFailed. Reloads are serialized.
func (e *Engine) Reload(store *corpus.Store, table *vector.Table) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	return e.swap(store, table)
}

// swap must be called with reloadMu held.
func (e *Engine) swap(store *corpus.Store, table *vector.Table) error {
	if err := validate(store, table); err != nil {
		metrics.ReloadsTotal.WithLabelValues("error").Inc()
		if e.State() == StateReady {
			e.logger.Warn("reload rejected, keeping current snapshot", zap.Error(err))
			return err
		}
		e.failure.Store(&err)
		e.state.Store(int32(StateFailed))
		e.logger.Error("engine failed to initialize", zap.Error(err))
		return err
	}

	e.snap.Store(&snapshot{store: store, table: table})
	e.failure.Store(nil)
	e.state.Store(int32(StateReady))
	metrics.ReloadsTotal.WithLabelValues("ok").Inc()
	metrics.CorpusRecords.Set(float64(store.Len()))
	e.logger.Info("engine snapshot loaded",
		zap.Int("records", store.Len()),
		zap.Int("dimensions", table.Dimensions()),
		zap.String("generation", store.Generation()))
	return nil
}

func validate(store *corpus.Store, table *vector.Table) error {
	if store == nil {
		return fmt.Errorf("%w: no record store", models.ErrAlignment)
	}
	if table == nil {
		return fmt.Errorf("%w: no vector table", models.ErrAlignment)
	}
	return store.ValidateAlignment(table)
}

// notReady builds the error returned to asks when the engine is not ready.
func (e *Engine) notReady(st State) error {
	if st == StateFailed {
		if cause := e.failure.Load(); cause != nil && *cause != nil {
			return fmt.Errorf("%w: %w", models.ErrNotReady, *cause)
		}
	}
	return fmt.Errorf("%w: engine is %s", models.ErrNotReady, st)
}

// Ask embeds text, ranks every vector in the snapshot by cosine distance and
// returns the first k records, in rank order, that pass the filter spec.
// Fewer than k items are returned when the ranking is exhausted first.
func (e *Engine) Ask(ctx context.Context, text string, spec filter.Spec, k int) (*models.SearchResponse, error) {
	e.inFlight.Add(1)
	defer e.inFlight.Add(-1)

	start := time.Now()
	resp, err := e.ask(ctx, text, spec, k)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
	metrics.SearchResultsReturned.Observe(float64(len(resp.Items)))
	return resp, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	case errors.Is(err, models.ErrNotReady):
		return "not_ready"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (e *Engine) ask(ctx context.Context, text string, spec filter.Spec, k int) (*models.SearchResponse, error) {
	if st := e.State(); st != StateReady {
		return nil, e.notReady(st)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrValidation, k)
	}
	snap := e.snap.Load()
	if snap.store.Len() == 0 {
		return Shape(nil), nil
	}

	queryVec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	candidates, err := ranking.Rank(queryVec, snap.table)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	preds := filter.Build(spec)
	e.logger.Debug("ask",
		zap.Int("k", k),
		zap.Int("candidates", len(candidates)),
		zap.Strings("filters", preds.Keys()))

	items := make([]models.ResultItem, 0, min(k, len(candidates)))
	for pos, c := range candidates {
		if pos%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !snap.store.Valid(c.Index) {
			metrics.MalformedRecordsSkipped.Inc()
			e.logger.Debug("skipping malformed record", zap.Int("index", c.Index))
			continue
		}
		rec, err := snap.store.Get(c.Index)
		if err != nil {
			return nil, err
		}
		if !preds.Admits(&rec) {
			continue
		}
		items = append(items, newResultItem(rec, c, pos+1))
		if len(items) == k {
			break
		}
	}
	return Shape(items), nil
}

func newResultItem(rec models.Record, c ranking.Candidate, rank int) models.ResultItem {
	return models.ResultItem{
		ID:          rec.ID,
		Score:       ranking.Score(c.Distance),
		Rank:        rank,
		Text:        rec.Text,
		PublishedAt: rec.PublishedAt,
		Language:    rec.Language,
		Title:       rec.Title,
		URL:         rec.URL,
		Topic:       rec.Topic,
		Subtopic:    rec.Subtopic,
	}
}

// Stats describes the engine and its serving snapshot.
type Stats struct {
	State      string `json:"state"`
	Records    int    `json:"records"`
	Dimensions int    `json:"dimensions"`
	Generation string `json:"generation,omitempty"`
	InFlight   int64  `json:"in_flight"`
	LastError  string `json:"last_error,omitempty"`
}

// Stats returns a point-in-time view of the engine.
func (e *Engine) Stats() Stats {
	s := Stats{
		State:    e.State().String(),
		InFlight: e.inFlight.Load(),
	}
	if snap := e.snap.Load(); snap != nil {
		s.Records = snap.store.Len()
		s.Dimensions = snap.table.Dimensions()
		s.Generation = snap.store.Generation()
	}
	if cause := e.failure.Load(); cause != nil && *cause != nil {
		s.LastError = (*cause).Error()
	}
	return s
}
