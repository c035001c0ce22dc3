// Package storage persists the corpus cache: the filtered records of one cache
// generation, in store order, plus metadata about how they were built.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/cordsearch/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// CacheMeta describes the generation currently held by the cache.
type CacheMeta struct {
	Generation string `json:"generation"`
	SourcePath string `json:"source_path,omitempty"`
	// SourceMtime (unix nanoseconds) and SourceSize identify the source file version.
	SourceMtime int64     `json:"source_mtime,omitempty"`
	SourceSize  int64     `json:"source_size,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Records     int64     `json:"records"`
}

// Storage defines corpus cache operations.
type Storage interface {
	// ReplaceRecords atomically replaces the cached corpus with records under meta.Generation.
	// meta.Records is ignored; a zero meta.CreatedAt is set to now.
	ReplaceRecords(ctx context.Context, meta CacheMeta, records []models.Record) error
	// LoadRecords returns all cached records in store order.
	LoadRecords(ctx context.Context) ([]models.Record, error)
	GetRecord(ctx context.Context, id string) (*models.Record, error)
	// Meta returns the cache metadata; Generation is empty when nothing has been cached.
	Meta(ctx context.Context) (*CacheMeta, error)
	CountRecords(ctx context.Context) (int64, error)

	Close() error
}
