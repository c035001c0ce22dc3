package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/cordsearch/internal/models"
)

const (
	metaGeneration  = "generation"
	metaSource      = "source_path"
	metaSourceMtime = "source_mtime"
	metaSourceSize  = "source_size"
	metaCreatedAt   = "created_at"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		published_at TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL DEFAULT '',
		subtopic TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS cache_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// ReplaceRecords deletes the cached corpus and inserts records in a single transaction.
func (s *SQLiteStorage) ReplaceRecords(ctx context.Context, meta CacheMeta, records []models.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_meta`); err != nil {
		return fmt.Errorf("failed to clear cache metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (position, id, text, published_at, language, title, url, topic, subtopic)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, i, r.ID, r.Text, r.PublishedAt, r.Language, r.Title, r.URL, r.Topic, r.Subtopic); err != nil {
			return fmt.Errorf("failed to insert record %q: %w", r.ID, err)
		}
	}

	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	values := map[string]string{
		metaGeneration:  meta.Generation,
		metaSource:      meta.SourcePath,
		metaSourceMtime: strconv.FormatInt(meta.SourceMtime, 10),
		metaSourceSize:  strconv.FormatInt(meta.SourceSize, 10),
		metaCreatedAt:   meta.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `INSERT INTO cache_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write cache metadata: %w", err)
		}
	}
	return tx.Commit()
}

// LoadRecords returns all records ordered by position.
func (s *SQLiteStorage) LoadRecords(ctx context.Context) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, published_at, language, title, url, topic, subtopic
		 FROM records ORDER BY position`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(&r.ID, &r.Text, &r.PublishedAt, &r.Language, &r.Title, &r.URL, &r.Topic, &r.Subtopic); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetRecord returns a record by ID.
func (s *SQLiteStorage) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	var r models.Record
	err := s.db.QueryRowContext(ctx,
		`SELECT id, text, published_at, language, title, url, topic, subtopic
		 FROM records WHERE id = ?`, id,
	).Scan(&r.ID, &r.Text, &r.PublishedAt, &r.Language, &r.Title, &r.URL, &r.Topic, &r.Subtopic)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Meta returns the cache metadata.
func (s *SQLiteStorage) Meta(ctx context.Context) (*CacheMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM cache_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := &CacheMeta{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		switch k {
		case metaGeneration:
			meta.Generation = v
		case metaSource:
			meta.SourcePath = v
		case metaSourceMtime:
			meta.SourceMtime, _ = strconv.ParseInt(v, 10, 64)
		case metaSourceSize:
			meta.SourceSize, _ = strconv.ParseInt(v, 10, 64)
		case metaCreatedAt:
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				meta.CreatedAt = ts
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if meta.Records, err = s.CountRecords(ctx); err != nil {
		return nil, err
	}
	return meta, nil
}

// CountRecords returns the number of cached records.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
