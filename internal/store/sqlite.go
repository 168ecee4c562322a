package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/marchcraft/upscaled/internal/model"

	_ "modernc.org/sqlite"
)

const createUpscalesTable = `
CREATE TABLE IF NOT EXISTS upscales (
    id            TEXT PRIMARY KEY,
    status        TEXT NOT NULL,
    backend       TEXT,
    model         TEXT,
    scale         INTEGER NOT NULL,
    original_size TEXT,
    upscaled_size TEXT,
    memory_mb     REAL,
    duration_ms   INTEGER,
    error         TEXT,
    created_at    DATETIME NOT NULL
)`

const createAttemptsTable = `
CREATE TABLE IF NOT EXISTS attempts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id  TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    backend     TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    reason      TEXT,
    tile_size   INTEGER,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL
)`

const createAttemptsIndex = `
CREATE INDEX IF NOT EXISTS idx_attempts_request ON attempts (request_id, seq)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createUpscalesTable, createAttemptsTable, createAttemptsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRecord inserts a new request record.
func (s *SQLiteStore) CreateRecord(ctx context.Context, r *model.RequestRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upscales (
			id, status, backend, model, scale, original_size,
			upscaled_size, memory_mb, duration_ms, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Status, r.Backend, r.Model, r.Scale, r.OriginalSize,
		r.UpscaledSize, r.MemoryMB, r.DurationMS, r.Error, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord retrieves a request record by ID.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.RequestRecord, error) {
	r := &model.RequestRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, backend, model, scale, original_size,
			upscaled_size, memory_mb, duration_ms, error, created_at
		FROM upscales WHERE id = ?`, id,
	).Scan(
		&r.ID, &r.Status, &r.Backend, &r.Model, &r.Scale, &r.OriginalSize,
		&r.UpscaledSize, &r.MemoryMB, &r.DurationMS, &r.Error, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

// ListRecent returns the most recent request records, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*model.RequestRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, backend, model, scale, original_size,
			upscaled_size, memory_mb, duration_ms, error, created_at
		FROM upscales ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*model.RequestRecord
	for rows.Next() {
		r := &model.RequestRecord{}
		if err := rows.Scan(
			&r.ID, &r.Status, &r.Backend, &r.Model, &r.Scale, &r.OriginalSize,
			&r.UpscaledSize, &r.MemoryMB, &r.DurationMS, &r.Error, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertAttempt appends one attempt outcome to a request's diagnostic log.
func (s *SQLiteStore) InsertAttempt(ctx context.Context, a *model.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (
			request_id, seq, backend, outcome, reason, tile_size, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RequestID, a.Seq, a.Backend, a.Outcome, a.Reason, a.TileSize, a.DurationMS, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// GetAttempts returns a request's attempts in chain order.
func (s *SQLiteStore) GetAttempts(ctx context.Context, requestID string) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, seq, backend, outcome, reason, tile_size, duration_ms, created_at
		FROM attempts WHERE request_id = ? ORDER BY seq`, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("get attempts: %w", err)
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(
			&a.RequestID, &a.Seq, &a.Backend, &a.Outcome, &a.Reason,
			&a.TileSize, &a.DurationMS, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetStats computes aggregate statistics across all recorded requests.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByStatus:  make(map[string]int),
		ByBackend: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM upscales GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	backendRows, err := s.db.QueryContext(ctx,
		"SELECT backend, COUNT(*) FROM upscales WHERE backend != '' GROUP BY backend")
	if err != nil {
		return nil, fmt.Errorf("stats by backend: %w", err)
	}
	defer backendRows.Close()
	for backendRows.Next() {
		var b string
		var count int
		if err := backendRows.Scan(&b, &count); err != nil {
			return nil, fmt.Errorf("scan backend count: %w", err)
		}
		stats.ByBackend[b] = count
	}
	if err := backendRows.Err(); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM upscales WHERE status = ?", model.StatusCompleted,
	).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("stats avg duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}
