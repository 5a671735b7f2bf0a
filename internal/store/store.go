package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the cursor and the delivery journal in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ Store   = (*SQLiteStore)(nil)
	_ Journal = (*SQLiteStore)(nil)
)

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the cursor and journal writes are tiny.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("store is not initialized")
	}

	var id string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cursors WHERE key = ?", LatestKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Backend: BackendSQLite, Op: "get", Err: err}
	}
	return id, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if err := validateID(id); err != nil {
		return &Error{Backend: BackendSQLite, Op: "set", Err: err}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, LatestKey, id, formatTime(time.Now()))
	if err != nil {
		return &Error{Backend: BackendSQLite, Op: "set", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cursors WHERE key = ?", LatestKey); err != nil {
		return &Error{Backend: BackendSQLite, Op: "clear", Err: err}
	}
	return nil
}

// RecordDelivery appends d to the journal.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, d Delivery) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if strings.TrimSpace(d.PostID) == "" {
		return errors.New("post_id is required")
	}
	if d.DeliveredAt.IsZero() {
		return errors.New("delivered_at is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (post_id, title, status_code, delivered_at)
		VALUES (?, ?, ?, ?)
	`, d.PostID, d.Title, d.StatusCode, formatTime(d.DeliveredAt))
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// RecentDeliveries returns up to limit deliveries, newest first.
func (s *SQLiteStore) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, title, status_code, delivered_at
		FROM deliveries
		ORDER BY delivered_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent deliveries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

// PruneDeliveries deletes journal rows older than retainDays.
func (s *SQLiteStore) PruneDeliveries(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))
	res, err := s.db.ExecContext(ctx, "DELETE FROM deliveries WHERE delivered_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(scanner rowScanner) (Delivery, error) {
	var (
		d           Delivery
		deliveredAt string
	)
	if err := scanner.Scan(&d.PostID, &d.Title, &d.StatusCode, &deliveredAt); err != nil {
		return Delivery{}, fmt.Errorf("scan delivery: %w", err)
	}
	var err error
	d.DeliveredAt, err = parseTime(deliveredAt)
	if err != nil {
		return Delivery{}, fmt.Errorf("parse delivered_at: %w", err)
	}
	return d, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return time.Time{}.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
