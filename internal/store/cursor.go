// Package store persists the mirror cursor and the delivery journal.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LatestKey is the key under which the last mirrored post id is kept.
const LatestKey = "latest_id"

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendPebble = "pebble"
)

// Store holds the id of the last successfully mirrored post.
type Store interface {
	// Get returns the stored cursor; ok is false when none was ever set.
	Get(ctx context.Context) (id string, ok bool, err error)
	// Set replaces the stored cursor.
	Set(ctx context.Context, id string) error
	// Clear removes the cursor so the next run seeds again.
	Clear(ctx context.Context) error
	Close() error
}

// Delivery is one successfully dispatched post.
type Delivery struct {
	PostID      string
	Title       string
	StatusCode  int
	DeliveredAt time.Time
}

// Journal records deliveries for operators. Only the sqlite backend keeps one.
type Journal interface {
	RecordDelivery(ctx context.Context, d Delivery) error
	RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	PruneDeliveries(ctx context.Context, retainDays int) (int64, error)
}

// Error wraps a failure of the cursor backend.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options selects and configures a backend.
type Options struct {
	Backend string

	// sqlite / pebble
	Path string

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// Open opens the backend named by opts.Backend. An empty backend is sqlite.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendSQLite:
		return OpenSQLite(opts.Path)
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.KeyPrefix)
	case BackendPebble:
		return OpenPebble(opts.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want sqlite, redis or pebble)", opts.Backend)
	}
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("cursor id is required")
	}
	return nil
}
