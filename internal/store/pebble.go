package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps the cursor in an embedded Pebble key-value store.
type PebbleStore struct {
	db *pebble.DB
}

var _ Store = (*PebbleStore)(nil)

// OpenPebble opens the Pebble database in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("path is required")
	}
	return openPebble(dir, &pebble.Options{})
}

func openPebble(dir string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Get(_ context.Context) (string, bool, error) {
	val, closer, err := p.db.Get([]byte(LatestKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Backend: BackendPebble, Op: "get", Err: err}
	}
	// val is only valid until closer is closed.
	id := string(val)
	_ = closer.Close()
	return id, true, nil
}

func (p *PebbleStore) Set(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return &Error{Backend: BackendPebble, Op: "set", Err: err}
	}
	if err := p.db.Set([]byte(LatestKey), []byte(id), pebble.Sync); err != nil {
		return &Error{Backend: BackendPebble, Op: "set", Err: err}
	}
	return nil
}

func (p *PebbleStore) Clear(_ context.Context) error {
	if err := p.db.Delete([]byte(LatestKey), pebble.Sync); err != nil {
		return &Error{Backend: BackendPebble, Op: "clear", Err: err}
	}
	return nil
}

func (p *PebbleStore) Close() error {
	return p.db.Close()
}
