// Package mirror runs one fetch, render, dispatch and cursor cycle.
package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/postmirror/internal/dispatch"
	"github.com/ppiankov/postmirror/internal/render"
	"github.com/ppiankov/postmirror/internal/source"
	"github.com/ppiankov/postmirror/internal/store"
)

// Fetcher returns posts newer than cursor; an empty cursor means none stored.
type Fetcher interface {
	FetchSince(ctx context.Context, cursor string) (source.FetchResult, error)
}

// Renderer turns a post into a destination message.
type Renderer interface {
	Render(post source.Post, includes source.Includes) (render.Message, error)
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg render.Message) (dispatch.Response, error)
}

// State is the path a run took.
type State string

const (
	StateEmpty     State = "empty"
	StateSeeded    State = "seeded"
	StateProcessed State = "processed"
	StateFailed    State = "failed"
)

// Result summarises a run.
type Result struct {
	State      State
	Fetched    int
	Dispatched int
	Skipped    int    // posts at or below the cursor returned by the source
	Cursor     string // cursor after the run
}

// Mirror wires the cursor store, source, renderer and webhook together.
// Runs within one process are serialised.
type Mirror struct {
	store    store.Store
	fetcher  Fetcher
	renderer Renderer
	sender   Sender
	journal  store.Journal
	metrics  *Metrics
	log      zerolog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// Option customises a Mirror.
type Option func(*Mirror)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Mirror) { m.log = log }
}

// WithJournal records each delivery. Journal failures are logged, never fatal.
func WithJournal(j store.Journal) Option {
	return func(m *Mirror) { m.journal = j }
}

// WithMetrics updates the given collectors.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Mirror) { m.metrics = metrics }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Mirror) { m.now = now }
}

// New creates a Mirror.
func New(st store.Store, f Fetcher, r Renderer, s Sender, opts ...Option) *Mirror {
	m := &Mirror{
		store:    st,
		fetcher:  f,
		renderer: r,
		sender:   s,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run mirrors every post newer than the stored cursor.
//
// Without a stored cursor the newest fetched id is stored and nothing is
// sent. Otherwise posts are sent oldest first and the cursor advances after
// each successful send, so the first failure leaves the cursor on the last
// delivered post and the rest are picked up by the next run.
func (m *Mirror) Run(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.now()
	res, err := m.run(ctx)
	outcome := string(res.State)
	if err != nil {
		outcome = string(StateFailed)
		res.State = StateFailed
	}
	m.metrics.observe(outcome, m.now().Sub(start).Seconds())
	return res, err
}

func (m *Mirror) run(ctx context.Context) (Result, error) {
	cursor, hasCursor, err := m.store.Get(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read cursor: %w", err)
	}
	res := Result{Cursor: cursor}

	batch, err := m.fetcher.FetchSince(ctx, cursor)
	if err != nil {
		return res, fmt.Errorf("fetch posts: %w", err)
	}
	res.Fetched = len(batch.Posts)
	m.log.Debug().Str("cursor", cursor).Int("fetched", res.Fetched).Msg("Fetched posts")

	if len(batch.Posts) == 0 {
		res.State = StateEmpty
		return res, nil
	}

	if !hasCursor {
		newest := Newest(batch.Posts)
		if err := m.store.Set(ctx, newest.ID); err != nil {
			return res, fmt.Errorf("seed cursor: %w", err)
		}
		res.State = StateSeeded
		res.Cursor = newest.ID
		m.log.Info().Str("cursor", newest.ID).Int("skipped", len(batch.Posts)).Msg("Seeded cursor without mirroring history")
		return res, nil
	}

	res.State = StateProcessed
	for _, post := range SortOldestFirst(batch.Posts) {
		if source.CompareIDs(post.ID, res.Cursor) <= 0 {
			res.Skipped++
			m.log.Warn().Str("post_id", post.ID).Str("cursor", res.Cursor).Msg("Source returned a post at or below the cursor, skipping")
			continue
		}

		msg, err := m.renderer.Render(post, batch.Includes)
		if err != nil {
			return res, fmt.Errorf("render post %s: %w", post.ID, err)
		}

		resp, err := m.sender.Send(ctx, msg)
		if err != nil {
			return res, fmt.Errorf("dispatch post %s: %w", post.ID, err)
		}

		if err := m.store.Set(ctx, post.ID); err != nil {
			return res, fmt.Errorf("advance cursor to %s: %w", post.ID, err)
		}
		res.Cursor = post.ID
		res.Dispatched++
		m.metrics.delivered()

		m.log.Info().
			Str("post_id", post.ID).
			Str("title", msg.Title).
			Int("status", resp.StatusCode).
			Msg("Mirrored post")

		m.record(ctx, msg, resp)
	}

	return res, nil
}

func (m *Mirror) record(ctx context.Context, msg render.Message, resp dispatch.Response) {
	if m.journal == nil {
		return
	}
	err := m.journal.RecordDelivery(ctx, store.Delivery{
		PostID:      msg.PostID,
		Title:       msg.Title,
		StatusCode:  resp.StatusCode,
		DeliveredAt: m.now(),
	})
	if err != nil {
		m.log.Warn().Err(err).Str("post_id", msg.PostID).Msg("Failed to record delivery")
	}
}

// Preview renders what the next run would send without sending anything or
// touching the cursor. Without a stored cursor the whole batch is rendered.
func (m *Mirror) Preview(ctx context.Context) ([]render.Message, error) {
	cursor, _, err := m.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	batch, err := m.fetcher.FetchSince(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}

	var out []render.Message
	for _, post := range SortOldestFirst(batch.Posts) {
		if cursor != "" && source.CompareIDs(post.ID, cursor) <= 0 {
			continue
		}
		msg, err := m.renderer.Render(post, batch.Includes)
		if err != nil {
			return out, fmt.Errorf("render post %s: %w", post.ID, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// SortOldestFirst returns a copy of posts ordered by creation time, ties
// broken by id.
func SortOldestFirst(posts []source.Post) []source.Post {
	sorted := make([]source.Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return before(sorted[i], sorted[j])
	})
	return sorted
}

// Newest returns the most recently created post. posts must be non-empty.
func Newest(posts []source.Post) source.Post {
	newest := posts[0]
	for _, p := range posts[1:] {
		if before(newest, p) {
			newest = p
		}
	}
	return newest
}

func before(a, b source.Post) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return source.CompareIDs(a.ID, b.ID) < 0
}
