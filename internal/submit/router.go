// Package submit routes "create entity" writes to the transport that matches
// the current session: the remote API when authenticated, the local ghost
// queue otherwise. Callers never learn which one served them except through
// EntityRecord.Local.
package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/synapse/internal/errors"
	"github.com/p-blackswan/synapse/internal/metrics"
	"github.com/p-blackswan/synapse/internal/session"
	"github.com/p-blackswan/synapse/internal/store"
)

// LocalIDPrefix starts the ID of every locally queued entity.
const LocalIDPrefix = "ghost_"

// ModeReader exposes the session state the router dispatches on.
type ModeReader interface {
	State() session.State
}

// Poster is the remote write transport.
type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}

// Router picks the transport for each submission. It is the only writer of
// the local queue key.
type Router struct {
	sessions ModeReader
	remote   Poster
	storage  store.Storage
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.Mutex
	lastID int64
}

// Option configures a Router.
type Option func(*Router)

// WithMetrics records submissions and queue depth.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// NewRouter creates a Router.
func NewRouter(sessions ModeReader, remote Poster, storage store.Storage, logger zerolog.Logger, opts ...Option) *Router {
	if storage == nil {
		storage = store.Disabled{}
	}
	r := &Router{
		sessions: sessions,
		remote:   remote,
		storage:  storage,
		logger:   logger.With().Str("component", "submit").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SubmitEntity creates an entity through the transport selected by the
// current session mode. Only the remote path can fail; its errors are
// returned unmodified so the HTTP status stays visible to the caller.
func (r *Router) SubmitEntity(ctx context.Context, path string, payload any) (*EntityRecord, error) {
	fields, err := normalizePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}

	st := r.sessions.State()
	if st.Mode == session.ModeAuthenticated {
		return r.submitRemote(ctx, path, fields)
	}
	return r.submitLocal(path, fields, st.GhostID), nil
}

func (r *Router) submitRemote(ctx context.Context, path string, fields map[string]any) (*EntityRecord, error) {
	if r.remote == nil {
		r.metrics.RecordSubmission(metrics.TransportRemote, "error")
		return nil, perrors.ErrNoRemote
	}

	var raw json.RawMessage
	if err := r.remote.Post(ctx, path, fields, &raw); err != nil {
		r.metrics.RecordSubmission(metrics.TransportRemote, "error")
		return nil, err
	}
	r.metrics.RecordSubmission(metrics.TransportRemote, "ok")

	rec := &EntityRecord{Payload: fields}
	if len(raw) > 0 {
		var decoded EntityRecord
		if err := json.Unmarshal(raw, &decoded); err == nil {
			rec = &decoded
		} else {
			r.logger.Debug().Err(err).Str("path", path).Msg("remote response is not an object, keeping request payload")
		}
	}
	rec.Local = false
	return rec, nil
}

func (r *Router) submitLocal(path string, fields map[string]any, namespace string) *EntityRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	rec := &EntityRecord{
		ID:        r.nextLocalID(now),
		Payload:   fields,
		CreatedAt: now,
		Namespace: namespace,
		Local:     true,
	}

	queue := r.readQueue()
	queue = append(queue, *rec)
	if err := store.SetJSON(r.storage, store.KeyLocalQueue, queue); err != nil {
		r.metrics.RecordStorageError("submit", "write")
		r.logger.Warn().Err(err).Str("path", path).Str("id", rec.ID).Msg("local write dropped")
	} else {
		r.metrics.SetQueueDepth(len(queue))
	}
	r.metrics.RecordSubmission(metrics.TransportLocal, "ok")
	r.logger.Debug().Str("path", path).Str("id", rec.ID).Msg("entity queued locally")
	return rec
}

// nextLocalID returns ghost_<unix-nanos>, bumped so IDs strictly increase even
// when the clock does not. Callers must hold r.mu.
func (r *Router) nextLocalID(now time.Time) string {
	n := now.UnixNano()
	if n <= r.lastID {
		n = r.lastID + 1
	}
	r.lastID = n
	return fmt.Sprintf("%s%d", LocalIDPrefix, n)
}

// ListLocalEntities returns the local queue in insertion order.
func (r *Router) ListLocalEntities() []EntityRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readQueue()
}

// ClearLocalEntities drops the local queue, e.g. after it was synced remotely.
func (r *Router) ClearLocalEntities() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.storage.Remove(store.KeyLocalQueue); err != nil {
		r.metrics.RecordStorageError("submit", "remove")
		r.logger.Warn().Err(err).Msg("failed to clear local queue")
		return
	}
	r.metrics.SetQueueDepth(0)
}

// readQueue loads the queue; unreadable data is treated as empty.
// Callers must hold r.mu.
func (r *Router) readQueue() []EntityRecord {
	var queue []EntityRecord
	if _, err := store.GetJSON(r.storage, store.KeyLocalQueue, &queue); err != nil {
		r.metrics.RecordStorageError("submit", "read")
		r.logger.Warn().Err(err).Msg("local queue unreadable, treating as empty")
		return []EntityRecord{}
	}
	for i := range queue {
		queue[i].Local = true
	}
	if queue == nil {
		queue = []EntityRecord{}
	}
	return queue
}
