// Package drafts keeps the wizard drafts the hub has open. The registry is a
// bounded LRU: opening a draft beyond capacity discards the one touched least
// recently, and drafts idle longer than the TTL are dropped on access.
package drafts

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/synapse/internal/wizard"
)

type entry struct {
	draft   *wizard.Draft
	touched time.Time
	prev    *entry
	next    *entry
}

// Registry is a thread-safe LRU of drafts keyed by draft ID.
type Registry struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry
	head     *entry // most recently used (sentinel)
	tail     *entry // least recently used (sentinel)
	now      func() time.Time
	onEvict  func(id string)
	logger   zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL drops drafts not touched for d. Zero keeps drafts until evicted.
func WithTTL(d time.Duration) Option {
	return func(r *Registry) { r.ttl = d }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// OnEvict is called, outside the lock, for every draft dropped by capacity
// or expiry. Explicit Close does not trigger it.
func OnEvict(fn func(id string)) Option {
	return func(r *Registry) { r.onEvict = fn }
}

// New creates a registry holding at most capacity drafts.
// Panics if capacity < 1.
func New(capacity int, logger zerolog.Logger, opts ...Option) *Registry {
	if capacity < 1 {
		panic("drafts: capacity must be >= 1")
	}
	head, tail := &entry{}, &entry{}
	head.next = tail
	tail.prev = head

	r := &Registry{
		capacity: capacity,
		items:    make(map[string]*entry, capacity),
		head:     head,
		tail:     tail,
		now:      time.Now,
		logger:   logger.With().Str("component", "drafts").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open starts a new draft and registers it.
func (r *Registry) Open() *wizard.Draft {
	d := wizard.New()
	r.Put(d)
	return d
}

// Put registers d, replacing any draft with the same ID.
func (r *Registry) Put(d *wizard.Draft) {
	r.mu.Lock()
	var evicted []string
	if e, ok := r.items[d.ID()]; ok {
		e.draft = d
		e.touched = r.now()
		r.moveToFront(e)
	} else {
		if len(r.items) >= r.capacity {
			victim := r.tail.prev
			r.unlink(victim)
			delete(r.items, victim.draft.ID())
			evicted = append(evicted, victim.draft.ID())
		}
		e := &entry{draft: d, touched: r.now()}
		r.items[d.ID()] = e
		r.pushFront(e)
	}
	r.mu.Unlock()
	r.notify(evicted, "capacity")
}

// Get returns the draft and marks it recently used. Expired drafts are
// removed and reported as missing.
func (r *Registry) Get(id string) (*wizard.Draft, bool) {
	r.mu.Lock()
	e, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	now := r.now()
	if r.expired(e, now) {
		r.unlink(e)
		delete(r.items, id)
		r.mu.Unlock()
		r.notify([]string{id}, "expired")
		return nil, false
	}
	e.touched = now
	r.moveToFront(e)
	r.mu.Unlock()
	return e.draft, true
}

// Close removes a draft. Returns true if it was open.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[id]
	if !ok {
		return false
	}
	r.unlink(e)
	delete(r.items, id)
	return true
}

// List returns the live drafts from most to least recently used, without
// touching them. Expired drafts are swept first.
func (r *Registry) List() []*wizard.Draft {
	r.Sweep()

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*wizard.Draft, 0, len(r.items))
	for cur := r.head.next; cur != r.tail; cur = cur.next {
		out = append(out, cur.draft)
	}
	return out
}

// Sweep removes expired drafts and returns how many were dropped.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	now := r.now()
	var evicted []string
	for cur := r.tail.prev; cur != r.head; {
		prev := cur.prev
		if r.expired(cur, now) {
			r.unlink(cur)
			delete(r.items, cur.draft.ID())
			evicted = append(evicted, cur.draft.ID())
		}
		cur = prev
	}
	r.mu.Unlock()
	r.notify(evicted, "expired")
	return len(evicted)
}

// Len returns the number of registered drafts, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Clear drops every draft without calling OnEvict.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head.next = r.tail
	r.tail.prev = r.head
	r.items = make(map[string]*entry, r.capacity)
}

func (r *Registry) expired(e *entry, now time.Time) bool {
	return r.ttl > 0 && now.Sub(e.touched) > r.ttl
}

func (r *Registry) notify(ids []string, reason string) {
	for _, id := range ids {
		r.logger.Debug().Str("draft_id", id).Str("reason", reason).Msg("draft discarded")
		if r.onEvict != nil {
			r.onEvict(id)
		}
	}
}

// --- linked list operations (caller must hold lock) ---

func (r *Registry) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}

func (r *Registry) pushFront(e *entry) {
	e.next = r.head.next
	e.prev = r.head
	r.head.next.prev = e
	r.head.next = e
}

func (r *Registry) moveToFront(e *entry) {
	r.unlink(e)
	r.pushFront(e)
}
