// Package session is the single authority on who the current actor is and
// where their data goes: unauthenticated, authenticated, or ghost (a local-only
// guest). Markers are persisted to local storage so a restart resumes the same
// mode, and every mutation is announced to subscribers synchronously.
//
// Storage failures never reach callers. The in-memory state stays
// authoritative for the lifetime of the process.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/synapse/internal/metrics"
	"github.com/p-blackswan/synapse/internal/store"
	"github.com/p-blackswan/synapse/pkg/tokenstore"
)

// DefaultDisplayName is used when Authenticate is given a blank name.
const DefaultDisplayName = "Operator"

type ghostMarker struct {
	IsGuest bool   `json:"isGuest"`
	GhostID string `json:"ghostId"`
}

type authMarker struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	DisplayName     string `json:"displayName"`
}

// Listener receives the state produced by a mutation.
type Listener func(State)

type subscription struct {
	id uint64
	fn Listener
}

type notice struct {
	state State
	subs  []subscription
}

// Store owns the session state and its persisted markers.
type Store struct {
	mu          sync.Mutex
	storage     store.Storage
	tokens      tokenstore.Store
	state       State
	lastGhostID string
	subs        []subscription
	nextSubID   uint64
	pending     []notice
	dispatching bool
	random      io.Reader
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRandom sets the entropy source for ghost IDs.
func WithRandom(r io.Reader) Option {
	return func(s *Store) { s.random = r }
}

// WithMetrics records mode transitions and swallowed storage errors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithTokens attaches the credential store filled by the auth provider.
// Leaving the authenticated mode clears the access token from it.
func WithTokens(t tokenstore.Store) Option {
	return func(s *Store) { s.tokens = t }
}

// New creates an unauthenticated store. Call Hydrate once at start-up to
// restore a persisted session.
func New(storage store.Storage, logger zerolog.Logger, opts ...Option) *Store {
	if storage == nil {
		storage = store.Disabled{}
	}
	s := &Store{
		storage: storage,
		state:   State{Mode: ModeUnauthenticated},
		logger:  logger.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the current mode.
func (s *Store) Mode() Mode { return s.State().Mode }

// DisplayName returns the authenticated name, the ghost tag, or "".
func (s *Store) DisplayName() string { return s.State().DisplayName }

// GhostID returns the ghost tag, or "" outside ghost mode.
func (s *Store) GhostID() string { return s.State().GhostID }

// Subscribe registers fn to run after every mutation, in registration order.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// EnterGhostMode starts a fresh guest session with a newly drawn ghost tag and
// drops any authenticated markers.
func (s *Store) EnterGhostMode() State {
	s.mu.Lock()
	ghostID := newGhostID(s.random, s.lastGhostID)
	s.lastGhostID = ghostID
	s.remove(store.KeyAuthSession)
	s.persist(store.KeyGhostSession, ghostMarker{IsGuest: true, GhostID: ghostID})
	s.dropToken()
	next := State{Mode: ModeGhost, GhostID: ghostID, DisplayName: ghostID}
	s.logger.Info().Str("ghost_id", ghostID).Msg("entered ghost mode")
	return s.commit(next)
}

// ExitGhostMode clears ghost markers and returns to unauthenticated.
// An authenticated session is left as it is.
func (s *Store) ExitGhostMode() State {
	s.mu.Lock()
	s.remove(store.KeyGhostSession)
	next := s.state
	if next.Mode != ModeAuthenticated {
		next = State{Mode: ModeUnauthenticated}
	}
	return s.commit(next)
}

// Authenticate records the outcome of a successful credential check performed
// by the auth provider. A blank name falls back to DefaultDisplayName.
func (s *Store) Authenticate(name string) State {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultDisplayName
	}

	s.mu.Lock()
	s.remove(store.KeyGhostSession)
	s.persist(store.KeyAuthSession, authMarker{IsAuthenticated: true, DisplayName: name})
	next := State{Mode: ModeAuthenticated, DisplayName: name}
	s.logger.Info().Str("display_name", name).Msg("authenticated")
	return s.commit(next)
}

// Logout drops the authenticated identity and its credential.
func (s *Store) Logout() State {
	s.mu.Lock()
	s.remove(store.KeyAuthSession)
	s.remove(store.KeyGhostSession)
	s.dropToken()
	return s.commit(State{Mode: ModeUnauthenticated})
}

// Hydrate restores the persisted session. An authenticated marker wins over a
// ghost marker; missing, unreadable or corrupt markers leave the session
// unauthenticated.
func (s *Store) Hydrate() State {
	s.mu.Lock()
	next := State{Mode: ModeUnauthenticated}

	var am authMarker
	var gm ghostMarker
	switch {
	case s.load(store.KeyAuthSession, &am) && am.IsAuthenticated:
		name := strings.TrimSpace(am.DisplayName)
		if name == "" {
			name = DefaultDisplayName
		}
		next = State{Mode: ModeAuthenticated, DisplayName: name}
		if s.load(store.KeyGhostSession, &gm) {
			s.logger.Warn().Msg("both session markers present, keeping authenticated")
			s.remove(store.KeyGhostSession)
		}
	case s.load(store.KeyGhostSession, &gm) && gm.IsGuest && gm.GhostID != "":
		s.lastGhostID = gm.GhostID
		next = State{Mode: ModeGhost, GhostID: gm.GhostID, DisplayName: gm.GhostID}
		s.remove(store.KeyAuthSession)
	default:
		s.remove(store.KeyAuthSession)
		s.remove(store.KeyGhostSession)
	}

	s.logger.Debug().Stringer("mode", next.Mode).Msg("session hydrated")
	return s.commit(next)
}

// CurrentToken yields the bearer credential, but only while authenticated.
// It makes the Store a tokenstore.Source.
func (s *Store) CurrentToken(ctx context.Context) (string, bool) {
	s.mu.Lock()
	mode, tokens := s.state.Mode, s.tokens
	s.mu.Unlock()
	if mode != ModeAuthenticated || tokens == nil {
		return "", false
	}
	return tokenstore.StoreSource{Store: tokens}.CurrentToken(ctx)
}

// commit installs next, queues its notification and releases the lock.
// Callers must hold s.mu.
//
// Notifications are delivered one at a time in mutation order, even when
// mutations race on several goroutines. The goroutine that finds the queue
// idle drains it; a mutation made while another goroutine is draining (or
// from inside a listener) returns once queued and is delivered by that
// drainer after the notifications ahead of it.
func (s *Store) commit(next State) State {
	s.state = next
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.pending = append(s.pending, notice{state: next, subs: subs})
	if s.dispatching {
		s.mu.Unlock()
		return next
	}
	s.dispatching = true
	s.drain()
	return next
}

// drain delivers queued notifications. It is entered with s.mu held and
// returns with it released.
func (s *Store) drain() {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.pending = nil
			s.dispatching = false
			s.mu.Unlock()
			panic(r)
		}
	}()
	for len(s.pending) > 0 {
		n := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.metrics.RecordTransition(n.state.Mode.String())
		for _, sub := range n.subs {
			sub.fn(n.state)
		}

		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}

// load decodes key into v. Corrupt values are discarded.
func (s *Store) load(key string, v any) bool {
	raw, ok, err := s.storage.Get(key)
	if err != nil {
		s.storageFailed("read", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt session marker")
		s.remove(key)
		return false
	}
	return true
}

func (s *Store) persist(key string, v any) {
	if err := store.SetJSON(s.storage, key, v); err != nil {
		s.storageFailed("write", key, err)
	}
}

func (s *Store) remove(key string) {
	if err := s.storage.Remove(key); err != nil {
		s.storageFailed("remove", key, err)
	}
}

func (s *Store) dropToken() {
	if s.tokens == nil {
		return
	}
	if err := s.tokens.Delete(context.Background(), tokenstore.KeyAccessToken); err != nil &&
		!errors.Is(err, tokenstore.ErrTokenNotFound) {
		s.logger.Warn().Err(err).Msg("failed to drop access token")
	}
}

func (s *Store) storageFailed(op, key string, err error) {
	s.metrics.RecordStorageError("session", op)
	s.logger.Warn().Err(err).Str("op", op).Str("key", key).Msg("local storage unavailable, continuing in memory")
}
