package session

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/synapse/internal/metrics"
	"github.com/p-blackswan/synapse/internal/store"
	"github.com/p-blackswan/synapse/pkg/tokenstore"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *store.MemoryStore) {
	t.Helper()
	storage := store.NewMemoryStore()
	return New(storage, zerolog.Nop(), opts...), storage
}

func markers(t *testing.T, storage store.Storage) (ghost, auth bool) {
	t.Helper()
	_, ghost, err := storage.Get(store.KeyGhostSession)
	require.NoError(t, err)
	_, auth, err = storage.Get(store.KeyAuthSession)
	require.NoError(t, err)
	return ghost, auth
}

func assertExclusive(t *testing.T, s *Store, storage store.Storage) {
	t.Helper()
	ghost, auth := markers(t, storage)
	st := s.State()
	switch st.Mode {
	case ModeUnauthenticated:
		assert.False(t, ghost, "ghost marker while unauthenticated")
		assert.False(t, auth, "auth marker while unauthenticated")
		assert.Empty(t, st.GhostID)
		assert.Empty(t, st.DisplayName)
	case ModeAuthenticated:
		assert.False(t, ghost, "ghost marker while authenticated")
		assert.True(t, auth)
		assert.Empty(t, st.GhostID)
	case ModeGhost:
		assert.True(t, ghost)
		assert.False(t, auth, "auth marker while ghost")
		assert.Equal(t, st.GhostID, st.DisplayName)
	default:
		t.Fatalf("unexpected mode %v", st.Mode)
	}
}

func TestNew_StartsUnauthenticated(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Equal(t, ModeUnauthenticated, s.Mode())
	assert.Empty(t, s.DisplayName())
	assert.Empty(t, s.GhostID())
}

func TestEnterGhostMode(t *testing.T) {
	s, storage := newTestStore(t)

	st := s.EnterGhostMode()
	assert.Equal(t, ModeGhost, st.Mode)
	assert.True(t, IsGhostID(st.GhostID), "bad ghost id %q", st.GhostID)
	assert.Equal(t, st.GhostID, s.DisplayName())

	raw, ok, err := storage.Get(store.KeyGhostSession)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"isGuest":true,"ghostId":"`+st.GhostID+`"}`, raw)
	assertExclusive(t, s, storage)
}

func TestAuthenticate(t *testing.T) {
	s, storage := newTestStore(t)

	st := s.Authenticate("  Aman ")
	assert.Equal(t, ModeAuthenticated, st.Mode)
	assert.Equal(t, "Aman", st.DisplayName)

	raw, ok, err := storage.Get(store.KeyAuthSession)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"isAuthenticated":true,"displayName":"Aman"}`, raw)
}

func TestAuthenticate_BlankNameFallsBack(t *testing.T) {
	for _, name := range []string{"", "   ", "\t\n"} {
		s, _ := newTestStore(t)
		assert.Equal(t, DefaultDisplayName, s.Authenticate(name).DisplayName)
	}
}

func TestScenarioB_GhostThenAuthenticate(t *testing.T) {
	s, storage := newTestStore(t)
	s.EnterGhostMode()

	st := s.Authenticate("Aman")
	assert.Equal(t, ModeAuthenticated, st.Mode)
	assert.Equal(t, "Aman", st.DisplayName)
	assert.Empty(t, st.GhostID)

	ghost, _ := markers(t, storage)
	assert.False(t, ghost, "ghost marker must be removed")
}

func TestExitGhostMode(t *testing.T) {
	s, storage := newTestStore(t)
	s.EnterGhostMode()

	st := s.ExitGhostMode()
	assert.Equal(t, ModeUnauthenticated, st.Mode)
	assertExclusive(t, s, storage)

	// Idempotent.
	st = s.ExitGhostMode()
	assert.Equal(t, ModeUnauthenticated, st.Mode)
	assertExclusive(t, s, storage)
}

func TestExitGhostMode_KeepsAuthenticated(t *testing.T) {
	s, storage := newTestStore(t)
	s.Authenticate("Ada")

	st := s.ExitGhostMode()
	assert.Equal(t, ModeAuthenticated, st.Mode)
	assert.Equal(t, "Ada", st.DisplayName)
	assertExclusive(t, s, storage)
}

func TestLogout(t *testing.T) {
	tokens := tokenstore.NewMemoryStore()
	s, storage := newTestStore(t, WithTokens(tokens))
	require.NoError(t, tokens.Set(context.Background(), tokenstore.KeyAccessToken, "tok", time.Hour))
	s.Authenticate("Ada")

	st := s.Logout()
	assert.Equal(t, ModeUnauthenticated, st.Mode)
	assertExclusive(t, s, storage)
	_, err := tokens.Get(context.Background(), tokenstore.KeyAccessToken)
	assert.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
}

func TestModeExclusivity_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s, storage := newTestStore(t)

	for i := 0; i < 500; i++ {
		switch rng.Intn(4) {
		case 0:
			s.EnterGhostMode()
		case 1:
			s.ExitGhostMode()
		case 2:
			s.Authenticate("user")
		case 3:
			s.Logout()
		}
		assertExclusive(t, s, storage)
	}
}

func TestGhostIDFreshness(t *testing.T) {
	s, _ := newTestStore(t)
	prev := s.EnterGhostMode().GhostID

	for i := 0; i < 1000; i++ {
		if i%2 == 0 {
			s.ExitGhostMode()
		} else {
			s.Authenticate("between")
		}
		next := s.EnterGhostMode().GhostID
		require.True(t, IsGhostID(next), "bad ghost id %q", next)
		require.NotEqual(t, prev, next, "ghost id reused at iteration %d", i)
		prev = next
	}
}

func TestGhostID_NeverRepeatsEvenWithFixedEntropy(t *testing.T) {
	// A constant entropy source draws the same suffix every time.
	s, _ := newTestStore(t, WithRandom(bytes.NewReader(bytes.Repeat([]byte{0}, 64))))
	first := s.EnterGhostMode().GhostID
	s.ExitGhostMode()
	second := s.EnterGhostMode().GhostID

	assert.Equal(t, GhostIDPrefix+"0000", first)
	assert.NotEqual(t, first, second)
	assert.True(t, IsGhostID(second))
}

func TestHydrate_EmptyStorage(t *testing.T) {
	s, _ := newTestStore(t)
	st := s.Hydrate()
	assert.Equal(t, ModeUnauthenticated, st.Mode)
}

func TestHydrate_RestoresSameGhost(t *testing.T) {
	storage := store.NewMemoryStore()
	first := New(storage, zerolog.Nop())
	ghostID := first.EnterGhostMode().GhostID

	// Simulated restart.
	second := New(storage, zerolog.Nop())
	st := second.Hydrate()
	assert.Equal(t, ModeGhost, st.Mode)
	assert.Equal(t, ghostID, st.GhostID)
	assert.Equal(t, ghostID, st.DisplayName)

	// A fresh entry after reload still draws a new tag.
	second.ExitGhostMode()
	assert.NotEqual(t, ghostID, second.EnterGhostMode().GhostID)
}

func TestHydrate_RestoresAuthenticated(t *testing.T) {
	storage := store.NewMemoryStore()
	New(storage, zerolog.Nop()).Authenticate("Grace")

	st := New(storage, zerolog.Nop()).Hydrate()
	assert.Equal(t, ModeAuthenticated, st.Mode)
	assert.Equal(t, "Grace", st.DisplayName)
}

func TestHydrate_Idempotent(t *testing.T) {
	cases := map[string]func(store.Storage){
		"empty": func(store.Storage) {},
		"ghost": func(st store.Storage) {
			_ = st.Set(store.KeyGhostSession, `{"isGuest":true,"ghostId":"GHOST_USER_#ZZ01"}`)
		},
		"auth": func(st store.Storage) {
			_ = st.Set(store.KeyAuthSession, `{"isAuthenticated":true,"displayName":"Ada"}`)
		},
		"corrupt": func(st store.Storage) {
			_ = st.Set(store.KeyGhostSession, `{"isGuest":tru`)
		},
	}
	for name, seed := range cases {
		t.Run(name, func(t *testing.T) {
			s, storage := newTestStore(t)
			seed(storage)
			first := s.Hydrate()
			second := s.Hydrate()
			assert.Equal(t, first, second)
		})
	}
}

func TestHydrate_AuthenticatedTakesPrecedence(t *testing.T) {
	s, storage := newTestStore(t)
	require.NoError(t, storage.Set(store.KeyGhostSession, `{"isGuest":true,"ghostId":"GHOST_USER_#AAAA"}`))
	require.NoError(t, storage.Set(store.KeyAuthSession, `{"isAuthenticated":true,"displayName":"Ada"}`))

	st := s.Hydrate()
	assert.Equal(t, ModeAuthenticated, st.Mode)
	assert.Equal(t, "Ada", st.DisplayName)
	assertExclusive(t, s, storage)
}

func TestHydrate_CorruptMarkerDiscarded(t *testing.T) {
	s, storage := newTestStore(t)
	require.NoError(t, storage.Set(store.KeyGhostSession, "not json"))

	st := s.Hydrate()
	assert.Equal(t, ModeUnauthenticated, st.Mode)
	_, ok, _ := storage.Get(store.KeyGhostSession)
	assert.False(t, ok)
}

func TestHydrate_IncompleteGhostMarkerIgnored(t *testing.T) {
	s, storage := newTestStore(t)
	require.NoError(t, storage.Set(store.KeyGhostSession, `{"isGuest":true,"ghostId":""}`))
	assert.Equal(t, ModeUnauthenticated, s.Hydrate().Mode)
}

func TestStorageDisabled_StillWorksInMemory(t *testing.T) {
	m := metrics.New()
	s := New(store.Disabled{}, zerolog.Nop(), WithMetrics(m))

	assert.Equal(t, ModeUnauthenticated, s.Hydrate().Mode)
	st := s.EnterGhostMode()
	assert.Equal(t, ModeGhost, st.Mode)
	assert.Equal(t, st.GhostID, s.GhostID())

	st = s.Authenticate("Ada")
	assert.Equal(t, ModeAuthenticated, st.Mode)
}

func TestStorageFull_StillWorksInMemory(t *testing.T) {
	storage := store.NewMemoryStore()
	storage.SetQuota(1)
	s := New(storage, zerolog.Nop())

	st := s.EnterGhostMode()
	assert.Equal(t, ModeGhost, st.Mode)
	assert.Equal(t, 0, storage.Len())
}

func TestSubscribe_OrderAndSnapshot(t *testing.T) {
	s, _ := newTestStore(t)

	var calls []string
	s.Subscribe(func(st State) {
		calls = append(calls, "first:"+st.Mode.String())
		// Reads inside a callback see the state that triggered it.
		assert.Equal(t, st, s.State())
	})
	s.Subscribe(func(st State) {
		calls = append(calls, "second:"+st.Mode.String())
	})

	s.EnterGhostMode()
	s.Authenticate("Ada")

	assert.Equal(t, []string{
		"first:ghost", "second:ghost",
		"first:authenticated", "second:authenticated",
	}, calls)
}

func TestSubscribe_FiresOnEveryMutation(t *testing.T) {
	s, _ := newTestStore(t)
	count := 0
	s.Subscribe(func(State) { count++ })

	s.Hydrate()
	s.EnterGhostMode()
	s.ExitGhostMode()
	s.ExitGhostMode()
	s.Authenticate("x")
	s.Logout()
	assert.Equal(t, 6, count)
}

func TestUnsubscribe(t *testing.T) {
	s, _ := newTestStore(t)
	var a, b int
	unsubA := s.Subscribe(func(State) { a++ })
	s.Subscribe(func(State) { b++ })

	s.EnterGhostMode()
	unsubA()
	unsubA()
	s.ExitGhostMode()

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestSubscribe_ListenerMayMutate(t *testing.T) {
	s, _ := newTestStore(t)
	s.Subscribe(func(st State) {
		if st.Mode == ModeAuthenticated && st.DisplayName == "expired" {
			s.Logout()
		}
	})
	s.Authenticate("expired")
	assert.Equal(t, ModeUnauthenticated, s.Mode())
}

func TestCurrentToken_OnlyWhileAuthenticated(t *testing.T) {
	ctx := context.Background()
	tokens := tokenstore.NewMemoryStore()
	s, _ := newTestStore(t, WithTokens(tokens))
	require.NoError(t, tokens.Set(ctx, tokenstore.KeyAccessToken, "bearer-1", time.Hour))

	_, ok := s.CurrentToken(ctx)
	assert.False(t, ok, "no token while unauthenticated")

	s.Authenticate("Ada")
	tok, ok := s.CurrentToken(ctx)
	assert.True(t, ok)
	assert.Equal(t, "bearer-1", tok)

	s.EnterGhostMode()
	_, ok = s.CurrentToken(ctx)
	assert.False(t, ok)
	_, err := tokens.Get(ctx, tokenstore.KeyAccessToken)
	assert.ErrorIs(t, err, tokenstore.ErrTokenNotFound, "entering ghost mode drops the credential")
}

func TestMode_TextRoundTrip(t *testing.T) {
	for _, m := range []Mode{ModeUnauthenticated, ModeAuthenticated, ModeGhost} {
		b, err := m.MarshalText()
		require.NoError(t, err)
		var got Mode
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, m, got)
	}
	var bad Mode
	assert.Error(t, bad.UnmarshalText([]byte("admin")))
}

func TestIsGhostID(t *testing.T) {
	assert.True(t, IsGhostID("GHOST_USER_#A1Z9"))
	assert.False(t, IsGhostID("GHOST_USER_#a1z9"))
	assert.False(t, IsGhostID("GHOST_USER_#A1Z"))
	assert.False(t, IsGhostID("USER_#A1Z9"))
}

func TestHydrate_GhostDropsStaleAuthMarker(t *testing.T) {
	s, storage := newTestStore(t)
	require.NoError(t, storage.Set(store.KeyGhostSession, `{"isGuest":true,"ghostId":"GHOST_USER_#BBBB"}`))
	require.NoError(t, storage.Set(store.KeyAuthSession, `{"isAuthenticated":false,"displayName":"Ada"}`))

	st := s.Hydrate()
	assert.Equal(t, ModeGhost, st.Mode)
	assertExclusive(t, s, storage)
}

func TestHydrate_UnauthenticatedDropsInvalidMarkers(t *testing.T) {
	s, storage := newTestStore(t)
	require.NoError(t, storage.Set(store.KeyGhostSession, `{"isGuest":false,"ghostId":"GHOST_USER_#BBBB"}`))
	require.NoError(t, storage.Set(store.KeyAuthSession, `{"isAuthenticated":false}`))

	assert.Equal(t, ModeUnauthenticated, s.Hydrate().Mode)
	assertExclusive(t, s, storage)
}

// markerSize is the quota a single marker needs in a MemoryStore.
func markerSize(t *testing.T, key string, v any) int {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return len(key) + len(raw)
}

func TestModeSwitch_NearlyFullStorageKeepsNewMarker(t *testing.T) {
	ghostSize := markerSize(t, store.KeyGhostSession, ghostMarker{IsGuest: true, GhostID: GhostIDPrefix + "0000"})
	authSize := markerSize(t, store.KeyAuthSession, authMarker{IsAuthenticated: true, DisplayName: "Ada"})

	storage := store.NewMemoryStore()
	storage.SetQuota(max(ghostSize, authSize))
	s := New(storage, zerolog.Nop())

	s.EnterGhostMode()
	assertExclusive(t, s, storage)

	s.Authenticate("Ada")
	assertExclusive(t, s, storage)
	restored := New(storage, zerolog.Nop()).Hydrate()
	assert.Equal(t, ModeAuthenticated, restored.Mode)
	assert.Equal(t, "Ada", restored.DisplayName)

	st := s.EnterGhostMode()
	assertExclusive(t, s, storage)
	restored = New(storage, zerolog.Nop()).Hydrate()
	assert.Equal(t, ModeGhost, restored.Mode)
	assert.Equal(t, st.GhostID, restored.GhostID)
}

func TestSubscribe_ReentrantMutationDeliveredAfterCurrent(t *testing.T) {
	s, _ := newTestStore(t)

	var calls []string
	s.Subscribe(func(st State) {
		calls = append(calls, "first:"+st.Mode.String())
		if st.Mode == ModeAuthenticated {
			s.Logout()
		}
	})
	s.Subscribe(func(st State) {
		calls = append(calls, "second:"+st.Mode.String())
	})

	s.Authenticate("expired")

	assert.Equal(t, []string{
		"first:authenticated", "second:authenticated",
		"first:unauthenticated", "second:unauthenticated",
	}, calls)
	assert.Equal(t, ModeUnauthenticated, s.Mode())
}

func TestSubscribe_ConcurrentMutationsDeliveredInOrder(t *testing.T) {
	s, _ := newTestStore(t)

	var (
		mu        sync.Mutex
		delivered []State
		inFlight  atomic.Int32
		overlap   atomic.Bool
	)
	s.Subscribe(func(st State) {
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		mu.Lock()
		delivered = append(delivered, st)
		mu.Unlock()
		inFlight.Add(-1)
	})

	const workers, rounds = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				switch (w + i) % 3 {
				case 0:
					s.EnterGhostMode()
				case 1:
					s.Authenticate("Ada")
				default:
					s.Logout()
				}
			}
		}(w)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, overlap.Load(), "listeners ran concurrently")
	require.Len(t, delivered, workers*rounds)
	assert.Equal(t, s.State(), delivered[len(delivered)-1])
}
