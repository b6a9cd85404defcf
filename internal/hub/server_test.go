package hub

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/synapse/internal/api"
	"github.com/p-blackswan/synapse/internal/drafts"
	"github.com/p-blackswan/synapse/internal/health"
	"github.com/p-blackswan/synapse/internal/metrics"
	"github.com/p-blackswan/synapse/internal/requestid"
	"github.com/p-blackswan/synapse/internal/session"
	"github.com/p-blackswan/synapse/internal/store"
	"github.com/p-blackswan/synapse/internal/submit"
	"github.com/p-blackswan/synapse/internal/wizard"
	"github.com/p-blackswan/synapse/pkg/tokenstore"
)

type testEnv struct {
	app      *fiber.App
	sessions *session.Store
	tokens   *tokenstore.MemoryStore
	storage  *store.MemoryStore
	remote   *httptest.Server

	mu   sync.Mutex
	seen []*http.Request
}

func (e *testEnv) requests() []*http.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*http.Request(nil), e.seen...)
}

// setupHub wires a hub against an httptest remote that answers with handler.
func setupHub(t *testing.T, handler http.HandlerFunc) *testEnv {
	t.Helper()
	env := &testEnv{}
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"srv-1"}`))
		}
	}
	env.remote = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.seen = append(env.seen, r.Clone(r.Context()))
		env.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(env.remote.Close)

	logger := zerolog.Nop()
	m := metrics.New()
	env.storage = store.NewMemoryStore()
	env.tokens = tokenstore.NewMemoryStore()
	env.sessions = session.New(env.storage, logger, session.WithTokens(env.tokens), session.WithMetrics(m))
	client := api.NewClient(env.remote.URL, env.sessions, logger, api.WithMetrics(m))
	router := submit.NewRouter(env.sessions, client, env.storage, logger, submit.WithMetrics(m))

	checker := health.NewChecker(logger)
	checker.Register("storage", health.StorageCheck(nil))

	srv := NewServer(ServerConfig{TokenTTL: time.Hour}, Deps{
		Sessions: env.sessions,
		Router:   router,
		Flow:     wizard.NewFlow(env.sessions, router, client, logger),
		Drafts:   drafts.New(4, logger),
		Tokens:   env.tokens,
		Verifier: tokenstore.StaticVerifier{},
		Checker:  checker,
		Metrics:  m,
	}, logger)
	env.app = srv.App()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_Probes(t *testing.T) {
	env := setupHub(t, nil)

	resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])

	// Storage degraded still counts as ready.
	resp = env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[health.Report](t, resp)
	assert.Equal(t, health.StatusDegraded, report.Status)

	resp = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "synapse_")
}

func TestServer_RequestIDEchoed(t *testing.T) {
	env := setupHub(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set(requestid.Header, "req-7")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-7", resp.Header.Get(requestid.Header))

	resp = env.do(t, http.MethodGet, "/api/v1/session", nil)
	assert.NotEmpty(t, resp.Header.Get(requestid.Header))
}

func TestServer_SessionLifecycle(t *testing.T) {
	env := setupHub(t, nil)

	st := decode[SessionResponse](t, env.do(t, http.MethodGet, "/api/v1/session", nil))
	assert.Equal(t, session.ModeUnauthenticated, st.Mode)

	st = decode[SessionResponse](t, env.do(t, http.MethodPost, "/api/v1/session/ghost", nil))
	assert.Equal(t, session.ModeGhost, st.Mode)
	assert.True(t, session.IsGhostID(st.GhostID))
	assert.Equal(t, st.GhostID, st.DisplayName)

	st = decode[SessionResponse](t, env.do(t, http.MethodDelete, "/api/v1/session/ghost", nil))
	assert.Equal(t, session.ModeUnauthenticated, st.Mode)

	st = decode[SessionResponse](t, env.do(t, http.MethodPost, "/api/v1/session/login", LoginRequest{Name: "Aman"}))
	assert.Equal(t, session.ModeAuthenticated, st.Mode)
	assert.Equal(t, "Aman", st.DisplayName)
	assert.False(t, st.HasToken)

	st = decode[SessionResponse](t, env.do(t, http.MethodPost, "/api/v1/session/logout", nil))
	assert.Equal(t, session.ModeUnauthenticated, st.Mode)
}

func TestServer_LoginWithCredentialsAndToken(t *testing.T) {
	env := setupHub(t, nil)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	raw, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/api/v1/session/login", LoginRequest{
		Email: "ada@example.com", Password: "pw", AccessToken: raw,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[SessionResponse](t, resp)
	assert.Equal(t, "ada", st.DisplayName)
	assert.True(t, st.HasToken)

	// Rejected credentials leave the session alone.
	env.sessions.Logout()
	resp = env.do(t, http.MethodPost, "/api/v1/session/login", LoginRequest{Email: "ada@example.com"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, session.ModeUnauthenticated, env.sessions.Mode())
}

func TestServer_LoginRejectsExpiredToken(t *testing.T) {
	env := setupHub(t, nil)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	raw, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/api/v1/session/login", LoginRequest{Name: "x", AccessToken: raw})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, session.ModeUnauthenticated, env.sessions.Mode())
}

func TestServer_GhostSubmissionStaysLocal(t *testing.T) {
	env := setupHub(t, nil)
	env.do(t, http.MethodPost, "/api/v1/session/ghost", nil)

	resp := env.do(t, http.MethodPost, "/api/v1/entities/projects", map[string]any{"title": "X"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, true, out["local"])
	entity := out["entity"].(map[string]any)
	assert.True(t, strings.HasPrefix(entity["id"].(string), submit.LocalIDPrefix))
	assert.Equal(t, "X", entity["title"])
	assert.Empty(t, env.requests())

	list := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/v1/local-entities", nil))
	assert.EqualValues(t, 1, list["total"])

	resp = env.do(t, http.MethodDelete, "/api/v1/local-entities", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	list = decode[map[string]any](t, env.do(t, http.MethodGet, "/api/v1/local-entities", nil))
	assert.EqualValues(t, 0, list["total"])
}

func TestServer_AuthenticatedSubmissionGoesRemote(t *testing.T) {
	env := setupHub(t, nil)
	env.do(t, http.MethodPost, "/api/v1/session/login", LoginRequest{Name: "Aman", AccessToken: "opaque-token"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities/projects/", strings.NewReader(`{"title":"X"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestid.Header, "req-remote")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	out := decode[map[string]any](t, resp)
	assert.Equal(t, false, out["local"])
	seen := env.requests()
	require.Len(t, seen, 1)
	assert.Equal(t, "/projects/", seen[0].URL.Path)
	assert.Equal(t, "Bearer opaque-token", seen[0].Header.Get("Authorization"))
	assert.Equal(t, "req-remote", seen[0].Header.Get(requestid.Header))
}

func TestServer_RemoteStatusPassedThrough(t *testing.T) {
	env := setupHub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Token expired"}`))
	})
	env.do(t, http.MethodPost, "/api/v1/session/login", LoginRequest{Name: "Aman"})

	resp := env.do(t, http.MethodPost, "/api/v1/entities/projects/", map[string]any{"title": "X"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "remote_error", problem.Type)
	assert.Equal(t, "Token expired", problem.Detail)
}

func TestServer_SubmitEntityBadBody(t *testing.T) {
	env := setupHub(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities/projects", strings.NewReader(`[1,2]`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_DraftFlow(t *testing.T) {
	env := setupHub(t, nil)
	env.do(t, http.MethodPost, "/api/v1/session/ghost", nil)

	resp := env.do(t, http.MethodPost, "/api/v1/drafts", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	snap := decode[wizard.Snapshot](t, resp)
	base := "/api/v1/drafts/" + snap.ID

	name := "Synapse"
	snap = decode[wizard.Snapshot](t, env.do(t, http.MethodPatch, base, DraftPatch{Name: &name}))
	assert.Equal(t, "Synapse", snap.Identity.Name)

	snap = decode[wizard.Snapshot](t, env.do(t, http.MethodPost, base+"/tags", ValueRequest{Value: " ai "}))
	assert.Equal(t, []string{"ai"}, snap.Details.Tags)
	snap = decode[wizard.Snapshot](t, env.do(t, http.MethodDelete, base+"/tags/ai", nil))
	assert.Empty(t, snap.Details.Tags)

	first := decode[map[string]map[string]any](t, env.do(t, http.MethodPost, base+"/members", nil))["member"]
	second := decode[map[string]map[string]any](t, env.do(t, http.MethodPost, base+"/members", nil))["member"]
	assert.NotEqual(t, first["gradient"], second["gradient"])

	upd := decode[map[string]map[string]any](t, env.do(t, http.MethodPatch,
		base+"/members/"+second["id"].(string), MemberUpdateRequest{Field: "name", Value: "Ada Lovelace"}))["member"]
	assert.Equal(t, "AL", upd["initials"])

	snap = decode[wizard.Snapshot](t, env.do(t, http.MethodDelete, base+"/members/"+first["id"].(string), nil))
	require.Len(t, snap.Team.Members, 1)
	assert.Equal(t, second["id"], snap.Team.Members[0].ID)

	// Submitting before the last step is a conflict.
	resp = env.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	snap = decode[wizard.Snapshot](t, env.do(t, http.MethodPost, base+"/step", StepRequest{Action: "set", Step: 9}))
	assert.Equal(t, wizard.StepTeam, snap.Step)

	resp = env.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, true, out["local"])

	// Submitted drafts are closed.
	resp = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	list := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/v1/local-entities", nil))
	assert.EqualValues(t, 1, list["total"])
}

func TestServer_DraftFromYAML(t *testing.T) {
	env := setupHub(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/drafts", strings.NewReader("name: From YAML\ntags: [a, b]\n"))
	req.Header.Set("Content-Type", "application/yaml")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	snap := decode[wizard.Snapshot](t, resp)
	assert.Equal(t, "From YAML", snap.Identity.Name)
	assert.Equal(t, []string{"a", "b"}, snap.Details.Tags)
	assert.Equal(t, wizard.StepTeam, snap.Step)

	list := decode[DraftListResponse](t, env.do(t, http.MethodGet, "/api/v1/drafts", nil))
	assert.Equal(t, 1, list.Total)
}

func TestServer_DraftFailedSubmitStaysOpen(t *testing.T) {
	env := setupHub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Token expired"}`))
	})
	env.do(t, http.MethodPost, "/api/v1/session/login", LoginRequest{Name: "Aman"})

	snap := decode[wizard.Snapshot](t, env.do(t, http.MethodPost, "/api/v1/drafts", nil))
	base := "/api/v1/drafts/" + snap.ID
	env.do(t, http.MethodPost, base+"/step", StepRequest{Action: "set", Step: 4})

	resp := env.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	snap = decode[wizard.Snapshot](t, env.do(t, http.MethodGet, base, nil))
	assert.False(t, snap.IsSubmitting)
	assert.False(t, snap.IsComplete)
}

func TestServer_DraftErrors(t *testing.T) {
	env := setupHub(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/drafts/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "draft_not_found", decode[ProblemDetail](t, resp).Type)

	snap := decode[wizard.Snapshot](t, env.do(t, http.MethodPost, "/api/v1/drafts", nil))
	base := "/api/v1/drafts/" + snap.ID

	bad := wizard.Priority("Urgent")
	resp = env.do(t, http.MethodPatch, base, DraftPatch{Priority: &bad})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, base+"/step", StepRequest{Action: "jump"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, base+"/members/nope", MemberUpdateRequest{Field: "name", Value: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
