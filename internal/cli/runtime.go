package cli

import (
	"context"

	"github.com/p-blackswan/synapse/internal/api"
	"github.com/p-blackswan/synapse/internal/metrics"
	"github.com/p-blackswan/synapse/internal/session"
	"github.com/p-blackswan/synapse/internal/store"
	"github.com/p-blackswan/synapse/internal/submit"
	"github.com/p-blackswan/synapse/internal/wizard"
	"github.com/p-blackswan/synapse/pkg/tokenstore"
)

// core is the wired client for one invocation.
type core struct {
	db       *store.Store
	storage  store.Storage
	tokens   *tokenstore.MemoryStore
	sessions *session.Store
	client   *api.Client
	router   *submit.Router
	flow     *wizard.Flow
	metrics  *metrics.Metrics
}

// openCore opens local state, restores the session and wires the router and
// wizard flow. A state file that cannot be opened degrades to in-memory
// storage rather than failing the command.
func openCore(ctx context.Context, app *App) (*core, error) {
	cfg := app.cfg
	c := &core{
		storage: store.Disabled{},
		tokens:  tokenstore.NewMemoryStore(),
		metrics: metrics.New(),
	}

	if !cfg.StorageDisabled {
		db, err := store.New(cfg.StatePath, app.logger)
		if err != nil {
			app.logger.Warn().Err(err).Str("path", cfg.StatePath).Msg("local state unavailable, continuing in memory")
		} else {
			db.SetQuota(cfg.StateQuotaBytes)
			c.db = db
			c.storage = db
		}
	}

	if cfg.AccessToken != "" {
		if err := tokenstore.SetJWT(ctx, c.tokens, tokenstore.KeyAccessToken, cfg.AccessToken, cfg.AccessTokenTTL); err != nil {
			c.close()
			return nil, err
		}
	}

	c.sessions = session.New(c.storage, app.logger,
		session.WithTokens(c.tokens),
		session.WithMetrics(c.metrics),
	)
	c.sessions.Hydrate()

	c.client = api.NewClient(cfg.APIBaseURL, c.sessions, app.logger,
		api.WithTimeout(cfg.APITimeout),
		api.WithMetrics(c.metrics),
	)
	c.router = submit.NewRouter(c.sessions, c.client, c.storage, app.logger, submit.WithMetrics(c.metrics))
	c.flow = wizard.NewFlow(c.sessions, c.router, c.client, app.logger)
	return c, nil
}

func (c *core) close() {
	if c.db != nil {
		_ = c.db.Close()
	}
}
