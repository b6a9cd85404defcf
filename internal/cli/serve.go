package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/synapse/internal/drafts"
	"github.com/p-blackswan/synapse/internal/health"
	"github.com/p-blackswan/synapse/internal/hub"
	"github.com/p-blackswan/synapse/pkg/tokenstore"
)

const maintenanceInterval = time.Minute

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session core to a local UI over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := openCore(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer c.close()

			registry := drafts.New(app.cfg.MaxOpenDrafts, app.logger, drafts.WithTTL(app.cfg.DraftIdleTTL))
			srv := newHubServer(app, c, registry, addr)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			go maintain(ctx, app, c, registry)

			select {
			case err := <-errCh:
				return writeErr(cmd, err)
			case <-ctx.Done():
			}

			app.logger.Info().Msg("shutting down gracefully")
			if err := srv.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Error().Err(err).Msg("hub shutdown error")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: $SYNAPSE_HUB_LISTEN_ADDR or 127.0.0.1:8787)")
	return cmd
}

// newHubServer wires the hub around an opened core.
func newHubServer(app *App, c *core, registry *drafts.Registry, addr string) *hub.Server {
	cfg := app.cfg
	if addr == "" {
		addr = cfg.HubListenAddr
	}

	checker := health.NewChecker(app.logger)
	if c.db != nil {
		checker.Register("storage", health.StorageCheck(c.db))
	} else {
		checker.Register("storage", health.StorageCheck(nil))
	}
	checker.Register("remote_api", health.RemoteCheck(func(ctx context.Context) error {
		return c.client.Get(ctx, "/", nil)
	}))

	return hub.NewServer(hub.ServerConfig{
		ListenAddr:  addr,
		CORSOrigins: cfg.CORSOriginList(),
		TokenTTL:    cfg.AccessTokenTTL,
		APIKey:      cfg.HubAPIKey,
		UploadDir:   cfg.HubUploadDir,
	}, hub.Deps{
		Sessions: c.sessions,
		Router:   c.router,
		Flow:     c.flow,
		Drafts:   registry,
		Tokens:   c.tokens,
		Verifier: tokenstore.StaticVerifier{},
		Checker:  checker,
		Metrics:  c.metrics,
	}, app.logger)
}

// maintain drops idle drafts and expired tokens until ctx is done.
func maintain(ctx context.Context, app *App, c *core, registry *drafts.Registry) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := registry.Sweep(); n > 0 {
				app.logger.Debug().Int("drafts", n).Msg("idle drafts closed")
			}
			if n, err := c.tokens.Cleanup(ctx); err == nil && n > 0 {
				app.logger.Debug().Int("tokens", n).Msg("expired tokens removed")
			}
		}
	}
}
