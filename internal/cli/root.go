// Package cli is the synapse command line: session commands, project
// submission through the wizard, the local queue and the hub server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/synapse/internal/config"
)

type App struct {
	StatePath       string
	APIBaseURL      string
	AccessToken     string
	StorageDisabled bool
	PrettyJSON      bool

	cfg    *config.Config
	logger zerolog.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "synapse",
		Short:        "Synapse client core: sessions, submissions and the project wizard",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Try things out without an account
  synapse ghost enter
  synapse project create --name "Side Quest" --category "Web Development" --tag go

  # Review what was queued locally
  synapse queue list

  # Sign in and submit to the API
  synapse login --name Alice --token "$SYNAPSE_ACCESS_TOKEN"
  synapse project create --from project.yaml

  # Serve the session core to a local UI
  synapse serve
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return writeErr(cmd, err)
		}
		app.apply(cfg)
		if err := cfg.Validate(); err != nil {
			return writeErr(cmd, err)
		}
		app.cfg = cfg
		app.logger = newLogger(cfg, cmd.ErrOrStderr())
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.StatePath, "state", "", "Path to the local state database (default: $SYNAPSE_STATE_PATH or synapse.db)")
	cmd.PersistentFlags().StringVar(&app.APIBaseURL, "api", "", "Remote API base URL (default: $SYNAPSE_API_BASE_URL)")
	cmd.PersistentFlags().StringVar(&app.AccessToken, "token", "", "Bearer token issued by the auth provider (default: $SYNAPSE_ACCESS_TOKEN)")
	cmd.PersistentFlags().BoolVar(&app.StorageDisabled, "no-store", false, "Keep all state in memory for this invocation")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newGhostCmd(app))
	cmd.AddCommand(newProjectCmd(app))
	cmd.AddCommand(newQueueCmd(app))
	cmd.AddCommand(newServeCmd(app))

	return cmd
}

// apply lets flags win over the environment.
func (app *App) apply(cfg *config.Config) {
	if app.StatePath != "" {
		cfg.StatePath = app.StatePath
	}
	if app.APIBaseURL != "" {
		cfg.APIBaseURL = app.APIBaseURL
	}
	if app.AccessToken != "" {
		cfg.AccessToken = app.AccessToken
	}
	if app.StorageDisabled {
		cfg.StorageDisabled = true
	}
}

// newLogger writes structured logs to w; development gets the console writer.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if app.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(map[string]any{"data": v})
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
