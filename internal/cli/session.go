package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/synapse/internal/hub"
	"github.com/p-blackswan/synapse/internal/session"
	"github.com/p-blackswan/synapse/pkg/tokenstore"
)

func sessionView(cmd *cobra.Command, c *core, st session.State) hub.SessionResponse {
	_, hasToken := c.sessions.CurrentToken(cmd.Context())
	return hub.SessionResponse{State: st, HasToken: hasToken}
}

// withCore runs fn against a freshly opened core and closes it afterwards.
func withCore(cmd *cobra.Command, app *App, fn func(c *core) error) error {
	c, err := openCore(cmd.Context(), app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer c.close()
	if err := fn(c); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, app, func(c *core) error {
				return writeOut(cmd, app, sessionView(cmd, c, c.sessions.State()))
			})
		},
	}
}

func newLoginCmd(app *App) *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Record a successful sign-in",
		Long: strings.TrimSpace(`
Records the result of a sign-in on the session. With --email and --password the
credentials are checked first; the display name then defaults to the local part
of the email. Any ghost session is discarded.
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, app, func(c *core) error {
				if email != "" || password != "" {
					v := tokenstore.StaticVerifier{Name: name}
					ident, err := v.VerifyCredentials(cmd.Context(), email, password)
					if err != nil {
						return err
					}
					name = ident.DisplayName
				}
				st := c.sessions.Authenticate(name)
				return writeOut(cmd, app, sessionView(cmd, c, st))
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget any ghost session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, app, func(c *core) error {
				return writeOut(cmd, app, sessionView(cmd, c, c.sessions.Logout()))
			})
		},
	}
}

func newGhostCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ghost",
		Short: "Ghost (anonymous) mode commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "enter",
		Short: "Start a ghost session with a fresh identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, app, func(c *core) error {
				return writeOut(cmd, app, sessionView(cmd, c, c.sessions.EnterGhostMode()))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "exit",
		Short: "Leave ghost mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, app, func(c *core) error {
				return writeOut(cmd, app, sessionView(cmd, c, c.sessions.ExitGhostMode()))
			})
		},
	})
	return cmd
}
