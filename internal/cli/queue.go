package cli

import (
	"github.com/spf13/cobra"

	"github.com/p-blackswan/synapse/internal/hub"
)

func newQueueCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "queue",
		Aliases: []string{"local"},
		Short:   "Entities queued locally while signed out or in ghost mode",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List locally queued entities, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, app, func(c *core) error {
				list := c.router.ListLocalEntities()
				return writeOut(cmd, app, hub.LocalEntitiesResponse{Entities: list, Total: len(list)})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Discard every locally queued entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, app, func(c *core) error {
				c.router.ClearLocalEntities()
				list := c.router.ListLocalEntities()
				return writeOut(cmd, app, hub.LocalEntitiesResponse{Entities: list, Total: len(list)})
			})
		},
	})
	return cmd
}
