package connection

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mokkoji/syncd/adapter/cli"
)

var removeCmd = &cobra.Command{
	Use:     "remove [connection-id]",
	Short:   "Remove a connection and its sync state",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Connection management requires a configured database.")
			return nil
		}

		conn, err := loadOwnedConnection(cmd, app, args[0])
		if err != nil {
			return err
		}

		if err := app.Connections.Delete(cmd.Context(), conn.ID()); err != nil {
			return fmt.Errorf("failed to remove connection: %w", err)
		}

		fmt.Printf("Removed %s connection %s\n", conn.PlatformType(), conn.ID())
		return nil
	},
}
