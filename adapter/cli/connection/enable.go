package connection

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mokkoji/syncd/adapter/cli"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

var enableCmd = &cobra.Command{
	Use:   "enable [connection-id]",
	Short: "Enable sync for a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable [connection-id]",
	Short: "Disable sync for a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], false)
	},
}

func setEnabled(cmd *cobra.Command, arg string, enabled bool) error {
	app := cli.GetApp()
	if app == nil {
		fmt.Println("Connection management requires a configured database.")
		return nil
	}

	conn, err := loadOwnedConnection(cmd, app, arg)
	if err != nil {
		return err
	}

	conn.SetSyncEnabled(enabled)
	if err := app.Connections.Save(cmd.Context(), conn); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	if enabled {
		fmt.Printf("Sync enabled for %s connection %s\n", conn.PlatformType(), conn.ID())
	} else {
		fmt.Printf("Sync disabled for %s connection %s\n", conn.PlatformType(), conn.ID())
	}
	return nil
}

func loadOwnedConnection(cmd *cobra.Command, app *cli.App, arg string) (*domain.ExternalConnection, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid connection ID: %w", err)
	}

	conn, err := app.Connections.FindByID(cmd.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("connection not found: %s", id)
	}
	if !conn.OwnedBy(app.CurrentUserID) {
		return nil, fmt.Errorf("connection not found: %s", id)
	}
	return conn, nil
}
