package connection

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mokkoji/syncd/adapter/cli"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List connections",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Connection management requires a configured database.")
			return nil
		}

		conns, err := app.Connections.FindByUser(cmd.Context(), app.CurrentUserID)
		if err != nil {
			return fmt.Errorf("failed to list connections: %w", err)
		}

		if len(conns) == 0 {
			fmt.Println("No connections. Add one with: syncctl connection add google --token ...")
			return nil
		}

		fmt.Printf("Connections (%d):\n", len(conns))
		fmt.Println(strings.Repeat("-", 70))
		for _, conn := range conns {
			enabled := "enabled"
			if !conn.SyncEnabled() {
				enabled = "disabled"
			}
			fmt.Printf("%s  %-8s %-8s %s\n", conn.ID(), conn.PlatformType(), enabled, conn.SyncStatus())
			if !conn.LastSyncAt().IsZero() {
				fmt.Printf("  last sync: %s\n", conn.LastSyncAt().Format("2006-01-02 15:04:05 MST"))
			}
			if conn.LastError() != "" {
				fmt.Printf("  last error: %s\n", conn.LastError())
			}
		}
		return nil
	},
}
