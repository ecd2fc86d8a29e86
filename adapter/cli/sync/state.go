package sync

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mokkoji/syncd/adapter/cli"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show sync cursors per connection and calendar",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Sync requires a configured database.")
			return nil
		}

		states, err := app.Dispatcher.State(cmd.Context(), app.CurrentUserID)
		if err != nil {
			return fmt.Errorf("failed to load sync state: %w", err)
		}

		if len(states) == 0 {
			fmt.Println("No connections.")
			return nil
		}

		for _, conn := range states {
			enabled := "enabled"
			if !conn.SyncEnabled {
				enabled = "disabled"
			}
			fmt.Printf("%s  %-8s %-8s %s\n", conn.ConnectionID, conn.Platform, enabled, conn.SyncStatus)
			if conn.LastSyncAt != nil {
				fmt.Printf("  last sync: %s\n", conn.LastSyncAt.Format("2006-01-02 15:04:05 MST"))
			}
			if conn.LastError != "" {
				fmt.Printf("  last error: %s\n", conn.LastError)
			}

			if len(conn.Calendars) == 0 {
				fmt.Println("  no calendars synced yet")
				continue
			}
			for _, cal := range conn.Calendars {
				mode := "window"
				if cal.HasDeltaToken {
					mode = "delta"
				}
				line := fmt.Sprintf("  %-30s %s", cal.ExternalCalendarID, mode)
				if cal.UpdatedMin != nil {
					line += "  updated_min=" + cal.UpdatedMin.Format("2006-01-02T15:04:05Z07:00")
				}
				if cal.LastWindowStart != nil && cal.LastWindowEnd != nil {
					line += fmt.Sprintf("  window=%s..%s",
						cal.LastWindowStart.Format("2006-01-02"),
						cal.LastWindowEnd.Format("2006-01-02"),
					)
				}
				fmt.Println(line)
			}
			fmt.Println(strings.Repeat("-", 70))
		}
		return nil
	},
}
