package sync

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mokkoji/syncd/adapter/cli"
	"github.com/mokkoji/syncd/internal/sync/application"
)

var (
	pullConnections []string
	pullCalendars   []string
	pullForceFull   bool
	pullPastDays    int
	pullFutureDays  int
	pullNoWait      bool
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Queue background syncs",
	Long: `Queue one background sync job per (connection, calendar).

When --calendar is omitted the platform's calendars are enumerated.
A calendar whose sync is already queued or running is acknowledged
as already_running and skipped.

Examples:
  syncctl sync pull -c 7b4e...                 # all calendars of one connection
  syncctl sync pull -c 7b4e... --calendar primary
  syncctl sync pull -c 7b4e... --force-full    # ignore the delta token`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Sync requires a configured database.")
			return nil
		}
		if len(pullConnections) == 0 {
			return fmt.Errorf("at least one --connection is required")
		}

		connectionIDs := make([]uuid.UUID, 0, len(pullConnections))
		for _, raw := range pullConnections {
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid connection ID %q: %w", raw, err)
			}
			connectionIDs = append(connectionIDs, id)
		}

		acks, err := app.Dispatcher.Pull(cmd.Context(), app.CurrentUserID, application.PullRequest{
			ConnectionIDs:    connectionIDs,
			CalendarIDs:      pullCalendars,
			ForceFull:        pullForceFull,
			WindowDaysPast:   pullPastDays,
			WindowDaysFuture: pullFutureDays,
		})
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}

		for _, ack := range acks {
			fmt.Printf("%s  %-30s %s\n", ack.ConnectionID, ack.CalendarID, ack.Status)
		}

		// Jobs run on this process's pool; wait so they finish before
		// the command exits.
		if !pullNoWait && app.Jobs != nil {
			if err := app.Jobs.WaitIdle(cmd.Context()); err != nil {
				return fmt.Errorf("interrupted while waiting for syncs: %w", err)
			}
		}
		return nil
	},
}

func init() {
	pullCmd.Flags().StringArrayVarP(&pullConnections, "connection", "c", nil, "connection ID (repeatable)")
	pullCmd.Flags().StringArrayVar(&pullCalendars, "calendar", nil, "external calendar ID (repeatable; default: enumerate)")
	pullCmd.Flags().BoolVar(&pullForceFull, "force-full", false, "ignore the stored delta token")
	pullCmd.Flags().IntVar(&pullPastDays, "past", 30, "window days into the past (1-365)")
	pullCmd.Flags().IntVar(&pullFutureDays, "future", 365, "window days into the future (1-730)")
	pullCmd.Flags().BoolVar(&pullNoWait, "no-wait", false, "return after queueing, without waiting for syncs")
}
