package sync

import (
	"github.com/spf13/cobra"
)

// Cmd is the sync command group
var Cmd = &cobra.Command{
	Use:   "sync",
	Short: "Drive the calendar sync engine",
	Long:  `Queue background pulls, push local events to external platforms, and inspect sync cursors.`,
}

func init() {
	Cmd.AddCommand(pullCmd)
	Cmd.AddCommand(pushCmd)
	Cmd.AddCommand(stateCmd)
}
