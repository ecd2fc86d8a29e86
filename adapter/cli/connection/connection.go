package connection

import (
	"github.com/spf13/cobra"
)

// Cmd is the connection command group
var Cmd = &cobra.Command{
	Use:     "connection",
	Short:   "Manage external calendar connections",
	Long:    `Add, list, enable, disable, and remove external calendar platform connections.`,
	Aliases: []string{"conn"},
}

func init() {
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(enableCmd)
	Cmd.AddCommand(disableCmd)
	Cmd.AddCommand(removeCmd)
}
