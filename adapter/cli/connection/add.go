package connection

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mokkoji/syncd/adapter/cli"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

var (
	token     string
	tokenFile string
)

var addCmd = &cobra.Command{
	Use:   "add [platform]",
	Short: "Add an external calendar connection",
	Long: `Add a connection to an external calendar platform.

Platforms:
  google  - Google Calendar (OAuth access token)
  naver   - Naver Calendar (OAuth access token; write-only)
  kakao   - Kakao Calendar (placeholder, sync is rejected)
  caldav  - Generic CalDAV server (credentials as "username:password")

The credential is encrypted at rest; it never leaves this machine in
plaintext.

Examples:
  syncctl connection add google --token ya29....
  syncctl connection add caldav --token-file ~/.config/mokkoji/fastmail.cred`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Connection management requires a configured database.")
			return nil
		}

		platform := domain.PlatformType(strings.ToLower(args[0]))
		if !platform.IsValid() {
			return fmt.Errorf("unknown platform: %s", args[0])
		}

		credential := token
		if credential == "" && tokenFile != "" {
			data, err := os.ReadFile(tokenFile)
			if err != nil {
				return fmt.Errorf("failed to read token file: %w", err)
			}
			credential = strings.TrimSpace(string(data))
		}
		if credential == "" {
			return fmt.Errorf("a credential is required (--token or --token-file)")
		}

		// The blob is bound to the connection ID, so the entity is
		// created first and the real ciphertext swapped in.
		conn, err := domain.NewExternalConnection(app.CurrentUserID, platform, "pending")
		if err != nil {
			return fmt.Errorf("failed to create connection: %w", err)
		}
		blob, err := app.Codec.EncryptToken(credential, conn.ID().String())
		if err != nil {
			return fmt.Errorf("failed to encrypt credential: %w", err)
		}
		if err := conn.UpdateCredential(blob); err != nil {
			return err
		}

		if err := app.Connections.Save(cmd.Context(), conn); err != nil {
			return fmt.Errorf("failed to save connection: %w", err)
		}

		fmt.Printf("Added %s connection\n", platform)
		fmt.Printf("  ID: %s\n", conn.ID())
		fmt.Printf("  Sync enabled: %t\n", conn.SyncEnabled())
		return nil
	},
}

func init() {
	addCmd.Flags().StringVarP(&token, "token", "t", "", "credential for the platform")
	addCmd.Flags().StringVar(&tokenFile, "token-file", "", "file containing the credential")
}
