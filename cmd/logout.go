package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galamiram/spottui/tokenstore"
)

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored Spotify credential",
	Long: `Delete the stored access and refresh tokens. The next run of spottui
opens the browser to authorize again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := tokenstore.FilePath()
		if err != nil {
			return err
		}

		if err := tokenstore.Clear(); err != nil {
			return err
		}

		log.WithField("path", path).Debug("Removed stored credential")
		fmt.Fprintf(cmd.OutOrStdout(), "Logged out, removed %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
