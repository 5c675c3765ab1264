package cmd

import (
	"fmt"

	"github.com/galamiram/spottui/internal/version"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the current version of spottui.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "spottui version: %s\n", version.Version)
		fmt.Fprintf(out, "Terminal client for Spotify playlists\n")
		fmt.Fprintf(out, "https://github.com/galamiram/spottui\n")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
