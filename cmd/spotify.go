package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galamiram/spottui/session"
	"github.com/galamiram/spottui/tokenstore"
)

var playDevice string

// spotifyCmd represents the spotify command
var spotifyCmd = &cobra.Command{
	Use:   "spotify",
	Short: "Browse playlists and start playback without the TUI",
	Long: `Run single session operations from the command line. Apart from login,
these commands use the stored credential and never open a browser.`,
	Example: `  spottui spotify login
  spottui spotify playlists
  spottui spotify tracks spotify:playlist:37i9dQZF1DX4WYpdgoIcn6
  spottui spotify play spotify:track:6habFhsOp2NvshLv26DqMb --device b46689a4cc3bbd5c`,
}

var spotifyLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize spottui and store the credential",
	Long:  `Refresh the stored credential, or authorize in the browser when there is none.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSpotifyConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if _, err := obtainToken(ctx, cfg); err != nil {
			return err
		}

		path, _ := tokenstore.FilePath()
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in, credential stored in %s\n", path)
		return nil
	},
}

var spotifyPlaylistsCmd = &cobra.Command{
	Use:   "playlists",
	Short: "List your playlists",
	Long:  `List the current user's playlists in service order with their URIs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, sess *session.Session) error {
			if err := sess.FetchPlaylists(ctx); err != nil {
				return err
			}
			for i, p := range sess.Playlists() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\t%s\n", i+1, p.Name, p.ID)
			}
			return nil
		})
	},
}

var spotifyTracksCmd = &cobra.Command{
	Use:   "tracks [playlist-id-or-uri]",
	Short: "List the tracks of a playlist",
	Long:  `List the playable tracks of a playlist with their URIs. Podcast episodes are skipped.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := session.CatalogID(args[0]); err != nil {
			return fmt.Errorf("invalid playlist %q: %w", args[0], err)
		}

		return withSession(func(ctx context.Context, sess *session.Session) error {
			if err := sess.SelectPlaylist(ctx, args[0]); err != nil {
				return err
			}
			for i, t := range sess.Tracks() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\t%s\n", i+1, t.Name, t.URI)
			}
			return nil
		})
	},
}

var spotifyDevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List Spotify Connect devices",
	Long:  `List the available devices. The first one is the default playback target.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, sess *session.Session) error {
			if err := sess.FetchDevices(ctx); err != nil {
				return err
			}
			if len(sess.Devices()) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active devices found")
				return nil
			}
			for i, d := range sess.Devices() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\t%s\n", i+1, d.Name, d.ID)
			}
			return nil
		})
	},
}

var spotifyPlayCmd = &cobra.Command{
	Use:   "play [track-uri]",
	Short: "Start playback of a track",
	Long:  `Start playback of a track on --device, or on the first available device.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uri := args[0]

		return withSession(func(ctx context.Context, sess *session.Session) error {
			if playDevice != "" {
				device := &session.DeviceEntry{ID: playDevice, Name: playDevice}
				if err := sess.PlayTrack(ctx, uri, device); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Playing %s on %s\n", uri, playDevice)
				return nil
			}

			if err := sess.FetchDevices(ctx); err != nil {
				return err
			}
			if err := sess.PlaySelectedTrack(ctx, uri); err != nil {
				return err
			}

			target := "the default device"
			if d := sess.SelectedDevice(); d != nil {
				target = d.Name
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Playing %s on %s\n", uri, target)
			return nil
		})
	},
}

// withSession connects with the stored credential and runs fn on a fresh session
func withSession(fn func(context.Context, *session.Session) error) error {
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, release, err := connectStored(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx, session.New(client))
}

func init() {
	spotifyCmd.AddCommand(spotifyLoginCmd)
	spotifyCmd.AddCommand(spotifyPlaylistsCmd)
	spotifyCmd.AddCommand(spotifyTracksCmd)
	spotifyCmd.AddCommand(spotifyDevicesCmd)
	spotifyCmd.AddCommand(spotifyPlayCmd)

	spotifyPlayCmd.Flags().StringVarP(&playDevice, "device", "d", "", "Device ID to play on")

	rootCmd.AddCommand(spotifyCmd)
}
