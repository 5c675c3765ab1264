package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galamiram/spottui/internal/version"
	"github.com/galamiram/spottui/session"
)

const devicesResourceURI = "spottui://devices"

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for Spotify playlist browsing and playback",
	Long: `Start a Model Context Protocol (MCP) server that lets LLMs browse your
Spotify playlists and start playback, the same operations the TUI offers.

The MCP server provides tools for:
- Listing playlists
- Listing the tracks of a playlist
- Listing Spotify Connect devices
- Playing a track

The server communicates over stdio. It never opens a browser: run spottui
once beforehand so a credential is stored.

Environment variables:
  CLIENT_ID / CLIENT_SECRET: Spotify application credentials
  API_URL: Simulator API root, used with --demo`,
	Example: `  spottui mcp
  spottui mcp --demo`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServer() error {
	// stdout carries the protocol
	log.SetOutput(os.Stderr)
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

	s := newMCPServer(session.New(client))
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// playerTools exposes session operations to MCP clients. Requests may arrive
// concurrently while the session has a single owner, hence the mutex.
type playerTools struct {
	mu      sync.Mutex
	session *session.Session
}

func newMCPServer(sess *session.Session) *server.MCPServer {
	s := server.NewMCPServer(
		"spottui",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	tools := &playerTools{session: sess}
	registerPlayerTools(s, tools)
	registerPlayerResources(s, tools)
	registerPlayerPrompts(s)
	return s
}

func registerPlayerTools(s *server.MCPServer, tools *playerTools) {
	s.AddTool(
		mcp.NewTool("list_playlists",
			mcp.WithDescription("List the current user's playlists with their IDs"),
		),
		tools.handleListPlaylists,
	)

	s.AddTool(
		mcp.NewTool("list_tracks",
			mcp.WithDescription("List the playable tracks of a playlist with their URIs. Podcast episodes are skipped."),
			mcp.WithString("playlist",
				mcp.Required(),
				mcp.Description("Playlist ID or URI, as returned by list_playlists"),
			),
		),
		tools.handleListTracks,
	)

	s.AddTool(
		mcp.NewTool("list_devices",
			mcp.WithDescription("List the available Spotify Connect devices. The first one is the default playback target."),
		),
		tools.handleListDevices,
	)

	s.AddTool(
		mcp.NewTool("play_track",
			mcp.WithDescription("Start playback of a track"),
			mcp.WithString("uri",
				mcp.Required(),
				mcp.Description("Track URI (spotify:track:...) or track ID"),
			),
			mcp.WithString("device_id",
				mcp.Description("Device to play on; defaults to the first available device"),
			),
		),
		tools.handlePlayTrack,
	)
}

func registerPlayerResources(s *server.MCPServer, tools *playerTools) {
	s.AddResource(
		mcp.NewResource(
			devicesResourceURI,
			"Spotify Connect Devices",
			mcp.WithResourceDescription("Devices that can receive playback"),
			mcp.WithMIMEType("application/json"),
		),
		tools.handleDevicesResource,
	)
}

func registerPlayerPrompts(s *server.MCPServer) {
	s.AddPrompt(
		mcp.NewPrompt("play_from_playlist",
			mcp.WithPromptDescription("Pick and play a track from one of the user's playlists"),
			mcp.WithArgument("playlist",
				mcp.ArgumentDescription("Name of the playlist to pick from"),
			),
		),
		handlePlayFromPlaylistPrompt,
	)
}

func (t *playerTools) handleListPlaylists(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.session.FetchPlaylists(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list playlists: %v", err)), nil
	}

	playlists := t.session.Playlists()
	if len(playlists) == 0 {
		return mcp.NewToolResultText("No playlists found"), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Found %d playlists:\n", len(playlists))
	for i, p := range playlists {
		fmt.Fprintf(&result, "%d. %s (%s)\n", i+1, p.Name, p.ID)
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (t *playerTools) handleListTracks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	playlist, err := request.RequireString("playlist")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid playlist parameter: %v", err)), nil
	}
	if _, err := session.CatalogID(playlist); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid playlist ID %q", playlist)), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.session.SelectPlaylist(ctx, playlist); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tracks: %v", err)), nil
	}

	tracks := t.session.Tracks()
	if len(tracks) == 0 {
		return mcp.NewToolResultText("Playlist has no playable tracks"), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Found %d tracks:\n", len(tracks))
	for i, track := range tracks {
		fmt.Fprintf(&result, "%d. %s (%s)\n", i+1, track.Name, track.URI)
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (t *playerTools) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.session.FetchDevices(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list devices: %v", err)), nil
	}

	devices := t.session.Devices()
	if len(devices) == 0 {
		return mcp.NewToolResultText("No active devices found. Open Spotify on a device first."), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Found %d devices:\n", len(devices))
	for i, d := range devices {
		marker := ""
		if i == 0 {
			marker = " [default]"
		}
		fmt.Fprintf(&result, "%d. %s (%s)%s\n", i+1, d.Name, d.ID, marker)
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (t *playerTools) handlePlayTrack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := request.RequireString("uri")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid uri parameter: %v", err)), nil
	}
	deviceID := request.GetString("device_id", "")

	t.mu.Lock()
	defer t.mu.Unlock()

	if deviceID != "" {
		err = t.session.PlayTrack(ctx, uri, &session.DeviceEntry{ID: deviceID, Name: deviceID})
	} else {
		if t.session.Devices() == nil {
			if err := t.session.FetchDevices(ctx); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to list devices: %v", err)), nil
			}
		}
		err = t.session.PlaySelectedTrack(ctx, uri)
	}

	if err != nil {
		if errors.Is(err, session.ErrMalformedID) {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid track URI %q", uri)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start playback: %v", err)), nil
	}

	target := "the default device"
	if deviceID != "" {
		target = deviceID
	} else if d := t.session.SelectedDevice(); d != nil {
		target = d.Name
	}
	return mcp.NewToolResultText(fmt.Sprintf("Playing %s on %s", uri, target)), nil
}

type deviceJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

func (t *playerTools) handleDevicesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.session.FetchDevices(ctx); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]deviceJSON, 0, len(t.session.Devices()))
	for i, d := range t.session.Devices() {
		devices = append(devices, deviceJSON{ID: d.ID, Name: d.Name, Default: i == 0})
	}

	data, err := json.Marshal(devices)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      devicesResourceURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func handlePlayFromPlaylistPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	playlist := request.Params.Arguments["playlist"]

	ask := "Play something from one of my Spotify playlists."
	if playlist != "" {
		ask = fmt.Sprintf("Play something from my Spotify playlist %q.", playlist)
	}

	steps := `To start playback:
1. Call list_playlists and pick the playlist by name
2. Call list_tracks with its ID
3. Call list_devices to check that a device is available
4. Call play_track with the chosen track URI`

	return mcp.NewGetPromptResult(
		"Play a track from a playlist",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(ask)),
			mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent(steps)),
		},
	), nil
}
