package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/galamiram/spottui/session"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// App represents the main TUI application
type App struct {
	ctx     context.Context
	keys    keyMap
	help    help.Model
	session *session.Session
	focus   session.Panel

	message     string
	messageType MessageType
	width       int
	height      int

	loading      bool
	busy         bool
	spinner      string
	spinnerIndex int

	logs chan logEntry
	err  error
}

// MessageType represents the type of message to display
type MessageType int

const (
	MessageInfo MessageType = iota
	MessageSuccess
	MessageError
	MessageWarning
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var tickInterval = 250 * time.Millisecond

const logBuffer = 64

// keyMap defines the keyboard shortcuts
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Switch key.Binding
	Select key.Binding
	Quit   key.Binding
}

// ShortHelp returns the key bindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Switch, k.Select, k.Quit}
}

// FullHelp returns the key bindings to be shown in the full help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "down"),
	),
	Switch: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch panel"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open playlist / play track"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// NewApp creates a new TUI application driving sess
func NewApp(ctx context.Context, sess *session.Session) *App {
	return &App{
		ctx:         ctx,
		keys:        keys,
		help:        help.New(),
		session:     sess,
		focus:       session.PanelPlaylists,
		message:     "Loading playlists...",
		messageType: MessageInfo,
		loading:     true,
		spinner:     spinnerFrames[0],
		logs:        make(chan logEntry, logBuffer),
	}
}

// Err returns the error that stopped the application, if any
func (a *App) Err() error {
	return a.err
}

// Focus returns the panel that receives navigation keys
func (a *App) Focus() session.Panel {
	return a.focus
}

// Init initializes the application
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.loadSession(),
		a.tickCmd(),
	)
}

// Update handles messages and updates the application state
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width

	case tea.KeyMsg:
		log.WithFields(log.Fields{
			"key":  msg.String(),
			"type": msg.Type.String(),
		}).Debug("Key pressed")

		switch {
		case key.Matches(msg, a.keys.Quit):
			return a, tea.Quit

		case key.Matches(msg, a.keys.Switch):
			a.focus = a.focus.Toggle()

		case key.Matches(msg, a.keys.Up):
			a.session.MoveCursor(a.focus, session.Previous)

		case key.Matches(msg, a.keys.Down):
			a.session.MoveCursor(a.focus, session.Next)

		case key.Matches(msg, a.keys.Select):
			return a, a.activate()
		}

	case sessionLoadedMsg:
		a.loading = false
		a.session.ReplacePlaylists(msg.playlists)
		a.session.ReplaceDevices(msg.devices)
		if msg.tracks != nil {
			a.session.PrepareTrackFetch()
			a.session.ReplaceTracks(msg.tracks)
		}

		if device := a.session.SelectedDevice(); device != nil {
			a.setMessage(fmt.Sprintf("Connected to %s", device.Name), MessageSuccess)
		} else {
			a.setMessage("No active devices found, playback uses the Spotify default", MessageWarning)
		}

	case startupErrorMsg:
		a.loading = false
		a.err = msg.err
		return a, tea.Quit

	case tracksLoadedMsg:
		a.busy = false
		if id, ok := a.session.SelectedPlaylistID(); !ok || id != msg.playlistID {
			log.WithField("playlist", msg.playlistID).Debug("Discarding tracks of a playlist no longer selected")
			return a, nil
		}
		if msg.err != nil {
			a.setMessage(fmt.Sprintf("Failed to load tracks: %v", msg.err), MessageError)
			return a, nil
		}
		if msg.tracks == nil {
			return a, nil
		}
		a.session.ReplaceTracks(msg.tracks)
		a.setMessage(fmt.Sprintf("Loaded %d tracks", len(msg.tracks)), MessageInfo)

	case playbackMsg:
		a.busy = false
		if msg.err != nil {
			a.setMessage(fmt.Sprintf("Playback failed: %v", msg.err), MessageError)
			return a, nil
		}
		a.setMessage(fmt.Sprintf("Playing %s", msg.track), MessageSuccess)

	case tickMsg:
		a.spinnerIndex = (a.spinnerIndex + 1) % len(spinnerFrames)
		a.spinner = spinnerFrames[a.spinnerIndex]
		a.drainLogs()
		return a, a.tickCmd()
	}

	return a, nil
}

// activate handles enter on the focused panel
func (a *App) activate() tea.Cmd {
	if a.loading || a.busy {
		return nil
	}

	switch a.focus {
	case session.PanelPlaylists:
		playlist, ok := a.session.PlaylistAtCursor()
		if !ok {
			return nil
		}
		a.session.SetSelectedPlaylist(playlist.ID)
		id, _ := a.session.PrepareTrackFetch()
		a.busy = true
		a.setMessage(fmt.Sprintf("Loading %s...", playlist.Name), MessageInfo)
		return a.loadTracks(id)

	case session.PanelTracks:
		track, ok := a.session.TrackAtCursor()
		if !ok {
			return nil
		}
		a.busy = true
		a.setMessage(fmt.Sprintf("Starting %s...", track.Name), MessageInfo)
		return a.play(track, a.session.SelectedDevice())
	}
	return nil
}

// View renders the application
func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}
	return Render(a.frame())
}

func (a *App) frame() Frame {
	f := Frame{
		Width:          a.width,
		Height:         a.height,
		Focus:          a.focus,
		PlaylistCursor: a.session.Cursor(session.PanelPlaylists),
		TrackCursor:    a.session.Cursor(session.PanelTracks),
		Message:        a.message,
		MessageType:    a.messageType,
		Busy:           a.loading || a.busy,
		Spinner:        a.spinner,
		Help:           a.help.View(a.keys),
	}
	for _, p := range a.session.Playlists() {
		f.Playlists = append(f.Playlists, p.Name)
	}
	for _, t := range a.session.Tracks() {
		f.Tracks = append(f.Tracks, t.Name)
	}
	return f
}

func (a *App) setMessage(text string, msgType MessageType) {
	a.message = text
	a.messageType = msgType
}

// Command functions
func (a *App) loadSession() tea.Cmd {
	return func() tea.Msg {
		var msg sessionLoadedMsg
		g, ctx := errgroup.WithContext(a.ctx)

		g.Go(func() error {
			playlists, err := a.session.LoadPlaylists(ctx)
			if err != nil {
				return err
			}
			msg.playlists = playlists
			if len(playlists) == 0 {
				return nil
			}
			msg.tracks, err = a.session.LoadTracks(ctx, playlists[0].ID)
			return err
		})
		g.Go(func() error {
			devices, err := a.session.LoadDevices(ctx)
			msg.devices = devices
			return err
		})

		if err := g.Wait(); err != nil {
			return startupErrorMsg{err: err}
		}
		return msg
	}
}

func (a *App) loadTracks(playlistID string) tea.Cmd {
	return func() tea.Msg {
		tracks, err := a.session.LoadTracks(a.ctx, playlistID)
		return tracksLoadedMsg{playlistID: playlistID, tracks: tracks, err: err}
	}
}

func (a *App) play(track session.TrackEntry, device *session.DeviceEntry) tea.Cmd {
	return func() tea.Msg {
		err := a.session.PlayTrack(a.ctx, track.URI, device)
		return playbackMsg{track: track.Name, err: err}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Messages
type sessionLoadedMsg struct {
	playlists []session.PlaylistEntry
	devices   []session.DeviceEntry
	tracks    []session.TrackEntry
}

type startupErrorMsg struct {
	err error
}

type tracksLoadedMsg struct {
	playlistID string
	tracks     []session.TrackEntry
	err        error
}

type playbackMsg struct {
	track string
	err   error
}

type tickMsg struct{}
