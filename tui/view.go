package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/galamiram/spottui/session"
	"github.com/mattn/go-runewidth"
)

// Frame is everything needed to draw one screen
type Frame struct {
	Width  int
	Height int
	Focus  session.Panel

	Playlists      []string
	PlaylistCursor session.Cursor
	Tracks         []string
	TrackCursor    session.Cursor

	Message     string
	MessageType MessageType
	Busy        bool
	Spinner     string
	Help        string
}

const (
	footerLines    = 2
	minPanelWidth  = 12
	minPanelHeight = 4
	cursorMarker   = "> "
	ellipsis       = "…"
)

var (
	primaryColor = lipgloss.Color("39")  // Blue
	successColor = lipgloss.Color("46")  // Green
	errorColor   = lipgloss.Color("196") // Red
	warningColor = lipgloss.Color("226") // Yellow
	mutedColor   = lipgloss.Color("240") // Gray

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor)

	focusedPanelStyle = panelStyle.
				BorderForeground(warningColor)

	titleStyle        = lipgloss.NewStyle().Foreground(primaryColor)
	focusedTitleStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	cursorRowStyle    = lipgloss.NewStyle().Bold(true)

	infoMessageStyle    = lipgloss.NewStyle().Foreground(primaryColor)
	successMessageStyle = lipgloss.NewStyle().Foreground(successColor)
	warningMessageStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorMessageStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)

// Render draws the two panels side by side with the status and help lines below
func Render(f Frame) string {
	panelHeight := max(f.Height-footerLines, minPanelHeight)
	leftWidth := max(f.Width*30/100, minPanelWidth)
	rightWidth := max(f.Width-leftWidth, minPanelWidth)

	left := renderPanel("Playlists", f.Playlists, f.PlaylistCursor,
		f.Focus == session.PanelPlaylists, leftWidth, panelHeight)
	right := renderPanel("Tracks", f.Tracks, f.TrackCursor,
		f.Focus == session.PanelTracks, rightWidth, panelHeight)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		renderMessage(f),
		f.Help,
	)
}

// renderPanel draws a bordered list of width x height cells, border included
func renderPanel(title string, rows []string, cursor session.Cursor, focused bool, width, height int) string {
	innerWidth := width - 2
	visible := height - 3 // borders and title

	style, tStyle := panelStyle, titleStyle
	if focused {
		style, tStyle = focusedPanelStyle, focusedTitleStyle
	}

	lines := make([]string, 0, visible+1)
	lines = append(lines, tStyle.Render(runewidth.Truncate(title, innerWidth, ellipsis)))

	index, hasCursor := cursor.Index()
	start := scrollStart(index, hasCursor, len(rows), visible)
	for i := start; i < len(rows) && i < start+visible; i++ {
		text := runewidth.Truncate(rows[i], innerWidth-runewidth.StringWidth(cursorMarker), ellipsis)
		if hasCursor && i == index {
			lines = append(lines, cursorRowStyle.Render(cursorMarker+text))
		} else {
			lines = append(lines, strings.Repeat(" ", runewidth.StringWidth(cursorMarker))+text)
		}
	}

	return style.
		Width(innerWidth).
		Height(height - 2).
		Render(strings.Join(lines, "\n"))
}

// scrollStart returns the first row to draw so the cursor stays in view
func scrollStart(index int, hasCursor bool, n, visible int) int {
	if !hasCursor || visible <= 0 || n <= visible || index < visible {
		return 0
	}
	return min(index-visible+1, n-visible)
}

func renderMessage(f Frame) string {
	var style lipgloss.Style
	var icon string

	switch f.MessageType {
	case MessageSuccess:
		style = successMessageStyle
		icon = "✓"
	case MessageError:
		style = errorMessageStyle
		icon = "✗"
	case MessageWarning:
		style = warningMessageStyle
		icon = "⚠"
	default:
		style = infoMessageStyle
		icon = "ℹ"
	}
	if f.Busy && f.Spinner != "" {
		icon = f.Spinner
	}

	text := fmt.Sprintf("%s %s", icon, f.Message)
	return style.Render(runewidth.Truncate(text, max(f.Width, 1), ellipsis))
}
