package session

// Panel identifies one of the two navigable lists
type Panel int

const (
	PanelPlaylists Panel = iota
	PanelTracks
)

// Toggle returns the other panel
func (p Panel) Toggle() Panel {
	if p == PanelPlaylists {
		return PanelTracks
	}
	return PanelPlaylists
}

func (p Panel) String() string {
	if p == PanelTracks {
		return "tracks"
	}
	return "playlists"
}

// Direction is a cursor movement
type Direction int

const (
	Next Direction = iota
	Previous
)

// Cursor is an optional index into a list. The zero value is NoCursor.
type Cursor struct {
	index int
	set   bool
}

// NoCursor is the cursor of an empty list
var NoCursor = Cursor{}

// CursorAt returns a cursor pointing at i
func CursorAt(i int) Cursor {
	return Cursor{index: i, set: true}
}

// Index returns the index and whether the cursor is set
func (c Cursor) Index() (int, bool) {
	return c.index, c.set
}

// resetFor returns the cursor a freshly replaced list of length n starts with
func resetFor(n int) Cursor {
	if n > 0 {
		return CursorAt(0)
	}
	return NoCursor
}

// move wraps around a list of length n; empty lists keep no cursor
func (c Cursor) move(dir Direction, n int) Cursor {
	if n == 0 {
		return NoCursor
	}
	if !c.set {
		return CursorAt(0)
	}

	switch dir {
	case Previous:
		if c.index == 0 {
			return CursorAt(n - 1)
		}
		return CursorAt(c.index - 1)
	default:
		if c.index >= n-1 {
			return CursorAt(0)
		}
		return CursorAt(c.index + 1)
	}
}
