package session

import (
	"context"
	"errors"
	"testing"

	"github.com/zmb3/spotify/v2"
)

type fakeService struct {
	playlists    []spotify.SimplePlaylist
	items        map[spotify.ID][]spotify.PlaylistItem
	devices      []spotify.PlayerDevice
	playlistsErr error
	itemsErr     error
	devicesErr   error
	playErr      error

	itemCalls []spotify.ID
	plays     []*spotify.PlayOptions
}

func (f *fakeService) Playlists(ctx context.Context) ([]spotify.SimplePlaylist, error) {
	return f.playlists, f.playlistsErr
}

func (f *fakeService) PlaylistItems(ctx context.Context, id spotify.ID) ([]spotify.PlaylistItem, error) {
	f.itemCalls = append(f.itemCalls, id)
	if f.itemsErr != nil {
		return nil, f.itemsErr
	}
	return f.items[id], nil
}

func (f *fakeService) Devices(ctx context.Context) ([]spotify.PlayerDevice, error) {
	return f.devices, f.devicesErr
}

func (f *fakeService) Play(ctx context.Context, opts *spotify.PlayOptions) error {
	f.plays = append(f.plays, opts)
	return f.playErr
}

func playlist(id, name string) spotify.SimplePlaylist {
	var p spotify.SimplePlaylist
	p.ID = spotify.ID(id)
	p.Name = name
	p.URI = spotify.URI("spotify:playlist:" + id)
	return p
}

func trackItem(id, name string, artists ...string) spotify.PlaylistItem {
	track := &spotify.FullTrack{}
	track.ID = spotify.ID(id)
	track.Name = name
	track.URI = spotify.URI("spotify:track:" + id)
	for _, a := range artists {
		track.Artists = append(track.Artists, spotify.SimpleArtist{Name: a})
	}

	var item spotify.PlaylistItem
	item.Track.Track = track
	return item
}

func episodeItem() spotify.PlaylistItem {
	// Track stays nil for episodes
	return spotify.PlaylistItem{}
}

func newFixture() *fakeService {
	return &fakeService{
		playlists: []spotify.SimplePlaylist{
			playlist("pl1", "Morning"),
			playlist("pl2", "Evening"),
			playlist("pl3", "Empty"),
		},
		items: map[spotify.ID][]spotify.PlaylistItem{
			"pl1": {
				trackItem("t1", "Song A", "Artist 1"),
				episodeItem(),
				trackItem("t2", "Song B", "Artist 1", "Artist 2"),
			},
			"pl2": {
				trackItem("t3", "Song C", "Artist 3"),
			},
		},
		devices: []spotify.PlayerDevice{
			{ID: "dev1", Name: "Kitchen"},
			{ID: "dev2", Name: "Office"},
		},
	}
}

func TestFetchPlaylists(t *testing.T) {
	svc := newFixture()
	s := New(svc)

	if err := s.FetchPlaylists(context.Background()); err != nil {
		t.Fatalf("FetchPlaylists: %v", err)
	}

	if len(s.Playlists()) != 3 {
		t.Fatalf("got %d playlists, want 3", len(s.Playlists()))
	}
	if got := s.Playlists()[0]; got.Name != "Morning" || got.ID != "spotify:playlist:pl1" {
		t.Errorf("first playlist = %+v", got)
	}
	if c := s.Cursor(PanelPlaylists); c != CursorAt(0) {
		t.Errorf("playlist cursor = %+v, want 0", c)
	}
	id, ok := s.SelectedPlaylistID()
	if !ok || id != "spotify:playlist:pl1" {
		t.Errorf("selected = %q, %v", id, ok)
	}
}

func TestFetchPlaylistsEmpty(t *testing.T) {
	s := New(&fakeService{})

	if err := s.FetchPlaylists(context.Background()); err != nil {
		t.Fatalf("FetchPlaylists: %v", err)
	}
	if c := s.Cursor(PanelPlaylists); c != NoCursor {
		t.Errorf("cursor = %+v, want none", c)
	}
	if _, ok := s.SelectedPlaylistID(); ok {
		t.Error("no playlist should be selected")
	}

	// Fetching tracks without a selection is a no-op
	if err := s.FetchTracksForSelected(context.Background()); err != nil {
		t.Errorf("FetchTracksForSelected: %v", err)
	}
}

func TestFetchPlaylistsError(t *testing.T) {
	upstream := errors.New("boom")
	s := New(&fakeService{playlistsErr: upstream})

	err := s.FetchPlaylists(context.Background())
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("error = %v, want ErrFetch", err)
	}
	if !errors.Is(err, upstream) {
		t.Errorf("error should wrap the upstream failure: %v", err)
	}
}

func TestFetchTracksSkipsEpisodes(t *testing.T) {
	svc := newFixture()
	s := New(svc)
	ctx := context.Background()

	if err := s.FetchPlaylists(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.FetchTracksForSelected(ctx); err != nil {
		t.Fatal(err)
	}

	tracks := s.Tracks()
	want := []TrackEntry{
		{Name: "Song A - Artist 1", URI: "spotify:track:t1"},
		{Name: "Song B - Artist 1, Artist 2", URI: "spotify:track:t2"},
	}
	if len(tracks) != len(want) {
		t.Fatalf("got %d tracks, want %d: %+v", len(tracks), len(want), tracks)
	}
	for i := range want {
		if tracks[i] != want[i] {
			t.Errorf("track %d = %+v, want %+v", i, tracks[i], want[i])
		}
	}
	if c := s.Cursor(PanelTracks); c != CursorAt(0) {
		t.Errorf("track cursor = %+v, want 0", c)
	}
	if len(svc.itemCalls) != 1 || svc.itemCalls[0] != "pl1" {
		t.Errorf("item calls = %v, want [pl1]", svc.itemCalls)
	}
}

func TestSelectPlaylistRefetchesOnce(t *testing.T) {
	svc := newFixture()
	s := New(svc)
	ctx := context.Background()

	if err := s.FetchPlaylists(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectPlaylist(ctx, "spotify:playlist:pl2"); err != nil {
		t.Fatal(err)
	}

	if len(svc.itemCalls) != 1 || svc.itemCalls[0] != "pl2" {
		t.Fatalf("item calls = %v, want exactly [pl2]", svc.itemCalls)
	}
	if len(s.Tracks()) != 1 || s.Tracks()[0].URI != "spotify:track:t3" {
		t.Errorf("tracks = %+v", s.Tracks())
	}

	// Selecting the same playlist again still reloads it
	if err := s.SelectPlaylist(ctx, "spotify:playlist:pl2"); err != nil {
		t.Fatal(err)
	}
	if len(svc.itemCalls) != 2 {
		t.Errorf("item calls = %v, want 2", svc.itemCalls)
	}
}

func TestSelectEmptyPlaylistResetsTrackCursor(t *testing.T) {
	svc := newFixture()
	s := New(svc)
	ctx := context.Background()

	if err := s.SelectPlaylist(ctx, "spotify:playlist:pl1"); err != nil {
		t.Fatal(err)
	}
	s.MoveCursor(PanelTracks, Next)
	if c := s.Cursor(PanelTracks); c != CursorAt(1) {
		t.Fatalf("track cursor = %+v, want 1", c)
	}

	if err := s.SelectPlaylist(ctx, "spotify:playlist:pl3"); err != nil {
		t.Fatal(err)
	}
	if len(s.Tracks()) != 0 {
		t.Errorf("tracks = %+v, want none", s.Tracks())
	}
	if c := s.Cursor(PanelTracks); c != NoCursor {
		t.Errorf("track cursor = %+v, want none", c)
	}
	if _, ok := s.TrackAtCursor(); ok {
		t.Error("TrackAtCursor should report nothing")
	}
}

func TestSelectMalformedPlaylist(t *testing.T) {
	svc := newFixture()
	s := New(svc)
	ctx := context.Background()

	if err := s.SelectPlaylist(ctx, "spotify:playlist:pl1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectPlaylist(ctx, "spotify:playlist:"); err != nil {
		t.Fatalf("malformed id should not be an error: %v", err)
	}

	if len(svc.itemCalls) != 1 {
		t.Errorf("service called for malformed id: %v", svc.itemCalls)
	}
	if len(s.Tracks()) != 0 || s.Cursor(PanelTracks) != NoCursor {
		t.Errorf("tracks should be cleared, got %+v", s.Tracks())
	}
}

func TestFetchTracksError(t *testing.T) {
	svc := newFixture()
	svc.itemsErr = errors.New("unavailable")
	s := New(svc)

	err := s.SelectPlaylist(context.Background(), "spotify:playlist:pl1")
	if !errors.Is(err, ErrFetch) {
		t.Errorf("error = %v, want ErrFetch", err)
	}
}

func TestMoveCursorWraps(t *testing.T) {
	s := New(newFixture())
	if err := s.FetchPlaylists(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.MoveCursor(PanelPlaylists, Previous)
	if p, _ := s.PlaylistAtCursor(); p.Name != "Empty" {
		t.Errorf("previous from first = %q, want Empty", p.Name)
	}
	s.MoveCursor(PanelPlaylists, Next)
	if p, _ := s.PlaylistAtCursor(); p.Name != "Morning" {
		t.Errorf("next from last = %q, want Morning", p.Name)
	}

	// Moving does not change the selection
	if id, _ := s.SelectedPlaylistID(); id != "spotify:playlist:pl1" {
		t.Errorf("selection changed to %q", id)
	}

	// Tracks panel is still empty
	s.MoveCursor(PanelTracks, Next)
	if c := s.Cursor(PanelTracks); c != NoCursor {
		t.Errorf("empty track cursor = %+v", c)
	}
}

func TestFetchDevices(t *testing.T) {
	s := New(newFixture())
	if err := s.FetchDevices(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(s.Devices()) != 2 {
		t.Fatalf("got %d devices", len(s.Devices()))
	}
	d := s.SelectedDevice()
	if d == nil || d.ID != "dev1" || d.Name != "Kitchen" {
		t.Errorf("selected device = %+v, want dev1", d)
	}
}

func TestFetchDevicesNone(t *testing.T) {
	s := New(&fakeService{})
	if err := s.FetchDevices(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.SelectedDevice() != nil {
		t.Errorf("selected device = %+v, want nil", s.SelectedDevice())
	}
}

func TestPlaySelectedTrack(t *testing.T) {
	svc := newFixture()
	s := New(svc)
	ctx := context.Background()

	if err := s.FetchDevices(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.PlaySelectedTrack(ctx, "spotify:track:abc999"); err != nil {
		t.Fatalf("PlaySelectedTrack: %v", err)
	}

	if len(svc.plays) != 1 {
		t.Fatalf("got %d play requests", len(svc.plays))
	}
	opts := svc.plays[0]
	if len(opts.URIs) != 1 || opts.URIs[0] != "spotify:track:abc999" {
		t.Errorf("URIs = %v", opts.URIs)
	}
	if opts.DeviceID == nil || *opts.DeviceID != "dev1" {
		t.Errorf("DeviceID = %v, want dev1", opts.DeviceID)
	}
}

func TestPlayWithoutDevice(t *testing.T) {
	svc := &fakeService{playErr: errors.New("NO_ACTIVE_DEVICE")}
	s := New(svc)
	ctx := context.Background()

	if err := s.FetchDevices(ctx); err != nil {
		t.Fatal(err)
	}
	err := s.PlaySelectedTrack(ctx, "spotify:track:abc999")
	if !errors.Is(err, ErrPlayback) {
		t.Fatalf("error = %v, want ErrPlayback", err)
	}

	if len(svc.plays) != 1 {
		t.Fatalf("got %d play requests", len(svc.plays))
	}
	if svc.plays[0].DeviceID != nil {
		t.Errorf("DeviceID = %v, want none", *svc.plays[0].DeviceID)
	}
}

func TestPlayMalformedURI(t *testing.T) {
	svc := newFixture()
	s := New(svc)

	err := s.PlayTrack(context.Background(), "spotify:track:", nil)
	if !errors.Is(err, ErrPlayback) {
		t.Errorf("error = %v, want ErrPlayback", err)
	}
	if len(svc.plays) != 0 {
		t.Errorf("malformed URI reached the service")
	}
}
