// Package session holds the browsing state of the terminal client: the playlist and
// track collections, their cursors, and the selected playlist and device.
//
// A Session is owned by a single goroutine. The Load* methods only read from the
// remote service and may run elsewhere; every method that changes state must be
// called by the owner.
package session

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zmb3/spotify/v2"
)

// Service is the part of the remote API the session depends on. Listings are
// returned fully drained, in service order.
type Service interface {
	Playlists(ctx context.Context) ([]spotify.SimplePlaylist, error)
	PlaylistItems(ctx context.Context, id spotify.ID) ([]spotify.PlaylistItem, error)
	Devices(ctx context.Context) ([]spotify.PlayerDevice, error)
	Play(ctx context.Context, opts *spotify.PlayOptions) error
}

// PlaylistEntry is one row of the playlist panel
type PlaylistEntry struct {
	Name string
	ID   string
}

// TrackEntry is one row of the track panel
type TrackEntry struct {
	Name string
	URI  string
}

// DeviceEntry is a Spotify Connect device
type DeviceEntry struct {
	ID   string
	Name string
}

// Session is the browsing state
type Session struct {
	service Service

	playlists      []PlaylistEntry
	tracks         []TrackEntry
	devices        []DeviceEntry
	playlistCursor Cursor
	trackCursor    Cursor
	selectedID     string
	hasSelected    bool
	device         *DeviceEntry
}

// New creates an empty session backed by service
func New(service Service) *Session {
	return &Session{service: service}
}

// Playlists returns the playlist collection
func (s *Session) Playlists() []PlaylistEntry { return s.playlists }

// Tracks returns the track collection of the selected playlist
func (s *Session) Tracks() []TrackEntry { return s.tracks }

// Devices returns the devices fetched at startup
func (s *Session) Devices() []DeviceEntry { return s.devices }

// Cursor returns the cursor of the given panel
func (s *Session) Cursor(p Panel) Cursor {
	if p == PanelTracks {
		return s.trackCursor
	}
	return s.playlistCursor
}

// SelectedPlaylistID returns the id of the playlist whose tracks are loaded
func (s *Session) SelectedPlaylistID() (string, bool) {
	return s.selectedID, s.hasSelected
}

// SelectedDevice returns the playback target, or nil to let the service choose
func (s *Session) SelectedDevice() *DeviceEntry {
	return s.device
}

// PlaylistAtCursor returns the playlist under the playlist cursor
func (s *Session) PlaylistAtCursor() (PlaylistEntry, bool) {
	i, ok := s.playlistCursor.Index()
	if !ok {
		return PlaylistEntry{}, false
	}
	return s.playlists[i], true
}

// TrackAtCursor returns the track under the track cursor
func (s *Session) TrackAtCursor() (TrackEntry, bool) {
	i, ok := s.trackCursor.Index()
	if !ok {
		return TrackEntry{}, false
	}
	return s.tracks[i], true
}

// MoveCursor moves the cursor of panel p, wrapping at both ends
func (s *Session) MoveCursor(p Panel, dir Direction) {
	if p == PanelTracks {
		s.trackCursor = s.trackCursor.move(dir, len(s.tracks))
		return
	}
	s.playlistCursor = s.playlistCursor.move(dir, len(s.playlists))
}

// FetchPlaylists replaces the playlist collection and selects its first entry
func (s *Session) FetchPlaylists(ctx context.Context) error {
	playlists, err := s.LoadPlaylists(ctx)
	if err != nil {
		return err
	}
	s.ReplacePlaylists(playlists)
	return nil
}

// LoadPlaylists lists the user's playlists without touching the session
func (s *Session) LoadPlaylists(ctx context.Context) ([]PlaylistEntry, error) {
	fetched, err := s.service.Playlists(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: playlists: %w", ErrFetch, err)
	}

	playlists := make([]PlaylistEntry, 0, len(fetched))
	for _, p := range fetched {
		id := string(p.URI)
		if id == "" {
			id = string(p.ID)
		}
		playlists = append(playlists, PlaylistEntry{Name: p.Name, ID: id})
	}

	log.WithField("count", len(playlists)).Debug("Loaded playlists")
	return playlists, nil
}

// ReplacePlaylists installs a new playlist collection
func (s *Session) ReplacePlaylists(playlists []PlaylistEntry) {
	s.playlists = playlists
	s.playlistCursor = resetFor(len(playlists))
	if len(playlists) > 0 {
		s.selectedID, s.hasSelected = playlists[0].ID, true
	} else {
		s.selectedID, s.hasSelected = "", false
	}
}

// FetchDevices replaces the device list and targets the first device, if any
func (s *Session) FetchDevices(ctx context.Context) error {
	devices, err := s.LoadDevices(ctx)
	if err != nil {
		return err
	}
	s.ReplaceDevices(devices)
	return nil
}

// LoadDevices lists the available devices without touching the session
func (s *Session) LoadDevices(ctx context.Context) ([]DeviceEntry, error) {
	fetched, err := s.service.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: devices: %w", ErrFetch, err)
	}

	devices := make([]DeviceEntry, 0, len(fetched))
	for _, d := range fetched {
		devices = append(devices, DeviceEntry{ID: string(d.ID), Name: d.Name})
	}
	return devices, nil
}

// ReplaceDevices installs a new device list
func (s *Session) ReplaceDevices(devices []DeviceEntry) {
	s.devices = devices
	s.device = nil
	if len(devices) > 0 {
		first := devices[0]
		s.device = &first
		log.WithField("device", first.Name).Info("Selected device")
	} else {
		log.Info("No active devices found")
	}
}

// SelectPlaylist makes id the selected playlist and reloads its tracks
func (s *Session) SelectPlaylist(ctx context.Context, id string) error {
	s.SetSelectedPlaylist(id)
	return s.FetchTracksForSelected(ctx)
}

// SetSelectedPlaylist changes the selected playlist without fetching
func (s *Session) SetSelectedPlaylist(id string) {
	s.selectedID, s.hasSelected = id, true
}

// FetchTracksForSelected reloads the tracks of the selected playlist. A selected id
// that holds no usable catalog id leaves the track list empty and is not an error.
func (s *Session) FetchTracksForSelected(ctx context.Context) error {
	id, ok := s.PrepareTrackFetch()
	if !ok {
		return nil
	}

	tracks, err := s.LoadTracks(ctx, id)
	if err != nil {
		return err
	}
	if tracks == nil {
		return nil
	}
	s.ReplaceTracks(tracks)
	return nil
}

// PrepareTrackFetch clears the track list ahead of a reload and returns the selected
// playlist id. It reports false, changing nothing, when no playlist is selected.
func (s *Session) PrepareTrackFetch() (string, bool) {
	if !s.hasSelected {
		return "", false
	}
	s.tracks = nil
	s.trackCursor = NoCursor
	return s.selectedID, true
}

// LoadTracks lists the playable tracks of playlist id without touching the session.
// A malformed id is logged and yields nil, nil.
func (s *Session) LoadTracks(ctx context.Context, id string) ([]TrackEntry, error) {
	catalogID, err := CatalogID(id)
	if err != nil {
		log.WithError(err).WithField("playlist", id).Warn("Invalid playlist ID for fetching tracks")
		return nil, nil
	}

	items, err := s.service.PlaylistItems(ctx, spotify.ID(catalogID))
	if err != nil {
		return nil, fmt.Errorf("%w: playlist %s: %w", ErrFetch, catalogID, err)
	}

	tracks := make([]TrackEntry, 0, len(items))
	for _, item := range items {
		if entry, ok := trackEntry(item); ok {
			tracks = append(tracks, entry)
		}
	}

	log.WithFields(log.Fields{
		"playlist": catalogID,
		"items":    len(items),
		"tracks":   len(tracks),
	}).Debug("Loaded playlist tracks")
	return tracks, nil
}

// ReplaceTracks installs a new track collection
func (s *Session) ReplaceTracks(tracks []TrackEntry) {
	s.tracks = tracks
	s.trackCursor = resetFor(len(tracks))
}

// PlaySelectedTrack starts playback of uri on the selected device
func (s *Session) PlaySelectedTrack(ctx context.Context, uri string) error {
	return s.PlayTrack(ctx, uri, s.device)
}

// PlayTrack starts playback of uri on device, or on the service default when nil
func (s *Session) PlayTrack(ctx context.Context, uri string, device *DeviceEntry) error {
	id, err := CatalogID(uri)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlayback, err)
	}

	opts := &spotify.PlayOptions{
		URIs: []spotify.URI{spotify.URI(TrackURI(id))},
	}
	if device != nil {
		deviceID := spotify.ID(device.ID)
		opts.DeviceID = &deviceID
	}

	if err := s.service.Play(ctx, opts); err != nil {
		return fmt.Errorf("%w: %w", ErrPlayback, err)
	}

	fields := log.Fields{"track": id}
	if device != nil {
		fields["device"] = device.Name
	}
	log.WithFields(fields).Info("Started playback")
	return nil
}

// trackEntry converts a playlist item; episodes and local files have no entry
func trackEntry(item spotify.PlaylistItem) (TrackEntry, bool) {
	track := item.Track.Track
	if track == nil {
		return TrackEntry{}, false
	}

	if track.ID == "" {
		return TrackEntry{}, false
	}

	artists := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		artists = append(artists, a.Name)
	}

	return TrackEntry{
		Name: fmt.Sprintf("%s - %s", track.Name, strings.Join(artists, ", ")),
		URI:  TrackURI(string(track.ID)),
	}, true
}
