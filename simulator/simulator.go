package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultAddr is where the standalone simulator listens
	DefaultAddr = "127.0.0.1:8889"
	// DefaultPageSize mirrors the Web API maximum page size
	DefaultPageSize = 50
)

// Simulator serves the subset of the Spotify Web API the client uses:
// playlist listing, playlist items, devices, playback start and token refresh.
type Simulator struct {
	listener net.Listener
	server   *http.Server
	running  bool

	stateMutex sync.RWMutex
	state      *Library
	plays      []PlayRequest
	refreshes  int
	pageSize   int
}

// Library is the simulated account content
type Library struct {
	Playlists []Playlist
	Devices   []Device
}

// Playlist is a simulated playlist
type Playlist struct {
	ID    string
	Name  string
	Items []Item
}

// Item is a playlist entry. Episodes are served as podcast episodes, not tracks.
type Item struct {
	ID      string
	Name    string
	Artists []string
	Episode bool
}

// Device is a simulated Spotify Connect device
type Device struct {
	ID     string
	Name   string
	Type   string
	Active bool
	Volume int
}

// PlayRequest records one accepted or rejected play call
type PlayRequest struct {
	DeviceID string
	URIs     []string
}

// DemoLibrary returns the content used by demo mode
func DemoLibrary() *Library {
	return &Library{
		Playlists: []Playlist{
			{
				ID:   "37i9dQZF1DX4WYpdgoIcn6",
				Name: "Chill Hits",
				Items: []Item{
					{ID: "4uLU6hMCjMI75M1A2tKUQC", Name: "Breathe", Artists: []string{"Telepopmusik"}},
					{ID: "3n3Ppam7vgaVa1iaRUc9Lp", Name: "Mr. Brightside", Artists: []string{"The Killers"}},
					{ID: "7ouMYWpwJ422jRcDASZB7P", Name: "Knights of Cydonia", Artists: []string{"Muse"}},
					{ID: "0lYBSQXN6rCTvUZvg9S0lU", Name: "Night Shift", Artists: []string{"Lucy Dacus", "boygenius"}},
				},
			},
			{
				ID:   "37i9dQZF1DXaXB8fQg7xif",
				Name: "Party Classics",
				Items: []Item{
					{ID: "2Fxmhks0bxGSBdJ92vM42m", Name: "bad guy", Artists: []string{"Billie Eilish"}},
					{ID: "5sDQ9Tlz7cGaE1uLpOhQ4v", Name: "The Daily Podcast", Episode: true},
					{ID: "6habFhsOp2NvshLv26DqMb", Name: "Despacito", Artists: []string{"Luis Fonsi", "Daddy Yankee"}},
				},
			},
			{
				ID:   "1h0CEZCm6IbFTbxThn6Xcs",
				Name: "Empty Drafts",
			},
		},
		Devices: []Device{
			{ID: "b46689a4cc3bbd5c", Name: "Living Room Speaker", Type: "Speaker", Active: true, Volume: 40},
			{ID: "a0a6c8e4f1c25bd1", Name: "Laptop", Type: "Computer", Volume: 70},
		},
	}
}

// New creates a simulator serving lib
func New(lib *Library) *Simulator {
	if lib == nil {
		lib = &Library{}
	}
	return &Simulator{
		state:    lib,
		pageSize: DefaultPageSize,
	}
}

// SetPageSize caps how many items each listing page holds
func (sim *Simulator) SetPageSize(n int) {
	sim.stateMutex.Lock()
	defer sim.stateMutex.Unlock()
	if n > 0 {
		sim.pageSize = n
	}
}

// Start begins serving on addr; use "127.0.0.1:0" for an ephemeral port
func (sim *Simulator) Start(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}

	sim.listener = listener
	sim.server = &http.Server{
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	sim.running = true

	log.WithField("addr", listener.Addr().String()).Info("Spotify simulator started")

	go func() {
		if err := sim.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Simulator server failed")
		}
	}()
	return nil
}

// Stop shuts down the simulator
func (sim *Simulator) Stop() error {
	if !sim.running {
		return nil
	}
	sim.running = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sim.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop simulator: %w", err)
	}

	log.Info("Spotify simulator stopped")
	return nil
}

// Addr returns the listening address
func (sim *Simulator) Addr() string {
	if sim.listener == nil {
		return ""
	}
	return sim.listener.Addr().String()
}

// BaseURL is the API root to hand to the client, with a trailing slash
func (sim *Simulator) BaseURL() string {
	return "http://" + sim.Addr() + "/v1/"
}

// TokenURL is the token endpoint used for refresh
func (sim *Simulator) TokenURL() string {
	return "http://" + sim.Addr() + "/api/token"
}

// Plays returns every play request received so far
func (sim *Simulator) Plays() []PlayRequest {
	sim.stateMutex.RLock()
	defer sim.stateMutex.RUnlock()
	return append([]PlayRequest(nil), sim.plays...)
}

// Refreshes returns how many refresh grants were served
func (sim *Simulator) Refreshes() int {
	sim.stateMutex.RLock()
	defer sim.stateMutex.RUnlock()
	return sim.refreshes
}

// Handler returns the HTTP routes of the simulated API
func (sim *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/me/playlists", sim.handlePlaylists)
	mux.HandleFunc("GET /v1/playlists/{id}/tracks", sim.handlePlaylistItems)
	mux.HandleFunc("GET /v1/playlists/{id}/items", sim.handlePlaylistItems)
	mux.HandleFunc("GET /v1/me/player/devices", sim.handleDevices)
	mux.HandleFunc("PUT /v1/me/player/play", sim.handlePlay)
	mux.HandleFunc("POST /api/token", sim.handleToken)
	return logRequests(mux)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Debug("Received request")
		next.ServeHTTP(w, r)
	})
}

func (sim *Simulator) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	sim.stateMutex.RLock()
	defer sim.stateMutex.RUnlock()

	items := make([]any, 0, len(sim.state.Playlists))
	for _, p := range sim.state.Playlists {
		items = append(items, map[string]any{
			"id":     p.ID,
			"name":   p.Name,
			"uri":    "spotify:playlist:" + p.ID,
			"type":   "playlist",
			"tracks": map[string]any{"total": len(p.Items)},
		})
	}
	sim.writePage(w, r, items)
}

func (sim *Simulator) handlePlaylistItems(w http.ResponseWriter, r *http.Request) {
	sim.stateMutex.RLock()
	defer sim.stateMutex.RUnlock()

	id := r.PathValue("id")
	var playlist *Playlist
	for i := range sim.state.Playlists {
		if sim.state.Playlists[i].ID == id {
			playlist = &sim.state.Playlists[i]
			break
		}
	}
	if playlist == nil {
		writeError(w, http.StatusNotFound, "Invalid playlist Id")
		return
	}

	items := make([]any, 0, len(playlist.Items))
	for _, it := range playlist.Items {
		items = append(items, map[string]any{
			"added_at": "2024-01-01T00:00:00Z",
			"is_local": false,
			"track":    itemJSON(it),
		})
	}
	sim.writePage(w, r, items)
}

func itemJSON(it Item) map[string]any {
	if it.Episode {
		return map[string]any{
			"type": "episode",
			"id":   it.ID,
			"name": it.Name,
			"uri":  "spotify:episode:" + it.ID,
		}
	}

	artists := make([]any, 0, len(it.Artists))
	for _, a := range it.Artists {
		artists = append(artists, map[string]any{"name": a, "type": "artist"})
	}
	return map[string]any{
		"type":    "track",
		"id":      it.ID,
		"name":    it.Name,
		"uri":     "spotify:track:" + it.ID,
		"artists": artists,
	}
}

func (sim *Simulator) handleDevices(w http.ResponseWriter, r *http.Request) {
	sim.stateMutex.RLock()
	defer sim.stateMutex.RUnlock()

	devices := make([]any, 0, len(sim.state.Devices))
	for _, d := range sim.state.Devices {
		devices = append(devices, map[string]any{
			"id":             d.ID,
			"is_active":      d.Active,
			"is_restricted":  false,
			"name":           d.Name,
			"type":           d.Type,
			"volume_percent": d.Volume,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (sim *Simulator) handlePlay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URIs []string `json:"uris"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Malformed json")
			return
		}
	}

	sim.stateMutex.Lock()
	defer sim.stateMutex.Unlock()

	req := PlayRequest{DeviceID: r.URL.Query().Get("device_id"), URIs: body.URIs}
	sim.plays = append(sim.plays, req)

	target := -1
	for i, d := range sim.state.Devices {
		if (req.DeviceID != "" && d.ID == req.DeviceID) || (req.DeviceID == "" && d.Active) {
			target = i
			break
		}
	}
	if target < 0 {
		if req.DeviceID != "" {
			writeError(w, http.StatusNotFound, "Device not found")
		} else {
			writeError(w, http.StatusNotFound, "Player command failed: No active device found")
		}
		return
	}

	for _, uri := range req.URIs {
		if !strings.HasPrefix(uri, "spotify:track:") {
			writeError(w, http.StatusBadRequest, "Unsupported uri kind")
			return
		}
	}

	for i := range sim.state.Devices {
		sim.state.Devices[i].Active = i == target
	}

	log.WithFields(log.Fields{
		"device": sim.state.Devices[target].Name,
		"uris":   req.URIs,
	}).Info("Playback started")
	w.WriteHeader(http.StatusNoContent)
}

func (sim *Simulator) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request")
		return
	}
	if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") == "" {
		writeOAuthError(w, "invalid_grant")
		return
	}

	sim.stateMutex.Lock()
	sim.refreshes++
	n := sim.refreshes
	sim.stateMutex.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  fmt.Sprintf("sim-access-%d", n),
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": fmt.Sprintf("sim-refresh-%d", n),
	})
}

// writePage serves one offset/limit window of items with an absolute next link
func (sim *Simulator) writePage(w http.ResponseWriter, r *http.Request, items []any) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > sim.pageSize {
		limit = sim.pageSize
	}
	if offset < 0 || offset > len(items) {
		offset = len(items)
	}
	end := min(offset+limit, len(items))

	pageURL := func(off int) string {
		q := r.URL.Query()
		q.Set("offset", strconv.Itoa(off))
		q.Set("limit", strconv.Itoa(limit))
		return "http://" + r.Host + r.URL.Path + "?" + q.Encode()
	}

	page := map[string]any{
		"href":     pageURL(offset),
		"limit":    limit,
		"offset":   offset,
		"total":    len(items),
		"items":    items[offset:end],
		"next":     nil,
		"previous": nil,
	}
	if end < len(items) {
		page["next"] = pageURL(end)
	}
	if offset > 0 {
		page["previous"] = pageURL(max(offset-limit, 0))
	}
	writeJSON(w, http.StatusOK, page)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"status": status, "message": message},
	})
}

func writeOAuthError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": code})
}
