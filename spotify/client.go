package spotify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/galamiram/spottui/tokenstore"
	log "github.com/sirupsen/logrus"
	spotifyapi "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const (
	// DefaultRedirectURL is the loopback callback registered with the Spotify app
	DefaultRedirectURL = "http://127.0.0.1:8888/callback"

	authorizeURL = "https://accounts.spotify.com/authorize"
	tokenURL     = "https://accounts.spotify.com/api/token"

	pageLimit = 50
)

// Scopes requested during authorization
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadPlaybackState,
}

// Config holds the application credentials and endpoints
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // defaults to DefaultRedirectURL
	TokenURL     string // defaults to the Spotify accounts service
	APIURL       string // defaults to the public Web API; must end in "/"
}

func (c Config) redirectURL() string {
	if c.RedirectURL == "" {
		return DefaultRedirectURL
	}
	return c.RedirectURL
}

func (c Config) oauth2Config() *oauth2.Config {
	endpoint := oauth2.Endpoint{
		AuthURL:   authorizeURL,
		TokenURL:  tokenURL,
		AuthStyle: oauth2.AuthStyleInHeader,
	}
	if c.TokenURL != "" {
		endpoint.TokenURL = c.TokenURL
	}

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.redirectURL(),
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

// Client handles Spotify API interactions
type Client struct {
	api *spotifyapi.Client
}

// NewClient creates an authenticated client. The access token is refreshed on
// expiry and every new token pair is handed to onRefresh.
func NewClient(ctx context.Context, cfg Config, token *oauth2.Token, onRefresh func(tokenstore.Tokens)) *Client {
	src := &persistingSource{
		base:      cfg.oauth2Config().TokenSource(ctx, token),
		last:      token.AccessToken,
		onRefresh: onRefresh,
	}
	return NewClientWithHTTP(oauth2.NewClient(ctx, src), cfg.APIURL)
}

// NewClientWithHTTP creates a client on top of an already authorized HTTP client.
// An empty baseURL selects the public Web API.
func NewClientWithHTTP(httpClient *http.Client, baseURL string) *Client {
	var opts []spotifyapi.ClientOption
	if baseURL != "" {
		opts = append(opts, spotifyapi.WithBaseURL(baseURL))
	}
	return &Client{api: spotifyapi.New(httpClient, opts...)}
}

// Playlists returns all of the current user's playlists
func (c *Client) Playlists(ctx context.Context) ([]spotifyapi.SimplePlaylist, error) {
	var all []spotifyapi.SimplePlaylist
	offset := 0

	for {
		page, err := c.api.CurrentUsersPlaylists(ctx, spotifyapi.Limit(pageLimit), spotifyapi.Offset(offset))
		if err != nil {
			return nil, err
		}

		all = append(all, page.Playlists...)

		if len(page.Playlists) == 0 || len(all) >= int(page.Total) {
			break
		}
		offset += len(page.Playlists)
	}

	log.WithField("count", len(all)).Debug("Fetched playlists")
	return all, nil
}

// PlaylistItems returns every item of a playlist, tracks and episodes alike
func (c *Client) PlaylistItems(ctx context.Context, id spotifyapi.ID) ([]spotifyapi.PlaylistItem, error) {
	var all []spotifyapi.PlaylistItem
	offset := 0

	for {
		page, err := c.api.GetPlaylistItems(ctx, id, spotifyapi.Limit(pageLimit), spotifyapi.Offset(offset))
		if err != nil {
			return nil, err
		}

		all = append(all, page.Items...)

		if len(page.Items) == 0 || len(all) >= int(page.Total) {
			break
		}
		offset += len(page.Items)
	}

	log.WithFields(log.Fields{
		"playlist": id,
		"count":    len(all),
	}).Debug("Fetched playlist items")
	return all, nil
}

// Devices returns the available Spotify Connect devices
func (c *Client) Devices(ctx context.Context) ([]spotifyapi.PlayerDevice, error) {
	devices, err := c.api.PlayerDevices(ctx)
	if err != nil {
		return nil, err
	}

	for _, device := range devices {
		log.WithFields(log.Fields{
			"id":     device.ID,
			"name":   device.Name,
			"type":   device.Type,
			"active": device.Active,
		}).Debug("Found device")
	}
	return devices, nil
}

// Play starts playback with the given options
func (c *Client) Play(ctx context.Context, opts *spotifyapi.PlayOptions) error {
	return c.api.PlayOpt(ctx, opts)
}

// Refresh exchanges the stored refresh token for a fresh token pair
func Refresh(ctx context.Context, cfg Config, tokens tokenstore.Tokens) (*oauth2.Token, error) {
	stale := &oauth2.Token{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Minute),
	}

	token, err := cfg.oauth2Config().TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, err
	}

	log.WithField("expiry", token.Expiry).Debug("Refreshed access token")
	return token, nil
}

// TokensFrom extracts the persisted token pair
func TokensFrom(token *oauth2.Token) tokenstore.Tokens {
	return tokenstore.Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
}

// persistingSource reports every newly minted token
type persistingSource struct {
	mu        sync.Mutex
	base      oauth2.TokenSource
	last      string
	onRefresh func(tokenstore.Tokens)
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		log.Debug("Access token refreshed")
		if s.onRefresh != nil {
			s.onRefresh(TokensFrom(token))
		}
	}
	return token, nil
}
