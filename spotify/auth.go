package spotify

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// ErrAuth wraps every failure of the authorization flow
var ErrAuth = errors.New("authentication failed")

const (
	callbackPath    = "/callback"
	shutdownTimeout = 5 * time.Second

	successBody = "Authentication successful! You can close this window."
	failureBody = "Failed to get token"
)

// Authorizer builds authorization URLs and exchanges codes for tokens.
// *spotifyauth.Authenticator satisfies it.
type Authorizer interface {
	AuthURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// authResult is the single value a handshake delivers
type authResult struct {
	token *oauth2.Token
	err   error
}

// Handshake runs one loopback authorization: it serves the redirect endpoint,
// exchanges the first valid code and reports the outcome exactly once.
type Handshake struct {
	mu       sync.Mutex
	auth     Authorizer
	addr     string
	listener net.Listener
	handled  bool

	state    string
	verifier string
	openURL  func(string) error

	result chan authResult
	once   sync.Once
}

// NewHandshake prepares a handshake listening on addr
func NewHandshake(auth Authorizer, addr string) *Handshake {
	return &Handshake{
		auth:     auth,
		addr:     addr,
		state:    uuid.NewString(),
		verifier: generateCodeVerifier(),
		openURL:  openBrowser,
		result:   make(chan authResult, 1),
	}
}

// Addr returns the bound listener address, or the configured one before Run binds
func (h *Handshake) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// State returns the anti-forgery value the callback must echo
func (h *Handshake) State() string {
	return h.state
}

// AuthURL returns the authorization URL including the PKCE challenge
func (h *Handshake) AuthURL() string {
	return h.auth.AuthURL(h.state,
		oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(h.verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Run binds the callback listener, opens the browser and waits for the outcome.
// The listener is shut down before Run returns.
func (h *Handshake) Run(ctx context.Context) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start callback server: %w", ErrAuth, err)
	}
	h.mu.Lock()
	h.listener = listener
	h.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, h.handleCallback)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Callback server error")
			h.deliver(authResult{err: fmt.Errorf("%w: callback server error: %w", ErrAuth, err)})
		}
	}()
	log.WithField("address", listener.Addr().String()).Info("Callback server started")

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Debug("Error during callback server shutdown")
		} else {
			log.Debug("Callback server stopped")
		}
	}()

	authURL := h.AuthURL()
	log.WithField("url", authURL).Info("Opening browser for Spotify authentication")
	if err := h.openURL(authURL); err != nil {
		return nil, fmt.Errorf("%w: failed to open browser: %w", ErrAuth, err)
	}

	select {
	case res := <-h.result:
		if res.err != nil {
			return nil, res.err
		}
		log.Info("Authentication completed successfully")
		return res.token, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrAuth, ctx.Err())
	}
}

func (h *Handshake) deliver(res authResult) {
	h.once.Do(func() {
		h.result <- res
	})
}

// handleCallback handles the OAuth redirect from Spotify
func (h *Handshake) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	log.WithField("url", r.URL.Path).Debug("Received callback")

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.handled {
		http.Error(w, "Callback already processed", http.StatusConflict)
		return
	}

	if errParam := query.Get("error"); errParam != "" {
		h.handled = true
		log.WithField("error", errParam).Warn("Authorization denied")
		h.deliver(authResult{err: fmt.Errorf("%w: authorization denied: %s", ErrAuth, errParam)})
		http.Error(w, failureBody, http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}
	if query.Get("state") != h.state {
		log.Warn("Ignoring callback with unexpected state")
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	h.handled = true
	token, err := h.auth.Exchange(r.Context(), code, oauth2.SetAuthURLParam("code_verifier", h.verifier))
	if err != nil {
		log.WithError(err).Error("Token exchange failed")
		h.deliver(authResult{err: fmt.Errorf("%w: token exchange: %w", ErrAuth, err)})
		http.Error(w, failureBody, http.StatusInternalServerError)
		return
	}
	if token.RefreshToken == "" {
		h.deliver(authResult{err: fmt.Errorf("%w: no refresh token granted", ErrAuth)})
		http.Error(w, failureBody, http.StatusInternalServerError)
		return
	}

	h.deliver(authResult{token: token})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successBody)
}

// Authenticate runs the full authorization code flow for cfg
func Authenticate(ctx context.Context, cfg Config) (*oauth2.Token, error) {
	redirect, err := url.Parse(cfg.redirectURL())
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("%w: invalid redirect URL %q", ErrAuth, cfg.redirectURL())
	}

	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(cfg.redirectURL()),
		spotifyauth.WithScopes(Scopes...),
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)

	return NewHandshake(auth, redirect.Host).Run(ctx)
}

// generateCodeVerifier creates a cryptographically random code verifier for PKCE
func generateCodeVerifier() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes)
}

// generateCodeChallenge creates a code challenge from the verifier using SHA256
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
}

// openBrowser opens the default browser with the given URL
func openBrowser(target string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, target)

	return exec.Command(cmd, args...).Start()
}
