/*
Copyright © 2020 Gal Amiram <galamiram1@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/galamiram/spottui/simulator"
	"github.com/galamiram/spottui/spotify"
	"github.com/galamiram/spottui/tokenstore"
)

// ErrStartup is returned when the client cannot be configured, authorized or started
var ErrStartup = errors.New("startup failed")

const (
	defaultAuthTimeout = 5 * time.Minute
	apiTimeout         = 15 * time.Second
)

var cfgFile string
var debug bool
var demoMode bool
var logToFile bool

// Overridable in tests
var (
	refreshToken = spotify.Refresh
	authenticate = spotify.Authenticate
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spottui",
	Short: "Terminal client for Spotify playlists",
	Long: `Browse your Spotify playlists in the terminal and start playback on a
Spotify Connect device.

The first run opens your browser to authorize the application; the credential
is stored and refreshed on later runs.

Configuration:
  CLIENT_ID / CLIENT_SECRET   Spotify application credentials, read from the
                              environment, a .env file in the working directory
                              or ~/.spottui.yaml (client_id, client_secret)
  AUTH_TIMEOUT                How long to wait for the browser callback (default 5m)

Keyboard shortcuts:
  q/Ctrl+C  - Quit
  Tab       - Switch between playlists and tracks
  ↑/↓       - Move the cursor
  Enter     - Open playlist / play track`,
	Example: `  spottui                 # Launch the TUI
  spottui --demo          # Launch against a built-in fake library
  spottui --log-to-file   # Keep a log in ~/.spottui_logs/spottui.log`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.spottui.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "enable demo mode (fake Spotify library, no account needed)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "enable logging to file")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	log.Debug("Initializing configuration")

	if cfgFile != "" {
		log.WithField("configFile", cfgFile).Debug("Using config file from flag")
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.SetConfigType("yaml")
		viper.AddConfigPath(home)
		viper.SetConfigName(".spottui")
	}

	viper.SetDefault("auth_timeout", defaultAuthTimeout)

	// CLIENT_ID, CLIENT_SECRET, AUTH_TIMEOUT, API_URL
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.WithField("configFile", viper.ConfigFileUsed()).Debug("Successfully loaded config file")
	} else {
		log.WithError(err).Debug("No config file found or failed to read (using defaults)")
	}

	loadDotEnv(".env")

	log.Debug("Configuration initialization completed")
}

// loadDotEnv installs the entries of a dotenv file as defaults, below the real
// environment and the config file
func loadDotEnv(path string) {
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")

	if err := env.ReadInConfig(); err != nil {
		log.WithError(err).Debug("No .env file loaded")
		return
	}

	for _, key := range env.AllKeys() {
		viper.SetDefault(key, env.Get(key))
	}
	log.WithFields(log.Fields{
		"file": path,
		"keys": len(env.AllKeys()),
	}).Debug("Loaded .env file")
}

// loadSpotifyConfig reads the application credentials
func loadSpotifyConfig() (spotify.Config, error) {
	cfg := spotify.Config{
		ClientID:     viper.GetString("client_id"),
		ClientSecret: viper.GetString("client_secret"),
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return spotify.Config{}, fmt.Errorf("%w: CLIENT_ID and CLIENT_SECRET must be set in the environment, a .env file or the config file", ErrStartup)
	}
	return cfg, nil
}

func authTimeout() time.Duration {
	timeout := viper.GetDuration("auth_timeout")
	if timeout <= 0 {
		return defaultAuthTimeout
	}
	return timeout
}

// obtainToken refreshes the stored credential, falling back to the browser flow
// when there is none or the refresh is rejected
func obtainToken(ctx context.Context, cfg spotify.Config) (*oauth2.Token, error) {
	stored, err := tokenstore.Load()
	if err != nil {
		log.WithError(err).Warn("Ignoring unreadable credential file")
	}

	if stored != nil {
		token, err := refreshToken(ctx, cfg, *stored)
		if err == nil {
			log.Info("Refreshed token successfully")
			if err := tokenstore.Save(spotify.TokensFrom(token)); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrStartup, err)
			}
			return token, nil
		}
		log.WithError(err).Warn("Failed to refresh token, re-authenticating")
	}

	authCtx, cancel := context.WithTimeout(ctx, authTimeout())
	defer cancel()

	fmt.Println("Opening your browser to authorize spottui...")
	token, err := authenticate(authCtx, cfg)
	if err != nil {
		return nil, err
	}

	if err := tokenstore.Save(spotify.TokensFrom(token)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}
	log.Info("Authorization complete")
	return token, nil
}

// persistTokens is handed to the client so refreshed tokens survive restarts
func persistTokens(tokens tokenstore.Tokens) {
	if err := tokenstore.Save(tokens); err != nil {
		log.WithError(err).Error("Failed to save refreshed token")
	}
}

// connect returns the remote service for this run and a func releasing it
func connect(ctx context.Context) (*spotify.Client, func(), error) {
	if demoMode {
		return connectDemo()
	}

	cfg, err := loadSpotifyConfig()
	if err != nil {
		return nil, nil, err
	}

	token, err := obtainToken(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	return spotify.NewClient(ctx, cfg, token, persistTokens), func() {}, nil
}

// connectStored is connect without the browser flow, for non-interactive commands
func connectStored(ctx context.Context) (*spotify.Client, func(), error) {
	if demoMode {
		return connectDemo()
	}

	cfg, err := loadSpotifyConfig()
	if err != nil {
		return nil, nil, err
	}

	stored, err := tokenstore.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}
	if stored == nil {
		return nil, nil, fmt.Errorf("%w: not logged in, run spottui once to authorize", ErrStartup)
	}

	token, err := refreshToken(ctx, cfg, *stored)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to refresh token: %w", ErrStartup, err)
	}
	persistTokens(spotify.TokensFrom(token))

	return spotify.NewClient(ctx, cfg, token, persistTokens), func() {}, nil
}

// connectDemo serves the demo library from an in-process simulator, or talks to
// an already running one when api_url is configured
func connectDemo() (*spotify.Client, func(), error) {
	httpClient := &http.Client{Timeout: apiTimeout}

	if apiURL := viper.GetString("api_url"); apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		log.WithField("url", apiURL).Info("Using external simulator")
		return spotify.NewClientWithHTTP(httpClient, apiURL), func() {}, nil
	}

	sim := simulator.New(simulator.DemoLibrary())
	if err := sim.Start("127.0.0.1:0"); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}

	release := func() {
		if err := sim.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop demo simulator")
		}
	}
	return spotify.NewClientWithHTTP(httpClient, sim.BaseURL()), release, nil
}

// configureLogging applies --debug and --log-to-file. The returned file, if any,
// keeps receiving log output while the TUI owns the terminal.
func configureLogging() *os.File {
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	if !logToFile && !debug {
		return nil
	}

	file, err := setupFileLogging()
	if err != nil {
		log.WithError(err).Warn("Failed to set up file logging, continuing with console only")
		return nil
	}
	return file
}

// setupFileLogging configures file logging in addition to console logging
func setupFileLogging() (*os.File, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	logDir := filepath.Join(home, ".spottui_logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile := filepath.Join(logDir, "spottui.log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stderr, file))
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		DisableColors:   true,
	})

	// Capture everything once a file is involved
	log.SetLevel(log.DebugLevel)

	log.WithField("logFile", logFile).Info("File logging enabled")
	fmt.Printf("📝 Debug logs will be written to: %s\n", logFile)
	return file, nil
}
