package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/galamiram/spottui/spotify"
	"github.com/galamiram/spottui/tokenstore"
)

func TestRootCmdFlags(t *testing.T) {
	for _, name := range []string{"config", "debug", "demo", "log-to-file"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Root command missing --%s flag", name)
		}
	}
}

func TestRootCmdMetadata(t *testing.T) {
	if rootCmd.Use != "spottui" {
		t.Errorf("Root command Use = %s, want spottui", rootCmd.Use)
	}

	if rootCmd.Short != "Terminal client for Spotify playlists" {
		t.Errorf("Root command Short = %s, want 'Terminal client for Spotify playlists'", rootCmd.Short)
	}
}

// isolateConfig points config, .env and credential lookups at temp locations
func isolateConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)

	originalCfgFile := cfgFile
	cfgFile = filepath.Join(dir, "missing.yaml")

	originalPathFunc := tokenstore.FilePathFunc()
	tokenstore.SetFilePathFunc(func() (string, error) {
		return filepath.Join(dir, "spottui", "spottui.json"), nil
	})

	t.Setenv("CLIENT_ID", "")
	t.Setenv("CLIENT_SECRET", "")
	t.Setenv("AUTH_TIMEOUT", "")
	t.Setenv("API_URL", "")

	t.Cleanup(func() {
		cfgFile = originalCfgFile
		tokenstore.SetFilePathFunc(originalPathFunc)
		viper.Reset()
	})
	viper.Reset()
	return dir
}

func TestEnvironmentVariables(t *testing.T) {
	isolateConfig(t)
	t.Setenv("CLIENT_ID", "env-id")
	t.Setenv("CLIENT_SECRET", "env-secret")

	initConfig()

	cfg, err := loadSpotifyConfig()
	if err != nil {
		t.Fatalf("loadSpotifyConfig() error = %v", err)
	}
	if cfg.ClientID != "env-id" || cfg.ClientSecret != "env-secret" {
		t.Errorf("config = %+v, want env credentials", cfg)
	}
	if authTimeout() != defaultAuthTimeout {
		t.Errorf("authTimeout() = %v, want %v", authTimeout(), defaultAuthTimeout)
	}
}

func TestDotEnvFile(t *testing.T) {
	dir := isolateConfig(t)
	content := "CLIENT_ID=dotenv-id\nCLIENT_SECRET=dotenv-secret\nAUTH_TIMEOUT=30s\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	initConfig()

	if got := viper.GetString("client_id"); got != "dotenv-id" {
		t.Errorf("client_id = %q, want dotenv-id", got)
	}
	if got := authTimeout(); got != 30*time.Second {
		t.Errorf("authTimeout() = %v, want 30s", got)
	}
}

func TestEnvironmentOverridesDotEnv(t *testing.T) {
	dir := isolateConfig(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CLIENT_ID=dotenv-id\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLIENT_ID", "env-id")

	initConfig()

	if got := viper.GetString("client_id"); got != "env-id" {
		t.Errorf("client_id = %q, want env-id", got)
	}
}

func TestConfigFile(t *testing.T) {
	dir := isolateConfig(t)
	cfgFile = filepath.Join(dir, "spottui.yaml")
	if err := os.WriteFile(cfgFile, []byte("client_id: file-id\nclient_secret: file-secret\n"), 0600); err != nil {
		t.Fatal(err)
	}

	initConfig()

	cfg, err := loadSpotifyConfig()
	if err != nil {
		t.Fatalf("loadSpotifyConfig() error = %v", err)
	}
	if cfg.ClientID != "file-id" {
		t.Errorf("ClientID = %q, want file-id", cfg.ClientID)
	}
}

func TestMissingCredentials(t *testing.T) {
	isolateConfig(t)
	initConfig()

	_, err := loadSpotifyConfig()
	if !errors.Is(err, ErrStartup) {
		t.Errorf("loadSpotifyConfig() error = %v, want ErrStartup", err)
	}
}

// stubAuth replaces the refresh and browser flows for one test
func stubAuth(t *testing.T, refresh func(context.Context, spotify.Config, tokenstore.Tokens) (*oauth2.Token, error), auth func(context.Context, spotify.Config) (*oauth2.Token, error)) {
	t.Helper()
	originalRefresh, originalAuth := refreshToken, authenticate
	refreshToken, authenticate = refresh, auth
	t.Cleanup(func() {
		refreshToken, authenticate = originalRefresh, originalAuth
	})
}

func TestObtainTokenRefreshesStoredCredential(t *testing.T) {
	isolateConfig(t)
	if err := tokenstore.Save(tokenstore.Tokens{AccessToken: "old", RefreshToken: "r1"}); err != nil {
		t.Fatal(err)
	}

	var refreshedWith string
	stubAuth(t,
		func(ctx context.Context, cfg spotify.Config, tokens tokenstore.Tokens) (*oauth2.Token, error) {
			refreshedWith = tokens.RefreshToken
			return &oauth2.Token{AccessToken: "new", RefreshToken: "r2"}, nil
		},
		func(ctx context.Context, cfg spotify.Config) (*oauth2.Token, error) {
			t.Error("browser flow started despite a valid refresh")
			return nil, errors.New("unexpected")
		},
	)

	token, err := obtainToken(context.Background(), spotify.Config{ClientID: "id", ClientSecret: "secret"})
	if err != nil {
		t.Fatalf("obtainToken() error = %v", err)
	}
	if refreshedWith != "r1" {
		t.Errorf("refreshed with %q, want r1", refreshedWith)
	}
	if token.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want new", token.AccessToken)
	}

	stored, err := tokenstore.Load()
	if err != nil || stored == nil {
		t.Fatalf("Load() = %v, %v", stored, err)
	}
	if stored.AccessToken != "new" || stored.RefreshToken != "r2" {
		t.Errorf("stored = %+v, want refreshed pair", *stored)
	}
}

func TestObtainTokenFallsBackToBrowser(t *testing.T) {
	isolateConfig(t)
	if err := tokenstore.Save(tokenstore.Tokens{AccessToken: "old", RefreshToken: "revoked"}); err != nil {
		t.Fatal(err)
	}

	authCalls := 0
	stubAuth(t,
		func(ctx context.Context, cfg spotify.Config, tokens tokenstore.Tokens) (*oauth2.Token, error) {
			return nil, errors.New("invalid_grant")
		},
		func(ctx context.Context, cfg spotify.Config) (*oauth2.Token, error) {
			authCalls++
			if _, ok := ctx.Deadline(); !ok {
				t.Error("browser flow has no deadline")
			}
			return &oauth2.Token{AccessToken: "fresh", RefreshToken: "r9"}, nil
		},
	)

	token, err := obtainToken(context.Background(), spotify.Config{ClientID: "id", ClientSecret: "secret"})
	if err != nil {
		t.Fatalf("obtainToken() error = %v", err)
	}
	if authCalls != 1 {
		t.Errorf("browser flow ran %d times, want 1", authCalls)
	}
	if token.AccessToken != "fresh" {
		t.Errorf("AccessToken = %q, want fresh", token.AccessToken)
	}

	stored, _ := tokenstore.Load()
	if stored == nil || stored.RefreshToken != "r9" {
		t.Errorf("stored = %+v, want the new credential", stored)
	}
}

func TestObtainTokenWithoutStoredCredential(t *testing.T) {
	isolateConfig(t)

	refreshCalls := 0
	stubAuth(t,
		func(ctx context.Context, cfg spotify.Config, tokens tokenstore.Tokens) (*oauth2.Token, error) {
			refreshCalls++
			return nil, errors.New("unexpected")
		},
		func(ctx context.Context, cfg spotify.Config) (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "a", RefreshToken: "r"}, nil
		},
	)

	if _, err := obtainToken(context.Background(), spotify.Config{}); err != nil {
		t.Fatalf("obtainToken() error = %v", err)
	}
	if refreshCalls != 0 {
		t.Errorf("refresh attempted %d times without a stored credential", refreshCalls)
	}
}

func TestObtainTokenAuthFailure(t *testing.T) {
	isolateConfig(t)

	stubAuth(t,
		func(ctx context.Context, cfg spotify.Config, tokens tokenstore.Tokens) (*oauth2.Token, error) {
			return nil, errors.New("unexpected")
		},
		func(ctx context.Context, cfg spotify.Config) (*oauth2.Token, error) {
			return nil, spotify.ErrAuth
		},
	)

	_, err := obtainToken(context.Background(), spotify.Config{})
	if !errors.Is(err, spotify.ErrAuth) {
		t.Fatalf("obtainToken() error = %v, want ErrAuth", err)
	}

	stored, _ := tokenstore.Load()
	if stored != nil {
		t.Errorf("credential stored after failed authorization: %+v", *stored)
	}
}

func TestConnectStoredRequiresLogin(t *testing.T) {
	isolateConfig(t)
	t.Setenv("CLIENT_ID", "id")
	t.Setenv("CLIENT_SECRET", "secret")
	initConfig()

	_, _, err := connectStored(context.Background())
	if !errors.Is(err, ErrStartup) {
		t.Errorf("connectStored() error = %v, want ErrStartup", err)
	}
}

func TestConnectDemo(t *testing.T) {
	isolateConfig(t)
	initConfig()

	originalDemo := demoMode
	demoMode = true
	defer func() { demoMode = originalDemo }()

	client, release, err := connect(context.Background())
	if err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	defer release()

	playlists, err := client.Playlists(context.Background())
	if err != nil {
		t.Fatalf("Playlists() error = %v", err)
	}
	if len(playlists) != 3 {
		t.Errorf("got %d demo playlists, want 3", len(playlists))
	}
}

func TestCommandStructure(t *testing.T) {
	expectedCommands := []string{"tui", "version", "logout", "mcp", "simulator", "spotify"}

	for _, cmdName := range expectedCommands {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == cmdName {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected subcommand '%s' not found", cmdName)
		}
	}
}

// Test that all commands have proper documentation
func TestCommandDocumentation(t *testing.T) {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Short == "" {
			t.Errorf("Command '%s' missing Short description", cmd.Name())
		}

		if cmd.Long == "" && cmd.Example == "" {
			t.Errorf("Command '%s' missing Long description or Example", cmd.Name())
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)

	if !strings.Contains(out.String(), "spottui version: dev") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestLogoutRemovesCredential(t *testing.T) {
	isolateConfig(t)
	if err := tokenstore.Save(tokenstore.Tokens{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	logoutCmd.SetOut(&out)
	defer logoutCmd.SetOut(nil)

	if err := logoutCmd.RunE(logoutCmd, nil); err != nil {
		t.Fatalf("logout error = %v", err)
	}

	path, _ := tokenstore.FilePath()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("credential file still present: %v", err)
	}
	if !strings.Contains(out.String(), "Logged out") {
		t.Errorf("logout output = %q", out.String())
	}

	// Logging out twice is fine
	if err := logoutCmd.RunE(logoutCmd, nil); err != nil {
		t.Errorf("second logout error = %v", err)
	}
}
