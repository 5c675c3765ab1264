package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
)

// AppName names the per-user config directory and the credential file
const AppName = "spottui"

// ErrCorrupt is returned when the credential file exists but cannot be parsed
var ErrCorrupt = errors.New("credential file is corrupt")

// Tokens holds the access/refresh token pair for the authenticated session
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// filePathFunc is a variable that can be overridden for testing
var filePathFunc = defaultFilePath

// defaultFilePath returns <user config dir>/spottui/spottui.json, falling back to
// ~/.spottui/spottui.json when the platform config dir is unknown
func defaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := homedir.Dir()
		if homeErr != nil {
			return "", fmt.Errorf("failed to get home directory: %w", homeErr)
		}
		dir = filepath.Join(home, "."+AppName)
	} else {
		dir = filepath.Join(dir, AppName)
	}
	return filepath.Join(dir, AppName+".json"), nil
}

// FilePath returns the path of the credential file
func FilePath() (string, error) {
	return filePathFunc()
}

// FilePathFunc returns the current path function (for testing)
func FilePathFunc() func() (string, error) {
	return filePathFunc
}

// SetFilePathFunc sets the path function (for testing)
func SetFilePathFunc(fn func() (string, error)) {
	filePathFunc = fn
}

// Load reads the stored tokens. A missing file is not an error: it returns nil, nil.
func Load() (*Tokens, error) {
	path, err := FilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.WithField("path", path).Debug("No stored credential")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if tokens.RefreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh token", ErrCorrupt)
	}

	log.WithField("path", path).Debug("Loaded stored credential")
	return &tokens, nil
}

// Save writes the tokens, creating the config directory when needed
func Save(tokens Tokens) error {
	path, err := FilePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}

	log.WithField("path", path).Debug("Saved credential")
	return nil
}

// Clear removes the stored credential
func Clear() error {
	path, err := FilePath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}

	return nil
}
