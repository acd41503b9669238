package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultAppDir is <UserConfigDir>/reinfer.
func DefaultAppDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user config directory: %w", err)
	}
	return filepath.Join(base, "reinfer"), nil
}

func DefaultConfigPath() (string, error) {
	base, err := DefaultAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "contexts.yaml"), nil
}

func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user cache directory: %w", err)
	}
	return filepath.Join(base, "reinfer"), nil
}
