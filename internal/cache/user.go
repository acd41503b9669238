package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// UserEntry is the current user of a context, as last seen by the server.
type UserEntry struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Endpoint  string    `json:"endpoint"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (e UserEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return !e.FetchedAt.IsZero() && now.Sub(e.FetchedAt) < ttl
}

func sanitizeContextName(name string) (string, error) {
	id := strings.TrimSpace(name)
	if id == "" {
		return "", fmt.Errorf("context name must not be empty")
	}
	if strings.Contains(id, "/") || strings.Contains(id, `\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid context name %q", name)
	}
	return id, nil
}

func contextDir(cacheDir, name string) (string, error) {
	id, err := sanitizeContextName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, id), nil
}

func userFile(cacheDir, name string) (string, error) {
	dir, err := contextDir(cacheDir, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "user.json"), nil
}

// LoadUser reports false when nothing is cached for the context.
func LoadUser(cacheDir, name string) (UserEntry, bool, error) {
	var e UserEntry
	p, err := userFile(cacheDir, name)
	if err != nil {
		return e, false, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return e, false, nil
		}
		return e, false, err
	}
	if err := json.Unmarshal(b, &e); err != nil {
		return UserEntry{}, false, fmt.Errorf("corrupt user cache %q: %w", p, err)
	}
	return e, true, nil
}

func SaveUser(cacheDir, name string, e UserEntry) error {
	dir, err := contextDir(cacheDir, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "user.json"), b, 0o644)
}

// Clear drops everything cached for a context.
func Clear(cacheDir, name string) error {
	dir, err := contextDir(cacheDir, name)
	if err != nil {
		return err
	}
	if dir == "" || dir == "/" {
		return fmt.Errorf("invalid cache dir")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(dir)
}
