package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrTokenNotConfigured = errors.New("token not configured")

// Credentials is a name=token file kept next to the contexts file.
type Credentials struct {
	Path string
}

// CredentialsFor places the credentials file beside a custom config file.
func CredentialsFor(configPath string) Credentials {
	return Credentials{Path: filepath.Join(filepath.Dir(configPath), "credentials")}
}

func validKey(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "=\n\r") {
		return fmt.Errorf("invalid context name %q", name)
	}
	return nil
}

func (c Credentials) Token(name string) (string, error) {
	if err := validKey(name); err != nil {
		return "", err
	}
	b, err := os.ReadFile(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrTokenNotConfigured
		}
		return "", fmt.Errorf("could not read credentials: %w", err)
	}
	for _, raw := range strings.Split(string(b), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(k) != name {
			continue
		}
		value := strings.Trim(strings.TrimSpace(v), `"'`)
		if value == "" {
			return "", ErrTokenNotConfigured
		}
		return value, nil
	}
	return "", ErrTokenNotConfigured
}

func (c Credentials) SetToken(name, token string) error {
	if err := validKey(name); err != nil {
		return err
	}
	return c.rewrite(name, fmt.Sprintf("%s=%s", name, strings.TrimSpace(token)))
}

func (c Credentials) DeleteToken(name string) error {
	if err := validKey(name); err != nil {
		return err
	}
	if _, err := os.Stat(c.Path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return c.rewrite(name, "")
}

// rewrite replaces the line for name with line, dropping it when line is empty.
func (c Credentials) rewrite(name, line string) error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	b, err := os.ReadFile(c.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not read credentials: %w", err)
	}
	var lines []string
	if len(b) > 0 {
		lines = strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	}
	out := lines[:0]
	replaced := false
	for _, raw := range lines {
		txt := strings.TrimSpace(raw)
		if k, _, ok := strings.Cut(txt, "="); ok && !strings.HasPrefix(txt, "#") && strings.TrimSpace(k) == name {
			if line != "" && !replaced {
				out = append(out, line)
			}
			replaced = true
			continue
		}
		out = append(out, raw)
	}
	if !replaced && line != "" {
		out = append(out, line)
	}
	content := strings.Join(out, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(c.Path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("could not write credentials: %w", err)
	}
	// WriteFile keeps the mode of a file that already exists.
	if err := os.Chmod(c.Path, 0o600); err != nil {
		return fmt.Errorf("could not restrict credentials permissions: %w", err)
	}
	return nil
}
