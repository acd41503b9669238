package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"reinfer-cli/internal/util"
)

const DefaultEndpoint = "https://reinfer.dev"

// Context is one named endpoint. Tokens live in the credentials store.
type Context struct {
	Name                      string `yaml:"name"`
	Endpoint                  string `yaml:"endpoint"`
	AcceptInvalidCertificates bool   `yaml:"accept_invalid_certificates"`
	Proxy                     string `yaml:"proxy,omitempty"`
}

type File struct {
	CurrentContext    string    `yaml:"current_context,omitempty"`
	ContextIsRequired bool      `yaml:"context_is_required"`
	Contexts          []Context `yaml:"contexts"`
}

func ResolvePath(input string) (string, error) {
	if input != "" {
		return input, nil
	}
	return util.DefaultConfigPath()
}

// Load returns an empty File when path does not exist yet.
func Load(path string) (File, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return f, fmt.Errorf("could not read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("could not parse config file %q: %w", path, err)
	}
	for i := range f.Contexts {
		if strings.TrimSpace(f.Contexts[i].Name) == "" {
			return File{}, fmt.Errorf("config file %q has a context without a name", path)
		}
	}
	return f, nil
}

func Save(path string, f File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	sort.Slice(f.Contexts, func(i, j int) bool { return f.Contexts[i].Name < f.Contexts[j].Name })
	b, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("could not serialise config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("could not write config file %q: %w", path, err)
	}
	return nil
}

func (f *File) GetContext(name string) (Context, bool) {
	for _, c := range f.Contexts {
		if c.Name == name {
			return c, true
		}
	}
	return Context{}, false
}

func (f *File) Current() (Context, bool) {
	if f.CurrentContext == "" {
		return Context{}, false
	}
	return f.GetContext(f.CurrentContext)
}

// SetContext inserts or replaces a context by name. It reports whether an
// existing one was replaced.
func (f *File) SetContext(c Context) bool {
	for i := range f.Contexts {
		if f.Contexts[i].Name == c.Name {
			f.Contexts[i] = c
			return true
		}
	}
	f.Contexts = append(f.Contexts, c)
	return false
}

func (f *File) SetCurrentContext(name string) bool {
	if _, ok := f.GetContext(name); !ok {
		return false
	}
	f.CurrentContext = name
	return true
}

// DeleteContext removes a context and clears CurrentContext if it pointed at it.
func (f *File) DeleteContext(name string) bool {
	for i := range f.Contexts {
		if f.Contexts[i].Name == name {
			f.Contexts = append(f.Contexts[:i], f.Contexts[i+1:]...)
			if f.CurrentContext == name {
				f.CurrentContext = ""
			}
			return true
		}
	}
	return false
}

func (f *File) Names() []string {
	out := make([]string, 0, len(f.Contexts))
	for _, c := range f.Contexts {
		out = append(out, c.Name)
	}
	sort.Strings(out)
	return out
}
