package input

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EmailFile is a raw RFC 822 message found on disk.
type EmailFile struct {
	Path string
	ID   string
	MIME string
}

// DiscoverEmails walks files and directories and returns every .eml file
// once, in path order. The id is the file name without its extension.
func DiscoverEmails(inputs []string) ([]EmailFile, error) {
	var paths []string
	seen := map[string]struct{}{}
	add := func(p string) {
		if _, exists := seen[p]; exists {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Clean(in))
			continue
		}
		err = filepath.WalkDir(in, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".eml") {
				return nil
			}
			add(filepath.Clean(path))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .eml files found in %s", strings.Join(inputs, ", "))
	}
	sort.Strings(paths)
	out := make([]EmailFile, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		base := filepath.Base(p)
		out = append(out, EmailFile{
			Path: p,
			ID:   strings.TrimSuffix(base, filepath.Ext(base)),
			MIME: strings.TrimPrefix(string(b), "\uFEFF"),
		})
	}
	return out, nil
}
