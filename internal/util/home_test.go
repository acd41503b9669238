package util

import (
	"path/filepath"
	"testing"
)

func TestDefaultPaths(t *testing.T) {
	cfg := t.TempDir()
	cache := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfg)
	t.Setenv("XDG_CACHE_HOME", cache)

	appDir, err := DefaultAppDir()
	if err != nil {
		t.Fatalf("DefaultAppDir error: %v", err)
	}
	wantApp := filepath.Join(cfg, "reinfer")
	if appDir != wantApp {
		t.Fatalf("appDir=%q want=%q", appDir, wantApp)
	}

	configPath, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath error: %v", err)
	}
	if want := filepath.Join(wantApp, "contexts.yaml"); configPath != want {
		t.Fatalf("configPath=%q want=%q", configPath, want)
	}

	cacheDir, err := DefaultCacheDir()
	if err != nil {
		t.Fatalf("DefaultCacheDir error: %v", err)
	}
	if want := filepath.Join(cache, "reinfer"); cacheDir != want {
		t.Fatalf("cacheDir=%q want=%q", cacheDir, want)
	}
}
