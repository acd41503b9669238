package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestTokenNotConfigured(t *testing.T) {
	c := Credentials{Path: filepath.Join(t.TempDir(), "credentials")}
	_, err := c.Token("prod")
	if !errors.Is(err, ErrTokenNotConfigured) {
		t.Fatalf("err=%v, want ErrTokenNotConfigured", err)
	}
}

func TestSetAndLoadToken(t *testing.T) {
	dir := t.TempDir()
	c := CredentialsFor(filepath.Join(dir, "contexts.yaml"))
	if err := c.SetToken("prod", "abc123"); err != nil {
		t.Fatalf("SetToken error: %v", err)
	}
	if err := c.SetToken("dev", "def456"); err != nil {
		t.Fatalf("SetToken error: %v", err)
	}
	got, err := c.Token("prod")
	if err != nil || got != "abc123" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	info, err := os.Stat(filepath.Join(dir, "credentials"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm=%o want 600", perm)
	}
}

func TestSetTokenReplacesExisting(t *testing.T) {
	p := filepath.Join(t.TempDir(), "credentials")
	orig := "# comment\nother=1\nprod=old\n"
	if err := os.WriteFile(p, []byte(orig), 0o600); err != nil {
		t.Fatal(err)
	}
	c := Credentials{Path: p}
	if err := c.SetToken("prod", "new-token"); err != nil {
		t.Fatalf("SetToken error: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.Contains(s, "prod=new-token") || strings.Contains(s, "prod=old") {
		t.Fatalf("unexpected content: %q", s)
	}
	if !strings.Contains(s, "# comment") || !strings.Contains(s, "other=1") {
		t.Fatalf("other lines lost: %q", s)
	}
	if !strings.HasSuffix(s, "\n") {
		t.Fatalf("expected trailing newline: %q", s)
	}
}

func TestDeleteToken(t *testing.T) {
	c := Credentials{Path: filepath.Join(t.TempDir(), "credentials")}
	if err := c.DeleteToken("absent"); err != nil {
		t.Fatalf("deleting from a missing file: %v", err)
	}
	if err := c.SetToken("prod", "x"); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteToken("prod"); err != nil {
		t.Fatalf("DeleteToken error: %v", err)
	}
	if _, err := c.Token("prod"); !errors.Is(err, ErrTokenNotConfigured) {
		t.Fatalf("err=%v, want ErrTokenNotConfigured", err)
	}
}

func TestTokenQuotedAndEmpty(t *testing.T) {
	p := filepath.Join(t.TempDir(), "credentials")
	if err := os.WriteFile(p, []byte("prod='quoted'\nempty=\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := Credentials{Path: p}
	if got, err := c.Token("prod"); err != nil || got != "quoted" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if _, err := c.Token("empty"); !errors.Is(err, ErrTokenNotConfigured) {
		t.Fatalf("err=%v, want ErrTokenNotConfigured", err)
	}
	if _, err := c.Token("a=b"); err == nil {
		t.Fatal("expected invalid name error")
	}
}

func TestSetTokenTightensLoosePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	p := filepath.Join(t.TempDir(), "credentials")
	if err := os.WriteFile(p, []byte("prod=old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(p, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := (Credentials{Path: p}).SetToken("prod", "new"); err != nil {
		t.Fatalf("SetToken error: %v", err)
	}
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm=%o want 600", perm)
	}
}
