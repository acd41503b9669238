package input

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverEmailsFilesAndDirWithDedup(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.eml")
	if err := os.WriteFile(a, []byte("\uFEFFSubject: a\n\nhello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	b := filepath.Join(sub, "b.EML")
	if err := os.WriteFile(b, []byte("Subject: b\n\nworld"), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := DiscoverEmails([]string{dir, a})
	if err != nil {
		t.Fatalf("DiscoverEmails error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len=%d want=2", len(items))
	}
	if items[0].ID != "a" || items[0].MIME != "Subject: a\n\nhello" {
		t.Fatalf("first=%+v", items[0])
	}
	if items[1].ID != "b" {
		t.Fatalf("second=%+v", items[1])
	}
}

func TestDiscoverEmailsErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := DiscoverEmails([]string{dir}); err == nil {
		t.Fatal("expected no-file-found error")
	}
	if _, err := DiscoverEmails([]string{filepath.Join(dir, "not-exists")}); err == nil {
		t.Fatal("expected stat error")
	}
}
