package output

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func TestUniquePath_Success(t *testing.T) {
	dir := t.TempDir()
	p, err := UniquePath(dir, "acme/inbox", "jsonl")
	if err != nil {
		t.Fatalf("UniquePath error: %v", err)
	}
	base := filepath.Base(p)
	if !strings.HasPrefix(base, "acme_inbox_") || !strings.HasSuffix(base, ".jsonl") {
		t.Fatalf("unexpected path: %s", p)
	}
	if got := len(strings.TrimSuffix(strings.TrimPrefix(base, "acme_inbox_"), ".jsonl")); got != 8 {
		t.Fatalf("id len=%d want=8", got)
	}
}

func TestUniquePath_MkdirError(t *testing.T) {
	dir := t.TempDir()
	fileAsDir := filepath.Join(dir, "file")
	if err := os.WriteFile(fileAsDir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := UniquePath(fileAsDir, "x", "jsonl"); err == nil {
		t.Fatal("expected mkdir error")
	}
}

func writeExport(t *testing.T, path string) string {
	t.Helper()
	e, err := CreateExport(path, "acme/inbox")
	if err != nil {
		t.Fatalf("CreateExport error: %v", err)
	}
	if e.IsStdout() {
		t.Fatal("export should not be stdout")
	}
	if _, err := io.WriteString(e, "{\"a\":1}\n"); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	return e.Path
}

func TestCreateExportCompressesByExtension(t *testing.T) {
	dir := t.TempDir()

	plain := writeExport(t, filepath.Join(dir, "out.jsonl"))
	b, err := os.ReadFile(plain)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "{\"a\":1}\n" {
		t.Fatalf("plain=%q", b)
	}

	gz := writeExport(t, filepath.Join(dir, "nested", "out.jsonl.gz"))
	f, err := os.Open(gz)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	line, _ := bufio.NewReader(gr).ReadString('\n')
	if line != "{\"a\":1}\n" {
		t.Fatalf("gz=%q", line)
	}

	zst := writeExport(t, filepath.Join(dir, "out.jsonl.zst"))
	zf, err := os.Open(zst)
	if err != nil {
		t.Fatal(err)
	}
	defer zf.Close()
	zr, err := zstd.NewReader(zf)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	all, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(all) != "{\"a\":1}\n" {
		t.Fatalf("zst=%q", all)
	}
}

func TestCreateExportIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	p := writeExport(t, dir)
	if filepath.Dir(p) != dir || !strings.HasPrefix(filepath.Base(p), "acme_inbox_") {
		t.Fatalf("unexpected path %s", p)
	}
}

func TestCreateExportStdout(t *testing.T) {
	for _, p := range []string{"", "-"} {
		e, err := CreateExport(p, "x")
		if err != nil {
			t.Fatal(err)
		}
		if !e.IsStdout() {
			t.Fatalf("%q should be stdout", p)
		}
		if err := e.Close(); err != nil {
			t.Fatal(err)
		}
	}
}
