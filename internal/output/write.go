package output

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func random8() (string, error) {
	b := make([]byte, 8)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b), nil
}

// UniquePath returns a path of the form <dir>/<prefix>_<random>.<ext> that
// does not exist yet, creating dir if needed.
func UniquePath(dir, prefix, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	prefix = strings.NewReplacer("/", "_", "\\", "_").Replace(prefix)
	for i := 0; i < 100; i++ {
		s, err := random8()
		if err != nil {
			return "", err
		}
		p := filepath.Join(dir, fmt.Sprintf("%s_%s.%s", prefix, s, ext))
		if _, err := os.Stat(p); err == nil {
			continue
		}
		return p, nil
	}
	return "", fmt.Errorf("could not generate a unique file name in %s", dir)
}

// Export is a JSONL destination: stdout, a plain file, or a compressed file
// when the name ends in .gz or .zst.
type Export struct {
	Path string

	w     io.Writer
	codec io.WriteCloser
	file  *os.File
}

// CreateExport opens path for writing. An empty path or "-" writes to
// stdout. An existing directory gets a fresh file named after prefix.
func CreateExport(path, prefix string) (*Export, error) {
	if path == "" || path == "-" {
		return &Export{w: os.Stdout}, nil
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		p, err := UniquePath(path, prefix, "jsonl")
		if err != nil {
			return nil, err
		}
		path = p
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create %s: %w", path, err)
	}
	e := &Export{Path: path, w: f, file: f}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		e.codec = gzip.NewWriter(f)
	case ".zst":
		zw, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		e.codec = zw
	}
	if e.codec != nil {
		e.w = e.codec
	}
	return e, nil
}

func (e *Export) Write(p []byte) (int, error) { return e.w.Write(p) }

func (e *Export) IsStdout() bool { return e.Path == "" }

// Close flushes the compressor before closing the file. Later calls are
// no-ops.
func (e *Export) Close() error {
	var err error
	if e.codec != nil {
		err = e.codec.Close()
		e.codec = nil
	}
	if e.file != nil {
		if cerr := e.file.Close(); err == nil {
			err = cerr
		}
		e.file = nil
	}
	return err
}
