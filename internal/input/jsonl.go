package input

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// File is a JSONL input, optionally gzip or zstd compressed (by extension).
// Stdin is used when Path is empty or "-".
type File struct {
	Path string
	// Size is the on-disk size, 0 for stdin.
	Size int64

	raw    io.Closer
	dec    io.Closer
	reader *bufio.Reader
	read   atomic.Int64
	line   int
}

func (f *File) IsStdin() bool { return f.Path == "" || f.Path == "-" }

// BytesRead counts raw bytes consumed from disk, comparable to Size.
func (f *File) BytesRead() int64 { return f.read.Load() }

func Open(path string) (*File, error) {
	f := &File{Path: path}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (f *File) open() error {
	var src io.Reader
	if f.IsStdin() {
		src = os.Stdin
		f.raw = io.NopCloser(nil)
	} else {
		fh, err := os.Open(f.Path)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", f.Path, err)
		}
		info, err := fh.Stat()
		if err != nil {
			_ = fh.Close()
			return fmt.Errorf("could not stat %s: %w", f.Path, err)
		}
		f.Size = info.Size()
		f.raw = fh
		src = fh
	}
	f.read.Store(0)
	f.line = 0
	counted := countingReader{r: src, n: &f.read}

	var body io.Reader = counted
	f.dec = nil
	switch {
	case strings.HasSuffix(f.Path, ".gz"):
		gr, err := gzip.NewReader(counted)
		if err != nil {
			_ = f.raw.Close()
			return fmt.Errorf("invalid gzip input %s: %w", f.Path, err)
		}
		f.dec = gr
		body = gr
	case strings.HasSuffix(f.Path, ".zst"):
		zr, err := zstd.NewReader(counted)
		if err != nil {
			_ = f.raw.Close()
			return fmt.Errorf("invalid zstd input %s: %w", f.Path, err)
		}
		rc := zr.IOReadCloser()
		f.dec = rc
		body = rc
	}
	f.reader = bufio.NewReaderSize(body, 1<<20)
	return nil
}

// Rewind restarts reading from the first line. Stdin cannot be rewound.
func (f *File) Rewind() error {
	if f.IsStdin() {
		return errors.New("cannot rewind stdin")
	}
	if err := f.Close(); err != nil {
		return err
	}
	return f.open()
}

func (f *File) Close() error {
	if f.dec != nil {
		_ = f.dec.Close()
		f.dec = nil
	}
	if f.raw != nil {
		err := f.raw.Close()
		f.raw = nil
		return err
	}
	return nil
}

// Next decodes the next non-blank line into v. It returns false at EOF.
func (f *File) Next(v any) (bool, error) {
	for {
		b, err := f.reader.ReadBytes('\n')
		if len(b) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, fmt.Errorf("could not read %s: %w", f.displayName(), err)
		}
		f.line++
		b = bytes.TrimSpace(b)
		if len(b) == 0 {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			continue
		}
		if uerr := json.Unmarshal(b, v); uerr != nil {
			return false, fmt.Errorf("could not parse line %d of %s: %w", f.line, f.displayName(), uerr)
		}
		return true, nil
	}
}

func (f *File) displayName() string {
	if f.IsStdin() {
		return "stdin"
	}
	return f.Path
}

// CheckNoDuplicateIDs scans the whole file for repeated comment ids and
// rewinds it afterwards.
func CheckNoDuplicateIDs(f *File) error {
	seen := make(map[string]struct{})
	for {
		var line struct {
			Comment struct {
				ID string `json:"id"`
			} `json:"comment"`
		}
		ok, err := f.Next(&line)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if _, dup := seen[line.Comment.ID]; dup {
			return fmt.Errorf("duplicate comments with id %s", line.Comment.ID)
		}
		seen[line.Comment.ID] = struct{}{}
	}
	return f.Rewind()
}
