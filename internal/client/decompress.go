package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const acceptEncoding = "zstd, br, gzip"

// decodeBody wraps a response body according to its Content-Encoding.
func decodeBody(contentEncoding string, body io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return io.NopCloser(body), nil
	case "zstd":
		dec, err := zstd.NewReader(body, zstd.WithDecoderMaxMemory(256<<20))
		if err != nil {
			return nil, fmt.Errorf("invalid zstd body: %w", err)
		}
		return dec.IOReadCloser(), nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	case "gzip":
		gr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		return gr, nil
	default:
		return nil, fmt.Errorf("unsupported Content-Encoding: %s", contentEncoding)
	}
}
