// Package logfile opens log files with transparent decompression and
// best-effort UTF-8 decoding, and scans them line by line.
package logfile

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// MaxLineBytes is the longest line Scan hands to its callback.
const MaxLineBytes = 1 << 20

// ErrLineTooLong is the skip reason for a line over MaxLineBytes.
var ErrLineTooLong = errors.New("line exceeds maximum length")

type readCloser struct {
	io.Reader
	closers []func() error
}

func (r *readCloser) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open returns a reader over the decoded text of path. Compression is
// chosen by suffix (.gz, .zst, .zstd, .bz2). Invalid UTF-8 is replaced with
// U+FFFD and a leading BOM is dropped, so reading never fails on content.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rc := &readCloser{Reader: f, closers: []func() error{f.Close}}

	switch Compression(path) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		rc.Reader = zr
		rc.closers = append(rc.closers, zr.Close)
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open zstd %s: %w", path, err)
		}
		rc.Reader = zr
		rc.closers = append(rc.closers, func() error { zr.Close(); return nil })
	case ".bz2":
		rc.Reader = bzip2.NewReader(f)
	}

	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	rc.Reader = transform.NewReader(rc.Reader, dec)
	return rc, nil
}

// Compression returns the compression suffix of path, or "".
func Compression(path string) string {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".gz", ".zst", ".zstd", ".bz2":
		return ext
	}
	return ""
}

// BaseExt returns the extension of path after stripping a compression suffix,
// so access.csv.gz reports ".csv".
func BaseExt(path string) string {
	if c := Compression(path); c != "" {
		path = path[:len(path)-len(c)]
	}
	return strings.ToLower(filepath.Ext(path))
}

// ScanOption configures Scan.
type ScanOption func(*scanConfig)

type scanConfig struct {
	onLong func(n int)
}

// OnLongLine registers a hook called with the number of each line longer
// than MaxLineBytes. Such lines are never passed to fn.
func OnLongLine(fn func(n int)) ScanOption {
	return func(c *scanConfig) { c.onLong = fn }
}

// Scan calls fn for each line of r with its 1-based number. maxLines <= 0
// means no cap. fn returning false stops the scan early without error. A
// line over MaxLineBytes is discarded up to its newline and the scan goes on
// with the next one; it still counts towards maxLines.
func Scan(r io.Reader, maxLines int, fn func(n int, line string) bool, opts ...ScanOption) error {
	var cfg scanConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	long := false
	n := 0
	for {
		chunk, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if !long && len(buf)+len(chunk) <= MaxLineBytes {
				buf = append(buf, chunk...)
			} else {
				long, buf = true, buf[:0]
			}
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := err != nil
		if eof && len(chunk) == 0 && len(buf) == 0 && !long {
			return nil
		}

		n++
		if !long {
			buf = append(buf, chunk...)
			buf = bytes.TrimSuffix(buf, []byte("\n"))
			buf = bytes.TrimSuffix(buf, []byte("\r"))
			long = len(buf) > MaxLineBytes
		}
		if long {
			if cfg.onLong != nil {
				cfg.onLong(n)
			}
		} else if !fn(n, string(buf)) {
			return nil
		}
		buf, long = buf[:0], false

		if eof || (maxLines > 0 && n >= maxLines) {
			return nil
		}
	}
}
