package sink

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cyra/edge-events/internal/logfile"
)

// Merge concatenates NDJSON inputs into out, in order, and returns the
// number of lines written. Lines are trimmed and blank ones dropped; they
// are not re-parsed. Missing inputs are skipped. out may itself be one of
// the inputs: the result is staged in a temporary file and renamed.
func Merge(out string, inputs []string) (int, error) {
	dir := filepath.Dir(out)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create merge dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(out)+".*")
	if err != nil {
		return 0, fmt.Errorf("create merge output: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriterSize(tmp, bufSize)
	n := 0
	for _, in := range inputs {
		c, err := appendLines(bw, in)
		n += c
		if err != nil {
			tmp.Close()
			return n, err
		}
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return n, fmt.Errorf("flush merge output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close merge output: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return n, fmt.Errorf("chmod merge output: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return n, fmt.Errorf("rename merge output: %w", err)
	}
	return n, nil
}

func appendLines(w *bufio.Writer, path string) (int, error) {
	r, err := logfile.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("merge %s: %w", path, err)
	}
	defer r.Close()

	br := bufio.NewReaderSize(r, bufSize)
	n := 0
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			if _, werr := w.Write(append(line, '\n')); werr != nil {
				return n, fmt.Errorf("merge %s: %w", path, werr)
			}
			n++
		}
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("merge %s: %w", path, err)
		}
	}
}
