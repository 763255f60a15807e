// Package signallog appends accepted signals to a JSON-lines file, one
// complete object per line. Existing lines are never rewritten.
package signallog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gainer-scanner/internal/strategy"
)

// Writer appends signals to a single file.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Open opens path for appending, creating it and its directory if needed.
func Open(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("signal log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("signal log open: %w", err)
	}
	return &Writer{f: f, path: path}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Append writes sig as one line. The line is written with a single call
// so concurrent appenders never interleave.
func (w *Writer) Append(sig strategy.Signal) error {
	b, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("signal log encode %s: %w", sig.Symbol, err)
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(b); err != nil {
		return fmt.Errorf("signal log write %s: %w", sig.Symbol, err)
	}
	return nil
}

// Close syncs and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Read parses every line of the log at path. A malformed line (for
// example a torn final write) is skipped and counted in skipped.
func Read(path string) (signals []strategy.Signal, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var s strategy.Signal
		if err := json.Unmarshal(line, &s); err != nil {
			skipped++
			continue
		}
		signals = append(signals, s)
	}
	return signals, skipped, sc.Err()
}
