// Package store provides the durable persistence primitives of the core:
// atomically-replaced JSON documents and append-only line-delimited JSON
// logs.
//
// Every full rewrite goes through write-to-temp-then-rename, so a crash
// mid-write never corrupts the visible file and a concurrent reader never
// observes a partial document. Corrupt documents are self-healing: the bad
// file is renamed aside with a .broken suffix and the store reinitializes
// empty rather than failing startup.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AtomicWriteJSON marshals v with indentation and replaces path atomically.
func AtomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", path, err)
	}
	return AtomicWriteFile(path, append(data, '\n'))
}

// AtomicWriteFile writes data to a temp file in the target directory and
// renames it over path.
func AtomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: rename %s: %w", path, err)
	}
	return nil
}

// QuarantineCorrupt renames a corrupt file aside with a timestamped .broken
// suffix and returns the new name.
func QuarantineCorrupt(path string) (string, error) {
	broken := fmt.Sprintf("%s.%d.broken", path, time.Now().Unix())
	if err := os.Rename(path, broken); err != nil {
		return "", fmt.Errorf("store: quarantine %s: %w", path, err)
	}
	return broken, nil
}

// LineLog is an append-only JSONL event log. Each line is a self-contained
// JSON object.
type LineLog struct {
	mu   sync.Mutex
	path string
}

// NewLineLog creates a log at path; parent directories are created on first
// append.
func NewLineLog(path string) *LineLog {
	return &LineLog{path: path}
}

// Path returns the backing file path.
func (l *LineLog) Path() string { return l.path }

// Append marshals v onto its own line.
func (l *LineLog) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal line: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("store: mkdir for %s: %w", l.path, err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", l.path, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("store: append %s: %w", l.path, err)
	}
	return nil
}

// ReadAll returns every well-formed line as raw JSON. Blank lines are
// skipped; a malformed line fails the read (logs are never partially
// trusted).
func (l *LineLog) ReadAll() ([]json.RawMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return readLines(l.path)
}

func readLines(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	var out []json.RawMessage
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(trimWS(line)) == 0 {
				continue
			}
			if !json.Valid(line) {
				return nil, fmt.Errorf("store: malformed line in %s", path)
			}
			out = append(out, json.RawMessage(append([]byte(nil), line...)))
		}
	}
	return out, nil
}

func trimWS(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && (b[start] == ' ' || b[start] == '\t' || b[start] == '\r') {
		start++
	}
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t' || b[end-1] == '\r') {
		end--
	}
	return b[start:end]
}
