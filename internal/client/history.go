package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultHistoryLimit bounds the number of entries persisted to disk.
const DefaultHistoryLimit = 1000

// History holds evaluated code strings in submission order. It is loaded
// from durable storage at loop start and persisted at loop exit, both
// best-effort: a missing file is not an error.
type History struct {
	path    string
	limit   int
	entries []string
}

// NewHistory creates a history backed by the given file path.
func NewHistory(path string) *History {
	return &History{path: path, limit: DefaultHistoryLimit}
}

// Path returns the backing file path.
func (h *History) Path() string { return h.path }

// Append records one evaluated code string. Empty strings are ignored.
func (h *History) Append(entry string) {
	if strings.TrimSpace(entry) == "" {
		return
	}
	h.entries = append(h.entries, entry)
}

// Len returns the number of recorded entries.
func (h *History) Len() int { return len(h.entries) }

// Last returns up to n most recent entries in submission order.
func (h *History) Last(n int) []string {
	if n <= 0 || len(h.entries) == 0 {
		return nil
	}
	if n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]string, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Load reads persisted entries from the backing file. Absence of the file is
// not an error.
func (h *History) Load() error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load history: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			h.entries = append(h.entries, line)
		}
	}
	return nil
}

// Save writes the most recent entries (up to the limit) to the backing file.
func (h *History) Save() error {
	entries := h.entries
	if len(entries) > h.limit {
		entries = entries[len(entries)-h.limit:]
	}
	if dir := filepath.Dir(h.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save history: %w", err)
		}
	}
	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString(entry)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(h.path, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
