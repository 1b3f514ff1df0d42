// Package journal implements the append-only NDJSON session log and its
// resume protocol. It is grounded directly on the audit-trail lineage's
// write-ahead-log discipline: one append-only file per subject, fsync
// after every write, and a streaming restore that skips a malformed
// trailing line instead of refusing to start.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/flowkit/agentctl/internal/task"
)

// Journal is the single-writer handle for one session's append-only log.
// Per spec.md §5, the Journal is the only cross-task mutable resource;
// it is serialised here by a single mutex, exactly as the design note in
// spec.md §9 asks for: an explicit handle, not module-level state.
type Journal struct {
	mu        sync.Mutex
	sessionID task.SessionId
	path      string
	file      *os.File
}

// SessionsDir returns the directory holding session journals under base.
func SessionsDir(base string) string {
	return filepath.Join(base, "sessions")
}

// JournalPath returns the NDJSON file path for sessionID under base.
func JournalPath(base string, sessionID task.SessionId) string {
	return filepath.Join(SessionsDir(base), string(sessionID)+".jsonl")
}

// Open opens (creating if necessary) the journal file for sessionID
// under base, ready to append. Existing content is preserved — Open is
// used both for a brand new session and to resume writing into one
// whose journal already has a partial tail.
func Open(base string, sessionID task.SessionId) (*Journal, error) {
	dir := SessionsDir(base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir %s: %w", dir, err)
	}
	path := JournalPath(base, sessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Journal{sessionID: sessionID, path: path, file: f}, nil
}

// Append serialises record as one JSON line and writes it, fsyncing
// before returning so the append is durable on crash — the full-line-
// or-nothing guarantee spec.md §4.4 requires.
func (j *Journal) Append(record Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("journal: marshal record: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	return nil
}

// Close releases the journal's file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Path returns the on-disk path of this journal.
func (j *Journal) Path() string {
	return j.path
}

// Iterate reads every record from the journal file for sessionID under
// base, in file order. A malformed line is logged to slog and skipped —
// it never halts iteration — per spec.md §4.4.
func Iterate(base string, sessionID task.SessionId) ([]Record, error) {
	path := JournalPath(base, sessionID)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("journal: skipping malformed line", "path", path, "line", lineNo, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("journal: scan %s: %w", path, err)
	}
	return records, nil
}
