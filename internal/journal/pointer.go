package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/flowkit/agentctl/internal/task"
)

// Pointer is the single-file `{sessionId: currentJournalPath}` mapping
// described in spec.md §3/§6.2, updated atomically on every start/complete.
type Pointer struct {
	Sessions map[task.SessionId]string `json:"sessions"`
}

func pointerPath(base string) string {
	return filepath.Join(base, "pointer.json")
}

var pointerMu sync.Mutex

// ReadPointer loads pointer.json under base. A missing file is treated
// as an empty pointer map, not an error.
func ReadPointer(base string) (Pointer, error) {
	b, err := os.ReadFile(pointerPath(base))
	if err != nil {
		if os.IsNotExist(err) {
			return Pointer{Sessions: map[task.SessionId]string{}}, nil
		}
		return Pointer{}, fmt.Errorf("pointer: read: %w", err)
	}
	var p Pointer
	if err := json.Unmarshal(b, &p); err != nil {
		return Pointer{}, fmt.Errorf("pointer: parse: %w", err)
	}
	if p.Sessions == nil {
		p.Sessions = map[task.SessionId]string{}
	}
	return p, nil
}

// SetPointer sets sessionId -> path in pointer.json, writing via a
// temp-file-then-rename so a reader never observes a half-written file.
func SetPointer(base string, sessionID task.SessionId, path string) error {
	pointerMu.Lock()
	defer pointerMu.Unlock()

	p, err := ReadPointer(base)
	if err != nil {
		return err
	}
	p.Sessions[sessionID] = path

	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("pointer: mkdir %s: %w", base, err)
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("pointer: marshal: %w", err)
	}

	finalPath := pointerPath(base)
	tmp, err := os.CreateTemp(base, "pointer-*.json.tmp")
	if err != nil {
		return fmt.Errorf("pointer: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("pointer: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("pointer: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("pointer: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("pointer: rename: %w", err)
	}
	return nil
}
