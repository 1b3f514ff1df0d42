package reviewer

import (
	"encoding/json"
	"log/slog"
	"os"
	"regexp"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// overridePatternFile is the on-disk shape of an optional supplemental
// fallback-pattern table an operator can drop alongside config.json to
// extend the fixed table in spec.md §6.3 without a rebuild.
type overridePatternFile struct {
	Patterns []struct {
		Kind   string `json:"kind"`
		Regex  string `json:"regex"`
		Weight int    `json:"weight"`
	} `json:"patterns"`
}

// PatternWatcher hot-reloads a JSON override-pattern file, swapping the
// compiled table atomically the way the signature-matching lineage's
// hot-reload scanner swaps a compiled rule set: readers never observe a
// half-updated table, and a bad file on disk simply fails to load,
// leaving the previous table in place.
type PatternWatcher struct {
	path    string
	current atomic.Value // []FallbackPattern
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewPatternWatcher loads path once (if it exists) and starts watching
// it for changes. A missing file is not an error: Overrides() returns an
// empty table. A path that does not exist at construction is not watched,
// so a file created there later is not loaded by this watcher.
func NewPatternWatcher(path string) (*PatternWatcher, error) {
	pw := &PatternWatcher{path: path, stopCh: make(chan struct{})}
	pw.current.Store([]FallbackPattern{})
	pw.reload()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("reviewer: pattern hot-reload unavailable", "error", err)
		return pw, nil
	}
	pw.watcher = w
	if err := w.Add(path); err != nil {
		// Watching a not-yet-existing file is fine; it simply never fires.
		slog.Debug("reviewer: pattern override file not present yet", "path", path)
	}
	go pw.loop()
	return pw, nil
}

func (pw *PatternWatcher) loop() {
	for {
		select {
		case ev, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pw.reload()
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("reviewer: pattern watcher error", "error", err)
		case <-pw.stopCh:
			return
		}
	}
}

func (pw *PatternWatcher) reload() {
	b, err := os.ReadFile(pw.path)
	if err != nil {
		return // missing file: keep whatever table is currently loaded
	}
	var f overridePatternFile
	if err := json.Unmarshal(b, &f); err != nil {
		slog.Warn("reviewer: override pattern file invalid, keeping previous table", "path", pw.path, "error", err)
		return
	}
	patterns := make([]FallbackPattern, 0, len(f.Patterns))
	for _, p := range f.Patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			slog.Warn("reviewer: skipping invalid override pattern", "kind", p.Kind, "error", err)
			continue
		}
		patterns = append(patterns, FallbackPattern{Kind: p.Kind, Regex: re, Weight: p.Weight})
	}
	pw.current.Store(patterns)
	slog.Info("reviewer: reloaded override pattern table", "path", pw.path, "count", len(patterns))
}

// Overrides returns the currently loaded supplemental pattern table.
func (pw *PatternWatcher) Overrides() []FallbackPattern {
	return pw.current.Load().([]FallbackPattern)
}

// Close stops the watcher goroutine and releases its file handle.
func (pw *PatternWatcher) Close() error {
	close(pw.stopCh)
	if pw.watcher != nil {
		return pw.watcher.Close()
	}
	return nil
}
