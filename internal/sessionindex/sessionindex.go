// Package sessionindex implements the SessionIndex (C13): a bbolt-backed
// secondary index over session and task metadata, rebuilt from the
// journal and TaskStore. It is a read-side accelerator only — the
// journal and per-task JSON files remain the source of truth. Entries are
// refreshed only by an explicit Rebuild; Summary and TaskState read what
// was last written and do not rebuild a missing or stale entry.
//
// Adapted from the teacher's WorkflowStore: same embedded-KV-with-warm-
// cache idiom, repurposed from a record-of-truth store to a derived
// cache sitting beside the spec-mandated flat files.
package sessionindex

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/store"
	"github.com/flowkit/agentctl/internal/task"
)

var (
	sessionsBucket = []byte("sessions")
	tasksBucket    = []byte("tasks")
)

// SessionSummary is the per-session record kept in the sessions bucket.
type SessionSummary struct {
	LastPhase  int    `json:"lastPhase"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Blocked    int    `json:"blocked"`
	Terminal   bool   `json:"terminal"`
	TerminalAt string `json:"terminalAt,omitempty"`
}

// Index is a handle on one base directory's index.db.
type Index struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) <base>/index.db.
func Open(base string) (*Index, error) {
	path := filepath.Join(base, "index.db")
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("sessionindex: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(tasksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionindex: init buckets: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the bbolt handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func taskKey(sessionID task.SessionId, taskID task.TaskId) []byte {
	return []byte(string(sessionID) + ":" + string(taskID))
}

// Rebuild replays sessionID's journal and TaskStore snapshot into the
// index, overwriting whatever was previously recorded for it. Rebuild is
// idempotent: running it twice on an unchanged journal yields identical
// rows.
func (idx *Index) Rebuild(base string, sessionID task.SessionId) error {
	records, err := journal.Iterate(base, sessionID)
	if err != nil {
		return fmt.Errorf("sessionindex: iterate journal %s: %w", sessionID, err)
	}

	summary := SessionSummary{}
	states := make(map[task.TaskId]task.State)

	for _, rec := range records {
		switch rec.Type() {
		case journal.TypePhaseStart:
			if lvl, ok := rec["level"].(float64); ok {
				summary.LastPhase = int(lvl)
			}
		case journal.TypeTaskDone:
			if id, ok := rec.TaskID(); ok {
				states[id] = task.StateDone
			}
		case journal.TypeTaskFailed:
			if id, ok := rec.TaskID(); ok {
				states[id] = task.StateFailed
			}
		case journal.TypeSessionComplete, journal.TypeSessionAbort:
			summary.Terminal = true
			if ts, ok := rec.Timestamp(); ok {
				summary.TerminalAt = ts.UTC().Format(time.RFC3339Nano)
			}
		}
	}

	st := store.New(base)
	persisted, err := st.ListTasks()
	if err == nil {
		for _, t := range persisted {
			if t.State == task.StateBlocked {
				states[t.ID] = task.StateBlocked
			} else if _, ok := states[t.ID]; !ok {
				states[t.ID] = t.State
			}
		}
	}

	for _, s := range states {
		switch s {
		case task.StateDone:
			summary.Completed++
		case task.StateFailed:
			summary.Failed++
		case task.StateBlocked:
			summary.Blocked++
		}
	}

	return idx.db.Update(func(tx *bbolt.Tx) error {
		b, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		if err := tx.Bucket(sessionsBucket).Put([]byte(sessionID), b); err != nil {
			return err
		}
		tb := tx.Bucket(tasksBucket)
		for id, s := range states {
			if err := tb.Put(taskKey(sessionID, id), []byte(s)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Summary returns sessionID's indexed summary, or ok=false if it has
// never been indexed.
func (idx *Index) Summary(sessionID task.SessionId) (SessionSummary, bool, error) {
	var summary SessionSummary
	found := false
	err := idx.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket).Get([]byte(sessionID))
		if b == nil {
			return nil
		}
		found = true
		return json.Unmarshal(b, &summary)
	})
	return summary, found, err
}

// ListSessions returns every indexed sessionId, sorted.
func (idx *Index) ListSessions() ([]task.SessionId, error) {
	var ids []task.SessionId
	err := idx.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, task.SessionId(k))
			return nil
		})
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

// TaskState returns the indexed state for one task, or ok=false if
// unindexed.
func (idx *Index) TaskState(sessionID task.SessionId, taskID task.TaskId) (task.State, bool, error) {
	var state task.State
	found := false
	err := idx.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(tasksBucket).Get(taskKey(sessionID, taskID))
		if b == nil {
			return nil
		}
		found = true
		state = task.State(b)
		return nil
	})
	return state, found, err
}
