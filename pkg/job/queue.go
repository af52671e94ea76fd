package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/store"
)

// Item is one queued intent awaiting governed processing.
type Item struct {
	IntentID  string    `json:"intent_id"`
	JobID     string    `json:"job_id,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// historyEvent rows record every queue mutation and recovery.
type historyEvent struct {
	Event    string `json:"event"`
	IntentID string `json:"intent_id,omitempty"`
	State    string `json:"state,omitempty"`
	From     string `json:"from,omitempty"`
}

// Queue is a durable intent queue: a single JSON document rewritten
// atomically plus an append-only history log.
//
// A corrupt or non-list queue document never fails a read. The bad file is
// quarantined with a .broken suffix, a queue_recovered event is appended to
// history, and the queue resets to empty.
type Queue struct {
	mu        sync.Mutex
	queuePath string
	history   *store.LineLog
}

// NewQueue creates a queue rooted at dir (queue.json and history.jsonl).
func NewQueue(dir string) *Queue {
	return &Queue{
		queuePath: filepath.Join(dir, "queue.json"),
		history:   store.NewLineLog(filepath.Join(dir, "history.jsonl")),
	}
}

// List returns the current queue, recovering from corruption if needed.
func (q *Queue) List() ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.listLocked()
}

func (q *Queue) listLocked() ([]Item, error) {
	data, err := os.ReadFile(q.queuePath)
	if os.IsNotExist(err) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("job: read queue: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		broken, qerr := store.QuarantineCorrupt(q.queuePath)
		if qerr != nil {
			return nil, qerr
		}
		if err := q.history.Append(historyEvent{Event: "queue_recovered", From: broken}); err != nil {
			return nil, err
		}
		if err := store.AtomicWriteJSON(q.queuePath, []Item{}); err != nil {
			return nil, err
		}
		return []Item{}, nil
	}
	return items, nil
}

// Push appends an item and records it in history.
func (q *Queue) Push(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.listLocked()
	if err != nil {
		return err
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	items = append(items, item)
	if err := store.AtomicWriteJSON(q.queuePath, items); err != nil {
		return err
	}
	return q.history.Append(historyEvent{Event: "push", IntentID: item.IntentID, State: item.State})
}

// SetState updates one intent's state in place and records the change.
func (q *Queue) SetState(intentID, state string) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.listLocked()
	if err != nil {
		return Item{}, err
	}
	for i := range items {
		if items[i].IntentID != intentID {
			continue
		}
		items[i].State = state
		if err := store.AtomicWriteJSON(q.queuePath, items); err != nil {
			return Item{}, err
		}
		if err := q.history.Append(historyEvent{Event: "state_change", IntentID: intentID, State: state}); err != nil {
			return Item{}, err
		}
		return items[i], nil
	}
	return Item{}, fmt.Errorf("job: intent not found: %s", intentID)
}

// History returns every recorded queue event in append order.
func (q *Queue) History() ([]map[string]any, error) {
	raw, err := q.history.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(raw))
	for _, line := range raw {
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("job: decode history: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
