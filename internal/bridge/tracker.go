package bridge

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// TaskStatus is the tracker's view of one backend task.
type TaskStatus struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Data      string    `json:"data,omitempty"`
	Updates   int       `json:"updates"`
	UpdatedAt time.Time `json:"updatedAt"`
	Done      bool      `json:"done"`
}

// TaskTracker folds progress and result payloads into per-task state by id.
type TaskTracker struct {
	mu    sync.RWMutex
	items map[string]TaskStatus
	now   func() time.Time
}

func NewTaskTracker() *TaskTracker {
	return &TaskTracker{
		items: make(map[string]TaskStatus),
		now:   time.Now,
	}
}

// Apply folds msg into the tracker. Topics other than progress and result
// are ignored.
func (t *TaskTracker) Apply(msg Message) error {
	switch msg.Topic {
	case TopicProgress:
		p, err := ParseProgress(msg.Payload)
		if err != nil {
			return err
		}
		t.upsert(p.ID, func(item *TaskStatus) {
			item.Status = p.Status
			item.Progress = p.Value
			item.Message = p.Message
		})
	case TopicResult:
		r, err := ParseResult(msg.Payload)
		if err != nil {
			return err
		}
		t.upsert(r.ID, func(item *TaskStatus) {
			item.Status = r.Status
			item.Data = r.Data
			item.Done = true
			item.Progress = 100
		})
	}
	return nil
}

func (t *TaskTracker) upsert(id string, apply func(*TaskStatus)) {
	key := strings.TrimSpace(id)
	if key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[key]
	if !ok {
		item = TaskStatus{ID: key}
	}
	apply(&item)
	item.Updates++
	item.UpdatedAt = t.now()
	t.items[key] = item
}

func (t *TaskTracker) Get(id string) (TaskStatus, bool) {
	key := strings.TrimSpace(id)
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[key]
	return item, ok
}

func (t *TaskTracker) List() []TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TaskStatus, 0, len(t.items))
	for _, item := range t.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
