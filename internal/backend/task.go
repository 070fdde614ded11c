package backend

import (
	"sort"
	"sync"
	"time"
)

// TaskPhase is the lifecycle marker of one task.
type TaskPhase string

const (
	TaskRunning   TaskPhase = "running"
	TaskCompleted TaskPhase = "completed"
	TaskCanceled  TaskPhase = "canceled"
)

// Task is the in-memory record of one accepted command.
type Task struct {
	ID         string
	Command    string
	Phase      TaskPhase
	Progress   int
	StartedAt  time.Time
	FinishedAt time.Time
}

type taskTable struct {
	mu    sync.RWMutex
	items map[string]Task
}

func newTaskTable() *taskTable {
	return &taskTable{items: make(map[string]Task)}
}

func (t *taskTable) put(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[task.ID] = task
}

func (t *taskTable) update(id string, apply func(*Task)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.items[id]
	if !ok {
		return
	}
	apply(&task)
	t.items[id] = task
}

func (t *taskTable) get(id string) (Task, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	task, ok := t.items[id]
	return task, ok
}

func (t *taskTable) list() []Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Task, 0, len(t.items))
	for _, task := range t.items {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
