package bridge

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/labdeck/internal/testutil/testlog"
)

func TestParseMessage(t *testing.T) {
	testlog.Start(t)
	msg, err := ParseMessage(`progress {"id":"a b"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Topic != "progress" || msg.Payload != `{"id":"a b"}` {
		t.Fatalf("unexpected message: %+v", msg)
	}
	for _, raw := range []string{"", "progress", " payload", "progress   "} {
		if _, err := ParseMessage(raw); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%q: expected ErrMalformedMessage, got %v", raw, err)
		}
	}
}

func TestParseProgress(t *testing.T) {
	testlog.Start(t)
	p, err := ParseProgress(`{'id': 'x1', 'status': 'running', 'value': 60, 'message': 'Processing step 3 of 5...'}`)
	if err != nil {
		t.Fatalf("parse single-quoted: %v", err)
	}
	if p.ID != "x1" || p.Value != 60 || p.Message != "Processing step 3 of 5..." {
		t.Fatalf("unexpected progress: %+v", p)
	}
	p, err = ParseProgress(`{"id":"x2","status":"running","value":12.5,"message":"it's fine"}`)
	if err != nil {
		t.Fatalf("parse strict: %v", err)
	}
	if p.Value != 12.5 || p.Message != "it's fine" {
		t.Fatalf("unexpected progress: %+v", p)
	}
	for _, raw := range []string{`{"id":"x"}`, `{"id":"x","value":"10"}`, `not json`} {
		if _, err := ParseProgress(raw); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("%s: expected ErrMalformedPayload, got %v", raw, err)
		}
	}
}

func TestParseResult(t *testing.T) {
	testlog.Start(t)
	r, err := ParseResult(`{"id":"x1","status":"completed","data":"Analysis of 'a' is complete."}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Data != "Analysis of 'a' is complete." {
		t.Fatalf("unexpected data: %q", r.Data)
	}
	if _, err := ParseResult(`{"status":"completed"}`); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestTaskTrackerFoldsUpdates(t *testing.T) {
	testlog.Start(t)
	tr := NewTaskTracker()
	now := time.Unix(1700000000, 0)
	tr.now = func() time.Time { return now }

	if err := tr.Apply(Message{Topic: TopicProgress, Payload: `{"id":"b","status":"running","value":20,"message":"one"}`}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := tr.Apply(Message{Topic: TopicProgress, Payload: `{"id":"a","status":"running","value":50}`}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := tr.Apply(Message{Topic: TopicResult, Payload: `{"id":"b","status":"completed","data":"ok"}`}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := tr.Apply(Message{Topic: "log", Payload: `anything`}); err != nil {
		t.Fatalf("unknown topics should be ignored: %v", err)
	}
	if err := tr.Apply(Message{Topic: TopicProgress, Payload: `{"id":"c"}`}); err == nil {
		t.Fatalf("expected parse error")
	}

	list := tr.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("unexpected list: %+v", list)
	}
	b, _ := tr.Get("b")
	if !b.Done || b.Progress != 100 || b.Data != "ok" || b.Message != "one" || b.Updates != 2 || !b.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected folded task: %+v", b)
	}
}

func TestNextBackoffDelay(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     time.Second,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 100*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != 400*time.Millisecond {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 10, nil); got != time.Second {
		t.Fatalf("attempt10 got=%v", got)
	}

	cfg.Jitter = true
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		got := NextBackoffDelay(cfg, 10, rng)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
	if got := NextBackoffDelay(BackoffConfig{}, 4, nil); got != 0 {
		t.Fatalf("zero config should not delay, got %v", got)
	}
}
