package bridge

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/labdeck/internal/testutil/testlog"
)

func TestHubDeliversInOrderToEverySubscriber(t *testing.T) {
	testlog.Start(t)
	h := newHub()
	var a, b []string
	unsubA := h.subscribe(func(raw string) { a = append(a, raw) })
	h.subscribe(func(raw string) { b = append(b, raw) })

	h.publish("one")
	h.publish("two")
	unsubA()
	unsubA()
	h.publish("three")

	if len(a) != 2 || a[0] != "one" || a[1] != "two" {
		t.Fatalf("unexpected deliveries to a: %v", a)
	}
	if len(b) != 3 || b[2] != "three" {
		t.Fatalf("unexpected deliveries to b: %v", b)
	}
	if h.len() != 1 {
		t.Fatalf("expected one remaining subscriber, got %d", h.len())
	}
}

func TestHubUnsubscribeWaitsForInFlightDelivery(t *testing.T) {
	testlog.Start(t)
	h := newHub()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	unsub := h.subscribe(func(string) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
	})

	go h.publish("first")
	<-entered

	unsubscribed := make(chan struct{})
	go func() {
		unsub()
		close(unsubscribed)
	}()

	select {
	case <-unsubscribed:
		t.Fatalf("unsubscribe returned while delivery was in flight")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	select {
	case <-unsubscribed:
	case <-time.After(2 * time.Second):
		t.Fatalf("unsubscribe did not return")
	}

	h.publish("second")
	if got := calls.Load(); got != 1 {
		t.Fatalf("callback invoked after unsubscribe: calls=%d", got)
	}
}
