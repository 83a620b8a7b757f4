package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/searchcaps/internal/capability"
)

// ---- shared helpers ----

type fakeCollector struct {
	mu   sync.Mutex
	n    int
	snap capability.Snapshot
}

func (f *fakeCollector) Collect(context.Context) capability.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return f.snap
}

func (f *fakeCollector) set(value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = capability.Snapshot{Capabilities: map[string]map[string]string{
		"org.apache.sling.jcr.search": {"similarity.search.active": value},
	}}
}

func (f *fakeCollector) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type memNotifier struct {
	texts []string
}

func (m *memNotifier) Send(ctx context.Context, title, text string) error {
	m.texts = append(m.texts, text)
	return nil
}

// ---- tests ----

func TestWatcher_NotifiesOnChange_RespectsCooldown(t *testing.T) {
	caps := &fakeCollector{}
	caps.set("false")
	nt := &memNotifier{}
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	w := NewWatcher(zap.NewNop(), caps, nt, WatcherConfig{Interval: time.Minute, Cooldown: 5 * time.Minute})
	w.now = func() time.Time { return now }

	// first pass only records
	w.scanOnce(context.Background())
	if len(nt.texts) != 0 {
		t.Fatalf("first pass should not notify, got %v", nt.texts)
	}

	caps.set("true")
	now = now.Add(time.Minute)
	w.scanOnce(context.Background())
	if len(nt.texts) != 1 || !strings.Contains(nt.texts[0], "false -> true") {
		t.Fatalf("want one change notification, got %v", nt.texts)
	}

	// flap back within cooldown -> recorded, not sent
	caps.set("false")
	now = now.Add(time.Minute)
	w.scanOnce(context.Background())
	if len(nt.texts) != 1 {
		t.Fatalf("cooldown should suppress, got %v", nt.texts)
	}

	// same value after cooldown -> nothing changed, nothing sent
	now = now.Add(10 * time.Minute)
	w.scanOnce(context.Background())
	if len(nt.texts) != 1 {
		t.Fatalf("unchanged value should not notify, got %v", nt.texts)
	}

	caps.set("true")
	w.scanOnce(context.Background())
	if len(nt.texts) != 2 || !strings.Contains(nt.texts[1], "false -> true") {
		t.Fatalf("want second notification after cooldown, got %v", nt.texts)
	}
}

func TestWatcher_NotifyInitial(t *testing.T) {
	caps := &fakeCollector{}
	caps.set("true")
	nt := &memNotifier{}
	w := NewWatcher(zap.NewNop(), caps, nt, WatcherConfig{Interval: time.Minute, NotifyInitial: true})

	w.scanOnce(context.Background())
	if len(nt.texts) != 1 || nt.texts[0] != "org.apache.sling.jcr.search/similarity.search.active = true" {
		t.Fatalf("unexpected initial notification: %v", nt.texts)
	}
}

func TestWatcher_FailingSourceKeepsLastValue(t *testing.T) {
	caps := &fakeCollector{}
	caps.set("true")
	nt := &memNotifier{}
	w := NewWatcher(zap.NewNop(), caps, nt, WatcherConfig{Interval: time.Minute})
	w.scanOnce(context.Background())

	caps.mu.Lock()
	caps.snap = capability.Snapshot{
		Capabilities: map[string]map[string]string{},
		Errors:       map[string]string{"org.apache.sling.jcr.search": "boom"},
	}
	caps.mu.Unlock()
	w.scanOnce(context.Background())

	caps.set("true")
	w.scanOnce(context.Background())
	if len(nt.texts) != 0 {
		t.Fatalf("an errored pass is not a change, got %v", nt.texts)
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	caps := &fakeCollector{}
	caps.set("false")
	w := NewWatcher(zap.NewNop(), caps, &memNotifier{}, WatcherConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if caps.calls() < 2 {
		t.Fatalf("expected immediate pass plus ticks, got %d", caps.calls())
	}
}

func TestWatcher_DisabledReturnsImmediately(t *testing.T) {
	caps := &fakeCollector{}
	w := NewWatcher(zap.NewNop(), caps, &memNotifier{}, WatcherConfig{})
	w.Run(context.Background())
	if caps.calls() != 0 {
		t.Fatalf("disabled watcher should not collect, got %d", caps.calls())
	}
}

func TestWatcher_SourceAnsweringLateIsAChange(t *testing.T) {
	caps := &fakeCollector{}
	caps.snap = capability.Snapshot{
		Capabilities: map[string]map[string]string{},
		Errors:       map[string]string{"org.apache.sling.jcr.search": "repository not ready"},
	}
	nt := &memNotifier{}
	w := NewWatcher(zap.NewNop(), caps, nt, WatcherConfig{Interval: time.Minute})

	// two failing passes: nothing recorded, nothing sent
	w.scanOnce(context.Background())
	w.scanOnce(context.Background())
	if len(nt.texts) != 0 {
		t.Fatalf("failing passes should not notify, got %v", nt.texts)
	}

	caps.set("true")
	w.scanOnce(context.Background())
	if len(nt.texts) != 1 || nt.texts[0] != "org.apache.sling.jcr.search/similarity.search.active = true" {
		t.Fatalf("late first answer should be announced, got %v", nt.texts)
	}

	// and only once
	w.scanOnce(context.Background())
	if len(nt.texts) != 1 {
		t.Fatalf("unchanged value re-announced: %v", nt.texts)
	}
}
