package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AaronLay10/pipecheck/internal/validate"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBus(16)

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	if b.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", b.SubscriberCount())
	}

	b.Unsubscribe(sub1)
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after unsubscribe, got %d", b.SubscriberCount())
	}

	// second unsubscribe is a no-op, not a double close
	b.Unsubscribe(sub1)

	b.Unsubscribe(sub2)
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestBroadcastToSubscribers(t *testing.T) {
	b := NewBus(16)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	if _, err := b.Emit("info", WatchChanged, "", map[string]any{"path": "p.yaml"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	for i, sub := range []Subscriber{sub1, sub2} {
		select {
		case e := <-sub:
			if e.Name != WatchChanged {
				t.Errorf("sub%d: expected %q, got %q", i+1, WatchChanged, e.Name)
			}
			if e.Fields["path"] != "p.yaml" {
				t.Errorf("sub%d: expected path p.yaml, got %v", i+1, e.Fields["path"])
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("sub%d: timeout waiting for event", i+1)
		}
	}
}

func TestEmitRejectsUnknownEvents(t *testing.T) {
	b := NewBus(16)
	if _, err := b.Emit("info", "node.started", "", nil); err == nil {
		t.Error("expected error for event outside the allowlist")
	}
	if len(b.Snapshot()) != 0 {
		t.Error("rejected event must not be buffered")
	}
}

func TestRecentEventsAndTotal(t *testing.T) {
	b := NewBus(8)
	for i := 0; i < 10; i++ {
		if _, err := b.Emit("info", ValidationStarted, "", map[string]any{"i": i}); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	recent := b.RecentEvents(5)
	if len(recent) != 5 {
		t.Fatalf("expected 5 recent events, got %d", len(recent))
	}
	if recent[0].Fields["i"] != 5 {
		t.Errorf("expected first recent event i=5, got %v", recent[0].Fields["i"])
	}

	if all := b.RecentEvents(100); len(all) != 8 {
		t.Errorf("expected buffer capped at 8, got %d", len(all))
	}
	if b.TotalCount() != 10 {
		t.Errorf("expected total 10, got %d", b.TotalCount())
	}

	b.Clear()
	if len(b.Snapshot()) != 0 || b.TotalCount() != 0 {
		t.Error("expected empty bus after Clear")
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	b := NewBus(16)
	subs := []Subscriber{b.Subscribe(), b.Subscribe(), b.Subscribe()}

	b.CloseAllSubscribers()

	for i, sub := range subs {
		if _, ok := <-sub; ok {
			t.Errorf("sub%d: expected closed channel", i)
		}
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

type recordingSink struct {
	err    error
	events []Event
}

func (s *recordingSink) Name() string { return "recorder" }

func (s *recordingSink) HandleEvent(e Event) error {
	s.events = append(s.events, e)
	return s.err
}

func TestEmitReport(t *testing.T) {
	b := NewBus(16)
	sink := &recordingSink{}
	b.AddSink(sink)

	v := validate.New()
	pass := v.ValidateBytes(context.Background(), "ok.yaml", []byte(
		"version: v3\nsettings:\n  tag: t\nnodes:\n  - name: a\n    type: ed_self_telemetry_input\nlinks: []\n"))
	fail := v.ValidateBytes(context.Background(), "bad.yaml", []byte("version: v2\n"))
	broken := v.ValidateBytes(context.Background(), "broken.yaml", []byte("a: [\n"))

	b.EmitReport(pass)
	b.EmitReport(fail)
	b.EmitReport(broken)

	want := []string{ValidationPassed, ValidationFailed, ValidationParseError}
	if len(sink.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(sink.events))
	}
	for i, name := range want {
		if sink.events[i].Name != name {
			t.Errorf("event %d: expected %q, got %q", i, name, sink.events[i].Name)
		}
		if sink.events[i].Report == nil {
			t.Errorf("event %d: report not attached", i)
		}
	}
	if sink.events[0].Fields["tag"] != "t" {
		t.Errorf("expected tag field, got %v", sink.events[0].Fields["tag"])
	}
	if sink.events[1].Fields["verdict"] != validate.VerdictFail {
		t.Errorf("expected FAIL verdict, got %v", sink.events[1].Fields["verdict"])
	}
}

func TestSinkFailureRecordedOnce(t *testing.T) {
	b := NewBus(16)
	b.AddSink(&recordingSink{err: errors.New("connection refused")})

	for i := 0; i < 3; i++ {
		if _, err := b.Emit("info", WatchChanged, "", nil); err != nil {
			t.Fatalf("emit must not fail on sink errors: %v", err)
		}
	}

	systemErrors := 0
	for _, e := range b.Snapshot() {
		if e.Name == SystemError {
			systemErrors++
			if e.Fields["error"] != "connection refused" {
				t.Errorf("unexpected error field %v", e.Fields["error"])
			}
		}
	}
	if systemErrors != 1 {
		t.Errorf("expected exactly one system.error, got %d", systemErrors)
	}
}
