package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/pipecheck/internal/events"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

// startWS serves a fresh Server and returns its bus and the ws URL.
func startWS(t *testing.T) (*events.Bus, string) {
	t.Helper()
	bus := events.NewBus(64)
	s := NewServer(Options{Bus: bus})
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return bus, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	bus, url := startWS(t)

	for i := 0; i < 5; i++ {
		bus.EmitStarted("a.yaml", "test")
	}

	conn := dial(t, url)
	defer conn.Close()

	for i := 0; i < 5; i++ {
		e := readEvent(t, conn)
		if e.Name != events.ValidationStarted {
			t.Errorf("expected %q, got %q", events.ValidationStarted, e.Name)
		}
	}
}

func TestWebSocketReceivesNewEvents(t *testing.T) {
	bus, url := startWS(t)

	conn := dial(t, url)
	defer conn.Close()

	waitFor(t, 2*time.Second, func() bool { return bus.SubscriberCount() == 1 }, "subscriber to register")
	bus.EmitReport(failingReport(t))

	e := readEvent(t, conn)
	if e.Name != events.ValidationFailed {
		t.Errorf("expected %q, got %q", events.ValidationFailed, e.Name)
	}
	if e.Fields["source"] != "ws.yaml" {
		t.Errorf("expected source 'ws.yaml', got '%v'", e.Fields["source"])
	}
	if e.Fields["verdict"] != "FAIL" {
		t.Errorf("expected verdict 'FAIL', got '%v'", e.Fields["verdict"])
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	bus, url := startWS(t)

	conn := dial(t, url)
	waitFor(t, 2*time.Second, func() bool { return bus.SubscriberCount() == 1 }, "subscriber to register")

	bus.EmitStarted("a.yaml", "test")
	if e := readEvent(t, conn); e.Name != events.ValidationStarted {
		t.Errorf("expected %q, got %q", events.ValidationStarted, e.Name)
	}

	conn.Close()

	waitFor(t, 5*time.Second, func() bool {
		return bus.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}

func TestWebSocketMultipleClients(t *testing.T) {
	bus, url := startWS(t)

	conn1 := dial(t, url)
	defer conn1.Close()
	conn2 := dial(t, url)
	defer conn2.Close()

	waitFor(t, 2*time.Second, func() bool { return bus.SubscriberCount() == 2 }, "both subscribers to register")
	bus.EmitStarted("multi.yaml", "test")

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		e := readEvent(t, conn)
		if e.Name != events.ValidationStarted {
			t.Errorf("client%d: expected %q, got %q", i+1, events.ValidationStarted, e.Name)
		}
	}
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	bus, url := startWS(t)

	conn := dial(t, url)
	defer conn.Close()
	waitFor(t, 2*time.Second, func() bool { return bus.SubscriberCount() == 1 }, "subscriber to register")

	bus.CloseAllSubscribers()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed after CloseAllSubscribers")
	}
}
