package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/pipecheck/internal/api"
	"github.com/AaronLay10/pipecheck/internal/events"
	"github.com/AaronLay10/pipecheck/internal/validate"
)

type mockToken struct {
	err     error
	timeout bool
}

func (t *mockToken) Wait() bool                     { return !t.timeout }
func (t *mockToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *mockToken) Error() error                   { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// stalledToken never completes until released, like a QoS 1 publish while
// paho is waiting to reconnect.
type stalledToken struct {
	release chan struct{}
}

func (t *stalledToken) Wait() bool {
	<-t.release
	return true
}

func (t *stalledToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.release:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *stalledToken) Error() error          { return nil }
func (t *stalledToken) Done() <-chan struct{} { return t.release }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient records publishes instead of talking to a broker.
type mockClient struct {
	mu        sync.Mutex
	messages  []published
	token     *mockToken
	pubToken  paho.Token
	connected bool
}

func (m *mockClient) Connect() paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = m.token.err == nil && !m.token.timeout
	return m.token
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, published{topic, qos, retained, payload.([]byte)})
	if m.pubToken != nil {
		return m.pubToken
	}
	return m.token
}

func (m *mockClient) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *mockClient) message(i int) published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[i]
}

// waitForMessages polls until mc has recorded n publishes.
func waitForMessages(t *testing.T, mc *mockClient, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for mc.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d messages, got %d", n, mc.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func connected(t *testing.T, mc *mockClient, cfg Config) *Publisher {
	t.Helper()
	p := newPublisher(mc, cfg, nil)
	if err := p.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(p.Disconnect)
	return p
}

func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

const taggedDoc = "version: v3\nsettings:\n  tag: prod/east\nnodes:\n  - name: a\n    type: ed_self_telemetry_input\nlinks: []\n"

func TestTopic(t *testing.T) {
	p := newPublisher(&mockClient{token: &mockToken{}}, Config{TopicPrefix: "/edge/"}, nil)

	tests := map[string]string{
		"prod":      "edge/prod/verdict",
		"":          "edge/_untagged/verdict",
		"prod/east": "edge/prod_east/verdict",
		"a+b#c":     "edge/a_b_c/verdict",
	}
	for tag, want := range tests {
		if got := p.Topic(tag); got != want {
			t.Errorf("Topic(%q) = %q, want %q", tag, got, want)
		}
	}

	if got := newPublisher(&mockClient{token: &mockToken{}}, Config{}, nil).Topic("x"); got != "pipecheck/x/verdict" {
		t.Errorf("default prefix: got %q", got)
	}
}

func TestPublish_RetainedQoS1(t *testing.T) {
	mc := &mockClient{token: &mockToken{}}
	p := newPublisher(mc, Config{TopicPrefix: "pipecheck"}, nil)

	rep := validate.New().ValidateBytes(context.Background(), "p.yaml", []byte(taggedDoc))
	if err := p.Publish(rep); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(mc.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mc.messages))
	}
	msg := mc.messages[0]
	if msg.topic != "pipecheck/prod_east/verdict" {
		t.Errorf("unexpected topic %q", msg.topic)
	}
	if msg.qos != 1 || !msg.retained {
		t.Errorf("expected retained QoS 1, got qos=%d retained=%v", msg.qos, msg.retained)
	}

	var v Verdict
	if err := json.Unmarshal(msg.payload, &v); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if v.Verdict != validate.VerdictPass || !v.Passed || v.Tag != "prod/east" || v.RunID != rep.RunID {
		t.Errorf("unexpected verdict %+v", v)
	}
}

func TestPublish_Errors(t *testing.T) {
	rep := validate.New().ValidateBytes(context.Background(), "p.yaml", []byte(taggedDoc))

	p := newPublisher(&mockClient{token: &mockToken{timeout: true}}, Config{}, nil)
	var timeoutErr *PublishTimeoutError
	if err := p.Publish(rep); !errors.As(err, &timeoutErr) {
		t.Errorf("expected PublishTimeoutError, got %v", err)
	}

	broker := errors.New("not authorized")
	p = newPublisher(&mockClient{token: &mockToken{err: broker}}, Config{}, nil)
	if err := p.Publish(rep); !errors.Is(err, broker) {
		t.Errorf("expected wrapped broker error, got %v", err)
	}
}

func TestConnect(t *testing.T) {
	mc := &mockClient{token: &mockToken{}}
	p := newPublisher(mc, Config{}, nil)
	if err := p.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !p.IsConnected() {
		t.Error("expected connected")
	}
	p.Disconnect()
	if p.IsConnected() {
		t.Error("expected disconnected")
	}

	p = newPublisher(&mockClient{token: &mockToken{timeout: true}}, Config{}, nil)
	var timeoutErr *ConnectTimeoutError
	if err := p.Connect(); !errors.As(err, &timeoutErr) {
		t.Errorf("expected ConnectTimeoutError, got %v", err)
	}
}

func TestPublisherAsSink(t *testing.T) {
	mc := &mockClient{token: &mockToken{}}
	bus := events.NewBus(16)
	bus.AddSink(connected(t, mc, Config{}))

	_, _ = bus.Emit("info", events.WatchChanged, "", nil)

	bus.EmitReport(validate.New().ValidateBytes(context.Background(), "bad.yaml", []byte("version: v2\n")))
	waitForMessages(t, mc, 1)
	if mc.count() != 1 {
		t.Fatalf("events without a report must not publish, got %d messages", mc.count())
	}
	if got := mc.message(0).topic; got != "pipecheck/_untagged/verdict" {
		t.Errorf("unexpected topic %q", got)
	}
}

func TestPublisherDisconnectedDropsVerdicts(t *testing.T) {
	mc := &mockClient{token: &mockToken{}}
	p := newPublisher(mc, Config{}, nil)
	t.Cleanup(p.Disconnect)

	bus := events.NewBus(16)
	bus.AddSink(p)
	rep := validate.New().ValidateBytes(context.Background(), "p.yaml", []byte(taggedDoc))

	if err := p.HandleEvent(events.Event{Name: events.ValidationPassed, Report: rep}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	bus.EmitReport(rep)
	bus.EmitReport(rep)

	sinkErrors := 0
	for _, e := range bus.Snapshot() {
		if e.Name == events.SystemError && e.Fields["sink"] == "mqtt" {
			sinkErrors++
		}
	}
	if sinkErrors != 1 {
		t.Errorf("expected the dropped verdicts to be recorded once, got %d", sinkErrors)
	}
	if mc.count() != 0 {
		t.Errorf("expected nothing published while disconnected, got %d", mc.count())
	}
}

func TestPublisherQueueFull(t *testing.T) {
	stalled := &stalledToken{release: make(chan struct{})}
	mc := &mockClient{token: &mockToken{}, pubToken: stalled}
	p := connected(t, mc, Config{QueueSize: 1, Timeout: 5 * time.Second})
	t.Cleanup(func() { close(stalled.release) })

	rep := validate.New().ValidateBytes(context.Background(), "p.yaml", []byte(taggedDoc))
	e := events.Event{Name: events.ValidationPassed, Report: rep}

	// The first verdict is taken by the worker, the second fills the queue.
	if err := p.HandleEvent(e); err != nil {
		t.Fatalf("first verdict: %v", err)
	}
	waitForMessages(t, mc, 1)
	if err := p.HandleEvent(e); err != nil {
		t.Fatalf("second verdict: %v", err)
	}
	if err := p.HandleEvent(e); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestDisconnectFlushesQueuedVerdicts(t *testing.T) {
	mc := &mockClient{token: &mockToken{}}
	p := newPublisher(mc, Config{}, nil)
	if err := p.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	rep := validate.New().ValidateBytes(context.Background(), "p.yaml", []byte(taggedDoc))
	for i := 0; i < 3; i++ {
		if err := p.HandleEvent(events.Event{Name: events.ValidationPassed, Report: rep}); err != nil {
			t.Fatalf("verdict %d: %v", i, err)
		}
	}
	p.Disconnect()

	if mc.count() != 3 {
		t.Errorf("expected 3 verdicts flushed before disconnect, got %d", mc.count())
	}
	if err := p.HandleEvent(events.Event{Name: events.ValidationPassed, Report: rep}); err == nil {
		t.Error("expected an error after disconnect")
	}
}

func TestStalledBrokerDoesNotDelayValidate(t *testing.T) {
	stalled := &stalledToken{release: make(chan struct{})}
	mc := &mockClient{token: &mockToken{}, pubToken: stalled}
	p := connected(t, mc, Config{Timeout: 5 * time.Second})
	t.Cleanup(func() { close(stalled.release) })

	bus := events.NewBus(16)
	bus.AddSink(p)
	h := api.NewServer(api.Options{Bus: bus}).Handler()

	start := time.Now()
	req := httptest.NewRequest(http.MethodPost, "/validate?name=p.yaml", strings.NewReader(taggedDoc))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	elapsed := time.Since(start)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if elapsed > time.Second {
		t.Errorf("validate waited on the broker: took %v", elapsed)
	}
	waitForMessages(t, mc, 1)
}
