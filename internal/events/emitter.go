// Package events records what the tool did: validation outcomes, watch
// triggers and lifecycle changes. Events land in a ring buffer, fan out to
// live subscribers and are handed to sinks such as run history.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AaronLay10/pipecheck/internal/validate"
)

// DefaultBufferSize is the number of events kept for /events.
const DefaultBufferSize = 256

type Event struct {
	Timestamp string         `json:"ts"`
	Level     string         `json:"level"`
	Name      string         `json:"event"`
	Message   string         `json:"msg,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`

	// Report is set on validation.passed, validation.failed and
	// validation.parse_error. It is not serialized; Fields carries the summary.
	Report *validate.Report `json:"-"`
}

// Sink receives every emitted event. A sink error never fails Emit.
type Sink interface {
	Name() string
	HandleEvent(Event) error
}

type sinkEntry struct {
	sink        Sink
	errorLogged bool
}

// Bus is the event hub for one process.
type Bus struct {
	buffer *RingBuffer
	now    func() time.Time

	sinkMu sync.Mutex
	sinks  []*sinkEntry

	subMu       sync.RWMutex
	subscribers map[Subscriber]struct{}
}

// NewBus creates a bus keeping size events.
func NewBus(size int) *Bus {
	return &Bus{
		buffer:      NewRingBuffer(size),
		now:         time.Now,
		subscribers: make(map[Subscriber]struct{}),
	}
}

// AddSink registers s for all later events.
func (b *Bus) AddSink(s Sink) {
	b.sinkMu.Lock()
	b.sinks = append(b.sinks, &sinkEntry{sink: s})
	b.sinkMu.Unlock()
}

// Emit records an event and returns its JSON form.
func (b *Bus) Emit(level, name, msg string, fields map[string]any) ([]byte, error) {
	return b.emit(Event{Level: level, Name: name, Message: msg, Fields: fields})
}

func (b *Bus) emit(e Event) ([]byte, error) {
	if err := Validate(e.Name); err != nil {
		return nil, err
	}
	e.Timestamp = b.now().UTC().Format(time.RFC3339Nano)

	b.buffer.Add(e)
	b.broadcast(e)
	b.dispatch(e)

	out, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return out, nil
}

// dispatch hands e to every sink. The first failure of each sink is recorded
// as system.error straight into the buffer, never through emit, so a sink
// that keeps failing cannot recurse.
func (b *Bus) dispatch(e Event) {
	b.sinkMu.Lock()
	sinks := append([]*sinkEntry{}, b.sinks...)
	b.sinkMu.Unlock()

	for _, s := range sinks {
		err := s.sink.HandleEvent(e)
		if err == nil {
			continue
		}

		b.sinkMu.Lock()
		first := !s.errorLogged
		s.errorLogged = true
		b.sinkMu.Unlock()
		if !first {
			continue
		}

		errEvent := Event{
			Timestamp: b.now().UTC().Format(time.RFC3339Nano),
			Level:     "error",
			Name:      SystemError,
			Message:   s.sink.Name() + " failed",
			Fields:    map[string]any{"error": err.Error(), "sink": s.sink.Name()},
		}
		b.buffer.Add(errEvent)
		b.broadcast(errEvent)
	}
}

// Snapshot returns the buffered events, oldest first.
func (b *Bus) Snapshot() []Event {
	return b.buffer.Snapshot()
}

// TotalCount counts every event emitted since the last Clear.
func (b *Bus) TotalCount() uint64 {
	return b.buffer.Total()
}

// Clear resets the event buffer.
func (b *Bus) Clear() {
	b.buffer.Clear()
}
