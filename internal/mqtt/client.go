// Package mqtt publishes validation verdicts so deployment clients can learn
// that a pipeline passed before they submit it.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/events"
	"github.com/AaronLay10/pipecheck/internal/validate"
)

const (
	publishQoS            = 1
	defaultTimeout        = 10 * time.Second
	defaultConnectTimeout = 3 * time.Second
	defaultQueueSize      = 64
	untaggedLevel         = "_untagged"
)

var (
	// ErrNotConnected is returned for verdicts offered while the broker is
	// unreachable. They are dropped, not queued for reconnect.
	ErrNotConnected = errors.New("mqtt not connected")
	// ErrQueueFull is returned when verdicts arrive faster than the broker
	// acknowledges them.
	ErrQueueFull = errors.New("mqtt publish queue full")
	ErrClosed    = errors.New("mqtt publisher closed")
)

// Config describes the broker connection.
type Config struct {
	URL         string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string

	// Timeout bounds each publish acknowledgement; ConnectTimeout bounds
	// the first connect.
	Timeout        time.Duration
	ConnectTimeout time.Duration
	QueueSize      int
}

// publisher is the part of paho.Client the Publisher uses.
type publisher interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Publisher sends retained verdict messages. As an events.Sink it only
// enqueues; a background goroutine waits for broker acknowledgements so a
// slow or absent broker never holds up validation.
type Publisher struct {
	client         publisher
	prefix         string
	timeout        time.Duration
	connectTimeout time.Duration
	log            *zap.Logger
	mu             sync.Mutex

	qmu       sync.RWMutex
	closed    bool
	queue     chan *validate.Report
	done      chan struct{}
	closeOnce sync.Once
}

// NewPublisher creates a publisher but does not connect.
func NewPublisher(cfg Config, log *zap.Logger) *Publisher {
	opts := paho.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	return newPublisher(paho.NewClient(opts), cfg, log)
}

func newPublisher(c publisher, cfg Config, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "pipecheck"
	}
	p := &Publisher{
		client:         c,
		prefix:         prefix,
		timeout:        timeout,
		connectTimeout: connectTimeout,
		log:            log,
		queue:          make(chan *validate.Report, size),
		done:           make(chan struct{}),
	}
	go p.drain()
	return p
}

func (p *Publisher) drain() {
	defer close(p.done)
	for rep := range p.queue {
		if err := p.Publish(rep); err != nil {
			p.log.Warn("verdict not published", zap.String("run_id", rep.RunID), zap.Error(err))
		}
	}
}

// Connect attempts to connect to the broker without blocking past the
// configured connect timeout.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := p.client.Connect()
	if !token.WaitTimeout(p.connectTimeout) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Disconnect stops accepting verdicts, waits up to the publish timeout for
// queued ones to go out and then disconnects from the broker.
func (p *Publisher) Disconnect() {
	p.closeOnce.Do(func() {
		p.qmu.Lock()
		p.closed = true
		close(p.queue)
		p.qmu.Unlock()
	})

	select {
	case <-p.done:
	case <-time.After(p.timeout):
		p.log.Warn("disconnecting with verdicts still queued", zap.Int("queued", len(p.queue)))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Verdict is the retained message body.
type Verdict struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Tag       string    `json:"tag,omitempty"`
	Verdict   string    `json:"verdict"`
	Passed    bool      `json:"passed"`
	Errors    int       `json:"errors"`
	Warnings  int       `json:"warnings"`
	Timestamp time.Time `json:"ts"`
}

// NewVerdict summarizes rep.
func NewVerdict(rep *validate.Report) Verdict {
	return Verdict{
		RunID:     rep.RunID,
		Source:    rep.Source,
		Tag:       rep.Tag,
		Verdict:   rep.Verdict(),
		Passed:    rep.Passed(),
		Errors:    len(rep.Errors()),
		Warnings:  len(rep.Warnings()),
		Timestamp: rep.StartedAt.UTC(),
	}
}

// Topic returns <prefix>/<tag>/verdict. Characters that would change the
// topic structure are replaced.
func (p *Publisher) Topic(tag string) string {
	return fmt.Sprintf("%s/%s/verdict", p.prefix, topicLevel(tag))
}

func topicLevel(tag string) string {
	if tag == "" {
		return untaggedLevel
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, tag)
}

// Publish sends the verdict for rep, retained at QoS 1.
func (p *Publisher) Publish(rep *validate.Report) error {
	payload, err := json.Marshal(NewVerdict(rep))
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}
	topic := p.Topic(rep.Tag)

	p.mu.Lock()
	token := p.client.Publish(topic, publishQoS, true, payload)
	p.mu.Unlock()

	if !token.WaitTimeout(p.timeout) {
		return &PublishTimeoutError{Topic: topic}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	p.log.Debug("verdict published", zap.String("topic", topic), zap.String("verdict", rep.Verdict()))
	return nil
}

// Name implements events.Sink.
func (p *Publisher) Name() string { return "mqtt" }

// HandleEvent queues the report carried by validation outcome events.
// Parse failures carry no tag and still publish under the untagged level.
func (p *Publisher) HandleEvent(e events.Event) error {
	if e.Report == nil {
		return nil
	}
	if !p.IsConnected() {
		return ErrNotConnected
	}

	p.qmu.RLock()
	defer p.qmu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- e.Report:
		return nil
	default:
		return ErrQueueFull
	}
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// PublishTimeoutError indicates a publish was not acknowledged in time.
type PublishTimeoutError struct {
	Topic string
}

func (e *PublishTimeoutError) Error() string {
	return "mqtt publish timeout: " + e.Topic
}
