package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/config"
	"github.com/AaronLay10/pipecheck/internal/events"
	"github.com/AaronLay10/pipecheck/internal/logging"
	"github.com/AaronLay10/pipecheck/internal/mqtt"
	"github.com/AaronLay10/pipecheck/internal/storage/postgres"
)

const sinkOpenTimeout = 10 * time.Second

// sinks are the optional outer consumers of validation outcomes. Either
// field is nil when not configured or when it could not be opened.
type sinks struct {
	history   *postgres.History
	publisher *mqtt.Publisher
}

// openSinks wires run history and the verdict publisher into bus. A sink
// that fails to open is logged and left out; it never fails the command.
func (a *app) openSinks(ctx context.Context, bus *events.Bus) *sinks {
	s := &sinks{}

	if a.cfg.Postgres.Enabled() {
		s.history = a.openHistory(ctx)
		if s.history != nil {
			bus.AddSink(s.history)
		}
	}

	if a.cfg.MQTT.Enabled() {
		s.publisher = a.openPublisher()
		if s.publisher != nil {
			bus.AddSink(s.publisher)
		}
	}
	return s
}

func (a *app) openHistory(ctx context.Context) *postgres.History {
	connStr, err := a.cfg.Postgres.ConnString()
	if err != nil {
		a.log.Warn("run history disabled", zap.Error(err))
		return nil
	}
	octx, cancel := context.WithTimeout(ctx, sinkOpenTimeout)
	defer cancel()
	h, err := postgres.Open(octx, connStr)
	if err != nil {
		a.log.Warn("run history disabled", zap.Error(err))
		return nil
	}
	a.log.Info("run history enabled", zap.String("host", a.cfg.Postgres.Host))
	return h
}

// openPublisher returns the publisher even when the first connect fails;
// paho keeps retrying in the background.
func (a *app) openPublisher() *mqtt.Publisher {
	password, err := config.ResolveSecret(config.EnvMQTTPassword)
	if err != nil {
		a.log.Warn("verdict publishing disabled", zap.Error(err))
		return nil
	}
	p := mqtt.NewPublisher(mqtt.Config{
		URL:         a.cfg.MQTT.URL,
		ClientID:    a.cfg.MQTT.ClientID,
		TopicPrefix: a.cfg.MQTT.TopicPrefix,
		Username:    a.cfg.MQTT.Username,
		Password:    password,
	}, a.log)
	if err := p.Connect(); err != nil {
		a.log.Warn("mqtt connect failed, retrying in background",
			zap.String("url", a.cfg.MQTT.URL), zap.Error(err))
	} else {
		a.log.Info("verdict publishing enabled", zap.String("url", a.cfg.MQTT.URL))
	}
	return p
}

func (s *sinks) close(log *zap.Logger) {
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			log.Warn("closing run history", zap.Error(err))
		}
	}
}

// logEvents mirrors bus events into log until the returned stop func is
// called or the bus closes its subscribers. Sink failures are warnings;
// everything else is debug detail.
func logEvents(bus *events.Bus, log *zap.Logger) (stop func()) {
	sub := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub {
			fields := make([]zap.Field, 0, len(e.Fields)+1)
			fields = append(fields, zap.String("event", e.Name))
			for k, v := range e.Fields {
				fields = append(fields, zap.Any(k, v))
			}
			msg := e.Message
			if msg == "" {
				msg = e.Name
			}
			if e.Name == events.SystemError {
				log.Warn(msg, fields...)
			} else {
				log.Debug(msg, fields...)
			}
		}
	}()
	return func() {
		bus.Unsubscribe(sub)
		<-done
	}
}

// serveLogDefaults switches serve to JSON logs at info level unless the user
// chose otherwise in the config file or environment.
func serveLogDefaults(v *viper.Viper, cfg *config.Config) {
	if !v.InConfig("log.format") && !envSet("log.format") {
		cfg.Log.Format = logging.FormatJSON
	}
	if !v.InConfig("log.level") && !envSet("log.level") {
		cfg.Log.Level = "info"
	}
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(config.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	return ok
}
