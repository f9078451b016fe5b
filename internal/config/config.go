// Package config loads pipecheck's own settings. Pipeline documents are not
// configuration; they are read by the pipeline package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/AaronLay10/pipecheck/internal/logging"
	"github.com/AaronLay10/pipecheck/internal/tracing"
	"github.com/AaronLay10/pipecheck/internal/validate"
)

// EnvPrefix prefixes every environment override, e.g. PIPECHECK_SERVER_PORT.
const EnvPrefix = "PIPECHECK"

// Secret environment variables read through ResolveSecret.
const (
	EnvPostgresPassword = "PIPECHECK_PG_PASSWORD"
	EnvMQTTPassword     = "PIPECHECK_MQTT_PASSWORD"
)

// Config is the full tool configuration.
type Config struct {
	Log      logging.Config `mapstructure:"log"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Tracing  tracing.Config `mapstructure:"tracing"`
	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

// RulesConfig extends the built-in rule set.
type RulesConfig struct {
	ExtraProcessors   []string `mapstructure:"extra_processors"`
	RequiredNodeTypes []string `mapstructure:"required_node_types"`
}

// Apply returns base extended with the configured processors. Configured
// required node types replace the defaults when any are given.
func (r RulesConfig) Apply(base validate.Rules) validate.Rules {
	out := base.WithProcessors(r.ExtraProcessors...)
	if len(r.RequiredNodeTypes) > 0 {
		out.RequiredNodeTypes = nil
		out = out.WithRequiredNodeTypes(r.RequiredNodeTypes...)
	}
	return out
}

// ServerConfig configures `pipecheck serve`.
type ServerConfig struct {
	Port        int           `mapstructure:"port"`
	TLSCertFile string        `mapstructure:"tls_cert_file"`
	TLSKeyFile  string        `mapstructure:"tls_key_file"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	MaxBodySize int64         `mapstructure:"max_body_size"`

	// RequirePostgres and RequireMQTT make /ready fail while the sink is
	// down. By default both sinks are optional.
	RequirePostgres bool `mapstructure:"require_postgres"`
	RequireMQTT     bool `mapstructure:"require_mqtt"`
}

// ListenPort returns the configured port, defaulting to 8080 if not set.
func (s ServerConfig) ListenPort() int {
	if s.Port == 0 {
		return 8080
	}
	return s.Port
}

// PostgresConfig configures run history. History is off unless DSN or Host
// is set.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Enabled reports whether history is configured.
func (p PostgresConfig) Enabled() bool {
	return p.DSN != "" || p.Host != ""
}

// ConnString builds a lib/pq connection string. The password comes from
// PIPECHECK_PG_PASSWORD or its _FILE variant.
func (p PostgresConfig) ConnString() (string, error) {
	if p.DSN != "" {
		return p.DSN, nil
	}
	password, err := ResolveSecret(EnvPostgresPassword)
	if err != nil {
		return "", err
	}

	port := p.Port
	if port == 0 {
		port = 5432
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	parts := []string{
		"host=" + p.Host,
		fmt.Sprintf("port=%d", port),
		"user=" + p.User,
	}
	if password != "" {
		parts = append(parts, "password="+password)
	}
	parts = append(parts, "dbname="+p.Database, "sslmode="+sslmode)
	return strings.Join(parts, " "), nil
}

// MQTTConfig configures the verdict publisher. Publishing is off unless URL
// is set.
type MQTTConfig struct {
	URL         string `mapstructure:"url"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	Username    string `mapstructure:"username"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.URL != ""
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Log:     logging.DefaultConfig(),
		Tracing: tracing.DefaultConfig(),
		Server: ServerConfig{
			Port:        8080,
			CacheTTL:    5 * time.Minute,
			MaxBodySize: 1 << 20,
		},
		Postgres: PostgresConfig{
			Port:     5432,
			User:     "pipecheck",
			Database: "pipecheck",
			SSLMode:  "disable",
		},
		MQTT: MQTTConfig{
			ClientID:    "pipecheck",
			TopicPrefix: "pipecheck",
		},
	}
}

// SetDefaults registers Defaults with v so env overrides work for keys that
// appear in no config file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("rules.extra_processors", []string{})
	v.SetDefault("rules.required_node_types", []string{})
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.cache_ttl", d.Server.CacheTTL)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.require_postgres", false)
	v.SetDefault("server.require_mqtt", false)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", d.Postgres.Port)
	v.SetDefault("postgres.user", d.Postgres.User)
	v.SetDefault("postgres.database", d.Postgres.Database)
	v.SetDefault("postgres.sslmode", d.Postgres.SSLMode)
	v.SetDefault("mqtt.url", "")
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.topic_prefix", d.MQTT.TopicPrefix)
	v.SetDefault("mqtt.username", "")
}

// Load reads configuration into v. An explicit path must exist. Otherwise
// ./.pipecheck.yaml and ~/.config/pipecheck/config.yaml are tried in order
// and a missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else if _, err := os.Stat(".pipecheck.yaml"); err == nil {
		v.SetConfigFile(".pipecheck.yaml")
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pipecheck"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
