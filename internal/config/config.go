// Package config provides configuration management for tinycron.
// It uses koanf v2 to load the YAML config file and yaml.v3 to write it back
// (tinycron init).
//
// Configuration is loaded from /etc/tinycron/tinycron.yaml by default. The
// file may hold NATS seeds and WebSocket tokens, so it is written 0600.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"

	"github.com/guojianbin/TinyCron/internal/cronexpr"
	"github.com/guojianbin/TinyCron/internal/executor"
	"github.com/guojianbin/TinyCron/internal/logging"
)

// DefaultConfigPath is the default location of the config file.
const DefaultConfigPath = "/etc/tinycron/tinycron.yaml"

// DefaultSubject is the NATS subject prefix events are published under.
const DefaultSubject = "tinycron.events"

// jobNamespace seeds the name-based UUIDs given to jobs without an id.
var jobNamespace = uuid.MustParse("6f1c3c1e-9a53-4b7e-8d2a-3f0f2f6f7c11")

// Config holds the daemon configuration loaded from the YAML config file.
// Fields are tagged for both koanf (loading) and yaml (saving).
type Config struct {
	// LogLevel is one of "debug", "info", "warn", "error". Default: "info".
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// PollInterval is the scheduler tick period in seconds, 1-60.
	// Default: 30.
	PollInterval int `koanf:"poll_interval" yaml:"poll_interval"`

	// HistoryPath is the bbolt file recording job runs. Empty disables
	// run history.
	HistoryPath string `koanf:"history_path" yaml:"history_path"`

	// HistoryLimit caps the number of stored runs. 0 keeps everything.
	HistoryLimit int `koanf:"history_limit" yaml:"history_limit"`

	// Watch reloads jobs when the config file changes. Default: true.
	Watch bool `koanf:"watch" yaml:"watch"`

	NATS      NATSConfig      `koanf:"nats" yaml:"nats,omitempty"`
	WebSocket WebSocketConfig `koanf:"websocket" yaml:"websocket,omitempty"`

	Jobs []JobConfig `koanf:"jobs" yaml:"jobs"`
}

// NATSConfig enables publishing lifecycle events to NATS.
type NATSConfig struct {
	// Servers is a comma-separated list of NATS URLs. Empty disables NATS.
	Servers string `koanf:"servers" yaml:"servers,omitempty"`

	// NKeySeed authenticates with an NKey when set.
	NKeySeed string `koanf:"nkey_seed" yaml:"nkey_seed,omitempty"`

	// Subject is the prefix; events go to <subject>.<event type>.
	Subject string `koanf:"subject" yaml:"subject,omitempty"`
}

// WebSocketConfig enables streaming lifecycle events to a collector.
type WebSocketConfig struct {
	URL   string `koanf:"url" yaml:"url,omitempty"`
	Token string `koanf:"token" yaml:"token,omitempty"`
}

// JobConfig describes one scheduled job. Exactly one of Command or HTTP
// must be set.
type JobConfig struct {
	ID          string `koanf:"id" yaml:"id,omitempty"`
	Description string `koanf:"description" yaml:"description,omitempty"`
	Schedule    string `koanf:"schedule" yaml:"schedule"`

	// Command is run with /bin/sh -c, or fed to Interpreter on stdin
	// when Interpreter is set.
	Command     string `koanf:"command" yaml:"command,omitempty"`
	Interpreter string `koanf:"interpreter" yaml:"interpreter,omitempty"`
	PTY         bool   `koanf:"pty" yaml:"pty,omitempty"`

	// Timeout in seconds. Default: 300.
	Timeout int `koanf:"timeout" yaml:"timeout,omitempty"`

	// MaxLoad skips the run while the 1-minute load average is above it.
	// 0 disables the check.
	MaxLoad float64 `koanf:"max_load" yaml:"max_load,omitempty"`

	HTTP *HTTPConfig `koanf:"http" yaml:"http,omitempty"`
}

// HTTPConfig describes a webhook job.
type HTTPConfig struct {
	URL     string            `koanf:"url" yaml:"url"`
	Method  string            `koanf:"method" yaml:"method,omitempty"`
	Body    string            `koanf:"body" yaml:"body,omitempty"`
	Headers map[string]string `koanf:"headers" yaml:"headers,omitempty"`
}

// Validation errors. Load joins one error per offending field or job.
var (
	ErrInvalidPollInterval = errors.New("poll_interval must be between 1 and 60 seconds")
	ErrInvalidLogLevel     = errors.New("log_level must be debug, info, warn or error")
	ErrInvalidHistoryLimit = errors.New("history_limit must not be negative")
	ErrInvalidSchedule     = errors.New("invalid schedule")
	ErrNoAction            = errors.New("job needs either command or http")
	ErrMultipleActions     = errors.New("job cannot have both command and http")
	ErrDuplicateJobID      = errors.New("duplicate job id")
	ErrInvalidTimeout      = errors.New("timeout must not be negative")
	ErrInvalidMaxLoad      = errors.New("max_load must not be negative")
	ErrInvalidInterpreter  = errors.New("interpreter not allowed")
	ErrInvalidURL          = errors.New("invalid url")
)

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	return Config{
		LogLevel:     "info",
		PollInterval: 30,
		HistoryLimit: 1000,
		Watch:        true,
	}
}

// Load reads configuration from the YAML file at path, applies defaults
// and validates it. Every validation failure is reported, joined.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults fills optional fields that depend on other fields.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.NATS.Servers != "" && c.NATS.Subject == "" {
		c.NATS.Subject = DefaultSubject
	}
	for i := range c.Jobs {
		job := &c.Jobs[i]
		job.Schedule = strings.TrimSpace(job.Schedule)
		if job.ID == "" {
			job.ID = job.derivedID()
		}
		if job.Timeout == 0 {
			job.Timeout = 300
		}
		if job.HTTP != nil && job.HTTP.Method == "" {
			job.HTTP.Method = "GET"
		}
	}
}

// derivedID is stable across reloads as long as the schedule and action
// do not change.
func (j *JobConfig) derivedID() string {
	key := j.Schedule + "\x00" + j.Command + "\x00" + j.Interpreter
	if j.HTTP != nil {
		key += "\x00" + j.HTTP.Method + " " + j.HTTP.URL
	}
	return uuid.NewSHA1(jobNamespace, []byte(key)).String()
}

// Validate checks the whole configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.PollInterval < 1 || c.PollInterval > 60 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidPollInterval, c.PollInterval))
	}
	if !logging.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidLogLevel, c.LogLevel))
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, ErrInvalidHistoryLimit)
	}
	if c.WebSocket.URL != "" {
		if err := checkURL(c.WebSocket.URL, "ws", "wss"); err != nil {
			errs = append(errs, fmt.Errorf("websocket: %w", err))
		}
	}

	seen := make(map[string]bool, len(c.Jobs))
	for i := range c.Jobs {
		job := &c.Jobs[i]
		if seen[job.ID] {
			errs = append(errs, fmt.Errorf("job %q: %w", job.ID, ErrDuplicateJobID))
		}
		seen[job.ID] = true
		if err := job.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("job %q: %w", job.ID, err))
		}
	}

	return errors.Join(errs...)
}

// Validate checks a single job definition.
func (j *JobConfig) Validate() error {
	var errs []error

	if res := cronexpr.TryParse(j.Schedule); !res.OK() {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidSchedule, res.Err()))
	}

	switch {
	case j.Command == "" && j.HTTP == nil:
		errs = append(errs, ErrNoAction)
	case j.Command != "" && j.HTTP != nil:
		errs = append(errs, ErrMultipleActions)
	}

	if j.Interpreter != "" && !executor.AllowedInterpreter(j.Interpreter) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidInterpreter, j.Interpreter))
	}
	if j.Timeout < 0 {
		errs = append(errs, ErrInvalidTimeout)
	}
	if j.MaxLoad < 0 {
		errs = append(errs, ErrInvalidMaxLoad)
	}
	if j.HTTP != nil {
		if err := checkURL(j.HTTP.URL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}

	return errors.Join(errs...)
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: %q needs scheme %s and a host", ErrInvalidURL, raw, strings.Join(schemes, " or "))
}

// PollDuration returns PollInterval as a time.Duration.
func (c *Config) PollDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// NATSEnabled reports whether events should be published to NATS.
func (c *Config) NATSEnabled() bool {
	return c.NATS.Servers != ""
}

// WebSocketEnabled reports whether events should be streamed to a collector.
func (c *Config) WebSocketEnabled() bool {
	return c.WebSocket.URL != ""
}

// TimeoutDuration returns Timeout as a time.Duration.
func (j *JobConfig) TimeoutDuration() time.Duration {
	return time.Duration(j.Timeout) * time.Second
}

// Save writes cfg to path as YAML with 0600 permissions, creating the
// parent directory if needed.
func Save(path string, cfg *Config) error {
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}

	return nil
}

// Sample returns a starter configuration written by tinycron init.
func Sample() *Config {
	cfg := Default()
	cfg.HistoryPath = "/var/lib/tinycron/history.db"
	cfg.Jobs = []JobConfig{
		{
			ID:          "heartbeat",
			Description: "log a line every five minutes",
			Schedule:    "*/5 * * * *",
			Command:     "logger -t tinycron heartbeat",
			Timeout:     30,
		},
		{
			ID:          "weekday-report",
			Description: "weekday morning report",
			Schedule:    "0 8 * * Mon-Fri",
			Interpreter: "bash",
			Command:     "set -e\nuptime\ndf -h /\n",
			Timeout:     120,
			MaxLoad:     4,
		},
	}
	return &cfg
}
