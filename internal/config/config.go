// Package config loads the versioned YAML runtime configuration used by
// `ixgraph run`.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/eventsrc"
	"github.com/roach88/ixgraph/internal/host"
	"github.com/roach88/ixgraph/internal/ir"
)

// Version is the only supported config version.
const Version = 1

// Defaults applied by Load.
const (
	DefaultTickRateHz = 60
	DefaultLogLevel   = "info"
	DefaultMQTTQoS    = 1
)

// Config is the runtime configuration file.
type Config struct {
	Version    int          `yaml:"version"`
	TickRateHz float64      `yaml:"tick_rate_hz"`
	MaxSteps   int          `yaml:"max_steps"`
	Seed       uint64       `yaml:"seed"`
	Database   string       `yaml:"database"`
	LogLevel   string       `yaml:"log_level"`
	State      []StateEntry `yaml:"state"`
	Animations []string     `yaml:"animations"`
	Schedules  []Schedule   `yaml:"schedules"`
	MQTT       *MQTT        `yaml:"mqtt"`
}

// StateEntry defines one path of the in-memory host state.
type StateEntry struct {
	Path     string `yaml:"path"`
	Type     string `yaml:"type"`
	Value    any    `yaml:"value"`
	ReadOnly bool   `yaml:"read_only"`
}

// Schedule fires a custom event on a cron spec.
type Schedule struct {
	Cron   string         `yaml:"cron"`
	Event  string         `yaml:"event"`
	Params map[string]any `yaml:"params"`
}

// MQTT subscribes topics and fires custom events from their payloads.
type MQTT struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Timeout  time.Duration `yaml:"timeout"`
	Routes   []MQTTRoute   `yaml:"routes"`
}

// MQTTRoute maps one topic filter to a custom event.
type MQTTRoute struct {
	Topic string `yaml:"topic"`
	Event string `yaml:"event"`
	QoS   *int   `yaml:"qos"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a config document, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Version != Version {
		return nil, fmt.Errorf("unsupported config version: %d", cfg.Version)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Version: Version}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.TickRateHz == 0 {
		c.TickRateHz = DefaultTickRateHz
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = engine.DefaultMaxSteps
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MQTT != nil {
		if c.MQTT.ClientID == "" {
			c.MQTT.ClientID = "ixgraph"
		}
		for i := range c.MQTT.Routes {
			if c.MQTT.Routes[i].QoS == nil {
				q := DefaultMQTTQoS
				c.MQTT.Routes[i].QoS = &q
			}
		}
	}
}

// Validate reports every problem in the configuration together.
func (c *Config) Validate() error {
	var errs error
	if c.TickRateHz < 0 {
		errs = multierr.Append(errs, fmt.Errorf("tick_rate_hz must be positive, got %v", c.TickRateHz))
	}
	if c.MaxSteps < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = multierr.Append(errs, err)
	}
	seen := map[string]bool{}
	for i, e := range c.State {
		if e.Path == "" || !strings.HasPrefix(e.Path, "/") {
			errs = multierr.Append(errs, fmt.Errorf("state[%d]: path must start with /", i))
		}
		if seen[e.Path] {
			errs = multierr.Append(errs, fmt.Errorf("state[%d]: duplicate path %q", i, e.Path))
		}
		seen[e.Path] = true
		if _, err := e.IRValue(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("state[%d]: %w", i, err))
		}
	}
	for i, s := range c.Schedules {
		if s.Event == "" {
			errs = multierr.Append(errs, fmt.Errorf("schedules[%d]: event is required", i))
		}
		if _, err := ParamValues(s.Params); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("schedules[%d]: %w", i, err))
		}
	}
	if c.MQTT != nil {
		if c.MQTT.Broker == "" {
			errs = multierr.Append(errs, fmt.Errorf("mqtt: broker is required"))
		}
		for i, r := range c.MQTT.Routes {
			if r.Topic == "" || r.Event == "" {
				errs = multierr.Append(errs, fmt.Errorf("mqtt.routes[%d]: topic and event are required", i))
			}
			if r.QoS != nil && (*r.QoS < 0 || *r.QoS > 2) {
				errs = multierr.Append(errs, fmt.Errorf("mqtt.routes[%d]: qos must be 0, 1 or 2", i))
			}
		}
	}
	return errs
}

// TickInterval is the wall-clock period between ticks.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.TickRateHz)
}

// SlogLevel maps log_level onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// IRValue converts the entry's YAML value to its declared type.
func (e StateEntry) IRValue() (ir.Value, error) {
	if e.Type == "" {
		return nil, fmt.Errorf("%s: type is required", e.Path)
	}
	if !ir.IsBuiltin(e.Type) {
		return nil, fmt.Errorf("%s: unknown type %q", e.Path, e.Type)
	}
	if e.Value == nil {
		return ir.Default(e.Type), nil
	}
	comps, ok := e.Value.([]any)
	if !ok {
		comps = []any{e.Value}
	}
	v, err := ir.FromComponents(e.Type, comps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Path, err)
	}
	return v, nil
}

// MemoryState builds the host state described by the state entries.
func (c *Config) MemoryState() (*host.MemoryState, error) {
	st := host.NewMemoryState()
	for _, e := range c.State {
		v, err := e.IRValue()
		if err != nil {
			return nil, err
		}
		st.Define(e.Path, v, e.ReadOnly)
	}
	return st, nil
}

// Assets builds the animation lookup, one animation per name.
func (c *Config) Assets() *host.MemoryAssets {
	return host.NewMemoryAssets(c.Animations...)
}

// CronSchedules converts the schedules for eventsrc.NewCronSource.
func (c *Config) CronSchedules() ([]eventsrc.Schedule, error) {
	out := make([]eventsrc.Schedule, 0, len(c.Schedules))
	for _, s := range c.Schedules {
		params, err := ParamValues(s.Params)
		if err != nil {
			return nil, err
		}
		out = append(out, eventsrc.Schedule{Spec: s.Cron, Event: s.Event, Params: params})
	}
	return out, nil
}

// MQTTOptions converts the mqtt section. ok is false when there is none.
func (c *Config) MQTTOptions() (opts eventsrc.MQTTOptions, ok bool) {
	if c.MQTT == nil {
		return opts, false
	}
	opts = eventsrc.MQTTOptions{
		Broker:   c.MQTT.Broker,
		ClientID: c.MQTT.ClientID,
		Timeout:  c.MQTT.Timeout,
	}
	for _, r := range c.MQTT.Routes {
		opts.Routes = append(opts.Routes, eventsrc.Route{Topic: r.Topic, Event: r.Event, QoS: byte(*r.QoS)})
	}
	return opts, true
}

// ParamValues infers IR values for untyped event parameters. The engine
// converts them to the declared parameter types when the event fires.
func ParamValues(raw map[string]any) (map[string]ir.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]ir.Value, len(raw))
	for _, name := range ir.SortedKeys(raw) {
		v, err := inferValue(raw[name])
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func inferValue(raw any) (ir.Value, error) {
	switch v := raw.(type) {
	case bool:
		return ir.Bool(v), nil
	case int:
		return ir.Int(v), nil
	case float64:
		return ir.Float(v), nil
	case string:
		return ir.String(v), nil
	case []any:
		sig := map[int]string{2: ir.SigFloat2, 3: ir.SigFloat3, 4: ir.SigFloat4}[len(v)]
		if sig == "" {
			return nil, fmt.Errorf("vectors need 2 to 4 components, got %d", len(v))
		}
		return ir.FromComponents(sig, v)
	}
	return nil, fmt.Errorf("unsupported value %T", raw)
}
