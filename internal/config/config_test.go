package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/ir"
)

const fullConfig = `
version: 1
tick_rate_hz: 30
max_steps: 50
seed: 7
database: ixgraph.db
log_level: debug
state:
  - {path: /nodes/0/translation, type: float3, value: [1, 2, 3]}
  - {path: /nodes/0/visible, type: bool, value: true, read_only: true}
  - {path: /materials/0/alpha, type: float}
animations: [idle, walk]
schedules:
  - {cron: "@every 2s", event: pulse, params: {strength: 0.5, count: 2, dir: [0, 1, 0]}}
mqtt:
  broker: tcp://localhost:1883
  timeout: 3s
  routes:
    - {topic: room/door, event: door}
    - {topic: room/light, event: light, qos: 0}
`

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.TickRateHz)
	assert.Equal(t, time.Second/30, cfg.TickInterval())
	assert.Equal(t, 50, cfg.MaxSteps)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	st, err := cfg.MemoryState()
	require.NoError(t, err)
	v, err := st.Get("/nodes/0/translation")
	require.NoError(t, err)
	assert.Equal(t, ir.Float3{1, 2, 3}, v)
	v, err = st.Get("/materials/0/alpha")
	require.NoError(t, err)
	assert.Equal(t, ir.Float(0), v)
	assert.Error(t, st.Set("/nodes/0/visible", ir.Bool(false)), "read-only path")

	anims := cfg.Assets()
	a, err := anims.Animation(1)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "walk", anims.Get(1).Name)

	scheds, err := cfg.CronSchedules()
	require.NoError(t, err)
	require.Len(t, scheds, 1)
	assert.Equal(t, "@every 2s", scheds[0].Spec)
	assert.Equal(t, map[string]ir.Value{
		"strength": ir.Float(0.5),
		"count":    ir.Int(2),
		"dir":      ir.Float3{0, 1, 0},
	}, scheds[0].Params)

	opts, ok := cfg.MQTTOptions()
	require.True(t, ok)
	assert.Equal(t, "ixgraph", opts.ClientID)
	assert.Equal(t, 3*time.Second, opts.Timeout)
	require.Len(t, opts.Routes, 2)
	assert.Equal(t, byte(DefaultMQTTQoS), opts.Routes[0].QoS)
	assert.Equal(t, byte(0), opts.Routes[1].QoS)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("version: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, float64(DefaultTickRateHz), cfg.TickRateHz)
	assert.Equal(t, engine.DefaultMaxSteps, cfg.MaxSteps)
	assert.Equal(t, uint64(1), cfg.Seed)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())

	_, ok := cfg.MQTTOptions()
	assert.False(t, ok)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{"missing version", "tick_rate_hz: 10\n", []string{"unsupported config version: 0"}},
		{"future version", "version: 2\n", []string{"unsupported config version: 2"}},
		{"bad yaml", "version: [\n", []string{"yaml"}},
		{"negative rate", "version: 1\ntick_rate_hz: -1\n", []string{"tick_rate_hz"}},
		{"bad level", "version: 1\nlog_level: loud\n", []string{"log_level"}},
		{
			name: "state problems aggregate",
			doc: `version: 1
state:
  - {path: nope, type: float}
  - {path: /a, type: vec9}
  - {path: /b, type: float2, value: [1]}
`,
			want: []string{"state[0]: path must start with /", `unknown type "vec9"`, "expects 2 components"},
		},
		{"duplicate state", "version: 1\nstate:\n  - {path: /a, type: int}\n  - {path: /a, type: int}\n", []string{"duplicate path"}},
		{"schedule without event", "version: 1\nschedules:\n  - {cron: '@hourly'}\n", []string{"event is required"}},
		{"bad schedule param", "version: 1\nschedules:\n  - {cron: '@hourly', event: e, params: {x: [1]}}\n", []string{"param x"}},
		{"mqtt without broker", "version: 1\nmqtt: {routes: [{topic: a, event: b}]}\n", []string{"broker is required"}},
		{"mqtt bad qos", "version: 1\nmqtt: {broker: tcp://x:1, routes: [{topic: a, event: b, qos: 3}]}\n", []string{"qos must be"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ixgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ixgraph.db", cfg.Database)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: 3\n"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}
