package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridinertia/core/solver"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `solver:
  type: "branch_and_bound"
  timeout_seconds: 30
  relax_commitment: true
  conf:
    node_limit: 500
logging:
  level: debug
  file: /tmp/gridinertia.log
metrics:
  sinks:
    - type: "nop"
  prometheus_addr: ":9100"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  topic_prefix: "grid"
  qos:
    schedule: 1
export:
  dir: out
  formats: [csv, json, chart]
sentry:
  dsn: ""
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"solver.type", cfg.Solver.Type, "branch_and_bound"},
		{"solver.timeout", cfg.Solver.Timeout(), 30 * time.Second},
		{"solver.relax", cfg.Solver.RelaxCommitment, true},
		{"solver.module", cfg.Solver.Module().Type, "branch_and_bound"},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"logging.max_size_mb", cfg.Logging.MaxSizeMB, 100},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"metrics.prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "grid"},
		{"qos", cfg.MQTT.QoS["schedule"], byte(1)},
		{"export.dir", cfg.Export.Dir, "out"},
		{"export.formats", len(cfg.Export.Formats), 3},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
	assert.EqualValues(t, 500, cfg.Solver.Conf["node_limit"])
}

func TestLoad_Defaults(t *testing.T) {
	path := writeFile(t, "config.json", `{}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, solver.DefaultName(), cfg.Solver.Type)
	assert.Equal(t, time.Duration(0), cfg.Solver.Timeout())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "results", cfg.Export.Dir)
	assert.Equal(t, []string{FormatCSV, FormatInertiaCSV}, cfg.Export.Formats)
	assert.False(t, cfg.MQTT.Enabled())

	assert.Equal(t, cfg, Default())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GI_SOLVER__TYPE", "simplex")
	t.Setenv("GI_EXPORT__DIR", "env-out")
	path := writeFile(t, "config.yaml", "solver:\n  type: branch_and_bound\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "simplex", cfg.Solver.Type)
	assert.Equal(t, "env-out", cfg.Export.Dir)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown solver":   "solver:\n  type: cplex\n",
		"negative timeout": "solver:\n  timeout_seconds: -1\n",
		"bad level":        "logging:\n  level: loud\n",
		"bad format":       "logging:\n  format: xml\n",
		"bad export":       "export:\n  formats: [pdf]\n",
		"mqtt client id":   "mqtt:\n  broker: tcp://b:1883\n",
		"sample rate":      "sentry:\n  traces_sample_rate: 2\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", data))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeFile(t, "config.toml", ""))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
