package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "extended", cfg.Decoder.Shape)
	assert.Equal(t, "#", cfg.MQTT.Topic)
	assert.Equal(t, 100*time.Millisecond, cfg.Render.Interval)
	assert.Equal(t, "data.json", cfg.Ingest.LastRecordFile)
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
mqtt:
  broker: mqtt.example.org
  port: 1884
  topic: /pynqbridge/29/send
  username: student
decoder:
  shape: simple
render:
  interval: 250ms
  terminal: false
redis:
  enabled: true
  prefix: test_map
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mqtt.example.org", cfg.MQTT.Broker)
	assert.Equal(t, 1884, cfg.MQTT.Port)
	assert.Equal(t, "/pynqbridge/29/send", cfg.MQTT.Topic)
	assert.Equal(t, "simple", cfg.Decoder.Shape)
	assert.Equal(t, 250*time.Millisecond, cfg.Render.Interval)
	assert.False(t, cfg.Render.Terminal)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "test_map", cfg.Redis.Prefix)
	// campos ausentes mantêm o padrão
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 256, cfg.Ingest.QueueSize)
}

func TestLoadFileJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"mqtt":{"broker":"10.0.0.2","topic":"rover/#"},"render":{"interval":50000000}}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cfg.MQTT.Broker)
	assert.Equal(t, "rover/#", cfg.MQTT.Topic)
	assert.Equal(t, 50*time.Millisecond, cfg.Render.Interval)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "mqtt:\n  broker: from-file\n")
	t.Setenv("ROVER_MQTT_BROKER", "from-env")
	t.Setenv("ROVER_MQTT_PASSWORD", "secret")
	t.Setenv("ROVER_MQTT_PORT", "8883")
	t.Setenv("ROVER_REDIS_ENABLED", "true")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.MQTT.Broker)
	assert.Equal(t, "secret", cfg.MQTT.Password)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.True(t, cfg.Redis.Enabled)

	t.Setenv("ROVER_SERVER_PORT", "not-a-number")
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestLoadUsesRoverConfig(t *testing.T) {
	path := writeFile(t, "custom.yml", "decoder:\n  shape: simple\n")
	t.Setenv("ROVER_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "simple", cfg.Decoder.Shape)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown shape", func(c *Config) { c.Decoder.Shape = "auto" }},
		{"empty broker", func(c *Config) { c.MQTT.Broker = "" }},
		{"bad mqtt port", func(c *Config) { c.MQTT.Port = 70000 }},
		{"empty topic", func(c *Config) { c.MQTT.Topic = "" }},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"zero render interval", func(c *Config) { c.Render.Interval = 0 }},
		{"zero queue", func(c *Config) { c.Ingest.QueueSize = 0 }},
		{"plc without rate", func(c *Config) { c.PLC.Enabled = true; c.PLC.UpdateRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "config.toml", "x = 1")
	_, err := LoadFile(path)
	assert.Error(t, err)
}
