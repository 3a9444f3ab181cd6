package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switches/sensorbridge/pkg/sensor"
	"github.com/switches/sensorbridge/pkg/service"
)

const sampleConfig = `
listen: "127.0.0.1:9000"
logLevel: debug
advertise: false
instanceName: lab-phone
idleTimeout: 5m
maxStreams: 8
platform:
  release: "7.0"
  apiLevel: 24
dynamicSensorDiscovery: false
sensors:
  - id: 1
    name: Test Accelerometer
    vendor: ACME
    type: accelerometer
    minDelay: 5000
  - id: 2
    name: Motion Trigger
    type: "17"
    reportingMode: one-shot
    wakeUp: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileConfig(t *testing.T) {
	cfg, err := loadFileConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	require.NotNil(t, cfg.Advertise)
	assert.False(t, *cfg.Advertise)
	assert.Len(t, cfg.Sensors, 2)
}

func TestLoadFileConfigRejectsUnknownKeys(t *testing.T) {
	_, err := loadFileConfig(writeConfig(t, "listen: \":1\"\nbogus: true\n"))
	assert.Error(t, err)
}

func TestHostConfig(t *testing.T) {
	cfg, err := loadFileConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	hc, err := cfg.hostConfig()
	require.NoError(t, err)
	assert.Equal(t, "Android", hc.Platform.Name)
	assert.Equal(t, 24, hc.Platform.APILevel)
	assert.False(t, hc.DynamicSensorDiscovery)
	require.Len(t, hc.Sensors, 2)

	accel := hc.Sensors[0]
	assert.Equal(t, sensor.TypeAccelerometer, accel.Type)
	assert.Equal(t, "android.sensor.accelerometer", accel.StringType)
	assert.Equal(t, 1, accel.Version)
	assert.Equal(t, sensor.ReportingModeContinuous, accel.ReportingMode)

	trigger := hc.Sensors[1]
	assert.Equal(t, sensor.TypeSignificantMotion, trigger.Type)
	assert.Equal(t, sensor.ReportingModeOneShot, trigger.ReportingMode)
	assert.True(t, trigger.IsWakeUp)
}

func TestHostConfigDefaults(t *testing.T) {
	var cfg *FileConfig
	hc, err := cfg.hostConfig()
	require.NoError(t, err)
	assert.Equal(t, 34, hc.Platform.APILevel)
	assert.NotEmpty(t, hc.Sensors)
}

func TestHostConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		sensors []SensorConfig
	}{
		{"missing name", []SensorConfig{{ID: 1, Type: "light"}}},
		{"unknown type", []SensorConfig{{ID: 1, Name: "x", Type: "flux"}}},
		{"bad mode", []SensorConfig{{ID: 1, Name: "x", Type: "light", ReportingMode: "sometimes"}}},
		{"duplicate id", []SensorConfig{
			{ID: 1, Name: "a", Type: "light"},
			{ID: 1, Name: "b", Type: "proximity"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &FileConfig{Sensors: tt.sensors}
			_, err := cfg.hostConfig()
			assert.Error(t, err)
		})
	}
}

func TestApplyService(t *testing.T) {
	cfg, err := loadFileConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	svc := service.DefaultConfig()
	cfg.applyService(&svc)
	assert.Equal(t, "127.0.0.1:9000", svc.ListenAddress)
	assert.Equal(t, "lab-phone", svc.InstanceName)
	assert.Equal(t, 8, svc.MaxStreamsPerSession)
	assert.Equal(t, 5*time.Minute, svc.IdleTimeout)
	assert.Equal(t, service.DefaultConfig().MaxConnections, svc.MaxConnections)
}

func TestMergeOptionsPrefersFlags(t *testing.T) {
	cfg, err := loadFileConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	opts, set := parseFlags([]string{"-listen", ":1234"})
	opts = mergeOptions(opts, set, cfg)

	assert.Equal(t, ":1234", opts.Listen)
	assert.Equal(t, "debug", opts.LogLevel)
	assert.False(t, opts.Advertise)
	assert.Equal(t, "lab-phone", opts.Name)
	assert.Equal(t, 5*time.Minute, opts.IdleTimeout)
	assert.True(t, opts.Simulate)
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = parseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}
