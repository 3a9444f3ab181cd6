package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/switches/sensorbridge/pkg/sensor"
	"github.com/switches/sensorbridge/pkg/sensor/simhost"
	"github.com/switches/sensorbridge/pkg/service"
)

// FileConfig is the YAML configuration file. Flags given on the command
// line override it.
//
//	listen: ":47420"
//	logLevel: debug
//	protocolLog: /var/log/sensorbridge/bridge.slog
//	advertise: true
//	tls: true
//	certDir: /var/lib/sensorbridge/tls
//	instanceName: lab-phone
//	idleTimeout: 5m
//	platform:
//	  name: Android
//	  release: "7.0"
//	  apiLevel: 24
//	sensors:
//	  - id: 1
//	    name: Test Accelerometer
//	    vendor: ACME
//	    type: accelerometer
//	    minDelay: 5000
type FileConfig struct {
	Listen         string        `yaml:"listen"`
	LogLevel       string        `yaml:"logLevel"`
	ProtocolLog    string        `yaml:"protocolLog"`
	TLS            *bool         `yaml:"tls"`
	CertDir        string        `yaml:"certDir"`
	Advertise      *bool         `yaml:"advertise"`
	Interface      string        `yaml:"interface"`
	InstanceName   string        `yaml:"instanceName"`
	BridgeName     string        `yaml:"bridgeName"`
	MaxConnections int           `yaml:"maxConnections"`
	MaxStreams     int           `yaml:"maxStreams"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	Simulate       *bool         `yaml:"simulate"`

	Platform *PlatformConfig `yaml:"platform"`
	Sensors  []SensorConfig  `yaml:"sensors"`

	// DynamicSensorDiscovery enables hot-plug on the simulated host.
	DynamicSensorDiscovery *bool `yaml:"dynamicSensorDiscovery"`
}

// PlatformConfig describes the simulated platform.
type PlatformConfig struct {
	Name     string `yaml:"name"`
	Release  string `yaml:"release"`
	APILevel int    `yaml:"apiLevel"`
}

// SensorConfig describes one simulated sensor.
type SensorConfig struct {
	ID            int     `yaml:"id"`
	Name          string  `yaml:"name"`
	Vendor        string  `yaml:"vendor"`
	Version       int     `yaml:"version"`
	Type          string  `yaml:"type"`
	MaxRange      float32 `yaml:"maxRange"`
	Resolution    float32 `yaml:"resolution"`
	Power         float32 `yaml:"power"`
	MinDelay      int     `yaml:"minDelay"`
	MaxDelay      int     `yaml:"maxDelay"`
	ReportingMode string  `yaml:"reportingMode"`
	WakeUp        bool    `yaml:"wakeUp"`
	FifoReserved  int     `yaml:"fifoReservedEventCount"`
	FifoMax       int     `yaml:"fifoMaxEventCount"`
}

// loadFileConfig reads a YAML configuration file. Unknown keys are errors.
func loadFileConfig(path string) (*FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// hostConfig builds the simulated host configuration.
func (c *FileConfig) hostConfig() (simhost.Config, error) {
	cfg := simhost.DefaultConfig()
	if c == nil {
		return cfg, nil
	}
	if c.Platform != nil {
		cfg.Platform = sensor.Platform{
			Name:     c.Platform.Name,
			Release:  c.Platform.Release,
			APILevel: c.Platform.APILevel,
		}
		if cfg.Platform.Name == "" {
			cfg.Platform.Name = "Android"
		}
	}
	if c.DynamicSensorDiscovery != nil {
		cfg.DynamicSensorDiscovery = *c.DynamicSensorDiscovery
	}
	if len(c.Sensors) > 0 {
		sensors := make([]*sensor.Sensor, 0, len(c.Sensors))
		seen := make(map[int]bool)
		for i, sc := range c.Sensors {
			s, err := sc.toSensor()
			if err != nil {
				return cfg, fmt.Errorf("sensor %d: %w", i, err)
			}
			if seen[s.ID] {
				return cfg, fmt.Errorf("sensor %d: duplicate id %d", i, s.ID)
			}
			seen[s.ID] = true
			sensors = append(sensors, s)
		}
		cfg.Sensors = sensors
	}
	return cfg, nil
}

func (sc SensorConfig) toSensor() (*sensor.Sensor, error) {
	if sc.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	t, err := sensor.ParseType(sc.Type)
	if err != nil {
		return nil, err
	}
	mode, err := parseReportingMode(sc.ReportingMode)
	if err != nil {
		return nil, err
	}
	version := sc.Version
	if version == 0 {
		version = 1
	}
	return &sensor.Sensor{
		ID:                     sc.ID,
		Name:                   sc.Name,
		Vendor:                 sc.Vendor,
		Version:                version,
		Type:                   t,
		StringType:             sensor.TypeName(t),
		MaxRange:               sc.MaxRange,
		Resolution:             sc.Resolution,
		Power:                  sc.Power,
		MinDelay:               sc.MinDelay,
		MaxDelay:               sc.MaxDelay,
		ReportingMode:          mode,
		IsWakeUp:               sc.WakeUp,
		FifoReservedEventCount: sc.FifoReserved,
		FifoMaxEventCount:      sc.FifoMax,
	}, nil
}

func parseReportingMode(s string) (sensor.ReportingMode, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "", "continuous":
		return sensor.ReportingModeContinuous, nil
	case "on_change":
		return sensor.ReportingModeOnChange, nil
	case "one_shot":
		return sensor.ReportingModeOneShot, nil
	case "special_trigger":
		return sensor.ReportingModeSpecialTrigger, nil
	default:
		return 0, fmt.Errorf("unknown reporting mode %q", s)
	}
}

// applyService copies the file settings onto the service configuration.
func (c *FileConfig) applyService(cfg *service.Config) {
	if c == nil {
		return
	}
	if c.Listen != "" {
		cfg.ListenAddress = c.Listen
	}
	if c.InstanceName != "" {
		cfg.InstanceName = c.InstanceName
	}
	if c.BridgeName != "" {
		cfg.BridgeName = c.BridgeName
	}
	if c.MaxConnections != 0 {
		cfg.MaxConnections = c.MaxConnections
	}
	if c.MaxStreams != 0 {
		cfg.MaxStreamsPerSession = c.MaxStreams
	}
	if c.IdleTimeout != 0 {
		cfg.IdleTimeout = c.IdleTimeout
	}
}

// parseLevel maps a level name to a slog level.
func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q (debug, info, warn, error)", s)
	}
	return level, nil
}
