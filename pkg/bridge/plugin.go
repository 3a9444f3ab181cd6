package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/switches/sensorbridge/pkg/channel"
	"github.com/switches/sensorbridge/pkg/log"
	"github.com/switches/sensorbridge/pkg/sensor"
	"github.com/switches/sensorbridge/pkg/stream"
	"github.com/switches/sensorbridge/pkg/wire"
)

// MethodChannel is the name of the command channel.
const MethodChannel = "com.switches/sensor_manager"

// Command names.
const (
	MethodGetPlatformVersion                = "getPlatformVersion"
	MethodGetSensorList                     = "getSensorList"
	MethodIsDynamicSensorDiscoverySupported = "isDynamicSensorDiscoverySupported"
	MethodGetDynamicSensorList              = "getDynamicSensorList"
	MethodGetDefaultSensor                  = "getDefaultSensor"
	MethodRegisterListener                  = "registerListener"
	MethodRegisterDynamicSensorCallback     = "registerDynamicSensorCallback"
	MethodRequestTriggerSensor              = "requestTriggerSensor"
	MethodGetCapabilities                   = "getCapabilities"
)

// Argument names.
const (
	ArgSensorType = "sensorType"
	ArgWakeUp     = "wakeUp"
	ArgInterval   = "interval"
)

// Config configures a Plugin.
type Config struct {
	// Host is the sensor framework. Required.
	Host sensor.Host

	// ChannelPrefix names the command channel and prefixes event channels.
	// Default: MethodChannel.
	ChannelPrefix string

	// MaxStreams limits concurrently bound streams.
	// Default: stream.DefaultMaxStreams.
	MaxStreams int

	// DefaultInterval is used when registerListener has no interval.
	// Zero selects sensor.DelayNormal; clients may still ask for
	// sensor.DelayFastest explicitly.
	DefaultInterval sensor.Delay

	// ConnectionID tags protocol log events of this session.
	ConnectionID string

	// ProtocolLogger receives stream state changes (optional).
	ProtocolLogger log.Logger

	// Logger for operational messages (optional).
	Logger *slog.Logger
}

// Plugin is the command surface of one client session.
type Plugin struct {
	config   Config
	host     sensor.Host
	caps     sensor.Capabilities
	registry *stream.Registry

	mu        sync.Mutex
	messenger *channel.Messenger
	handlers  map[stream.Key]*streamHandler
}

// NewPlugin creates a plugin and negotiates host capabilities.
func NewPlugin(config Config) *Plugin {
	if config.ChannelPrefix == "" {
		config.ChannelPrefix = MethodChannel
	}
	if config.DefaultInterval <= 0 {
		config.DefaultInterval = sensor.DelayNormal
	}
	return &Plugin{
		config:   config,
		host:     config.Host,
		caps:     sensor.Negotiate(config.Host.Platform()),
		registry: stream.NewRegistryWithConfig(stream.Config{MaxStreams: config.MaxStreams}),
		handlers: make(map[stream.Key]*streamHandler),
	}
}

// Attach registers the command channel on m. Event channels are added to m
// as register commands arrive.
func (p *Plugin) Attach(m *channel.Messenger) {
	p.mu.Lock()
	p.messenger = m
	p.mu.Unlock()
	m.SetMethodCallHandler(p.config.ChannelPrefix, p.HandleCall)
}

// Detach removes every channel from the messenger and unbinds all streams.
func (p *Plugin) Detach() {
	p.mu.Lock()
	m := p.messenger
	p.messenger = nil
	keys := make([]stream.Key, 0, len(p.handlers))
	for key := range p.handlers {
		keys = append(keys, key)
	}
	p.handlers = make(map[stream.Key]*streamHandler)
	p.mu.Unlock()

	if m != nil {
		m.SetMethodCallHandler(p.config.ChannelPrefix, nil)
		for _, key := range keys {
			m.SetStreamHandler(p.ChannelName(key), nil)
		}
	}
	p.registry.Close()
}

// Capabilities returns the negotiated capability set.
func (p *Plugin) Capabilities() sensor.Capabilities {
	return p.caps
}

// Registry returns the stream registry of this session.
func (p *Plugin) Registry() *stream.Registry {
	return p.registry
}

// ChannelName returns the event channel name of a stream.
func (p *Plugin) ChannelName(key stream.Key) string {
	return key.ChannelName(p.config.ChannelPrefix)
}

// HandleCall answers one command. It is the channel.MethodHandler of the
// command channel.
func (p *Plugin) HandleCall(_ context.Context, call *channel.Call) (any, error) {
	switch call.Method {
	case MethodGetPlatformVersion:
		return p.host.Platform().String(), nil
	case MethodGetCapabilities:
		return p.caps.Record(), nil
	case MethodGetSensorList:
		return p.getSensorList(call.Args)
	case MethodIsDynamicSensorDiscoverySupported:
		if !p.caps.DynamicSensors {
			return nil, channel.Unsupported("dynamic sensor discovery", sensor.APILevelDynamicSensors)
		}
		return p.host.IsDynamicSensorDiscoverySupported(), nil
	case MethodGetDynamicSensorList:
		return p.getDynamicSensorList(call.Args)
	case MethodGetDefaultSensor:
		return p.getDefaultSensor(call.Args)
	case MethodRegisterListener:
		return p.registerListener(call.Args)
	case MethodRequestTriggerSensor:
		return p.requestTriggerSensor(call.Args)
	case MethodRegisterDynamicSensorCallback:
		return p.registerDynamicSensorCallback()
	default:
		return nil, channel.NotImplemented(call.Method)
	}
}

func (p *Plugin) getSensorList(args map[string]any) (any, error) {
	t, err := wire.ArgInt(args, ArgSensorType, int(sensor.TypeAll))
	if err != nil {
		return nil, err
	}
	return sensor.ToRecords(p.host.SensorList(sensor.Type(t)), p.caps), nil
}

func (p *Plugin) getDynamicSensorList(args map[string]any) (any, error) {
	if !p.caps.DynamicSensors {
		return nil, channel.Unsupported("dynamic sensors", sensor.APILevelDynamicSensors)
	}
	t, err := wire.ArgInt(args, ArgSensorType, int(sensor.TypeAll))
	if err != nil {
		return nil, err
	}
	return sensor.ToRecords(p.host.DynamicSensorList(sensor.Type(t)), p.caps), nil
}

// getDefaultSensor returns an empty record when the type has no default
// sensor.
func (p *Plugin) getDefaultSensor(args map[string]any) (any, error) {
	t, err := wire.ArgInt(args, ArgSensorType, int(sensor.TypeAll))
	if err != nil {
		return nil, err
	}
	wakeUp, present, err := wire.ArgOptionalBool(args, ArgWakeUp)
	if err != nil {
		return nil, err
	}

	if !present {
		return sensor.ToRecord(p.host.DefaultSensor(sensor.Type(t)), p.caps), nil
	}
	if !p.caps.WakeUpSensors {
		return nil, channel.Unsupported("wake-up sensor selection", sensor.APILevelWakeUpSensors)
	}
	return sensor.ToRecord(p.host.DefaultSensorWakeUp(sensor.Type(t), wakeUp), p.caps), nil
}

func (p *Plugin) registerListener(args map[string]any) (any, error) {
	t, err := wire.RequireInt(args, ArgSensorType)
	if err != nil {
		return nil, err
	}
	interval, err := wire.ArgInt(args, ArgInterval, int(p.config.DefaultInterval))
	if err != nil {
		return nil, err
	}
	if interval < 0 {
		return nil, channel.NewError(wire.StatusInvalidArgument, "interval must not be negative, got %d", interval)
	}

	st := sensor.Type(t)
	delay := sensor.Delay(interval)
	return p.openStream(stream.ContinuousKey(st), func(opts stream.Options) stream.Factory {
		return func() (stream.Controller, error) {
			return stream.NewContinuous(p.host, st, delay, opts), nil
		}
	})
}

func (p *Plugin) requestTriggerSensor(args map[string]any) (any, error) {
	if !p.caps.TriggerSensors {
		return nil, channel.Unsupported("trigger sensors", sensor.APILevelTriggerSensors)
	}
	t, err := wire.RequireInt(args, ArgSensorType)
	if err != nil {
		return nil, err
	}

	st := sensor.Type(t)
	return p.openStream(stream.TriggerKey(st), func(opts stream.Options) stream.Factory {
		return func() (stream.Controller, error) {
			return stream.NewTrigger(p.host, st, opts), nil
		}
	})
}

func (p *Plugin) registerDynamicSensorCallback() (any, error) {
	if !p.caps.DynamicSensors {
		return nil, channel.Unsupported("dynamic sensors", sensor.APILevelDynamicSensors)
	}
	return p.openStream(stream.HotplugKey(), func(opts stream.Options) stream.Factory {
		return func() (stream.Controller, error) {
			return stream.NewHotplug(p.host, opts), nil
		}
	})
}

// openStream installs or updates the stream handler of key and returns the
// event channel name. When the stream is already listening, the new
// factory replaces the bound controller at once.
func (p *Plugin) openStream(key stream.Key, build func(stream.Options) stream.Factory) (any, error) {
	p.mu.Lock()
	m := p.messenger
	if m == nil {
		p.mu.Unlock()
		return nil, channel.NewError(wire.StatusError, "plugin detached")
	}
	factory := build(p.streamOptions())
	h, exists := p.handlers[key]
	if !exists {
		h = newStreamHandler(p, key, factory)
		p.handlers[key] = h
	}
	p.mu.Unlock()

	name := p.ChannelName(key)
	if !exists {
		m.SetStreamHandler(name, h)
		return name, nil
	}
	if err := h.replace(factory); err != nil {
		return nil, err
	}
	return name, nil
}

func (p *Plugin) streamOptions() stream.Options {
	return stream.Options{
		Capabilities:  p.caps,
		OnStateChange: p.onStreamState,
		Logger:        p.config.Logger,
	}
}

func (p *Plugin) onStreamState(key stream.Key, from, to stream.State) {
	if p.config.Logger != nil {
		p.config.Logger.Debug("stream state",
			"conn_id", p.config.ConnectionID,
			"stream", key.String(),
			"from", from.String(),
			"to", to.String())
	}
	if p.config.ProtocolLogger == nil {
		return
	}
	p.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.config.ConnectionID,
		Layer:        log.LayerService,
		Category:     log.CategoryState,
		LocalRole:    log.RoleBridge,
		Channel:      p.ChannelName(key),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityStream,
			OldState: from.String(),
			NewState: to.String(),
			Target:   key.String(),
		},
	})
}
