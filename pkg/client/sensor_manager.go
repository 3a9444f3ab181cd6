package client

import (
	"context"
	"fmt"

	"github.com/switches/sensorbridge/pkg/bridge"
	"github.com/switches/sensorbridge/pkg/sensor"
)

// SensorManager issues the sensor manager commands over a Client.
type SensorManager struct {
	client  *Client
	channel string
}

// NewSensorManager uses the default command channel.
func NewSensorManager(c *Client) *SensorManager {
	return NewSensorManagerOn(c, bridge.MethodChannel)
}

// NewSensorManagerOn uses a bridge configured with a custom channel prefix.
func NewSensorManagerOn(c *Client, channelName string) *SensorManager {
	return &SensorManager{client: c, channel: channelName}
}

func (m *SensorManager) call(ctx context.Context, method string, args map[string]any) (any, error) {
	return m.client.Call(ctx, m.channel, method, args)
}

// PlatformVersion returns the host platform description.
func (m *SensorManager) PlatformVersion(ctx context.Context) (string, error) {
	v, err := m.call(ctx, bridge.MethodGetPlatformVersion, nil)
	if err != nil {
		return "", err
	}
	return asString(v)
}

// Capabilities returns the capabilities the bridge negotiated with its host.
func (m *SensorManager) Capabilities(ctx context.Context) (sensor.Record, error) {
	v, err := m.call(ctx, bridge.MethodGetCapabilities, nil)
	if err != nil {
		return nil, err
	}
	return toRecord(v), nil
}

// SensorList returns the static sensors of type t (sensor.TypeAll for all).
func (m *SensorManager) SensorList(ctx context.Context, t sensor.Type) ([]sensor.Record, error) {
	v, err := m.call(ctx, bridge.MethodGetSensorList, map[string]any{bridge.ArgSensorType: int(t)})
	if err != nil {
		return nil, err
	}
	return toRecords(v)
}

// DynamicSensorList returns the connected dynamic sensors of type t.
func (m *SensorManager) DynamicSensorList(ctx context.Context, t sensor.Type) ([]sensor.Record, error) {
	v, err := m.call(ctx, bridge.MethodGetDynamicSensorList, map[string]any{bridge.ArgSensorType: int(t)})
	if err != nil {
		return nil, err
	}
	return toRecords(v)
}

// IsDynamicSensorDiscoverySupported reports host hot-plug support.
func (m *SensorManager) IsDynamicSensorDiscoverySupported(ctx context.Context) (bool, error) {
	v, err := m.call(ctx, bridge.MethodIsDynamicSensorDiscoverySupported, nil)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T, want bool", ErrUnexpectedReply, v)
	}
	return b, nil
}

// DefaultSensor returns the default sensor of type t. The record is empty
// when the host has none.
func (m *SensorManager) DefaultSensor(ctx context.Context, t sensor.Type) (sensor.Record, error) {
	v, err := m.call(ctx, bridge.MethodGetDefaultSensor, map[string]any{bridge.ArgSensorType: int(t)})
	if err != nil {
		return nil, err
	}
	return toRecord(v), nil
}

// DefaultSensorWakeUp returns the default sensor of type t with the given
// wake-up property.
func (m *SensorManager) DefaultSensorWakeUp(ctx context.Context, t sensor.Type, wakeUp bool) (sensor.Record, error) {
	v, err := m.call(ctx, bridge.MethodGetDefaultSensor, map[string]any{
		bridge.ArgSensorType: int(t),
		bridge.ArgWakeUp:     wakeUp,
	})
	if err != nil {
		return nil, err
	}
	return toRecord(v), nil
}

// RegisterListener prepares a continuous stream and returns its event
// channel name. Nothing is delivered until the channel is listened to.
func (m *SensorManager) RegisterListener(ctx context.Context, t sensor.Type, interval sensor.Delay) (string, error) {
	v, err := m.call(ctx, bridge.MethodRegisterListener, map[string]any{
		bridge.ArgSensorType: int(t),
		bridge.ArgInterval:   int(interval),
	})
	if err != nil {
		return "", err
	}
	return asString(v)
}

// RequestTriggerSensor prepares a one-shot trigger stream.
func (m *SensorManager) RequestTriggerSensor(ctx context.Context, t sensor.Type) (string, error) {
	v, err := m.call(ctx, bridge.MethodRequestTriggerSensor, map[string]any{bridge.ArgSensorType: int(t)})
	if err != nil {
		return "", err
	}
	return asString(v)
}

// RegisterDynamicSensorCallback prepares the hot-plug stream.
func (m *SensorManager) RegisterDynamicSensorCallback(ctx context.Context) (string, error) {
	v, err := m.call(ctx, bridge.MethodRegisterDynamicSensorCallback, nil)
	if err != nil {
		return "", err
	}
	return asString(v)
}

// ListenSensor registers a continuous stream and listens on it.
func (m *SensorManager) ListenSensor(ctx context.Context, t sensor.Type, interval sensor.Delay) (*Stream, error) {
	name, err := m.RegisterListener(ctx, t, interval)
	if err != nil {
		return nil, err
	}
	return m.client.Listen(ctx, name)
}

// ListenTrigger requests a trigger and listens on it. The stream ends after
// the trigger fires.
func (m *SensorManager) ListenTrigger(ctx context.Context, t sensor.Type) (*Stream, error) {
	name, err := m.RequestTriggerSensor(ctx, t)
	if err != nil {
		return nil, err
	}
	return m.client.Listen(ctx, name)
}

// ListenDynamicSensors listens for sensor connect and disconnect
// notifications.
func (m *SensorManager) ListenDynamicSensors(ctx context.Context) (*Stream, error) {
	name, err := m.RegisterDynamicSensorCallback(ctx)
	if err != nil {
		return nil, err
	}
	return m.client.Listen(ctx, name)
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: got %T, want string", ErrUnexpectedReply, v)
	}
	return s, nil
}

func toRecords(v any) ([]sensor.Record, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T, want list", ErrUnexpectedReply, v)
	}
	records := make([]sensor.Record, 0, len(list))
	for _, item := range list {
		records = append(records, toRecord(item))
	}
	return records, nil
}

