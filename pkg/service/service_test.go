package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switches/sensorbridge/pkg/bridge"
	"github.com/switches/sensorbridge/pkg/discovery"
	"github.com/switches/sensorbridge/pkg/sensor"
	"github.com/switches/sensorbridge/pkg/sensor/simhost"
	"github.com/switches/sensorbridge/pkg/transport"
	"github.com/switches/sensorbridge/pkg/wire"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	return cfg
}

func startService(t *testing.T, host sensor.Host, cfg Config) *BridgeService {
	t.Helper()
	svc, err := NewBridgeService(host, cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() {
		if svc.State() == StateRunning {
			_ = svc.Stop()
		}
	})
	return svc
}

type testClient struct {
	t      *testing.T
	conn   *transport.ClientConn
	nextID uint32
	events []*wire.Message
}

func dial(t *testing.T, svc *BridgeService) *testClient {
	t.Helper()
	conn, err := transport.Dial(context.Background(), svc.Addr().String(), transport.ClientConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn}
}

// call sends a call and waits for its reply. Events received meanwhile are
// kept for next.
func (c *testClient) call(channelName, method string, args map[string]any) *wire.Message {
	c.t.Helper()
	c.nextID++
	data, err := wire.EncodeMessage(wire.NewCall(c.nextID, channelName, method, args))
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.Send(data))

	for {
		msg := c.receive()
		if msg.Kind == wire.KindReply && msg.MessageID == c.nextID {
			return msg
		}
		c.events = append(c.events, msg)
	}
}

func (c *testClient) next() *wire.Message {
	c.t.Helper()
	if len(c.events) > 0 {
		msg := c.events[0]
		c.events = c.events[1:]
		return msg
	}
	return c.receive()
}

func (c *testClient) receive() *wire.Message {
	c.t.Helper()
	data, err := c.conn.Receive(2 * time.Second)
	require.NoError(c.t, err)
	msg, err := wire.DecodeMessage(data)
	require.NoError(c.t, err)
	return msg
}

func (c *testClient) open(method string, args map[string]any) string {
	c.t.Helper()
	reply := c.call(bridge.MethodChannel, method, args)
	require.Equal(c.t, wire.StatusSuccess, reply.Status, reply.Error)
	name, ok := reply.Payload.(string)
	require.True(c.t, ok)
	listen := c.call(name, wire.MethodListen, nil)
	require.Equal(c.t, wire.StatusSuccess, listen.Status, listen.Error)
	return name
}

func TestNewBridgeServiceRequiresHost(t *testing.T) {
	_, err := NewBridgeService(nil, DefaultConfig())
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewBridgeService(nil) error = %v, want ErrInvalidConfig", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"negative connections", func(c *Config) { c.MaxConnections = -1 }, false},
		{"negative streams", func(c *Config) { c.MaxStreamsPerSession = -1 }, false},
		{"negative interval", func(c *Config) { c.DefaultInterval = -1 }, false},
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = -time.Second }, false},
		{"negative event queue", func(c *Config) { c.EventQueueSize = -1 }, false},
		{"negative write timeout", func(c *Config) { c.WriteTimeout = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestServiceStartStop(t *testing.T) {
	svc, err := NewBridgeService(simhost.NewDefault(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, svc.State())
	assert.Nil(t, svc.Addr())

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateRunning, svc.State())
	assert.NotNil(t, svc.Addr())
	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, svc.Stop())
	assert.Equal(t, StateStopped, svc.State())
	assert.ErrorIs(t, svc.Stop(), ErrNotStarted)
}

func TestCommandOverTCP(t *testing.T) {
	svc := startService(t, simhost.NewDefault(), testConfig())
	c := dial(t, svc)

	reply := c.call(bridge.MethodChannel, bridge.MethodGetPlatformVersion, nil)
	assert.Equal(t, wire.StatusSuccess, reply.Status)
	assert.Equal(t, "Android 14", reply.Payload)

	reply = c.call(bridge.MethodChannel, "selfTest", nil)
	assert.Equal(t, wire.StatusNotImplemented, reply.Status)
}

func TestStreamOverTCP(t *testing.T) {
	host := simhost.NewDefault()
	svc := startService(t, host, testConfig())
	c := dial(t, svc)

	name := c.open(bridge.MethodRegisterListener, map[string]any{
		bridge.ArgSensorType: int(sensor.TypeAccelerometer),
	})
	require.Equal(t, 1, host.ListenerCount(sensor.TypeAccelerometer))

	host.EmitEvent(sensor.TypeAccelerometer, 0.5, 9.8, 0.1)
	ev := c.next()
	assert.Equal(t, wire.KindEvent, ev.Kind)
	assert.Equal(t, name, ev.Channel)

	cancel := c.call(name, wire.MethodCancel, nil)
	assert.Equal(t, wire.StatusSuccess, cancel.Status)
	assert.Equal(t, 0, host.ListenerCount(sensor.TypeAccelerometer))
}

func TestTriggerOverTCP(t *testing.T) {
	host := simhost.NewDefault()
	svc := startService(t, host, testConfig())
	c := dial(t, svc)

	name := c.open(bridge.MethodRequestTriggerSensor, map[string]any{
		bridge.ArgSensorType: int(sensor.TypeSignificantMotion),
	})
	host.FireTrigger(sensor.TypeSignificantMotion, 1)

	ev := c.next()
	assert.Equal(t, wire.KindEvent, ev.Kind)
	assert.Equal(t, name, ev.Channel)
	eos := c.next()
	assert.Equal(t, wire.KindEndOfStream, eos.Kind)
	assert.Equal(t, name, eos.Channel)
}

func TestDisconnectReleasesHostListeners(t *testing.T) {
	host := simhost.NewDefault()
	svc := startService(t, host, testConfig())

	disconnected := make(chan Event, 1)
	svc.OnEvent(func(e Event) {
		if e.Type == EventDisconnected {
			disconnected <- e
		}
	})

	c := dial(t, svc)
	c.open(bridge.MethodRegisterListener, map[string]any{bridge.ArgSensorType: int(sensor.TypeGyroscope)})
	c.open(bridge.MethodRegisterDynamicSensorCallback, nil)
	require.Equal(t, 1, host.ListenerCount(sensor.TypeGyroscope))
	require.Equal(t, 1, host.CallbackCount())
	require.Equal(t, 1, svc.SessionCount())

	require.NoError(t, c.conn.Close())

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect event")
	}
	assert.Equal(t, 0, svc.SessionCount())
	assert.Equal(t, 0, host.ListenerCount(sensor.TypeGyroscope))
	assert.Equal(t, 0, host.CallbackCount())
}

func TestSessionsAreIndependent(t *testing.T) {
	host := simhost.NewDefault()
	svc := startService(t, host, testConfig())

	a := dial(t, svc)
	b := dial(t, svc)
	a.open(bridge.MethodRegisterListener, map[string]any{bridge.ArgSensorType: int(sensor.TypeAccelerometer)})
	nameB := b.open(bridge.MethodRegisterListener, map[string]any{bridge.ArgSensorType: int(sensor.TypeAccelerometer)})
	assert.Equal(t, 2, host.ListenerCount(sensor.TypeAccelerometer))
	assert.Equal(t, 2, svc.SessionCount())

	b.call(nameB, wire.MethodCancel, nil)
	assert.Equal(t, 1, host.ListenerCount(sensor.TypeAccelerometer))

	host.EmitEvent(sensor.TypeAccelerometer, 1, 2, 3)
	assert.Equal(t, wire.KindEvent, a.next().Kind)
}

func TestStopClosesSessions(t *testing.T) {
	host := simhost.NewDefault()
	svc := startService(t, host, testConfig())

	c := dial(t, svc)
	c.open(bridge.MethodRegisterListener, map[string]any{bridge.ArgSensorType: int(sensor.TypeLight)})
	require.Equal(t, 1, host.ListenerCount(sensor.TypeLight))

	require.NoError(t, svc.Stop())
	assert.Equal(t, 0, svc.SessionCount())
	assert.Equal(t, 0, host.ListenerCount(sensor.TypeLight))
}

func TestIdleSessionReaped(t *testing.T) {
	host := simhost.NewDefault()
	cfg := testConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	svc := startService(t, host, cfg)

	reaped := make(chan Event, 4)
	svc.OnEvent(func(e Event) {
		if e.Type == EventSessionReaped {
			reaped <- e
		}
	})

	busy := dial(t, svc)
	busy.open(bridge.MethodRegisterListener, map[string]any{bridge.ArgSensorType: int(sensor.TypeAccelerometer)})
	dial(t, svc)

	assert.Eventually(t, func() bool { return svc.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	select {
	case <-reaped:
	case <-time.After(2 * time.Second):
		t.Fatal("no reap event")
	}
	assert.Equal(t, 1, host.ListenerCount(sensor.TypeAccelerometer))
}

func TestFiredTriggerSessionReaped(t *testing.T) {
	host := simhost.NewDefault()
	cfg := testConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	svc := startService(t, host, cfg)

	reaped := make(chan Event, 1)
	svc.OnEvent(func(e Event) {
		if e.Type == EventSessionReaped {
			reaped <- e
		}
	})

	c := dial(t, svc)
	c.open(bridge.MethodRequestTriggerSensor, map[string]any{
		bridge.ArgSensorType: int(sensor.TypeSignificantMotion),
	})

	// An armed trigger keeps the session alive.
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, 1, svc.SessionCount())

	host.FireTrigger(sensor.TypeSignificantMotion, 1)
	assert.Equal(t, wire.KindEvent, c.next().Kind)
	assert.Equal(t, wire.KindEndOfStream, c.next().Kind)

	select {
	case <-reaped:
	case <-time.After(2 * time.Second):
		t.Fatal("session with a fired trigger was not reaped")
	}
	assert.Equal(t, 0, svc.SessionCount())
}

func TestMaxStreamsPerSession(t *testing.T) {
	cfg := testConfig()
	cfg.MaxStreamsPerSession = 1
	svc := startService(t, simhost.NewDefault(), cfg)
	c := dial(t, svc)

	c.open(bridge.MethodRegisterListener, map[string]any{bridge.ArgSensorType: int(sensor.TypeAccelerometer)})

	reply := c.call(bridge.MethodChannel, bridge.MethodRegisterListener, map[string]any{
		bridge.ArgSensorType: int(sensor.TypeGyroscope),
	})
	require.Equal(t, wire.StatusSuccess, reply.Status)
	listen := c.call(reply.Payload.(string), wire.MethodListen, nil)
	assert.Equal(t, wire.StatusError, listen.Status)
}

type fakeAdvertiser struct {
	mu      sync.Mutex
	info    *discovery.BridgeInfo
	stopped bool
}

func (a *fakeAdvertiser) Advertise(_ context.Context, info *discovery.BridgeInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.info = info
	return nil
}

func (a *fakeAdvertiser) Update(info *discovery.BridgeInfo) error {
	return a.Advertise(context.Background(), info)
}

func (a *fakeAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	return nil
}

func TestAdvertiseOnStart(t *testing.T) {
	svc, err := NewBridgeService(simhost.NewDefault(), testConfig())
	require.NoError(t, err)
	adv := &fakeAdvertiser{}
	svc.SetAdvertiser(adv)
	require.NoError(t, svc.Start(context.Background()))

	adv.mu.Lock()
	info := adv.info
	adv.mu.Unlock()
	require.NotNil(t, info)
	assert.Equal(t, "sensorbridge", info.InstanceName)
	assert.Equal(t, "Android 14", info.Platform)
	assert.Equal(t, 34, info.APILevel)
	assert.NotZero(t, info.Port)
	assert.Len(t, info.Capabilities, 4)
	assert.NoError(t, info.Validate())

	require.NoError(t, svc.Stop())
	assert.True(t, adv.stopped)
}

func TestCapabilityNames(t *testing.T) {
	tests := []struct {
		apiLevel int
		want     []string
	}{
		{17, nil},
		{18, []string{discovery.CapTriggerSensors}},
		{21, []string{discovery.CapTriggerSensors, discovery.CapWakeUpSensors}},
		{24, []string{discovery.CapTriggerSensors, discovery.CapWakeUpSensors, discovery.CapDynamicSensors, discovery.CapExtendedDescriptor}},
	}
	for _, tt := range tests {
		caps := sensor.Negotiate(sensor.Platform{Name: "Android", APILevel: tt.apiLevel})
		assert.Equal(t, tt.want, capabilityNames(caps), "api level %d", tt.apiLevel)
	}
}

func TestServiceStateString(t *testing.T) {
	tests := []struct {
		state ServiceState
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateRunning, "RUNNING"},
		{StateStopped, "STOPPED"},
		{ServiceState(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
