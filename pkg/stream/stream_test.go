package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/switches/sensorbridge/pkg/sensor"
	"github.com/switches/sensorbridge/pkg/sensor/mocks"
	"github.com/switches/sensorbridge/pkg/sensor/simhost"
)

// recordingSink collects delivered records.
type recordingSink struct {
	mu     sync.Mutex
	events []sensor.Record
	err    error
}

func (s *recordingSink) Send(event sensor.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Events() []sensor.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sensor.Record, len(s.events))
	copy(out, s.events)
	return out
}

func newTestHost() *simhost.Host {
	return simhost.NewDefault()
}

func testOptions(h sensor.Host) Options {
	return Options{Capabilities: sensor.Negotiate(h.Platform())}
}

func TestKeyChannelName(t *testing.T) {
	const prefix = "com.switches/sensor_manager"

	tests := []struct {
		key  Key
		want string
	}{
		{ContinuousKey(sensor.TypeAccelerometer), prefix + "/continuous/android.sensor.accelerometer"},
		{TriggerKey(sensor.TypeSignificantMotion), prefix + "/trigger/android.sensor.significant_motion"},
		{HotplugKey(), prefix + "/hotplug/dynamic"},
		{ContinuousKey(65537), prefix + "/continuous/Unknown.65537"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.key.ChannelName(prefix))
	}

	// Distinct unknown codes stay distinct.
	assert.NotEqual(t, ContinuousKey(65537).String(), ContinuousKey(65538).String())
	assert.NotEqual(t, ContinuousKey(sensor.TypeLight), TriggerKey(sensor.TypeLight))
}

func TestContinuousDeliversInOrder(t *testing.T) {
	host := newTestHost()
	reg := NewRegistry()
	sink := &recordingSink{}
	key := ContinuousKey(sensor.TypeAccelerometer)

	err := reg.Subscribe(key, func() (Controller, error) {
		return NewContinuous(host, sensor.TypeAccelerometer, sensor.DelayNormal, testOptions(host)), nil
	}, sink)
	require.NoError(t, err)
	assert.Equal(t, StateBound, reg.State(key))

	for i := 1; i <= 3; i++ {
		assert.Equal(t, 1, host.EmitEvent(sensor.TypeAccelerometer, float32(i), 0, 9.81))
	}

	reg.Unsubscribe(key)
	assert.Equal(t, 0, host.EmitEvent(sensor.TypeAccelerometer, 4, 0, 9.81))

	events := sink.Events()
	require.Len(t, events, 3)
	for i, ev := range events {
		values, ok := ev[sensor.FieldValues].([]float32)
		require.True(t, ok)
		require.Len(t, values, 3)
		assert.Equal(t, float32(i+1), values[0])
		assert.Contains(t, ev, sensor.FieldAccuracy)
		assert.Contains(t, ev, sensor.FieldTimestamp)
	}
	assert.Equal(t, StateIdle, reg.State(key))
	assert.Equal(t, 0, host.ListenerCount(sensor.TypeAccelerometer))
}

func TestContinuousAccuracyChange(t *testing.T) {
	host := newTestHost()
	sink := &recordingSink{}
	c := NewContinuous(host, sensor.TypeMagneticField, sensor.DelayUI, testOptions(host))
	require.NoError(t, c.Bind(sink))
	defer c.Unbind()

	host.SetAccuracy(sensor.TypeMagneticField, sensor.AccuracyLow)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, sensor.AccuracyLow, events[0][sensor.FieldNewAccuracy])
	assert.Equal(t, "AK09918 Magnetometer", events[0][sensor.FieldName])
}

func TestContinuousMissingSensor(t *testing.T) {
	host := newTestHost()
	c := NewContinuous(host, sensor.TypeHeartRate, sensor.DelayNormal, testOptions(host))

	err := c.Bind(&recordingSink{})
	assert.True(t, errors.Is(err, ErrSensorNotFound))
	assert.Equal(t, StateIdle, c.State())
}

func TestContinuousCallOrder(t *testing.T) {
	host := mocks.NewHost(t)
	accel := &sensor.Sensor{ID: 1, Type: sensor.TypeAccelerometer}

	host.On("DefaultSensor", sensor.TypeAccelerometer).Return(accel).Once()
	host.On("RegisterListener", mock.Anything, accel, sensor.DelayGame).Return(true).Once()
	host.On("UnregisterListener", mock.Anything, accel).Return().Once()

	c := NewContinuous(host, sensor.TypeAccelerometer, sensor.DelayGame, Options{})
	require.NoError(t, c.Bind(&recordingSink{}))
	assert.ErrorIs(t, c.Bind(&recordingSink{}), ErrAlreadyBound)

	c.Unbind()
	c.Unbind()
	assert.Equal(t, StateIdle, c.State())
}

func TestContinuousRegistrationRefused(t *testing.T) {
	host := mocks.NewHost(t)
	accel := &sensor.Sensor{ID: 1, Type: sensor.TypeAccelerometer}

	host.On("DefaultSensor", sensor.TypeAccelerometer).Return(accel)
	host.On("RegisterListener", mock.Anything, accel, sensor.DelayNormal).Return(false)

	var transitions []State
	c := NewContinuous(host, sensor.TypeAccelerometer, sensor.DelayNormal, Options{
		OnStateChange: func(_ Key, _, to State) { transitions = append(transitions, to) },
	})
	err := c.Bind(&recordingSink{})
	assert.ErrorIs(t, err, ErrRegistrationRefused)
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, []State{StateBound, StateIdle}, transitions)
}

func TestTriggerAtMostOnce(t *testing.T) {
	host := newTestHost()
	reg := NewRegistry()
	sink := &recordingSink{}
	key := TriggerKey(sensor.TypeSignificantMotion)

	var mu sync.Mutex
	var transitions []State
	opts := testOptions(host)
	opts.OnStateChange = func(k Key, _, to State) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, key, k)
		transitions = append(transitions, to)
	}

	require.NoError(t, reg.Subscribe(key, func() (Controller, error) {
		return NewTrigger(host, sensor.TypeSignificantMotion, opts), nil
	}, sink))
	assert.Equal(t, 1, host.TriggerCount(sensor.TypeSignificantMotion))

	assert.Equal(t, 1, host.FireTrigger(sensor.TypeSignificantMotion, 1))
	assert.Equal(t, 0, host.FireTrigger(sensor.TypeSignificantMotion, 1))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.NotContains(t, events[0], sensor.FieldAccuracy)
	assert.Equal(t, []float32{1}, events[0][sensor.FieldValues])

	// Expired without an unsubscribe.
	assert.Equal(t, StateIdle, reg.State(key))

	// Cancel after expiry is harmless.
	assert.True(t, reg.Unsubscribe(key))
	assert.Equal(t, 0, reg.Count())

	mu.Lock()
	assert.Equal(t, []State{StateBound, StateIdle}, transitions)
	mu.Unlock()
}

func TestTriggerDirectSecondDelivery(t *testing.T) {
	host := newTestHost()
	sink := &recordingSink{}
	tr := NewTrigger(host, sensor.TypeWakeGesture, testOptions(host))
	require.NoError(t, tr.Bind(sink))

	ev := &sensor.TriggerEvent{Sensor: host.DefaultSensor(sensor.TypeWakeGesture), Values: []float32{1}}
	tr.OnTrigger(ev)
	tr.OnTrigger(ev)

	assert.Len(t, sink.Events(), 1)
	assert.Equal(t, uint64(1), tr.Stats().Delivered)
	assert.Equal(t, uint64(1), tr.Stats().Dropped)
}

func TestTriggerCancelIssuedAfterExpiry(t *testing.T) {
	host := mocks.NewHost(t)
	motion := &sensor.Sensor{ID: 13, Type: sensor.TypeSignificantMotion, ReportingMode: sensor.ReportingModeOneShot}

	host.On("DefaultSensor", sensor.TypeSignificantMotion).Return(motion)
	host.On("RequestTriggerSensor", mock.Anything, motion).Return(true).Once()
	host.On("CancelTriggerSensor", mock.Anything, motion).Return(false).Once()

	tr := NewTrigger(host, sensor.TypeSignificantMotion, Options{})
	require.NoError(t, tr.Bind(&recordingSink{}))
	tr.OnTrigger(&sensor.TriggerEvent{Sensor: motion, Values: []float32{1}})
	assert.Equal(t, StateIdle, tr.State())

	tr.Unbind()
}

func TestTriggerNeverFiredStaysBound(t *testing.T) {
	host := newTestHost()
	tr := NewTrigger(host, sensor.TypeSignificantMotion, testOptions(host))
	require.NoError(t, tr.Bind(&recordingSink{}))
	assert.Equal(t, StateBound, tr.State())

	tr.Unbind()
	assert.Equal(t, StateIdle, tr.State())
	assert.Equal(t, 0, host.TriggerCount(sensor.TypeSignificantMotion))
}

func TestHotplugNotifications(t *testing.T) {
	host := newTestHost()
	reg := NewRegistry()
	sink := &recordingSink{}

	require.NoError(t, reg.Subscribe(HotplugKey(), func() (Controller, error) {
		return NewHotplug(host, testOptions(host)), nil
	}, sink))
	assert.Equal(t, 1, host.CallbackCount())

	ext := &sensor.Sensor{ID: 100, Name: "USB Thermometer", Type: sensor.TypeAmbientTemperature, IsDynamic: true}
	host.ConnectDynamic(ext)
	require.True(t, host.DisconnectDynamic(100))

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, true, events[0][sensor.FieldIsConnected])
	assert.Equal(t, false, events[1][sensor.FieldIsConnected])
	assert.Equal(t, "USB Thermometer", events[1][sensor.FieldName])

	reg.Unsubscribe(HotplugKey())
	assert.Equal(t, 0, host.CallbackCount())
	host.ConnectDynamic(ext)
	assert.Len(t, sink.Events(), 2)
}

func TestResubscribeReplacesWithCleanup(t *testing.T) {
	host := newTestHost()
	reg := NewRegistry()
	first := &recordingSink{}
	second := &recordingSink{}
	key := ContinuousKey(sensor.TypeGyroscope)
	factory := func() (Controller, error) {
		return NewContinuous(host, sensor.TypeGyroscope, sensor.DelayNormal, testOptions(host)), nil
	}

	require.NoError(t, reg.Subscribe(key, factory, first))
	require.NoError(t, reg.Subscribe(key, factory, second))

	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, 1, host.ListenerCount(sensor.TypeGyroscope))

	host.EmitEvent(sensor.TypeGyroscope, 0.1, 0.2, 0.3)
	assert.Empty(t, first.Events())
	assert.Len(t, second.Events(), 1)
}

func TestSubscribeFailureLeavesNoEntry(t *testing.T) {
	host := newTestHost()
	reg := NewRegistry()
	key := ContinuousKey(sensor.TypeHeartRate)

	err := reg.Subscribe(key, func() (Controller, error) {
		return NewContinuous(host, sensor.TypeHeartRate, sensor.DelayNormal, testOptions(host)), nil
	}, &recordingSink{})
	assert.ErrorIs(t, err, ErrSensorNotFound)
	assert.Equal(t, 0, reg.Count())

	factoryErr := errors.New("boom")
	err = reg.Subscribe(key, func() (Controller, error) { return nil, factoryErr }, &recordingSink{})
	assert.ErrorIs(t, err, factoryErr)
}

func TestSubscribeKeyMismatch(t *testing.T) {
	host := newTestHost()
	reg := NewRegistry()

	err := reg.Subscribe(ContinuousKey(sensor.TypeLight), func() (Controller, error) {
		return NewContinuous(host, sensor.TypeGyroscope, sensor.DelayNormal, testOptions(host)), nil
	}, &recordingSink{})
	assert.ErrorIs(t, err, ErrKeyMismatch)
	assert.Equal(t, 0, host.ListenerCount(sensor.TypeGyroscope))
}

func TestUnsubscribeUnknownIsNoop(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.Unsubscribe(ContinuousKey(sensor.TypeLight)))
}

func TestRegistryLimit(t *testing.T) {
	host := newTestHost()
	reg := NewRegistryWithConfig(Config{MaxStreams: 1})
	opts := testOptions(host)

	require.NoError(t, reg.Subscribe(ContinuousKey(sensor.TypeLight), func() (Controller, error) {
		return NewContinuous(host, sensor.TypeLight, sensor.DelayNormal, opts), nil
	}, &recordingSink{}))

	err := reg.Subscribe(ContinuousKey(sensor.TypePressure), func() (Controller, error) {
		return NewContinuous(host, sensor.TypePressure, sensor.DelayNormal, opts), nil
	}, &recordingSink{})
	assert.ErrorIs(t, err, ErrResourceExhausted)

	// Replacing an existing key is not limited.
	assert.NoError(t, reg.Subscribe(ContinuousKey(sensor.TypeLight), func() (Controller, error) {
		return NewContinuous(host, sensor.TypeLight, sensor.DelayUI, opts), nil
	}, &recordingSink{}))
}

func TestRegistryCloseUnbindsAll(t *testing.T) {
	host := newTestHost()
	reg := NewRegistry()
	opts := testOptions(host)

	require.NoError(t, reg.Subscribe(ContinuousKey(sensor.TypeAccelerometer), func() (Controller, error) {
		return NewContinuous(host, sensor.TypeAccelerometer, sensor.DelayNormal, opts), nil
	}, &recordingSink{}))
	require.NoError(t, reg.Subscribe(TriggerKey(sensor.TypeSignificantMotion), func() (Controller, error) {
		return NewTrigger(host, sensor.TypeSignificantMotion, opts), nil
	}, &recordingSink{}))
	require.NoError(t, reg.Subscribe(HotplugKey(), func() (Controller, error) {
		return NewHotplug(host, opts), nil
	}, &recordingSink{}))

	assert.Equal(t, []Key{
		ContinuousKey(sensor.TypeAccelerometer),
		HotplugKey(),
		TriggerKey(sensor.TypeSignificantMotion),
	}, reg.Keys())

	reg.Close()
	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, 0, host.ListenerCount(sensor.TypeAccelerometer))
	assert.Equal(t, 0, host.TriggerCount(sensor.TypeSignificantMotion))
	assert.Equal(t, 0, host.CallbackCount())

	err := reg.Subscribe(HotplugKey(), func() (Controller, error) { return NewHotplug(host, opts), nil }, &recordingSink{})
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestSinkErrorDoesNotUnbind(t *testing.T) {
	host := newTestHost()
	sink := &recordingSink{err: errors.New("consumer gone")}
	c := NewContinuous(host, sensor.TypeLight, sensor.DelayNormal, testOptions(host))
	require.NoError(t, c.Bind(sink))
	defer c.Unbind()

	host.EmitEvent(sensor.TypeLight, 300)
	host.EmitEvent(sensor.TypeLight, 310)

	assert.Equal(t, StateBound, c.State())
	assert.Equal(t, uint64(2), c.Stats().Failed)
}

// Concurrent producers and an unsubscribe: nothing reaches the sink after
// Unsubscribe returns.
func TestUnsubscribeRaceFree(t *testing.T) {
	for round := 0; round < 20; round++ {
		host := newTestHost()
		reg := NewRegistry()
		key := ContinuousKey(sensor.TypeAccelerometer)

		var mu sync.Mutex
		cancelled := false
		late := 0
		sink := SinkFunc(func(sensor.Record) error {
			mu.Lock()
			defer mu.Unlock()
			if cancelled {
				late++
			}
			return nil
		})

		require.NoError(t, reg.Subscribe(key, func() (Controller, error) {
			return NewContinuous(host, sensor.TypeAccelerometer, sensor.DelayFastest, testOptions(host)), nil
		}, sink))

		var wg sync.WaitGroup
		stop := make(chan struct{})
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
						host.EmitEvent(sensor.TypeAccelerometer, 1, 2, 3)
					}
				}
			}()
		}

		reg.Unsubscribe(key)
		mu.Lock()
		cancelled = true
		mu.Unlock()

		for i := 0; i < 100; i++ {
			host.EmitEvent(sensor.TypeAccelerometer, 1, 2, 3)
		}
		close(stop)
		wg.Wait()

		mu.Lock()
		assert.Zero(t, late, "round %d", round)
		mu.Unlock()
	}
}

// blockingSink parks in Send until release is closed.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSink) Send(sensor.Record) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

func TestSlowSinkIsolatedFromOtherRegistries(t *testing.T) {
	host := newTestHost()
	opts := testOptions(host)
	slowReg := NewRegistry()
	otherReg := NewRegistry()
	slow := newBlockingSink()
	other := &recordingSink{}

	require.NoError(t, slowReg.Subscribe(ContinuousKey(sensor.TypeAccelerometer), func() (Controller, error) {
		return NewContinuous(host, sensor.TypeAccelerometer, sensor.DelayNormal, opts), nil
	}, slow))
	require.NoError(t, otherReg.Subscribe(ContinuousKey(sensor.TypeLight), func() (Controller, error) {
		return NewContinuous(host, sensor.TypeLight, sensor.DelayNormal, opts), nil
	}, other))

	go host.EmitEvent(sensor.TypeAccelerometer, 1, 2, 3)
	select {
	case <-slow.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("slow sink never reached")
	}
	defer close(slow.release)

	done := make(chan struct{})
	go func() {
		defer close(done)
		host.EmitEvent(sensor.TypeLight, 250)
		otherReg.Unsubscribe(ContinuousKey(sensor.TypeLight))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("light stream stalled by slow accelerometer sink")
	}
	assert.Len(t, other.Events(), 1)
	assert.Equal(t, 0, host.ListenerCount(sensor.TypeLight))

	counted := make(chan int, 1)
	go func() { counted <- slowReg.Count() }()
	select {
	case n := <-counted:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("Count waited on a delivery in progress")
	}
}

func TestPanickingSinkDropsEvent(t *testing.T) {
	host := newTestHost()
	reg := NewRegistry()
	key := ContinuousKey(sensor.TypeAccelerometer)
	sink := SinkFunc(func(sensor.Record) error { panic("sink boom") })

	require.NoError(t, reg.Subscribe(key, func() (Controller, error) {
		return NewContinuous(host, sensor.TypeAccelerometer, sensor.DelayNormal, testOptions(host)), nil
	}, sink))

	assert.NotPanics(t, func() { host.EmitEvent(sensor.TypeAccelerometer, 1, 2, 3) })

	ctrl, ok := reg.Lookup(key)
	require.True(t, ok)
	stats := ctrl.(*Continuous).Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(0), stats.Delivered)
	assert.Equal(t, StateBound, ctrl.State())

	unsubscribed := make(chan bool, 1)
	go func() { unsubscribed <- reg.Unsubscribe(key) }()
	select {
	case ok := <-unsubscribed:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Unsubscribe blocked after sink panic")
	}
	assert.Equal(t, 0, host.ListenerCount(sensor.TypeAccelerometer))
}

func TestFiredTriggerReleasesSlot(t *testing.T) {
	host := newTestHost()
	reg := NewRegistryWithConfig(Config{MaxStreams: 1})
	opts := testOptions(host)
	trigger := TriggerKey(sensor.TypeSignificantMotion)

	require.NoError(t, reg.Subscribe(trigger, func() (Controller, error) {
		return NewTrigger(host, sensor.TypeSignificantMotion, opts), nil
	}, &recordingSink{}))
	assert.Equal(t, 1, reg.Count())

	host.FireTrigger(sensor.TypeSignificantMotion, 1)
	assert.Equal(t, StateIdle, reg.State(trigger))
	assert.Equal(t, 0, reg.Count())

	require.NoError(t, reg.Subscribe(ContinuousKey(sensor.TypeLight), func() (Controller, error) {
		return NewContinuous(host, sensor.TypeLight, sensor.DelayNormal, opts), nil
	}, &recordingSink{}))
	assert.Equal(t, 1, reg.Count())

	_, ok := reg.Lookup(trigger)
	assert.False(t, ok, "fired trigger still registered")
	assert.Equal(t, 0, host.TriggerCount(sensor.TypeSignificantMotion))
}
