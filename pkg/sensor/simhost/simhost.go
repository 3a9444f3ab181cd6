// Package simhost provides a simulated sensor framework implementing
// sensor.Host.
//
// The simulated host is used by tests, by the reference bridge binary and
// by demos. Events are either injected explicitly (EmitEvent, FireTrigger,
// ConnectDynamic) or produced by a background generator per continuous
// registration once Start has been called.
//
// Each registration has its own dispatch gate. Unregister closes the gate,
// waiting for a callback already running on that registration, so no
// listener is invoked after its unregister call returns. A slow listener
// only delays its own registration. Listeners must not unregister from
// inside a callback.
package simhost

import (
	"context"
	"sync"
	"time"

	"github.com/switches/sensorbridge/pkg/sensor"
)

// Generator produces the reading for a sensor at a point in time.
type Generator func(s *sensor.Sensor, at time.Time) []float32

// Config configures a simulated host.
type Config struct {
	// Platform is reported by Platform() and drives capability negotiation.
	Platform sensor.Platform

	// Sensors is the static sensor list.
	Sensors []*sensor.Sensor

	// DynamicSensorDiscovery enables hot-plug support.
	DynamicSensorDiscovery bool

	// Generator produces readings for background generation.
	// Default: Waveform.
	Generator Generator

	// MinPeriod bounds background generation for DelayFastest.
	// Default: 5ms.
	MinPeriod time.Duration
}

// DefaultConfig returns a recent platform with a typical phone sensor set.
func DefaultConfig() Config {
	return Config{
		Platform:               sensor.Platform{Name: "Android", Release: "14", APILevel: 34},
		Sensors:                PhoneSensors(),
		DynamicSensorDiscovery: true,
		Generator:              Waveform,
		MinPeriod:              5 * time.Millisecond,
	}
}

type listenerKey struct {
	l sensor.EventListener
	s *sensor.Sensor
}

type triggerKey struct {
	l sensor.TriggerListener
	s *sensor.Sensor
}

type registration struct {
	interval sensor.Delay
	stop     context.CancelFunc
	gate     *gate
}

// gate serializes the callbacks of one registration with its removal.
type gate struct {
	mu     sync.Mutex
	closed bool
}

// run calls fn unless the gate is closed. It reports whether fn ran.
func (g *gate) run(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	fn()
	return true
}

// close waits for a running callback and blocks further ones.
func (g *gate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Host is a simulated sensor.Host.
type Host struct {
	config Config

	mu        sync.Mutex
	dynamic   []*sensor.Sensor
	listeners map[listenerKey]*registration
	triggers  map[triggerKey]*gate
	callbacks map[sensor.DynamicSensorCallback]*gate
	accuracy  map[sensor.Type]int

	// Background generation
	ctx context.Context
	wg  sync.WaitGroup

	epoch time.Time
}

// New creates a simulated host.
func New(config Config) *Host {
	if config.Generator == nil {
		config.Generator = Waveform
	}
	if config.MinPeriod <= 0 {
		config.MinPeriod = 5 * time.Millisecond
	}
	return &Host{
		config:    config,
		listeners: make(map[listenerKey]*registration),
		triggers:  make(map[triggerKey]*gate),
		callbacks: make(map[sensor.DynamicSensorCallback]*gate),
		accuracy:  make(map[sensor.Type]int),
		epoch:     time.Now(),
	}
}

// NewDefault creates a simulated host with DefaultConfig.
func NewDefault() *Host {
	return New(DefaultConfig())
}

// Platform implements sensor.Host.
func (h *Host) Platform() sensor.Platform {
	return h.config.Platform
}

// SensorList implements sensor.Host.
func (h *Host) SensorList(t sensor.Type) []*sensor.Sensor {
	return filterType(h.config.Sensors, t)
}

// DynamicSensorList implements sensor.Host.
func (h *Host) DynamicSensorList(t sensor.Type) []*sensor.Sensor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return filterType(h.dynamic, t)
}

// IsDynamicSensorDiscoverySupported implements sensor.Host.
func (h *Host) IsDynamicSensorDiscoverySupported() bool {
	return h.config.DynamicSensorDiscovery
}

// DefaultSensor implements sensor.Host. Types that are wake-up by nature
// (proximity, significant motion, gestures) prefer the wake-up variant.
func (h *Host) DefaultSensor(t sensor.Type) *sensor.Sensor {
	return h.DefaultSensorWakeUp(t, wakeUpByDefault(t))
}

// DefaultSensorWakeUp implements sensor.Host.
func (h *Host) DefaultSensorWakeUp(t sensor.Type, wakeUp bool) *sensor.Sensor {
	for _, s := range h.config.Sensors {
		if s.Type == t && s.IsWakeUp == wakeUp {
			return s
		}
	}
	return nil
}

// RegisterListener implements sensor.Host.
func (h *Host) RegisterListener(l sensor.EventListener, s *sensor.Sensor, interval sensor.Delay) bool {
	if l == nil || s == nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := listenerKey{l: l, s: s}
	reg := &registration{interval: interval, gate: &gate{}}
	if old, exists := h.listeners[key]; exists {
		// Re-registration updates the rate.
		if old.stop != nil {
			old.stop()
		}
		reg.gate = old.gate
	}
	h.listeners[key] = reg
	h.startGeneratorLocked(key, reg)
	return true
}

// UnregisterListener implements sensor.Host.
func (h *Host) UnregisterListener(l sensor.EventListener, s *sensor.Sensor) {
	h.mu.Lock()
	key := listenerKey{l: l, s: s}
	reg, exists := h.listeners[key]
	if exists {
		if reg.stop != nil {
			reg.stop()
		}
		delete(h.listeners, key)
	}
	h.mu.Unlock()

	if exists {
		reg.gate.close()
	}
}

// RequestTriggerSensor implements sensor.Host.
func (h *Host) RequestTriggerSensor(l sensor.TriggerListener, s *sensor.Sensor) bool {
	if l == nil || s == nil {
		return false
	}
	if s.ReportingMode != sensor.ReportingModeOneShot {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.triggers[triggerKey{l: l, s: s}] = &gate{}
	return true
}

// CancelTriggerSensor implements sensor.Host.
func (h *Host) CancelTriggerSensor(l sensor.TriggerListener, s *sensor.Sensor) bool {
	h.mu.Lock()
	key := triggerKey{l: l, s: s}
	g, armed := h.triggers[key]
	delete(h.triggers, key)
	h.mu.Unlock()

	if !armed {
		return false
	}
	g.close()
	return true
}

// RegisterDynamicSensorCallback implements sensor.Host.
func (h *Host) RegisterDynamicSensorCallback(cb sensor.DynamicSensorCallback) {
	if cb == nil || !h.config.DynamicSensorDiscovery {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.callbacks[cb]; !exists {
		h.callbacks[cb] = &gate{}
	}
}

// UnregisterDynamicSensorCallback implements sensor.Host.
func (h *Host) UnregisterDynamicSensorCallback(cb sensor.DynamicSensorCallback) {
	h.mu.Lock()
	g, exists := h.callbacks[cb]
	delete(h.callbacks, cb)
	h.mu.Unlock()

	if exists {
		g.close()
	}
}

// EmitEvent delivers one reading to every listener registered on a sensor
// of type t. It returns the number of listeners invoked.
func (h *Host) EmitEvent(t sensor.Type, values ...float32) int {
	h.mu.Lock()
	targets := h.listenersLocked(t)
	accuracy, ok := h.accuracy[t]
	if !ok {
		accuracy = sensor.AccuracyHigh
	}
	h.mu.Unlock()

	ts := h.timestamp()
	n := 0
	for _, target := range targets {
		key := target.key
		if target.gate.run(func() {
			key.l.OnSensorChanged(&sensor.Event{
				Sensor:    key.s,
				Accuracy:  accuracy,
				Timestamp: ts,
				Values:    values,
			})
		}) {
			n++
		}
	}
	return n
}

// SetAccuracy changes the accuracy of every sensor of type t and notifies
// registered listeners.
func (h *Host) SetAccuracy(t sensor.Type, accuracy int) int {
	h.mu.Lock()
	h.accuracy[t] = accuracy
	targets := h.listenersLocked(t)
	h.mu.Unlock()

	n := 0
	for _, target := range targets {
		key := target.key
		if target.gate.run(func() { key.l.OnAccuracyChanged(key.s, accuracy) }) {
			n++
		}
	}
	return n
}

// FireTrigger fires every armed trigger on a sensor of type t. Fired
// requests are disarmed before delivery, as the platform does.
func (h *Host) FireTrigger(t sensor.Type, values ...float32) int {
	type armed struct {
		key  triggerKey
		gate *gate
	}

	h.mu.Lock()
	var fired []armed
	for key, g := range h.triggers {
		if key.s.Type == t {
			fired = append(fired, armed{key: key, gate: g})
			delete(h.triggers, key)
		}
	}
	h.mu.Unlock()

	ts := h.timestamp()
	for _, a := range fired {
		key := a.key
		a.gate.run(func() {
			key.l.OnTrigger(&sensor.TriggerEvent{Sensor: key.s, Timestamp: ts, Values: values})
		})
		a.gate.close()
	}
	return len(fired)
}

// ConnectDynamic attaches a dynamic sensor and notifies hot-plug callbacks.
func (h *Host) ConnectDynamic(s *sensor.Sensor) int {
	h.mu.Lock()
	h.dynamic = append(h.dynamic, s)
	cbs := h.callbackSnapshotLocked()
	h.mu.Unlock()

	n := 0
	for cb, g := range cbs {
		if g.run(func() { cb.OnDynamicSensorConnected(s) }) {
			n++
		}
	}
	return n
}

// DisconnectDynamic detaches a dynamic sensor by ID. It returns false if
// no such sensor is connected.
func (h *Host) DisconnectDynamic(id int) bool {
	h.mu.Lock()
	var removed *sensor.Sensor
	for i, s := range h.dynamic {
		if s.ID == id {
			removed = s
			h.dynamic = append(h.dynamic[:i], h.dynamic[i+1:]...)
			break
		}
	}
	cbs := h.callbackSnapshotLocked()
	h.mu.Unlock()

	if removed == nil {
		return false
	}
	for cb, g := range cbs {
		g.run(func() { cb.OnDynamicSensorDisconnected(removed) })
	}
	return true
}

// ListenerCount returns the number of continuous registrations on sensors
// of type t.
func (h *Host) ListenerCount(t sensor.Type) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for key := range h.listeners {
		if key.s.Type == t {
			n++
		}
	}
	return n
}

// TriggerCount returns the number of armed triggers on sensors of type t.
func (h *Host) TriggerCount(t sensor.Type) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for key := range h.triggers {
		if key.s.Type == t {
			n++
		}
	}
	return n
}

// CallbackCount returns the number of registered hot-plug callbacks.
func (h *Host) CallbackCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.callbacks)
}

// Start enables background generation for current and future continuous
// registrations until ctx is cancelled.
func (h *Host) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ctx = ctx
	for key, reg := range h.listeners {
		h.startGeneratorLocked(key, reg)
	}
}

// Wait blocks until all background generators have exited.
func (h *Host) Wait() {
	h.wg.Wait()
}

func (h *Host) startGeneratorLocked(key listenerKey, reg *registration) {
	if h.ctx == nil || h.ctx.Err() != nil || reg.stop != nil {
		return
	}
	// On-change and one-shot sensors are driven by explicit injection.
	if key.s.ReportingMode != sensor.ReportingModeContinuous {
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	reg.stop = cancel

	period := reg.interval.Period()
	if minDelay := time.Duration(key.s.MinDelay) * time.Microsecond; period < minDelay {
		period = minDelay
	}
	if period < h.config.MinPeriod {
		period = h.config.MinPeriod
	}

	h.wg.Add(1)
	go h.generate(ctx, key, period)
}

func (h *Host) generate(ctx context.Context, key listenerKey, period time.Duration) {
	defer h.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.emitTo(ctx, key, h.config.Generator(key.s, now))
		}
	}
}

// emitTo delivers to a single registration if it is still active.
func (h *Host) emitTo(ctx context.Context, key listenerKey, values []float32) {
	h.mu.Lock()
	reg, active := h.listeners[key]
	accuracy, ok := h.accuracy[key.s.Type]
	h.mu.Unlock()
	if !active {
		return
	}
	if !ok {
		accuracy = sensor.AccuracyHigh
	}

	reg.gate.run(func() {
		if ctx.Err() != nil {
			return
		}
		key.l.OnSensorChanged(&sensor.Event{
			Sensor:    key.s,
			Accuracy:  accuracy,
			Timestamp: h.timestamp(),
			Values:    values,
		})
	})
}

func (h *Host) callbackSnapshotLocked() map[sensor.DynamicSensorCallback]*gate {
	cbs := make(map[sensor.DynamicSensorCallback]*gate, len(h.callbacks))
	for cb, g := range h.callbacks {
		cbs[cb] = g
	}
	return cbs
}

type listenerTarget struct {
	key  listenerKey
	gate *gate
}

func (h *Host) listenersLocked(t sensor.Type) []listenerTarget {
	var targets []listenerTarget
	for key, reg := range h.listeners {
		if key.s.Type == t {
			targets = append(targets, listenerTarget{key: key, gate: reg.gate})
		}
	}
	return targets
}

// timestamp mimics the host's monotonic nanosecond event clock.
func (h *Host) timestamp() int64 {
	return time.Since(h.epoch).Nanoseconds()
}

func filterType(sensors []*sensor.Sensor, t sensor.Type) []*sensor.Sensor {
	out := make([]*sensor.Sensor, 0, len(sensors))
	for _, s := range sensors {
		if t == sensor.TypeAll || s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

func wakeUpByDefault(t sensor.Type) bool {
	switch t {
	case sensor.TypeProximity, sensor.TypeSignificantMotion, sensor.TypeTiltDetector,
		sensor.TypeWakeGesture, sensor.TypeGlanceGesture, sensor.TypePickUpGesture,
		sensor.TypeWristTiltGesture, sensor.TypeLowLatencyOffbodyDetect, sensor.TypeHingeAngle:
		return true
	}
	return false
}

// Compile-time interface satisfaction check.
var _ sensor.Host = (*Host)(nil)
