// Package stream manages event stream subscriptions against a sensor host.
//
// A stream is addressed by a Key: the stream kind plus the sensor type (or
// the fixed "dynamic" target for hot-plug streams). The Registry holds at
// most one Controller per key. Controllers come in three kinds:
//
//   - Continuous: registers a listener at a delivery interval and forwards
//     every reading until unbound.
//   - Trigger: arms a one-shot trigger. It forwards at most one event and
//     then returns to Idle on its own.
//   - Hotplug: registers the dynamic sensor callback and forwards
//     connect/disconnect notifications.
//
// # Lifecycle
//
// Every controller is either Idle or Bound. Bind issues the host bind call
// and attaches the sink; Unbind issues the host unbind call and then drops
// the sink. Delivery holds the controller's delivery lock, so once Unbind
// returns no further event reaches the sink. Events that arrive without a
// sink are dropped silently.
//
// # Resubscription
//
// Subscribing to a key that already has a controller first unbinds and
// removes the existing controller, then binds the replacement. Two
// controllers are never bound to the same key at the same time.
package stream
