// Package sensor defines the sensor data model shared by the bridge.
//
// It contains three things:
//
//   - The host contract (Host and its listener interfaces). The bridge never
//     talks to a sensor framework directly; it binds and unbinds through this
//     interface and receives callbacks on goroutines the host owns.
//   - The type identifier table mapping numeric sensor types to their
//     canonical string identifiers.
//   - The record mapper translating descriptors and events into sparse
//     key-value records suitable for the wire.
//
// # Records Are Sparse
//
// A Record only contains the fields the running platform can provide.
// Fields unavailable on older platform versions are omitted, never defaulted:
//
//	caps := sensor.Negotiate(host.Platform())
//	rec := sensor.ToRecord(host.DefaultSensor(sensor.TypeAccelerometer), caps)
//	if id, ok := rec[sensor.FieldID]; ok {
//	    // extended descriptor available
//	}
//
// A nil sensor maps to an empty record. Callers use this to represent
// "no such sensor on this device" without an error.
//
// # Capabilities
//
// Platform version checks are performed once by Negotiate. Everything else
// consults the resulting Capabilities value instead of comparing API levels.
package sensor
