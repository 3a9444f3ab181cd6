// Package wire defines the CBOR wire format of the sensor bridge.
//
// Messages use CBOR (RFC 8949) with integer keys and are length-prefixed on
// the transport.
//
// # Message Kinds
//
// There are four message kinds:
//   - Call: client to bridge, a method invocation on a named channel
//   - Reply: bridge to client, the result of a Call (same message ID)
//   - Event: bridge to client, one record pushed on an event channel
//   - EndOfStream: bridge to client, the event channel was closed
//
// # Channels
//
// Every message names a channel. The method channel carries Calls and
// Replies; each event channel carries its listen/cancel Calls, their
// Replies, and the Events of its stream.
//
// # Arguments
//
// Call arguments are a string-keyed map. After a CBOR round-trip numbers
// arrive as uint64, int64 or float64; use the Arg helpers to read them.
package wire
