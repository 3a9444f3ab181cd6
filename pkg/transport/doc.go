// Package transport provides the sensor bridge transport layer.
//
// The transport layer handles:
//   - TCP connections, optionally wrapped in TLS
//   - Length-prefixed message framing
//   - One read goroutine per accepted connection
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│     TLS (optional)             │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// Connection liveness relies on TCP keep-alive (DefaultKeepAlive) and on
// the read loop observing the closed socket.
package transport
