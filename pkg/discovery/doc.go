// Package discovery implements mDNS/DNS-SD discovery of sensor bridges.
//
// A bridge advertises one instance of the _sensorbridge._tcp service. TXT
// records carry:
//
//   - pv: bridge protocol version ("1.0")
//   - pf: platform description ("Android 14")
//   - api: platform API level
//   - sc: number of static sensors (optional)
//   - caps: negotiated capabilities, comma-separated (optional)
//   - BN: user-facing bridge name (optional)
//
// Clients browse for the service type and dial the advertised port. Entries
// with malformed TXT records are ignored.
package discovery
