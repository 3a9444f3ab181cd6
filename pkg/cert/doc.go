// Package cert manages the TLS identity of a sensor bridge.
//
// Bridges serve TLS with a self-signed P-256 certificate. LoadOrCreate keeps
// the identity in a directory across restarts and replaces it shortly
// before it expires. Clients verify the bridge by certificate fingerprint.
package cert
