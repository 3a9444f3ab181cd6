package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of a sensor bridge.
	ServiceType = "_sensorbridge._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default bridge port.
	DefaultPort = 47420
)

// TXT record keys.
const (
	TXTKeyProtocolVersion = "pv"   // Bridge protocol version, "major.minor"
	TXTKeyPlatform        = "pf"   // Platform name and release
	TXTKeyAPILevel        = "api"  // Platform API level
	TXTKeySensorCount     = "sc"   // Number of static sensors (optional)
	TXTKeyCapabilities    = "caps" // Comma-separated capability names (optional)
	TXTKeyBridgeName      = "BN"   // User-facing bridge name (optional)
)

// Capability names used in the caps TXT key.
const (
	CapTriggerSensors     = "trigger"
	CapWakeUpSensors      = "wakeup"
	CapDynamicSensors     = "dynamic"
	CapExtendedDescriptor = "extended"
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second

	// DefaultTTL is the default DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
	ErrBrowseTimeout       = errors.New("browse timeout")
)

// BridgeInfo is what a bridge publishes about itself.
type BridgeInfo struct {
	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// Port is the bridge listen port. Zero means DefaultPort.
	Port uint16

	// ProtocolVersion is the bridge protocol version ("1.0").
	ProtocolVersion string

	// Platform is the host platform description ("Android 14").
	Platform string

	// APILevel is the host platform API level.
	APILevel int

	// SensorCount is the number of static sensors.
	SensorCount int

	// Capabilities lists negotiated optional features.
	Capabilities []string

	// BridgeName is an optional user-facing name.
	BridgeName string
}

// Validate checks the fields required for advertising.
func (i *BridgeInfo) Validate() error {
	if i.InstanceName == "" {
		return ErrMissingRequired
	}
	if len(i.InstanceName) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	if i.ProtocolVersion == "" {
		return ErrMissingRequired
	}
	return nil
}

// HasCapability reports whether name is among the advertised capabilities.
func (i *BridgeInfo) HasCapability(name string) bool {
	for _, c := range i.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// BridgeService is a bridge found by browsing.
type BridgeService struct {
	BridgeInfo

	// Host is the advertised host name.
	Host string

	// Addresses are the resolved IP addresses.
	Addresses []string
}

// Address returns a dialable "host:port" for the first resolved address,
// falling back to the host name.
func (s *BridgeService) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	return joinHostPort(host, port)
}
