package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeBridgeTXT creates the TXT records of a bridge advertisement.
func EncodeBridgeTXT(info *BridgeInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyProtocolVersion] = info.ProtocolVersion
	txt[TXTKeyPlatform] = info.Platform
	txt[TXTKeyAPILevel] = strconv.Itoa(info.APILevel)

	// Optional fields
	if info.SensorCount > 0 {
		txt[TXTKeySensorCount] = strconv.Itoa(info.SensorCount)
	}
	if len(info.Capabilities) > 0 {
		txt[TXTKeyCapabilities] = strings.Join(info.Capabilities, ",")
	}
	if info.BridgeName != "" {
		txt[TXTKeyBridgeName] = info.BridgeName
	}

	return txt
}

// DecodeBridgeTXT parses the TXT records of a bridge advertisement.
func DecodeBridgeTXT(txt TXTRecordMap) (*BridgeInfo, error) {
	info := &BridgeInfo{}

	var ok bool
	info.ProtocolVersion, ok = txt[TXTKeyProtocolVersion]
	if !ok || info.ProtocolVersion == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyProtocolVersion)
	}

	info.Platform, ok = txt[TXTKeyPlatform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyPlatform)
	}

	apiStr, ok := txt[TXTKeyAPILevel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyAPILevel)
	}
	api, err := strconv.Atoi(apiStr)
	if err != nil || api < 0 {
		return nil, fmt.Errorf("%w: invalid API level %q", ErrInvalidTXTRecord, apiStr)
	}
	info.APILevel = api

	// Optional fields
	if sc, ok := txt[TXTKeySensorCount]; ok {
		n, err := strconv.Atoi(sc)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid sensor count %q", ErrInvalidTXTRecord, sc)
		}
		info.SensorCount = n
	}
	info.Capabilities = parseList(txt[TXTKeyCapabilities])
	info.BridgeName = txt[TXTKeyBridgeName]

	return info, nil
}

// parseList splits a comma-separated list, dropping empty items.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings.
// This format is commonly used by mDNS libraries.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty instance name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

func joinHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
