package ble

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// DefaultCharacteristic is the characteristic the board firmware notifies on.
const DefaultCharacteristic = "2a57"

const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// NormalizeUUID expands 16-bit ("2a57") and 32-bit short UUIDs onto the
// Bluetooth base UUID and returns the lowercase 128-bit form BlueZ reports.
func NormalizeUUID(s string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(s))
	u = strings.TrimPrefix(u, "0x")

	switch len(u) {
	case 4:
		u = "0000" + u + baseUUIDSuffix
	case 8:
		u = u + baseUUIDSuffix
	case 36:
	default:
		return "", fmt.Errorf("invalid UUID %q", s)
	}

	if _, err := bluetooth.ParseUUID(u); err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u, nil
}
