package serial

import "testing"

func TestMatchesKnownBridge(t *testing.T) {
	cases := []struct {
		description string
		want        bool
	}{
		{"CP2102 USB to UART Bridge Controller", true},
		{"USB2.0-Serial CH340", true},
		{"ESP32 DevKit", true},
		{"PCI Serial Port", false},
		{"", false},
		{"cp2102 usb to uart", false}, // matching is case-sensitive like the OS strings
	}
	for _, tc := range cases {
		if got := matchesKnownBridge(tc.description); got != tc.want {
			t.Fatalf("%q: got %v, want %v", tc.description, got, tc.want)
		}
	}
}
