package serial

import (
	"fmt"
	"strings"
	"time"

	serialport "go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"racetimer"
)

// USB-serial bridge chips the race timer boards show up as.
var usbBridgeChips = []string{"CP210", "CH340", "ESP32"}

// matchesKnownBridge reports whether a port description names one of the
// USB-serial bridge chips used on the timer boards. Matching is
// case-sensitive substring matching against the OS-reported description.
func matchesKnownBridge(description string) bool {
	for _, chip := range usbBridgeChips {
		if strings.Contains(description, chip) {
			return true
		}
	}
	return false
}

// listDetailedPorts enumerates serial ports with USB metadata. Pure query;
// reflects the OS state at call time.
func listDetailedPorts() ([]racetimer.PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	ports := make([]racetimer.PortInfo, 0, len(details))
	for _, d := range details {
		info := racetimer.PortInfo{
			Port:        d.Name,
			Description: d.Product,
		}
		if d.IsUSB {
			info.HardwareID = fmt.Sprintf("USB VID:PID=%s:%s SER=%s", d.VID, d.PID, d.SerialNumber)
		}
		ports = append(ports, info)
	}
	return ports, nil
}

// openDevicePort opens a physical serial port at the given baud rate with a
// short read timeout, so the read loop polls rather than blocks.
func openDevicePort(name string, baudRate int) (devicePort, error) {
	p, err := serialport.Open(name, &serialport.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

const readTimeout = 100 * time.Millisecond
