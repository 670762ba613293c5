package device

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// ErrNoPort is returned when no candidate serial port is found.
var ErrNoPort = errors.New("no ESP serial port detected")

// espressifVID is the USB vendor ID of Espressif's native USB interface
const espressifVID = "303A"

// Discover enumerates serial ports and picks the most likely ESP board.
func Discover() (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	name, ok := ChoosePort(ports)
	if !ok {
		return "", ErrNoPort
	}
	return name, nil
}

// ListPorts returns every serial port the OS reports.
func ListPorts() ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}

// ChoosePort prefers USB ports identifying as Espressif hardware and falls
// back to the first ttyACM/ttyUSB device.
func ChoosePort(ports []*enumerator.PortDetails) (string, bool) {
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.EqualFold(p.VID, espressifVID) || strings.Contains(strings.ToLower(p.Product), "esp") {
			return p.Name, true
		}
	}
	for _, p := range ports {
		if strings.Contains(p.Name, "ttyACM") || strings.Contains(p.Name, "ttyUSB") {
			return p.Name, true
		}
	}
	return "", false
}
