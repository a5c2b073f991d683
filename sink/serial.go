//go:build !tinygo

// Package sink implements the outbound byte channels a trace.Analyzer
// drains into: a real serial link, and an in-memory buffer for tests.
package sink

import (
	"errors"
	"io"
	"runtime"

	"github.com/tarm/serial"
)

// OpenSerial opens the serial device carrying the trace byte stream
// (spec §2). If dev is empty, OS-specific default device names are
// tried in order.
func OpenSerial(dev string) (io.ReadWriteCloser, error) {
	const baudRate = 115200

	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyACM0", "/dev/ttyUSB0")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("sink: no device specified")
	}
	var firstErr error
	for _, d := range devices {
		c := &serial.Config{Name: d, Baud: baudRate}
		s, err := serial.OpenPort(c)
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
