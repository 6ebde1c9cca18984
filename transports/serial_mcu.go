//go:build baremetal

package transports

import (
	"errors"
	"fmt"
	"machine"
	"time"
)

// MCUTransport implements the bus Transport over a TinyGo UART.
type MCUTransport struct {
	uart *machine.UART
}

// SerialConfig holds configuration for opening a UART.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// OpenSerial configures a UART with the given configuration. Port selects
// the UART index: "0" or "1".
func OpenSerial(cfg SerialConfig) (*MCUTransport, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port path is required")
	}

	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1000000
	}

	var uart *machine.UART
	switch cfg.Port {
	case "0":
		uart = machine.UART0
	case "1":
		uart = machine.UART1
	default:
		return nil, fmt.Errorf("unknown UART %s", cfg.Port)
	}

	uart.SetBaudRate(uint32(cfg.BaudRate))

	return &MCUTransport{uart: uart}, nil
}

func (t *MCUTransport) Read(p []byte) (int, error) {
	if t.uart.Buffered() == 0 {
		// UART reads are nonblocking; pace the caller's poll loop.
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	return t.uart.Read(p)
}

func (t *MCUTransport) Write(p []byte) (int, error) {
	return t.uart.Write(p)
}

func (t *MCUTransport) Close() error {
	return nil
}

func (t *MCUTransport) SetReadTimeout(time.Duration) error {
	return nil
}

func (t *MCUTransport) Flush() error {
	buf := make([]byte, 64)
	for t.uart.Buffered() > 0 {
		t.uart.Read(buf)
	}
	return nil
}
