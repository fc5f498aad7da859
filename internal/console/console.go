// Package console prints human-readable status lines, either on stdout
// or on a serial line, the way the firmware reports over its UART.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Port is the part of a serial port the console needs.
type Port interface {
	io.Writer
	io.Closer
}

// Console writes one line per Printf call.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	c    io.Closer
	name string
}

// Stdout returns a console on the process standard output.
func Stdout() *Console {
	return &Console{w: os.Stdout, name: "stdout"}
}

// New wraps an already opened port. Close closes it.
func New(name string, p Port) *Console {
	return &Console{w: p, c: p, name: name}
}

// OpenSerial opens path at baud, 8N1.
func OpenSerial(path string, baud int) (*Console, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial console %s: %w", path, err)
	}
	return New(path, port), nil
}

// Open returns a serial console when path is set, stdout otherwise.
func Open(path string, baud int) (*Console, error) {
	if path == "" {
		return Stdout(), nil
	}
	return OpenSerial(path, baud)
}

// Ports lists the serial ports found on this machine.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// Name returns the device the console writes to.
func (c *Console) Name() string {
	return c.name
}

// Printf formats and writes a line terminated with CRLF, which serial
// monitors expect. Write errors are dropped: diagnostics must never
// fail the caller.
func (c *Console) Printf(format string, args ...interface{}) {
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\r\n") + "\r\n"

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.w, line)
}

// Close closes the underlying port, if any.
func (c *Console) Close() error {
	if c.c == nil {
		return nil
	}
	return c.c.Close()
}
