package feed

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/cave.view/internal/monitoring"
)

// SerialPorter is the part of a serial port the feed uses.
type SerialPorter interface {
	io.Reader
	io.Closer
}

// PortOptions describes the serial line. Zero values take defaults.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"` // N, E or O
}

// Normalize validates o and fills in defaults: 115200 8N1.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 115200
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	switch p := strings.ToUpper(strings.TrimSpace(o.Parity)); p {
	case "", "N", "NONE":
		o.Parity = "N"
	case "E", "EVEN":
		o.Parity = "E"
	case "O", "ODD":
		o.Parity = "O"
	default:
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return o, nil
}

// SerialMode converts o for go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	o, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: o.BaudRate, DataBits: o.DataBits, StopBits: serial.OneStopBit}
	if o.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch o.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// SerialOpener opens a serial port.
type SerialOpener func(path string, mode *serial.Mode) (SerialPorter, error)

func openSerial(path string, mode *serial.Mode) (SerialPorter, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SerialSource reads frames from a serial device, reopening it after read
// errors.
type SerialSource struct {
	Path    string
	Options PortOptions
	// Retry is the pause before reopening; 2s when zero.
	Retry time.Duration
	// Open replaces serial.Open in tests.
	Open SerialOpener
}

// Run reads until ctx is cancelled.
func (s *SerialSource) Run(ctx context.Context, h *Handoff) error {
	mode, err := s.Options.SerialMode()
	if err != nil {
		return fmt.Errorf("feed: serial %s: %w", s.Path, err)
	}
	open := s.Open
	if open == nil {
		open = openSerial
	}
	retry := s.Retry
	if retry <= 0 {
		retry = 2 * time.Second
	}

	for {
		if err := s.session(ctx, h, open, mode); err != nil && ctx.Err() == nil {
			monitoring.Opsf("feed: serial %s: %v; retrying in %s", s.Path, err, retry)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

func (s *SerialSource) session(ctx context.Context, h *Handoff, open SerialOpener, mode *serial.Mode) error {
	port, err := open(s.Path, mode)
	if err != nil {
		return err
	}
	defer port.Close()
	monitoring.Opsf("feed: serial %s open at %d baud", s.Path, mode.BaudRate)

	h.Restart()
	// closing the port unblocks a pending read when ctx ends
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()
	return ReadLines(ctx, port, h, "serial "+s.Path)
}
