package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/cave.view/internal/config"
	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/banshee-data/cave.view/internal/timeutil"
)

// Source publishes frames into h until ctx is done or the input ends.
type Source interface {
	Run(ctx context.Context, h *Handoff) error
}

// maxLineSize bounds a single JSON frame.
const maxLineSize = 1 << 20

// publishLine decodes line and publishes it. Malformed and stale frames are
// counted and logged, never fatal.
func publishLine(h *Handoff, line []byte, origin string) {
	f, err := DecodeFrame(line)
	if err != nil {
		h.invalid()
		monitoring.Diagf("feed: %s: %v", origin, err)
		return
	}
	if err := h.Publish(f); errors.Is(err, ErrStaleFrame) {
		monitoring.Diagf("feed: %s: stale frame %d", origin, f.Counter)
	}
}

// ReadLines publishes every newline-terminated frame read from r. It
// returns nil at EOF and ctx.Err() when cancelled. r is read on its own
// goroutine so a blocking read does not delay cancellation.
func ReadLines(ctx context.Context, r io.Reader, h *Handoff, origin string) error {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		var err error
		defer close(lines)
		defer func() { scanErr <- err }()
		for scan.Scan() {
			line := append([]byte(nil), scan.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		err = scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				err := <-scanErr
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err != nil {
					return fmt.Errorf("feed: %s: %w", origin, err)
				}
				return nil
			}
			if len(line) == 0 {
				continue
			}
			publishLine(h, line, origin)
		}
	}
}

// NewSource builds the source named by cfg.GetFeedKind().
func NewSource(cfg *config.CaveConfig, clock timeutil.Clock) (Source, error) {
	switch kind := cfg.GetFeedKind(); kind {
	case "serial":
		return &SerialSource{
			Path:    cfg.GetSerialPort(),
			Options: PortOptions{BaudRate: cfg.GetSerialBaud()},
		}, nil
	case "udp":
		return &UDPSource{Address: cfg.GetFeedAddress()}, nil
	case "pcap":
		if cfg.GetPCAPFile() == "" {
			return nil, errors.New("feed: pcap feed requires pcap_file")
		}
		return &PCAPSource{Path: cfg.GetPCAPFile(), UDPPort: cfg.GetPCAPUDPPort(), Realtime: true}, nil
	case "synthetic":
		return NewWalker(clock, cfg.GetFrameInterval(), cfg.GetDimensions()), nil
	default:
		return nil, fmt.Errorf("feed: unknown feed kind %q", kind)
	}
}
