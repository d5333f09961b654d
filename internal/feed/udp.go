package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/banshee-data/cave.view/internal/monitoring"
)

// maxDatagram is the largest frame datagram accepted.
const maxDatagram = 64 * 1024

// UDPSource receives frames as UDP datagrams. A datagram may hold several
// newline-separated frames.
type UDPSource struct {
	Address string

	mu   sync.Mutex
	conn net.PacketConn
}

// Listen binds the socket. Run calls it when needed; calling it first lets
// the caller learn the bound address.
func (s *UDPSource) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		conn, err := net.ListenPacket("udp", s.Address)
		if err != nil {
			return nil, fmt.Errorf("feed: udp listen %s: %w", s.Address, err)
		}
		s.conn = conn
	}
	return s.conn.LocalAddr(), nil
}

// Run receives until ctx is cancelled, then closes the socket.
func (s *UDPSource) Run(ctx context.Context, h *Handoff) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	monitoring.Opsf("feed: udp listening on %s", addr)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			return fmt.Errorf("feed: udp read: %w", err)
		}
		origin := "udp " + from.String()
		for _, line := range bytes.Split(buf[:n], []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) > 0 {
				publishLine(h, line, origin)
			}
		}
	}
}
