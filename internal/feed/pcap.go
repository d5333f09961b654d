package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/cave.view/internal/monitoring"
)

// PCAPSource replays frames captured as UDP datagrams in a classic pcap
// file. Only datagrams to or from UDPPort are used.
type PCAPSource struct {
	Path    string
	UDPPort int
	// Realtime paces the replay by the capture timestamps.
	Realtime bool
	// Speed scales realtime pacing; 1 when zero.
	Speed float64
}

// Run replays the capture once and returns nil at its end.
func (s *PCAPSource) Run(ctx context.Context, h *Handoff) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("feed: open pcap %s: %w", s.Path, err)
	}
	defer f.Close()
	return s.replay(ctx, f, h)
}

func (s *PCAPSource) replay(ctx context.Context, r io.Reader, h *Handoff) error {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return fmt.Errorf("feed: read pcap header: %w", err)
	}
	speed := s.Speed
	if speed <= 0 {
		speed = 1
	}
	port := layers.UDPPort(s.UDPPort)
	src := gopacket.NewPacketSource(reader, reader.LinkType())
	origin := "pcap " + s.Path

	var (
		first, start time.Time
		frames       int
	)
	for {
		packet, err := src.NextPacket()
		if errors.Is(err, io.EOF) {
			monitoring.Opsf("feed: %s: replay complete, %d datagrams", origin, frames)
			return nil
		}
		if err != nil {
			return fmt.Errorf("feed: %s: %w", origin, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || (udp.DstPort != port && udp.SrcPort != port) || len(udp.Payload) == 0 {
			continue
		}

		if s.Realtime {
			captured := packet.Metadata().Timestamp
			if first.IsZero() {
				first, start = captured, time.Now()
			}
			due := start.Add(time.Duration(float64(captured.Sub(first)) / speed))
			if wait := time.Until(due); wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
		}

		frames++
		for _, line := range bytes.Split(udp.Payload, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) > 0 {
				publishLine(h, line, origin)
			}
		}
	}
}
