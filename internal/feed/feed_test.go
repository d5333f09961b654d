package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/cave.view/internal/body"
	"github.com/banshee-data/cave.view/internal/config"
	"github.com/banshee-data/cave.view/internal/timeutil"
)

var epoch = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func frameLine(t *testing.T, counter int64) []byte {
	t.Helper()
	f := &body.Frame{
		Counter:        counter,
		Timestamp:      epoch.Add(time.Duration(counter) * 33 * time.Millisecond),
		FloorClipPlane: mgl64.Vec4{0, 1, 0, 0},
		Detections: []body.Detection{
			{TrackingID: 9},
			body.StandingDetection(4, mgl64.Vec3{0, 0, 2}),
		},
	}
	line, err := EncodeFrame(f)
	require.NoError(t, err)
	return line
}

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame(frameLine(t, 7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.Counter)
	require.Len(t, f.Detections, 2)
	assert.Equal(t, 1, f.TrackedCount)
	assert.Equal(t, uint64(4), f.Tracked()[0].TrackingID, "tracked bodies sort first")

	_, err = DecodeFrame([]byte("  \n"))
	assert.ErrorContains(t, err, "empty frame")
	_, err = DecodeFrame([]byte(`{"frame":`))
	assert.ErrorContains(t, err, "decode frame")
}

func TestHandoff(t *testing.T) {
	h := NewHandoff()
	_, ok := h.Take()
	assert.False(t, ok)

	require.NoError(t, h.Publish(&body.Frame{Counter: 1}))
	require.NoError(t, h.Publish(&body.Frame{Counter: 3}))
	assert.ErrorIs(t, h.Publish(&body.Frame{Counter: 2}), ErrStaleFrame)
	assert.ErrorIs(t, h.Publish(&body.Frame{Counter: 3}), ErrStaleFrame)

	f, ok := h.Take()
	require.True(t, ok)
	assert.Equal(t, int64(3), f.Counter)
	assert.Zero(t, f.Session)
	_, ok = h.Take()
	assert.False(t, ok)

	h.Restart()
	require.NoError(t, h.Publish(&body.Frame{Counter: 1}))
	assert.Equal(t, int64(1), h.Session())

	// an unread frame of the old session is dropped on restart
	h.Restart()
	_, ok = h.Take()
	assert.False(t, ok)
	require.NoError(t, h.Publish(&body.Frame{Counter: 1}))
	f, ok = h.Take()
	require.True(t, ok)
	assert.Equal(t, int64(2), f.Session)
	h.invalid()

	assert.Equal(t, Stats{Published: 4, Stale: 2, Skipped: 2, Invalid: 1}, h.Stats())
}

func TestReadLines(t *testing.T) {
	var in bytes.Buffer
	in.Write(frameLine(t, 1))
	in.WriteString("\nnot json\n")
	in.Write(frameLine(t, 2))
	in.Write(frameLine(t, 2))

	h := NewHandoff()
	require.NoError(t, ReadLines(context.Background(), &in, h, "test"))
	assert.Equal(t, Stats{Published: 2, Stale: 1, Skipped: 1, Invalid: 1}, h.Stats())
	f, ok := h.Take()
	require.True(t, ok)
	assert.Equal(t, int64(2), f.Counter)
}

func TestReadLines_CancelUnblocks(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ReadLines(ctx, r, NewHandoff(), "pipe") }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLines did not return after cancel")
	}
}

func TestReadLines_ScanError(t *testing.T) {
	r := io.MultiReader(strings.NewReader("x"), iotest{errors.New("wire fault")})
	err := ReadLines(context.Background(), r, NewHandoff(), "faulty")
	assert.ErrorContains(t, err, "wire fault")
}

type iotest struct{ err error }

func (r iotest) Read([]byte) (int, error) { return 0, r.err }

type nopPort struct{ io.Reader }

func (nopPort) Close() error { return nil }

func TestPortOptions(t *testing.T) {
	mode, err := PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: 115200, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.NoParity}, mode)

	mode, err = PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)

	for _, bad := range []PortOptions{{DataBits: 9}, {StopBits: 3}, {Parity: "mark"}} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestSerialSource_Reconnects(t *testing.T) {
	var opens atomic.Int32
	src := &SerialSource{
		Path:  "/dev/ttyFAKE",
		Retry: 5 * time.Millisecond,
		Open: func(path string, mode *serial.Mode) (SerialPorter, error) {
			assert.Equal(t, "/dev/ttyFAKE", path)
			assert.Equal(t, 115200, mode.BaudRate)
			if opens.Add(1) == 2 {
				return nil, errors.New("device busy")
			}
			// every session restarts the sensor count
			var buf bytes.Buffer
			buf.Write(frameLine(t, 1))
			buf.Write(frameLine(t, 2))
			return nopPort{&buf}, nil
		},
	}

	h := NewHandoff()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, h) }()

	require.Eventually(t, func() bool { return opens.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	st := h.Stats()
	assert.GreaterOrEqual(t, st.Published, int64(4))
	assert.Zero(t, st.Stale)
	assert.GreaterOrEqual(t, h.Session(), int64(2), "each reconnect starts a session")
}

func TestSerialSource_InvalidOptions(t *testing.T) {
	src := &SerialSource{Path: "/dev/null", Options: PortOptions{Parity: "x"}}
	err := src.Run(context.Background(), NewHandoff())
	assert.ErrorContains(t, err, "unsupported parity")
}

func TestUDPSource(t *testing.T) {
	src := &UDPSource{Address: "127.0.0.1:0"}
	addr, err := src.Listen()
	require.NoError(t, err)

	h := NewHandoff()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, h) }()

	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(append(frameLine(t, 1), frameLine(t, 2)...))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.Stats().Published == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func udpPacket(t *testing.T, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 20),
		DstIP:    net.IPv4(192, 168, 1, 10),
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func TestPCAPSource_Replay(t *testing.T) {
	var capture bytes.Buffer
	w := pcapgo.NewWriter(&capture)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	packets := [][]byte{
		udpPacket(t, 7070, frameLine(t, 1)),
		udpPacket(t, 9999, frameLine(t, 5)),
		udpPacket(t, 7070, append(frameLine(t, 2), frameLine(t, 3)...)),
	}
	for i, data := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     epoch.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}

	h := NewHandoff()
	src := &PCAPSource{Path: "capture.pcap", UDPPort: 7070, Realtime: true, Speed: 100}
	require.NoError(t, src.replay(context.Background(), &capture, h))

	assert.Equal(t, int64(3), h.Stats().Published, "other ports are ignored")
	f, ok := h.Take()
	require.True(t, ok)
	assert.Equal(t, int64(3), f.Counter)
}

func TestPCAPSource_Errors(t *testing.T) {
	src := &PCAPSource{Path: "/nonexistent/capture.pcap"}
	assert.ErrorContains(t, src.Run(context.Background(), NewHandoff()), "open pcap")

	err := src.replay(context.Background(), strings.NewReader("not a capture"), NewHandoff())
	assert.ErrorContains(t, err, "pcap header")
}

func TestWalker(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	w := NewWalker(clock, 50*time.Millisecond, [3]float64{4, 3, 4})

	h := NewHandoff()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, h) }()

	var first *body.Frame
	require.Eventually(t, func() bool {
		var ok bool
		first, ok = h.Take()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), first.Counter)
	require.Equal(t, 1, first.TrackedCount)
	assert.Greater(t, first.Tracked()[0].Joint(body.SpineBase).Position.Z(), 0.0, "walker stays in front of the sensor")

	clock.Advance(50 * time.Millisecond)
	var second *body.Frame
	require.Eventually(t, func() bool {
		var ok bool
		second, ok = h.Take()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), second.Counter)
	assert.True(t, epoch.Add(50*time.Millisecond).Equal(second.Timestamp))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWalker_Circles(t *testing.T) {
	w := NewWalker(nil, 0, [3]float64{4, 3, 4})
	a := w.Frame(epoch).Tracked()[0].Joint(body.SpineBase).Position
	b := w.Frame(epoch.Add(walkerPeriod / 2)).Tracked()[0].Joint(body.SpineBase).Position
	assert.InDelta(t, 2*w.radius, a.Sub(b).Len(), 1e-9, "half a lap crosses the circle")
}

func TestNewSource(t *testing.T) {
	cfg := config.DefaultCaveConfig()
	src, err := NewSource(cfg, timeutil.NewMockClock(epoch))
	require.NoError(t, err)
	assert.IsType(t, &Walker{}, src)

	for kind, want := range map[string]Source{
		"serial": &SerialSource{},
		"udp":    &UDPSource{},
	} {
		k := kind
		cfg.FeedKind = &k
		src, err := NewSource(cfg, nil)
		require.NoError(t, err)
		assert.IsType(t, want, src)
	}

	kind := "pcap"
	cfg.FeedKind = &kind
	_, err = NewSource(cfg, nil)
	assert.ErrorContains(t, err, "pcap_file")
	file := "/tmp/capture.pcap"
	cfg.PCAPFile = &file
	src, err = NewSource(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, &PCAPSource{Path: file, UDPPort: 7070, Realtime: true}, src)

	kind = "carrier-pigeon"
	_, err = NewSource(cfg, nil)
	assert.ErrorContains(t, err, "unknown feed kind")
}
