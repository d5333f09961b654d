// Package feed delivers sensor frames to the frame loop.
//
// Sources decode line-delimited JSON frames from a serial port, UDP
// datagrams, a pcap capture or a synthetic walker, and publish them into a
// Handoff. The frame loop takes only the newest frame; frames that arrive
// out of order are dropped.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/cave.view/internal/body"
)

// ErrStaleFrame is returned when a frame's counter does not advance.
var ErrStaleFrame = errors.New("feed: stale frame")

// DecodeFrame parses one JSON frame and normalizes its detections.
func DecodeFrame(line []byte) (*body.Frame, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, errors.New("feed: empty frame")
	}
	var f body.Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, fmt.Errorf("feed: decode frame: %w", err)
	}
	f.Normalize()
	return &f, nil
}

// EncodeFrame writes f as a single JSON line.
func EncodeFrame(f *body.Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("feed: encode frame: %w", err)
	}
	return append(b, '\n'), nil
}
