package j1939

import (
	"context"
	"strconv"
	"time"

	"github.com/fieldgw/igw/core"
	"github.com/tarm/serial"
)

// frameSource delivers raw CAN frames read from a serial-attached CAN
// adapter. Frames arrive on a channel fed by a background reader goroutine;
// the caller never blocks a read call on I/O directly.
type frameSource interface {
	connect(ctx context.Context) error
	close() error
	frames() <-chan Frame
}

// interFrameGap is the quiet period that marks the boundary between two
// frames arriving on the wire.
const interFrameGap = 5 * time.Millisecond

// serialFrameSource reads raw CAN frames from a serial-attached adapter
// that prefixes each frame with a 4-byte big-endian 29-bit CAN ID followed
// by up to 8 data bytes, delimited on the wire by an inter-frame gap
// rather than a length or terminator byte.
type serialFrameSource struct {
	cfg      Config
	port     *serial.Port
	out      chan Frame
	stopChan chan struct{}
}

func newFrameSource(cfg Config) frameSource {
	return &serialFrameSource{cfg: cfg}
}

func (s *serialFrameSource) connect(ctx context.Context) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        s.cfg.Device,
		Baud:        s.cfg.BaudRate,
		ReadTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		return core.ConnectionErr("j1939: open %s: %v", s.cfg.Device, err)
	}
	s.port = port
	s.out = make(chan Frame, 64)
	s.stopChan = make(chan struct{})
	go s.readFrames()
	return nil
}

func (s *serialFrameSource) close() error {
	if s.stopChan != nil {
		close(s.stopChan)
	}
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

func (s *serialFrameSource) frames() <-chan Frame { return s.out }

// readFrames accumulates bytes until a read timeout (or an inter-byte gap
// past interFrameGap) signals a frame boundary, then decodes the 4-byte ID
// header and hands the parsed frame to the out channel.
func (s *serialFrameSource) readFrames() {
	buf := make([]byte, 256)
	var acc []byte
	last := time.Now()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		n, err := s.port.Read(buf)
		now := time.Now()
		if err != nil && n == 0 {
			if len(acc) > 0 && now.Sub(last) >= interFrameGap {
				s.emit(acc)
				acc = nil
			}
			continue
		}

		for i := 0; i < n; i++ {
			if len(acc) > 0 && now.Sub(last) >= interFrameGap {
				s.emit(acc)
				acc = nil
			}
			acc = append(acc, buf[i])
			last = now
		}
	}
}

func (s *serialFrameSource) emit(raw []byte) {
	if len(raw) < 5 {
		return
	}
	id := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
	data := make([]byte, len(raw)-4)
	copy(data, raw[4:])
	select {
	case s.out <- Frame{ID: id, Data: data}:
	default:
		// Receiver stalled: drop rather than block the reader goroutine.
	}
}

// genericSPN parses a point's Generic address as a decimal SPN number.
func genericSPN(addr core.ProtocolAddress) (uint32, bool) {
	if addr.Generic == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(*addr.Generic, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
