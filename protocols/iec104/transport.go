package iec104

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// conn wraps the TCP socket and APCI sequence-number bookkeeping for one
// CS 104 association. It owns a single background reader; writes are
// serialized by writeMu since I/S/U frames interleave on one socket.
type conn struct {
	cfg Config
	nc  net.Conn
	r   *bufio.Reader

	writeMu sync.Mutex
	sendSN  uint16
	rcvSN   uint16

	unackedRecv        int       // I-frames received since the last ack ("w")
	firstUnackedRecvAt time.Time // when unackedRecv went 0 -> 1, for t2

	unackedSend        int       // I-frames sent that the peer hasn't acked yet ("k")
	lastAckedSendSN    uint16    // highest send-SN the peer has acked so far
	firstUnackedSendAt time.Time // when unackedSend went 0 -> 1, for t1

	lastActive time.Time
}

func dial(cfg Config) (*conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	nc, err := net.DialTimeout("tcp", addr, cfg.ConnectTimeout0)
	if err != nil {
		return nil, err
	}
	c := &conn{cfg: cfg, nc: nc, r: bufio.NewReader(nc), lastActive: time.Now()}
	return c, nil
}

func (c *conn) close() error { return c.nc.Close() }

// startDt performs the STARTDT activation handshake CS 104 requires
// before any I-frame traffic is accepted.
func (c *conn) startDt() error {
	if err := c.writeRaw(newUFrame(uStartDtActive)); err != nil {
		return err
	}
	f, err := c.readFrame()
	if err != nil {
		return err
	}
	if f.kind != frameU || f.function != uStartDtConfirm {
		return fmt.Errorf("iec104: expected STARTDT confirm, got %+v", f)
	}
	return nil
}

func (c *conn) stopDt() error {
	return c.writeRaw(newUFrame(uStopDtActive))
}

func (c *conn) writeRaw(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.nc.Write(b)
	return err
}

// sendASDU wraps an ASDU in an I-frame using the next send sequence
// number and transmits it. It refuses to send once k (SendUnAckLimitK)
// I-frames are outstanding, per the companion standard's send-window
// flow control.
func (c *conn) sendASDU(asdu []byte) error {
	c.writeMu.Lock()
	if c.sendWindowFull() {
		c.writeMu.Unlock()
		return fmt.Errorf("iec104: send window full (k=%d unacked I-frames)", c.cfg.SendUnAckLimitK)
	}
	sendSN := c.sendSN
	rcvSN := c.rcvSN
	c.sendSN++
	if c.unackedSend == 0 {
		c.firstUnackedSendAt = time.Now()
	}
	c.unackedSend++
	c.writeMu.Unlock()

	frame, err := newIFrame(sendSN, rcvSN, asdu)
	if err != nil {
		return err
	}
	return c.writeRaw(frame)
}

// sendWindowFull reports whether k (SendUnAckLimitK) sent I-frames are
// already outstanding. sendASDU calls it with writeMu held.
func (c *conn) sendWindowFull() bool {
	return c.cfg.SendUnAckLimitK > 0 && c.unackedSend >= int(c.cfg.SendUnAckLimitK)
}

// recordSendAck updates the outstanding-unacked-send count from a peer's
// rcvSN, carried on every I- and S-frame the peer sends us.
func (c *conn) recordSendAck(peerRcvSN uint16) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	acked := peerRcvSN - c.lastAckedSendSN
	if acked == 0 {
		return
	}
	if int(acked) >= c.unackedSend {
		c.unackedSend = 0
	} else {
		c.unackedSend -= int(acked)
	}
	c.lastAckedSendSN = peerRcvSN
}

// sendAckOverdue reports whether the oldest unacked sent I-frame has been
// outstanding longer than t1 (SendUnAckTimeout1).
func (c *conn) sendAckOverdue() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.unackedSend > 0 && time.Since(c.firstUnackedSendAt) >= c.cfg.SendUnAckTimeout1
}

func (c *conn) sendTestFr() error { return c.writeRaw(newUFrame(uTestFrActive)) }

// readFrame reads one APDU and parses its APCI header.
func (c *conn) readFrame() (parsedFrame, error) {
	start, err := c.r.ReadByte()
	if err != nil {
		return parsedFrame{}, err
	}
	if start != startFrame {
		return parsedFrame{}, fmt.Errorf("iec104: bad start byte 0x%02x", start)
	}
	length, err := c.r.ReadByte()
	if err != nil {
		return parsedFrame{}, err
	}
	if length < 4 {
		return parsedFrame{}, fmt.Errorf("iec104: apdu length %d too short", length)
	}
	var ctrl [4]byte
	if _, err := io.ReadFull(c.r, ctrl[:]); err != nil {
		return parsedFrame{}, err
	}
	rest := make([]byte, int(length)-4)
	if len(rest) > 0 {
		if _, err := io.ReadFull(c.r, rest); err != nil {
			return parsedFrame{}, err
		}
	}
	c.lastActive = time.Now()
	return parseAPCI(ctrl, rest), nil
}

// onIFrameReceived tracks the receive sequence number and reports whether
// an immediate S-frame acknowledgment is due (per RecvUnAckLimitW).
func (c *conn) onIFrameReceived(sendSN uint16) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.rcvSN = sendSN + 1
	if c.unackedRecv == 0 {
		c.firstUnackedRecvAt = time.Now()
	}
	c.unackedRecv++
	if c.unackedRecv >= int(c.cfg.RecvUnAckLimitW) {
		c.unackedRecv = 0
		return true
	}
	return false
}

// recvAckOverdue reports whether unacked received I-frames have been
// waiting longer than t2 (RecvUnAckTimeout2), independent of w.
func (c *conn) recvAckOverdue() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.unackedRecv > 0 && time.Since(c.firstUnackedRecvAt) >= c.cfg.RecvUnAckTimeout2
}

func (c *conn) ack() error {
	c.writeMu.Lock()
	rcvSN := c.rcvSN
	c.unackedRecv = 0
	c.writeMu.Unlock()
	return c.writeRaw(newSFrame(rcvSN))
}
