package iec104

import (
	"testing"
	"time"
)

func newTestConn(k uint16, t1 time.Duration) *conn {
	return &conn{
		cfg: Config{SendUnAckLimitK: k, SendUnAckTimeout1: t1, RecvUnAckLimitW: 8, RecvUnAckTimeout2: time.Hour},
		nc:  nil,
	}
}

func TestSendASDUStallsAtSendWindowLimit(t *testing.T) {
	c := newTestConn(2, time.Hour)
	c.writeMu.Lock()
	c.unackedSend = 2
	c.writeMu.Unlock()

	// writeRaw would dereference c.nc, but sendWindowFull is checked first
	// and must short-circuit before any network I/O is attempted.
	if !c.sendWindowFull() {
		t.Fatal("expected send window to report full at k=2 with 2 unacked sends")
	}
}

func TestRecordSendAckDrainsUnackedCount(t *testing.T) {
	c := newTestConn(12, time.Hour)
	c.unackedSend = 3
	c.lastAckedSendSN = 0

	c.recordSendAck(2)
	if c.unackedSend != 1 {
		t.Fatalf("unackedSend = %d, want 1 after acking 2 of 3 outstanding sends", c.unackedSend)
	}

	c.recordSendAck(2) // no new ack progress
	if c.unackedSend != 1 {
		t.Fatalf("unackedSend = %d, want unchanged at 1 when rcvSN repeats", c.unackedSend)
	}
}

func TestSendAckOverdueRespectsT1(t *testing.T) {
	c := newTestConn(12, 10*time.Millisecond)
	if c.sendAckOverdue() {
		t.Fatal("no unacked sends yet, should not be overdue")
	}

	c.writeMu.Lock()
	c.unackedSend = 1
	c.firstUnackedSendAt = time.Now().Add(-20 * time.Millisecond)
	c.writeMu.Unlock()

	if !c.sendAckOverdue() {
		t.Fatal("expected t1 breach to be reported once the oldest unacked send exceeds SendUnAckTimeout1")
	}
}

func TestRecvAckOverdueRespectsT2(t *testing.T) {
	c := newTestConn(12, time.Hour)
	c.cfg.RecvUnAckTimeout2 = 10 * time.Millisecond

	c.onIFrameReceived(0)
	if c.recvAckOverdue() {
		t.Fatal("just received, should not be overdue yet")
	}

	c.writeMu.Lock()
	c.firstUnackedRecvAt = time.Now().Add(-20 * time.Millisecond)
	c.writeMu.Unlock()

	if !c.recvAckOverdue() {
		t.Fatal("expected t2 breach to be reported once an unacked receive exceeds RecvUnAckTimeout2")
	}
}
