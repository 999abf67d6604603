package iec104

import (
	"time"

	"github.com/fieldgw/igw/core"
)

// Config configures a CS 104 TCP connection. Field names and defaults
// follow the companion standard's conventional t0-t3/k/w parameters.
type Config struct {
	Host          string
	Port          int
	CommonAddress uint16

	ConnectTimeout0   time.Duration // "t0", max time to establish the TCP connection
	SendUnAckTimeout1 time.Duration // "t1", max time awaiting an I-frame ack
	RecvUnAckTimeout2 time.Duration // "t2", max time before this side must ack
	IdleTimeout3      time.Duration // "t3", idle period triggering TESTFR

	SendUnAckLimitK uint16 // "k", outstanding unacked I-frames before stalling
	RecvUnAckLimitW uint16 // "w", received I-frames before an unsolicited ack

	Points []core.PointConfig
}

// NewConfig returns a Config with the standard's default timing
// parameters (t0=30s, t1=15s, t2=10s, t3=20s, k=12, w=8).
func NewConfig(host string, port int, commonAddress uint16) Config {
	return Config{
		Host:              host,
		Port:              port,
		CommonAddress:     commonAddress,
		ConnectTimeout0:   30 * time.Second,
		SendUnAckTimeout1: 15 * time.Second,
		RecvUnAckTimeout2: 10 * time.Second,
		IdleTimeout3:      20 * time.Second,
		SendUnAckLimitK:   12,
		RecvUnAckLimitW:   8,
	}
}
