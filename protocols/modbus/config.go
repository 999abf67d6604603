// Package modbus implements a polling Modbus TCP/RTU channel: register
// grouping and coalescing, the byte codec and linear transform pipeline,
// and FC01/02/03/04/05/06/15/16 read and write paths.
package modbus

import (
	"time"

	"github.com/fieldgw/igw/core"
)

// Mode selects the transport a channel uses to reach its slave devices.
type Mode int

const (
	// ModeTCP connects to a Modbus TCP gateway over the network.
	ModeTCP Mode = iota
	// ModeRTU connects to a Modbus RTU bus over a serial port.
	ModeRTU
)

// Config describes a single Modbus channel: how to reach the bus and
// which points to poll on it.
type Config struct {
	Mode Mode

	// Address is "host:port" for ModeTCP or a device path (e.g.
	// "/dev/ttyUSB0") for ModeRTU.
	Address string

	ConnectTimeout time.Duration
	IOTimeout      time.Duration
	MaxRetries     uint32
	RetryDelay     time.Duration

	// RTU-only fields.
	BaudRate int
	DataBits byte
	Parity   byte // 'N', 'E', or 'O'
	StopBits byte

	Points []core.PointConfig
}

// NewTCPConfig returns a Config with sane TCP defaults.
func NewTCPConfig(address string) Config {
	return Config{
		Mode:           ModeTCP,
		Address:        address,
		ConnectTimeout: 5 * time.Second,
		IOTimeout:      3 * time.Second,
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
	}
}

// NewRTUConfig returns a Config with sane RTU defaults (9600 8N1).
func NewRTUConfig(device string) Config {
	return Config{
		Mode:           ModeRTU,
		Address:        device,
		ConnectTimeout: 5 * time.Second,
		IOTimeout:      3 * time.Second,
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
		BaudRate:       9600,
		DataBits:       8,
		Parity:         'N',
		StopBits:       1,
	}
}
