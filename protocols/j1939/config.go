package j1939

import (
	"time"

	"github.com/fieldgw/igw/core"
)

// Config configures one CAN bus connection carrying J1939 traffic.
type Config struct {
	Device         string // serial device exposing the CAN adapter, e.g. /dev/ttyUSB0
	BaudRate       int
	SourceAddress  uint8 // only frames with this SA are decoded
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Points         []core.PointConfig
}

// NewConfig builds a Config with a CAN-adapter-typical baud rate and sane
// read/connect timeouts.
func NewConfig(device string, sourceAddress uint8) Config {
	return Config{
		Device:         device,
		BaudRate:       115200,
		SourceAddress:  sourceAddress,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    2 * time.Second,
	}
}
