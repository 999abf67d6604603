// Package opcua implements an event-driven channel against an OPC UA
// server using gopcua: a subscription with one monitored item per
// configured point feeds the latest-value cache, mirroring the shape the
// iec104 and j1939 channels already use for their background receivers.
package opcua

import (
	"time"

	"github.com/fieldgw/igw/core"
)

// Config configures one OPC UA client session.
type Config struct {
	Endpoint string // e.g. "opc.tcp://host:4840"

	SecurityPolicy string // "None", "Basic256Sha256", ...
	SecurityMode   string // "None", "Sign", "SignAndEncrypt"
	Username       string
	Password       string

	ConnectTimeout       time.Duration
	SubscriptionInterval time.Duration

	Points []core.PointConfig
}

// NewConfig returns a Config with no security and a 1s subscription
// publishing interval.
func NewConfig(endpoint string) Config {
	return Config{
		Endpoint:             endpoint,
		SecurityPolicy:       "None",
		SecurityMode:         "None",
		ConnectTimeout:       10 * time.Second,
		SubscriptionInterval: time.Second,
	}
}
