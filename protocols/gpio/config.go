package gpio

import (
	"time"

	"github.com/fieldgw/igw/core"
)

// Config is the per-channel GPIO configuration: the points it exposes and
// how often input pins are sampled.
type Config struct {
	Points       []core.PointConfig
	PollInterval time.Duration
}

// NewConfig returns a Config with a 100ms default poll interval.
func NewConfig() Config {
	return Config{PollInterval: 100 * time.Millisecond}
}
