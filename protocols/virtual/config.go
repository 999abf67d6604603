// Package virtual implements a data-hub channel with no physical
// transport: it accepts writes from any source and serves them back,
// fanning out a DataUpdate event per write.
package virtual

import "github.com/fieldgw/igw/core"

// Config configures a virtual channel.
type Config struct {
	Points []core.PointConfig
	// PersistPath, when non-empty, backs the latest-value cache with a
	// bbolt database so values survive process restarts.
	PersistPath string
	BufferSize  int
}

// NewConfig builds a Config with a 1024-entry default buffer size.
func NewConfig() Config {
	return Config{BufferSize: 1024}
}
