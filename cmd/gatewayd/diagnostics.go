package main

import (
	"context"
	"log"
	"time"

	"github.com/fieldgw/igw/gateway"
)

// startDiagnosticsLoop periodically logs every channel's diagnostics
// snapshot at the configured interval, returning a func that stops it.
func startDiagnosticsLoop(ctx context.Context, gw *gateway.Gateway, cfg gateway.GatewayConfig) func() {
	interval := time.Duration(cfg.Gateway.DiagnosticsIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				for id, d := range gw.Diagnostics(ctx) {
					log.Printf("gatewayd: channel %d [%s]: state=%s reads=%d writes=%d errors=%d",
						id, d.Protocol, d.ConnectionState, d.ReadCount, d.WriteCount, d.ErrorCount)
				}
			}
		}
	}()
	return func() { close(stop) }
}
