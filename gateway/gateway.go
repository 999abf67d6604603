// Package gateway wires a declarative configuration into a running set of
// channels: address shorthand parsing, the TOML configuration schema, the
// protocol factory, and the Gateway type that owns every channel's
// lifecycle and feeds their events into a shared router.
package gateway

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/core"
	"github.com/fieldgw/igw/router"
)

// namedChannel pairs a built runtime with its declared polling cadence.
type namedChannel struct {
	runtime      channel.Runtime
	pollInterval time.Duration
	mode         ChannelMode
	unsubscribe  func()
}

// Gateway owns a set of protocol channels built from a GatewayConfig, a
// shared DataRouter, and the background goroutines that poll or drain
// events from each channel into it.
type Gateway struct {
	cfg      GatewayConfig
	channels map[uint32]*namedChannel
	router   *router.DataRouter

	cancel context.CancelFunc
}

// Build constructs every enabled channel in cfg through CreateChannel and
// wires them to an internal DataRouter. Per-point address warnings are
// logged, not returned; a channel that fails to construct outright is
// skipped with an error log rather than aborting the whole gateway.
func Build(cfg GatewayConfig) *Gateway {
	gw := &Gateway{
		cfg:      cfg,
		channels: make(map[uint32]*namedChannel),
		router:   router.NewDataRouter(router.NewConfig(router.NewRoutingTable())),
	}

	for _, chCfg := range cfg.Channels {
		if !chCfg.Enabled() {
			continue
		}
		rt, warnings, err := CreateChannel(chCfg)
		if err != nil {
			log.Printf("gateway: channel %d (%s): failed to build: %v", chCfg.ID, chCfg.Protocol, err)
			continue
		}
		for _, w := range warnings {
			log.Printf("gateway: channel %d (%s): %s", chCfg.ID, chCfg.Protocol, w)
		}

		interval := time.Duration(cfg.Gateway.DefaultPollIntervalMs) * time.Millisecond
		if chCfg.PollIntervalMs != nil {
			interval = time.Duration(*chCfg.PollIntervalMs) * time.Millisecond
		}

		gw.channels[chCfg.ID] = &namedChannel{runtime: rt, pollInterval: interval, mode: chCfg.Mode}
		gw.router.RegisterTarget(chCfg.ID, router.NewChannelWriter(rt))
	}

	return gw
}

// Channel returns the runtime built for a channel id, if any.
func (g *Gateway) Channel(id uint32) (channel.Runtime, bool) {
	nc, ok := g.channels[id]
	if !ok {
		return nil, false
	}
	return nc.runtime, true
}

// Router returns the shared data router every channel forwards into.
func (g *Gateway) Router() *router.DataRouter { return g.router }

// SetRoutingTable installs the mapping table the router evaluates.
func (g *Gateway) SetRoutingTable(table *router.RoutingTable) {
	g.router.SetRoutingTable(table)
}

// Start connects every channel concurrently, then launches a poll loop or
// event drain per channel according to its configured mode. It returns
// once every channel has attempted to connect; a single channel's connect
// failure is logged and does not prevent the others from starting.
func (g *Gateway) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	group, gctx := errgroup.WithContext(runCtx)
	for id, nc := range g.channels {
		id, nc := id, nc
		group.Go(func() error {
			if err := nc.runtime.Connect(gctx); err != nil {
				log.Printf("gateway: channel %d: connect failed: %v", id, err)
				return nil
			}
			g.startChannel(runCtx, id, nc)
			return nil
		})
	}
	return group.Wait()
}

func (g *Gateway) startChannel(ctx context.Context, id uint32, nc *namedChannel) {
	switch nc.mode {
	case ModeEvent, ModeHybrid:
		if err := nc.runtime.StartEvents(ctx); err != nil {
			log.Printf("gateway: channel %d: start events failed: %v", id, err)
		} else if events, unsubscribe, ok := nc.runtime.Subscribe(); ok {
			nc.unsubscribe = unsubscribe
			go g.router.Run(ctx, events)
		}
	}
	if nc.mode == ModePolling || nc.mode == ModeHybrid {
		go g.pollLoop(ctx, id, nc)
	}
}

func (g *Gateway) pollLoop(ctx context.Context, id uint32, nc *namedChannel) {
	interval := nc.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := nc.runtime.PollOnce(ctx, core.ReadAll())
			if err != nil {
				log.Printf("gateway: channel %d: poll failed: %v", id, err)
				continue
			}
			if err := g.router.ProcessBatch(ctx, id, resp.Data); err != nil {
				log.Printf("gateway: channel %d: route failed: %v", id, err)
			}
		}
	}
}

// Stop cancels every background goroutine and disconnects every channel
// concurrently.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}

	group, gctx := errgroup.WithContext(ctx)
	for id, nc := range g.channels {
		id, nc := id, nc
		group.Go(func() error {
			if nc.unsubscribe != nil {
				nc.unsubscribe()
			}
			if err := nc.runtime.StopEvents(gctx); err != nil {
				log.Printf("gateway: channel %d: stop events failed: %v", id, err)
			}
			if err := nc.runtime.Disconnect(gctx); err != nil {
				log.Printf("gateway: channel %d: disconnect failed: %v", id, err)
			}
			return nil
		})
	}
	return group.Wait()
}

// Diagnostics collects a snapshot from every channel, keyed by channel id.
func (g *Gateway) Diagnostics(ctx context.Context) map[uint32]core.Diagnostics {
	out := make(map[uint32]core.Diagnostics, len(g.channels))
	for id, nc := range g.channels {
		if d, err := nc.runtime.Diagnostics(ctx); err == nil {
			out[id] = d
		}
	}
	return out
}
