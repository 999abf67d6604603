package main

import (
	"context"
	"log"

	"github.com/fieldgw/igw/bridge/mqtttap"
	"github.com/fieldgw/igw/gateway"
)

// startMQTTTaps opens one mqtttap.Tap per configured channel against the
// given broker, bridging each channel's data events and command topic
// independently.
func startMQTTTaps(gw *gateway.Gateway, cfg gateway.GatewayConfig, broker string) {
	for _, chCfg := range cfg.Channels {
		rt, ok := gw.Channel(chCfg.ID)
		if !ok {
			continue
		}
		tap := mqtttap.NewTap(mqtttap.NewConfig(broker, chCfg.ID), rt)
		if err := tap.Connect(context.Background()); err != nil {
			log.Printf("gatewayd: mqtt tap for channel %d: %v", chCfg.ID, err)
			continue
		}
		log.Printf("gatewayd: mqtt tap active for channel %d (%s)", chCfg.ID, chCfg.Name)
	}
}
