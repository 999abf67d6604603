// Command gatewayd loads a declarative TOML gateway configuration, builds
// and connects every configured channel, and runs until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldgw/igw/gateway"
)

const defaultConfigPath = "gateway.toml"

var (
	configPath = flag.String("config", defaultConfigPath, "path to the gateway's TOML configuration file")
	mqttBroker = flag.String("mqtt-broker", "", "optional MQTT broker address to tap channel events onto (e.g. tcp://localhost:1883)")
)

func main() {
	flag.Parse()

	cfg, err := gateway.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("gatewayd: loading config %s: %v", *configPath, err)
	}

	gw := gateway.Build(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		log.Fatalf("gatewayd: starting gateway: %v", err)
	}
	log.Printf("gatewayd: %q running with %d channel(s) configured", cfg.Gateway.Name, len(cfg.Channels))

	if *mqttBroker != "" {
		startMQTTTaps(gw, cfg, *mqttBroker)
	}

	stopDiagnostics := startDiagnosticsLoop(ctx, gw, cfg)
	defer stopDiagnostics()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("gatewayd: shutting down...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := gw.Stop(stopCtx); err != nil {
		log.Printf("gatewayd: stop: %v", err)
	}
}
