package gateway

import "testing"

const sampleConfig = `
[gateway]
name = "plant-a"
default_poll_interval_ms = 2000

[[channel]]
id = 1
name = "line-1-plc"
protocol = "modbus"
mode = "polling"

[channel.parameters]
mode = "tcp"
address = "10.0.0.5:502"

[[channel.point]]
id = 1
name = "tank_level"
address = "1:100"
data_type = "telemetry"

[[channel]]
id = 2
name = "event-bus"
protocol = "iec104"
enabled = false
mode = "event"

[channel.parameters]
host = "10.0.0.9"

[[channel.point]]
id = 1
address = "2001"
data_type = "signal"
enabled = false
`

func TestParseGatewayConfig(t *testing.T) {
	cfg, err := Parse(sampleConfig)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Gateway.Name != "plant-a" || cfg.Gateway.DefaultPollIntervalMs != 2000 {
		t.Fatalf("unexpected global config: %+v", cfg.Gateway)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(cfg.Channels))
	}

	modbusChan := cfg.Channels[0]
	if !modbusChan.Enabled() {
		t.Fatal("channel omitting enabled should default to true")
	}
	if modbusChan.PollIntervalMs == nil || *modbusChan.PollIntervalMs != 2000 {
		t.Fatalf("polling channel should inherit the gateway default poll interval, got %+v", modbusChan.PollIntervalMs)
	}
	if len(modbusChan.Points) != 1 || modbusChan.Points[0].Address != "1:100" {
		t.Fatalf("unexpected points: %+v", modbusChan.Points)
	}

	iecChan := cfg.Channels[1]
	if iecChan.Enabled() {
		t.Fatal("channel with enabled=false should report disabled")
	}
	if iecChan.Points[0].Enabled() {
		t.Fatal("point with enabled=false should report disabled")
	}
}

func TestParseGatewayConfigDefaults(t *testing.T) {
	cfg, err := Parse(`
[gateway]
name = "bare"

[[channel]]
id = 1
name = "c1"
protocol = "virtual"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Gateway.DefaultPollIntervalMs != 1000 || cfg.Gateway.DiagnosticsIntervalMs != 5000 {
		t.Fatalf("unexpected global defaults: %+v", cfg.Gateway)
	}
}
