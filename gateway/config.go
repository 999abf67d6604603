package gateway

import (
	"github.com/BurntSushi/toml"

	"github.com/fieldgw/igw/core"
)

// ChannelMode selects how a channel's runtime is driven: polled on a
// fixed interval, pushed via Subscribe, or both.
type ChannelMode int

const (
	ModePolling ChannelMode = iota
	ModeEvent
	ModeHybrid
)

func (m ChannelMode) String() string {
	switch m {
	case ModeEvent:
		return "event"
	case ModeHybrid:
		return "hybrid"
	default:
		return "polling"
	}
}

// UnmarshalText lets TOML decode the mode from its string form.
func (m *ChannelMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "polling":
		*m = ModePolling
	case "event":
		*m = ModeEvent
	case "hybrid":
		*m = ModeHybrid
	default:
		return core.ConfigErr("unknown channel mode %q", string(text))
	}
	return nil
}

// PointDef is one point's declarative definition within a channel's TOML
// table. DataType is a supplement this schema adds beyond the point
// definition it is grounded on: a point's SCADA four-remotes role cannot
// be inferred from its address shorthand alone.
type PointDef struct {
	ID        uint32
	Name      string
	Address   string
	DataType  string `toml:"data_type"`
	Transform TransformDef
	// EnabledOpt is nil when the TOML omits "enabled", which defaults to
	// true; use Enabled() rather than this field directly.
	EnabledOpt *bool `toml:"enabled"`
}

func (p PointDef) Enabled() bool {
	return p.EnabledOpt == nil || *p.EnabledOpt
}

// TransformDef is the TOML shape of core.TransformConfig; zero value
// decodes to the identity transform via ToCore.
type TransformDef struct {
	Scale    float64
	Offset   float64
	Reverse  bool
	Deadband *float64
	MinValue *float64 `toml:"min_value"`
	MaxValue *float64 `toml:"max_value"`
}

func (t TransformDef) ToCore() core.TransformConfig {
	scale := t.Scale
	if scale == 0 {
		scale = 1.0
	}
	return core.TransformConfig{
		Scale:    scale,
		Offset:   t.Offset,
		Reverse:  t.Reverse,
		Deadband: t.Deadband,
		MinValue: t.MinValue,
		MaxValue: t.MaxValue,
	}
}

func (p PointDef) dataType() (core.DataType, error) {
	switch p.DataType {
	case "telemetry":
		return core.Telemetry, nil
	case "signal":
		return core.Signal, nil
	case "control":
		return core.Control, nil
	case "adjustment":
		return core.Adjustment, nil
	default:
		return 0, core.ConfigErr("point %d: unknown data_type %q", p.ID, p.DataType)
	}
}

// ChannelConfig is one channel's declarative definition: identity,
// protocol, transport mode, protocol-specific parameters, and points.
type ChannelConfig struct {
	ID       uint32
	Name     string
	Protocol string
	// EnabledOpt is nil when the TOML omits "enabled", which defaults to
	// true; use Enabled() rather than this field directly.
	EnabledOpt     *bool `toml:"enabled"`
	Mode           ChannelMode
	PollIntervalMs *uint64                `toml:"poll_interval_ms"`
	Parameters     map[string]interface{} `toml:"parameters"`
	Points         []PointDef             `toml:"point"`
}

func (c ChannelConfig) Enabled() bool {
	return c.EnabledOpt == nil || *c.EnabledOpt
}

// GatewayGlobalConfig holds the gateway-wide defaults every channel falls
// back on when it doesn't override them.
type GatewayGlobalConfig struct {
	Name                  string
	DefaultPollIntervalMs uint64 `toml:"default_poll_interval_ms"`
	DiagnosticsIntervalMs uint64 `toml:"diagnostics_interval_ms"`
	JSONLOutput           bool   `toml:"jsonl_output"`
}

// GatewayConfig is the root of a gateway's TOML configuration file.
type GatewayConfig struct {
	Gateway  GatewayGlobalConfig
	Channels []ChannelConfig `toml:"channel"`
}

func defaultGlobalConfig() GatewayGlobalConfig {
	return GatewayGlobalConfig{
		Name:                  "igw",
		DefaultPollIntervalMs: 1000,
		DiagnosticsIntervalMs: 5000,
	}
}

// Parse decodes a GatewayConfig from a TOML document already in memory.
func Parse(data string) (GatewayConfig, error) {
	cfg := GatewayConfig{Gateway: defaultGlobalConfig()}
	if _, err := toml.Decode(data, &cfg); err != nil {
		return GatewayConfig{}, core.ConfigErr("parsing gateway config: %v", err)
	}
	applyChannelDefaults(&cfg)
	return cfg, nil
}

// LoadFile reads and decodes a GatewayConfig from a TOML file on disk.
func LoadFile(path string) (GatewayConfig, error) {
	cfg := GatewayConfig{Gateway: defaultGlobalConfig()}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return GatewayConfig{}, core.ConfigErr("loading gateway config %s: %v", path, err)
	}
	applyChannelDefaults(&cfg)
	return cfg, nil
}

func applyChannelDefaults(cfg *GatewayConfig) {
	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		if ch.Mode == ModePolling && ch.PollIntervalMs == nil {
			v := cfg.Gateway.DefaultPollIntervalMs
			ch.PollIntervalMs = &v
		}
	}
}
