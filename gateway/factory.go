package gateway

import (
	"fmt"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/core"
	"github.com/fieldgw/igw/protocols/gpio"
	"github.com/fieldgw/igw/protocols/iec104"
	"github.com/fieldgw/igw/protocols/j1939"
	"github.com/fieldgw/igw/protocols/modbus"
	"github.com/fieldgw/igw/protocols/opcua"
	"github.com/fieldgw/igw/protocols/virtual"
)

// PointWarning records a point definition the factory could not turn into
// a core.PointConfig. A bad point definition never aborts channel creation;
// it is surfaced as a warning instead so one bad point doesn't take down an
// otherwise-healthy channel.
type PointWarning struct {
	PointID uint32
	Reason  string
}

func (w PointWarning) String() string {
	return fmt.Sprintf("point %d: %s", w.PointID, w.Reason)
}

// buildPoints parses every enabled point definition's address and data
// type, collecting failures as warnings instead of failing the whole
// channel. Definitions with enabled=false are skipped.
func buildPoints(protocol string, defs []PointDef) ([]core.PointConfig, []PointWarning) {
	var points []core.PointConfig
	var warnings []PointWarning

	for _, def := range defs {
		if !def.Enabled() {
			continue
		}
		dataType, err := def.dataType()
		if err != nil {
			warnings = append(warnings, PointWarning{PointID: def.ID, Reason: err.Error()})
			continue
		}
		addr, err := ParseAddress(protocol, def.Address)
		if err != nil {
			warnings = append(warnings, PointWarning{PointID: def.ID, Reason: err.Error()})
			continue
		}
		pc := core.NewPointConfig(def.ID, dataType, addr).
			WithName(def.Name).
			WithTransform(def.Transform.ToCore())
		pc.Enabled = def.Enabled()
		points = append(points, pc)
	}
	return points, warnings
}

// CreateChannel builds a channel.Runtime from a declarative ChannelConfig,
// dispatching on its Protocol field. Point address parse failures are
// returned as warnings alongside the runtime rather than failing channel
// creation outright.
func CreateChannel(cfg ChannelConfig) (channel.Runtime, []PointWarning, error) {
	points, warnings := buildPoints(cfg.Protocol, cfg.Points)

	switch cfg.Protocol {
	case "modbus":
		rt, err := newModbusChannel(cfg, points)
		return rt, warnings, err
	case "iec104":
		rt, err := newIec104Channel(cfg, points)
		return rt, warnings, err
	case "opcua":
		rt, err := newOpcUaChannel(cfg, points)
		return rt, warnings, err
	case "can":
		// SAE J1939 is the only CAN-layer protocol this gateway decodes;
		// the protocol keyword stays "can" to match the address shorthand
		// dispatch and the config's own protocol documentation.
		rt, err := newJ1939Channel(cfg, points)
		return rt, warnings, err
	case "gpio":
		rt, err := newGpioChannel(cfg, points)
		return rt, warnings, err
	case "virtual":
		rt, err := newVirtualChannel(cfg, points)
		return rt, warnings, err
	default:
		return nil, warnings, core.ConfigErr("unknown channel protocol %q", cfg.Protocol)
	}
}

func newModbusChannel(cfg ChannelConfig, points []core.PointConfig) (channel.Runtime, error) {
	p := params(cfg.Parameters)

	mode, err := p.string("mode", "tcp")
	if err != nil {
		return nil, err
	}

	var mc modbus.Config
	switch mode {
	case "tcp":
		address, err := p.requireString("address")
		if err != nil {
			return nil, err
		}
		mc = modbus.NewTCPConfig(address)
	case "rtu":
		device, err := p.requireString("device")
		if err != nil {
			return nil, err
		}
		mc = modbus.NewRTUConfig(device)
		if baud, err := p.int64("baud_rate", int64(mc.BaudRate)); err != nil {
			return nil, err
		} else {
			mc.BaudRate = int(baud)
		}
		if dataBits, err := p.int64("data_bits", int64(mc.DataBits)); err != nil {
			return nil, err
		} else {
			mc.DataBits = byte(dataBits)
		}
		if parity, err := p.string("parity", string(mc.Parity)); err != nil {
			return nil, err
		} else if len(parity) > 0 {
			mc.Parity = parity[0]
		}
		if stopBits, err := p.int64("stop_bits", int64(mc.StopBits)); err != nil {
			return nil, err
		} else {
			mc.StopBits = byte(stopBits)
		}
	default:
		return nil, core.ConfigErr("modbus channel %d: unknown mode %q", cfg.ID, mode)
	}

	if ms, err := p.int64("max_retries", int64(mc.MaxRetries)); err != nil {
		return nil, err
	} else {
		mc.MaxRetries = uint32(ms)
	}
	if d, err := p.durationMs("connect_timeout_ms", mc.ConnectTimeout); err != nil {
		return nil, err
	} else {
		mc.ConnectTimeout = d
	}
	if d, err := p.durationMs("io_timeout_ms", mc.IOTimeout); err != nil {
		return nil, err
	} else {
		mc.IOTimeout = d
	}
	mc.Points = points

	return modbus.New(cfg.ID, cfg.Name, mc), nil
}

func newIec104Channel(cfg ChannelConfig, points []core.PointConfig) (channel.Runtime, error) {
	p := params(cfg.Parameters)

	host, err := p.requireString("host")
	if err != nil {
		return nil, err
	}
	port, err := p.int64("port", 2404)
	if err != nil {
		return nil, err
	}
	commonAddress, err := p.int64("common_address", 1)
	if err != nil {
		return nil, err
	}

	ic := iec104.NewConfig(host, int(port), uint16(commonAddress))
	ic.Points = points
	return iec104.New(cfg.ID, cfg.Name, ic), nil
}

func newOpcUaChannel(cfg ChannelConfig, points []core.PointConfig) (channel.Runtime, error) {
	p := params(cfg.Parameters)

	endpoint, err := p.requireString("endpoint")
	if err != nil {
		return nil, err
	}
	oc := opcua.NewConfig(endpoint)

	if oc.SecurityPolicy, err = p.string("security_policy", oc.SecurityPolicy); err != nil {
		return nil, err
	}
	if oc.SecurityMode, err = p.string("security_mode", oc.SecurityMode); err != nil {
		return nil, err
	}
	if oc.Username, err = p.string("username", oc.Username); err != nil {
		return nil, err
	}
	if oc.Password, err = p.string("password", oc.Password); err != nil {
		return nil, err
	}
	if oc.SubscriptionInterval, err = p.durationMs("subscription_interval_ms", oc.SubscriptionInterval); err != nil {
		return nil, err
	}
	oc.Points = points

	return opcua.New(cfg.ID, cfg.Name, oc), nil
}

func newJ1939Channel(cfg ChannelConfig, points []core.PointConfig) (channel.Runtime, error) {
	p := params(cfg.Parameters)

	device, err := p.requireString("device")
	if err != nil {
		return nil, err
	}
	sourceAddress, err := p.int64("source_address", 0)
	if err != nil {
		return nil, err
	}

	jc := j1939.NewConfig(device, uint8(sourceAddress))
	if baud, err := p.int64("baud_rate", int64(jc.BaudRate)); err != nil {
		return nil, err
	} else {
		jc.BaudRate = int(baud)
	}
	jc.Points = points

	return j1939.New(cfg.ID, cfg.Name, jc), nil
}

func newGpioChannel(cfg ChannelConfig, points []core.PointConfig) (channel.Runtime, error) {
	p := params(cfg.Parameters)

	gc := gpio.NewConfig()
	if d, err := p.durationMs("poll_interval_ms", gc.PollInterval); err != nil {
		return nil, err
	} else {
		gc.PollInterval = d
	}
	gc.Points = points

	return gpio.New(cfg.ID, cfg.Name, gc), nil
}

func newVirtualChannel(cfg ChannelConfig, points []core.PointConfig) (channel.Runtime, error) {
	p := params(cfg.Parameters)

	vc := virtual.NewConfig()
	if persistPath, err := p.string("persist_path", vc.PersistPath); err != nil {
		return nil, err
	} else {
		vc.PersistPath = persistPath
	}
	if bufSize, err := p.int64("buffer_size", int64(vc.BufferSize)); err != nil {
		return nil, err
	} else {
		vc.BufferSize = int(bufSize)
	}
	vc.Points = points

	return virtual.New(cfg.ID, cfg.Name, vc), nil
}
