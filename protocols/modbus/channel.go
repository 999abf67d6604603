package modbus

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/codec"
	"github.com/fieldgw/igw/core"
)

// Channel is a polling ChannelRuntime driving one Modbus TCP or RTU bus.
type Channel struct {
	id        uint32
	name      string
	cfg       Config
	transport transport
	groups    []slaveGroup
	pointsByID map[uint32]core.PointConfig

	mu    sync.Mutex
	state core.ConnectionState
	diag  core.Diagnostics
}

// New builds a Modbus channel from its configuration. Disabled points and
// points with a non-Modbus address are excluded from the polling plan.
func New(id uint32, name string, cfg Config) *Channel {
	pointsByID := make(map[uint32]core.PointConfig, len(cfg.Points))
	for _, p := range cfg.Points {
		if p.Enabled && p.Address.Modbus != nil {
			pointsByID[p.ID] = p
		}
	}
	return &Channel{
		id:         id,
		name:       name,
		cfg:        cfg,
		transport:  newTransport(cfg),
		groups:     buildGroups(cfg.Points),
		pointsByID: pointsByID,
		state:      core.Disconnected,
		diag:       core.NewDiagnostics("modbus"),
	}
}

func (c *Channel) ID() uint32          { return c.id }
func (c *Channel) Name() string        { return c.name }
func (c *Channel) Protocol() string    { return "modbus" }
func (c *Channel) IsEventDriven() bool { return false }
func (c *Channel) Modes() []core.CommunicationMode {
	return []core.CommunicationMode{core.Polling}
}

func (c *Channel) setState(s core.ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.diag.ConnectionState = s
	c.mu.Unlock()
}

func (c *Channel) ConnectionState() core.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Connect(ctx context.Context) error {
	c.setState(core.Connecting)
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := c.transport.connect(ctx); err != nil {
		c.setState(core.ConnError)
		c.recordError(err)
		return err
	}
	c.setState(core.Connected)
	log.Printf("modbus[%d]: connected to %s", c.id, c.cfg.Address)
	return nil
}

func (c *Channel) Disconnect(ctx context.Context) error {
	err := c.transport.close()
	c.setState(core.Disconnected)
	return err
}

func (c *Channel) recordError(err error) {
	c.mu.Lock()
	c.diag.ErrorCount++
	c.diag.LastError = err.Error()
	c.mu.Unlock()
}

// PollOnce fetches every range in the polling plan, decodes each point
// within it, and applies the point's transform. An exception on one range
// fails every point in that range but other ranges still proceed.
func (c *Channel) PollOnce(ctx context.Context, req core.ReadRequest) (core.ReadResponse, error) {
	if !c.ConnectionState().IsConnected() {
		return core.ReadResponse{}, core.ErrNotConnectedErr()
	}

	var batch core.DataBatch
	failed := 0

	for _, g := range c.groups {
		for _, r := range g.ranges {
			if err := c.pollRange(ctx, g, r, req, &batch); err != nil {
				c.recordError(err)
				failed += len(r.points)
				// A read timeout is retryable and leaves the connection
				// state untouched; anything else that needs a reconnect
				// (socket-level errors) forces Reconnecting.
				if ge, ok := err.(*core.GatewayError); ok && ge.NeedsReconnect() {
					c.setState(core.Reconnecting)
				}
				continue
			}
		}
	}

	c.mu.Lock()
	c.diag.ReadCount++
	c.mu.Unlock()

	if failed > 0 {
		return core.PartialResponse(batch, failed), nil
	}
	return core.SuccessResponse(batch), nil
}

func pointSelected(p core.PointConfig, req core.ReadRequest) bool {
	if req.DataType != nil && *req.DataType != p.DataType {
		return false
	}
	if req.PointIDs != nil {
		for _, id := range req.PointIDs {
			if id == p.ID {
				return true
			}
		}
		return false
	}
	return true
}

func (c *Channel) pollRange(ctx context.Context, g slaveGroup, r registerRange, req core.ReadRequest, batch *core.DataBatch) error {
	if g.functionCode == FuncReadCoils || g.functionCode == FuncReadDiscreteInputs {
		body, err := c.transport.execute(ctx, g.slaveID, g.functionCode, buildReadRequest(r.start, r.count))
		if err != nil {
			return err
		}
		bits, err := parseBitResponse(body, int(r.count))
		if err != nil {
			return err
		}
		for _, p := range r.points {
			if !pointSelected(p, req) {
				continue
			}
			idx := p.Address.Modbus.Register - r.start
			raw := bits[idx]
			batch.Add(core.NewDataPoint(p.ID, p.DataType, core.Bool(p.Transform.ApplyBool(raw))))
		}
		return nil
	}

	body, err := c.transport.execute(ctx, g.slaveID, g.functionCode, buildReadRequest(r.start, r.count))
	if err != nil {
		return err
	}
	regs, err := parseRegisterResponse(body)
	if err != nil {
		return err
	}
	for _, p := range r.points {
		if !pointSelected(p, req) {
			continue
		}
		addr := *p.Address.Modbus
		offset := addr.Register - r.start
		span := addr.RegisterCount()
		if int(offset)+int(span) > len(regs) {
			continue
		}
		sub := regs[offset : offset+span]
		val, err := codec.Decode(sub, addr.Format, addr.ByteOrder, addr.BitPosition)
		if err != nil {
			continue
		}
		batch.Add(core.NewDataPoint(p.ID, p.DataType, applyTransform(val, p.Transform, addr.Format)))
	}
	return nil
}

func applyTransform(v core.Value, t core.TransformConfig, format core.DataFormat) core.Value {
	if format == core.FormatBool {
		b, _ := v.AsBool()
		return core.Bool(t.ApplyBool(b))
	}
	if f, ok := v.AsFloat(); ok {
		return core.Float(t.Apply(f))
	}
	return v
}

type pendingCoilWrite struct {
	pointID uint32
	addr    core.ModbusAddress
	raw     bool
}

// WriteControl writes boolean Signal/Control points via FC05 (single coil)
// or FC15 (multiple coils), choosing per-slave based on batch size: a
// pulsed command always writes alone (FC05) since it owns its own timing;
// non-pulsed commands on the same slave are coalesced into FC15 requests
// wherever their registers form a contiguous run. A non-nil PulseMs
// requests a write of Value, a hold, then an OFF (false) write - best-effort
// even if ctx is cancelled mid-hold.
func (c *Channel) WriteControl(ctx context.Context, commands []core.ControlCommand) (core.WriteResult, error) {
	result := core.WriteResult{}
	bySlave := make(map[uint8][]pendingCoilWrite)
	var slaveOrder []uint8

	for _, cmd := range commands {
		p, ok := c.pointsByID[cmd.ID]
		if !ok || p.Address.Modbus == nil {
			result.Failures = append(result.Failures, core.WriteFailure{ID: cmd.ID, Message: "point not found"})
			continue
		}
		addr := *p.Address.Modbus
		raw := p.Transform.ApplyBool(cmd.Value)

		if cmd.PulseMs != nil {
			if err := c.writeSingleCoil(ctx, addr, raw); err != nil {
				result.Failures = append(result.Failures, core.WriteFailure{ID: cmd.ID, Message: err.Error()})
				continue
			}
			result.SuccessCount++
			go c.pulseOff(addr, p.Transform, cmd.ID, *cmd.PulseMs)
			continue
		}

		if _, seen := bySlave[addr.SlaveID]; !seen {
			slaveOrder = append(slaveOrder, addr.SlaveID)
		}
		bySlave[addr.SlaveID] = append(bySlave[addr.SlaveID], pendingCoilWrite{pointID: cmd.ID, addr: addr, raw: raw})
	}

	for _, slave := range slaveOrder {
		writes := bySlave[slave]
		sort.Slice(writes, func(i, j int) bool { return writes[i].addr.Register < writes[j].addr.Register })

		for i := 0; i < len(writes); {
			j := i + 1
			for j < len(writes) && writes[j].addr.Register == writes[j-1].addr.Register+1 {
				j++
			}
			run := writes[i:j]
			if len(run) == 1 {
				if err := c.writeSingleCoil(ctx, run[0].addr, run[0].raw); err != nil {
					result.Failures = append(result.Failures, core.WriteFailure{ID: run[0].pointID, Message: err.Error()})
				} else {
					result.SuccessCount++
				}
			} else {
				values := make([]bool, len(run))
				for k, w := range run {
					values[k] = w.raw
				}
				_, err := c.transport.execute(ctx, slave, FuncWriteMultipleCoils, buildWriteMultipleCoilsRequest(run[0].addr.Register, values))
				for _, w := range run {
					if err != nil {
						result.Failures = append(result.Failures, core.WriteFailure{ID: w.pointID, Message: err.Error()})
					} else {
						result.SuccessCount++
					}
				}
			}
			i = j
		}
	}

	c.mu.Lock()
	c.diag.WriteCount += uint64(result.SuccessCount)
	c.mu.Unlock()
	return result, nil
}

func (c *Channel) writeSingleCoil(ctx context.Context, addr core.ModbusAddress, value bool) error {
	coilValue := uint16(0x0000)
	if value {
		coilValue = 0xFF00
	}
	_, err := c.transport.execute(ctx, addr.SlaveID, FuncWriteSingleCoil, buildWriteSingleRequest(addr.Register, coilValue))
	return err
}

// pulseOff runs detached from the caller's context: the OFF write must
// still happen even if the request that triggered the pulse is cancelled.
func (c *Channel) pulseOff(addr core.ModbusAddress, transform core.TransformConfig, pointID uint32, durationMs uint32) {
	time.Sleep(time.Duration(durationMs) * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.IOTimeout)
	defer cancel()
	if err := c.writeSingleCoil(ctx, addr, transform.ApplyBool(false)); err != nil {
		log.Printf("modbus[%d]: pulse OFF write failed for point %d: %v", c.id, pointID, err)
	}
}

// WriteAdjustment writes analog Adjustment points via FC06 (single
// register) or FC16 (multiple registers).
func (c *Channel) WriteAdjustment(ctx context.Context, adjustments []core.AdjustmentCommand) (core.WriteResult, error) {
	result := core.WriteResult{}
	for _, adj := range adjustments {
		p, ok := c.pointsByID[adj.ID]
		if !ok || p.Address.Modbus == nil {
			result.Failures = append(result.Failures, core.WriteFailure{ID: adj.ID, Message: "point not found"})
			continue
		}
		addr := *p.Address.Modbus
		raw := p.Transform.ReverseApply(adj.Value)
		regs, err := codec.Encode(core.Float(raw), addr.Format, addr.ByteOrder, addr.BitPosition)
		if err != nil {
			result.Failures = append(result.Failures, core.WriteFailure{ID: adj.ID, Message: err.Error()})
			continue
		}

		if len(regs) == 1 {
			_, err = c.transport.execute(ctx, addr.SlaveID, FuncWriteSingleRegister, buildWriteSingleRequest(addr.Register, regs[0]))
		} else {
			_, err = c.transport.execute(ctx, addr.SlaveID, FuncWriteMultipleRegisters, buildWriteMultipleRegistersRequest(addr.Register, regs))
		}
		if err != nil {
			result.Failures = append(result.Failures, core.WriteFailure{ID: adj.ID, Message: err.Error()})
			continue
		}
		result.SuccessCount++
	}
	c.mu.Lock()
	c.diag.WriteCount += uint64(result.SuccessCount)
	c.mu.Unlock()
	return result, nil
}

// Subscribe reports that Modbus is polling-only.
func (c *Channel) Subscribe() (<-chan channel.Event, func(), bool) { return nil, nil, false }

func (c *Channel) StartEvents(ctx context.Context) error { return nil }
func (c *Channel) StopEvents(ctx context.Context) error  { return nil }

func (c *Channel) Diagnostics(ctx context.Context) (core.Diagnostics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diag, nil
}
