package gpio

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/core"
)

// Channel is a polling ChannelRuntime driving a set of sysfs-exposed GPIO
// lines. Input pins are sampled on PollOnce; output pins are written
// through WriteControl. GPIO has no analog signal, so WriteAdjustment
// always fails Unsupported.
type Channel struct {
	id   uint32
	name string
	cfg  Config

	lines      map[uint32]line // by point ID
	pointsByID map[uint32]core.PointConfig

	newLine func(chip string, pin uint32) line

	mu    sync.Mutex
	state core.ConnectionState
	diag  core.Diagnostics
}

// New builds a GPIO channel from its configuration. Disabled points and
// points with a non-GPIO address are excluded.
func New(id uint32, name string, cfg Config) *Channel {
	pointsByID := make(map[uint32]core.PointConfig, len(cfg.Points))
	for _, p := range cfg.Points {
		if p.Enabled && p.Address.Gpio != nil {
			pointsByID[p.ID] = p
		}
	}
	return &Channel{
		id:         id,
		name:       name,
		cfg:        cfg,
		lines:      make(map[uint32]line, len(pointsByID)),
		pointsByID: pointsByID,
		newLine:    func(chip string, pin uint32) line { return newSysfsLine(chip, pin) },
		state:      core.Disconnected,
		diag:       core.NewDiagnostics("gpio"),
	}
}

func (c *Channel) ID() uint32          { return c.id }
func (c *Channel) Name() string        { return c.name }
func (c *Channel) Protocol() string    { return "gpio" }
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

func (c *Channel) recordError(err error) {
	c.mu.Lock()
	c.diag.ErrorCount++
	c.diag.LastError = err.Error()
	c.mu.Unlock()
}

// Connect exports every configured line and sets its direction and
// active_low polarity. A pin that fails to export is recorded as an
// error but does not abort the rest of the connect sequence, since the
// other lines may still be usable.
func (c *Channel) Connect(ctx context.Context) error {
	c.setState(core.Connecting)

	failed := 0
	for id, p := range c.pointsByID {
		addr := *p.Address.Gpio
		l := c.newLine(addr.Chip, addr.Pin)
		if err := l.export(); err != nil {
			c.recordError(err)
			failed++
			continue
		}
		if err := l.setDirection(addr.Direction); err != nil {
			c.recordError(err)
			failed++
			continue
		}
		if err := l.setActiveLow(addr.ActiveLow); err != nil {
			c.recordError(err)
			failed++
			continue
		}
		c.lines[id] = l
	}

	if failed > 0 && len(c.lines) == 0 {
		c.setState(core.ConnError)
		return core.ConnectionErr("gpio[%d]: no lines could be exported", c.id)
	}

	c.setState(core.Connected)
	log.Printf("gpio[%d]: connected, %d/%d lines ready", c.id, len(c.lines), len(c.pointsByID))
	return nil
}

func (c *Channel) Disconnect(ctx context.Context) error {
	var lastErr error
	for id, l := range c.lines {
		if err := l.close(); err != nil {
			lastErr = err
		}
		delete(c.lines, id)
	}
	c.setState(core.Disconnected)
	return lastErr
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

// PollOnce reads the current value of every configured input line.
// Output-direction points are skipped: they reflect the last commanded
// value via WriteControl's own result, not a read back through sysfs.
func (c *Channel) PollOnce(ctx context.Context, req core.ReadRequest) (core.ReadResponse, error) {
	if !c.ConnectionState().IsConnected() {
		return core.ReadResponse{}, core.ErrNotConnectedErr()
	}

	var batch core.DataBatch
	failed := 0

	for id, p := range c.pointsByID {
		if p.Address.Gpio.Direction != core.GpioInput {
			continue
		}
		if !pointSelected(p, req) {
			continue
		}
		l, ok := c.lines[id]
		if !ok {
			continue
		}
		raw, err := l.read()
		if err != nil {
			c.recordError(err)
			failed++
			continue
		}
		batch.Add(core.NewDataPoint(p.ID, p.DataType, core.Bool(p.Transform.ApplyBool(raw))))
	}

	c.mu.Lock()
	c.diag.ReadCount++
	c.mu.Unlock()

	if failed > 0 {
		return core.PartialResponse(batch, failed), nil
	}
	return core.SuccessResponse(batch), nil
}

// WriteControl drives output-direction lines high/low.
func (c *Channel) WriteControl(ctx context.Context, commands []core.ControlCommand) (core.WriteResult, error) {
	if !c.ConnectionState().IsConnected() {
		return core.WriteResult{}, core.ErrNotConnectedErr()
	}
	result := core.WriteResult{}
	success := 0
	for _, cmd := range commands {
		p, ok := c.pointsByID[cmd.ID]
		if !ok || p.Address.Gpio.Direction != core.GpioOutput {
			result.Failures = append(result.Failures, core.WriteFailure{ID: cmd.ID, Message: "point not configured as a GPIO output"})
			continue
		}
		l, ok := c.lines[cmd.ID]
		if !ok {
			result.Failures = append(result.Failures, core.WriteFailure{ID: cmd.ID, Message: "line not exported"})
			continue
		}
		raw := p.Transform.ApplyBool(cmd.Value)
		if err := l.write(raw); err != nil {
			c.recordError(err)
			result.Failures = append(result.Failures, core.WriteFailure{ID: cmd.ID, Message: err.Error()})
			continue
		}
		if cmd.PulseMs != nil {
			go c.pulseOff(cmd.ID, *cmd.PulseMs)
		}
		success++
	}
	c.mu.Lock()
	c.diag.WriteCount += uint64(success)
	c.mu.Unlock()
	result.SuccessCount = success
	return result, nil
}

// pulseOff writes the pin back low after PulseMs, mirroring the Modbus
// channel's best-effort pulsed-coil behaviour.
func (c *Channel) pulseOff(pointID uint32, pulseMs uint32) {
	time.Sleep(time.Duration(pulseMs) * time.Millisecond)
	c.mu.Lock()
	l, ok := c.lines[pointID]
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := l.write(false); err != nil {
		c.recordError(err)
	}
}

// WriteAdjustment is Unsupported: GPIO lines carry no analog signal.
func (c *Channel) WriteAdjustment(ctx context.Context, adjustments []core.AdjustmentCommand) (core.WriteResult, error) {
	return core.WriteResult{}, core.UnsupportedErr("gpio: analog adjustment is not supported")
}

func (c *Channel) Subscribe() (<-chan channel.Event, func(), bool) { return nil, nil, false }

func (c *Channel) StartEvents(ctx context.Context) error { return nil }
func (c *Channel) StopEvents(ctx context.Context) error  { return nil }

func (c *Channel) Diagnostics(ctx context.Context) (core.Diagnostics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diag, nil
}
