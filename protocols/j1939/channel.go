package j1939

import (
	"context"
	"log"
	"sync"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/core"
)

// adhocPoint pairs a raw CAN bit-field address with the point config that
// describes how to report it.
type adhocPoint struct {
	field adhocField
	point core.PointConfig
}

// Channel is an event-driven ChannelRuntime decoding SAE J1939 frames off
// one CAN bus. Every SPN in the built-in table is decoded automatically
// and reported under the SPN number as its point id; an explicit entry in
// cfg.Points addressed by the bare decimal SPN number (e.g. "190")
// overrides that SPN's enabled/transform
// behavior without changing its id. Entries addressed
// "can_id:byte_offset:bit_pos:bit_len" decode an ad-hoc field outside the
// table, reported under the point's own configured id.
type Channel struct {
	id     uint32
	name   string
	cfg    Config
	source frameSource

	spnOverrides map[uint32]core.PointConfig
	adhocPoints  []adhocPoint
	broadcaster  *channel.Broadcaster

	mu    sync.Mutex
	state core.ConnectionState
	diag  core.Diagnostics
	cache map[uint32]core.DataPoint // latest value per point ID

	stopChan chan struct{}
}

// New builds a J1939 channel from its configured point overrides and
// ad-hoc fields. See Channel's doc comment for the two address forms.
func New(id uint32, name string, cfg Config) *Channel {
	spnOverrides := make(map[uint32]core.PointConfig)
	var adhocPoints []adhocPoint
	for _, p := range cfg.Points {
		if p.Address.Generic == nil {
			continue
		}
		if spn, ok := genericSPN(p.Address); ok {
			spnOverrides[spn] = p
			continue
		}
		if field, ok := parseAdhocAddress(*p.Address.Generic); ok {
			adhocPoints = append(adhocPoints, adhocPoint{field: field, point: p})
		}
	}
	return &Channel{
		id:           id,
		name:         name,
		cfg:          cfg,
		source:       newFrameSource(cfg),
		spnOverrides: spnOverrides,
		adhocPoints:  adhocPoints,
		broadcaster:  channel.NewBroadcaster(32),
		state:        core.Disconnected,
		diag:         core.NewDiagnostics("j1939"),
		cache:        make(map[uint32]core.DataPoint),
	}
}

func (c *Channel) ID() uint32          { return c.id }
func (c *Channel) Name() string        { return c.name }
func (c *Channel) Protocol() string    { return "j1939" }
func (c *Channel) IsEventDriven() bool { return true }
func (c *Channel) Modes() []core.CommunicationMode {
	return []core.CommunicationMode{core.EventDriven}
}

func (c *Channel) setState(s core.ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.diag.ConnectionState = s
	c.mu.Unlock()
	c.broadcaster.Publish(channel.ConnectionChangedEvent(c.id, s))
}

func (c *Channel) ConnectionState() core.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the CAN adapter and spawns the background decode loop. A
// receiver task is running from this point on, independent of whether
// anyone has subscribed yet - decoded values still populate the cache.
func (c *Channel) Connect(ctx context.Context) error {
	c.setState(core.Connecting)
	if err := c.source.connect(ctx); err != nil {
		c.setState(core.ConnError)
		c.recordError(err)
		return err
	}
	c.stopChan = make(chan struct{})
	go c.decodeLoop()
	c.setState(core.Connected)
	log.Printf("j1939[%d]: connected to %s", c.id, c.cfg.Device)
	return nil
}

func (c *Channel) Disconnect(ctx context.Context) error {
	if c.stopChan != nil {
		close(c.stopChan)
	}
	err := c.source.close()
	c.setState(core.Disconnected)
	return err
}

func (c *Channel) recordError(err error) {
	c.mu.Lock()
	c.diag.ErrorCount++
	c.diag.LastError = err.Error()
	c.mu.Unlock()
}

// decodeLoop consumes parsed frames, filters by source address, decodes
// every known SPN for the frame's PGN plus any configured ad-hoc fields,
// updates the latest-value cache and broadcasts a DataUpdate event per
// frame that yielded at least one point.
func (c *Channel) decodeLoop() {
	for {
		select {
		case <-c.stopChan:
			return
		case f, ok := <-c.source.frames():
			if !ok {
				return
			}
			id := ParseCanID(f.ID)
			if id.SA != c.cfg.SourceAddress {
				continue
			}

			var batch core.DataBatch
			c.mu.Lock()

			_, decoded := DecodeFrame(f)
			for _, d := range decoded {
				override, hasOverride := c.spnOverrides[d.SPN]
				if hasOverride && !override.Enabled {
					continue
				}
				dataType := core.Telemetry
				transform := core.DefaultTransform()
				if hasOverride {
					dataType = override.DataType
					transform = override.Transform
				}
				raw, _ := d.Value.AsFloat()
				dp := core.NewDataPoint(d.SPN, dataType, core.Float(transform.Apply(raw)))
				c.cache[d.SPN] = dp
				batch.Add(dp)
			}

			for _, ap := range c.adhocPoints {
				if ap.field.CanID != f.ID || !ap.point.Enabled {
					continue
				}
				raw, ok := extractAdhoc(f.Data, ap.field)
				if !ok {
					continue
				}
				dp := core.NewDataPoint(ap.point.ID, ap.point.DataType, core.Float(ap.point.Transform.Apply(float64(raw))))
				c.cache[ap.point.ID] = dp
				batch.Add(dp)
			}

			c.diag.ReadCount++
			c.mu.Unlock()

			if !batch.IsEmpty() {
				c.broadcaster.Publish(channel.DataUpdateEvent(c.id, batch))
			}
		}
	}
}

// PollOnce returns a snapshot of the latest-value cache; it does not touch
// the bus. Event-driven channels serve reads from the cache the background
// receiver keeps warm.
func (c *Channel) PollOnce(ctx context.Context, req core.ReadRequest) (core.ReadResponse, error) {
	if !c.ConnectionState().IsConnected() {
		return core.ReadResponse{}, core.ErrNotConnectedErr()
	}
	var batch core.DataBatch
	c.mu.Lock()
	for _, dp := range c.cache {
		if !dataPointSelected(dp, req) {
			continue
		}
		batch.Add(dp)
	}
	c.mu.Unlock()
	return core.SuccessResponse(batch), nil
}

func dataPointSelected(dp core.DataPoint, req core.ReadRequest) bool {
	if req.DataType != nil && *req.DataType != dp.DataType {
		return false
	}
	if req.PointIDs != nil {
		for _, id := range req.PointIDs {
			if id == dp.ID {
				return true
			}
		}
		return false
	}
	return true
}

// WriteControl and WriteAdjustment are unsupported: J1939 broadcast
// telemetry has no write path in this gateway.
func (c *Channel) WriteControl(ctx context.Context, commands []core.ControlCommand) (core.WriteResult, error) {
	return core.WriteResult{}, core.UnsupportedErr("j1939: write_control not supported")
}

func (c *Channel) WriteAdjustment(ctx context.Context, adjustments []core.AdjustmentCommand) (core.WriteResult, error) {
	return core.WriteResult{}, core.UnsupportedErr("j1939: write_adjustment not supported")
}

func (c *Channel) Subscribe() (<-chan channel.Event, func(), bool) {
	ch, unsub := c.broadcaster.Subscribe()
	return ch, unsub, true
}

// StartEvents/StopEvents are no-ops: the receiver task is tied to Connect
// and Disconnect, not a separate start/stop toggle.
func (c *Channel) StartEvents(ctx context.Context) error { return nil }
func (c *Channel) StopEvents(ctx context.Context) error  { return nil }

func (c *Channel) Diagnostics(ctx context.Context) (core.Diagnostics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diag, nil
}
