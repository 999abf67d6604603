package iec104

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/core"
)

// Channel is an event-driven ChannelRuntime speaking CS 104 to one
// outstation. Every configured point is addressed by IOA within the
// channel's single CommonAddress; a background receiver goroutine decodes
// incoming ASDUs into the latest-value cache and broadcasts updates.
type Channel struct {
	id   uint32
	name string
	cfg  Config

	byIOA map[uint32]core.PointConfig
	byID  map[uint32]core.PointConfig

	broadcaster *channel.Broadcaster

	mu    sync.Mutex
	state core.ConnectionState
	diag  core.Diagnostics
	cache map[uint32]core.DataPoint

	c        *conn
	stopChan chan struct{}
}

func New(id uint32, name string, cfg Config) *Channel {
	byIOA := make(map[uint32]core.PointConfig)
	byID := make(map[uint32]core.PointConfig)
	for _, p := range cfg.Points {
		if p.Address.Iec104 == nil {
			continue
		}
		byIOA[p.Address.Iec104.IOA] = p
		byID[p.ID] = p
	}
	return &Channel{
		id:          id,
		name:        name,
		cfg:         cfg,
		byIOA:       byIOA,
		byID:        byID,
		broadcaster: channel.NewBroadcaster(64),
		state:       core.Disconnected,
		diag:        core.NewDiagnostics("iec104"),
		cache:       make(map[uint32]core.DataPoint),
	}
}

func (c *Channel) ID() uint32          { return c.id }
func (c *Channel) Name() string        { return c.name }
func (c *Channel) Protocol() string    { return "iec104" }
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

// Connect dials the outstation, performs the STARTDT handshake, and spawns
// the background receiver and keepalive loops.
func (c *Channel) Connect(ctx context.Context) error {
	c.setState(core.Connecting)
	conn, err := dial(c.cfg)
	if err != nil {
		c.setState(core.ConnError)
		c.recordError(err)
		return core.ConnectionErr("iec104: dial %s:%d: %v", c.cfg.Host, c.cfg.Port, err)
	}
	if err := conn.startDt(); err != nil {
		conn.close()
		c.setState(core.ConnError)
		c.recordError(err)
		return core.ConnectionErr("iec104: startdt: %v", err)
	}
	c.c = conn
	c.stopChan = make(chan struct{})
	go c.receiveLoop()
	go c.keepaliveLoop()
	c.setState(core.Connected)
	log.Printf("iec104[%d]: connected to %s:%d", c.id, c.cfg.Host, c.cfg.Port)
	return nil
}

func (c *Channel) Disconnect(ctx context.Context) error {
	if c.stopChan != nil {
		close(c.stopChan)
	}
	var err error
	if c.c != nil {
		c.c.stopDt()
		err = c.c.close()
	}
	c.setState(core.Disconnected)
	return err
}

func (c *Channel) recordError(err error) {
	c.mu.Lock()
	c.diag.ErrorCount++
	c.diag.LastError = err.Error()
	c.mu.Unlock()
}

// receiveLoop reads APDUs until disconnect, acking I-frames per
// RecvUnAckLimitW and translating decoded ASDUs into cached points.
func (c *Channel) receiveLoop() {
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}
		f, err := c.c.readFrame()
		if err != nil {
			select {
			case <-c.stopChan:
				return
			default:
			}
			c.recordError(err)
			c.setState(core.ConnError)
			return
		}

		switch f.kind {
		case frameI:
			c.c.recordSendAck(f.rcvSN)
			if c.c.onIFrameReceived(f.sendSN) {
				c.c.ack()
			}
			c.handleASDU(f.asdu)
		case frameU:
			if f.function == uTestFrActive {
				c.c.writeRaw(newUFrame(uTestFrConfirm))
			}
		case frameS:
			// peer acking our I-frames: clears our send window (k).
			c.c.recordSendAck(f.rcvSN)
		}
	}
}

func (c *Channel) handleASDU(raw []byte) {
	asdu, err := DecodeAsdu(raw)
	if err != nil {
		c.recordError(err)
		return
	}

	var batch core.DataBatch
	c.mu.Lock()
	for _, obj := range asdu.Objects {
		pc, ok := c.byIOA[obj.IOA]
		if !ok || !pc.Enabled {
			continue
		}
		if explicit := pc.Address.Iec104.TypeID; explicit != 0 && TypeID(explicit) != asdu.Type {
			continue
		}
		quality := core.Good
		if obj.Invalid {
			quality = core.Invalid
		}
		var dp core.DataPoint
		if pc.DataType.IsDigital() {
			b := pc.Transform.ApplyBool(obj.Value != 0)
			dp = core.NewDataPoint(pc.ID, pc.DataType, core.Bool(b)).WithQuality(quality)
		} else {
			dp = core.NewDataPoint(pc.ID, pc.DataType, core.Float(pc.Transform.Apply(obj.Value))).WithQuality(quality)
		}
		c.cache[pc.ID] = dp
		batch.Add(dp)
	}
	c.diag.ReadCount++
	c.mu.Unlock()

	if !batch.IsEmpty() {
		c.broadcaster.Publish(channel.DataUpdateEvent(c.id, batch))
	}
}

// keepaliveLoop issues TESTFR when the link has been idle past t3, forces
// an overdue S-frame ack past t2, and declares the link dead if the peer
// fails to ack an outstanding I-frame within t1.
func (c *Channel) keepaliveLoop() {
	ticker := time.NewTicker(c.cfg.IdleTimeout3 / 2)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			if time.Since(c.c.lastActive) >= c.cfg.IdleTimeout3 {
				c.c.sendTestFr()
			}
			if c.c.recvAckOverdue() {
				c.c.ack()
			}
			if c.c.sendAckOverdue() {
				c.recordError(fmt.Errorf("iec104: t1 timeout: peer did not ack within %s", c.cfg.SendUnAckTimeout1))
				c.setState(core.ConnError)
				return
			}
		}
	}
}

// PollOnce returns a snapshot of the latest-value cache, per the
// event-driven channel contract.
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

// WriteControl sends C_SC_NA_1 activations. PulseMs is not honored: a
// remote outstation, not this process, owns the physical output.
func (c *Channel) WriteControl(ctx context.Context, commands []core.ControlCommand) (core.WriteResult, error) {
	if !c.ConnectionState().IsConnected() {
		return core.WriteResult{}, core.ErrNotConnectedErr()
	}
	var failures []core.WriteFailure
	success := 0
	for _, cmd := range commands {
		pc, ok := c.byID[cmd.ID]
		if !ok || pc.Address.Iec104 == nil {
			failures = append(failures, core.WriteFailure{ID: cmd.ID, Message: "point not configured"})
			continue
		}
		val := 0.0
		if pc.Transform.ApplyBool(cmd.Value) {
			val = 1
		}
		asdu := Asdu{
			Type:          resolveType(pc, signalType(true)),
			Cause:         CauseActivation,
			CommonAddress: c.cfg.CommonAddress,
			Objects:       []InformationObject{{IOA: pc.Address.Iec104.IOA, Value: val}},
		}
		if err := c.sendCommand(asdu); err != nil {
			failures = append(failures, core.WriteFailure{ID: cmd.ID, Message: err.Error()})
			continue
		}
		success++
	}
	c.mu.Lock()
	c.diag.WriteCount += uint64(success)
	c.mu.Unlock()
	return core.WriteResult{SuccessCount: success, Failures: failures}, nil
}

// WriteAdjustment sends C_SE_NC_1 set-point activations.
func (c *Channel) WriteAdjustment(ctx context.Context, adjustments []core.AdjustmentCommand) (core.WriteResult, error) {
	if !c.ConnectionState().IsConnected() {
		return core.WriteResult{}, core.ErrNotConnectedErr()
	}
	var failures []core.WriteFailure
	success := 0
	for _, adj := range adjustments {
		pc, ok := c.byID[adj.ID]
		if !ok || pc.Address.Iec104 == nil {
			failures = append(failures, core.WriteFailure{ID: adj.ID, Message: "point not configured"})
			continue
		}
		asdu := Asdu{
			Type:          resolveType(pc, telemetryType(true)),
			Cause:         CauseActivation,
			CommonAddress: c.cfg.CommonAddress,
			Objects:       []InformationObject{{IOA: pc.Address.Iec104.IOA, Value: pc.Transform.ReverseApply(adj.Value)}},
		}
		if err := c.sendCommand(asdu); err != nil {
			failures = append(failures, core.WriteFailure{ID: adj.ID, Message: err.Error()})
			continue
		}
		success++
	}
	c.mu.Lock()
	c.diag.WriteCount += uint64(success)
	c.mu.Unlock()
	return core.WriteResult{SuccessCount: success, Failures: failures}, nil
}

// resolveType honors an explicit type_id in the point's address; a zero
// type_id means "inferred from data", using the DataType-driven default.
func resolveType(pc core.PointConfig, inferred TypeID) TypeID {
	if pc.Address.Iec104.TypeID != 0 {
		return TypeID(pc.Address.Iec104.TypeID)
	}
	return inferred
}

func (c *Channel) sendCommand(a Asdu) error {
	raw, err := EncodeAsdu(a)
	if err != nil {
		return err
	}
	return c.c.sendASDU(raw)
}

func (c *Channel) Subscribe() (<-chan channel.Event, func(), bool) {
	ch, unsub := c.broadcaster.Subscribe()
	return ch, unsub, true
}

func (c *Channel) StartEvents(ctx context.Context) error { return nil }
func (c *Channel) StopEvents(ctx context.Context) error  { return nil }

func (c *Channel) Diagnostics(ctx context.Context) (core.Diagnostics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diag, nil
}
