package opcua

import (
	"context"
	"log"
	"sync"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/core"
)

// Channel is an event-driven ChannelRuntime backed by a gopcua client
// session: one subscription with a monitored item per configured point
// feeds the latest-value cache; Subscribe fans that cache out to gateway
// consumers via the shared Broadcaster.
type Channel struct {
	id   uint32
	name string
	cfg  Config

	byHandle map[uint32]core.PointConfig
	byID     map[uint32]core.PointConfig

	broadcaster *channel.Broadcaster

	client *opcua.Client
	sub    *opcua.Subscription
	notify chan *opcua.PublishNotificationData

	mu    sync.Mutex
	state core.ConnectionState
	diag  core.Diagnostics
	cache map[uint32]core.DataPoint

	stopChan chan struct{}
}

func New(id uint32, name string, cfg Config) *Channel {
	byHandle := make(map[uint32]core.PointConfig)
	byID := make(map[uint32]core.PointConfig)
	handle := uint32(1)
	for _, p := range cfg.Points {
		if p.Address.OpcUa == nil {
			continue
		}
		byHandle[handle] = p
		byID[p.ID] = p
		handle++
	}
	return &Channel{
		id:          id,
		name:        name,
		cfg:         cfg,
		byHandle:    byHandle,
		byID:        byID,
		broadcaster: channel.NewBroadcaster(64),
		state:       core.Disconnected,
		diag:        core.NewDiagnostics("opcua"),
		cache:       make(map[uint32]core.DataPoint),
	}
}

func (c *Channel) ID() uint32          { return c.id }
func (c *Channel) Name() string        { return c.name }
func (c *Channel) Protocol() string    { return "opcua" }
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

// securityOpts builds the gopcua client options for both the secure
// channel (policy/mode) and the session (username/password or anonymous).
// A policy other than "None" with a Sign/SignAndEncrypt mode requires the
// server to accept this client without a certificate exchange (e.g. an
// anonymous self-signed trust list); this gateway does not manage a
// client certificate, matching its read-mostly field-gateway scope.
func (c *Channel) securityOpts() []opcua.Option {
	var opts []opcua.Option
	if c.cfg.SecurityPolicy != "" && c.cfg.SecurityPolicy != "None" {
		opts = append(opts, opcua.SecurityPolicy(c.cfg.SecurityPolicy))
	}
	if c.cfg.SecurityMode != "" && c.cfg.SecurityMode != "None" {
		opts = append(opts, opcua.SecurityModeString(c.cfg.SecurityMode))
	}
	if c.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(c.cfg.Username, c.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

// Connect dials the OPC UA server, opens a subscription, and monitors
// every configured point's node under it.
func (c *Channel) Connect(ctx context.Context) error {
	c.setState(core.Connecting)

	cli, err := opcua.NewClient(c.cfg.Endpoint, c.securityOpts()...)
	if err != nil {
		c.setState(core.ConnError)
		c.recordError(err)
		return core.ConnectionErr("opcua: build client: %v", err)
	}
	if err := cli.Connect(ctx); err != nil {
		c.setState(core.ConnError)
		c.recordError(err)
		return core.ConnectionErr("opcua: connect %s: %v", c.cfg.Endpoint, err)
	}

	c.notify = make(chan *opcua.PublishNotificationData, 64)
	sub, err := cli.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: c.cfg.SubscriptionInterval}, c.notify)
	if err != nil {
		cli.Close(ctx)
		c.setState(core.ConnError)
		c.recordError(err)
		return core.ConnectionErr("opcua: subscribe: %v", err)
	}

	var requests []*ua.MonitoredItemCreateRequest
	for handle, pc := range c.byHandle {
		nodeID, err := ua.ParseNodeID(nodeIDString(*pc.Address.OpcUa))
		if err != nil {
			c.recordError(err)
			continue
		}
		requests = append(requests, opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle))
	}
	if len(requests) > 0 {
		if _, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, requests...); err != nil {
			cli.Close(ctx)
			c.setState(core.ConnError)
			c.recordError(err)
			return core.ConnectionErr("opcua: monitor points: %v", err)
		}
	}

	c.client = cli
	c.sub = sub
	c.stopChan = make(chan struct{})
	go sub.Run(ctx)
	go c.receiveLoop()

	c.setState(core.Connected)
	log.Printf("opcua[%d]: connected to %s", c.id, c.cfg.Endpoint)
	return nil
}

func (c *Channel) Disconnect(ctx context.Context) error {
	if c.stopChan != nil {
		close(c.stopChan)
	}
	if c.sub != nil {
		c.sub.Cancel(ctx)
	}
	var err error
	if c.client != nil {
		err = c.client.Close(ctx)
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

// receiveLoop drains subscription notifications into the latest-value
// cache and broadcasts a DataUpdate event per non-empty change batch.
func (c *Channel) receiveLoop() {
	for {
		select {
		case <-c.stopChan:
			return
		case msg, ok := <-c.notify:
			if !ok {
				return
			}
			change, ok := msg.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}

			var batch core.DataBatch
			c.mu.Lock()
			for _, item := range change.MonitoredItems {
				pc, ok := c.byHandle[item.ClientHandle]
				if !ok || !pc.Enabled {
					continue
				}
				dp := dataPointFromValue(pc, item.Value)
				c.cache[pc.ID] = dp
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

func dataPointFromValue(pc core.PointConfig, dv *ua.DataValue) core.DataPoint {
	quality := core.Good
	if dv.Status != ua.StatusOK {
		quality = core.Bad
	}

	var raw float64
	var boolVal bool
	isBool := false
	if dv.Value != nil {
		switch v := dv.Value.Value().(type) {
		case bool:
			boolVal, isBool = v, true
		case float32:
			raw = float64(v)
		case float64:
			raw = v
		case int16:
			raw = float64(v)
		case int32:
			raw = float64(v)
		case int64:
			raw = float64(v)
		case uint16:
			raw = float64(v)
		case uint32:
			raw = float64(v)
		case uint64:
			raw = float64(v)
		}
	}

	if pc.DataType.IsDigital() {
		if !isBool {
			boolVal = raw != 0
		}
		return core.NewDataPoint(pc.ID, pc.DataType, core.Bool(pc.Transform.ApplyBool(boolVal))).WithQuality(quality)
	}
	if isBool {
		if boolVal {
			raw = 1
		}
	}
	return core.NewDataPoint(pc.ID, pc.DataType, core.Float(pc.Transform.Apply(raw))).WithQuality(quality)
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

// WriteControl writes each command's boolean value to its node.
func (c *Channel) WriteControl(ctx context.Context, commands []core.ControlCommand) (core.WriteResult, error) {
	if !c.ConnectionState().IsConnected() {
		return core.WriteResult{}, core.ErrNotConnectedErr()
	}
	var failures []core.WriteFailure
	success := 0
	for _, cmd := range commands {
		pc, ok := c.byID[cmd.ID]
		if !ok {
			failures = append(failures, core.WriteFailure{ID: cmd.ID, Message: "point not configured"})
			continue
		}
		value := pc.Transform.ApplyBool(cmd.Value)
		if err := c.writeValue(ctx, *pc.Address.OpcUa, ua.MustVariant(value)); err != nil {
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

// WriteAdjustment writes each setpoint's numeric value to its node.
func (c *Channel) WriteAdjustment(ctx context.Context, adjustments []core.AdjustmentCommand) (core.WriteResult, error) {
	if !c.ConnectionState().IsConnected() {
		return core.WriteResult{}, core.ErrNotConnectedErr()
	}
	var failures []core.WriteFailure
	success := 0
	for _, adj := range adjustments {
		pc, ok := c.byID[adj.ID]
		if !ok {
			failures = append(failures, core.WriteFailure{ID: adj.ID, Message: "point not configured"})
			continue
		}
		raw := pc.Transform.ReverseApply(adj.Value)
		if err := c.writeValue(ctx, *pc.Address.OpcUa, ua.MustVariant(raw)); err != nil {
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

func (c *Channel) writeValue(ctx context.Context, addr core.OpcUaAddress, v *ua.Variant) error {
	nodeID, err := ua.ParseNodeID(nodeIDString(addr))
	if err != nil {
		return err
	}
	req := &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      nodeID,
			AttributeID: ua.AttributeIDValue,
			Value:       &ua.DataValue{Value: v, EncodingMask: ua.DataValueValue},
		}},
	}
	_, err = c.client.Write(ctx, req)
	return err
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
