// Package mqtttap fans a channel's data events out to an MQTT broker and
// turns an inbound command topic into write calls against the channel,
// against the uniform channel.Runtime contract rather than a single
// hardcoded data feed.
package mqtttap

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/core"
)

const (
	DefaultDataTopicFormat    = "igw/%d/data"
	DefaultCommandTopicFormat = "igw/%d/command"
	DefaultQoS                = byte(1)
)

// Config configures one Tap: the broker to reach and the topics it
// publishes to / subscribes on for a single channel.
type Config struct {
	Broker       string
	ClientID     string
	DataTopic    string
	CommandTopic string
	QoS          byte
}

// NewConfig derives the default per-channel topic and client-id names
// from channelID.
func NewConfig(broker string, channelID uint32) Config {
	return Config{
		Broker:       broker,
		ClientID:     defaultClientID(channelID),
		DataTopic:    sprintfTopic(DefaultDataTopicFormat, channelID),
		CommandTopic: sprintfTopic(DefaultCommandTopicFormat, channelID),
		QoS:          DefaultQoS,
	}
}

// pointPayload is the wire shape published for one data point; core.Value
// has no JSON mapping of its own since it is a protocol-agnostic sum type
// internal to the gateway, so the tap translates it at the boundary.
type pointPayload struct {
	ID        uint32      `json:"id"`
	DataType  string      `json:"data_type"`
	Value     interface{} `json:"value"`
	Quality   string      `json:"quality"`
	ServerTS  time.Time   `json:"server_ts"`
	SourceTS  *time.Time  `json:"source_ts,omitempty"`
}

type batchPayload struct {
	ChannelID uint32         `json:"channel_id"`
	Points    []pointPayload `json:"points"`
}

// commandPayload is the inbound shape accepted on CommandTopic.
type commandPayload struct {
	PointID    uint32   `json:"point_id"`
	Digital    *bool    `json:"digital,omitempty"`
	Analog     *float64 `json:"analog,omitempty"`
	PulseMs    *uint32  `json:"pulse_ms,omitempty"`
}

// Tap bridges one channel.Runtime to MQTT: every event the channel
// publishes is re-published as JSON, and messages on CommandTopic are
// decoded into WriteControl/WriteAdjustment calls against the channel.
type Tap struct {
	cfg     Config
	runtime channel.Runtime
	client  mqtt.Client

	unsubscribe func()
	stop        chan struct{}
}

// NewTap builds a Tap; call Connect to open the broker connection and
// begin bridging.
func NewTap(cfg Config, runtime channel.Runtime) *Tap {
	return &Tap{cfg: cfg, runtime: runtime, stop: make(chan struct{})}
}

// Connect opens the MQTT connection, subscribes to the command topic, and
// starts forwarding the channel's event stream if it has one.
func (t *Tap) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.cfg.Broker)
	opts.SetClientID(t.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("mqtttap: connected to %s", t.cfg.Broker)
		t.subscribeCommands()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtttap: connection to %s lost: %v", t.cfg.Broker, err)
	})

	t.client = mqtt.NewClient(opts)
	if token := t.client.Connect(); token.Wait() && token.Error() != nil {
		return core.IOErr(token.Error())
	}

	if events, unsubscribe, ok := t.runtime.Subscribe(); ok {
		t.unsubscribe = unsubscribe
		go t.forward(events)
	}
	return nil
}

// Disconnect unsubscribes from the channel's event stream and closes the
// MQTT connection.
func (t *Tap) Disconnect() {
	close(t.stop)
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
	}
}

func (t *Tap) forward(events <-chan channel.Event) {
	for {
		select {
		case <-t.stop:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Kind == channel.EventDataUpdate {
				t.publishBatch(evt.SourceChannel, evt.Batch)
			}
		}
	}
}

func (t *Tap) publishBatch(channelID uint32, batch core.DataBatch) {
	points := batch.Iter()
	if len(points) == 0 {
		return
	}

	payload := batchPayload{ChannelID: channelID, Points: make([]pointPayload, 0, len(points))}
	for _, p := range points {
		payload.Points = append(payload.Points, toPointPayload(p))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("mqtttap: marshaling batch for channel %d: %v", channelID, err)
		return
	}

	token := t.client.Publish(t.cfg.DataTopic, t.cfg.QoS, false, data)
	if token.Wait() && token.Error() != nil {
		log.Printf("mqtttap: publishing to %s: %v", t.cfg.DataTopic, token.Error())
	}
}

func toPointPayload(p core.DataPoint) pointPayload {
	pp := pointPayload{
		ID:       p.ID,
		DataType: p.DataType.String(),
		Quality:  p.Quality.String(),
		ServerTS: p.ServerTS,
		SourceTS: p.SourceTS,
	}
	switch p.Value.Kind() {
	case core.KindFloat:
		pp.Value, _ = p.Value.AsFloat()
	case core.KindInteger:
		pp.Value, _ = p.Value.AsInt()
	case core.KindBool:
		pp.Value, _ = p.Value.AsBool()
	case core.KindString:
		pp.Value, _ = p.Value.AsString()
	default:
		pp.Value = nil
	}
	return pp
}

func (t *Tap) subscribeCommands() {
	if t.cfg.CommandTopic == "" {
		return
	}
	token := t.client.Subscribe(t.cfg.CommandTopic, t.cfg.QoS, t.handleCommand)
	go func() {
		<-token.Done()
		if token.Error() != nil {
			log.Printf("mqtttap: subscribing to %s: %v", t.cfg.CommandTopic, token.Error())
		}
	}()
}

func (t *Tap) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	var cmd commandPayload
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Printf("mqtttap: decoding command from %s: %v", msg.Topic(), err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := applyCommand(ctx, t.runtime, cmd); err != nil {
		log.Printf("mqtttap: applying command for point %d: %v", cmd.PointID, err)
	}
}

// applyCommand turns a decoded commandPayload into the matching
// WriteControl/WriteAdjustment call against runtime.
func applyCommand(ctx context.Context, runtime channel.Runtime, cmd commandPayload) error {
	switch {
	case cmd.Digital != nil:
		var ctrl core.ControlCommand
		if cmd.PulseMs != nil {
			ctrl = core.PulseControl(cmd.PointID, *cmd.Digital, *cmd.PulseMs)
		} else {
			ctrl = core.LatchingControl(cmd.PointID, *cmd.Digital)
		}
		_, err := runtime.WriteControl(ctx, []core.ControlCommand{ctrl})
		return err
	case cmd.Analog != nil:
		adj := core.AdjustmentCommand{ID: cmd.PointID, Value: *cmd.Analog}
		_, err := runtime.WriteAdjustment(ctx, []core.AdjustmentCommand{adj})
		return err
	default:
		return core.ConfigErr("command for point %d has neither digital nor analog value", cmd.PointID)
	}
}

func defaultClientID(channelID uint32) string {
	return fmt.Sprintf("igw-channel-%d", channelID)
}

func sprintfTopic(format string, channelID uint32) string {
	return fmt.Sprintf(format, channelID)
}
