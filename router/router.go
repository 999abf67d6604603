package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/core"
)

// TargetWriter is the uniform sink a DataRouter writes a per-target batch
// to. ChannelWriter adapts any channel.Runtime into one.
type TargetWriter interface {
	WriteBatch(ctx context.Context, batch core.DataBatch) error
}

// ChannelWriter adapts a channel.Runtime to TargetWriter by splitting the
// batch into the two write calls the runtime contract actually exposes:
// digital points (Signal/Control) go through WriteControl, analog points
// (Telemetry/Adjustment) through WriteAdjustment. A router never forwards
// into a Telemetry/Signal (input-only) point in practice, but the split
// tolerates it rather than rejecting it outright.
type ChannelWriter struct {
	Runtime channel.Runtime
}

func NewChannelWriter(rt channel.Runtime) *ChannelWriter {
	return &ChannelWriter{Runtime: rt}
}

func (w *ChannelWriter) WriteBatch(ctx context.Context, batch core.DataBatch) error {
	var errs []error

	digital := make([]core.DataPoint, 0, len(batch.Signal)+len(batch.Control))
	digital = append(digital, batch.Signal...)
	digital = append(digital, batch.Control...)
	if len(digital) > 0 {
		cmds := make([]core.ControlCommand, 0, len(digital))
		for _, p := range digital {
			b, _ := p.Value.AsBool()
			cmds = append(cmds, core.LatchingControl(p.ID, b))
		}
		if _, err := w.Runtime.WriteControl(ctx, cmds); err != nil {
			errs = append(errs, err)
		}
	}

	analog := make([]core.DataPoint, 0, len(batch.Telemetry)+len(batch.Adjustment))
	analog = append(analog, batch.Telemetry...)
	analog = append(analog, batch.Adjustment...)
	if len(analog) > 0 {
		adjustments := make([]core.AdjustmentCommand, 0, len(analog))
		for _, p := range analog {
			f, _ := p.Value.AsFloat()
			adjustments = append(adjustments, core.AdjustmentCommand{ID: p.ID, Value: f})
		}
		if _, err := w.Runtime.WriteAdjustment(ctx, adjustments); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Config controls a DataRouter's behaviour.
type Config struct {
	RoutingTable    *RoutingTable
	ContinueOnError bool
}

func NewConfig(table *RoutingTable) Config {
	return Config{RoutingTable: table, ContinueOnError: true}
}

type routeKey struct {
	channelID uint32
	pointID   uint32
}

// state holds the per-(source channel, source point) memory the trigger
// conditions need: last forwarded value (OnChange/Deadband) and last
// forward timestamp (Interval).
type state struct {
	mu          sync.Mutex
	lastValues  map[routeKey]core.Value
	lastForward map[routeKey]time.Time
}

func newState() *state {
	return &state{
		lastValues:  make(map[routeKey]core.Value),
		lastForward: make(map[routeKey]time.Time),
	}
}

// DataRouter consumes data-update events from any number of source
// channels and forwards points to registered target writers according to
// its routing table's per-mapping trigger conditions.
type DataRouter struct {
	mu      sync.Mutex
	cfg     Config
	targets map[uint32]TargetWriter
	state   *state
}

func NewDataRouter(cfg Config) *DataRouter {
	if cfg.RoutingTable == nil {
		cfg.RoutingTable = NewRoutingTable()
	}
	return &DataRouter{
		cfg:     cfg,
		targets: make(map[uint32]TargetWriter),
		state:   newState(),
	}
}

func (r *DataRouter) RegisterTarget(channelID uint32, writer TargetWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[channelID] = writer
}

func (r *DataRouter) UnregisterTarget(channelID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, channelID)
}

func (r *DataRouter) SetRoutingTable(table *RoutingTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.RoutingTable = table
}

func (r *DataRouter) RoutingTable() *RoutingTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.RoutingTable
}

// Run drains events until ctx is cancelled or the channel closes,
// processing every DataUpdate and ignoring other event kinds. It is meant
// to be driven from a merged stream across all source channels' Subscribe
// outputs.
func (r *DataRouter) Run(ctx context.Context, events <-chan channel.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Kind != channel.EventDataUpdate {
				continue
			}
			r.ProcessBatch(ctx, evt.SourceChannel, evt.Batch)
		}
	}
}

// ProcessBatch evaluates the routing table against one channel's batch
// and writes every resulting per-target batch in one call per target.
// A write failure against one target does not stop the others from being
// attempted when ContinueOnError holds.
func (r *DataRouter) ProcessBatch(ctx context.Context, sourceChannel uint32, batch core.DataBatch) error {
	r.mu.Lock()
	table := r.cfg.RoutingTable
	continueOnError := r.cfg.ContinueOnError
	targets := r.targets
	r.mu.Unlock()

	targetBatches := make(map[uint32]*core.DataBatch)

	for _, p := range batch.Iter() {
		for _, m := range table.FindBySource(sourceChannel, p.ID) {
			if !r.shouldForward(m, p) {
				continue
			}
			out := r.transformPoint(p, m)
			b, ok := targetBatches[m.TargetChannel]
			if !ok {
				b = &core.DataBatch{}
				targetBatches[m.TargetChannel] = b
			}
			b.Add(out)
		}
	}

	var errs []error
	for channelID, b := range targetBatches {
		writer, ok := targets[channelID]
		if !ok {
			continue
		}
		if err := writer.WriteBatch(ctx, *b); err != nil {
			errs = append(errs, err)
			if !continueOnError {
				return errors.Join(errs...)
			}
		}
	}
	return errors.Join(errs...)
}

func (r *DataRouter) shouldForward(m PointMapping, p core.DataPoint) bool {
	key := routeKey{channelID: m.SourceChannel, pointID: m.SourcePoint}
	trigger := m.trigger()

	switch trigger.Kind {
	case TriggerAlways:
		return true

	case TriggerOnChange:
		r.state.mu.Lock()
		defer r.state.mu.Unlock()
		prev, seen := r.state.lastValues[key]
		changed := !seen || !prev.Equal(p.Value)
		if changed {
			r.state.lastValues[key] = p.Value
		}
		return changed

	case TriggerThreshold:
		v, ok := p.Value.AsFloat()
		if !ok {
			return true
		}
		if trigger.Min != nil && v < *trigger.Min {
			return false
		}
		if trigger.Max != nil && v > *trigger.Max {
			return false
		}
		return true

	case TriggerInterval:
		r.state.mu.Lock()
		defer r.state.mu.Unlock()
		now := time.Now()
		if last, ok := r.state.lastForward[key]; ok {
			if now.Sub(last) < time.Duration(trigger.MinIntervalMs)*time.Millisecond {
				return false
			}
		}
		r.state.lastForward[key] = now
		return true

	case TriggerDeadband:
		r.state.mu.Lock()
		defer r.state.mu.Unlock()
		v, ok := p.Value.AsFloat()
		if !ok {
			return true
		}
		if last, seen := r.state.lastValues[key]; seen {
			if lv, lok := last.AsFloat(); lok {
				delta := v - lv
				if delta < 0 {
					delta = -delta
				}
				if delta <= trigger.Deadband {
					return false
				}
			}
		}
		r.state.lastValues[key] = p.Value
		return true

	default:
		return true
	}
}

// transformPoint applies the mapping's transform and retargets id/type,
// preserving quality and timestamps from the source point.
func (r *DataRouter) transformPoint(p core.DataPoint, m PointMapping) core.DataPoint {
	out := p
	out.ID = m.EffectiveTargetPoint()

	switch p.Value.Kind() {
	case core.KindFloat:
		f, _ := p.Value.AsFloat()
		out.Value = core.Float(m.Transform.Apply(f))
	case core.KindInteger:
		i, _ := p.Value.AsInt()
		out.Value = core.Float(m.Transform.Apply(float64(i)))
	case core.KindBool:
		b, _ := p.Value.AsBool()
		out.Value = core.Bool(m.Transform.ApplyBool(b))
	default:
		// String/Bytes/Null pass through unchanged.
	}
	return out
}
