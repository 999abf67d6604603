package router

import (
	"context"
	"sync"
	"testing"

	"github.com/fieldgw/igw/core"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches []core.DataBatch
}

func (w *recordingWriter) WriteBatch(ctx context.Context, batch core.DataBatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, batch)
	return nil
}

func (w *recordingWriter) forwardedFloats() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []float64
	for _, b := range w.batches {
		for _, p := range b.Iter() {
			f, _ := p.Value.AsFloat()
			out = append(out, f)
		}
	}
	return out
}

func telemetry(id uint32, v float64) core.DataPoint {
	return core.NewDataPoint(id, core.Telemetry, core.Float(v))
}

// TestDeadbandScenario forwards only when the value has moved past the
// configured deadband since the last forward.
func TestDeadbandScenario(t *testing.T) {
	table := NewRoutingTable()
	table.Add(Direct(1, 1, 2, 1).WithTrigger(Deadband(0.5)))

	r := NewDataRouter(NewConfig(table))
	w := &recordingWriter{}
	r.RegisterTarget(2, w)

	values := []float64{10.0, 10.3, 10.6, 10.6, 11.2}
	for _, v := range values {
		if err := r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, v))); err != nil {
			t.Fatalf("ProcessBatch: %v", err)
		}
	}

	got := w.forwardedFloats()
	want := []float64{10.0, 10.6, 11.2}
	if len(got) != len(want) {
		t.Fatalf("forwarded = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("forwarded[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func singleBatch(p core.DataPoint) core.DataBatch {
	var b core.DataBatch
	b.Add(p)
	return b
}

// TestOnChangeDedupesRepeat confirms an exact repeat of the last forwarded
// value is not forwarded again.
func TestOnChangeDedupesRepeat(t *testing.T) {
	table := NewRoutingTable()
	table.Add(Direct(1, 1, 2, 1).WithTrigger(OnChange()))

	r := NewDataRouter(NewConfig(table))
	w := &recordingWriter{}
	r.RegisterTarget(2, w)

	r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 5.0)))
	r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 5.0)))

	if got := w.forwardedFloats(); len(got) != 1 {
		t.Fatalf("expected exactly one forwarded point for a repeated value, got %v", got)
	}
}

func TestOnChangeForwardsOnDifferentValue(t *testing.T) {
	table := NewRoutingTable()
	table.Add(Direct(1, 1, 2, 1).WithTrigger(OnChange()))

	r := NewDataRouter(NewConfig(table))
	w := &recordingWriter{}
	r.RegisterTarget(2, w)

	r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 5.0)))
	r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 6.0)))

	if got := w.forwardedFloats(); len(got) != 2 {
		t.Fatalf("expected two forwards across two distinct values, got %v", got)
	}
}

func TestThresholdFiltersOutOfRange(t *testing.T) {
	min, max := 0.0, 100.0
	table := NewRoutingTable()
	table.Add(Direct(1, 1, 2, 1).WithTrigger(Threshold(&min, &max)))

	r := NewDataRouter(NewConfig(table))
	w := &recordingWriter{}
	r.RegisterTarget(2, w)

	r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 50.0)))
	r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 150.0)))

	if got := w.forwardedFloats(); len(got) != 1 || got[0] != 50.0 {
		t.Fatalf("expected only the in-range value forwarded, got %v", got)
	}
}

func TestIntervalSuppressesRapidRepeats(t *testing.T) {
	table := NewRoutingTable()
	table.Add(Direct(1, 1, 2, 1).WithTrigger(Interval(3600_000)))

	r := NewDataRouter(NewConfig(table))
	w := &recordingWriter{}
	r.RegisterTarget(2, w)

	r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 1.0)))
	r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 2.0)))

	if got := w.forwardedFloats(); len(got) != 1 {
		t.Fatalf("expected the second forward suppressed within the interval, got %v", got)
	}
}

func TestDisabledMappingNeverForwards(t *testing.T) {
	table := NewRoutingTable()
	table.Add(Direct(1, 1, 2, 1).WithEnabled(false))

	r := NewDataRouter(NewConfig(table))
	w := &recordingWriter{}
	r.RegisterTarget(2, w)

	r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 1.0)))

	if got := w.forwardedFloats(); len(got) != 0 {
		t.Fatalf("disabled mapping forwarded, got %v", got)
	}
}

func TestSourceChannelDisambiguation(t *testing.T) {
	table := NewRoutingTable()
	table.Add(Direct(1, 1, 2, 1))

	r := NewDataRouter(NewConfig(table))
	w := &recordingWriter{}
	r.RegisterTarget(2, w)

	// Same point id on a different source channel must not match.
	r.ProcessBatch(context.Background(), 9, singleBatch(telemetry(1, 99.0)))

	if got := w.forwardedFloats(); len(got) != 0 {
		t.Fatalf("expected no forward from an unmapped source channel, got %v", got)
	}
}

func TestTransformAppliesOnForward(t *testing.T) {
	table := NewRoutingTable()
	table.Add(Direct(1, 1, 2, 2).WithTransform(core.TransformConfig{Scale: 2, Offset: 1}))

	r := NewDataRouter(NewConfig(table))
	w := &recordingWriter{}
	r.RegisterTarget(2, w)

	r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 10.0)))

	got := w.forwardedFloats()
	if len(got) != 1 || got[0] != 21.0 {
		t.Fatalf("forwarded = %v, want [21]", got)
	}
}

func TestMissingTargetSkippedNotFatal(t *testing.T) {
	table := NewRoutingTable()
	table.Add(Direct(1, 1, 2, 1))

	r := NewDataRouter(NewConfig(table))
	// No target registered for channel 2.
	if err := r.ProcessBatch(context.Background(), 1, singleBatch(telemetry(1, 1.0))); err != nil {
		t.Fatalf("ProcessBatch should not fail on an unregistered target: %v", err)
	}
}
