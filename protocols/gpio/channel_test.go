package gpio

import (
	"context"
	"testing"
	"time"

	"github.com/fieldgw/igw/core"
)

type fakeLine struct {
	exported  bool
	dir       core.GpioDirection
	activeLow bool
	value     bool
	failExport bool
}

func (f *fakeLine) export() error {
	if f.failExport {
		return errTest("export failed")
	}
	f.exported = true
	return nil
}
func (f *fakeLine) unexport() error                       { f.exported = false; return nil }
func (f *fakeLine) setDirection(d core.GpioDirection) error { f.dir = d; return nil }
func (f *fakeLine) setActiveLow(a bool) error              { f.activeLow = a; return nil }
func (f *fakeLine) read() (bool, error)                    { return f.value, nil }
func (f *fakeLine) write(v bool) error                     { f.value = v; return nil }
func (f *fakeLine) close() error                           { f.exported = false; return nil }

type testErr string

func (e testErr) Error() string { return string(e) }
func errTest(msg string) error  { return testErr(msg) }

func newTestChannel(points []core.PointConfig) (*Channel, map[uint32]*fakeLine) {
	cfg := NewConfig()
	cfg.Points = points
	ch := New(1, "panel", cfg)
	fakes := make(map[uint32]*fakeLine)
	ch.newLine = func(chip string, pin uint32) line {
		f := &fakeLine{}
		fakes[pin] = f
		return f
	}
	return ch, fakes
}

func TestConnectExportsAndConfiguresLines(t *testing.T) {
	points := []core.PointConfig{
		core.NewPointConfig(1, core.Signal, core.GpioAddr(core.GpioAddress{Chip: "gpiochip0", Pin: 17, Direction: core.GpioInput, ActiveLow: true})),
		core.NewPointConfig(2, core.Control, core.GpioAddr(core.GpioAddress{Chip: "gpiochip0", Pin: 18, Direction: core.GpioOutput})),
	}
	ch, fakes := newTestChannel(points)
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if ch.ConnectionState() != core.Connected {
		t.Fatalf("state = %v, want Connected", ch.ConnectionState())
	}
	if !fakes[17].exported || !fakes[17].activeLow {
		t.Fatal("pin 17 not exported/active-low as configured")
	}
	if fakes[18].dir != core.GpioOutput {
		t.Fatal("pin 18 direction not set to output")
	}
}

func TestPollOnceReadsInputsOnly(t *testing.T) {
	points := []core.PointConfig{
		core.NewPointConfig(1, core.Signal, core.GpioAddr(core.GpioAddress{Chip: "gpiochip0", Pin: 17, Direction: core.GpioInput})),
		core.NewPointConfig(2, core.Control, core.GpioAddr(core.GpioAddress{Chip: "gpiochip0", Pin: 18, Direction: core.GpioOutput})),
	}
	ch, fakes := newTestChannel(points)
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fakes[17].value = true

	resp, err := ch.PollOnce(context.Background(), core.ReadAll())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(resp.Data.Signal) != 1 || resp.Data.Signal[0].ID != 1 {
		t.Fatalf("expected exactly point 1 in Signal list, got %+v", resp.Data.Signal)
	}
	if len(resp.Data.Control) != 0 {
		t.Fatal("output-direction point should not appear in PollOnce results")
	}
}

func TestPollOnceAppliesActiveLowViaTransformReverse(t *testing.T) {
	points := []core.PointConfig{
		core.NewPointConfig(1, core.Signal, core.GpioAddr(core.GpioAddress{Chip: "gpiochip0", Pin: 17, Direction: core.GpioInput})).
			WithTransform(core.TransformConfig{Scale: 1, Reverse: true}),
	}
	ch, fakes := newTestChannel(points)
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fakes[17].value = true

	resp, err := ch.PollOnce(context.Background(), core.ReadAll())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	b, _ := resp.Data.Signal[0].Value.AsBool()
	if b {
		t.Fatal("Reverse transform should invert a true raw reading to false")
	}
}

func TestWriteControlDrivesOutput(t *testing.T) {
	points := []core.PointConfig{
		core.NewPointConfig(2, core.Control, core.GpioAddr(core.GpioAddress{Chip: "gpiochip0", Pin: 18, Direction: core.GpioOutput})),
	}
	ch, fakes := newTestChannel(points)
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	result, err := ch.WriteControl(context.Background(), []core.ControlCommand{core.LatchingControl(2, true)})
	if err != nil {
		t.Fatalf("WriteControl: %v", err)
	}
	if result.SuccessCount != 1 || len(result.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !fakes[18].value {
		t.Fatal("expected pin 18 driven high")
	}
}

func TestWriteControlRejectsInputPoint(t *testing.T) {
	points := []core.PointConfig{
		core.NewPointConfig(1, core.Signal, core.GpioAddr(core.GpioAddress{Chip: "gpiochip0", Pin: 17, Direction: core.GpioInput})),
	}
	ch, _ := newTestChannel(points)
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	result, err := ch.WriteControl(context.Background(), []core.ControlCommand{core.LatchingControl(1, true)})
	if err != nil {
		t.Fatalf("WriteControl: %v", err)
	}
	if result.SuccessCount != 0 || len(result.Failures) != 1 {
		t.Fatalf("expected a single failure for an input-direction point, got %+v", result)
	}
}

func TestWriteAdjustmentUnsupported(t *testing.T) {
	ch, _ := newTestChannel(nil)
	ch.state = core.Connected
	_, err := ch.WriteAdjustment(context.Background(), []core.AdjustmentCommand{{ID: 1, Value: 1.0}})
	if err == nil {
		t.Fatal("expected Unsupported error")
	}
}

func TestWriteControlPulseReturnsLow(t *testing.T) {
	points := []core.PointConfig{
		core.NewPointConfig(2, core.Control, core.GpioAddr(core.GpioAddress{Chip: "gpiochip0", Pin: 18, Direction: core.GpioOutput})),
	}
	ch, fakes := newTestChannel(points)
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_, err := ch.WriteControl(context.Background(), []core.ControlCommand{core.PulseControl(2, true, 10)})
	if err != nil {
		t.Fatalf("WriteControl: %v", err)
	}
	if !fakes[18].value {
		t.Fatal("expected pin briefly high")
	}
	time.Sleep(50 * time.Millisecond)
	if fakes[18].value {
		t.Fatal("expected pulse to return the pin low")
	}
}

func TestSubscribeUnsupported(t *testing.T) {
	ch, _ := newTestChannel(nil)
	_, _, ok := ch.Subscribe()
	if ok {
		t.Fatal("GPIO is a polling channel, Subscribe should report unsupported")
	}
}
