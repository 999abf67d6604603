package j1939

import (
	"context"
	"testing"
	"time"

	"github.com/fieldgw/igw/core"
)

// fakeFrameSource lets tests push frames directly without a real serial port.
type fakeFrameSource struct {
	ch chan Frame
}

func newFakeFrameSource() *fakeFrameSource { return &fakeFrameSource{ch: make(chan Frame, 8)} }

func (f *fakeFrameSource) connect(ctx context.Context) error { return nil }
func (f *fakeFrameSource) close() error                       { close(f.ch); return nil }
func (f *fakeFrameSource) frames() <-chan Frame                { return f.ch }

// findPoint returns the point with the given id from pts.
func findPoint(pts []core.DataPoint, id uint32) (core.DataPoint, bool) {
	for _, p := range pts {
		if p.ID == id {
			return p, true
		}
	}
	return core.DataPoint{}, false
}

func TestChannelDecodesAndCachesFrame(t *testing.T) {
	// An override for SPN 190: the emitted point id is always the SPN
	// number (190), regardless of the configured PointConfig.ID.
	override := core.NewPointConfig(190, core.Telemetry, core.GenericAddr("190"))
	ch := New(1, "engine", Config{SourceAddress: 0, Points: []core.PointConfig{override}})

	fake := newFakeFrameSource()
	ch.source = fake

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer ch.Disconnect(context.Background())

	sub, unsub, ok := ch.Subscribe()
	if !ok {
		t.Fatal("j1939 channel should support Subscribe")
	}
	defer unsub()

	fake.ch <- Frame{
		ID:   0x0CF00400,
		Data: []byte{0x00, 0x00, 0x00, 0xF4, 0x01, 0x00, 0x00, 0x00},
	}

	select {
	case evt := <-sub:
		if evt.Kind != 0 { // EventDataUpdate == 0
			t.Fatalf("unexpected event kind %v", evt.Kind)
		}
		// Every available EEC1 SPN in the table is emitted: 899, 512, 513,
		// 190, 1483, 1675 and 2432.
		if _, ok := findPoint(evt.Batch.Telemetry, 190); len(evt.Batch.Telemetry) != 7 || !ok {
			t.Fatalf("unexpected batch: %+v", evt.Batch)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for data update event")
	}

	resp, err := ch.PollOnce(context.Background(), core.ReadAll())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data.Telemetry) != 7 {
		t.Fatalf("expected cached snapshot with 7 points, got %d", len(resp.Data.Telemetry))
	}
	dp, ok := findPoint(resp.Data.Telemetry, 190)
	if !ok {
		t.Fatalf("SPN 190 missing from cached snapshot: %+v", resp.Data.Telemetry)
	}
	f, _ := dp.Value.AsFloat()
	if f < 62.499 || f > 62.501 {
		t.Fatalf("cached value = %v, want ~62.5", f)
	}
}

func TestChannelDecodesAdhocCanField(t *testing.T) {
	// Ad-hoc shorthand: can_id:byte_offset:bit_pos:bit_len, outside the
	// built-in SPN table, reported under the configured point id.
	point := core.NewPointConfig(500, core.Telemetry, core.GenericAddr("0x18FEEE00:1:0:8"))
	ch := New(1, "raw", Config{SourceAddress: 0, Points: []core.PointConfig{point}})
	fake := newFakeFrameSource()
	ch.source = fake
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer ch.Disconnect(context.Background())

	fake.ch <- Frame{ID: 0x18FEEE00, Data: []byte{0, 77, 0, 0, 0, 0, 0, 0}}
	time.Sleep(50 * time.Millisecond)

	resp, err := ch.PollOnce(context.Background(), core.ReadAll())
	if err != nil {
		t.Fatal(err)
	}
	// The frame is PGN 65262 (ET1), so its five table SPNs (110, 174, 175,
	// 176, 52) are emitted alongside the ad-hoc point.
	dp, ok := findPoint(resp.Data.Telemetry, 500)
	if len(resp.Data.Telemetry) != 6 || !ok {
		t.Fatalf("expected ad-hoc point 500 among 6 points, got %+v", resp.Data.Telemetry)
	}
	v, _ := dp.Value.AsFloat()
	if v != 77 {
		t.Fatalf("value = %v, want 77", v)
	}
}

func TestChannelIgnoresOtherSourceAddress(t *testing.T) {
	point := core.NewPointConfig(1, core.Telemetry, core.GenericAddr("190"))
	ch := New(1, "engine", Config{SourceAddress: 5, Points: []core.PointConfig{point}})
	fake := newFakeFrameSource()
	ch.source = fake
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer ch.Disconnect(context.Background())

	// sa=0 in this frame, channel wants sa=5.
	fake.ch <- Frame{ID: 0x0CF00400, Data: []byte{0, 0, 0, 0xF4, 1, 0, 0, 0}}
	time.Sleep(50 * time.Millisecond)

	resp, err := ch.PollOnce(context.Background(), core.ReadAll())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data.Telemetry) != 0 {
		t.Fatalf("expected no cached points from a filtered source address, got %d", len(resp.Data.Telemetry))
	}
}
