package iec104

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/core"
)

// fakeOutstation accepts one connection, performs the STARTDT handshake,
// then pushes a single measured-value ASDU so the channel under test has
// something to decode.
func fakeOutstation(t *testing.T, ln net.Listener, asdu Asdu) {
	t.Helper()
	nc, err := ln.Accept()
	if err != nil {
		return
	}
	defer nc.Close()

	buf := make([]byte, 6)
	if _, err := nc.Read(buf); err != nil {
		return
	}
	nc.Write(newUFrame(uStartDtConfirm))

	raw, err := EncodeAsdu(asdu)
	if err != nil {
		t.Error(err)
		return
	}
	frame, err := newIFrame(0, 0, raw)
	if err != nil {
		t.Error(err)
		return
	}
	time.Sleep(20 * time.Millisecond)
	nc.Write(frame)

	// Drain whatever the client sends afterward (acks, stopdt) until closed.
	drain := make([]byte, 256)
	for {
		if _, err := nc.Read(drain); err != nil {
			return
		}
	}
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}

func TestChannelConnectDecodesAndCaches(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	asdu := Asdu{
		Type:          MMeNc1,
		Cause:         CauseSpontaneous,
		CommonAddress: 1,
		Objects:       []InformationObject{{IOA: 100, Value: 62.5}},
	}
	go fakeOutstation(t, ln, asdu)

	host, port := splitHostPort(t, ln.Addr().String())
	cfg := NewConfig(host, port, 1)
	point := core.NewPointConfig(1, core.Telemetry, core.Iec104Addr(core.Iec104Address{IOA: 100}))
	cfg.Points = []core.PointConfig{point}

	ch := New(1, "substation", cfg)
	sub, unsub, ok := ch.Subscribe()
	if !ok {
		t.Fatal("expected Subscribe support")
	}
	defer unsub()

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer ch.Disconnect(context.Background())

	// Connect publishes ConnectionChanged events before the data arrives;
	// wait for the first DataUpdate.
	deadline := time.After(2 * time.Second)
	for waiting := true; waiting; {
		select {
		case evt := <-sub:
			if evt.Kind != channel.EventDataUpdate {
				continue
			}
			if len(evt.Batch.Telemetry) != 1 || evt.Batch.Telemetry[0].ID != 1 {
				t.Fatalf("unexpected batch: %+v", evt.Batch)
			}
			waiting = false
		case <-deadline:
			t.Fatal("timed out waiting for data update event")
		}
	}

	resp, err := ch.PollOnce(context.Background(), core.ReadAll())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data.Telemetry) != 1 {
		t.Fatalf("expected cached telemetry point, got %d", len(resp.Data.Telemetry))
	}
	v, _ := resp.Data.Telemetry[0].Value.AsFloat()
	if v < 62.49 || v > 62.51 {
		t.Fatalf("cached value = %v, want ~62.5", v)
	}
}

func TestResolveTypeHonorsExplicitTypeID(t *testing.T) {
	pc := core.NewPointConfig(1, core.Control, core.Iec104Addr(core.Iec104Address{IOA: 1, TypeID: uint8(CScNa1)}))
	if got := resolveType(pc, signalType(true)); got != CScNa1 {
		t.Fatalf("resolveType = %v, want CScNa1", got)
	}
}

func TestResolveTypeInfersFromDataType(t *testing.T) {
	pc := core.NewPointConfig(1, core.Adjustment, core.Iec104Addr(core.Iec104Address{IOA: 1}))
	if got := resolveType(pc, telemetryType(true)); got != CSeNc1 {
		t.Fatalf("resolveType = %v, want CSeNc1", got)
	}
}

func TestUnconfiguredIOAIgnored(t *testing.T) {
	ch := New(1, "s", NewConfig("127.0.0.1", 0, 1))
	raw, err := EncodeAsdu(Asdu{
		Type:          MMeNc1,
		Cause:         CauseSpontaneous,
		CommonAddress: 1,
		Objects:       []InformationObject{{IOA: 999, Value: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ch.handleASDU(raw)
	if len(ch.cache) != 0 {
		t.Fatalf("expected no cached points for an unconfigured IOA, got %d", len(ch.cache))
	}
}
