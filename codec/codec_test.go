package codec

import (
	"math"
	"testing"

	"github.com/fieldgw/igw/core"
)

// Modbus F32 ABCD: registers [0x41C8, 0x0000] decode to ~25.0.
func TestDecodeFloat32ABCD(t *testing.T) {
	v, err := DecodeFloat32([]uint16{0x41C8, 0x0000}, core.Abcd)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(v)-25.0) > 1e-9 {
		t.Fatalf("got %v, want 25.0", v)
	}
}

// Modbus U32 CDAB: registers [0x5678, 0x1234] decode to 0x12345678.
func TestDecodeU32CDAB(t *testing.T) {
	v, err := DecodeU32([]uint16{0x5678, 0x1234}, core.Cdab)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x12345678 {
		t.Fatalf("got %#x, want 0x12345678", v)
	}
}

// decode(encode(v, order), order) == v for finite floats, every order.
func TestFloatRoundTrip(t *testing.T) {
	values := []float64{0, 1, -1, 25.0, 3.14159, -9999.5, math.MaxFloat32 / 2}
	orders := []core.ByteOrder{core.Abcd, core.Dcba, core.Badc, core.Cdab}
	for _, order := range orders {
		for _, v := range values {
			f32 := float32(v)
			regs := EncodeFloat32(f32, order)
			got, err := DecodeFloat32(regs, order)
			if err != nil {
				t.Fatal(err)
			}
			if got != f32 {
				t.Fatalf("f32 round trip under %v: got %v, want %v", order, got, f32)
			}

			regs64 := EncodeFloat64(v, order)
			got64, err := DecodeFloat64(regs64, order)
			if err != nil {
				t.Fatal(err)
			}
			if got64 != v {
				t.Fatalf("f64 round trip under %v: got %v, want %v", order, got64, v)
			}
		}
	}
}

// decode_u32(encode_u32(v, order), order) == v for all orders.
func TestU32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 0xFFFFFFFF, 0x12345678, 0xDEADBEEF}
	orders := []core.ByteOrder{core.Abcd, core.Dcba, core.Badc, core.Cdab}
	for _, order := range orders {
		for _, v := range values {
			regs := EncodeU32(v, order)
			got, err := DecodeU32(regs, order)
			if err != nil {
				t.Fatal(err)
			}
			if got != v {
				t.Fatalf("u32 round trip under %v: got %#x, want %#x", order, got, v)
			}
		}
	}
}

func TestU64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0xFFFFFFFFFFFFFFFF, 0x0123456789ABCDEF}
	orders := []core.ByteOrder{core.Abcd, core.Dcba, core.Badc, core.Cdab}
	for _, order := range orders {
		for _, v := range values {
			regs := EncodeU64(v, order)
			got, err := DecodeU64(regs, order)
			if err != nil {
				t.Fatal(err)
			}
			if got != v {
				t.Fatalf("u64 round trip under %v: got %#x, want %#x", order, got, v)
			}
		}
	}
}

func TestDecodeUnderLengthFails(t *testing.T) {
	_, err := DecodeU32([]uint16{0x1234}, core.Abcd)
	if err == nil {
		t.Fatal("expected InvalidData error for under-length input")
	}
	ge, ok := err.(*core.GatewayError)
	if !ok || ge.Kind != core.ErrInvalidData {
		t.Fatalf("expected InvalidData GatewayError, got %v", err)
	}
}

func TestDecodeBoolBitPosition(t *testing.T) {
	pos := uint8(3)
	v, err := DecodeBool([]uint16{0b0000_1000}, &pos)
	if err != nil {
		t.Fatal(err)
	}
	if !v {
		t.Fatal("expected bit 3 set")
	}
	other := uint8(4)
	v2, err := DecodeBool([]uint16{0b0000_1000}, &other)
	if err != nil {
		t.Fatal(err)
	}
	if v2 {
		t.Fatal("expected bit 4 clear")
	}
}

func TestDecodeDispatch(t *testing.T) {
	val, err := Decode([]uint16{0x41C8, 0x0000}, core.FormatFloat32, core.Abcd, nil)
	if err != nil {
		t.Fatal(err)
	}
	f, ok := val.AsFloat()
	if !ok || math.Abs(f-25.0) > 1e-9 {
		t.Fatalf("Decode dispatch got %v", f)
	}
}
