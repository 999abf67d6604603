// Package codec converts between Modbus 16-bit register arrays and typed
// Go values under the four common register byte orders.
package codec

import (
	"math"

	"github.com/fieldgw/igw/core"
)

// reorder converts between the as-transmitted register byte layout and true
// big-endian order for the requested ByteOrder. Every case implemented here
// is an involution (its own inverse), so the same function serves both
// decode and encode.
//
// ABCD is identity. DCBA is a full reverse of the whole byte array (treats
// the value as one little-endian unit, regardless of width). BADC swaps the
// two bytes within each 16-bit register, independent of width. CDAB swaps
// adjacent register pairs within each 32-bit chunk - applied pairwise, so a
// 64-bit value's two 32-bit halves are each word-swapped independently
// rather than the whole array being reversed.
func reorder(raw []byte, order core.ByteOrder) []byte {
	n := len(raw)
	out := make([]byte, n)
	words := n / 2

	switch order {
	case core.Abcd:
		copy(out, raw)
	case core.Dcba:
		for i := 0; i < n; i++ {
			out[i] = raw[n-1-i]
		}
	case core.Badc:
		for w := 0; w < words; w++ {
			out[2*w] = raw[2*w+1]
			out[2*w+1] = raw[2*w]
		}
	case core.Cdab:
		copy(out, raw)
		for w := 0; w+1 < words; w += 2 {
			out[2*w], out[2*w+1] = raw[2*(w+1)], raw[2*(w+1)+1]
			out[2*(w+1)], out[2*(w+1)+1] = raw[2*w], raw[2*w+1]
		}
	default:
		copy(out, raw)
	}
	return out
}

func registersToBytes(registers []uint16) []byte {
	b := make([]byte, len(registers)*2)
	for i, r := range registers {
		b[2*i] = byte(r >> 8)
		b[2*i+1] = byte(r)
	}
	return b
}

func bytesToRegisters(b []byte) []uint16 {
	regs := make([]uint16, len(b)/2)
	for i := range regs {
		regs[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return regs
}

func requireLen(registers []uint16, need int) error {
	if len(registers) < need {
		return core.InvalidDataErr("need %d registers, got %d", need, len(registers))
	}
	return nil
}

// DecodeU16 reads the first register as an unsigned 16-bit integer.
// Byte order has no effect at this width.
func DecodeU16(registers []uint16) (uint16, error) {
	if err := requireLen(registers, 1); err != nil {
		return 0, err
	}
	return registers[0], nil
}

// DecodeI16 reads the first register as a signed 16-bit integer.
func DecodeI16(registers []uint16) (int16, error) {
	v, err := DecodeU16(registers)
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

// EncodeU16 returns a single register holding v.
func EncodeU16(v uint16) []uint16 { return []uint16{v} }

// EncodeI16 returns a single register holding v.
func EncodeI16(v int16) []uint16 { return []uint16{uint16(v)} }

// DecodeU32 reads the first two registers as an unsigned 32-bit integer
// under the given byte order.
func DecodeU32(registers []uint16, order core.ByteOrder) (uint32, error) {
	if err := requireLen(registers, 2); err != nil {
		return 0, err
	}
	raw := registersToBytes(registers[:2])
	be := reorder(raw, order)
	return uint32(be[0])<<24 | uint32(be[1])<<16 | uint32(be[2])<<8 | uint32(be[3]), nil
}

// DecodeI32 reads the first two registers as a signed 32-bit integer.
func DecodeI32(registers []uint16, order core.ByteOrder) (int32, error) {
	v, err := DecodeU32(registers, order)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// EncodeU32 returns two registers holding v under the given byte order.
func EncodeU32(v uint32, order core.ByteOrder) []uint16 {
	be := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	return bytesToRegisters(reorder(be, order))
}

// EncodeI32 returns two registers holding v under the given byte order.
func EncodeI32(v int32, order core.ByteOrder) []uint16 { return EncodeU32(uint32(v), order) }

// DecodeU64 reads the first four registers as an unsigned 64-bit integer.
func DecodeU64(registers []uint16, order core.ByteOrder) (uint64, error) {
	if err := requireLen(registers, 4); err != nil {
		return 0, err
	}
	raw := registersToBytes(registers[:4])
	be := reorder(raw, order)
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(be[i])
	}
	return v, nil
}

// DecodeI64 reads the first four registers as a signed 64-bit integer.
func DecodeI64(registers []uint16, order core.ByteOrder) (int64, error) {
	v, err := DecodeU64(registers, order)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// EncodeU64 returns four registers holding v under the given byte order.
func EncodeU64(v uint64, order core.ByteOrder) []uint16 {
	be := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		be[i] = byte(v)
		v >>= 8
	}
	return bytesToRegisters(reorder(be, order))
}

// EncodeI64 returns four registers holding v under the given byte order.
func EncodeI64(v int64, order core.ByteOrder) []uint16 { return EncodeU64(uint64(v), order) }

// DecodeFloat32 reads the first two registers as an IEEE-754 float32.
func DecodeFloat32(registers []uint16, order core.ByteOrder) (float32, error) {
	bits, err := DecodeU32(registers, order)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// EncodeFloat32 returns two registers holding v under the given byte order.
func EncodeFloat32(v float32, order core.ByteOrder) []uint16 {
	return EncodeU32(math.Float32bits(v), order)
}

// DecodeFloat64 reads the first four registers as an IEEE-754 float64.
func DecodeFloat64(registers []uint16, order core.ByteOrder) (float64, error) {
	bits, err := DecodeU64(registers, order)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// EncodeFloat64 returns four registers holding v under the given byte order.
func EncodeFloat64(v float64, order core.ByteOrder) []uint16 {
	return EncodeU64(math.Float64bits(v), order)
}

// DecodeBool reads a single bit out of the first register. If bitPos is
// nil, bit 0 (LSB) is used, matching a coil/discrete-input read where the
// whole register is already 0/1.
func DecodeBool(registers []uint16, bitPos *uint8) (bool, error) {
	if err := requireLen(registers, 1); err != nil {
		return false, err
	}
	pos := uint8(0)
	if bitPos != nil {
		pos = *bitPos
	}
	if pos > 15 {
		return false, core.InvalidDataErr("bit position %d out of range 0-15", pos)
	}
	return registers[0]&(1<<pos) != 0, nil
}

// EncodeBool returns a single register with bit bitPos (default 0) set to v
// and all other bits clear.
func EncodeBool(v bool, bitPos *uint8) uint16 {
	pos := uint8(0)
	if bitPos != nil {
		pos = *bitPos
	}
	if v {
		return 1 << pos
	}
	return 0
}

// Decode dispatches on format to produce a core.Value, applying the given
// byte order for multi-register formats.
func Decode(registers []uint16, format core.DataFormat, order core.ByteOrder, bitPos *uint8) (core.Value, error) {
	switch format {
	case core.FormatBool:
		v, err := DecodeBool(registers, bitPos)
		if err != nil {
			return core.Null, err
		}
		return core.Bool(v), nil
	case core.FormatUInt16:
		v, err := DecodeU16(registers)
		if err != nil {
			return core.Null, err
		}
		return core.Integer(int64(v)), nil
	case core.FormatInt16:
		v, err := DecodeI16(registers)
		if err != nil {
			return core.Null, err
		}
		return core.Integer(int64(v)), nil
	case core.FormatUInt32:
		v, err := DecodeU32(registers, order)
		if err != nil {
			return core.Null, err
		}
		return core.Integer(int64(v)), nil
	case core.FormatInt32:
		v, err := DecodeI32(registers, order)
		if err != nil {
			return core.Null, err
		}
		return core.Integer(int64(v)), nil
	case core.FormatUInt64:
		v, err := DecodeU64(registers, order)
		if err != nil {
			return core.Null, err
		}
		return core.Integer(int64(v)), nil
	case core.FormatInt64:
		v, err := DecodeI64(registers, order)
		if err != nil {
			return core.Null, err
		}
		return core.Integer(v), nil
	case core.FormatFloat32:
		v, err := DecodeFloat32(registers, order)
		if err != nil {
			return core.Null, err
		}
		return core.Float(float64(v)), nil
	case core.FormatFloat64:
		v, err := DecodeFloat64(registers, order)
		if err != nil {
			return core.Null, err
		}
		return core.Float(v), nil
	case core.FormatString:
		if err := requireLen(registers, int(format.RegisterCount())); err != nil {
			return core.Null, err
		}
		raw := registersToBytes(registers[:format.RegisterCount()])
		end := len(raw)
		for end > 0 && raw[end-1] == 0 {
			end--
		}
		return core.String(string(raw[:end])), nil
	default:
		return core.Null, core.UnsupportedErr("data format %v", format)
	}
}

// Encode dispatches on format to produce the register array for a write,
// under the given byte order.
func Encode(v core.Value, format core.DataFormat, order core.ByteOrder, bitPos *uint8) ([]uint16, error) {
	switch format {
	case core.FormatBool:
		b, ok := v.AsBool()
		if !ok {
			return nil, core.DataConversionErr("value is not bool-coercible")
		}
		return []uint16{EncodeBool(b, bitPos)}, nil
	case core.FormatUInt16:
		i, ok := v.AsInt()
		if !ok {
			return nil, core.DataConversionErr("value is not int-coercible")
		}
		return EncodeU16(uint16(i)), nil
	case core.FormatInt16:
		i, ok := v.AsInt()
		if !ok {
			return nil, core.DataConversionErr("value is not int-coercible")
		}
		return EncodeI16(int16(i)), nil
	case core.FormatUInt32:
		i, ok := v.AsInt()
		if !ok {
			return nil, core.DataConversionErr("value is not int-coercible")
		}
		return EncodeU32(uint32(i), order), nil
	case core.FormatInt32:
		i, ok := v.AsInt()
		if !ok {
			return nil, core.DataConversionErr("value is not int-coercible")
		}
		return EncodeI32(int32(i), order), nil
	case core.FormatUInt64:
		i, ok := v.AsInt()
		if !ok {
			return nil, core.DataConversionErr("value is not int-coercible")
		}
		return EncodeU64(uint64(i), order), nil
	case core.FormatInt64:
		i, ok := v.AsInt()
		if !ok {
			return nil, core.DataConversionErr("value is not int-coercible")
		}
		return EncodeI64(i, order), nil
	case core.FormatFloat32:
		f, ok := v.AsFloat()
		if !ok {
			return nil, core.DataConversionErr("value is not float-coercible")
		}
		return EncodeFloat32(float32(f), order), nil
	case core.FormatFloat64:
		f, ok := v.AsFloat()
		if !ok {
			return nil, core.DataConversionErr("value is not float-coercible")
		}
		return EncodeFloat64(f, order), nil
	default:
		return nil, core.UnsupportedErr("encode for data format %v", format)
	}
}
