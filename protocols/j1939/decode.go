package j1939

import "github.com/fieldgw/igw/core"

// Frame is one CAN bus frame carrying a 29-bit extended J1939 identifier
// and up to 8 data bytes.
type Frame struct {
	ID   uint32
	Data []byte
}

// extractRaw pulls a def's raw integer out of a frame's data field.
// Returns ok=false if the frame is too short to contain the field.
func extractRaw(data []byte, def SpnDef) (int64, bool) {
	width := def.DataType.ByteWidth()
	if int(def.StartByte)+width > len(data) {
		return 0, false
	}
	switch def.DataType {
	case U8:
		b := data[def.StartByte]
		if def.BitLength >= 8 {
			return int64(b), true
		}
		mask := uint8((1 << def.BitLength) - 1)
		return int64((b >> def.StartBit) & mask), true
	case I8:
		return int64(int8(data[def.StartByte])), true
	case U16:
		v := uint16(data[def.StartByte]) | uint16(data[def.StartByte+1])<<8
		return int64(v), true
	case I16:
		v := uint16(data[def.StartByte]) | uint16(data[def.StartByte+1])<<8
		return int64(int16(v)), true
	case U32:
		v := uint32(data[def.StartByte]) | uint32(data[def.StartByte+1])<<8 |
			uint32(data[def.StartByte+2])<<16 | uint32(data[def.StartByte+3])<<24
		return int64(v), true
	case I32:
		v := uint32(data[def.StartByte]) | uint32(data[def.StartByte+1])<<8 |
			uint32(data[def.StartByte+2])<<16 | uint32(data[def.StartByte+3])<<24
		return int64(int32(v)), true
	default:
		return 0, false
	}
}

// isNotAvailable implements the SAE J1939 "not available" sentinel: the
// top two encodable values of an unsigned field (all-1s and all-1s-minus-1)
// mean error/not-available respectively, collapsed here into one check.
func isNotAvailable(raw int64, bitLength uint8) bool {
	if bitLength == 0 || bitLength >= 63 {
		return false
	}
	max := int64(1)<<bitLength - 1
	return raw >= max-1
}

// DecodedSpn is one SPN's extracted reading from a single frame.
type DecodedSpn struct {
	SPN   uint32
	Value core.Value
}

// DecodeFrame extracts every known SPN belonging to the frame's PGN. SPNs
// whose raw field is unavailable or whose frame is too short are skipped,
// not reported as zero.
func DecodeFrame(f Frame) (pgn uint32, spns []DecodedSpn) {
	id := ParseCanID(f.ID)
	pgn = id.PGN()
	for _, def := range SPNsForPGN(pgn) {
		raw, ok := extractRaw(f.Data, def)
		if !ok {
			continue
		}
		if isNotAvailable(raw, def.BitLength) {
			continue
		}
		value := float64(raw)*def.Scale + def.Offset
		spns = append(spns, DecodedSpn{SPN: def.SPN, Value: core.Float(value)})
	}
	return pgn, spns
}
