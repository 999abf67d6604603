package j1939

import (
	"strconv"
	"strings"
)

// adhocField is a user-specified CAN signal outside the built-in SPN
// table, addressed via the `can_id:byte_offset:bit_pos:bit_len` shorthand.
// Parsing of the generic CAN address string is deferred here rather than
// handled by the generic factory, since only this package knows how to
// decode a CAN bit field.
type adhocField struct {
	CanID     uint32
	ByteOffset uint8
	BitPos    uint8
	BitLength uint8
}

// parseAdhocAddress parses "can_id:byte_offset:bit_pos:bit_len". can_id may
// be decimal or 0x-prefixed hex.
func parseAdhocAddress(s string) (adhocField, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return adhocField{}, false
	}
	canID, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), hexOrDec(parts[0]), 32)
	if err != nil {
		return adhocField{}, false
	}
	offset, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return adhocField{}, false
	}
	bitPos, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return adhocField{}, false
	}
	bitLen, err := strconv.ParseUint(parts[3], 10, 8)
	if err != nil {
		return adhocField{}, false
	}
	return adhocField{CanID: uint32(canID), ByteOffset: uint8(offset), BitPos: uint8(bitPos), BitLength: uint8(bitLen)}, true
}

func hexOrDec(s string) int {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return 16
	}
	return 10
}

// extractAdhoc reads an arbitrary bit field (up to 32 bits) out of a
// frame's data, little-endian across bytes, without consulting the SPN
// table.
func extractAdhoc(data []byte, f adhocField) (int64, bool) {
	width := 1
	switch {
	case f.BitLength > 16:
		width = 4
	case f.BitLength > 8:
		width = 2
	}
	if int(f.ByteOffset)+width > len(data) {
		return 0, false
	}
	var raw uint32
	for i := 0; i < width; i++ {
		raw |= uint32(data[int(f.ByteOffset)+i]) << (8 * i)
	}
	if f.BitPos > 0 || int(f.BitLength) < width*8 {
		mask := uint32(1)<<f.BitLength - 1
		raw = (raw >> f.BitPos) & mask
	}
	return int64(raw), true
}
