package modbus

import "github.com/fieldgw/igw/core"

// Function codes this gateway issues: reads and writes for coils,
// discrete inputs, and holding/input registers.
const (
	FuncReadCoils             uint8 = 0x01
	FuncReadDiscreteInputs    uint8 = 0x02
	FuncReadHoldingRegisters  uint8 = 0x03
	FuncReadInputRegisters    uint8 = 0x04
	FuncWriteSingleCoil       uint8 = 0x05
	FuncWriteSingleRegister   uint8 = 0x06
	FuncWriteMultipleCoils    uint8 = 0x0F
	FuncWriteMultipleRegisters uint8 = 0x10

	exceptionBit uint8 = 0x80
)

// IsReadFunction reports whether fc is one of the four read functions.
func IsReadFunction(fc uint8) bool {
	switch fc {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		return true
	default:
		return false
	}
}

// IsWriteFunction reports whether fc is one of the four write functions.
func IsWriteFunction(fc uint8) bool {
	switch fc {
	case FuncWriteSingleCoil, FuncWriteSingleRegister, FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
		return true
	default:
		return false
	}
}

var exceptionDescriptions = map[uint8]string{
	0x01: "illegal function",
	0x02: "illegal data address",
	0x03: "illegal data value",
	0x04: "slave device failure",
	0x05: "acknowledge",
	0x06: "slave device busy",
	0x08: "memory parity error",
	0x0A: "gateway path unavailable",
	0x0B: "gateway target device failed to respond",
}

func exceptionDescription(code uint8) string {
	if d, ok := exceptionDescriptions[code]; ok {
		return d
	}
	return "unknown exception"
}

// buildReadRequest encodes the PDU body for one of the four read function
// codes: 2-byte start register/coil and 2-byte quantity.
func buildReadRequest(register uint16, quantity uint16) []byte {
	return []byte{byte(register >> 8), byte(register), byte(quantity >> 8), byte(quantity)}
}

// buildWriteSingleRequest encodes FC05/06's 2-byte address + 2-byte value.
func buildWriteSingleRequest(register uint16, value uint16) []byte {
	return []byte{byte(register >> 8), byte(register), byte(value >> 8), byte(value)}
}

// buildWriteMultipleRegistersRequest encodes FC16's address/count/bytecount/data.
func buildWriteMultipleRegistersRequest(register uint16, values []uint16) []byte {
	n := len(values)
	out := make([]byte, 5+2*n)
	out[0] = byte(register >> 8)
	out[1] = byte(register)
	out[2] = byte(n >> 8)
	out[3] = byte(n)
	out[4] = byte(2 * n)
	for i, v := range values {
		out[5+2*i] = byte(v >> 8)
		out[5+2*i+1] = byte(v)
	}
	return out
}

// buildWriteMultipleCoilsRequest encodes FC15's address/count/bytecount/
// packed-bit data.
func buildWriteMultipleCoilsRequest(register uint16, values []bool) []byte {
	n := len(values)
	byteCount := (n + 7) / 8
	out := make([]byte, 5+byteCount)
	out[0] = byte(register >> 8)
	out[1] = byte(register)
	out[2] = byte(n >> 8)
	out[3] = byte(n)
	out[4] = byte(byteCount)
	for i, v := range values {
		if v {
			out[5+i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// parseRegisterResponse reads an FC03/04 response body (byte count + packed
// big-endian 16-bit registers) into a register slice.
func parseRegisterResponse(body []byte) ([]uint16, error) {
	if len(body) < 1 {
		return nil, core.InvalidResponseErr("empty register response")
	}
	byteCount := int(body[0])
	if len(body) < 1+byteCount || byteCount%2 != 0 {
		return nil, core.InvalidResponseErr("register response byte count mismatch")
	}
	regs := make([]uint16, byteCount/2)
	for i := range regs {
		regs[i] = uint16(body[1+2*i])<<8 | uint16(body[1+2*i+1])
	}
	return regs, nil
}

// parseBitResponse reads an FC01/02 response body (byte count + packed
// bits) into quantity bool values.
func parseBitResponse(body []byte, quantity int) ([]bool, error) {
	if len(body) < 1 {
		return nil, core.InvalidResponseErr("empty bit response")
	}
	byteCount := int(body[0])
	if len(body) < 1+byteCount {
		return nil, core.InvalidResponseErr("bit response byte count mismatch")
	}
	out := make([]bool, quantity)
	for i := 0; i < quantity; i++ {
		out[i] = body[1+i/8]&(1<<uint(i%8)) != 0
	}
	return out, nil
}

// crc16Modbus computes the CRC-16/MODBUS checksum (poly 0xA001, init
// 0xFFFF) used to validate RTU frames.
func crc16Modbus(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
