package iec104

import "fmt"

const startFrame byte = 0x68

// apduSizeMax bounds a single APDU (control field + ASDU) per the
// companion standard's 253-byte limit.
const apduSizeMax = 253

// U-frame control-field function codes.
const (
	uStartDtActive  byte = 0x07
	uStartDtConfirm byte = 0x0B
	uStopDtActive   byte = 0x13
	uStopDtConfirm  byte = 0x23
	uTestFrActive   byte = 0x43
	uTestFrConfirm  byte = 0x83
)

// frameKind tags which of the three APCI forms was parsed.
type frameKind int

const (
	frameI frameKind = iota
	frameS
	frameU
)

type parsedFrame struct {
	kind     frameKind
	sendSN   uint16
	rcvSN    uint16
	function byte
	asdu     []byte
}

// newIFrame builds an I-frame APDU wrapping the given ASDU bytes.
func newIFrame(sendSN, rcvSN uint16, asdu []byte) ([]byte, error) {
	if len(asdu) > apduSizeMax-4 {
		return nil, fmt.Errorf("iec104: asdu of %d bytes exceeds apdu limit", len(asdu))
	}
	b := make([]byte, len(asdu)+6)
	b[0] = startFrame
	b[1] = byte(len(asdu) + 4)
	b[2] = byte(sendSN << 1)
	b[3] = byte(sendSN >> 7)
	b[4] = byte(rcvSN << 1)
	b[5] = byte(rcvSN >> 7)
	copy(b[6:], asdu)
	return b, nil
}

// newSFrame builds an S-frame acknowledging rcvSN received I-frames.
func newSFrame(rcvSN uint16) []byte {
	return []byte{startFrame, 4, 0x01, 0x00, byte(rcvSN << 1), byte(rcvSN >> 7)}
}

// newUFrame builds a U-frame carrying the given function bits.
func newUFrame(function byte) []byte {
	return []byte{startFrame, 4, function, 0x00, 0x00, 0x00}
}

// parseAPCI interprets a 4-byte control field plus trailing ASDU bytes
// already split off the wire by readFrame.
func parseAPCI(ctrl [4]byte, rest []byte) parsedFrame {
	if ctrl[0]&0x01 == 0 {
		return parsedFrame{
			kind:   frameI,
			sendSN: uint16(ctrl[0])>>1 | uint16(ctrl[1])<<7,
			rcvSN:  uint16(ctrl[2])>>1 | uint16(ctrl[3])<<7,
			asdu:   rest,
		}
	}
	if ctrl[0]&0x03 == 0x01 {
		return parsedFrame{
			kind:  frameS,
			rcvSN: uint16(ctrl[2])>>1 | uint16(ctrl[3])<<7,
		}
	}
	return parsedFrame{kind: frameU, function: ctrl[0]}
}
