// Package iec104 implements an event-driven channel speaking a compact
// subset of IEC 60870-5-104: APCI/U-S-I frame sequencing over TCP and ASDU
// encode/decode for single-point, measured-value-float, single-command
// and set-point-float information objects.
package iec104

import (
	"encoding/binary"
	"fmt"
	"math"
)

// TypeID is the ASDU type identification (companion standard 101, 7.2.1).
// Only the subset this gateway decodes/encodes is named; EncodeAsdu and
// DecodeAsdu reject any other value as an unsupported type id.
type TypeID uint8

const (
	MSpNa1 TypeID = 1  // single-point information
	MMeNc1 TypeID = 13 // measured value, short floating point
	CScNa1 TypeID = 45 // single command
	CSeNc1 TypeID = 50 // set-point command, short floating point
)

// Cause of transmission, companion standard 101 subclass 7.2.3 (the subset
// this channel emits and recognizes).
type Cause uint8

const (
	CauseSpontaneous    Cause = 3
	CauseRequest        Cause = 5
	CauseActivation     Cause = 6
	CauseActivationCon  Cause = 7
	CauseDeactivation   Cause = 8
	CauseUnknownTypeID  Cause = 44
	CauseUnknownCOT     Cause = 45
	CauseUnknownCA      Cause = 46
	CauseUnknownIOA     Cause = 47
)

// InformationObject is one decoded or to-be-encoded point within an ASDU.
type InformationObject struct {
	IOA     uint32
	Value   float64 // measured value, or 0/1 for single-point/command
	Invalid bool
}

// Asdu is a decoded Application Service Data Unit: type, cause of
// transmission, originator/common address, and its information objects.
// This channel always uses a 2-octet cause field (cause + originator
// address) and a 2-octet common address, the IEC-104 defaults.
type Asdu struct {
	Type          TypeID
	Cause         Cause
	Test          bool
	Negative      bool
	OriginAddr    uint8
	CommonAddress uint16
	Objects       []InformationObject
}

// infoObjSize is the fixed wire size, in bytes, of one information
// object's value+quality payload (IOA is separate, always 3 bytes).
func infoObjSize(t TypeID) (int, error) {
	switch t {
	case MSpNa1, CScNa1:
		return 1, nil
	case MMeNc1, CSeNc1:
		return 5, nil
	default:
		return 0, fmt.Errorf("iec104: unsupported type id %d", t)
	}
}

// EncodeAsdu serializes an Asdu to its wire bytes. Every object shares the
// ASDU's type id (no sequence-of-equal-type compression: VSQ.SQ is always
// 0, one information object per address).
func EncodeAsdu(a Asdu) ([]byte, error) {
	size, err := infoObjSize(a.Type)
	if err != nil {
		return nil, err
	}
	if len(a.Objects) == 0 || len(a.Objects) > 127 {
		return nil, fmt.Errorf("iec104: asdu object count %d out of range", len(a.Objects))
	}

	buf := make([]byte, 6+len(a.Objects)*(3+size))
	buf[0] = byte(a.Type)
	buf[1] = byte(len(a.Objects)) // VSQ: SQ=0, number of objects

	causeByte := byte(a.Cause) & 0x3F
	if a.Test {
		causeByte |= 0x80
	}
	if a.Negative {
		causeByte |= 0x40
	}
	buf[2] = causeByte
	buf[3] = a.OriginAddr
	binary.LittleEndian.PutUint16(buf[4:6], a.CommonAddress)

	off := 6
	for _, obj := range a.Objects {
		buf[off] = byte(obj.IOA)
		buf[off+1] = byte(obj.IOA >> 8)
		buf[off+2] = byte(obj.IOA >> 16)
		if err := encodeValue(a.Type, obj, buf[off+3:off+3+size]); err != nil {
			return nil, err
		}
		off += 3 + size
	}
	return buf, nil
}

func encodeValue(t TypeID, obj InformationObject, dst []byte) error {
	switch t {
	case MSpNa1, CScNa1:
		var siq byte
		if obj.Value != 0 {
			siq |= 0x01
		}
		if obj.Invalid {
			siq |= 0x80
		}
		dst[0] = siq
	case MMeNc1, CSeNc1:
		binary.LittleEndian.PutUint32(dst[:4], math.Float32bits(float32(obj.Value)))
		var qds byte
		if obj.Invalid {
			qds |= 0x80
		}
		dst[4] = qds
	default:
		return fmt.Errorf("iec104: unsupported type id %d", t)
	}
	return nil
}

// DecodeAsdu parses one ASDU from wire bytes.
func DecodeAsdu(raw []byte) (Asdu, error) {
	if len(raw) < 6 {
		return Asdu{}, fmt.Errorf("iec104: asdu too short (%d bytes)", len(raw))
	}
	typ := TypeID(raw[0])
	count := int(raw[1] &^ 0x80) // SQ bit ignored: this channel never emits sequences
	size, err := infoObjSize(typ)
	if err != nil {
		return Asdu{}, err
	}

	a := Asdu{
		Type:          typ,
		Test:          raw[2]&0x80 != 0,
		Negative:      raw[2]&0x40 != 0,
		Cause:         Cause(raw[2] & 0x3F),
		OriginAddr:    raw[3],
		CommonAddress: binary.LittleEndian.Uint16(raw[4:6]),
	}

	off := 6
	for i := 0; i < count; i++ {
		if off+3+size > len(raw) {
			return Asdu{}, fmt.Errorf("iec104: asdu truncated at object %d", i)
		}
		ioa := uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16
		obj, err := decodeValue(typ, raw[off+3:off+3+size])
		if err != nil {
			return Asdu{}, err
		}
		obj.IOA = ioa
		a.Objects = append(a.Objects, obj)
		off += 3 + size
	}
	return a, nil
}

func decodeValue(t TypeID, src []byte) (InformationObject, error) {
	switch t {
	case MSpNa1, CScNa1:
		siq := src[0]
		return InformationObject{Value: float64(siq & 0x01), Invalid: siq&0x80 != 0}, nil
	case MMeNc1, CSeNc1:
		f := math.Float32frombits(binary.LittleEndian.Uint32(src[:4]))
		qds := src[4]
		return InformationObject{Value: float64(f), Invalid: qds&0x80 != 0}, nil
	default:
		return InformationObject{}, fmt.Errorf("iec104: unsupported type id %d", t)
	}
}

// telemetryType and signalType pick the default ASDU type for analog and
// digital points, used when a configured address leaves type_id at 0
// ("inferred from data").
func telemetryType(write bool) TypeID {
	if write {
		return CSeNc1
	}
	return MMeNc1
}

func signalType(write bool) TypeID {
	if write {
		return CScNa1
	}
	return MSpNa1
}
