package virtual

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fieldgw/igw/core"
)

// encodeDataPoint serializes a DataPoint to a compact fixed-layout record
// for bbolt storage: data type, value kind, value, quality, server
// timestamp (unix nanos). The point ID is the bucket key, not part of the
// record.
func encodeDataPoint(dp core.DataPoint) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(dp.DataType))
	buf.WriteByte(byte(dp.Value.Kind()))

	switch dp.Value.Kind() {
	case core.KindFloat:
		f, _ := dp.Value.AsFloat()
		binary.Write(&buf, binary.BigEndian, f)
	case core.KindInteger:
		i, _ := dp.Value.AsInt()
		binary.Write(&buf, binary.BigEndian, i)
	case core.KindBool:
		b, _ := dp.Value.AsBool()
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case core.KindString:
		s, _ := dp.Value.AsString()
		binary.Write(&buf, binary.BigEndian, uint32(len(s)))
		buf.WriteString(s)
	case core.KindBytes:
		by, _ := dp.Value.AsBytes()
		binary.Write(&buf, binary.BigEndian, uint32(len(by)))
		buf.Write(by)
	}

	buf.WriteByte(byte(dp.Quality))
	binary.Write(&buf, binary.BigEndian, dp.ServerTS.UnixNano())
	return buf.Bytes()
}

// decodeDataPoint reverses encodeDataPoint. The caller is expected to set
// dp.ID from the bucket key.
func decodeDataPoint(raw []byte) (core.DataPoint, error) {
	r := bytes.NewReader(raw)
	var dataType, valueKind byte
	if err := binary.Read(r, binary.BigEndian, &dataType); err != nil {
		return core.DataPoint{}, err
	}
	if err := binary.Read(r, binary.BigEndian, &valueKind); err != nil {
		return core.DataPoint{}, err
	}

	var value core.Value
	switch core.ValueKind(valueKind) {
	case core.KindFloat:
		var f float64
		if err := binary.Read(r, binary.BigEndian, &f); err != nil {
			return core.DataPoint{}, err
		}
		value = core.Float(f)
	case core.KindInteger:
		var i int64
		if err := binary.Read(r, binary.BigEndian, &i); err != nil {
			return core.DataPoint{}, err
		}
		value = core.Integer(i)
	case core.KindBool:
		var b byte
		if err := binary.Read(r, binary.BigEndian, &b); err != nil {
			return core.DataPoint{}, err
		}
		value = core.Bool(b != 0)
	case core.KindString:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return core.DataPoint{}, err
		}
		s := make([]byte, n)
		if _, err := r.Read(s); err != nil {
			return core.DataPoint{}, err
		}
		value = core.String(string(s))
	case core.KindBytes:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return core.DataPoint{}, err
		}
		by := make([]byte, n)
		if _, err := r.Read(by); err != nil {
			return core.DataPoint{}, err
		}
		value = core.Bytes(by)
	default:
		value = core.Null
	}

	var quality byte
	if err := binary.Read(r, binary.BigEndian, &quality); err != nil {
		return core.DataPoint{}, err
	}
	var ts int64
	if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
		return core.DataPoint{}, err
	}

	return core.DataPoint{
		DataType: core.DataType(dataType),
		Value:    value,
		Quality:  core.Quality(quality),
		ServerTS: time.Unix(0, ts),
	}, nil
}

func keyToID(key []byte) (uint32, error) {
	var id uint32
	_, err := fmt.Sscanf(string(key), "%d", &id)
	return id, err
}
