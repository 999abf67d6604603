package core

import "time"

// DataPoint is a single decoded reading, immutable once created.
type DataPoint struct {
	ID           uint32
	DataType     DataType
	Value        Value
	Quality      Quality
	ServerTS     time.Time
	SourceTS     *time.Time
}

// NewDataPoint creates a Good-quality point stamped with the current time.
func NewDataPoint(id uint32, dataType DataType, value Value) DataPoint {
	return DataPoint{
		ID:       id,
		DataType: dataType,
		Value:    value,
		Quality:  Good,
		ServerTS: time.Now(),
	}
}

// WithQuality returns a copy with the given quality.
func (p DataPoint) WithQuality(q Quality) DataPoint {
	p.Quality = q
	return p
}

// WithSourceTS returns a copy carrying a device-origin timestamp.
func (p DataPoint) WithSourceTS(ts time.Time) DataPoint {
	p.SourceTS = &ts
	return p
}

// DataBatch groups points by data type, preserving insertion order within
// each group. Iteration order is always Telemetry, Signal, Control,
// Adjustment.
type DataBatch struct {
	Telemetry  []DataPoint
	Signal     []DataPoint
	Control    []DataPoint
	Adjustment []DataPoint
}

// Add appends a point to the list matching its DataType.
func (b *DataBatch) Add(p DataPoint) {
	switch p.DataType {
	case Telemetry:
		b.Telemetry = append(b.Telemetry, p)
	case Signal:
		b.Signal = append(b.Signal, p)
	case Control:
		b.Control = append(b.Control, p)
	case Adjustment:
		b.Adjustment = append(b.Adjustment, p)
	}
}

// Len returns the total number of points across all four lists.
func (b *DataBatch) Len() int {
	return len(b.Telemetry) + len(b.Signal) + len(b.Control) + len(b.Adjustment)
}

// IsEmpty reports whether the batch holds no points.
func (b *DataBatch) IsEmpty() bool { return b.Len() == 0 }

// Merge appends another batch's points list-wise, preserving order.
func (b *DataBatch) Merge(other DataBatch) {
	b.Telemetry = append(b.Telemetry, other.Telemetry...)
	b.Signal = append(b.Signal, other.Signal...)
	b.Control = append(b.Control, other.Control...)
	b.Adjustment = append(b.Adjustment, other.Adjustment...)
}

// Iter returns all points in T, S, C, A order.
func (b *DataBatch) Iter() []DataPoint {
	out := make([]DataPoint, 0, b.Len())
	out = append(out, b.Telemetry...)
	out = append(out, b.Signal...)
	out = append(out, b.Control...)
	out = append(out, b.Adjustment...)
	return out
}
