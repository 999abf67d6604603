package router

import "github.com/fieldgw/igw/core"

// TriggerKind selects which condition a PointMapping evaluates before
// forwarding a point.
type TriggerKind int

const (
	TriggerAlways TriggerKind = iota
	TriggerOnChange
	TriggerThreshold
	TriggerInterval
	TriggerDeadband
)

// TriggerCondition is a closed sum over the five forwarding conditions a
// mapping can apply. The zero value is TriggerAlways.
type TriggerCondition struct {
	Kind TriggerKind

	// Threshold bounds; either may be nil for an open interval.
	Min *float64
	Max *float64

	// Interval's minimum spacing between forwards.
	MinIntervalMs uint64

	// Deadband's forward threshold.
	Deadband float64
}

func Always() TriggerCondition { return TriggerCondition{Kind: TriggerAlways} }

func OnChange() TriggerCondition { return TriggerCondition{Kind: TriggerOnChange} }

func Threshold(min, max *float64) TriggerCondition {
	return TriggerCondition{Kind: TriggerThreshold, Min: min, Max: max}
}

func Interval(minIntervalMs uint64) TriggerCondition {
	return TriggerCondition{Kind: TriggerInterval, MinIntervalMs: minIntervalMs}
}

func Deadband(deadband float64) TriggerCondition {
	return TriggerCondition{Kind: TriggerDeadband, Deadband: deadband}
}

// PointMapping is one routing rule: forward a source channel's point to a
// target channel, optionally under another point id, subject to a trigger
// and a transform.
type PointMapping struct {
	SourceChannel uint32
	SourcePoint   uint32
	TargetChannel uint32
	// TargetPoint, when nil, defaults to SourcePoint.
	TargetPoint *uint32
	Transform   core.TransformConfig
	Enabled     bool
	// Trigger, when nil, behaves as TriggerAlways.
	Trigger *TriggerCondition
}

// Direct creates a simple enabled 1:1 mapping with an explicit target
// point id and the Always trigger.
func Direct(sourceChannel, sourcePoint, targetChannel, targetPoint uint32) PointMapping {
	return PointMapping{
		SourceChannel: sourceChannel,
		SourcePoint:   sourcePoint,
		TargetChannel: targetChannel,
		TargetPoint:   &targetPoint,
		Transform:     core.DefaultTransform(),
		Enabled:       true,
	}
}

// SameID creates a mapping that keeps the same point id on both ends.
func SameID(sourceChannel, pointID, targetChannel uint32) PointMapping {
	return Direct(sourceChannel, pointID, targetChannel, pointID)
}

func (m PointMapping) WithTransform(t core.TransformConfig) PointMapping {
	m.Transform = t
	return m
}

func (m PointMapping) WithTrigger(t TriggerCondition) PointMapping {
	m.Trigger = &t
	return m
}

func (m PointMapping) WithEnabled(enabled bool) PointMapping {
	m.Enabled = enabled
	return m
}

// EffectiveTargetPoint returns TargetPoint if set, else SourcePoint.
func (m PointMapping) EffectiveTargetPoint() uint32 {
	if m.TargetPoint != nil {
		return *m.TargetPoint
	}
	return m.SourcePoint
}

func (m PointMapping) trigger() TriggerCondition {
	if m.Trigger != nil {
		return *m.Trigger
	}
	return Always()
}

// RoutingTable is an ordered list of point mappings.
type RoutingTable struct {
	Mappings []PointMapping
}

func NewRoutingTable() *RoutingTable { return &RoutingTable{} }

func (t *RoutingTable) Add(m PointMapping) { t.Mappings = append(t.Mappings, m) }

func (t *RoutingTable) AddAll(ms []PointMapping) { t.Mappings = append(t.Mappings, ms...) }

// FindBySource returns every enabled mapping whose source matches.
func (t *RoutingTable) FindBySource(channelID, pointID uint32) []PointMapping {
	var out []PointMapping
	for _, m := range t.Mappings {
		if m.Enabled && m.SourceChannel == channelID && m.SourcePoint == pointID {
			out = append(out, m)
		}
	}
	return out
}

// TargetsForChannel returns every enabled mapping targeting channelID.
func (t *RoutingTable) TargetsForChannel(channelID uint32) []PointMapping {
	var out []PointMapping
	for _, m := range t.Mappings {
		if m.Enabled && m.TargetChannel == channelID {
			out = append(out, m)
		}
	}
	return out
}

func (t *RoutingTable) EnabledMappings() []PointMapping {
	var out []PointMapping
	for _, m := range t.Mappings {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

func (t *RoutingTable) Len() int { return len(t.Mappings) }
