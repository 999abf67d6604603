package core

// PointConfig is the protocol-agnostic description of a single data point:
// what it is, where it lives, and how its raw value is interpreted. IDs
// must be unique within a channel; the factory skips points with
// Enabled=false.
type PointConfig struct {
	ID        uint32
	Name      string
	DataType  DataType
	Address   ProtocolAddress
	Transform TransformConfig
	// PollGroup is carried through config and the factory but not
	// consulted by any engine yet; reserved for future batch optimization.
	PollGroup string
	Enabled   bool
}

// NewPointConfig creates an enabled point with the identity transform.
func NewPointConfig(id uint32, dataType DataType, address ProtocolAddress) PointConfig {
	return PointConfig{
		ID:        id,
		DataType:  dataType,
		Address:   address,
		Transform: DefaultTransform(),
		Enabled:   true,
	}
}

func (p PointConfig) WithName(name string) PointConfig {
	p.Name = name
	return p
}

func (p PointConfig) WithTransform(t TransformConfig) PointConfig {
	p.Transform = t
	return p
}

func (p PointConfig) WithPollGroup(group string) PointConfig {
	p.PollGroup = group
	return p
}
