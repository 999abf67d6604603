package j1939

// CanID is a decomposed 29-bit extended CAN identifier carrying a J1939
// PGN, priority and source address.
type CanID struct {
	Priority uint8
	DataPage uint8
	PF       uint8
	PS       uint8
	SA       uint8
}

// ParseCanID decomposes a raw 29-bit extended CAN arbitration ID.
func ParseCanID(id uint32) CanID {
	return CanID{
		Priority: uint8((id >> 26) & 0x7),
		DataPage: uint8((id >> 24) & 0x1),
		PF:       uint8((id >> 16) & 0xFF),
		PS:       uint8((id >> 8) & 0xFF),
		SA:       uint8(id & 0xFF),
	}
}

// PGN computes the parameter group number per the PDU1/PDU2 split: PF>=240
// is PDU2 (broadcast, PS folds into the PGN); PF<240 is PDU1
// (destination-specific, PS is a destination address and is not part of
// the PGN).
func (c CanID) PGN() uint32 {
	dp := uint32(c.DataPage) << 16
	pf := uint32(c.PF) << 8
	if c.PF >= 240 {
		return dp | pf | uint32(c.PS)
	}
	return dp | pf
}

// IsBroadcast reports whether this frame is PDU2 (no destination address).
func (c CanID) IsBroadcast() bool {
	return c.PF >= 240
}
