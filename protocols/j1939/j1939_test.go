package j1939

import "testing"

func TestParseCanIDBroadcast(t *testing.T) {
	// 0x18FEEE00: priority=6, dp=0, pf=0xFE (PDU2), ps=0xEE, sa=0x00.
	id := ParseCanID(0x18FEEE00)
	if id.Priority != 6 || id.DataPage != 0 || id.PF != 0xFE || id.PS != 0xEE || id.SA != 0 {
		t.Fatalf("unexpected decomposition: %+v", id)
	}
	if !id.IsBroadcast() {
		t.Fatal("pf=0xFE should be PDU2/broadcast")
	}
	if pgn := id.PGN(); pgn != 65262 {
		t.Fatalf("pgn = %d, want 65262", pgn)
	}
}

func TestParseCanIDDestinationSpecific(t *testing.T) {
	// TSC1: pf=0xF0 (240... actually use a PDU1 example, pf<240).
	id := ParseCanID(0x0CE0FF00) // pf=0xE0=224 < 240, PDU1
	if id.IsBroadcast() {
		t.Fatal("pf=0xE0 should be PDU1/destination-specific")
	}
	if pgn := id.PGN(); pgn != 0xE000 {
		t.Fatalf("pgn = %#x, want 0xE000 (ps excluded)", pgn)
	}
}

// J1939 engine speed: CAN-ID 0x0CF00400 (PGN 61444, EEC1), data bytes
// laid out per the standard EEC1 frame (engine speed at bytes 4-5,
// 1-indexed; byte indices 3-4 zero-indexed). Raw 0x01F4 = 500, scale
// 0.125 => 62.5 rpm.
func TestDecodeFrameEngineSpeed(t *testing.T) {
	frame := Frame{
		ID:   0x0CF00400,
		Data: []byte{0x00, 0x00, 0x00, 0xF4, 0x01, 0x00, 0x00, 0x00},
	}
	pgn, spns := DecodeFrame(frame)
	if pgn != PgnEEC1 {
		t.Fatalf("pgn = %d, want %d", pgn, PgnEEC1)
	}
	var found bool
	for _, s := range spns {
		if s.SPN == 190 {
			found = true
			f, ok := s.Value.AsFloat()
			if !ok || f < 62.499 || f > 62.501 {
				t.Fatalf("SPN190 value = %v, want ~62.5", f)
			}
		}
	}
	if !found {
		t.Fatal("SPN 190 not decoded")
	}
}

// J1939 coolant temp not-available: PGN 65262 (ET1), data[0]=0xFF.
// SPN 110 has bit_length 8 so max=255; raw=255 >= max-1 => skipped.
func TestDecodeFrameCoolantTempNotAvailable(t *testing.T) {
	frame := Frame{
		ID:   0x18FEEE00,
		Data: []byte{0xFF, 0, 0, 0, 0, 0, 0, 0},
	}
	_, spns := DecodeFrame(frame)
	for _, s := range spns {
		if s.SPN == 110 {
			t.Fatalf("SPN 110 should not be emitted when not-available, got %+v", s)
		}
	}
}

// A raw value equal to max or max-1 (for its bit_length) always yields no
// point, checked directly against isNotAvailable.
func TestInvariantNotAvailableBoundary(t *testing.T) {
	if !isNotAvailable(254, 8) || !isNotAvailable(255, 8) {
		t.Fatal("254 and 255 should both be not-available for an 8-bit field")
	}
	if isNotAvailable(253, 8) {
		t.Fatal("253 should be available for an 8-bit field")
	}
}

// An all-zero data frame decodes every emitted SPN to exactly its offset.
func TestInvariantAllZeroYieldsOffset(t *testing.T) {
	zero := make([]byte, 8)
	for _, def := range spnDefs {
		raw, ok := extractRaw(zero, def)
		if !ok {
			continue
		}
		if isNotAvailable(raw, def.BitLength) {
			continue
		}
		got := float64(raw)*def.Scale + def.Offset
		if got != def.Offset {
			t.Fatalf("SPN %d: all-zero value = %v, want offset %v", def.SPN, got, def.Offset)
		}
	}
}

// The real table must already be internally unique; this additionally
// proves buildSpnTable panics on an actual duplicate SPN.
func TestBuildSpnTablePanicsOnDuplicate(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate SPN")
		}
	}()
	buildSpnTable([]SpnDef{
		{SPN: 190, Name: "a", PGN: 1},
		{SPN: 190, Name: "b", PGN: 2},
	})
}

func TestSpnTableHasNoDuplicates(t *testing.T) {
	// spnTable is built by init(); if the package loaded without panicking,
	// every SPN in spnDefs is already unique. Cross-check count matches.
	if len(spnTable) != len(spnDefs) {
		t.Fatalf("spnTable has %d entries, spnDefs has %d: a duplicate was silently dropped", len(spnTable), len(spnDefs))
	}
}
