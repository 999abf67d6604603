package modbus

import (
	"testing"

	"github.com/fieldgw/igw/core"
)

func mustPoint(id uint32, addr core.ModbusAddress) core.PointConfig {
	return core.NewPointConfig(id, core.Telemetry, core.ModbusAddr(addr))
}

func TestBuildGroupsCoalescesContiguous(t *testing.T) {
	points := []core.PointConfig{
		mustPoint(1, core.HoldingRegister(1, 100, core.FormatUInt16)),
		mustPoint(2, core.HoldingRegister(1, 101, core.FormatUInt16)),
		mustPoint(3, core.HoldingRegister(1, 200, core.FormatFloat32)),
	}

	groups := buildGroups(points)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group (single slave+fc), got %d", len(groups))
	}
	g := groups[0]
	if g.slaveID != 1 || g.functionCode != 3 {
		t.Fatalf("unexpected group key: slave=%d fc=%d", g.slaveID, g.functionCode)
	}
	if len(g.ranges) != 2 {
		t.Fatalf("expected 2 ranges (100-101 contiguous, 200 separate), got %d", len(g.ranges))
	}
	if g.ranges[0].start != 100 || g.ranges[0].count != 2 {
		t.Fatalf("range 0 = %+v, want start=100 count=2", g.ranges[0])
	}
	if g.ranges[1].start != 200 || g.ranges[1].count != 2 {
		t.Fatalf("range 1 = %+v, want start=200 count=2", g.ranges[1])
	}
}

func TestBuildGroupsSplitsBySlaveAndFunctionCode(t *testing.T) {
	points := []core.PointConfig{
		mustPoint(1, core.HoldingRegister(1, 0, core.FormatUInt16)),
		mustPoint(2, core.HoldingRegister(2, 0, core.FormatUInt16)),
		mustPoint(3, core.Coil(1, 0)),
	}
	groups := buildGroups(points)
	if len(groups) != 3 {
		t.Fatalf("expected 3 distinct groups, got %d", len(groups))
	}
}

func TestBuildGroupsExcludesWriteOnlyFunctionCodes(t *testing.T) {
	points := []core.PointConfig{
		mustPoint(1, core.HoldingRegister(1, 100, core.FormatUInt16)),
		core.NewPointConfig(2, core.Control, core.ModbusAddr(core.ModbusAddress{
			SlaveID: 1, FunctionCode: FuncWriteSingleCoil, Register: 0, Format: core.FormatBool,
		})),
	}

	groups := buildGroups(points)
	if len(groups) != 1 {
		t.Fatalf("expected only the read group to survive, got %d groups", len(groups))
	}
	g := groups[0]
	if g.functionCode != 3 {
		t.Fatalf("unexpected group function code: %d", g.functionCode)
	}
	for _, r := range g.ranges {
		for _, p := range r.points {
			if p.ID == 2 {
				t.Fatal("write-only FC05 point should never appear in the polling plan")
			}
		}
	}
}

func TestBuildGroupsSkipsDisabledAndNonModbus(t *testing.T) {
	disabled := mustPoint(1, core.HoldingRegister(1, 0, core.FormatUInt16))
	disabled.Enabled = false
	nonModbus := core.NewPointConfig(2, core.Telemetry, core.VirtualAddr(core.VirtualAddress{Tag: "x"}))

	groups := buildGroups([]core.PointConfig{disabled, nonModbus})
	if len(groups) != 0 {
		t.Fatalf("expected 0 groups, got %d", len(groups))
	}
}
