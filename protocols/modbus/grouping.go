package modbus

import (
	"sort"

	"github.com/fieldgw/igw/core"
)

// registerRange is one contiguous span of addressable units (registers for
// FC03/04, coils/discrete-inputs for FC01/02) fetched in a single request.
type registerRange struct {
	start  uint16
	count  uint16
	points []core.PointConfig
}

// slaveGroup is every range to fetch from one slave under one function code.
type slaveGroup struct {
	slaveID      uint8
	functionCode uint8
	ranges       []registerRange
}

// buildGroups partitions enabled Modbus points by (slave_id, function_code)
// and coalesces each partition's points into contiguous address ranges. A
// range only ever merges points whose spans are fully contiguous; no
// internal gap is tolerated.
func buildGroups(points []core.PointConfig) []slaveGroup {
	type key struct {
		slave uint8
		fc    uint8
	}
	byKey := make(map[key][]core.PointConfig)
	var order []key

	for _, p := range points {
		if !p.Enabled || p.Address.Modbus == nil {
			continue
		}
		addr := *p.Address.Modbus
		if !IsReadFunction(addr.FunctionCode) {
			continue
		}
		k := key{slave: addr.SlaveID, fc: addr.FunctionCode}
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], p)
	}

	groups := make([]slaveGroup, 0, len(order))
	for _, k := range order {
		pts := byKey[k]
		sort.Slice(pts, func(i, j int) bool {
			return pts[i].Address.Modbus.Register < pts[j].Address.Modbus.Register
		})

		var ranges []registerRange
		for _, p := range pts {
			addr := *p.Address.Modbus
			span := addr.RegisterCount()
			if len(ranges) > 0 {
				last := &ranges[len(ranges)-1]
				if addr.Register == last.start+last.count {
					last.count += span
					last.points = append(last.points, p)
					continue
				}
			}
			ranges = append(ranges, registerRange{start: addr.Register, count: span, points: []core.PointConfig{p}})
		}

		groups = append(groups, slaveGroup{slaveID: k.slave, functionCode: k.fc, ranges: ranges})
	}
	return groups
}
