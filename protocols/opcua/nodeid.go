package opcua

import (
	"fmt"

	"github.com/fieldgw/igw/core"
)

// nodeIDString reconstructs the full gopcua node-id string
// ("ns=2;s=tag", "i=84", ...) from an OpcUaAddress, folding the
// namespace index back in when the factory split it out of the shorthand
// address ("i=N" | "s=Name" | ..., optionally prefixed by "ns=N;").
func nodeIDString(a core.OpcUaAddress) string {
	if a.NamespaceIndex == 0 {
		return a.NodeID
	}
	return fmt.Sprintf("ns=%d;%s", a.NamespaceIndex, a.NodeID)
}
