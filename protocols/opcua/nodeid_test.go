package opcua

import (
	"testing"

	"github.com/fieldgw/igw/core"
)

func TestNodeIDStringWithNamespace(t *testing.T) {
	got := nodeIDString(core.OpcUaAddress{NodeID: "s=Boiler.Temperature", NamespaceIndex: 2})
	if got != "ns=2;s=Boiler.Temperature" {
		t.Fatalf("nodeIDString = %q", got)
	}
}

func TestNodeIDStringDefaultNamespace(t *testing.T) {
	got := nodeIDString(core.OpcUaAddress{NodeID: "i=84"})
	if got != "i=84" {
		t.Fatalf("nodeIDString = %q, want i=84", got)
	}
}
