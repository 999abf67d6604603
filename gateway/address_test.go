package gateway

import (
	"testing"

	"github.com/fieldgw/igw/core"
)

func TestParseModbusAddress(t *testing.T) {
	addr, err := ParseAddress("modbus", "1:100")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Modbus == nil {
		t.Fatalf("expected a modbus address, got %+v", addr)
	}
	if addr.Modbus.SlaveID != 1 || addr.Modbus.Register != 100 || addr.Modbus.FunctionCode != 3 {
		t.Fatalf("unexpected modbus address: %+v", addr.Modbus)
	}
}

func TestParseModbusAddressWithFunctionCode(t *testing.T) {
	addr, err := ParseAddress("modbus", "2:50:4")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Modbus.SlaveID != 2 || addr.Modbus.Register != 50 || addr.Modbus.FunctionCode != 4 {
		t.Fatalf("unexpected modbus address: %+v", addr.Modbus)
	}
}

func TestParseModbusAddressInvalid(t *testing.T) {
	if _, err := ParseAddress("modbus", "x:y"); err == nil {
		t.Fatal("expected an error for a non-numeric modbus address")
	}
	if _, err := ParseAddress("modbus", "1"); err == nil {
		t.Fatal("expected an error for a modbus address missing the register field")
	}
}

func TestParseIec104Address(t *testing.T) {
	addr, err := ParseAddress("iec104", "2001")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Iec104.IOA != 2001 || addr.Iec104.TypeID != 0 {
		t.Fatalf("unexpected iec104 address: %+v", addr.Iec104)
	}

	addr, err = ParseAddress("iec104", "2001:13")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Iec104.IOA != 2001 || addr.Iec104.TypeID != 13 {
		t.Fatalf("unexpected iec104 address: %+v", addr.Iec104)
	}
}

func TestParseOpcUaAddress(t *testing.T) {
	addr, err := ParseAddress("opcua", "ns=2;s=Temperature")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.OpcUa.NamespaceIndex != 2 || addr.OpcUa.NodeID != "s=Temperature" {
		t.Fatalf("unexpected opcua address: %+v", addr.OpcUa)
	}
}

func TestParseOpcUaAddressNoNamespace(t *testing.T) {
	addr, err := ParseAddress("opcua", "i=1001")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.OpcUa.NamespaceIndex != 0 || addr.OpcUa.NodeID != "i=1001" {
		t.Fatalf("unexpected opcua address: %+v", addr.OpcUa)
	}
}

func TestParseOpcUaAddressInvalid(t *testing.T) {
	if _, err := ParseAddress("opcua", "Temperature"); err == nil {
		t.Fatal("expected an error for an opcua node id missing its type prefix")
	}
}

func TestParseVirtualAddress(t *testing.T) {
	addr, err := ParseAddress("virtual", "setpoint.tank1")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Virtual == nil || addr.Virtual.Tag != "setpoint.tank1" {
		t.Fatalf("unexpected virtual address: %+v", addr.Virtual)
	}
}

func TestParseCanAddressIsGeneric(t *testing.T) {
	addr, err := ParseAddress("can", "0x0CF00400:0:0:8")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Generic == nil || *addr.Generic != "0x0CF00400:0:0:8" {
		t.Fatalf("unexpected can address: %+v", addr.Generic)
	}
}

func TestParseGpioAddress(t *testing.T) {
	addr, err := ParseAddress("gpio", "17")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Gpio.Chip != "gpiochip0" || addr.Gpio.Pin != 17 || addr.Gpio.Direction != core.GpioInput {
		t.Fatalf("unexpected gpio address: %+v", addr.Gpio)
	}

	addr, err = ParseAddress("gpio", "gpiochip1:4:output")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Gpio.Chip != "gpiochip1" || addr.Gpio.Pin != 4 || addr.Gpio.Direction != core.GpioOutput {
		t.Fatalf("unexpected gpio address: %+v", addr.Gpio)
	}
}

func TestParseGpioAddressDirectionSynonyms(t *testing.T) {
	for _, dir := range []string{"in", "di", "input"} {
		addr, err := ParseAddress("gpio", "gpiochip0:1:"+dir)
		if err != nil {
			t.Fatalf("ParseAddress(%q): %v", dir, err)
		}
		if addr.Gpio.Direction != core.GpioInput {
			t.Fatalf("direction %q did not resolve to input", dir)
		}
	}
	for _, dir := range []string{"out", "do", "output"} {
		addr, err := ParseAddress("gpio", "gpiochip0:1:"+dir)
		if err != nil {
			t.Fatalf("ParseAddress(%q): %v", dir, err)
		}
		if addr.Gpio.Direction != core.GpioOutput {
			t.Fatalf("direction %q did not resolve to output", dir)
		}
	}
}

func TestParseAddressUnknownProtocol(t *testing.T) {
	if _, err := ParseAddress("bacnet", "1"); err == nil {
		t.Fatal("expected an error for an unsupported protocol")
	}
}
