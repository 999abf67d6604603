package modbus

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/tarm/serial"

	"github.com/fieldgw/igw/core"
)

// transport sends one Modbus request PDU to a slave and returns the
// response PDU body (the bytes after the function code), translating a
// Modbus exception response into a ProtocolErr.
type transport interface {
	connect(ctx context.Context) error
	close() error
	execute(ctx context.Context, slaveID uint8, functionCode uint8, data []byte) ([]byte, error)
}

func newTransport(cfg Config) transport {
	if cfg.Mode == ModeRTU {
		return &rtuTransport{cfg: cfg}
	}
	return &tcpTransport{cfg: cfg}
}

// --- TCP (MBAP framing) ---

type tcpTransport struct {
	cfg    Config
	conn   net.Conn
	nextTx uint16
}

func (t *tcpTransport) connect(ctx context.Context) error {
	d := net.Dialer{Timeout: t.cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.cfg.Address)
	if err != nil {
		return core.ConnectionErr("modbus tcp dial %s: %v", t.cfg.Address, err)
	}
	t.conn = conn
	return nil
}

func (t *tcpTransport) close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *tcpTransport) execute(ctx context.Context, slaveID uint8, functionCode uint8, data []byte) ([]byte, error) {
	if t.conn == nil {
		return nil, core.ErrNotConnectedErr()
	}

	t.nextTx++
	txID := t.nextTx
	pdu := append([]byte{functionCode}, data...)
	length := uint16(1 + len(pdu)) // unit id + PDU

	frame := make([]byte, 7+len(pdu))
	frame[0] = byte(txID >> 8)
	frame[1] = byte(txID)
	frame[2] = 0
	frame[3] = 0
	frame[4] = byte(length >> 8)
	frame[5] = byte(length)
	frame[6] = slaveID
	copy(frame[7:], pdu)

	deadline := time.Now().Add(t.cfg.IOTimeout)
	_ = t.conn.SetWriteDeadline(deadline)
	if _, err := t.conn.Write(frame); err != nil {
		return nil, core.IOErr(err)
	}

	_ = t.conn.SetReadDeadline(deadline)
	header := make([]byte, 7)
	if _, err := io.ReadFull(t.conn, header); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, core.ErrReadTimeoutVal
		}
		return nil, core.IOErr(err)
	}
	respLen := int(header[4])<<8 | int(header[5])
	if respLen < 1 {
		return nil, core.InvalidResponseErr("mbap length field %d too short", respLen)
	}
	respPDU := make([]byte, respLen-1)
	if _, err := io.ReadFull(t.conn, respPDU); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, core.ErrReadTimeoutVal
		}
		return nil, core.IOErr(err)
	}
	return decodeResponsePDU(functionCode, respPDU)
}

// --- RTU (serial framing with CRC16) ---

type rtuTransport struct {
	cfg  Config
	port *serial.Port
}

func parityByte(p byte) serial.Parity {
	switch p {
	case 'E':
		return serial.ParityEven
	case 'O':
		return serial.ParityOdd
	default:
		return serial.ParityNone
	}
}

func (t *rtuTransport) connect(ctx context.Context) error {
	sc := &serial.Config{
		Name:        t.cfg.Address,
		Baud:        t.cfg.BaudRate,
		Size:        t.cfg.DataBits,
		Parity:      parityByte(t.cfg.Parity),
		StopBits:    serial.StopBits(t.cfg.StopBits),
		ReadTimeout: 100 * time.Millisecond,
	}
	port, err := serial.OpenPort(sc)
	if err != nil {
		return core.ConnectionErr("modbus rtu open %s: %v", t.cfg.Address, err)
	}
	t.port = port
	return nil
}

func (t *rtuTransport) close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// readExact accumulates exactly n bytes from the serial port, polling
// across the port's short per-call ReadTimeout until deadline elapses.
func readExact(port *serial.Port, n int, deadline time.Time) ([]byte, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if time.Now().After(deadline) {
			return nil, core.ErrReadTimeoutVal
		}
		read, err := port.Read(buf[:n-len(out)])
		if err != nil && err != io.EOF {
			return nil, core.IOErr(err)
		}
		out = append(out, buf[:read]...)
	}
	return out, nil
}

func (t *rtuTransport) execute(ctx context.Context, slaveID uint8, functionCode uint8, data []byte) ([]byte, error) {
	if t.port == nil {
		return nil, core.ErrNotConnectedErr()
	}

	adu := append([]byte{slaveID, functionCode}, data...)
	crc := crc16Modbus(adu)
	adu = append(adu, byte(crc), byte(crc>>8))

	if _, err := t.port.Write(adu); err != nil {
		return nil, core.IOErr(err)
	}

	deadline := time.Now().Add(t.cfg.IOTimeout)
	header, err := readExact(t.port, 2, deadline)
	if err != nil {
		return nil, err
	}
	respFC := header[1]

	var bodyLen int
	switch {
	case respFC&exceptionBit != 0:
		bodyLen = 1
	case respFC == FuncReadCoils || respFC == FuncReadDiscreteInputs || respFC == FuncReadHoldingRegisters || respFC == FuncReadInputRegisters:
		countByte, err := readExact(t.port, 1, deadline)
		if err != nil {
			return nil, err
		}
		rest, err := readExact(t.port, int(countByte[0])+2, deadline) // +2 for CRC
		if err != nil {
			return nil, err
		}
		body := append(countByte, rest[:len(rest)-2]...)
		return decodeResponsePDU(functionCode, append([]byte{respFC}, body...))
	default:
		bodyLen = 4 // write responses echo address+value/count
	}

	rest, err := readExact(t.port, bodyLen+2, deadline) // +2 for CRC
	if err != nil {
		return nil, err
	}
	body := rest[:len(rest)-2]
	return decodeResponsePDU(functionCode, append([]byte{respFC}, body...))
}

// decodeResponsePDU checks for a Modbus exception and otherwise strips the
// echoed function code, returning only the body.
func decodeResponsePDU(requestFC uint8, pdu []byte) ([]byte, error) {
	if len(pdu) < 1 {
		return nil, core.InvalidResponseErr("empty PDU")
	}
	respFC := pdu[0]
	if respFC == requestFC|exceptionBit {
		if len(pdu) < 2 {
			return nil, core.InvalidResponseErr("truncated exception response")
		}
		return nil, core.ModbusErr("exception %#x: %s", pdu[1], exceptionDescription(pdu[1]))
	}
	if respFC != requestFC {
		return nil, core.InvalidResponseErr("function code mismatch: want %#x, got %#x", requestFC, respFC)
	}
	return pdu[1:], nil
}
