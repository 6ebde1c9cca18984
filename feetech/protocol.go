// Package feetech implements the Feetech serial bus servo protocol: packet
// framing, the request/response transaction engine, per-model control tables,
// and batched sync read/write operations over a shared half-duplex link.
package feetech

import (
	"encoding/binary"
	"fmt"
)

// Protocol version constants.
const (
	ProtocolSTS = iota // STS/SMS series: little-endian, TTL level
	ProtocolSCS        // SCS series: big-endian, TTL level
)

// Instruction codes per the Feetech protocol specification.
const (
	InstPing         byte = 0x01
	InstRead         byte = 0x02
	InstWrite        byte = 0x03
	InstRegWrite     byte = 0x04
	InstAction       byte = 0x05
	InstFactoryReset byte = 0x06
	InstReboot       byte = 0x08
	InstSyncRead     byte = 0x82
	InstSyncWrite    byte = 0x83
)

// Special ID values.
const (
	BroadcastID = 0xFE
	MaxServoID  = 0xFD
)

// Packet header bytes.
const (
	headerByte1 = 0xFF
	headerByte2 = 0xFF
)

// minPacketLen is the shortest possible frame: header(2) + id(1) +
// length(1) + error(1) + checksum(1).
const minPacketLen = 6

// StatusError is the error bitmask servos report in the status byte of a
// response.
type StatusError byte

const (
	ErrVoltage     StatusError = 1 << 0
	ErrAngleLimit  StatusError = 1 << 1
	ErrOverheat    StatusError = 1 << 2
	ErrRange       StatusError = 1 << 3
	ErrChecksum    StatusError = 1 << 4
	ErrOverload    StatusError = 1 << 5
	ErrInstruction StatusError = 1 << 6
)

func (e StatusError) Error() string {
	if e == 0 {
		return "no error"
	}

	var msgs []string
	if e&ErrVoltage != 0 {
		msgs = append(msgs, "voltage")
	}
	if e&ErrAngleLimit != 0 {
		msgs = append(msgs, "angle limit")
	}
	if e&ErrOverheat != 0 {
		msgs = append(msgs, "overheat")
	}
	if e&ErrRange != 0 {
		msgs = append(msgs, "range")
	}
	if e&ErrChecksum != 0 {
		msgs = append(msgs, "checksum")
	}
	if e&ErrOverload != 0 {
		msgs = append(msgs, "overload")
	}
	if e&ErrInstruction != 0 {
		msgs = append(msgs, "instruction")
	}

	return fmt.Sprintf("servo status error: %v", msgs)
}

// HasError returns true if any error flag is set.
func (e StatusError) HasError() bool {
	return e != 0
}

// Packet represents one checksum-protected unit of the wire protocol.
type Packet struct {
	ID          byte
	Instruction byte
	Parameters  []byte
	Error       StatusError // Only valid for response packets
}

// Protocol handles packet encoding/decoding for a specific protocol version.
// All methods are pure: no I/O, deterministic.
type Protocol struct {
	version   int
	byteOrder binary.ByteOrder
}

// NewProtocol creates a protocol handler for the specified version.
func NewProtocol(version int) *Protocol {
	p := &Protocol{version: version}
	if version == ProtocolSCS {
		p.byteOrder = binary.BigEndian
	} else {
		p.byteOrder = binary.LittleEndian
	}
	return p
}

// ByteOrder returns the byte order for multi-byte values.
func (p *Protocol) ByteOrder() binary.ByteOrder {
	return p.byteOrder
}

// Version returns the protocol version.
func (p *Protocol) Version() int {
	return p.version
}

// EncodeWord converts a 16-bit value to bytes in protocol byte order.
func (p *Protocol) EncodeWord(value uint16) []byte {
	buf := make([]byte, 2)
	p.byteOrder.PutUint16(buf, value)
	return buf
}

// DecodeWord converts bytes to a 16-bit value using protocol byte order.
func (p *Protocol) DecodeWord(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return p.byteOrder.Uint16(data)
}

// Encode constructs a wire-format packet. The length field is computed from
// the parameter count, never supplied by the caller.
func (p *Protocol) Encode(pkt Packet) []byte {
	length := byte(len(pkt.Parameters) + 2) // params + instruction + checksum

	// Build packet: header(2) + id(1) + length(1) + instruction(1) + params(n) + checksum(1)
	buf := make([]byte, 0, minPacketLen+len(pkt.Parameters))
	buf = append(buf, headerByte1, headerByte2)
	buf = append(buf, pkt.ID)
	buf = append(buf, length)
	buf = append(buf, pkt.Instruction)
	buf = append(buf, pkt.Parameters...)

	checksum := p.calculateChecksum(buf[2:]) // From ID onwards
	buf = append(buf, checksum)

	return buf
}

// Decode parses one complete wire-format frame. The frame must start at
// offset 0; resynchronization against garbage is the stream reader's job,
// not the codec's. A frame that fails checksum validation is rejected
// outright, never partially trusted.
func (p *Protocol) Decode(data []byte) (Packet, error) {
	if len(data) < minPacketLen {
		return Packet{}, fmt.Errorf("%w: packet too short: %d bytes", ErrInvalidResponse, len(data))
	}

	if data[0] != headerByte1 || data[1] != headerByte2 {
		return Packet{}, fmt.Errorf("%w: bad header: % X", ErrInvalidResponse, data[:2])
	}

	id := data[2]
	length := int(data[3])

	totalLen := 4 + length // header(2) + id(1) + length(1) + [length bytes]
	if length < 2 || len(data) != totalLen {
		return Packet{}, fmt.Errorf("%w: length field %d disagrees with %d available bytes", ErrInvalidResponse, length, len(data))
	}

	// Checksum covers id through the last parameter byte.
	expected := p.calculateChecksum(data[2 : totalLen-1])
	actual := data[totalLen-1]
	if expected != actual {
		return Packet{}, &ChecksumError{ID: id, Expected: expected, Actual: actual}
	}

	// Response format: [header][id][length][error][params...][checksum]
	pkt := Packet{
		ID:    id,
		Error: StatusError(data[4]),
	}

	paramLen := length - 2 // Subtract error byte and checksum
	if paramLen > 0 {
		pkt.Parameters = make([]byte, paramLen)
		copy(pkt.Parameters, data[5:5+paramLen])
	}

	return pkt, nil
}

// ExpectedResponseLength returns the expected wire length for a response
// packet carrying dataLen parameter bytes.
func (p *Protocol) ExpectedResponseLength(dataLen int) int {
	return minPacketLen + dataLen
}

func (p *Protocol) calculateChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum
}

// Instruction packet builders

// PingPacket creates a ping instruction packet.
func (p *Protocol) PingPacket(id byte) []byte {
	return p.Encode(Packet{
		ID:          id,
		Instruction: InstPing,
	})
}

// ReadPacket creates a read instruction packet.
func (p *Protocol) ReadPacket(id, address, length byte) []byte {
	return p.Encode(Packet{
		ID:          id,
		Instruction: InstRead,
		Parameters:  []byte{address, length},
	})
}

// WritePacket creates a write instruction packet.
func (p *Protocol) WritePacket(id, address byte, data []byte) []byte {
	params := make([]byte, 1+len(data))
	params[0] = address
	copy(params[1:], data)

	return p.Encode(Packet{
		ID:          id,
		Instruction: InstWrite,
		Parameters:  params,
	})
}

// RegWritePacket creates a reg write (buffered write) instruction packet.
func (p *Protocol) RegWritePacket(id, address byte, data []byte) []byte {
	params := make([]byte, 1+len(data))
	params[0] = address
	copy(params[1:], data)

	return p.Encode(Packet{
		ID:          id,
		Instruction: InstRegWrite,
		Parameters:  params,
	})
}

// ActionPacket creates an action instruction packet (triggers reg writes).
func (p *Protocol) ActionPacket() []byte {
	return p.Encode(Packet{
		ID:          BroadcastID,
		Instruction: InstAction,
	})
}

// FactoryResetPacket creates a factory reset instruction packet.
func (p *Protocol) FactoryResetPacket(id byte) []byte {
	return p.Encode(Packet{
		ID:          id,
		Instruction: InstFactoryReset,
	})
}

// RebootPacket creates a reboot instruction packet.
func (p *Protocol) RebootPacket(id byte) []byte {
	return p.Encode(Packet{
		ID:          id,
		Instruction: InstReboot,
	})
}

// SyncWritePacket creates a sync write instruction packet. Entries are laid
// out on the wire in the order given.
func (p *Protocol) SyncWritePacket(address byte, dataLen byte, ids []byte, data map[byte][]byte) []byte {
	// Parameters: address(1) + dataLen(1) + [id(1) + data(n)]...
	params := make([]byte, 0, 2+len(ids)*(1+int(dataLen)))
	params = append(params, address, dataLen)

	for _, id := range ids {
		params = append(params, id)
		params = append(params, data[id]...)
	}

	return p.Encode(Packet{
		ID:          BroadcastID,
		Instruction: InstSyncWrite,
		Parameters:  params,
	})
}

// SyncReadPacket creates a sync read instruction packet.
func (p *Protocol) SyncReadPacket(address, dataLen byte, ids []byte) []byte {
	params := make([]byte, 0, 2+len(ids))
	params = append(params, address, dataLen)
	params = append(params, ids...)

	return p.Encode(Packet{
		ID:          BroadcastID,
		Instruction: InstSyncRead,
		Parameters:  params,
	})
}
