package feetech

import (
	"bytes"
	"errors"
	"testing"
)

func TestProtocol_Checksum(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Ping servo ID 1: FF FF 01 02 01 FB
	// Checksum = ~(01 + 02 + 01) = ~04 = FB
	packet := p.PingPacket(0x01)
	expected := []byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}

	if !bytes.Equal(packet, expected) {
		t.Errorf("PingPacket: got %X, want %X", packet, expected)
	}

	// Ping servo ID 5: FF FF 05 02 01 F7
	packet = p.PingPacket(0x05)
	expected = []byte{0xFF, 0xFF, 0x05, 0x02, 0x01, 0xF7}

	if !bytes.Equal(packet, expected) {
		t.Errorf("PingPacket: got %X, want %X", packet, expected)
	}
}

func TestProtocol_ReadPacket(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Read 2 bytes from address 0x38 on servo ID 1
	// FF FF 01 04 02 38 02 BE
	packet := p.ReadPacket(0x01, 0x38, 0x02)
	expected := []byte{0xFF, 0xFF, 0x01, 0x04, 0x02, 0x38, 0x02, 0xBE}

	if !bytes.Equal(packet, expected) {
		t.Errorf("ReadPacket: got %X, want %X", packet, expected)
	}
}

func TestProtocol_WritePacket(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Write ID value 1 to address 5 using broadcast
	// FF FF FE 04 03 05 01 F4
	packet := p.WritePacket(BroadcastID, 0x05, []byte{0x01})
	expected := []byte{0xFF, 0xFF, 0xFE, 0x04, 0x03, 0x05, 0x01, 0xF4}

	if !bytes.Equal(packet, expected) {
		t.Errorf("WritePacket: got %X, want %X", packet, expected)
	}
}

func TestProtocol_RebootPacket(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Reboot servo ID 1: FF FF 01 02 08 F4
	packet := p.RebootPacket(0x01)
	expected := []byte{0xFF, 0xFF, 0x01, 0x02, 0x08, 0xF4}

	if !bytes.Equal(packet, expected) {
		t.Errorf("RebootPacket: got %X, want %X", packet, expected)
	}
}

func TestProtocol_FactoryResetPacket(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Factory reset servo ID 1: FF FF 01 02 06 F6
	packet := p.FactoryResetPacket(0x01)
	expected := []byte{0xFF, 0xFF, 0x01, 0x02, 0x06, 0xF6}

	if !bytes.Equal(packet, expected) {
		t.Errorf("FactoryResetPacket: got %X, want %X", packet, expected)
	}
}

func TestProtocol_DecodeResponse(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Response to ping from servo 5: FF FF 05 02 00 F8
	data := []byte{0xFF, 0xFF, 0x05, 0x02, 0x00, 0xF8}

	pkt, err := p.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if pkt.ID != 0x05 {
		t.Errorf("ID: got %d, want 5", pkt.ID)
	}
	if pkt.Error != 0 {
		t.Errorf("Error: got %d, want 0", pkt.Error)
	}
	if len(pkt.Parameters) != 0 {
		t.Errorf("Parameters: got %d bytes, want 0", len(pkt.Parameters))
	}
}

func TestProtocol_DecodeWithData(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Response to read position: FF FF 01 04 00 18 05 DD
	// Position value: 0x0518 = 1304 (little-endian)
	data := []byte{0xFF, 0xFF, 0x01, 0x04, 0x00, 0x18, 0x05, 0xDD}

	pkt, err := p.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if pkt.ID != 0x01 {
		t.Errorf("ID: got %d, want 1", pkt.ID)
	}
	if len(pkt.Parameters) != 2 {
		t.Fatalf("Parameters length: got %d, want 2", len(pkt.Parameters))
	}

	position := p.DecodeWord(pkt.Parameters)
	if position != 0x0518 {
		t.Errorf("Position: got %d, want %d", position, 0x0518)
	}
}

func TestProtocol_DecodeRejectsBadHeader(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Garbage where the header should be: the codec is strict; stream
	// resynchronization happens before bytes reach Decode.
	data := []byte{0x00, 0x12, 0xFF, 0xFF, 0x01, 0x02, 0x00, 0xFC}

	_, err := p.Decode(data)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestProtocol_DecodeShort(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	_, err := p.Decode([]byte{0xFF, 0xFF, 0x01, 0x02, 0x00})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestProtocol_DecodeLengthMismatch(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Length field claims 4 bytes but only 2 follow the header block.
	data := []byte{0xFF, 0xFF, 0x01, 0x04, 0x00, 0xFC}

	_, err := p.Decode(data)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestProtocol_DecodeChecksumError(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Valid packet with corrupted checksum (should be 0xFC)
	data := []byte{0xFF, 0xFF, 0x01, 0x02, 0x00, 0x00}

	_, err := p.Decode(data)
	ckErr, ok := GetChecksumError(err)
	if !ok {
		t.Fatalf("expected ChecksumError, got %v", err)
	}
	if ckErr.ID != 0x01 {
		t.Errorf("ChecksumError.ID: got %d, want 1", ckErr.ID)
	}
}

func TestProtocol_DecodeSingleByteCorruption(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	valid := p.Encode(Packet{ID: 7, Parameters: []byte{0x18, 0x05}})

	// Flipping any byte in the checksum-covered span must reject the frame.
	for i := 2; i < len(valid)-1; i++ {
		corrupted := append([]byte(nil), valid...)
		corrupted[i] ^= 0x01

		if _, err := p.Decode(corrupted); err == nil {
			t.Errorf("corrupting byte %d: decode unexpectedly succeeded", i)
		}
	}
}

func TestProtocol_EncodeDecodeRoundTrip(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// Response frames share the request layout, with the error byte in the
	// instruction slot.
	cases := [][]byte{
		nil,
		{0x00},
		{0x18, 0x05},
		{0x00, 0x08, 0x00, 0x00, 0xE8, 0x03},
	}

	for _, params := range cases {
		raw := p.Encode(Packet{ID: 3, Parameters: params})

		pkt, err := p.Decode(raw)
		if err != nil {
			t.Fatalf("round trip failed for % X: %v", params, err)
		}
		if pkt.ID != 3 {
			t.Errorf("ID: got %d, want 3", pkt.ID)
		}
		if !bytes.Equal(pkt.Parameters, params) {
			t.Errorf("Parameters: got % X, want % X", pkt.Parameters, params)
		}
	}
}

func TestProtocol_ByteOrderSTS(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	// STS is little-endian
	data := p.EncodeWord(0x1234)
	if data[0] != 0x34 || data[1] != 0x12 {
		t.Errorf("EncodeWord: got %X, want [34 12]", data)
	}

	decoded := p.DecodeWord([]byte{0x34, 0x12})
	if decoded != 0x1234 {
		t.Errorf("DecodeWord: got %X, want 1234", decoded)
	}
}

func TestProtocol_ByteOrderSCS(t *testing.T) {
	p := NewProtocol(ProtocolSCS)

	// SCS is big-endian
	data := p.EncodeWord(0x1234)
	if data[0] != 0x12 || data[1] != 0x34 {
		t.Errorf("EncodeWord: got %X, want [12 34]", data)
	}

	decoded := p.DecodeWord([]byte{0x12, 0x34})
	if decoded != 0x1234 {
		t.Errorf("DecodeWord: got %X, want 1234", decoded)
	}
}

func TestProtocol_SyncWritePacket(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	ids := []byte{1, 2, 3}
	data := map[byte][]byte{
		1: {0x00, 0x08},
		2: {0x10, 0x08},
		3: {0x20, 0x08},
	}

	packet := p.SyncWritePacket(0x2A, 2, ids, data)

	if packet[0] != 0xFF || packet[1] != 0xFF {
		t.Error("missing header")
	}
	if packet[2] != BroadcastID {
		t.Error("not broadcast ID")
	}
	if packet[4] != InstSyncWrite {
		t.Error("wrong instruction")
	}
	if packet[5] != 0x2A {
		t.Error("wrong address")
	}
	if packet[6] != 2 {
		t.Error("wrong data length")
	}

	// Tuples appear in the given id order.
	want := []byte{1, 0x00, 0x08, 2, 0x10, 0x08, 3, 0x20, 0x08}
	if !bytes.Equal(packet[7:len(packet)-1], want) {
		t.Errorf("tuples: got % X, want % X", packet[7:len(packet)-1], want)
	}
}

func TestProtocol_SyncReadPacket(t *testing.T) {
	p := NewProtocol(ProtocolSTS)

	packet := p.SyncReadPacket(0x38, 2, []byte{1, 2, 3})

	if packet[2] != BroadcastID {
		t.Error("not broadcast ID")
	}
	if packet[4] != InstSyncRead {
		t.Error("wrong instruction")
	}
	want := []byte{0x38, 2, 1, 2, 3}
	if !bytes.Equal(packet[5:len(packet)-1], want) {
		t.Errorf("parameters: got % X, want % X", packet[5:len(packet)-1], want)
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status   StatusError
		hasError bool
	}{
		{0, false},
		{ErrVoltage, true},
		{ErrOverheat, true},
		{ErrOverload | ErrOverheat, true},
	}

	for _, tt := range tests {
		if tt.status.HasError() != tt.hasError {
			t.Errorf("StatusError(%X).HasError(): got %v, want %v",
				tt.status, tt.status.HasError(), tt.hasError)
		}
	}
}

func TestStatusError_NamesAllConditions(t *testing.T) {
	err := ErrOverheat | ErrOverload
	s := err.Error()

	for _, want := range []string{"overheat", "overload"} {
		if !bytes.Contains([]byte(s), []byte(want)) {
			t.Errorf("error string %q missing %q", s, want)
		}
	}
}
