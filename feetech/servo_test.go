package feetech

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neka-nat/feetech-servo-go/transports"
)

func TestSignMagnitude(t *testing.T) {
	cases := []struct {
		value   int
		signBit int
		encoded int
	}{
		{0, 15, 0},
		{100, 15, 100},
		{-100, 15, 0x8000 | 100},
		{-1, 15, 0x8001},
		{-50, 9, 0x200 | 50},
		{300, 0, 300}, // no sign bit, passthrough
		{-300, 0, -300},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.encoded, encodeSignMagnitude(tc.value, tc.signBit), "encode %d bit %d", tc.value, tc.signBit)
		assert.Equal(t, tc.value, decodeSignMagnitude(tc.encoded, tc.signBit), "decode %#x bit %d", tc.encoded, tc.signBit)
	}
}

func TestServo_Status(t *testing.T) {
	mock := transports.NewMock()
	mock.OnWrite = servoSim(map[byte]map[byte][]byte{
		1: {
			// position 2048, velocity -100, load -50, 7.4V, 36C
			56: {0x00, 0x08, 0x64, 0x80, 0x32, 0x02, 74, 36},
			66: {1},
		},
	})

	bus := newTestBus(t, mock)
	servo := NewServo(bus, 1, ModelSTS3215)

	status, err := servo.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ServoStatus{
		Position:      2048,
		Speed:         -100,
		Load:          -50,
		VoltageTenths: 74,
		Temperature:   36,
		Moving:        true,
	}, status)
}

func TestServo_Position(t *testing.T) {
	mock := transports.NewMock()
	mock.OnWrite = servoSim(map[byte]map[byte][]byte{
		5: {56: {0x34, 0x02}},
	})

	bus := newTestBus(t, mock)
	servo := NewServo(bus, 5, ModelSTS3215)

	pos, err := servo.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0x0234, pos)
}

func TestServo_SetPosition(t *testing.T) {
	mock := transports.NewMock()
	mock.OnWrite = servoSim(map[byte]map[byte][]byte{1: {}})

	bus := newTestBus(t, mock)
	servo := NewServo(bus, 1, ModelSTS3215)

	require.NoError(t, servo.SetPosition(context.Background(), 2048))

	writes := mock.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x05, 0x03, 0x2A, 0x00, 0x08, 0xC4}, writes[0])
}

func TestServo_SetPositionWithSpeed(t *testing.T) {
	mock := transports.NewMock()
	mock.OnWrite = servoSim(map[byte]map[byte][]byte{1: {}})

	bus := newTestBus(t, mock)
	servo := NewServo(bus, 1, ModelSTS3215)

	require.NoError(t, servo.SetPositionWithSpeed(context.Background(), 1000, 500))

	writes := mock.Writes()
	require.Len(t, writes, 1)

	packet := writes[0]
	assert.Equal(t, InstWrite, packet[4])
	assert.Equal(t, byte(42), packet[5], "goal position address")

	proto := bus.Protocol()
	data := packet[6 : len(packet)-1]
	require.Len(t, data, 6, "position+time+velocity block")
	assert.Equal(t, uint16(1000), proto.DecodeWord(data[0:2]))
	assert.Equal(t, uint16(0), proto.DecodeWord(data[2:4]), "time unused")
	assert.Equal(t, uint16(500), proto.DecodeWord(data[4:6]))
}

func TestServo_SetVelocityNegative(t *testing.T) {
	mock := transports.NewMock()
	mock.OnWrite = servoSim(map[byte]map[byte][]byte{1: {}})

	bus := newTestBus(t, mock)
	servo := NewServo(bus, 1, ModelSTS3215)

	require.NoError(t, servo.SetVelocity(context.Background(), -300))

	writes := mock.Writes()
	require.Len(t, writes, 1)

	packet := writes[0]
	assert.Equal(t, byte(46), packet[5], "goal velocity address")
	raw := bus.Protocol().DecodeWord(packet[6:8])
	assert.Equal(t, uint16(0x8000|300), raw)
}

func TestServo_WriteRegisterValidation(t *testing.T) {
	bus := newTestBus(t, transports.NewMock())
	servo := NewServo(bus, 1, ModelSTS3215)
	ctx := context.Background()

	err := servo.WriteRegister(ctx, RegPresentPosition, []byte{0, 0})
	assert.ErrorIs(t, err, ErrInvalidParameter, "read-only register")

	err = servo.WriteRegister(ctx, RegGoalPosition, []byte{0})
	assert.ErrorIs(t, err, ErrInvalidParameter, "width mismatch")

	scs := NewServo(bus, 1, ModelSCS15)
	err = scs.WriteRegister(ctx, RegMaxAcceleration, []byte{5})
	assert.ErrorIs(t, err, ErrInvalidParameter, "register absent from model")
}

func TestServo_SetIDUpdatesHandle(t *testing.T) {
	mock := transports.NewMock()
	mock.OnWrite = servoSim(map[byte]map[byte][]byte{3: {}})

	bus := newTestBus(t, mock)
	servo := NewServo(bus, 3, ModelSTS3215)

	require.NoError(t, servo.SetID(context.Background(), 7))
	assert.Equal(t, 7, servo.ID())

	// Torque off first, then the id write.
	writes := mock.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, byte(40), writes[0][5], "torque enable address")
	assert.Equal(t, byte(0), writes[0][6])
	assert.Equal(t, byte(5), writes[1][5], "id address")
	assert.Equal(t, byte(7), writes[1][6])
}

func TestServo_SetIDRejectsBroadcast(t *testing.T) {
	bus := newTestBus(t, transports.NewMock())
	servo := NewServo(bus, 3, ModelSTS3215)

	err := servo.SetID(context.Background(), BroadcastID)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestServo_SetBaudRate(t *testing.T) {
	mock := transports.NewMock()
	mock.OnWrite = servoSim(map[byte]map[byte][]byte{1: {}})

	bus := newTestBus(t, mock)
	servo := NewServo(bus, 1, ModelSTS3215)

	require.NoError(t, servo.SetBaudRate(context.Background(), 115200))

	writes := mock.Writes()
	require.Len(t, writes, 2)
	last := writes[1]
	assert.Equal(t, byte(6), last[5], "baud register address")
	assert.Equal(t, byte(4), last[6], "115200 is table index 4")

	err := servo.SetBaudRate(context.Background(), 9600)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestServo_DetectModel(t *testing.T) {
	mock := transports.NewMock()
	mock.OnWrite = servoSim(map[byte]map[byte][]byte{
		2: {
			0: {0x01},
			3: {0x09, 0x00}, // model number 9
		},
	})

	bus := newTestBus(t, mock)
	servo := NewServo(bus, 2, ModelSTS3215)

	require.NoError(t, servo.DetectModel(context.Background()))
	assert.Equal(t, ModelSCS0009, servo.Model())
}
