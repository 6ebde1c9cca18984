package feetech

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	entry, ok := Lookup(ModelSTS3215, RegGoalPosition)
	require.True(t, ok)
	assert.Equal(t, byte(42), entry.Address)
	assert.Equal(t, 2, entry.Size)
	assert.False(t, entry.ReadOnly)

	entry, ok = Lookup(ModelSTS3215, RegPresentPosition)
	require.True(t, ok)
	assert.Equal(t, byte(56), entry.Address)
	assert.True(t, entry.ReadOnly)
}

func TestLookup_UnsupportedRegister(t *testing.T) {
	// The SCS table does not carry the STS tuning registers.
	_, ok := Lookup(ModelSCS0009, RegPGain)
	assert.False(t, ok)

	_, ok = Lookup(ModelSCS15, RegMaxAcceleration)
	assert.False(t, ok)
}

func TestLookup_OutOfRange(t *testing.T) {
	_, ok := Lookup(ModelID(-1), RegGoalPosition)
	assert.False(t, ok)

	_, ok = Lookup(modelCount, RegGoalPosition)
	assert.False(t, ok)

	_, ok = Lookup(ModelSTS3215, RegisterID(-1))
	assert.False(t, ok)

	_, ok = Lookup(ModelSTS3215, registerCount)
	assert.False(t, ok)
}

func TestModelByNumber(t *testing.T) {
	id, ok := ModelByNumber(777)
	require.True(t, ok)
	assert.Equal(t, ModelSTS3215, id)

	id, ok = ModelByNumber(9)
	require.True(t, ok)
	assert.Equal(t, ModelSCS0009, id)

	_, ok = ModelByNumber(12345)
	assert.False(t, ok)
}

func TestModelByName(t *testing.T) {
	id, ok := ModelByName("sts3250")
	require.True(t, ok)
	assert.Equal(t, ModelSTS3250, id)

	_, ok = ModelByName("mg996r")
	assert.False(t, ok)
}

func TestModelSpec(t *testing.T) {
	spec, ok := ModelSTS3215.Spec()
	require.True(t, ok)
	assert.Equal(t, 4096, spec.Resolution)
	assert.Equal(t, ProtocolSTS, spec.Protocol)

	spec, ok = ModelSCS15.Spec()
	require.True(t, ok)
	assert.Equal(t, 1024, spec.Resolution)
	assert.Equal(t, ProtocolSCS, spec.Protocol)

	_, ok = ModelID(99).Spec()
	assert.False(t, ok)
}

func TestBaudRates(t *testing.T) {
	assert.Equal(t, [8]int{1000000, 500000, 250000, 128000, 115200, 57600, 38400, 19200}, BaudRates)
}

func TestRegisterForModels_Agreement(t *testing.T) {
	// STS and SCS place present position at the same (address, size).
	entry, err := RegisterForModels([]ModelID{ModelSTS3215, ModelSCS0009}, RegPresentPosition)
	require.NoError(t, err)
	assert.Equal(t, byte(56), entry.Address)
	assert.Equal(t, 2, entry.Size)
}

func TestRegisterForModels_MissingRegister(t *testing.T) {
	_, err := RegisterForModels([]ModelID{ModelSTS3215, ModelSCS0009}, RegPGain)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRegisterForModels_EmptyFleet(t *testing.T) {
	_, err := RegisterForModels(nil, RegGoalPosition)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRegisterNames(t *testing.T) {
	assert.Equal(t, "goal_position", RegGoalPosition.String())
	assert.Equal(t, "present_temp", RegPresentTemp.String())
	assert.Equal(t, "RegisterID(-5)", RegisterID(-5).String())

	// Every register has a name.
	for r := RegisterID(0); r < registerCount; r++ {
		assert.NotEmpty(t, registerNames[r], "register %d unnamed", int(r))
	}
}
