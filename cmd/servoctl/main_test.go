package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neka-nat/feetech-servo-go/feetech"
)

func TestScanRange(t *testing.T) {
	start, end, err := scanRange(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, start)
	assert.Equal(t, feetech.MaxServoID, end, "default covers the full unicast id space")

	start, end, err = scanRange([]string{"5", "10"})
	require.NoError(t, err)
	assert.Equal(t, 5, start)
	assert.Equal(t, 10, end)

	_, _, err = scanRange([]string{"x", "10"})
	assert.Error(t, err)

	_, _, err = scanRange([]string{"5", "y"})
	assert.Error(t, err)
}
