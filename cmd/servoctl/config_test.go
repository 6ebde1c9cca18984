package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neka-nat/feetech-servo-go/feetech"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servoctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
port: /dev/ttyUSB0
baud_rate: 500000
protocol: scs
timeout_ms: 250
model: scs15
log_level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Port)
	assert.Equal(t, 500000, cfg.BaudRate)
	assert.Equal(t, feetech.ProtocolSCS, cfg.ProtocolVersion())
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout())
	assert.Equal(t, "scs15", cfg.Model)
}

func TestLoadConfig_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, "port: /dev/ttyACM0\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 1000000, cfg.BaudRate)
	assert.Equal(t, feetech.ProtocolSTS, cfg.ProtocolVersion())
	assert.Equal(t, time.Second, cfg.Timeout())
	assert.Equal(t, "sts3215", cfg.Model)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Protocol = "modbus"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Model = "mg996r"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.TimeoutMs = 0
	assert.Error(t, bad.Validate())
}
