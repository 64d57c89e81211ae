package ems

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidateRejectsBadDeviceID(t *testing.T) {
	c := Config{DeviceID: 0, Mode: ModeMonitor, SerialDevice: "/dev/ttyAMA0"}
	require.ErrorIs(t, c.validate(), ErrBadDeviceID)

	c.DeviceID = 0x80
	require.ErrorIs(t, c.validate(), ErrBadDeviceID)

	c.DeviceID = 0x01
	require.ErrorIs(t, c.validate(), ErrBadDeviceID)

	c.DeviceID = 0x04
	require.ErrorIs(t, c.validate(), ErrBadDeviceID)
}

func TestConfigValidateRejectsBadMode(t *testing.T) {
	c := Config{DeviceID: 0x08, Mode: Mode(99), SerialDevice: "/dev/ttyAMA0"}
	require.ErrorIs(t, c.validate(), ErrBadMode)
}

func TestConfigValidateRejectsEmptyDevicePath(t *testing.T) {
	c := Config{DeviceID: 0x08, Mode: ModeMonitor, SerialDevice: ""}
	require.ErrorIs(t, c.validate(), ErrBadDevicePath)
}

func TestConfigValidateAccepts(t *testing.T) {
	c := Config{DeviceID: 0x08, Mode: ModeParticipate, SerialDevice: "/dev/ttyAMA0"}
	require.NoError(t, c.validate())
}

func TestModeString(t *testing.T) {
	require.Equal(t, "monitor", ModeMonitor.String())
	require.Equal(t, "participate", ModeParticipate.String())
	require.Equal(t, "participate & monitor", ModeMixed.String())
}
