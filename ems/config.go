package ems

import "fmt"

// Mode selects the driver's bus posture: read-only observation, active
// participation, or both at once.
type Mode int

const (
	// ModeMonitor reads every frame and transmits nothing.
	ModeMonitor Mode = iota + 1
	// ModeParticipate forwards only frames addressed to this device (plus
	// broadcasts), answers polls and transmits buffered frames.
	ModeParticipate
	// ModeMixed forwards every ingress frame like ModeMonitor while
	// participating in the egress half-duplex window like ModeParticipate.
	ModeMixed
)

func (m Mode) String() string {
	switch m {
	case ModeMonitor:
		return "monitor"
	case ModeParticipate:
		return "participate"
	case ModeMixed:
		return "participate & monitor"
	default:
		return "null"
	}
}

// writeReplySentinels are the two single-octet write-reply codes; they can
// never be used as a device id.
var writeReplySentinels = [2]byte{0x01, 0x04}

// Config holds the parameters needed to open a Driver. It is validated by
// Open, the same way the teacher's Options/NewOptions pair validates serial
// parameters before a Port is constructed — a plain struct, not a
// config-file/env layer, since device id and mode are constructor
// arguments, not deployment configuration (see DESIGN.md §1.3).
type Config struct {
	// DeviceID is this entity's EMS bus address, 1..0x7f, excluding the
	// write-reply sentinels 0x01 and 0x04.
	DeviceID byte
	// Mode selects monitor/participate/mixed.
	Mode Mode
	// SerialDevice is the tty device node to open (e.g. "/dev/ttyAMA0").
	SerialDevice string
	// Logger receives diagnostic and protocol-error messages. If nil, Open
	// uses a nopLogger and OpenDevice a zerolog sink writing to stderr.
	Logger Logger
}

func (c Config) validate() error {
	if c.DeviceID == 0 || c.DeviceID > 0x7f ||
		c.DeviceID == writeReplySentinels[0] || c.DeviceID == writeReplySentinels[1] {
		return wrapErr(fmt.Sprintf("device id %#02x", c.DeviceID), ErrBadDeviceID)
	}
	if c.Mode < ModeMonitor || c.Mode > ModeMixed {
		return wrapErr(fmt.Sprintf("mode %d", c.Mode), ErrBadMode)
	}
	if c.SerialDevice == "" {
		return wrapErr("serial device path is empty", ErrBadDevicePath)
	}
	return nil
}
