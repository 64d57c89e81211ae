package ems

// Error is the ems package's wrapped-error type, mirroring the uart
// package's Error{msg, err}/Unwrap idiom.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.msg != "" {
		if e.err != nil {
			return e.msg + ": " + e.err.Error()
		}
		return e.msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e Error) Unwrap() error { return e.err }

var (
	// ErrClosed is returned by WriteFrame and by a second Close once the
	// driver is closed, and by ReadFrame once the driver is closed and the
	// frames already queued for it have been read.
	ErrClosed = Error{msg: "driver closed"}
	// ErrBadDeviceID is returned by Open when Config.DeviceID is outside
	// 1..0x7f or collides with a write-reply sentinel.
	ErrBadDeviceID = Error{msg: "illegal device id"}
	// ErrBadMode is returned by Open when Config.Mode is not one of the
	// three defined modes.
	ErrBadMode = Error{msg: "illegal mode"}
	// ErrBadDevicePath is returned by Open when Config.SerialDevice is empty.
	ErrBadDevicePath = Error{msg: "illegal serial device path"}
	// ErrWatchdogNotArmed is returned by WatchdogTimer.Reset when the timer
	// was never started.
	ErrWatchdogNotArmed = Error{msg: "watchdog was never started"}
	// ErrPortOpen is returned by OpenDevice when the UART fails to open.
	ErrPortOpen = Error{msg: "could not open uart"}
	// ErrWatchdogTimeout is delivered to the logger (never returned to a
	// caller) when a watchdog expires with no handler installed.
	ErrWatchdogTimeout = Error{msg: "watchdog timeout"}
)

func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	return Error{msg: msg, err: err}
}
