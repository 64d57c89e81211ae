package ems

// UART is the external collaborator spec'd out of the core: a serial line
// offering exactly the primitives the reader/writer need, so the driver can
// be exercised against a fake in tests instead of a real tty device (the
// role the teacher's pty_linux.go paired-PTY helper played, except a PTY
// cannot synthesize the PARMRK framing-error triples the framer's error
// path needs to be driven — see DESIGN.md).
type UART interface {
	// ReadByte blocks for exactly one octet, or returns an error if
	// cancelled or closed.
	ReadByte() (byte, error)
	// Available reports how many octets are presently queued for read,
	// without blocking.
	Available() (int, error)
	// Read performs one non-blocking read of whatever is already queued.
	Read(buf []byte) (int, error)
	// Write transmits buf in full.
	Write(buf []byte) (int, error)
	// SendBreak drives the line low for at least one character time.
	SendBreak() error
	// CancelRead unblocks a pending or future ReadByte.
	CancelRead()
	// Close releases the underlying device.
	Close() error
}
