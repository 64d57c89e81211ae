// Package uart is the external UART collaborator the EMS bus driver is built
// against: a thin, termios-based wrapper around a Linux tty device offering
// exactly the primitives a half-duplex, break-delimited serial protocol
// needs — byte read, byte write, break generation, buffer flush,
// parity-marking input mode and a cooperatively cancellable read.
package uart

import (
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
)

type Termios struct {
	Iflag IFlag      /* input mode flags */
	Oflag OFlag      /* output mode flags */
	Cflag CFlag      /* control mode flags */
	Lflag LFlag      /* local mode flags */
	Line  Discipline /* line discipline */
	Cc    [19]byte   /* control characters */
}

type Discipline byte

const N_TTY = Discipline(0)

type IFlag uint32

const (
	IGNBRK = IFlag(0000001) // Ignore BREAK condition on input
	BRKINT = IFlag(0000002) // Flush queues / SIGINT on BREAK if IGNBRK unset
	IGNPAR = IFlag(0000004) // Ignore framing and parity errors
	PARMRK = IFlag(0000010) // Mark parity/framing errors, and BREAK, with a 0xFF 0x00 prefix
	INPCK  = IFlag(0000020) // Enable input parity checking
	ISTRIP = IFlag(0000040) // Strip eighth bit
)

type OFlag uint32

const (
	OPOST = OFlag(0000001) // Enable implementation-defined output processing
)

type CFlag uint32

const (
	CBAUD  = CFlag(0010017)
	B9600  = CFlag(0000015)
	CSIZE  = CFlag(0000060)
	CS8    = CFlag(0000060)
	CREAD  = CFlag(0000200) // Enable receiver
	PARENB = CFlag(0000400) // Enable parity generation/checking
	CLOCAL = CFlag(0004000) // Ignore modem control lines
)

type LFlag uint32

const (
	ISIG   = LFlag(0000001)
	ICANON = LFlag(0000002)
	ECHO   = LFlag(0000010)
	ECHONL = LFlag(0000100)
	IEXTEN = LFlag(0100000)
)

type Action int

const (
	TCSANOW = Action(iota)
	TCSADRAIN
	TCSAFLUSH
)

type Queue uint32

const (
	TCIFLUSH = Queue(iota) // discard unread input
	TCOFLUSH               // discard unwritten output
	TCIOFLUSH              // discard both
)

// Port is an open EMS-bus UART line.
type Port struct {
	f         int
	closed    atomic.Bool
	cancelled atomic.Bool
}

// cancelPollInterval bounds how quickly CancelRead takes effect: ReadByte
// re-checks the cancellation flag at this cadence while blocked.
const cancelPollInterval = 50 * time.Millisecond

// Open opens the named tty device and configures it for the EMS bus: raw
// mode, 9600 8N1, parity-marking input so breaks and framing errors arrive
// as the three-octet sequences described in spec.md §3, both queues flushed.
func Open(path string) (*Port, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, wrapErr("open "+path, err)
	}
	p := &Port{f: fd}
	if err := p.configureEMS(); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	if err := p.Flush(TCIOFLUSH); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return p, nil
}

func (p *Port) configureEMS() error {
	attrs, err := p.GetAttr()
	if err != nil {
		return wrapErr("get attr", err)
	}
	attrs.Iflag = PARMRK | INPCK
	attrs.Oflag = 0
	attrs.Lflag = 0
	attrs.Cflag = (attrs.Cflag &^ (CBAUD | CSIZE | PARENB)) | B9600 | CS8 | CREAD | CLOCAL
	attrs.Cc[6] = 1 // VMIN: return as soon as 1 byte is available
	attrs.Cc[5] = 0 // VTIME: no inter-byte timeout
	return p.SetAttr(attrs)
}

// SetParityMark toggles IFlag PARMRK|INPCK, the mode that causes the tty
// driver to deliver a BREAK and a framing error as three-octet sequences
// instead of silently substituting a NUL.
func (p *Port) SetParityMark(enable bool) error {
	attrs, err := p.GetAttr()
	if err != nil {
		return wrapErr("get attr", err)
	}
	if enable {
		attrs.Iflag |= PARMRK | INPCK
		attrs.Iflag &^= IGNPAR | ISTRIP | IGNBRK | BRKINT
	} else {
		attrs.Iflag &^= PARMRK | INPCK
	}
	return p.SetAttr(attrs)
}

func (p *Port) GetAttr() (*Termios, error) {
	attrs := &Termios{}
	err := ioctl.Ioctl(uintptr(p.f), tcgets, uintptr(unsafe.Pointer(attrs)))
	if err != nil {
		return nil, wrapErr("tcgets", err)
	}
	return attrs, nil
}

func (p *Port) SetAttr(attrs *Termios) error {
	err := ioctl.Ioctl(uintptr(p.f), tcsets, uintptr(unsafe.Pointer(attrs)))
	return wrapErr("tcsets", err)
}

// Available reports the number of octets presently queued for reading,
// without blocking.
func (p *Port) Available() (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	var n int32
	err := ioctl.Ioctl(uintptr(p.f), fionread, uintptr(unsafe.Pointer(&n)))
	if err != nil {
		return 0, wrapErr("fionread", err)
	}
	return int(n), nil
}

// ReadByte blocks for exactly one octet. It is cancellable: a concurrent
// CancelRead causes a pending ReadByte to return ErrReadCancelled within
// cancelPollInterval.
func (p *Port) ReadByte() (byte, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	buf := make([]byte, 1)
	for {
		if p.cancelled.Load() {
			return 0, ErrReadCancelled
		}
		if err := poll.WaitInput(p.f, cancelPollInterval); err != nil {
			continue // timed out (or a transient poll error): re-check cancellation
		}
		n, err := syscall.Read(p.f, buf)
		if err != nil {
			return 0, wrapErr("read", err)
		}
		if n == 1 {
			return buf[0], nil
		}
	}
}

// Read performs a single non-blocking read of whatever is already queued.
func (p *Port) Read(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	n, err := syscall.Read(p.f, data)
	if err != nil {
		return 0, wrapErr("read", err)
	}
	return n, nil
}

func (p *Port) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	n, err := syscall.Write(p.f, data)
	if err != nil {
		return 0, wrapErr("write", err)
	}
	return n, nil
}

// Flush discards data written but not transmitted, or received but not
// read, depending on queue.
func (p *Port) Flush(queue Queue) error {
	err := ioctl.Ioctl(uintptr(p.f), tcflsh, uintptr(queue))
	return wrapErr("tcflsh", err)
}

// SendBreak drives the line low for at least one character time (~2ms at
// 9600 bps including framing), which the rest of the bus observes as a
// break and therefore an end-of-frame marker.
func (p *Port) SendBreak() error {
	if err := ioctl.Ioctl(uintptr(p.f), tiocsbrk, 0); err != nil {
		return wrapErr("tiocsbrk", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := ioctl.Ioctl(uintptr(p.f), tioccbrk, 0); err != nil {
		return wrapErr("tioccbrk", err)
	}
	return nil
}

// CancelRead unblocks a pending or future ReadByte without closing the
// port.
func (p *Port) CancelRead() {
	p.cancelled.Store(true)
}

func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return ErrClosed
	}
	return syscall.Close(p.f)
}
