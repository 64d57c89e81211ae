package uart

// Linux tty ioctl request numbers. Values match asm-generic/ioctls.h; kept as
// plain uintptr variables here so this package stays free of cgo.
var (
	tcgets = uintptr(0x5401)
	tcsets = uintptr(0x5402)

	tcsbrk  = uintptr(0x5409) // drain / send a (long) break depending on arg
	tcsbrkp = uintptr(0x5425) // POSIX break, arg in deciseconds

	tiocsbrk = uintptr(0x5427) // start sending break bits
	tioccbrk = uintptr(0x5428) // stop sending break bits

	tcflsh = uintptr(0x540B)

	fionread = uintptr(0x541B) // number of bytes in the input queue
)
