package ems

import (
	"errors"
	"sync"
)

var errFakeCancelled = errors.New("fake uart read cancelled")

// fakeUART is an in-memory UART double. feed appends a burst of octets as
// if they all arrived on the wire together, the way reader() expects: it
// pulls the first byte with ReadByte, then drains whatever else is already
// queued via Available/Read in the same pass. Write/SendBreak are recorded
// for assertions. It stands in for the role the teacher's paired-PTY test
// helper played, except it can inject exact PARMRK escape sequences a PTY
// cannot synthesize (see DESIGN.md §1.2).
type fakeUART struct {
	mu        sync.Mutex
	cond      *sync.Cond
	buf       []byte
	cancelled bool

	written []byte
	breaks  int
}

func newFakeUART() *fakeUART {
	u := &fakeUART{}
	u.cond = sync.NewCond(&u.mu)
	return u
}

// feed queues bs as one arriving burst, visible to Available/Read as soon
// as the next ReadByte call pulls the first octet off it.
func (u *fakeUART) feed(bs ...byte) {
	u.mu.Lock()
	u.buf = append(u.buf, bs...)
	u.cond.Broadcast()
	u.mu.Unlock()
}

func (u *fakeUART) ReadByte() (byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for len(u.buf) == 0 && !u.cancelled {
		u.cond.Wait()
	}
	if len(u.buf) == 0 {
		return 0, errFakeCancelled
	}
	b := u.buf[0]
	u.buf = u.buf[1:]
	return b, nil
}

func (u *fakeUART) Available() (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.buf), nil
}

func (u *fakeUART) Read(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := copy(p, u.buf)
	u.buf = u.buf[n:]
	return n, nil
}

func (u *fakeUART) Write(buf []byte) (int, error) {
	u.mu.Lock()
	u.written = append(u.written, buf...)
	u.mu.Unlock()
	return len(buf), nil
}

func (u *fakeUART) SendBreak() error {
	u.mu.Lock()
	u.breaks++
	u.mu.Unlock()
	return nil
}

func (u *fakeUART) CancelRead() {
	u.mu.Lock()
	u.cancelled = true
	u.cond.Broadcast()
	u.mu.Unlock()
}

func (u *fakeUART) Close() error { return nil }

func (u *fakeUART) writtenBytes() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]byte(nil), u.written...)
}

func (u *fakeUART) breakCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.breaks
}

// wireFrame escapes payload and appends a break marker, the shape reader()
// expects to pull off the wire under PARMRK.
func wireFrame(payload []byte) []byte {
	out := escape(payload)
	return append(out, breakSeq...)
}
