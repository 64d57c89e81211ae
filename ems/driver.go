// Package ems is the EMS bus layer-2 driver core: frame reassembly and
// classification, the paired ingress/egress state machines, the watchdog
// primitive guarding each exchange, and the writer that drives the UART.
// Everything outside these concerns — payload decoding, statistics
// presentation, the operator CLI, log transport and UART device node
// selection — is an external collaborator the core only ever sees through
// the Logger and UART interfaces.
package ems

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wnelis/emsbus/ems/internal/queue"
	"github.com/wnelis/emsbus/uart"
)

// rawFrame is what the reader hands the framer: the assembled, still
// wire-escaped frame buffer and the arrival time of its first octet.
type rawFrame struct {
	bytes   []byte
	arrival time.Time
}

// bufferedFrame is what the egress FSM buffers while waiting for our poll.
type bufferedFrame struct {
	bytes []byte
	kind  Kind
}

// writerItem is what the egress FSM hands to the writer.
type writerItem struct {
	bytes []byte
	kind  Kind
}

// ErredFrameCallback is invoked once per corrupt-checksum or short frame,
// registered through Driver.LogErredFrames.
type ErredFrameCallback func(arrival time.Time, frame []byte, computedChecksum *byte)

// Driver is the public handle onto an open EMS bus line: one UART, one pair
// of FSMs, four long-lived goroutines and the queues wiring them together.
type Driver struct {
	cfg Config
	dev UART
	log Logger

	stats *statsBox
	echo  *echoTracker

	// The raw-frame hand-off from Reader to Framer is a same-thread call
	// (see framer.go): Reader both assembles and frames each terminated
	// buffer itself, the way emsbus.py's reader() called _handle_iframe()
	// directly, which keeps the driver at exactly the four long-lived
	// goroutines §5 specifies. classified is the first genuinely
	// cross-goroutine queue: Reader produces into it, the Writer also
	// pushes RQ/WQ signals into it, and the ingress dispatcher consumes it.
	classified *queue.Unbounded[IngressItem]
	upstream   *queue.Unbounded[*Frame]
	egressIn   *queue.Unbounded[EgressItem]
	writerQ    *queue.Unbounded[writerItem]

	ingressFSM *FSM
	egressFSM  *FSM
	ingressWDT *WatchdogTimer
	egressWDT  *WatchdogTimer

	readerAlive atomic.Bool
	writerAlive atomic.Bool
	idispAlive  atomic.Bool
	edispAlive  atomic.Bool

	readerDone chan struct{}
	writerDone chan struct{}
	idispDone  chan struct{}
	edispDone  chan struct{}

	// idisp-owned scratch: touched only from the ingress-dispatcher
	// goroutine while running an FSM action.
	idispFrame *Frame

	// edisp-owned scratch: touched only from the egress-dispatcher
	// goroutine while running an FSM action.
	edispFrame  []byte
	edispKind   Kind
	edispBuffer *queue.Unbounded[bufferedFrame]

	erredCB   ErredFrameCallback
	erredCBMu sync.Mutex

	closed atomic.Bool
}

// echoTracker holds the most recently transmitted egress frame so the
// framer can suppress its loopback arrival, matching exactly once.
type echoTracker struct {
	mu    sync.Mutex
	frame []byte
	set   bool
}

func (e *echoTracker) setPending(frame []byte) {
	e.mu.Lock()
	e.frame = frame
	e.set = true
	e.mu.Unlock()
}

// tryConsume reports whether candidate matches the pending egress frame
// byte-for-byte, clearing the pending frame so the match only fires once.
func (e *echoTracker) tryConsume(candidate []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		return false
	}
	if len(candidate) != len(e.frame) {
		return false
	}
	for i := range candidate {
		if candidate[i] != e.frame[i] {
			return false
		}
	}
	e.set = false
	e.frame = nil
	return true
}

// Open starts a driver on dev, a UART the caller has already opened and
// configured (OpenDevice does both for a real tty), launching the four
// goroutines in the order ingress-dispatch, reader, writer,
// egress-dispatch.
func Open(cfg Config, dev UART) (*Driver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = nopLogger{}
	}

	d := &Driver{
		cfg: cfg,
		dev: dev,
		log: log,

		stats: newStatsBox(),
		echo:  &echoTracker{},

		classified: queue.NewUnbounded[IngressItem](),
		upstream:   queue.NewUnbounded[*Frame](),
		egressIn:   queue.NewUnbounded[EgressItem](),
		writerQ:    queue.NewUnbounded[writerItem](),

		ingressWDT: NewWatchdogTimer(),
		egressWDT:  NewWatchdogTimer(),

		edispBuffer: queue.NewUnbounded[bufferedFrame](),

		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
		idispDone:  make(chan struct{}),
		edispDone:  make(chan struct{}),
	}
	d.ingressFSM = newIngressFSM(d, cfg.Mode)
	d.egressFSM = newEgressFSM(d, cfg.Mode)
	d.ingressWDT.SetLogger(log)
	d.egressWDT.SetLogger(log)

	d.startThreads()
	return d, nil
}

// OpenDevice opens cfg.SerialDevice itself — the uart.Open step spec.md §6
// lists as part of open() (raw mode, parity-marking input, both queues
// flushed) — and starts the driver against it, the composed operation Open
// leaves to the caller when they already hold an open UART (tests, a paired
// PTY, …). If cfg.Logger is nil, OpenDevice installs a zerolog sink writing
// to stderr rather than falling back to the silent nopLogger, since a real
// device deserves a real log, not Open's test-friendly default.
func OpenDevice(cfg Config) (*Driver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = NewZerologSink(zerolog.New(os.Stderr).With().Timestamp().Logger())
	}
	port, err := uart.Open(cfg.SerialDevice)
	if err != nil {
		return nil, wrapErr(err.Error(), ErrPortOpen)
	}
	d, err := Open(cfg, port)
	if err != nil {
		port.Close()
		return nil, err
	}
	return d, nil
}

func (d *Driver) startThreads() {
	d.idispAlive.Store(true)
	go d.ingressDispatcher()

	d.readerAlive.Store(true)
	go d.reader()

	d.writerAlive.Store(true)
	go d.writer()

	d.edispAlive.Store(true)
	go d.egressDispatcher()
}

// Close stops the four goroutines in the reverse of their start order and
// closes the UART.
func (d *Driver) Close() error {
	if d.closed.Swap(true) {
		return ErrClosed
	}
	d.stopThreads()
	return d.dev.Close()
}

func (d *Driver) stopThreads() {
	d.edispAlive.Store(false)
	d.egressIn.Close()
	<-d.edispDone

	d.writerAlive.Store(false)
	d.writerQ.Close()
	<-d.writerDone

	d.readerAlive.Store(false)
	d.dev.CancelRead()
	<-d.readerDone

	d.idispAlive.Store(false)
	d.classified.Close()
	<-d.idispDone

	d.upstream.Close()
}

// ReadFrame blocks until a classified frame is available on the
// upstream-read queue and returns it.
func (d *Driver) ReadFrame() (*Frame, error) {
	f, ok := d.upstream.Get()
	if !ok {
		return nil, ErrClosed
	}
	return f, nil
}

// WriteFrame enqueues frame on the egress-input queue. The egress FSM holds
// it until a poll addressed to this device opens the window, whatever the
// device id; in monitor mode it is dropped.
func (d *Driver) WriteFrame(frame []byte, kind Kind) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.egressIn.Put(egressFrameItem(frame, kind))
	return nil
}

// GetStatistics returns a snapshot copy of the process-wide counters.
func (d *Driver) GetStatistics() Statistics {
	return d.stats.Snapshot()
}

// GetMode returns the textual mode name.
func (d *Driver) GetMode() string {
	return d.cfg.Mode.String()
}

// LogErredFrames registers cb to be invoked once per corrupt-checksum or
// short frame, with (time_of_arrival, frame_bytes, computed_checksum).
// computedChecksum is nil for a short frame (too short to compute one).
func (d *Driver) LogErredFrames(cb ErredFrameCallback) {
	d.erredCBMu.Lock()
	d.erredCB = cb
	d.erredCBMu.Unlock()
}

func (d *Driver) reportErredFrame(arrival time.Time, frame []byte, computed *byte) {
	d.erredCBMu.Lock()
	cb := d.erredCB
	d.erredCBMu.Unlock()
	if cb != nil {
		cb(arrival, frame, computed)
	}
}
