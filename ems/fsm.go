package ems

import "sync"

// Stimulus is an FSM input symbol: a Kind cast to Stimulus for the frame
// alphabet, plus the internal-only symbols (xmtrq, xmtwq, rcvpq, ..., timout,
// bufemp) that never appear as a Kind.
type Stimulus string

const (
	StimTimeout  Stimulus = "timout"
	StimBufEmpty Stimulus = "bufemp"

	StimXmitReadReq  Stimulus = "xmtrq"
	StimXmitWriteReq Stimulus = "xmtwq"

	StimRecvPollReq  Stimulus = "rcvpq"
	StimRecvReadReq  Stimulus = "rcvrq"
	StimRecvWriteReq Stimulus = "rcvwq"
	StimRecvExchDone Stimulus = "rcvxd"
)

// Revert is the pseudo next-state meaning "restore the previous state".
// None of the concrete ingress/egress tables below reach for it (the
// Python source never used it either), but the engine honors it per the
// generic contract the spec's design notes describe.
const Revert = "\x00revert\x00"

// Action runs as the event action for a (state, stimulus) transition. param
// is nil for bare events; a tagged parameter for events AugmentEvent'd with
// one (e.g. a reclassified frame).
type Action func(param any)

// StateAction runs once per event, keyed by the FSM's *current* (about to be
// left) state, before the event action — it may consult NextState() to
// decide what it's arming/disarming for. Returning false skips the event
// action; the state transition still commits either way.
type StateAction func() bool

type transition struct {
	next   string
	action Action
}

// Row is one state's stimulus -> transition mapping.
type Row map[Stimulus]transition

// Matrix is a full FSM variant's transition table, state -> Row. Each
// Driver builds its own from the constructor for its FSM variant (mode x
// direction); the actions are method values bound to that Driver, and the
// table is not modified after construction, unlike the Python source's
// class-level dict mutated at construction time via types.MethodType.
type Matrix map[string]Row

// StateActions maps state -> StateAction, the per-state vector.
type StateActions map[string]StateAction

type event struct {
	stim  Stimulus
	param any
}

// FSM is a cooperative finite state machine: its state is only ever mutated
// from inside interpret(), which HandleEvent serializes with a mutex. That
// mutex exists for one reason: the watchdog handler calls HandleEvent
// directly from the timer's own goroutine (exactly as watchdog.py's
// original did), so a dispatcher-goroutine HandleEvent and a
// timer-goroutine HandleEvent can race without it.
type FSM struct {
	matrix    Matrix
	stateActs StateActions

	runMu sync.Mutex

	state     string
	prevState string
	nextState string
	stimulus  Stimulus

	hi chan event // high-priority queue, capacity 2
	lo chan event // default queue, capacity 16
}

const (
	hiQueueCapacity  = 2
	defQueueCapacity = 16
)

// NewFSM builds an FSM in initial state init.
func NewFSM(matrix Matrix, stateActs StateActions, init string) *FSM {
	return &FSM{
		matrix:    matrix,
		stateActs: stateActs,
		state:     init,
		prevState: init,
		hi:        make(chan event, hiQueueCapacity),
		lo:        make(chan event, defQueueCapacity),
	}
}

// State returns the current (state, stimulus) pair, used for protocol-error
// logging the way GetState backed ifsm_report_error/efsm_report_error.
func (f *FSM) State() (state string, stimulus Stimulus) {
	return f.state, f.stimulus
}

// NextState exposes the state the FSM is about to enter, for use by a
// StateAction that needs to decide e.g. which watchdog timeout to arm.
func (f *FSM) NextState() string { return f.nextState }

// ReportEvent enqueues stim to the default queue without draining it — used
// by goroutines that hand work off to the FSM's own interpreter loop; the
// event is handled by the next HandleEvent call.
func (f *FSM) ReportEvent(stim Stimulus, param any) {
	f.lo <- event{stim: stim, param: param}
}

// AugmentEvent enqueues to the high-priority queue, which drains before the
// default queue on the next interpreter iteration. Only ever called from
// within an action, to reclassify the stimulus currently being handled
// (do_rearep, do_wrireq) or to follow it with an immediate event
// (send_polrep's bufemp).
func (f *FSM) AugmentEvent(stim Stimulus, param any) {
	f.hi <- event{stim: stim, param: param}
}

// HandleEvent enqueues stim to the default queue, then drains both queues
// until empty. Safe to call from more than one goroutine — the watchdog
// timeout handler calls it from the timer's own goroutine while the owning
// dispatcher goroutine may be calling it too, so the enqueue+interpret
// sequence runs under runMu.
func (f *FSM) HandleEvent(stim Stimulus, param any) {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	f.lo <- event{stim: stim, param: param}
	f.interpret()
}

// interpret drains the high-priority queue first, then the default queue,
// non-blocking, until both are empty.
func (f *FSM) interpret() {
	for {
		var ev event
		var ok bool
		select {
		case ev = <-f.hi:
			ok = true
		default:
			select {
			case ev = <-f.lo:
				ok = true
			default:
			}
		}
		if !ok {
			return
		}
		f.apply(ev)
	}
}

func (f *FSM) apply(ev event) {
	row, ok := f.matrix[f.state]
	if !ok {
		return
	}
	tr, ok := row[ev.stim]
	if !ok {
		return
	}

	f.stimulus = ev.stim
	f.nextState = tr.next

	runEventAction := true
	if sa := f.stateActs[f.state]; sa != nil {
		runEventAction = sa()
	}
	if runEventAction && tr.action != nil {
		tr.action(ev.param)
	}
	f.commit(tr.next)
}

func (f *FSM) commit(next string) {
	if next == Revert {
		next = f.prevState
	}
	f.prevState = f.state
	f.state = next
}
