package ems

// Signal is one of the 2-byte inter-FSM codes the Python driver piggybacked
// onto its frame queues ('PQ', 'RQ', 'WQ', 'XD'). Re-architected per the
// spec's design notes as an explicit sum-type member rather than a 2-byte
// ASCII string sharing the frame queue's wire format.
type Signal string

const (
	// SigPollReq: a poll addressed to us was observed on ingress.
	SigPollReq Signal = "PQ"
	// SigReadReq: from the writer to the ingress side, we are sending a read
	// request, so watch for the paired reply; from the ingress side to the
	// egress side, a read request addressed to us was received.
	SigReadReq Signal = "RQ"
	// SigWriteReq: from the writer to the ingress side, we are sending a
	// write request, so watch for the paired reply; from the ingress side to
	// the egress side, a write request addressed to us was received.
	SigWriteReq Signal = "WQ"
	// SigExchangeDone: the reply to our request was received, or a
	// broadcast read-reply we sent was just transmitted — the current poll
	// window can close.
	SigExchangeDone Signal = "XD"
)

// IngressItem is what flows over the classified-frame queue: either a
// Frame produced by the framer, or a Signal pushed by the writer (RQ/WQ)
// ahead of the physical transmission it precedes.
type IngressItem struct {
	Frame  *Frame
	Signal Signal
}

func frameItem(f *Frame) IngressItem   { return IngressItem{Frame: f} }
func signalItem(s Signal) IngressItem  { return IngressItem{Signal: s} }
func (it IngressItem) isSignal() bool  { return it.Frame == nil }

// EgressItem is what flows over the egress-input queue: either a frame the
// application wants transmitted, or a Signal from the ingress dispatcher or
// writer (PQ/RQ/WQ/XD).
type EgressItem struct {
	Frame  []byte
	Kind   Kind
	Signal Signal
}

func egressFrameItem(frame []byte, kind Kind) EgressItem {
	return EgressItem{Frame: frame, Kind: kind}
}
func egressSignalItem(s Signal) EgressItem { return EgressItem{Signal: s} }
func (it EgressItem) isSignal() bool       { return it.Frame == nil }
