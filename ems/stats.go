package ems

import (
	"sync"
	"time"
)

// Statistics is a snapshot of the process-wide EMS bus counters. Every field
// mirrors a key of the Python driver's self.sbs dict.
type Statistics struct {
	BusAddressConflict uint64

	IngressTotalFrames   uint64
	IngressTotalOctets   uint64
	IngressEchoFrames    uint64
	IngressEmptyFrames   uint64
	IngressShortFrames   uint64
	IngressErrors        uint64
	IngressErrFrames     uint64
	IngressErrOctets     uint64
	IngressErrTimeout    uint64
	IngressErrProtocol   uint64
	IngressEMSPlusFrames uint64
	IngressPolReqFrames  uint64
	IngressPolRepFrames  uint64
	IngressReaReqFrames  uint64
	IngressReaRepFrames  uint64
	IngressWriReqFrames  uint64
	IngressWriRepFrames  uint64

	EgressTotalFrames  uint64
	EgressTotalOctets  uint64
	EgressPolRepFrames uint64
	EgressReaReqFrames uint64
	EgressReaRepFrames uint64
	EgressWriReqFrames uint64
	EgressWriRepFrames uint64
	EgressErrShort     uint64
	EgressErrLong      uint64
	EgressErrTimeout   uint64
	EgressErrProtocol  uint64

	StartTime time.Time
}

// statsBox is the mutation-safe home for Statistics: every increment is
// performed by the single goroutine that detected the event, and readers
// only ever see it through Snapshot, which takes the lock once to copy the
// whole struct.
type statsBox struct {
	mu sync.Mutex
	s  Statistics
}

func newStatsBox() *statsBox {
	b := &statsBox{}
	b.s.StartTime = time.Now()
	return b
}

func (b *statsBox) Snapshot() Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.s
}

// add applies fn to the live counters under lock. Call sites pass a closure
// that increments the handful of fields relevant to one event, so a single
// lock acquisition covers e.g. both "total frames" and "total octets".
func (b *statsBox) add(fn func(*Statistics)) {
	b.mu.Lock()
	fn(&b.s)
	b.mu.Unlock()
}

// egressFrameCounterField returns the per-kind egress counter field to
// increment for k, mirroring the Python driver's 'egress_{}_frames'.format(type)
// dynamic lookup with an explicit switch (Go has no dict-of-fields).
func egressFrameCounterField(k Kind, s *Statistics) *uint64 {
	switch k {
	case KindPollRep:
		return &s.EgressPolRepFrames
	case KindReadReq:
		return &s.EgressReaReqFrames
	case KindReadRep:
		return &s.EgressReaRepFrames
	case KindWriteReq:
		return &s.EgressWriReqFrames
	case KindWriteRep:
		return &s.EgressWriRepFrames
	default:
		return nil
	}
}
