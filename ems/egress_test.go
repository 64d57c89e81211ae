package ems

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEgressDispatcherCountsShortAndLongFramesWithoutDrivingFSM(t *testing.T) {
	d, _ := newTestDriver(t, ModeParticipate, 0x08)

	short := []byte{0x10, 0x08, 0x00} // below minFrameSize
	d.egressIn.Put(egressFrameItem(short, KindWriteReq))

	long := make([]byte, maxFrameSize+1)
	d.egressIn.Put(egressFrameItem(long, KindWriteReq))

	require.Eventually(t, func() bool {
		s := d.GetStatistics()
		return s.EgressErrShort == 1 && s.EgressErrLong == 1
	}, time.Second, 5*time.Millisecond)

	// Neither should have reached the writer: the FSM state is untouched and
	// the egress buffer stays empty.
	state, _ := d.egressFSM.State()
	require.Equal(t, "Init", state)
}

func TestParticipateEgressBuffersOutboundRequestUntilOurPoll(t *testing.T) {
	d, dev := newTestDriver(t, ModeParticipate, 0x08)

	// The application originates a fresh read request; with no poll window
	// open yet it has to wait its turn.
	outbound := []byte{0x08, 0x90, 0x18, 0x00} // Destin 0x90 has the 0x80 bit set
	require.NoError(t, d.WriteFrame(outbound, KindReadReq))

	require.Eventually(t, func() bool {
		state, _ := d.egressFSM.State()
		return state == "WePq"
	}, time.Second, 5*time.Millisecond)
	require.Empty(t, dev.writtenBytes(), "must not transmit before the poll window opens")

	// Our poll arrives: the buffered request is flushed to the writer.
	d.egressIn.Put(egressSignalItem(SigPollReq))

	require.Eventually(t, func() bool {
		return len(dev.writtenBytes()) > 0
	}, time.Second, 5*time.Millisecond)

	state, _ := d.egressFSM.State()
	require.Equal(t, "WeXd", state)
}

func TestMonitorEgressIgnoresEverything(t *testing.T) {
	d, dev := newTestDriver(t, ModeMonitor, 0x08)

	d.egressIn.Put(egressSignalItem(SigPollReq))
	d.egressIn.Put(egressFrameItem([]byte{0x08, 0x00, 0x18, 0x00}, KindReadReq))

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, dev.writtenBytes())
	state, _ := d.egressFSM.State()
	require.Equal(t, "Init", state)
}
