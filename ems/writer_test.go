package ems

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriterAppendsChecksumAndTransmitsFrame(t *testing.T) {
	d, dev := newTestDriver(t, ModeParticipate, 0x08)

	payload := []byte{0x08, 0x90, 0x18, 0x00}
	d.writerQ.Put(writerItem{bytes: append([]byte(nil), payload...), kind: KindWriteReq})

	want := append(append([]byte(nil), payload...), checksum(payload))
	require.Eventually(t, func() bool {
		return len(dev.writtenBytes()) == len(want)
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, want, dev.writtenBytes())
	require.GreaterOrEqual(t, dev.breakCount(), 1)

	stats := d.GetStatistics()
	require.Equal(t, uint64(1), stats.EgressTotalFrames)
	require.Equal(t, uint64(len(payload)+2), stats.EgressTotalOctets) // +1 checksum, +1 break
	require.Equal(t, uint64(1), stats.EgressWriReqFrames)
}

func TestWriterDoesNotAppendChecksumToSingleOctetFrame(t *testing.T) {
	d, dev := newTestDriver(t, ModeParticipate, 0x08)

	d.writerQ.Put(writerItem{bytes: []byte{0x08}, kind: KindPollRep})

	require.Eventually(t, func() bool {
		return len(dev.writtenBytes()) > 0
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []byte{0x08}, dev.writtenBytes())
}

func TestBusMasterPacesTransmissionByteAtATime(t *testing.T) {
	d, dev := newTestDriver(t, ModeParticipate, busMasterAddr)

	payload := []byte{busMasterAddr, 0x90, 0x18, 0x00}
	start := time.Now()
	d.writerQ.Put(writerItem{bytes: append([]byte(nil), payload...), kind: KindWriteReq})

	want := append(append([]byte(nil), payload...), checksum(payload))
	require.Eventually(t, func() bool {
		return len(dev.writtenBytes()) == len(want)
	}, 2*time.Second, 5*time.Millisecond)
	elapsed := time.Since(start)

	// 5 octets paced at 3300us apart must take noticeably longer than the
	// bulk-write path (len/960s ~= 5ms) would.
	require.Greater(t, elapsed, 10*time.Millisecond)
	require.Equal(t, want, dev.writtenBytes())
}

func TestWriterNotifiesEgressOfBroadcastReadReplyExchangeDone(t *testing.T) {
	d, _ := newTestDriver(t, ModeParticipate, 0x08)

	broadcast := []byte{0x08, 0x00, 0x18, 0x00} // Destin 0x00: broadcast
	d.writerQ.Put(writerItem{bytes: broadcast, kind: KindReadRep})

	// Egress FSM starts in Init; an unsolicited exchange-done there is a
	// protocol error, which is how we observe the XD signal arrived.
	require.Eventually(t, func() bool {
		return d.GetStatistics().EgressErrProtocol == 1
	}, time.Second, 5*time.Millisecond)
}
