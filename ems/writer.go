package ems

import "time"

const (
	// busMasterAddr is the device id of the bus master, the sole device
	// whose own transmission is echoed back to it octet-by-octet on this
	// wiring, which is why it paces writes one byte at a time instead of
	// relying on the UART's own buffering.
	busMasterAddr = 0x0b

	masterByteDelay = 3300 * time.Microsecond
	bulkByteRate    = 960.0 // bytes/second the post-write pause is sized against
)

// writer is the UART Writer goroutine: it appends the checksum octet,
// updates egress statistics, notifies the ingress side of a pending reply
// for request frames, transmits the frame, and closes the half-duplex
// window with a break. Ported from emsbus.py's writer.
func (d *Driver) writer() {
	defer close(d.writerDone)

	for {
		item, ok := d.writerQ.Get()
		if !ok {
			return
		}

		frame := item.bytes
		kind := item.kind
		lf := len(frame)

		d.stats.add(func(s *Statistics) {
			s.EgressTotalFrames++
			s.EgressTotalOctets += uint64(lf) + 1 // +1 for the break that follows
			if p := egressFrameCounterField(kind, s); p != nil {
				*p++
			}
		})

		if lf >= minFrameSize {
			frame = append(frame, 0x00)
			frame[len(frame)-1] = checksum(frame[:len(frame)-1])
			d.stats.add(func(s *Statistics) { s.EgressTotalOctets++ })
		}

		// A request we're about to transmit has a reply to watch for: tell
		// the ingress side before the bytes go out, so there's no race
		// between the reply arriving and the watchdog being armed.
		switch kind {
		case KindReadReq:
			d.classified.Put(signalItem(SigReadReq))
		case KindWriteReq:
			d.classified.Put(signalItem(SigWriteReq))
		}

		d.echo.setPending(frame)

		if d.cfg.DeviceID == busMasterAddr {
			for _, b := range frame {
				if _, err := d.dev.Write([]byte{b}); err != nil {
					d.log.Error("egress write failed", "err", err.Error())
					break
				}
				time.Sleep(masterByteDelay)
			}
		} else {
			if _, err := d.dev.Write(frame); err != nil {
				d.log.Error("egress write failed", "err", err.Error())
			} else {
				time.Sleep(time.Duration(float64(len(frame)) / bulkByteRate * float64(time.Second)))
			}
		}

		if err := d.dev.SendBreak(); err != nil {
			d.log.Error("send break failed", "err", err.Error())
		}

		// An unsolicited (broadcast) read reply closes its own exchange —
		// there's no poll to answer it, so tell the egress side directly.
		if kind == KindReadRep && len(frame) > offDestin && frame[offDestin] == 0x00 {
			d.egressIn.Put(egressSignalItem(SigExchangeDone))
		}
	}
}
