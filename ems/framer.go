package ems

// frameIngress is the Ingress Framer: it runs synchronously at the tail of
// Reader's break detection (see the Driver struct in driver.go for why
// there is no separate goroutine), translating one terminated wire buffer into zero or one
// IngressItem pushed onto the classified-frame queue. Ported from
// emsbus.py's _handle_iframe.
func (d *Driver) frameIngress(rf rawFrame) {
	buf, errCount := unescape(rf.bytes)

	// Echo suppression: a frame we just transmitted looping back is
	// accounted for on the egress side already, and must not touch the
	// ingress counters at all.
	if d.echo.tryConsume(buf) {
		d.stats.add(func(s *Statistics) { s.IngressEchoFrames++ })
		return
	}

	d.stats.add(func(s *Statistics) {
		s.IngressTotalFrames++
		s.IngressTotalOctets += uint64(len(buf)) + 1 // +1 for the break
	})

	if errCount > 0 {
		d.stats.add(func(s *Statistics) {
			s.IngressErrFrames++
			s.IngressErrOctets += uint64(len(buf)) + 1
			s.IngressErrors += uint64(errCount)
		})
		d.classified.Put(frameItem(&Frame{Kind: KindErrFrame, TimeOfArrival: rf.arrival}))
		return
	}

	switch {
	case len(buf) == 0:
		d.stats.add(func(s *Statistics) { s.IngressEmptyFrames++ })

	case len(buf) == 1:
		// Poll request, poll reply or write reply: the dispatcher
		// subclassifies from the single byte's value.
		d.classified.Put(frameItem(&Frame{Bytes: buf, TimeOfArrival: rf.arrival}))

	case len(buf) <= minFrameSize:
		d.reportErredFrame(rf.arrival, buf, nil)
		d.stats.add(func(s *Statistics) { s.IngressShortFrames++ })
		d.classified.Put(frameItem(&Frame{Kind: KindErrFrame, TimeOfArrival: rf.arrival}))

	default:
		want := checksum(buf[:len(buf)-1])
		if buf[len(buf)-1] == want {
			if buf[offType] >= emsPlusTypeThreshold {
				d.stats.add(func(s *Statistics) { s.IngressEMSPlusFrames++ })
			}
			payload := buf[:len(buf)-1]
			d.classified.Put(frameItem(&Frame{Bytes: payload, TimeOfArrival: rf.arrival}))
		} else {
			got := want
			d.reportErredFrame(rf.arrival, buf, &got)
			d.stats.add(func(s *Statistics) {
				s.IngressErrFrames++
				s.IngressErrOctets += uint64(len(buf)) + 1
			})
			d.classified.Put(frameItem(&Frame{Kind: KindErrFrame, TimeOfArrival: rf.arrival}))
		}
	}
}
