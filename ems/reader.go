package ems

import (
	"bytes"
	"time"
)

// breakSeq is the three-octet marker PARMRK delivers for a line break.
var breakSeq = []byte{wireEscape, wireFrmErr, wireFrmErr}

// reader is the UART Reader goroutine: it reassembles frames from the byte
// stream, detects the break delimiter honoring the even-leading-FF
// disambiguation rule, and hands each terminated frame to the framer by a
// direct call to frameIngress. Ported from emsbus.py's reader().
func (d *Driver) reader() {
	defer close(d.readerDone)

	var iframe []byte
	var iframeTime time.Time

	flush := func() {
		iframe = nil
		iframeTime = time.Time{}
	}

	for {
		b, err := d.dev.ReadByte()
		if err != nil {
			return // cancelled or closed: shutting down
		}
		if !d.readerAlive.Load() {
			return
		}

		data := []byte{b}
		if n, err := d.dev.Available(); err == nil && n > 0 {
			extra := make([]byte, n)
			nr, err := d.dev.Read(extra)
			if err == nil && nr > 0 {
				data = append(data, extra[:nr]...)
			}
		}

		so := 0
		for len(data) > 0 {
			if iframeTime.IsZero() {
				iframeTime = time.Now()
			}
			matchPos := indexOfSeq(data, breakSeq, so)
			if matchPos == -1 {
				iframe = append(iframe, data...)
				break
			}
			if matchPos > 0 {
				iframe = append(iframe, data[:matchPos]...)
				data = data[matchPos:]
				matchPos = 0
			}

			// Count consecutive trailing 0xff octets already in iframe: an
			// even count means the candidate FF 00 00 really is a break;
			// an odd count means the leading FF belongs to an escaped data
			// byte and the 00 00 that follows is genuine data.
			cnt := 0
			for i := len(iframe) - 1; i >= 0 && iframe[i] == wireEscape; i-- {
				cnt++
			}
			so = cnt % 2
			if so == 0 {
				skip := matchPos + len(breakSeq)
				data = data[skip:]
				d.frameIngress(rawFrame{bytes: iframe, arrival: iframeTime})
				flush()
			}
		}
	}
}

func indexOfSeq(data, seq []byte, from int) int {
	if from >= len(data) {
		return -1
	}
	idx := bytes.Index(data[from:], seq)
	if idx == -1 {
		return -1
	}
	return idx + from
}
