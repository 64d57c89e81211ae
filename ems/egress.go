package ems

// egressDispatcher is the Egress Dispatcher FSM goroutine: it classifies
// what the application (WriteFrame), the ingress side (PQ/RQ/WQ/XD
// signals) and the writer (XD) hand it, buffering application frames until
// our poll window opens. Ported from emsbus.py's egress_dispatcher.
func (d *Driver) egressDispatcher() {
	defer close(d.edispDone)
	for {
		item, ok := d.egressIn.Get()
		if !ok {
			return
		}

		var stim Stimulus
		have := false

		if item.isSignal() {
			d.edispFrame = nil
			switch item.Signal {
			case SigPollReq:
				stim, have = StimRecvPollReq, true
			case SigReadReq:
				stim, have = StimRecvReadReq, true
			case SigWriteReq:
				stim, have = StimRecvWriteReq, true
			case SigExchangeDone:
				stim, have = StimRecvExchDone, true
			}
		} else {
			frame := item.Frame
			lf := len(frame)
			switch {
			case lf == 1 && isWriteReplySentinel(frame[0]):
				d.edispKind = KindWriteRep
				stim, have = stimWriteRep, true

			case lf < minFrameSize:
				d.stats.add(func(s *Statistics) {
					s.EgressTotalFrames++
					s.EgressTotalOctets += uint64(lf) + 1
					s.EgressErrShort++
				})

			case lf > maxFrameSize:
				d.stats.add(func(s *Statistics) {
					s.EgressTotalFrames++
					s.EgressTotalOctets += uint64(lf) + 1
					s.EgressErrLong++
				})

			default:
				switch {
				case frame[offDestin] == 0x00:
					d.edispKind = KindReadRep
					stim = stimReadRep
				case frame[offDestin]&0x80 != 0:
					d.edispKind = KindReadReq
					stim = stimReadReq
				default:
					d.edispKind = KindReadOrWrt
					stim = stimReadOrWrt
				}
				have = true
			}

			if have {
				d.edispFrame = frame
			}
		}

		if have {
			d.egressFSM.HandleEvent(stim, nil)
		}
	}
}

func (d *Driver) efsmDoNothing(any) {}

func (d *Driver) efsmIgnoreFrame(any) {
	d.edispFrame = nil
}

func (d *Driver) efsmBufferFrame(any) {
	d.edispBuffer.Put(bufferedFrame{bytes: d.edispFrame, kind: d.edispKind})
	d.edispFrame = nil
}

func (d *Driver) efsmForwardFrame(any) {
	if d.edispFrame != nil {
		d.writerQ.Put(writerItem{bytes: d.edispFrame, kind: d.edispKind})
	}
	d.edispFrame = nil
}

func (d *Driver) efsmForwardBuffer(any) {
	bf, ok := d.edispBuffer.Get()
	if ok {
		d.writerQ.Put(writerItem{bytes: bf.bytes, kind: bf.kind})
	}
}

func (d *Driver) efsmDoRearep(any) {
	d.edispKind = KindReadRep
	d.egressFSM.AugmentEvent(stimReadRep, nil)
}

func (d *Driver) efsmDoWrireq(any) {
	d.edispKind = KindWriteReq
	d.egressFSM.AugmentEvent(stimWriteReq, nil)
}

func (d *Driver) efsmReportError(any) {
	state, stim := d.egressFSM.State()
	d.log.Warn("egress protocol error", "state", state, "stimulus", string(stim))
	d.stats.add(func(s *Statistics) { s.EgressErrProtocol++ })
}

func (d *Driver) efsmReppeAndIgnf(any) {
	d.efsmReportError(nil)
	d.edispFrame = nil
}

// efsmSendPolrep answers a poll addressed to us with our bare address
// octet, and — if nothing is buffered to follow it with — tells the FSM
// the poll window can close immediately.
func (d *Driver) efsmSendPolrep(any) {
	d.writerQ.Put(writerItem{bytes: []byte{d.cfg.DeviceID}, kind: KindPollRep})
	if d.edispBuffer.Empty() {
		d.egressFSM.AugmentEvent(StimBufEmpty, nil)
	}
}

func (d *Driver) efsaHandleTimeout() {
	d.stats.add(func(s *Statistics) { s.EgressErrTimeout++ })
	d.egressFSM.HandleEvent(StimTimeout, nil)
}

func (d *Driver) efsaStartWdtEr() bool {
	if d.egressFSM.NextState() == "WeXd" {
		d.egressWDT.Start(pollReqTimeout, d.efsaHandleTimeout)
	}
	return true
}

func (d *Driver) efsaStopWdtEr() bool {
	state, stim := d.egressFSM.State()
	if state == "WeXd" && stim == StimRecvExchDone {
		d.egressWDT.Stop()
	}
	return true
}

func (d *Driver) efsaStartWdtIr() bool {
	switch d.egressFSM.NextState() {
	case "WiRp":
		d.egressWDT.Start(readReqTimeout, d.efsaHandleTimeout)
	case "WiWp":
		d.egressWDT.Start(writeReqTimeout, d.efsaHandleTimeout)
	}
	return true
}

func (d *Driver) efsaStopWdtIr() bool {
	state, stim := d.egressFSM.State()
	switch {
	case (state == "WiRp" || state == "WiRpb") && stim == stimReadRep:
		d.egressWDT.Stop()
	case (state == "WiWp" || state == "WiWpb") && stim == stimWriteRep:
		d.egressWDT.Stop()
	}
	return true
}

func newEgressFSM(d *Driver, mode Mode) *FSM {
	switch mode {
	case ModeParticipate, ModeMixed:
		return NewFSM(participateEgressMatrix(d), participateEgressStateActions(d), "Init")
	default:
		return NewFSM(monitorEgressMatrix(d), monitorEgressStateActions(d), "Init")
	}
}

func monitorEgressMatrix(d *Driver) Matrix {
	return Matrix{
		"Init": Row{
			StimRecvPollReq:  {"Init", d.efsmDoNothing},
			StimRecvReadReq:  {"Init", d.efsmDoNothing},
			StimRecvWriteReq: {"Init", d.efsmDoNothing},
			StimRecvExchDone: {"Init", d.efsmDoNothing},
			stimReadReq:      {"Init", d.efsmIgnoreFrame},
			stimReadRep:      {"Init", d.efsmIgnoreFrame},
			stimWriteReq:     {"Init", d.efsmIgnoreFrame},
			stimWriteRep:     {"Init", d.efsmIgnoreFrame},
			stimReadOrWrt:    {"Init", d.efsmIgnoreFrame},
		},
	}
}

func monitorEgressStateActions(d *Driver) StateActions {
	return StateActions{}
}

func participateEgressMatrix(d *Driver) Matrix {
	return Matrix{
		"Init": Row{
			StimRecvPollReq:  {"Init", d.efsmSendPolrep},
			StimRecvReadReq:  {"WiRp", d.efsmDoNothing},
			StimRecvWriteReq: {"WiWp", d.efsmDoNothing},
			StimRecvExchDone: {"Init", d.efsmReportError},
			stimReadReq:      {"WePq", d.efsmBufferFrame},
			stimReadRep:      {"WePq", d.efsmBufferFrame},
			stimWriteReq:     {"WePq", d.efsmBufferFrame},
			stimWriteRep:     {"Init", d.efsmReppeAndIgnf},
			stimReadOrWrt:    {"Init", d.efsmDoWrireq},
			StimBufEmpty:     {"Init", d.efsmDoNothing},
			StimTimeout:      {"Init", d.efsmDoNothing},
		},
		"WiRp": Row{
			StimRecvPollReq:  {"Init", d.efsmSendPolrep},
			StimRecvReadReq:  {"WiRp", d.efsmReportError},
			StimRecvWriteReq: {"WiRp", d.efsmReportError},
			StimRecvExchDone: {"WiRp", d.efsmReportError},
			stimReadReq:      {"WiRpb", d.efsmBufferFrame},
			stimReadRep:      {"Init", d.efsmForwardFrame},
			stimWriteReq:     {"WiRp", d.efsmReppeAndIgnf},
			stimWriteRep:     {"WiRp", d.efsmReppeAndIgnf},
			stimReadOrWrt:    {"WiRp", d.efsmDoRearep},
			StimBufEmpty:     {"Init", d.efsmIgnoreFrame},
			StimTimeout:      {"Init", d.efsmDoNothing},
		},
		"WiRpb": Row{
			StimRecvPollReq:  {"WePq", d.efsmSendPolrep},
			StimRecvReadReq:  {"WiRpb", d.efsmReportError},
			StimRecvWriteReq: {"WiRpb", d.efsmReportError},
			StimRecvExchDone: {"WiRpb", d.efsmReportError},
			stimReadReq:      {"WiRpb", d.efsmBufferFrame},
			stimReadRep:      {"WePq", d.efsmForwardFrame},
			stimWriteReq:     {"WiRpb", d.efsmReppeAndIgnf},
			stimWriteRep:     {"WiRpb", d.efsmReppeAndIgnf},
			stimReadOrWrt:    {"WiRpb", d.efsmDoRearep},
			StimBufEmpty:     {"WiRpb", d.efsmReportError},
			StimTimeout:      {"WePq", d.efsmDoNothing},
		},
		"WiWp": Row{
			StimRecvPollReq:  {"Init", d.efsmSendPolrep},
			StimRecvReadReq:  {"WiRp", d.efsmReportError},
			StimRecvWriteReq: {"WiWp", d.efsmReportError},
			StimRecvExchDone: {"WiWp", d.efsmReportError},
			stimReadReq:      {"WiWpb", d.efsmBufferFrame},
			stimReadRep:      {"WiWpb", d.efsmBufferFrame},
			stimWriteReq:     {"WiWpb", d.efsmBufferFrame},
			stimWriteRep:     {"Init", d.efsmForwardFrame},
			stimReadOrWrt:    {"WiWp", d.efsmDoWrireq},
			StimBufEmpty:     {"WiWp", d.efsmReportError},
			StimTimeout:      {"Init", d.efsmDoNothing},
		},
		"WiWpb": Row{
			StimRecvPollReq:  {"WePq", d.efsmSendPolrep},
			StimRecvReadReq:  {"WiWpb", d.efsmReportError},
			StimRecvWriteReq: {"WiWpb", d.efsmReportError},
			StimRecvExchDone: {"WiWpb", d.efsmReportError},
			stimReadReq:      {"WiWpb", d.efsmBufferFrame},
			stimReadRep:      {"WiWpb", d.efsmBufferFrame},
			stimWriteReq:     {"WiRpb", d.efsmBufferFrame},
			stimWriteRep:     {"WePq", d.efsmForwardFrame},
			stimReadOrWrt:    {"WiRpb", d.efsmDoWrireq},
			StimBufEmpty:     {"WiWpb", d.efsmReportError},
			StimTimeout:      {"WePq", d.efsmDoNothing},
		},
		"WePq": Row{
			StimRecvPollReq:  {"WeXd", d.efsmForwardBuffer},
			StimRecvReadReq:  {"WiRpb", d.efsmDoNothing},
			StimRecvWriteReq: {"WiWpb", d.efsmDoNothing},
			StimRecvExchDone: {"WePq", d.efsmReportError},
			stimReadReq:      {"WePq", d.efsmBufferFrame},
			stimReadRep:      {"WePq", d.efsmBufferFrame},
			stimWriteReq:     {"WePq", d.efsmBufferFrame},
			stimWriteRep:     {"WePq", d.efsmReppeAndIgnf},
			stimReadOrWrt:    {"WePq", d.efsmDoWrireq},
			StimBufEmpty:     {"WePq", d.efsmReportError},
			StimTimeout:      {"WePq", d.efsmDoNothing},
		},
		"WeXd": Row{
			StimRecvPollReq:  {"WeXd", d.efsmReportError},
			StimRecvReadReq:  {"WeXd", d.efsmReportError},
			StimRecvWriteReq: {"WeXd", d.efsmReportError},
			StimRecvExchDone: {"WePq", d.efsmSendPolrep},
			stimReadReq:      {"WeXd", d.efsmBufferFrame},
			stimReadRep:      {"WeXd", d.efsmBufferFrame},
			stimWriteReq:     {"WeXd", d.efsmBufferFrame},
			stimWriteRep:     {"WeXd", d.efsmReppeAndIgnf},
			stimReadOrWrt:    {"WeXd", d.efsmDoWrireq},
			StimBufEmpty:     {"WeXd", d.efsmReportError},
			StimTimeout:      {"WePq", d.efsmSendPolrep},
		},
	}
}

func participateEgressStateActions(d *Driver) StateActions {
	return StateActions{
		"Init":  d.efsaStartWdtIr,
		"WiRp":  d.efsaStopWdtIr,
		"WiRpb": d.efsaStopWdtIr,
		"WiWp":  d.efsaStopWdtIr,
		"WiWpb": d.efsaStopWdtIr,
		"WePq":  d.efsaStartWdtEr,
		"WeXd":  d.efsaStopWdtEr,
	}
}
