package j1708gw

//
// C6: J1587 transport protocol session
//

// Transport PIDs and RTS/CTS/EOM/Abort sub-types, matching the
// original firmware's message literals exactly.
const (
	pidConnectionManagement = 197
	pidDataTransfer         = 198

	subRTS   = 1
	subCTS   = 2
	subEOM   = 3
	subAbort = 255
)

// fx classification codes, matching J1708_T4.cpp's J1708Parse return values.
const (
	fxNone = iota
	fxRTS
	fxCTS
	fxEOM
	fxAbort
	fxCDP
)

// transportSessionTimeoutMilli aborts a stalled session, matching the
// original's TP_Session_Timer > 10000 check.
const transportSessionTimeoutMilli = 10000

// TransportSession implements the RTS/CTS/CDP/EOM/Abort state machine
// that segments and reassembles payloads too large for a single J1708
// frame. Only one session (inbound or outbound) may be active at a
// time, matching the original firmware's single TP_Rx_Flag/TP_Tx_Flag
// pair. Grounded on J1708_T4.cpp: RTS_Handler/CTS_Handler/CDP_Handler/
// EOM_Handler/Abort_Handler/J1708TransportTx.
type TransportSession struct {
	selfMID byte
	clock   Clock

	// send enqueues frame at the given priority, matching J1708Send.
	send func(frame []byte, priority uint8)

	// onReassembled is called once a full inbound payload has arrived.
	onReassembled func(sourceMID byte, payload []byte)

	rxActive    bool
	rxSegments  uint8
	rxBytes     int
	rxBuf       [MaxTransportPayload]byte
	sessionMID  byte
	sessionTime int64

	txActive   bool
	txSegments uint8
	txBytes    int
	txBuf      [MaxTransportPayload]byte

	// pending holds pre-built CDP segment frames awaiting dispatch in
	// order, mirroring the original's Q_Matrix/Q_flag/Q_Counter.
	pending []byte // concatenated frames, consumed via pendingLens
	pendingLens []int
	pendingAt   int
}

// NewTransportSession creates a [TransportSession]. send and
// onReassembled MUST NOT be nil.
func NewTransportSession(selfMID byte, clock Clock, send func(frame []byte, priority uint8), onReassembled func(sourceMID byte, payload []byte)) *TransportSession {
	return &TransportSession{selfMID: selfMID, clock: clock, send: send, onReassembled: onReassembled}
}

// Classify inspects a framed, checksum-valid, ACL-accepted frame and
// returns which transport handler (if any) it belongs to, matching
// J1708Parse's PID/sub-type switch.
func (ts *TransportSession) Classify(frame []byte) int {
	if len(frame) < 5 {
		return fxNone
	}
	pid := frame[1]
	switch pid {
	case pidConnectionManagement:
		if frame[3] != ts.selfMID {
			return fxNone
		}
		switch frame[4] {
		case subRTS:
			return fxRTS
		case subCTS:
			return fxCTS
		case subEOM:
			return fxEOM
		case subAbort:
			return fxAbort
		}
	case pidDataTransfer:
		if frame[3] == ts.selfMID {
			return fxCDP
		}
	}
	return fxNone
}

// Dispatch runs the handler fx names against frame.
func (ts *TransportSession) Dispatch(fx int, frame []byte) {
	switch fx {
	case fxRTS:
		ts.handleRTS(frame)
	case fxCTS:
		ts.handleCTS(frame)
	case fxEOM:
		ts.handleEOM(frame)
	case fxAbort:
		ts.handleAbort(frame)
	case fxCDP:
		ts.handleCDP(frame)
	}
}

func (ts *TransportSession) abortTo(dmid byte) {
	abort := []byte{ts.selfMID, pidConnectionManagement, 2, dmid, subAbort, 0}
	AppendChecksum(abort)
	ts.send(abort, 8)
}

func (ts *TransportSession) handleRTS(frame []byte) {
	dmid := frame[0]
	if ts.rxActive || ts.txActive {
		ts.abortTo(dmid)
		return
	}
	segments := frame[5]
	nbytes := int(frame[6]) | int(frame[7])<<8
	if segments == 0 || nbytes == 0 || nbytes > MaxTransportPayload {
		ts.abortTo(dmid)
		return
	}
	ts.rxActive = true
	ts.rxSegments = segments
	ts.rxBytes = nbytes
	ts.sessionMID = dmid
	ts.sessionTime = ts.clock.NowMilli()

	cts := []byte{ts.selfMID, 197, 4, dmid, 2, segments, 1, 0}
	AppendChecksum(cts)
	ts.send(cts, 8)
}

func (ts *TransportSession) handleCTS(frame []byte) {
	dmid := frame[0]
	if !ts.txActive || dmid != ts.sessionMID {
		ts.abortTo(dmid)
		return
	}
	nsegments := frame[5]
	start := frame[6]
	if nsegments > ts.txSegments || start > ts.txSegments {
		ts.abortTo(dmid)
		ts.resetTx()
		return
	}
	ts.sessionTime = ts.clock.NowMilli()

	ts.pending = ts.pending[:0]
	ts.pendingLens = ts.pendingLens[:0]
	ts.pendingAt = 0
	remaining := ts.txBytes
	for seg := int(start); seg < int(nsegments)+int(start); seg++ {
		n := TransportSegmentSize
		if remaining < n {
			n = remaining
		}
		body := make([]byte, 0, n+6)
		body = append(body, ts.selfMID, 198, byte(n+2), dmid, byte(seg))
		off := TransportSegmentSize * (seg - 1)
		body = append(body, ts.txBuf[off:off+n]...)
		body = append(body, 0)
		AppendChecksum(body)
		ts.pending = append(ts.pending, body...)
		ts.pendingLens = append(ts.pendingLens, len(body))
		remaining -= n
	}
}

// PopPending returns (and removes) the next queued CDP segment, if any.
// The scheduler gives this queue priority over the ordinary transmit
// ring, matching the original's Q_flag precedence.
func (ts *TransportSession) PopPending() ([]byte, bool) {
	if ts.pendingAt >= len(ts.pendingLens) {
		return nil, false
	}
	off := 0
	for i := 0; i < ts.pendingAt; i++ {
		off += ts.pendingLens[i]
	}
	n := ts.pendingLens[ts.pendingAt]
	ts.pendingAt++
	return ts.pending[off : off+n], true
}

func (ts *TransportSession) handleCDP(frame []byte) {
	dmid := frame[0]
	if !ts.rxActive || ts.sessionMID != dmid {
		ts.resetRx()
		ts.abortTo(dmid)
		return
	}
	ts.sessionTime = ts.clock.NowMilli()
	n := int(frame[2]) - 2
	segNumber := int(frame[4])
	start := (segNumber - 1) * TransportSegmentSize
	copy(ts.rxBuf[start:start+n], frame[5:5+n])

	if segNumber == int(ts.rxSegments) {
		eom := []byte{ts.selfMID, 197, 2, dmid, 3, 0}
		AppendChecksum(eom)
		ts.send(eom, 8)
		payload := append([]byte{}, ts.rxBuf[:ts.rxBytes]...)
		ts.resetRx()
		ts.onReassembled(dmid, payload)
	}
}

func (ts *TransportSession) handleEOM(frame []byte) {
	dmid := frame[0]
	if ts.txActive && dmid == ts.sessionMID {
		ts.resetTx()
		return
	}
	ts.abortTo(dmid)
}

func (ts *TransportSession) handleAbort(frame []byte) {
	dmid := frame[0]
	if (ts.txActive && dmid == ts.sessionMID) || (ts.rxActive && dmid == ts.sessionMID) {
		ts.resetRx()
		ts.resetTx()
	}
}

func (ts *TransportSession) resetRx() {
	ts.rxActive = false
	ts.rxBytes = 0
	ts.rxSegments = 0
}

func (ts *TransportSession) resetTx() {
	ts.txActive = false
	ts.txBytes = 0
	ts.txSegments = 0
	ts.pending = ts.pending[:0]
	ts.pendingLens = ts.pendingLens[:0]
	ts.pendingAt = 0
}

// Send initiates an outbound transport session for payload addressed
// to dmid. Returns ErrPayloadSize if payload falls outside
// [MinTransportPayload, MaxTransportPayload], and ErrNotReady if a
// session is already in flight.
func (ts *TransportSession) Send(payload []byte, dmid byte) error {
	if ts.rxActive || ts.txActive {
		return ErrNotReady
	}
	if len(payload) < MinTransportPayload || len(payload) > MaxTransportPayload {
		return ErrPayloadSize
	}

	segments := (len(payload) + TransportSegmentSize - 1) / TransportSegmentSize
	ts.txActive = true
	ts.txBytes = len(payload)
	ts.txSegments = uint8(segments)
	ts.sessionMID = dmid
	ts.sessionTime = ts.clock.NowMilli()
	copy(ts.txBuf[:], payload)

	rts := []byte{ts.selfMID, 197, 5, dmid, 1, byte(segments), byte(len(payload)), byte(len(payload) >> 8), 0}
	AppendChecksum(rts)
	ts.send(rts, 8)
	return nil
}

// CheckTimeout aborts the current session if longer than
// transportSessionTimeoutMilli has passed since it started or since the
// last valid CTS or CDP from the peer, matching J1708CheckNetwork's
// TP_Session_Timer check.
func (ts *TransportSession) CheckTimeout() {
	if !ts.rxActive && !ts.txActive {
		return
	}
	if ts.clock.NowMilli()-ts.sessionTime <= transportSessionTimeoutMilli {
		return
	}
	ts.abortTo(ts.sessionMID)
	ts.resetRx()
	ts.resetTx()
}
