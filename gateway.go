package j1708gw

//
// C7/C8: Gateway scheduler, port object, and linking
//

// GatewayConfig configures a [Gateway]. UART and Clock are MANDATORY;
// everything else has a usable default.
type GatewayConfig struct {
	// SelfMID is this node's own message ID, used both to source frames
	// this gateway originates and to detect spoofing of that MID by
	// others.
	SelfMID byte

	// UART is the MANDATORY byte-level bus device.
	UART UART

	// Clock is the MANDATORY time source.
	Clock Clock

	// HostPort marks this Gateway as sitting on the "host" segment
	// rather than the "shared" segment of a two-segment topology. It
	// selects which flood-alert kind (ERR9 vs ERR10) is emitted; ERR10
	// alerts are sent to the linked peer when one is linked.
	HostPort bool

	// Forwarding enables relaying accepted frames to a linked peer.
	// The zero value (false) leaves forwarding off.
	Forwarding bool

	// Logger is optional; defaults to a no-op logger.
	Logger Logger

	// Indicators is optional; defaults to [NullIndicators].
	Indicators Indicators

	// Name is a human-readable identifier used in log messages.
	// Defaults to an auto-generated name.
	Name string

	// Thresholds configures the intrusion detector's tunable limits. A
	// zero value reproduces the original firmware's defaults.
	Thresholds IntrusionThresholds
}

// nullLogger is the zero-value Logger fallback.
type nullLogger struct{}

func (nullLogger) Debug(string)          {}
func (nullLogger) Debugf(string, ...any) {}
func (nullLogger) Info(string)           {}
func (nullLogger) Infof(string, ...any)  {}
func (nullLogger) Warn(string)           {}
func (nullLogger) Warnf(string, ...any)  {}

// Gateway is one J1708 bus port: it frames and transmits traffic,
// polices it with an ACL and intrusion detector, runs the J1587
// transport session, and can forward accepted frames to a linked peer.
// Drive it by calling Update repeatedly (typically once per available
// byte slot; see cmd/j1708gw for a goroutine-per-port host). The zero
// value is not usable; construct with NewGateway.
//
// Grounded on J1708_T4.cpp: J1708Listen/J1708Update for the tick
// algorithm, and on ooni-netem's linkForward/linkForwardingState for
// the Go shape of a cooperative, clock-driven dispatch loop.
type Gateway struct {
	name       string
	selfMID    byte
	hostPort   bool
	forwarding bool

	clock      Clock
	logger     Logger
	indicators Indicators
	recorder   *BusRecorder

	receiver    *FrameReceiver
	transmitter *FrameTransmitter
	txQueue     *TxQueue
	acl         *AccessControlList
	stats       *Stats
	intrusion   *IntrusionDetector
	transport   *TransportSession
	dispatch    *dispatchGate

	peer Peer

	lastActivityMicro int64

	// FwdCounter counts frames relayed to a linked peer.
	FwdCounter uint64
}

// NewGateway constructs a [Gateway] from cfg.
func NewGateway(cfg GatewayConfig) *Gateway {
	logger := Logger(nullLogger{})
	if cfg.Logger != nil {
		logger = cfg.Logger
	}
	indicators := Indicators(NullIndicators{})
	if cfg.Indicators != nil {
		indicators = cfg.Indicators
	}
	name := cfg.Name
	if name == "" {
		name = newPortName()
	}

	g := &Gateway{
		name:       name,
		selfMID:    cfg.SelfMID,
		hostPort:   cfg.HostPort,
		forwarding: true,
		clock:      cfg.Clock,
		logger:     logger,
		indicators: indicators,
		txQueue:    NewTxQueue(),
		acl:        NewAccessControlList(cfg.SelfMID),
	}
	if !cfg.Forwarding {
		g.forwarding = false
	}
	g.stats = NewStats(cfg.Clock)
	g.receiver = NewFrameReceiver(cfg.UART, cfg.Clock, g.stats.CreditBytes)
	g.transmitter = NewFrameTransmitter(cfg.UART, cfg.Clock)
	// A host-segment flood alert (ERR10) warns the other segment, so it
	// goes to the linked peer; every other alert goes out on this bus.
	sendAlert := func(frame []byte, priority uint8) {
		if _, kind, _, _, ok := DecodeAlert(frame); ok && kind == AlertFloodHost && g.peer != nil {
			g.peer.EnqueueTx(frame, priority)
			return
		}
		g.enqueueTx(frame, priority)
	}
	g.intrusion = NewIntrusionDetector(cfg.SelfMID, cfg.HostPort, g.acl, g.stats, cfg.Clock, indicators, sendAlert, cfg.Thresholds)
	g.transport = NewTransportSession(cfg.SelfMID, cfg.Clock, g.enqueueTx, g.onReassembled)
	g.dispatch = newDispatchGate(cfg.Clock)
	return g
}

// Name returns this Gateway's identifying name.
func (g *Gateway) Name() string {
	return g.name
}

// Link attaches peer as this Gateway's forwarding target: accepted
// frames are relayed to it when Forwarding is enabled.
func (g *Gateway) Link(peer Peer) {
	g.peer = peer
}

// Unlink detaches any linked peer.
func (g *Gateway) Unlink() {
	g.peer = nil
}

// SetRecorder attaches a [BusRecorder] that mirrors every accepted or
// transmitted frame. Pass nil to stop recording.
func (g *Gateway) SetRecorder(rec *BusRecorder) {
	g.recorder = rec
}

// EnqueueTx implements [Peer], letting another Gateway forward frames
// to this one.
func (g *Gateway) EnqueueTx(frame []byte, priority uint8) error {
	g.enqueueTx(frame, priority)
	return nil
}

func (g *Gateway) enqueueTx(frame []byte, priority uint8) {
	cp := append([]byte{}, frame...)
	if !g.txQueue.Enqueue(cp, priority) {
		g.logger.Warnf("%s: tx queue full, dropping frame for MID %d", g.name, frame[0])
	}
}

// SendPayload starts a J1587 transport session carrying payload to dmid.
func (g *Gateway) SendPayload(payload []byte, dmid byte) error {
	return g.transport.Send(payload, dmid)
}

// onReassembled is the transport session's completion callback;
// override via a future hook if application-level consumption is
// needed. For now it only logs.
func (g *Gateway) onReassembled(sourceMID byte, payload []byte) {
	g.logger.Infof("%s: reassembled %d bytes from MID %d", g.name, len(payload), sourceMID)
}

func (g *Gateway) handleAlert(frame []byte) {
	_, kind, target, _, ok := DecodeAlert(frame)
	if !ok {
		return
	}
	switch kind {
	case AlertRogue, AlertFloodShared, AlertFloodHost:
		g.acl.Block(target)
		g.indicators.Pulse(IndicatorSecurity)
	case AlertSpoof:
		g.indicators.Pulse(IndicatorSecurity)
	}
}

// Update runs one scheduler tick: it drains at most one byte from the
// UART, classifies any frame that completes, dispatches at most one
// queued frame for transmission if the bus is idle and arbitration
// timing allows it, runs any transport handler whose dispatch gate has
// opened, and finally runs periodic ACL/flood/timeout housekeeping.
func (g *Gateway) Update() {
	now := g.clock.NowMicro()

	if g.receiver.Busy() {
		g.lastActivityMicro = now
	}

	if length, ok := g.receiver.Receive(); ok {
		frame := append([]byte{}, g.receiver.Frame(length)...)
		g.lastActivityMicro = now
		g.processFrame(frame)
	}

	g.maybeTransmit(now)
	g.dispatch.pump(g.transport)

	g.stats.Update()
	g.intrusion.CheckFlood()
	g.transport.CheckTimeout()
}

func (g *Gateway) processFrame(frame []byte) {
	if IsAlert(frame) {
		g.handleAlert(frame)
		return
	}

	mid := frame[0]
	if !g.intrusion.CheckSource(mid) {
		return
	}

	g.indicators.Pulse(IndicatorRx)
	if g.recorder != nil {
		g.recorder.RecordRx(mid, frame)
	}
	if g.peer != nil && g.forwarding {
		if err := g.peer.EnqueueTx(frame, 0); err == nil {
			g.FwdCounter++
		}
	}

	g.dispatch.classify(g.transport, frame)
}

func (g *Gateway) maybeTransmit(now int64) {
	if g.receiver.Busy() {
		return
	}

	_, headPriority, hasOrdinary := g.txQueue.Peek()
	priority := uint8(8)
	if hasOrdinary {
		priority = headPriority
	}
	if now-g.lastActivityMicro < g.txQueue.ArbitrationDelayMicro(priority) {
		return
	}

	if frame, ok := g.transport.PopPending(); ok {
		g.doTransmit(frame, now)
		return
	}
	if frame, _, ok := g.txQueue.Peek(); ok {
		g.txQueue.Advance()
		g.doTransmit(frame, now)
	}
}

func (g *Gateway) doTransmit(frame []byte, now int64) {
	err := g.transmitter.Transmit(frame)
	g.lastActivityMicro = g.clock.NowMicro()
	if err != nil {
		g.logger.Debugf("%s: transmit failed: %s", g.name, err.Error())
		return
	}
	g.indicators.Pulse(IndicatorTx)
	if g.recorder != nil {
		g.recorder.RecordTx(frame[0], frame)
	}
}

// Stats returns a snapshot of this Gateway's busload/MID-share counters.
func (g *Gateway) Stats() StatsSnapshot {
	return g.stats.Snapshot()
}

// GatewayCounters is a point-in-time read of every error/event counter
// this Gateway tracks, for the "j1708config -s -s" statistics dump.
type GatewayCounters struct {
	RXCounter    uint64
	TXCounter    uint64
	FwdCounter   uint64
	ERR1Counter  uint64 // checksum
	ERR2Counter  uint64 // rx overflow
	ERR3Counter  uint64 // tx queue overflow
	ERR4Counter  uint64 // collision
	ERR5Counter  uint64 // no echo
	ERR7Counter  uint64 // spoof
	ERR8Counter  uint64 // rogue self
	ERR9Counter  uint64 // flood, shared net
	ERR10Counter uint64 // flood, host net
}

// Counters returns a snapshot of this Gateway's error/event counters.
func (g *Gateway) Counters() GatewayCounters {
	return GatewayCounters{
		RXCounter:    g.receiver.RXCounter,
		TXCounter:    g.transmitter.TXCounter,
		FwdCounter:   g.FwdCounter,
		ERR1Counter:  g.receiver.ERR1Counter,
		ERR2Counter:  g.receiver.ERR2Counter,
		ERR3Counter:  g.txQueue.ERR3Counter,
		ERR4Counter:  g.transmitter.ERR4Counter,
		ERR5Counter:  g.transmitter.ERR5Counter,
		ERR7Counter:  g.intrusion.ERR7Counter,
		ERR8Counter:  g.intrusion.ERR8Counter,
		ERR9Counter:  g.intrusion.ERR9Counter,
		ERR10Counter: g.intrusion.ERR10Counter,
	}
}

// Blocked reports whether mid is currently on this Gateway's ACL.
func (g *Gateway) Blocked(mid byte) bool {
	return g.acl.Blocked(mid)
}

// Block adds mid to this Gateway's ACL.
func (g *Gateway) Block(mid byte) {
	g.acl.Block(mid)
}

// Unblock removes mid from this Gateway's ACL. Unblocking this
// Gateway's own selfMID is refused, matching the spoof-detection
// invariant every other ACL entry point relies on.
func (g *Gateway) Unblock(mid byte) {
	if mid == g.selfMID {
		return
	}
	g.acl.Unblock(mid)
}

// ResetACL clears every blocked MID except this Gateway's own.
func (g *Gateway) ResetACL() {
	g.acl.Reset()
}

// BlockAllACL marks every MID as blocked, including this Gateway's own.
func (g *Gateway) BlockAllACL() {
	g.acl.BlockAll()
}

// ResetCounters zeroes every error/event counter across the engine.
func (g *Gateway) ResetCounters() {
	g.receiver.RXCounter = 0
	g.receiver.ERR1Counter = 0
	g.receiver.ERR2Counter = 0
	g.transmitter.TXCounter = 0
	g.transmitter.ERR4Counter = 0
	g.transmitter.ERR5Counter = 0
	g.txQueue.ERR3Counter = 0
	g.intrusion.ERR7Counter = 0
	g.intrusion.ERR8Counter = 0
	g.intrusion.ERR9Counter = 0
	g.intrusion.ERR10Counter = 0
	g.FwdCounter = 0
}

// ResetTimers aborts any in-flight transport session, discarding
// whatever RTS/CTS/CDP state it had accumulated.
func (g *Gateway) ResetTimers() {
	g.transport.resetRx()
	g.transport.resetTx()
}

// SetForwarding enables or disables relaying accepted frames to a
// linked peer.
func (g *Gateway) SetForwarding(enabled bool) {
	g.forwarding = enabled
}

// SetHostPort marks this Gateway as sitting on the "host" segment of a
// two-segment topology, changing which flood-alert kind (ERR9 vs ERR10)
// the intrusion detector emits.
func (g *Gateway) SetHostPort(hostPort bool) {
	g.hostPort = hostPort
	g.intrusion.hostPort = hostPort
}

// SetMaxBusload overrides the busload threshold used by flood detection.
func (g *Gateway) SetMaxBusload(v float64) {
	g.intrusion.SetMaxBusload(v)
}

// SetMaxMIDShare overrides the per-MID share threshold used by flood detection.
func (g *Gateway) SetMaxMIDShare(v float64) {
	g.intrusion.SetMaxMIDShare(v)
}

// SetSelfMID changes this Gateway's own MID, preserving existing ACL
// entries (the new MID is added to the block list; nothing else is
// cleared), matching the original firmware's "-m" gateway command.
func (g *Gateway) SetSelfMID(mid byte) {
	g.selfMID = mid
	g.acl.SetSelfMID(mid)
	g.intrusion.selfMID = mid
	g.transport.selfMID = mid
}

// dispatchNormalDelayMilli and dispatchCooldownDelayMilli are the
// original firmware's N_Rate/C_Rate constants, in milliseconds: a
// transport handler runs only once N_Rate has passed since its frame
// was classified and, after the first handler has run, C_Rate has
// passed since the previous handler run.
const (
	dispatchNormalDelayMilli   = 1000
	dispatchCooldownDelayMilli = 2000
)

// dispatchGate defers running a transport handler to a later scheduler
// tick than the one that classified its triggering frame, so a handler
// never reenters the UART with an outgoing reply in the same tick a
// frame was received. Classify is cheap and safe to run immediately;
// Dispatch is the half that writes to the bus, so only it is gated.
type dispatchGate struct {
	clock Clock

	gateMilli int64
	lastMilli int64

	pendingFx    int
	pendingFrame []byte
	pendingMilli int64
}

func newDispatchGate(clock Clock) *dispatchGate {
	return &dispatchGate{clock: clock, gateMilli: dispatchNormalDelayMilli}
}

// classify records fx/frame as the next handler to run, overwriting
// whatever was previously pending, matching the original's single
// fx/Loopbuffer slot.
func (g *dispatchGate) classify(ts *TransportSession, frame []byte) {
	if fx := ts.Classify(frame); fx != fxNone {
		g.pendingFx = fx
		g.pendingFrame = frame
		g.pendingMilli = g.clock.NowMilli()
	}
}

// pump runs the pending handler against ts once N_Rate has elapsed since
// it was classified and the gate interval has elapsed since the last
// dispatch, then starts the longer cooldown period before the next one.
func (g *dispatchGate) pump(ts *TransportSession) {
	if g.pendingFx == fxNone {
		return
	}
	now := g.clock.NowMilli()
	if now-g.pendingMilli < dispatchNormalDelayMilli || now-g.lastMilli < g.gateMilli {
		return
	}
	fx, frame := g.pendingFx, g.pendingFrame
	g.pendingFx = fxNone
	g.pendingFrame = nil
	ts.Dispatch(fx, frame)
	g.gateMilli = dispatchCooldownDelayMilli
	g.lastMilli = now
}
