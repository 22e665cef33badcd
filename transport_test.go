package j1708gw

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// wireTransportPair cross-connects two TransportSessions as if they sat
// on the same bus, each behind its own [dispatchGate]: whatever A sends
// is classified against B's gate (and vice versa), but the matching
// handler only runs once a test explicitly pumps that gate. This
// mirrors how [Gateway] drives a TransportSession — classification is
// immediate, handler dispatch is deferred to a later scheduler tick.
func wireTransportPair(t *testing.T, midA, midB byte, onA, onB func(byte, []byte)) (a, b *TransportSession, clock *FakeClock, gateA, gateB *dispatchGate) {
	t.Helper()
	clock = NewFakeClock()
	gateA = newDispatchGate(clock)
	gateB = newDispatchGate(clock)
	a = NewTransportSession(midA, clock, func(frame []byte, priority uint8) {
		gateB.classify(b, frame)
	}, onA)
	b = NewTransportSession(midB, clock, func(frame []byte, priority uint8) {
		gateA.classify(a, frame)
	}, onB)
	return a, b, clock, gateA, gateB
}

func TestTransportSessionRoundTrip(t *testing.T) {
	var got []byte
	var gotSource byte
	a, b, clock, gateA, gateB := wireTransportPair(t, 0x10, 0x20,
		func(byte, []byte) {},
		func(src byte, payload []byte) { gotSource = src; got = payload },
	)

	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}

	if err := a.Send(payload, 0x20); err != nil {
		t.Fatalf("unexpected error starting session: %s", err)
	}

	// The RTS was classified against B's gate but must not be handled
	// in the same tick it arrived.
	if b.rxActive {
		t.Fatal("expected RTS handling to be deferred, not run in the same tick")
	}

	clock.Advance(1100 * time.Millisecond)
	gateB.pump(b) // handles RTS, emits CTS (classified against gateA)
	if !b.rxActive {
		t.Fatal("expected RTS to be handled once the dispatch gate opened")
	}

	clock.Advance(1100 * time.Millisecond)
	gateA.pump(a) // handles CTS, builds the pending CDP segments

	// Drain A's queued CDP segments as the scheduler would, feeding
	// each into B's gate and waiting out the post-dispatch cooldown
	// before pumping it.
	for {
		frame, ok := a.PopPending()
		if !ok {
			break
		}
		gateB.classify(b, frame)
		clock.Advance(2100 * time.Millisecond)
		gateB.pump(b)
	}

	clock.Advance(2100 * time.Millisecond)
	gateA.pump(a) // handles EOM

	if diff := cmp.Diff(payload, got); diff != "" {
		t.Fatalf("unexpected reassembled payload (-want +got):\n%s", diff)
	}
	if gotSource != 0x10 {
		t.Fatalf("unexpected source MID: %d", gotSource)
	}
	if a.txActive || b.rxActive {
		t.Fatal("expected both sessions to be idle after EOM")
	}
}

func TestDispatchGateDefersHandlerToLaterTick(t *testing.T) {
	clock := NewFakeClock()
	gate := newDispatchGate(clock)
	ts := NewTransportSession(0x10, clock, func([]byte, uint8) {}, func(byte, []byte) {})

	rts := []byte{0x20, 197, 5, 0x10, 1, 3, 40, 0, 0}
	gate.classify(ts, rts)
	if ts.rxActive {
		t.Fatal("classify must not run the handler")
	}

	gate.pump(ts) // gate not open yet (no time has passed)
	if ts.rxActive {
		t.Fatal("expected pump to be a no-op before the gate interval elapses")
	}

	clock.Advance(1100 * time.Millisecond)
	gate.pump(ts)
	if !ts.rxActive {
		t.Fatal("expected pump to run the deferred handler once the gate opened")
	}
}

func TestTransportSessionRejectsOversizedPayload(t *testing.T) {
	clock := NewFakeClock()
	ts := NewTransportSession(0x10, clock, func([]byte, uint8) {}, func(byte, []byte) {})

	if err := ts.Send(make([]byte, MaxTransportPayload+1), 0x20); err != ErrPayloadSize {
		t.Fatalf("expected ErrPayloadSize, got %v", err)
	}
	if err := ts.Send(make([]byte, MinTransportPayload-1), 0x20); err != ErrPayloadSize {
		t.Fatalf("expected ErrPayloadSize, got %v", err)
	}
}

func TestTransportSessionClassifiesFrames(t *testing.T) {
	ts := NewTransportSession(0x10, NewFakeClock(), func([]byte, uint8) {}, func(byte, []byte) {})

	rts := []byte{0x20, 197, 5, 0x10, 1, 3, 40, 0, 0}
	if fx := ts.Classify(rts); fx != fxRTS {
		t.Fatalf("expected fxRTS, got %d", fx)
	}

	notForUs := []byte{0x20, 197, 5, 0x99, 1, 3, 40, 0, 0}
	if fx := ts.Classify(notForUs); fx != fxNone {
		t.Fatalf("expected fxNone for a frame addressed elsewhere, got %d", fx)
	}
}
