package j1708gw

import (
	"testing"
	"time"
)

type stubPeer struct {
	frames [][]byte
}

func (p *stubPeer) EnqueueTx(frame []byte, priority uint8) error {
	p.frames = append(p.frames, append([]byte{}, frame...))
	return nil
}

func newTestGateway(t *testing.T, selfMID byte) (*Gateway, *LoopbackUART, *FakeClock) {
	t.Helper()
	uart := NewLoopbackUART()
	clock := NewFakeClock()
	gw := NewGateway(GatewayConfig{SelfMID: selfMID, UART: uart, Clock: clock, Forwarding: true})
	return gw, uart, clock
}

// driveReception feeds frame byte-by-byte through Update, as the
// scheduler does one byte per tick, then advances past the inter-byte
// gap so the next Update completes the frame.
func driveReception(gw *Gateway, uart *LoopbackUART, clock *FakeClock, frame []byte) {
	uart.Inject(frame...)
	for i := 0; i < len(frame); i++ {
		gw.Update()
		clock.Advance(100 * time.Microsecond)
	}
	clock.Advance(2000 * time.Microsecond)
	gw.Update()
}

func TestGatewayForwardsAcceptedFrame(t *testing.T) {
	gw, uart, clock := newTestGateway(t, 0xAC)
	peer := &stubPeer{}
	gw.Link(peer)

	frame := []byte{0x10, 0x00, 0x01, 0x02, 0x00}
	AppendChecksum(frame)

	driveReception(gw, uart, clock, frame)

	if gw.FwdCounter != 1 {
		t.Fatalf("unexpected FwdCounter: %d", gw.FwdCounter)
	}
	if len(peer.frames) != 1 {
		t.Fatalf("expected one forwarded frame, got %d", len(peer.frames))
	}
	if string(peer.frames[0]) != string(frame) {
		t.Fatalf("unexpected forwarded frame: got %v want %v", peer.frames[0], frame)
	}
}

func TestGatewayDoesNotForwardWhenUnlinked(t *testing.T) {
	gw, uart, clock := newTestGateway(t, 0xAC)

	frame := []byte{0x10, 0x00, 0x01, 0x02, 0x00}
	AppendChecksum(frame)

	driveReception(gw, uart, clock, frame)

	if gw.FwdCounter != 0 {
		t.Fatalf("expected no forwarding without a linked peer, got FwdCounter=%d", gw.FwdCounter)
	}
}

func TestGatewayRejectsSpoofedSelfMID(t *testing.T) {
	gw, uart, clock := newTestGateway(t, 0xAC)
	peer := &stubPeer{}
	gw.Link(peer)

	frame := []byte{0xAC, 0x00, 0x01, 0x02, 0x00} // claims our own MID
	AppendChecksum(frame)

	driveReception(gw, uart, clock, frame)

	if gw.FwdCounter != 0 {
		t.Fatalf("expected a spoofed frame not to be forwarded, got FwdCounter=%d", gw.FwdCounter)
	}
	if len(peer.frames) != 0 {
		t.Fatalf("expected no frames forwarded, got %d", len(peer.frames))
	}
	if gw.intrusion.ERR7Counter != 1 {
		t.Fatalf("unexpected ERR7Counter: %d", gw.intrusion.ERR7Counter)
	}
}

func TestGatewayTransmitsQueuedFrame(t *testing.T) {
	gw, uart, clock := newTestGateway(t, 0xAC)

	frame := []byte{0xAC, 0x00, 0x01, 0x00}
	AppendChecksum(frame)
	gw.enqueueTx(frame, 0)

	// Advance well past the arbitration delay for priority 0 so the
	// next tick is free to transmit.
	clock.Advance(10 * time.Millisecond)
	gw.Update()

	if gw.transmitter.TXCounter != 1 {
		t.Fatalf("expected one transmit attempt, got %d", gw.transmitter.TXCounter)
	}
	if !uart.Available() {
		t.Fatal("expected the transmitted frame to be visible on the bus")
	}
}

func TestGatewayBlockedReflectsACL(t *testing.T) {
	gw, _, _ := newTestGateway(t, 0xAC)

	if !gw.Blocked(0xAC) {
		t.Fatal("expected a gateway to start with its own MID blocked")
	}
	if gw.Blocked(0x10) {
		t.Fatal("expected an unrelated MID to be unblocked")
	}
}
