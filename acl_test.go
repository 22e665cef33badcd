package j1708gw

import (
	"testing"
	"time"
)

func TestAccessControlListBlocksSelfByDefault(t *testing.T) {
	acl := NewAccessControlList(0xAC)
	if !acl.Blocked(0xAC) {
		t.Fatal("expected selfMID to be blocked by default")
	}
	if acl.Blocked(0x01) {
		t.Fatal("expected an unrelated MID to be unblocked")
	}
}

func TestAccessControlListBlockUnblock(t *testing.T) {
	acl := NewAccessControlList(0xAC)
	acl.Block(0x42)
	if !acl.Blocked(0x42) {
		t.Fatal("expected MID to be blocked")
	}
	acl.Unblock(0x42)
	if acl.Blocked(0x42) {
		t.Fatal("expected MID to be unblocked")
	}
}

func TestStatsBusloadAndShare(t *testing.T) {
	clock := NewFakeClock()
	stats := NewStats(clock)

	stats.CreditBytes(0x10, 600)
	stats.CreditBytes(0x20, 300)

	// Update is a no-op before the 1-second window elapses.
	stats.Update()
	snap := stats.Snapshot()
	if snap.Busload != 0 {
		t.Fatalf("expected no busload yet, got %f", snap.Busload)
	}

	clock.Advance(1100 * time.Millisecond)
	stats.Update()
	snap = stats.Snapshot()

	wantBusload := 900.0 / ProtocolMaxBytesPerSecond
	if diff := snap.Busload - wantBusload; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected busload: got %f want %f", snap.Busload, wantBusload)
	}
	if diff := snap.MIDShare[0x10] - (600.0 / 900.0); diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected MID share for 0x10: %f", snap.MIDShare[0x10])
	}
}
