package main

import (
	"strings"
	"testing"

	"github.com/truckbus/j1708gateway"
)

func newTestRouter(t *testing.T) (*commandRouter, *j1708gw.Gateway) {
	t.Helper()
	gw := j1708gw.NewGateway(j1708gw.GatewayConfig{
		SelfMID: 0xAC,
		UART:    j1708gw.NewLoopbackUART(),
		Clock:   j1708gw.NewFakeClock(),
		Name:    "sp3",
	})
	return newCommandRouter(map[string]*j1708gw.Gateway{"sp3": gw}), gw
}

func TestCommandRouterUnknownPort(t *testing.T) {
	r, _ := newTestRouter(t)
	if got := r.Dispatch("j1708config sp9 -g -a AC"); !strings.Contains(got, "unknown port") {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestCommandRouterACLAddRemove(t *testing.T) {
	r, gw := newTestRouter(t)

	r.Dispatch("j1708config sp3 -g -a 10")
	if !gw.Blocked(0x10) {
		t.Fatal("expected MID 0x10 to be blocked")
	}

	r.Dispatch("j1708config sp3 -g -r 10")
	if gw.Blocked(0x10) {
		t.Fatal("expected MID 0x10 to be unblocked")
	}
}

func TestCommandRouterSetSelfMID(t *testing.T) {
	r, gw := newTestRouter(t)

	r.Dispatch("j1708config sp3 -g -m 50")
	if !gw.Blocked(0x50) {
		t.Fatal("expected new self MID to be blocked")
	}
}

func TestCommandRouterThresholds(t *testing.T) {
	r, gw := newTestRouter(t)

	if got := r.Dispatch("j1708config sp3 -g -b 0.5"); !strings.Contains(got, "0.5") {
		t.Fatalf("unexpected response: %q", got)
	}
	if got := r.Dispatch("j1708config sp3 -g -M 0.2"); !strings.Contains(got, "0.2") {
		t.Fatalf("unexpected response: %q", got)
	}
	_ = gw
}

func TestCommandRouterReset(t *testing.T) {
	r, gw := newTestRouter(t)
	gw.Block(0x33)

	r.Dispatch("j1708config sp3 -r -a")
	if gw.Blocked(0x33) {
		t.Fatal("expected -r -a to clear the ACL")
	}
}

func TestCommandRouterResetBlockAll(t *testing.T) {
	r, gw := newTestRouter(t)

	r.Dispatch("j1708config sp3 -r -b")
	if !gw.Blocked(0x10) {
		t.Fatal("expected -r -b to block every MID")
	}
}

func TestCommandRouterShowStatistics(t *testing.T) {
	r, _ := newTestRouter(t)
	got := r.Dispatch("j1708config sp3 -s -s")
	if !strings.Contains(got, "busload=") {
		t.Fatalf("expected a statistics dump, got %q", got)
	}
}

func TestCommandRouterSendFrame(t *testing.T) {
	r, _ := newTestRouter(t)
	got := r.Dispatch("j1708send sp3 4 DE.AD.be.ef")
	if !strings.Contains(got, "queued") {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestCommandRouterSendFrameRejectsMismatchedLength(t *testing.T) {
	r, _ := newTestRouter(t)
	got := r.Dispatch("j1708send sp3 5 DE.AD.be.ef")
	if !strings.Contains(got, "expected 5") {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestCommandRouterSendTransport(t *testing.T) {
	r, _ := newTestRouter(t)
	payload := strings.Repeat("01.", 19) + "01" // 20 dot-separated bytes
	got := r.Dispatch("j1708send sp3 -T A1 20 " + payload)
	if !strings.Contains(got, "transport session started") {
		t.Fatalf("unexpected response: %q", got)
	}
}
