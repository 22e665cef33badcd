package j1708gw

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeAlertRoundTrip(t *testing.T) {
	frame := EncodeAlert(0xAC, AlertFloodShared, 0x42, nil)

	if !IsAlert(frame) {
		t.Fatal("expected encoded frame to be recognized as an alert")
	}

	source, kind, target, payload, ok := DecodeAlert(frame)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if source != 0xAC || kind != AlertFloodShared || target != 0x42 {
		t.Fatalf("unexpected decode: source=%d kind=%d target=%d", source, kind, target)
	}
	if diff := cmp.Diff([]byte{}, payload); diff != "" {
		t.Fatalf("unexpected payload (-want +got):\n%s", diff)
	}
}

func TestEncodeAlertWithPayload(t *testing.T) {
	payload := []byte{0x01, 0x02}
	frame := EncodeAlert(0xAC, AlertSpoof, 0xAC, payload)

	_, _, _, got, ok := DecodeAlert(frame)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if diff := cmp.Diff(payload, got); diff != "" {
		t.Fatalf("unexpected payload (-want +got):\n%s", diff)
	}

	// frame length = 4 header bytes + 1 length byte + LEN + 1 checksum
	wantLen := 4 + 1 + (2 + len(payload)) + 1
	if len(frame) != wantLen {
		t.Fatalf("unexpected frame length: got %d want %d", len(frame), wantLen)
	}
}

func TestIsAlertRejectsOrdinaryFrames(t *testing.T) {
	frame := []byte{0xAC, 0x01, 0x02, 0x03}
	if IsAlert(frame) {
		t.Fatal("expected an ordinary frame not to be recognized as an alert")
	}
}
