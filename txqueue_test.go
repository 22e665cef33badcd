package j1708gw

import "testing"

func TestTxQueueFIFO(t *testing.T) {
	tq := NewTxQueue()
	if tq.Len() != 0 {
		t.Fatalf("expected empty queue, got len %d", tq.Len())
	}

	if !tq.Enqueue([]byte{1}, 5) {
		t.Fatal("expected enqueue to succeed")
	}
	if !tq.Enqueue([]byte{2}, 3) {
		t.Fatal("expected enqueue to succeed")
	}
	if tq.Len() != 2 {
		t.Fatalf("unexpected length: %d", tq.Len())
	}

	frame, priority, ok := tq.Peek()
	if !ok || frame[0] != 1 || priority != 5 {
		t.Fatalf("unexpected head: %v %d %v", frame, priority, ok)
	}
	tq.Advance()

	frame, priority, ok = tq.Peek()
	if !ok || frame[0] != 2 || priority != 3 {
		t.Fatalf("unexpected head after advance: %v %d %v", frame, priority, ok)
	}
}

func TestTxQueueOverflow(t *testing.T) {
	tq := NewTxQueue()
	for i := 0; i < TxQueueSize; i++ {
		if !tq.Enqueue([]byte{byte(i)}, 0) {
			t.Fatalf("unexpected rejection at entry %d", i)
		}
	}
	if tq.Enqueue([]byte{0xFF}, 0) {
		t.Fatal("expected the ring to reject once full")
	}
	if tq.ERR3Counter != 1 {
		t.Fatalf("unexpected ERR3Counter: %d", tq.ERR3Counter)
	}

	elevated := tq.ArbitrationDelayMicro(0)
	tq.Advance() // free up a slot
	if !tq.Enqueue([]byte{0xFE}, 0) {
		t.Fatal("expected enqueue to succeed once a slot frees up")
	}
	// A successful enqueue pays down one unit of penalty.
	if got := tq.ArbitrationDelayMicro(0); got != elevated-PenaltyTimeMicro {
		t.Fatalf("expected penalty to be paid down: got %d want %d", got, elevated-PenaltyTimeMicro)
	}
}

func TestTxQueueArbitrationDelayScalesWithPriority(t *testing.T) {
	tq := NewTxQueue()
	low := tq.ArbitrationDelayMicro(0)
	high := tq.ArbitrationDelayMicro(8)
	if high <= low {
		t.Fatalf("expected higher priority value to mean a longer delay: low=%d high=%d", low, high)
	}
}
