package j1708gw

//
// C1: Frame Receiver
//

// gapMicro is the minimum idle time, in microseconds, that marks the
// end of a frame: 12 bit-times at 9600 baud.
const gapMicro = 1250

// FrameReceiver performs byte-at-a-time J1708 framing: it reads at most
// one byte per call to Receive, detects frame boundaries via the 12
// bit-time idle gap, and validates the trailing checksum. The zero
// value is not usable; construct with NewFrameReceiver.
//
// Grounded on J1708_T4.cpp: J1708Rx. The original indexes
// J1708Message[FrameLength] one past what looks like the end of the
// buffer; this is not a bug; rxBuffer[0] is a sentinel slot that is
// never put on the wire, so rxBuffer[1..frameLength] holds the real
// frame and rxBuffer[frameLength] is always the checksum byte.
type FrameReceiver struct {
	// uart is the MANDATORY byte source.
	uart UART

	// clock is the MANDATORY time source.
	clock Clock

	// creditBytes is called for every byte attributed to a MID, whether
	// the frame that carried them was valid, checksum-invalid, or part
	// of an overflow episode. Busload accounting is authoritative on
	// this callback, not on RXCounter.
	creditBytes func(mid uint8, n int)

	rxBuffer  [MaxFrameLength + 1]byte
	byteCount uint8
	checksum  uint8
	rxBusy    bool

	lastByteMicro int64
	haveLastByte  bool

	overflowing     bool
	overflowMIDHold uint8

	// RXCounter counts frames successfully framed and checksum-valid.
	RXCounter uint64

	// ERR1Counter counts checksum failures (ERR1).
	ERR1Counter uint64

	// ERR2Counter counts rx buffer overflows (ERR2).
	ERR2Counter uint64
}

// NewFrameReceiver creates a [FrameReceiver]. creditBytes MUST NOT be nil.
func NewFrameReceiver(uart UART, clock Clock, creditBytes func(mid uint8, n int)) *FrameReceiver {
	return &FrameReceiver{
		uart:        uart,
		clock:       clock,
		creditBytes: creditBytes,
	}
}

// Busy reports whether a frame is currently being received (i.e. the
// line should be considered non-idle for transmit-arbitration purposes).
func (fr *FrameReceiver) Busy() bool {
	return fr.rxBusy
}

// Receive reads at most one byte from the UART and returns (length,
// true) exactly once when a complete, checksum-valid frame has been
// framed. The frame bytes are available via Frame() until the next
// call to Receive observes a new byte.
func (fr *FrameReceiver) Receive() (length int, ok bool) {
	now := fr.clock.NowMicro()

	if b, available := fr.uart.ReadByte(); available {
		fr.lastByteMicro = now
		fr.haveLastByte = true
		fr.rxBusy = true

		if fr.byteCount < MaxFrameLength {
			fr.byteCount++
			fr.rxBuffer[fr.byteCount] = b
			fr.checksum += b
		} else {
			// Overflow: this would be byte 22 or later. Hold the MID we
			// saw at position 1 of this (doomed) frame, per the original
			// firmware's ERR2_MID_Hold behavior, and resync on the next gap.
			fr.ERR2Counter++
			if !fr.overflowing {
				fr.overflowing = true
				fr.overflowMIDHold = fr.rxBuffer[1]
			}
			fr.byteCount = 0
			fr.rxBusy = false
		}
	}

	if fr.byteCount == 0 || !fr.haveLastByte {
		return 0, false
	}
	if now-fr.lastByteMicro <= gapMicro {
		return 0, false
	}

	// The gap closed: a frame is complete.
	frameLength := fr.byteCount
	fr.byteCount = 0
	fr.rxBusy = false

	fr.checksum -= fr.rxBuffer[frameLength]
	expected := uint8((^fr.checksum) + 1)
	valid := expected == fr.rxBuffer[frameLength]
	fr.checksum = 0

	if fr.overflowing {
		fr.overflowing = false
		fr.creditBytes(fr.overflowMIDHold, int(frameLength))
		return 0, false
	}

	mid := fr.rxBuffer[1]
	fr.creditBytes(mid, int(frameLength))

	if !valid {
		fr.ERR1Counter++
		return 0, false // pretend it didn't come
	}
	fr.RXCounter++
	return int(frameLength), true
}

// Frame returns the most recently framed bytes (MID..checksum, i.e.
// rxBuffer[1..length]), valid only immediately after Receive returned
// (length, true).
func (fr *FrameReceiver) Frame(length int) []byte {
	return fr.rxBuffer[1 : 1+length]
}
