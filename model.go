package j1708gw

//
// Data model
//

import "errors"

// MaxFrameLength is the largest a J1708 frame (MID..checksum, inclusive)
// is allowed to be. The on-wire frame occupies rxBuffer[1..MaxFrameLength];
// index 0 is a sentinel slot, never transmitted, that lets the checksum
// routines use the same 1-based addressing as the original firmware.
const MaxFrameLength = 21

// MaxTransportPayload is the largest payload this engine will segment
// through the J1587 transport protocol. The real protocol allows up to
// 3825 bytes; we cap at 256 to bound memory (see SPEC_FULL.md Non-goals).
const MaxTransportPayload = 256

// MinTransportPayload is the smallest payload worth segmenting; anything
// shorter fits in a single frame and should be queued with
// [Gateway.EnqueueTx] instead.
const MinTransportPayload = 16

// TransportSegmentSize is the number of data bytes carried by each CDP.
const TransportSegmentSize = 15

// ErrNotReady is returned by operations that cannot proceed because a
// prior operation (e.g. a transport session) is still in flight.
var ErrNotReady = errors.New("j1708gw: not ready")

// ErrPayloadSize is returned when a transport payload falls outside
// [MinTransportPayload, MaxTransportPayload].
var ErrPayloadSize = errors.New("j1708gw: payload size out of range")

// UART is the byte-oriented half-duplex serial device this engine drives.
// It is the sole dependency the core scheduler has on real hardware, and
// its shape mirrors the original library's direct calls into Arduino's
// HardwareSerial: one byte read/peek/write at a time, plus an availability
// check. Implementations MUST make the echo of a just-written byte
// observable through ReadByte/PeekByte, since C2's collision detection
// depends on it.
type UART interface {
	// Available reports whether a byte can be read without blocking.
	Available() bool

	// ReadByte consumes and returns the next available byte. ok is false
	// if no byte was available.
	ReadByte() (b byte, ok bool)

	// PeekByte returns the next available byte without consuming it.
	// ok is false if no byte was available.
	PeekByte() (b byte, ok bool)

	// WriteByte writes a single byte to the wire.
	WriteByte(b byte) error
}

// Clock is a free-running source of elapsed time, microsecond and
// millisecond resolution, matching the original firmware's
// elapsedMicros/elapsedMillis timers. Implementations are queried
// synchronously from Update and must never block.
type Clock interface {
	// NowMicro returns the current time in microseconds.
	NowMicro() int64

	// NowMilli returns the current time in milliseconds.
	NowMilli() int64
}

// IndicatorKind identifies one of the three LEDs the original firmware
// toggles as activity indicators.
type IndicatorKind int

const (
	// IndicatorRx pulses on every framed, checksum-valid receive that
	// passes the ACL check (security alerts pulse IndicatorSecurity
	// instead).
	IndicatorRx = IndicatorKind(iota)

	// IndicatorTx pulses on every successful transmit.
	IndicatorTx

	// IndicatorSecurity pulses on every security alert (ERR7..ERR10).
	IndicatorSecurity
)

// Indicators is the optional GPIO/LED sink. A Gateway configured
// without one uses [NullIndicators].
type Indicators interface {
	// Pulse toggles the indicator identified by kind.
	Pulse(kind IndicatorKind)
}

// Mode records the original firmware's node-mode enum. No Gateway field
// or method takes a Mode: every Gateway runs the full gateway loop, and
// there is no receive-and-log-only Observer behavior. Rogue and
// Compromised are labels only, matching the original library (which
// declares but never branches on them either).
type Mode int

const (
	ModeGateway = Mode(iota)
	ModeRogue
	ModeCompromised
	ModeObserver
)

// Logger is the narrow logging sink every component accepts. It mirrors
// the level split (Debug/Info/Warn) that the original firmware expressed
// through compile-time verbosity flags.
type Logger interface {
	Debug(message string)
	Debugf(format string, v ...any)
	Info(message string)
	Infof(format string, v ...any)
	Warn(message string)
	Warnf(format string, v ...any)
}

// Peer is the narrow forwarding handle a Gateway uses to talk to its
// linked sibling. It deliberately exposes nothing about the peer's
// internal state: the only thing one Gateway may do to another is
// enqueue a frame for transmission. This replaces the original
// library's raw back-pointer (which it even `delete`s on unlink,
// a use-after-free bug we do not reproduce).
type Peer interface {
	// EnqueueTx enqueues frame (MID..checksum, no leading sentinel byte)
	// for transmission at the given priority.
	EnqueueTx(frame []byte, priority uint8) error
}
