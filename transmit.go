package j1708gw

import "errors"

//
// C2: Frame Transmitter
//

// twelvebitMicro is how long the transmitter waits for the MID echo
// before declaring ERR5 (nothing came back at all).
const twelvebitMicro = 1250

// ErrCollision is returned by Transmit when the byte echoed back on the
// bus did not match the MID just written (ERR4).
var ErrCollision = errors.New("j1708gw: collision detected on MID echo")

// ErrNoEcho is returned by Transmit when the half-duplex echo never
// arrived at all (ERR5): the UART didn't loop the byte back in time.
var ErrNoEcho = errors.New("j1708gw: no echo of transmitted MID")

// FrameTransmitter writes a single frame to the UART, verifying
// half-duplex echo-loopback of the MID byte before committing to the
// rest of the frame. It does not compute the checksum: the frame's last
// byte must already hold it (see [AppendChecksum]). Grounded on
// J1708_T4.cpp: J1708Tx/J1708AppendChecksum.
type FrameTransmitter struct {
	// uart is the MANDATORY byte sink/source (echo is read back from it).
	uart UART

	// clock is the MANDATORY time source used to bound the echo wait.
	clock Clock

	// TXCounter counts every attempted transmit, successful or not,
	// matching the original firmware's TX_Counter.
	TXCounter uint64

	// ERR4Counter counts collisions (echoed byte != MID written).
	ERR4Counter uint64

	// ERR5Counter counts missing echoes.
	ERR5Counter uint64
}

// NewFrameTransmitter creates a [FrameTransmitter].
func NewFrameTransmitter(uart UART, clock Clock) *FrameTransmitter {
	return &FrameTransmitter{uart: uart, clock: clock}
}

// AppendChecksum overwrites the last byte of frame with the one's
// complement checksum of frame[:len(frame)-1].
func AppendChecksum(frame []byte) {
	var chk uint8
	for _, b := range frame[:len(frame)-1] {
		chk += b
	}
	frame[len(frame)-1] = ^chk + 1
}

// Transmit writes frame (MID..checksum, checksum already appended) to
// the bus. It writes the MID byte, waits up to twelvebitMicro for the
// echo, and only writes the remaining bytes if the echo matches: this
// is how a half-duplex transceiver's own transmission is distinguished
// from a collision with another node's simultaneous transmission.
func (ft *FrameTransmitter) Transmit(frame []byte) error {
	ft.TXCounter++
	if len(frame) == 0 {
		return ErrPayloadSize
	}
	mid := frame[0]

	if err := ft.uart.WriteByte(mid); err != nil {
		return err
	}

	start := ft.clock.NowMicro()
	for {
		if b, ok := ft.uart.PeekByte(); ok {
			if b != mid {
				ft.ERR4Counter++
				return ErrCollision
			}
			ft.uart.ReadByte() // consume the echo
			break
		}
		if ft.clock.NowMicro()-start >= twelvebitMicro {
			ft.ERR5Counter++
			return ErrNoEcho
		}
	}

	for _, b := range frame[1:] {
		if err := ft.uart.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}
