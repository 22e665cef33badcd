//go:build linux

package j1708gw

import (
	"os"

	"golang.org/x/sys/unix"
)

//
// TTYPort: a Linux termios-backed UART
//
// Idiom grounded on Daedaluz-goserial's port_linux.go (ioctl/termios
// raw-mode setup), reimplemented against golang.org/x/sys/unix rather
// than that repo's own ioctl/poll packages.
//

// TTYPort is a [UART] backed by a Linux tty device in raw mode at
// 9600 baud, the speed SAE J1708 runs at. The zero value is invalid;
// use [OpenTTYPort].
type TTYPort struct {
	f    *os.File
	peek ttyPeek
}

// OpenTTYPort opens path (e.g. "/dev/ttyUSB0") and puts it into raw
// mode at 9600-8N1, matching the J1708 physical layer.
func OpenTTYPort(path string) (*TTYPort, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_NOCTTY, 0)
	if err != nil {
		return nil, err
	}

	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, err
	}

	unix.CfmakeRaw(t)
	t.Cflag |= unix.CLOCAL | unix.CREAD
	t.Cflag &^= unix.CSTOPB | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		f.Close()
		return nil, err
	}
	if err := setBaud9600(fd); err != nil {
		f.Close()
		return nil, err
	}

	return &TTYPort{f: f}, nil
}

// setBaud9600 sets both input and output speed to 9600 baud, the rate
// SAE J1708 is defined at.
func setBaud9600(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Cflag &^= unix.CBAUD
	t.Cflag |= unix.B9600
	t.Ispeed = unix.B9600
	t.Ospeed = unix.B9600
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// Close closes the underlying device.
func (p *TTYPort) Close() error {
	return p.f.Close()
}

// Available implements UART by attempting a non-blocking read into a
// one-byte lookahead buffer; this relies on VMIN=0/VTIME=0 raw mode
// making every Read non-blocking.
func (p *TTYPort) Available() bool {
	_, ok := p.PeekByte()
	return ok
}

// ttyPeek holds a byte read ahead by PeekByte that ReadByte hasn't
// consumed yet.
type ttyPeek struct {
	b    byte
	have bool
}

// ReadByte implements UART.
func (p *TTYPort) ReadByte() (byte, bool) {
	if p.peek.have {
		p.peek.have = false
		return p.peek.b, true
	}
	return p.readRaw()
}

// PeekByte implements UART. Because the underlying tty has no native
// peek, this reads one byte and buffers it in-process; callers must go
// through this same TTYPort instance for ReadByte to see it.
func (p *TTYPort) PeekByte() (byte, bool) {
	if p.peek.have {
		return p.peek.b, true
	}
	b, ok := p.readRaw()
	if !ok {
		return 0, false
	}
	p.peek = ttyPeek{b: b, have: true}
	return b, true
}

func (p *TTYPort) readRaw() (byte, bool) {
	var buf [1]byte
	n, err := p.f.Read(buf[:])
	if err != nil || n == 0 {
		return 0, false
	}
	return buf[0], true
}

// WriteByte implements UART.
func (p *TTYPort) WriteByte(b byte) error {
	_, err := p.f.Write([]byte{b})
	return err
}
