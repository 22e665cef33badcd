package j1708gw

import "time"

//
// Clock implementations
//

// RealClock implements [Clock] on top of the Go runtime's monotonic
// clock, for production use.
type RealClock struct {
	start time.Time
}

// NewRealClock creates a [RealClock] whose epoch is the moment of
// construction.
func NewRealClock() *RealClock {
	return &RealClock{start: time.Now()}
}

// NowMicro implements Clock.
func (c *RealClock) NowMicro() int64 {
	return time.Since(c.start).Microseconds()
}

// NowMilli implements Clock.
func (c *RealClock) NowMilli() int64 {
	return time.Since(c.start).Milliseconds()
}

// FakeClock implements [Clock] with a manually-advanced time base, for
// deterministic tests.
type FakeClock struct {
	micro int64
}

// NewFakeClock creates a [FakeClock] starting at time zero.
func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.micro += d.Microseconds()
}

// NowMicro implements Clock.
func (c *FakeClock) NowMicro() int64 {
	return c.micro
}

// NowMilli implements Clock.
func (c *FakeClock) NowMilli() int64 {
	return c.micro / 1000
}
