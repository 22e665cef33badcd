package j1708gw

//
// C4: Access control list and busload/MID-share statistics
//

// ProtocolMaxBytesPerSecond is the busload normalization constant: the
// practical max of 903 characters/second at 9600 baud once J1708
// framing overhead is accounted for (the theoretical max is 960 ten-bit
// characters/second). Busload is reported against it, matching the
// original.
const ProtocolMaxBytesPerSecond = 903.0

// statsWindowMilli is how often busload/MID-share are recomputed,
// matching the original firmware's BusloadTimer threshold.
const statsWindowMilli = 1000

// AccessControlList is a 256-entry bit mask, keyed by source MID,
// marking which MIDs are blocked from being accepted. Entry selfMID is
// pre-blocked so that a frame claiming our own MID is never treated as
// legitimate traffic, the same defensive trick the original firmware
// uses to catch spoofing (J1708CheckACL). The zero value is not usable;
// construct with NewAccessControlList.
type AccessControlList struct {
	selfMID byte
	blocked [256]bool
}

// NewAccessControlList creates an ACL that blocks selfMID by default.
func NewAccessControlList(selfMID byte) *AccessControlList {
	acl := &AccessControlList{selfMID: selfMID}
	acl.blocked[selfMID] = true
	return acl
}

// Block adds mid to the block list.
func (acl *AccessControlList) Block(mid byte) {
	acl.blocked[mid] = true
}

// Unblock removes mid from the block list. selfMID can be unblocked
// like any other entry; callers that want spoof protection must not do
// so.
func (acl *AccessControlList) Unblock(mid byte) {
	acl.blocked[mid] = false
}

// Blocked reports whether mid is currently blocked.
func (acl *AccessControlList) Blocked(mid byte) bool {
	return acl.blocked[mid]
}

// SetSelfMID changes which MID this ACL treats as "ours" for spoof
// detection, blocking the new one without touching any other entry
// (matching the original firmware's "ACL settings preserved" behavior
// for a MID change).
func (acl *AccessControlList) SetSelfMID(mid byte) {
	acl.selfMID = mid
	acl.blocked[mid] = true
}

// Reset clears every blocked entry except selfMID, matching the
// original firmware's "ACL allow all" reset command.
func (acl *AccessControlList) Reset() {
	for i := range acl.blocked {
		acl.blocked[i] = false
	}
	acl.blocked[acl.selfMID] = true
}

// BlockAll marks every MID as blocked, matching the original firmware's
// "ACL block all" reset command.
func (acl *AccessControlList) BlockAll() {
	for i := range acl.blocked {
		acl.blocked[i] = true
	}
}

// StatsSnapshot is a point-in-time read of [Stats]' busload window.
type StatsSnapshot struct {
	Busload  float64
	MIDShare [256]float64
}

// Stats tracks per-MID byte counts over rolling 1-second windows and
// derives busload and per-MID bus-share fractions from them. Grounded
// on J1708_T4.cpp: UpdateNetworkStatistics.
type Stats struct {
	totalBytes   uint32
	midBytes     [256]uint32
	windowMicro  int64
	clock        Clock
	lastBusload  float64
	lastMIDShare [256]float64
}

// NewStats creates a [Stats] tracker driven by clock.
func NewStats(clock Clock) *Stats {
	return &Stats{clock: clock}
}

// CreditBytes attributes n bytes of bus traffic to mid. Called for
// every frame the receiver frames, valid or not, including overflow
// episodes (see [FrameReceiver]).
func (s *Stats) CreditBytes(mid byte, n int) {
	s.totalBytes += uint32(n)
	s.midBytes[mid] += uint32(n)
}

// Update recomputes busload and MID-share once per statsWindowMilli and
// resets the accumulators, matching the original's 1-second window.
// It should be called on every scheduler tick; it is a no-op between
// windows.
func (s *Stats) Update() {
	now := s.clock.NowMilli()
	if now-s.windowMicro <= statsWindowMilli {
		return
	}
	s.windowMicro = now

	s.lastBusload = float64(s.totalBytes) / ProtocolMaxBytesPerSecond
	total := s.totalBytes
	for i := range s.midBytes {
		if total > 0 {
			s.lastMIDShare[i] = float64(s.midBytes[i]) / float64(total)
		} else {
			s.lastMIDShare[i] = 0
		}
		s.midBytes[i] = 0
	}
	s.totalBytes = 0
}

// Snapshot returns the most recently computed busload and MID-share.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{Busload: s.lastBusload, MIDShare: s.lastMIDShare}
}
