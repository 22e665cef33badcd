package j1708gw

import (
	"time"

	"golang.org/x/time/rate"
)

//
// C5: Intrusion detector
//

// DefaultMaxBusload is the default busload ceiling above which the
// flood detector starts counting consecutive high-busload windows,
// matching the original firmware's maxBusload default.
const DefaultMaxBusload = 1.0

// DefaultMaxMIDShare is the default per-MID bus-share ceiling that
// marks a MID as flooding once busload has been high for too long,
// matching the original firmware's maxMIDShare default.
const DefaultMaxMIDShare = 1.0

// DefaultFloodConsecutiveMax is how many consecutive high-busload
// windows are tolerated before MID-share is inspected for a culprit,
// matching the original's ERR6_ConsecutiveMax default.
const DefaultFloodConsecutiveMax = 4

// networkCheckMilli gates how often the flood check runs, matching the
// original's ERR6_Timer threshold.
const networkCheckMilli = 500

// rogueAlertInterval paces the periodic rogue-node summary alert (ERR8),
// so an active spoofer doesn't cause an alert flood of its own.
const rogueAlertInterval = 10 * time.Second

// DefaultSpoofAlertLimit is how many individual spoof alerts (ERR7) are
// sent before the detector switches to the periodic rogue summary
// (ERR8), matching the original's ERR7_Limit default.
const DefaultSpoofAlertLimit = 256

// IntrusionThresholds configures an [IntrusionDetector]'s tunable
// limits. A zero field falls back to the matching Default* constant,
// so the zero value of IntrusionThresholds reproduces the original
// firmware's out-of-the-box behavior.
type IntrusionThresholds struct {
	MaxBusload          float64
	MaxMIDShare         float64
	FloodConsecutiveMax int
	SpoofAlertLimit     int
}

func (t IntrusionThresholds) withDefaults() IntrusionThresholds {
	if t.MaxBusload == 0 {
		t.MaxBusload = DefaultMaxBusload
	}
	if t.MaxMIDShare == 0 {
		t.MaxMIDShare = DefaultMaxMIDShare
	}
	if t.FloodConsecutiveMax == 0 {
		t.FloodConsecutiveMax = DefaultFloodConsecutiveMax
	}
	if t.SpoofAlertLimit == 0 {
		t.SpoofAlertLimit = DefaultSpoofAlertLimit
	}
	return t
}

// IntrusionDetector watches framed traffic for spoofing (a frame
// claiming our own MID) and flooding (a MID that dominates a
// persistently overloaded bus), emitting [EncodeAlert] PDUs through
// sendAlert and blocking offending MIDs in acl. Grounded on
// J1708_T4.cpp: J1708CheckACL, UpdateNetworkStatistics, J1708CheckNetwork;
// the ERR8 periodic-summary pacing is reimplemented with
// [rate.Limiter] in place of the original's hand-rolled ERR8_Timer.
type IntrusionDetector struct {
	selfMID    byte
	hostPort   bool // mirrors the original's selfHostPort: which side we alert about
	acl        *AccessControlList
	stats      *Stats
	clock      Clock
	indicators Indicators
	sendAlert  func(frame []byte, priority uint8)

	maxBusload          float64
	maxMIDShare         float64
	floodConsecutiveMax int
	spoofAlertLimit     int

	spoofCount     int
	rogueActive    bool
	rogueLimiter   *rate.Limiter
	rogueCount     uint64
	floodTracked   [256]bool
	highBusloadN   int
	lastCheckMilli int64

	// ERR7Counter, ERR8Counter, ERR9Counter, ERR10Counter mirror the
	// original's named error counters.
	ERR7Counter  uint64
	ERR8Counter  uint64
	ERR9Counter  uint64
	ERR10Counter uint64
}

// NewIntrusionDetector creates an [IntrusionDetector]. sendAlert MUST
// NOT be nil; indicators may be nil, in which case pulses are dropped.
// A zero-value thresholds reproduces the original firmware's defaults.
func NewIntrusionDetector(selfMID byte, hostPort bool, acl *AccessControlList, stats *Stats, clock Clock, indicators Indicators, sendAlert func(frame []byte, priority uint8), thresholds IntrusionThresholds) *IntrusionDetector {
	thresholds = thresholds.withDefaults()
	return &IntrusionDetector{
		selfMID:             selfMID,
		hostPort:            hostPort,
		acl:                 acl,
		stats:               stats,
		clock:               clock,
		indicators:          indicators,
		sendAlert:           sendAlert,
		maxBusload:          thresholds.MaxBusload,
		maxMIDShare:         thresholds.MaxMIDShare,
		floodConsecutiveMax: thresholds.FloodConsecutiveMax,
		spoofAlertLimit:     thresholds.SpoofAlertLimit,
		rogueLimiter:        rate.NewLimiter(rate.Every(rogueAlertInterval), 1),
	}
}

// SetMaxBusload overrides the busload ceiling used by CheckFlood.
func (id *IntrusionDetector) SetMaxBusload(v float64) { id.maxBusload = v }

// SetMaxMIDShare overrides the per-MID bus-share ceiling used by CheckFlood.
func (id *IntrusionDetector) SetMaxMIDShare(v float64) { id.maxMIDShare = v }

func (id *IntrusionDetector) pulse() {
	if id.indicators != nil {
		id.indicators.Pulse(IndicatorSecurity)
	}
}

// CheckSource inspects the MID of a freshly framed, checksum-valid
// frame. It returns false if the frame must be dropped (the source is
// blocked or is spoofing us); true if the frame may be processed.
func (id *IntrusionDetector) CheckSource(mid byte) bool {
	if !id.acl.Blocked(mid) {
		return true
	}
	if mid == id.selfMID {
		id.spoofCount++
		id.ERR7Counter++
		id.pulse()
		if id.spoofCount <= id.spoofAlertLimit {
			payload := []byte{byte(id.spoofCount >> 8), byte(id.spoofCount)}
			id.sendAlert(EncodeAlert(id.selfMID, AlertSpoof, id.selfMID, payload), 8)
		} else if !id.rogueActive {
			id.rogueActive = true
			id.ERR8Counter++
			id.pulse()
		}
		if id.rogueActive && id.rogueLimiter.Allow() {
			id.rogueCount++
			id.sendAlert(EncodeAlert(id.selfMID, AlertRogue, id.selfMID, []byte{byte(id.ERR8Counter)}), 3)
		}
	}
	return false
}

// CheckFlood inspects the current busload window and blocks any MID
// whose bus share exceeds maxMIDShare once busload has stayed above
// maxBusload for more than floodConsecutiveMax consecutive checks. It should be
// called once per scheduler tick; it is a no-op between
// networkCheckMilli windows.
func (id *IntrusionDetector) CheckFlood() {
	now := id.clock.NowMilli()
	if now-id.lastCheckMilli <= networkCheckMilli {
		return
	}
	id.lastCheckMilli = now

	snap := id.stats.Snapshot()
	if snap.Busload <= id.maxBusload {
		id.highBusloadN = 0
		return
	}
	id.highBusloadN++
	if id.highBusloadN <= id.floodConsecutiveMax {
		return
	}

	for mid := 0; mid <= 255; mid++ {
		if snap.MIDShare[mid] <= id.maxMIDShare || id.floodTracked[mid] {
			continue
		}
		id.floodTracked[mid] = true
		id.acl.Block(byte(mid))
		id.pulse()

		if !id.hostPort {
			id.ERR9Counter++
			id.sendAlert(EncodeAlert(id.selfMID, AlertFloodShared, byte(mid), nil), 1)
		} else {
			id.ERR10Counter++
			id.sendAlert(EncodeAlert(id.selfMID, AlertFloodHost, byte(mid), nil), 1)
		}
	}
}
