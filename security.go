package j1708gw

//
// Security alert PDU encoding
//
// Security alerts ride as ordinary J1708 frames addressed to MID 255
// (broadcast) with PID 255,250 (a reserved proprietary PID pair the
// original firmware uses for its own diagnostics), so any listener can
// see them without protocol support. Grounded on J1708_T4.cpp:
// J1708CheckACL/J1708CheckNetwork message literals.
//

// AlertKind identifies the kind of intrusion a security alert reports.
type AlertKind uint8

const (
	// AlertSpoof reports that a frame claiming our own MID was seen
	// on the bus (ERR7).
	AlertSpoof = AlertKind(1)

	// AlertRogue is a periodic summary emitted while a spoofing rogue
	// node is still active (ERR8).
	AlertRogue = AlertKind(2)

	// AlertFloodShared reports a MID flooding the shared segment (ERR9).
	AlertFloodShared = AlertKind(3)

	// AlertFloodHost reports a MID flooding the host segment (ERR10).
	AlertFloodHost = AlertKind(4)
)

// alertPID1 and alertPID2 are the two PID bytes that mark a frame as a
// security alert rather than ordinary traffic.
const (
	alertBroadcastMID = 255
	alertPID1         = 255
	alertPID2         = 250
)

// EncodeAlert builds a security alert frame: [selfMID,255,255,250,LEN,
// KIND,TARGET_MID,payload...,checksum]. LEN counts KIND, TARGET_MID and
// payload only; it excludes itself and the checksum byte.
func EncodeAlert(selfMID byte, kind AlertKind, target byte, payload []byte) []byte {
	length := uint8(2 + len(payload)) // KIND + TARGET_MID + payload, excludes checksum
	frame := make([]byte, 0, 5+int(length)+1)
	frame = append(frame, selfMID, alertBroadcastMID, alertPID1, alertPID2, length, byte(kind), target)
	frame = append(frame, payload...)
	frame = append(frame, 0) // checksum placeholder
	AppendChecksum(frame)
	return frame
}

// IsAlert reports whether frame (MID..checksum, checksum already
// verified by the receiver) is a security alert, per its PID bytes.
func IsAlert(frame []byte) bool {
	return len(frame) >= 4 &&
		frame[1] == alertBroadcastMID &&
		frame[2] == alertPID1 &&
		frame[3] == alertPID2
}

// DecodeAlert parses a frame for which IsAlert returned true.
func DecodeAlert(frame []byte) (source byte, kind AlertKind, target byte, payload []byte, ok bool) {
	if !IsAlert(frame) || len(frame) < 7 {
		return 0, 0, 0, nil, false
	}
	source = frame[0]
	kind = AlertKind(frame[5])
	target = frame[6]
	payload = frame[7 : len(frame)-1]
	return source, kind, target, payload, true
}
