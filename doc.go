// Package j1708gw implements a bidirectional SAE J1708/J1587 gateway: it
// frames and transmits frames on a half-duplex serial bus, segments and
// reassembles multi-frame J1587 transport messages, polices traffic with
// a per-MID access control list and intrusion detector, and can forward
// between two linked buses.
//
// The core type is [Gateway], driven by repeated calls to [Gateway.Update]
// from a cooperative scheduling loop (see cmd/j1708gw for a goroutine-
// per-port host). A Gateway needs a [UART] to talk to the physical bus,
// a [Clock] for its timers, and optionally a [Logger] and [Indicators]
// sink; sensible defaults exist for the latter two.
//
// To link two Gateways so that traffic arriving on one is relayed onto
// the other, pass each Gateway's [Peer] handle to the other's Link method.
// A Peer deliberately exposes nothing about its owner beyond "enqueue
// this frame": it never outlives an explicit Unlink call.
package j1708gw
