package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/truckbus/j1708gateway"
)

// commandRouter dispatches the "j1708config"/"j1708send" line grammar
// (grounded on J1708_T4.cpp: J1708Settings/J1708Send command parsing)
// against a set of named Gateway ports, addressed as "sp<n>" the same
// way the original firmware addresses its serial ports.
type commandRouter struct {
	ports map[string]*j1708gw.Gateway
}

func newCommandRouter(ports map[string]*j1708gw.Gateway) *commandRouter {
	return &commandRouter{ports: ports}
}

// Dispatch parses and runs one command line, returning the text a
// console session would print in response.
func (r *commandRouter) Dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "j1708config":
		return r.config(fields)
	case "j1708send":
		return r.send(fields)
	default:
		return fmt.Sprintf("unknown command: %s", fields[0])
	}
}

func (r *commandRouter) port(fields []string) (*j1708gw.Gateway, string, bool) {
	if len(fields) < 2 {
		return nil, "", false
	}
	gw, ok := r.ports[fields[1]]
	return gw, fields[1], ok
}

func (r *commandRouter) config(fields []string) string {
	gw, name, ok := r.port(fields)
	if !ok {
		return "unknown port"
	}
	if len(fields) < 3 {
		return "j1708config " + name + ": missing subcommand (-g, -r, -s)"
	}
	switch fields[2] {
	case "-g":
		return r.configGateway(gw, fields[3:])
	case "-r":
		return r.configReset(gw, fields[3:])
	case "-s":
		return r.configShow(gw, fields[3:])
	default:
		return "j1708config " + name + ": unknown subcommand " + fields[2]
	}
}

func (r *commandRouter) configGateway(gw *j1708gw.Gateway, args []string) string {
	if len(args) == 0 {
		return "-g: missing option"
	}
	opt := args[0]
	val := ""
	if len(args) > 1 {
		val = args[1]
	}
	switch opt {
	case "-a":
		mid, err := parseHexMID(val)
		if err != nil {
			return err.Error()
		}
		gw.Block(mid)
		return fmt.Sprintf("MID added to blocklist: %d", mid)
	case "-r":
		mid, err := parseHexMID(val)
		if err != nil {
			return err.Error()
		}
		gw.Unblock(mid)
		return fmt.Sprintf("MID removed from blocklist: %d", mid)
	case "-m":
		mid, err := parseHexMID(val)
		if err != nil {
			return err.Error()
		}
		gw.SetSelfMID(mid)
		return fmt.Sprintf("self MID changed to %d", mid)
	case "-M":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return "-M: invalid float " + val
		}
		gw.SetMaxMIDShare(f)
		return fmt.Sprintf("max MID share changed to %g", f)
	case "-b":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return "-b: invalid float " + val
		}
		gw.SetMaxBusload(f)
		return fmt.Sprintf("max busload changed to %g", f)
	case "-f":
		enabled, err := parseBit(val)
		if err != nil {
			return err.Error()
		}
		gw.SetForwarding(enabled)
		return fmt.Sprintf("forwarding set to %v", enabled)
	case "-h":
		hostPort, err := parseBit(val)
		if err != nil {
			return err.Error()
		}
		gw.SetHostPort(hostPort)
		return fmt.Sprintf("host port set to %v", hostPort)
	default:
		return "-g: unknown option " + opt
	}
}

func (r *commandRouter) configReset(gw *j1708gw.Gateway, args []string) string {
	if len(args) == 0 {
		return "-r: missing option"
	}
	switch args[0] {
	case "-a":
		gw.ResetACL()
		return "ACL reset: allow all"
	case "-b":
		gw.BlockAllACL()
		return "ACL reset: block all"
	case "-c":
		gw.ResetCounters()
		return "message counters reset"
	case "-e":
		gw.ResetCounters()
		return "error counters reset"
	case "-t":
		gw.ResetTimers()
		return "transport timers reset"
	default:
		return "-r: unknown option " + args[0]
	}
}

func (r *commandRouter) configShow(gw *j1708gw.Gateway, args []string) string {
	if len(args) == 0 || args[0] != "-s" {
		return "-s: only -s (statistics) is supported"
	}
	snap := gw.Stats()
	counters := gw.Counters()
	var b strings.Builder
	fmt.Fprintf(&b, "busload=%.4f rx=%d tx=%d fwd=%d\n", snap.Busload, counters.RXCounter, counters.TXCounter, counters.FwdCounter)
	fmt.Fprintf(&b, "err1(checksum)=%d err2(rxoverflow)=%d err3(txoverflow)=%d err4(collision)=%d err5(noecho)=%d\n",
		counters.ERR1Counter, counters.ERR2Counter, counters.ERR3Counter, counters.ERR4Counter, counters.ERR5Counter)
	fmt.Fprintf(&b, "err7(spoof)=%d err8(rogue)=%d err9(flood-shared)=%d err10(flood-host)=%d\n",
		counters.ERR7Counter, counters.ERR8Counter, counters.ERR9Counter, counters.ERR10Counter)
	for mid, share := range snap.MIDShare {
		if share > 0 {
			fmt.Fprintf(&b, "mid %d share=%.4f\n", mid, share)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *commandRouter) send(fields []string) string {
	gw, name, ok := r.port(fields)
	if !ok {
		return "unknown port"
	}
	if len(fields) < 3 {
		return "j1708send " + name + ": missing arguments"
	}
	if fields[2] == "-T" {
		return r.sendTransport(gw, fields[3:])
	}
	return r.sendFrame(gw, fields[2:])
}

// sendFrame implements "j1708send sp<n> <len> <hex.hex.…>": the hex
// bytes ARE the frame body (the first is the source MID), and a
// checksum is appended automatically before the frame is queued.
func (r *commandRouter) sendFrame(gw *j1708gw.Gateway, args []string) string {
	if len(args) < 2 {
		return "missing <len> <payload>"
	}
	length, err := strconv.Atoi(args[0])
	if err != nil || length <= 0 || length >= j1708gw.MaxFrameLength {
		return fmt.Sprintf("invalid length %s", args[0])
	}
	body, err := parseHexBytes(args[1], length)
	if err != nil {
		return err.Error()
	}
	frame := append(body, 0)
	j1708gw.AppendChecksum(frame)
	gw.EnqueueTx(frame, 8)
	return fmt.Sprintf("queued %d-byte frame for MID %d", len(frame), frame[0])
}

// sendTransport implements "j1708send sp<n> -T <dst_MID_hex> <len> <hex.hex.…>".
func (r *commandRouter) sendTransport(gw *j1708gw.Gateway, args []string) string {
	if len(args) < 3 {
		return "missing <dst_MID> <len> <payload>"
	}
	dmid, err := parseHexMID(args[0])
	if err != nil {
		return err.Error()
	}
	length, err := strconv.Atoi(args[1])
	if err != nil || length <= 0 {
		return fmt.Sprintf("invalid length %s", args[1])
	}
	payload, err := parseHexBytes(args[2], length)
	if err != nil {
		return err.Error()
	}
	if err := gw.SendPayload(payload, dmid); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("transport session started to MID %d (%d bytes)", dmid, len(payload))
}

func parseHexMID(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid hex MID %q", s)
	}
	return byte(v), nil
}

func parseBit(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("expected 0 or 1, got %q", s)
	}
}

// parseHexBytes parses a "."-separated list of hex bytes (e.g.
// "DE.AD.be.ef"), matching the original's string2Hex/getValue
// dot-tokenizer, and requires exactly n of them.
func parseHexBytes(s string, n int) ([]byte, error) {
	parts := strings.Split(s, ".")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d dot-separated bytes, got %d", n, len(parts))
	}
	out := make([]byte, 0, n+1)
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q", p)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
