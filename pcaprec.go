package j1708gw

//
// C9: Bus trace recorder
//

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// busEtherType is a locally-administered EtherType used to tag captured
// J1708 frames inside the synthetic Ethernet envelope pcap readers expect.
// It is not an IANA-assigned value; it only needs to be stable within a
// single capture file.
const busEtherType = layers.EthernetType(0x1708)

// Direction marks whether a recorded frame was received from, or
// transmitted onto, the bus.
type Direction int

const (
	// DirectionRx marks a frame accepted by the receiver.
	DirectionRx = Direction(iota)

	// DirectionTx marks a frame handed to the transmitter.
	DirectionTx
)

// BusRecorder mirrors every frame a [Gateway] accepts or emits into a PCAP
// file, so the traffic can be inspected with ordinary packet-capture
// tooling. Each J1708 frame (MID..checksum) is wrapped in a synthetic
// Ethernet header: the MID becomes the low byte of the source (for RX) or
// destination (for TX) MAC, so a reader can filter by MID with a normal
// "ether host" expression. The zero value is invalid; use [NewBusRecorder].
//
// Grounded on the teacher's PCAPDumper, adapted from wrapping a NIC's IP
// packets to wrapping a Gateway's raw bus frames.
type BusRecorder struct {
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    Logger
	joined    chan any
	pich      chan *busRecorderEntry
}

type busRecorderEntry struct {
	dir   Direction
	mid   byte
	frame []byte
}

// NewBusRecorder creates a [BusRecorder] writing to filename. It starts a
// background goroutine that owns the file; call Close to flush and join it.
func NewBusRecorder(filename string, logger Logger) *BusRecorder {
	const manyFrames = 4096
	ctx, cancel := context.WithCancel(context.Background())
	br := &BusRecorder{
		cancel: cancel,
		logger: logger,
		joined: make(chan any),
		pich:   make(chan *busRecorderEntry, manyFrames),
	}
	go br.loop(ctx, filename)
	return br
}

// RecordRx records a frame accepted by the receiver, attributed to mid.
func (br *BusRecorder) RecordRx(mid byte, frame []byte) {
	br.deliver(DirectionRx, mid, frame)
}

// RecordTx records a frame handed to the transmitter, attributed to mid.
func (br *BusRecorder) RecordTx(mid byte, frame []byte) {
	br.deliver(DirectionTx, mid, frame)
}

func (br *BusRecorder) deliver(dir Direction, mid byte, frame []byte) {
	entry := &busRecorderEntry{
		dir:   dir,
		mid:   mid,
		frame: append([]byte{}, frame...), // duplicate
	}
	select {
	case br.pich <- entry:
	default:
		// just drop from the capture
	}
}

func (br *BusRecorder) loop(ctx context.Context, filename string) {
	defer close(br.joined)

	filep, err := os.Create(filename)
	if err != nil {
		br.logger.Warnf("j1708gw: BusRecorder: os.Create: %s", err.Error())
		return
	}
	defer func() {
		if err := filep.Close(); err != nil {
			br.logger.Warnf("j1708gw: BusRecorder: filep.Close: %s", err.Error())
			// fallthrough
		}
	}()

	w := pcapgo.NewWriter(filep)
	const snapLen = 65535
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		br.logger.Warnf("j1708gw: BusRecorder: WriteFileHeader: %s", err.Error())
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-br.pich:
			br.doWriteEntry(entry, w)
		}
	}
}

func (br *BusRecorder) doWriteEntry(entry *busRecorderEntry, w *pcapgo.Writer) {
	eth := &layers.Ethernet{
		SrcMAC:       []byte{0, 0, 0, 0, 0, 0},
		DstMAC:       []byte{0, 0, 0, 0, 0, 0},
		EthernetType: busEtherType,
	}
	if entry.dir == DirectionRx {
		eth.SrcMAC[5] = entry.mid
	} else {
		eth.DstMAC[5] = entry.mid
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{}
	payload := gopacket.Payload(entry.frame)
	if err := gopacket.SerializeLayers(buf, opts, eth, payload); err != nil {
		br.logger.Warnf("j1708gw: BusRecorder: SerializeLayers: %s", err.Error())
		return
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	if err := w.WritePacket(ci, buf.Bytes()); err != nil {
		br.logger.Warnf("j1708gw: BusRecorder: WritePacket: %s", err.Error())
		// fallthrough
	}
}

// Close flushes and closes the underlying file, joining the background
// goroutine. It is safe to call more than once.
func (br *BusRecorder) Close() error {
	br.closeOnce.Do(func() {
		br.cancel()
		br.logger.Debugf("j1708gw: BusRecorder: awaiting for background writer to finish writing")
		<-br.joined
	})
	return nil
}
