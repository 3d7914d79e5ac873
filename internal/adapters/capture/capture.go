// Package capture implements Packet Capture (spec §4.3): it attaches a
// live dissector to the monitor-mode interface(s), filters to Open Drone
// ID traffic, builds Records, and feeds them to the bounded record
// queue, with a watchdog that escalates to fatal shutdown on prolonged
// silence.
package capture

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/cursedremoteid/edge/internal/core/domain"
	"github.com/cursedremoteid/edge/internal/pipeline"
	"github.com/cursedremoteid/edge/internal/telemetry"
)

// State is Packet Capture's lifecycle (spec §4.3's state machine).
type State int

const (
	StateWaitingForInterface State = iota
	StateCapturing
	StateDraining
	StateFailedNoInterface
)

func (s State) String() string {
	switch s {
	case StateWaitingForInterface:
		return "waiting_for_interface"
	case StateCapturing:
		return "capturing"
	case StateDraining:
		return "draining"
	case StateFailedNoInterface:
		return "failed_no_interface"
	default:
		return "unknown"
	}
}

// PacketSource abstracts gopacket's live capture handle so tests can
// substitute a replay source instead of opening a real NIC.
type PacketSource interface {
	SetBPFFilter(expr string) error
	LinkType() layers.LinkType
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	Close()
}

// pcapSource adapts *pcap.Handle to PacketSource.
type pcapSource struct{ handle *pcap.Handle }

func (s pcapSource) SetBPFFilter(expr string) error           { return s.handle.SetBPFFilter(expr) }
func (s pcapSource) LinkType() layers.LinkType                { return s.handle.LinkType() }
func (s pcapSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) { return s.handle.ReadPacketData() }
func (s pcapSource) Close()                                   { s.handle.Close() }

// OpenLive opens monName for live capture, matching spec §4.3's "attach
// live dissector ... with a display filter restricting frames to
// opendroneid".
func OpenLive(monName string) (PacketSource, error) {
	handle, err := pcap.OpenLive(monName, 65536, true, pcap.BlockForever)
	if err != nil {
		return nil, err
	}
	src := pcapSource{handle: handle}
	// A BPF filter cannot express the opendroneid tshark display filter
	// directly; we admit all 802.11 management and data frames here and
	// let the per-frame Open Drone ID vendor-IE check do the actual
	// protocol filtering.
	if err := src.SetBPFFilter("type mgt or type data"); err != nil {
		log.Printf("capture: BPF filter rejected, continuing unfiltered: %v", err)
	}
	return src, nil
}

// RecordSink is the narrow dependency Capture pushes onto.
type RecordSink interface {
	Push(r domain.Record) bool
	Close()
}

// ChannelHitReporter is the narrow dependency Capture reports channel
// activity to.
type ChannelHitReporter interface {
	ReportHit(channel int)
}

// Capture runs the packet-ingestion state machine against a PacketSource.
type Capture struct {
	Source  PacketSource
	Sink    RecordSink
	Hits    ChannelHitReporter
	Signals *pipeline.Signals

	PacketTimeout time.Duration // spec §4.3 default 900s

	state State
}

// NewCapture builds a Capture ready to Run.
func NewCapture(source PacketSource, sink RecordSink, hits ChannelHitReporter, signals *pipeline.Signals, packetTimeout time.Duration) *Capture {
	return &Capture{
		Source:        source,
		Sink:          sink,
		Hits:          hits,
		Signals:       signals,
		PacketTimeout: packetTimeout,
		state:         StateWaitingForInterface,
	}
}

// State returns the current lifecycle state.
func (c *Capture) State() State { return c.state }

// Run drives the capture loop until the watchdog fires, a shutdown
// signal fires, or the source is exhausted. It always transitions
// through Draining and guarantees the signals and sentinel the CSV
// Batcher depends on are set before returning (spec §4.3's "finally"
// equivalent).
func (c *Capture) Run(ctx context.Context) {
	c.state = StateCapturing

	wd := NewWatchdog(c.PacketTimeout)
	go wd.Start()
	defer wd.Stop()

	defer func() {
		c.state = StateDraining
		c.Signals.Sleep.Set()
		c.Source.Close()
		c.Sink.Close()
	}()

	type frameResult struct {
		frame domain.Frame
		err   error
	}
	frames := make(chan frameResult, 1)

	go func() {
		for {
			data, ci, err := c.Source.ReadPacketData()
			if err != nil {
				frames <- frameResult{err: err}
				return
			}
			frame, ok := dissect(data, c.Source.LinkType(), ci.Timestamp)
			if !ok {
				continue
			}
			frames <- frameResult{frame: frame}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Signals.Sleep.Done():
			return
		case <-c.Signals.SigInt.Done():
			return
		case <-wd.Fired():
			log.Printf("capture: watchdog fired after %s of silence", c.PacketTimeout)
			return
		case res := <-frames:
			if res.err != nil {
				log.Printf("capture: read error, unwinding: %v", res.err)
				return
			}
			if c.handleFrame(res.frame) {
				wd.Kick()
			}
		}
	}
}

// handleFrame builds and enqueues a Record from f. It reports whether a
// record was enqueued.
func (c *Capture) handleFrame(f domain.Frame) bool {
	if ch := f.Channel(); ch != 0 {
		c.Hits.ReportHit(ch)
		telemetry.ChannelHits.WithLabelValues(strconv.Itoa(ch)).Inc()
	}

	if !f.HasRemoteID() {
		telemetry.RecordsDropped.WithLabelValues("no_odid").Inc()
		return false
	}

	raw := f.RawFields()
	record, err := domain.NewRecord(raw, time.Now())
	if err != nil {
		telemetry.RecordsDropped.WithLabelValues(dropReason(err)).Inc()
		return false
	}

	if ok := c.Sink.Push(record); !ok {
		telemetry.RecordsDropped.WithLabelValues("queue_full").Inc()
		return false
	}
	telemetry.RecordsCaptured.WithLabelValues(f.Link.String()).Inc()
	return true
}

func dropReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrMissingField):
		return "missing_field"
	default:
		return "invalid_field"
	}
}

// dissect turns raw packet bytes into a Frame. Wi-Fi frames are parsed
// via gopacket's Dot11 layer stack. BLE advertisements are not captured:
// this pcap-based source is the only capture path, so dissect always
// returns a WiFi-link Frame.
func dissect(data []byte, linkType layers.LinkType, ts time.Time) (domain.Frame, bool) {
	packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return domain.Frame{}, false
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok {
		return domain.Frame{}, false
	}

	var channel int
	var rssi int
	if rt := packet.Layer(layers.LayerTypeRadioTap); rt != nil {
		if radiotap, ok := rt.(*layers.RadioTap); ok {
			rssi = int(radiotap.DBMAntennaSignal)
			channel = frequencyToChannel(int(radiotap.ChannelFrequency))
		}
	}

	wifi := &domain.WiFiFrame{
		TransmitterMAC: dot11.Address2.String(),
		Channel:        channel,
		RSSI:           rssi,
		FrameControl:   uint16(dot11.Type),
	}
	frame := domain.Frame{Link: domain.LinkWiFi, WiFi: wifi}

	var ieData []byte
	for _, layer := range packet.Layers() {
		if ie, ok := layer.(*layers.Dot11InformationElement); ok {
			ieData = append(ieData, byte(ie.ID), ie.Length)
			ieData = append(ieData, ie.Info...)
		}
	}
	if len(ieData) == 0 {
		return frame, true
	}

	vendorPayload := extractWiFiVendorIE(ieData)
	if vendorPayload == nil {
		return frame, true
	}

	frame.OpenDroneID = parseOpenDroneID(vendorPayload, ts)
	return frame, true
}

func frequencyToChannel(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq <= 2472:
		return (freq-2412)/5 + 1
	case freq >= 5000 && freq < 6000:
		return (freq-5000)/5
	default:
		return 0
	}
}
