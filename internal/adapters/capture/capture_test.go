package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/cursedremoteid/edge/internal/core/domain"
	"github.com/cursedremoteid/edge/internal/pipeline"
)

type fakeSource struct {
	mu      sync.Mutex
	frames  [][]byte
	idx     int
	linkTyp layers.LinkType
	delay   time.Duration
}

func (f *fakeSource) SetBPFFilter(string) error { return nil }
func (f *fakeSource) LinkType() layers.LinkType { return f.linkTyp }
func (f *fakeSource) Close()                    {}

func (f *fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.frames) {
		time.Sleep(f.delay)
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	d := f.frames[f.idx]
	f.idx++
	return d, gopacket.CaptureInfo{Timestamp: time.Now()}, nil
}

type fakeSink struct {
	mu      sync.Mutex
	records []domain.Record
	closed  bool
}

func (s *fakeSink) Push(r domain.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return true
}
func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

type fakeHits struct {
	mu   sync.Mutex
	hits []int
}

func (h *fakeHits) ReportHit(ch int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits = append(h.hits, ch)
}

func TestCapture_Run_SetsSleepAndClosesSinkOnExit(t *testing.T) {
	src := &fakeSource{linkTyp: layers.LinkTypeIEEE802_11Radio, delay: time.Hour}
	sink := &fakeSink{}
	hits := &fakeHits{}
	signals := pipeline.NewSignals()

	c := NewCapture(src, sink, hits, signals, 50*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not return after watchdog timeout")
	}

	if !signals.Sleep.IsSet() {
		t.Fatal("expected Sleep signal set on exit")
	}
	sink.mu.Lock()
	closed := sink.closed
	sink.mu.Unlock()
	if !closed {
		t.Fatal("expected sink Close() to be called on exit")
	}
	if c.State() != StateDraining {
		t.Fatalf("State() = %v, want Draining", c.State())
	}
}

func TestCapture_Run_StopsOnSigInt(t *testing.T) {
	src := &fakeSource{linkTyp: layers.LinkTypeIEEE802_11Radio, delay: time.Hour}
	sink := &fakeSink{}
	hits := &fakeHits{}
	signals := pipeline.NewSignals()

	c := NewCapture(src, sink, hits, signals, time.Hour)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	signals.SigInt.Set()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("capture did not return after SigInt")
	}
}

func TestFrequencyToChannel(t *testing.T) {
	cases := []struct {
		freq, want int
	}{
		{2412, 1},
		{2437, 6},
		{2462, 11},
		{2484, 14},
		{5180, 36},
		{0, 0},
	}
	for _, c := range cases {
		if got := frequencyToChannel(c.freq); got != c.want {
			t.Errorf("frequencyToChannel(%d) = %d, want %d", c.freq, got, c.want)
		}
	}
}

func TestExtractWiFiVendorIE_FindsOpenDroneIDPayload(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	ie := buildVendorIE(append([]byte{odidOUI[0], odidOUI[1], odidOUI[2], 0x0D}, payload...))
	got := extractWiFiVendorIE(ie)
	if len(got) != len(payload) {
		t.Fatalf("extractWiFiVendorIE() = %v, want %v", got, payload)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %v want %v", i, got, payload)
		}
	}
}

func TestExtractWiFiVendorIE_IgnoresOtherOUIs(t *testing.T) {
	ie := buildVendorIE([]byte{0x00, 0x11, 0x22, 0x0D, 1, 2, 3})
	if got := extractWiFiVendorIE(ie); got != nil {
		t.Fatalf("expected no match for foreign OUI, got %v", got)
	}
}

func buildVendorIE(vendorBody []byte) []byte {
	return append([]byte{221, byte(len(vendorBody))}, vendorBody...)
}

func TestDropReason(t *testing.T) {
	if got := dropReason(nil); got != "none" {
		t.Errorf("dropReason(nil) = %q", got)
	}
	if got := dropReason(errors.New("x")); got != "invalid_field" {
		t.Errorf("dropReason(err) = %q", got)
	}
}
