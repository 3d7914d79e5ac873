package hopping

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cursedremoteid/edge/internal/core/domain"
	"github.com/cursedremoteid/edge/internal/pipeline"
)

type fakeSwitcher struct {
	mu       sync.Mutex
	calls    []int
	rejected map[int]bool
	leftMode bool
}

func (f *fakeSwitcher) SetChannel(ctx context.Context, monName string, channel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, channel)
	if f.leftMode {
		return domain.ErrInterfaceLeftMonitor
	}
	if f.rejected[channel] {
		return fmt.Errorf("%w: %d", domain.ErrIllegalChannel, channel)
	}
	return nil
}

func (f *fakeSwitcher) Calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]int, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func TestSweeper_RemovesIllegalChannel(t *testing.T) {
	schedule := domain.NewChannelSchedule([]domain.ChannelEntry{
		{Channel: 1, Dwell: time.Millisecond},
		{Channel: 149, Dwell: time.Millisecond},
	})
	switcher := &fakeSwitcher{rejected: map[int]bool{149: true}}
	signals := pipeline.NewSignals()
	hits := pipeline.NewChannelHitQueue(4)

	s := NewSweeper("wlan0mon", schedule, switcher, hits, signals)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	// Give the sweeper time to make one full pass, then stop it.
	time.Sleep(50 * time.Millisecond)
	signals.SigInt.Set()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after SigInt")
	}

	if schedule.Contains(149) {
		t.Fatal("expected channel 149 to be removed after rejection")
	}
	if !schedule.Contains(1) {
		t.Fatal("expected channel 1 to remain in the schedule")
	}
}

func TestSweeper_EscalatesOnInterfaceLeftMonitorMode(t *testing.T) {
	schedule := domain.NewChannelSchedule([]domain.ChannelEntry{{Channel: 1, Dwell: time.Millisecond}})
	switcher := &fakeSwitcher{leftMode: true}
	signals := pipeline.NewSignals()
	hits := pipeline.NewChannelHitQueue(4)

	s := NewSweeper("wlan0mon", schedule, switcher, hits, signals)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after interface left monitor mode")
	}
	if !signals.Sleep.IsSet() {
		t.Fatal("expected Sleep signal to be set on fatal escalation")
	}
}

func TestSweeper_DrainsHitsIntoSchedule(t *testing.T) {
	schedule := domain.NewChannelSchedule([]domain.ChannelEntry{{Channel: 1, Dwell: time.Millisecond}})
	switcher := &fakeSwitcher{}
	signals := pipeline.NewSignals()
	hits := pipeline.NewChannelHitQueue(4)
	hits.ReportHit(1)
	hits.ReportHit(1)

	s := NewSweeper("wlan0mon", schedule, switcher, hits, signals)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	signals.SigInt.Set()
	<-done

	if schedule.Hits()[1] < 2 {
		t.Fatalf("expected hit count >= 2, got %d", schedule.Hits()[1])
	}
}

func TestSweeper_StopsWhenScheduleExhausted(t *testing.T) {
	schedule := domain.NewChannelSchedule([]domain.ChannelEntry{{Channel: 149, Dwell: time.Millisecond}})
	switcher := &fakeSwitcher{rejected: map[int]bool{149: true}}
	signals := pipeline.NewSignals()
	hits := pipeline.NewChannelHitQueue(4)

	s := NewSweeper("wlan0mon", schedule, switcher, hits, signals)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper should stop once the schedule is empty")
	}
	if !signals.Sleep.IsSet() {
		t.Fatal("expected Sleep signal to be set when the schedule is exhausted")
	}
}
