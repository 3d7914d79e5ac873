// Package hopping implements the Channel Sweeper (spec §4.2): it drives
// the monitor-mode radio across a ChannelSchedule, pruning channels the
// radio rejects and periodically draining the per-channel hit counts
// Packet Capture reports back.
package hopping

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cursedremoteid/edge/internal/core/domain"
	"github.com/cursedremoteid/edge/internal/pipeline"
)

// ChannelSwitcher is the narrow dependency the Sweeper drives; it is
// satisfied by ifmanager.Manager and has the same method set as
// ports.ChannelSwitcher.
type ChannelSwitcher interface {
	SetChannel(ctx context.Context, monName string, channel int) error
}

// HitQueue is the bounded, non-blocking side-channel from Packet Capture
// reporting observed per-channel activity (spec §2, §4.2's drain step).
type HitQueue interface {
	// TryRecv performs one non-blocking drain attempt. ok is false once
	// the queue is empty.
	TryRecv() (channel int, ok bool)
}

// Sweeper drives monName through schedule until signals.Sleep or
// signals.SigInt fires.
type Sweeper struct {
	MonName  string
	Schedule *domain.ChannelSchedule
	Switcher ChannelSwitcher
	Hits     HitQueue
	Signals  *pipeline.Signals
}

// NewSweeper constructs a Sweeper ready to Run.
func NewSweeper(monName string, schedule *domain.ChannelSchedule, switcher ChannelSwitcher, hits HitQueue, signals *pipeline.Signals) *Sweeper {
	return &Sweeper{
		MonName:  monName,
		Schedule: schedule,
		Switcher: switcher,
		Hits:     hits,
		Signals:  signals,
	}
}

// Run executes the sweep loop (spec §4.2's "Loop"). It returns when a
// shutdown signal fires or the schedule is exhausted by channel removal.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		if s.Signals.ShuttingDown() {
			return
		}

		entries := s.Schedule.Entries()
		if len(entries) == 0 {
			log.Printf("hopping: schedule exhausted, no channels remain")
			s.Signals.Sleep.Set()
			return
		}

		for _, entry := range entries {
			if s.Signals.ShuttingDown() {
				return
			}

			err := s.Switcher.SetChannel(ctx, s.MonName, entry.Channel)
			switch {
			case err == nil:
				// ok, proceed to dwell
			case errors.Is(err, domain.ErrIllegalChannel), errors.Is(err, domain.ErrInvalidChannelNumber):
				log.Printf("hopping: removing channel %d from schedule: %v", entry.Channel, err)
				s.Schedule.RemoveChannel(entry.Channel)
				continue
			case errors.Is(err, domain.ErrInterfaceLeftMonitor):
				log.Printf("hopping: %s left monitor mode, escalating to fatal shutdown", s.MonName)
				s.Signals.Sleep.Set()
				return
			default:
				log.Printf("hopping: set_channel(%s, %d) failed: %v", s.MonName, entry.Channel, err)
			}

			select {
			case <-time.After(entry.Dwell):
			case <-s.Signals.Sleep.Done():
				return
			case <-s.Signals.SigInt.Done():
				return
			}
		}

		s.drainHits()
	}
}

// drainHits empties the hit queue non-blockingly into the schedule's
// per-channel counters (spec §4.2: "counters observed only", no
// re-weighting in the current policy).
func (s *Sweeper) drainHits() {
	for {
		channel, ok := s.Hits.TryRecv()
		if !ok {
			return
		}
		s.Schedule.RecordHit(channel)
	}
}
