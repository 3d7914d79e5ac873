package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/cursedremoteid/edge/internal/core/domain"
)

// ChannelHitQueue is the bounded, non-blocking side-channel from Packet
// Capture to Channel Sweeper (spec §2, §5: channel-hit queue depth 1000).
// A full queue silently drops the new report rather than blocking the
// capture path, since hit counts are advisory only.
type ChannelHitQueue struct {
	ch chan int
}

// NewChannelHitQueue builds a ChannelHitQueue with the given capacity.
func NewChannelHitQueue(capacity int) *ChannelHitQueue {
	return &ChannelHitQueue{ch: make(chan int, capacity)}
}

// ReportHit implements ports.ChannelHitReporter.
func (q *ChannelHitQueue) ReportHit(channel int) {
	select {
	case q.ch <- channel:
	default:
	}
}

// TryRecv implements hopping.HitQueue.
func (q *ChannelHitQueue) TryRecv() (int, bool) {
	select {
	case ch := <-q.ch:
		return ch, true
	default:
		return 0, false
	}
}

// RecordQueue is the bounded queue between Packet Capture and CSV Batcher
// (spec §3, §5: record queue depth 1000). Push is non-blocking: a full
// queue means the caller increments a drop counter and moves on.
type RecordQueue struct {
	ch        chan domain.Record
	sentinel  chan struct{}
	closeOnce sync.Once
}

// NewRecordQueue builds a RecordQueue with the given capacity.
func NewRecordQueue(capacity int) *RecordQueue {
	return &RecordQueue{
		ch:       make(chan domain.Record, capacity),
		sentinel: make(chan struct{}),
	}
}

// Push implements ports.RecordSink.
func (q *RecordQueue) Push(r domain.Record) bool {
	select {
	case q.ch <- r:
		return true
	default:
		return false
	}
}

// Recv implements ports.RecordSink. It returns ok=false, err=nil once the
// sentinel fires; it returns a non-nil err only on context cancellation.
func (q *RecordQueue) Recv(ctx context.Context) (domain.Record, bool, error) {
	select {
	case r := <-q.ch:
		return r, true, nil
	case <-q.sentinel:
		// Drain anything already buffered before reporting closed, so no
		// record enqueued before Close() is silently lost.
		select {
		case r := <-q.ch:
			return r, true, nil
		default:
		}
		return domain.Record{}, false, nil
	case <-ctx.Done():
		return domain.Record{}, false, ctx.Err()
	}
}

// Close implements ports.RecordSink.
func (q *RecordQueue) Close() {
	q.closeOnce.Do(func() { close(q.sentinel) })
}

// FileQueue is the bounded path queue between CSV Batcher and Uploader
// (spec §4.4, §4.5, §5: upload queue depth 10).
type FileQueue struct {
	ch        chan string
	sentinel  chan struct{}
	closeOnce sync.Once
}

// NewFileQueue builds a FileQueue with the given capacity.
func NewFileQueue(capacity int) *FileQueue {
	return &FileQueue{
		ch:       make(chan string, capacity),
		sentinel: make(chan struct{}),
	}
}

// PushWithTimeout implements ports.FileQueue.
func (q *FileQueue) PushWithTimeout(ctx context.Context, path string, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- path:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Recv implements ports.FileQueue's steady-state blocking drain.
func (q *FileQueue) Recv(ctx context.Context) (string, bool, error) {
	select {
	case p := <-q.ch:
		return p, true, nil
	case <-q.sentinel:
		select {
		case p := <-q.ch:
			return p, true, nil
		default:
		}
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// TryRecv implements ports.FileQueue's non-blocking drain, used once the
// CSV-writer-exit signal is set (spec §4.5's blocking policy).
func (q *FileQueue) TryRecv() (string, bool) {
	select {
	case p := <-q.ch:
		return p, true
	default:
		return "", false
	}
}

// Close implements ports.FileQueue.
func (q *FileQueue) Close() {
	q.closeOnce.Do(func() { close(q.sentinel) })
}
