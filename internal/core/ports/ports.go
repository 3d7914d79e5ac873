// Package ports declares the boundaries between the four pipeline
// components and the outside world, fulfilling the Interface
// Segregation Principle: each consumer depends only on the narrow slice
// of behavior it actually drives.
package ports

import (
	"context"
	"time"

	"github.com/cursedremoteid/edge/internal/core/domain"
)

// InterfaceManager brings the monitor-mode interface up once at startup
// and tears it down on exit (spec §4.1).
type InterfaceManager interface {
	// Setup runs the detect/kill/monitor-mode/verify sequence and returns
	// the physical and monitor interface names.
	Setup(ctx context.Context) (phyName, monName string, err error)

	// SupportedChannels queries the radio's regulatory-permitted channel
	// list, used to intersect against the configured schedule.
	SupportedChannels(ctx context.Context) ([]int, error)

	// Teardown best-effort reverts the interface to managed mode.
	Teardown(ctx context.Context) error
}

// ChannelSwitcher is the narrow slice of radio control the Channel
// Sweeper drives (spec §4.2). It is satisfied by the same adapter that
// implements InterfaceManager, but consumers that only switch channels
// should depend on this, not the whole manager.
type ChannelSwitcher interface {
	SetChannel(ctx context.Context, monName string, channel int) error
}

// RecordSink is the bounded queue Packet Capture pushes normalized
// records onto and CSV Batcher drains (spec §3's record queue).
type RecordSink interface {
	// Push attempts a non-blocking enqueue. ok is false if the queue was
	// full; the caller must increment a drop counter and continue.
	Push(r domain.Record) (ok bool)

	// Recv blocks until a record is available, the context is done, or a
	// sentinel closes the queue permanently (sentinel returns ok=false
	// with a nil error and a zero Record).
	Recv(ctx context.Context) (r domain.Record, ok bool, err error)

	// Close pushes the sentinel, unblocking any pending Recv.
	Close()
}

// ChannelHitReporter is the side-channel from Packet Capture to Channel
// Sweeper reporting per-channel activity (spec §2's "separate
// side-channel").
type ChannelHitReporter interface {
	ReportHit(channel int)
}

// FileQueue is the bounded path queue CSV Batcher enqueues closed windows
// onto and Uploader drains (spec §4.4, §4.5).
type FileQueue interface {
	// PushWithTimeout enqueues path, blocking up to timeout. ok is false
	// if the queue was still full when timeout elapsed; the caller must
	// delete the file itself.
	PushWithTimeout(ctx context.Context, path string, timeout time.Duration) (ok bool)

	// Recv blocks for steady-state drain, honoring ctx cancellation.
	Recv(ctx context.Context) (path string, ok bool, err error)

	// TryRecv performs the non-blocking drain used once the CSV-writer-exit
	// signal is set (spec §4.5's blocking policy).
	TryRecv() (path string, ok bool)

	// Close pushes the sentinel.
	Close()
}

// ObjectStore is the upload target contract (spec §4.5, §6). Bucket
// naming and credential resolution are the adapter's concern; this
// interface only carries the per-call operation.
type ObjectStore interface {
	// Upload stores the file at localPath under objectKey. Implementations
	// do not retry internally; the Uploader owns the error budget.
	Upload(ctx context.Context, bucket, objectKey, localPath string) error
}

// RunJournal is a supplemental local record of window and upload outcomes,
// used for post-hoc diagnostics on an unattended node with no other
// durable telemetry sink. It is not part of the spec's critical path: a
// RunJournal failure is logged and ignored, never fatal.
type RunJournal interface {
	RecordWindowClosed(ctx context.Context, path string, rows int, closedAt time.Time) error
	RecordUploadOutcome(ctx context.Context, path string, succeeded bool, at time.Time) error
	Close() error
}
