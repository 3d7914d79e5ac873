package batcher

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cursedremoteid/edge/internal/core/domain"
	"github.com/cursedremoteid/edge/internal/pipeline"
	"github.com/cursedremoteid/edge/internal/telemetry"
)

// DefaultTmpDir is the POSIX temporary directory spec §4.4 names.
const DefaultTmpDir = "/var/tmp/remote-id-data"

// RecordSource is the narrow dependency the batcher drains.
type RecordSource interface {
	Recv(ctx context.Context) (domain.Record, bool, error)
}

// FileSink is the narrow dependency the batcher enqueues closed windows
// onto.
type FileSink interface {
	PushWithTimeout(ctx context.Context, path string, timeout time.Duration) bool
	Close()
}

// Journal is the optional run journal a window close is reported to. A
// nil Journal disables reporting.
type Journal interface {
	RecordWindowClosed(ctx context.Context, path string, rows int, closedAt time.Time) error
}

// Batcher implements the CSV Batcher (spec §4.4).
type Batcher struct {
	Records RecordSource
	Files   FileSink
	Journal Journal // optional
	Signals *pipeline.Signals

	TmpDir           string
	MaxPacketCount   int
	MaxWindowSeconds time.Duration
	BatcherTimeout   time.Duration // queue-starvation close
	EnqueueTimeout   time.Duration // spec default 5s
}

// NewBatcher builds a Batcher with spec-default tuning, overridable per
// field after construction.
func NewBatcher(records RecordSource, files FileSink, signals *pipeline.Signals) *Batcher {
	return &Batcher{
		Records:          records,
		Files:            files,
		Signals:          signals,
		TmpDir:           DefaultTmpDir,
		MaxPacketCount:   100,
		MaxWindowSeconds: 300 * time.Second,
		BatcherTimeout:   120 * time.Second,
		EnqueueTimeout:   5 * time.Second,
	}
}

// Prepare creates TmpDir if needed and deletes stale .csv entries left
// over from a prior run (spec §4.4's "Temporary directory"). The
// extension guard refuses to unlink anything that isn't a plain ".csv"
// file.
func (b *Batcher) Prepare() error {
	if err := os.MkdirAll(b.TmpDir, 0o755); err != nil {
		return err
	}

	entries, err := os.ReadDir(b.TmpDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		path := filepath.Join(b.TmpDir, e.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("batcher: failed to remove stale file %s: %v", path, err)
		}
	}
	return nil
}

// Run drives windows until a shutdown signal fires or the record source
// sentinel is observed. On return it always sets CSVWriterExit and closes
// Files, the handshake the Uploader depends on (spec §4.4's "Exit
// protocol").
func (b *Batcher) Run(ctx context.Context) {
	defer func() {
		b.Signals.CSVWriterExit.Set()
		b.Files.Close()
	}()

	for {
		if b.Signals.ShuttingDown() {
			return
		}

		done := b.runOneWindow(ctx)
		if done {
			return
		}
	}
}

// runOneWindow opens, fills, and closes exactly one window. It returns
// true if the batcher should stop entirely (sentinel observed, shutdown
// requested, or SIGINT mid-window).
func (b *Batcher) runOneWindow(ctx context.Context) (stop bool) {
	_, span := telemetry.Tracer().Start(ctx, "batcher.window")
	defer span.End()

	filename := "remote-id-" + uuid.NewString() + ".csv"
	win, err := openWindow(b.TmpDir, filename)
	if err != nil {
		log.Printf("batcher: failed to open window: %v", err)
		return false
	}

	windowDeadline := time.Now().Add(b.MaxWindowSeconds)
	lastActivity := time.Now()

	for {
		if b.Signals.SigInt.IsSet() {
			win.closeAndDelete()
			telemetry.WindowsClosed.WithLabelValues("sigint").Inc()
			return true
		}
		if b.Signals.Sleep.IsSet() {
			win.closeAndDelete()
			telemetry.WindowsClosed.WithLabelValues("fatal").Inc()
			return true
		}

		deadline := windowDeadline
		if starvation := lastActivity.Add(b.BatcherTimeout); starvation.Before(deadline) {
			deadline = starvation
		}

		attemptCtx, cancel := b.attemptContext(ctx, deadline)
		rec, ok, recvErr := b.Records.Recv(attemptCtx)
		cancel()

		switch {
		case recvErr != nil && errors.Is(recvErr, context.DeadlineExceeded):
			if !time.Now().Before(windowDeadline) {
				b.closeWindow(win, "time")
				return false
			}
			b.closeWindow(win, "starvation")
			return false

		case recvErr != nil:
			// Parent context cancelled, or SigInt/Sleep fired while Recv
			// was blocked (process shutdown).
			win.closeAndDelete()
			telemetry.WindowsClosed.WithLabelValues("cancelled").Inc()
			return true

		case !ok:
			// Sentinel: record queue will never produce again.
			b.closeWindow(win, "sentinel")
			return true

		default:
			lastActivity = time.Now()
			if werr := win.writeRecord(rec); werr != nil {
				log.Printf("batcher: failed to write record, skipping: %v", werr)
				telemetry.RecordsDropped.WithLabelValues("write_error").Inc()
				continue
			}
			if win.count > b.MaxPacketCount {
				b.closeWindow(win, "count")
				return false
			}
		}
	}
}

// attemptContext bounds one Recv call by deadline and additionally wakes
// it the moment a shutdown signal fires, so a blocked Recv doesn't sit
// through a full starvation window before SIGINT takes effect.
func (b *Batcher) attemptContext(parent context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	attemptCtx, cancel := context.WithDeadline(parent, deadline)
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-b.Signals.SigInt.Done():
		case <-b.Signals.Sleep.Done():
		case <-attemptCtx.Done():
		}
		cancel()
		close(stopWatch)
	}()
	return attemptCtx, func() {
		cancel()
		<-stopWatch
	}
}

// closeWindow implements spec §4.4 steps 4-5: delete empty windows,
// otherwise close and enqueue for upload with a bounded timeout.
func (b *Batcher) closeWindow(win *window, reason string) {
	if win.count == 0 {
		win.closeAndDelete()
		telemetry.WindowsClosed.WithLabelValues("empty").Inc()
		return
	}

	if err := win.closeAndKeep(); err != nil {
		log.Printf("batcher: failed to close window %s: %v", win.path, err)
		os.Remove(win.path)
		return
	}
	telemetry.WindowsClosed.WithLabelValues(reason).Inc()

	if b.Journal != nil {
		if err := b.Journal.RecordWindowClosed(context.Background(), win.path, win.count, time.Now()); err != nil {
			log.Printf("batcher: journal write failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.EnqueueTimeout)
	defer cancel()
	if ok := b.Files.PushWithTimeout(ctx, win.path, b.EnqueueTimeout); !ok {
		log.Printf("batcher: upload queue full, deleting %s", win.path)
		os.Remove(win.path)
	}
}
