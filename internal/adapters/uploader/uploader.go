package uploader

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cursedremoteid/edge/internal/core/ports"
	"github.com/cursedremoteid/edge/internal/pipeline"
	"github.com/cursedremoteid/edge/internal/telemetry"
)

// FileSource is the narrow dependency the Uploader drains.
type FileSource interface {
	Recv(ctx context.Context) (path string, ok bool, err error)
	TryRecv() (path string, ok bool)
}

// Uploader implements spec §4.5. errCount is tracked cumulatively across
// the whole run rather than reset on success: a transient failure mixed
// with occasional successes still signals a bucket that is not reliably
// reachable, and the budget exists to bound the node's blast radius before
// giving up and letting the supervisor restart it.
type Uploader struct {
	Files   FileSource
	Store   ports.ObjectStore
	Journal ports.RunJournal // may be nil
	Signals *pipeline.Signals

	Bucket      string
	MaxErrCount int
	errCount    int
}

// NewUploader builds an Uploader with the spec-default error budget.
func NewUploader(files FileSource, store ports.ObjectStore, signals *pipeline.Signals, bucket string) *Uploader {
	return &Uploader{
		Files:       files,
		Store:       store,
		Signals:     signals,
		Bucket:      bucket,
		MaxErrCount: 5,
	}
}

// Run drains the upload queue until the sentinel is observed or the error
// budget is exhausted. It honors the blocking policy in spec §4.5: block
// on the queue while the Batcher may still be producing, switch to a
// non-blocking drain once CSVWriterExit fires.
func (u *Uploader) Run(ctx context.Context) {
	for {
		path, ok, stop := u.next(ctx)
		if stop {
			return
		}
		if !ok {
			continue
		}

		if u.handle(ctx, path) {
			u.Signals.Sleep.Set()
			return
		}
	}
}

// next returns the next path to process, or stop=true once the upload
// queue is permanently empty (sentinel in steady state, or an empty
// non-blocking drain once CSVWriterExit has fired).
func (u *Uploader) next(ctx context.Context) (path string, ok bool, stop bool) {
	if u.Signals.CSVWriterExit.IsSet() {
		p, found := u.Files.TryRecv()
		if !found {
			return "", false, true
		}
		return p, true, false
	}

	p, found, err := u.Files.Recv(ctx)
	if err != nil {
		return "", false, true
	}
	if !found {
		return "", false, true
	}
	return p, true, false
}

// handle applies the per-file policy. It returns true if the error budget
// has just been exhausted and the Uploader must exit fatally.
func (u *Uploader) handle(ctx context.Context, path string) (fatal bool) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Printf("uploader: %s no longer exists, skipping", path)
		return false
	}

	key := filepath.Base(path)
	uploadErr := u.Store.Upload(ctx, u.Bucket, key, path)

	if uploadErr != nil {
		u.errCount++
		log.Printf("uploader: upload of %s failed (%d/%d): %v", path, u.errCount, u.MaxErrCount, uploadErr)
		telemetry.UploadOutcomes.WithLabelValues("failure").Inc()
	} else {
		telemetry.UploadOutcomes.WithLabelValues("success").Inc()
	}

	// Policy choice (spec §4.5): the file is deleted locally whether the
	// upload succeeded or failed, to avoid filling local disk on a
	// persistent outage. The record queue retains no copy, so a failed
	// upload's data is accepted as lost in exchange for liveness.
	if err := os.Remove(path); err != nil {
		log.Printf("uploader: failed to remove %s: %v", path, err)
	}

	if u.Journal != nil {
		if err := u.Journal.RecordUploadOutcome(ctx, path, uploadErr == nil, time.Now()); err != nil {
			log.Printf("uploader: journal write failed: %v", err)
		}
	}

	return uploadErr != nil && u.errCount >= u.MaxErrCount
}
