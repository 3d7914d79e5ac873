package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cursedremoteid/edge/internal/adapters/batcher"
	"github.com/cursedremoteid/edge/internal/adapters/capture"
	"github.com/cursedremoteid/edge/internal/adapters/healthweb"
	"github.com/cursedremoteid/edge/internal/adapters/hopping"
	"github.com/cursedremoteid/edge/internal/adapters/ifmanager"
	"github.com/cursedremoteid/edge/internal/adapters/journal"
	"github.com/cursedremoteid/edge/internal/adapters/uploader"
	"github.com/cursedremoteid/edge/internal/config"
	"github.com/cursedremoteid/edge/internal/core/domain"
	"github.com/cursedremoteid/edge/internal/pipeline"
	"github.com/cursedremoteid/edge/internal/telemetry"
)

func main() {
	os.Exit(run())
}

// run bootstraps the four pipeline components, drives them to completion,
// and returns the process exit code (spec §6: 0 clean, 1 any fatal
// startup or mid-run condition, including a user-requested shutdown).
func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)

	if cfg.DisableWiFi {
		slog.Error("wifi capture disabled, but no alternate capture path is implemented")
		return 1
	}
	if !cfg.DisableBT {
		slog.Warn("bluetooth LE capture requested but not implemented, only wifi will be captured")
	}

	telemetry.InitMetrics()
	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		slog.Warn("tracer init failed, continuing without tracing", "error", err)
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer shutdownTracer(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := pipeline.NewSignals()
	watchForSignals(signals, cancel)

	ifmgr := ifmanager.NewManager(cfg.NoCheckRequirements)
	phy, mon, err := ifmgr.Setup(ctx)
	if err != nil {
		slog.Error("interface manager setup failed", "error", err)
		return 1
	}
	slog.Info("monitor interface ready", "phy", phy, "mon", mon)
	defer ifmgr.Teardown(context.Background())

	schedule := buildSchedule(ctx, ifmgr)

	hitQueue := pipeline.NewChannelHitQueue(1000)
	recordQueue := pipeline.NewRecordQueue(1000)
	fileQueue := pipeline.NewFileQueue(10)

	source, err := capture.OpenLive(mon)
	if err != nil {
		slog.Error("failed to open capture source", "error", err)
		return 1
	}

	runJournal := openJournal()
	if runJournal != nil {
		defer runJournal.Close()
	}

	sweeper := hopping.NewSweeper(mon, schedule, ifmgr, hitQueue, signals)
	cap := capture.NewCapture(source, recordQueue, hitQueue, signals, time.Duration(cfg.PacketTimeout)*time.Second)

	csvBatcher := batcher.NewBatcher(recordQueue, fileQueue, signals)
	csvBatcher.MaxPacketCount = cfg.MaxPacketCount
	csvBatcher.MaxWindowSeconds = time.Duration(cfg.MaxWindowSeconds) * time.Second
	csvBatcher.BatcherTimeout = time.Duration(cfg.BatcherTimeout) * time.Second
	if runJournal != nil {
		csvBatcher.Journal = runJournal
	}
	if err := csvBatcher.Prepare(); err != nil {
		slog.Error("failed to prepare batcher temp directory", "error", err)
		return 1
	}

	var up *uploader.Uploader
	if cfg.UploadToAWS {
		store, err := uploader.NewS3ObjectStore(ctx, "")
		if err != nil {
			slog.Error("failed to initialize object store", "error", err)
			return 1
		}
		up = uploader.NewUploader(fileQueue, store, signals, cfg.BucketName)
		up.MaxErrCount = cfg.MaxErrorCount
		if runJournal != nil {
			up.Journal = runJournal
		}
	} else {
		slog.Info("upload disabled, closed windows will not be uploaded")
	}

	health := healthweb.NewServer(":8080", cap, signals)
	go func() {
		if err := health.Run(ctx); err != nil {
			slog.Warn("healthweb server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); sweeper.Run(ctx) }()
	go func() { defer wg.Done(); cap.Run(ctx) }()
	go func() { defer wg.Done(); csvBatcher.Run(ctx) }()

	if up != nil {
		wg.Add(1)
		go func() { defer wg.Done(); up.Run(ctx) }()
	}

	slog.Info("remoteid-edge running")
	wg.Wait()
	slog.Info("all pipeline components stopped")

	if signals.SigInt.IsSet() || signals.Sleep.IsSet() {
		return 1
	}
	return 0
}

// watchForSignals translates OS signals into the pipeline's shared
// signals (spec §5's "Cancellation"). A second interrupt forces an
// immediate process exit rather than waiting for graceful drain.
func watchForSignals(signals *pipeline.Signals, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("interrupt received, shutting down")
		signals.SigInt.Set()
		cancel()

		<-sigCh
		slog.Error("second interrupt received, forcing immediate exit")
		os.Exit(1)
	}()
}

// buildSchedule intersects the default channel schedule with the radio's
// regulatory-permitted channels (spec §4.1 step 7). A lookup failure
// leaves the default schedule untouched; the sweeper's own illegal-channel
// handling prunes the rest at runtime.
func buildSchedule(ctx context.Context, ifmgr *ifmanager.Manager) *domain.ChannelSchedule {
	schedule := domain.DefaultSchedule()

	supported, err := ifmgr.SupportedChannels(ctx)
	if err != nil {
		slog.Warn("failed to query supported channels, using full default schedule", "error", err)
		return schedule
	}

	allowed := make(map[int]bool, len(supported))
	for _, ch := range supported {
		allowed[ch] = true
	}
	for _, entry := range schedule.Entries() {
		if !allowed[entry.Channel] {
			schedule.RemoveChannel(entry.Channel)
		}
	}
	return schedule
}

// openJournal best-effort opens the supplemental run journal under the
// invoking user's home directory. A failure here is logged and the
// journal is simply omitted; it is never part of the critical path.
func openJournal() *journal.SQLiteJournal {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("could not resolve home directory, run journal disabled", "error", err)
		return nil
	}

	dir := filepath.Join(home, ".local", "share", "remoteid-edge")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("could not create run journal directory, run journal disabled", "error", err)
		return nil
	}

	j, err := journal.NewSQLiteJournal(filepath.Join(dir, "run-journal.db"))
	if err != nil {
		slog.Warn("could not open run journal, continuing without it", "error", err)
		return nil
	}
	return j
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	} else if cfg.Verbose {
		level = slog.LevelInfo
	}

	var writer io.Writer = os.Stdout
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err == nil {
			if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				writer = io.MultiWriter(os.Stdout, f)
			}
		}
	}

	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level}))
}
