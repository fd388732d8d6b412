package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/sloohtools/slooh-downloader/internal/catalog"
	"github.com/sloohtools/slooh-downloader/internal/config"
	"github.com/sloohtools/slooh-downloader/internal/fetch"
	"github.com/sloohtools/slooh-downloader/internal/ledger"
	"github.com/sloohtools/slooh-downloader/internal/model"
)

// chunkSize is how many queued tasks trigger a flush to the fetch
// engine. It bounds peak memory and caps data loss on crash to one
// in-flight chunk, independent of any caller-supplied download limit.
const chunkSize = 50

// Source is the slice of the Slooh client the orchestrator consumes.
type Source interface {
	catalog.Lister
	IsAuthenticated() bool
}

// Downloader executes one batch of tasks. *fetch.Engine satisfies it.
type Downloader interface {
	Download(ctx context.Context, tasks []*model.Task) (fetch.Stats, error)
}

// PathResolver maps pictures to local destinations.
type PathResolver interface {
	DestinationPath(pic *model.Picture) string
	DuplicatePath(path string) string
}

// EngineFactory builds a Downloader bound to the given callbacks. The
// orchestrator creates one engine per run so the callbacks can carry
// batch context without mutating a shared engine.
type EngineFactory func(fetch.Callbacks) Downloader

// Callbacks are fixed at construction and fire for every run.
type Callbacks struct {
	OnBatchStart    func(model.SessionStats)
	OnBatchComplete func(model.SessionStats)
	OnProgress      func(model.Progress)
	OnTaskComplete  func(*model.Task)
	OnTaskError     func(*model.Task)
}

// Options select what a run downloads.
type Options struct {
	MissionID string          // restrict to one mission; "" or "0" means all
	MaxTotal  int             // cap on accepted tasks; 0 = unlimited
	MaxScan   int             // cap on scanned photoroll entries; 0 = all
	StartAt   int             // 1-based photoroll position to start from
	Filters   model.FilterSet // candidate predicates
	DryRun    bool            // report what would be fetched, download nothing
	Force     bool            // bypass ledger dedup
}

// Orchestrator composes enumeration, filtering, dedup and the fetch
// engine into one batch download run.
type Orchestrator struct {
	source    Source
	ledger    *ledger.Ledger
	resolver  PathResolver
	newEngine EngineFactory
	settings  *config.Settings
	cb        Callbacks
	log       *zap.SugaredLogger

	mu          sync.Mutex
	cancelled   bool
	engine      Downloader
	batchNumber int
	batchSize   int
}

// New creates an orchestrator.
func New(source Source, lgr *ledger.Ledger, resolver PathResolver, newEngine EngineFactory, settings *config.Settings, cb Callbacks, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		source:    source,
		ledger:    lgr,
		resolver:  resolver,
		newEngine: newEngine,
		settings:  settings,
		cb:        cb,
		log:       log,
	}
}

// Cancel asks the current run to stop at the next candidate boundary.
// In-flight engine work is cancelled cooperatively.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	o.cancelled = true
	engine := o.engine
	o.mu.Unlock()

	if e, ok := engine.(*fetch.Engine); ok && e != nil {
		e.Cancel()
	}
	o.log.Info("run cancelled")
}

// Pause suspends the fetch engine of the current run.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	engine := o.engine
	o.mu.Unlock()
	if e, ok := engine.(*fetch.Engine); ok && e != nil {
		e.Pause()
	}
}

// Resume lets a paused run continue.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	engine := o.engine
	o.mu.Unlock()
	if e, ok := engine.(*fetch.Engine); ok && e != nil {
		e.Resume()
	}
}

func (o *Orchestrator) isCancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

// Run scans the photoroll, queues everything that passes filters and
// dedup, and downloads it in bounded chunks. The session record and the
// ledger are always finalized, and the batch-complete callback always
// fires, even when the run returns an error.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (model.SessionStats, error) {
	var stats model.SessionStats
	stats.DryRun = opts.DryRun

	if !o.source.IsAuthenticated() {
		return stats, errors.New("not authenticated: log in first")
	}

	sessionID, err := o.ledger.CreateSession()
	if err != nil {
		return stats, errors.Wrap(err, "creating session")
	}
	stats.SessionID = sessionID

	o.mu.Lock()
	o.cancelled = false
	o.batchNumber = 0
	o.engine = o.newEngine(fetch.Callbacks{
		OnProgress:     o.annotateProgress,
		OnTaskComplete: o.cb.OnTaskComplete,
		OnTaskError:    o.cb.OnTaskError,
	})
	engine := o.engine
	o.mu.Unlock()

	o.log.Infow("batch download session starting",
		"session_id", sessionID,
		"mission_id", model.NormalizeMissionID(opts.MissionID),
		"dry_run", opts.DryRun,
		"force", opts.Force)

	if o.cb.OnBatchStart != nil {
		o.cb.OnBatchStart(stats)
	}

	runErr := o.scanAndDownload(ctx, engine, opts, &stats)

	// Finalization happens regardless of how the run ended.
	status := ledger.StatusCompleted
	switch {
	case runErr != nil:
		status = ledger.StatusFailed
	case o.isCancelled() || ctx.Err() != nil:
		status = ledger.StatusAborted
	}
	if err := o.ledger.UpdateSession(sessionID, stats.Downloaded, stats.Failed, stats.TotalBytes, status); err != nil {
		o.log.Errorw("finalizing session failed", "session_id", sessionID, "error", err)
	}

	o.mu.Lock()
	o.engine = nil
	o.mu.Unlock()

	if o.cb.OnBatchComplete != nil {
		o.cb.OnBatchComplete(stats)
	}

	o.log.Infow("batch download session finished",
		"session_id", sessionID,
		"status", status,
		"scanned", stats.Scanned,
		"downloaded", stats.Downloaded,
		"failed", stats.Failed,
		"bytes", stats.TotalBytes)
	return stats, runErr
}

func (o *Orchestrator) scanAndDownload(ctx context.Context, engine Downloader, opts Options, stats *model.SessionStats) error {
	enum := catalog.New(o.source, catalog.Options{
		MissionID:   model.NormalizeMissionID(opts.MissionID),
		PageSize:    o.settings.BatchSize,
		MaxScan:     opts.MaxScan,
		StartAt:     opts.StartAt,
		IncludeFITS: true,
	}, o.log)

	var tasks []*model.Task

scan:
	for {
		if o.isCancelled() || ctx.Err() != nil {
			o.log.Info("cancelled, stopping picture scan")
			break
		}

		pic, err := enum.Next(ctx)
		if err != nil {
			return errors.Wrap(err, "scanning photoroll")
		}
		if pic == nil {
			break
		}
		stats.Scanned++

		matched, stopScan := opts.Filters.Evaluate(pic)
		if !matched {
			if stopScan {
				// The photoroll is newest-first: everything after this
				// candidate is older than the start date too.
				o.log.Infow("reached pictures older than start date, stopping scan", "scanned", stats.Scanned)
				break
			}
			continue
		}

		if !opts.Force && o.settings.CheckLedger && o.ledger.IsDownloaded(pic.ImageID, pic.Type) {
			stats.AlreadyTracked++
			continue
		}

		task, ok := o.buildTask(pic, stats)
		if !ok {
			continue
		}
		tasks = append(tasks, task)
		stats.Queued++

		if !opts.DryRun && len(tasks) >= chunkSize {
			if err := o.flush(ctx, engine, tasks, stats); err != nil {
				return err
			}
			tasks = nil
		}

		if opts.MaxTotal > 0 && stats.Queued >= opts.MaxTotal {
			o.log.Infow("reached download limit", "max_total", opts.MaxTotal)
			break scan
		}
	}

	if len(tasks) == 0 {
		if stats.AlreadyTracked > 0 {
			o.log.Infow("no new images to download", "already_tracked", stats.AlreadyTracked)
		} else if stats.Queued == 0 {
			o.log.Info("no new images to download")
		}
		return nil
	}

	if opts.DryRun {
		o.log.Infow("dry run: images that would be downloaded", "count", len(tasks))
		for i, task := range tasks {
			o.log.Infof("  %d. %s", i+1, filepath.Base(task.Destination))
		}
		return nil
	}

	if o.isCancelled() || ctx.Err() != nil {
		return nil
	}
	return o.flush(ctx, engine, tasks, stats)
}

// buildTask projects a picture into a download task, deliberately
// carrying only the fields needed for path resolution and ledger
// recording.
func (o *Orchestrator) buildTask(pic *model.Picture, stats *model.SessionStats) (*model.Task, bool) {
	if pic.DownloadURL == "" {
		o.log.Warnw("no download URL, skipping", "image_id", pic.ImageID)
		return nil, false
	}

	dest := o.resolver.DestinationPath(pic)
	if _, err := os.Stat(dest); err == nil {
		switch o.settings.HandleDuplicates {
		case config.DuplicateSkip:
			o.log.Debugw("destination exists, skipping", "path", dest)
			stats.SkippedExisting++
			return nil, false
		case config.DuplicateRename:
			dest = o.resolver.DuplicatePath(dest)
		case config.DuplicateOverwrite:
			// Keep the resolved path.
		}
	}

	o.log.Infow("queueing",
		"title", pic.Title,
		"type", pic.Type,
		"file", filepath.Base(dest))

	return model.NewTask(pic.DownloadURL, dest, pic.ImageID, model.TaskMeta{
		CustomerImageID: pic.CustomerImageID,
		MissionID:       pic.MissionID,
		Type:            pic.Type,
		Telescope:       pic.Telescope,
		ObjectName:      pic.Title,
		Instrument:      pic.Instrument,
		Position:        pic.Position,
		Timestamp:       pic.Timestamp,
	}), true
}

// flush hands one chunk to the engine and commits the successes,
// bounding data loss on crash to the chunk in flight.
func (o *Orchestrator) flush(ctx context.Context, engine Downloader, tasks []*model.Task, stats *model.SessionStats) error {
	o.mu.Lock()
	o.batchNumber++
	o.batchSize = len(tasks)
	batchNumber := o.batchNumber
	o.mu.Unlock()

	stats.Batches = batchNumber
	o.log.Infow("starting batch", "batch", batchNumber, "files", len(tasks))

	downloadStats, err := engine.Download(ctx, tasks)

	stats.Downloaded += downloadStats.Completed
	stats.Failed += downloadStats.Failed
	stats.TotalBytes += downloadStats.TotalBytes

	for _, task := range downloadStats.CompletedTasks {
		o.ledger.Record(&ledger.Record{
			ImageID:           task.ImageID,
			CustomerImageID:   task.Meta.CustomerImageID,
			MissionID:         task.Meta.MissionID,
			Filename:          filepath.Base(task.Destination),
			DownloadURL:       task.URL,
			FilePath:          task.Destination,
			FileSize:          task.Size,
			MD5Hash:           task.Meta.MD5,
			ImageType:         task.Meta.Type,
			TelescopeName:     task.Meta.Telescope,
			ObjectName:        task.Meta.ObjectName,
			PhotorollPosition: task.Meta.Position,
			SessionID:         stats.SessionID,
		})
	}
	// Persistence failures do not abort the run: the in-memory ledger
	// stays authoritative and the next flush retries the save.
	if saveErr := o.ledger.Save(); saveErr != nil {
		o.log.Errorw("saving ledger after batch failed", "batch", batchNumber, "error", saveErr)
	}

	o.log.Infow("batch finished",
		"batch", batchNumber,
		"completed", downloadStats.Completed,
		"failed", downloadStats.Failed)

	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrapf(err, "batch %d", batchNumber)
	}
	return nil
}

// annotateProgress stamps engine snapshots with the batch they belong
// to before forwarding them.
func (o *Orchestrator) annotateProgress(p model.Progress) {
	o.mu.Lock()
	p.BatchNumber = o.batchNumber
	p.BatchSize = o.batchSize
	o.mu.Unlock()

	if o.cb.OnProgress != nil {
		o.cb.OnProgress(p)
	}
}

// RunNewSinceLastSession downloads everything not yet tracked, logging
// the previous session's most recent download for context. Dedup makes
// the scan effectively incremental.
func (o *Orchestrator) RunNewSinceLastSession(ctx context.Context) (model.SessionStats, error) {
	if last := o.ledger.LastDownloadDate(); !last.IsZero() {
		o.log.Infow("downloading images added since last session", "last_download", last)
	} else {
		o.log.Info("no previous sessions found, downloading all images")
	}
	return o.Run(ctx, Options{})
}
