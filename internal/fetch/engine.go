package fetch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	ioutils "github.com/sloohtools/slooh-downloader/internal/io"
	"github.com/sloohtools/slooh-downloader/internal/model"
)

// pausePollInterval is how often a paused worker re-checks the flags.
const pausePollInterval = 200 * time.Millisecond

// ErrHashMismatch marks a downloaded file whose MD5 does not match the
// expected hash. The mismatch is retryable; callers test with
// errors.Is.
var ErrHashMismatch = errors.New("hash mismatch")

// Transferer performs the actual byte transfer. *http.Client satisfies
// it; tests substitute a fake.
type Transferer interface {
	DownloadFile(ctx context.Context, url, destPath string, onProgress func(written, total int64)) (int64, error)
}

// Config tunes the engine.
type Config struct {
	WorkerCount        int
	MaxRetries         int           // total attempts per task
	RetryDelay         time.Duration // base delay, scaled by attempt number
	RateLimitPerMinute int           // <= 0 disables limiting
	VerifyHash         bool          // compare MD5 against task metadata
}

// Callbacks are fixed at construction. Nil members are simply skipped.
type Callbacks struct {
	OnProgress     func(model.Progress)
	OnTaskComplete func(*model.Task)
	OnTaskError    func(*model.Task)
}

// Stats aggregates one Download call.
type Stats struct {
	Completed  int
	Failed     int
	Cancelled  int
	TotalBytes int64

	CompletedTasks []*model.Task
	FailedTasks    []*model.Task
}

// Engine executes batches of download tasks on a fixed-size worker pool
// with rate limiting, retries and cooperative pause/cancel.
//
// Pause and cancel are engine-wide flags observed at suspension and
// retry points; an in-flight network call is never interrupted by Pause,
// only context cancellation tears transfers down.
type Engine struct {
	transfer Transferer
	limiter  *Limiter
	cfg      Config
	cb       Callbacks
	log      *zap.SugaredLogger

	paused    bool
	cancelled bool
	flagMu    sync.RWMutex

	mu             sync.Mutex
	total          int
	completed      int
	failed         int
	cancelledCount int
	active         int
	totalBytes     int64
}

// NewEngine creates an engine. WorkerCount and MaxRetries default to 1
// when out of range.
func NewEngine(transfer Transferer, cfg Config, cb Callbacks, log *zap.SugaredLogger) *Engine {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Engine{
		transfer: transfer,
		limiter:  NewLimiter(cfg.RateLimitPerMinute),
		cfg:      cfg,
		cb:       cb,
		log:      log,
	}
}

// Pause suspends workers at their next suspension point.
func (e *Engine) Pause() {
	e.flagMu.Lock()
	e.paused = true
	e.flagMu.Unlock()
	e.log.Info("downloads paused")
}

// Resume lets paused workers continue.
func (e *Engine) Resume() {
	e.flagMu.Lock()
	e.paused = false
	e.flagMu.Unlock()
	e.log.Info("downloads resumed")
}

// Cancel asks all workers to stop. Tasks not yet started are marked
// cancelled; in-flight transfers finish their current attempt.
func (e *Engine) Cancel() {
	e.flagMu.Lock()
	e.cancelled = true
	e.flagMu.Unlock()
	e.log.Info("downloads cancelled")
}

// IsPaused reports the pause flag.
func (e *Engine) IsPaused() bool {
	e.flagMu.RLock()
	defer e.flagMu.RUnlock()
	return e.paused
}

func (e *Engine) isCancelled() bool {
	e.flagMu.RLock()
	defer e.flagMu.RUnlock()
	return e.cancelled
}

// Download executes the batch and blocks until every task reaches a
// terminal state or cancellation drains the pool. Per-task failures are
// reflected in Stats, not in the returned error; the error reports
// context cancellation only.
func (e *Engine) Download(ctx context.Context, tasks []*model.Task) (Stats, error) {
	e.mu.Lock()
	e.total = len(tasks)
	e.completed = 0
	e.failed = 0
	e.cancelledCount = 0
	e.active = 0
	e.totalBytes = 0
	e.mu.Unlock()

	// Workers never return errors (per-task failures land in Stats), so
	// the pool needs no derived context; tasks observe the caller's.
	var g errgroup.Group
	g.SetLimit(e.cfg.WorkerCount)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			e.runTask(ctx, task)
			return nil
		})
	}

	_ = g.Wait()

	var stats Stats
	for _, task := range tasks {
		switch task.Status {
		case model.TaskCompleted:
			stats.Completed++
			stats.TotalBytes += task.Size
			stats.CompletedTasks = append(stats.CompletedTasks, task)
		case model.TaskFailed:
			stats.Failed++
			stats.FailedTasks = append(stats.FailedTasks, task)
		case model.TaskCancelled:
			stats.Cancelled++
		}
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (e *Engine) runTask(ctx context.Context, task *model.Task) {
	if e.isCancelled() || ctx.Err() != nil {
		e.finishTask(task, model.TaskCancelled, nil)
		return
	}

	if err := e.waitWhilePaused(ctx); err != nil {
		e.finishTask(task, model.TaskCancelled, nil)
		return
	}

	if err := e.limiter.Wait(ctx); err != nil {
		e.finishTask(task, model.TaskCancelled, nil)
		return
	}

	task.Status = model.TaskDownloading
	task.StartedAt = time.Now()
	e.mu.Lock()
	e.active++
	e.mu.Unlock()

	// Concurrent workers may race on a shared parent; MkdirAll treats
	// "already exists" as success.
	if err := ioutils.EnsureDir(filepath.Dir(task.Destination)); err != nil {
		e.finishTask(task, model.TaskFailed, errors.Wrap(err, "creating destination directory"))
		return
	}

	size, err := e.attemptTransfers(ctx, task)
	if err != nil {
		e.finishTask(task, model.TaskFailed, err)
		return
	}

	task.Size = size
	if !task.Meta.Timestamp.IsZero() {
		// Let the file carry the capture time rather than the download time.
		if err := os.Chtimes(task.Destination, task.Meta.Timestamp, task.Meta.Timestamp); err != nil {
			e.log.Debugw("setting file mtime failed", "path", task.Destination, "error", err)
		}
	}

	e.finishTask(task, model.TaskCompleted, nil)
}

// attemptTransfers runs the transfer with retries: MaxRetries total
// attempts, sleeping RetryDelay × attemptNumber between them.
func (e *Engine) attemptTransfers(ctx context.Context, task *model.Task) (int64, error) {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if e.isCancelled() || ctx.Err() != nil {
			if lastErr != nil {
				return 0, lastErr
			}
			return 0, errors.New("cancelled")
		}

		size, err := e.transfer.DownloadFile(ctx, task.URL, task.Destination, nil)
		if err == nil {
			err = e.verify(task)
			if err == nil {
				return size, nil
			}
		}

		lastErr = err
		if attempt < e.cfg.MaxRetries {
			// Retries counts extra attempts: attempt n failing makes
			// attempt n+1 the nth retry.
			task.Retries = attempt
			e.log.Warnw("download attempt failed",
				"image_id", task.ImageID,
				"attempt", attempt,
				"max_retries", e.cfg.MaxRetries,
				"error", err)
			e.waitForRetry(ctx, attempt)
		}
	}

	return 0, errors.Wrapf(lastErr, "giving up after %d attempts", e.cfg.MaxRetries)
}

// verify compares the downloaded file's MD5 against task metadata. A
// mismatch is a retryable failure. Tasks without an expected hash pass.
func (e *Engine) verify(task *model.Task) error {
	if !e.cfg.VerifyHash || task.Meta.MD5 == "" {
		return nil
	}

	sum, err := ioutils.FileMD5(task.Destination)
	if err != nil {
		return errors.Wrap(err, "hashing downloaded file")
	}
	if !strings.EqualFold(sum, task.Meta.MD5) {
		return errors.Mark(errors.Newf("hash mismatch: got %s, want %s", sum, task.Meta.MD5), ErrHashMismatch)
	}
	return nil
}

func (e *Engine) waitWhilePaused(ctx context.Context) error {
	for e.IsPaused() {
		if e.isCancelled() {
			return errors.New("cancelled")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pausePollInterval):
		}
	}
	return nil
}

func (e *Engine) waitForRetry(ctx context.Context, attempt int) {
	select {
	case <-ctx.Done():
	case <-time.After(e.cfg.RetryDelay * time.Duration(attempt)):
	}
}

// finishTask records a terminal state, updates shared counters and fires
// callbacks with a consistent snapshot.
func (e *Engine) finishTask(task *model.Task, status model.TaskStatus, err error) {
	task.Status = status
	task.Err = err
	task.FinishedAt = time.Now()

	e.mu.Lock()
	// active was only incremented once the task actually started, so
	// cancelled-before-start tasks do not decrement it.
	switch status {
	case model.TaskCompleted:
		e.completed++
		e.totalBytes += task.Size
		e.active--
	case model.TaskFailed:
		e.failed++
		e.active--
	case model.TaskCancelled:
		e.cancelledCount++
	}
	snapshot := e.progressLocked()
	e.mu.Unlock()

	switch status {
	case model.TaskCompleted:
		e.log.Infow("downloaded", "image_id", task.ImageID, "path", task.Destination, "bytes", task.Size)
		if e.cb.OnTaskComplete != nil {
			e.cb.OnTaskComplete(task)
		}
	case model.TaskFailed:
		e.log.Errorw("download failed", "image_id", task.ImageID, "error", err)
		if e.cb.OnTaskError != nil {
			e.cb.OnTaskError(task)
		}
	case model.TaskCancelled:
		e.log.Debugw("download cancelled", "image_id", task.ImageID)
	}

	if e.cb.OnProgress != nil {
		e.cb.OnProgress(snapshot)
	}
}

// progressLocked builds a snapshot. Caller holds e.mu.
func (e *Engine) progressLocked() model.Progress {
	p := model.Progress{
		Total:     e.total,
		Completed: e.completed,
		Failed:    e.failed,
		Cancelled: e.cancelledCount,
		Active:    e.active,
	}
	if p.Total > 0 {
		p.Percent = float64(p.Completed+p.Failed+p.Cancelled) / float64(p.Total) * 100
	}
	return p
}
