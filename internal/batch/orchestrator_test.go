package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sloohtools/slooh-downloader/internal/config"
	"github.com/sloohtools/slooh-downloader/internal/fetch"
	"github.com/sloohtools/slooh-downloader/internal/ledger"
	"github.com/sloohtools/slooh-downloader/internal/logging"
	"github.com/sloohtools/slooh-downloader/internal/model"
	"github.com/sloohtools/slooh-downloader/internal/organize"
	"github.com/sloohtools/slooh-downloader/internal/slooh"
)

type fakeSource struct {
	authed   bool
	pictures []*model.Picture
	fits     map[string][]*model.Picture
	listErr  error
}

func (f *fakeSource) IsAuthenticated() bool { return f.authed }

func (f *fakeSource) GetPictures(_ context.Context, first, max int, _ string, _ string) (*slooh.Page, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := first - 1
	if start >= len(f.pictures) {
		return &slooh.Page{TotalCount: len(f.pictures)}, nil
	}
	end := start + max
	if end > len(f.pictures) {
		end = len(f.pictures)
	}
	return &slooh.Page{TotalCount: len(f.pictures), Pictures: f.pictures[start:end]}, nil
}

func (f *fakeSource) GetMissionFITS(_ context.Context, missionID string) ([]*model.Picture, error) {
	return f.fits[missionID], nil
}

// fakeDownloader marks every task completed (or failed for flagged
// ids) without touching the network.
type fakeDownloader struct {
	mu      sync.Mutex
	failIDs map[string]bool
	batches [][]*model.Task
}

func (f *fakeDownloader) Download(_ context.Context, tasks []*model.Task) (fetch.Stats, error) {
	f.mu.Lock()
	f.batches = append(f.batches, tasks)
	f.mu.Unlock()

	var stats fetch.Stats
	for _, task := range tasks {
		if f.failIDs[task.ImageID] {
			task.Status = model.TaskFailed
			task.Err = errors.New("transfer failed")
			stats.Failed++
			stats.FailedTasks = append(stats.FailedTasks, task)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(task.Destination), 0o755); err != nil {
			return stats, err
		}
		if err := os.WriteFile(task.Destination, []byte("0123456789"), 0o644); err != nil {
			return stats, err
		}
		task.Status = model.TaskCompleted
		task.Size = 10
		stats.Completed++
		stats.TotalBytes += task.Size
		stats.CompletedTasks = append(stats.CompletedTasks, task)
	}
	return stats, nil
}

type fixture struct {
	orch       *Orchestrator
	source     *fakeSource
	downloader *fakeDownloader
	ledger     *ledger.Ledger
}

func newFixture(t *testing.T, source *fakeSource, cb Callbacks) *fixture {
	t.Helper()

	dir := t.TempDir()
	lgr := ledger.New(filepath.Join(dir, "tracker.json"), logging.Nop())
	require.NoError(t, lgr.Load())

	settings := config.DefaultSettings()
	settings.BasePath = filepath.Join(dir, "images")

	resolver := organize.NewResolver(settings.BasePath, settings.FolderTemplate, settings.FilenameTemplate, settings.UnknownObject, logging.Nop())

	downloader := &fakeDownloader{failIDs: make(map[string]bool)}
	factory := func(fetch.Callbacks) Downloader { return downloader }

	return &fixture{
		orch:       New(source, lgr, resolver, factory, settings, cb, logging.Nop()),
		source:     source,
		downloader: downloader,
		ledger:     lgr,
	}
}

func pic(id, title string) *model.Picture {
	return &model.Picture{
		ImageID:     id,
		Title:       title,
		Type:        "png",
		Telescope:   "Chile One",
		DownloadURL: "https://cdn.slooh.com/" + id + ".png",
	}
}

func TestRunRequiresAuthentication(t *testing.T) {
	f := newFixture(t, &fakeSource{authed: false}, Callbacks{})
	_, err := f.orch.Run(context.Background(), Options{})
	require.ErrorContains(t, err, "not authenticated")
}

func TestRunDownloadsAndRecords(t *testing.T) {
	source := &fakeSource{authed: true, pictures: []*model.Picture{pic("1", "M42"), pic("2", "M31")}}
	f := newFixture(t, source, Callbacks{})

	stats, err := f.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 2, stats.Queued)
	assert.Equal(t, 2, stats.Downloaded)
	assert.Equal(t, 0, stats.Failed)
	assert.True(t, f.ledger.IsDownloaded("1", "png"))
	assert.True(t, f.ledger.IsDownloaded("2", "png"))

	sessions := f.ledger.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, ledger.StatusCompleted, sessions[0].Status)
	assert.Equal(t, 2, sessions[0].ImagesDownloaded)
}

func TestRerunSkipsTrackedImages(t *testing.T) {
	source := &fakeSource{authed: true, pictures: []*model.Picture{pic("1", "M42"), pic("2", "M31")}}
	f := newFixture(t, source, Callbacks{})

	_, err := f.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	stats, err := f.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.AlreadyTracked)
	assert.Equal(t, 0, stats.Queued)
	assert.Equal(t, 0, stats.Downloaded)
}

func TestForceBypassesDedup(t *testing.T) {
	source := &fakeSource{authed: true, pictures: []*model.Picture{pic("1", "M42")}}
	f := newFixture(t, source, Callbacks{})

	_, err := f.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	// The file now exists on disk, so force also needs a non-skip
	// duplicate policy to requeue it.
	stats, err := f.orch.Run(context.Background(), Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedExisting)

	f.orch.settings.HandleDuplicates = config.DuplicateOverwrite
	stats, err = f.orch.Run(context.Background(), Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Downloaded)
}

func TestFilterStopScanEndsRun(t *testing.T) {
	old := pic("1", "M42")
	old.Timestamp = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := pic("2", "M31")
	newer.Timestamp = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Newest first, as the photoroll delivers them.
	source := &fakeSource{authed: true, pictures: []*model.Picture{newer, old, pic("3", "M13")}}
	f := newFixture(t, source, Callbacks{})

	stats, err := f.orch.Run(context.Background(), Options{
		Filters: model.FilterSet{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	// The scan stops at the first too-old candidate and never reaches
	// the third picture.
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Downloaded)
}

func TestMaxTotalCapsQueue(t *testing.T) {
	source := &fakeSource{authed: true, pictures: []*model.Picture{pic("1", "a"), pic("2", "b"), pic("3", "c")}}
	f := newFixture(t, source, Callbacks{})

	stats, err := f.orch.Run(context.Background(), Options{MaxTotal: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Queued)
	assert.Equal(t, 2, stats.Downloaded)
}

func TestDryRunDownloadsNothing(t *testing.T) {
	source := &fakeSource{authed: true, pictures: []*model.Picture{pic("1", "M42")}}
	f := newFixture(t, source, Callbacks{})

	stats, err := f.orch.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 0, stats.Downloaded)
	assert.Empty(t, f.downloader.batches)
	assert.False(t, f.ledger.IsDownloaded("1", "png"))
}

func TestChunkedFlush(t *testing.T) {
	pictures := make([]*model.Picture, 0, chunkSize+10)
	for i := 0; i < chunkSize+10; i++ {
		pictures = append(pictures, pic(pictureID(i), "M42"))
	}
	source := &fakeSource{authed: true, pictures: pictures}
	f := newFixture(t, source, Callbacks{})

	stats, err := f.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, chunkSize+10, stats.Downloaded)
	require.Len(t, f.downloader.batches, 2)
	assert.Len(t, f.downloader.batches[0], chunkSize)
	assert.Len(t, f.downloader.batches[1], 10)
	assert.Equal(t, 2, stats.Batches)
}

func TestFailedTasksNotRecorded(t *testing.T) {
	source := &fakeSource{authed: true, pictures: []*model.Picture{pic("1", "M42"), pic("2", "M31")}}
	f := newFixture(t, source, Callbacks{})
	f.downloader.failIDs["2"] = true

	stats, err := f.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Downloaded)
	assert.Equal(t, 1, stats.Failed)
	assert.True(t, f.ledger.IsDownloaded("1", "png"))
	assert.False(t, f.ledger.IsDownloaded("2", "png"))
}

func TestBatchCompleteFiresOnSuccess(t *testing.T) {
	var completed []model.SessionStats
	cb := Callbacks{OnBatchComplete: func(s model.SessionStats) { completed = append(completed, s) }}

	source := &fakeSource{authed: true, pictures: []*model.Picture{pic("1", "M42")}}
	f := newFixture(t, source, cb)

	_, err := f.orch.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, completed[0].Downloaded)
}

func TestSourceErrorStillFinalizesSession(t *testing.T) {
	var completed []model.SessionStats
	cb := Callbacks{OnBatchComplete: func(s model.SessionStats) { completed = append(completed, s) }}

	source := &fakeSource{authed: true, listErr: errors.New("service unavailable")}
	f := newFixture(t, source, cb)

	_, err := f.orch.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "service unavailable")

	// Finalization still runs: the callback fires and the session ends failed.
	require.Len(t, completed, 1)
	sessions := f.ledger.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, ledger.StatusFailed, sessions[0].Status)
	require.NotNil(t, sessions[0].EndTime)
}

func TestFITSQueuedAlongsidePhotoroll(t *testing.T) {
	p := pic("1", "M42")
	p.MissionID = "m7"
	source := &fakeSource{
		authed:   true,
		pictures: []*model.Picture{p},
		fits: map[string][]*model.Picture{
			"m7": {{ImageID: "f1", Type: "FITS", MissionID: "m7", DownloadURL: "https://cdn.slooh.com/f1.fits"}},
		},
	}
	f := newFixture(t, source, Callbacks{})

	stats, err := f.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Downloaded)
	assert.True(t, f.ledger.IsDownloaded("f1", "FITS"))
}

func TestRunNewSinceLastSession(t *testing.T) {
	source := &fakeSource{authed: true, pictures: []*model.Picture{pic("1", "M42")}}
	f := newFixture(t, source, Callbacks{})

	stats, err := f.orch.RunNewSinceLastSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Downloaded)

	stats, err = f.orch.RunNewSinceLastSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AlreadyTracked)
}

func pictureID(i int) string {
	return "img-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
}
