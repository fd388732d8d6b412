package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/sloohtools/slooh-downloader/internal/model"
	"github.com/sloohtools/slooh-downloader/internal/slooh"
)

// Lister is the slice of the Slooh client the enumerator needs.
type Lister interface {
	GetPictures(ctx context.Context, first, max int, missionID, viewType string) (*slooh.Page, error)
	GetMissionFITS(ctx context.Context, missionID string) ([]*model.Picture, error)
}

// Options configure an enumeration run.
type Options struct {
	// MissionID restricts the scan to one mission. Empty or "0" scans
	// the whole photoroll.
	MissionID string

	// PageSize is the number of pictures requested per API call.
	PageSize int

	// MaxScan caps how many photoroll entries are scanned. Hitting the
	// cap ends the sequence normally. Zero means unlimited.
	MaxScan int

	// StartAt is the 1-based photoroll position to start from.
	// Values below 1 start at the newest picture.
	StartAt int

	// IncludeFITS enables the per-mission FITS side channel.
	IncludeFITS bool
}

// Enumerator produces a lazy, filtered-downstream sequence of pictures
// by paging through the photoroll.
//
// When IncludeFITS is set and a yielded picture belongs to a mission not
// yet seen in this run, the mission's FITS files are fetched once and
// interleaved into the stream immediately after the triggering picture,
// inheriting its title, telescope and capture time. A failed FITS fetch
// is logged and skipped; enumeration continues.
//
// Enumerator is not safe for concurrent use; the orchestrator pulls from
// a single goroutine.
type Enumerator struct {
	lister  Lister
	log     *zap.SugaredLogger
	opts    Options
	buffer  []*model.Picture
	offset  int
	total   int
	scanned int
	visited map[string]bool
	done    bool
}

// New creates an enumerator. PageSize defaults to 50 when unset.
func New(lister Lister, opts Options, log *zap.SugaredLogger) *Enumerator {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.StartAt < 1 {
		opts.StartAt = 1
	}
	return &Enumerator{
		lister:  lister,
		log:     log,
		opts:    opts,
		offset:  opts.StartAt,
		total:   -1,
		visited: make(map[string]bool),
	}
}

// Scanned returns how many photoroll entries have been scanned so far.
// FITS side-channel entries do not count against the scan cap.
func (e *Enumerator) Scanned() int {
	return e.scanned
}

// Next returns the next picture in the stream, or (nil, nil) when the
// sequence has ended. Errors from the primary listing are fatal for the
// enumeration; errors from the FITS side channel are not.
func (e *Enumerator) Next(ctx context.Context) (*model.Picture, error) {
	for {
		if len(e.buffer) > 0 {
			pic := e.buffer[0]
			e.buffer = e.buffer[1:]
			// The side channel is consulted only when the trigger is
			// actually yielded, so a stopped scan never pays for FITS
			// lookups of pictures the caller never saw.
			if e.opts.IncludeFITS && pic.HasMission() && !e.visited[pic.MissionID] {
				e.visited[pic.MissionID] = true
				e.buffer = append(e.fetchFITS(ctx, pic), e.buffer...)
			}
			return pic, nil
		}
		if e.done {
			return nil, nil
		}
		if err := e.fill(ctx); err != nil {
			return nil, err
		}
	}
}

// fill requests the next page and loads the buffer.
func (e *Enumerator) fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		e.done = true
		return err
	}

	page, err := e.lister.GetPictures(ctx, e.offset, e.opts.PageSize, e.opts.MissionID, "")
	if err != nil {
		e.done = true
		return errors.Wrap(err, "listing pictures")
	}

	if e.total < 0 {
		e.total = page.TotalCount
		e.log.Infow("photoroll scan started", "total_available", e.total)
		if e.total == 0 {
			e.done = true
			return nil
		}
	}

	if len(page.Pictures) == 0 {
		e.done = true
		return nil
	}

	for _, pic := range page.Pictures {
		e.buffer = append(e.buffer, pic)
		e.scanned++

		if e.opts.MaxScan > 0 && e.scanned >= e.opts.MaxScan {
			e.log.Infow("scan cap reached", "max_scan", e.opts.MaxScan)
			e.done = true
			return nil
		}
	}

	e.offset += len(page.Pictures)
	if e.scanned >= e.total+1-e.opts.StartAt {
		e.done = true
	}
	return nil
}

// fetchFITS pulls the mission's FITS listing and stamps each entry with
// context inherited from the triggering picture. Failure is non-fatal.
func (e *Enumerator) fetchFITS(ctx context.Context, trigger *model.Picture) []*model.Picture {
	fits, err := e.lister.GetMissionFITS(ctx, trigger.MissionID)
	if err != nil {
		e.log.Warnw("fetching mission FITS failed; skipping mission",
			"mission_id", trigger.MissionID, "error", err)
		return nil
	}

	for _, f := range fits {
		// FITS listings carry no usable title or capture time of their
		// own; the triggering picture provides both.
		f.Title = trigger.Title
		f.Telescope = trigger.Telescope
		f.DisplayDate = trigger.DisplayDate
		f.DisplayTime = trigger.DisplayTime
		f.Timestamp = trigger.Timestamp
	}
	if len(fits) > 0 {
		e.log.Infow("mission FITS found", "mission_id", trigger.MissionID, "count", len(fits))
	}
	return fits
}
