package ledger

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const fileVersion = "1.0"

// trackedExtensions are the file types FindOrphans considers.
var trackedExtensions = []string{".fits", ".fit", ".png", ".jpg", ".jpeg"}

// Record is one completed download, keyed by "<imageID>:<type>".
type Record struct {
	ImageID           string    `json:"image_id"`
	CustomerImageID   string    `json:"customer_image_id"`
	MissionID         string    `json:"mission_id"`
	Filename          string    `json:"filename"`
	DownloadURL       string    `json:"download_url"`
	FilePath          string    `json:"file_path"`
	FileSize          int64     `json:"file_size"`
	MD5Hash           string    `json:"md5_hash,omitempty"`
	ImageType         string    `json:"image_type"`
	TelescopeName     string    `json:"telescope_name"`
	ObjectName        string    `json:"object_name"`
	PhotorollPosition int       `json:"photoroll_position,omitempty"`
	DownloadDate      time.Time `json:"download_date"`
	SessionID         int       `json:"session_id"`
}

// Key returns the dedup key for the record.
func (r *Record) Key() string {
	return r.ImageID + ":" + r.ImageType
}

// Session is one orchestrated run's persisted bookkeeping.
type Session struct {
	SessionID        int        `json:"session_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	ImagesDownloaded int        `json:"images_downloaded"`
	ImagesFailed     int        `json:"images_failed"`
	TotalBytes       int64      `json:"total_bytes"`
	Status           string     `json:"status"`
}

// Session status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
)

type metadata struct {
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`
	Version     string    `json:"version"`
}

type fileData struct {
	Images   map[string]*Record `json:"images"`
	Sessions []*Session         `json:"sessions"`
	Metadata metadata           `json:"metadata"`
}

// Ledger is a JSON-file-backed registry of completed downloads and
// sessions. All methods are safe for concurrent use.
type Ledger struct {
	path       string
	backupPath string
	log        *zap.SugaredLogger

	mu   sync.Mutex
	data fileData
}

// New creates a ledger backed by the given file path. Call Load before
// first use.
func New(path string, log *zap.SugaredLogger) *Ledger {
	now := time.Now()
	return &Ledger{
		path:       path,
		backupPath: path + ".backup",
		log:        log,
		data: fileData{
			Images: make(map[string]*Record),
			Metadata: metadata{
				Created:     now,
				LastUpdated: now,
				Version:     fileVersion,
			},
		},
	}
}

// Path returns the ledger file's location.
func (l *Ledger) Path() string {
	return l.path
}

// Load reads the ledger file. A missing file leaves the ledger empty and
// is not an error. A corrupt file falls back to the .backup sibling; if
// that also fails the ledger starts empty and the problem is logged.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.readFrom(l.path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	l.log.Warnw("ledger file unreadable, trying backup", "path", l.path, "error", err)
	if backupErr := l.readFrom(l.backupPath); backupErr == nil {
		l.log.Infow("ledger restored from backup", "path", l.backupPath)
		return nil
	}

	l.log.Warnw("backup unreadable, starting with empty ledger", "path", l.backupPath)
	return nil
}

func (l *Ledger) readFrom(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	if data.Images == nil {
		data.Images = make(map[string]*Record)
	}
	l.data = data
	return nil
}

// Save writes the ledger to disk. The previous file is copied to the
// .backup sibling first, then the new content is written to a temp file
// and renamed into place so a crash mid-write cannot corrupt the ledger.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked()
}

func (l *Ledger) saveLocked() error {
	l.data.Metadata.LastUpdated = time.Now()

	if dir := filepath.Dir(l.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "creating ledger directory")
		}
	}

	// Best effort: keep the pre-save snapshot around.
	if prev, err := os.ReadFile(l.path); err == nil {
		if err := os.WriteFile(l.backupPath, prev, 0o644); err != nil {
			l.log.Warnw("writing ledger backup failed", "error", err)
		}
	}

	raw, err := json.MarshalIndent(l.data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding ledger")
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "writing ledger")
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return errors.Wrap(err, "replacing ledger file")
	}
	return nil
}

// IsDownloaded reports whether the image/type pair is already recorded.
func (l *Ledger) IsDownloaded(imageID, imageType string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.data.Images[imageID+":"+imageType]
	return ok
}

// Record registers a completed download in memory. The caller saves:
// recording is hot-path work during a batch commit and writing the file
// per image would be wasteful.
func (l *Ledger) Record(rec *Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.DownloadDate.IsZero() {
		rec.DownloadDate = time.Now()
	}
	l.data.Images[rec.Key()] = rec
}

// CreateSession appends a new running session and persists immediately,
// so an aborted run still leaves a trace. Returns the session id.
func (l *Ledger) CreateSession() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Next id after the highest seen, so trimming old sessions never
	// causes an id to be reused.
	nextID := 0
	if n := len(l.data.Sessions); n > 0 {
		nextID = l.data.Sessions[n-1].SessionID + 1
	}
	s := &Session{
		SessionID: nextID,
		StartTime: time.Now(),
		Status:    StatusRunning,
	}
	l.data.Sessions = append(l.data.Sessions, s)
	if err := l.saveLocked(); err != nil {
		return 0, err
	}
	return s.SessionID, nil
}

// UpdateSession adds counter deltas to a session, optionally sets its
// status, stamps the end time and persists.
func (l *Ledger) UpdateSession(id, downloaded, failed int, bytes int64, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s *Session
	for _, cand := range l.data.Sessions {
		if cand.SessionID == id {
			s = cand
			break
		}
	}
	if s == nil {
		return errors.Newf("unknown session id %d", id)
	}
	s.ImagesDownloaded += downloaded
	s.ImagesFailed += failed
	s.TotalBytes += bytes
	if status != "" {
		s.Status = status
	}
	now := time.Now()
	s.EndTime = &now
	return l.saveLocked()
}

// Sessions returns a copy of the session list, oldest first.
func (l *Ledger) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Session, len(l.data.Sessions))
	copy(out, l.data.Sessions)
	return out
}

// LastDownloadDate returns the most recent recorded download time, or a
// zero time when the ledger is empty.
func (l *Ledger) LastDownloadDate() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	var last time.Time
	for _, rec := range l.data.Images {
		if rec.DownloadDate.After(last) {
			last = rec.DownloadDate
		}
	}
	return last
}

// Stats is an aggregate view over everything the ledger tracks.
type Stats struct {
	TotalImages   int
	TotalSessions int
	TotalBytes    int64
	ByType        map[string]int
	ByTelescope   map[string]int
	ByObject      map[string]int
}

// Statistics aggregates the ledger contents.
func (l *Ledger) Statistics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{
		TotalImages:   len(l.data.Images),
		TotalSessions: len(l.data.Sessions),
		ByType:        make(map[string]int),
		ByTelescope:   make(map[string]int),
		ByObject:      make(map[string]int),
	}
	for _, rec := range l.data.Images {
		stats.TotalBytes += rec.FileSize
		stats.ByType[orUnknown(rec.ImageType)]++
		stats.ByTelescope[orUnknown(rec.TelescopeName)]++
		stats.ByObject[orUnknown(rec.ObjectName)]++
	}
	return stats
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// VerifyResult summarizes a disk check of tracked files.
type VerifyResult struct {
	Total        int
	Valid        int
	Missing      int
	Errors       int
	MissingFiles []*Record
}

// Verify checks that every tracked file still exists on disk.
func (l *Ledger) Verify() VerifyResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := VerifyResult{Total: len(l.data.Images)}
	for _, rec := range l.data.Images {
		if rec.FilePath == "" {
			res.Errors++
			continue
		}
		if _, err := os.Stat(rec.FilePath); err == nil {
			res.Valid++
		} else {
			res.Missing++
			res.MissingFiles = append(res.MissingFiles, rec)
		}
	}
	sort.Slice(res.MissingFiles, func(i, j int) bool {
		return res.MissingFiles[i].FilePath < res.MissingFiles[j].FilePath
	})
	return res
}

// FindOrphans walks basePath and returns image files on disk that no
// ledger record points at.
func (l *Ledger) FindOrphans(basePath string) ([]string, error) {
	l.mu.Lock()
	tracked := make(map[string]bool, len(l.data.Images))
	for _, rec := range l.data.Images {
		if rec.FilePath == "" {
			continue
		}
		if abs, err := filepath.Abs(rec.FilePath); err == nil {
			tracked[abs] = true
		}
	}
	l.mu.Unlock()

	var orphans []string
	err := filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !isTrackedExtension(path) {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if !tracked[abs] {
			orphans = append(orphans, abs)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning for orphans")
	}
	return orphans, nil
}

func isTrackedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range trackedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// PruneMissing drops records whose files no longer exist on disk and
// persists when anything was removed. Returns the removed count.
func (l *Ledger) PruneMissing() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int
	for key, rec := range l.data.Images {
		if rec.FilePath == "" {
			continue
		}
		if _, err := os.Stat(rec.FilePath); err != nil {
			delete(l.data.Images, key)
			removed++
		}
	}
	if removed > 0 {
		if err := l.saveLocked(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// TrimSessions keeps only the most recent n sessions. Session ids of
// kept entries are preserved, so ids stay monotonically increasing.
func (l *Ledger) TrimSessions(keep int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if keep < 0 || len(l.data.Sessions) <= keep {
		return nil
	}
	l.data.Sessions = l.data.Sessions[len(l.data.Sessions)-keep:]
	return l.saveLocked()
}
