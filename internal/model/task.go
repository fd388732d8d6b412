package model

import "time"

// TaskStatus represents the lifecycle state of a download task.
type TaskStatus string

const (
	// TaskPending means the task is queued but not started.
	TaskPending TaskStatus = "pending"

	// TaskDownloading means a worker is executing the transfer.
	TaskDownloading TaskStatus = "downloading"

	// TaskCompleted means the file was written successfully.
	TaskCompleted TaskStatus = "completed"

	// TaskFailed means all retry attempts were exhausted.
	TaskFailed TaskStatus = "failed"

	// TaskCancelled means the engine was cancelled before or during
	// the task's execution.
	TaskCancelled TaskStatus = "cancelled"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the task has reached a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskMeta is the minimal metadata projection carried by a task.
//
// The orchestrator deliberately copies only the fields needed for path
// resolution and ledger recording instead of holding on to the full API
// response object.
type TaskMeta struct {
	CustomerImageID string
	MissionID       string
	Type            string
	Telescope       string
	ObjectName      string
	Instrument      string
	Position        int
	Timestamp       time.Time
	MD5             string
}

// Task is a single download unit handed to the fetch engine.
//
// The engine owns the task exclusively while executing it; the mutable
// fields (Status, Err, Size, Retries, timing) must not be read by other
// goroutines until Download has returned, after which the task is
// read-only.
type Task struct {
	URL         string
	Destination string

	// ImageID and Meta.Type form the composite ledger key.
	ImageID string

	Meta TaskMeta

	Status     TaskStatus
	Err        error
	Size       int64
	Retries    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewTask creates a pending task.
func NewTask(url, destination, imageID string, meta TaskMeta) *Task {
	return &Task{
		URL:         url,
		Destination: destination,
		ImageID:     imageID,
		Meta:        meta,
		Status:      TaskPending,
	}
}

// Key returns the composite dedup key, "<imageID>:<type>".
func (t *Task) Key() string {
	return t.ImageID + ":" + t.Meta.Type
}
