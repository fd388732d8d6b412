package model

// Progress is a snapshot of fetch engine state delivered to progress
// callbacks. BatchNumber and BatchSize identify the orchestrator batch the
// snapshot belongs to; batches are strictly ordered even though task
// completions within one batch are not.
type Progress struct {
	Total       int
	Completed   int
	Failed      int
	Cancelled   int
	Active      int
	Percent     float64
	BatchNumber int
	BatchSize   int
}

// SessionStats aggregates the outcome of one orchestrator run. It is
// ephemeral: only the counters mirrored onto the ledger session record
// survive the process.
type SessionStats struct {
	SessionID       int
	Scanned         int
	AlreadyTracked  int
	SkippedExisting int
	Queued          int
	Downloaded      int
	Failed          int
	TotalBytes      int64
	Batches         int
	DryRun          bool
}
