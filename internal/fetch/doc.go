// Package fetch executes batches of download tasks.
//
// An Engine runs a fixed-size worker pool over the submitted tasks.
// Each worker checks the cancel flag, blocks while paused, takes a
// rate-limiter permit, transfers the file, optionally verifies its MD5
// hash, and retries transient failures with linearly growing delays.
//
// The rate limiter is a sliding 60-second window: at most N permits may
// have been issued in the last minute, and a saturated window blocks
// until the oldest issuance ages out.
//
// Example:
//
//	engine := fetch.NewEngine(client, fetch.Config{
//		WorkerCount:        4,
//		MaxRetries:         3,
//		RetryDelay:         5 * time.Second,
//		RateLimitPerMinute: 30,
//	}, fetch.Callbacks{OnProgress: render}, log)
//
//	stats, err := engine.Download(ctx, tasks)
package fetch
