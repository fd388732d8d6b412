// Package ledger persists which images have already been downloaded.
//
// The ledger is a single JSON document holding per-image records keyed
// by "<imageID>:<type>", a session history, and file metadata. Saves are
// crash-safe: the previous file is copied to a .backup sibling, then the
// new content is written to a temp file and renamed into place. Loading
// falls back to the backup when the primary is corrupt, and to an empty
// ledger when both are.
//
// Example:
//
//	l := ledger.New("data/download_tracker.json", log)
//	if err := l.Load(); err != nil {
//		return err
//	}
//	if !l.IsDownloaded("12345", "FITS") {
//		// queue it...
//	}
package ledger
