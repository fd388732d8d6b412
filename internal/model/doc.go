// Package model defines the core data structures used throughout
// slooh-downloader.
//
// # Picture
//
// Picture is one remote image descriptor produced by the catalog
// enumerator before any filtering or dedup decision:
//
//	key := pic.Key() // "<imageID>:<type>", the ledger dedup key
//
// # FilterSet
//
// FilterSet is the compound filter applied while scanning the photoroll:
//
//	filters := &model.FilterSet{
//	    Telescopes: []string{"Canary"},
//	    Types:      []string{"png", "FITS"},
//	    Start:      start, // inclusive; triggers early scan termination
//	}
//	matched, stopScan := filters.Evaluate(pic)
//
// # Task
//
// Task is a single download unit with its status lifecycle
// (pending → downloading → completed/failed/cancelled) and the minimal
// metadata projection needed for path resolution and ledger recording.
package model
