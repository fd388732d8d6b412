// Package catalog enumerates a user's Slooh photoroll as a lazy stream.
//
// The Enumerator pages through the listing API and hands pictures to the
// caller one at a time, so a scan can stop early without fetching pages
// it will never look at. When enabled, mission FITS files are discovered
// on demand and interleaved behind the photoroll picture that revealed
// the mission.
//
// Example:
//
//	enum := catalog.New(client, catalog.Options{IncludeFITS: true}, log)
//	for {
//		pic, err := enum.Next(ctx)
//		if err != nil || pic == nil {
//			break
//		}
//		// filter, dedup, queue...
//	}
package catalog
