package model

import (
	"strings"
	"time"
)

// FilterSet holds the optional predicates applied to each scanned picture.
//
// All active predicates combine with AND. Predicate evaluation order is
// fixed: telescopes, object, types, exact type, date range. Only the Start
// bound can produce a stop-scanning signal; it exploits the photoroll's
// reverse-chronological order (newest first), so once one picture is older
// than Start every following one is too.
type FilterSet struct {
	// Telescopes matches when any entry is a case-insensitive substring
	// of the picture's telescope name (OR across the set).
	Telescopes []string

	// Object is a case-insensitive substring match against the title.
	Object string

	// Types matches when the picture type is in the set, case-insensitive.
	Types []string

	// TypeExact requires a case-insensitive exact type match.
	TypeExact string

	// Start and End bound the capture timestamp, inclusive. The zero
	// value leaves a bound unset. A picture with no parsable timestamp
	// always satisfies the date predicate.
	Start time.Time
	End   time.Time
}

// IsZero reports whether no predicate is active.
func (f *FilterSet) IsZero() bool {
	return len(f.Telescopes) == 0 && f.Object == "" && len(f.Types) == 0 &&
		f.TypeExact == "" && f.Start.IsZero() && f.End.IsZero()
}

// Evaluate applies the filter set to a picture.
//
// It returns (matched, stopScan). stopScan is true only when the Start
// bound is set and the picture's timestamp falls before it; the caller
// should then stop scanning entirely. A picture newer than End is merely
// excluded: in a newest-first stream, in-range pictures may still follow.
//
// Evaluate is deterministic and side-effect free.
func (f *FilterSet) Evaluate(pic *Picture) (bool, bool) {
	if len(f.Telescopes) > 0 {
		telescope := strings.ToLower(pic.Telescope)
		matched := false
		for _, want := range f.Telescopes {
			if strings.Contains(telescope, strings.ToLower(want)) {
				matched = true
				break
			}
		}
		if !matched {
			return false, false
		}
	}

	if f.Object != "" {
		if !strings.Contains(strings.ToLower(pic.Title), strings.ToLower(f.Object)) {
			return false, false
		}
	}

	if len(f.Types) > 0 {
		picType := strings.ToLower(pic.Type)
		matched := false
		for _, want := range f.Types {
			if picType == strings.ToLower(want) {
				matched = true
				break
			}
		}
		if !matched {
			return false, false
		}
	}

	if f.TypeExact != "" {
		if !strings.EqualFold(pic.Type, f.TypeExact) {
			return false, false
		}
	}

	if !f.Start.IsZero() || !f.End.IsZero() {
		// Unparsable timestamps satisfy the date predicate: filtering
		// degrades gracefully instead of dropping the picture.
		if !pic.Timestamp.IsZero() {
			if !f.Start.IsZero() && pic.Timestamp.Before(f.Start) {
				return false, true
			}
			if !f.End.IsZero() && pic.Timestamp.After(f.End) {
				return false, false
			}
		}
	}

	return true, false
}
