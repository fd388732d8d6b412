package model

import (
	"strings"
	"time"
)

// Picture represents a single remote image descriptor from the photoroll
// or a mission FITS listing.
//
// A Picture is immutable once produced by the catalog enumerator: filters,
// the dedup check and task construction all read from it, none of them
// write back. FITS entries discovered through the mission side channel
// inherit Title, Telescope and the display date/time from the picture
// that triggered the lookup.
type Picture struct {
	// ImageID is the primary identifier assigned by the service.
	ImageID string

	// CustomerImageID is the customer-scoped secondary identifier.
	CustomerImageID string

	// MissionID is the owning mission. Empty string and "0" both mean
	// "no mission" (see NormalizeMissionID).
	MissionID string

	// Title is the image title as displayed by the service, typically
	// the observed object name.
	Title string

	// DownloadURL is the direct URL for the image payload.
	DownloadURL string

	// Filename is the server-side filename, when reported separately
	// from the URL.
	Filename string

	// Type is the artifact type tag: "png", "jpeg" or "FITS".
	Type string

	// Telescope is the name of the telescope that captured the image.
	Telescope string

	// Instrument is the instrument/camera name. Only FITS entries carry
	// a meaningful value; regular pictures report "Unknown".
	Instrument string

	// DisplayDate and DisplayTime are the raw capture date/time strings
	// as returned by the API (e.g. "Feb. 7, 2026" and "19:10 UTC").
	DisplayDate string
	DisplayTime string

	// Timestamp is the parsed capture time in UTC. Zero when the display
	// strings could not be parsed.
	Timestamp time.Time

	// Position is the 1-based absolute position in the photoroll at scan
	// time. Zero for FITS side-channel entries.
	Position int
}

// Key returns the composite dedup key used by the ledger, "<imageID>:<type>".
func (p *Picture) Key() string {
	return p.ImageID + ":" + p.Type
}

// HasMission reports whether the picture belongs to a real mission.
// The service mixes "" and "0" for mission-less pictures; both count
// as no mission.
func (p *Picture) HasMission() bool {
	return NormalizeMissionID(p.MissionID) != ""
}

// NormalizeMissionID maps the service's two spellings of "no mission"
// ("" and "0") to the empty string and trims whitespace from real ids.
func NormalizeMissionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "0" {
		return ""
	}
	return id
}

// Display date layouts observed in API responses, tried in order.
var displayDateLayouts = []string{"Jan. 2, 2006", "January 2, 2006", "2006-01-02"}

var displayTimeLayouts = []string{"15:04:05", "15:04"}

// ParseDisplayTimestamp parses the API's displayDate/displayTime pair into
// a UTC time. The time string may carry a trailing " UTC" marker.
//
// Returns the zero time and false when either component cannot be parsed;
// callers treat that as "no timestamp" rather than an error, so an odd
// date format never drops a picture from enumeration.
func ParseDisplayTimestamp(displayDate, displayTime string) (time.Time, bool) {
	displayDate = strings.TrimSpace(displayDate)
	displayTime = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(displayTime), " UTC"))
	if displayDate == "" {
		return time.Time{}, false
	}

	var day time.Time
	var ok bool
	for _, layout := range displayDateLayouts {
		if t, err := time.Parse(layout, displayDate); err == nil {
			day, ok = t, true
			break
		}
	}
	if !ok {
		return time.Time{}, false
	}

	if displayTime == "" {
		return day.UTC(), true
	}

	for _, layout := range displayTimeLayouts {
		if clock, err := time.Parse(layout, displayTime); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(),
				clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC), true
		}
	}

	// Date parsed but time did not; keep the date at midnight.
	return day.UTC(), true
}
