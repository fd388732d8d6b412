package organize

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	ioutils "github.com/sloohtools/slooh-downloader/internal/io"
	"github.com/sloohtools/slooh-downloader/internal/model"
)

// Resolver maps a picture to the local path it should be saved at,
// driven by folder and filename templates.
//
// Recognized placeholders: {object}, {telescope}, {instrument}, {type},
// {format}, {filename}, {title}, {date}, {year}, {month}, {day}.
// {format} is an alias for {type}. Date placeholders expand to empty
// strings when the picture has no capture time.
type Resolver struct {
	basePath         string
	folderTemplate   string
	filenameTemplate string
	unknownObject    string
	log              *zap.SugaredLogger
}

// NewResolver creates a resolver. Relative base paths are made absolute
// against the working directory.
func NewResolver(basePath, folderTemplate, filenameTemplate, unknownObject string, log *zap.SugaredLogger) *Resolver {
	if abs, err := filepath.Abs(basePath); err == nil {
		basePath = abs
	}
	if unknownObject == "" {
		unknownObject = "Unknown"
	}
	return &Resolver{
		basePath:         basePath,
		folderTemplate:   folderTemplate,
		filenameTemplate: filenameTemplate,
		unknownObject:    unknownObject,
		log:              log,
	}
}

// BasePath returns the root directory downloads are organized under.
func (r *Resolver) BasePath() string {
	return r.basePath
}

// DestinationPath returns the full local path for a picture. The result
// is deterministic for a given picture and template configuration.
func (r *Resolver) DestinationPath(pic *model.Picture) string {
	filename := downloadFilename(pic)

	replacements := map[string]string{
		"object":     r.ObjectName(pic.Title),
		"telescope":  r.sanitizeOrUnknown(pic.Telescope),
		"instrument": r.sanitizeOrUnknown(pic.Instrument),
		"type":       formatFolder(filename),
		"format":     formatFolder(filename),
		"filename":   filename,
		"title":      titleOrUntitled(pic.Title),
		"date":       "",
		"year":       "",
		"month":      "",
		"day":        "",
	}
	if !pic.Timestamp.IsZero() {
		replacements["date"] = pic.Timestamp.Format("2006-01-02")
		replacements["year"] = pic.Timestamp.Format("2006")
		replacements["month"] = pic.Timestamp.Format("01")
		replacements["day"] = pic.Timestamp.Format("02")
	}

	folder := expand(r.folderTemplate, replacements)
	name := expand(r.filenameTemplate, replacements)

	path := filepath.Clean(filepath.Join(r.basePath, folder, name))
	r.log.Debugw("resolved destination", "image_id", pic.ImageID, "path", path)
	return path
}

// DuplicatePath returns a collision-free "name (n).ext" variant of path.
func (r *Resolver) DuplicatePath(path string) string {
	return ioutils.UniquePath(path)
}

// ObjectName extracts the astronomical object name from an image title.
//
// Titles carrying a parenthetical catalog designation ("Trifid Nebula
// (M20)") or a "Catalog - Name" dash form are kept whole. Otherwise the
// part before the first comma is used when it is long enough, and very
// long titles are truncated.
func (r *Resolver) ObjectName(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return r.unknownObject
	}

	if strings.Contains(title, "(") && strings.Contains(title, ")") {
		return r.sanitizeOrUnknown(title)
	}
	if strings.Contains(title, "-") {
		return r.sanitizeOrUnknown(title)
	}
	if idx := strings.Index(title, ","); idx >= 0 {
		first := strings.TrimSpace(title[:idx])
		if len(first) > 2 {
			return r.sanitizeOrUnknown(first)
		}
	}
	if len(title) > 50 {
		title = title[:50]
	}
	return r.sanitizeOrUnknown(title)
}

func (r *Resolver) sanitizeOrUnknown(name string) string {
	if s := ioutils.SanitizeFileName(name); s != "" {
		return s
	}
	return r.unknownObject
}

func titleOrUntitled(title string) string {
	if s := ioutils.SanitizeFileName(title); s != "" {
		return s
	}
	return "Untitled"
}

// downloadFilename takes the last URL segment, stripped of any query
// string, falling back to the API-provided filename.
func downloadFilename(pic *model.Picture) string {
	if pic.DownloadURL != "" {
		name := pic.DownloadURL
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		if idx := strings.Index(name, "?"); idx >= 0 {
			name = name[:idx]
		}
		if name != "" {
			return name
		}
	}
	if pic.Filename != "" {
		return pic.Filename
	}
	return "image.jpg"
}

// formatFolder buckets a filename into FITS, PNG or JPEG by extension.
// Unknown extensions land in JPEG, which is what the camera produces by
// default.
func formatFolder(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".fits", ".fit":
		return "FITS"
	case ".png":
		return "PNG"
	default:
		return "JPEG"
	}
}

func expand(template string, replacements map[string]string) string {
	out := template
	for key, value := range replacements {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}
