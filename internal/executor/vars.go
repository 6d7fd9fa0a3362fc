package executor

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/foldsort/foldsort/internal/facts"
	"github.com/foldsort/foldsort/internal/template"
)

// exifDateLayout is the format EXIF tags use for DateTimeOriginal/DateTime
// (e.g. "2024:03:17 08:15:02").
const exifDateLayout = "2006:01:02 15:04:05"

// exifDateTags is checked in order of preference.
var exifDateTags = []string{"DateTimeOriginal", "DateTimeDigitized", "DateTime"}

// variablesFromFacts builds the narrow Variables view a template expansion
// needs from a file's full fact set, including a best-effort EXIF date
// lookup for image files.
func variablesFromFacts(f *facts.FileFacts) template.Variables {
	ext := f.Extension
	name := strings.TrimSuffix(f.Basename, filepath.Ext(f.Basename))
	if ext == "" {
		name = f.Basename
	}

	vars := template.Variables{
		Filename:     f.Basename,
		Name:         name,
		Ext:          ext,
		Size:         f.Size,
		CreatedTime:  f.Created,
		ModifiedTime: f.Modified,
	}

	if f.HasExifCandidate() {
		vars.ExifDate = exifDate(f)
		vars.Metadata = f.Exif()
	}

	return vars
}

func exifDate(f *facts.FileFacts) time.Time {
	tags := f.Exif()
	for _, name := range exifDateTags {
		raw, ok := tags[name]
		if !ok {
			continue
		}
		raw = strings.Trim(raw, `"`)
		if t, err := time.Parse(exifDateLayout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
