package facts

import (
	"os"
	"strconv"

	goexif "github.com/rwcarlsen/goexif/exif"
)

// Exif lazily decodes this file's EXIF tags into a flat string map, keyed
// by tag name (e.g. "DateTimeOriginal", "Make", "Model"). Decoding is
// attempted only once per FileFacts and only for extensions in the
// EXIF allow-list. A decode failure — missing EXIF segment, corrupt
// file, non-image content despite the extension — is treated as "no
// EXIF" rather than an error.
func (f *FileFacts) Exif() map[string]string {
	f.exifOnce.Do(func() {
		f.exifMap, f.exifErr = decodeExif(f.Path, f.HasExifCandidate())
	})
	return f.exifMap
}

func decodeExif(path string, candidate bool) (map[string]string, error) {
	if !candidate {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	x, err := goexif.Decode(file)
	if err != nil {
		return nil, nil //nolint:nilerr // decode failure means "no EXIF", not an error
	}

	out := make(map[string]string)
	_ = x.Walk(exifWalker(out))
	return out, nil
}

// exifWalker adapts exif.Walker to a plain map[string]string, taking the
// tag's string representation (quoted strings are unquoted for the
// template/metadata predicate's convenience).
type exifWalker map[string]string

func (w exifWalker) Walk(name goexif.FieldName, tag *goexif.Tag) error {
	val := tag.String()
	if s, err := strconv.Unquote(val); err == nil {
		val = s
	}
	w[string(name)] = val
	return nil
}
