// Package facts builds the FileFacts record that the Matcher and
// Template Engine consume. FileFacts is constructed once per file by the
// Sorter's traversal stage and is never mutated afterward.
package facts

import (
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileFacts is the precomputed bundle of observations about a single
// file. It is owned exclusively by the worker handling the file.
type FileFacts struct {
	Path      string // absolute path
	Basename  string
	Extension string // lowercased, no leading dot
	Size      int64  // bytes
	Created   time.Time
	Modified  time.Time
	IsSymlink bool
	MimeType  string
	Owner     string // platform-specific; empty if unavailable

	exifOnce sync.Once
	exifMap  map[string]string
	exifErr  error
}

// exifExtensions is the small allow-list of extensions the EXIF
// sub-matcher and template variables will attempt to decode.
var exifExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "tiff": true, "heic": true,
}

// Build stats path and assembles its FileFacts. EXIF decoding is
// deferred until first requested via Exif(), since most files in a
// typical tree never touch a metadata predicate.
func Build(path string) (*FileFacts, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}

	isSymlink := info.Mode()&os.ModeSymlink != 0

	// For facts purposes we still want the regular file's size/mtime even
	// when it's a symlink: not following symlinks is a directory recursion
	// rule, not a stat rule.
	statInfo := info
	if isSymlink {
		if followed, err := os.Stat(path); err == nil {
			statInfo = followed
		}
	}

	base := filepath.Base(path)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))

	created, modified := fileTimes(statInfo)

	f := &FileFacts{
		Path:      path,
		Basename:  base,
		Extension: ext,
		Size:      statInfo.Size(),
		Created:   created,
		Modified:  modified,
		IsSymlink: isSymlink,
		MimeType:  guessMime(ext),
		Owner:     ownerOf(statInfo),
	}
	return f, nil
}

// guessMime maps an extension to a MIME type, falling back to
// application/octet-stream when nothing matches. Uses the stdlib
// extension table first (mime.TypeByExtension consults the OS registry
// on some platforms too) and falls back to a small static table for the
// extensions this engine cares most about, since the stdlib table is
// thin on some platforms (notably macOS for non-web types).
func guessMime(ext string) string {
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension("." + ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return strings.TrimSpace(t)
	}
	if t, ok := staticMimeTable[ext]; ok {
		return t
	}
	return "application/octet-stream"
}

var staticMimeTable = map[string]string{
	"jpg": "image/jpeg", "jpeg": "image/jpeg", "png": "image/png",
	"gif": "image/gif", "heic": "image/heic", "tiff": "image/tiff",
	"webp": "image/webp", "bmp": "image/bmp", "svg": "image/svg+xml",
	"mp4": "video/mp4", "mov": "video/quicktime", "mkv": "video/x-matroska",
	"avi": "video/x-msvideo", "webm": "video/webm",
	"mp3": "audio/mpeg", "wav": "audio/wav", "flac": "audio/flac",
	"pdf": "application/pdf", "zip": "application/zip",
	"tar": "application/x-tar", "gz": "application/gzip",
	"txt": "text/plain", "md": "text/markdown", "csv": "text/csv",
	"json": "application/json", "yaml": "application/yaml", "yml": "application/yaml",
	"go": "text/x-go", "py": "text/x-python", "js": "text/javascript",
}

// HasExifCandidate reports whether this file's extension is in the EXIF
// decode allow-list, without attempting the (possibly expensive) decode.
func (f *FileFacts) HasExifCandidate() bool {
	return exifExtensions[f.Extension]
}
