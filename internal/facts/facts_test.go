package facts

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuild_BasicFields(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "report.PDF", []byte("hello world"))

	f, err := Build(path)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if f.Basename != "report.PDF" {
		t.Errorf("Basename: got %q", f.Basename)
	}
	if f.Extension != "pdf" {
		t.Errorf("Extension should be lowercased, got %q", f.Extension)
	}
	if f.Size != int64(len("hello world")) {
		t.Errorf("Size: got %d", f.Size)
	}
	if f.IsSymlink {
		t.Error("regular file should not report IsSymlink")
	}
	if f.MimeType != "application/pdf" {
		t.Errorf("MimeType: got %q", f.MimeType)
	}
}

func TestBuild_NoExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "README", []byte("x"))

	f, err := Build(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Extension != "" {
		t.Errorf("expected no extension, got %q", f.Extension)
	}
	if f.MimeType != "application/octet-stream" {
		t.Errorf("expected octet-stream fallback, got %q", f.MimeType)
	}
}

func TestBuild_MissingFile(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestBuild_Symlink(t *testing.T) {
	dir := t.TempDir()
	target := writeTempFile(t, dir, "target.txt", []byte("data"))
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported on this platform: %v", err)
	}

	f, err := Build(link)
	if err != nil {
		t.Fatal(err)
	}
	if !f.IsSymlink {
		t.Error("expected IsSymlink to be true")
	}
	if f.Size != int64(len("data")) {
		t.Errorf("expected size from the followed target, got %d", f.Size)
	}
}

func TestHasExifCandidate(t *testing.T) {
	tests := []struct {
		ext  string
		want bool
	}{
		{"jpg", true},
		{"jpeg", true},
		{"tiff", true},
		{"heic", true},
		{"png", false},
		{"pdf", false},
		{"", false},
	}
	for _, tt := range tests {
		f := &FileFacts{Extension: tt.ext}
		if got := f.HasExifCandidate(); got != tt.want {
			t.Errorf("HasExifCandidate(%q): got %v, want %v", tt.ext, got, tt.want)
		}
	}
}

func TestExif_NonCandidateReturnsNilWithoutOpeningFile(t *testing.T) {
	// A path that doesn't exist would error on os.Open; since "txt" is
	// not an EXIF candidate, Exif must never attempt to open it.
	f := &FileFacts{Path: "/nonexistent/path.txt", Extension: "txt"}
	if got := f.Exif(); got != nil {
		t.Errorf("expected nil EXIF map for a non-candidate extension, got %v", got)
	}
}

func TestExif_CorruptImageIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	// A .jpg that isn't actually a JPEG — decode should fail quietly.
	path := writeTempFile(t, dir, "fake.jpg", []byte("not a real jpeg"))

	f, err := Build(path)
	if err != nil {
		t.Fatal(err)
	}
	if m := f.Exif(); m != nil {
		t.Errorf("expected nil map for undecodable EXIF, got %v", m)
	}
}

func TestExif_MemoizesDecodeAttempt(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "fake.jpg", []byte("not a real jpeg"))

	f, err := Build(path)
	if err != nil {
		t.Fatal(err)
	}

	first := f.Exif()
	second := f.Exif()
	// Both calls should observe the same (nil) memoized result rather
	// than re-decoding the file each time.
	if first != nil || second != nil {
		t.Errorf("expected both calls to return nil, got %v and %v", first, second)
	}
}

func TestGuessMime_StaticTableFallback(t *testing.T) {
	// heic isn't in the stdlib's mime.TypeByExtension table on most
	// platforms, so this exercises the static fallback table.
	if got := guessMime("heic"); got != "image/heic" {
		t.Errorf("guessMime(heic): got %q", got)
	}
}

func TestBuild_ModifiedTimeIsRecent(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "fresh.txt", []byte("x"))

	f, err := Build(path)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(f.Modified) > time.Minute {
		t.Errorf("expected a recently modified time, got %v", f.Modified)
	}
}
