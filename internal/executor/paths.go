package executor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// resolveDestDir expands `~`, resolves a relative `to` against sourceRoot,
// and (when preserveStructure is set) appends the file's source-relative
// directory.
func resolveDestDir(to, sourceRoot, filePath string, preserveStructure bool) (string, error) {
	dir := expandHome(to)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(sourceRoot, dir)
	}

	if preserveStructure {
		rel, err := filepath.Rel(sourceRoot, filepath.Dir(filePath))
		if err != nil {
			return "", err
		}
		if rel != "." {
			dir = filepath.Join(dir, rel)
		}
	}
	return filepath.Clean(dir), nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		if p == "~" {
			return home
		}
		return filepath.Join(home, p[2:])
	}
	return p
}

// resolveCollision appends -1, -2, … before the extension until it finds
// a name with no existing file, bounded at 1000 attempts.
func resolveCollision(path string) (string, error) {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path, nil
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; i <= 1000; i++ {
		candidate := filepath.Join(dir, stem+"-"+strconv.Itoa(i)+ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", &ActionError{Kind: ErrCollision, Path: path}
}

// finalSegment returns only the last path segment of s: if a rename
// template's expansion yields a path with separators, only the final
// segment is used as the new basename.
func finalSegment(s string) string {
	s = filepath.ToSlash(s)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}
