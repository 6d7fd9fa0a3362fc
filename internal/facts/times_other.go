//go:build !linux && !darwin

package facts

import (
	"os"
	"time"
)

// fileTimes falls back to modification time for both fields on platforms
// without a portable way to read file birth time through this build.
func fileTimes(info os.FileInfo) (created, modified time.Time) {
	modified = info.ModTime().UTC()
	return modified, modified
}
