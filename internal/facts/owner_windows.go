//go:build windows

package facts

import "os"

// ownerOf has no portable implementation on Windows without cgo or the
// syscall ACL APIs, so Owner is simply left absent on this platform.
func ownerOf(info os.FileInfo) string {
	return ""
}
