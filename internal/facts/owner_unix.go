//go:build unix

package facts

import (
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// ownerOf resolves the file's owning username. Falls back to the
// numeric uid if the name can't be resolved (e.g. no nsswitch entry),
// and to "" if even the stat_t isn't available.
func ownerOf(info os.FileInfo) string {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}
	uid := strconv.FormatUint(uint64(st.Uid), 10)
	if u, err := user.LookupId(uid); err == nil {
		return u.Username
	}
	return uid
}
