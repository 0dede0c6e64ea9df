//go:build !windows

package sync

import (
	"os"
	"syscall"
)

func deviceAndInode(fi os.FileInfo) (uint64, uint64, bool) {
	stat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return uint64(stat.Dev), uint64(stat.Ino), true
}
