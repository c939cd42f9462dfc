//go:build !windows

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

func freeDiskSpace(path string) (uint64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !stat.IsDir() {
		return 0, errNotDir
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, err
	}

	return uint64(fs.Bavail) * uint64(fs.Bsize), nil
}
