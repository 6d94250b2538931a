package download

import (
	"fmt"
	"syscall"
)

// DiskSpaceChecker reports the bytes available on the filesystem that
// holds dir. It is an interface so tests can stub it without touching
// the real filesystem.
type DiskSpaceChecker interface {
	AvailableBytes(dir string) (int64, error)
}

// statfsDiskSpaceChecker is grounded on the teacher's Unix branch of
// getAvailableDiskSpace (sgl-project-ome's pkg/hfutil/hub/utils.go):
// available bytes = available blocks × block size via syscall.Statfs.
type statfsDiskSpaceChecker struct{}

// NewDiskSpaceChecker returns the default OS-backed checker.
func NewDiskSpaceChecker() DiskSpaceChecker {
	return statfsDiskSpaceChecker{}
}

func (statfsDiskSpaceChecker) AvailableBytes(dir string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", dir, err)
	}
	available := int64(stat.Bavail) * int64(stat.Bsize)
	if available < 0 {
		return 0, fmt.Errorf("invalid disk space calculation for %s", dir)
	}
	return available, nil
}
