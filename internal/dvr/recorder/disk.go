package recorder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// DiskInfo reports free and total bytes on the filesystem containing
// path, using statvfs-equivalent semantics.
type DiskInfo struct {
	FreeBytes  uint64
	TotalBytes uint64
}

// String renders a human-readable free/total summary, used in log lines
// and the supervisor's status struct.
func (d DiskInfo) String() string {
	return fmt.Sprintf("%s free of %s", humanize.Bytes(d.FreeBytes), humanize.Bytes(d.TotalBytes))
}

func getDiskInfo(path string) (DiskInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return DiskInfo{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	return DiskInfo{
		FreeBytes:  stat.Bavail * uint64(stat.Bsize),
		TotalBytes: stat.Blocks * uint64(stat.Bsize),
	}, nil
}

// checkDiskSpace reports whether free space on path's filesystem is at or
// above minDiskMB.
func checkDiskSpace(path string, minDiskMB int64) (bool, DiskInfo, error) {
	info, err := getDiskInfo(path)
	if err != nil {
		return false, DiskInfo{}, err
	}
	minBytes := uint64(minDiskMB) * 1024 * 1024
	return info.FreeBytes >= minBytes, info, nil
}

// verifyWritableAbsoluteDir checks dir is an absolute path whose parent
// exists, and that dir itself (creating it if necessary) is writable, by
// writing and removing a small probe file.
func verifyWritableAbsoluteDir(dir string) error {
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("record dir must be an absolute path: %s", dir)
	}
	parent := filepath.Dir(dir)
	if _, err := os.Stat(parent); err != nil {
		return fmt.Errorf("record dir parent does not exist: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	probe := filepath.Join(dir, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("record dir not writable: %w", err)
	}
	return os.Remove(probe)
}
