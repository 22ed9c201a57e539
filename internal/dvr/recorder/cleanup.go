package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/alxayo/go-dvr/internal/dvr/upload"
	"github.com/alxayo/go-dvr/internal/dvrlog"
)

const retentionInterval = 300 * time.Second

var channelDirPattern = regexp.MustCompile(`^ch(\d+)$`)

type segmentFile struct {
	path     string
	channel  int
	modTime  time.Time
	uploaded bool
}

// listSegments walks record-dir/ch*/*.mp4 and returns every segment found.
func listSegments(recordDir string, uploaded *upload.UploadedSet) ([]segmentFile, error) {
	entries, err := os.ReadDir(recordDir)
	if err != nil {
		return nil, err
	}
	var out []segmentFile
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := channelDirPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		ch, _ := strconv.Atoi(m[1])
		files, err := filepath.Glob(filepath.Join(recordDir, e.Name(), "*.mp4"))
		if err != nil {
			continue
		}
		for _, f := range files {
			info, err := os.Stat(f)
			if err != nil {
				continue
			}
			out = append(out, segmentFile{
				path:     f,
				channel:  ch,
				modTime:  info.ModTime(),
				uploaded: uploaded != nil && uploaded.Contains(f),
			})
		}
	}
	return out, nil
}

// activeSegment returns the currently-open file for a channel: the
// newest-mtime .mp4 in its directory, but only when the channel has a
// live muxer process. This is the same rule external readers use to
// avoid reading a file mid-write.
func activeSegment(segments []segmentFile, channel int, liveChannels map[int]bool) (string, bool) {
	if !liveChannels[channel] {
		return "", false
	}
	var newest segmentFile
	found := false
	for _, s := range segments {
		if s.channel != channel {
			continue
		}
		if !found || s.modTime.After(newest.modTime) {
			newest = s
			found = true
		}
	}
	if !found {
		return "", false
	}
	return newest.path, true
}

// diskChecker matches checkDiskSpace's signature; emergencyCleanup takes
// one as a parameter so tests can simulate a filling disk without
// depending on the real filesystem's free space.
type diskChecker func(path string, minDiskMB int64) (bool, DiskInfo, error)

// emergencyCleanup deletes segments, uploaded ones first then oldest
// first, stopping as soon as free space meets minDiskMB. The currently
// open file per channel is never a candidate.
func emergencyCleanup(recordDir string, minDiskMB int64, uploaded *upload.UploadedSet, liveChannels map[int]bool) error {
	return emergencyCleanupWithChecker(recordDir, minDiskMB, uploaded, liveChannels, checkDiskSpace)
}

func emergencyCleanupWithChecker(recordDir string, minDiskMB int64, uploaded *upload.UploadedSet, liveChannels map[int]bool, check diskChecker) error {
	segments, err := listSegments(recordDir, uploaded)
	if err != nil {
		return fmt.Errorf("emergency cleanup: list segments: %w", err)
	}

	byChannel := make(map[int][]segmentFile)
	for _, s := range segments {
		byChannel[s.channel] = append(byChannel[s.channel], s)
	}
	activePaths := make(map[string]bool)
	for ch := range byChannel {
		if path, ok := activeSegment(segments, ch, liveChannels); ok {
			activePaths[path] = true
		}
	}

	var candidates []segmentFile
	for _, s := range segments {
		if activePaths[s.path] {
			continue
		}
		candidates = append(candidates, s)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].uploaded != candidates[j].uploaded {
			return candidates[i].uploaded
		}
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	for _, c := range candidates {
		ok, _, err := check(recordDir, minDiskMB)
		if err != nil {
			return fmt.Errorf("emergency cleanup: disk check: %w", err)
		}
		if ok {
			break
		}
		if err := os.Remove(c.path); err != nil {
			dvrlog.Logger().Warn("emergency_cleanup_remove_failed", "path", c.path, "error", err)
			continue
		}
		if uploaded != nil {
			_ = uploaded.Remove(c.path)
		}
	}
	return nil
}

// runRetentionLoop deletes segments older than retentionHours on a fixed
// tick until ctx is cancelled. A retentionHours of 0 or less disables it.
func runRetentionLoop(ctx context.Context, recordDir string, retentionHours int, uploaded *upload.UploadedSet) {
	if retentionHours <= 0 {
		return
	}
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			applyRetention(recordDir, retentionHours, uploaded)
		}
	}
}

func applyRetention(recordDir string, retentionHours int, uploaded *upload.UploadedSet) {
	segments, err := listSegments(recordDir, uploaded)
	if err != nil {
		dvrlog.Logger().Error("retention_list_error", "error", err)
		return
	}
	cutoff := time.Now().Add(-time.Duration(retentionHours) * time.Hour)
	for _, s := range segments {
		if s.modTime.After(cutoff) {
			continue
		}
		if err := os.Remove(s.path); err != nil {
			dvrlog.Logger().Warn("retention_remove_failed", "path", s.path, "error", err)
			continue
		}
		if uploaded != nil {
			_ = uploaded.Remove(s.path)
		}
	}
}
