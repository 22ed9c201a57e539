package upload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alxayo/go-dvr/internal/dvr/metrics"
	"github.com/alxayo/go-dvr/internal/dvrerrors"
)

const (
	pollInterval  = 15 * time.Second
	closedAge     = 60 * time.Second
	maxRetries    = 3
	limiterBurst  = 4
	limiterPerSec = 2
)

// Worker is the upload queue: it scans a record directory tree every
// pollInterval for segments that look closed, throttles outbound attempts
// through a token bucket, and hands each file to every configured
// Uploader in order.
type Worker struct {
	RecordDir   string
	Uploaders   []Uploader
	DeleteLocal bool

	state *UploadedSet
	log   *slog.Logger

	mu      sync.Mutex
	retries map[string]int

	limiter *rate.Limiter
}

// NewWorker constructs a Worker, loading any persisted uploaded-set for
// recordDir.
func NewWorker(recordDir string, uploaders []Uploader, deleteLocal bool, log *slog.Logger) (*Worker, error) {
	state, err := LoadUploadedSet(recordDir)
	if err != nil {
		return nil, err
	}
	return &Worker{
		RecordDir:   recordDir,
		Uploaders:   uploaders,
		DeleteLocal: deleteLocal,
		state:       state,
		log:         log,
		retries:     make(map[string]int),
		limiter:     rate.NewLimiter(rate.Limit(limiterPerSec), limiterBurst),
	}, nil
}

// Run loops until ctx is cancelled, invoking Pass every pollInterval.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Pass(ctx)
		}
	}
}

// Pass runs one scan-and-upload cycle over every ch*/*.mp4 file under
// RecordDir. Running it twice on the same completed segments uploads each
// file exactly once, since successes are recorded in the persisted set
// before the next pass starts.
func (w *Worker) Pass(ctx context.Context) {
	candidates, err := w.findClosedSegments()
	if err != nil {
		w.log.Error("upload_scan_error", "error", err)
		return
	}
	for _, path := range candidates {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		w.uploadOne(ctx, path)
	}
}

func (w *Worker) findClosedSegments() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(w.RecordDir, "ch*", "*.mp4"))
	if err != nil {
		return nil, err
	}
	var out []string
	now := time.Now()
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Size() == 0 {
			continue
		}
		if now.Sub(info.ModTime()) < closedAge {
			continue
		}
		if w.state.Contains(path) {
			continue
		}
		if w.retryCount(path) >= maxRetries {
			continue
		}
		out = append(out, path)
	}
	return out, nil
}

func (w *Worker) retryCount(path string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.retries[path]
}

func (w *Worker) uploadOne(ctx context.Context, path string) {
	channel := channelFromPath(path)
	filename := filepath.Base(path)

	attempt := w.retryCount(path) + 1
	if attempt > 1 {
		metrics.UploadsRetried.Inc()
	}

	var lastErr error
	for _, u := range w.Uploaders {
		folderID, err := u.EnsureSubfolder(ctx, channel)
		if err != nil {
			lastErr = dvrerrors.NewUploadError("upload.ensure_subfolder", path, err)
			continue
		}
		if err := u.Upload(ctx, path, filename, folderID); err != nil {
			lastErr = dvrerrors.NewUploadError("upload.upload", path, err)
		}
	}

	if lastErr != nil {
		w.mu.Lock()
		w.retries[path] = attempt
		w.mu.Unlock()
		metrics.UploadsFailed.Inc()
		w.log.Warn("upload_failed", "path", path, "attempt", attempt, "error", lastErr)
		return
	}

	w.mu.Lock()
	delete(w.retries, path)
	w.mu.Unlock()
	metrics.UploadsSucceeded.Inc()

	if err := w.state.Add(path); err != nil {
		w.log.Error("upload_state_persist_error", "error", err)
	}
	if w.DeleteLocal {
		if err := os.Remove(path); err != nil {
			w.log.Warn("upload_delete_local_failed", "path", path, "error", err)
		}
	}
}

func channelFromPath(path string) string {
	return filepath.Base(filepath.Dir(path))
}
