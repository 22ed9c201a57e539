// Package recorder implements the recording supervisor (C8): a
// per-channel loop that, while scheduled and disk space allows, spawns a
// feeder subprocess piped into an external segmenting muxer, monitors
// both, and tears them down gracefully on schedule exit or shutdown.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/alxayo/go-dvr/internal/dvr/metrics"
	"github.com/alxayo/go-dvr/internal/dvr/upload"
	"github.com/alxayo/go-dvr/internal/dvrerrors"
	"github.com/alxayo/go-dvr/internal/dvrlog"
)

const (
	monitorInterval   = 10 * time.Second
	scheduleWait      = 30 * time.Second
	diskLowWait       = 60 * time.Second
	supervisorErrWait = 10 * time.Second
	feederPath        = "dvr-feeder"
	feederGrace       = 5 * time.Second
	muxerGrace        = 15 * time.Second
	loopPause         = 2 * time.Second
)

// FeederDialInfo carries the connection parameters each channel's feeder
// subprocess needs, shared across every channel of one device.
type FeederDialInfo struct {
	Host       string
	CmdPort    int
	MediaPort  int
	Username   string
	Password   string
	StreamType int
}

// Supervisor owns one recorder loop goroutine per configured channel plus
// the shared retention loop.
type Supervisor struct {
	cfg  Config
	dial FeederDialInfo
	log  *slog.Logger

	uploaded *upload.UploadedSet

	mu   sync.Mutex
	jobs map[int]*job

	liveMu sync.Mutex
	live   map[int]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor constructs a Supervisor from a loaded Config; it does not
// start any goroutines until Run is called.
func NewSupervisor(cfg Config, dial FeederDialInfo) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("supervisor config: %w", err)
	}
	uploaded, err := upload.LoadUploadedSet(cfg.RecordDir)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load uploaded set: %w", err)
	}
	return &Supervisor{
		cfg:      cfg,
		dial:     dial,
		log:      dvrlog.Logger(),
		uploaded: uploaded,
		jobs:     make(map[int]*job),
		live:     make(map[int]bool),
	}, nil
}

// Run starts one loop per configured channel plus the retention loop, and
// blocks until ctx is cancelled, at which point every channel loop is
// given its teardown grace before Run returns.
func (sup *Supervisor) Run(ctx context.Context) {
	sup.ctx, sup.cancel = context.WithCancel(ctx)

	sup.wg.Add(1)
	go func() {
		defer sup.wg.Done()
		runRetentionLoop(sup.ctx, sup.cfg.RecordDir, sup.cfg.RetentionHours, sup.uploaded)
	}()

	for _, ch := range sup.cfg.Channels {
		j := newJob(ch)
		sup.mu.Lock()
		sup.jobs[ch] = j
		sup.mu.Unlock()

		sup.wg.Add(1)
		go func(channel int, j *job) {
			defer sup.wg.Done()
			sup.runChannel(sup.ctx, channel, j)
		}(ch, j)
	}

	<-sup.ctx.Done()
	sup.wg.Wait()
}

// Stop cancels every channel loop and the retention loop, waiting for all
// of them to finish their teardown grace.
func (sup *Supervisor) Stop() {
	if sup.cancel != nil {
		sup.cancel()
	}
	sup.wg.Wait()
}

// Status returns a snapshot of every channel's current job state.
func (sup *Supervisor) Status() []Status {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	out := make([]Status, 0, len(sup.jobs))
	for _, j := range sup.jobs {
		out = append(out, j.status())
	}
	return out
}

func (sup *Supervisor) setLive(channel int, live bool) {
	sup.liveMu.Lock()
	sup.live[channel] = live
	sup.liveMu.Unlock()
}

func (sup *Supervisor) liveSnapshot() map[int]bool {
	sup.liveMu.Lock()
	defer sup.liveMu.Unlock()
	out := make(map[int]bool, len(sup.live))
	for k, v := range sup.live {
		out[k] = v
	}
	return out
}

// runChannel is the per-channel recorder loop described by the
// supervisor's step sequence: schedule gate, disk gate, spawn, monitor,
// teardown, repeat.
func (sup *Supervisor) runChannel(ctx context.Context, channel int, j *job) {
	chLog := dvrlog.WithChannel(sup.log, channel)
	chDir := filepath.Join(sup.cfg.RecordDir, fmt.Sprintf("ch%d", channel))
	if err := os.MkdirAll(chDir, 0o755); err != nil {
		supErr := dvrerrors.NewSupervisorError("recorder.mkdir_channel_dir", channel, err)
		chLog.Error("recorder error", "error", supErr)
		j.setError(supErr)
	}

	for {
		if ctx.Err() != nil {
			j.setState(StateStopped)
			return
		}

		hours, err := ParseSchedule(sup.cfg.Schedule)
		if err != nil {
			supErr := dvrerrors.NewSupervisorError("recorder.parse_schedule", channel, err)
			chLog.Error("recorder error", "error", supErr)
			j.setError(supErr)
			if sleepOrDone(ctx, supervisorErrWait) {
				return
			}
			continue
		}
		if !InSchedule(hours, time.Now().Hour()) {
			j.setState(StateWaitingSchedule)
			if sleepOrDone(ctx, scheduleWait) {
				return
			}
			continue
		}

		ok, disk, err := checkDiskSpace(sup.cfg.RecordDir, sup.cfg.MinDiskMB)
		j.setDisk(disk)
		if err != nil {
			supErr := dvrerrors.NewSupervisorError("recorder.disk_check", channel, err)
			chLog.Error("recorder error", "error", supErr)
			j.setError(supErr)
			if sleepOrDone(ctx, supervisorErrWait) {
				return
			}
			continue
		}
		if !ok {
			j.setState(StatePausedDiskLow)
			metrics.DiskLowPauses.WithLabelValues(strconv.Itoa(channel)).Inc()
			_ = emergencyCleanup(sup.cfg.RecordDir, sup.cfg.MinDiskMB, sup.uploaded, sup.liveSnapshot())
			stillOK, _, _ := checkDiskSpace(sup.cfg.RecordDir, sup.cfg.MinDiskMB)
			if !stillOK {
				if sleepOrDone(ctx, diskLowWait) {
					return
				}
				continue
			}
		}

		sup.recordOneRun(ctx, channel, chDir, j, chLog)

		if sleepOrDone(ctx, loopPause) {
			return
		}
	}
}

// recordOneRun spawns the feeder and muxer, monitors them, and tears
// both down on exit from the monitor loop.
func (sup *Supervisor) recordOneRun(ctx context.Context, channel int, chDir string, j *job, chLog *slog.Logger) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	feeder := sup.buildFeederCmd(runCtx, channel)
	muxer := sup.buildMuxerCmd(runCtx, channel, chDir)

	pipe, err := feeder.StdoutPipe()
	if err != nil {
		supErr := dvrerrors.NewSupervisorError("recorder.feeder_stdout_pipe", channel, err)
		chLog.Error("recorder error", "error", supErr)
		j.setError(supErr)
		return
	}
	muxer.Stdin = pipe

	if err := feeder.Start(); err != nil {
		supErr := dvrerrors.NewSupervisorError("recorder.start_feeder", channel, err)
		chLog.Error("recorder error", "error", supErr)
		j.setError(supErr)
		return
	}
	if err := muxer.Start(); err != nil {
		supErr := dvrerrors.NewSupervisorError("recorder.start_muxer", channel, err)
		chLog.Error("recorder error", "error", supErr)
		j.setError(supErr)
		_ = feeder.Process.Kill()
		return
	}
	sup.setLive(channel, true)
	defer sup.setLive(channel, false)
	j.setState(StateRecording)

	muxerDone := make(chan error, 1)
	go func() { muxerDone <- muxer.Wait() }()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			teardown(feeder, muxer, muxerDone)
			return
		case err := <-muxerDone:
			if err != nil {
				supErr := dvrerrors.NewSupervisorError("recorder.muxer_exited", channel, err)
				chLog.Error("recorder error", "error", supErr)
				j.setError(supErr)
			}
			_ = feeder.Process.Kill()
			return
		case <-ticker.C:
			hours, _ := ParseSchedule(sup.cfg.Schedule)
			if !InSchedule(hours, time.Now().Hour()) {
				teardown(feeder, muxer, muxerDone)
				return
			}
			ok, disk, _ := checkDiskSpace(sup.cfg.RecordDir, sup.cfg.MinDiskMB)
			j.setDisk(disk)
			if !ok {
				teardown(feeder, muxer, muxerDone)
				return
			}
			n := countSegments(chDir)
			j.setSegmentCount(n)
		}
	}
}

func countSegments(chDir string) int {
	matches, err := filepath.Glob(filepath.Join(chDir, "*.mp4"))
	if err != nil {
		return 0
	}
	return len(matches)
}

// teardown terminates the feeder with a grace period then waits on the
// muxer with its own grace period, killing either on timeout.
func teardown(feeder, muxer *exec.Cmd, muxerDone chan error) {
	if feeder.Process != nil {
		_ = feeder.Process.Signal(os.Interrupt)
		select {
		case <-time.After(feederGrace):
			_ = feeder.Process.Kill()
		case <-waitDone(feeder):
		}
	}
	select {
	case <-muxerDone:
	case <-time.After(muxerGrace):
		if muxer.Process != nil {
			_ = muxer.Process.Kill()
		}
		<-muxerDone
	}
}

func waitDone(cmd *exec.Cmd) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	return done
}

func (sup *Supervisor) buildFeederCmd(ctx context.Context, channel int) *exec.Cmd {
	args := []string{
		"--host", sup.dial.Host,
		"--cmd-port", strconv.Itoa(sup.dial.CmdPort),
		"--media-port", strconv.Itoa(sup.dial.MediaPort),
		"--username", sup.dial.Username,
		"--password", sup.dial.Password,
		"--channel", strconv.Itoa(channel),
		"--stream-type", strconv.Itoa(int(sup.cfg.StreamType)),
	}
	cmd := exec.CommandContext(ctx, feederPath, args...)
	cmd.Stderr = os.Stderr
	return cmd
}

func (sup *Supervisor) buildMuxerCmd(ctx context.Context, channel int, chDir string) *exec.Cmd {
	pattern := filepath.Join(chDir, "%Y-%m-%d_%H-%M-%S.mp4")
	segmentSeconds := strconv.Itoa(sup.cfg.SegmentMinutes * 60)
	args := []string{
		"-f", "h264", "-r", "25", "-i", "pipe:0",
		"-fflags", "+genpts",
		"-c:v", "copy",
		"-f", "segment",
		"-segment_time", segmentSeconds,
		"-reset_timestamps", "1",
		"-strftime", "1",
		"-movflags", "+faststart",
		pattern,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = os.Stderr
	return cmd
}

// sleepOrDone sleeps for d, returning true early if ctx is cancelled
// during the wait.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(d):
		return false
	}
}
