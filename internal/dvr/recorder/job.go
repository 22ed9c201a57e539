package recorder

import (
	"strconv"
	"sync"

	"github.com/alxayo/go-dvr/internal/dvr/metrics"
)

var allJobStates = []JobState{
	StateStarting, StateRecording, StateWaitingSchedule,
	StatePausedDiskLow, StateError, StateStopped,
}

// JobState names the per-channel recorder loop's current state, reported
// to callers and mirrored into the dvr_recorder_state gauge.
type JobState string

const (
	StateStarting        JobState = "starting"
	StateRecording       JobState = "recording"
	StateWaitingSchedule JobState = "waiting (schedule)"
	StatePausedDiskLow   JobState = "paused (disk low)"
	StateError           JobState = "error"
	StateStopped         JobState = "stopped"
)

// Status is the externally-visible snapshot of one channel's job.
type Status struct {
	Channel      int
	State        JobState
	SegmentCount int
	LastError    string
	Disk         DiskInfo
}

// job holds the mutable state of one channel's recorder loop, guarded by
// mu since Status() is read from the control surface concurrently with
// the loop goroutine.
type job struct {
	channel int

	mu           sync.Mutex
	state        JobState
	segmentCount int
	lastError    error
	disk         DiskInfo
}

func newJob(channel int) *job {
	return &job{channel: channel, state: StateStarting}
}

func (j *job) setState(s JobState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
	setStateGauge(j.channel, s)
}

func (j *job) setError(err error) {
	j.mu.Lock()
	j.lastError = err
	j.state = StateError
	j.mu.Unlock()
	setStateGauge(j.channel, StateError)
}

// setStateGauge mirrors the job's current state into the recorder_state
// gauge, zeroing every other known state label for the channel so a
// scrape never observes two states set at once.
func setStateGauge(channel int, current JobState) {
	ch := strconv.Itoa(channel)
	for _, s := range allJobStates {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.RecorderState.WithLabelValues(ch, string(s)).Set(v)
	}
}

func (j *job) setSegmentCount(n int) {
	j.mu.Lock()
	delta := n - j.segmentCount
	j.segmentCount = n
	j.mu.Unlock()
	if delta > 0 {
		metrics.SegmentsRotated.WithLabelValues(strconv.Itoa(j.channel)).Add(float64(delta))
	}
}

func (j *job) setDisk(d DiskInfo) {
	j.mu.Lock()
	j.disk = d
	j.mu.Unlock()
}

func (j *job) status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Status{Channel: j.channel, State: j.state, SegmentCount: j.segmentCount, Disk: j.disk}
	if j.lastError != nil {
		s.LastError = j.lastError.Error()
	}
	return s
}
