// Package metrics exposes Prometheus counters and gauges for the DVR
// session runtime: demuxed frames, NAL filtering, heartbeat misses,
// segment rotation, disk pauses and upload outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alxayo/go-dvr/internal/dvrlog"
)

var (
	FramesDemuxed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvr_frames_demuxed_total",
		Help: "Total media frames demuxed from the device media channel.",
	}, []string{"channel"})

	NALBytesKept = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvr_nal_bytes_kept_total",
		Help: "Total NAL payload bytes kept by the filter.",
	}, []string{"channel"})

	NALBytesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvr_nal_bytes_dropped_total",
		Help: "Total NAL payload bytes discarded by the filter (vendor prefix, aggregation types).",
	}, []string{"channel"})

	HeartbeatMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dvr_heartbeat_misses_total",
		Help: "Total sessions marked dead due to heartbeat silence.",
	})

	SegmentsRotated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvr_segments_rotated_total",
		Help: "Total recording segments closed by the muxer.",
	}, []string{"channel"})

	DiskLowPauses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvr_disk_low_pauses_total",
		Help: "Total times a channel's recording loop paused for low disk space.",
	}, []string{"channel"})

	UploadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dvr_uploads_succeeded_total",
		Help: "Total segments uploaded successfully.",
	})

	UploadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dvr_uploads_failed_total",
		Help: "Total segment upload attempts that failed.",
	})

	UploadsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dvr_uploads_retried_total",
		Help: "Total segment upload attempts that were retries (attempt > 1).",
	})

	RecorderState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dvr_recorder_state",
		Help: "Current recorder job state per channel (1 if in that state, 0 otherwise).",
	}, []string{"channel", "state"})
)

// StartHTTP serves Prometheus metrics at /metrics on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		dvrlog.Logger().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			dvrlog.Logger().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}
