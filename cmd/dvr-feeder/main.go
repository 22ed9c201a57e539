// Command dvr-feeder is the subprocess the recording supervisor (C8) spawns
// per channel: it logs in to a device, pulls one channel's live stream, and
// writes clean Annex-B H.264 bytes to stdout for an external segmenting
// muxer to consume. Diagnostics go to stderr.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alxayo/go-dvr/internal/dvr/session"
	"github.com/alxayo/go-dvr/internal/dvrerrors"
	"github.com/alxayo/go-dvr/internal/dvrlog"
)

const maxAttempts = 5

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	dvrlog.Init()
	dvrlog.UseWriter(os.Stderr)
	if cfg.verbose {
		_ = dvrlog.SetLevel("debug")
	}
	log := dvrlog.WithChannel(dvrlog.Logger().With("component", "feeder"), cfg.channel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			os.Exit(0)
		}
		clean, err := runOnce(ctx, cfg, log)
		if clean {
			os.Exit(0)
		}
		if err != nil {
			log.Error("feeder run failed", "attempt", attempt, "error", err, "fatal", dvrerrors.IsFatal(err))
		}
		if attempt == maxAttempts {
			break
		}
		delay := time.Duration(math.Min(3*math.Pow(2, float64(attempt-1)), 30)) * time.Second
		log.Warn("retrying", "delay", delay, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			os.Exit(0)
		case <-time.After(delay):
		}
	}
	log.Error("exceeded retry budget", "attempts", maxAttempts)
	os.Exit(1)
}

// runOnce connects, streams frames to stdout until the session ends or ctx
// is cancelled, and disconnects gracefully. The bool result reports whether
// the run ended via a clean EOF (no more retries warranted).
func runOnce(ctx context.Context, cfg *cliConfig, log interface {
	Info(string, ...any)
	Warn(string, ...any)
	Error(string, ...any)
}) (bool, error) {
	sess := session.New(session.Config{
		Host:       cfg.host,
		CmdPort:    cfg.cmdPort,
		MediaPort:  cfg.mediaPort,
		Username:   cfg.username,
		Password:   cfg.password,
		Channel:    cfg.channel,
		StreamType: session.StreamType(cfg.streamType),
	})

	if err := sess.Connect(ctx); err != nil {
		return false, err
	}
	defer sess.Disconnect()

	go func() {
		<-ctx.Done()
		sess.Disconnect()
	}()

	out := os.Stdout
	for frame, err := range sess.Frames() {
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return false, err
		}
		if len(frame.Data) == 0 {
			continue
		}
		if _, werr := out.Write(frame.Data); werr != nil {
			return false, werr
		}
	}
	if sess.IsDead() && ctx.Err() == nil {
		return false, dvrerrors.NewTransportError("feeder.stream", fmt.Errorf("session died"))
	}
	return true, nil
}
