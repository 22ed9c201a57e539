package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/alxayo/go-dvr/internal/dvr/session"
)

// cliConfig holds user supplied flag values, layering environment-variable
// defaults under explicit flags the way cmd/rtmp-server's flags.go does.
type cliConfig struct {
	host       string
	cmdPort    int
	mediaPort  int
	username   string
	password   string
	channel    int
	streamType int
	verbose    bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("dvr-feeder", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.host, "host", os.Getenv("DVR_HOST"), "DVR host (required; env DVR_HOST)")
	fs.IntVar(&cfg.cmdPort, "cmd-port", envInt("DVR_CMD_PORT", 5050), "command channel TCP port")
	fs.IntVar(&cfg.mediaPort, "media-port", envInt("DVR_MEDIA_PORT", 6050), "media channel TCP port")
	fs.StringVar(&cfg.username, "username", envString("DVR_USERNAME", "admin"), "device username")
	fs.StringVar(&cfg.password, "password", envString("DVR_PASSWORD", "123456"), "device password")
	fs.IntVar(&cfg.channel, "channel", 0, "camera channel, 0..N-1")
	fs.IntVar(&cfg.streamType, "stream-type", int(session.StreamTypeMain), "1=main, 2=sub")
	fs.BoolVar(&cfg.verbose, "v", false, "verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.host == "" {
		return nil, fmt.Errorf("--host (or DVR_HOST) is required")
	}
	if cfg.streamType != int(session.StreamTypeMain) && cfg.streamType != int(session.StreamTypeSub) {
		return nil, fmt.Errorf("--stream-type must be 1 (main) or 2 (sub), got %d", cfg.streamType)
	}
	if cfg.channel < 0 {
		return nil, fmt.Errorf("--channel must be >= 0")
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}
