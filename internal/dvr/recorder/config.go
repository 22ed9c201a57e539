package recorder

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/alxayo/go-dvr/internal/dvr/session"
)

const defaultConfigPath = "cache/recording_config.json"
const defaultMinDiskMB = int64(500)

// UploadSettings mirrors the subset of upload-worker configuration a
// caller may replace alongside the recording config.
type UploadSettings struct {
	CloudEnabled bool   `json:"cloud_enabled"`
	ShellCommand string `json:"shell_command"`
	DeleteLocal  bool   `json:"delete_local"`
}

// Config is the persisted recording configuration: the subset of fields a
// caller may replace via the external control surface, re-applied by
// restarting the supervisor so in-flight segments finalise cleanly.
type Config struct {
	Enabled        bool               `json:"enabled"`
	Channels       []int              `json:"channels"`
	SegmentMinutes int                `json:"segment_minutes"`
	StreamType     session.StreamType `json:"stream_type"`
	RecordDir      string             `json:"record_dir"`
	RetentionHours int                `json:"retention_hours"`
	Schedule       string             `json:"schedule"`
	MinDiskMB      int64              `json:"min_disk_mb"`
	Upload         UploadSettings     `json:"upload"`
}

// LoadConfig reads path, falling back to environment-variable defaults
// for any field when the file does not exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath
	}
	cfg := defaultConfigFromEnv()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfigFromEnv() *Config {
	cfg := &Config{
		Enabled:        envBool("DVR_RECORD_ENABLED", false),
		Channels:       envIntList("DVR_RECORD_CHANNELS"),
		SegmentMinutes: envInt("DVR_RECORD_SEGMENT_MIN", 10),
		StreamType:     session.StreamType(envInt("DVR_RECORD_STREAM_TYPE", int(session.StreamTypeMain))),
		RecordDir:      envString("DVR_RECORD_DIR", "/var/lib/dvr/record"),
		RetentionHours: envInt("DVR_RECORD_RETENTION_HR", 0),
		Schedule:       envString("DVR_RECORD_SCHEDULE", "0-23"),
		MinDiskMB:      envInt64("DVR_RECORD_MIN_DISK_MB", defaultMinDiskMB),
	}
	return cfg
}

// Save atomically rewrites path with the current config.
func (c *Config) Save(path string) error {
	if path == "" {
		path = defaultConfigPath
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Validate checks the fields that can only be verified against the
// filesystem: RecordDir must be an absolute, writable path.
func (c *Config) Validate() error {
	return verifyWritableAbsoluteDir(c.RecordDir)
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntList(key string) []int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
