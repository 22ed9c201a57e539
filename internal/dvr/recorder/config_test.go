package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alxayo/go-dvr/internal/dvr/session"
)

func TestLoadConfigFallsBackToEnvDefaults(t *testing.T) {
	t.Setenv("DVR_RECORD_MIN_DISK_MB", "750")
	t.Setenv("DVR_RECORD_CHANNELS", "0,1,2")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MinDiskMB != 750 {
		t.Fatalf("expected MinDiskMB 750, got %d", cfg.MinDiskMB)
	}
	if len(cfg.Channels) != 3 {
		t.Fatalf("expected 3 channels, got %v", cfg.Channels)
	}
}

func TestConfigSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recording_config.json")
	cfg := &Config{
		Enabled:        true,
		Channels:       []int{0, 1},
		SegmentMinutes: 5,
		StreamType:     session.StreamTypeMain,
		RecordDir:      "/var/lib/dvr/record",
		MinDiskMB:      500,
		Schedule:       "0-23",
	}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file: %v", err)
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if reloaded.SegmentMinutes != 5 || !reloaded.Enabled {
		t.Fatalf("unexpected reloaded config: %+v", reloaded)
	}
}
