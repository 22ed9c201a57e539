package recorder

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVerifyWritableAbsoluteDirRejectsRelativePath(t *testing.T) {
	if err := verifyWritableAbsoluteDir("relative/path"); err == nil {
		t.Fatal("expected error for relative path")
	}
}

func TestVerifyWritableAbsoluteDirCreatesAndProbes(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "record")
	if err := verifyWritableAbsoluteDir(target); err != nil {
		t.Fatalf("verifyWritableAbsoluteDir: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected dir to be created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, ".write_probe")); !os.IsNotExist(err) {
		t.Fatalf("expected probe file to be removed")
	}
}

func TestCheckDiskSpaceAgainstRealFilesystem(t *testing.T) {
	ok, info, err := checkDiskSpace(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("checkDiskSpace: %v", err)
	}
	if info.TotalBytes == 0 {
		t.Fatal("expected nonzero total bytes from statfs")
	}
	if !ok {
		t.Skip("test filesystem reports less than 1MB free, skipping threshold assertion")
	}
}
