package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alxayo/go-dvr/internal/dvrlog"
)

type countingUploader struct {
	calls int
}

func (u *countingUploader) EnsureSubfolder(ctx context.Context, name string) (string, error) {
	return "folder", nil
}

func (u *countingUploader) ListFiles(ctx context.Context, folderID string, limit int) ([]string, error) {
	return nil, nil
}

func (u *countingUploader) Delete(ctx context.Context, fileID string) error { return nil }

func (u *countingUploader) Upload(ctx context.Context, path, filename, folderID string) error {
	u.calls++
	return nil
}

func TestUploadPassIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	chDir := filepath.Join(dir, "ch0")
	if err := os.MkdirAll(chDir, 0o755); err != nil {
		t.Fatal(err)
	}
	segment := filepath.Join(chDir, "2026-01-01_00-00-00.mp4")
	if err := os.WriteFile(segment, []byte("fakemp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Minute)
	if err := os.Chtimes(segment, old, old); err != nil {
		t.Fatal(err)
	}

	up := &countingUploader{}
	w, err := NewWorker(dir, []Uploader{up}, false, dvrlog.Logger())
	if err != nil {
		t.Fatal(err)
	}

	w.Pass(context.Background())
	w.Pass(context.Background())

	if up.calls != 1 {
		t.Fatalf("expected exactly 1 upload call, got %d", up.calls)
	}

	reloaded, err := LoadUploadedSet(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.Contains(segment) {
		t.Fatal("expected uploaded set to survive reload")
	}
}

func TestUploadSkipsOpenSegments(t *testing.T) {
	dir := t.TempDir()
	chDir := filepath.Join(dir, "ch0")
	if err := os.MkdirAll(chDir, 0o755); err != nil {
		t.Fatal(err)
	}
	fresh := filepath.Join(chDir, "fresh.mp4")
	if err := os.WriteFile(fresh, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := &countingUploader{}
	w, err := NewWorker(dir, []Uploader{up}, false, dvrlog.Logger())
	if err != nil {
		t.Fatal(err)
	}
	w.Pass(context.Background())

	if up.calls != 0 {
		t.Fatalf("expected fresh segment to be skipped, got %d calls", up.calls)
	}
}
