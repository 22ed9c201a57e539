package upload

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Uploader is the interface the upload worker depends on. Both the
// OAuth-backed cloud uploader and the shell uploader implement it; if
// both are configured they run in that order for every file.
type Uploader interface {
	EnsureSubfolder(ctx context.Context, name string) (folderID string, err error)
	Upload(ctx context.Context, path, filename, folderID string) error
	ListFiles(ctx context.Context, folderID string, limit int) ([]string, error)
	Delete(ctx context.Context, fileID string) error
}

// ShellUploader hands each upload off to an opaque external command,
// substituting {file}, {channel} and {filename} placeholders. It satisfies
// Uploader with EnsureSubfolder/ListFiles/Delete as no-ops, since a shell
// command has no notion of folder ids or remote listing.
type ShellUploader struct {
	Command string
	Channel int
}

func (u *ShellUploader) EnsureSubfolder(ctx context.Context, name string) (string, error) {
	return "", nil
}

func (u *ShellUploader) ListFiles(ctx context.Context, folderID string, limit int) ([]string, error) {
	return nil, nil
}

func (u *ShellUploader) Delete(ctx context.Context, fileID string) error { return nil }

// Upload renders the configured command template and runs it, treating a
// non-zero exit as failure.
func (u *ShellUploader) Upload(ctx context.Context, path, filename, folderID string) error {
	r := strings.NewReplacer(
		"{file}", path,
		"{channel}", strconv.Itoa(u.Channel),
		"{filename}", filename,
	)
	rendered := r.Replace(u.Command)
	cmd := exec.CommandContext(ctx, "sh", "-c", rendered)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("shell uploader: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
