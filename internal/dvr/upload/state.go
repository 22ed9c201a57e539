// Package upload implements the segment upload queue (C9): a periodic
// scan of completed recording segments, a pluggable uploader interface,
// and a persisted set of already-uploaded paths so a restart never
// re-uploads a file.
package upload

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const stateFileName = ".upload_state.json"

// UploadedSet tracks which absolute file paths have already been
// uploaded, persisted as a sorted JSON array under a record directory.
type UploadedSet struct {
	mu   sync.Mutex
	path string
	set  map[string]struct{}
}

// LoadUploadedSet reads the persisted set for recordDir, treating a
// missing file as an empty set.
func LoadUploadedSet(recordDir string) (*UploadedSet, error) {
	path := filepath.Join(recordDir, stateFileName)
	s := &UploadedSet{path: path, set: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, err
	}
	for _, p := range paths {
		s.set[p] = struct{}{}
	}
	return s, nil
}

// Contains reports whether path is already recorded as uploaded.
func (s *UploadedSet) Contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[path]
	return ok
}

// Add records path as uploaded and persists the set.
func (s *UploadedSet) Add(path string) error {
	s.mu.Lock()
	s.set[path] = struct{}{}
	s.mu.Unlock()
	return s.persist()
}

// Remove drops path from the uploaded set (used when retention deletes a
// file, so a later re-recording of the same name isn't silently assumed
// already uploaded) and persists the set.
func (s *UploadedSet) Remove(path string) error {
	s.mu.Lock()
	delete(s.set, path)
	s.mu.Unlock()
	return s.persist()
}

func (s *UploadedSet) persist() error {
	s.mu.Lock()
	paths := make([]string, 0, len(s.set))
	for p := range s.set {
		paths = append(paths, p)
	}
	s.mu.Unlock()
	sort.Strings(paths)

	data, err := json.MarshalIndent(paths, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
