package localstorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// partialSuffix marks a download Chrome has not finished writing.
const partialSuffix = ".crdownload"

// LocalStorage implements ports.Storage for the local filesystem.
// Each run gets its own directory, so two sessions never share a download dir.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// InitRun creates the run directory and its downloads folder.
func (s *LocalStorage) InitRun(ctx context.Context, runID string) (string, error) {
	dir := s.downloadDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve download dir: %w", err)
	}
	return abs, nil
}

// SaveManifest saves the resolved job list.
func (s *LocalStorage) SaveManifest(ctx context.Context, runID string, data []byte) error {
	path := filepath.Join(s.GetRunPath(runID), "manifest.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save manifest.json: %w", err)
	}
	return nil
}

// ListArtifacts returns completed downloads modified at or after since,
// sorted by name.
func (s *LocalStorage) ListArtifacts(ctx context.Context, runID string, since time.Time) ([]string, error) {
	dir := s.downloadDir(runID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), partialSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(since) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// GetRunPath returns the path for a run directory.
func (s *LocalStorage) GetRunPath(runID string) string {
	return filepath.Join(s.BaseDir, "runs", runID)
}

func (s *LocalStorage) downloadDir(runID string) string {
	return filepath.Join(s.GetRunPath(runID), "downloads")
}
