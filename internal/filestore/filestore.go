// Package filestore implements the deterministic on-disk layout shared by
// all three services. Every write is "create directories if needed, then
// write atomically": a temp file followed by an os.Rename into place, so
// a crash mid-write never leaves a partially written file at its final
// path.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store roots all paths under a single data directory.
type Store struct {
	dataDir string
}

// New creates a Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// IndexPath returns the path for a day's index JSON:
// {data_dir}/metadata/YYYY/MM/DD.json
func (s *Store) IndexPath(date time.Time) string {
	return filepath.Join(s.dataDir, "metadata",
		fmt.Sprintf("%04d", date.Year()),
		fmt.Sprintf("%02d", date.Month()),
		fmt.Sprintf("%02d.json", date.Day()))
}

// ArticlePath returns the path for an article's markdown body:
// {data_dir}/news/YYYY-MM-DD/HH-MM-{id}.md
func (s *Store) ArticlePath(publishedAt time.Time, id string) string {
	return filepath.Join(s.dataDir, "news", publishedAt.Format("2006-01-02"),
		fmt.Sprintf("%s-%s.md", publishedAt.Format("15-04"), id))
}

// SummaryPath returns the path for an article's per-language summary:
// {data_dir}/news/YYYY-MM-DD/HH-MM-{id}-sum.{lang}.txt
func (s *Store) SummaryPath(publishedAt time.Time, id, lang string) string {
	return filepath.Join(s.dataDir, "news", publishedAt.Format("2006-01-02"),
		fmt.Sprintf("%s-%s-sum.%s.txt", publishedAt.Format("15-04"), id, lang))
}

// RawDumpPath returns the path for an optional raw LLM response dump:
// {raw_dir}/{session_id}/{agent_id}_{utc_timestamp}.txt
func (s *Store) RawDumpPath(rawDir, sessionID, agentID string, at time.Time) string {
	return filepath.Join(rawDir, sessionID,
		fmt.Sprintf("%s_%d.txt", agentID, at.UTC().Unix()))
}

// WriteAtomic creates path's parent directories if needed, then writes data
// atomically: a temp file in the same directory followed by a rename. The
// manager never deletes files; each attempt uses a freshly named temp file,
// so a stale temp file left by a prior crash stays on disk.
func (s *Store) WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: write temp %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: close temp %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// Exists reports whether a file exists at path.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
