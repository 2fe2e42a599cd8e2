// Package backup implements the content-addressed Backup Store
// (SPEC_FULL.md §4.4): every snapshot taken before a mutation is written as
// a standalone JSON file under "<project>/.tree_backups/", keyed by the
// content hash of the source it captured. Grounded on
// original_source/src/core/backup.rs.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oxhq/treeedit/internal/hashutil"
	"github.com/oxhq/treeedit/internal/model"
)

const dirName = ".tree_backups"

// Record is the on-disk shape of one backup file.
type Record struct {
	FilePath   string      `json:"file_path"`
	Timestamp  time.Time   `json:"timestamp"`
	SourceCode string      `json:"source_code"`
	Tree       *model.Tree `json:"tree,omitempty"`
}

// Entry is a Record together with its backing file path and the content
// hash computed from SourceCode, as returned by listing and lookup calls.
type Entry struct {
	Path         string
	Timestamp    time.Time
	FilePath     string
	ContentHash  string
	SourceCode   string
}

// Store manages the backup directory for one project.
type Store struct {
	dir string
}

// New returns a Store rooted at "<projectRoot>/.tree_backups".
func New(projectRoot string) *Store {
	return &Store{dir: filepath.Join(projectRoot, dirName)}
}

// Snapshot writes a new backup record capturing filePath's current source
// and (optionally) its parsed tree, and returns the written Entry.
func (s *Store) Snapshot(filePath, source string, tree *model.Tree) (Entry, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create backup directory: %w", err)
	}

	record := Record{
		FilePath:   filePath,
		Timestamp:  time.Now().UTC(),
		SourceCode: source,
		Tree:       tree,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("marshal backup record: %w", err)
	}

	name := fmt.Sprintf("%s.json", uuid.NewString())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Entry{}, fmt.Errorf("write backup file: %w", err)
	}

	return Entry{
		Path:        path,
		Timestamp:   record.Timestamp,
		FilePath:    filePath,
		ContentHash: hashutil.ContentHash(source),
		SourceCode:  source,
	}, nil
}

// List returns every backup in the store, newest first. Files that fail to
// parse are skipped (non-critical for listing), matching
// list_backup_files's tolerance in the original implementation.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var out []Entry
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		entry, err := parseBackupFile(path)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// FindByHash returns the first backup (newest first) whose content hash
// equals contentHash.
func (s *Store) FindByHash(contentHash string) (*Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ContentHash == contentHash {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// FindByHashForFile prefers a backup matching both contentHash and
// filePath; if none match both, falls back to any backup matching just the
// hash.
func (s *Store) FindByHashForFile(contentHash, filePath string) (*Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ContentHash == contentHash && entries[i].FilePath == filePath {
			return &entries[i], nil
		}
	}
	for i := range entries {
		if entries[i].ContentHash == contentHash {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// Restore reads backupPath's source_code and writes it to targetPath.
func (s *Store) Restore(backupPath, targetPath string) error {
	entry, err := parseBackupFile(backupPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(targetPath, []byte(entry.SourceCode), 0o644); err != nil {
		return fmt.Errorf("write restored file: %w", err)
	}
	return nil
}

func parseBackupFile(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("read backup file: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Entry{}, fmt.Errorf("parse backup file %s: %w", path, err)
	}
	return Entry{
		Path:        path,
		Timestamp:   record.Timestamp,
		FilePath:    record.FilePath,
		ContentHash: hashutil.ContentHash(record.SourceCode),
		SourceCode:  record.SourceCode,
	}, nil
}
