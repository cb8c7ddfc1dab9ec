// Package store is the durable record of the wall's current images:
// a processed directory of active artifacts with caption sidecars,
// plus a removed directory that keeps soft-deleted bytes recoverable.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"photowall/internal/common"
	"photowall/internal/models"
)

const sidecarSuffix = "_desc.txt"

var imageExtensions = []string{".png", ".jpg", ".jpeg"}

// Store is the filesystem-backed image store. The server is its only
// writer; generated names never collide, so adds need no locking and
// only delete's check-then-move runs under the mutex.
type Store struct {
	incomingDir    string
	processedDir   string
	removedDir     string
	defaultCaption string
	log            *slog.Logger

	deleteMu sync.Mutex
}

// New creates the incoming/processed/removed directories under dataDir.
func New(dataDir, defaultCaption string, log *slog.Logger) (*Store, error) {
	s := &Store{
		incomingDir:    filepath.Join(dataDir, "incoming"),
		processedDir:   filepath.Join(dataDir, "processed"),
		removedDir:     filepath.Join(dataDir, "removed"),
		defaultCaption: defaultCaption,
		log:            log,
	}
	for _, dir := range []string{s.incomingDir, s.processedDir, s.removedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
		}
	}
	return s, nil
}

// IncomingDir is the staging area for in-flight uploads.
func (s *Store) IncomingDir() string { return s.incomingDir }

// ProcessedDir holds the active artifacts; it is what the static file
// server exposes under /images/.
func (s *Store) ProcessedDir() string { return s.processedDir }

func isImageName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// List re-scans the processed directory and returns all active
// records in the wall-wide order. Captions come from sidecar files;
// a missing sidecar degrades to the default caption.
func (s *Store) List() ([]models.ImageRecord, error) {
	entries, err := os.ReadDir(s.processedDir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", common.ErrStoreIO, s.processedDir, err)
	}

	var records []models.ImageRecord
	for _, entry := range entries {
		if entry.IsDir() || !isImageName(entry.Name()) {
			continue
		}
		records = append(records, models.ImageRecord{
			Name:        entry.Name(),
			Description: s.readCaption(entry.Name()),
		})
	}
	models.SortRecords(records)
	return records, nil
}

func (s *Store) readCaption(name string) string {
	data, err := os.ReadFile(filepath.Join(s.processedDir, name+sidecarSuffix))
	if err != nil {
		return s.defaultCaption
	}
	return string(data)
}

// Add writes the artifact and its caption sidecar. A failed artifact
// write is a store error; a failed sidecar write is tolerated and the
// record comes back with an empty caption.
func (s *Store) Add(name string, data []byte, description string) (models.ImageRecord, error) {
	path := filepath.Join(s.processedDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return models.ImageRecord{}, fmt.Errorf("%w: writing %s: %v", common.ErrStoreIO, path, err)
	}

	if description == "" {
		return models.ImageRecord{Name: name, Description: s.defaultCaption}, nil
	}

	description = models.TruncateDescription(description)
	if err := os.WriteFile(path+sidecarSuffix, []byte(description), 0o644); err != nil {
		s.log.Warn("could not write caption sidecar", "image", name, "error", err)
		return models.ImageRecord{Name: name}, nil
	}
	return models.ImageRecord{Name: name, Description: description}, nil
}

// SoftDelete moves the artifact and its sidecar out of the active set
// into the removed area. Deleting an unknown or already-deleted name
// fails with ErrNotFound and touches nothing.
func (s *Store) SoftDelete(name string) error {
	s.deleteMu.Lock()
	defer s.deleteMu.Unlock()

	src := filepath.Join(s.processedDir, name)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", common.ErrNotFound, name)
		}
		return fmt.Errorf("%w: stat %s: %v", common.ErrStoreIO, src, err)
	}

	if err := os.Rename(src, filepath.Join(s.removedDir, name)); err != nil {
		return fmt.Errorf("%w: removing %s: %v", common.ErrStoreIO, name, err)
	}

	// Best effort: the caption follows the bytes so a recovered image
	// keeps its caption.
	sidecar := src + sidecarSuffix
	if _, err := os.Stat(sidecar); err == nil {
		if err := os.Rename(sidecar, filepath.Join(s.removedDir, name+sidecarSuffix)); err != nil {
			s.log.Warn("could not move caption sidecar", "image", name, "error", err)
		}
	}
	return nil
}
