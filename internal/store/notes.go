// Package store implements the note store collaborator: filesystem
// read/write/delete for workspace notes plus change watching.
package store

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/notesync/notesync/internal/config"
	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
)

// NoteStore is the narrow contract the sync core consumes. Paths are
// workspace-relative, forward-slash separated.
type NoteStore interface {
	Read(path string) (string, error)
	Write(path string, content string) error
	Delete(path string) error
	Root() string
	OnChange(fn func(models.NoteChange))
	Close() error
}

// LocalStore implements NoteStore on the local filesystem. Writes are
// atomic (temp file + rename) and idempotent; deletes are soft,
// moving the note into the workspace trash directory.
type LocalStore struct {
	baseDir string
	logger  *events.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu        sync.Mutex
	callbacks []func(models.NoteChange)
}

// NewLocalStore creates a local note store rooted at baseDir and starts
// the change watcher.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	s := &LocalStore{
		baseDir: absPath,
		logger:  logger.WithField("component", "note_store"),
		done:    make(chan struct{}),
	}

	if err := s.startWatcher(); err != nil {
		return nil, err
	}

	return s, nil
}

// Root returns the workspace root directory.
func (s *LocalStore) Root() string {
	return s.baseDir
}

// Read retrieves note contents.
func (s *LocalStore) Read(path string) (string, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return "", &models.PathError{Op: "read", Path: path, Err: err}
	}

	data, err := os.ReadFile(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", models.ErrNoteNotFound
		}
		return "", &models.PathError{Op: "read", Path: path, Err: err}
	}

	return string(data), nil
}

// Write saves note content atomically, creating parent directories as
// needed. Writing identical content is a no-op so a repeated apply
// leaves content, hash, and mtime untouched.
func (s *LocalStore) Write(path string, content string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return &models.PathError{Op: "write", Path: path, Err: err}
	}

	data := []byte(content)
	if existing, err := os.ReadFile(safePath); err == nil && bytes.Equal(existing, data) {
		s.logger.WithField("path", path).Debug("Write skipped, content unchanged")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(safePath), 0o755); err != nil {
		return &models.PathError{Op: "write", Path: path, Err: err}
	}

	tempPath := fmt.Sprintf("%s.tmp.%d", safePath, time.Now().UnixNano())
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return &models.PathError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tempPath, safePath); err != nil {
		_ = os.Remove(tempPath)
		return &models.PathError{Op: "write", Path: path, Err: err}
	}

	s.logger.WithFields(map[string]interface{}{
		"path": path,
		"size": len(data),
	}).Debug("Note written")

	return nil
}

// Delete moves a note into the workspace trash directory.
func (s *LocalStore) Delete(path string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return &models.PathError{Op: "delete", Path: path, Err: err}
	}

	if _, err := os.Stat(safePath); err != nil {
		if os.IsNotExist(err) {
			return models.ErrNoteNotFound
		}
		return &models.PathError{Op: "delete", Path: path, Err: err}
	}

	trashDir := filepath.Join(s.baseDir, config.ConfigDirName, config.TrashDirName)
	if err := os.MkdirAll(trashDir, 0o700); err != nil {
		return &models.PathError{Op: "delete", Path: path, Err: err}
	}

	trashName := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filepath.Base(safePath))
	if err := os.Rename(safePath, filepath.Join(trashDir, trashName)); err != nil {
		return &models.PathError{Op: "delete", Path: path, Err: err}
	}

	s.logger.WithField("path", path).Info("Note moved to trash")
	return nil
}

// OnChange registers a callback for watched filesystem changes.
func (s *LocalStore) OnChange(fn func(models.NoteChange)) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
}

// Close stops the change watcher.
func (s *LocalStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// startWatcher wires fsnotify over the workspace tree, excluding the
// hidden config directory.
func (s *LocalStore) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	// Watch every directory in the tree; fsnotify is not recursive.
	err = filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if s.skipDir(d.Name()) && path != s.baseDir {
			return fs.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("watch workspace: %w", err)
	}

	go s.watchLoop()
	return nil
}

func (s *LocalStore) watchLoop() {
	for {
		select {
		case <-s.done:
			return

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFsEvent(ev)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Warn("Watcher error")
		}
	}
}

func (s *LocalStore) handleFsEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(s.baseDir, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// Ignore config dir, hidden entries, and temp files.
	for _, part := range strings.Split(rel, "/") {
		if s.skipDir(part) {
			return
		}
	}
	if strings.Contains(filepath.Base(rel), ".tmp.") {
		return
	}

	// New directories need a watch of their own.
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if ev.Op.Has(fsnotify.Create) {
			_ = s.watcher.Add(ev.Name)
		}
		return
	}

	if !strings.HasSuffix(rel, ".md") {
		return
	}

	var kind models.ChangeKind
	switch {
	case ev.Op.Has(fsnotify.Create):
		kind = models.ChangeAdd
	case ev.Op.Has(fsnotify.Write):
		kind = models.ChangeUpdate
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		kind = models.ChangeRemove
	default:
		return
	}

	change := models.NoteChange{Path: rel, Kind: kind}

	s.mu.Lock()
	callbacks := make([]func(models.NoteChange), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(change)
	}
}

func (s *LocalStore) skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

// sanitizePath validates and normalizes a workspace-relative path.
func (s *LocalStore) sanitizePath(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains null bytes")
	}

	cleaned := filepath.Clean(filepath.FromSlash(path))
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains '..'")
	}
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))

	fullPath := filepath.Join(s.baseDir, cleaned)
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) && fullPath != s.baseDir {
		return "", fmt.Errorf("path escapes workspace")
	}

	return fullPath, nil
}
