package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/notesync/notesync/internal/config"
	"github.com/notesync/notesync/internal/models"
)

// ResolveConflict applies an explicit resolution to a conflicted path.
//
//   - local:  keep the local file; the remote content (when supplied)
//     is preserved in the conflict archive.
//   - remote: back up the local content, then overwrite with remote.
//   - both:   keep the local file and write the remote content next to
//     it with a ".conflict" suffix before the extension.
func (s *Service) ResolveConflict(conflict models.SyncConflict, resolution models.ConflictResolution, remoteContent string) error {
	log := s.logger.WithFields(map[string]interface{}{
		"path":       conflict.Path,
		"resolution": resolution,
	})

	switch resolution {
	case models.ResolveLocal:
		if remoteContent != "" {
			if _, err := s.backupConflict(conflict.Path, remoteContent, "remote"); err != nil {
				return err
			}
		}

	case models.ResolveRemote:
		if localContent, err := s.notes.Read(conflict.Path); err == nil {
			if _, err := s.backupConflict(conflict.Path, localContent, "local"); err != nil {
				return err
			}
		}
		if err := s.ApplyRemoteNote(conflict.Path, remoteContent); err != nil {
			return err
		}

	case models.ResolveBoth:
		ext := filepath.Ext(conflict.Path)
		base := strings.TrimSuffix(conflict.Path, ext)
		if err := s.ApplyRemoteNote(base+".conflict"+ext, remoteContent); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown conflict resolution %q", resolution)
	}

	log.Info("Conflict resolved")
	return nil
}

// backupConflict archives content under the workspace's conflicts
// directory, named to preserve chronology and avoid collisions.
func (s *Service) backupConflict(path, content, source string) (string, error) {
	conflictsDir := filepath.Join(s.notes.Root(), config.ConfigDirName, config.ConflictsDirName)
	if err := os.MkdirAll(conflictsDir, 0o700); err != nil {
		return "", fmt.Errorf("create conflicts dir: %w", err)
	}

	name := fmt.Sprintf("%d_%s_%s", s.now().UnixMilli(), source, filepath.Base(path))
	backupPath := filepath.Join(conflictsDir, name)

	if err := os.WriteFile(backupPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write conflict backup: %w", err)
	}

	s.logger.WithField("backup", backupPath).Info("Conflict content archived")
	return backupPath, nil
}
