package sync

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
)

// frontMatter is the subset of note front matter the manifest cares
// about. The updated field arrives as whatever scalar the YAML parser
// resolved (string or time.Time).
type frontMatter struct {
	Title   string      `yaml:"title"`
	Updated interface{} `yaml:"updated"`
}

var updatedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// BuildManifest walks the workspace and fingerprints every Markdown
// note. Hidden directories, node_modules, and the workspace config dir
// are skipped. A file that cannot be read is logged and skipped; an
// unreadable workspace root is fatal.
func BuildManifest(root string, logger *events.Logger) (models.NoteManifest, error) {
	manifest := models.NoteManifest{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("read workspace root: %w", err)
			}
			logger.WithError(err).WithField("path", path).Warn("Skipping unreadable entry")
			return nil
		}

		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		entry, err := buildEntry(root, path, d)
		if err != nil {
			logger.WithError(err).WithField("path", path).Warn("Skipping note")
			return nil
		}

		manifest = append(manifest, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return manifest, nil
}

func buildEntry(root, path string, d fs.DirEntry) (models.NoteManifestEntry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.NoteManifestEntry{}, fmt.Errorf("read note: %w", err)
	}

	info, err := d.Info()
	if err != nil {
		return models.NoteManifestEntry{}, fmt.Errorf("stat note: %w", err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return models.NoteManifestEntry{}, fmt.Errorf("relativize: %w", err)
	}

	fm := parseFrontMatter(content)

	title := fm.Title
	if title == "" {
		title = strings.TrimSuffix(d.Name(), ".md")
	}

	updatedAt := info.ModTime().UnixMilli()
	if ts, ok := parseUpdated(fm.Updated); ok {
		updatedAt = ts.UnixMilli()
	}

	return models.NoteManifestEntry{
		// macOS stores decomposed (NFD) filenames; normalize so both
		// peers agree on the path key.
		Path:        norm.NFC.String(filepath.ToSlash(rel)),
		Title:       norm.NFC.String(title),
		UpdatedAt:   updatedAt,
		ContentHash: ContentHash(content),
		Size:        int64(len(content)),
	}, nil
}

// ContentHash returns the algorithm-tagged digest of raw note bytes.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// parseFrontMatter extracts the leading YAML front matter block, if
// present. Malformed front matter degrades to an empty result rather
// than failing the note.
func parseFrontMatter(content []byte) frontMatter {
	var fm frontMatter

	rest, ok := bytes.CutPrefix(content, []byte("---\n"))
	if !ok {
		rest, ok = bytes.CutPrefix(content, []byte("---\r\n"))
		if !ok {
			return fm
		}
	}

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return fm
	}

	_ = yaml.Unmarshal(rest[:end], &fm)
	return fm
}

func parseUpdated(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		for _, layout := range updatedLayouts {
			if ts, err := time.ParseInLocation(layout, val, time.Local); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}
