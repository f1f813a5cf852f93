package sync

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notesync/notesync/internal/events"
)

func testLogger() *events.Logger {
	return events.NewTestLogger(events.ErrorLevel, io.Discard)
}

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildManifest(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "inbox.md", "# Inbox\n")
	writeNote(t, root, "projects/plan.md", "# Plan\n")
	writeNote(t, root, "notes.txt", "not a note")

	manifest, err := BuildManifest(root, testLogger())
	require.NoError(t, err)
	require.Len(t, manifest, 2)

	byPath := manifest.PathMap()
	require.Contains(t, byPath, "inbox.md")
	require.Contains(t, byPath, "projects/plan.md")

	inbox := byPath["inbox.md"]
	assert.Equal(t, "inbox", inbox.Title)
	assert.Equal(t, int64(len("# Inbox\n")), inbox.Size)
	assert.Equal(t, ContentHash([]byte("# Inbox\n")), inbox.ContentHash)
	assert.Greater(t, inbox.UpdatedAt, int64(0))
}

func TestBuildManifestSkipsHiddenAndNodeModules(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "visible.md", "hello")
	writeNote(t, root, ".notesync/trash/123_old.md", "trashed")
	writeNote(t, root, ".git/hooks/readme.md", "internal")
	writeNote(t, root, "node_modules/pkg/README.md", "dep")

	manifest, err := BuildManifest(root, testLogger())
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.Equal(t, "visible.md", manifest[0].Path)
}

func TestBuildManifestFrontMatter(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "titled.md", "---\ntitle: Shopping List\nupdated: 2024-03-01 10:30\n---\n\nmilk\n")

	manifest, err := BuildManifest(root, testLogger())
	require.NoError(t, err)
	require.Len(t, manifest, 1)

	want := time.Date(2024, 3, 1, 10, 30, 0, 0, time.Local).UnixMilli()
	assert.Equal(t, "Shopping List", manifest[0].Title)
	assert.Equal(t, want, manifest[0].UpdatedAt)
}

func TestBuildManifestMalformedFrontMatter(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "broken.md", "---\ntitle: [unclosed\n---\nbody\n")

	manifest, err := BuildManifest(root, testLogger())
	require.NoError(t, err)
	require.Len(t, manifest, 1)

	// Degrades to filename and mtime instead of failing the note.
	assert.Equal(t, "broken", manifest[0].Title)
	assert.Greater(t, manifest[0].UpdatedAt, int64(0))
}

func TestBuildManifestDeterministic(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "alpha")
	writeNote(t, root, "b/c.md", "gamma")

	first, err := BuildManifest(root, testLogger())
	require.NoError(t, err)
	second, err := BuildManifest(root, testLogger())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildManifestEmptyWorkspace(t *testing.T) {
	manifest, err := BuildManifest(t.TempDir(), testLogger())
	require.NoError(t, err)
	assert.Empty(t, manifest)
	assert.NotNil(t, manifest)
}

func TestBuildManifestMissingRoot(t *testing.T) {
	_, err := BuildManifest(filepath.Join(t.TempDir(), "missing"), testLogger())
	assert.Error(t, err)
}

func TestContentHash(t *testing.T) {
	h := ContentHash([]byte("hello"))
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h)
	assert.NotEqual(t, h, ContentHash([]byte("hello ")))
	assert.Equal(t, ContentHash(nil), ContentHash([]byte{}))
}

func TestParseUpdatedLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01T10:30:00Z", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-03-01 10:30:05", time.Date(2024, 3, 1, 10, 30, 5, 0, time.Local)},
		{"2024-03-01 10:30", time.Date(2024, 3, 1, 10, 30, 0, 0, time.Local)},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)},
	}

	for _, tt := range tests {
		got, ok := parseUpdated(tt.in)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.want.UnixMilli(), got.UnixMilli(), tt.in)
	}

	_, ok := parseUpdated("yesterday")
	assert.False(t, ok)
	_, ok = parseUpdated(nil)
	assert.False(t, ok)
	_, ok = parseUpdated(42)
	assert.False(t, ok)
}
