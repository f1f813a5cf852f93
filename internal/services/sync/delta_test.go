package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notesync/notesync/internal/models"
)

func entry(path string, updatedAt int64, hash string) models.NoteManifestEntry {
	return models.NoteManifestEntry{
		Path:        path,
		Title:       path,
		UpdatedAt:   updatedAt,
		ContentHash: hash,
		Size:        int64(len(path)),
	}
}

func TestComputeDelta(t *testing.T) {
	tests := []struct {
		name          string
		local         models.NoteManifest
		remote        models.NoteManifest
		wantSend      []string
		wantReceive   []string
		wantConflicts []string
	}{
		{
			name:   "both empty",
			local:  models.NoteManifest{},
			remote: models.NoteManifest{},
		},
		{
			name:     "only local",
			local:    models.NoteManifest{entry("a.md", 100, "sha256:1")},
			remote:   models.NoteManifest{},
			wantSend: []string{"a.md"},
		},
		{
			name:        "only remote",
			local:       models.NoteManifest{},
			remote:      models.NoteManifest{entry("a.md", 100, "sha256:1")},
			wantReceive: []string{"a.md"},
		},
		{
			name:   "same hash converged",
			local:  models.NoteManifest{entry("a.md", 100, "sha256:1")},
			remote: models.NoteManifest{entry("a.md", 999, "sha256:1")},
		},
		{
			name:     "local newer wins",
			local:    models.NoteManifest{entry("a.md", 200, "sha256:1")},
			remote:   models.NoteManifest{entry("a.md", 100, "sha256:2")},
			wantSend: []string{"a.md"},
		},
		{
			name:        "remote newer wins",
			local:       models.NoteManifest{entry("a.md", 100, "sha256:1")},
			remote:      models.NoteManifest{entry("a.md", 200, "sha256:2")},
			wantReceive: []string{"a.md"},
		},
		{
			name:          "equal timestamp different hash conflicts",
			local:         models.NoteManifest{entry("a.md", 100, "sha256:1")},
			remote:        models.NoteManifest{entry("a.md", 100, "sha256:2")},
			wantConflicts: []string{"a.md"},
		},
		{
			name: "mixed workspace",
			local: models.NoteManifest{
				entry("keep.md", 100, "sha256:same"),
				entry("mine.md", 100, "sha256:1"),
				entry("newer-here.md", 300, "sha256:a"),
				entry("clash.md", 500, "sha256:x"),
			},
			remote: models.NoteManifest{
				entry("keep.md", 100, "sha256:same"),
				entry("theirs.md", 100, "sha256:2"),
				entry("newer-here.md", 200, "sha256:b"),
				entry("clash.md", 500, "sha256:y"),
			},
			wantSend:      []string{"mine.md", "newer-here.md"},
			wantReceive:   []string{"theirs.md"},
			wantConflicts: []string{"clash.md"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta := ComputeDelta(tt.local, tt.remote)

			if tt.wantSend == nil {
				tt.wantSend = []string{}
			}
			if tt.wantReceive == nil {
				tt.wantReceive = []string{}
			}
			assert.Equal(t, tt.wantSend, paths(delta.ToSend))
			assert.Equal(t, tt.wantReceive, paths(delta.ToReceive))

			gotConflicts := []string{}
			for _, c := range delta.Conflicts {
				gotConflicts = append(gotConflicts, c.Path)
			}
			if tt.wantConflicts == nil {
				tt.wantConflicts = []string{}
			}
			assert.Equal(t, tt.wantConflicts, gotConflicts)
		})
	}
}

func paths(entries []models.NoteManifestEntry) []string {
	out := []string{}
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

// Every path appearing in either manifest lands in exactly one bucket
// or is converged; nothing is dropped or double-counted.
func TestComputeDeltaCompleteness(t *testing.T) {
	local := models.NoteManifest{
		entry("a.md", 100, "sha256:1"),
		entry("b.md", 200, "sha256:2"),
		entry("c.md", 300, "sha256:same"),
	}
	remote := models.NoteManifest{
		entry("b.md", 200, "sha256:other"),
		entry("c.md", 300, "sha256:same"),
		entry("d.md", 400, "sha256:4"),
	}

	delta := ComputeDelta(local, remote)

	classified := map[string]int{}
	for _, e := range delta.ToSend {
		classified[e.Path]++
	}
	for _, e := range delta.ToReceive {
		classified[e.Path]++
	}
	for _, c := range delta.Conflicts {
		classified[c.Path]++
	}

	for path, n := range classified {
		assert.Equal(t, 1, n, "path %s classified %d times", path, n)
	}

	// c.md converged; everything else gets classified.
	assert.NotContains(t, classified, "c.md")
	assert.Contains(t, classified, "a.md")
	assert.Contains(t, classified, "b.md")
	assert.Contains(t, classified, "d.md")
}

// Swapping the manifests mirrors the classification.
func TestComputeDeltaSymmetry(t *testing.T) {
	local := models.NoteManifest{
		entry("a.md", 100, "sha256:1"),
		entry("b.md", 500, "sha256:x"),
	}
	remote := models.NoteManifest{
		entry("b.md", 200, "sha256:y"),
		entry("c.md", 300, "sha256:3"),
	}

	forward := ComputeDelta(local, remote)
	reverse := ComputeDelta(remote, local)

	assert.Equal(t, paths(forward.ToSend), paths(reverse.ToReceive))
	assert.Equal(t, paths(forward.ToReceive), paths(reverse.ToSend))
	assert.Equal(t, len(forward.Conflicts), len(reverse.Conflicts))
}

func TestComputeDeltaDeterministicOrder(t *testing.T) {
	local := models.NoteManifest{
		entry("z.md", 100, "sha256:1"),
		entry("a.md", 100, "sha256:2"),
		entry("m.md", 100, "sha256:3"),
	}

	delta := ComputeDelta(local, models.NoteManifest{})
	assert.Equal(t, []string{"a.md", "m.md", "z.md"}, paths(delta.ToSend))
}
