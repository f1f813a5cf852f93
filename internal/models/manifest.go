package models

// NoteManifestEntry is the sync fingerprint of a single Markdown note.
// Paths are workspace-relative with forward slashes and act as the unique
// key within a manifest. Timestamps are epoch milliseconds to match the
// wire format the mobile client speaks.
type NoteManifestEntry struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	UpdatedAt   int64  `json:"updatedAt"`
	ContentHash string `json:"contentHash"` // algorithm-tagged, e.g. "sha256:<hex>"
	Size        int64  `json:"size"`
}

// NoteManifest is the set of note fingerprints for one workspace.
// Order carries no meaning.
type NoteManifest []NoteManifestEntry

// PathMap indexes the manifest by path.
func (m NoteManifest) PathMap() map[string]NoteManifestEntry {
	idx := make(map[string]NoteManifestEntry, len(m))
	for _, entry := range m {
		idx[entry.Path] = entry
	}
	return idx
}

// SyncDelta classifies every divergent path between two manifests.
// It is derived, never persisted.
type SyncDelta struct {
	ToSend    []NoteManifestEntry `json:"toSend"`
	ToReceive []NoteManifestEntry `json:"toReceive"`
	Conflicts []SyncConflict      `json:"conflicts"`
}

// ConflictResolution is the user's pick for a conflicted path.
type ConflictResolution string

const (
	ResolveLocal  ConflictResolution = "local"
	ResolveRemote ConflictResolution = "remote"
	ResolveBoth   ConflictResolution = "both"
)

// SyncConflict records a path whose content differs on both sides with
// equal update timestamps. Not an error; it awaits explicit resolution.
type SyncConflict struct {
	Path        string             `json:"path"`
	LocalEntry  NoteManifestEntry  `json:"localEntry"`
	RemoteEntry NoteManifestEntry  `json:"remoteEntry"`
	Resolution  ConflictResolution `json:"resolution,omitempty"`
}
