package sync

import (
	"sort"

	"github.com/notesync/notesync/internal/models"
)

// ComputeDelta classifies every path present in either manifest from
// the local side's point of view. Pure function; results are sorted by
// path so equal inputs always yield identical output.
//
// Classification:
//   - only local                      -> toSend
//   - only remote                     -> toReceive
//   - both, same hash                 -> converged, no action
//   - both, differ, local newer       -> toSend
//   - both, differ, remote newer      -> toReceive
//   - both, differ, same timestamp    -> conflict (needs explicit resolution)
func ComputeDelta(local, remote models.NoteManifest) models.SyncDelta {
	localMap := local.PathMap()
	remoteMap := remote.PathMap()

	paths := make([]string, 0, len(localMap)+len(remoteMap))
	seen := make(map[string]struct{}, len(localMap)+len(remoteMap))
	for path := range localMap {
		paths = append(paths, path)
		seen[path] = struct{}{}
	}
	for path := range remoteMap {
		if _, ok := seen[path]; !ok {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	delta := models.SyncDelta{
		ToSend:    []models.NoteManifestEntry{},
		ToReceive: []models.NoteManifestEntry{},
		Conflicts: []models.SyncConflict{},
	}

	for _, path := range paths {
		localEntry, hasLocal := localMap[path]
		remoteEntry, hasRemote := remoteMap[path]

		switch {
		case hasLocal && !hasRemote:
			delta.ToSend = append(delta.ToSend, localEntry)

		case !hasLocal && hasRemote:
			delta.ToReceive = append(delta.ToReceive, remoteEntry)

		case localEntry.ContentHash == remoteEntry.ContentHash:
			// Already converged.

		case localEntry.UpdatedAt > remoteEntry.UpdatedAt:
			delta.ToSend = append(delta.ToSend, localEntry)

		case remoteEntry.UpdatedAt > localEntry.UpdatedAt:
			delta.ToReceive = append(delta.ToReceive, remoteEntry)

		default:
			// Equal timestamps, different content. Recency is genuinely
			// ambiguous; hand the decision to the user.
			delta.Conflicts = append(delta.Conflicts, models.SyncConflict{
				Path:        path,
				LocalEntry:  localEntry,
				RemoteEntry: remoteEntry,
			})
		}
	}

	return delta
}
