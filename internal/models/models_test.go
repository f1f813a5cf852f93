package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairingInfoExpired(t *testing.T) {
	now := time.Now()
	info := PairingInfo{ExpiresAt: now.Add(time.Minute).UnixMilli()}

	assert.False(t, info.Expired(now))
	assert.True(t, info.Expired(now.Add(2*time.Minute)))
}

func TestManifestEntryWireFormat(t *testing.T) {
	entry := NoteManifestEntry{
		Path:        "a/b.md",
		Title:       "B",
		UpdatedAt:   1700000000000,
		ContentHash: "sha256:abc",
		Size:        12,
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	// Keys are camelCase and timestamps epoch milliseconds; both sides
	// of the wire depend on this.
	assert.JSONEq(t, `{
		"path": "a/b.md",
		"title": "B",
		"updatedAt": 1700000000000,
		"contentHash": "sha256:abc",
		"size": 12
	}`, string(data))
}

func TestPathErrorUnwrap(t *testing.T) {
	err := &PathError{Op: "read", Path: "x.md", Err: ErrNoteNotFound}

	assert.ErrorIs(t, err, ErrNoteNotFound)
	assert.Contains(t, err.Error(), "x.md")
}

func TestTransportErrorUnwrap(t *testing.T) {
	err := &TransportError{Transport: TransportBLE, Phase: "start", Err: ErrBLEUnavailable}

	assert.ErrorIs(t, err, ErrBLEUnavailable)
	assert.Contains(t, err.Error(), "ble")
}

func TestSentinelsDistinct(t *testing.T) {
	sentinels := []error{
		ErrNoPairing, ErrPairingExpired, ErrPairingMismatch,
		ErrInvalidToken, ErrNoteNotFound, ErrTransportRunning,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b))
			}
		}
	}
}
