// Package state persists sync round history in SQLite.
package state

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/models"
)

// HistoryStore records completed sync rounds per paired device.
type HistoryStore struct {
	db     *sql.DB
	logger *events.Logger
}

// HistoryEntry is one recorded sync round.
type HistoryEntry struct {
	ID            int64
	DeviceID      string
	DeviceName    string
	Transport     models.TransportType
	Success       bool
	SentCount     int
	ReceivedCount int
	ConflictCount int
	Errors        []string
	DurationMS    int64
	CompletedAt   time.Time
}

// NewHistoryStore opens (or creates) the history database.
func NewHistoryStore(dbPath string, logger *events.Logger) (*HistoryStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	store := &HistoryStore{
		db:     db,
		logger: logger.WithField("component", "history_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history database: %w", err)
	}

	return store, nil
}

func (s *HistoryStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sync_history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        device_id TEXT NOT NULL,
        device_name TEXT NOT NULL,
        transport TEXT NOT NULL,
        success INTEGER NOT NULL,
        sent_count INTEGER NOT NULL DEFAULT 0,
        received_count INTEGER NOT NULL DEFAULT 0,
        conflict_count INTEGER NOT NULL DEFAULT 0,
        errors TEXT NOT NULL DEFAULT '',
        duration_ms INTEGER NOT NULL DEFAULT 0,
        completed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_sync_history_device ON sync_history(device_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Record persists one completed sync round.
func (s *HistoryStore) Record(deviceID, deviceName string, transport models.TransportType, res models.SyncResult) error {
	s.logger.WithFields(map[string]interface{}{
		"device_id": deviceID,
		"success":   res.Success,
		"sent":      res.SentCount,
		"received":  res.ReceivedCount,
	}).Debug("Recording sync round")

	_, err := s.db.Exec(`
        INSERT INTO sync_history
            (device_id, device_name, transport, success, sent_count, received_count, conflict_count, errors, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, deviceID, deviceName, string(transport), res.Success,
		res.SentCount, res.ReceivedCount, res.ConflictCount,
		strings.Join(res.Errors, "\n"), res.DurationMS)
	if err != nil {
		return fmt.Errorf("insert history row: %w", err)
	}

	return nil
}

// Recent returns the latest rounds, newest first.
func (s *HistoryStore) Recent(limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(`
        SELECT id, device_id, device_name, transport, success,
               sent_count, received_count, conflict_count, errors, duration_ms, completed_at
        FROM sync_history
        ORDER BY completed_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var transport, errorsText string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.DeviceName, &transport, &e.Success,
			&e.SentCount, &e.ReceivedCount, &e.ConflictCount, &errorsText, &e.DurationMS, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Transport = models.TransportType(transport)
		if errorsText != "" {
			e.Errors = strings.Split(errorsText, "\n")
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}
