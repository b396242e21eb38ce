package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/ChernOS/internal/events"
)

// SQLitePreferenceRepository implements PreferenceRepository for SQLite.
type SQLitePreferenceRepository struct {
	db  *sql.DB
	key string
}

func NewSQLitePreferenceRepository(db *sql.DB) *SQLitePreferenceRepository {
	return &SQLitePreferenceRepository{db: db, key: PreferencesKey}
}

func (r *SQLitePreferenceRepository) Load(ctx context.Context) (Preferences, error) {
	var blob string
	err := r.db.QueryRowContext(ctx, `SELECT blob FROM preferences WHERE key = ?`, r.key).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultPreferences(), nil
		}
		return DefaultPreferences(), fmt.Errorf("failed to load preferences: %w", err)
	}
	return DecodePreferences([]byte(blob))
}

func (r *SQLitePreferenceRepository) Save(ctx context.Context, prefs Preferences) error {
	blob, err := EncodePreferences(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	query := `
		INSERT INTO preferences (key, blob, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			blob=excluded.blob,
			last_updated=excluded.last_updated
	`
	if _, err := r.db.ExecContext(ctx, query, r.key, string(blob), time.Now()); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// ---------------------------------------------------------
// SQLiteJournalRepository
// ---------------------------------------------------------

// SQLiteJournalRepository implements JournalRepository for SQLite.
// It also satisfies events.LinePersister.
type SQLiteJournalRepository struct {
	db *sql.DB
}

func NewSQLiteJournalRepository(db *sql.DB) *SQLiteJournalRepository {
	return &SQLiteJournalRepository{db: db}
}

func (r *SQLiteJournalRepository) AppendLine(ctx context.Context, entry events.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	query := `INSERT INTO journal (id, timestamp, line) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.Timestamp.UTC(), entry.Line); err != nil {
		return fmt.Errorf("failed to append journal line: %w", err)
	}
	return nil
}

func (r *SQLiteJournalRepository) Recent(ctx context.Context, limit int) ([]events.JournalEntry, error) {
	if limit <= 0 {
		limit = events.DefaultJournalLimit
	}

	query := `SELECT id, timestamp, line FROM journal ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []events.JournalEntry
	for rows.Next() {
		var e events.JournalEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Line); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
