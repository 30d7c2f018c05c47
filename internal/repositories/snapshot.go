package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gamify-app/gamify/internal/models"
)

// SnapshotRepository caches playlist contents locally so exports and the
// last-known library survive without a connection.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a SnapshotRepository with the given database connection
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// SaveCollection replaces the snapshot of a named collection with the given
// playlists.
func (r *SnapshotRepository) SaveCollection(collection string, playlists []models.Playlist) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM playlist_snapshots WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	query := `
		INSERT INTO playlist_snapshots (id, collection, title, description, image, type, game, user_id, tracks, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()

	for _, p := range playlists {
		tracks, err := json.Marshal(p.Tracks)
		if err != nil {
			return fmt.Errorf("failed to encode tracks for %s: %w", p.ID, err)
		}
		_, err = tx.Exec(query, p.ID, collection, p.Title, p.Description, p.Image, p.Type, p.Game, p.UserID, string(tracks), now)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// ListCollection returns the snapshotted playlists for a named collection.
func (r *SnapshotRepository) ListCollection(collection string) ([]models.Playlist, error) {
	query := `
		SELECT id, title, description, image, type, game, user_id, tracks
		FROM playlist_snapshots
		WHERE collection = ?
		ORDER BY title
	`

	rows, err := r.db.Query(query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		var p models.Playlist
		var description, image, game, userID sql.NullString
		var tracksJSON string

		err := rows.Scan(&p.ID, &p.Title, &description, &image, &p.Type, &game, &userID, &tracksJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}

		p.Description = description.String
		p.Image = image.String
		p.Game = game.String
		p.UserID = userID.String

		if err := json.Unmarshal([]byte(tracksJSON), &p.Tracks); err != nil {
			return nil, fmt.Errorf("failed to decode tracks for %s: %w", p.ID, err)
		}
		playlists = append(playlists, p)
	}

	return playlists, rows.Err()
}

// SavedAt returns when the collection was last snapshotted, or the zero time
// when it never was.
func (r *SnapshotRepository) SavedAt(collection string) (time.Time, error) {
	var savedAt time.Time
	err := r.db.QueryRow(
		"SELECT saved_at FROM playlist_snapshots WHERE collection = ? ORDER BY saved_at DESC LIMIT 1", collection,
	).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query snapshot age: %w", err)
	}
	return savedAt, nil
}
