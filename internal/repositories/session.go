package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gamify-app/gamify/internal/backend"
)

// SessionRepository persists the single saved session marker.
//
// The table holds at most one row; saving replaces whatever was there. A
// missing row is not an error, Load reports it as (nil, nil) per the
// backend.TokenStore contract.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a SessionRepository with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Load returns the saved session, or (nil, nil) when none is saved.
func (r *SessionRepository) Load() (*backend.Session, error) {
	query := `
		SELECT user_id, access_token, refresh_token, expires_at
		FROM saved_sessions
		WHERE id = 1
	`

	var userJSON, accessToken, refreshToken string
	var expiresAt sql.NullTime
	err := r.db.QueryRow(query).Scan(&userJSON, &accessToken, &refreshToken, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load saved session: %w", err)
	}

	session := &backend.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if expiresAt.Valid {
		session.ExpiresAt = expiresAt.Time
	}
	if userJSON != "" {
		var user backend.User
		if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
			return nil, fmt.Errorf("failed to decode saved user: %w", err)
		}
		session.User = &user
	}

	return session, nil
}

// Save replaces the saved session marker.
func (r *SessionRepository) Save(session *backend.Session) error {
	if session == nil {
		return r.Clear()
	}

	userJSON := ""
	if session.User != nil {
		data, err := json.Marshal(session.User)
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
		userJSON = string(data)
	}

	query := `
		INSERT INTO saved_sessions (id, user_id, access_token, refresh_token, expires_at, saved_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			saved_at = excluded.saved_at
	`

	var expiresAt any
	if !session.ExpiresAt.IsZero() {
		expiresAt = session.ExpiresAt
	}

	_, err := r.db.Exec(query, userJSON, session.AccessToken, session.RefreshToken, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear removes the saved session marker. Clearing an empty table is a no-op.
func (r *SessionRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM saved_sessions WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to clear saved session: %w", err)
	}
	return nil
}
