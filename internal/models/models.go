package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Playlist types understood by the cache partitioning.
const (
	TypeGame    = "game"
	TypeGeneral = "general"
)

// Track represents a single soundtrack entry inside a playlist.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Game     string `json:"game,omitempty"`
	Composer string `json:"composer,omitempty"`
	Duration string `json:"duration,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}

// Playlist represents a game-soundtrack playlist.
//
// Type is either "game" (public, curated per game) or "general"
// (user-owned). Tracks are stored inline on the playlist row.
type Playlist struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Image       string  `json:"image,omitempty"`
	Type        string  `json:"type"`
	Game        string  `json:"game,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	Tracks      []Track `json:"tracks"`
}

// Profile is the row attached to an authenticated user.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// HasUsername reports whether the profile carries a non-empty username.
//
// Presence of the profile row alone is not enough.
func (p *Profile) HasUsername() bool {
	return p != nil && p.Username != ""
}

// Validate checks that a playlist can be written to the backend.
func (p *Playlist) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("playlist title is required")
	}
	if p.Type != TypeGame && p.Type != TypeGeneral {
		return fmt.Errorf("playlist type must be %q or %q, got %q", TypeGame, TypeGeneral, p.Type)
	}
	return nil
}

// Validate checks that a track can be added to a playlist.
func (t *Track) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("track title is required")
	}
	return nil
}

// FindTrack returns the track with the given id, or nil.
func (p *Playlist) FindTrack(trackID string) *Track {
	for i := range p.Tracks {
		if p.Tracks[i].ID == trackID {
			return &p.Tracks[i]
		}
	}
	return nil
}

// PlaylistFromRow decodes a backend row into a Playlist.
func PlaylistFromRow(row map[string]any) (Playlist, error) {
	var p Playlist
	if err := decodeRow(row, &p); err != nil {
		return Playlist{}, fmt.Errorf("failed to decode playlist row: %w", err)
	}
	return p, nil
}

// TrackFromRow decodes a backend row into a Track.
func TrackFromRow(row map[string]any) (Track, error) {
	var t Track
	if err := decodeRow(row, &t); err != nil {
		return Track{}, fmt.Errorf("failed to decode track row: %w", err)
	}
	return t, nil
}

// ProfileFromRow decodes a backend row into a Profile.
func ProfileFromRow(row map[string]any) (Profile, error) {
	var p Profile
	if err := decodeRow(row, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile row: %w", err)
	}
	return p, nil
}

// Row encodes the playlist as a backend row.
func (p *Playlist) Row() map[string]any {
	return encodeRow(p)
}

// Row encodes the track as a backend row.
func (t *Track) Row() map[string]any {
	return encodeRow(t)
}

// Row encodes the profile as a backend row.
func (p *Profile) Row() map[string]any {
	return encodeRow(p)
}

func decodeRow(row map[string]any, dst any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func encodeRow(src any) map[string]any {
	data, err := json.Marshal(src)
	if err != nil {
		return map[string]any{}
	}
	var row map[string]any
	if err := json.Unmarshal(data, &row); err != nil {
		return map[string]any{}
	}
	return row
}
