package collections

import (
	"context"
	"fmt"

	"github.com/gamify-app/gamify/internal/backend"
	"github.com/gamify-app/gamify/internal/models"
	"github.com/gamify-app/gamify/internal/shared"
)

// CreatePlaylist writes a new user playlist and patches the local caches.
func (m *Manager) CreatePlaylist(ctx context.Context, playlist models.Playlist) (models.Playlist, error) {
	user := m.sessions.CurrentUser()
	if user == nil {
		return models.Playlist{}, shared.ErrNotAuthenticated
	}

	if playlist.Type == "" {
		playlist.Type = models.TypeGeneral
	}
	if err := playlist.Validate(); err != nil {
		return models.Playlist{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if playlist.ID == "" {
		playlist.ID = shared.GenerateID()
	}
	playlist.UserID = user.ID
	if playlist.Tracks == nil {
		playlist.Tracks = []models.Track{}
	}

	row, err := m.client.UpsertRow(ctx, playlistsTable, playlist.Row())
	if err != nil {
		return models.Playlist{}, fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}
	saved, err := models.PlaylistFromRow(row)
	if err != nil {
		return models.Playlist{}, err
	}

	upsertLocal(m.library, saved)
	if saved.Type == models.TypeGeneral {
		upsertLocal(m.general, saved)
	} else {
		upsertLocal(m.game, saved)
	}
	return saved, nil
}

// DeletePlaylist removes one of the user's playlists and drops it from every
// cache, favorites included.
func (m *Manager) DeletePlaylist(ctx context.Context, playlistID string) error {
	user := m.sessions.CurrentUser()
	if user == nil {
		return shared.ErrNotAuthenticated
	}
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrInvalidInput)
	}

	err := m.client.DeleteRow(ctx, playlistsTable, backend.Predicate{"id": playlistID, "user_id": user.ID})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}

	removeLocal(m.library, playlistID)
	removeLocal(m.general, playlistID)
	removeLocal(m.game, playlistID)
	removeLocal(m.favLists, playlistID)
	return nil
}

// AddTrack appends a track to one of the user's playlists.
func (m *Manager) AddTrack(ctx context.Context, playlistID string, track models.Track) (models.Playlist, error) {
	if err := track.Validate(); err != nil {
		return models.Playlist{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if track.ID == "" {
		track.ID = shared.GenerateID()
	}

	return m.mutatePlaylist(ctx, playlistID, func(p *models.Playlist) error {
		if p.FindTrack(track.ID) != nil {
			return nil
		}
		p.Tracks = append(p.Tracks, track)
		return nil
	})
}

// RemoveTrack removes a track from one of the user's playlists.
func (m *Manager) RemoveTrack(ctx context.Context, playlistID, trackID string) (models.Playlist, error) {
	return m.mutatePlaylist(ctx, playlistID, func(p *models.Playlist) error {
		for i := range p.Tracks {
			if p.Tracks[i].ID == trackID {
				p.Tracks = append(p.Tracks[:i], p.Tracks[i+1:]...)
				return nil
			}
		}
		return shared.ErrTrackNotFound
	})
}

// mutatePlaylist applies fn to the user's playlist, writes the whole row back
// and patches the caches with the saved copy.
func (m *Manager) mutatePlaylist(ctx context.Context, playlistID string, fn func(*models.Playlist) error) (models.Playlist, error) {
	user := m.sessions.CurrentUser()
	if user == nil {
		return models.Playlist{}, shared.ErrNotAuthenticated
	}

	playlist, err := m.findOwnPlaylist(ctx, playlistID, user.ID)
	if err != nil {
		return models.Playlist{}, err
	}

	if err := fn(&playlist); err != nil {
		return models.Playlist{}, err
	}

	row, err := m.client.UpsertRow(ctx, playlistsTable, playlist.Row())
	if err != nil {
		return models.Playlist{}, fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}
	saved, err := models.PlaylistFromRow(row)
	if err != nil {
		return models.Playlist{}, err
	}

	upsertLocal(m.library, saved)
	upsertLocal(m.general, saved)
	replaceLocal(m.favLists, saved)
	return saved, nil
}

// findOwnPlaylist resolves a playlist the user owns, from cache when
// possible.
func (m *Manager) findOwnPlaylist(ctx context.Context, playlistID, userID string) (models.Playlist, error) {
	if cached, ok := m.library.peek(); ok {
		for _, p := range cached {
			if p.ID == playlistID {
				if p.UserID != userID {
					return models.Playlist{}, shared.ErrPlaylistNotFound
				}
				// Detach the track list; the mutation must not reach
				// the cache until the backend write succeeds.
				p.Tracks = append([]models.Track(nil), p.Tracks...)
				return p, nil
			}
		}
	}

	playlists, err := m.fetchPlaylists(ctx, backend.Predicate{"id": playlistID, "user_id": userID})
	if err != nil {
		return models.Playlist{}, err
	}
	if len(playlists) == 0 {
		return models.Playlist{}, shared.ErrPlaylistNotFound
	}
	return playlists[0], nil
}

// upsertLocal replaces the playlist in the cached slice, or appends it when
// the owning collection already holds data. A cold cache stays cold.
func upsertLocal(e *entry[models.Playlist], p models.Playlist) {
	if _, ok := e.peek(); !ok {
		return
	}
	e.update(func(playlists []models.Playlist) []models.Playlist {
		for i := range playlists {
			if playlists[i].ID == p.ID {
				playlists[i] = p
				return playlists
			}
		}
		return append(playlists, p)
	})
}

// replaceLocal swaps the playlist in place when present, without adding it.
// Favorites only change through the favorite operations.
func replaceLocal(e *entry[models.Playlist], p models.Playlist) {
	if _, ok := e.peek(); !ok {
		return
	}
	e.update(func(playlists []models.Playlist) []models.Playlist {
		for i := range playlists {
			if playlists[i].ID == p.ID {
				playlists[i] = p
			}
		}
		return playlists
	})
}

// removeLocal drops the playlist from the cached slice.
func removeLocal(e *entry[models.Playlist], playlistID string) {
	if _, ok := e.peek(); !ok {
		return
	}
	e.update(func(playlists []models.Playlist) []models.Playlist {
		out := playlists[:0]
		for _, p := range playlists {
			if p.ID != playlistID {
				out = append(out, p)
			}
		}
		return out
	})
}
