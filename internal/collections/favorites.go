package collections

import (
	"context"
	"fmt"

	"github.com/gamify-app/gamify/internal/backend"
	"github.com/gamify-app/gamify/internal/models"
	"github.com/gamify-app/gamify/internal/shared"
)

// FavoritePlaylist stars a playlist for the current user.
func (m *Manager) FavoritePlaylist(ctx context.Context, playlistID string) error {
	user := m.sessions.CurrentUser()
	if user == nil {
		return shared.ErrNotAuthenticated
	}

	playlist, err := m.findPlaylist(ctx, playlistID)
	if err != nil {
		return err
	}

	_, err = m.client.UpsertRow(ctx, favoritePlaylistsTable, backend.Row{
		"id":          user.ID + ":" + playlistID,
		"user_id":     user.ID,
		"playlist_id": playlistID,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}

	upsertLocal(m.favLists, playlist)
	return nil
}

// UnfavoritePlaylist removes a playlist from the user's favorites.
func (m *Manager) UnfavoritePlaylist(ctx context.Context, playlistID string) error {
	user := m.sessions.CurrentUser()
	if user == nil {
		return shared.ErrNotAuthenticated
	}

	err := m.client.DeleteRow(ctx, favoritePlaylistsTable, backend.Predicate{
		"user_id":     user.ID,
		"playlist_id": playlistID,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}

	removeLocal(m.favLists, playlistID)
	return nil
}

// IsFavoritePlaylist reports whether the playlist is starred. The cached
// favorites answer without a network call; the backend is only consulted when
// the cache is cold.
func (m *Manager) IsFavoritePlaylist(ctx context.Context, playlistID string) (bool, error) {
	if m.sessions.CurrentUser() == nil {
		return false, nil
	}

	if cached, ok := m.favLists.peek(); ok {
		for _, p := range cached {
			if p.ID == playlistID {
				return true, nil
			}
		}
		return false, nil
	}

	favorites, err := m.FavoritePlaylists(ctx, false)
	if err != nil {
		return false, err
	}
	for _, p := range favorites {
		if p.ID == playlistID {
			return true, nil
		}
	}
	return false, nil
}

// FavoriteTrack stars a track. The full track payload is stored on the
// favorite row so the favorite outlives its source playlist.
func (m *Manager) FavoriteTrack(ctx context.Context, track models.Track) error {
	user := m.sessions.CurrentUser()
	if user == nil {
		return shared.ErrNotAuthenticated
	}
	if err := track.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if track.ID == "" {
		return fmt.Errorf("%w: track id is required", shared.ErrInvalidInput)
	}

	_, err := m.client.UpsertRow(ctx, favoriteTracksTable, backend.Row{
		"id":       user.ID + ":" + track.ID,
		"user_id":  user.ID,
		"track_id": track.ID,
		"track":    track.Row(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}

	if _, ok := m.favSongs.peek(); ok {
		m.favSongs.update(func(tracks []models.Track) []models.Track {
			for i := range tracks {
				if tracks[i].ID == track.ID {
					tracks[i] = track
					return tracks
				}
			}
			return append(tracks, track)
		})
	}
	return nil
}

// UnfavoriteTrack removes a track from the user's favorites.
func (m *Manager) UnfavoriteTrack(ctx context.Context, trackID string) error {
	user := m.sessions.CurrentUser()
	if user == nil {
		return shared.ErrNotAuthenticated
	}

	err := m.client.DeleteRow(ctx, favoriteTracksTable, backend.Predicate{
		"user_id":  user.ID,
		"track_id": trackID,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}

	if _, ok := m.favSongs.peek(); ok {
		m.favSongs.update(func(tracks []models.Track) []models.Track {
			out := tracks[:0]
			for _, t := range tracks {
				if t.ID != trackID {
					out = append(out, t)
				}
			}
			return out
		})
	}
	return nil
}

// IsFavoriteTrack reports whether the track is starred, checking the cache
// before the backend.
func (m *Manager) IsFavoriteTrack(ctx context.Context, trackID string) (bool, error) {
	if m.sessions.CurrentUser() == nil {
		return false, nil
	}

	if cached, ok := m.favSongs.peek(); ok {
		for _, t := range cached {
			if t.ID == trackID {
				return true, nil
			}
		}
		return false, nil
	}

	favorites, err := m.FavoriteTracks(ctx, false)
	if err != nil {
		return false, err
	}
	for _, t := range favorites {
		if t.ID == trackID {
			return true, nil
		}
	}
	return false, nil
}

// findPlaylist resolves a playlist of any type, from cache when possible.
func (m *Manager) findPlaylist(ctx context.Context, playlistID string) (models.Playlist, error) {
	if cached, ok := m.library.peek(); ok {
		for _, p := range cached {
			if p.ID == playlistID {
				return p, nil
			}
		}
	}

	playlists, err := m.fetchPlaylists(ctx, backend.Predicate{"id": playlistID})
	if err != nil {
		return models.Playlist{}, err
	}
	if len(playlists) == 0 {
		return models.Playlist{}, shared.ErrPlaylistNotFound
	}
	return playlists[0], nil
}
