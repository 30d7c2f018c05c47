package collections

import (
	"context"
	"fmt"

	"github.com/gamify-app/gamify/internal/models"
	"github.com/gamify-app/gamify/internal/shared"
)

// starterPlaylists is the set created for a user who has none of their own.
var starterPlaylists = []models.Playlist{
	{
		Title:       "RPG Classics",
		Description: "Town themes and battle music from the golden age of role-playing games",
		Type:        models.TypeGeneral,
	},
	{
		Title:       "Boss Rush",
		Description: "High-tempo tracks for when the health bar fills the screen",
		Type:        models.TypeGeneral,
	},
	{
		Title:       "Epic Orchestral",
		Description: "Full-orchestra scores from big-budget adventures",
		Type:        models.TypeGeneral,
	},
	{
		Title:       "Retro 8-Bit",
		Description: "Chiptune favorites from the cartridge era",
		Type:        models.TypeGeneral,
	},
}

// seedStarterPlaylists writes the starter set for userID and returns the
// created playlists.
func (m *Manager) seedStarterPlaylists(ctx context.Context, userID string) ([]models.Playlist, error) {
	created := make([]models.Playlist, 0, len(starterPlaylists))
	for _, p := range starterPlaylists {
		p.ID = shared.GenerateID()
		p.UserID = userID
		p.Tracks = []models.Track{}

		row, err := m.client.UpsertRow(ctx, playlistsTable, p.Row())
		if err != nil {
			return created, fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
		}
		saved, err := models.PlaylistFromRow(row)
		if err != nil {
			return created, err
		}
		created = append(created, saved)
	}

	m.logger.Info("seeded starter playlists", "user", userID, "count", len(created))
	return created, nil
}
