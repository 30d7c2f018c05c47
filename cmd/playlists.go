package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gamify-app/gamify/internal/formatter"
	"github.com/gamify-app/gamify/internal/models"
	"github.com/gamify-app/gamify/internal/shared"
	"github.com/urfave/cli/v3"
)

// PlaylistsList lists playlists served from the collection cache, or from
// the offline snapshot with --offline.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	var playlists []models.Playlist
	var err error

	if cmd.Bool("offline") {
		if r.snapshots == nil {
			return fmt.Errorf("%w: continuity database is not configured", shared.ErrMissingConfig)
		}
		playlists, err = r.snapshots.ListCollection("library")
		if err != nil {
			return err
		}
	} else {
		if err := r.ensureStarted(ctx); err != nil {
			return err
		}

		force := cmd.Bool("force")
		switch kind := cmd.String("type"); kind {
		case "all", "":
			playlists, err = r.collections.Library(ctx, force)
		case "game":
			playlists, err = r.collections.GamePlaylists(ctx, force)
		case "general":
			playlists, err = r.collections.GeneralPlaylists(ctx, force)
		default:
			return fmt.Errorf("%w: unknown playlist type %q", shared.ErrInvalidInput, kind)
		}
		if err != nil {
			return err
		}

		// Keep a local copy so --offline works without the backend.
		if cmd.String("type") == "all" && r.snapshots != nil && len(playlists) > 0 {
			if err := r.snapshots.SaveCollection("library", playlists); err != nil {
				r.logger.Warn("failed to snapshot library", "error", err)
			}
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	if len(playlists) == 0 {
		r.writePlain("No playlists\n")
		return nil
	}

	for _, pl := range playlists {
		line := fmt.Sprintf("%s  %s (%d tracks)", pl.ID, pl.Title, len(pl.Tracks))
		if pl.Game != "" {
			line = fmt.Sprintf("%s [%s]", line, pl.Game)
		}
		r.writePlain("%s\n", line)
	}
	return nil
}

// PlaylistsShow prints one playlist with its track listing.
func (r *Runner) PlaylistsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrMissingArgument)
	}

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	playlist, err := r.findPlaylist(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlist, true)
	}

	r.writePlainHeader(playlist.Title)
	if playlist.Game != "" {
		r.writePlain("Game: %s\n", playlist.Game)
	}
	if playlist.Description != "" {
		r.writePlain("%s\n", playlist.Description)
	}
	r.writePlain("\n")
	for i, t := range playlist.Tracks {
		line := fmt.Sprintf("%d. %s", i+1, t.Title)
		if t.Composer != "" {
			line = fmt.Sprintf("%s - %s", line, t.Composer)
		}
		if t.Duration != "" {
			line = fmt.Sprintf("%s [%s]", line, t.Duration)
		}
		r.writePlain("%s\n", line)
	}
	return nil
}

// PlaylistsCreate creates a playlist owned by the signed-in user.
func (r *Runner) PlaylistsCreate(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	created, err := r.collections.CreatePlaylist(ctx, models.Playlist{
		Title:       cmd.String("title"),
		Description: cmd.String("description"),
		Game:        cmd.String("game"),
	})
	if err != nil {
		return err
	}

	r.writePlain("✓ Created playlist %s (%s)\n", created.Title, created.ID)
	return nil
}

// PlaylistsDelete deletes an owned playlist.
func (r *Runner) PlaylistsDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrMissingArgument)
	}

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	if err := r.collections.DeletePlaylist(ctx, id); err != nil {
		return err
	}
	r.writePlain("✓ Deleted playlist %s\n", id)
	return nil
}

// PlaylistsAddTrack appends a track to an owned playlist.
func (r *Runner) PlaylistsAddTrack(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	track := models.Track{
		Title:    cmd.String("title"),
		Game:     cmd.String("game"),
		Composer: cmd.String("composer"),
		Duration: cmd.String("duration"),
		AudioURL: cmd.String("audio-url"),
	}

	if audioPath := cmd.String("audio-file"); audioPath != "" {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return fmt.Errorf("failed to read audio file: %w", err)
		}
		url, err := r.collections.UploadTrackAudio(ctx, filepath.Base(audioPath), data)
		if err != nil {
			return err
		}
		track.AudioURL = url
	}

	updated, err := r.collections.AddTrack(ctx, cmd.String("playlist"), track)
	if err != nil {
		return err
	}

	r.writePlain("✓ Added %q to %s (%d tracks)\n", track.Title, updated.Title, len(updated.Tracks))
	return nil
}

// PlaylistsRemoveTrack removes a track from an owned playlist.
func (r *Runner) PlaylistsRemoveTrack(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	updated, err := r.collections.RemoveTrack(ctx, cmd.String("playlist"), cmd.String("track"))
	if err != nil {
		return err
	}

	r.writePlain("✓ Removed track from %s (%d tracks)\n", updated.Title, len(updated.Tracks))
	return nil
}

// PlaylistsExport writes one playlist to disk in the chosen format.
func (r *Runner) PlaylistsExport(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	playlist, err := r.findPlaylist(ctx, id)
	if err != nil {
		return err
	}

	file, err := formatter.WriteExport(playlist, format, cmd.String("output"))
	if err != nil {
		return err
	}
	r.writePlain("✓ Exported %s to %s\n", playlist.Title, file)
	return nil
}

// findPlaylist resolves a playlist by id from the cached library.
func (r *Runner) findPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	playlists, err := r.collections.Library(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range playlists {
		if playlists[i].ID == id {
			return &playlists[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
}

// findTrack resolves a track by id from the cached library.
func (r *Runner) findTrack(ctx context.Context, id string) (*models.Track, error) {
	playlists, err := r.collections.Library(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range playlists {
		for j := range playlists[i].Tracks {
			if playlists[i].Tracks[j].ID == id {
				return &playlists[i].Tracks[j], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
}
