package main

import (
	"context"
	"fmt"

	"github.com/gamify-app/gamify/internal/shared"
	"github.com/urfave/cli/v3"
)

// FavoritesList lists favorite playlists, or favorite tracks with --tracks.
func (r *Runner) FavoritesList(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	if cmd.Bool("tracks") {
		tracks, err := r.collections.FavoriteTracks(ctx, false)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(tracks, true)
		}
		if len(tracks) == 0 {
			r.writePlain("No favorite tracks\n")
			return nil
		}
		for _, t := range tracks {
			line := fmt.Sprintf("%s  %s", t.ID, t.Title)
			if t.Game != "" {
				line = fmt.Sprintf("%s (%s)", line, t.Game)
			}
			r.writePlain("%s\n", line)
		}
		return nil
	}

	playlists, err := r.collections.FavoritePlaylists(ctx, false)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}
	if len(playlists) == 0 {
		r.writePlain("No favorite playlists\n")
		return nil
	}
	for _, pl := range playlists {
		r.writePlain("%s  %s (%d tracks)\n", pl.ID, pl.Title, len(pl.Tracks))
	}
	return nil
}

// FavoritesAdd favorites a playlist or a track.
func (r *Runner) FavoritesAdd(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.String("playlist")
	trackID := cmd.String("track")
	if (playlistID == "") == (trackID == "") {
		return fmt.Errorf("%w: exactly one of --playlist or --track is required", shared.ErrInvalidInput)
	}

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	if playlistID != "" {
		if err := r.collections.FavoritePlaylist(ctx, playlistID); err != nil {
			return err
		}
		r.writePlain("✓ Favorited playlist %s\n", playlistID)
		return nil
	}

	track, err := r.findTrack(ctx, trackID)
	if err != nil {
		return err
	}
	if err := r.collections.FavoriteTrack(ctx, *track); err != nil {
		return err
	}
	r.writePlain("✓ Favorited track %q\n", track.Title)
	return nil
}

// FavoritesRemove removes a playlist or track favorite.
func (r *Runner) FavoritesRemove(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.String("playlist")
	trackID := cmd.String("track")
	if (playlistID == "") == (trackID == "") {
		return fmt.Errorf("%w: exactly one of --playlist or --track is required", shared.ErrInvalidInput)
	}

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	if playlistID != "" {
		if err := r.collections.UnfavoritePlaylist(ctx, playlistID); err != nil {
			return err
		}
		r.writePlain("✓ Unfavorited playlist %s\n", playlistID)
		return nil
	}

	if err := r.collections.UnfavoriteTrack(ctx, trackID); err != nil {
		return err
	}
	r.writePlain("✓ Unfavorited track %s\n", trackID)
	return nil
}
