package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gamify-app/gamify/internal/shared"
	"github.com/urfave/cli/v3"
)

// ProfileShow prints the signed-in user's profile.
func (r *Runner) ProfileShow(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	if r.sessions.CurrentUser() == nil {
		return shared.ErrNotAuthenticated
	}

	profile := r.sessions.Profile()
	if cmd.Bool("json") {
		return r.writeJSON(profile, true)
	}

	if !profile.HasUsername() {
		r.writePlain("No username set. Run 'gamify profile username <name>' to claim one.\n")
		return nil
	}
	r.writePlain("Username: %s\n", profile.Username)
	if profile.AvatarURL != "" {
		r.writePlain("Avatar: %s\n", profile.AvatarURL)
	}
	if !profile.UpdatedAt.IsZero() {
		r.writePlain("Updated: %s\n", profile.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// ProfileUsername claims or changes the public username.
func (r *Runner) ProfileUsername(ctx context.Context, cmd *cli.Command) error {
	username := cmd.StringArg("username")
	if username == "" {
		return fmt.Errorf("%w: username is required", shared.ErrMissingArgument)
	}

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	if err := r.sessions.UpdateUsername(ctx, username); err != nil {
		return err
	}
	r.writePlain("✓ Username set to %s\n", username)
	return nil
}

// ProfileAvatar uploads a profile picture from a local file.
func (r *Runner) ProfileAvatar(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: image path is required", shared.ErrMissingArgument)
	}

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	url, err := r.sessions.UploadProfilePicture(ctx, filepath.Base(path), data)
	if err != nil {
		return err
	}
	r.writePlain("✓ Avatar uploaded: %s\n", url)
	return nil
}
