package main

import (
	"context"
	"fmt"

	"github.com/gamify-app/gamify/internal/server"
	"github.com/gamify-app/gamify/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin signs in with email/password, or runs the browser OAuth flow
// when --provider is set.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if provider := cmd.String("provider"); provider != "" {
		return r.providerLogin(ctx, provider)
	}

	email := cmd.String("email")
	password := cmd.String("password")
	if email == "" || password == "" {
		return fmt.Errorf("%w: --email and --password are required", shared.ErrMissingArgument)
	}

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	if err := r.sessions.SignIn(ctx, email, password); err != nil {
		return err
	}

	user := r.sessions.CurrentUser()
	if user == nil {
		return shared.ErrAuthFailed
	}
	r.writePlain("✓ Signed in as %s\n", user.Email)
	return nil
}

// providerLogin runs the loopback OAuth flow and adopts the resulting tokens.
func (r *Runner) providerLogin(ctx context.Context, provider string) error {
	if r.setSession == nil {
		return fmt.Errorf("%w: backend url and api key must be set in config.toml", shared.ErrMissingConfig)
	}

	oauthConfig := r.config.OAuth
	oauthConfig.Provider = provider

	flow, err := server.NewFlow(r.config.Backend.URL, oauthConfig, r.logger)
	if err != nil {
		return err
	}

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	token, err := flow.Run(ctx, func(authURL string) {
		r.writePlain("Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
		r.writePlain("Waiting for the callback...\n")
	})
	if err != nil {
		return err
	}

	refreshToken, _ := token.Extra("refresh_token").(string)
	if _, err := r.setSession(ctx, token.AccessToken, refreshToken); err != nil {
		return fmt.Errorf("failed to adopt provider session: %w", err)
	}

	if user := r.sessions.CurrentUser(); user != nil {
		r.writePlain("✓ Signed in as %s via %s\n", user.Email, provider)
	} else {
		r.writePlain("✓ Signed in via %s\n", provider)
	}
	return nil
}

// AuthSignup creates a new account and claims a username.
func (r *Runner) AuthSignup(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	email := cmd.String("email")
	if err := r.sessions.SignUp(ctx, email, cmd.String("password"), cmd.String("username")); err != nil {
		return err
	}

	if r.sessions.CurrentUser() == nil {
		r.writePlain("Account created. Check %s for a confirmation link, then run 'gamify auth login'.\n", email)
		return nil
	}
	r.writePlain("✓ Account created and signed in as %s\n", email)
	return nil
}

// AuthLogout revokes the session everywhere.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	if r.sessions.CurrentUser() == nil {
		r.writePlain("Already signed out\n")
		return nil
	}
	if err := r.sessions.SignOut(ctx); err != nil {
		return err
	}
	r.writePlain("✓ Signed out\n")
	return nil
}

// AuthStatus reports the current session and profile.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	user := r.sessions.CurrentUser()
	profile := r.sessions.Profile()

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"signed_in": user != nil,
			"user":      user,
			"profile":   profile,
		}, true)
	}

	if user == nil {
		r.writePlain("Signed out\n")
		return nil
	}

	r.writePlain("Signed in as %s\n", user.Email)
	if profile.HasUsername() {
		r.writePlain("Username: %s\n", profile.Username)
	}
	if profile != nil && profile.AvatarURL != "" {
		r.writePlain("Avatar: %s\n", profile.AvatarURL)
	}
	return nil
}

// AuthRefresh forces a token refresh outside the periodic cadence.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	signedIn, err := r.sessions.Refresh(ctx)
	if err != nil {
		return err
	}
	if !signedIn {
		r.writePlain("Signed out\n")
		return nil
	}
	r.writePlain("✓ Session refreshed\n")
	return nil
}

// AuthResetPassword sends a password reset email.
func (r *Runner) AuthResetPassword(ctx context.Context, cmd *cli.Command) error {
	email := cmd.StringArg("email")
	if email == "" {
		return fmt.Errorf("%w: email is required", shared.ErrMissingArgument)
	}

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	if err := r.sessions.ResetPassword(ctx, email); err != nil {
		return err
	}
	r.writePlain("✓ Reset email sent to %s\n", email)
	return nil
}

// AuthSetPassword changes the signed-in account's password.
func (r *Runner) AuthSetPassword(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	if err := r.sessions.UpdatePassword(ctx, cmd.String("password")); err != nil {
		return err
	}
	r.writePlain("✓ Password updated\n")
	return nil
}
