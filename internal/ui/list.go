package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/gamify-app/gamify/internal/models"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist models.Playlist
	favorite bool
}

func (i playlistItem) FilterValue() string { return i.playlist.Title }

func (i playlistItem) Title() string {
	if i.favorite {
		return "★ " + i.playlist.Title
	}
	return i.playlist.Title
}

func (i playlistItem) Description() string {
	desc := fmt.Sprintf("%d tracks", len(i.playlist.Tracks))
	if i.playlist.Game != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.Game)
	} else if i.playlist.Description != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.Description)
	}
	return desc
}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track    models.Track
	favorite bool
}

func (i trackItem) FilterValue() string { return i.track.Title }

func (i trackItem) Title() string {
	if i.favorite {
		return "★ " + i.track.Title
	}
	return i.track.Title
}

func (i trackItem) Description() string {
	desc := i.track.Composer
	if desc == "" {
		desc = i.track.Game
	} else if i.track.Game != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Game)
	}
	if i.track.Duration != "" {
		desc = fmt.Sprintf("%s [%s]", desc, i.track.Duration)
	}
	return desc
}
