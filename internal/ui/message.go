package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gamify-app/gamify/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgLibraryFetched MsgKind = iota
	MsgFavoriteToggled
)

// libraryPayload carries the library plus favorite lookup sets.
type libraryPayload struct {
	playlists         []models.Playlist
	favoritePlaylists map[string]bool
	favoriteTracks    map[string]bool
	err               error
}

// togglePayload reports the outcome of a favorite toggle.
type togglePayload struct {
	id       string
	isTrack  bool
	favorite bool
	err      error
}

// libraryFetchedMsg is the constructor for [MsgLibraryFetched]
func libraryFetchedMsg(playlists []models.Playlist, favPlaylists, favTracks map[string]bool, err error) Msg {
	return Msg{
		kind: MsgLibraryFetched,
		data: libraryPayload{
			playlists:         playlists,
			favoritePlaylists: favPlaylists,
			favoriteTracks:    favTracks,
			err:               err,
		},
	}
}

// favoriteToggledMsg is the constructor for [MsgFavoriteToggled]
func favoriteToggledMsg(id string, isTrack, favorite bool, err error) Msg {
	return Msg{
		kind: MsgFavoriteToggled,
		data: togglePayload{id: id, isTrack: isTrack, favorite: favorite, err: err},
	}
}
