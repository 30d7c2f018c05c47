package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gamify-app/gamify/internal/collections"
	"github.com/gamify-app/gamify/internal/models"
	"github.com/gamify-app/gamify/internal/session"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LibraryView ViewState = iota
	TrackListView
)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	sessions     *session.Manager
	collections  *collections.Manager
	width        int
	height       int
	playlistList list.Model
	playlists    []models.Playlist
	trackList    list.Model
	selected     *models.Playlist
	favPlaylists map[string]bool
	favTracks    map[string]bool
	status       string
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model over the session and collection managers.
func NewModel(ctx context.Context, sessions *session.Manager, cm *collections.Manager) *Model {
	playlistList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	playlistList.Title = "Gamify Library"

	return &Model{
		ctx:          ctx,
		view:         LibraryView,
		sessions:     sessions,
		collections:  cm,
		playlistList: playlistList,
		trackList:    list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0),
		favPlaylists: map[string]bool{},
		favTracks:    map[string]bool{},
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init initializes the TUI by loading the playlist library.
func (m *Model) Init() tea.Cmd {
	return m.fetchLibrary(false)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(msg.Width-4, msg.Height-8)
		m.trackList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.BlurMsg:
		m.collections.Suspend()
		return m, nil

	case tea.FocusMsg:
		m.collections.Resume(m.ctx)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case LibraryView:
			return m.handleLibraryKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		}

	case Msg:
		switch msg.kind {
		case MsgLibraryFetched:
			return m.handleLibraryFetched(msg.data.(libraryPayload))
		case MsgFavoriteToggled:
			return m.handleFavoriteToggled(msg.data.(togglePayload))
		}
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case LibraryView:
		return m.renderLibrary()
	case TrackListView:
		return m.renderTrackList()
	default:
		return ""
	}
}

func (m *Model) handleLibraryFetched(p libraryPayload) (tea.Model, tea.Cmd) {
	if p.err != nil {
		if len(m.playlists) == 0 {
			m.err = p.err
			return m, nil
		}
		m.status = styles.warn.Render(fmt.Sprintf("refresh failed: %v", p.err))
		return m, nil
	}

	m.status = ""
	m.playlists = p.playlists
	m.favPlaylists = p.favoritePlaylists
	m.favTracks = p.favoriteTracks

	items := make([]list.Item, len(p.playlists))
	for i, pl := range p.playlists {
		items[i] = playlistItem{playlist: pl, favorite: m.favPlaylists[pl.ID]}
	}
	m.playlistList = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.playlistList.Title = "Gamify Library"
	m.playlistList.SetSize(m.width-4, m.height-8)

	if m.view == TrackListView && m.selected != nil {
		fresh := m.findPlaylist(m.selected.ID)
		if fresh == nil {
			m.selected = nil
			m.view = LibraryView
		} else {
			m.selected = fresh
			m.openTrackList(fresh)
		}
	}
	return m, nil
}

func (m *Model) handleFavoriteToggled(p togglePayload) (tea.Model, tea.Cmd) {
	if p.err != nil {
		m.status = styles.warn.Render(fmt.Sprintf("favorite failed: %v", p.err))
		return m, nil
	}

	m.status = ""
	if p.isTrack {
		m.favTracks[p.id] = p.favorite
		if m.selected != nil {
			m.refreshTrackItems()
		}
	} else {
		m.favPlaylists[p.id] = p.favorite
		m.refreshPlaylistItems()
	}
	return m, nil
}

func (m *Model) handleLibraryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		m.status = styles.help.Render("refreshing...")
		return m, m.fetchLibrary(true)
	case key.Matches(msg, m.keys.favorite):
		if item, ok := m.playlistList.SelectedItem().(playlistItem); ok {
			return m, m.togglePlaylistFavorite(item.playlist.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.playlistList.SelectedItem().(playlistItem); ok {
			pl := item.playlist
			m.selected = &pl
			m.openTrackList(&pl)
			m.view = TrackListView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = LibraryView
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		m.status = styles.help.Render("refreshing...")
		return m, m.fetchLibrary(true)
	case key.Matches(msg, m.keys.favorite):
		if item, ok := m.trackList.SelectedItem().(trackItem); ok {
			return m, m.toggleTrackFavorite(item.track)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case LibraryView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchLibrary(force bool) tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.collections.Library(m.ctx, force)
		if err != nil {
			return libraryFetchedMsg(nil, nil, nil, err)
		}

		favPlaylists := map[string]bool{}
		if favs, err := m.collections.FavoritePlaylists(m.ctx, false); err == nil {
			for _, pl := range favs {
				favPlaylists[pl.ID] = true
			}
		}
		favTracks := map[string]bool{}
		if favs, err := m.collections.FavoriteTracks(m.ctx, false); err == nil {
			for _, t := range favs {
				favTracks[t.ID] = true
			}
		}
		return libraryFetchedMsg(playlists, favPlaylists, favTracks, nil)
	}
}

func (m *Model) togglePlaylistFavorite(playlistID string) tea.Cmd {
	next := !m.favPlaylists[playlistID]
	return func() tea.Msg {
		var err error
		if next {
			err = m.collections.FavoritePlaylist(m.ctx, playlistID)
		} else {
			err = m.collections.UnfavoritePlaylist(m.ctx, playlistID)
		}
		return favoriteToggledMsg(playlistID, false, next, err)
	}
}

func (m *Model) toggleTrackFavorite(track models.Track) tea.Cmd {
	next := !m.favTracks[track.ID]
	return func() tea.Msg {
		var err error
		if next {
			err = m.collections.FavoriteTrack(m.ctx, track)
		} else {
			err = m.collections.UnfavoriteTrack(m.ctx, track.ID)
		}
		return favoriteToggledMsg(track.ID, true, next, err)
	}
}

func (m *Model) openTrackList(pl *models.Playlist) {
	items := make([]list.Item, len(pl.Tracks))
	for i, t := range pl.Tracks {
		items[i] = trackItem{track: t, favorite: m.favTracks[t.ID]}
	}
	m.trackList = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.trackList.Title = fmt.Sprintf("Tracks in '%s'", pl.Title)
	m.trackList.SetSize(m.width-4, m.height-8)
}

func (m *Model) refreshPlaylistItems() {
	items := make([]list.Item, len(m.playlists))
	for i, pl := range m.playlists {
		items[i] = playlistItem{playlist: pl, favorite: m.favPlaylists[pl.ID]}
	}
	m.playlistList.SetItems(items)
}

func (m *Model) refreshTrackItems() {
	items := make([]list.Item, len(m.selected.Tracks))
	for i, t := range m.selected.Tracks {
		items[i] = trackItem{track: t, favorite: m.favTracks[t.ID]}
	}
	m.trackList.SetItems(items)
}

func (m *Model) findPlaylist(id string) *models.Playlist {
	for i := range m.playlists {
		if m.playlists[i].ID == id {
			return &m.playlists[i]
		}
	}
	return nil
}

func (m *Model) renderLibrary() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.favorite, m.keys.refresh, m.keys.quit}
	return m.renderList(m.playlistList.View(), helpKeys)
}

func (m *Model) renderTrackList() string {
	helpKeys := []key.Binding{m.keys.favorite, m.keys.back, m.keys.refresh, m.keys.quit}
	return m.renderList(m.trackList.View(), helpKeys)
}

func (m *Model) renderList(listView string, helpKeys []key.Binding) string {
	out := fmt.Sprintf("%s\n\n%s", listView, m.help.ShortHelpView(helpKeys))
	if line := m.statusLine(); line != "" {
		out = fmt.Sprintf("%s\n%s", out, line)
	}
	return out
}

func (m *Model) statusLine() string {
	if m.status != "" {
		return m.status
	}
	if profile := m.sessions.Profile(); profile.HasUsername() {
		return styles.help.Render(fmt.Sprintf("signed in as %s", profile.Username))
	}
	if user := m.sessions.CurrentUser(); user != nil {
		return styles.help.Render(fmt.Sprintf("signed in as %s", user.Email))
	}
	return styles.help.Render("browsing as guest")
}
