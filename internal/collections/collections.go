// package collections is the read-through cache over the backend's playlist
// and favorite tables.
//
// Each named collection lives in its own cache entry with request coalescing,
// a freshness window and a safety timeout. Mutations write to the backend
// first and then patch the affected entries locally, so the UI reflects a
// change without a refetch.
package collections

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gamify-app/gamify/internal/backend"
	"github.com/gamify-app/gamify/internal/models"
	"github.com/gamify-app/gamify/internal/session"
	"github.com/gamify-app/gamify/internal/shared"
)

const (
	playlistsTable         = "playlists"
	favoritePlaylistsTable = "favorite_playlists"
	favoriteTracksTable    = "favorite_songs"
)

// Manager owns the cached collections for the signed-in user.
//
// The library, game and general collections hold playlists; the favorites
// collections hold the user's starred playlists and tracks. Game playlists
// are public and load without a session; everything else resolves to empty
// while signed out.
type Manager struct {
	client   backend.Client
	sessions *session.Manager
	cfg      shared.CacheConfig
	logger   *log.Logger

	library  *entry[models.Playlist]
	game     *entry[models.Playlist]
	general  *entry[models.Playlist]
	favLists *entry[models.Playlist]
	favSongs *entry[models.Track]

	mu        sync.Mutex
	suspended bool
	seeded    map[string]bool

	unsub  func()
	cancel context.CancelFunc
	done   chan struct{}
}

// Opts contains optional dependencies for [NewManager].
type Opts struct {
	Logger *log.Logger
}

// NewManager creates a collection manager. Call [Manager.Start] before use
// and [Manager.Close] when done.
func NewManager(client backend.Client, sessions *session.Manager, cfg shared.CacheConfig, opts Opts) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	minFetch := cfg.CollectionMinFetch()
	timeout := cfg.FetchTimeout()

	return &Manager{
		client:   client,
		sessions: sessions,
		cfg:      cfg,
		logger:   opts.Logger,
		library:  newEntry[models.Playlist](minFetch, timeout),
		game:     newEntry[models.Playlist](minFetch, timeout),
		general:  newEntry[models.Playlist](minFetch, timeout),
		favLists: newEntry[models.Playlist](minFetch, timeout),
		favSongs: newEntry[models.Track](minFetch, timeout),
		seeded:   make(map[string]bool),
	}
}

// Start subscribes to session changes and begins the periodic refresh loop.
func (m *Manager) Start(ctx context.Context) {
	m.unsub = m.sessions.OnChange(m.handleSessionChange)

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.refreshLoop(runCtx)
}

// Close stops the periodic refresh loop and detaches from session events.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	if m.unsub != nil {
		m.unsub()
	}
}

// Library returns every playlist visible to the current user.
func (m *Manager) Library(ctx context.Context, force bool) ([]models.Playlist, error) {
	return m.library.load(ctx, force, m.fetchLibrary)
}

// GamePlaylists returns the public per-game playlists.
func (m *Manager) GamePlaylists(ctx context.Context, force bool) ([]models.Playlist, error) {
	return m.game.load(ctx, force, func(ctx context.Context) ([]models.Playlist, error) {
		return m.fetchPlaylists(ctx, backend.Predicate{"type": models.TypeGame})
	})
}

// GeneralPlaylists returns the signed-in user's own playlists.
func (m *Manager) GeneralPlaylists(ctx context.Context, force bool) ([]models.Playlist, error) {
	return m.general.load(ctx, force, func(ctx context.Context) ([]models.Playlist, error) {
		user := m.sessions.CurrentUser()
		if user == nil {
			return nil, nil
		}
		return m.fetchPlaylists(ctx, backend.Predicate{
			"type":    models.TypeGeneral,
			"user_id": user.ID,
		})
	})
}

// FavoritePlaylists returns the playlists the user has starred.
func (m *Manager) FavoritePlaylists(ctx context.Context, force bool) ([]models.Playlist, error) {
	return m.favLists.load(ctx, force, m.fetchFavoritePlaylists)
}

// FavoriteTracks returns the tracks the user has starred.
func (m *Manager) FavoriteTracks(ctx context.Context, force bool) ([]models.Track, error) {
	return m.favSongs.load(ctx, force, m.fetchFavoriteTracks)
}

// Suspend pauses refreshes while the app is in the background. In-flight
// fetches are abandoned so their waiters are not left blocked; cached data
// survives for when the app comes back.
func (m *Manager) Suspend() {
	m.mu.Lock()
	m.suspended = true
	m.mu.Unlock()

	m.library.abandon()
	m.game.abandon()
	m.general.abandon()
	m.favLists.abandon()
	m.favSongs.abandon()

	m.logger.Debug("collection refreshes suspended")
}

// Resume lifts a suspension and force-refreshes collections whose cached data
// aged past the staleness threshold while suspended.
func (m *Manager) Resume(ctx context.Context) {
	m.mu.Lock()
	wasSuspended := m.suspended
	m.suspended = false
	m.mu.Unlock()
	if !wasSuspended {
		return
	}

	maxAge := m.cfg.CollectionMaxAge()
	if m.library.olderThan(maxAge) {
		go m.refreshOne(ctx, "library", func(ctx context.Context) error {
			_, err := m.Library(ctx, true)
			return err
		})
	}
	if m.game.olderThan(maxAge) {
		go m.refreshOne(ctx, "game", func(ctx context.Context) error {
			_, err := m.GamePlaylists(ctx, true)
			return err
		})
	}
	if m.sessions.CurrentUser() != nil {
		if m.general.olderThan(maxAge) {
			go m.refreshOne(ctx, "general", func(ctx context.Context) error {
				_, err := m.GeneralPlaylists(ctx, true)
				return err
			})
		}
		if m.favLists.olderThan(maxAge) {
			go m.refreshOne(ctx, "favorite playlists", func(ctx context.Context) error {
				_, err := m.FavoritePlaylists(ctx, true)
				return err
			})
		}
		if m.favSongs.olderThan(maxAge) {
			go m.refreshOne(ctx, "favorite tracks", func(ctx context.Context) error {
				_, err := m.FavoriteTracks(ctx, true)
				return err
			})
		}
	}
}

func (m *Manager) refreshOne(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		m.logger.Warn("collection refresh failed", "collection", name, "err", err)
	}
}

// clearAll drops every cached collection, discarding in-flight fetches.
func (m *Manager) clearAll() {
	m.library.clear()
	m.game.clear()
	m.general.clear()
	m.favLists.clear()
	m.favSongs.clear()
}

func (m *Manager) handleSessionChange(ch session.Change) {
	switch ch.Kind {
	case backend.EventSignedIn:
		// The previous cache may belong to another user or to the
		// anonymous view. Start fresh off the event goroutine.
		m.clearAll()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.FetchTimeout())
			defer cancel()
			m.refreshOne(ctx, "library", func(ctx context.Context) error {
				_, err := m.Library(ctx, true)
				return err
			})
		}()
	case backend.EventSignedOut:
		m.clearAll()
	}
}

// refreshLoop re-fetches the library on a fixed cadence unless suspended.
func (m *Manager) refreshLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.CollectionRefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			suspended := m.suspended
			m.mu.Unlock()
			if suspended {
				continue
			}
			m.refreshOne(ctx, "library", func(ctx context.Context) error {
				_, err := m.Library(ctx, true)
				return err
			})
		}
	}
}

// fetchLibrary loads every playlist the current user can see. Signed-out
// users only see the public game playlists. A signed-in user with no
// playlists of their own gets the starter set created first.
func (m *Manager) fetchLibrary(ctx context.Context) ([]models.Playlist, error) {
	user := m.sessions.CurrentUser()
	if user == nil {
		return m.fetchPlaylists(ctx, backend.Predicate{"type": models.TypeGame})
	}

	playlists, err := m.fetchPlaylists(ctx, nil)
	if err != nil {
		return nil, err
	}

	if !m.hasOwnPlaylists(playlists, user.ID) && !m.alreadySeeded(user.ID) {
		seeded, err := m.seedStarterPlaylists(ctx, user.ID)
		if err != nil {
			m.logger.Warn("failed to seed starter playlists", "err", err)
			return playlists, nil
		}
		playlists = append(playlists, seeded...)
	}

	return playlists, nil
}

func (m *Manager) hasOwnPlaylists(playlists []models.Playlist, userID string) bool {
	for _, p := range playlists {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (m *Manager) alreadySeeded(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seeded[userID] {
		return true
	}
	m.seeded[userID] = true
	return false
}

func (m *Manager) fetchPlaylists(ctx context.Context, pred backend.Predicate) ([]models.Playlist, error) {
	rows, err := m.client.QueryRows(ctx, playlistsTable, pred)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}

	playlists := make([]models.Playlist, 0, len(rows))
	for _, row := range rows {
		p, err := models.PlaylistFromRow(row)
		if err != nil {
			m.logger.Warn("skipping malformed playlist row", "err", err)
			continue
		}
		playlists = append(playlists, p)
	}
	return playlists, nil
}

// fetchFavoritePlaylists resolves the user's starred playlist ids against the
// playlists table.
func (m *Manager) fetchFavoritePlaylists(ctx context.Context) ([]models.Playlist, error) {
	user := m.sessions.CurrentUser()
	if user == nil {
		return nil, nil
	}

	rows, err := m.client.QueryRows(ctx, favoritePlaylistsTable, backend.Predicate{"user_id": user.ID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, _ := row["playlist_id"].(string); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return m.fetchPlaylists(ctx, backend.Predicate{"id": ids})
}

// fetchFavoriteTracks loads the user's starred tracks. The track payload is
// stored inline on the favorite row so it survives playlist deletion.
func (m *Manager) fetchFavoriteTracks(ctx context.Context) ([]models.Track, error) {
	user := m.sessions.CurrentUser()
	if user == nil {
		return nil, nil
	}

	rows, err := m.client.QueryRows(ctx, favoriteTracksTable, backend.Predicate{"user_id": user.ID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}

	tracks := make([]models.Track, 0, len(rows))
	for _, row := range rows {
		payload, ok := row["track"].(map[string]any)
		if !ok {
			m.logger.Warn("skipping malformed favorite track row")
			continue
		}
		track, err := models.TrackFromRow(payload)
		if err != nil {
			m.logger.Warn("skipping malformed favorite track row", "err", err)
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}
