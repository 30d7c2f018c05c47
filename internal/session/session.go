// package session owns the authenticated session lifecycle: restoring a
// saved session at startup, coalescing refreshes behind a single in-flight
// call, retrying with jittered backoff, and keeping the user's profile row in
// step with the session.
package session

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/gamify-app/gamify/internal/backend"
	"github.com/gamify-app/gamify/internal/models"
	"github.com/gamify-app/gamify/internal/shared"
)

const (
	profilesTable  = "profiles"
	profilesBucket = "profiles"

	// Supabase storage rejects larger avatar uploads anyway.
	maxAvatarBytes = 5 << 20
)

// Change notifies observers that the authenticated user or their profile
// changed. User and Profile are nil after a sign-out.
type Change struct {
	Kind    backend.EventKind
	User    *backend.User
	Profile *models.Profile
}

// Manager coordinates the session lifecycle on top of a [backend.Client].
//
// Concurrent Refresh calls share one network request. A failing refresh is
// retried with exponential backoff and jitter up to a bounded number of
// attempts; exhausting the budget reports failure but keeps the user signed
// in. Only a corrupt session, one the backend returns without tokens, is
// cleared.
type Manager struct {
	client backend.Client
	cfg    shared.CacheConfig
	logger *log.Logger

	// Injectable for tests.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	rand  *rand.Rand

	mu          sync.Mutex
	user        *backend.User
	profile     *models.Profile
	lastRefresh time.Time
	inflight    *refreshCall
	randMu      sync.Mutex

	obsMu  sync.Mutex
	obsSeq int
	obs    map[int]func(Change)

	unsub  func()
	cancel context.CancelFunc
	done   chan struct{}
}

// refreshCall is a single in-flight refresh that late callers join.
type refreshCall struct {
	done chan struct{}
	ok   bool
	err  error
}

// Opts contains optional dependencies for [NewManager].
type Opts struct {
	Logger *log.Logger
	Now    func() time.Time
	Sleep  func(context.Context, time.Duration) error
}

// NewManager creates a session manager. Call [Manager.Start] before use and
// [Manager.Close] when done.
func NewManager(client backend.Client, cfg shared.CacheConfig, opts Opts) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}

	return &Manager{
		client: client,
		cfg:    cfg,
		logger: opts.Logger,
		now:    opts.Now,
		sleep:  opts.Sleep,
		rand:   rand.New(rand.NewSource(opts.Now().UnixNano())),
		obs:    make(map[int]func(Change)),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start restores any saved session, subscribes to backend session events and
// begins the periodic refresh loop.
//
// A restored session missing either token is treated as corrupt and cleared.
// A restored session without an attached user is refreshed to resolve one.
func (m *Manager) Start(ctx context.Context) error {
	saved, err := m.client.GetSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	switch {
	case saved == nil:
		// Signed out, nothing to restore.
	case !saved.Valid():
		m.logger.Warn("restored session is missing tokens, clearing")
		m.ClearSession(ctx)
	case saved.User == nil:
		if ok, err := m.Refresh(ctx); !ok {
			m.logger.Warn("could not resolve restored session", "err", err)
		}
	default:
		m.setUser(saved.User)
		m.loadProfile(ctx, saved.User.ID)
		m.notify(Change{Kind: backend.EventSignedIn, User: saved.User, Profile: m.Profile()})
	}

	m.unsub = m.client.OnSessionChange(m.handleEvent)

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.refreshLoop(runCtx)

	return nil
}

// Close stops the periodic refresh loop and detaches from backend events.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	if m.unsub != nil {
		m.unsub()
	}
}

// OnChange registers an observer for session changes and returns an
// unsubscribe function. Observers run on the emitting goroutine and must not
// block.
func (m *Manager) OnChange(fn func(Change)) func() {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	id := m.obsSeq
	m.obsSeq++
	m.obs[id] = fn

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.obs, id)
	}
}

func (m *Manager) notify(ch Change) {
	m.obsMu.Lock()
	fns := make([]func(Change), 0, len(m.obs))
	for _, fn := range m.obs {
		fns = append(fns, fn)
	}
	m.obsMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

// CurrentUser returns the authenticated user, or nil when signed out.
func (m *Manager) CurrentUser() *backend.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	user := *m.user
	return &user
}

// Profile returns the user's profile row, or nil when not loaded.
func (m *Manager) Profile() *models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil
	}
	profile := *m.profile
	return &profile
}

// HasUsername reports whether the signed-in user has chosen a username.
func (m *Manager) HasUsername() bool {
	return m.Profile().HasUsername()
}

// Refresh renews the session, coalescing concurrent callers into a single
// backend call. It reports whether a usable session is held afterwards.
//
// Calls arriving within the minimum refresh interval of the last refresh do
// not touch the network.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	m.mu.Lock()

	if call := m.inflight; call != nil {
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-call.done:
			return call.ok, call.err
		}
	}

	if !m.lastRefresh.IsZero() && m.now().Sub(m.lastRefresh) < m.cfg.SessionMinRefresh() {
		ok := m.user != nil
		m.mu.Unlock()
		return ok, nil
	}

	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	m.mu.Unlock()

	call.ok, call.err = m.doRefresh(ctx)

	m.mu.Lock()
	m.inflight = nil
	m.mu.Unlock()
	close(call.done)

	return call.ok, call.err
}

// doRefresh runs the bounded retry loop.
func (m *Manager) doRefresh(ctx context.Context) (bool, error) {
	maxRetries := m.cfg.MaxRetries()

	for attempt := 0; ; attempt++ {
		session, err := m.client.RefreshSession(ctx)
		if err == nil {
			if !session.Valid() {
				m.logger.Warn("refresh returned a session without tokens, clearing")
				m.ClearSession(ctx)
				return false, shared.ErrSessionCorrupt
			}
			if session.User != nil {
				m.setUser(session.User)
				m.loadProfile(ctx, session.User.ID)
			}
			m.mu.Lock()
			m.lastRefresh = m.now()
			m.mu.Unlock()
			return true, nil
		}

		if backend.AuthKind(err) == backend.AuthSessionMissing {
			// Nothing to refresh; the backend holds no session.
			m.logger.Debug("no session to refresh", "err", err)
			return false, nil
		}

		if attempt >= maxRetries {
			// Exhausted retries report failure without signing the
			// user out; a failed refresh does not invalidate the
			// session they hold.
			wrapped := shared.ErrRefreshFailed
			if backend.AuthKind(err) == backend.AuthRateLimited {
				wrapped = shared.ErrRateLimited
			}
			return false, fmt.Errorf("%w after %d attempts: %v", wrapped, attempt+1, err)
		}

		delay := m.backoffDelay(attempt)
		if backend.AuthKind(err) == backend.AuthRateLimited {
			delay += m.rateLimitDelay()
		}
		m.logger.Debug("refresh failed, retrying", "attempt", attempt+1, "delay", delay, "err", err)

		if err := m.sleep(ctx, delay); err != nil {
			return false, err
		}
	}
}

// backoffDelay returns the wait before the next attempt: exponential from 1s,
// capped at 30s, scaled by a 0.7-1.3 jitter factor.
func (m *Manager) backoffDelay(attempt int) time.Duration {
	base := time.Second << uint(attempt)
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	m.randMu.Lock()
	factor := 0.7 + m.rand.Float64()*0.6
	m.randMu.Unlock()
	return time.Duration(float64(base) * factor)
}

// rateLimitDelay returns the extra wait applied after a rate-limit response.
func (m *Manager) rateLimitDelay() time.Duration {
	m.randMu.Lock()
	extra := time.Duration(m.rand.Int63n(int64(5 * time.Second)))
	m.randMu.Unlock()
	return 5*time.Second + extra
}

// refreshLoop renews the session periodically while a user is signed in.
func (m *Manager) refreshLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.SessionRefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.CurrentUser() == nil {
				continue
			}
			if ok, err := m.Refresh(ctx); !ok && err != nil {
				m.logger.Warn("periodic refresh failed", "err", err)
			}
		}
	}
}

// handleEvent keeps local state in step with backend session events.
func (m *Manager) handleEvent(ev backend.SessionEvent) {
	switch ev.Kind {
	case backend.EventSignedOut:
		// The backend already cleared its state; only drop ours.
		m.mu.Lock()
		m.user = nil
		m.profile = nil
		m.lastRefresh = time.Time{}
		m.mu.Unlock()
		m.notify(Change{Kind: backend.EventSignedOut})

	case backend.EventSignedIn, backend.EventTokenRefreshed, backend.EventUserUpdated:
		if ev.Session == nil || ev.Session.User == nil {
			return
		}
		if !ev.Session.Valid() {
			m.logger.Warn("ignoring session event with missing tokens", "kind", ev.Kind)
			return
		}
		prev := m.CurrentUser()
		m.setUser(ev.Session.User)
		if ev.Kind == backend.EventTokenRefreshed {
			m.mu.Lock()
			m.lastRefresh = m.now()
			m.mu.Unlock()
		}
		if prev == nil || prev.ID != ev.Session.User.ID || ev.Kind == backend.EventUserUpdated {
			m.loadProfile(context.Background(), ev.Session.User.ID)
		}
		m.notify(Change{Kind: ev.Kind, User: ev.Session.User, Profile: m.Profile()})
	}
}

func (m *Manager) setUser(u *backend.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := *u
	m.user = &user
	if m.profile != nil && m.profile.ID != u.ID {
		m.profile = nil
	}
}

// ClearSession drops local session state and revokes the backend session
// everywhere. Local state goes first so a failed revocation cannot leave the
// app half signed in; the revocation result is reported to the caller.
func (m *Manager) ClearSession(ctx context.Context) error {
	m.mu.Lock()
	m.user = nil
	m.profile = nil
	m.lastRefresh = time.Time{}
	m.mu.Unlock()

	if err := m.client.SignOut(ctx, backend.SignOutGlobal); err != nil {
		m.logger.Warn("failed to revoke session", "err", err)
		return fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}
	return nil
}

// SignIn authenticates with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", shared.ErrInvalidInput)
	}

	session, err := m.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	if session.User != nil {
		m.loadProfile(ctx, session.User.ID)
	}
	return nil
}

// SignUp registers a new account and claims the given username.
func (m *Manager) SignUp(ctx context.Context, email, password, username string) error {
	if email == "" || password == "" || username == "" {
		return fmt.Errorf("%w: email, password and username are required", shared.ErrInvalidInput)
	}

	taken, err := m.usernameTaken(ctx, username, "")
	if err != nil {
		return err
	}
	if taken {
		return shared.ErrUsernameTaken
	}

	session, err := m.client.SignUp(ctx, email, password)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	if session.UserID() == "" {
		// Email confirmation pending; the profile is created on first
		// sign-in.
		return nil
	}

	return m.saveProfile(ctx, models.Profile{ID: session.UserID(), Username: username})
}

// SignOut ends the session everywhere.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.client.SignOut(ctx, backend.SignOutGlobal)
}

// UpdateUsername changes the signed-in user's username after checking it is
// not already claimed by someone else.
func (m *Manager) UpdateUsername(ctx context.Context, username string) error {
	user := m.CurrentUser()
	if user == nil {
		return shared.ErrNotAuthenticated
	}
	if username == "" {
		return fmt.Errorf("%w: username is required", shared.ErrInvalidInput)
	}

	taken, err := m.usernameTaken(ctx, username, user.ID)
	if err != nil {
		return err
	}
	if taken {
		return shared.ErrUsernameTaken
	}

	profile := models.Profile{ID: user.ID, Username: username}
	if current := m.Profile(); current != nil {
		profile.AvatarURL = current.AvatarURL
	}
	return m.saveProfile(ctx, profile)
}

// UploadProfilePicture stores the avatar and points the profile at it.
//
// The stored object name embeds a random suffix so a changed avatar is never
// served from a stale CDN entry.
func (m *Manager) UploadProfilePicture(ctx context.Context, filename string, data []byte) (string, error) {
	user := m.CurrentUser()
	if user == nil {
		return "", shared.ErrNotAuthenticated
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", shared.ErrInvalidInput)
	}
	if len(data) > maxAvatarBytes {
		return "", fmt.Errorf("%w: avatar is limited to %d bytes", shared.ErrFileTooLarge, maxAvatarBytes)
	}

	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		ext = "png"
	}
	objectPath := fmt.Sprintf("avatars/%s-%s.%s", user.ID, uuid.NewString()[:8], ext)

	url, err := m.client.UploadBlob(ctx, profilesBucket, objectPath, data, contentTypeFor(ext))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}

	profile := models.Profile{ID: user.ID, AvatarURL: url}
	if current := m.Profile(); current != nil {
		profile.Username = current.Username
	}
	if err := m.saveProfile(ctx, profile); err != nil {
		return "", err
	}
	return url, nil
}

// ResetPassword sends a password recovery email.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", shared.ErrInvalidInput)
	}
	if err := m.client.RequestPasswordReset(ctx, email); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}
	return nil
}

// UpdatePassword changes the signed-in user's password.
func (m *Manager) UpdatePassword(ctx context.Context, newPassword string) error {
	if m.CurrentUser() == nil {
		return shared.ErrNotAuthenticated
	}
	if len(newPassword) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", shared.ErrInvalidInput)
	}
	if err := m.client.UpdatePassword(ctx, newPassword); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}
	return nil
}

func (m *Manager) usernameTaken(ctx context.Context, username, selfID string) (bool, error) {
	rows, err := m.client.QueryRows(ctx, profilesTable, backend.Predicate{"username": username})
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}
	for _, row := range rows {
		if id, _ := row["id"].(string); id != selfID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Manager) saveProfile(ctx context.Context, profile models.Profile) error {
	profile.UpdatedAt = m.now().UTC()
	row, err := m.client.UpsertRow(ctx, profilesTable, profile.Row())
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}

	saved, err := models.ProfileFromRow(row)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.profile = &saved
	m.mu.Unlock()
	m.notify(Change{Kind: backend.EventUserUpdated, User: m.CurrentUser(), Profile: &saved})
	return nil
}

// loadProfile fetches the profile row for the given user. A missing row is
// not an error: new users have no profile until they pick a username.
func (m *Manager) loadProfile(ctx context.Context, userID string) {
	rows, err := m.client.QueryRows(ctx, profilesTable, backend.Predicate{"id": userID})
	if err != nil {
		m.logger.Warn("failed to load profile", "err", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	profile, err := models.ProfileFromRow(rows[0])
	if err != nil {
		m.logger.Warn("failed to decode profile", "err", err)
		return
	}

	m.mu.Lock()
	m.profile = &profile
	m.mu.Unlock()
}

func contentTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
