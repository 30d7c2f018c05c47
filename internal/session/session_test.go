package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gamify-app/gamify/internal/backend"
	"github.com/gamify-app/gamify/internal/shared"
	apptest "github.com/gamify-app/gamify/internal/testing"
)

// testManager returns a manager with a controllable clock and recorded sleeps.
func testManager(fb *apptest.FakeBackend, cfg shared.CacheConfig) (*Manager, *clockStub) {
	clock := &clockStub{now: time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)}
	m := NewManager(fb, cfg, Opts{Now: clock.Now, Sleep: clock.Sleep})
	return m, clock
}

type clockStub struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func (c *clockStub) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clockStub) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *clockStub) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *clockStub) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

func TestRefresh(t *testing.T) {
	t.Run("coalesces concurrent callers", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		release := make(chan struct{})
		fb.RefreshFn = func() (*backend.Session, error) {
			<-release
			return apptest.ValidSession("u-1"), nil
		}

		m, _ := testManager(fb, shared.CacheConfig{})

		var wg sync.WaitGroup
		results := make([]bool, 5)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := m.Refresh(context.Background())
				if err != nil {
					t.Errorf("refresh %d failed: %v", i, err)
				}
				results[i] = ok
			}(i)
		}

		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		if fb.RefreshCalls != 1 {
			t.Errorf("expected 1 backend refresh, got %d", fb.RefreshCalls)
		}
		for i, ok := range results {
			if !ok {
				t.Errorf("caller %d did not get a session", i)
			}
		}
		if m.CurrentUser() == nil || m.CurrentUser().ID != "u-1" {
			t.Errorf("user not set after refresh")
		}
	})

	t.Run("skips the network inside the minimum interval", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")

		m, clock := testManager(fb, shared.CacheConfig{})

		if ok, err := m.Refresh(context.Background()); !ok || err != nil {
			t.Fatalf("first refresh failed: ok=%v err=%v", ok, err)
		}

		clock.Advance(10 * time.Second)
		if ok, err := m.Refresh(context.Background()); !ok || err != nil {
			t.Fatalf("second refresh failed: ok=%v err=%v", ok, err)
		}
		if fb.RefreshCalls != 1 {
			t.Errorf("expected second call to be absorbed, got %d backend calls", fb.RefreshCalls)
		}

		clock.Advance(25 * time.Second)
		if ok, _ := m.Refresh(context.Background()); !ok {
			t.Fatal("third refresh failed")
		}
		if fb.RefreshCalls != 2 {
			t.Errorf("expected refresh past the interval to hit the backend, got %d calls", fb.RefreshCalls)
		}
	})

	t.Run("bounded retries with jittered backoff", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.RefreshErr = errors.New("connection reset")

		m, clock := testManager(fb, shared.CacheConfig{SessionMaxRetries: 3})

		ok, err := m.Refresh(context.Background())
		if ok {
			t.Fatal("expected refresh to fail")
		}
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
		if fb.RefreshCalls != 4 {
			t.Errorf("expected 4 attempts, got %d", fb.RefreshCalls)
		}

		slept := clock.Slept()
		if len(slept) != 3 {
			t.Fatalf("expected 3 backoff sleeps, got %d", len(slept))
		}
		for i, d := range slept {
			base := time.Second << uint(i)
			lo := time.Duration(float64(base) * 0.7)
			hi := time.Duration(float64(base) * 1.3)
			if d < lo || d > hi {
				t.Errorf("sleep %d = %v outside [%v, %v]", i, d, lo, hi)
			}
		}
	})

	t.Run("rate limiting extends the delay", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		calls := 0
		fb.RefreshFn = func() (*backend.Session, error) {
			calls++
			if calls == 1 {
				return nil, &backend.AuthError{Kind: backend.AuthRateLimited, Status: 429}
			}
			return apptest.ValidSession("u-1"), nil
		}

		m, clock := testManager(fb, shared.CacheConfig{})

		ok, err := m.Refresh(context.Background())
		if !ok || err != nil {
			t.Fatalf("refresh failed: ok=%v err=%v", ok, err)
		}

		slept := clock.Slept()
		if len(slept) != 1 {
			t.Fatalf("expected 1 sleep, got %d", len(slept))
		}
		if slept[0] < 5*time.Second {
			t.Errorf("rate-limited delay %v below the 5s floor", slept[0])
		}
	})

	t.Run("rejected refresh token retries and keeps the user", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")
		fb.RefreshErr = &backend.AuthError{Kind: backend.AuthInvalidRefreshToken, Message: "Invalid Refresh Token"}

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		ok, err := m.Refresh(context.Background())
		if ok {
			t.Fatal("expected refresh to fail")
		}
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
		if fb.RefreshCalls != 6 {
			t.Errorf("expected the full retry budget, got %d attempts", fb.RefreshCalls)
		}
		if fb.SignOutCalls != 0 {
			t.Errorf("a failed refresh must not sign out, got %d", fb.SignOutCalls)
		}
		if user := m.CurrentUser(); user == nil || user.ID != "u-1" {
			t.Errorf("user should survive an exhausted refresh, got %+v", user)
		}
	})

	t.Run("missing backend session reports signed out without retrying", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.RefreshErr = &backend.AuthError{Kind: backend.AuthSessionMissing, Message: "session missing"}

		m, clock := testManager(fb, shared.CacheConfig{})

		ok, err := m.Refresh(context.Background())
		if ok || err != nil {
			t.Fatalf("expected a quiet false, got ok=%v err=%v", ok, err)
		}
		if fb.RefreshCalls != 1 {
			t.Errorf("nothing to retry, got %d attempts", fb.RefreshCalls)
		}
		if len(clock.Slept()) != 0 {
			t.Errorf("no backoff expected, slept %v", clock.Slept())
		}
		if fb.SignOutCalls != 0 {
			t.Errorf("no sign-out expected, got %d", fb.SignOutCalls)
		}
	})

	t.Run("failed refresh does not arm the freshness window", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.RefreshErr = errors.New("connection reset")

		m, clock := testManager(fb, shared.CacheConfig{SessionMaxRetries: 1})

		if ok, _ := m.Refresh(context.Background()); ok {
			t.Fatal("expected refresh to fail")
		}
		attempts := fb.RefreshCalls

		fb.RefreshErr = nil
		fb.Session = apptest.ValidSession("u-1")
		clock.Advance(5 * time.Second)

		ok, err := m.Refresh(context.Background())
		if !ok || err != nil {
			t.Fatalf("refresh after failure: ok=%v err=%v", ok, err)
		}
		if fb.RefreshCalls != attempts+1 {
			t.Errorf("failure must not absorb the next refresh, got %d calls", fb.RefreshCalls)
		}

		// Success arms the window and the next call is absorbed.
		clock.Advance(5 * time.Second)
		if ok, _ := m.Refresh(context.Background()); !ok {
			t.Fatal("expected a cached true inside the window")
		}
		if fb.RefreshCalls != attempts+1 {
			t.Errorf("expected the window to absorb the call, got %d", fb.RefreshCalls)
		}
	})

	t.Run("rate limited exhaustion is reported as such", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.RefreshErr = &backend.AuthError{Kind: backend.AuthRateLimited, Status: 429}

		m, _ := testManager(fb, shared.CacheConfig{SessionMaxRetries: 1})

		_, err := m.Refresh(context.Background())
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
	})

	t.Run("tokenless session is treated as corrupt", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.RefreshFn = func() (*backend.Session, error) {
			return &backend.Session{AccessToken: "only-access"}, nil
		}

		m, _ := testManager(fb, shared.CacheConfig{})

		ok, err := m.Refresh(context.Background())
		if ok {
			t.Fatal("expected refresh to fail")
		}
		if !errors.Is(err, shared.ErrSessionCorrupt) {
			t.Errorf("expected ErrSessionCorrupt, got %v", err)
		}
		if fb.SignOutCalls != 1 {
			t.Errorf("expected sign-out, got %d", fb.SignOutCalls)
		}
	})
}

func TestStart(t *testing.T) {
	t.Run("restores a saved session", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")
		fb.QueryFn = func(table string, pred backend.Predicate) ([]backend.Row, error) {
			return []backend.Row{{"id": "u-1", "username": "gamer"}}, nil
		}

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		if user := m.CurrentUser(); user == nil || user.ID != "u-1" {
			t.Errorf("user not restored: %+v", user)
		}
		if !m.HasUsername() {
			t.Error("profile not loaded")
		}
		if fb.RefreshCalls != 0 {
			t.Errorf("restore should not refresh, got %d calls", fb.RefreshCalls)
		}
	})

	t.Run("clears a corrupt saved session", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = &backend.Session{AccessToken: "access-only"}

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		if fb.SignOutCalls != 1 {
			t.Errorf("expected corrupt session to be cleared, got %d sign-outs", fb.SignOutCalls)
		}
		if m.CurrentUser() != nil {
			t.Error("no user should be set")
		}
	})

	t.Run("no saved session starts signed out", func(t *testing.T) {
		fb := apptest.NewFakeBackend()

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		if m.CurrentUser() != nil {
			t.Error("expected signed-out start")
		}
		if fb.SignOutCalls != 0 {
			t.Error("nothing to clear when no session is saved")
		}
	})
}

func TestSessionEvents(t *testing.T) {
	t.Run("signed out event clears local state only", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		var changes []Change
		m.OnChange(func(ch Change) { changes = append(changes, ch) })

		fb.Emit(backend.SessionEvent{Kind: backend.EventSignedOut})

		if m.CurrentUser() != nil {
			t.Error("user should be cleared")
		}
		if fb.SignOutCalls != 0 {
			t.Error("event handling must not trigger another sign-out")
		}
		if len(changes) != 1 || changes[0].Kind != backend.EventSignedOut {
			t.Errorf("expected one signed_out change, got %+v", changes)
		}
	})

	t.Run("signed in event adopts the user and loads the profile", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.QueryFn = func(table string, pred backend.Predicate) ([]backend.Row, error) {
			return []backend.Row{{"id": "u-2", "username": "pixel"}}, nil
		}

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		fb.Emit(backend.SessionEvent{Kind: backend.EventSignedIn, Session: apptest.ValidSession("u-2")})

		if user := m.CurrentUser(); user == nil || user.ID != "u-2" {
			t.Errorf("user not adopted: %+v", user)
		}
		if p := m.Profile(); p == nil || p.Username != "pixel" {
			t.Errorf("profile not loaded: %+v", p)
		}
	})

	t.Run("event with missing tokens is ignored", func(t *testing.T) {
		fb := apptest.NewFakeBackend()

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		fb.Emit(backend.SessionEvent{
			Kind:    backend.EventSignedIn,
			Session: &backend.Session{User: &backend.User{ID: "u-9"}},
		})

		if m.CurrentUser() != nil {
			t.Error("tokenless event must not be adopted")
		}
	})

	t.Run("user updated event refetches the profile", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")
		username := "gamer"
		fb.QueryFn = func(table string, pred backend.Predicate) ([]backend.Row, error) {
			return []backend.Row{{"id": "u-1", "username": username}}, nil
		}

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		username = "renamed"
		fb.Emit(backend.SessionEvent{Kind: backend.EventUserUpdated, Session: apptest.ValidSession("u-1")})

		if p := m.Profile(); p == nil || p.Username != "renamed" {
			t.Errorf("profile not refetched: %+v", p)
		}
	})
}

func TestClearSession(t *testing.T) {
	t.Run("revokes the session everywhere", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		if err := m.ClearSession(context.Background()); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		if len(fb.SignOutScopes) != 1 || fb.SignOutScopes[0] != backend.SignOutGlobal {
			t.Errorf("expected a global sign-out, got %v", fb.SignOutScopes)
		}
		if m.CurrentUser() != nil {
			t.Error("user should be cleared")
		}
	})

	t.Run("local state clears even when revocation fails", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")
		fb.SignOutErr = errors.New("network down")

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		err := m.ClearSession(context.Background())
		if !errors.Is(err, shared.ErrBackendRequest) {
			t.Errorf("expected the revocation failure back, got %v", err)
		}
		if m.CurrentUser() != nil {
			t.Error("local state must clear before the backend call")
		}
	})
}

func TestSignUp(t *testing.T) {
	t.Run("rejects a taken username", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.QueryFn = func(table string, pred backend.Predicate) ([]backend.Row, error) {
			return []backend.Row{{"id": "someone-else", "username": "gamer"}}, nil
		}

		m, _ := testManager(fb, shared.CacheConfig{})

		err := m.SignUp(context.Background(), "a@b.c", "secret123", "gamer")
		if !errors.Is(err, shared.ErrUsernameTaken) {
			t.Errorf("expected ErrUsernameTaken, got %v", err)
		}
	})

	t.Run("creates the profile row", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")

		m, _ := testManager(fb, shared.CacheConfig{})

		if err := m.SignUp(context.Background(), "a@b.c", "secret123", "gamer"); err != nil {
			t.Fatalf("sign up failed: %v", err)
		}
		if fb.UpsertCalls["profiles"] != 1 {
			t.Errorf("expected profile upsert, got %d", fb.UpsertCalls["profiles"])
		}
		if p := m.Profile(); !p.HasUsername() || p.Username != "gamer" {
			t.Errorf("profile not adopted: %+v", p)
		}
	})
}

func TestUploadProfilePicture(t *testing.T) {
	t.Run("rejects oversized files", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		_, err := m.UploadProfilePicture(context.Background(), "big.png", make([]byte, maxAvatarBytes+1))
		if !errors.Is(err, shared.ErrFileTooLarge) {
			t.Errorf("expected ErrFileTooLarge, got %v", err)
		}
	})

	t.Run("stores under a randomized avatar path", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")
		var gotPath string
		fb.UploadFn = func(bucket, path string, data []byte) (string, error) {
			if bucket != "profiles" {
				t.Errorf("unexpected bucket %q", bucket)
			}
			gotPath = path
			return "https://cdn.example.com/" + path, nil
		}

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		url, err := m.UploadProfilePicture(context.Background(), "me.jpg", []byte{1, 2, 3})
		if err != nil {
			t.Fatalf("upload failed: %v", err)
		}

		if !strings.HasPrefix(gotPath, "avatars/u-1-") || !strings.HasSuffix(gotPath, ".jpg") {
			t.Errorf("unexpected object path %q", gotPath)
		}
		if url == "" {
			t.Error("expected the public url back")
		}
		if p := m.Profile(); p == nil || p.AvatarURL != url {
			t.Errorf("profile avatar not updated: %+v", p)
		}
	})
}

func TestUpdateUsername(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		m, _ := testManager(apptest.NewFakeBackend(), shared.CacheConfig{})
		if err := m.UpdateUsername(context.Background(), "gamer"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("own username is not a conflict", func(t *testing.T) {
		fb := apptest.NewFakeBackend()
		fb.Session = apptest.ValidSession("u-1")
		fb.QueryFn = func(table string, pred backend.Predicate) ([]backend.Row, error) {
			return []backend.Row{{"id": "u-1", "username": "gamer"}}, nil
		}

		m, _ := testManager(fb, shared.CacheConfig{})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer m.Close()

		if err := m.UpdateUsername(context.Background(), "gamer"); err != nil {
			t.Errorf("renaming to own username should succeed, got %v", err)
		}
	})
}
