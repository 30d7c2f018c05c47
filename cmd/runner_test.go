package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gamify-app/gamify/internal/backend"
	"github.com/gamify-app/gamify/internal/shared"
	tu "github.com/gamify-app/gamify/internal/testing"
	"github.com/urfave/cli/v3"
)

func testRunner(t *testing.T, fb *tu.FakeBackend) (*Runner, *bytes.Buffer) {
	t.Helper()

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: shared.DefaultConfig(),
		Client: fb,
		Logger: shared.NewLogger(&bytes.Buffer{}),
		Output: output,
	})
	t.Cleanup(runner.Close)
	return runner, output
}

func runCommand(t *testing.T, runner *Runner, args ...string) error {
	t.Helper()

	app := &cli.Command{Name: "gamify", Commands: runner.register()}
	return app.Run(context.Background(), append([]string{"gamify"}, args...))
}

func libraryRows() []backend.Row {
	return []backend.Row{
		{
			"id": "p-1", "title": "Chrono Trigger OST", "type": "game",
			"game": "Chrono Trigger",
			"tracks": []any{
				map[string]any{"id": "t-1", "title": "Corridors of Time", "composer": "Yasunori Mitsuda"},
			},
		},
		{
			"id": "p-2", "title": "Mix", "type": "general", "user_id": "u-1",
			"tracks": []any{},
		},
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			fb := tu.NewFakeBackend()

			runner := NewRunner(RunnerOpts{
				Config: config,
				Client: fb,
				Logger: logger,
				Output: output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.sessions == nil || runner.collections == nil {
				t.Error("expected managers to be built from the client")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("without client leaves managers nil", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.sessions != nil || runner.collections != nil {
				t.Error("expected no managers without a backend client")
			}
		})
	})

	t.Run("ensureStarted", func(t *testing.T) {
		t.Run("fails without a client", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.ensureStarted(context.Background())
			if !errors.Is(err, shared.ErrMissingConfig) {
				t.Fatalf("expected ErrMissingConfig, got %v", err)
			}
		})

		t.Run("restores the persisted session once", func(t *testing.T) {
			fb := tu.NewFakeBackend()
			fb.Session = tu.ValidSession("u-1")
			runner, _ := testRunner(t, fb)

			if err := runner.ensureStarted(context.Background()); err != nil {
				t.Fatalf("ensureStarted failed: %v", err)
			}
			if err := runner.ensureStarted(context.Background()); err != nil {
				t.Fatalf("second ensureStarted failed: %v", err)
			}

			if fb.GetSessionCalls != 1 {
				t.Errorf("expected one session restore, got %d", fb.GetSessionCalls)
			}
			if user := runner.sessions.CurrentUser(); user == nil || user.ID != "u-1" {
				t.Errorf("expected restored user u-1, got %+v", user)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s", "world"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "hello world" {
			t.Errorf("expected 'hello world', got %q", output.String())
		}
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		if len(commands) == 0 {
			t.Error("expected at least one command to be registered")
		}
		for i, cmd := range commands {
			if cmd == nil {
				t.Errorf("command at index %d is nil", i)
			}
		}
	})
}

func TestPlaylistCommands(t *testing.T) {
	t.Run("list outputs the cached library as JSON", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		fb.Session = tu.ValidSession("u-1")
		fb.QueryFn = func(table string, pred backend.Predicate) ([]backend.Row, error) {
			if table == "playlists" {
				return libraryRows(), nil
			}
			return nil, nil
		}
		runner, output := testRunner(t, fb)

		if err := runCommand(t, runner, "playlists", "list", "--json", "--pretty=false"); err != nil {
			t.Fatalf("playlists list failed: %v", err)
		}

		result := output.String()
		if !strings.Contains(result, `"Chrono Trigger OST"`) || !strings.Contains(result, `"p-2"`) {
			t.Errorf("expected both playlists in output, got %s", result)
		}
	})

	t.Run("list rejects unknown type filters", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		runner, _ := testRunner(t, fb)

		err := runCommand(t, runner, "playlists", "list", "--type", "bogus")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("show resolves a playlist from the cache", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		fb.QueryFn = func(table string, pred backend.Predicate) ([]backend.Row, error) {
			return libraryRows(), nil
		}
		runner, output := testRunner(t, fb)

		if err := runCommand(t, runner, "playlists", "show", "p-1"); err != nil {
			t.Fatalf("playlists show failed: %v", err)
		}

		result := output.String()
		if !strings.Contains(result, "Chrono Trigger OST") || !strings.Contains(result, "Corridors of Time") {
			t.Errorf("expected playlist detail, got %s", result)
		}

		if err := runCommand(t, runner, "playlists", "show", "missing"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Fatalf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("offline list reads the saved snapshot", func(t *testing.T) {
		db, err := shared.NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if err := shared.RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		fb := tu.NewFakeBackend()
		fb.QueryFn = func(table string, pred backend.Predicate) ([]backend.Row, error) {
			return libraryRows(), nil
		}
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{
			Config: shared.DefaultConfig(),
			Client: fb,
			DB:     db,
			Logger: shared.NewLogger(&bytes.Buffer{}),
			Output: output,
		})
		t.Cleanup(runner.Close)

		if err := runCommand(t, runner, "playlists", "list"); err != nil {
			t.Fatalf("playlists list failed: %v", err)
		}

		queries := fb.Queries("playlists")
		output.Reset()

		if err := runCommand(t, runner, "playlists", "list", "--offline"); err != nil {
			t.Fatalf("offline list failed: %v", err)
		}
		if !strings.Contains(output.String(), "Chrono Trigger OST") {
			t.Errorf("expected snapshot contents, got %s", output.String())
		}
		if fb.Queries("playlists") != queries {
			t.Error("expected offline list to avoid the backend")
		}
	})

	t.Run("offline list requires the continuity store", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		runner, _ := testRunner(t, fb)

		err := runCommand(t, runner, "playlists", "list", "--offline")
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Fatalf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("create requires authentication", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		fb.QueryFn = func(table string, pred backend.Predicate) ([]backend.Row, error) {
			return nil, nil
		}
		runner, _ := testRunner(t, fb)

		err := runCommand(t, runner, "playlists", "create", "--title", "Mix")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestFavoriteCommands(t *testing.T) {
	t.Run("list is empty when signed out", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		runner, output := testRunner(t, fb)

		if err := runCommand(t, runner, "favorites", "list"); err != nil {
			t.Fatalf("favorites list failed: %v", err)
		}
		if !strings.Contains(output.String(), "No favorite playlists") {
			t.Errorf("expected empty favorites, got %s", output.String())
		}
		if fb.Queries("favorite_playlists") != 0 {
			t.Error("expected no backend query while signed out")
		}
	})

	t.Run("add requires exactly one target", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		runner, _ := testRunner(t, fb)

		if err := runCommand(t, runner, "favorites", "add"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if err := runCommand(t, runner, "favorites", "add", "--playlist", "p-1", "--track", "t-1"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for both targets, got %v", err)
		}
	})

	t.Run("add favorites a playlist", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		fb.Session = tu.ValidSession("u-1")
		fb.QueryFn = func(table string, pred backend.Predicate) ([]backend.Row, error) {
			if table == "playlists" {
				return libraryRows(), nil
			}
			return nil, nil
		}
		runner, output := testRunner(t, fb)

		if err := runCommand(t, runner, "favorites", "add", "--playlist", "p-1"); err != nil {
			t.Fatalf("favorites add failed: %v", err)
		}
		if fb.UpsertCalls["favorite_playlists"] != 1 {
			t.Errorf("expected favorite row upsert, got %d", fb.UpsertCalls["favorite_playlists"])
		}
		if !strings.Contains(output.String(), "Favorited playlist p-1") {
			t.Errorf("unexpected output %s", output.String())
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("status reports signed out", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		runner, output := testRunner(t, fb)

		if err := runCommand(t, runner, "auth", "status"); err != nil {
			t.Fatalf("auth status failed: %v", err)
		}
		if !strings.Contains(output.String(), "Signed out") {
			t.Errorf("expected signed out, got %s", output.String())
		}
	})

	t.Run("status reports the restored session", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		fb.Session = tu.ValidSession("u-1")
		runner, output := testRunner(t, fb)

		if err := runCommand(t, runner, "auth", "status"); err != nil {
			t.Fatalf("auth status failed: %v", err)
		}
		if !strings.Contains(output.String(), "u-1@example.com") {
			t.Errorf("expected user email, got %s", output.String())
		}
	})

	t.Run("login requires credentials", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		runner, _ := testRunner(t, fb)

		err := runCommand(t, runner, "auth", "login")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Fatalf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("logout is a no-op when signed out", func(t *testing.T) {
		fb := tu.NewFakeBackend()
		runner, output := testRunner(t, fb)

		if err := runCommand(t, runner, "auth", "logout"); err != nil {
			t.Fatalf("auth logout failed: %v", err)
		}
		if !strings.Contains(output.String(), "Already signed out") {
			t.Errorf("unexpected output %s", output.String())
		}
		if fb.SignOutCalls != 0 {
			t.Errorf("expected no revocation, got %d", fb.SignOutCalls)
		}
	})
}
