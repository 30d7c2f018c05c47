package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func newTestClient(t *testing.T, rt http.RoundTripper) *SupabaseClient {
	t.Helper()
	c, err := NewSupabaseClient("https://gamify.supabase.co", "anon-key", SupabaseOpts{
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestRefreshSession(t *testing.T) {
	t.Run("no refresh token", func(t *testing.T) {
		c := newTestClient(t, roundTripFunc(func(r *http.Request) (*http.Response, error) {
			t.Fatal("no request expected")
			return nil, nil
		}))

		_, err := c.RefreshSession(context.Background())
		if AuthKind(err) != AuthSessionMissing {
			t.Errorf("expected session_missing, got %v", err)
		}
	})

	t.Run("success rotates tokens and emits event", func(t *testing.T) {
		var gotBody string
		c := newTestClient(t, roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if !strings.Contains(r.URL.RawQuery, "grant_type=refresh_token") {
				t.Errorf("unexpected query: %s", r.URL.RawQuery)
			}
			data, _ := io.ReadAll(r.Body)
			gotBody = string(data)
			return jsonResponse(200, `{
				"access_token": "new-access",
				"refresh_token": "new-refresh",
				"expires_in": 3600,
				"user": {"id": "u-1", "email": "a@b.c"}
			}`), nil
		}))
		c.session = &Session{AccessToken: "old-access", RefreshToken: "old-refresh"}

		var events []SessionEvent
		unsub := c.OnSessionChange(func(ev SessionEvent) { events = append(events, ev) })
		defer unsub()

		session, err := c.RefreshSession(context.Background())
		if err != nil {
			t.Fatalf("refresh failed: %v", err)
		}

		if !strings.Contains(gotBody, "old-refresh") {
			t.Errorf("refresh token not sent: %s", gotBody)
		}
		if session.AccessToken != "new-access" || session.UserID() != "u-1" {
			t.Errorf("unexpected session: %+v", session)
		}
		if len(events) != 1 || events[0].Kind != EventTokenRefreshed {
			t.Errorf("expected one token_refreshed event, got %+v", events)
		}
	})

	t.Run("maps error kinds", func(t *testing.T) {
		cases := []struct {
			status int
			body   string
			want   AuthErrorKind
		}{
			{400, `{"error_description": "Invalid Refresh Token"}`, AuthInvalidRefreshToken},
			{404, `{"error_description": "Refresh Token Not Found"}`, AuthRefreshTokenNotFound},
			{429, `{"msg": "Request rate limit reached"}`, AuthRateLimited},
			{400, `{"msg": "Auth session missing!"}`, AuthSessionMissing},
			{500, `{"msg": "internal"}`, AuthUnknown},
		}

		for _, tc := range cases {
			c := newTestClient(t, &MockTripper{resp: jsonResponse(tc.status, tc.body)})
			c.session = &Session{AccessToken: "a", RefreshToken: "r"}

			_, err := c.RefreshSession(context.Background())
			if AuthKind(err) != tc.want {
				t.Errorf("status %d body %s: expected %s, got %v", tc.status, tc.body, tc.want, err)
			}
		}
	})
}

// MockTripper returns a fixed response.
type MockTripper struct {
	resp *http.Response
	err  error
}

func (m *MockTripper) RoundTrip(*http.Request) (*http.Response, error) { return m.resp, m.err }

func TestSignOut(t *testing.T) {
	t.Run("clears local state even when revocation fails", func(t *testing.T) {
		c := newTestClient(t, roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("network down")
		}))
		c.session = &Session{AccessToken: "a", RefreshToken: "r"}

		var events []SessionEvent
		c.OnSessionChange(func(ev SessionEvent) { events = append(events, ev) })

		err := c.SignOut(context.Background(), SignOutGlobal)
		if err == nil {
			t.Error("expected revocation error to surface")
		}

		if s, _ := c.GetSession(context.Background()); s != nil {
			t.Errorf("session should be cleared, got %+v", s)
		}
		if len(events) != 1 || events[0].Kind != EventSignedOut {
			t.Errorf("expected signed_out event, got %+v", events)
		}
	})

	t.Run("signed out with no session skips the network", func(t *testing.T) {
		c := newTestClient(t, roundTripFunc(func(r *http.Request) (*http.Response, error) {
			t.Fatal("no request expected")
			return nil, nil
		}))
		if err := c.SignOut(context.Background(), SignOutGlobal); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestQueryRows(t *testing.T) {
	var gotURL string
	c := newTestClient(t, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		if r.Header.Get("apikey") != "anon-key" {
			t.Errorf("missing apikey header")
		}
		return jsonResponse(200, `[{"id": "pl-1", "type": "game"}]`), nil
	}))

	rows, err := c.QueryRows(context.Background(), "playlists", Predicate{"type": "game"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if !strings.Contains(gotURL, "/rest/v1/playlists") || !strings.Contains(gotURL, "type=eq.game") {
		t.Errorf("unexpected url: %s", gotURL)
	}
	if len(rows) != 1 || rows[0]["id"] != "pl-1" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestEncodePredicate(t *testing.T) {
	got := encodePredicate(Predicate{"user_id": "u-1", "id": []string{"a", "b"}})
	if !strings.Contains(got, "user_id=eq.u-1") {
		t.Errorf("missing eq filter: %s", got)
	}
	if !strings.Contains(got, "id=in.") {
		t.Errorf("missing in filter: %s", got)
	}
	// Sorted order keeps URLs stable.
	if strings.Index(got, "id=") > strings.Index(got, "user_id=") {
		t.Errorf("filters not sorted: %s", got)
	}
}

func TestUpsertRow(t *testing.T) {
	c := newTestClient(t, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if !strings.Contains(r.Header.Get("Prefer"), "merge-duplicates") {
			t.Errorf("missing upsert Prefer header")
		}
		return jsonResponse(201, `[{"id": "pl-9", "title": "X"}]`), nil
	}))

	row, err := c.UpsertRow(context.Background(), "playlists", Row{"title": "X"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if row["id"] != "pl-9" {
		t.Errorf("unexpected row: %+v", row)
	}
}

func TestDeleteRow(t *testing.T) {
	t.Run("requires a predicate", func(t *testing.T) {
		c := newTestClient(t, &MockTripper{resp: jsonResponse(204, "")})
		if err := c.DeleteRow(context.Background(), "playlists", nil); err == nil {
			t.Error("expected error for empty predicate")
		}
	})
}

func TestUploadBlob(t *testing.T) {
	c := newTestClient(t, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("x-upsert") != "true" {
			t.Errorf("missing x-upsert header")
		}
		return jsonResponse(200, `{"Key": "profiles/avatars/a.png"}`), nil
	}))

	url, err := c.UploadBlob(context.Background(), "profiles", "avatars/a.png", []byte{1}, "image/png")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if url != "https://gamify.supabase.co/storage/v1/object/public/profiles/avatars/a.png" {
		t.Errorf("unexpected public url: %s", url)
	}
}
