// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gamify-app/gamify/internal/backend"
)

// RoundTripFunc adapts a function to [http.RoundTripper].
type RoundTripFunc func(*http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// MockRoundTripper returns the same response (or error) for every request.
type MockRoundTripper struct {
	Response *http.Response
	Err      error
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.Response, m.Err
}

// JSONResponse builds an *http.Response with a JSON body.
func JSONResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

// FakeBackend is a test double for [backend.Client].
//
// Zero value behavior: no session, empty query results, upserts echo the row
// back. Hooks override individual operations; counters record call volume.
type FakeBackend struct {
	mu sync.Mutex

	Session    *backend.Session
	RefreshErr error
	SignOutErr error

	GetSessionCalls int
	RefreshCalls    int
	QueryCalls      map[string]int
	UpsertCalls     map[string]int
	DeleteCalls     map[string]int
	SignOutCalls    int
	SignOutScopes   []backend.SignOutScope

	QueryFn   func(table string, pred backend.Predicate) ([]backend.Row, error)
	RefreshFn func() (*backend.Session, error)
	UpsertFn  func(table string, row backend.Row) (backend.Row, error)
	DeleteFn  func(table string, pred backend.Predicate) error
	UploadFn  func(bucket, path string, data []byte) (string, error)

	subMu sync.Mutex
	next  int
	subs  map[int]func(backend.SessionEvent)
}

// NewFakeBackend returns a fake with counters initialized.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		QueryCalls:  make(map[string]int),
		UpsertCalls: make(map[string]int),
		DeleteCalls: make(map[string]int),
		subs:        make(map[int]func(backend.SessionEvent)),
	}
}

// ValidSession returns a session with both tokens and the given user id.
func ValidSession(userID string) *backend.Session {
	return &backend.Session{
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		User:         &backend.User{ID: userID, Email: userID + "@example.com"},
	}
}

func (f *FakeBackend) GetSession(ctx context.Context) (*backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetSessionCalls++
	return f.Session, nil
}

func (f *FakeBackend) RefreshSession(ctx context.Context) (*backend.Session, error) {
	f.mu.Lock()
	f.RefreshCalls++
	fn, err, session := f.RefreshFn, f.RefreshErr, f.Session
	f.mu.Unlock()

	if fn != nil {
		return fn()
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (f *FakeBackend) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	f.mu.Lock()
	session := f.Session
	f.mu.Unlock()
	if session == nil {
		return nil, &backend.AuthError{Kind: backend.AuthInvalidCredentials, Message: "invalid login credentials"}
	}
	f.Emit(backend.SessionEvent{Kind: backend.EventSignedIn, Session: session})
	return session, nil
}

func (f *FakeBackend) SignUp(ctx context.Context, email, password string) (*backend.Session, error) {
	return f.SignInWithPassword(ctx, email, password)
}

func (f *FakeBackend) SignOut(ctx context.Context, scope backend.SignOutScope) error {
	f.mu.Lock()
	f.SignOutCalls++
	f.SignOutScopes = append(f.SignOutScopes, scope)
	err := f.SignOutErr
	if err == nil {
		f.Session = nil
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.Emit(backend.SessionEvent{Kind: backend.EventSignedOut})
	return nil
}

func (f *FakeBackend) RequestPasswordReset(ctx context.Context, email string) error { return nil }

func (f *FakeBackend) UpdatePassword(ctx context.Context, newPassword string) error { return nil }

func (f *FakeBackend) OnSessionChange(fn func(backend.SessionEvent)) func() {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.subMu.Lock()
		defer f.subMu.Unlock()
		delete(f.subs, id)
	}
}

// Emit delivers a session event to all subscribers.
func (f *FakeBackend) Emit(ev backend.SessionEvent) {
	f.subMu.Lock()
	fns := make([]func(backend.SessionEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *FakeBackend) QueryRows(ctx context.Context, table string, pred backend.Predicate) ([]backend.Row, error) {
	f.mu.Lock()
	f.QueryCalls[table]++
	fn := f.QueryFn
	f.mu.Unlock()

	if fn != nil {
		return fn(table, pred)
	}
	return nil, nil
}

func (f *FakeBackend) UpsertRow(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	f.mu.Lock()
	f.UpsertCalls[table]++
	fn := f.UpsertFn
	f.mu.Unlock()

	if fn != nil {
		return fn(table, row)
	}
	return row, nil
}

func (f *FakeBackend) DeleteRow(ctx context.Context, table string, pred backend.Predicate) error {
	f.mu.Lock()
	f.DeleteCalls[table]++
	fn := f.DeleteFn
	f.mu.Unlock()

	if fn != nil {
		return fn(table, pred)
	}
	return nil
}

func (f *FakeBackend) UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	fn := f.UploadFn
	f.mu.Unlock()

	if fn != nil {
		return fn(bucket, path, data)
	}
	return fmt.Sprintf("https://cdn.example.com/%s/%s", bucket, path), nil
}

// SetSession swaps the fake's current session under lock.
func (f *FakeBackend) SetSession(s *backend.Session) {
	f.mu.Lock()
	f.Session = s
	f.mu.Unlock()
}

// Queries returns the recorded query count for a table.
func (f *FakeBackend) Queries(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.QueryCalls[table]
}
