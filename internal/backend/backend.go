// package backend defines the capability port for the hosted backend
// (authentication, row store, object storage) and its Supabase implementation.
//
// The session manager and collection cache only depend on [Client]; tests use
// a fake and the CLI wires [SupabaseClient].
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Row is a single backend table row, decoded from JSON.
type Row = map[string]any

// Predicate restricts a query to rows matching every entry.
//
// A plain value matches by equality; a []string value matches any of the
// listed values.
type Predicate map[string]any

// SignOutScope controls which sessions a sign-out revokes.
type SignOutScope string

const (
	SignOutLocal  SignOutScope = "local"
	SignOutGlobal SignOutScope = "global"
)

// User identifies an authenticated user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Session is an authenticated backend session.
//
// A session is usable only when both tokens are present; anything else is
// treated as corrupt and cleared by the session manager.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	User         *User     `json:"user,omitempty"`
}

// Valid reports whether the session carries both tokens.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != ""
}

// UserID returns the session's user id, or "" when no user is attached.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// EventKind enumerates session-change notifications.
type EventKind int

const (
	EventSignedIn EventKind = iota
	EventSignedOut
	EventTokenRefreshed
	EventUserUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventSignedIn:
		return "signed_in"
	case EventSignedOut:
		return "signed_out"
	case EventTokenRefreshed:
		return "token_refreshed"
	case EventUserUpdated:
		return "user_updated"
	default:
		return ""
	}
}

// SessionEvent is delivered to OnSessionChange subscribers.
//
// Session is nil for signed-out events. Handlers run on the emitting
// goroutine and must not block.
type SessionEvent struct {
	Kind    EventKind
	Session *Session
}

// AuthErrorKind classifies authentication failures reported by the backend.
type AuthErrorKind int

const (
	AuthUnknown AuthErrorKind = iota
	AuthSessionMissing
	AuthInvalidRefreshToken
	AuthRefreshTokenNotFound
	AuthRateLimited
	AuthInvalidCredentials
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthSessionMissing:
		return "session_missing"
	case AuthInvalidRefreshToken:
		return "invalid_refresh_token"
	case AuthRefreshTokenNotFound:
		return "refresh_token_not_found"
	case AuthRateLimited:
		return "rate_limited"
	case AuthInvalidCredentials:
		return "invalid_credentials"
	default:
		return "unknown"
	}
}

// AuthError is a typed authentication failure, decoded once at the port
// boundary so callers never shape-check wire responses.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth error: %s", e.Kind)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Kind, e.Message)
}

// AuthKind extracts the [AuthErrorKind] from err, or AuthUnknown.
func AuthKind(err error) AuthErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return AuthUnknown
}

// TokenStore persists a session marker between runs.
//
// Load returns (nil, nil) when no session is saved.
type TokenStore interface {
	Load() (*Session, error)
	Save(*Session) error
	Clear() error
}

// Client is the capability contract consumed by the session manager and the
// collection cache.
type Client interface {
	// GetSession returns the current session without touching the network,
	// restoring a persisted one if available. Returns (nil, nil) when
	// signed out.
	GetSession(ctx context.Context) (*Session, error)

	// RefreshSession exchanges the refresh token for a new session.
	// Failures are reported as *AuthError.
	RefreshSession(ctx context.Context) (*Session, error)

	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, scope SignOutScope) error
	RequestPasswordReset(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, newPassword string) error

	// OnSessionChange registers fn for session lifecycle events and returns
	// an unsubscribe function.
	OnSessionChange(fn func(SessionEvent)) (unsubscribe func())

	QueryRows(ctx context.Context, table string, pred Predicate) ([]Row, error)
	UpsertRow(ctx context.Context, table string, row Row) (Row, error)
	DeleteRow(ctx context.Context, table string, pred Predicate) error
	UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
}
