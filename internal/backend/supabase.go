// Supabase implementation of [Client].
//
// Auth endpoints follow the GoTrue REST surface, row access goes through
// PostgREST, and blobs are written to the storage API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// SupabaseClient implements [Client] against a Supabase project.
//
// Tokens are held in memory behind a mutex and optionally mirrored to a
// [TokenStore] so a CLI run can resume the previous session.
type SupabaseClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	store      TokenStore
	logger     *log.Logger
	hub        *eventHub

	mu      sync.Mutex
	session *Session
}

// SupabaseOpts contains optional dependencies for [NewSupabaseClient].
type SupabaseOpts struct {
	HTTPClient *http.Client
	Store      TokenStore
	Logger     *log.Logger
}

// NewSupabaseClient creates a client for the given project URL and anon key.
func NewSupabaseClient(baseURL, apiKey string, opts SupabaseOpts) (*SupabaseClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("missing backend url")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing backend api key")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	return &SupabaseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		logger:     opts.Logger,
		hub:        newEventHub(),
	}, nil
}

// authSessionResponse is the GoTrue token/signup response shape.
type authSessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         *User  `json:"user"`
	// Signup confirmations return the user at the top level without tokens.
	ID string `json:"id"`
}

func (r *authSessionResponse) session(now time.Time) *Session {
	s := &Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		User:         r.User,
	}
	if r.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return s
}

// OnSessionChange implements [Client].
func (c *SupabaseClient) OnSessionChange(fn func(SessionEvent)) func() {
	return c.hub.subscribe(fn)
}

// GetSession implements [Client]. It never touches the network: the current
// in-memory session is returned, falling back to the token store.
func (c *SupabaseClient) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session.clone(), nil
	}

	if c.store == nil {
		return nil, nil
	}

	saved, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load saved session: %w", err)
	}
	if saved == nil {
		return nil, nil
	}

	c.session = saved.clone()
	return saved.clone(), nil
}

// RefreshSession implements [Client].
func (c *SupabaseClient) RefreshSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	refreshToken := ""
	if c.session != nil {
		refreshToken = c.session.RefreshToken
	}
	c.mu.Unlock()

	if refreshToken == "" {
		return nil, &AuthError{Kind: AuthSessionMissing, Message: "no refresh token available"}
	}

	var resp authSessionResponse
	err := c.authRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token",
		map[string]string{"refresh_token": refreshToken}, &resp)
	if err != nil {
		return nil, err
	}

	session := resp.session(time.Now())
	c.adoptSession(session)
	c.hub.emit(SessionEvent{Kind: EventTokenRefreshed, Session: session.clone()})
	return session.clone(), nil
}

// SignInWithPassword implements [Client].
func (c *SupabaseClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var resp authSessionResponse
	err := c.authRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=password",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, err
	}

	session := resp.session(time.Now())
	c.adoptSession(session)
	c.hub.emit(SessionEvent{Kind: EventSignedIn, Session: session.clone()})
	return session.clone(), nil
}

// SignUp implements [Client].
//
// Projects with email confirmation enabled return a user without tokens; the
// caller signs in after confirming.
func (c *SupabaseClient) SignUp(ctx context.Context, email, password string) (*Session, error) {
	var resp authSessionResponse
	err := c.authRequest(ctx, http.MethodPost, "/auth/v1/signup",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, err
	}

	session := resp.session(time.Now())
	if session.User == nil && resp.ID != "" {
		session.User = &User{ID: resp.ID, Email: email}
	}
	if session.Valid() {
		c.adoptSession(session)
		c.hub.emit(SessionEvent{Kind: EventSignedIn, Session: session.clone()})
	}
	return session.clone(), nil
}

// SetSession adopts externally obtained tokens (e.g. from the OAuth callback
// flow) and resolves the user they belong to.
func (c *SupabaseClient) SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, &AuthError{Kind: AuthSessionMissing, Message: "both tokens are required"}
	}

	var user User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return nil, err
	}

	session := &Session{AccessToken: accessToken, RefreshToken: refreshToken, User: &user}
	c.adoptSession(session)
	c.hub.emit(SessionEvent{Kind: EventSignedIn, Session: session.clone()})
	return session.clone(), nil
}

// SignOut implements [Client]. Local state and the token store are cleared
// before the network call so the client is never left signed in locally after
// a failed revocation.
func (c *SupabaseClient) SignOut(ctx context.Context, scope SignOutScope) error {
	c.mu.Lock()
	accessToken := ""
	if c.session != nil {
		accessToken = c.session.AccessToken
	}
	c.session = nil
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			c.logger.Warnf("failed to clear saved session: %v", err)
		}
	}

	c.hub.emit(SessionEvent{Kind: EventSignedOut})

	if accessToken == "" {
		return nil
	}
	if scope == "" {
		scope = SignOutGlobal
	}
	return c.doJSON(ctx, http.MethodPost, "/auth/v1/logout?scope="+string(scope), accessToken, struct{}{}, nil)
}

// RequestPasswordReset implements [Client].
func (c *SupabaseClient) RequestPasswordReset(ctx context.Context, email string) error {
	return c.authRequest(ctx, http.MethodPost, "/auth/v1/recover", map[string]string{"email": email}, nil)
}

// UpdatePassword implements [Client].
func (c *SupabaseClient) UpdatePassword(ctx context.Context, newPassword string) error {
	token := c.accessToken()
	if token == "" {
		return &AuthError{Kind: AuthSessionMissing, Message: "not signed in"}
	}

	if err := c.doJSON(ctx, http.MethodPut, "/auth/v1/user", token, map[string]string{"password": newPassword}, nil); err != nil {
		return err
	}

	c.mu.Lock()
	session := c.session.clone()
	c.mu.Unlock()
	c.hub.emit(SessionEvent{Kind: EventUserUpdated, Session: session})
	return nil
}

// QueryRows implements [Client].
func (c *SupabaseClient) QueryRows(ctx context.Context, table string, pred Predicate) ([]Row, error) {
	endpoint := "/rest/v1/" + url.PathEscape(table) + "?select=*" + encodePredicate(pred)

	var rows []Row
	if err := c.doJSON(ctx, http.MethodGet, endpoint, c.accessToken(), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertRow implements [Client].
func (c *SupabaseClient) UpsertRow(ctx context.Context, table string, row Row) (Row, error) {
	endpoint := "/rest/v1/" + url.PathEscape(table)

	var rows []Row
	err := c.doRequest(ctx, http.MethodPost, endpoint, c.accessToken(), row, &rows, map[string]string{
		"Prefer": "resolution=merge-duplicates,return=representation",
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("upsert into %s returned no rows", table)
	}
	return rows[0], nil
}

// DeleteRow implements [Client]. An empty predicate is rejected.
func (c *SupabaseClient) DeleteRow(ctx context.Context, table string, pred Predicate) error {
	if len(pred) == 0 {
		return fmt.Errorf("refusing to delete from %s without a predicate", table)
	}

	endpoint := "/rest/v1/" + url.PathEscape(table) + "?" + strings.TrimPrefix(encodePredicate(pred), "&")
	return c.doJSON(ctx, http.MethodDelete, endpoint, c.accessToken(), nil, nil)
}

// UploadBlob implements [Client]. Returns the public URL of the object.
func (c *SupabaseClient) UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, url.PathEscape(bucket), path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if token := c.accessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, url.PathEscape(bucket), path), nil
}

func (c *SupabaseClient) adoptSession(s *Session) {
	c.mu.Lock()
	c.session = s.clone()
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(s); err != nil {
			c.logger.Warnf("failed to persist session: %v", err)
		}
	}
}

func (c *SupabaseClient) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.User != nil {
		user := *s.User
		out.User = &user
	}
	return &out
}

// authRequest performs an unauthenticated GoTrue call and maps failures to
// typed [AuthError] values.
func (c *SupabaseClient) authRequest(ctx context.Context, method, endpoint string, body, result any) error {
	err := c.doJSON(ctx, method, endpoint, "", body, result)
	if err == nil {
		return nil
	}
	var he *httpError
	if !asHTTPError(err, &he) {
		return err
	}
	return decodeAuthError(he)
}

// httpError carries a non-2xx response for error mapping.
type httpError struct {
	Status int
	Body   []byte
}

func (e *httpError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

func asHTTPError(err error, target **httpError) bool {
	he, ok := err.(*httpError)
	if ok {
		*target = he
	}
	return ok
}

// decodeAuthError maps a GoTrue error response to a typed [AuthError].
func decodeAuthError(he *httpError) *AuthError {
	var payload struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
		Message     string `json:"message"`
		Msg         string `json:"msg"`
	}
	_ = json.Unmarshal(he.Body, &payload)

	message := payload.Description
	for _, m := range []string{payload.Message, payload.Msg, payload.Error} {
		if message == "" {
			message = m
		}
	}

	kind := AuthUnknown
	lower := strings.ToLower(message)
	switch {
	case he.Status == http.StatusTooManyRequests || strings.Contains(lower, "rate limit"):
		kind = AuthRateLimited
	case strings.Contains(lower, "refresh token not found"):
		kind = AuthRefreshTokenNotFound
	case strings.Contains(lower, "invalid refresh token"):
		kind = AuthInvalidRefreshToken
	case strings.Contains(lower, "session missing"):
		kind = AuthSessionMissing
	case strings.Contains(lower, "invalid login credentials"):
		kind = AuthInvalidCredentials
	}

	return &AuthError{Kind: kind, Message: message, Status: he.Status}
}

// doJSON performs a request with default headers.
func (c *SupabaseClient) doJSON(ctx context.Context, method, endpoint, token string, body, result any) error {
	return c.doRequest(ctx, method, endpoint, token, body, result, nil)
}

// doRequest performs an HTTP request against the project, JSON in and out.
func (c *SupabaseClient) doRequest(ctx context.Context, method, endpoint, token string, body, result any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{Status: resp.StatusCode, Body: data}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// encodePredicate renders a [Predicate] as PostgREST filters, sorted for
// stable URLs.
func encodePredicate(pred Predicate) string {
	if len(pred) == 0 {
		return ""
	}

	cols := make([]string, 0, len(pred))
	for col := range pred {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sb strings.Builder
	for _, col := range cols {
		sb.WriteString("&")
		sb.WriteString(url.QueryEscape(col))
		sb.WriteString("=")
		switch v := pred[col].(type) {
		case []string:
			sb.WriteString("in.(" + url.QueryEscape(strings.Join(v, ",")) + ")")
		default:
			sb.WriteString("eq." + url.QueryEscape(fmt.Sprint(v)))
		}
	}
	return sb.String()
}
