// Package server provides HTTP routing, middleware, and the OAuth callback
// flow for provider sign-in.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
// [Middleware] wraps handlers in reverse order (last added executes first),
// following the standard Go pattern. The [BasicRouter] implementation uses
// [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback. It
// validates the state parameter (CSRF protection), exchanges the code for
// tokens, and sends the result through a channel. It only processes one
// callback to prevent replay attacks.
//
// # Usage
//
// When the user signs in with a provider, [Flow] starts a temporary HTTP
// server on the configured redirect address, opens the provider's
// authorization page, handles the callback and shuts down after receiving
// the token. The resulting token pair is then adopted as the backend
// session.
package server
