package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication and session errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrSessionCorrupt   = fmt.Errorf("session is missing tokens")
	ErrRefreshFailed    = fmt.Errorf("session refresh failed")

	// Cache engine errors
	ErrFetchTimeout   = fmt.Errorf("collection fetch timed out")
	ErrFetchDiscarded = fmt.Errorf("collection fetch superseded")
	ErrSuspended      = fmt.Errorf("cache suspended")

	// Backend and service errors
	ErrBackendRequest   = fmt.Errorf("backend request failed")
	ErrRateLimited      = fmt.Errorf("request rate limit reached")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrTrackNotFound    = fmt.Errorf("track not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrUsernameTaken   = fmt.Errorf("username already in use")
	ErrFileTooLarge    = fmt.Errorf("file exceeds the maximum allowed size")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
