// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a two-level library browser:
//  1. [LibraryView] : Browse the cached playlist library, toggle playlist favorites
//  2. [TrackListView] : Browse a playlist's tracks, toggle track favorites
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// All data flows through the collections manager, so browsing is served from the
// in-memory cache and a manual refresh forces a backend round trip. Terminal
// focus events suspend and resume the cache's background refreshing.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, f, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
