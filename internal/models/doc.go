// package models defines the data model for the gamify client.
//
// The core entities are [Playlist] and [Track] (video-game soundtrack
// playlists), plus the [Profile] row attached to an authenticated user.
// Entities pass through the collection cache verbatim; the client only
// interprets id, type, and the track list.
package models
