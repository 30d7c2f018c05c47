// Package repositories implements SQLite persistence for local continuity.
//
// The app's source of truth is the hosted backend; what lives here is the
// small amount of state that must survive between runs on this machine:
//
//   - [SessionRepository] : the saved session marker used to resume a
//     sign-in, implementing backend.TokenStore
//   - [SnapshotRepository] : offline playlist snapshots written by the
//     export pipeline, grouped by collection
package repositories
