// Package tasks orchestrates long-running operations over the cached
// collections with real-time progress reporting.
//
// The [ExportEngine] writes playlists to disk in any formatter format using a
// bounded worker pool. Jobs are paced by a rate limiter so a large library
// export does not hammer the disk or the image CDN, partial failures are
// collected rather than aborting the run, and a manifest file summarizes the
// results.
//
// Progress updates are sent on a non-blocking channel: a slow or absent
// consumer never stalls the export. [ProgressUpdate] carries phase, step
// counters and a display message.
//
// When a [Snapshotter] is attached, a completed export also refreshes the
// local offline snapshot of the exported collection.
package tasks
