package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/gamify-app/gamify/internal/formatter"
	"github.com/gamify-app/gamify/internal/models"
	"github.com/gamify-app/gamify/internal/shared"
)

// Library is the read side the engine exports from, satisfied by
// collections.Manager.
type Library interface {
	Library(ctx context.Context, force bool) ([]models.Playlist, error)
}

// Snapshotter persists an exported collection locally, satisfied by
// repositories.SnapshotRepository.
type Snapshotter interface {
	SaveCollection(collection string, playlists []models.Playlist) error
}

// ExportEngine writes playlists to disk using a bounded worker pool.
type ExportEngine struct {
	library   Library
	snapshots Snapshotter
	logger    *log.Logger
}

// NewExportEngine creates an export engine. snapshots may be nil to skip
// offline snapshots.
func NewExportEngine(library Library, snapshots Snapshotter, logger *log.Logger) *ExportEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ExportEngine{library: library, snapshots: snapshots, logger: logger}
}

// ExportOpts configures a bulk export.
type ExportOpts struct {
	Format     formatter.Format // Output format (default: json)
	OutputDir  string           // Output directory (default: gamify_export_{epoch})
	NumWorkers int              // Concurrent workers (default: 4, capped at 8)
	RateLimit  float64          // Jobs dispatched per second (default: 10)
	Collection string           // Snapshot collection name (default: "library")
}

// PlaylistExportResult is the outcome of exporting one playlist.
type PlaylistExportResult struct {
	PlaylistID string
	Title      string
	File       string
	Err        error
}

// ExportResult summarizes a bulk export run.
type ExportResult struct {
	Total           int
	Succeeded       int
	Failed          int
	OutputDirectory string
	Results         []PlaylistExportResult
}

type exportJob struct {
	index    int
	playlist models.Playlist
}

// ExportLibrary exports every playlist in the user's library.
func (e *ExportEngine) ExportLibrary(ctx context.Context, prog chan<- ProgressUpdate, opts ExportOpts) (*ExportResult, error) {
	playlists, err := e.library.Library(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load library: %w", err)
	}
	return e.ExportPlaylists(ctx, prog, playlists, opts)
}

// ExportPlaylists exports the given playlists concurrently.
//
// Individual failures are recorded in the result rather than aborting the
// run. ctx cancellation stops dispatching new jobs; in-flight jobs finish.
func (e *ExportEngine) ExportPlaylists(ctx context.Context, prog chan<- ProgressUpdate, playlists []models.Playlist, opts ExportOpts) (*ExportResult, error) {
	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("gamify_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 8 {
		opts.NumWorkers = 8
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10.0
	}
	if opts.Collection == "" {
		opts.Collection = "library"
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	e.sendProgress(prog, fetchLibraryUpdate(len(playlists)))

	result := &ExportResult{
		Total:           len(playlists),
		OutputDirectory: opts.OutputDir,
		Results:         make([]PlaylistExportResult, 0, len(playlists)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan exportJob, len(playlists))
	results := make(chan PlaylistExportResult, len(playlists))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for i, playlist := range playlists {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			e.sendProgress(prog, exportingUpdate(i+1, len(playlists), playlist.Title))
			jobs <- exportJob{index: i, playlist: playlist}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Err == nil {
			result.Succeeded++
			e.sendProgress(prog, exportCompletedUpdate(completed, len(playlists), res.Title, res.File))
		} else {
			result.Failed++
			e.sendProgress(prog, exportFailedUpdate(completed, len(playlists), res.Title, res.Err))
		}
	}

	if err := e.writeManifest(result, opts); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}

	if e.snapshots != nil && result.Failed == 0 && len(playlists) > 0 {
		if err := e.snapshots.SaveCollection(opts.Collection, playlists); err != nil {
			e.logger.Warn("failed to write offline snapshot", "err", err)
		} else {
			e.sendProgress(prog, snapshotUpdate(opts.Collection, len(playlists)))
		}
	}

	return result, nil
}

// exportWorker drains the jobs channel, writing one file per playlist.
func (e *ExportEngine) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan exportJob,
	results chan<- PlaylistExportResult,
	opts ExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			results <- PlaylistExportResult{
				PlaylistID: job.playlist.ID,
				Title:      job.playlist.Title,
				Err:        ctx.Err(),
			}
			continue
		default:
		}

		file, err := formatter.WriteExport(&job.playlist, opts.Format, opts.OutputDir)
		results <- PlaylistExportResult{
			PlaylistID: job.playlist.ID,
			Title:      job.playlist.Title,
			File:       file,
			Err:        err,
		}
	}
}

// writeManifest summarizes the run next to the exported files.
func (e *ExportEngine) writeManifest(result *ExportResult, opts ExportOpts) error {
	type manifestEntry struct {
		PlaylistID string `json:"playlist_id"`
		Title      string `json:"title"`
		File       string `json:"file,omitempty"`
		Error      string `json:"error,omitempty"`
	}
	manifest := struct {
		Format    string          `json:"format"`
		Total     int             `json:"total"`
		Succeeded int             `json:"succeeded"`
		Failed    int             `json:"failed"`
		CreatedAt time.Time       `json:"created_at"`
		Entries   []manifestEntry `json:"entries"`
	}{
		Format:    string(opts.Format),
		Total:     result.Total,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		CreatedAt: time.Now().UTC(),
		Entries:   make([]manifestEntry, 0, len(result.Results)),
	}

	for _, res := range result.Results {
		entry := manifestEntry{PlaylistID: res.PlaylistID, Title: res.Title, File: res.File}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		manifest.Entries = append(manifest.Entries, entry)
	}

	data, err := shared.MarshalIndentJSON(manifest)
	if err != nil {
		return err
	}

	path := filepath.Join(opts.OutputDir, "export_manifest.json")
	return os.WriteFile(path, data, 0644)
}

// sendProgress sends a non-blocking progress update.
func (e *ExportEngine) sendProgress(prog chan<- ProgressUpdate, update ProgressUpdate) {
	if prog == nil {
		return
	}
	select {
	case prog <- update:
	default:
	}
}
