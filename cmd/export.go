package main

import (
	"context"
	"fmt"

	"github.com/gamify-app/gamify/internal/formatter"
	"github.com/gamify-app/gamify/internal/shared"
	"github.com/gamify-app/gamify/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Export writes the library to disk with the bounded worker pool.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStarted(ctx); err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	// A forced load warms the cache so the engine reads fresh data.
	if cmd.Bool("force") {
		if _, err := r.collections.Library(ctx, true); err != nil {
			return err
		}
	}

	var snapshots tasks.Snapshotter
	if r.snapshots != nil {
		snapshots = r.snapshots
	}
	engine := tasks.NewExportEngine(r.collections, snapshots, r.logger)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchLibrary:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.ExportPlaylist:
				r.writePlain("   %s\n", update.Message)
			case tasks.WriteSnapshot:
				r.writePlain("\n💾 %s\n", update.Message)
			}
		}
	}()

	result, err := engine.ExportLibrary(ctx, progressCh, tasks.ExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate"),
	})
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Export Complete")
	r.writePlain("Playlists: %d/%d exported\n", result.Succeeded, result.Total)
	r.writePlain("Output: %s\n", result.OutputDirectory)

	if result.Failed > 0 {
		r.writePlain("\nFailed to export %d playlists:\n", result.Failed)
		for _, res := range result.Results {
			if res.Err != nil {
				r.writePlain("  • %s: %v\n", res.Title, res.Err)
			}
		}
	}
	return nil
}

// SnapshotList prints the playlists saved in an offline snapshot.
func (r *Runner) SnapshotList(ctx context.Context, cmd *cli.Command) error {
	if r.snapshots == nil {
		return fmt.Errorf("%w: continuity database is not configured", shared.ErrMissingConfig)
	}

	collection := cmd.String("collection")
	playlists, err := r.snapshots.ListCollection(collection)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}

	if len(playlists) == 0 {
		r.writePlain("No snapshot for collection %q\n", collection)
		return nil
	}

	savedAt, err := r.snapshots.SavedAt(collection)
	if err == nil && !savedAt.IsZero() {
		r.writePlain("Snapshot of %q saved %s\n\n", collection, savedAt.Format("2006-01-02 15:04"))
	}
	for _, pl := range playlists {
		r.writePlain("%s  %s (%d tracks)\n", pl.ID, pl.Title, len(pl.Tracks))
	}
	return nil
}
