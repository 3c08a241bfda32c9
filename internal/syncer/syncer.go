// Package syncer pulls remote sources and local exports into the store.
//
// Remote sources are synced sequentially: fetch a page, upsert it, fetch
// the next one. The incremental cursor of a source only moves once the
// whole source completed, so an interrupted sync is simply resumed from
// the previous cursor next time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/lthms/shelf/internal/goodreads"
	"github.com/lthms/shelf/internal/raindrop"
	"github.com/lthms/shelf/internal/spotify"
	"github.com/lthms/shelf/internal/store"
	"github.com/lthms/shelf/internal/zotero"
)

// Source names, as recorded in sync_state and sync_runs.
const (
	SourceRaindrop  = "raindrop"
	SourceZotero    = "zotero"
	SourceGoodreads = "goodreads"
	SourceSpotify   = "spotify"
)

// RemoteSources lists the sources Run knows, in default order.
var RemoteSources = []string{SourceRaindrop, SourceZotero}

// ErrNotConfigured is returned for a source without a client.
var ErrNotConfigured = errors.New("source not configured")

// Syncer wires the API clients to the store.
type Syncer struct {
	Store    *store.Store
	Raindrop *raindrop.Client // nil disables the source
	Zotero   *zotero.Client   // nil disables the source

	Collection int64 // Raindrop collection, 0 = all
	PerPage    int   // Raindrop page size
	Limit      int   // Zotero page size
}

// Result is the outcome of one source.
type Result struct {
	Source   string
	RunID    string
	Stats    store.RunStats
	Duration time.Duration
	Err      error
}

// Run syncs sources in order. A failing source does not stop the others;
// all errors are returned joined.
func (s *Syncer) Run(ctx context.Context, sources []string, full bool) ([]Result, error) {
	if len(sources) == 0 {
		sources = RemoteSources
	}

	var (
		results []Result
		errs    []error
	)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		var fn func(context.Context, bool) (store.RunStats, error)
		switch src {
		case SourceRaindrop:
			fn = s.SyncRaindrop
		case SourceZotero:
			fn = s.SyncZotero
		default:
			errs = append(errs, fmt.Errorf("unknown source %q", src))
			continue
		}

		r := s.record(ctx, src, full, func(ctx context.Context) (store.RunStats, error) {
			return fn(ctx, full)
		})
		if r.Err != nil {
			slog.Error("sync: source failed", "source", src, "error", r.Err)
			errs = append(errs, fmt.Errorf("%s: %w", src, r.Err))
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

// record runs fn inside a sync_runs row.
func (s *Syncer) record(ctx context.Context, source string, full bool, fn func(context.Context) (store.RunStats, error)) Result {
	r := Result{Source: source}
	start := time.Now()

	id, err := s.Store.StartRun(ctx, source, full)
	if err != nil {
		r.Err = err
		return r
	}
	r.RunID = id

	r.Stats, r.Err = fn(ctx)
	r.Duration = time.Since(start)

	// Record the outcome even if ctx was cancelled mid-run.
	if err := s.Store.FinishRun(context.WithoutCancel(ctx), id, r.Stats, r.Err); err != nil {
		slog.Warn("sync: record run failed", "source", source, "run", id, "error", err)
	}
	slog.Info("sync: source done", "source", source, "fetched", r.Stats.Fetched,
		"upserted", r.Stats.Upserted, "deleted", r.Stats.Deleted, "duration", r.Duration.Round(time.Millisecond))
	return r
}

// SyncRaindrop pages through bookmarks, newest update first. In
// incremental mode it stops at the first bookmark not updated since the
// stored cursor (the newest lastUpdate seen by the previous sync).
func (s *Syncer) SyncRaindrop(ctx context.Context, full bool) (store.RunStats, error) {
	var stats store.RunStats
	if s.Raindrop == nil {
		return stats, ErrNotConfigured
	}

	var cursor time.Time
	if !full {
		c, err := s.Store.Cursor(ctx, SourceRaindrop)
		if err != nil {
			return stats, err
		}
		if c != "" {
			if cursor, err = time.Parse(time.RFC3339Nano, c); err != nil {
				return stats, fmt.Errorf("bad raindrop cursor %q: %w", c, err)
			}
		}
	}

	perPage := s.PerPage
	if perPage <= 0 || perPage > raindrop.MaxPerPage {
		perPage = raindrop.MaxPerPage
	}

	newest := cursor
	for page := 0; ; page++ {
		items, count, err := s.Raindrop.Page(ctx, s.Collection, page, perPage)
		if err != nil {
			return stats, err
		}
		stats.Fetched += len(items)
		slog.Debug("sync: page fetched", "source", SourceRaindrop, "page", page, "items", len(items), "count", count)
		if len(items) == 0 {
			break
		}

		fresh := items
		reachedCursor := false
		if !cursor.IsZero() {
			fresh = nil
			for _, b := range items {
				if b.LastUpdate.After(cursor) {
					fresh = append(fresh, b)
				} else {
					reachedCursor = true
				}
			}
		}
		for _, b := range fresh {
			if b.LastUpdate.After(newest) {
				newest = b.LastUpdate
			}
		}

		n, err := s.Store.UpsertBookmarks(ctx, fresh)
		if err != nil {
			return stats, err
		}
		stats.Upserted += n

		if reachedCursor || (page+1)*perPage >= count {
			break
		}
	}

	if newest.After(cursor) {
		if err := s.Store.SetCursor(ctx, SourceRaindrop, newest.UTC().Format(time.RFC3339Nano)); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// SyncZotero fetches items modified since the stored library version and
// applies deletions reported since that version. A full sync refetches
// everything and skips deletions.
func (s *Syncer) SyncZotero(ctx context.Context, full bool) (store.RunStats, error) {
	var stats store.RunStats
	if s.Zotero == nil {
		return stats, ErrNotConfigured
	}

	var since int64
	if !full {
		c, err := s.Store.Cursor(ctx, SourceZotero)
		if err != nil {
			return stats, err
		}
		if c != "" {
			if since, err = strconv.ParseInt(c, 10, 64); err != nil {
				return stats, fmt.Errorf("bad zotero cursor %q: %w", c, err)
			}
		}
	}

	version := since
	for start := 0; ; {
		res, err := s.Zotero.Page(ctx, start, s.Limit, since)
		if err != nil {
			return stats, err
		}
		stats.Fetched += res.Fetched
		slog.Debug("sync: page fetched", "source", SourceZotero, "start", start, "items", res.Fetched, "total", res.Total)
		if res.Version > version {
			version = res.Version
		}

		n, err := s.Store.UpsertPapers(ctx, res.Papers)
		if err != nil {
			return stats, err
		}
		stats.Upserted += n

		start += res.Fetched
		if res.Fetched == 0 || start >= res.Total {
			break
		}
	}

	if since > 0 {
		keys, err := s.Zotero.Deleted(ctx, since)
		if err != nil {
			return stats, err
		}
		n, err := s.Store.DeletePapers(ctx, keys)
		if err != nil {
			return stats, err
		}
		stats.Deleted = n
	}

	if version > since {
		if err := s.Store.SetCursor(ctx, SourceZotero, strconv.FormatInt(version, 10)); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// ImportBooks replaces the stored books with a Goodreads export.
func (s *Syncer) ImportBooks(ctx context.Context, path string) (Result, error) {
	r := s.record(ctx, SourceGoodreads, true, func(ctx context.Context) (store.RunStats, error) {
		var stats store.RunStats
		f, err := os.Open(path)
		if err != nil {
			return stats, err
		}
		defer f.Close()

		books, err := goodreads.Parse(f)
		if err != nil {
			return stats, err
		}
		stats.Fetched = len(books)
		if err := s.Store.ReplaceBooks(ctx, books); err != nil {
			return stats, err
		}
		stats.Upserted = len(books)
		return stats, nil
	})
	return r, r.Err
}

// ImportMusic replaces the stored tracks with the aggregate of a Spotify
// history dump directory.
func (s *Syncer) ImportMusic(ctx context.Context, dir string, minPlay time.Duration) (Result, error) {
	r := s.record(ctx, SourceSpotify, true, func(ctx context.Context) (store.RunStats, error) {
		var stats store.RunStats
		plays, err := spotify.LoadDir(ctx, dir)
		if err != nil {
			return stats, err
		}
		stats.Fetched = len(plays)

		tracks := spotify.Aggregate(plays, minPlay)
		if err := s.Store.ReplaceTracks(ctx, tracks); err != nil {
			return stats, err
		}
		stats.Upserted = len(tracks)
		return stats, nil
	})
	return r, r.Err
}
