// Package spotify parses Spotify listening history dumps and aggregates
// them into per-track and per-artist statistics.
//
// Two formats are understood: the "Account data" export
// (StreamingHistory_music_N.json, minute resolution) and the "Extended
// streaming history" export (Streaming_History_Audio_*.json).
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMinPlay is the listening time from which a stream counts as a play.
const DefaultMinPlay = 30 * time.Second

// Play is a single stream.
type Play struct {
	Time     time.Time
	Artist   string
	Track    string
	Album    string
	URI      string
	MsPlayed int64
	Skipped  bool
}

type accountRow struct {
	EndTime    string `json:"endTime"`
	ArtistName string `json:"artistName"`
	TrackName  string `json:"trackName"`
	MsPlayed   int64  `json:"msPlayed"`
}

type extendedRow struct {
	TS       string  `json:"ts"`
	MsPlayed int64   `json:"ms_played"`
	Track    *string `json:"master_metadata_track_name"`
	Artist   *string `json:"master_metadata_album_artist_name"`
	Album    *string `json:"master_metadata_album_album_name"`
	URI      *string `json:"spotify_track_uri"`
	Skipped  *bool   `json:"skipped"`
}

// Parse decodes one history file. Entries without a track name (podcast
// episodes, audiobooks, videos) are dropped.
func Parse(data []byte) ([]Play, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	if bytes.Contains(raw[0], []byte(`"ts"`)) {
		return parseExtended(data)
	}
	return parseAccount(data)
}

func parseAccount(data []byte) ([]Play, error) {
	var rows []accountRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode account history: %w", err)
	}
	plays := make([]Play, 0, len(rows))
	for _, r := range rows {
		if r.TrackName == "" {
			continue
		}
		ts, err := time.Parse("2006-01-02 15:04", r.EndTime)
		if err != nil {
			return nil, fmt.Errorf("bad endTime %q: %w", r.EndTime, err)
		}
		plays = append(plays, Play{
			Time:     ts.UTC(),
			Artist:   r.ArtistName,
			Track:    r.TrackName,
			MsPlayed: r.MsPlayed,
		})
	}
	return plays, nil
}

func parseExtended(data []byte) ([]Play, error) {
	var rows []extendedRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode extended history: %w", err)
	}
	plays := make([]Play, 0, len(rows))
	for _, r := range rows {
		if r.Track == nil || *r.Track == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, r.TS)
		if err != nil {
			return nil, fmt.Errorf("bad ts %q: %w", r.TS, err)
		}
		p := Play{
			Time:     ts.UTC(),
			Track:    *r.Track,
			MsPlayed: r.MsPlayed,
		}
		if r.Artist != nil {
			p.Artist = *r.Artist
		}
		if r.Album != nil {
			p.Album = *r.Album
		}
		if r.URI != nil {
			p.URI = *r.URI
		}
		if r.Skipped != nil {
			p.Skipped = *r.Skipped
		}
		plays = append(plays, p)
	}
	return plays, nil
}

// ParseFile reads and parses a single history file.
func ParseFile(path string) ([]Play, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	plays, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return plays, nil
}

// isHistoryFile matches the file names of both export formats.
func isHistoryFile(name string) bool {
	if !strings.HasSuffix(name, ".json") {
		return false
	}
	return strings.HasPrefix(name, "StreamingHistory") || strings.HasPrefix(name, "Streaming_History_Audio")
}

const parseConcurrency = 4

// LoadDir parses every history file in dir concurrently and returns all
// plays ordered by time.
func LoadDir(ctx context.Context, dir string) ([]Play, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read history dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && isHistoryFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no streaming history files in %s", dir)
	}

	var mu sync.Mutex
	var all []Play

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parseConcurrency)
	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plays, err := ParseFile(f)
			if err != nil {
				return err
			}
			slog.Debug("spotify: parsed history file", "file", filepath.Base(f), "plays", len(plays))

			mu.Lock()
			all = append(all, plays...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Time.Before(all[j].Time)
	})
	return all, nil
}
