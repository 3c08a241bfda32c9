package spotify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lthms/shelf/internal/explorer"
)

const accountJSON = `[
  {"endTime": "2023-03-01 08:15", "artistName": "Low", "trackName": "Lullaby", "msPlayed": 420000},
  {"endTime": "2023-03-01 08:20", "artistName": "Low", "trackName": "Lullaby", "msPlayed": 5000},
  {"endTime": "2023-03-02 09:00", "artistName": "Some Podcast", "trackName": "", "msPlayed": 900000}
]`

const extendedJSON = `[
  {
    "ts": "2023-02-27T21:00:00Z",
    "ms_played": 250000,
    "master_metadata_track_name": "Lullaby",
    "master_metadata_album_artist_name": "Low",
    "master_metadata_album_album_name": "I Could Live in Hope",
    "spotify_track_uri": "spotify:track:abc",
    "skipped": false
  },
  {
    "ts": "2023-03-05T10:00:00Z",
    "ms_played": 12000,
    "master_metadata_track_name": "Words",
    "master_metadata_album_artist_name": "Low",
    "master_metadata_album_album_name": "I Could Live in Hope",
    "spotify_track_uri": "spotify:track:def",
    "skipped": true
  },
  {
    "ts": "2023-03-06T10:00:00Z",
    "ms_played": 1800000,
    "master_metadata_track_name": null,
    "episode_name": "Episode 12"
  }
]`

func TestParse_Account(t *testing.T) {
	plays, err := Parse([]byte(accountJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Play{
		{Time: time.Date(2023, 3, 1, 8, 15, 0, 0, time.UTC), Artist: "Low", Track: "Lullaby", MsPlayed: 420000},
		{Time: time.Date(2023, 3, 1, 8, 20, 0, 0, time.UTC), Artist: "Low", Track: "Lullaby", MsPlayed: 5000},
	}
	if diff := cmp.Diff(want, plays); diff != "" {
		t.Errorf("plays mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Extended(t *testing.T) {
	plays, err := Parse([]byte(extendedJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(plays) != 2 {
		t.Fatalf("plays = %d, want 2 (episode dropped)", len(plays))
	}
	if plays[1].Track != "Words" || !plays[1].Skipped || plays[1].URI != "spotify:track:def" {
		t.Errorf("second play = %+v", plays[1])
	}
	if plays[0].Album != "I Could Live in Hope" {
		t.Errorf("album = %q", plays[0].Album)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte(`{"not": "an array"}`)); err == nil {
		t.Error("expected error for non-array input")
	}
	if _, err := Parse([]byte(`[{"endTime": "yesterday", "trackName": "x"}]`)); err == nil {
		t.Error("expected error for bad endTime")
	}
	plays, err := Parse([]byte(`[]`))
	if err != nil || plays != nil {
		t.Errorf("empty array: plays=%v err=%v", plays, err)
	}
}

func TestLoadDirAndAggregate(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "StreamingHistory_music_0.json"), []byte(accountJSON), 0600)
	os.WriteFile(filepath.Join(dir, "Streaming_History_Audio_2023.json"), []byte(extendedJSON), 0600)
	os.WriteFile(filepath.Join(dir, "Userdata.json"), []byte(`{"username": "x"}`), 0600)

	plays, err := LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(plays) != 4 {
		t.Fatalf("plays = %d, want 4", len(plays))
	}
	for i := 1; i < len(plays); i++ {
		if plays[i].Time.Before(plays[i-1].Time) {
			t.Fatalf("plays not sorted at %d", i)
		}
	}

	tracks := Aggregate(plays, 30*time.Second)
	if len(tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(tracks))
	}

	lullaby := tracks[0]
	if lullaby.Name != "Lullaby" || lullaby.Plays != 2 || lullaby.MsPlayed != 675000 {
		t.Errorf("lullaby = %+v", lullaby)
	}
	if !lullaby.FirstPlayed.Equal(time.Date(2023, 2, 27, 21, 0, 0, 0, time.UTC)) {
		t.Errorf("first played = %v", lullaby.FirstPlayed)
	}
	if !lullaby.LastPlayed.Equal(time.Date(2023, 3, 1, 8, 20, 0, 0, time.UTC)) {
		t.Errorf("last played = %v", lullaby.LastPlayed)
	}
	if lullaby.Album != "I Could Live in Hope" {
		t.Errorf("album = %q, want backfilled from extended history", lullaby.Album)
	}

	words := tracks[1]
	if words.Plays != 0 || words.Skips != 1 {
		t.Errorf("words = %+v", words)
	}

	artists := Artists(tracks)
	if len(artists) != 1 || artists[0].Tracks != 2 || artists[0].Plays != 2 {
		t.Errorf("artists = %+v", artists)
	}
}

func TestLoadDir_NoFiles(t *testing.T) {
	if _, err := LoadDir(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestTrackExplorer(t *testing.T) {
	tracks := []Track{
		{ID: "a", Artist: "Low", Name: "Lullaby", Plays: 3, MsPlayed: 100},
		{ID: "b", Artist: "Grouper", Name: "Heavy Water", Plays: 9, MsPlayed: 50},
		{ID: "c", Artist: "Low", Name: "Words", Plays: 1, MsPlayed: 900},
	}
	e := NewTrackExplorer()

	res, err := e.Run(tracks, explorer.Query{Filters: map[string][]string{"artist": {"Low"}}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Items) != 2 || res.Items[0].ID != "a" {
		t.Errorf("items = %+v", res.Items)
	}

	res, err = e.Run(tracks, explorer.Query{Sort: "time"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Items[0].ID != "b" {
		t.Errorf("ascending time: first = %s, want b", res.Items[0].ID)
	}
}
