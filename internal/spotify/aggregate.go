package spotify

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lthms/shelf/internal/explorer"
)

// Track is the aggregated listening history of one song.
type Track struct {
	ID          string    `json:"id"`
	Artist      string    `json:"artist"`
	Name        string    `json:"name"`
	Album       string    `json:"album,omitempty"`
	URI         string    `json:"uri,omitempty"`
	Plays       int       `json:"plays"`
	Skips       int       `json:"skips"`
	MsPlayed    int64     `json:"ms_played"`
	FirstPlayed time.Time `json:"first_played"`
	LastPlayed  time.Time `json:"last_played"`
}

// Artist rolls tracks up per artist.
type Artist struct {
	Name     string    `json:"name"`
	Tracks   int       `json:"tracks"`
	Plays    int       `json:"plays"`
	MsPlayed int64     `json:"ms_played"`
	LastPlay time.Time `json:"last_played"`
}

// TrackID is the stable identifier of an (artist, track) pair.
func TrackID(artist, track string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + "\x1f" + strings.ToLower(strings.TrimSpace(track))
}

// Aggregate groups plays by (artist, track). A stream shorter than minPlay
// adds listening time but does not count as a play. Tracks are returned by
// descending play count, then descending listening time, then name.
func Aggregate(plays []Play, minPlay time.Duration) []Track {
	if minPlay <= 0 {
		minPlay = DefaultMinPlay
	}
	minMs := minPlay.Milliseconds()

	byID := make(map[string]*Track)
	var order []string
	for _, p := range plays {
		id := TrackID(p.Artist, p.Track)
		t, ok := byID[id]
		if !ok {
			t = &Track{ID: id, Artist: p.Artist, Name: p.Track}
			byID[id] = t
			order = append(order, id)
		}
		if t.Album == "" {
			t.Album = p.Album
		}
		if t.URI == "" {
			t.URI = p.URI
		}
		t.MsPlayed += p.MsPlayed
		if p.Skipped {
			t.Skips++
		}
		if p.MsPlayed >= minMs {
			t.Plays++
		}
		if t.FirstPlayed.IsZero() || p.Time.Before(t.FirstPlayed) {
			t.FirstPlayed = p.Time
		}
		if p.Time.After(t.LastPlayed) {
			t.LastPlayed = p.Time
		}
	}

	tracks := make([]Track, 0, len(order))
	for _, id := range order {
		tracks = append(tracks, *byID[id])
	}
	sort.SliceStable(tracks, func(i, j int) bool {
		a, b := tracks[i], tracks[j]
		if a.Plays != b.Plays {
			return a.Plays > b.Plays
		}
		if a.MsPlayed != b.MsPlayed {
			return a.MsPlayed > b.MsPlayed
		}
		return a.Name < b.Name
	})
	return tracks
}

// Artists rolls aggregated tracks up per artist, by descending plays.
func Artists(tracks []Track) []Artist {
	byName := make(map[string]*Artist)
	var order []string
	for _, t := range tracks {
		key := strings.ToLower(t.Artist)
		a, ok := byName[key]
		if !ok {
			a = &Artist{Name: t.Artist}
			byName[key] = a
			order = append(order, key)
		}
		a.Tracks++
		a.Plays += t.Plays
		a.MsPlayed += t.MsPlayed
		if t.LastPlayed.After(a.LastPlay) {
			a.LastPlay = t.LastPlayed
		}
	}

	out := make([]Artist, 0, len(order))
	for _, k := range order {
		out = append(out, *byName[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Plays != out[j].Plays {
			return out[i].Plays > out[j].Plays
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// NewTrackExplorer returns the explorer behind the music page.
func NewTrackExplorer() *explorer.Explorer[Track] {
	return explorer.New(
		func(t Track) string { return t.Name + " " + t.Artist + " " + t.Album },
		explorer.Field[Track]{
			Name:    "name",
			Label:   "Track",
			Compare: explorer.ByString(func(t Track) string { return t.Name }),
		},
		explorer.Field[Track]{
			Name:    "artist",
			Label:   "Artist",
			Values:  func(t Track) []string { return explorer.One(t.Artist) },
			Compare: explorer.ByString(func(t Track) string { return t.Artist }),
		},
		explorer.Field[Track]{
			Name:   "album",
			Label:  "Album",
			Values: func(t Track) []string { return explorer.One(t.Album) },
		},
		explorer.Field[Track]{
			Name:    "plays",
			Label:   "Plays",
			Compare: explorer.ByOrdered(func(t Track) int { return t.Plays }),
		},
		explorer.Field[Track]{
			Name:    "time",
			Label:   "Listening time",
			Compare: explorer.ByOrdered(func(t Track) int64 { return t.MsPlayed }),
		},
		explorer.Field[Track]{
			Name:    "last",
			Label:   "Last played",
			Values:  func(t Track) []string { return yearOf(t.LastPlayed) },
			Compare: explorer.ByTime(func(t Track) time.Time { return t.LastPlayed }),
		},
	).WithDefaultSort("plays", true)
}

func yearOf(t time.Time) []string {
	if t.IsZero() {
		return nil
	}
	return []string{t.Format("2006")}
}

// TrackColumns are the CSV export columns of the music explorer.
var TrackColumns = []explorer.Column[Track]{
	{Name: "artist", Value: func(t Track) string { return t.Artist }},
	{Name: "track", Value: func(t Track) string { return t.Name }},
	{Name: "album", Value: func(t Track) string { return t.Album }},
	{Name: "plays", Value: func(t Track) string { return strconv.Itoa(t.Plays) }},
	{Name: "minutes", Value: func(t Track) string { return strconv.FormatInt(t.MsPlayed/60000, 10) }},
	{Name: "last_played", Value: func(t Track) string { return formatDate(t.LastPlayed) }},
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
