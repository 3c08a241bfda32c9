package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lthms/shelf/internal/goodreads"
	"github.com/lthms/shelf/internal/library"
	"github.com/lthms/shelf/internal/raindrop"
	"github.com/lthms/shelf/internal/spotify"
	"github.com/lthms/shelf/internal/zotero"
)

// openTestStore creates a temporary store for testing.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "shelf.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelf.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		s.Close()
	}
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC)
}

func TestUpsertBookmarks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bs := []raindrop.Bookmark{
		{ID: 1, Title: "One", Link: "https://a", Tags: []string{"go"}, Created: day(1), LastUpdate: day(1)},
		{ID: 2, Title: "Two", Link: "https://b", Tags: []string{}, Created: day(2), LastUpdate: day(3)},
	}
	if n, err := s.UpsertBookmarks(ctx, bs); err != nil || n != 2 {
		t.Fatalf("UpsertBookmarks = %d, %v", n, err)
	}
	// Same rows again: idempotent.
	if _, err := s.UpsertBookmarks(ctx, bs); err != nil {
		t.Fatalf("second UpsertBookmarks: %v", err)
	}

	updated := bs[0]
	updated.Title = "One, renamed"
	updated.LastUpdate = day(5)
	if _, err := s.UpsertBookmarks(ctx, []raindrop.Bookmark{updated}); err != nil {
		t.Fatalf("UpsertBookmarks update: %v", err)
	}

	got, err := s.Bookmarks(ctx)
	if err != nil {
		t.Fatalf("Bookmarks: %v", err)
	}
	want := []raindrop.Bookmark{updated, bs[1]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bookmarks mismatch (-want +got):\n%s", diff)
	}

	one, err := s.Bookmark(ctx, 2)
	if err != nil || one.Title != "Two" {
		t.Errorf("Bookmark(2) = %+v, %v", one, err)
	}
	if _, err := s.Bookmark(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("Bookmark(99) err = %v, want ErrNotFound", err)
	}
}

func TestPapers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ps := []zotero.Paper{
		{Key: "AAAA", Version: 3, Title: "Paxos", Authors: []string{"L. Lamport"}, Tags: []string{"distributed"}, DateModified: day(1)},
		{Key: "BBBB", Version: 4, Title: "Raft", Authors: []string{}, Tags: []string{}, Year: 2014, DateModified: day(2)},
	}
	if _, err := s.UpsertPapers(ctx, ps); err != nil {
		t.Fatalf("UpsertPapers: %v", err)
	}

	n, err := s.DeletePapers(ctx, []string{"AAAA", "ZZZZ"})
	if err != nil || n != 1 {
		t.Fatalf("DeletePapers = %d, %v; want 1", n, err)
	}

	got, err := s.Papers(ctx)
	if err != nil {
		t.Fatalf("Papers: %v", err)
	}
	if diff := cmp.Diff([]zotero.Paper{ps[1]}, got); diff != "" {
		t.Errorf("papers mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaceBooksAndTracks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := []goodreads.Book{
		{ID: "1", Title: "Dune", Author: "Frank Herbert", Authors: []string{"Frank Herbert"}, Shelf: "read", DateRead: day(1)},
		{ID: "2", Title: "Solaris", Author: "Stanisław Lem", Shelf: "to-read"},
	}
	if err := s.ReplaceBooks(ctx, first); err != nil {
		t.Fatalf("ReplaceBooks: %v", err)
	}
	if err := s.ReplaceBooks(ctx, first[:1]); err != nil {
		t.Fatalf("ReplaceBooks: %v", err)
	}
	books, err := s.Books(ctx)
	if err != nil {
		t.Fatalf("Books: %v", err)
	}
	if diff := cmp.Diff(first[:1], books); diff != "" {
		t.Errorf("books mismatch (-want +got):\n%s", diff)
	}

	tracks := []spotify.Track{
		{ID: "low\x1fwords", Artist: "Low", Name: "Words", Plays: 1, MsPlayed: 40000},
		{ID: "low\x1flullaby", Artist: "Low", Name: "Lullaby", Plays: 7, MsPlayed: 900000, LastPlayed: day(4)},
	}
	if err := s.ReplaceTracks(ctx, tracks); err != nil {
		t.Fatalf("ReplaceTracks: %v", err)
	}
	got, err := s.Tracks(ctx)
	if err != nil {
		t.Fatalf("Tracks: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Lullaby" || !got[0].LastPlayed.Equal(day(4)) {
		t.Errorf("tracks = %+v", got)
	}
}

func TestCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c, err := s.Cursor(ctx, "raindrop")
	if err != nil || c != "" {
		t.Fatalf("Cursor before set = %q, %v", c, err)
	}
	for _, v := range []string{"100", "250"} {
		if err := s.SetCursor(ctx, "raindrop", v); err != nil {
			t.Fatalf("SetCursor: %v", err)
		}
	}
	if c, _ := s.Cursor(ctx, "raindrop"); c != "250" {
		t.Errorf("Cursor = %q, want 250", c)
	}
	if c, _ := s.Cursor(ctx, "zotero"); c != "" {
		t.Errorf("other source cursor = %q", c)
	}
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.StartRun(ctx, "raindrop", false)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := s.FinishRun(ctx, id1, RunStats{Fetched: 10, Upserted: 10}, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	id2, err := s.StartRun(ctx, "zotero", true)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := s.FinishRun(ctx, id2, RunStats{Fetched: 3}, errors.New("HTTP 500")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	id3, _ := s.StartRun(ctx, "raindrop", false)

	runs, err := s.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != id3 || runs[2].ID != id1 {
		t.Fatalf("runs order = %+v", runs)
	}
	if !runs[0].Running() {
		t.Error("unfinished run not reported as running")
	}
	if runs[1].Error != "HTTP 500" || !runs[1].Full || runs[1].Stats.Fetched != 3 {
		t.Errorf("failed run = %+v", runs[1])
	}
	if runs[2].Stats != (RunStats{Fetched: 10, Upserted: 10}) || runs[2].Running() {
		t.Errorf("first run = %+v", runs[2])
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun err = %v, want ErrNotFound", err)
	}
	if err := s.FinishRun(ctx, "missing", RunStats{}, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun err = %v, want ErrNotFound", err)
	}
}

func TestExport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertBookmarks(ctx, []raindrop.Bookmark{{ID: 7, Title: "Seven", Tags: []string{"go"}, Created: day(1)}})
	s.UpsertPapers(ctx, []zotero.Paper{{Key: "K", Title: "Paper", Tags: []string{"pl"}}})

	dir := filepath.Join(t.TempDir(), "data")
	stats, err := s.Export(ctx, dir)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := ExportStats{BookmarksFile: 1, PapersFile: 1, BooksFile: 0, MusicFile: 0, LibraryFile: 2}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	books, err := os.ReadFile(filepath.Join(dir, BooksFile))
	if err != nil {
		t.Fatalf("read books: %v", err)
	}
	if string(books) != "[]\n" {
		t.Errorf("empty books export = %q, want []", books)
	}

	data, err := os.ReadFile(filepath.Join(dir, LibraryFile))
	if err != nil {
		t.Fatalf("read library: %v", err)
	}
	var res []library.Resource
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode library: %v", err)
	}
	if len(res) != 2 || res[0].ID != "bookmark:7" || res[1].ID != "paper:K" {
		t.Errorf("library = %+v", res)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 5 {
		t.Errorf("export dir has %d entries, want 5 (no temp files left)", len(entries))
	}
}
