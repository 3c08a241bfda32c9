package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lthms/shelf/internal/apiclient"
	"github.com/lthms/shelf/internal/raindrop"
	"github.com/lthms/shelf/internal/store"
	"github.com/lthms/shelf/internal/zotero"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "shelf.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testAPI() *apiclient.Client {
	return apiclient.New(apiclient.Config{Delay: time.Millisecond})
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC)
}

// fakeRaindrop serves bookmarks sorted by descending lastUpdate.
type fakeRaindrop struct {
	mu       sync.Mutex
	items    map[int64]time.Time
	requests int
}

func (f *fakeRaindrop) set(id int64, lastUpdate time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id] = lastUpdate
}

func (f *fakeRaindrop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	type item struct {
		ID         int64    `json:"_id"`
		Title      string   `json:"title"`
		Tags       []string `json:"tags"`
		LastUpdate string   `json:"lastUpdate"`
		Created    string   `json:"created"`
	}
	var all []item
	for id, lu := range f.items {
		all = append(all, item{
			ID:         id,
			Title:      "item " + strconv.FormatInt(id, 10),
			Tags:       []string{"t"},
			LastUpdate: lu.Format(time.RFC3339),
			Created:    day(1).Format(time.RFC3339),
		})
	}
	slices.SortFunc(all, func(a, b item) int { return strings.Compare(b.LastUpdate, a.LastUpdate) })

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perpage"))
	lo := min(page*perPage, len(all))
	hi := min(lo+perPage, len(all))

	json.NewEncoder(w).Encode(map[string]any{
		"result": true,
		"items":  all[lo:hi],
		"count":  len(all),
	})
}

func TestSyncRaindrop_Incremental(t *testing.T) {
	fake := &fakeRaindrop{items: map[int64]time.Time{
		1: day(5), 2: day(4), 3: day(3), 4: day(2), 5: day(1),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	st := openTestStore(t)
	s := &Syncer{
		Store:    st,
		Raindrop: raindrop.NewClient(testAPI(), srv.URL, "tok"),
		PerPage:  2,
	}
	ctx := context.Background()

	stats, err := s.SyncRaindrop(ctx, false)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if diff := cmp.Diff(store.RunStats{Fetched: 5, Upserted: 5}, stats); diff != "" {
		t.Errorf("first sync stats (-want +got):\n%s", diff)
	}
	if c, _ := st.Cursor(ctx, SourceRaindrop); c != day(5).Format(time.RFC3339Nano) {
		t.Errorf("cursor = %q", c)
	}

	fake.set(3, day(6))
	fake.set(6, day(7))
	fake.requests = 0

	stats, err = s.SyncRaindrop(ctx, false)
	if err != nil {
		t.Fatalf("incremental sync: %v", err)
	}
	if diff := cmp.Diff(store.RunStats{Fetched: 4, Upserted: 2}, stats); diff != "" {
		t.Errorf("incremental stats (-want +got):\n%s", diff)
	}
	if fake.requests != 2 {
		t.Errorf("incremental sync made %d requests, want 2", fake.requests)
	}

	b, err := st.Bookmark(ctx, 3)
	if err != nil || !b.LastUpdate.Equal(day(6)) {
		t.Errorf("bookmark 3 = %+v, %v", b, err)
	}
	all, _ := st.Bookmarks(ctx)
	if len(all) != 6 {
		t.Errorf("stored %d bookmarks, want 6", len(all))
	}

	// Nothing new: one request, cursor unchanged.
	fake.requests = 0
	stats, err = s.SyncRaindrop(ctx, false)
	if err != nil || stats.Upserted != 0 || fake.requests != 1 {
		t.Errorf("no-op sync: stats=%+v requests=%d err=%v", stats, fake.requests, err)
	}

	// Full sync ignores the cursor.
	stats, err = s.SyncRaindrop(ctx, true)
	if err != nil || stats.Upserted != 6 {
		t.Errorf("full sync: stats=%+v err=%v", stats, err)
	}
}

// fakeZotero serves a versioned library.
type fakeZotero struct {
	mu      sync.Mutex
	version int64
	items   []zoteroItem
	deleted map[string]int64 // key → version of deletion
}

type zoteroItem struct {
	Key     string `json:"key"`
	Version int64  `json:"version"`
	Data    struct {
		ItemType string `json:"itemType"`
		Title    string `json:"title"`
	} `json:"data"`
}

func newItem(key, itemType string, version int64) zoteroItem {
	it := zoteroItem{Key: key, Version: version}
	it.Data.ItemType = itemType
	it.Data.Title = "Paper " + key
	return it
}

func (f *fakeZotero) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Zotero-API-Key") != "key" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	w.Header().Set("Last-Modified-Version", strconv.FormatInt(f.version, 10))

	switch r.URL.Path {
	case "/users/42/items":
		var matched []zoteroItem
		for _, it := range f.items {
			if it.Version > since {
				matched = append(matched, it)
			}
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		lo := min(start, len(matched))
		hi := min(lo+limit, len(matched))
		w.Header().Set("Total-Results", strconv.Itoa(len(matched)))
		json.NewEncoder(w).Encode(matched[lo:hi])
	case "/users/42/deleted":
		keys := []string{}
		for k, v := range f.deleted {
			if v > since {
				keys = append(keys, k)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"items": keys})
	default:
		http.NotFound(w, r)
	}
}

func TestSyncZotero(t *testing.T) {
	fake := &fakeZotero{
		version: 3,
		items: []zoteroItem{
			newItem("A", "journalArticle", 1),
			newItem("B", "conferencePaper", 2),
			newItem("N", "note", 3),
		},
		deleted: map[string]int64{},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	st := openTestStore(t)
	s := &Syncer{
		Store:  st,
		Zotero: zotero.NewClient(testAPI(), srv.URL, "42", "key"),
		Limit:  2,
	}
	ctx := context.Background()

	stats, err := s.SyncZotero(ctx, false)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if diff := cmp.Diff(store.RunStats{Fetched: 3, Upserted: 2}, stats); diff != "" {
		t.Errorf("first sync stats (-want +got):\n%s", diff)
	}
	if c, _ := st.Cursor(ctx, SourceZotero); c != "3" {
		t.Errorf("cursor = %q, want 3", c)
	}

	fake.mu.Lock()
	fake.items = []zoteroItem{
		newItem("B", "conferencePaper", 4),
		newItem("N", "note", 3),
		newItem("C", "book", 5),
	}
	fake.deleted["A"] = 6
	fake.version = 6
	fake.mu.Unlock()

	stats, err = s.SyncZotero(ctx, false)
	if err != nil {
		t.Fatalf("incremental sync: %v", err)
	}
	if diff := cmp.Diff(store.RunStats{Fetched: 2, Upserted: 2, Deleted: 1}, stats); diff != "" {
		t.Errorf("incremental stats (-want +got):\n%s", diff)
	}

	papers, err := st.Papers(ctx)
	if err != nil {
		t.Fatalf("Papers: %v", err)
	}
	var keys []string
	for _, p := range papers {
		keys = append(keys, p.Key)
	}
	slices.Sort(keys)
	if diff := cmp.Diff([]string{"B", "C"}, keys); diff != "" {
		t.Errorf("stored keys (-want +got):\n%s", diff)
	}
	if c, _ := st.Cursor(ctx, SourceZotero); c != "6" {
		t.Errorf("cursor = %q, want 6", c)
	}
}

func TestRun_FailingSourceDoesNotStopOthers(t *testing.T) {
	fake := &fakeZotero{version: 1, items: []zoteroItem{newItem("A", "book", 1)}, deleted: map[string]int64{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	st := openTestStore(t)
	s := &Syncer{
		Store:  st,
		Zotero: zotero.NewClient(testAPI(), srv.URL, "42", "key"),
	}
	ctx := context.Background()

	results, err := s.Run(ctx, nil, false)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Source != SourceRaindrop || results[0].Err == nil {
		t.Errorf("raindrop result = %+v", results[0])
	}
	if results[1].Source != SourceZotero || results[1].Err != nil || results[1].Stats.Upserted != 1 {
		t.Errorf("zotero result = %+v", results[1])
	}

	runs, err := st.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Running() {
			t.Errorf("run %s not finished", r.ID)
		}
		if r.Source == SourceRaindrop && r.Error == "" {
			t.Error("raindrop run recorded without error")
		}
	}

	if _, err := s.Run(ctx, []string{"myspace"}, false); err == nil || !strings.Contains(err.Error(), "unknown source") {
		t.Errorf("unknown source err = %v", err)
	}
}

func TestImportBooks(t *testing.T) {
	st := openTestStore(t)
	s := &Syncer{Store: st}
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "goodreads_library_export.csv")
	csv := "Book Id,Title,Author,Exclusive Shelf\n1,Dune,Frank Herbert,read\n2,Solaris,Stanisław Lem,to-read\n"
	if err := os.WriteFile(path, []byte(csv), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := s.ImportBooks(ctx, path)
	if err != nil {
		t.Fatalf("ImportBooks: %v", err)
	}
	if r.Stats.Upserted != 2 || r.RunID == "" {
		t.Errorf("result = %+v", r)
	}
	books, _ := st.Books(ctx)
	if len(books) != 2 {
		t.Errorf("stored %d books, want 2", len(books))
	}

	if _, err := s.ImportBooks(ctx, filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestImportMusic(t *testing.T) {
	st := openTestStore(t)
	s := &Syncer{Store: st}
	ctx := context.Background()

	dir := t.TempDir()
	history := `[
	  {"endTime": "2023-03-01 08:15", "artistName": "Low", "trackName": "Lullaby", "msPlayed": 420000},
	  {"endTime": "2023-03-01 08:30", "artistName": "Low", "trackName": "Lullaby", "msPlayed": 1000},
	  {"endTime": "2023-03-01 09:00", "artistName": "Grouper", "trackName": "Heavy Water", "msPlayed": 200000}
	]`
	if err := os.WriteFile(filepath.Join(dir, "StreamingHistory_music_0.json"), []byte(history), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := s.ImportMusic(ctx, dir, 30*time.Second)
	if err != nil {
		t.Fatalf("ImportMusic: %v", err)
	}
	if r.Stats != (store.RunStats{Fetched: 3, Upserted: 2}) {
		t.Errorf("stats = %+v", r.Stats)
	}
	tracks, _ := st.Tracks(ctx)
	if len(tracks) != 2 || tracks[0].Plays != 1 {
		t.Errorf("tracks = %+v", tracks)
	}
}
