package raindrop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lthms/shelf/internal/apiclient"
)

func TestPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/raindrops/0" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("perpage") != "25" || q.Get("sort") != "-lastUpdate" {
			t.Errorf("query = %v", q)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{
			"result": true,
			"count": 51,
			"items": [{
				"_id": 42,
				"title": "  Consensus in the wild ",
				"link": "https://example.com/raft",
				"excerpt": "about raft",
				"domain": "example.com",
				"type": "article",
				"tags": ["distributed-systems", "raft"],
				"collection": {"$id": 7},
				"created": "2024-01-02T03:04:05.000Z",
				"lastUpdate": "2024-02-03T04:05:06.000Z"
			}, {
				"_id": 43,
				"title": "untagged",
				"link": "https://example.com/x",
				"collection": {"$id": -1}
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(apiclient.New(apiclient.Config{Delay: time.Millisecond}), srv.URL, "tok")
	got, total, err := c.Page(context.Background(), 0, 2, 25)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if total != 51 {
		t.Errorf("total = %d, want 51", total)
	}

	want := []Bookmark{
		{
			ID:         42,
			Title:      "Consensus in the wild",
			Link:       "https://example.com/raft",
			Excerpt:    "about raft",
			Domain:     "example.com",
			Type:       "article",
			Tags:       []string{"distributed-systems", "raft"},
			Collection: 7,
			Created:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			LastUpdate: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		},
		{
			ID:         43,
			Title:      "untagged",
			Link:       "https://example.com/x",
			Tags:       []string{},
			Collection: -1,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Page mismatch (-want +got):\n%s", diff)
	}
}

func TestPage_ResultFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": false, "errorMessage": "collection not found"}`))
	}))
	defer srv.Close()

	c := NewClient(apiclient.New(apiclient.Config{Delay: time.Millisecond}), srv.URL, "tok")
	if _, _, err := c.Page(context.Background(), 99, 0, 50); err == nil {
		t.Fatal("expected error for result=false")
	}
}

func TestPage_ClampsPerPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("perpage"); got != "50" {
			t.Errorf("perpage = %q, want 50", got)
		}
		w.Write([]byte(`{"result": true, "count": 0, "items": []}`))
	}))
	defer srv.Close()

	c := NewClient(apiclient.New(apiclient.Config{Delay: time.Millisecond}), srv.URL, "tok")
	items, _, err := c.Page(context.Background(), 0, 0, 500)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %d, want 0", len(items))
	}
}
