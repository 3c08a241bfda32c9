package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/lthms/shelf/internal/apiclient"
	"github.com/lthms/shelf/internal/store"
	"github.com/lthms/shelf/internal/syncer"
)

func TestErrorSummary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", fmt.Errorf("raindrop page 1: %w", &apiclient.StatusError{StatusCode: 401}), "unauthorized, check the token"},
		{"forbidden", &apiclient.StatusError{StatusCode: 403}, "unauthorized, check the token"},
		{"rate limited", &apiclient.StatusError{StatusCode: 429}, "rate limited"},
		{"not configured", fmt.Errorf("zotero: %w", syncer.ErrNotConfigured), "not configured"},
		{"interrupted", fmt.Errorf("wait: %w", context.Canceled), "interrupted"},
		{"other", errors.New("disk full"), "disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorSummary(tt.err); got != tt.want {
				t.Errorf("errorSummary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderResults(t *testing.T) {
	out := ansi.Strip(renderResults([]syncer.Result{
		{Source: "raindrop", Stats: store.RunStats{Fetched: 120, Upserted: 118}, Duration: 1500 * time.Millisecond},
		{Source: "zotero", Err: &apiclient.StatusError{StatusCode: 429}},
	}))
	for _, want := range []string{"source", "raindrop", "120", "118", "1.5s", "ok", "zotero", "rate limited"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRuns(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	out := ansi.Strip(renderRuns([]store.Run{
		{ID: "a", Source: "zotero", Full: true, StartedAt: start, FinishedAt: start.Add(2 * time.Second), Stats: store.RunStats{Fetched: 3}},
		{ID: "b", Source: "raindrop", StartedAt: start},
	}))
	for _, want := range []string{"full", "incremental", "2s", "running"} {
		if !strings.Contains(out, want) {
			t.Errorf("runs missing %q:\n%s", want, out)
		}
	}
}

func TestNewSyncer(t *testing.T) {
	cfg := defaultUserConfig()

	s := (&SyncCmd{}).newSyncer(nil, cfg)
	if s.Raindrop != nil || s.Zotero != nil {
		t.Error("clients created without credentials")
	}

	// A user id alone is not enough for Zotero.
	cfg.Zotero.User = "42"
	s = (&SyncCmd{RaindropToken: "tok"}).newSyncer(nil, cfg)
	if s.Raindrop == nil || s.Zotero != nil {
		t.Errorf("raindrop %v zotero %v", s.Raindrop != nil, s.Zotero != nil)
	}

	s = (&SyncCmd{ZoteroKey: "k"}).newSyncer(nil, cfg)
	if s.Zotero == nil {
		t.Error("zotero client missing with user and key")
	}
	if s.PerPage != cfg.Raindrop.PerPage || s.Limit != cfg.Zotero.Limit {
		t.Errorf("paging = %d/%d", s.PerPage, s.Limit)
	}
}

func TestIgnored(t *testing.T) {
	out := filepath.Join(t.TempDir(), "public")
	tests := []struct {
		name string
		want bool
	}{
		{filepath.Join(out, "index.html"), true},
		{out, true},
		{out + "-old/index.html", false},
		{"content/post.md", false},
		{"content/.post.md.swx", true},
		{"content/post.md~", true},
		{"content/post.md.swp", true},
	}
	for _, tt := range tests {
		if got := ignored(tt.name, out); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
