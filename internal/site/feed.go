package site

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gorilla/feeds"

	"github.com/lthms/shelf/internal/content"
	"github.com/lthms/shelf/internal/library"
	"github.com/lthms/shelf/internal/store"
)

// writeFeeds writes feed.xml (RSS 2.0) and atom.xml with the latest posts.
func writeFeeds(out string, cfg Config, posts []content.Post) error {
	feed := &feeds.Feed{
		Title:       cfg.Title,
		Link:        &feeds.Link{Href: cfg.URL("/")},
		Description: cfg.Description,
		Id:          cfg.URL("/"),
	}
	if cfg.Author != "" {
		feed.Author = &feeds.Author{Name: cfg.Author, Email: cfg.Email}
	}

	latest := posts[:min(len(posts), cfg.FeedItems)]
	for _, p := range latest {
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       p.Title,
			Link:        &feeds.Link{Href: cfg.URL(postURL(p.Slug))},
			Id:          cfg.URL(postURL(p.Slug)),
			Description: p.Description,
			Content:     p.HTML,
			Created:     p.Date,
			Updated:     p.LastModified(),
		})
		if p.LastModified().After(feed.Updated) {
			feed.Updated = p.LastModified()
		}
	}
	if len(latest) > 0 {
		feed.Created = latest[len(latest)-1].Date
	} else {
		feed.Created = time.Unix(0, 0).UTC()
	}

	rss, err := feed.ToRss()
	if err != nil {
		return fmt.Errorf("rss feed: %w", err)
	}
	if err := writeFile(filepath.Join(out, "feed.xml"), []byte(rss)); err != nil {
		return err
	}
	atom, err := feed.ToAtom()
	if err != nil {
		return fmt.Errorf("atom feed: %w", err)
	}
	return writeFile(filepath.Join(out, "atom.xml"), []byte(atom))
}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func writeSitemap(p string, pages []page) error {
	set := urlset{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, pg := range pages {
		u := sitemapURL{Loc: pg.meta.Canonical}
		if !pg.lastMod.IsZero() {
			u.LastMod = pg.lastMod.Format("2006-01-02")
		}
		set.URLs = append(set.URLs, u)
	}
	slices.SortFunc(set.URLs, func(a, b sitemapURL) int {
		switch {
		case a.Loc < b.Loc:
			return -1
		case a.Loc > b.Loc:
			return 1
		}
		return 0
	})

	data, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("sitemap: %w", err)
	}
	return writeFile(p, append([]byte(xml.Header), data...))
}

type treeEntry struct {
	Path   string `json:"path"`
	Label  string `json:"label"`
	Depth  int    `json:"depth"`
	Direct int    `json:"direct"`
	Total  int    `json:"total"`
}

// copyData publishes the explorer datasets under /data/, plus the
// classified tag hierarchy when there is one.
func copyData(out string, d *dataset) error {
	dst := filepath.Join(out, "data")
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		v    any
	}{
		{store.BooksFile, d.Books},
		{store.MusicFile, d.Tracks},
		{store.LibraryFile, d.Resources},
	} {
		if err := writeJSON(filepath.Join(dst, f.name), f.v); err != nil {
			return err
		}
	}

	if d.Class == nil {
		return nil
	}
	var entries []treeEntry
	d.Tree.Walk(func(n *library.Node) bool {
		c := d.Class.Counts[n.Path]
		entries = append(entries, treeEntry{Path: n.Path, Label: n.Label, Depth: n.Depth, Direct: c.Direct, Total: c.Total})
		return true
	})
	return writeJSON(filepath.Join(dst, "library-tree.json"), map[string]any{
		"nodes":        entries,
		"unclassified": d.Class.Unclassified,
		"untagged":     len(d.Class.Untagged),
	})
}

func writeJSON(p string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(p), err)
	}
	if string(data) == "null" {
		data = []byte("[]")
	}
	return writeFile(p, data)
}
