// Package site renders the static site: posts, tag pages, the books, music
// and library explorers, feeds and a sitemap.
package site

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/lthms/shelf/internal/content"
	"github.com/lthms/shelf/internal/goodreads"
	"github.com/lthms/shelf/internal/library"
	"github.com/lthms/shelf/internal/spotify"
	"github.com/lthms/shelf/internal/store"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultConcurrency = 8

// Options tune a build.
type Options struct {
	Drafts      bool // render posts marked draft
	Concurrency int  // parallel page writers, 0 = default
}

// Report summarizes a build.
type Report struct {
	Posts    int
	Pages    int
	Static   int
	Duration time.Duration
}

// Meta carries the SEO tags of a page.
type Meta struct {
	Title       string
	Description string
	Canonical   string
	Type        string // Open Graph type: website or article
	Published   time.Time
	Modified    time.Time
}

type page struct {
	path    string // site path, "/" or "/posts/x/"
	tmpl    string
	meta    Meta
	body    any
	lastMod time.Time
}

type pageData struct {
	Site Config
	Meta Meta
	Body any
}

// dataset is what the explorer pages are built from.
type dataset struct {
	Books     []goodreads.Book
	Tracks    []spotify.Track
	Resources []library.Resource
	Tree      *library.Tree
	Class     *library.Classification
}

type builder struct {
	cfg   Config
	tmpls map[string]*template.Template
	pages []page
}

// Build renders the site described by cfg into cfg.OutDir, which is
// emptied first.
func Build(ctx context.Context, cfg Config, opts Options) (*Report, error) {
	start := time.Now()
	if err := cfg.checkOutDir(); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	tmpls, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	posts, err := content.LoadCollection(cfg.Path(cfg.ContentDir), opts.Drafts)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	data, err := loadDataset(cfg)
	if err != nil {
		return nil, err
	}

	b := &builder{cfg: cfg, tmpls: tmpls}
	b.addPosts(posts)
	b.addTags(posts)
	if err := b.addExplorers(data); err != nil {
		return nil, err
	}
	if err := b.addLibrary(data); err != nil {
		return nil, err
	}

	out := cfg.Path(cfg.OutDir)
	if err := cleanDir(out); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, p := range b.pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return b.render(out, p)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := writeFeeds(out, cfg, posts); err != nil {
		return nil, err
	}
	if err := writeSitemap(filepath.Join(out, "sitemap.xml"), b.pages); err != nil {
		return nil, err
	}
	if err := copyData(out, data); err != nil {
		return nil, err
	}
	static, err := copyDir(cfg.Path(cfg.StaticDir), out)
	if err != nil {
		return nil, fmt.Errorf("copy static: %w", err)
	}

	r := &Report{
		Posts:    len(posts),
		Pages:    len(b.pages),
		Static:   static,
		Duration: time.Since(start),
	}
	slog.Info("site: built", "posts", r.Posts, "pages", r.Pages, "static", r.Static, "out", out, "duration", r.Duration.Round(time.Millisecond))
	return r, nil
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2 January 2006")
	},
	"iso": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	},
	"join": strings.Join,
	"minutes": func(ms int64) int64 {
		return ms / 60000
	},
}

// parseTemplates builds one template set per page kind, each sharing the
// base layout.
func parseTemplates() (map[string]*template.Template, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	tmpls := make(map[string]*template.Template)
	for _, n := range names {
		name := strings.TrimSuffix(path.Base(n), ".html")
		if name == "base" {
			continue
		}
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.html", n)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		tmpls[name] = t
	}
	return tmpls, nil
}

func (b *builder) add(p page) {
	if p.meta.Canonical == "" {
		p.meta.Canonical = b.cfg.URL(p.path)
	}
	if p.meta.Description == "" {
		p.meta.Description = b.cfg.Description
	}
	if p.meta.Type == "" {
		p.meta.Type = "website"
	}
	b.pages = append(b.pages, p)
}

func (b *builder) render(out string, p page) error {
	t, ok := b.tmpls[p.tmpl]
	if !ok {
		return fmt.Errorf("no template %q for %s", p.tmpl, p.path)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", pageData{Site: b.cfg, Meta: p.meta, Body: p.body}); err != nil {
		return fmt.Errorf("render %s: %w", p.path, err)
	}
	return writeFile(outputPath(out, p.path), buf.Bytes())
}

// outputPath maps "/posts/x/" to out/posts/x/index.html.
func outputPath(out, sitePath string) string {
	rel := filepath.FromSlash(strings.Trim(sitePath, "/"))
	return filepath.Join(out, rel, "index.html")
}

func writeFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// cleanDir empties dir, creating it if needed.
func cleanDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return fmt.Errorf("clean %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
	}
	return nil
}

func loadDataset(cfg Config) (*dataset, error) {
	dir := cfg.Path(cfg.DataDir)
	d := &dataset{}
	for _, f := range []struct {
		name string
		v    any
	}{
		{store.BooksFile, &d.Books},
		{store.MusicFile, &d.Tracks},
		{store.LibraryFile, &d.Resources},
	} {
		if err := readJSON(filepath.Join(dir, f.name), f.v); err != nil {
			return nil, err
		}
	}

	tree, err := library.LoadFile(cfg.Path(cfg.TagsFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("site: no tag hierarchy, library pages list resources only", "file", cfg.TagsFile)
	case err != nil:
		return nil, err
	default:
		d.Tree = tree
		d.Class = tree.Classify(d.Resources)
	}
	return d, nil
}

// readJSON decodes a data file. A missing file leaves v untouched.
func readJSON(p string, v any) error {
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("site: data file missing, run export first", "file", p)
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

// copyDir copies the files under src into dst and returns how many were
// copied. A missing src copies nothing.
func copyDir(src, dst string) (int, error) {
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	n := 0
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := copyFile(p, target); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
