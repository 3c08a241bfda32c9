package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lthms/shelf/internal/explorer"
	"github.com/lthms/shelf/internal/goodreads"
	"github.com/lthms/shelf/internal/library"
	"github.com/lthms/shelf/internal/spotify"
	"github.com/lthms/shelf/internal/store"
)

// datasets are the exported snapshots the terminal commands work on.
type datasets struct {
	books     []goodreads.Book
	tracks    []spotify.Track
	resources []library.Resource
	tree      *library.Tree
	class     *library.Classification
}

// loadDatasets reads the exported JSON files in dir. Missing files load
// as empty; a missing tags file leaves the library unclassified.
func loadDatasets(dir, tagsFile string) (*datasets, error) {
	d := &datasets{}
	for _, f := range []struct {
		name string
		v    any
	}{
		{store.BooksFile, &d.books},
		{store.MusicFile, &d.tracks},
		{store.LibraryFile, &d.resources},
	} {
		data, err := os.ReadFile(filepath.Join(dir, f.name))
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("data: missing file, run export first", "file", f.name, "dir", dir)
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, f.v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.name, err)
		}
	}

	if tagsFile == "" {
		return d, nil
	}
	tree, err := library.LoadFile(tagsFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("data: no tag hierarchy", "file", tagsFile)
	case err != nil:
		return nil, err
	default:
		d.tree = tree
		d.class = tree.Classify(d.resources)
	}
	return d, nil
}

// view is one page of rows out of a browser.
type view struct {
	IDs        []string   `json:"-"`
	Header     []string   `json:"header"`
	Rows       [][]string `json:"rows"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
}

// browser erases the record type of an explorer so the terminal UI and
// the MCP tools can drive any dataset.
type browser interface {
	name() string
	sortFields() []string
	filterFields() []string
	query(q explorer.Query) (view, error)
	records(q explorer.Query) (any, error)
	detail(id string) []string
	export(w io.Writer, format string, q explorer.Query, ids []string) (int, error)
}

type dataBrowser[T any] struct {
	title   string
	e       *explorer.Explorer[T]
	items   []T
	cols    []explorer.Column[T]
	id      func(T) string
	details func(T) []string
}

func (b *dataBrowser[T]) name() string         { return b.title }
func (b *dataBrowser[T]) sortFields() []string { return b.e.SortFields() }

func (b *dataBrowser[T]) filterFields() []string { return b.e.FilterFields() }

func (b *dataBrowser[T]) query(q explorer.Query) (view, error) {
	res, err := b.e.Run(b.items, q)
	if err != nil {
		return view{}, err
	}
	v := view{Total: res.TotalItems, Page: res.Page, TotalPages: res.TotalPages}
	for _, c := range b.cols {
		v.Header = append(v.Header, c.Name)
	}
	for _, it := range res.Items {
		row := make([]string, len(b.cols))
		for i, c := range b.cols {
			row[i] = c.Value(it)
		}
		v.IDs = append(v.IDs, b.id(it))
		v.Rows = append(v.Rows, row)
	}
	return v, nil
}

// records returns the page of whole records, for callers that want
// every field rather than the table columns.
func (b *dataBrowser[T]) records(q explorer.Query) (any, error) {
	res, err := b.e.Run(b.items, q)
	if err != nil {
		return nil, err
	}
	if res.Items == nil {
		res.Items = []T{}
	}
	return res, nil
}

func (b *dataBrowser[T]) detail(id string) []string {
	for _, it := range b.items {
		if b.id(it) == id {
			return b.details(it)
		}
	}
	return nil
}

// export writes the selected records, or every record matching q when
// nothing is selected.
func (b *dataBrowser[T]) export(w io.Writer, format string, q explorer.Query, ids []string) (int, error) {
	var items []T
	if len(ids) > 0 {
		var sel explorer.Selection
		sel.Add(ids...)
		items = explorer.Pick(&sel, b.items, b.id)
	} else {
		var err error
		if items, err = b.e.Select(b.items, q); err != nil {
			return 0, err
		}
	}
	switch format {
	case "json":
		return len(items), explorer.WriteJSON(w, items)
	case "csv", "":
		return len(items), explorer.WriteCSV(w, b.cols, items)
	}
	return 0, fmt.Errorf("unknown export format %q", format)
}

func (d *datasets) browser(kind string) (browser, error) {
	switch kind {
	case "books":
		return &dataBrowser[goodreads.Book]{
			title:   "Books",
			e:       goodreads.NewExplorer(),
			items:   d.books,
			cols:    goodreads.Columns,
			id:      func(b goodreads.Book) string { return b.ID },
			details: bookDetails,
		}, nil
	case "music":
		return &dataBrowser[spotify.Track]{
			title:   "Music",
			e:       spotify.NewTrackExplorer(),
			items:   d.tracks,
			cols:    spotify.TrackColumns,
			id:      func(t spotify.Track) string { return t.ID },
			details: trackDetails,
		}, nil
	case "library":
		return &dataBrowser[library.Resource]{
			title: "Library",
			e:     library.NewExplorer(d.class),
			items: d.resources,
			cols:  library.Columns,
			id:    func(r library.Resource) string { return r.ID },
			details: func(r library.Resource) []string {
				return resourceDetails(r, d.class)
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown dataset %q (books, music, library)", kind)
}

// field renders a "Label: value" detail line, or nothing for an empty value.
func field(lines []string, label, value string) []string {
	if value == "" || value == "0" {
		return lines
	}
	return append(lines, label+": "+value)
}

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func bookDetails(b goodreads.Book) []string {
	lines := []string{b.Title, ""}
	lines = field(lines, "Authors", strings.Join(b.Authors, ", "))
	lines = field(lines, "Rating", strings.Repeat("★", b.Rating))
	lines = field(lines, "Shelf", b.Shelf)
	lines = field(lines, "Shelves", strings.Join(b.Shelves, ", "))
	lines = field(lines, "Read", day(b.DateRead))
	lines = field(lines, "Added", day(b.DateAdded))
	lines = field(lines, "Pages", strconv.Itoa(b.Pages))
	lines = field(lines, "Publisher", b.Publisher)
	lines = field(lines, "Year", strconv.Itoa(b.Year))
	lines = field(lines, "ISBN", b.ISBN13)
	if b.Review != "" {
		lines = append(lines, "", b.Review)
	}
	return lines
}

func trackDetails(t spotify.Track) []string {
	lines := []string{t.Name, ""}
	lines = field(lines, "Artist", t.Artist)
	lines = field(lines, "Album", t.Album)
	lines = field(lines, "Plays", strconv.Itoa(t.Plays))
	lines = field(lines, "Skips", strconv.Itoa(t.Skips))
	lines = field(lines, "Listening time", (time.Duration(t.MsPlayed) * time.Millisecond).Round(time.Second).String())
	lines = field(lines, "First played", day(t.FirstPlayed))
	lines = field(lines, "Last played", day(t.LastPlayed))
	lines = field(lines, "URI", t.URI)
	return lines
}

func resourceDetails(r library.Resource, c *library.Classification) []string {
	lines := []string{r.Title, ""}
	lines = field(lines, "Kind", string(r.Kind))
	lines = field(lines, "URL", r.URL)
	lines = field(lines, "Source", r.Source)
	lines = field(lines, "Authors", strings.Join(r.Authors, ", "))
	lines = field(lines, "Tags", strings.Join(r.Tags, ", "))
	lines = field(lines, "Date", day(r.Date))
	if c != nil {
		lines = field(lines, "Filed under", strings.Join(c.Nodes(r.ID), ", "))
	}
	if r.Description != "" {
		lines = append(lines, "", r.Description)
	}
	return lines
}

// parseFilters turns "field=value" flags into a query filter map.
func parseFilters(specs []string) (map[string][]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	m := make(map[string][]string)
	for _, s := range specs {
		k, v, ok := strings.Cut(s, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid filter %q, want field=value", s)
		}
		m[k] = append(m[k], v)
	}
	return m, nil
}
