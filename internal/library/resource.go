// Package library merges bookmarks and papers into one set of resources
// and classifies them against a manually authored tag hierarchy.
package library

import (
	"strconv"
	"strings"
	"time"

	"github.com/lthms/shelf/internal/explorer"
	"github.com/lthms/shelf/internal/raindrop"
	"github.com/lthms/shelf/internal/zotero"
)

// Kind tells bookmarks and papers apart.
type Kind string

const (
	KindBookmark Kind = "bookmark"
	KindPaper    Kind = "paper"
)

// Resource is a bookmark or a paper, as shown on the library page.
type Resource struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source,omitempty"` // domain or publication
	Authors     []string  `json:"authors,omitempty"`
	Tags        []string  `json:"tags"`
	Date        time.Time `json:"date"`
}

// FromBookmarks converts bookmarks. The description prefers the user's
// note over the page excerpt.
func FromBookmarks(bs []raindrop.Bookmark) []Resource {
	out := make([]Resource, 0, len(bs))
	for _, b := range bs {
		desc := b.Note
		if desc == "" {
			desc = b.Excerpt
		}
		out = append(out, Resource{
			ID:          "bookmark:" + strconv.FormatInt(b.ID, 10),
			Kind:        KindBookmark,
			Title:       b.Title,
			URL:         b.Link,
			Description: desc,
			Source:      b.Domain,
			Tags:        nonNil(b.Tags),
			Date:        b.Created,
		})
	}
	return out
}

// FromPapers converts papers. Papers without a URL link to their DOI.
func FromPapers(ps []zotero.Paper) []Resource {
	out := make([]Resource, 0, len(ps))
	for _, p := range ps {
		url := p.URL
		if url == "" && p.DOI != "" {
			url = "https://doi.org/" + p.DOI
		}
		date := p.DateAdded
		if p.Year != 0 {
			date = time.Date(p.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		out = append(out, Resource{
			ID:          "paper:" + p.Key,
			Kind:        KindPaper,
			Title:       p.Title,
			URL:         url,
			Description: p.Abstract,
			Source:      p.Publication,
			Authors:     p.Authors,
			Tags:        nonNil(p.Tags),
			Date:        date,
		})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NewExplorer returns the explorer behind the library page. When c is
// non-nil resources can also be filtered by hierarchy node path.
func NewExplorer(c *Classification) *explorer.Explorer[Resource] {
	fields := []explorer.Field[Resource]{
		{
			Name:    "title",
			Label:   "Title",
			Compare: explorer.ByString(func(r Resource) string { return r.Title }),
		},
		{
			Name:   "kind",
			Label:  "Kind",
			Values: func(r Resource) []string { return explorer.One(string(r.Kind)) },
		},
		{
			Name:   "tag",
			Label:  "Tag",
			Values: func(r Resource) []string { return NormalizeAll(r.Tags) },
			Canon:  Normalize,
		},
		{
			Name:   "author",
			Label:  "Author",
			Values: func(r Resource) []string { return r.Authors },
		},
		{
			Name:    "source",
			Label:   "Source",
			Values:  func(r Resource) []string { return explorer.One(r.Source) },
			Compare: explorer.ByString(func(r Resource) string { return r.Source }),
		},
		{
			Name:  "date",
			Label: "Date",
			Values: func(r Resource) []string {
				if r.Date.IsZero() {
					return nil
				}
				return []string{r.Date.Format("2006")}
			},
			Compare: explorer.ByTime(func(r Resource) time.Time { return r.Date }),
		},
	}
	if c != nil {
		fields = append(fields, explorer.Field[Resource]{
			Name:   "node",
			Label:  "Category",
			Values: func(r Resource) []string { return c.Nodes(r.ID) },
		})
	}
	return explorer.New(
		func(r Resource) string {
			return r.Title + " " + r.Description + " " + r.Source + " " +
				strings.Join(r.Authors, " ") + " " + strings.Join(r.Tags, " ")
		},
		fields...,
	).WithDefaultSort("date", true)
}

// Columns are the CSV export columns of the library explorer.
var Columns = []explorer.Column[Resource]{
	{Name: "kind", Value: func(r Resource) string { return string(r.Kind) }},
	{Name: "title", Value: func(r Resource) string { return r.Title }},
	{Name: "url", Value: func(r Resource) string { return r.URL }},
	{Name: "source", Value: func(r Resource) string { return r.Source }},
	{Name: "authors", Value: func(r Resource) string { return strings.Join(r.Authors, "; ") }},
	{Name: "tags", Value: func(r Resource) string { return strings.Join(r.Tags, "; ") }},
	{Name: "date", Value: func(r Resource) string {
		if r.Date.IsZero() {
			return ""
		}
		return r.Date.Format("2006-01-02")
	}},
}
