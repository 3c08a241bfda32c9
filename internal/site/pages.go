package site

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/lthms/shelf/internal/content"
	"github.com/lthms/shelf/internal/explorer"
	"github.com/lthms/shelf/internal/goodreads"
	"github.com/lthms/shelf/internal/library"
	"github.com/lthms/shelf/internal/spotify"
)

// maxFacetValues bounds the facet list shown per field.
const maxFacetValues = 12

type postView struct {
	Slug        string
	Title       string
	Description string
	Date        time.Time
	Updated     time.Time
	Tags        []string
	ReadingTime int
	URL         string
	HTML        template.HTML
}

type link struct {
	Title string
	URL   string
}

func postURL(slug string) string { return "/posts/" + slug + "/" }
func tagURL(tag string) string   { return "/tags/" + tag + "/" }

func homeURL(page int) string {
	if page <= 1 {
		return "/"
	}
	return fmt.Sprintf("/page/%d/", page)
}

func viewPost(p content.Post) postView {
	return postView{
		Slug:        p.Slug,
		Title:       p.Title,
		Description: p.Description,
		Date:        p.Date,
		Updated:     p.Updated,
		Tags:        p.Tags,
		ReadingTime: p.ReadingTime,
		URL:         postURL(p.Slug),
		HTML:        template.HTML(p.HTML),
	}
}

func viewPosts(ps []content.Post) []postView {
	out := make([]postView, len(ps))
	for i, p := range ps {
		out[i] = viewPost(p)
	}
	return out
}

type homeBody struct {
	Posts      []postView
	Page       int
	TotalPages int
	Newer      string
	Older      string
}

type postBody struct {
	Post  postView
	Newer *link
	Older *link
}

func (b *builder) addPosts(posts []content.Post) {
	pages := explorer.Paginate(posts, 1, b.cfg.PostsPerPage)
	for n := 1; n <= pages.TotalPages; n++ {
		res := explorer.Paginate(posts, n, b.cfg.PostsPerPage)
		body := homeBody{Posts: viewPosts(res.Items), Page: n, TotalPages: res.TotalPages}
		if n > 1 {
			body.Newer = homeURL(n - 1)
		}
		if n < res.TotalPages {
			body.Older = homeURL(n + 1)
		}
		title := b.cfg.Title
		if n > 1 {
			title = fmt.Sprintf("%s (page %d)", b.cfg.Title, n)
		}
		b.add(page{path: homeURL(n), tmpl: "home", meta: Meta{Title: title}, body: body})
	}

	for i, p := range posts {
		body := postBody{Post: viewPost(p)}
		if i > 0 {
			body.Newer = &link{Title: posts[i-1].Title, URL: postURL(posts[i-1].Slug)}
		}
		if i < len(posts)-1 {
			body.Older = &link{Title: posts[i+1].Title, URL: postURL(posts[i+1].Slug)}
		}
		b.add(page{
			path: postURL(p.Slug),
			tmpl: "post",
			meta: Meta{
				Title:       p.Title,
				Description: p.Description,
				Type:        "article",
				Published:   p.Date,
				Modified:    p.LastModified(),
			},
			body:    body,
			lastMod: p.LastModified(),
		})
	}
}

type tagsBody struct {
	Tags []content.TagCount
}

type tagBody struct {
	Tag   string
	Posts []postView
}

func (b *builder) addTags(posts []content.Post) {
	tags := content.Tags(posts)
	b.add(page{path: "/tags/", tmpl: "tags", meta: Meta{Title: "Tags"}, body: tagsBody{Tags: tags}})

	idx := content.TagIndex(posts)
	for _, t := range tags {
		b.add(page{
			path: tagURL(t.Tag),
			tmpl: "tag",
			meta: Meta{
				Title:       "Posts tagged " + t.Tag,
				Description: fmt.Sprintf("%d posts tagged %s", t.Count, t.Tag),
			},
			body: tagBody{Tag: t.Tag, Posts: viewPosts(idx[t.Tag])},
		})
	}
}

type table struct {
	Header []string
	Rows   [][]string
}

type facetGroup struct {
	Field  string
	Label  string
	Values []explorer.FacetCount
}

// explorerBody is the server-rendered first page of an explorer. The full
// dataset sits next to it under /data/.
type explorerBody struct {
	Name       string
	Title      string
	Intro      string
	DataURL    string
	Total      int
	Page       int
	TotalPages int
	SortedBy   string
	Table      table
	Facets     []facetGroup
}

func explorerView[T any](e *explorer.Explorer[T], items []T, cols []explorer.Column[T], pageSize int) (explorerBody, error) {
	res, err := e.Run(items, explorer.Query{PageSize: pageSize})
	if err != nil {
		return explorerBody{}, err
	}

	body := explorerBody{
		Total:      res.TotalItems,
		Page:       res.Page,
		TotalPages: res.TotalPages,
	}
	if field, desc := e.DefaultSort(); field != "" {
		body.SortedBy = field
		if desc {
			body.SortedBy += " (descending)"
		}
	}

	for _, c := range cols {
		body.Table.Header = append(body.Table.Header, c.Name)
	}
	for _, it := range res.Items {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = c.Value(it)
		}
		body.Table.Rows = append(body.Table.Rows, row)
	}

	for _, f := range e.Fields() {
		if f.Values == nil {
			continue
		}
		counts, err := e.Facets(items, explorer.Query{}, f.Name)
		if err != nil {
			return explorerBody{}, err
		}
		if len(counts) > maxFacetValues {
			counts = counts[:maxFacetValues]
		}
		if len(counts) > 0 {
			body.Facets = append(body.Facets, facetGroup{Field: f.Name, Label: f.Label, Values: counts})
		}
	}
	return body, nil
}

func (b *builder) addExplorers(d *dataset) error {
	books, err := explorerView(goodreads.NewExplorer(), d.Books, goodreads.Columns, b.cfg.ExplorerPageSize)
	if err != nil {
		return fmt.Errorf("books explorer: %w", err)
	}
	books.Name, books.Title, books.DataURL = "books", "Books", "/data/books.json"
	books.Intro = fmt.Sprintf("%d books from my reading log.", books.Total)
	b.add(page{path: "/books/", tmpl: "explorer", meta: Meta{Title: "Books", Description: books.Intro}, body: books})

	music, err := explorerView(spotify.NewTrackExplorer(), d.Tracks, spotify.TrackColumns, b.cfg.ExplorerPageSize)
	if err != nil {
		return fmt.Errorf("music explorer: %w", err)
	}
	music.Name, music.Title, music.DataURL = "music", "Music", "/data/music.json"
	music.Intro = fmt.Sprintf("%d tracks from my listening history.", music.Total)
	b.add(page{path: "/music/", tmpl: "explorer", meta: Meta{Title: "Music", Description: music.Intro}, body: music})
	return nil
}

type nodeView struct {
	Label    string
	Path     string
	URL      string
	Direct   int
	Total    int
	Children []nodeView
}

func libraryURL(path string) string {
	if path == "" {
		return "/library/"
	}
	return "/library/" + path + "/"
}

func viewNodes(nodes []*library.Node, c *library.Classification) []nodeView {
	out := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		cnt := c.Counts[n.Path]
		out = append(out, nodeView{
			Label:    n.Label,
			Path:     n.Path,
			URL:      libraryURL(n.Path),
			Direct:   cnt.Direct,
			Total:    cnt.Total,
			Children: viewNodes(n.Children, c),
		})
	}
	return out
}

type libraryBody struct {
	Explorer     explorerBody
	Tree         []nodeView
	Unclassified []library.TagCount
	Untagged     int
}

type nodeBody struct {
	Node       nodeView
	Crumbs     []link
	Resources  []library.Resource
	DirectOnly int
}

func (b *builder) addLibrary(d *dataset) error {
	ex, err := explorerView(library.NewExplorer(d.Class), d.Resources, library.Columns, b.cfg.ExplorerPageSize)
	if err != nil {
		return fmt.Errorf("library explorer: %w", err)
	}
	ex.Name, ex.Title, ex.DataURL = "library", "Library", "/data/library.json"
	ex.Intro = fmt.Sprintf("%d bookmarks and papers.", ex.Total)

	body := libraryBody{Explorer: ex}
	if d.Class != nil {
		body.Tree = viewNodes(d.Tree.Roots, d.Class)
		body.Unclassified = d.Class.Unclassified
		body.Untagged = len(d.Class.Untagged)
	}
	b.add(page{path: libraryURL(""), tmpl: "library", meta: Meta{Title: "Library", Description: ex.Intro}, body: body})

	if d.Class == nil {
		return nil
	}

	var walkErr error
	d.Tree.Walk(func(n *library.Node) bool {
		resources, err := d.Class.Resources(n.Path)
		if err != nil {
			walkErr = err
			return false
		}
		direct, _ := d.Class.DirectResources(n.Path)

		var crumbs []link
		parts := strings.Split(n.Path, "/")
		for i := 1; i < len(parts); i++ {
			p := strings.Join(parts[:i], "/")
			crumbs = append(crumbs, link{Title: d.Tree.Node(p).Label, URL: libraryURL(p)})
		}

		view := viewNodes([]*library.Node{n}, d.Class)[0]
		b.add(page{
			path: libraryURL(n.Path),
			tmpl: "node",
			meta: Meta{
				Title:       n.Label,
				Description: fmt.Sprintf("%d resources filed under %s.", view.Total, n.Label),
			},
			body: nodeBody{Node: view, Crumbs: crumbs, Resources: resources, DirectOnly: len(direct)},
		})
		return true
	})
	return walkErr
}
