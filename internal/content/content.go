// Package content loads markdown documents with YAML frontmatter into
// validated posts.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoFrontmatter is returned for a document not starting with a
	// "---" fenced YAML block.
	ErrNoFrontmatter = errors.New("missing frontmatter")
	// ErrDuplicateSlug is returned when two documents share a slug.
	ErrDuplicateSlug = errors.New("duplicate slug")
)

// wordsPerMinute drives ReadingTime.
const wordsPerMinute = 200

var dateLayouts = []string{"2006-01-02", time.RFC3339}

// Post is a rendered document.
type Post struct {
	Slug        string
	Title       string
	Description string
	Date        time.Time
	Updated     time.Time
	Tags        []string
	Draft       bool
	Body        string // markdown source, frontmatter removed
	HTML        string
	ReadingTime int // minutes
	Path        string
}

// LastModified is Updated when set, Date otherwise.
func (p Post) LastModified() time.Time {
	if p.Updated.After(p.Date) {
		return p.Updated
	}
	return p.Date
}

type frontmatter struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Date        string   `yaml:"date"`
	Updated     string   `yaml:"updated"`
	Tags        []string `yaml:"tags"`
	Draft       bool     `yaml:"draft"`
	Slug        string   `yaml:"slug"`
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Footnote, extension.Typographer),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// splitFrontmatter separates the YAML block from the body.
func splitFrontmatter(data []byte) (fm, body []byte, err error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return nil, nil, ErrNoFrontmatter
	}
	rest := data[4:]
	if bytes.HasPrefix(rest, []byte("---\n")) || bytes.Equal(rest, []byte("---")) {
		return nil, bytes.TrimPrefix(rest[3:], []byte("\n")), nil
	}
	end := bytes.Index(rest, []byte("\n---\n"))
	if end < 0 {
		if bytes.HasSuffix(rest, []byte("\n---")) {
			return rest[:len(rest)-4], nil, nil
		}
		return nil, nil, fmt.Errorf("%w: unterminated block", ErrNoFrontmatter)
	}
	return rest[:end], rest[end+5:], nil
}

// ParseDocument parses and renders one document. name is the file name,
// used for the default slug and in errors. Every schema problem of the
// document is reported.
func ParseDocument(name string, data []byte) (Post, error) {
	fmRaw, body, err := splitFrontmatter(data)
	if err != nil {
		return Post{}, fmt.Errorf("%s: %w", name, err)
	}

	var fm frontmatter
	dec := yaml.NewDecoder(bytes.NewReader(fmRaw))
	dec.KnownFields(true)
	if err := dec.Decode(&fm); err != nil && !errors.Is(err, io.EOF) {
		return Post{}, fmt.Errorf("%s: frontmatter: %w", name, err)
	}

	p := Post{
		Title:       strings.TrimSpace(fm.Title),
		Description: strings.TrimSpace(fm.Description),
		Draft:       fm.Draft,
		Body:        string(body),
		Path:        name,
	}

	var errs []error
	if p.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if fm.Date == "" {
		errs = append(errs, errors.New("date is required"))
	} else if p.Date, err = parseDate(fm.Date); err != nil {
		errs = append(errs, fmt.Errorf("date: %w", err))
	}
	if fm.Updated != "" {
		if p.Updated, err = parseDate(fm.Updated); err != nil {
			errs = append(errs, fmt.Errorf("updated: %w", err))
		}
	}

	slug := fm.Slug
	if slug == "" {
		slug = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	if p.Slug = Slugify(slug); p.Slug == "" {
		errs = append(errs, fmt.Errorf("slug %q is empty after normalization", slug))
	}

	seen := make(map[string]bool)
	for _, t := range fm.Tags {
		tag := Slugify(t)
		if tag == "" {
			errs = append(errs, fmt.Errorf("tag %q is empty after normalization", t))
			continue
		}
		if !seen[tag] {
			seen[tag] = true
			p.Tags = append(p.Tags, tag)
		}
	}

	if len(errs) > 0 {
		return Post{}, fmt.Errorf("%s: %w", name, errors.Join(errs...))
	}

	var buf bytes.Buffer
	if err := md.Convert(body, &buf); err != nil {
		return Post{}, fmt.Errorf("%s: render: %w", name, err)
	}
	p.HTML = buf.String()
	p.ReadingTime = ReadingTime(p.Body)
	return p, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC 3339", s)
}

// ReadingTime estimates minutes of reading, at least one.
func ReadingTime(body string) int {
	words := len(strings.Fields(body))
	return max(1, int(math.Ceil(float64(words)/wordsPerMinute)))
}

// LoadCollection parses every *.md file under dir. All documents are
// checked before failing, so the returned error lists every problem.
// Posts are sorted newest first; drafts are dropped unless includeDrafts.
func LoadCollection(dir string, includeDrafts bool) ([]Post, error) {
	var (
		posts []Post
		errs  []error
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		p, err := ParseDocument(rel, data)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		posts = append(posts, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	bySlug := make(map[string]string)
	for _, p := range posts {
		if prev, ok := bySlug[p.Slug]; ok {
			errs = append(errs, fmt.Errorf("%w %q: %s and %s", ErrDuplicateSlug, p.Slug, prev, p.Path))
			continue
		}
		bySlug[p.Slug] = p.Path
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if !includeDrafts {
		kept := posts[:0]
		for _, p := range posts {
			if p.Draft {
				slog.Debug("content: skipping draft", "path", p.Path)
				continue
			}
			kept = append(kept, p)
		}
		posts = kept
	}

	slices.SortStableFunc(posts, func(a, b Post) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(a.Slug, b.Slug)
	})
	return posts, nil
}

// Slugify lower-cases s, folds diacritics and joins runs of letters and
// digits with "-": "Ça va, l'été?" becomes "ca-va-l-ete".
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

// TagCount is a tag with the number of posts carrying it.
type TagCount struct {
	Tag   string
	Count int
}

// TagIndex maps each tag to its posts, keeping the input order.
func TagIndex(posts []Post) map[string][]Post {
	idx := make(map[string][]Post)
	for _, p := range posts {
		for _, t := range p.Tags {
			idx[t] = append(idx[t], p)
		}
	}
	return idx
}

// Tags lists tags by descending post count, then name.
func Tags(posts []Post) []TagCount {
	idx := TagIndex(posts)
	out := make([]TagCount, 0, len(idx))
	for t, ps := range idx {
		out = append(out, TagCount{Tag: t, Count: len(ps)})
	}
	slices.SortFunc(out, func(a, b TagCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Tag, b.Tag)
	})
	return out
}
