// Package goodreads parses the CSV export produced by Goodreads
// ("My Books" → Import and export).
package goodreads

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Book is a row of the export.
type Book struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	AuthorSort    string    `json:"author_sort,omitempty"`
	Authors       []string  `json:"authors"`
	ISBN          string    `json:"isbn,omitempty"`
	ISBN13        string    `json:"isbn13,omitempty"`
	Rating        int       `json:"rating"`
	AverageRating float64   `json:"average_rating"`
	Publisher     string    `json:"publisher,omitempty"`
	Binding       string    `json:"binding,omitempty"`
	Pages         int       `json:"pages,omitempty"`
	Year          int       `json:"year,omitempty"`
	OriginalYear  int       `json:"original_year,omitempty"`
	DateRead      time.Time `json:"date_read,omitzero"`
	DateAdded     time.Time `json:"date_added,omitzero"`
	Shelf         string    `json:"shelf"`
	Shelves       []string  `json:"shelves"`
	Review        string    `json:"review,omitempty"`
	ReadCount     int       `json:"read_count"`
}

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("missing required column")

var requiredColumns = []string{"Book Id", "Title", "Author"}

const dateLayout = "2006/01/02"

// Parse reads a Goodreads export. Columns are looked up by header name, so
// column order and extra columns do not matter.
func Parse(r io.Reader) ([]Book, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("goodreads: empty export")
		}
		return nil, fmt.Errorf("goodreads: read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("goodreads: %w %q", ErrMissingColumn, name)
		}
	}

	var books []Book
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("goodreads: line %d: %w", line, err)
		}

		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		b := Book{
			ID:            get("Book Id"),
			Title:         get("Title"),
			Author:        get("Author"),
			AuthorSort:    get("Author l-f"),
			ISBN:          unwrapISBN(get("ISBN")),
			ISBN13:        unwrapISBN(get("ISBN13")),
			Rating:        atoi(get("My Rating")),
			AverageRating: atof(get("Average Rating")),
			Publisher:     get("Publisher"),
			Binding:       get("Binding"),
			Pages:         atoi(get("Number of Pages")),
			Year:          atoi(get("Year Published")),
			OriginalYear:  atoi(get("Original Publication Year")),
			DateRead:      parseDate(get("Date Read")),
			DateAdded:     parseDate(get("Date Added")),
			Shelf:         get("Exclusive Shelf"),
			Review:        get("My Review"),
			ReadCount:     atoi(get("Read Count")),
		}
		if b.ID == "" || b.Title == "" {
			return nil, fmt.Errorf("goodreads: line %d: empty book id or title", line)
		}

		b.Authors = []string{}
		if b.Author != "" {
			b.Authors = append(b.Authors, b.Author)
		}
		b.Authors = append(b.Authors, splitList(get("Additional Authors"))...)

		b.Shelves = shelves(b.Shelf, get("Bookshelves"))
		books = append(books, b)
	}

	return books, nil
}

// unwrapISBN strips the spreadsheet-protection quoting Goodreads applies:
// ="0441172717" becomes 0441172717 and ="" becomes the empty string.
func unwrapISBN(s string) string {
	s = strings.TrimPrefix(s, "=")
	return strings.Trim(s, `"`)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// shelves merges the exclusive shelf with the user shelves, without
// duplicates, exclusive shelf first.
func shelves(exclusive, all string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(exclusive)
	for _, s := range splitList(all) {
		add(s)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
