package goodreads

import (
	"strconv"
	"strings"
	"time"

	"github.com/lthms/shelf/internal/explorer"
)

// NewExplorer returns the explorer behind the books page.
func NewExplorer() *explorer.Explorer[Book] {
	return explorer.New(
		func(b Book) string {
			return b.Title + " " + strings.Join(b.Authors, " ") + " " + b.Publisher
		},
		explorer.Field[Book]{
			Name:    "title",
			Label:   "Title",
			Compare: explorer.ByString(func(b Book) string { return b.Title }),
		},
		explorer.Field[Book]{
			Name:    "author",
			Label:   "Author",
			Values:  func(b Book) []string { return b.Authors },
			Compare: explorer.ByString(func(b Book) string { return authorSortKey(b) }),
		},
		explorer.Field[Book]{
			Name:   "shelf",
			Label:  "Shelf",
			Values: func(b Book) []string { return b.Shelves },
		},
		explorer.Field[Book]{
			Name:    "rating",
			Label:   "Rating",
			Values:  func(b Book) []string { return explorer.One(ratingValue(b.Rating)) },
			Compare: explorer.ByOrdered(func(b Book) int { return b.Rating }),
		},
		explorer.Field[Book]{
			Name:    "read",
			Label:   "Date read",
			Values:  func(b Book) []string { return explorer.One(yearString(b.DateRead)) },
			Compare: explorer.ByTime(func(b Book) time.Time { return b.DateRead }),
		},
		explorer.Field[Book]{
			Name:    "added",
			Label:   "Date added",
			Compare: explorer.ByTime(func(b Book) time.Time { return b.DateAdded }),
		},
		explorer.Field[Book]{
			Name:    "pages",
			Label:   "Pages",
			Compare: explorer.ByOrdered(func(b Book) int { return b.Pages }),
		},
		explorer.Field[Book]{
			Name:    "year",
			Label:   "Published",
			Compare: explorer.ByOrdered(func(b Book) int { return publishedYear(b) }),
		},
	).WithDefaultSort("read", true)
}

// Columns are the CSV export columns of the books explorer.
var Columns = []explorer.Column[Book]{
	{Name: "title", Value: func(b Book) string { return b.Title }},
	{Name: "author", Value: func(b Book) string { return strings.Join(b.Authors, "; ") }},
	{Name: "isbn13", Value: func(b Book) string { return b.ISBN13 }},
	{Name: "rating", Value: func(b Book) string { return ratingValue(b.Rating) }},
	{Name: "shelf", Value: func(b Book) string { return b.Shelf }},
	{Name: "date_read", Value: func(b Book) string { return dateString(b.DateRead) }},
	{Name: "pages", Value: func(b Book) string { return strconv.Itoa(b.Pages) }},
	{Name: "published", Value: func(b Book) string { return strconv.Itoa(publishedYear(b)) }},
}

// authorSortKey prefers the export's "Last, First" form.
func authorSortKey(b Book) string {
	if b.AuthorSort != "" {
		return b.AuthorSort
	}
	return b.Author
}

func publishedYear(b Book) int {
	if b.OriginalYear != 0 {
		return b.OriginalYear
	}
	return b.Year
}

func ratingValue(r int) string {
	if r == 0 {
		return ""
	}
	return strconv.Itoa(r)
}

func yearString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006")
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
