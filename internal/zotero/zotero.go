// Package zotero reads library items from the Zotero Web API (v3).
package zotero

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lthms/shelf/internal/apiclient"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.zotero.org"

// MaxLimit is the largest page size the API accepts.
const MaxLimit = 100

// Paper is a bibliographic item from the library.
type Paper struct {
	Key          string    `json:"key"`
	Version      int64     `json:"version"`
	ItemType     string    `json:"item_type"`
	Title        string    `json:"title"`
	Authors      []string  `json:"authors"`
	Date         string    `json:"date"`
	Year         int       `json:"year,omitempty"`
	URL          string    `json:"url"`
	DOI          string    `json:"doi"`
	Abstract     string    `json:"abstract"`
	Publication  string    `json:"publication"`
	Tags         []string  `json:"tags"`
	DateAdded    time.Time `json:"date_added"`
	DateModified time.Time `json:"date_modified"`
}

// Client talks to the Zotero API for a single user library.
type Client struct {
	api     *apiclient.Client
	baseURL string
	userID  string
	key     string
}

// NewClient creates a client. An empty baseURL selects DefaultBaseURL.
func NewClient(api *apiclient.Client, baseURL, userID, key string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: api, baseURL: strings.TrimRight(baseURL, "/"), userID: userID, key: key}
}

// PageResult is one page of items plus the pagination metadata Zotero
// returns in headers.
type PageResult struct {
	Papers  []Paper
	Fetched int   // raw items on the page, including skipped attachments and notes
	Total   int   // Total-Results header
	Version int64 // Last-Modified-Version header
}

type rawItem struct {
	Key     string `json:"key"`
	Version int64  `json:"version"`
	Data    struct {
		ItemType         string       `json:"itemType"`
		Title            string       `json:"title"`
		Creators         []rawCreator `json:"creators"`
		Date             string       `json:"date"`
		URL              string       `json:"url"`
		DOI              string       `json:"DOI"`
		AbstractNote     string       `json:"abstractNote"`
		PublicationTitle string       `json:"publicationTitle"`
		BookTitle        string       `json:"bookTitle"`
		ProceedingsTitle string       `json:"proceedingsTitle"`
		Tags             []struct {
			Tag string `json:"tag"`
		} `json:"tags"`
		DateAdded    string `json:"dateAdded"`
		DateModified string `json:"dateModified"`
	} `json:"data"`
}

type rawCreator struct {
	CreatorType string `json:"creatorType"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Name        string `json:"name"`
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Zotero-API-Key", c.key)
	h.Set("Zotero-API-Version", "3")
	return h
}

// Page fetches items starting at offset start. A non-zero since restricts
// the result to items modified after that library version.
func (c *Client) Page(ctx context.Context, start, limit int, since int64) (*PageResult, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("start", strconv.Itoa(start))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "dateModified")
	q.Set("direction", "asc")
	if since > 0 {
		q.Set("since", strconv.FormatInt(since, 10))
	}
	u := fmt.Sprintf("%s/users/%s/items?%s", c.baseURL, url.PathEscape(c.userID), q.Encode())

	var raw []rawItem
	h, err := c.api.GetJSON(ctx, u, c.header(), &raw)
	if err != nil {
		return nil, fmt.Errorf("zotero items at %d: %w", start, err)
	}

	res := &PageResult{Fetched: len(raw)}
	res.Total, _ = strconv.Atoi(h.Get("Total-Results"))
	res.Version, _ = strconv.ParseInt(h.Get("Last-Modified-Version"), 10, 64)

	for _, it := range raw {
		if skipType(it.Data.ItemType) {
			continue
		}
		res.Papers = append(res.Papers, it.toPaper())
	}
	return res, nil
}

// Deleted returns the keys of items deleted since the given library version.
func (c *Client) Deleted(ctx context.Context, since int64) ([]string, error) {
	u := fmt.Sprintf("%s/users/%s/deleted?since=%d", c.baseURL, url.PathEscape(c.userID), since)

	var resp struct {
		Items []string `json:"items"`
	}
	if _, err := c.api.GetJSON(ctx, u, c.header(), &resp); err != nil {
		return nil, fmt.Errorf("zotero deleted since %d: %w", since, err)
	}
	return resp.Items, nil
}

func skipType(itemType string) bool {
	switch itemType {
	case "attachment", "note", "annotation":
		return true
	}
	return false
}

var yearRe = regexp.MustCompile(`\b(1[5-9]\d\d|20\d\d)\b`)

func (it rawItem) toPaper() Paper {
	d := it.Data

	var authors []string
	for _, cr := range d.Creators {
		if cr.CreatorType != "" && cr.CreatorType != "author" {
			continue
		}
		name := strings.TrimSpace(cr.Name)
		if name == "" {
			name = strings.TrimSpace(cr.FirstName + " " + cr.LastName)
		}
		if name != "" {
			authors = append(authors, name)
		}
	}
	if authors == nil {
		authors = []string{}
	}

	tags := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		if tag := strings.TrimSpace(t.Tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	publication := d.PublicationTitle
	if publication == "" {
		publication = d.ProceedingsTitle
	}
	if publication == "" {
		publication = d.BookTitle
	}

	var year int
	if m := yearRe.FindString(d.Date); m != "" {
		year, _ = strconv.Atoi(m)
	}

	return Paper{
		Key:          it.Key,
		Version:      it.Version,
		ItemType:     d.ItemType,
		Title:        strings.TrimSpace(d.Title),
		Authors:      authors,
		Date:         d.Date,
		Year:         year,
		URL:          d.URL,
		DOI:          d.DOI,
		Abstract:     strings.TrimSpace(d.AbstractNote),
		Publication:  publication,
		Tags:         tags,
		DateAdded:    parseTime(d.DateAdded),
		DateModified: parseTime(d.DateModified),
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
