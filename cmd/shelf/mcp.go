package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lthms/shelf/internal/explorer"
	"github.com/lthms/shelf/internal/library"
)

const maxToolPageSize = 50

var errNoTree = errors.New("no tag hierarchy loaded")

// MCPCmd serves the exported datasets over MCP stdio.
type MCPCmd struct {
	Tags string `type:"path" default:"tags.json" help:"Tag hierarchy file."`
}

type searchArgs struct {
	Query    string              `json:"query,omitempty" jsonschema:"Words that must all appear in the record"`
	Fuzzy    bool                `json:"fuzzy,omitempty" jsonschema:"Rank by fuzzy match instead of requiring every word"`
	Filters  map[string][]string `json:"filters,omitempty" jsonschema:"Facet filters: field name to accepted values (any value matches)"`
	Sort     string              `json:"sort,omitempty" jsonschema:"Sort field"`
	Desc     bool                `json:"desc,omitempty" jsonschema:"Sort descending"`
	Page     int                 `json:"page,omitempty" jsonschema:"1-based page number"`
	PageSize int                 `json:"page_size,omitempty" jsonschema:"Records per page, at most 50"`
}

type tagsArgs struct {
	Node string `json:"node,omitempty" jsonschema:"Node path such as cs/pl; lists its resources instead of the whole tree"`
}

func (cmd *MCPCmd) Run(g *Globals) error {
	cfg, err := g.userConfig()
	if err != nil {
		return err
	}
	d, err := loadDatasets(cfg.Paths.Data, cmd.Tags)
	if err != nil {
		return err
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "shelf",
		Version: "1.0.0",
	}, nil)

	for _, t := range []struct {
		name, dataset, desc string
	}{
		{"search_books", "books", "Search the reading log (Goodreads export)."},
		{"search_music", "music", "Search the listening history (Spotify), one record per track."},
		{"search_library", "library", "Search bookmarks and papers. The node facet takes a tag hierarchy path such as cs/pl."},
	} {
		b, err := d.browser(t.dataset)
		if err != nil {
			return err
		}
		desc := fmt.Sprintf("%s Filter fields: %s. Sort fields: %s.", t.desc,
			strings.Join(b.filterFields(), ", "), strings.Join(b.sortFields(), ", "))
		mcp.AddTool(server, &mcp.Tool{Name: t.name, Description: desc}, searchHandler(t.name, b))
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_tags",
		Description: "Return the tag hierarchy with resource counts per node and the tags no node claims, or the resources filed under one node.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args tagsArgs) (*mcp.CallToolResult, any, error) {
		slog.Debug("mcp: library_tags called", "node", args.Node)
		v, err := libraryTags(d, args.Node)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(v)
	})

	slog.Debug("mcp: starting server", "books", len(d.books), "tracks", len(d.tracks), "resources", len(d.resources))
	ctx, stop := interruptContext()
	defer stop()
	return server.Run(ctx, &mcp.StdioTransport{})
}

func searchHandler(name string, b browser) func(context.Context, *mcp.CallToolRequest, searchArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args searchArgs) (*mcp.CallToolResult, any, error) {
		slog.Debug("mcp: tool called", "tool", name, "query", args.Query)
		res, err := b.records(args.query())
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		return jsonResult(res)
	}
}

func (a searchArgs) query() explorer.Query {
	size := a.PageSize
	if size <= 0 {
		size = 20
	}
	return explorer.Query{
		Search:   a.Query,
		Fuzzy:    a.Fuzzy,
		Filters:  a.Filters,
		Sort:     a.Sort,
		Desc:     a.Desc,
		Page:     max(a.Page, 1),
		PageSize: min(size, maxToolPageSize),
	}
}

type tagNodeJSON struct {
	Path     string        `json:"path"`
	Label    string        `json:"label"`
	Aliases  []string      `json:"aliases,omitempty"`
	Direct   int           `json:"direct"`
	Total    int           `json:"total"`
	Children []tagNodeJSON `json:"children,omitempty"`
}

type tagsJSON struct {
	Nodes        []tagNodeJSON      `json:"nodes"`
	Unclassified []library.TagCount `json:"unclassified"`
	Untagged     int                `json:"untagged"`
}

type nodeJSON struct {
	Path      string             `json:"path"`
	Label     string             `json:"label"`
	Resources []library.Resource `json:"resources"`
}

func libraryTags(d *datasets, path string) (any, error) {
	if d.tree == nil {
		return nil, errNoTree
	}
	if path != "" {
		n := d.tree.Node(path)
		if n == nil {
			return nil, fmt.Errorf("node %q: %w", path, library.ErrUnknownNode)
		}
		rs, err := d.class.Resources(path)
		if err != nil {
			return nil, err
		}
		if rs == nil {
			rs = []library.Resource{}
		}
		return nodeJSON{Path: n.Path, Label: n.Label, Resources: rs}, nil
	}

	var conv func(ns []*library.Node) []tagNodeJSON
	conv = func(ns []*library.Node) []tagNodeJSON {
		out := make([]tagNodeJSON, 0, len(ns))
		for _, n := range ns {
			c := d.class.Counts[n.Path]
			out = append(out, tagNodeJSON{
				Path:     n.Path,
				Label:    n.Label,
				Aliases:  n.Aliases,
				Direct:   c.Direct,
				Total:    c.Total,
				Children: conv(n.Children),
			})
		}
		return out
	}
	un := d.class.Unclassified
	if un == nil {
		un = []library.TagCount{}
	}
	return tagsJSON{Nodes: conv(d.tree.Roots), Unclassified: un, Untagged: len(d.class.Untagged)}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}
