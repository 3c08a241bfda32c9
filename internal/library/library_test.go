package library

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lthms/shelf/internal/explorer"
	"github.com/lthms/shelf/internal/raindrop"
	"github.com/lthms/shelf/internal/zotero"
)

const treeJSON = `[
  {
    "id": "CS",
    "label": "Computer science",
    "aliases": ["computing"],
    "children": [
      {"id": "pl", "label": "Programming languages", "aliases": ["PLT", "type_systems"]},
      {"id": "systems", "label": "Systems", "aliases": ["os", "distributed"]}
    ]
  },
  {"id": "philosophy", "label": "Philosophie", "aliases": ["Théorie"]}
]`

func loadTestTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := Load(strings.NewReader(treeJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tree
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  Machine_Learning ": "machine-learning",
		"machine  learning":   "machine-learning",
		"Théorie":             "theorie",
		"--a--b--":            "a-b",
		"Ångström":            "angstrom",
		"":                    "",
		"C++":                 "c++",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad(t *testing.T) {
	tree := loadTestTree(t)
	if tree.Len() != 4 {
		t.Fatalf("Len = %d, want 4", tree.Len())
	}

	pl := tree.Node("cs/pl")
	if pl == nil {
		t.Fatal("node cs/pl missing")
	}
	want := []string{"pl", "plt", "programming-languages", "type-systems"}
	if diff := cmp.Diff(want, pl.Aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
	if pl.Depth != 1 || pl.Label != "Programming languages" {
		t.Errorf("pl = %+v", pl)
	}
	if !tree.Known("theorie") {
		t.Error("folded alias theorie not known")
	}

	var paths []string
	tree.Walk(func(n *Node) bool {
		paths = append(paths, n.Path)
		return n.ID != "cs"
	})
	if diff := cmp.Diff([]string{"cs", "philosophy"}, paths); diff != "" {
		t.Errorf("Walk with pruning (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"duplicate across branches", `[{"id":"a","children":[{"id":"x"}]},{"id":"b","children":[{"id":"X"}]}]`, ErrDuplicateNode},
		{"duplicate after normalization", `[{"id":"Type Systems"},{"id":"type_systems"}]`, ErrDuplicateNode},
		{"empty id", `[{"id":"a","children":[{"id":"  ","label":"blank"}]}]`, ErrEmptyID},
		{"slash in root id", `[{"id":"cs/ai","label":"AI"}]`, ErrInvalidID},
		{"slash in child id", `[{"id":"cs","children":[{"id":"ml/ai"}]}]`, ErrInvalidID},
		{"root shadowing a nested path", `[{"id":"cs","children":[{"id":"ai"}]},{"id":"cs/ai"}]`, ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.in))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Load(strings.NewReader(`[{"id":"a","colour":"red"}]`)); err == nil {
		t.Error("unknown key accepted")
	}
}

func testResources() []Resource {
	return []Resource{
		{ID: "1", Title: "TAPL", Tags: []string{"PLT", "books"}},
		{ID: "2", Title: "Raft", Tags: []string{"distributed"}},
		{ID: "3", Title: "Both", Tags: []string{"type systems", "OS", "computing"}},
		{ID: "4", Title: "Kant", Tags: []string{"théorie"}},
		{ID: "5", Title: "Nothing", Tags: []string{}},
		{ID: "6", Title: "Misc", Tags: []string{"Books", "cooking"}},
	}
}

func TestClassify(t *testing.T) {
	tree := loadTestTree(t)
	c := tree.Classify(testResources())

	wantCounts := map[string]Count{
		"cs":         {Direct: 1, Total: 3},
		"cs/pl":      {Direct: 2, Total: 2},
		"cs/systems": {Direct: 2, Total: 2},
		"philosophy": {Direct: 1, Total: 1},
	}
	if diff := cmp.Diff(wantCounts, c.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	wantUnclassified := []TagCount{{"books", 2}, {"cooking", 1}}
	if diff := cmp.Diff(wantUnclassified, c.Unclassified); diff != "" {
		t.Errorf("unclassified mismatch (-want +got):\n%s", diff)
	}
	if len(c.Untagged) != 1 || c.Untagged[0].ID != "5" {
		t.Errorf("untagged = %+v", c.Untagged)
	}

	under, err := c.Resources("cs")
	if err != nil {
		t.Fatalf("Resources: %v", err)
	}
	var got []string
	for _, r := range under {
		got = append(got, r.ID)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, got); diff != "" {
		t.Errorf("Resources(cs) mismatch (-want +got):\n%s", diff)
	}

	direct, err := c.DirectResources("cs")
	if err != nil || len(direct) != 1 || direct[0].ID != "3" {
		t.Errorf("DirectResources(cs) = %+v, %v", direct, err)
	}

	if diff := cmp.Diff([]string{"cs", "cs/pl", "cs/systems"}, c.Nodes("3")); diff != "" {
		t.Errorf("Nodes(3) mismatch (-want +got):\n%s", diff)
	}
	if c.Classified() != 4 {
		t.Errorf("Classified = %d, want 4", c.Classified())
	}

	if _, err := c.Resources("nope"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("unknown path err = %v", err)
	}
}

// A node's total is at least each child's total and at most the sum of its
// direct count and its children's totals.
func TestClassify_CountBounds(t *testing.T) {
	tree := loadTestTree(t)
	c := tree.Classify(testResources())
	tree.Walk(func(n *Node) bool {
		got := c.Counts[n.Path]
		sum := got.Direct
		for _, child := range n.Children {
			cc := c.Counts[child.Path]
			if got.Total < cc.Total {
				t.Errorf("%s total %d < child %s total %d", n.Path, got.Total, child.Path, cc.Total)
			}
			sum += cc.Total
		}
		if got.Total > sum {
			t.Errorf("%s total %d > direct+children %d", n.Path, got.Total, sum)
		}
		return true
	})
}

func TestFromSources(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bs := FromBookmarks([]raindrop.Bookmark{
		{ID: 42, Title: "Post", Link: "https://example.com/p", Excerpt: "ex", Domain: "example.com", Created: created},
		{ID: 43, Title: "Noted", Excerpt: "ex", Note: "mine", Tags: []string{"a"}},
	})
	if bs[0].ID != "bookmark:42" || bs[0].Description != "ex" || bs[0].Tags == nil || !bs[0].Date.Equal(created) {
		t.Errorf("bookmark = %+v", bs[0])
	}
	if bs[1].Description != "mine" {
		t.Errorf("note should win over excerpt: %q", bs[1].Description)
	}

	ps := FromPapers([]zotero.Paper{
		{Key: "ABCD", Title: "Paper", DOI: "10.1/x", Year: 1978, Authors: []string{"L. Lamport"}},
	})
	want := Resource{
		ID:      "paper:ABCD",
		Kind:    KindPaper,
		Title:   "Paper",
		URL:     "https://doi.org/10.1/x",
		Authors: []string{"L. Lamport"},
		Tags:    []string{},
		Date:    time.Date(1978, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, ps[0]); diff != "" {
		t.Errorf("paper mismatch (-want +got):\n%s", diff)
	}
}

func TestExplorer_NodeFilter(t *testing.T) {
	tree := loadTestTree(t)
	res := testResources()
	c := tree.Classify(res)
	e := NewExplorer(c)

	out, err := e.Run(res, explorer.Query{
		Filters: map[string][]string{"node": {"cs/systems"}},
		Sort:    "title",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var got []string
	for _, r := range out.Items {
		got = append(got, r.Title)
	}
	if diff := cmp.Diff([]string{"Both", "Raft"}, got); diff != "" {
		t.Errorf("node filter mismatch (-want +got):\n%s", diff)
	}

	for _, tag := range []string{"type systems", "Type Systems", "type_systems", "type-systems"} {
		out, err := e.Run(res, explorer.Query{Filters: map[string][]string{"tag": {tag}}})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(out.Items) != 1 || out.Items[0].Title != "Both" {
			t.Errorf("tag filter %q = %v", tag, out.Items)
		}
	}

	if _, err := NewExplorer(nil).Run(res, explorer.Query{Filters: map[string][]string{"node": {"cs"}}}); !errors.Is(err, explorer.ErrUnknownField) {
		t.Errorf("node filter without classification: err = %v", err)
	}
}
