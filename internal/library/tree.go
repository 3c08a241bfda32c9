package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

var (
	// ErrDuplicateNode is returned when two nodes normalize to the same id.
	ErrDuplicateNode = errors.New("duplicate node id")
	// ErrEmptyID is returned for a node whose id normalizes to "".
	ErrEmptyID = errors.New("empty node id")
	// ErrInvalidID is returned for a node id containing the path separator.
	ErrInvalidID = errors.New("invalid node id")
	// ErrUnknownNode is returned when a path names no node.
	ErrUnknownNode = errors.New("unknown node")
)

// Node is one category of the tag hierarchy.
type Node struct {
	ID       string
	Label    string
	Path     string   // slash-joined ids from the root, e.g. "cs/pl"
	Aliases  []string // normalized, sorted; always contains ID and Label
	Children []*Node
	Depth    int

	aliases map[string]bool
}

// Matches reports whether a normalized tag belongs to the node itself.
func (n *Node) Matches(tag string) bool {
	return n.aliases[tag]
}

// Tree is a loaded tag hierarchy.
type Tree struct {
	Roots  []*Node
	byPath map[string]*Node
	// alias → nodes carrying it; the same alias may sit on several nodes.
	byAlias map[string][]*Node
}

type rawNode struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Aliases  []string  `json:"aliases"`
	Children []rawNode `json:"children"`
}

// Load reads a hierarchy authored as a JSON array of nodes:
//
//	[{"id": "cs", "label": "Computer science", "aliases": ["computing"],
//	  "children": [{"id": "pl", "label": "Programming languages"}]}]
func Load(r io.Reader) (*Tree, error) {
	var raw []rawNode
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode tag tree: %w", err)
	}

	t := &Tree{
		byPath:  make(map[string]*Node),
		byAlias: make(map[string][]*Node),
	}
	ids := make(map[string]string) // id → path of its first occurrence
	for _, rn := range raw {
		n, err := t.build(rn, nil, ids)
		if err != nil {
			return nil, err
		}
		t.Roots = append(t.Roots, n)
	}
	return t, nil
}

// LoadFile is Load on a file.
func LoadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func (t *Tree) build(rn rawNode, parent *Node, ids map[string]string) (*Node, error) {
	id := Normalize(rn.ID)
	if id == "" {
		where := "top level"
		if parent != nil {
			where = parent.Path
		}
		return nil, fmt.Errorf("%w (label %q under %s)", ErrEmptyID, rn.Label, where)
	}
	if strings.Contains(id, "/") {
		return nil, fmt.Errorf("%w: %q contains '/', nest it under its parent instead", ErrInvalidID, rn.ID)
	}

	n := &Node{
		ID:      id,
		Label:   rn.Label,
		Path:    id,
		aliases: make(map[string]bool),
	}
	if n.Label == "" {
		n.Label = rn.ID
	}
	if parent != nil {
		n.Path = parent.Path + "/" + id
		n.Depth = parent.Depth + 1
	}
	if prev, ok := ids[id]; ok {
		return nil, fmt.Errorf("%w: %q at %s and %s", ErrDuplicateNode, id, prev, n.Path)
	}
	if _, ok := t.byPath[n.Path]; ok {
		return nil, fmt.Errorf("%w: path %q", ErrDuplicateNode, n.Path)
	}
	ids[id] = n.Path

	for _, a := range append([]string{rn.ID, rn.Label}, rn.Aliases...) {
		if a := Normalize(a); a != "" && !n.aliases[a] {
			n.aliases[a] = true
			n.Aliases = append(n.Aliases, a)
			t.byAlias[a] = append(t.byAlias[a], n)
		}
	}
	slices.Sort(n.Aliases)
	t.byPath[n.Path] = n

	for _, rc := range rn.Children {
		c, err := t.build(rc, n, ids)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

// Node returns the node at path, or nil.
func (t *Tree) Node(path string) *Node {
	return t.byPath[path]
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.byPath)
}

// Known reports whether a normalized tag is an alias of any node.
func (t *Tree) Known(tag string) bool {
	return len(t.byAlias[tag]) > 0
}

// Walk visits nodes depth-first, parents before children, in authored
// order. Returning false from fn skips the node's children.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if fn(n) {
				walk(n.Children)
			}
		}
	}
	walk(t.Roots)
}
