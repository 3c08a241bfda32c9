package library

import (
	"fmt"
	"slices"
	"sort"
)

// Count is the membership of one node.
type Count struct {
	Direct int `json:"direct"` // resources tagged with one of the node's aliases
	Total  int `json:"total"`  // direct members plus every descendant's, deduplicated
}

// TagCount is a tag that matched no node.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Classification is the result of assigning resources to a Tree.
type Classification struct {
	Tree         *Tree
	Counts       map[string]Count // by node path
	Unclassified []TagCount       // by descending count, then tag
	Untagged     []Resource

	resources []Resource
	direct    map[string][]int // node path → resource indices, ascending
	total     map[string][]int
	nodesOf   map[string][]string // resource id → paths it is a total member of
}

// Classify assigns resources to nodes bottom-up. A resource is a direct
// member of every node whose alias set intersects its normalized tags and
// a total member of each of those nodes' ancestors; it is counted once per
// node however many of its tags match.
func (t *Tree) Classify(resources []Resource) *Classification {
	c := &Classification{
		Tree:      t,
		Counts:    make(map[string]Count, t.Len()),
		resources: resources,
		direct:    make(map[string][]int, t.Len()),
		total:     make(map[string][]int, t.Len()),
		nodesOf:   make(map[string][]string),
	}

	tags := make([][]string, len(resources))
	unknown := make(map[string]int)
	for i, r := range resources {
		tags[i] = NormalizeAll(r.Tags)
		if len(tags[i]) == 0 {
			c.Untagged = append(c.Untagged, r)
			continue
		}
		for _, tag := range tags[i] {
			if !t.Known(tag) {
				unknown[tag]++
			}
		}
	}

	var classify func(n *Node) map[int]bool
	classify = func(n *Node) map[int]bool {
		members := make(map[int]bool)
		var direct []int
		for i := range resources {
			if slices.ContainsFunc(tags[i], n.Matches) {
				direct = append(direct, i)
				members[i] = true
			}
		}
		for _, child := range n.Children {
			for i := range classify(child) {
				members[i] = true
			}
		}

		total := make([]int, 0, len(members))
		for i := range members {
			total = append(total, i)
		}
		slices.Sort(total)

		c.direct[n.Path] = direct
		c.total[n.Path] = total
		c.Counts[n.Path] = Count{Direct: len(direct), Total: len(total)}
		return members
	}
	for _, root := range t.Roots {
		classify(root)
	}

	t.Walk(func(n *Node) bool {
		for _, i := range c.total[n.Path] {
			id := resources[i].ID
			c.nodesOf[id] = append(c.nodesOf[id], n.Path)
		}
		return true
	})

	for tag, count := range unknown {
		c.Unclassified = append(c.Unclassified, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(c.Unclassified, func(i, j int) bool {
		a, b := c.Unclassified[i], c.Unclassified[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Tag < b.Tag
	})
	return c
}

// Resources returns every resource under the node at path (its total
// members), in input order.
func (c *Classification) Resources(path string) ([]Resource, error) {
	return c.pick(c.total, path)
}

// DirectResources returns only the node's own members.
func (c *Classification) DirectResources(path string) ([]Resource, error) {
	return c.pick(c.direct, path)
}

func (c *Classification) pick(index map[string][]int, path string) ([]Resource, error) {
	if c.Tree.Node(path) == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, path)
	}
	idx := index[path]
	out := make([]Resource, len(idx))
	for i, j := range idx {
		out[i] = c.resources[j]
	}
	return out, nil
}

// Nodes returns the paths of the nodes a resource falls under, in walk order.
func (c *Classification) Nodes(resourceID string) []string {
	return c.nodesOf[resourceID]
}

// Classified returns the number of resources that fall under at least one node.
func (c *Classification) Classified() int {
	return len(c.nodesOf)
}
