package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/lthms/shelf/internal/library"
)

// TagsCmd prints the tag hierarchy with the resources filed under each node.
type TagsCmd struct {
	Tags         string `type:"path" default:"tags.json" help:"Tag hierarchy file."`
	Unclassified int    `short:"u" default:"20" help:"Unclassified tags to list (0 = none)."`
	Aliases      bool   `short:"a" help:"Show node aliases."`
}

func (cmd *TagsCmd) Run(g *Globals) error {
	cfg, err := g.userConfig()
	if err != nil {
		return err
	}
	d, err := loadDatasets(cfg.Paths.Data, cmd.Tags)
	if err != nil {
		return err
	}
	if d.tree == nil {
		return fmt.Errorf("no tag hierarchy at %s: %w", cmd.Tags, os.ErrNotExist)
	}
	fmt.Println(renderTags(d.tree, d.class, cmd.Aliases))

	if len(d.class.Untagged) > 0 {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("%d resources without tags", len(d.class.Untagged))))
	}
	if cmd.Unclassified > 0 && len(d.class.Unclassified) > 0 {
		fmt.Println()
		fmt.Println(accentStyle.Render("Unclassified tags"))
		for _, tc := range d.class.Unclassified[:min(cmd.Unclassified, len(d.class.Unclassified))] {
			fmt.Printf("  %s %s\n", tc.Tag, mutedStyle.Render(fmt.Sprintf("(%d)", tc.Count)))
		}
		if rest := len(d.class.Unclassified) - cmd.Unclassified; rest > 0 {
			fmt.Println(mutedStyle.Render(fmt.Sprintf("  … and %d more", rest)))
		}
	}
	return nil
}

var (
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	emptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))
)

// renderTags draws the hierarchy as a rounded tree, one line per node:
// label, total resources and, when different, the directly filed count.
func renderTags(t *library.Tree, c *library.Classification, aliases bool) string {
	root := tree.Root(accentStyle.Render(fmt.Sprintf("library (%d classified)", c.Classified()))).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(mutedStyle)
	for _, n := range t.Roots {
		root.Child(tagNode(n, c, aliases))
	}
	return root.String()
}

func tagNode(n *library.Node, c *library.Classification, aliases bool) any {
	cnt := c.Counts[n.Path]
	label := n.Label + " " + countStyle.Render(fmt.Sprintf("%d", cnt.Total))
	if cnt.Total == 0 {
		label = emptyStyle.Render(n.Label + " 0")
	}
	if cnt.Direct != cnt.Total && cnt.Direct > 0 {
		label += mutedStyle.Render(fmt.Sprintf(" (%d here)", cnt.Direct))
	}
	if aliases {
		var extra []string
		for _, a := range n.Aliases {
			if a != n.ID {
				extra = append(extra, a)
			}
		}
		if len(extra) > 0 {
			label += mutedStyle.Render("  ~ " + strings.Join(extra, ", "))
		}
	}
	if len(n.Children) == 0 {
		return label
	}

	sub := tree.Root(label).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(mutedStyle)
	for _, ch := range n.Children {
		sub.Child(tagNode(ch, c, aliases))
	}
	return sub
}
