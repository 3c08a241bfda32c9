package main

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func TestRenderTags(t *testing.T) {
	dir, tags := writeDatasets(t)
	d, err := loadDatasets(dir, tags)
	if err != nil {
		t.Fatal(err)
	}

	out := ansi.Strip(renderTags(d.tree, d.class, false))
	lines := strings.Split(out, "\n")
	if !strings.Contains(lines[0], "library (2 classified)") {
		t.Errorf("root = %q", lines[0])
	}
	for _, want := range []string{
		"Computer science 2 (1 here)",
		"Programming languages 1",
		"Cooking 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("tree missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "~") {
		t.Errorf("aliases shown without -a:\n%s", out)
	}

	out = ansi.Strip(renderTags(d.tree, d.class, true))
	if !strings.Contains(out, "~ programming") {
		t.Errorf("aliases missing:\n%s", out)
	}
}
