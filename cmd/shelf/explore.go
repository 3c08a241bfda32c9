package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/lthms/shelf/internal/explorer"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiItalic = "\033[3m"
	ansiAccent = "\033[38;2;137;180;250m" // #89b4fa
	ansiMuted  = "\033[38;2;147;153;178m" // #9399b2
	ansiGreen  = "\033[38;2;166;227;161m" // #a6e3a1
	ansiRed    = "\033[38;2;243;139;168m" // #f38ba8
)

// ExploreCmd browses one dataset, interactively or as a printed page.
type ExploreCmd struct {
	Dataset  string   `arg:"" enum:"books,music,library" help:"Dataset to browse: books, music or library."`
	Query    string   `short:"q" help:"Initial search."`
	Fuzzy    bool     `help:"Fuzzy search instead of matching every word."`
	Filter   []string `short:"f" help:"Facet filter as field=value, repeatable."`
	Sort     string   `help:"Sort field."`
	Desc     bool     `help:"Sort descending."`
	Page     int      `default:"1" help:"Page to print with --print."`
	PageSize int      `default:"20" help:"Page size for --print."`
	Print    bool     `short:"p" help:"Print one page and exit."`
	Format   string   `enum:"csv,json" default:"csv" help:"Export format for C-e."`
	Tags     string   `type:"path" default:"tags.json" help:"Tag hierarchy for the library node filter."`
}

func (cmd *ExploreCmd) Run(g *Globals) error {
	cfg, err := g.userConfig()
	if err != nil {
		return err
	}
	d, err := loadDatasets(cfg.Paths.Data, cmd.Tags)
	if err != nil {
		return err
	}
	b, err := d.browser(cmd.Dataset)
	if err != nil {
		return err
	}
	filters, err := parseFilters(cmd.Filter)
	if err != nil {
		return err
	}
	q := explorer.Query{
		Search:   cmd.Query,
		Fuzzy:    cmd.Fuzzy,
		Filters:  filters,
		Sort:     cmd.Sort,
		Desc:     cmd.Desc,
		Page:     cmd.Page,
		PageSize: cmd.PageSize,
	}

	if cmd.Print || !term.IsTerminal(int(os.Stdin.Fd())) {
		v, err := b.query(q)
		if err != nil {
			return err
		}
		fmt.Println(renderPage(v))
		return nil
	}
	q.Page = 1
	return runExplorer(b, q, cmd.Format)
}

// renderPage prints a page as a table with a position footer.
func renderPage(v view) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(v.Header...).
		Rows(v.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	footer := mutedStyle.Render(fmt.Sprintf("page %d of %d, %d records", v.Page, v.TotalPages, v.Total))
	return t.String() + "\n" + footer
}

const (
	exploreStateList   = 0
	exploreStateDetail = 1
)

type exploreState struct {
	b      browser
	q      explorer.Query
	format string

	state    int // exploreStateList or exploreStateDetail
	view     view
	err      error
	selected int // row on the current page
	picked   explorer.Selection
	status   string

	detailLines  []string
	detailScroll int

	termWidth  int
	termHeight int
}

func runExplorer(b browser, q explorer.Query, format string) error {
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)
	defer fmt.Print("\033[2J\033[H\033[?25h")

	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w < 40 {
		w = 90
	}
	if err != nil || h < 10 {
		h = 30
	}

	es := &exploreState{b: b, q: q, format: format, termWidth: w, termHeight: h}
	es.q.PageSize = es.pageSize()
	es.refresh()
	es.render()

	buf := make([]byte, 64)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil
		}
		if n == 0 {
			continue
		}
		input := buf[:n]

		var quit bool
		if es.state == exploreStateList {
			quit = es.handleListInput(input)
		} else {
			quit = es.handleDetailInput(input)
		}
		if quit {
			return nil
		}
		es.render()
	}
}

// pageSize fits one row per line between the header and the footer.
func (es *exploreState) pageSize() int {
	return max(es.termHeight-9, 1)
}

// refresh reruns the query, clamping the page and the cursor.
func (es *exploreState) refresh() {
	v, err := es.b.query(es.q)
	es.err = err
	if err != nil {
		return
	}
	if es.q.Page > v.TotalPages {
		es.q.Page = v.TotalPages
		v, es.err = es.b.query(es.q)
	}
	es.view = v
	es.selected = min(es.selected, max(len(v.Rows)-1, 0))
}

func (es *exploreState) setSearch(s string) {
	if s == es.q.Search {
		return
	}
	es.q.Search = s
	es.q.Page = 1
	es.selected = 0
	es.refresh()
}

// handleListInput processes input in the list state.
// Returns true if the explorer should exit.
func (es *exploreState) handleListInput(input []byte) bool {
	es.status = ""
	if len(input) == 1 {
		switch input[0] {
		case 27, 3: // Esc, C-c
			return true
		case 10, 13: // Enter: open details
			es.openDetail()
		case 127, 8: // Backspace
			if es.q.Search != "" {
				r := []rune(es.q.Search)
				es.setSearch(string(r[:len(r)-1]))
			}
		case 21: // C-u: clear search
			es.setSearch("")
		case 23: // C-w: delete last word
			s := strings.TrimRight(es.q.Search, " ")
			if i := strings.LastIndexByte(s, ' '); i >= 0 {
				es.setSearch(s[:i+1])
			} else {
				es.setSearch("")
			}
		case 9: // Tab: next sort field
			es.cycleSort()
		case 18: // C-r: reverse sort
			es.q.Desc = !es.q.Desc
			es.refresh()
		case 6: // C-f: toggle fuzzy search
			es.q.Fuzzy = !es.q.Fuzzy
			es.q.Page = 1
			es.refresh()
		case 20: // C-t: toggle selection
			if id, ok := es.current(); ok {
				es.picked.Toggle(id)
				es.moveSelection(1)
			}
		case 5: // C-e: export
			es.export()
		default:
			if input[0] >= 32 && input[0] < 127 {
				es.setSearch(es.q.Search + string(input[0]))
			}
		}
	} else if len(input) == 3 && input[0] == 27 && input[1] == 91 {
		switch input[2] {
		case 65: // Up
			es.moveSelection(-1)
		case 66: // Down
			es.moveSelection(1)
		case 67: // Right
			es.turnPage(1)
		case 68: // Left
			es.turnPage(-1)
		}
	} else if input[0] >= 0xc0 {
		// UTF-8 text, e.g. accented letters
		es.setSearch(es.q.Search + string(input))
	} else if len(input) == 2 && input[0] == 27 {
		return true
	}
	return false
}

// handleDetailInput processes input in the detail state.
// Returns true if the explorer should exit.
func (es *exploreState) handleDetailInput(input []byte) bool {
	if len(input) == 1 {
		switch input[0] {
		case 'q', 3:
			return true
		case 27, 10, 13: // Esc, Enter
			es.state = exploreStateList
			es.detailLines = nil
		case 'j':
			es.scrollDetail(1)
		case 'k':
			es.scrollDetail(-1)
		}
	} else if len(input) == 3 && input[0] == 27 && input[1] == 91 {
		switch input[2] {
		case 65:
			es.scrollDetail(-1)
		case 66:
			es.scrollDetail(1)
		}
	}
	return false
}

func (es *exploreState) current() (string, bool) {
	if es.selected < 0 || es.selected >= len(es.view.IDs) {
		return "", false
	}
	return es.view.IDs[es.selected], true
}

func (es *exploreState) moveSelection(delta int) {
	if len(es.view.Rows) == 0 {
		return
	}
	es.selected = min(max(es.selected+delta, 0), len(es.view.Rows)-1)
}

func (es *exploreState) turnPage(delta int) {
	p := min(max(es.q.Page+delta, 1), max(es.view.TotalPages, 1))
	if p == es.q.Page {
		return
	}
	es.q.Page = p
	es.selected = 0
	es.refresh()
}

// cycleSort steps through the sortable fields, then back to the default.
func (es *exploreState) cycleSort() {
	fields := es.b.sortFields()
	if len(fields) == 0 {
		return
	}
	i := slices.Index(fields, es.q.Sort)
	if i == len(fields)-1 {
		es.q.Sort = ""
	} else {
		es.q.Sort = fields[i+1]
	}
	es.refresh()
}

func (es *exploreState) openDetail() {
	id, ok := es.current()
	if !ok {
		return
	}
	width := max(es.termWidth-6, 20)
	var lines []string
	for i, l := range es.b.detail(id) {
		if i == 0 {
			l = ansiBold + l + ansiReset
		}
		lines = append(lines, strings.Split(ansi.Wordwrap(l, width, ""), "\n")...)
	}
	es.detailLines = lines
	es.detailScroll = 0
	es.state = exploreStateDetail
}

func (es *exploreState) scrollDetail(delta int) {
	maxScroll := max(len(es.detailLines)-(es.termHeight-6), 0)
	es.detailScroll = min(max(es.detailScroll+delta, 0), maxScroll)
}

// export writes the picked records, or the whole result when nothing is
// picked, to a timestamped file in the working directory.
func (es *exploreState) export() {
	name := fmt.Sprintf("%s-%s.%s", strings.ToLower(es.b.name()), time.Now().Format("20060102-150405"), es.format)
	f, err := os.Create(name)
	if err != nil {
		es.status = ansiRed + err.Error() + ansiReset
		return
	}
	n, err := es.b.export(f, es.format, es.q, es.picked.IDs())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		es.status = ansiRed + "export: " + err.Error() + ansiReset
		return
	}
	abs, _ := filepath.Abs(name)
	es.status = fmt.Sprintf("%sexported %d records to %s%s", ansiGreen, n, abs, ansiReset)
}

// render draws the current state to the terminal.
func (es *exploreState) render() {
	var sb strings.Builder
	sb.WriteString("\033[2J\033[H")
	if es.state == exploreStateList {
		es.renderList(&sb)
	} else {
		es.renderDetail(&sb)
	}
	fmt.Print(sb.String())
}

func (es *exploreState) renderList(sb *strings.Builder) {
	w := es.termWidth

	// Header: title left, sort and position right
	sb.WriteString("\r\n  ")
	sb.WriteString(ansiAccent + ansiBold + es.b.name() + ansiReset)
	info := fmt.Sprintf("%d records  page %d/%d", es.view.Total, es.view.Page, max(es.view.TotalPages, 1))
	if es.q.Sort != "" {
		dir := "↑"
		if es.q.Desc {
			dir = "↓"
		}
		info = "sort " + es.q.Sort + dir + "  " + info
	}
	if n := es.picked.Len(); n > 0 {
		info = fmt.Sprintf("%d picked  %s", n, info)
	}
	pad := max(w-4-ansi.StringWidth(es.b.name())-ansi.StringWidth(info), 2)
	sb.WriteString(strings.Repeat(" ", pad))
	sb.WriteString(ansiMuted + info + ansiReset)
	sb.WriteString("\r\n\r\n")

	// Search input
	sb.WriteString("  " + ansiMuted + "Search: " + ansiReset + es.q.Search)
	if es.q.Fuzzy {
		sb.WriteString(ansiMuted + ansiItalic + "  (fuzzy)" + ansiReset)
	}
	sb.WriteString("\033[s") // save cursor
	sb.WriteString("\r\n\r\n")

	switch {
	case es.err != nil:
		sb.WriteString("  " + ansiRed + es.err.Error() + ansiReset + "\r\n")
	case len(es.view.Rows) == 0:
		sb.WriteString("  " + ansiMuted + ansiItalic + "No results" + ansiReset + "\r\n")
	default:
		widths := columnWidths(es.view, w-6)
		sb.WriteString("    " + ansiDim + formatRow(es.view.Header, widths) + ansiReset + "\r\n")
		for i, row := range es.view.Rows {
			marker := "  "
			if es.picked.Has(es.view.IDs[i]) {
				marker = ansiGreen + "✓ " + ansiReset
			}
			if i == es.selected {
				sb.WriteString(ansiAccent + "▸ " + ansiReset + marker + ansiBold + formatRow(row, widths) + ansiReset)
			} else {
				sb.WriteString("  " + marker + formatRow(row, widths))
			}
			sb.WriteString("\r\n")
		}
	}

	// Footer
	sb.WriteString("\r\n  ")
	if es.status != "" {
		sb.WriteString(es.status)
	} else {
		sb.WriteString(ansiMuted + "↑↓ move  ←→ page  Tab sort  C-r reverse  C-f fuzzy  C-t pick  C-e export  Enter details  Esc quit" + ansiReset)
	}
	sb.WriteString("\r\n")

	// Restore cursor to search input
	sb.WriteString("\033[u\033[?25h")
}

func (es *exploreState) renderDetail(sb *strings.Builder) {
	sb.WriteString("\r\n  " + ansiMuted + "← Esc back" + ansiReset + "\r\n\r\n")

	visible := max(es.termHeight-6, 1)
	end := min(es.detailScroll+visible, len(es.detailLines))
	for i := es.detailScroll; i < end; i++ {
		sb.WriteString("   " + es.detailLines[i] + "\r\n")
	}
	for i := end - es.detailScroll; i < visible; i++ {
		sb.WriteString("\r\n")
	}

	sb.WriteString("\r\n  " + ansiMuted + "↑↓/jk scroll  Esc back  q quit" + ansiReset + "\r\n")
	sb.WriteString("\033[?25l")
}

// columnWidths sizes columns to their widest cell, then shrinks the widest
// until the row fits avail (one space between columns).
func columnWidths(v view, avail int) []int {
	widths := make([]int, len(v.Header))
	for i, h := range v.Header {
		widths[i] = ansi.StringWidth(h)
	}
	for _, row := range v.Rows {
		for i, c := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], ansi.StringWidth(c))
			}
		}
	}
	for {
		total := len(widths) - 1
		widest := 0
		for i, w := range widths {
			total += w
			if w > widths[widest] {
				widest = i
			}
		}
		if total <= avail || widths[widest] <= 4 {
			return widths
		}
		widths[widest]--
	}
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		var c string
		if i < len(cells) {
			c = ansi.Truncate(cells[i], w, "…")
		}
		parts[i] = c + strings.Repeat(" ", max(w-ansi.StringWidth(c), 0))
	}
	return strings.Join(parts, " ")
}
