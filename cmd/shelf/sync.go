package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lthms/shelf/internal/apiclient"
	"github.com/lthms/shelf/internal/raindrop"
	"github.com/lthms/shelf/internal/store"
	"github.com/lthms/shelf/internal/syncer"
	"github.com/lthms/shelf/internal/zotero"
)

const userAgent = "shelf-sync/1.0"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8")).Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9399b2"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#89b4fa")).Bold(true)
)

// SyncCmd pulls the remote sources into the store.
type SyncCmd struct {
	Source []string `short:"s" help:"Sources to sync (raindrop, zotero). Default: every configured source."`
	Full   bool     `help:"Ignore stored cursors and refetch everything."`
	Export bool     `help:"Export JSON to the data directory after a successful sync."`

	RaindropToken string `env:"SHELF_RAINDROP_TOKEN" help:"Raindrop API token (overrides [raindrop] token)."`
	ZoteroKey     string `env:"SHELF_ZOTERO_KEY" help:"Zotero API key (overrides [zotero] key)."`
	ZoteroUser    string `env:"SHELF_ZOTERO_USER" help:"Zotero user id (overrides [zotero] user)."`
}

// newSyncer wires the remote clients that have credentials.
func (cmd *SyncCmd) newSyncer(st *store.Store, cfg *UserConfig) *syncer.Syncer {
	api := apiclient.New(apiclient.Config{
		Delay:      cfg.Sync.Delay,
		MaxRetries: cfg.Sync.Retries,
		Backoff:    cfg.Sync.Backoff,
		UserAgent:  userAgent,
	})
	s := &syncer.Syncer{
		Store:      st,
		Collection: cfg.Raindrop.Collection,
		PerPage:    cfg.Raindrop.PerPage,
		Limit:      cfg.Zotero.Limit,
	}
	if token := cmp.Or(cmd.RaindropToken, cfg.Raindrop.Token); token != "" {
		s.Raindrop = raindrop.NewClient(api, cfg.Raindrop.URL, token)
	}
	user, key := cmp.Or(cmd.ZoteroUser, cfg.Zotero.User), cmp.Or(cmd.ZoteroKey, cfg.Zotero.Key)
	if user != "" && key != "" {
		s.Zotero = zotero.NewClient(api, cfg.Zotero.URL, user, key)
	}
	return s
}

func (cmd *SyncCmd) Run(g *Globals) error {
	st, cfg, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	s := cmd.newSyncer(st, cfg)
	sources := cmd.Source
	if len(sources) == 0 {
		if s.Raindrop != nil {
			sources = append(sources, syncer.SourceRaindrop)
		}
		if s.Zotero != nil {
			sources = append(sources, syncer.SourceZotero)
		}
		if len(sources) == 0 {
			return fmt.Errorf("no source configured: set [raindrop] token or [zotero] user and key: %w", syncer.ErrNotConfigured)
		}
	}

	ctx, stop := interruptContext()
	defer stop()

	results, err := s.Run(ctx, sources, cmd.Full)
	fmt.Println(renderResults(results))
	if err != nil {
		return err
	}

	if cmd.Export {
		return exportData(ctx, st, cfg.Paths.Data)
	}
	return nil
}

// ImportCmd groups the local importers.
type ImportCmd struct {
	Books ImportBooksCmd `cmd:"" help:"Replace the books with a Goodreads library export (CSV)."`
	Music ImportMusicCmd `cmd:"" help:"Replace the tracks with a Spotify streaming history dump."`
}

// ImportBooksCmd imports a Goodreads CSV export.
type ImportBooksCmd struct {
	File   string `arg:"" type:"existingfile" help:"goodreads_library_export.csv"`
	Export bool   `help:"Export JSON to the data directory afterwards."`
}

func (cmd *ImportBooksCmd) Run(g *Globals) error {
	st, cfg, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := interruptContext()
	defer stop()

	s := &syncer.Syncer{Store: st}
	r, err := s.ImportBooks(ctx, cmd.File)
	fmt.Println(renderResults([]syncer.Result{r}))
	if err != nil {
		return err
	}
	if cmd.Export {
		return exportData(ctx, st, cfg.Paths.Data)
	}
	return nil
}

// ImportMusicCmd imports a Spotify history directory.
type ImportMusicCmd struct {
	Dir     string        `arg:"" type:"existingdir" help:"Directory holding StreamingHistory*.json or Streaming_History_Audio_*.json."`
	MinPlay time.Duration `help:"Shortest stream counted as a play (overrides [music] minplay)."`
	Export  bool          `help:"Export JSON to the data directory afterwards."`
}

func (cmd *ImportMusicCmd) Run(g *Globals) error {
	st, cfg, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := interruptContext()
	defer stop()

	s := &syncer.Syncer{Store: st}
	r, err := s.ImportMusic(ctx, cmd.Dir, cmp.Or(cmd.MinPlay, cfg.Music.MinPlay))
	fmt.Println(renderResults([]syncer.Result{r}))
	if err != nil {
		return err
	}
	if cmd.Export {
		return exportData(ctx, st, cfg.Paths.Data)
	}
	return nil
}

// ExportCmd writes the JSON snapshots the site is built from.
type ExportCmd struct {
	Out string `type:"path" help:"Output directory (default: the configured data directory)."`
}

func (cmd *ExportCmd) Run(g *Globals) error {
	st, cfg, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return exportData(context.Background(), st, cmp.Or(cmd.Out, cfg.Paths.Data))
}

func exportData(ctx context.Context, st *store.Store, dir string) error {
	stats, err := st.Export(ctx, dir)
	if err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(stats)) {
		slog.Info("export: wrote", "file", name, "records", stats[name])
	}
	fmt.Println(mutedStyle.Render("exported to " + dir))
	return nil
}

// RunsCmd lists the run history.
type RunsCmd struct {
	Limit int `short:"n" default:"20" help:"Number of runs to show."`
}

func (cmd *RunsCmd) Run(g *Globals) error {
	st, _, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(context.Background(), cmd.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println(mutedStyle.Render("no runs recorded"))
		return nil
	}
	fmt.Println(renderRuns(runs))
	return nil
}

// renderResults draws the per-source outcome of a sync or import.
func renderResults(results []syncer.Result) string {
	var failed []int
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		status := "ok"
		if r.Err != nil {
			status = errorSummary(r.Err)
			failed = append(failed, i)
		}
		rows = append(rows, []string{
			r.Source,
			strconv.Itoa(r.Stats.Fetched),
			strconv.Itoa(r.Stats.Upserted),
			strconv.Itoa(r.Stats.Deleted),
			r.Duration.Round(time.Millisecond).String(),
			status,
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("source", "fetched", "upserted", "deleted", "took", "status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 5 && slices.Contains(failed, row):
				return failStyle
			}
			return cellStyle
		})
	return t.String()
}

func renderRuns(runs []store.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		took, status := "", "ok"
		switch {
		case r.Running():
			status = "running"
		case r.Error != "":
			status = r.Error
			took = r.Duration().Round(time.Millisecond).String()
		default:
			took = r.Duration().Round(time.Millisecond).String()
		}
		mode := "incremental"
		if r.Full {
			mode = "full"
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Source,
			mode,
			strconv.Itoa(r.Stats.Fetched),
			strconv.Itoa(r.Stats.Upserted),
			strconv.Itoa(r.Stats.Deleted),
			took,
			status,
		})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("started", "source", "mode", "fetched", "upserted", "deleted", "took", "status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// errorSummary shortens an HTTP failure to its status.
func errorSummary(err error) string {
	var se *apiclient.StatusError
	switch {
	case errors.As(err, &se) && se.IsUnauthorized():
		return "unauthorized, check the token"
	case errors.As(err, &se) && se.IsRateLimited():
		return "rate limited"
	case errors.Is(err, syncer.ErrNotConfigured):
		return "not configured"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	}
	return err.Error()
}
