package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lthms/shelf/internal/site"
)

const rebuildDebounce = 300 * time.Millisecond

// BuildCmd renders the site.
type BuildCmd struct {
	Root        string `type:"existingdir" default:"." help:"Site root holding site.toml."`
	Drafts      bool   `help:"Render posts marked draft."`
	Concurrency int    `short:"j" help:"Parallel page writers (0 = default)."`
	Watch       bool   `short:"w" help:"Rebuild when content, data, static files or the config change."`
}

func (cmd *BuildCmd) Run(g *Globals) error {
	ctx, stop := interruptContext()
	defer stop()

	if err := cmd.build(ctx); err != nil {
		if !cmd.Watch {
			return err
		}
		slog.Error("site: build failed", "error", err)
	}
	if !cmd.Watch {
		return nil
	}
	return cmd.watch(ctx)
}

func (cmd *BuildCmd) build(ctx context.Context) error {
	cfg, err := site.LoadConfig(cmd.Root)
	if err != nil {
		return err
	}
	r, err := site.Build(ctx, cfg, site.Options{Drafts: cmd.Drafts, Concurrency: cmd.Concurrency})
	if err != nil {
		return err
	}
	fmt.Printf("%s %d posts, %d pages, %d static files in %s\n",
		accentStyle.Render("built"), r.Posts, r.Pages, r.Static, r.Duration.Round(time.Millisecond))
	return nil
}

// watch rebuilds after a burst of changes settles. The output directory
// is never watched.
func (cmd *BuildCmd) watch(ctx context.Context) error {
	cfg, err := site.LoadConfig(cmd.Root)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer w.Close()

	out, _ := filepath.Abs(cfg.Path(cfg.OutDir))
	if err := w.Add(cmd.Root); err != nil {
		return err
	}
	for _, dir := range []string{cfg.ContentDir, cfg.DataDir, cfg.StaticDir} {
		if err := addTree(w, cfg.Path(dir), out); err != nil {
			return err
		}
	}
	slog.Info("site: watching for changes", "root", cmd.Root)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignored(ev.Name, out) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addTree(w, ev.Name, out)
				}
			}
			slog.Debug("site: change", "path", ev.Name, "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(rebuildDebounce)
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("site: watch error", "error", err)

		case <-fire:
			fire, timer = nil, nil
			if err := cmd.build(ctx); err != nil {
				slog.Error("site: build failed", "error", err)
			}
		}
	}
}

// addTree watches dir and its subdirectories. A missing dir is skipped.
func addTree(w *fsnotify.Watcher, dir, out string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if abs, _ := filepath.Abs(p); abs == out {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

// ignored filters editor droppings and anything under the output dir.
func ignored(name, out string) bool {
	if abs, err := filepath.Abs(name); err == nil && (abs == out || strings.HasPrefix(abs, out+string(filepath.Separator))) {
		return true
	}
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}
