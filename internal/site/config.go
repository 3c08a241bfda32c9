package site

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigFile is the name of the project configuration in the site root.
const ConfigFile = "site.toml"

// ErrUnsafeOutDir is returned when the output directory would contain the
// site root or one of its sources. Build empties the output directory.
var ErrUnsafeOutDir = errors.New("unsafe out_dir")

// Config is the project configuration, read from site.toml.
type Config struct {
	Title       string `toml:"title"`
	BaseURL     string `toml:"base_url"`
	Author      string `toml:"author"`
	Email       string `toml:"email"`
	Description string `toml:"description"`
	Language    string `toml:"language"`

	ContentDir string `toml:"content_dir"`
	DataDir    string `toml:"data_dir"`
	OutDir     string `toml:"out_dir"`
	StaticDir  string `toml:"static_dir"`
	TagsFile   string `toml:"tags_file"`

	PostsPerPage     int `toml:"posts_per_page"`
	ExplorerPageSize int `toml:"explorer_page_size"`
	FeedItems        int `toml:"feed_items"`

	// Root is the directory relative paths are resolved against.
	Root string `toml:"-"`
}

func defaultConfig() Config {
	return Config{
		Title:            "shelf",
		BaseURL:          "http://localhost:8080",
		Language:         "en",
		ContentDir:       "content",
		DataDir:          "data",
		OutDir:           "public",
		StaticDir:        "static",
		TagsFile:         "tags.json",
		PostsPerPage:     10,
		ExplorerPageSize: 25,
		FeedItems:        20,
	}
}

// LoadConfig reads root/site.toml. A missing file yields the defaults.
func LoadConfig(root string) (Config, error) {
	cfg := defaultConfig()
	path := filepath.Join(root, ConfigFile)
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Root = root

	// Re-apply defaults for fields explicitly emptied
	def := defaultConfig()
	for _, f := range []struct{ v, d *string }{
		{&cfg.Title, &def.Title},
		{&cfg.BaseURL, &def.BaseURL},
		{&cfg.Language, &def.Language},
		{&cfg.ContentDir, &def.ContentDir},
		{&cfg.DataDir, &def.DataDir},
		{&cfg.OutDir, &def.OutDir},
		{&cfg.StaticDir, &def.StaticDir},
		{&cfg.TagsFile, &def.TagsFile},
	} {
		if *f.v == "" {
			*f.v = *f.d
		}
	}
	if cfg.PostsPerPage <= 0 {
		cfg.PostsPerPage = def.PostsPerPage
	}
	if cfg.ExplorerPageSize <= 0 {
		cfg.ExplorerPageSize = def.ExplorerPageSize
	}
	if cfg.FeedItems <= 0 {
		cfg.FeedItems = def.FeedItems
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if err := cfg.checkOutDir(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// checkOutDir rejects an output directory that is, or contains, the root,
// the content, data or static directory, the tags file or site.toml.
func (c Config) checkOutDir() error {
	out, err := filepath.Abs(c.Path(c.OutDir))
	if err != nil {
		return err
	}
	for _, p := range []string{
		c.Root,
		c.Path(c.ContentDir),
		c.Path(c.DataDir),
		c.Path(c.StaticDir),
		c.Path(c.TagsFile),
		c.Path(ConfigFile),
	} {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if abs == out || strings.HasPrefix(abs, out+string(filepath.Separator)) {
			return fmt.Errorf("%w: %s would remove %s", ErrUnsafeOutDir, out, abs)
		}
	}
	return nil
}

// Path resolves a configured path against Root.
func (c Config) Path(p string) string {
	if filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// URL turns a site path ("/posts/x/") into an absolute URL.
func (c Config) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL + path
}
