package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/gcfg/v2"

	"github.com/lthms/shelf/internal/apiclient"
	"github.com/lthms/shelf/internal/raindrop"
	"github.com/lthms/shelf/internal/spotify"
	"github.com/lthms/shelf/internal/zotero"
)

// UserConfig holds user-level configuration loaded from ~/.config/shelf/config.
type UserConfig struct {
	Raindrop RaindropConfig
	Zotero   ZoteroConfig
	Sync     SyncConfig
	Paths    PathsConfig
	Music    MusicConfig
}

// RaindropConfig configures the bookmarks source.
type RaindropConfig struct {
	Token      string
	Collection int64 // 0 = all collections
	PerPage    int
	URL        string
}

// ZoteroConfig configures the papers source.
type ZoteroConfig struct {
	User  string
	Key   string
	Limit int
	URL   string
}

// SyncConfig tunes request pacing against the remote APIs.
type SyncConfig struct {
	Delay   time.Duration
	Retries int
	Backoff time.Duration
}

// PathsConfig locates the store and the exported data.
type PathsConfig struct {
	DB   string
	Data string
}

// MusicConfig tunes the listening history import.
type MusicConfig struct {
	MinPlay time.Duration
}

// parseConfig reads a git-config style file into a multi-valued
// "section.key" map. Subsections become "section.sub.key". An [include]
// path is read in place, relative to the including file; a missing
// include is ignored. seen guards against include cycles.
func parseConfig(path string, seen map[string]bool) (map[string][]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen == nil {
		seen = make(map[string]bool)
	}
	if seen[abs] {
		return nil, fmt.Errorf("include cycle at %s", abs)
	}
	seen[abs] = true
	defer delete(seen, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	m := make(map[string][]string)
	err = gcfg.ReadWithCallback(bytes.NewReader(data), func(section, subsection, key, value string, blank bool) error {
		if key == "" {
			return nil
		}
		section, key = strings.ToLower(section), strings.ToLower(key)
		if section == "include" && subsection == "" && key == "path" {
			inc := expandHome(value)
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(filepath.Dir(abs), inc)
			}
			sub, err := parseConfig(inc, seen)
			if errors.Is(err, os.ErrNotExist) {
				slog.Debug("config: include not found, skipping", "path", inc)
				return nil
			}
			if err != nil {
				return err
			}
			for k, vs := range sub {
				m[k] = append(m[k], vs...)
			}
			return nil
		}

		name := section + "." + key
		if subsection != "" {
			name = section + "." + subsection + "." + key
		}
		if blank {
			value = "true"
		}
		m[name] = append(m[name], value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", abs, err)
	}
	return m, nil
}

// lastValue returns the last value set for key, or "".
func lastValue(m map[string][]string, key string) string {
	vs := m[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[len(vs)-1]
}

func defaultUserConfig() *UserConfig {
	return &UserConfig{
		Raindrop: RaindropConfig{PerPage: raindrop.MaxPerPage, URL: raindrop.DefaultBaseURL},
		Zotero:   ZoteroConfig{Limit: zotero.MaxLimit, URL: zotero.DefaultBaseURL},
		Sync: SyncConfig{
			Delay:   apiclient.DefaultDelay,
			Retries: apiclient.DefaultMaxRetries,
			Backoff: apiclient.DefaultBackoff,
		},
		Paths: PathsConfig{Data: "data"},
		Music: MusicConfig{MinPlay: spotify.DefaultMinPlay},
	}
}

// hydrateUserConfig maps parsed values onto a UserConfig with defaults.
// Malformed numbers and durations are logged and leave the default.
func hydrateUserConfig(m map[string][]string) *UserConfig {
	cfg := defaultUserConfig()

	str := func(key string, dst *string) {
		if v := lastValue(m, key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := lastValue(m, key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				slog.Warn("config: invalid number, using default", "key", key, "value", v)
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := lastValue(m, key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				slog.Warn("config: invalid duration, using default", "key", key, "value", v)
				return
			}
			*dst = d
		}
	}

	str("raindrop.token", &cfg.Raindrop.Token)
	str("raindrop.url", &cfg.Raindrop.URL)
	num("raindrop.perpage", &cfg.Raindrop.PerPage)
	if v := lastValue(m, "raindrop.collection"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			slog.Warn("config: invalid collection id, syncing all", "value", v)
		} else {
			cfg.Raindrop.Collection = id
		}
	}

	str("zotero.user", &cfg.Zotero.User)
	str("zotero.key", &cfg.Zotero.Key)
	str("zotero.url", &cfg.Zotero.URL)
	num("zotero.limit", &cfg.Zotero.Limit)

	dur("sync.delay", &cfg.Sync.Delay)
	num("sync.retries", &cfg.Sync.Retries)
	dur("sync.backoff", &cfg.Sync.Backoff)

	str("paths.db", &cfg.Paths.DB)
	str("paths.data", &cfg.Paths.Data)
	cfg.Paths.DB = expandHome(cfg.Paths.DB)
	cfg.Paths.Data = expandHome(cfg.Paths.Data)

	dur("music.minplay", &cfg.Music.MinPlay)
	return cfg
}

// loadUserConfig reads the user config at path, or ~/.config/shelf/config
// when path is empty. A missing file yields the defaults.
func loadUserConfig(path string) (*UserConfig, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("home dir: %w", err)
		}
		path = filepath.Join(home, ".config", "shelf", "config")
	}

	m, err := parseConfig(path, nil)
	if errors.Is(err, os.ErrNotExist) {
		m = nil
	} else if err != nil {
		return nil, err
	}

	cfg := hydrateUserConfig(m)
	if cfg.Paths.DB == "" {
		dir, err := stateDir()
		if err != nil {
			return nil, err
		}
		cfg.Paths.DB = filepath.Join(dir, "shelf.db")
	}
	return cfg, nil
}

func stateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	dir := filepath.Join(home, ".local", "state", "shelf")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
