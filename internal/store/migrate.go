package store

import (
	"database/sql"
	"fmt"
)

func migrate(db *sql.DB) error {
	stmts := []string{
		// Read-later bookmarks, keyed by the service's id
		`CREATE TABLE IF NOT EXISTS bookmarks (
			id          INTEGER PRIMARY KEY,
			title       TEXT NOT NULL DEFAULT '',
			link        TEXT NOT NULL DEFAULT '',
			excerpt     TEXT NOT NULL DEFAULT '',
			note        TEXT NOT NULL DEFAULT '',
			domain      TEXT NOT NULL DEFAULT '',
			type        TEXT NOT NULL DEFAULT '',
			tags        TEXT NOT NULL DEFAULT '[]',
			collection  INTEGER NOT NULL DEFAULT 0,
			cover       TEXT NOT NULL DEFAULT '',
			created     TEXT NOT NULL DEFAULT '',
			last_update TEXT NOT NULL DEFAULT ''
		)`,

		// Reference manager items, keyed by item key
		`CREATE TABLE IF NOT EXISTS papers (
			key           TEXT PRIMARY KEY,
			version       INTEGER NOT NULL DEFAULT 0,
			item_type     TEXT NOT NULL DEFAULT '',
			title         TEXT NOT NULL DEFAULT '',
			authors       TEXT NOT NULL DEFAULT '[]',
			date          TEXT NOT NULL DEFAULT '',
			year          INTEGER NOT NULL DEFAULT 0,
			url           TEXT NOT NULL DEFAULT '',
			doi           TEXT NOT NULL DEFAULT '',
			abstract      TEXT NOT NULL DEFAULT '',
			publication   TEXT NOT NULL DEFAULT '',
			tags          TEXT NOT NULL DEFAULT '[]',
			date_added    TEXT NOT NULL DEFAULT '',
			date_modified TEXT NOT NULL DEFAULT ''
		)`,

		// Imported books; the full record lives in data
		`CREATE TABLE IF NOT EXISTS books (
			id        TEXT PRIMARY KEY,
			title     TEXT NOT NULL,
			author    TEXT NOT NULL DEFAULT '',
			shelf     TEXT NOT NULL DEFAULT '',
			date_read TEXT NOT NULL DEFAULT '',
			data      TEXT NOT NULL
		)`,

		// Aggregated listening history
		`CREATE TABLE IF NOT EXISTS tracks (
			id          TEXT PRIMARY KEY,
			artist      TEXT NOT NULL DEFAULT '',
			name        TEXT NOT NULL,
			plays       INTEGER NOT NULL DEFAULT 0,
			ms_played   INTEGER NOT NULL DEFAULT 0,
			last_played TEXT NOT NULL DEFAULT '',
			data        TEXT NOT NULL
		)`,

		// Incremental sync cursors, one per source
		`CREATE TABLE IF NOT EXISTS sync_state (
			source     TEXT PRIMARY KEY,
			cursor     TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`,

		// One row per sync or import run
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			full        INTEGER NOT NULL DEFAULT 0,
			started_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT '',
			fetched     INTEGER NOT NULL DEFAULT 0,
			upserted    INTEGER NOT NULL DEFAULT 0,
			deleted     INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookmarks_last_update ON bookmarks(last_update)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at)`,
	}

	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", truncate(s, 60), err)
		}
	}
	return nil
}
