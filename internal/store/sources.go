package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lthms/shelf/internal/raindrop"
	"github.com/lthms/shelf/internal/zotero"
)

// UpsertBookmarks inserts or updates bookmarks in one transaction and
// returns the number of rows written. Last write wins.
func (s *Store) UpsertBookmarks(ctx context.Context, bs []raindrop.Bookmark) (int, error) {
	if len(bs) == 0 {
		return 0, nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO bookmarks
			(id, title, link, excerpt, note, domain, type, tags, collection, cover, created, last_update)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				link = excluded.link,
				excerpt = excluded.excerpt,
				note = excluded.note,
				domain = excluded.domain,
				type = excluded.type,
				tags = excluded.tags,
				collection = excluded.collection,
				cover = excluded.cover,
				created = excluded.created,
				last_update = excluded.last_update`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bs {
			if _, err := stmt.ExecContext(ctx,
				b.ID, b.Title, b.Link, b.Excerpt, b.Note, b.Domain, b.Type,
				encodeList(b.Tags), b.Collection, b.Cover,
				formatTime(b.Created), formatTime(b.LastUpdate),
			); err != nil {
				return fmt.Errorf("upsert bookmark %d: %w", b.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(bs), nil
}

const bookmarkColumns = `id, title, link, excerpt, note, domain, type, tags, collection, cover, created, last_update`

type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row scanner) (raindrop.Bookmark, error) {
	var (
		b                   raindrop.Bookmark
		tags                string
		created, lastUpdate string
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Link, &b.Excerpt, &b.Note, &b.Domain, &b.Type,
		&tags, &b.Collection, &b.Cover, &created, &lastUpdate); err != nil {
		return b, err
	}
	var err error
	if b.Tags, err = decodeList(tags); err != nil {
		return b, err
	}
	b.Created = parseTime(created)
	b.LastUpdate = parseTime(lastUpdate)
	return b, nil
}

// Bookmarks returns every bookmark, most recently updated first.
func (s *Store) Bookmarks(ctx context.Context) ([]raindrop.Bookmark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks ORDER BY last_update DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []raindrop.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Bookmark returns a single bookmark.
func (s *Store) Bookmark(ctx context.Context, id int64) (raindrop.Bookmark, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = ?`, id)
	b, err := scanBookmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("bookmark %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return b, fmt.Errorf("get bookmark %d: %w", id, err)
	}
	return b, nil
}

// UpsertPapers inserts or updates papers in one transaction.
func (s *Store) UpsertPapers(ctx context.Context, ps []zotero.Paper) (int, error) {
	if len(ps) == 0 {
		return 0, nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO papers
			(key, version, item_type, title, authors, date, year, url, doi, abstract, publication, tags, date_added, date_modified)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				version = excluded.version,
				item_type = excluded.item_type,
				title = excluded.title,
				authors = excluded.authors,
				date = excluded.date,
				year = excluded.year,
				url = excluded.url,
				doi = excluded.doi,
				abstract = excluded.abstract,
				publication = excluded.publication,
				tags = excluded.tags,
				date_added = excluded.date_added,
				date_modified = excluded.date_modified`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range ps {
			if _, err := stmt.ExecContext(ctx,
				p.Key, p.Version, p.ItemType, p.Title, encodeList(p.Authors), p.Date, p.Year,
				p.URL, p.DOI, p.Abstract, p.Publication, encodeList(p.Tags),
				formatTime(p.DateAdded), formatTime(p.DateModified),
			); err != nil {
				return fmt.Errorf("upsert paper %s: %w", p.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(ps), nil
}

// DeletePapers removes papers by key and returns how many existed.
func (s *Store) DeletePapers(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var n int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			res, err := tx.ExecContext(ctx, `DELETE FROM papers WHERE key = ?`, k)
			if err != nil {
				return fmt.Errorf("delete paper %s: %w", k, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			n += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Papers returns every paper, most recently modified first.
func (s *Store) Papers(ctx context.Context) ([]zotero.Paper, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, version, item_type, title, authors, date, year, url, doi, abstract, publication, tags, date_added, date_modified
		 FROM papers ORDER BY date_modified DESC, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []zotero.Paper
	for rows.Next() {
		var (
			p               zotero.Paper
			authors, tags   string
			added, modified string
		)
		if err := rows.Scan(&p.Key, &p.Version, &p.ItemType, &p.Title, &authors, &p.Date, &p.Year,
			&p.URL, &p.DOI, &p.Abstract, &p.Publication, &tags, &added, &modified); err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		if p.Authors, err = decodeList(authors); err != nil {
			return nil, err
		}
		if p.Tags, err = decodeList(tags); err != nil {
			return nil, err
		}
		p.DateAdded = parseTime(added)
		p.DateModified = parseTime(modified)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
