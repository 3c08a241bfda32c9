package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lthms/shelf/internal/goodreads"
	"github.com/lthms/shelf/internal/spotify"
)

// ReplaceBooks swaps the whole book table for books. The export is a full
// snapshot, so books missing from it are removed.
func (s *Store) ReplaceBooks(ctx context.Context, books []goodreads.Book) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM books`); err != nil {
			return fmt.Errorf("clear books: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO books (id, title, author, shelf, date_read, data)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				author = excluded.author,
				shelf = excluded.shelf,
				date_read = excluded.date_read,
				data = excluded.data`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range books {
			data, err := json.Marshal(b)
			if err != nil {
				return fmt.Errorf("encode book %s: %w", b.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, b.ID, b.Title, b.Author, b.Shelf, formatTime(b.DateRead), string(data)); err != nil {
				return fmt.Errorf("insert book %s: %w", b.ID, err)
			}
		}
		return nil
	})
}

// Books returns every book, most recently read first, then by title.
func (s *Store) Books(ctx context.Context) ([]goodreads.Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM books ORDER BY date_read DESC, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []goodreads.Book
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		var b goodreads.Book
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return nil, fmt.Errorf("decode book: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ReplaceTracks swaps the whole track table for tracks.
func (s *Store) ReplaceTracks(ctx context.Context, tracks []spotify.Track) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tracks`); err != nil {
			return fmt.Errorf("clear tracks: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO tracks (id, artist, name, plays, ms_played, last_played, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				artist = excluded.artist,
				name = excluded.name,
				plays = excluded.plays,
				ms_played = excluded.ms_played,
				last_played = excluded.last_played,
				data = excluded.data`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range tracks {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("encode track %q: %w", t.Name, err)
			}
			if _, err := stmt.ExecContext(ctx, t.ID, t.Artist, t.Name, t.Plays, t.MsPlayed, formatTime(t.LastPlayed), string(data)); err != nil {
				return fmt.Errorf("insert track %q: %w", t.Name, err)
			}
		}
		return nil
	})
}

// Tracks returns every track by descending plays, then listening time.
func (s *Store) Tracks(ctx context.Context) ([]spotify.Track, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM tracks ORDER BY plays DESC, ms_played DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []spotify.Track
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		var t spotify.Track
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("decode track: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
