package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lthms/shelf/internal/library"
)

// Snapshot file names written by Export.
const (
	BookmarksFile = "bookmarks.json"
	PapersFile    = "papers.json"
	BooksFile     = "books.json"
	MusicFile     = "music.json"
	LibraryFile   = "library.json"
)

// ExportStats counts the records written per file.
type ExportStats map[string]int

// Export writes JSON snapshots of every table into dir. Each file is
// replaced atomically, so a concurrent build never reads a partial file.
func (s *Store) Export(ctx context.Context, dir string) (ExportStats, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	bookmarks, err := s.Bookmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	papers, err := s.Papers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	books, err := s.Books(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	tracks, err := s.Tracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	resources := append(library.FromBookmarks(bookmarks), library.FromPapers(papers)...)

	files := []struct {
		name  string
		value any
		count int
	}{
		{BookmarksFile, bookmarks, len(bookmarks)},
		{PapersFile, papers, len(papers)},
		{BooksFile, books, len(books)},
		{MusicFile, tracks, len(tracks)},
		{LibraryFile, resources, len(resources)},
	}

	stats := make(ExportStats, len(files))
	for _, f := range files {
		if err := writeJSONAtomic(filepath.Join(dir, f.name), f.value); err != nil {
			return nil, err
		}
		stats[f.name] = f.count
		slog.Debug("store: exported", "file", f.name, "records", f.count)
	}
	return stats, nil
}

// writeJSONAtomic writes v as indented JSON to a temp file next to path
// and renames it into place. nil slices are written as [].
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if string(data) == "null" {
		data = []byte("[]")
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
