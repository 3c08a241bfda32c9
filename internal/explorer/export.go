package explorer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// Column maps a record to one CSV cell.
type Column[T any] struct {
	Name  string
	Value func(T) string
}

// WriteCSV writes a header row followed by one row per item.
func WriteCSV[T any](w io.Writer, cols []Column[T], items []T) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(cols))
	for _, it := range items {
		for i, c := range cols {
			row[i] = c.Value(it)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJSON writes items as an indented JSON array. A nil slice is written
// as an empty array.
func WriteJSON[T any](w io.Writer, items []T) error {
	if items == nil {
		items = []T{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}
