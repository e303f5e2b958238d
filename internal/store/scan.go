package store

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	errNullID     = errors.New("null id")
	errIncomplete = errors.New("required column is null")
)

// SkippedRow is a row a loader could not decode. Loading continues past it.
type SkippedRow struct {
	Table string
	Index int
	Err   error
}

func (s SkippedRow) String() string {
	return fmt.Sprintf("%s row %d: %v", s.Table, s.Index, s.Err)
}

// scanEach calls scan once per row. A row that fails to decode is recorded and
// skipped; only iteration errors abort.
func scanEach(rows *sql.Rows, table string, scan func(*sql.Rows) error) ([]SkippedRow, error) {
	defer rows.Close()
	var skipped []SkippedRow
	for i := 0; rows.Next(); i++ {
		if err := scan(rows); err != nil {
			skipped = append(skipped, SkippedRow{Table: table, Index: i, Err: err})
		}
	}
	if err := rows.Err(); err != nil {
		return skipped, fmt.Errorf("store: iterate %s: %w", table, err)
	}
	return skipped, nil
}

func requireID(ns sql.NullString) (string, error) {
	if !ns.Valid || ns.String == "" {
		return "", errNullID
	}
	return ns.String, nil
}
