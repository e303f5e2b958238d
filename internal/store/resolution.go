package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/opscore/internal/apperr"
	"github.com/starford/opscore/internal/models"
)

// DefectRow is one entity returned by a detector query.
// Detector queries must select exactly (entity_id, due_date, detail).
type DefectRow struct {
	EntityID string
	DueDate  *string
	Detail   string
}

// SummaryRow counts open items for one (priority, issue type) pair.
type SummaryRow struct {
	Priority  int              `json:"priority"`
	IssueType models.IssueType `json:"issue_type"`
	Count     int              `json:"count"`
}

// Defects runs a detector query. Rows without an entity ID are skipped.
func (db *DB) Defects(ctx context.Context, query string) ([]DefectRow, []SkippedRow, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("store: run detector: %w", err)
	}
	var out []DefectRow
	skipped, err := scanEach(rows, "detector", func(rows *sql.Rows) error {
		var id, dueDate, detail sql.NullString
		if err := rows.Scan(&id, &dueDate, &detail); err != nil {
			return err
		}
		eid, err := requireID(id)
		if err != nil {
			return err
		}
		out = append(out, DefectRow{EntityID: eid, DueDate: nullable(dueDate), Detail: detail.String})
		return nil
	})
	return out, skipped, err
}

// InsertOpenItem inserts item unless an open item with the same
// (entity_type, entity_id, issue_type) exists. It reports whether a row was created.
func (db *DB) InsertOpenItem(ctx context.Context, item models.ResolutionItem) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO resolution_queue (entity_type, entity_id, issue_type, priority, context, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM resolution_queue
			WHERE entity_type = ? AND entity_id = ? AND issue_type = ? AND resolved_at IS NULL
		)
		ON CONFLICT DO NOTHING
	`, item.EntityType, item.EntityID, item.IssueType, item.Priority, item.Context, item.CreatedAt.UTC(),
		item.EntityType, item.EntityID, item.IssueType)
	if err != nil {
		return false, fmt.Errorf("store: insert resolution item: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const itemColumns = `id, entity_type, entity_id, issue_type, priority, context, created_at,
	resolved_at, resolved_by, resolution_action`

// PendingItems returns open items ordered by (priority, created_at). limit <= 0 means no limit.
func (db *DB) PendingItems(ctx context.Context, limit int) ([]models.ResolutionItem, error) {
	if limit <= 0 {
		limit = -1
	}
	return db.queryItems(ctx, `SELECT `+itemColumns+` FROM resolution_queue
		WHERE resolved_at IS NULL
		ORDER BY priority ASC, created_at ASC, id ASC
		LIMIT ?`, limit)
}

// ItemsByPriority returns open items of one priority ordered by created_at.
func (db *DB) ItemsByPriority(ctx context.Context, priority int) ([]models.ResolutionItem, error) {
	return db.queryItems(ctx, `SELECT `+itemColumns+` FROM resolution_queue
		WHERE resolved_at IS NULL AND priority = ?
		ORDER BY created_at ASC, id ASC`, priority)
}

// Item returns one item by ID, or apperr.ErrNotFound.
func (db *DB) Item(ctx context.Context, id int64) (*models.ResolutionItem, error) {
	items, err := db.queryItems(ctx, `SELECT `+itemColumns+` FROM resolution_queue WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("store: resolution item %d: %w", id, apperr.ErrNotFound)
	}
	return &items[0], nil
}

// ResolveItem stamps an open item as resolved. It reports whether the row changed;
// resolving an already-resolved item changes nothing.
func (db *DB) ResolveItem(ctx context.Context, id int64, actor, action string, now time.Time) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE resolution_queue
		SET resolved_at = ?, resolved_by = ?, resolution_action = ?
		WHERE id = ? AND resolved_at IS NULL
	`, now.UTC(), actor, action, id)
	if err != nil {
		return false, fmt.Errorf("store: resolve item %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}
	if _, err := db.Item(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// OpenSummary counts open items grouped by (priority, issue_type).
func (db *DB) OpenSummary(ctx context.Context) ([]SummaryRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT priority, issue_type, COUNT(*) FROM resolution_queue
		WHERE resolved_at IS NULL
		GROUP BY priority, issue_type
		ORDER BY priority, issue_type
	`)
	if err != nil {
		return nil, fmt.Errorf("store: summary: %w", err)
	}
	defer rows.Close()
	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.Priority, &r.IssueType, &r.Count); err != nil {
			return nil, fmt.Errorf("store: scan summary: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PurgeResolved deletes items resolved before cutoff. Open items are never touched.
func (db *DB) PurgeResolved(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM resolution_queue WHERE resolved_at IS NOT NULL AND resolved_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: purge resolved: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (db *DB) queryItems(ctx context.Context, query string, args ...any) ([]models.ResolutionItem, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query resolution items: %w", err)
	}
	defer rows.Close()
	var out []models.ResolutionItem
	for rows.Next() {
		var (
			it                 models.ResolutionItem
			resolvedAt         sql.NullTime
			resolvedBy, action sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.EntityType, &it.EntityID, &it.IssueType, &it.Priority, &it.Context,
			&it.CreatedAt, &resolvedAt, &resolvedBy, &action); err != nil {
			return nil, fmt.Errorf("store: scan resolution item: %w", err)
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			it.ResolvedAt = &t
		}
		it.ResolvedBy = nullable(resolvedBy)
		it.ResolutionAction = nullable(action)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// IsNotFound reports whether err wraps apperr.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
