package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/opscore/internal/models"
)

// LinkGraph is a consistent read of the task→project→brand→client hierarchy.
// Skipped lists rows from any of the four tables that could not be decoded.
type LinkGraph struct {
	Tasks    []models.Task
	Projects map[string]models.Project
	Brands   map[string]models.Brand
	Clients  map[string]models.Client
	Skipped  []SkippedRow
}

// LoadLinkGraph reads every task, project, brand and client inside one read transaction.
func (db *DB) LoadLinkGraph(ctx context.Context) (*LinkGraph, error) {
	tx, err := db.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	g := &LinkGraph{}
	var skipped []SkippedRow
	if g.Clients, skipped, err = loadClients(ctx, tx); err != nil {
		return nil, err
	}
	g.Skipped = append(g.Skipped, skipped...)
	if g.Brands, skipped, err = loadBrands(ctx, tx); err != nil {
		return nil, err
	}
	g.Skipped = append(g.Skipped, skipped...)
	if g.Projects, skipped, err = loadProjects(ctx, tx); err != nil {
		return nil, err
	}
	g.Skipped = append(g.Skipped, skipped...)
	if g.Tasks, skipped, err = loadTasks(ctx, tx); err != nil {
		return nil, err
	}
	g.Skipped = append(g.Skipped, skipped...)
	return g, nil
}

// Projects returns every decodable project keyed by ID.
func (db *DB) Projects(ctx context.Context) (map[string]models.Project, []SkippedRow, error) {
	return loadProjects(ctx, db.conn)
}

// Clients returns every decodable client keyed by ID.
func (db *DB) Clients(ctx context.Context) (map[string]models.Client, []SkippedRow, error) {
	return loadClients(ctx, db.conn)
}

// Brands returns every decodable brand keyed by ID.
func (db *DB) Brands(ctx context.Context) (map[string]models.Brand, []SkippedRow, error) {
	return loadBrands(ctx, db.conn)
}

// UpdateTaskLinks writes a task's derived tuple.
func (db *DB) UpdateTaskLinks(ctx context.Context, id string, l models.TaskLinks, now time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE tasks SET
			brand_id            = ?,
			client_id           = ?,
			project_link_status = ?,
			client_link_status  = ?,
			updated_at          = ?
		WHERE id = ?
	`, l.BrandID, l.ClientID, l.ProjectLinkStatus, l.ClientLinkStatus, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update task %s links: %w", id, err)
	}
	return nil
}

// UpdateProjectClient writes a project's derived client.
func (db *DB) UpdateProjectClient(ctx context.Context, id string, clientID *string, now time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE projects SET client_id = ?, updated_at = ? WHERE id = ?`,
		clientID, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update project %s client: %w", id, err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadClients(ctx context.Context, q queryer) (map[string]models.Client, []SkippedRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, tier FROM clients`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load clients: %w", err)
	}
	out := make(map[string]models.Client)
	skipped, err := scanEach(rows, "clients", func(rows *sql.Rows) error {
		var id, name, tier sql.NullString
		if err := rows.Scan(&id, &name, &tier); err != nil {
			return err
		}
		cid, err := requireID(id)
		if err != nil {
			return err
		}
		out[cid] = models.Client{ID: cid, Name: name.String, Tier: tier.String}
		return nil
	})
	return out, skipped, err
}

func loadBrands(ctx context.Context, q queryer) (map[string]models.Brand, []SkippedRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, client_id FROM brands`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load brands: %w", err)
	}
	out := make(map[string]models.Brand)
	skipped, err := scanEach(rows, "brands", func(rows *sql.Rows) error {
		var id, name, clientID sql.NullString
		if err := rows.Scan(&id, &name, &clientID); err != nil {
			return err
		}
		bid, err := requireID(id)
		if err != nil {
			return err
		}
		out[bid] = models.Brand{ID: bid, Name: name.String, ClientID: nullable(clientID)}
		return nil
	})
	return out, skipped, err
}

func loadProjects(ctx context.Context, q queryer) (map[string]models.Project, []SkippedRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, is_internal, brand_id, client_id FROM projects`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load projects: %w", err)
	}
	out := make(map[string]models.Project)
	skipped, err := scanEach(rows, "projects", func(rows *sql.Rows) error {
		var (
			id, name, brandID, clientID sql.NullString
			internal                    sql.NullBool
		)
		if err := rows.Scan(&id, &name, &internal, &brandID, &clientID); err != nil {
			return err
		}
		pid, err := requireID(id)
		if err != nil {
			return err
		}
		out[pid] = models.Project{
			ID:         pid,
			Name:       name.String,
			IsInternal: internal.Bool,
			BrandID:    nullable(brandID),
			ClientID:   nullable(clientID),
		}
		return nil
	})
	return out, skipped, err
}

func loadTasks(ctx context.Context, q queryer) ([]models.Task, []SkippedRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, status, project_id, due_date, brand_id, client_id,
		       project_link_status, client_link_status
		FROM tasks ORDER BY id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load tasks: %w", err)
	}
	var out []models.Task
	skipped, err := scanEach(rows, "tasks", func(rows *sql.Rows) error {
		var (
			id, title, status                     sql.NullString
			projectID, dueDate, brandID, clientID sql.NullString
			projectLink, clientLink               sql.NullString
		)
		if err := rows.Scan(&id, &title, &status, &projectID, &dueDate, &brandID, &clientID,
			&projectLink, &clientLink); err != nil {
			return err
		}
		tid, err := requireID(id)
		if err != nil {
			return err
		}
		t := models.Task{
			ID:        tid,
			Title:     title.String,
			Status:    status.String,
			ProjectID: nullable(projectID),
			DueDate:   nullable(dueDate),
			BrandID:   nullable(brandID),
			ClientID:  nullable(clientID),
		}
		// NULL or unrecognised values stay Unknown so the normalizer rewrites them.
		t.ProjectLinkStatus, _ = models.ParseProjectLinkStatus(projectLink.String)
		t.ClientLinkStatus, _ = models.ParseClientLinkStatus(clientLink.String)
		out = append(out, t)
		return nil
	})
	return out, skipped, err
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
