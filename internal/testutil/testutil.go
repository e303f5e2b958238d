// Package testutil provides shared test helpers for setting up stores and seeding base rows.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/starford/opscore/internal/models"
	"github.com/starford/opscore/internal/store"
)

// TestDB creates a temporary SQLite store with the bootstrap schema applied.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "opscore-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.ApplySchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return db
}

// Seed inserts base rows the way collectors would.
type Seed struct {
	t  *testing.T
	db *store.DB
}

// NewSeed returns a seeder bound to db.
func NewSeed(t *testing.T, db *store.DB) *Seed {
	return &Seed{t: t, db: db}
}

func (s *Seed) exec(query string, args ...any) *Seed {
	s.t.Helper()
	if err := s.db.Exec(context.Background(), query, args...); err != nil {
		s.t.Fatalf("seed: %v", err)
	}
	return s
}

// Client inserts a client.
func (s *Seed) Client(id, name string) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO clients (id, name, tier) VALUES (?, ?, 'B')`, id, name)
}

// Brand inserts a brand; clientID may be nil.
func (s *Seed) Brand(id string, clientID *string) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO brands (id, name, client_id) VALUES (?, ?, ?)`, id, id, clientID)
}

// Project inserts a project with no derived client.
func (s *Seed) Project(id string, internal bool, brandID *string) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO projects (id, name, is_internal, brand_id) VALUES (?, ?, ?, ?)`, id, id, internal, brandID)
}

// ProjectWithClient inserts a project carrying a pre-set client.
func (s *Seed) ProjectWithClient(id string, internal bool, brandID, clientID *string) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO projects (id, name, is_internal, brand_id, client_id) VALUES (?, ?, ?, ?, ?)`,
		id, id, internal, brandID, clientID)
}

// Task inserts an open task with default link columns.
func (s *Seed) Task(id string, projectID, dueDate *string) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO tasks (id, title, project_id, due_date) VALUES (?, ?, ?, ?)`, id, id, projectID, dueDate)
}

// TaskWithStatus inserts a task with a workflow status.
func (s *Seed) TaskWithStatus(id, status string, projectID *string) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO tasks (id, title, status, project_id) VALUES (?, ?, ?, ?)`, id, id, status, projectID)
}

// Invoice inserts an invoice.
func (s *Seed) Invoice(id string, status models.InvoiceStatus, clientID, dueDate *string) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO invoices (id, status, client_id, due_date, amount) VALUES (?, ?, ?, ?, 100)`,
		id, string(status), clientID, dueDate)
}

// Communication inserts a communication.
func (s *Seed) Communication(id, from, subject, body string) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO communications (id, from_address, subject, body_text) VALUES (?, ?, ?, ?)`,
		id, from, subject, body)
}

// Commitment inserts a commitment extracted from a communication.
func (s *Seed) Commitment(id, communicationID string, dueDate *string) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO commitments (id, communication_id, text, due_date) VALUES (?, ?, 'follow up', ?)`,
		id, communicationID, dueDate)
}

// Identity maps an email or domain to a client.
func (s *Seed) Identity(clientID, kind, value string) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO client_identities (client_id, kind, value) VALUES (?, ?, ?)`, clientID, kind, value)
}

// Lane inserts a capacity lane; hours may be nil.
func (s *Seed) Lane(id string, hours *float64) *Seed {
	s.t.Helper()
	return s.exec(`INSERT INTO capacity_lanes (id, name, weekly_hours) VALUES (?, ?, ?)`, id, id, hours)
}

// Exec runs an arbitrary statement, for adversarial fixtures.
func (s *Seed) Exec(query string, args ...any) *Seed {
	s.t.Helper()
	return s.exec(query, args...)
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}
