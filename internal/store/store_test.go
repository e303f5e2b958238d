package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/opscore/internal/apperr"
	"github.com/starford/opscore/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "opscore-store-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.ApplySchema(context.Background()); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	return db
}

func TestVerifySchema_OK(t *testing.T) {
	db := testDB(t)
	if err := db.VerifySchema(context.Background()); err != nil {
		t.Fatalf("VerifySchema: %v", err)
	}
}

func TestVerifySchema_MissingColumn(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	if err := db.Exec(ctx, `ALTER TABLE invoices DROP COLUMN aging_bucket`); err != nil {
		t.Fatal(err)
	}
	err := db.VerifySchema(ctx)
	if !errors.Is(err, apperr.ErrSchemaMismatch) {
		t.Fatalf("err = %v, want ErrSchemaMismatch", err)
	}
	if got := err.Error(); !strings.Contains(got, "invoices.aging_bucket") {
		t.Errorf("error %q should name the missing column", got)
	}
}

func TestLoadLinkGraph_UnknownStatusSurvivesRead(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	if err := db.Exec(ctx, `INSERT INTO tasks (id, project_link_status, client_link_status) VALUES ('t1', 'bogus', 'linked')`); err != nil {
		t.Fatal(err)
	}
	g, err := db.LoadLinkGraph(ctx)
	if err != nil {
		t.Fatalf("LoadLinkGraph: %v", err)
	}
	if len(g.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(g.Tasks))
	}
	if g.Tasks[0].ProjectLinkStatus != models.ProjectLinkUnknown {
		t.Errorf("status = %v, want unknown", g.Tasks[0].ProjectLinkStatus)
	}
	if g.Tasks[0].ClientLinkStatus != models.ClientLinked {
		t.Errorf("client status = %v, want linked", g.Tasks[0].ClientLinkStatus)
	}
}

func TestLoaders_NullableColumns(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	err := db.Exec(ctx, `
		DROP TABLE clients;
		CREATE TABLE clients (id TEXT PRIMARY KEY, name TEXT, tier TEXT);
		DROP TABLE communications;
		CREATE TABLE communications (
			id TEXT PRIMARY KEY, from_address TEXT, from_domain TEXT, subject TEXT,
			body_text TEXT, client_id TEXT, link_status TEXT
		);
		INSERT INTO clients (id) VALUES ('c1');
		INSERT INTO communications (id, from_address) VALUES ('m1', 'ops@acme.test');
		INSERT INTO brands (id, client_id) VALUES (NULL, 'c1');
		INSERT INTO brands (id, client_id) VALUES ('b1', 'c1');
	`)
	if err != nil {
		t.Fatal(err)
	}

	clients, skipped, err := db.Clients(ctx)
	if err != nil {
		t.Fatalf("Clients: %v", err)
	}
	if len(skipped) != 0 || clients["c1"].Name != "" || clients["c1"].Tier != "" {
		t.Errorf("clients = %+v skipped = %v, want c1 with empty name and tier", clients, skipped)
	}

	comms, skipped, err := db.Communications(ctx)
	if err != nil {
		t.Fatalf("Communications: %v", err)
	}
	if len(skipped) != 0 || len(comms) != 1 || comms[0].Subject != "" {
		t.Fatalf("comms = %+v skipped = %v", comms, skipped)
	}
	if comms[0].LinkStatus != models.CommLinkUnknown {
		t.Errorf("link status = %v, want unknown", comms[0].LinkStatus)
	}

	brands, skipped, err := db.Brands(ctx)
	if err != nil {
		t.Fatalf("Brands: %v", err)
	}
	if len(brands) != 1 || len(skipped) != 1 {
		t.Fatalf("brands = %+v skipped = %v, want b1 and one skipped row", brands, skipped)
	}
	if !errors.Is(skipped[0].Err, errNullID) {
		t.Errorf("skip reason = %v, want null id", skipped[0].Err)
	}
}

func TestUpdateTaskLinks(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	_ = db.Exec(ctx, `INSERT INTO tasks (id) VALUES ('t1')`)

	want := models.TaskLinks{
		BrandID:           models.Ref("b1"),
		ProjectLinkStatus: models.ProjectLinkPartial,
		ClientLinkStatus:  models.ClientUnlinked,
	}
	if err := db.UpdateTaskLinks(ctx, "t1", want, time.Now()); err != nil {
		t.Fatalf("UpdateTaskLinks: %v", err)
	}
	g, _ := db.LoadLinkGraph(ctx)
	if got := g.Tasks[0].Links(); !got.Equal(want) {
		t.Errorf("links = %+v, want %+v", got, want)
	}
}

func TestUpdateTaskLinks_RejectsUnknown(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	_ = db.Exec(ctx, `INSERT INTO tasks (id) VALUES ('t1')`)
	err := db.UpdateTaskLinks(ctx, "t1", models.TaskLinks{}, time.Now())
	if err == nil {
		t.Fatal("writing unknown statuses should fail")
	}
}

func TestInsertOpenItem_Dedup(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	item := models.ResolutionItem{
		EntityType: models.EntityTask, EntityID: "t1", IssueType: models.IssueChainBroken,
		Priority:   1, CreatedAt: time.Now(),
	}
	created, err := db.InsertOpenItem(ctx, item)
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	created, err = db.InsertOpenItem(ctx, item)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second insert for the same open triple must not create a row")
	}
}

func TestResolveItem_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.ResolveItem(context.Background(), 42, "ops", "fixed", time.Now())
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestPurgeResolved_KeepsOpen(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	old := time.Now().Add(-60 * 24 * time.Hour)
	for _, id := range []string{"a", "b"} {
		_, _ = db.InsertOpenItem(ctx, models.ResolutionItem{
			EntityType: models.EntityInvoice, EntityID: id, IssueType: models.IssueInvoiceMissingDue,
			Priority:   2, CreatedAt: old,
		})
	}
	if _, err := db.ResolveItem(ctx, 1, "ops", "fixed", old); err != nil {
		t.Fatal(err)
	}
	n, err := db.PurgeResolved(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	pending, _ := db.PendingItems(ctx, 0)
	if len(pending) != 1 || pending[0].EntityID != "b" {
		t.Errorf("pending = %+v, want only b", pending)
	}
}
