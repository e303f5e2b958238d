package resolution_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/starford/opscore/internal/apperr"
	"github.com/starford/opscore/internal/models"
	"github.com/starford/opscore/internal/normalize"
	"github.com/starford/opscore/internal/resolution"
	"github.com/starford/opscore/internal/store"
	"github.com/starford/opscore/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	fixedNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	ref      = models.Ref
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newQueue(db *store.DB, now *time.Time) *resolution.Queue {
	return resolution.NewQueue(db, quietLogger(), resolution.WithClock(func() time.Time { return *now }))
}

func normalizeAll(t *testing.T, db *store.DB) {
	t.Helper()
	n := normalize.New(db, quietLogger(), normalize.WithClock(func() time.Time { return fixedNow }))
	if _, err := n.Run(context.Background()); err != nil {
		t.Fatalf("normalize: %v", err)
	}
}

func TestEndToEnd_BrandWithMissingClient(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	testutil.NewSeed(t, db).
		Brand("b1", ref("c-gone")).
		Project("p1", false, ref("b1")).
		Task("t1", ref("p1"), nil)

	normalizeAll(t, db)
	g, err := db.LoadLinkGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := models.TaskLinks{
		BrandID:           ref("b1"),
		ClientID:          ref("c-gone"),
		ProjectLinkStatus: models.ProjectLinkPartial,
		ClientLinkStatus:  models.ClientUnlinked,
	}
	if diff := cmp.Diff(want, g.Tasks[0].Links()); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}

	now := fixedNow
	q := newQueue(db, &now)
	if _, err := q.Populate(ctx); err != nil {
		t.Fatal(err)
	}
	items, err := q.GetPending(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %+v, want exactly one", items)
	}
	it := items[0]
	if it.IssueType != models.IssueChainBroken || it.Priority != 1 || it.EntityID != "t1" {
		t.Errorf("item = %+v, want chain_broken priority 1 for t1", it)
	}
	if !strings.Contains(it.Context, "referenced client does not exist") {
		t.Errorf("context = %q, want the classifying rule", it.Context)
	}
}

func TestPopulate_Dedup(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	testutil.NewSeed(t, db).
		Task("t1", nil, nil).
		Project("p1", false, nil)

	now := fixedNow
	q := newQueue(db, &now)
	first, err := q.Populate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Total() != 2 {
		t.Errorf("first populate created %d, want 2", first.Total())
	}

	now = now.Add(time.Hour)
	second, err := q.Populate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Total() != 0 || second.Detected != 2 {
		t.Errorf("second populate = %+v, want 2 detected, 0 created", second)
	}
	n, _ := db.Count(ctx, `SELECT COUNT(*) FROM resolution_queue`)
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestPopulate_RecreatesAfterResolve(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	testutil.NewSeed(t, db).Task("t1", nil, nil)

	now := fixedNow
	q := newQueue(db, &now)
	if _, err := q.Populate(ctx); err != nil {
		t.Fatal(err)
	}
	items, _ := q.GetPending(ctx, 0)
	if _, err := q.Resolve(ctx, items[0].ID, "ops", "linked by hand"); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Hour)
	res, err := q.Populate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created[models.IssueTaskUnlinked] != 1 {
		t.Errorf("created = %v, want a fresh unlinked_project item", res.Created)
	}
	open, _ := q.GetPending(ctx, 0)
	if len(open) != 1 || open[0].ID == items[0].ID {
		t.Errorf("open = %+v, want one new item", open)
	}
}

func TestPopulate_Priorities(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	soon := fixedNow.AddDate(0, 0, 7).Format(time.DateOnly)
	later := fixedNow.AddDate(0, 0, 8).Format(time.DateOnly)
	past := fixedNow.AddDate(0, 0, -3).Format(time.DateOnly)
	testutil.NewSeed(t, db).
		Task("due-soon", nil, &soon).
		Task("due-later", nil, &later).
		Task("overdue", nil, &past).
		Task("undated", nil, nil).
		Task("bad-date", nil, ref("someday")).
		TaskWithStatus("done", "done", nil).
		Task("sanity", nil, nil).
		Exec(`UPDATE tasks SET project_link_status = 'linked', project_id = 'p' WHERE id = 'sanity'`).
		Communication("m-soon", "x@y.example", "s", "").
		Commitment("k1", "m-soon", &soon).
		Commitment("k2", "m-soon", &later).
		Communication("m-later", "x@y.example", "s", "").
		Commitment("k3", "m-later", &later).
		Communication("m-none", "x@y.example", "s", "").
		Invoice("no-due", models.InvoiceSent, ref("c1"), nil).
		Invoice("no-client", models.InvoiceOverdue, nil, &past).
		Invoice("draft", models.InvoiceDraft, nil, nil)

	now := fixedNow
	q := newQueue(db, &now)
	if _, err := q.Populate(ctx); err != nil {
		t.Fatal(err)
	}
	items, err := q.GetPending(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]int)
	for _, it := range items {
		got[string(it.IssueType)+"/"+it.EntityID] = it.Priority
	}
	want := map[string]int{
		"unlinked_project/due-soon":     1,
		"unlinked_project/due-later":    2,
		"unlinked_project/overdue":      1,
		"unlinked_project/undated":      2,
		"unlinked_project/bad-date":     2,
		"client_unlinked_sanity/sanity": 1,
		"unlinked_commitments/m-soon":   2,
		"unlinked_commitments/m-later":  3,
		"missing_due_date/no-due":       2,
		"missing_client/no-client":      2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("priorities mismatch (-want +got):\n%s", diff)
	}

	for i := 1; i < len(items); i++ {
		if items[i-1].Priority > items[i].Priority {
			t.Fatalf("pending not ordered by priority at %d", i)
		}
	}
}

func TestGetByPriority(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	testutil.NewSeed(t, db).Task("a", nil, nil).Project("p", false, nil)

	now := fixedNow
	q := newQueue(db, &now)
	if _, err := q.Populate(ctx); err != nil {
		t.Fatal(err)
	}
	testutil.NewSeed(t, db).Task("b", nil, nil)
	now = now.Add(time.Minute)
	if _, err := q.Populate(ctx); err != nil {
		t.Fatal(err)
	}

	items, err := q.GetByPriority(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, it := range items {
		ids = append(ids, it.EntityID)
	}
	if diff := cmp.Diff([]string{"a", "p", "b"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	if _, err := q.GetByPriority(ctx, 4); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("priority 4 err = %v, want ErrInvalidArgument", err)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	testutil.NewSeed(t, db).Task("t1", nil, nil)

	now := fixedNow
	q := newQueue(db, &now)
	if _, err := q.Populate(ctx); err != nil {
		t.Fatal(err)
	}
	items, _ := q.GetPending(ctx, 0)
	id := items[0].ID

	it, err := q.Resolve(ctx, id, "alice", "assigned project")
	if err != nil {
		t.Fatal(err)
	}
	if it.Open() || models.Deref(it.ResolvedBy) != "alice" {
		t.Errorf("item = %+v, want resolved by alice", it)
	}

	now = now.Add(time.Hour)
	again, err := q.Resolve(ctx, id, "bob", "again")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if models.Deref(again.ResolvedBy) != "alice" || !again.ResolvedAt.Equal(*it.ResolvedAt) {
		t.Errorf("second resolve overwrote the first: %+v", again)
	}

	if _, err := q.Resolve(ctx, 9999, "alice", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
	if _, err := q.Resolve(ctx, id, "  ", "x"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("blank actor err = %v, want ErrInvalidArgument", err)
	}
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	testutil.NewSeed(t, db).
		Task("a", nil, nil).
		Task("b", nil, nil).
		Project("p", false, nil).
		Task("c", ref("ghost"), nil).
		Exec(`UPDATE tasks SET project_link_status = 'partial' WHERE id = 'c'`)

	now := fixedNow
	q := newQueue(db, &now)
	if _, err := q.Populate(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := q.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []store.SummaryRow{
		{Priority: 1, IssueType: models.IssueChainBroken, Count: 1},
		{Priority: 2, IssueType: models.IssueProjectMissingBrand, Count: 1},
		{Priority: 2, IssueType: models.IssueTaskUnlinked, Count: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	testutil.NewSeed(t, db).Task("old", nil, nil).Task("recent", nil, nil).Task("open", nil, nil)

	now := fixedNow
	q := newQueue(db, &now)
	if _, err := q.Populate(ctx); err != nil {
		t.Fatal(err)
	}
	items, _ := q.GetPending(ctx, 0)
	byEntity := make(map[string]int64)
	for _, it := range items {
		byEntity[it.EntityID] = it.ID
	}

	if _, err := q.Resolve(ctx, byEntity["old"], "ops", "done"); err != nil {
		t.Fatal(err)
	}
	now = fixedNow.AddDate(0, 0, 20)
	if _, err := q.Resolve(ctx, byEntity["recent"], "ops", "done"); err != nil {
		t.Fatal(err)
	}

	now = fixedNow.AddDate(0, 0, 31)
	n, err := q.Purge(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if _, err := db.Item(ctx, byEntity["old"]); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("old resolved item survived purge")
	}
	for _, e := range []string{"recent", "open"} {
		if _, err := db.Item(ctx, byEntity[e]); err != nil {
			t.Errorf("%s item purged: %v", e, err)
		}
	}
}
