package resolution

import (
	"time"

	"github.com/starford/opscore/internal/models"
	"github.com/starford/opscore/internal/store"
)

// urgentWindowDays is how close a due date must be for a defect to be escalated.
const urgentWindowDays = 7

// Rule is one detector. Query must select (entity_id, due_date, detail).
type Rule struct {
	Entity   models.EntityType
	Issue    models.IssueType
	Query    string
	Priority func(d store.DefectRow, today time.Time) int
}

func fixed(p int) func(store.DefectRow, time.Time) int {
	return func(store.DefectRow, time.Time) int { return p }
}

func escalateIfDue(urgent, normal int) func(store.DefectRow, time.Time) int {
	return func(d store.DefectRow, today time.Time) int {
		if dueWithin(d.DueDate, today, urgentWindowDays) {
			return urgent
		}
		return normal
	}
}

// dueWithin reports whether due falls at most days after today. Overdue counts.
// An absent or unparsable date never escalates.
func dueWithin(due *string, today time.Time, days int) bool {
	if due == nil {
		return false
	}
	t, err := models.ParseDate(*due)
	if err != nil {
		return false
	}
	return models.DaysBetween(today, t) <= days
}

// Rules is the fixed detector set, run in this order by Populate.
var Rules = []Rule{
	{
		Entity: models.EntityTask,
		Issue:  models.IssueTaskUnlinked,
		Query: `SELECT id, due_date, 'task "' || COALESCE(title, '') || '" has no project'
			FROM tasks
			WHERE project_link_status = 'unlinked' AND COALESCE(status, '') != 'done'
			ORDER BY id`,
		Priority: escalateIfDue(1, 2),
	},
	{
		Entity: models.EntityTask,
		Issue:  models.IssueChainBroken,
		Query: `SELECT id, due_date, 'task "' || COALESCE(title, '') || '" project ' || COALESCE(project_id, '?') || ' chain is broken'
			FROM tasks
			WHERE project_link_status = 'partial' AND COALESCE(status, '') != 'done'
			ORDER BY id`,
		Priority: fixed(1),
	},
	{
		Entity: models.EntityTask,
		Issue:  models.IssueClientUnlinkedSanity,
		Query: `SELECT id, due_date, 'task "' || COALESCE(title, '') || '" is project-linked but client-unlinked'
			FROM tasks
			WHERE project_link_status = 'linked' AND client_link_status = 'unlinked' AND COALESCE(status, '') != 'done'
			ORDER BY id`,
		Priority: fixed(1),
	},
	{
		Entity: models.EntityProject,
		Issue:  models.IssueProjectMissingBrand,
		Query: `SELECT id, NULL, 'project "' || COALESCE(name, '') || '" has no brand'
			FROM projects
			WHERE is_internal = 0 AND brand_id IS NULL
			ORDER BY id`,
		Priority: fixed(2),
	},
	{
		Entity: models.EntityCommunication,
		Issue:  models.IssueCommUnlinked,
		Query: `SELECT c.id, MIN(m.due_date), COUNT(m.id) || ' commitment(s) from ' || COALESCE(c.from_address, '?') || ' with no client'
			FROM communications c
			JOIN commitments m ON m.communication_id = c.id
			WHERE c.link_status = 'unlinked'
			GROUP BY c.id
			ORDER BY c.id`,
		Priority: escalateIfDue(2, 3),
	},
	{
		Entity: models.EntityInvoice,
		Issue:  models.IssueInvoiceMissingDue,
		Query: `SELECT id, NULL, 'receivable invoice of ' || printf('%.2f', COALESCE(amount, 0)) || ' has no due date'
			FROM invoices
			WHERE status IN ('sent', 'overdue') AND paid_date IS NULL AND due_date IS NULL
			ORDER BY id`,
		Priority: fixed(2),
	},
	{
		Entity: models.EntityInvoice,
		Issue:  models.IssueInvoiceMissingClient,
		Query: `SELECT id, due_date, 'receivable invoice for "' || COALESCE(client_name, '?') || '" has no client'
			FROM invoices
			WHERE status IN ('sent', 'overdue') AND paid_date IS NULL AND client_id IS NULL
			ORDER BY id`,
		Priority: fixed(2),
	},
}
