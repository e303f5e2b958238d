package gates

// Invariant is a counting query whose result must be zero after a normalizer pass.
type Invariant struct {
	Name        string
	Description string
	Query       string
}

// Invariants are the six task linkage checks whose conjunction is data_integrity.
var Invariants = []Invariant{
	{
		Name:        "linked_chain_resolves",
		Description: "project-linked tasks reference an existing project whose brand→client chain resolves unless internal",
		Query: `
			SELECT COUNT(*) FROM tasks t
			LEFT JOIN projects p ON p.id = t.project_id
			LEFT JOIN brands   b ON b.id = p.brand_id
			LEFT JOIN clients  c ON c.id = b.client_id
			WHERE t.project_link_status = 'linked'
			  AND (t.project_id IS NULL
			       OR p.id IS NULL
			       OR (p.is_internal = 0 AND (b.id IS NULL OR c.id IS NULL)))`,
	},
	{
		Name:        "unlinked_has_no_project",
		Description: "project-unlinked tasks have no project reference",
		Query: `
			SELECT COUNT(*) FROM tasks
			WHERE project_link_status = 'unlinked' AND project_id IS NOT NULL`,
	},
	{
		Name:        "partial_has_project",
		Description: "partially linked tasks carry a project reference",
		Query: `
			SELECT COUNT(*) FROM tasks
			WHERE project_link_status = 'partial' AND project_id IS NULL`,
	},
	{
		Name:        "partial_is_broken",
		Description: "partially linked tasks have a genuinely broken chain",
		Query: `
			SELECT COUNT(*) FROM tasks t
			JOIN projects p ON p.id = t.project_id
			LEFT JOIN brands  b ON b.id = p.brand_id
			LEFT JOIN clients c ON c.id = b.client_id
			WHERE t.project_link_status = 'partial'
			  AND (p.is_internal = 1 OR c.id IS NOT NULL)`,
	},
	{
		Name:        "client_linked_resolves",
		Description: "client-linked tasks reference existing brand and client rows on a non-internal project",
		Query: `
			SELECT COUNT(*) FROM tasks t
			LEFT JOIN projects p ON p.id = t.project_id
			LEFT JOIN brands   b ON b.id = t.brand_id
			LEFT JOIN clients  c ON c.id = t.client_id
			WHERE t.client_link_status = 'linked'
			  AND (t.client_id IS NULL OR c.id IS NULL
			       OR t.brand_id IS NULL OR b.id IS NULL
			       OR p.id IS NULL OR p.is_internal = 1)`,
	},
	{
		Name:        "na_is_internal",
		Description: "tasks with client link n/a sit on an existing internal project",
		Query: `
			SELECT COUNT(*) FROM tasks t
			LEFT JOIN projects p ON p.id = t.project_id
			WHERE t.client_link_status = 'n/a'
			  AND (p.id IS NULL OR p.is_internal = 0)`,
	},
}
