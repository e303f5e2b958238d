package normalize

import (
	"github.com/starford/opscore/internal/models"
	"github.com/starford/opscore/internal/store"
)

// Chain is a task's hierarchy as found in the store. A nil pointer means the
// referenced row does not exist (or no reference was made).
type Chain struct {
	ProjectID *string
	Project   *models.Project
	Brand     *models.Brand
	Client    *models.Client
}

// ResolveChain walks task → project → brand → client through g.
func ResolveChain(t models.Task, g *store.LinkGraph) Chain {
	c := Chain{ProjectID: t.ProjectID}
	if t.ProjectID == nil {
		return c
	}
	p, ok := g.Projects[*t.ProjectID]
	if !ok {
		return c
	}
	c.Project = &p
	if p.BrandID == nil {
		return c
	}
	b, ok := g.Brands[*p.BrandID]
	if !ok {
		return c
	}
	c.Brand = &b
	if b.ClientID == nil {
		return c
	}
	if cl, ok := g.Clients[*b.ClientID]; ok {
		c.Client = &cl
	}
	return c
}

// TaskRule is one row of the task decision table.
type TaskRule struct {
	Name        string
	Description string
	Match       func(Chain) bool
	Result      func(Chain) models.TaskLinks
}

// TaskRules is evaluated in order; the first matching rule wins. The order encodes
// which failure mode is reported when several apply.
var TaskRules = []TaskRule{
	{
		Name:        "no_project_ref",
		Description: "task has no project",
		Match:       func(c Chain) bool { return c.ProjectID == nil },
		Result: func(Chain) models.TaskLinks {
			return links(nil, nil, models.ProjectUnlinked, models.ClientUnlinked)
		},
	},
	{
		Name:        "project_missing",
		Description: "referenced project does not exist",
		Match:       func(c Chain) bool { return c.Project == nil },
		Result: func(Chain) models.TaskLinks {
			return links(nil, nil, models.ProjectLinkPartial, models.ClientUnlinked)
		},
	},
	{
		Name:        "internal_project",
		Description: "project is internal",
		Match:       func(c Chain) bool { return c.Project.IsInternal },
		Result: func(c Chain) models.TaskLinks {
			return links(c.Project.BrandID, nil, models.ProjectLinked, models.ClientLinkNA)
		},
	},
	{
		Name:        "project_no_brand",
		Description: "project has no brand",
		Match:       func(c Chain) bool { return c.Project.BrandID == nil },
		Result: func(Chain) models.TaskLinks {
			return links(nil, nil, models.ProjectLinkPartial, models.ClientUnlinked)
		},
	},
	{
		Name:        "brand_missing",
		Description: "referenced brand does not exist",
		Match:       func(c Chain) bool { return c.Brand == nil },
		Result: func(c Chain) models.TaskLinks {
			return links(c.Project.BrandID, nil, models.ProjectLinkPartial, models.ClientUnlinked)
		},
	},
	{
		Name:        "brand_no_client",
		Description: "brand has no client",
		Match:       func(c Chain) bool { return c.Brand.ClientID == nil },
		Result: func(c Chain) models.TaskLinks {
			return links(c.Project.BrandID, nil, models.ProjectLinkPartial, models.ClientUnlinked)
		},
	},
	{
		Name:        "client_missing",
		Description: "referenced client does not exist",
		Match:       func(c Chain) bool { return c.Client == nil },
		// The dangling client id is kept so the queue can name it.
		Result: func(c Chain) models.TaskLinks {
			return links(c.Project.BrandID, c.Brand.ClientID, models.ProjectLinkPartial, models.ClientUnlinked)
		},
	},
	{
		Name:        "linked",
		Description: "full chain resolves",
		Match:       func(Chain) bool { return true },
		Result: func(c Chain) models.TaskLinks {
			return links(c.Project.BrandID, c.Brand.ClientID, models.ProjectLinked, models.ClientLinked)
		},
	},
}

// Decision is the outcome of classifying one task.
type Decision struct {
	Rule  TaskRule
	Links models.TaskLinks
}

// ClassifyTask applies TaskRules to c.
func ClassifyTask(c Chain) Decision {
	for _, r := range TaskRules {
		if r.Match(c) {
			return Decision{Rule: r, Links: r.Result(c)}
		}
	}
	// Unreachable: the last rule always matches.
	panic("normalize: task decision table has no catch-all rule")
}

func links(brandID, clientID *string, p models.ProjectLinkStatus, c models.ClientLinkStatus) models.TaskLinks {
	return models.TaskLinks{
		BrandID:           copyRef(brandID),
		ClientID:          copyRef(clientID),
		ProjectLinkStatus: p,
		ClientLinkStatus:  c,
	}
}

func copyRef(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
