// Package models defines the typed records the core reads from and writes to the store.
package models

import "time"

// Task is a unit of delivery work. The link columns are derived by the normalizer.
type Task struct {
	ID                string
	Title             string
	Status            string
	ProjectID         *string
	DueDate           *string
	BrandID           *string
	ClientID          *string
	ProjectLinkStatus ProjectLinkStatus
	ClientLinkStatus  ClientLinkStatus
}

// TaskLinks is the derived tuple the normalizer maintains for a task.
type TaskLinks struct {
	BrandID           *string
	ClientID          *string
	ProjectLinkStatus ProjectLinkStatus
	ClientLinkStatus  ClientLinkStatus
}

// Links returns the task's stored derived tuple.
func (t Task) Links() TaskLinks {
	return TaskLinks{
		BrandID:           t.BrandID,
		ClientID:          t.ClientID,
		ProjectLinkStatus: t.ProjectLinkStatus,
		ClientLinkStatus:  t.ClientLinkStatus,
	}
}

// Equal reports whether two tuples are identical, comparing references by value.
func (l TaskLinks) Equal(o TaskLinks) bool {
	return sameRef(l.BrandID, o.BrandID) &&
		sameRef(l.ClientID, o.ClientID) &&
		l.ProjectLinkStatus == o.ProjectLinkStatus &&
		l.ClientLinkStatus == o.ClientLinkStatus
}

// Project groups tasks. ClientID is derived from the brand unless the project is internal.
type Project struct {
	ID         string
	Name       string
	IsInternal bool
	BrandID    *string
	ClientID   *string
}

// Brand belongs to exactly one client.
type Brand struct {
	ID       string
	Name     string
	ClientID *string
}

// Client is read-only to the core.
type Client struct {
	ID   string
	Name string
	Tier string
}

// ClientIdentity maps an email address or domain to a client.
type ClientIdentity struct {
	ClientID string
	Kind     string // "email" or "domain"
	Value    string
}

// Invoice is an accounting document. AgingBucket is derived for valid-AR rows only.
type Invoice struct {
	ID          string
	Status      InvoiceStatus
	ClientID    *string
	ClientName  *string
	DueDate     *string
	PaidDate    *string
	Amount      float64
	AgingBucket AgingBucket
}

// ValidAR reports whether the invoice counts toward accounts receivable.
func (i Invoice) ValidAR() bool {
	return i.Status.IsAR() && i.PaidDate == nil && i.DueDate != nil && i.ClientID != nil
}

// Communication is an inbound or outbound message. ClientID and LinkStatus are derived.
type Communication struct {
	ID          string
	FromAddress string
	FromDomain  *string
	Subject     string
	BodyText    string
	ClientID    *string
	LinkStatus  CommLinkStatus
}

// ResolutionItem is one open or resolved linkage defect.
type ResolutionItem struct {
	ID               int64      `json:"id"`
	EntityType       EntityType `json:"entity_type"`
	EntityID         string     `json:"entity_id"`
	IssueType        IssueType  `json:"issue_type"`
	Priority         int        `json:"priority"`
	Context          string     `json:"context"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy       *string    `json:"resolved_by,omitempty"`
	ResolutionAction *string    `json:"resolution_action,omitempty"`
}

// Open reports whether the item still awaits resolution.
func (r ResolutionItem) Open() bool {
	return r.ResolvedAt == nil
}

// Ref returns a pointer to a copy of s, for optional columns.
func Ref(s string) *string {
	return &s
}

// Deref returns the referenced string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
